package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qpoint/internal/banner"
	"qpoint/internal/cli"
	"qpoint/internal/dummy"
	"qpoint/internal/runner"
	"qpoint/internal/search"
)

var (
	cfgFile string
	headers []string
)

var rootCmd = &cobra.Command{
	Use:   "qpoint",
	Short: "qpoint - HTTP load generator and breaking point finder",
	Long: `
qpoint generates paced HTTP load against a target and reports latency
and status outcomes.

Two modes:

single run: hit the target at a fixed QPS for a fixed duration and
print the summary statistics.

breaking point: binary-search the QPS range for the highest rate that
stays within the error-rate and mean-latency ceilings, then confirm it
with one final run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

// Execute runs the root command. Exit status is non-zero only for
// configuration errors; not finding a breaking point is a normal exit.
func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dummyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.qpoint.yaml)")

	rootCmd.Flags().StringP("url", "u", "", "Target URL")
	rootCmd.Flags().Int("qps", 20, "Queries per second for a single run")
	rootCmd.Flags().IntP("duration", "d", 5, "Run duration in seconds")
	rootCmd.Flags().Int("retries", 1, "Attempts per logical request")
	rootCmd.Flags().Int("timeout", 10, "Request timeout in seconds")
	rootCmd.Flags().StringP("method", "X", "GET", "HTTP method")
	rootCmd.Flags().StringP("body", "b", "", "Request body")
	rootCmd.Flags().StringSliceVarP(&headers, "header", "H", []string{}, `HTTP header (e.g. "Key: Value")`)
	rootCmd.Flags().BoolP("verbose", "v", false, "Log per-request failure detail")
	rootCmd.Flags().Bool("find-breaking-point", false, "Search for the maximum sustainable QPS")
	rootCmd.Flags().Int("max-qps", 1000, "Upper bound of the breaking point search")
	rootCmd.Flags().Float64("max-error-rate", 0.01, "Maximum acceptable error rate (0..1)")
	rootCmd.Flags().Float64("max-latency", 0.5, "Maximum acceptable mean latency in seconds")

	viper.BindPFlags(rootCmd.Flags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".qpoint")
		}
	}
	viper.SetEnvPrefix("qpoint")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func runRoot(cmd *cobra.Command, args []string) error {
	setupLogger(viper.GetBool("verbose"))

	cfg := runner.Config{
		URL:        viper.GetString("url"),
		QPS:        viper.GetInt("qps"),
		Duration:   viper.GetInt("duration"),
		Retries:    viper.GetInt("retries"),
		TimeoutSec: viper.GetInt("timeout"),
		Method:     viper.GetString("method"),
		Body:       viper.GetString("body"),
		Headers:    parseHeaders(headers),
		Verbose:    viper.GetBool("verbose"),
	}

	if cfg.URL == "" {
		return errors.New("--url is required")
	}

	if viper.GetBool("find-breaking-point") {
		scfg := search.Config{
			MaxQPS:       viper.GetInt("max-qps"),
			MaxErrorRate: viper.GetFloat64("max-error-rate"),
			MaxLatency:   viper.GetFloat64("max-latency"),
		}
		return cli.RunSearch(cfg, scfg)
	}

	return cli.RunSingle(cfg)
}

func setupLogger(verbose bool) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC1123,
	}).With().Timestamp().Logger()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}

func parseHeaders(raw []string) map[string]string {
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return out
}

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a local dummy target server",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogger(true)
		port, _ := cmd.Flags().GetInt("port")
		dummy.Start(dummy.ServerConfig{Port: port})
		select {}
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8080, "Port to run the dummy server on")
}
