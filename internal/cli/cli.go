// Package cli drives a headless run or search and renders the textual
// report.
package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"qpoint/internal/runner"
	"qpoint/internal/search"
	"qpoint/internal/stats"
)

type runResult struct {
	stats *stats.RunStats
	err   error
}

// RunSingle executes one load run at the configured rate and prints
// the report.
func RunSingle(cfg runner.Config) error {
	printHeader(cfg, cfg.QPS)

	r := runner.NewRunner(cfg)

	done := make(chan runResult, 1)
	start := time.Now()
	go func() {
		rs, err := r.GenerateLoad(cfg.QPS, cfg.Duration)
		done <- runResult{rs, err}
	}()

	return watch(r, done, start, cfg.Duration)
}

// RunSearch bisects [1, max-qps] for the breaking point, printing one
// progress line per tested rate, the verdict, and a final report from
// the confirmation run.
func RunSearch(cfg runner.Config, scfg search.Config) error {
	printHeader(cfg, scfg.MaxQPS)
	fmt.Println("Beginning search for breaking point.")

	r := runner.NewRunner(cfg)
	f := search.NewFinder(scfg, func(qps int) (*stats.RunStats, error) {
		return r.GenerateLoad(qps, cfg.Duration)
	})
	f.OnProbe = func(qps int, sum stats.Summary) {
		fmt.Printf("Tested QPS: %d, Error Rate: %.2f%%, Mean Latency: %.3fs\n",
			qps, sum.ErrorRate*100, sum.MeanLatency)
	}

	res, err := f.Find()
	if err != nil {
		return err
	}

	switch res.Verdict {
	case search.VerdictNoneAcceptable:
		fmt.Println("\nNo acceptable performance level found within the tested range.")
	case search.VerdictCeiling:
		fmt.Println("\nBreaking point not found within range. The server had adequate performance at all levels of queries per second tested.")
	case search.VerdictFound:
		fmt.Printf("\nBreaking point found: %d QPS\n", res.BestQPS)
	}

	if res.FinalStats != nil {
		fmt.Println("\nFinal test results:")
		fmt.Print(Report(cfg.URL, res.FinalStats))
	}
	return nil
}

// watch renders the progress line until the run resolves, then prints
// the report.
func watch(r *runner.Runner, done chan runResult, start time.Time, durationSec int) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	total := time.Duration(durationSec) * time.Second

	for {
		select {
		case res := <-done:
			fmt.Println()
			if res.err != nil {
				return res.err
			}
			fmt.Println()
			fmt.Print(Report(r.Cfg.URL, res.stats))
			return nil
		case <-ticker.C:
			printProgress(r.Snapshot(), time.Since(start), total)
		}
	}
}

func printProgress(s runner.Snapshot, elapsed, total time.Duration) {
	if elapsed >= total {
		if s.Inflight > 0 {
			fmt.Printf("\r%s 100%% | draining %d in-flight requests...          ",
				progressBar(1.0, 20), s.Inflight)
		}
		return
	}

	pct := elapsed.Seconds() / total.Seconds()
	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(s.Requests) / elapsed.Seconds()
	}

	fmt.Printf("\r%s %3.0f%% | %s/%s | Inf: %3d | RPS: %.1f | Done: %d | Err: %d",
		progressBar(pct, 20), pct*100,
		elapsed.Round(time.Second), total,
		s.Inflight, rps, s.Requests, s.Errors,
	)
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func printHeader(cfg runner.Config, qps int) {
	fmt.Printf("\nTarget URL : %s\n", cfg.URL)
	fmt.Printf("Method     : %s\n", cfg.Method)
	fmt.Printf("QPS        : %d\n", qps)
	fmt.Printf("Duration   : %ds\n", cfg.Duration)
	fmt.Printf("Retries    : %d\n", cfg.Retries)
	fmt.Printf("Timeout    : %ds\n", cfg.TimeoutSec)
	fmt.Println(strings.Repeat("=", 70))
}

// Report renders the run summary in the tool's report format. Latency
// figures are milliseconds with 3 decimals; an empty run shows the
// sentinel value rather than failing.
func Report(url string, rs *stats.RunStats) string {
	sum := rs.Summary()

	var b strings.Builder
	fmt.Fprintf(&b, "Results for %s\n", url)
	fmt.Fprintf(&b, "Total requests: %d\n", sum.TotalRequests)
	fmt.Fprintf(&b, "Total errors: %d\n", sum.TotalErrors)
	fmt.Fprintf(&b, "Error rate: %.3f%%\n", sum.ErrorRate*100)
	fmt.Fprintf(&b, "Mean latency: %.3f milliseconds\n", sum.MeanLatency*1000)
	fmt.Fprintf(&b, "Median latency: %.3f milliseconds\n", sum.MedianLatency*1000)
	fmt.Fprintf(&b, "Min latency: %.3f milliseconds\n", sum.MinLatency*1000)
	fmt.Fprintf(&b, "Max latency: %.3f milliseconds\n", sum.MaxLatency*1000)

	b.WriteString("\nStatus code distribution:\n")
	classifications := make([]string, 0, len(sum.StatusDistribution))
	for c := range sum.StatusDistribution {
		classifications = append(classifications, c)
	}
	sort.Strings(classifications)
	for _, c := range classifications {
		fmt.Fprintf(&b, "  %s: %d\n", c, sum.StatusDistribution[c])
	}

	if rs.ServiceTime.TotalCount() > 0 {
		b.WriteString("\nResponse time percentiles (ms):\n")
		fmt.Fprintf(&b, "  P50: %.2f\n", rs.P50Ms())
		fmt.Fprintf(&b, "  P90: %.2f\n", rs.P90Ms())
		fmt.Fprintf(&b, "  P99: %.2f\n", rs.P99Ms())
		fmt.Fprintf(&b, "  Max: %d\n", rs.ServiceTime.Max()/1000)
	}

	return b.String()
}
