package runner

import (
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"qpoint/internal/stats"
)

var (
	// ErrMissingRate is a configuration error: a run was requested
	// without a positive target rate. Surfaced before any scheduling.
	ErrMissingRate = errors.New("target rate must be at least 1 request per second")

	// ErrInvalidDuration is the same for the scheduling window.
	ErrInvalidDuration = errors.New("duration must be at least 1 second")
)

// Runner paces request starts at a fixed rate over a fixed window.
// The loop is open: a slow response never delays the next scheduled
// start, so the launch rate is independent of target latency.
//
// The HTTP client (and its connection pool) is shared across every
// request of every run on this Runner, so pacing measures server-side
// latency rather than connection setup.
type Runner struct {
	Cfg    Config
	Client *http.Client

	requests uint64
	errors   uint64
	inflight int64
}

func NewRunner(cfg Config) *Runner {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	timeout := cfg.TimeoutSec
	if timeout <= 0 {
		timeout = 10
	}

	return &Runner{
		Cfg: cfg,
		Client: &http.Client{
			Timeout:   time.Duration(timeout) * time.Second,
			Transport: t,
		},
	}
}

// GenerateLoad schedules one request start every 1/qps seconds for
// duration seconds, waits for every launched request to resolve, and
// returns the finalized stats of a fresh per-run aggregator.
//
// Scheduling keeps an absolute cursor: tick k fires at start + k/qps.
// After a launch the cursor advances by the tick interval, not by time
// since the launch, so late ticks don't compound into rate drift.
func (r *Runner) GenerateLoad(qps, duration int) (*stats.RunStats, error) {
	if qps < 1 {
		return nil, ErrMissingRate
	}
	if duration < 1 {
		return nil, ErrInvalidDuration
	}

	runID := uuid.New().String()
	log.Info().
		Str("run_id", runID).
		Str("url", r.Cfg.URL).
		Int("qps", qps).
		Int("duration_s", duration).
		Msg("starting load run")

	atomic.StoreUint64(&r.requests, 0)
	atomic.StoreUint64(&r.errors, 0)

	runStats := stats.NewRunStats()
	exec := NewExecutor(r.Client, r.Cfg)

	interval := time.Second / time.Duration(qps)
	start := time.Now()
	end := start.Add(time.Duration(duration) * time.Second)
	next := start

	var wg sync.WaitGroup

	for {
		now := time.Now()
		if !now.Before(end) {
			break
		}
		if now.Before(next) {
			wait := next.Sub(now)
			if untilEnd := end.Sub(now); untilEnd < wait {
				wait = untilEnd
			}
			time.Sleep(wait)
			continue
		}

		wg.Add(1)
		atomic.AddInt64(&r.inflight, 1)
		go func() {
			defer wg.Done()
			defer atomic.AddInt64(&r.inflight, -1)

			out := exec.Execute(r.Cfg.URL)
			runStats.Record(out.Classification, out.Latency)

			atomic.AddUint64(&r.requests, 1)
			if stats.IsErrorClassification(out.Classification) {
				atomic.AddUint64(&r.errors, 1)
			}
		}()

		next = next.Add(interval)
	}

	// Everything launched inside the window runs to completion and
	// must be recorded before the summary is derived.
	wg.Wait()
	sum := runStats.Finalize()

	log.Info().
		Str("run_id", runID).
		Int("requests", sum.TotalRequests).
		Int("errors", sum.TotalErrors).
		Float64("error_rate", sum.ErrorRate).
		Msg("load run complete")

	return runStats, nil
}

// Snapshot reads the live counters of the run in progress.
func (r *Runner) Snapshot() Snapshot {
	return Snapshot{
		Requests: atomic.LoadUint64(&r.requests),
		Errors:   atomic.LoadUint64(&r.errors),
		Inflight: atomic.LoadInt64(&r.inflight),
	}
}
