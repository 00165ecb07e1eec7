// Package search finds the breaking point of a target: the highest
// request rate whose load run stays within the configured error-rate
// and mean-latency ceilings.
package search

import (
	"errors"

	"github.com/rs/zerolog/log"

	"qpoint/internal/stats"
)

// ErrInvalidRange is a configuration error: the search needs an upper
// bound of at least 1 QPS.
var ErrInvalidRange = errors.New("max qps must be at least 1")

// Verdict classifies the result of a finished search.
type Verdict int

const (
	// VerdictNoneAcceptable: no rate in range satisfied the thresholds.
	VerdictNoneAcceptable Verdict = iota
	// VerdictCeiling: every tested rate passed, up to the range maximum.
	VerdictCeiling
	// VerdictFound: a breaking point strictly inside the range.
	VerdictFound
)

// RunFunc executes one full timed load run at the given rate and
// returns its finalized stats. A run that fails every request is still
// a valid result (error rate 1.0); only configuration errors abort.
type RunFunc func(qps int) (*stats.RunStats, error)

// Config bounds one search.
type Config struct {
	MaxQPS       int
	MaxErrorRate float64 // 0..1
	MaxLatency   float64 // mean, seconds
}

// Result of a finished search. FinalStats comes from the confirmation
// run at BestQPS and is nil when BestQPS is 0.
type Result struct {
	BestQPS    int
	Verdict    Verdict
	Probes     int
	FinalStats *stats.RunStats
}

// Finder performs a binary search over [1, MaxQPS]. Each Find call is
// an independent search; no state survives between calls.
type Finder struct {
	cfg Config
	run RunFunc

	// OnProbe, when set, observes each tested rate and its summary.
	// The CLI hangs its progress lines here.
	OnProbe func(qps int, sum stats.Summary)
}

func NewFinder(cfg Config, run RunFunc) *Finder {
	return &Finder{cfg: cfg, run: run}
}

// Find bisects the rate range: a run within both ceilings moves the
// search up, anything else moves it down. O(log2 MaxQPS) probe runs,
// then one confirmation run at the best rate so the reported stats
// describe that exact rate rather than the last (possibly rejected)
// probe.
func (f *Finder) Find() (Result, error) {
	if f.cfg.MaxQPS < 1 {
		return Result{}, ErrInvalidRange
	}

	low, high := 1, f.cfg.MaxQPS
	best := 0
	probes := 0

	for low <= high {
		mid := (low + high) / 2

		rs, err := f.run(mid)
		if err != nil {
			return Result{}, err
		}
		probes++
		sum := rs.Summary()

		if f.OnProbe != nil {
			f.OnProbe(mid, sum)
		}
		log.Debug().
			Int("qps", mid).
			Float64("error_rate", sum.ErrorRate).
			Float64("mean_latency_s", sum.MeanLatency).
			Msg("probe complete")

		if f.accept(sum) {
			best = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	res := Result{BestQPS: best, Probes: probes}
	switch {
	case best == 0:
		res.Verdict = VerdictNoneAcceptable
	case best == f.cfg.MaxQPS:
		res.Verdict = VerdictCeiling
	default:
		res.Verdict = VerdictFound
	}

	if best > 0 {
		rs, err := f.run(best)
		if err != nil {
			return Result{}, err
		}
		res.FinalStats = rs
	}

	return res, nil
}

func (f *Finder) accept(sum stats.Summary) bool {
	return sum.ErrorRate <= f.cfg.MaxErrorRate && sum.MeanLatency <= f.cfg.MaxLatency
}
