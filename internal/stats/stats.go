package stats

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ClassificationError is the bucket for requests that exhausted their
// retry budget without ever getting a response.
const ClassificationError = "error"

// LatencySentinel is reported for mean/median/min/max when a run
// recorded no samples. Real latencies are never negative.
const LatencySentinel = -1.0

// RunStats collects latency samples for a single load run, bucketed by
// classification (stringified status code or "error"). One instance is
// created per run and discarded with it; nothing is shared across runs.
type RunStats struct {
	mu      sync.Mutex
	samples map[string][]float64 // seconds
	summary Summary

	// Service time percentiles for the report.
	ServiceTime *SafeHistogram
}

// Summary holds the derived figures. Valid only after Finalize.
type Summary struct {
	TotalRequests      int
	TotalErrors        int
	ErrorRate          float64
	StatusDistribution map[string]int

	// Seconds. LatencySentinel when the run recorded no samples.
	MeanLatency   float64
	MedianLatency float64
	MinLatency    float64
	MaxLatency    float64
}

func NewRunStats() *RunStats {
	return &RunStats{
		samples:     make(map[string][]float64),
		ServiceTime: NewSafeHistogram(),
	}
}

// Record appends one latency sample under the given classification.
// Safe for concurrent completions.
func (s *RunStats) Record(classification string, latency time.Duration) {
	secs := latency.Seconds()

	s.mu.Lock()
	s.samples[classification] = append(s.samples[classification], secs)
	s.mu.Unlock()

	if err := s.ServiceTime.RecordValue(latency.Microseconds()); err != nil {
		// The raw sample is kept either way; only the percentile
		// block misses it.
		log.Debug().Err(err).Float64("latency_s", secs).Msg("latency outside histogram range")
	}
}

// Finalize recomputes the summary from the recorded samples. It is a
// pure function of the samples: a second call with no intervening
// Record yields an identical summary.
func (s *RunStats) Finalize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]float64, 0, 64)
	errs := 0
	dist := make(map[string]int, len(s.samples))

	for classification, latencies := range s.samples {
		all = append(all, latencies...)
		dist[classification] = len(latencies)
		if IsErrorClassification(classification) {
			errs += len(latencies)
		}
	}

	sum := Summary{
		TotalRequests:      len(all),
		TotalErrors:        errs,
		StatusDistribution: dist,
		MeanLatency:        LatencySentinel,
		MedianLatency:      LatencySentinel,
		MinLatency:         LatencySentinel,
		MaxLatency:         LatencySentinel,
	}

	if len(all) > 0 {
		sum.ErrorRate = float64(errs) / float64(len(all))

		sort.Float64s(all)
		sum.MinLatency = all[0]
		sum.MaxLatency = all[len(all)-1]
		sum.MedianLatency = median(all)

		total := 0.0
		for _, v := range all {
			total += v
		}
		sum.MeanLatency = total / float64(len(all))
	}

	s.summary = sum
	return sum
}

// Summary returns the figures computed by the last Finalize.
func (s *RunStats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// IsErrorClassification reports whether a classification counts toward
// the error rate: 4xx, 5xx, or the transport failure sentinel.
func IsErrorClassification(c string) bool {
	return c == ClassificationError || strings.HasPrefix(c, "4") || strings.HasPrefix(c, "5")
}

// median of a sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// P50Ms, P90Ms and P99Ms expose service time percentiles for the report.
func (s *RunStats) P50Ms() float64 {
	return float64(s.ServiceTime.ValueAtQuantile(50)) / 1000.0
}

func (s *RunStats) P90Ms() float64 {
	return float64(s.ServiceTime.ValueAtQuantile(90)) / 1000.0
}

func (s *RunStats) P99Ms() float64 {
	return float64(s.ServiceTime.ValueAtQuantile(99)) / 1000.0
}
