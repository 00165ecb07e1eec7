package runner

import (
	"time"
)

// Config describes one load run. It is copied into the runner at
// construction; nothing mutates it afterwards.
type Config struct {
	URL      string
	QPS      int // request starts per second
	Duration int // scheduling window, seconds
	Retries  int // attempts per logical request, coerced to >= 1

	Method  string
	Body    string
	Headers map[string]string

	TimeoutSec int // per-attempt HTTP timeout
	Verbose    bool
}

// Outcome is the resolution of one logical request: the classification
// bucket ("200", "503", ... or "error") and the elapsed time from the
// first attempt's start to final resolution, backoffs included.
type Outcome struct {
	Classification string
	Latency        time.Duration
}

// Snapshot is a cheap copy of a run's live counters, polled by the
// CLI progress ticker.
type Snapshot struct {
	Requests uint64
	Errors   uint64
	Inflight int64
}
