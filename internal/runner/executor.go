package runner

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"qpoint/internal/stats"
)

// Doer issues one HTTP request. *http.Client satisfies it; tests swap
// in fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor resolves one logical request: up to Retries attempts with
// exponential backoff between failures, classified by status code, or
// as "error" once the budget is spent. An HTTP error status is a
// successful transport outcome here; only transport failures retry.
type Executor struct {
	Client  Doer
	Retries int
	Method  string
	Body    string
	Headers map[string]string

	// Backoff after failed attempt i is 2^i * backoffUnit. A second in
	// production, shortened in tests.
	backoffUnit time.Duration
}

func NewExecutor(client Doer, cfg Config) *Executor {
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	return &Executor{
		Client:      client,
		Retries:     retries,
		Method:      method,
		Body:        cfg.Body,
		Headers:     cfg.Headers,
		backoffUnit: time.Second,
	}
}

// Execute runs one logical request against target. It never fails:
// transport errors that survive the retry budget come back as the
// "error" classification, and the latency always spans the whole
// attempt sequence.
func (e *Executor) Execute(target string) Outcome {
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < e.Retries; attempt++ {
		status, err := e.attempt(target)
		if err == nil {
			return Outcome{
				Classification: strconv.Itoa(status),
				Latency:        time.Since(start),
			}
		}

		lastErr = err
		if attempt < e.Retries-1 {
			time.Sleep(e.backoffUnit << attempt)
		}
	}

	log.Debug().
		Err(lastErr).
		Str("url", target).
		Int("attempts", e.Retries).
		Msg("request failed")

	return Outcome{
		Classification: stats.ClassificationError,
		Latency:        time.Since(start),
	}
}

func (e *Executor) attempt(target string) (int, error) {
	var body io.Reader
	if e.Body != "" {
		body = strings.NewReader(e.Body)
	}

	req, err := http.NewRequest(e.Method, target, body)
	if err != nil {
		return 0, err
	}
	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return 0, err
	}

	// Body transfer time is part of the measured cost, and a transfer
	// that dies mid-stream is a failed attempt, not a success.
	_, copyErr := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if copyErr != nil {
		return 0, copyErr
	}

	return resp.StatusCode, nil
}
