package runner

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qpoint/internal/stats"
)

// fakeDoer fails its first `failures` calls, then answers with
// `status`.
type fakeDoer struct {
	mu       sync.Mutex
	failures int
	status   int

	calls      int
	lastMethod string
	lastHeader http.Header
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.lastMethod = req.Method
	f.lastHeader = req.Header

	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader("payload")),
	}, nil
}

func newTestExecutor(doer Doer, cfg Config) *Executor {
	e := NewExecutor(doer, cfg)
	e.backoffUnit = time.Millisecond
	return e
}

func TestExecuteClassifiesStatusCode(t *testing.T) {
	vars := []struct {
		status         int
		classification string
	}{
		{200, "200"},
		{404, "404"},
		{503, "503"},
	}

	for _, v := range vars {
		t.Run(v.classification, func(t *testing.T) {
			doer := &fakeDoer{status: v.status}
			e := newTestExecutor(doer, Config{Retries: 1})

			out := e.Execute("http://target/")

			// 4xx/5xx are transport successes; the error judgement
			// belongs to the stats layer.
			assert.Equal(t, v.classification, out.Classification)
			assert.Equal(t, 1, doer.calls)
			assert.GreaterOrEqual(t, out.Latency, time.Duration(0))
		})
	}
}

func TestExecuteExhaustsRetryBudget(t *testing.T) {
	doer := &fakeDoer{failures: 100, status: 200}
	e := newTestExecutor(doer, Config{Retries: 3})

	start := time.Now()
	out := e.Execute("http://target/")
	elapsed := time.Since(start)

	assert.Equal(t, stats.ClassificationError, out.Classification)
	assert.Equal(t, 3, doer.calls)
	// Backoffs of 1x and 2x the unit between the three attempts.
	assert.GreaterOrEqual(t, elapsed, 3*time.Millisecond)
	assert.GreaterOrEqual(t, out.Latency, 3*time.Millisecond)
}

func TestExecuteRecoversWithinBudget(t *testing.T) {
	doer := &fakeDoer{failures: 2, status: 200}
	e := newTestExecutor(doer, Config{Retries: 4})

	out := e.Execute("http://target/")

	assert.Equal(t, "200", out.Classification)
	assert.Equal(t, 3, doer.calls)
	// Latency spans the whole retry sequence, backoffs included.
	assert.GreaterOrEqual(t, out.Latency, 3*time.Millisecond)
}

func TestExecuteSingleAttemptHasNoBackoff(t *testing.T) {
	doer := &fakeDoer{failures: 1, status: 200}
	e := NewExecutor(doer, Config{Retries: 1})

	start := time.Now()
	out := e.Execute("http://target/")
	elapsed := time.Since(start)

	assert.Equal(t, stats.ClassificationError, out.Classification)
	assert.Equal(t, 1, doer.calls)
	// No retry, so no 1s backoff even with the production unit.
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestExecuteRetriesTruncatedBody(t *testing.T) {
	// The server promises 1000 bytes, sends a few, and kills the
	// connection. The status line arrived fine, but the attempt must
	// still count as a transport failure and feed the retry budget.
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()

		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	e := newTestExecutor(srv.Client(), Config{Retries: 3})

	out := e.Execute(srv.URL)

	assert.Equal(t, stats.ClassificationError, out.Classification)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestNewExecutorDefaults(t *testing.T) {
	doer := &fakeDoer{status: 200}
	e := NewExecutor(doer, Config{})

	require.Equal(t, 1, e.Retries)

	e.Execute("http://target/")
	assert.Equal(t, http.MethodGet, doer.lastMethod)
}

func TestExecuteSetsHeaders(t *testing.T) {
	doer := &fakeDoer{status: 200}
	e := NewExecutor(doer, Config{
		Retries: 1,
		Method:  http.MethodPost,
		Body:    `{"q":1}`,
		Headers: map[string]string{"Content-Type": "application/json"},
	})

	e.Execute("http://target/")

	assert.Equal(t, http.MethodPost, doer.lastMethod)
	assert.Equal(t, "application/json", doer.lastHeader.Get("Content-Type"))
}
