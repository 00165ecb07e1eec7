// Package dummy hosts a local target server with a few latency and
// error profiles, handy for trying the tool without a real service.
package dummy

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type ServerConfig struct {
	Port int
}

func Start(cfg ServerConfig) {
	mux := http.NewServeMux()

	// Fast endpoint (10-50ms)
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		jitter := time.Duration(rand.Intn(40)+10) * time.Millisecond
		time.Sleep(jitter)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Fast response"))
	})

	// Medium endpoint (100-300ms)
	mux.HandleFunc("/medium", func(w http.ResponseWriter, r *http.Request) {
		jitter := time.Duration(rand.Intn(200)+100) * time.Millisecond
		time.Sleep(jitter)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Medium response"))
	})

	// Slow endpoint (1s-2s), good for latency-ceiling searches
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		jitter := time.Duration(rand.Intn(1000)+1000) * time.Millisecond
		time.Sleep(jitter)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Slow response"))
	})

	// Error endpoint: random 5xx/429 mix for error-rate ceilings
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		rnd := rand.Float32()
		if rnd < 0.2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("500 Internal Server Error"))
		} else if rnd < 0.4 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("429 Too Many Requests"))
		} else {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}
	})

	// Degrading endpoint: latency grows with concurrent load, so a
	// breaking-point search against it actually finds one.
	inflight := make(chan struct{}, 1024)
	mux.HandleFunc("/degrade", func(w http.ResponseWriter, r *http.Request) {
		inflight <- struct{}{}
		queued := len(inflight)
		time.Sleep(time.Duration(queued*5+10) * time.Millisecond)
		<-inflight
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Degrading response"))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info().
		Str("addr", addr).
		Strs("endpoints", []string{"/fast", "/medium", "/slow", "/error", "/degrade"}).
		Msg("dummy server running")

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("dummy server failed")
		}
	}()
}
