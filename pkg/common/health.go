package common

import (
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthServer exposes liveness and readiness probes for the agent. Readiness
// flips once startup wiring (config, telemetry, backend reachability) is done.
type HealthServer struct {
	server *http.Server
}

// NewHealthServer creates and starts an HTTP server for health checks.
// The ready flag is owned by the caller and flipped when the process is
// prepared to serve its workflow.
func NewHealthServer(ready *atomic.Bool) *HealthServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/liveness", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, "alive")
	})

	mux.HandleFunc("/v1/readiness", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			writeHealth(w, http.StatusServiceUnavailable, "starting")
			return
		}
		writeHealth(w, http.StatusOK, "ready")
	})

	hs := &HealthServer{
		server: &http.Server{
			Addr:         ":8080",
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("health server error: %v", err)
		}
	}()

	return hs
}

// Server returns the underlying http server so callers can shut it down.
func (h *HealthServer) Server() *http.Server { return h.server }

func writeHealth(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
