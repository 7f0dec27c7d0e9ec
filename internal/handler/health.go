package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Readiness reports whether the schedule data is loaded.
type Readiness interface {
	IsReady() bool
}

// ReadyFunc adapts a function to Readiness.
type ReadyFunc func() bool

func (f ReadyFunc) IsReady() bool { return f() }

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	ready   Readiness
	pingers map[string]Pinger
}

// NewHealthHandler checks ready plus every named dependency on /readyz.
func NewHealthHandler(ready Readiness, pingers map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		ready:   ready,
		pingers: pingers,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool              `json:"ready"`
	Checks     map[string]string `json:"checks,omitempty"`
	ServerTime time.Time         `json:"server_time"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.IsReady()

	var checks map[string]string
	if len(h.pingers) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks = make(map[string]string, len(h.pingers))
		for name, p := range h.pingers {
			if err := p.Ping(ctx); err != nil {
				checks[name] = err.Error()
				ready = false
				continue
			}
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:      ready,
		Checks:     checks,
		ServerTime: time.Now(),
	})
}
