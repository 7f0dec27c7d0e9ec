package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"ferrovia/internal/domain"
	"ferrovia/internal/middleware"
	"ferrovia/internal/refresh"
)

// Stats tracks server-wide counters. One instance is created in main and
// shared by the handlers that update it.
type Stats struct {
	startTime     time.Time
	requestCount  atomic.Int64
	wsConnections atomic.Int64
	wsMessagesIn  atomic.Int64
	wsMessagesOut atomic.Int64
}

func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) IncRequests()      { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections() { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections() { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()  { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut() { s.wsMessagesOut.Add(1) }

// Middleware counts every request.
func (s *Stats) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.IncRequests()
		next.ServeHTTP(w, r)
	})
}

type DatasetStatsProvider interface {
	DatasetStats(ctx context.Context) (domain.DatasetStats, error)
}

type RefreshStatsProvider interface {
	Stats() refresh.Stats
}

type RateLimitStatsProvider interface {
	Stats() middleware.RateLimitStats
}

type ClientCounter interface {
	ClientCount() int
	SubscribedStations() []int64
}

type StatsHandler struct {
	stats     *Stats
	dataset   DatasetStatsProvider
	refresher RefreshStatsProvider
	limiter   RateLimitStatsProvider
	clients   ClientCounter
}

// NewStatsHandler builds the /v1/stats handler. Providers may be nil.
func NewStatsHandler(stats *Stats, dataset DatasetStatsProvider, refresher RefreshStatsProvider, limiter RateLimitStatsProvider, clients ClientCounter) *StatsHandler {
	return &StatsHandler{
		stats:     stats,
		dataset:   dataset,
		refresher: refresher,
		limiter:   limiter,
		clients:   clients,
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse        `json:"server"`
	Dataset   *domain.DatasetStats       `json:"dataset,omitempty"`
	WebSocket WebSocketStatsResponse     `json:"websocket"`
	Refresh   *refresh.Stats             `json:"refresh,omitempty"`
	RateLimit *middleware.RateLimitStats `json:"rate_limit,omitempty"`
	Go        GoStatsResponse            `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	Version       string    `json:"version"`
}

type WebSocketStatsResponse struct {
	Connections        int64 `json:"connections"`
	Clients            int   `json:"clients"`
	SubscribedStations int   `json:"subscribed_stations"`
	MessagesIn         int64 `json:"messages_in"`
	MessagesOut        int64 `json:"messages_out"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.stats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     h.stats.startTime,
			RequestCount:  h.stats.requestCount.Load(),
			Version:       "1.0.0",
		},
		WebSocket: WebSocketStatsResponse{
			Connections: h.stats.wsConnections.Load(),
			MessagesIn:  h.stats.wsMessagesIn.Load(),
			MessagesOut: h.stats.wsMessagesOut.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	if h.dataset != nil {
		if ds, err := h.dataset.DatasetStats(r.Context()); err == nil {
			response.Dataset = &ds
		}
	}
	if h.clients != nil {
		response.WebSocket.Clients = h.clients.ClientCount()
		response.WebSocket.SubscribedStations = len(h.clients.SubscribedStations())
	}
	if h.refresher != nil {
		rs := h.refresher.Stats()
		response.Refresh = &rs
	}
	if h.limiter != nil {
		ls := h.limiter.Stats()
		response.RateLimit = &ls
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
