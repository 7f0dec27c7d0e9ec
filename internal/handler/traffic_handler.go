package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ferrovia/internal/domain"
)

// TrafficSource serves published traffic notices, most recent first.
type TrafficSource interface {
	AllTrafficInfo(ctx context.Context) ([]domain.TrafficInfo, error)
	TrafficInfoByRegion(ctx context.Context, region string) ([]domain.TrafficInfo, error)
	TrafficInfo(ctx context.Context, id int64) (*domain.TrafficInfo, error)
}

type TrafficHandler struct {
	source TrafficSource
	logger *slog.Logger
}

func NewTrafficHandler(source TrafficSource, logger *slog.Logger) *TrafficHandler {
	return &TrafficHandler{
		source: source,
		logger: logger.With("handler", "traffic"),
	}
}

type TrafficResponse struct {
	Items      []domain.TrafficInfo `json:"items"`
	Count      int                  `json:"count"`
	Region     string               `json:"region,omitempty"`
	ServerTime time.Time            `json:"server_time"`
}

// List returns every notice, or only those of ?region= when given.
func (h *TrafficHandler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	region := strings.TrimSpace(r.URL.Query().Get("region"))

	h.logger.Debug("ListTraffic request",
		"method", r.Method,
		"path", r.URL.Path,
		"region", region,
		"remote_addr", r.RemoteAddr,
	)

	var (
		items []domain.TrafficInfo
		err   error
	)
	if region != "" {
		items, err = h.source.TrafficInfoByRegion(r.Context(), region)
	} else {
		items, err = h.source.AllTrafficInfo(r.Context())
	}
	if err != nil {
		respondFailure(w, h.logger, "traffic list", err)
		return
	}
	if items == nil {
		items = []domain.TrafficInfo{}
	}

	h.logger.Debug("ListTraffic response",
		"count", len(items),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, TrafficResponse{
		Items:      items,
		Count:      len(items),
		Region:     region,
		ServerTime: time.Now(),
	})
}

func (h *TrafficHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid traffic info id %q", raw))
		return
	}

	info, err := h.source.TrafficInfo(r.Context(), id)
	if err != nil {
		respondFailure(w, h.logger, "traffic info", err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}
