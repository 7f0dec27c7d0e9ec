package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ferrovia/internal/domain"
	"ferrovia/internal/saved"
	"ferrovia/internal/schedule"
)

type SavedHandler struct {
	saved    *saved.Manager
	resolver *schedule.Resolver
	catalog  schedule.Catalog
	now      func() time.Time
	logger   *slog.Logger
}

func NewSavedHandler(m *saved.Manager, resolver *schedule.Resolver, catalog schedule.Catalog, logger *slog.Logger) *SavedHandler {
	return &SavedHandler{
		saved:    m,
		resolver: resolver,
		catalog:  catalog,
		now:      time.Now,
		logger:   logger.With("handler", "saved"),
	}
}

type SavedResponse struct {
	Timetables []saved.Entry `json:"timetables"`
	Count      int           `json:"count"`
	ServerTime time.Time     `json:"server_time"`
}

type SaveRequest struct {
	StationID int64  `json:"station_id"`
	Direction string `json:"direction"`
}

func (h *SavedHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.saved.List(r.Context(), r.PathValue("owner"))
	if err != nil {
		h.fail(w, "list saved", err)
		return
	}
	respondJSON(w, http.StatusOK, SavedResponse{
		Timetables: entries,
		Count:      len(entries),
		ServerTime: time.Now(),
	})
}

// Create saves the next trains currently shown for a station and direction.
func (h *SavedHandler) Create(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner := r.PathValue("owner")

	var req SaveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StationID <= 0 {
		respondError(w, http.StatusBadRequest, "station_id is required")
		return
	}
	dir, err := domain.ParseDirection(req.Direction)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	station, err := h.catalog.Station(r.Context(), req.StationID)
	if err != nil {
		h.fail(w, "station lookup", err)
		return
	}

	now := h.now()
	upcoming, err := h.resolver.Lookahead(r.Context(), station.ID, h.resolver.Today(now), now, dir)
	if err != nil {
		h.fail(w, "lookahead", err)
		return
	}

	occs := make([]domain.Occurrence, 0, saved.MaxOccurrences)
	for i := 0; i < len(upcoming) && i < saved.MaxOccurrences; i++ {
		occs = append(occs, upcoming[i].Occurrence)
	}

	entry, err := h.saved.Add(r.Context(), owner, station.ID, station.Name, dir, occs)
	if err != nil {
		h.fail(w, "save timetable", err)
		return
	}

	h.logger.Debug("Create response",
		"station_id", station.ID,
		"direction", dir,
		"occurrences", len(occs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusCreated, entry)
}

func (h *SavedHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.saved.Remove(r.Context(), r.PathValue("owner"), r.PathValue("id")); err != nil {
		h.fail(w, "remove saved", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SavedHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.saved.Clear(r.Context(), r.PathValue("owner")); err != nil {
		h.fail(w, "clear saved", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SavedHandler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, saved.ErrInvalidOwner) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondFailure(w, h.logger, op, err)
}
