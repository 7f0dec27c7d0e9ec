package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ferrovia/internal/domain"
	"ferrovia/internal/schedule"
)

const maxSearchLimit = 200

type ScheduleHandler struct {
	resolver *schedule.Resolver
	catalog  schedule.Catalog
	now      func() time.Time
	logger   *slog.Logger
}

func NewScheduleHandler(resolver *schedule.Resolver, catalog schedule.Catalog, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		resolver: resolver,
		catalog:  catalog,
		now:      time.Now,
		logger:   logger.With("handler", "schedule"),
	}
}

type StationsResponse struct {
	Stations   []domain.Station `json:"stations"`
	Count      int              `json:"count"`
	ServerTime time.Time        `json:"server_time"`
}

func (h *ScheduleHandler) SearchStations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query().Get("q")

	h.logger.Debug("SearchStations request",
		"method", r.Method,
		"path", r.URL.Path,
		"query", query,
		"remote_addr", r.RemoteAddr,
	)

	limit, err := parseLimit(r.URL.Query().Get("limit"), domain.DefaultSearchLimit, maxSearchLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	stations, err := h.catalog.SearchStations(r.Context(), query, limit)
	if err != nil {
		respondFailure(w, h.logger, "station search", err)
		return
	}

	h.logger.Debug("SearchStations response",
		"count", len(stations),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, StationsResponse{
		Stations:   stations,
		Count:      len(stations),
		ServerTime: time.Now(),
	})
}

func (h *ScheduleHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	id, err := parseStationID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	station, err := h.catalog.Station(r.Context(), id)
	if err != nil {
		respondFailure(w, h.logger, "station lookup", err)
		return
	}
	respondJSON(w, http.StatusOK, station)
}

type OccurrencesResponse struct {
	StationID   int64            `json:"station_id"`
	Date        string           `json:"date"`
	Direction   domain.Direction `json:"direction"`
	Occurrences interface{}      `json:"occurrences"`
	Count       int              `json:"count"`
	ServerTime  time.Time        `json:"server_time"`
}

func (h *ScheduleHandler) Departures(w http.ResponseWriter, r *http.Request) {
	h.listOccurrences(w, r, domain.Departures)
}

func (h *ScheduleHandler) Arrivals(w http.ResponseWriter, r *http.Request) {
	h.listOccurrences(w, r, domain.Arrivals)
}

// listOccurrences serves one direction for one day, or with lookahead=true
// the two-day view starting at that day.
func (h *ScheduleHandler) listOccurrences(w http.ResponseWriter, r *http.Request, dir domain.Direction) {
	start := time.Now()
	now := h.now()

	h.logger.Debug("listOccurrences request",
		"method", r.Method,
		"path", r.URL.Path,
		"direction", dir,
		"remote_addr", r.RemoteAddr,
	)

	station, ok := h.station(w, r)
	if !ok {
		return
	}

	day, err := parseDay(r.URL.Query().Get("date"), now, h.resolver.Location())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := OccurrencesResponse{
		StationID: station.ID,
		Date:      domain.DateKey(day),
		Direction: dir,
	}

	if lookahead, _ := strconv.ParseBool(r.URL.Query().Get("lookahead")); lookahead {
		occs, err := h.resolver.Lookahead(r.Context(), station.ID, day, now, dir)
		if err != nil {
			respondFailure(w, h.logger, "lookahead", err)
			return
		}
		schedule.ApplyPlatformVisibility(occs, station.Class, now)
		resp.Occurrences = occs
		resp.Count = len(occs)
	} else {
		occs, err := h.resolver.Resolve(r.Context(), station.ID, day, dir)
		if err != nil {
			respondFailure(w, h.logger, "resolve", err)
			return
		}
		resp.Occurrences = occs
		resp.Count = len(occs)
	}

	h.logger.Debug("listOccurrences response",
		"station_id", station.ID,
		"date", resp.Date,
		"count", resp.Count,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	resp.ServerTime = time.Now()
	respondJSON(w, http.StatusOK, resp)
}

func (h *ScheduleHandler) Board(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	now := h.now()

	station, ok := h.station(w, r)
	if !ok {
		return
	}

	day, err := parseDay(r.URL.Query().Get("date"), now, h.resolver.Location())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	board, err := h.resolver.Board(r.Context(), station.ID, day, now)
	if err != nil {
		respondFailure(w, h.logger, "board", err)
		return
	}

	h.logger.Debug("Board response",
		"station_id", station.ID,
		"departures", len(board.Departures),
		"arrivals", len(board.Arrivals),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, board)
}

func (h *ScheduleHandler) TrainDetails(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	number := strings.TrimSpace(r.PathValue("number"))
	if number == "" {
		respondError(w, http.StatusBadRequest, "missing train number")
		return
	}

	day, err := parseDay(r.URL.Query().Get("date"), h.now(), h.resolver.Location())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	details, err := h.resolver.TrainDetails(r.Context(), number, day)
	if err != nil {
		respondFailure(w, h.logger, "train details", err)
		return
	}

	h.logger.Debug("TrainDetails response",
		"train_number", number,
		"run_id", details.Run.ID,
		"stops", len(details.Stops),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, details)
}

// station resolves the {id} path value, writing the error response itself
// when it fails.
func (h *ScheduleHandler) station(w http.ResponseWriter, r *http.Request) (*domain.Station, bool) {
	id, err := parseStationID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	station, err := h.catalog.Station(r.Context(), id)
	if err != nil {
		respondFailure(w, h.logger, "station lookup", err)
		return nil, false
	}
	return station, true
}
