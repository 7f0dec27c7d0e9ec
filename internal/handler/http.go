package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ferrovia/internal/domain"
	"ferrovia/internal/schedule"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondFailure maps resolver and store errors to a status code.
func respondFailure(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, schedule.ErrSource):
		logger.Error(op+" failed", "error", err)
		respondError(w, http.StatusBadGateway, "schedule source unavailable")
	default:
		logger.Error(op+" failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseStationID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid station id %q", raw)
	}
	return id, nil
}

// parseDay resolves the date query parameter: empty or "today", "tomorrow",
// or an explicit YYYY-MM-DD in the service time zone.
func parseDay(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	today := domain.ServiceDay(now, loc)
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "today":
		return today, nil
	case "tomorrow":
		return domain.NextDay(today), nil
	}
	day, err := domain.ParseDate(raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD, today or tomorrow", raw)
	}
	return day, nil
}

func parseLimit(raw string, def, maxLimit int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return min(n, maxLimit), nil
}
