package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ferrovia/internal/domain"
	"ferrovia/internal/saved"
)

func TestSavedTimetables(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/saved/alice", strings.NewReader(`{"station_id": 2, "direction": "departures"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entry saved.Entry
	decode(t, rec.Body.Bytes(), &entry)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "Dijon-Ville", entry.StationName)
	assert.Equal(t, domain.Departures, entry.Direction)
	require.Len(t, entry.Occurrences, 1)
	assert.Equal(t, int64(10), entry.Occurrences[0].RunID)

	rec = s.do(t, http.MethodPost, "/v1/saved/alice", strings.NewReader(`{"station_id": 2, "direction": "arr"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/saved/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list SavedResponse
	decode(t, rec.Body.Bytes(), &list)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, domain.Arrivals, list.Timetables[1].Direction)

	rec = s.do(t, http.MethodDelete, "/v1/saved/alice/"+entry.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/v1/saved/alice/"+entry.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/v1/saved/alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/saved/alice", nil)
	decode(t, rec.Body.Bytes(), &list)
	assert.Equal(t, 0, list.Count)
}

func TestSavedTimetablesValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"malformed body", "/v1/saved/alice", `{`, http.StatusBadRequest},
		{"missing station", "/v1/saved/alice", `{"direction": "departures"}`, http.StatusBadRequest},
		{"bad direction", "/v1/saved/alice", `{"station_id": 2, "direction": "sideways"}`, http.StatusBadRequest},
		{"unknown station", "/v1/saved/alice", `{"station_id": 99, "direction": "departures"}`, http.StatusNotFound},
		{"bad owner", "/v1/saved/a*b", `{"station_id": 2, "direction": "departures"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.target, strings.NewReader(tt.body))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
