package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ferrovia/internal/domain"
	"ferrovia/internal/saved"
	"ferrovia/internal/schedule"
	"ferrovia/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func clockPtr(h, m int) *domain.Clock {
	return domain.ClockPtr(domain.NewClock(h, m))
}

// testDataset: 2025-11-03 is a Monday.
func testDataset() *domain.Dataset {
	return &domain.Dataset{
		Stations: []domain.Station{
			{ID: 1, Name: "Auxonne", Class: domain.StationClassRegional},
			{ID: 2, Name: "Dijon-Ville", Class: domain.StationClassCity},
			{ID: 3, Name: "Dole-Ville"},
			{ID: 4, Name: "Genlis"},
		},
		Runs: []domain.Run{
			{
				ID: 10, TrainNumber: "894300", TrainType: "TER",
				DepartureStationID: 2, ArrivalStationID: 3,
				DepartureTime: domain.NewClock(8, 10), ArrivalTime: domain.NewClock(8, 55),
				DaysMask: 31,
				Stops: []domain.Stop{
					{Order: 1, StationID: 4, ArrivalTime: clockPtr(8, 22), DepartureTime: clockPtr(8, 23)},
					{Order: 2, StationID: 1, ArrivalTime: clockPtr(8, 33), DepartureTime: clockPtr(8, 35)},
				},
			},
			{
				ID: 11, TrainNumber: "894301",
				DepartureStationID: 1, ArrivalStationID: 2,
				DepartureTime: domain.NewClock(7, 19), ArrivalTime: domain.NewClock(7, 45),
				DaysMask: 96,
			},
		},
		Inclusions: []domain.DateOverride{{RunID: 11, Date: "2025-11-03"}},
		Variants: []domain.Variant{
			{RunID: 10, Date: "2025-11-04", Type: domain.VariantDelayed, DelayMinutes: 12},
			{RunID: 10, Date: "2025-11-05", Type: domain.VariantSuppressed},
		},
		Platforms: []domain.PlatformAssignment{{RunID: 10, StationID: 2, Platform: "A"}},
		Traffic: []domain.TrafficInfo{
			{ID: 5, Title: "Travaux en gare de Dijon", Content: "Voies A et B fermées la nuit.",
				Region: "Bourgogne-Franche-Comté", UpdatedAt: time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC)},
			{ID: 6, Title: "Grève régionale", Content: "Un train sur deux.",
				Region: "Bourgogne-Franche-Comté", UpdatedAt: time.Date(2025, 11, 3, 5, 0, 0, 0, time.UTC)},
			{ID: 7, Title: "Ligne Strasbourg - Bâle", Content: "Retards possibles.",
				Region: "Grand Est", UpdatedAt: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)},
		},
	}
}

// failingStore answers station lookups but fails every schedule query.
type failingStore struct {
	*store.MemoryStore
}

func (failingStore) RunsByDeparture(context.Context, int64) ([]domain.Run, error) {
	return nil, errors.New("database is locked")
}

func (failingStore) RunsByArrival(context.Context, int64) ([]domain.Run, error) {
	return nil, errors.New("database is locked")
}

type testServer struct {
	mux      *http.ServeMux
	mem      *store.MemoryStore
	resolver *schedule.Resolver
	schedule *ScheduleHandler
	saved    *SavedHandler
	now      time.Time
}

func newTestServer(t *testing.T, wrap func(*store.MemoryStore) schedule.Store) *testServer {
	t.Helper()
	loc := paris(t)

	mem := store.NewMemoryStore()
	mem.Load(testDataset())

	var st schedule.Store = mem
	if wrap != nil {
		st = wrap(mem)
	}

	resolver := schedule.NewResolver(st, loc, schedule.DefaultLookaheadOptions(), testLogger())
	now := time.Date(2025, 11, 3, 6, 0, 0, 0, loc)

	sh := NewScheduleHandler(resolver, st, testLogger())
	sh.now = func() time.Time { return now }
	svh := NewSavedHandler(saved.NewManager(saved.NewMemoryKV(), testLogger()), resolver, st, testLogger())
	svh.now = func() time.Time { return now }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/stations", sh.SearchStations)
	mux.HandleFunc("GET /v1/stations/{id}", sh.GetStation)
	mux.HandleFunc("GET /v1/stations/{id}/departures", sh.Departures)
	mux.HandleFunc("GET /v1/stations/{id}/arrivals", sh.Arrivals)
	mux.HandleFunc("GET /v1/stations/{id}/board", sh.Board)
	mux.HandleFunc("GET /v1/trains/{number}", sh.TrainDetails)
	mux.HandleFunc("GET /v1/saved/{owner}", svh.List)
	mux.HandleFunc("POST /v1/saved/{owner}", svh.Create)
	mux.HandleFunc("DELETE /v1/saved/{owner}", svh.Clear)
	mux.HandleFunc("DELETE /v1/saved/{owner}/{id}", svh.Delete)

	th := NewTrafficHandler(mem, testLogger())
	mux.HandleFunc("GET /v1/traffic", th.List)
	mux.HandleFunc("GET /v1/traffic/{id}", th.Get)

	return &testServer{mux: mux, mem: mem, resolver: resolver, schedule: sh, saved: svh, now: now}
}

func (s *testServer) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}
