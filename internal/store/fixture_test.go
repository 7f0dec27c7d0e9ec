package store

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ferrovia/internal/domain"
	"ferrovia/internal/schedule"
)

var (
	_ schedule.Store = (*MemoryStore)(nil)
	_ schedule.Store = (*SQLStore)(nil)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func clockPtr(h, m int) *domain.Clock {
	c := domain.NewClock(h, m)
	return &c
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	d, err := domain.ParseDate(s, loc)
	require.NoError(t, err)
	return d
}

// fixtureDataset is a small Dijon - Dole line.
func fixtureDataset() *domain.Dataset {
	return &domain.Dataset{
		Stations: []domain.Station{
			{ID: 1, Name: "Auxonne", Slug: "auxonne", Class: domain.StationClassRegional},
			{ID: 2, Name: "Dijon-Ville", Slug: "dijon-ville", Region: "Bourgogne-Franche-Comté", Class: domain.StationClassCity},
			{ID: 3, Name: "Dole-Ville"},
			{ID: 4, Name: "Genlis"},
		},
		Runs: []domain.Run{
			{
				ID: 10, TrainNumber: "894300", TrainType: "TER", RollingStock: "X73500",
				DepartureStationID: 2, ArrivalStationID: 3,
				DepartureTime: domain.NewClock(8, 10), ArrivalTime: domain.NewClock(8, 55),
				DaysMask: 31,
				Stops: []domain.Stop{
					{Order: 2, StationID: 1, ArrivalTime: clockPtr(8, 33), DepartureTime: clockPtr(8, 35)},
					{Order: 1, StationID: 4, ArrivalTime: clockPtr(8, 22), DepartureTime: clockPtr(8, 23)},
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
		Exclusions: []domain.DateOverride{{RunID: 10, Date: "2025-11-11"}},
		Variants: []domain.Variant{
			{RunID: 10, Date: "2025-11-04", Type: "retard", DelayMinutes: 12, Cause: "travaux"},
			{RunID: 10, Date: "2025-11-05", Type: "suppression"},
		},
		Platforms: []domain.PlatformAssignment{
			{RunID: 10, StationID: 2, Platform: "A"},
			{RunID: 10, StationID: 1, Platform: "1"},
		},
		Traffic: []domain.TrafficInfo{
			{
				ID: 1, Title: "Travaux Dijon - Dole", Content: "Substitution par car le dimanche.",
				Region: "Bourgogne-Franche-Comté", UpdatedAt: time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC),
			},
			{
				ID: 2, Title: "Mouvement social", Content: "Trafic perturbé mardi.",
				Region: "Bourgogne-Franche-Comté", UpdatedAt: time.Date(2025, 11, 2, 18, 30, 0, 0, time.UTC),
			},
			{
				ID: 3, Title: "Ligne Nancy - Metz", Content: "Retards possibles.",
				Region: "Grand Est", UpdatedAt: time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC),
			},
		},
	}
}
