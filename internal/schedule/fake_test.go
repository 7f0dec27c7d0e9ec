package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ferrovia/internal/domain"
)

type overrideKey struct {
	runID int64
	date  string
}

type platformKey struct {
	runID, stationID int64
}

// fakeStore is an in-memory Store for resolver tests.
type fakeStore struct {
	mu        sync.Mutex
	stations  map[int64]domain.Station
	runs      []domain.Run
	included  map[overrideKey]bool
	excluded  map[overrideKey]bool
	variants  map[overrideKey]domain.Variant
	platforms map[platformKey]string
	err       error
	calls     int
	version   string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stations:  map[int64]domain.Station{},
		included:  map[overrideKey]bool{},
		excluded:  map[overrideKey]bool{},
		variants:  map[overrideKey]domain.Variant{},
		platforms: map[platformKey]string{},
	}
}

func (f *fakeStore) addStation(s domain.Station) { f.stations[s.ID] = s }
func (f *fakeStore) addRun(r domain.Run)         { f.runs = append(f.runs, r) }
func (f *fakeStore) include(runID int64, date string) {
	f.included[overrideKey{runID, date}] = true
}
func (f *fakeStore) exclude(runID int64, date string) {
	f.excluded[overrideKey{runID, date}] = true
}
func (f *fakeStore) setVariant(v domain.Variant) {
	f.variants[overrideKey{v.RunID, v.Date}] = v
}
func (f *fakeStore) setPlatform(runID, stationID int64, p string) {
	f.platforms[platformKey{runID, stationID}] = p
}

func (f *fakeStore) Version() string { return f.version }

func (f *fakeStore) check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeStore) RunsByDeparture(_ context.Context, stationID int64) ([]domain.Run, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []domain.Run
	for _, r := range f.runs {
		if r.DepartureStationID == stationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) RunsByArrival(_ context.Context, stationID int64) ([]domain.Run, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []domain.Run
	for _, r := range f.runs {
		if r.ArrivalStationID == stationID {
			out = append(out, r)
		}
	}
	return out, nil
}

// StopsAtStation deliberately does not filter endpoint runs so the
// resolver's own guard is exercised.
func (f *fakeStore) StopsAtStation(_ context.Context, stationID int64) ([]domain.RunStop, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []domain.RunStop
	for _, r := range f.runs {
		for _, s := range r.Stops {
			if s.StationID == stationID {
				out = append(out, domain.RunStop{Run: r, Stop: s})
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Variant(_ context.Context, runID int64, date time.Time) (*domain.Variant, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	v, ok := f.variants[overrideKey{runID, domain.DateKey(date)}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (f *fakeStore) IsExcluded(_ context.Context, runID int64, date time.Time) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	return f.excluded[overrideKey{runID, domain.DateKey(date)}], nil
}

func (f *fakeStore) IsIncluded(_ context.Context, runID int64, date time.Time) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	return f.included[overrideKey{runID, domain.DateKey(date)}], nil
}

func (f *fakeStore) Platform(_ context.Context, runID, stationID int64) (string, bool, error) {
	if err := f.check(); err != nil {
		return "", false, err
	}
	p, ok := f.platforms[platformKey{runID, stationID}]
	return p, ok, nil
}

func (f *fakeStore) Station(_ context.Context, id int64) (*domain.Station, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	s, ok := f.stations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) SearchStations(_ context.Context, query string, limit int) ([]domain.Station, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	all := make([]domain.Station, 0, len(f.stations))
	for _, s := range f.stations {
		all = append(all, s)
	}
	return domain.RankStations(all, query, limit), nil
}

func (f *fakeStore) RunsByTrainNumber(_ context.Context, trainNumber string) ([]domain.Run, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []domain.Run
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].TrainNumber == trainNumber {
			out = append(out, f.runs[i])
		}
	}
	return out, nil
}

func (f *fakeStore) StopsForRun(_ context.Context, runID int64) ([]domain.Stop, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	for _, r := range f.runs {
		if r.ID == runID {
			return append([]domain.Stop(nil), r.Stops...), nil
		}
	}
	return nil, nil
}

var errBoom = errors.New("connection refused")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s, paris(t))
	require.NoError(t, err)
	return d
}

func clock(t *testing.T, s string) domain.Clock {
	t.Helper()
	c, err := domain.ParseClock(s)
	require.NoError(t, err)
	return c
}

func clockPtr(t *testing.T, s string) *domain.Clock {
	t.Helper()
	c := clock(t, s)
	return &c
}

func newTestResolver(t *testing.T, store Store) *Resolver {
	t.Helper()
	return NewResolver(store, paris(t), DefaultLookaheadOptions(), testLogger())
}

func runIDs(occs []domain.Occurrence) []int64 {
	ids := make([]int64, len(occs))
	for i, o := range occs {
		ids[i] = o.RunID
	}
	return ids
}
