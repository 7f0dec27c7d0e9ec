package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ferrovia/internal/domain"
)

type dateKey struct {
	runID int64
	date  string
}

type platformKey struct {
	runID     int64
	stationID int64
}

// MemoryStore serves a whole dataset from memory. Load swaps the indexes
// atomically; readers always see one consistent snapshot.
type MemoryStore struct {
	mu              sync.RWMutex
	stations        map[int64]*domain.Station
	runs            map[int64]*domain.Run
	runsByDeparture map[int64][]int64
	runsByArrival   map[int64][]int64
	runsByNumber    map[string][]int64
	stopsByStation  map[int64][]domain.RunStop
	included        map[dateKey]struct{}
	excluded        map[dateKey]struct{}
	variants        map[dateKey]*domain.Variant
	platforms       map[platformKey]string
	traffic         []domain.TrafficInfo
	lastUpdate      time.Time
	datasetStats    domain.DatasetStats

	// epoch differs between processes so versions never collide in a
	// shared cache; loads counts snapshots within this process.
	epoch string
	loads uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stations:        make(map[int64]*domain.Station),
		runs:            make(map[int64]*domain.Run),
		runsByDeparture: make(map[int64][]int64),
		runsByArrival:   make(map[int64][]int64),
		runsByNumber:    make(map[string][]int64),
		stopsByStation:  make(map[int64][]domain.RunStop),
		included:        make(map[dateKey]struct{}),
		excluded:        make(map[dateKey]struct{}),
		variants:        make(map[dateKey]*domain.Variant),
		platforms:       make(map[platformKey]string),
		epoch:           strconv.FormatInt(time.Now().UnixNano(), 36),
	}
}

// Version identifies the loaded snapshot. It changes on every Load.
func (s *MemoryStore) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch + "-" + strconv.FormatUint(s.loads, 36)
}

// Load replaces the store content with ds.
func (s *MemoryStore) Load(ds *domain.Dataset) {
	stations := make(map[int64]*domain.Station, len(ds.Stations))
	for i := range ds.Stations {
		st := ds.Stations[i]
		stations[st.ID] = &st
	}

	runs := make(map[int64]*domain.Run, len(ds.Runs))
	runsByDeparture := make(map[int64][]int64)
	runsByArrival := make(map[int64][]int64)
	runsByNumber := make(map[string][]int64)
	stopsByStation := make(map[int64][]domain.RunStop)

	ordered := make([]domain.Run, len(ds.Runs))
	copy(ordered, ds.Runs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for i := range ordered {
		run := cloneRun(&ordered[i])
		fillStationNames(run, stations)
		domain.SortStops(run.Stops)
		for j := range run.Stops {
			run.Stops[j].RunID = run.ID
			if run.Stops[j].StationName == "" {
				if st, ok := stations[run.Stops[j].StationID]; ok {
					run.Stops[j].StationName = st.Name
				}
			}
		}
		runs[run.ID] = run

		runsByDeparture[run.DepartureStationID] = append(runsByDeparture[run.DepartureStationID], run.ID)
		runsByArrival[run.ArrivalStationID] = append(runsByArrival[run.ArrivalStationID], run.ID)
		runsByNumber[run.TrainNumber] = append(runsByNumber[run.TrainNumber], run.ID)

		for _, stop := range run.Stops {
			if run.HasEndpoint(stop.StationID) {
				continue
			}
			header := *run
			header.Stops = nil
			stopsByStation[stop.StationID] = append(stopsByStation[stop.StationID], domain.RunStop{Run: header, Stop: stop})
		}
	}

	included := make(map[dateKey]struct{}, len(ds.Inclusions))
	for _, o := range ds.Inclusions {
		included[dateKey{o.RunID, o.Date}] = struct{}{}
	}
	excluded := make(map[dateKey]struct{}, len(ds.Exclusions))
	for _, o := range ds.Exclusions {
		excluded[dateKey{o.RunID, o.Date}] = struct{}{}
	}
	variants := make(map[dateKey]*domain.Variant, len(ds.Variants))
	for i := range ds.Variants {
		v := ds.Variants[i]
		v.Type = domain.ParseVariantType(string(v.Type))
		variants[dateKey{v.RunID, v.Date}] = &v
	}
	platforms := make(map[platformKey]string, len(ds.Platforms))
	for _, p := range ds.Platforms {
		platforms[platformKey{p.RunID, p.StationID}] = p.Platform
	}
	traffic := make([]domain.TrafficInfo, len(ds.Traffic))
	copy(traffic, ds.Traffic)
	domain.SortTrafficInfo(traffic)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stations = stations
	s.runs = runs
	s.runsByDeparture = runsByDeparture
	s.runsByArrival = runsByArrival
	s.runsByNumber = runsByNumber
	s.stopsByStation = stopsByStation
	s.included = included
	s.excluded = excluded
	s.variants = variants
	s.platforms = platforms
	s.traffic = traffic
	s.loads++
	s.lastUpdate = time.Now()
	s.datasetStats = ds.Stats()
}

func (s *MemoryStore) RunsByDeparture(_ context.Context, stationID int64) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runList(s.runsByDeparture[stationID]), nil
}

func (s *MemoryStore) RunsByArrival(_ context.Context, stationID int64) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runList(s.runsByArrival[stationID]), nil
}

func (s *MemoryStore) RunsByTrainNumber(_ context.Context, trainNumber string) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runList(s.runsByNumber[strings.TrimSpace(trainNumber)]), nil
}

func (s *MemoryStore) runList(ids []int64) []domain.Run {
	result := make([]domain.Run, 0, len(ids))
	for _, id := range ids {
		if run, ok := s.runs[id]; ok {
			result = append(result, *cloneRun(run))
		}
	}
	return result
}

func (s *MemoryStore) StopsAtStation(_ context.Context, stationID int64) ([]domain.RunStop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stops := s.stopsByStation[stationID]
	result := make([]domain.RunStop, len(stops))
	for i, rs := range stops {
		result[i] = domain.RunStop{Run: rs.Run, Stop: cloneStop(rs.Stop)}
	}
	return result, nil
}

func (s *MemoryStore) StopsForRun(_ context.Context, runID int64) ([]domain.Stop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, nil
	}
	return cloneRun(run).Stops, nil
}

func (s *MemoryStore) Variant(_ context.Context, runID int64, date time.Time) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.variants[dateKey{runID, domain.DateKey(date)}]
	if !ok {
		return nil, nil
	}
	copy := *v
	return &copy, nil
}

func (s *MemoryStore) IsExcluded(_ context.Context, runID int64, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.excluded[dateKey{runID, domain.DateKey(date)}]
	return ok, nil
}

func (s *MemoryStore) IsIncluded(_ context.Context, runID int64, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.included[dateKey{runID, domain.DateKey(date)}]
	return ok, nil
}

func (s *MemoryStore) Platform(_ context.Context, runID, stationID int64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.platforms[platformKey{runID, stationID}]
	return p, ok, nil
}

func (s *MemoryStore) Station(_ context.Context, id int64) (*domain.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *st
	return &copy, nil
}

func (s *MemoryStore) SearchStations(ctx context.Context, query string, limit int) ([]domain.Station, error) {
	stations, err := s.AllStations(ctx)
	if err != nil {
		return nil, err
	}
	return domain.RankStations(stations, query, limit), nil
}

// AllStations returns every station ordered by id.
func (s *MemoryStore) AllStations(_ context.Context) ([]domain.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Station, 0, len(s.stations))
	for _, st := range s.stations {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AllTrafficInfo returns every notice, most recent first.
func (s *MemoryStore) AllTrafficInfo(_ context.Context) ([]domain.TrafficInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TrafficInfo{}, s.traffic...), nil
}

// TrafficInfoByRegion returns the notices of one region, most recent first.
func (s *MemoryStore) TrafficInfoByRegion(_ context.Context, region string) ([]domain.TrafficInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []domain.TrafficInfo{}
	for _, info := range s.traffic {
		if info.Region == region {
			result = append(result, info)
		}
	}
	return result, nil
}

func (s *MemoryStore) TrafficInfo(_ context.Context, id int64) (*domain.TrafficInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, info := range s.traffic {
		if info.ID == id {
			copy := info
			return &copy, nil
		}
	}
	return nil, domain.ErrNotFound
}

type MemoryStats struct {
	domain.DatasetStats
	LastUpdate time.Time `json:"last_update"`
	IsLoaded   bool      `json:"is_loaded"`
}

func (s *MemoryStore) GetStats() MemoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return MemoryStats{
		DatasetStats: s.datasetStats,
		LastUpdate:   s.lastUpdate,
		IsLoaded:     !s.lastUpdate.IsZero(),
	}
}

// DatasetStats reports the size of the loaded dataset.
func (s *MemoryStore) DatasetStats(_ context.Context) (domain.DatasetStats, error) {
	return s.GetStats().DatasetStats, nil
}

func fillStationNames(run *domain.Run, stations map[int64]*domain.Station) {
	if run.DepartureStationName == "" {
		if st, ok := stations[run.DepartureStationID]; ok {
			run.DepartureStationName = st.Name
		}
	}
	if run.ArrivalStationName == "" {
		if st, ok := stations[run.ArrivalStationID]; ok {
			run.ArrivalStationName = st.Name
		}
	}
}

func cloneRun(run *domain.Run) *domain.Run {
	c := *run
	if run.Stops != nil {
		c.Stops = make([]domain.Stop, len(run.Stops))
		for i, st := range run.Stops {
			c.Stops[i] = cloneStop(st)
		}
	}
	return &c
}

func cloneStop(st domain.Stop) domain.Stop {
	if st.ArrivalTime != nil {
		st.ArrivalTime = domain.ClockPtr(*st.ArrivalTime)
	}
	if st.DepartureTime != nil {
		st.DepartureTime = domain.ClockPtr(*st.DepartureTime)
	}
	return st
}
