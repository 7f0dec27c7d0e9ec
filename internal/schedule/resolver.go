package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ferrovia/internal/domain"
)

// Cache stores resolved day lists. Both the Redis and the in-process cache
// satisfy it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Versioned is a source whose content only changes by whole snapshots.
// Version changes with every snapshot.
type Versioned interface {
	Version() string
}

// ErrNotVersioned is returned by UseCache for a source that reads live rows:
// nothing would tell the cache that a row changed.
var ErrNotVersioned = errors.New("source has no snapshot version")

// CacheKey is the cache key of one resolved (station, day, direction) list
// computed from the snapshot version.
func CacheKey(version string, stationID int64, day time.Time, dir domain.Direction) string {
	return fmt.Sprintf("day:%s:%d:%s:%s", version, stationID, domain.DateKey(day), dir)
}

// Resolver turns the relational schedule into the ordered list of trains
// seen at a station on a given day.
type Resolver struct {
	store     Store
	loc       *time.Location
	opts      LookaheadOptions
	cache     Cache
	versioned Versioned
	cacheTTL  time.Duration
	logger    *slog.Logger
}

func NewResolver(store Store, loc *time.Location, opts LookaheadOptions, logger *slog.Logger) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{
		store:  store,
		loc:    loc,
		opts:   opts,
		logger: logger.With("component", "resolver"),
	}
}

// UseCache makes Resolve read and fill c. A nil cache disables caching.
// Only a Versioned store can be cached; otherwise caching stays off and
// ErrNotVersioned is returned.
func (r *Resolver) UseCache(c Cache, ttl time.Duration) error {
	if c == nil {
		r.cache, r.versioned = nil, nil
		return nil
	}
	v, ok := r.store.(Versioned)
	if !ok {
		r.cache, r.versioned = nil, nil
		return ErrNotVersioned
	}
	r.cache = c
	r.versioned = v
	r.cacheTTL = ttl
	return nil
}

func (r *Resolver) Location() *time.Location { return r.loc }

func (r *Resolver) Options() LookaheadOptions { return r.opts }

// Today returns the current service day.
func (r *Resolver) Today(now time.Time) time.Time {
	return domain.ServiceDay(now, r.loc)
}

// Resolve returns the deduplicated, time-ordered occurrences of trains at
// stationID on date for one direction. An unknown station yields an empty
// list. Provider failures are returned as *SourceError.
func (r *Resolver) Resolve(ctx context.Context, stationID int64, date time.Time, dir domain.Direction) ([]domain.Occurrence, error) {
	if stationID <= 0 {
		return []domain.Occurrence{}, nil
	}
	day := domain.ServiceDay(date, r.loc)

	var key, version string
	if r.cache != nil {
		version = r.versioned.Version()
		key = CacheKey(version, stationID, day, dir)
		var cached []domain.Occurrence
		found, err := r.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			r.logger.Warn("cache read failed", "key", key, "error", err)
		} else if found {
			return cached, nil
		}
	}

	start := time.Now()
	occs, err := r.resolve(ctx, stationID, day, dir)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolved occurrences",
		"station_id", stationID,
		"date", domain.DateKey(day),
		"direction", dir,
		"count", len(occs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if r.cache != nil {
		// A snapshot swapped in while resolving may have mixed old and new rows.
		if r.versioned.Version() != version {
			r.logger.Debug("snapshot changed during resolve, not caching", "key", key)
			return occs, nil
		}
		if err := r.cache.SetJSON(ctx, key, occs, r.cacheTTL); err != nil {
			r.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return occs, nil
}

func (r *Resolver) resolve(ctx context.Context, stationID int64, day time.Time, dir domain.Direction) ([]domain.Occurrence, error) {
	mask := domain.WeekdayMask(day)
	dateKey := domain.DateKey(day)

	var (
		runs []domain.Run
		err  error
		role domain.Role
	)
	if dir == domain.Arrivals {
		runs, err = r.store.RunsByArrival(ctx, stationID)
		role = domain.RoleTerminus
		if err != nil {
			return nil, sourceErr("runs by arrival", err)
		}
	} else {
		runs, err = r.store.RunsByDeparture(ctx, stationID)
		role = domain.RoleOrigin
		if err != nil {
			return nil, sourceErr("runs by departure", err)
		}
	}

	stops, err := r.store.StopsAtStation(ctx, stationID)
	if err != nil {
		return nil, sourceErr("stops at station", err)
	}

	occs := make([]domain.Occurrence, 0, len(runs)+len(stops))

	for i := range runs {
		run := &runs[i]
		occ := newOccurrence(run, stationID, dateKey, role, dir)
		keep, err := r.annotate(ctx, &occ, run, stationID, day, mask)
		if err != nil {
			return nil, err
		}
		if keep {
			occs = append(occs, occ)
		}
	}

	for i := range stops {
		rs := &stops[i]
		if rs.Run.HasEndpoint(stationID) {
			continue
		}
		if !rs.Stop.HasTime() {
			r.logger.Debug("skipping stop without times", "run_id", rs.Run.ID, "station_id", stationID, "stop_order", rs.Stop.Order)
			continue
		}

		occ := newOccurrence(&rs.Run, stationID, dateKey, domain.RoleIntermediate, dir)
		occ.DepartureTime = stopTime(rs.Stop.DepartureTime, rs.Stop.ArrivalTime)
		occ.ArrivalTime = stopTime(rs.Stop.ArrivalTime, rs.Stop.DepartureTime)

		keep, err := r.annotate(ctx, &occ, &rs.Run, stationID, day, mask)
		if err != nil {
			return nil, err
		}
		if keep {
			occs = append(occs, occ)
		}
	}

	occs = Dedup(occs)
	SortByTime(occs)
	return occs, nil
}

// annotate applies the running decision and the day's variant, and attaches
// the platform. It reports false when the occurrence must be dropped.
func (r *Resolver) annotate(ctx context.Context, occ *domain.Occurrence, run *domain.Run, stationID int64, day time.Time, mask uint8) (bool, error) {
	running, err := IsRunning(ctx, r.store, run, day, mask)
	if err != nil || !running {
		return false, err
	}

	variant, err := r.store.Variant(ctx, run.ID, day)
	if err != nil {
		return false, sourceErr("variant", err)
	}
	if variant.Suppressed() {
		return false, nil
	}
	occ.Variant = variant

	platform, ok, err := r.store.Platform(ctx, run.ID, stationID)
	if err != nil {
		return false, sourceErr("platform", err)
	}
	if ok {
		occ.Platform = platform
	}
	return true, nil
}

func newOccurrence(run *domain.Run, stationID int64, dateKey string, role domain.Role, dir domain.Direction) domain.Occurrence {
	return domain.Occurrence{
		RunID:                run.ID,
		TrainNumber:          run.TrainNumber,
		TrainType:            run.TrainType,
		RollingStock:         run.RollingStock,
		Date:                 dateKey,
		StationID:            stationID,
		Role:                 role,
		Direction:            dir,
		DepartureTime:        run.DepartureTime,
		ArrivalTime:          run.ArrivalTime,
		DepartureStationID:   run.DepartureStationID,
		ArrivalStationID:     run.ArrivalStationID,
		DepartureStationName: run.DepartureStationName,
		ArrivalStationName:   run.ArrivalStationName,
		DaysMask:             run.DaysMask,
	}
}

func stopTime(primary, fallback *domain.Clock) domain.Clock {
	if primary != nil {
		return *primary
	}
	return *fallback
}
