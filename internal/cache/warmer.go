package cache

import (
	"context"
	"log/slog"
	"time"

	"ferrovia/internal/domain"
	"ferrovia/internal/schedule"
)

// Cache is a day-list cache that can be invalidated by pattern.
type Cache interface {
	schedule.Cache
	DeletePattern(ctx context.Context, pattern string) error
}

// StationLister lists every station to warm.
type StationLister interface {
	AllStations(ctx context.Context) ([]domain.Station, error)
}

// WarmStatus records the last completed warm-up.
type WarmStatus struct {
	Stations   int       `json:"stations"`
	Days       []string  `json:"days"`
	WarmedAt   time.Time `json:"warmed_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Warmer fills the cache with today's and tomorrow's lists for every
// station, through a resolver that writes to the same cache.
type Warmer struct {
	cache    Cache
	resolver *schedule.Resolver
	stations StationLister
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewWarmer(cache Cache, resolver *schedule.Resolver, stations StationLister, ttl time.Duration, logger *slog.Logger) *Warmer {
	return &Warmer{
		cache:    cache,
		resolver: resolver,
		stations: stations,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With("component", "cache_warmer"),
	}
}

// Invalidate drops every cached day list.
func (w *Warmer) Invalidate(ctx context.Context) error {
	return w.cache.DeletePattern(ctx, PatternDays)
}

// Refresh invalidates and warms again; used after a dataset update.
func (w *Warmer) Refresh(ctx context.Context) error {
	if err := w.Invalidate(ctx); err != nil {
		w.logger.Error("failed to invalidate cache", "error", err)
	}
	return w.WarmAll(ctx)
}

func (w *Warmer) WarmAll(ctx context.Context) error {
	start := time.Now()
	w.logger.Info("starting cache warming")

	stations, err := w.stations.AllStations(ctx)
	if err != nil {
		return err
	}

	today := w.resolver.Today(w.now())
	days := []time.Time{today, domain.NextDay(today)}
	dirs := []domain.Direction{domain.Departures, domain.Arrivals}

	warmed := 0
	for _, st := range stations {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ok := true
		for _, d := range days {
			for _, dir := range dirs {
				if _, err := w.resolver.Resolve(ctx, st.ID, d, dir); err != nil {
					w.logger.Debug("failed to warm station", "station_id", st.ID, "date", domain.DateKey(d), "direction", dir, "error", err)
					ok = false
				}
			}
		}
		if ok {
			warmed++
		}
	}

	status := WarmStatus{
		Stations:   warmed,
		Days:       []string{domain.DateKey(days[0]), domain.DateKey(days[1])},
		WarmedAt:   w.now(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err := w.cache.SetJSON(ctx, KeyWarmStatus, status, w.ttl); err != nil {
		w.logger.Debug("failed to store warm status", "error", err)
	}

	w.logger.Info("cache warming completed",
		"stations_warmed", warmed,
		"total_stations", len(stations),
		"duration_ms", status.DurationMs,
	)
	return nil
}

// ScheduleMidnightRefresh warms the cache shortly after each midnight of the
// service time zone, when "today" changes.
func (w *Warmer) ScheduleMidnightRefresh(ctx context.Context) {
	for {
		now := w.now().In(w.resolver.Location())
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 5, 0, 0, now.Location())
		waitDuration := next.Sub(now)

		w.logger.Info("scheduled next cache refresh", "at", next, "in", waitDuration)

		select {
		case <-ctx.Done():
			return
		case <-time.After(waitDuration):
			w.logger.Info("midnight cache refresh starting")
			if err := w.Refresh(ctx); err != nil {
				w.logger.Error("midnight cache refresh failed", "error", err)
			}
		}
	}
}
