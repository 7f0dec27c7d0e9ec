package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ferrovia/internal/domain"
)

// LookaheadOptions bound how much of the next day is merged into a board.
type LookaheadOptions struct {
	// TomorrowBeforeHour keeps next-day occurrences whose hour is below it.
	TomorrowBeforeHour int
	// TomorrowLimit caps the number of next-day occurrences.
	TomorrowLimit int
}

func DefaultLookaheadOptions() LookaheadOptions {
	return LookaheadOptions{TomorrowBeforeHour: 7, TomorrowLimit: 20}
}

// Day says which calendar day of a lookahead an occurrence belongs to.
type Day string

const (
	Today    Day = "today"
	Tomorrow Day = "tomorrow"
)

// DatedOccurrence is an occurrence placed on an absolute instant.
type DatedOccurrence struct {
	domain.Occurrence
	Day             Day       `json:"day"`
	At              time.Time `json:"scheduled_at"`
	PlatformVisible bool      `json:"platform_visible"`
}

// ComposeLookahead merges the occurrences of day and of the following day.
// Next-day occurrences are kept only before opts.TomorrowBeforeHour and at
// most opts.TomorrowLimit of them (the earliest). Anything scheduled before
// now is dropped. The result is ordered by absolute instant.
func ComposeLookahead(today, tomorrow []domain.Occurrence, day, now time.Time, opts LookaheadOptions) []DatedOccurrence {
	next := domain.NextDay(day)

	merged := make([]DatedOccurrence, 0, len(today)+len(tomorrow))
	for _, o := range today {
		at := o.Time().On(day)
		if at.Before(now) {
			continue
		}
		merged = append(merged, DatedOccurrence{Occurrence: o, Day: Today, At: at})
	}

	early := make([]DatedOccurrence, 0, len(tomorrow))
	for _, o := range tomorrow {
		if o.Time().Hour() >= opts.TomorrowBeforeHour {
			continue
		}
		at := o.Time().On(next)
		if at.Before(now) {
			continue
		}
		early = append(early, DatedOccurrence{Occurrence: o, Day: Tomorrow, At: at})
	}
	sortByInstant(early)
	limit := opts.TomorrowLimit
	if limit < 0 {
		limit = 0
	}
	if len(early) > limit {
		early = early[:limit]
	}

	merged = append(merged, early...)
	sortByInstant(merged)
	return merged
}

func sortByInstant(occs []DatedOccurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].At.Equal(occs[j].At) {
			return occs[i].At.Before(occs[j].At)
		}
		return occs[i].RunID < occs[j].RunID
	})
}

// Lookahead resolves day and the following day for one direction and
// composes them relative to now.
func (r *Resolver) Lookahead(ctx context.Context, stationID int64, day, now time.Time, dir domain.Direction) ([]DatedOccurrence, error) {
	day = domain.ServiceDay(day, r.loc)

	var (
		wg                sync.WaitGroup
		today, tomorrow   []domain.Occurrence
		errToday, errNext error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		today, errToday = r.Resolve(ctx, stationID, day, dir)
	}()
	go func() {
		defer wg.Done()
		tomorrow, errNext = r.Resolve(ctx, stationID, domain.NextDay(day), dir)
	}()
	wg.Wait()

	if err := errors.Join(errToday, errNext); err != nil {
		return nil, err
	}
	return ComposeLookahead(today, tomorrow, day, now, r.opts), nil
}

// Board is the two-day departures and arrivals view of one station.
type Board struct {
	StationID   int64               `json:"station_id"`
	StationName string              `json:"station_name,omitempty"`
	Class       domain.StationClass `json:"station_type"`
	Date        string              `json:"date"`
	GeneratedAt time.Time           `json:"generated_at"`
	Departures  []DatedOccurrence   `json:"departures"`
	Arrivals    []DatedOccurrence   `json:"arrivals"`
}

// Board resolves departures and arrivals for day and the following day as
// four concurrent lookups, composes both directions and evaluates platform
// visibility at now.
func (r *Resolver) Board(ctx context.Context, stationID int64, day, now time.Time) (*Board, error) {
	day = domain.ServiceDay(day, r.loc)
	next := domain.NextDay(day)

	board := &Board{
		StationID:   stationID,
		Date:        domain.DateKey(day),
		GeneratedAt: now,
		Departures:  []DatedOccurrence{},
		Arrivals:    []DatedOccurrence{},
	}

	if stationID > 0 {
		station, err := r.store.Station(ctx, stationID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return nil, sourceErr("station", err)
		default:
			board.StationName = station.Name
			board.Class = station.Class
		}
	}

	type lookup struct {
		date time.Time
		dir  domain.Direction
		occs []domain.Occurrence
		err  error
	}
	lookups := []*lookup{
		{date: day, dir: domain.Departures},
		{date: next, dir: domain.Departures},
		{date: day, dir: domain.Arrivals},
		{date: next, dir: domain.Arrivals},
	}

	var wg sync.WaitGroup
	for _, l := range lookups {
		wg.Add(1)
		go func(l *lookup) {
			defer wg.Done()
			l.occs, l.err = r.Resolve(ctx, stationID, l.date, l.dir)
		}(l)
	}
	wg.Wait()

	var errs []error
	for _, l := range lookups {
		errs = append(errs, l.err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	board.Departures = ComposeLookahead(lookups[0].occs, lookups[1].occs, day, now, r.opts)
	board.Arrivals = ComposeLookahead(lookups[2].occs, lookups[3].occs, day, now, r.opts)
	board.Revalidate(now)
	return board, nil
}

// Revalidate recomputes platform visibility for every occurrence at now.
func (b *Board) Revalidate(now time.Time) {
	ApplyPlatformVisibility(b.Departures, b.Class, now)
	ApplyPlatformVisibility(b.Arrivals, b.Class, now)
}
