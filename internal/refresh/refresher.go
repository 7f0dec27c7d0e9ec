package refresh

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ferrovia/internal/domain"
	"ferrovia/internal/schedule"
)

// BoardBuilder computes a station board.
type BoardBuilder interface {
	Board(ctx context.Context, stationID int64, day, now time.Time) (*schedule.Board, error)
}

// Publisher receives every board that completes without being superseded.
type Publisher interface {
	PublishBoard(board *schedule.Board)
}

// StationSource lists the stations that currently need refreshing.
type StationSource interface {
	SubscribedStations() []int64
}

type key struct {
	stationID int64
	date      string
}

type state struct {
	inFlight   int
	generation uint64
}

// Stats counts refresh outcomes.
type Stats struct {
	Started   uint64 `json:"started"`
	Skipped   uint64 `json:"skipped"`
	Discarded uint64 `json:"discarded"`
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
}

// Refresher rebuilds boards in the background. Per (station, date) a
// periodic refresh is skipped while another is in flight, and a forced
// refresh supersedes whatever is in flight: only the newest result is
// published.
type Refresher struct {
	boards BoardBuilder
	out    Publisher
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	states map[key]*state
	closed bool
	wg     sync.WaitGroup

	started   atomic.Uint64
	skipped   atomic.Uint64
	discarded atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

func New(boards BoardBuilder, out Publisher, loc *time.Location, logger *slog.Logger) *Refresher {
	if loc == nil {
		loc = time.Local
	}
	return &Refresher{
		boards: boards,
		out:    out,
		loc:    loc,
		now:    time.Now,
		logger: logger.With("component", "refresher"),
		states: make(map[key]*state),
	}
}

// TryRefresh starts a refresh unless one is already in flight for the same
// station and day. It reports whether a refresh was started.
func (r *Refresher) TryRefresh(ctx context.Context, stationID int64, day time.Time) bool {
	day = domain.ServiceDay(day, r.loc)
	k := key{stationID, domain.DateKey(day)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.skipped.Add(1)
		return false
	}
	st := r.stateFor(k)
	if st.inFlight > 0 {
		r.mu.Unlock()
		r.skipped.Add(1)
		r.logger.Debug("refresh already in flight", "station_id", stationID, "date", k.date)
		return false
	}
	gen := r.begin(st)
	r.mu.Unlock()

	r.launch(ctx, k, day, gen)
	return true
}

// Refresh starts a refresh even if one is in flight; the older one's result
// is discarded when it completes. It does nothing once the refresher is
// closed.
func (r *Refresher) Refresh(ctx context.Context, stationID int64, day time.Time) {
	day = domain.ServiceDay(day, r.loc)
	k := key{stationID, domain.DateKey(day)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.skipped.Add(1)
		r.logger.Debug("refresher closed, ignoring forced refresh", "station_id", stationID, "date", k.date)
		return
	}
	gen := r.begin(r.stateFor(k))
	r.mu.Unlock()

	r.launch(ctx, k, day, gen)
}

func (r *Refresher) stateFor(k key) *state {
	st, ok := r.states[k]
	if !ok {
		st = &state{}
		r.states[k] = st
	}
	return st
}

// begin must be called with r.mu held.
func (r *Refresher) begin(st *state) uint64 {
	st.generation++
	st.inFlight++
	r.wg.Add(1)
	r.started.Add(1)
	return st.generation
}

func (r *Refresher) launch(ctx context.Context, k key, day time.Time, gen uint64) {
	go func() {
		defer r.wg.Done()

		start := time.Now()
		board, err := r.boards.Board(ctx, k.stationID, day, r.now())

		r.mu.Lock()
		st := r.states[k]
		st.inFlight--
		stale := gen != st.generation
		if st.inFlight == 0 {
			delete(r.states, k)
		}
		r.mu.Unlock()

		switch {
		case err != nil:
			r.failed.Add(1)
			r.logger.Warn("board refresh failed", "station_id", k.stationID, "date", k.date, "error", err)
		case stale:
			r.discarded.Add(1)
			r.logger.Debug("discarding superseded board", "station_id", k.stationID, "date", k.date, "generation", gen)
		default:
			r.published.Add(1)
			r.out.PublishBoard(board)
			r.logger.Debug("board refreshed",
				"station_id", k.stationID,
				"date", k.date,
				"departures", len(board.Departures),
				"arrivals", len(board.Arrivals),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	}()
}

// Wait blocks until every launched refresh has completed.
func (r *Refresher) Wait() {
	r.wg.Wait()
}

// Close stops accepting refreshes and waits for those in flight.
func (r *Refresher) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Refresher) Stats() Stats {
	return Stats{
		Started:   r.started.Load(),
		Skipped:   r.skipped.Load(),
		Discarded: r.discarded.Load(),
		Published: r.published.Load(),
		Failed:    r.failed.Load(),
	}
}

// Run refreshes today's board of every subscribed station each interval
// until ctx is done.
func (r *Refresher) Run(ctx context.Context, interval time.Duration, stations StationSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("refresher started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			r.Close()
			r.logger.Info("refresher stopped")
			return
		case <-ticker.C:
			r.Tick(ctx, stations)
		}
	}
}

// Tick runs one periodic pass.
func (r *Refresher) Tick(ctx context.Context, stations StationSource) {
	today := domain.ServiceDay(r.now(), r.loc)
	ids := stations.SubscribedStations()
	started := 0
	for _, id := range ids {
		if r.TryRefresh(ctx, id, today) {
			started++
		}
	}
	if len(ids) > 0 {
		r.logger.Debug("refresh tick", "stations", len(ids), "started", started)
	}
}
