package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ferrovia/internal/schedule"
)

// gatedBuilder blocks each Board call until released and tags the board
// with the call number.
type gatedBuilder struct {
	mu      sync.Mutex
	calls   int
	started chan int
	release map[int]chan struct{}
	err     error
}

func newGatedBuilder() *gatedBuilder {
	return &gatedBuilder{started: make(chan int, 16), release: make(map[int]chan struct{})}
}

func (b *gatedBuilder) gate(n int) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.release[n]
	if !ok {
		ch = make(chan struct{})
		b.release[n] = ch
	}
	return ch
}

func (b *gatedBuilder) Board(_ context.Context, stationID int64, day, _ time.Time) (*schedule.Board, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	err := b.err
	b.mu.Unlock()

	b.started <- n
	<-b.gate(n)
	if err != nil {
		return nil, err
	}
	return &schedule.Board{StationID: stationID, Date: day.Format("2006-01-02"), GeneratedAt: time.Unix(int64(n), 0)}, nil
}

type recorder struct {
	mu     sync.Mutex
	boards []*schedule.Board
}

func (r *recorder) PublishBoard(b *schedule.Board) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards = append(r.boards, b)
}

func (r *recorder) all() []*schedule.Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*schedule.Board(nil), r.boards...)
}

type fixedStations []int64

func (f fixedStations) SubscribedStations() []int64 { return f }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRefresher(b BoardBuilder, out Publisher) *Refresher {
	r := New(b, out, time.UTC, testLogger())
	r.now = func() time.Time { return time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC) }
	return r
}

func TestTryRefreshSkipsWhileInFlight(t *testing.T) {
	b := newGatedBuilder()
	out := &recorder{}
	r := newTestRefresher(b, out)
	ctx := context.Background()
	day := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	require.True(t, r.TryRefresh(ctx, 1, day))
	<-b.started
	assert.False(t, r.TryRefresh(ctx, 1, day), "same key is in flight")
	assert.True(t, r.TryRefresh(ctx, 2, day), "other stations are independent")
	<-b.started

	close(b.gate(1))
	close(b.gate(2))
	r.Wait()

	assert.Len(t, out.all(), 2)
	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Started)
	assert.Equal(t, uint64(1), stats.Skipped)
	assert.Equal(t, uint64(2), stats.Published)

	// Once completed the key can refresh again.
	assert.True(t, r.TryRefresh(ctx, 1, day))
	<-b.started
	close(b.gate(3))
	r.Wait()
}

func TestForcedRefreshDiscardsStaleResult(t *testing.T) {
	b := newGatedBuilder()
	out := &recorder{}
	r := newTestRefresher(b, out)
	ctx := context.Background()
	day := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	require.True(t, r.TryRefresh(ctx, 1, day))
	<-b.started
	r.Refresh(ctx, 1, day)
	<-b.started

	// The newer refresh finishes first, then the older one.
	close(b.gate(2))
	close(b.gate(1))
	r.Wait()

	boards := out.all()
	require.Len(t, boards, 1)
	assert.Equal(t, int64(2), boards[0].GeneratedAt.Unix())

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Discarded)
	assert.Equal(t, uint64(1), stats.Published)
}

func TestForcedRefreshStaleFinishingFirst(t *testing.T) {
	b := newGatedBuilder()
	out := &recorder{}
	r := newTestRefresher(b, out)
	ctx := context.Background()
	day := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	r.Refresh(ctx, 1, day)
	<-b.started
	r.Refresh(ctx, 1, day)
	<-b.started

	close(b.gate(1))
	close(b.gate(2))
	r.Wait()

	boards := out.all()
	require.Len(t, boards, 1)
	assert.Equal(t, int64(2), boards[0].GeneratedAt.Unix())
}

func TestRefreshFailureIsNotPublished(t *testing.T) {
	b := newGatedBuilder()
	b.err = errors.New("database is locked")
	out := &recorder{}
	r := newTestRefresher(b, out)

	require.True(t, r.TryRefresh(context.Background(), 1, time.Now()))
	<-b.started
	close(b.gate(1))
	r.Wait()

	assert.Empty(t, out.all())
	assert.Equal(t, uint64(1), r.Stats().Failed)
}

func TestTickRefreshesSubscribedStations(t *testing.T) {
	b := newGatedBuilder()
	out := &recorder{}
	r := newTestRefresher(b, out)

	r.Tick(context.Background(), fixedStations{4, 5})
	<-b.started
	<-b.started
	close(b.gate(1))
	close(b.gate(2))
	r.Wait()

	boards := out.all()
	require.Len(t, boards, 2)
	for _, board := range boards {
		assert.Equal(t, "2025-11-03", board.Date)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	b := newGatedBuilder()
	r := newTestRefresher(b, &recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Hour, fixedStations{})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func (r *Refresher) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func TestCloseRejectsNewRefreshes(t *testing.T) {
	b := newGatedBuilder()
	out := &recorder{}
	r := newTestRefresher(b, out)
	ctx := context.Background()
	day := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	require.True(t, r.TryRefresh(ctx, 1, day))
	<-b.started

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()
	require.Eventually(t, r.isClosed, time.Second, 5*time.Millisecond)

	// Arrivals during shutdown must not join the wait group.
	r.Refresh(ctx, 2, day)
	assert.False(t, r.TryRefresh(ctx, 3, day))

	select {
	case <-closed:
		t.Fatal("Close returned while a refresh was in flight")
	default:
	}

	close(b.gate(1))
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	b.mu.Lock()
	calls := b.calls
	b.mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Len(t, out.all(), 1)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Started)
	assert.Equal(t, uint64(2), stats.Skipped)
}
