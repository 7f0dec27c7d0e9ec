package saved

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ferrovia/internal/cache"
	"ferrovia/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func occurrences(n int) []domain.Occurrence {
	occs := make([]domain.Occurrence, n)
	for i := range occs {
		occs[i] = domain.Occurrence{RunID: int64(i + 1), Date: "2025-11-03", Direction: domain.Departures}
	}
	return occs
}

func backends(t *testing.T) map[string]KV {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]KV{
		"memory": NewMemoryKV(),
		"redis":  cache.NewRedisCacheFromClient(client, "test:", testLogger()),
	}
}

func TestManager(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(kv, testLogger())
			m.now = func() time.Time { return time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC) }

			list, err := m.List(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, list)

			first, err := m.Add(ctx, "alice", 2, "Dijon-Ville", domain.Departures, occurrences(5))
			require.NoError(t, err)
			assert.NotEmpty(t, first.ID)
			assert.Len(t, first.Occurrences, MaxOccurrences)

			second, err := m.Add(ctx, "alice", 1, "Auxonne", domain.Arrivals, occurrences(1))
			require.NoError(t, err)

			list, err = m.List(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, first.ID, list[0].ID)
			assert.Equal(t, "Auxonne", list[1].StationName)
			assert.Equal(t, domain.Arrivals, list[1].Direction)
			assert.True(t, list[0].SavedAt.Equal(m.now()))

			other, err := m.List(ctx, "bob")
			require.NoError(t, err)
			assert.Empty(t, other)

			require.NoError(t, m.Remove(ctx, "alice", first.ID))
			assert.ErrorIs(t, m.Remove(ctx, "alice", first.ID), domain.ErrNotFound)

			list, err = m.List(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, second.ID, list[0].ID)

			require.NoError(t, m.Clear(ctx, "alice"))
			list, err = m.List(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestStoredFormat(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	m := NewManager(kv, testLogger())

	_, err := m.Add(ctx, "alice", 2, "Dijon-Ville", domain.Departures, occurrences(1))
	require.NoError(t, err)

	raw, err := kv.Get(ctx, "saved:v1:alice")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"station_id":2`)
	assert.Contains(t, string(raw), `"direction":"departures"`)
	assert.Contains(t, string(raw), `"occurrences":[{`)
}

func TestCorruptDataIsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, "saved:v1:alice", []byte("{not json"), 0))

	m := NewManager(kv, testLogger())
	list, err := m.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = m.Add(ctx, "alice", 2, "Dijon-Ville", domain.Departures, nil)
	require.NoError(t, err)
	list, err = m.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInvalidOwner(t *testing.T) {
	m := NewManager(NewMemoryKV(), testLogger())
	for _, owner := range []string{"", "  ", "a*b", "x:y"} {
		_, err := m.List(context.Background(), owner)
		assert.ErrorIs(t, err, ErrInvalidOwner, owner)
	}
}
