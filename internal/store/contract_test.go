package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ferrovia/internal/domain"
	"ferrovia/internal/schedule"
)

// testStoreContract checks a store loaded with fixtureDataset.
func testStoreContract(t *testing.T, s schedule.Store) {
	ctx := context.Background()

	t.Run("runs by departure", func(t *testing.T) {
		runs, err := s.RunsByDeparture(ctx, 2)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, int64(10), runs[0].ID)
		assert.Equal(t, "Dijon-Ville", runs[0].DepartureStationName)
		assert.Equal(t, "Dole-Ville", runs[0].ArrivalStationName)
		assert.Equal(t, "08:10", runs[0].DepartureTime.String())
		assert.Equal(t, uint8(31), runs[0].DaysMask)
	})

	t.Run("runs by arrival", func(t *testing.T) {
		runs, err := s.RunsByArrival(ctx, 2)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, int64(11), runs[0].ID)

		runs, err = s.RunsByArrival(ctx, 999)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("stops at station", func(t *testing.T) {
		stops, err := s.StopsAtStation(ctx, 1)
		require.NoError(t, err)
		// Run 11 starts at Auxonne and is never an intermediate call there.
		require.Len(t, stops, 1)
		assert.Equal(t, int64(10), stops[0].Run.ID)
		assert.Equal(t, 2, stops[0].Stop.Order)
		require.NotNil(t, stops[0].Stop.DepartureTime)
		assert.Equal(t, "08:35", stops[0].Stop.DepartureTime.String())
	})

	t.Run("stops for run", func(t *testing.T) {
		stops, err := s.StopsForRun(ctx, 10)
		require.NoError(t, err)
		require.Len(t, stops, 2)
		assert.Equal(t, int64(4), stops[0].StationID)
		assert.Equal(t, "Genlis", stops[0].StationName)
		assert.Equal(t, int64(1), stops[1].StationID)
	})

	t.Run("overrides", func(t *testing.T) {
		included, err := s.IsIncluded(ctx, 11, day(t, "2025-11-03"))
		require.NoError(t, err)
		assert.True(t, included)

		included, err = s.IsIncluded(ctx, 11, day(t, "2025-11-04"))
		require.NoError(t, err)
		assert.False(t, included)

		excluded, err := s.IsExcluded(ctx, 10, day(t, "2025-11-11"))
		require.NoError(t, err)
		assert.True(t, excluded)
	})

	t.Run("variants", func(t *testing.T) {
		v, err := s.Variant(ctx, 10, day(t, "2025-11-04"))
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, domain.VariantDelayed, v.Type)
		assert.Equal(t, 12, v.DelayMinutes)
		assert.Equal(t, "travaux", v.Cause)

		v, err = s.Variant(ctx, 10, day(t, "2025-11-05"))
		require.NoError(t, err)
		assert.True(t, v.Suppressed())

		v, err = s.Variant(ctx, 10, day(t, "2025-11-06"))
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("platforms", func(t *testing.T) {
		p, ok, err := s.Platform(ctx, 10, 2)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "A", p)

		_, ok, err = s.Platform(ctx, 10, 3)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stations", func(t *testing.T) {
		st, err := s.Station(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "Dijon-Ville", st.Name)
		assert.Equal(t, domain.StationClassCity, st.Class)
		assert.Equal(t, "Bourgogne-Franche-Comté", st.Region)

		_, err = s.Station(ctx, 999)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		found, err := s.SearchStations(ctx, "ville", 0)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "Dijon-Ville", found[0].Name)
		assert.Equal(t, "Dole-Ville", found[1].Name)
	})

	t.Run("runs by train number", func(t *testing.T) {
		runs, err := s.RunsByTrainNumber(ctx, "894300")
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "TER", runs[0].TrainType)
		assert.Equal(t, "X73500", runs[0].RollingStock)
	})

	t.Run("resolves through the resolver", func(t *testing.T) {
		r := schedule.NewResolver(s, day(t, "2025-11-03").Location(), schedule.DefaultLookaheadOptions(), testLogger())

		// Monday: run 11 is weekend-only but included on 2025-11-03.
		occs, err := r.Resolve(ctx, 1, day(t, "2025-11-03"), domain.Departures)
		require.NoError(t, err)
		require.Len(t, occs, 2)
		assert.Equal(t, int64(11), occs[0].RunID)
		assert.Equal(t, domain.RoleOrigin, occs[0].Role)
		assert.Equal(t, int64(10), occs[1].RunID)
		assert.Equal(t, domain.RoleIntermediate, occs[1].Role)
		assert.Equal(t, "1", occs[1].Platform)

		// Wednesday: run 10 is suppressed.
		occs, err = r.Resolve(ctx, 1, day(t, "2025-11-05"), domain.Departures)
		require.NoError(t, err)
		assert.Empty(t, occs)
	})
}

type trafficReader interface {
	AllTrafficInfo(ctx context.Context) ([]domain.TrafficInfo, error)
	TrafficInfoByRegion(ctx context.Context, region string) ([]domain.TrafficInfo, error)
	TrafficInfo(ctx context.Context, id int64) (*domain.TrafficInfo, error)
}

func trafficIDs(items []domain.TrafficInfo) []int64 {
	ids := make([]int64, len(items))
	for i, info := range items {
		ids[i] = info.ID
	}
	return ids
}

// testTrafficContract checks the traffic notices of fixtureDataset.
func testTrafficContract(t *testing.T, s trafficReader) {
	ctx := context.Background()

	all, err := s.AllTrafficInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, trafficIDs(all))

	bfc, err := s.TrafficInfoByRegion(ctx, "Bourgogne-Franche-Comté")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, trafficIDs(bfc))

	none, err := s.TrafficInfoByRegion(ctx, "Occitanie")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	info, err := s.TrafficInfo(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Ligne Nancy - Metz", info.Title)
	assert.Equal(t, "Grand Est", info.Region)
	assert.True(t, info.UpdatedAt.Equal(time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)))

	_, err = s.TrafficInfo(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
