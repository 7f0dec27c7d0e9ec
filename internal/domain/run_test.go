package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStopsJSON(t *testing.T) {
	raw := `[
		{"stop_order": 2, "station_id": 30, "station_name": "Dole", "arrival_time": "08:10", "departure_time": "08:12"},
		{"stop_order": 1, "station_id": 20, "station_name": "Auxonne", "arrival_time": "", "departure_time": "07:50:00"}
	]`

	stops, err := ParseStopsJSON(7, raw)
	require.NoError(t, err)
	require.Len(t, stops, 2)

	assert.Equal(t, 1, stops[0].Order)
	assert.Equal(t, int64(20), stops[0].StationID)
	assert.Equal(t, int64(7), stops[0].RunID)
	assert.Nil(t, stops[0].ArrivalTime)
	require.NotNil(t, stops[0].DepartureTime)
	assert.Equal(t, "07:50", stops[0].DepartureTime.String())

	assert.Equal(t, 2, stops[1].Order)
	assert.True(t, stops[1].HasTime())
}

func TestParseStopsJSONEmpty(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		stops, err := ParseStopsJSON(1, raw)
		require.NoError(t, err)
		assert.Empty(t, stops)
	}
}

func TestParseStopsJSONMalformed(t *testing.T) {
	_, err := ParseStopsJSON(1, `[{"stop_order": 1,`)
	assert.Error(t, err)

	_, err = ParseStopsJSON(1, `[{"stop_order": 1, "station_id": 2, "arrival_time": "99:00"}]`)
	assert.Error(t, err)
}

func TestParseVariantType(t *testing.T) {
	assert.Equal(t, VariantSuppressed, ParseVariantType("suppression"))
	assert.Equal(t, VariantSuppressed, ParseVariantType("Suppressed"))
	assert.Equal(t, VariantDelayed, ParseVariantType("retard"))
	assert.Equal(t, VariantOnTime, ParseVariantType(""))
	assert.Equal(t, VariantType("detour"), ParseVariantType("Detour"))

	var nilVariant *Variant
	assert.False(t, nilVariant.Suppressed())
	assert.True(t, (&Variant{Type: VariantSuppressed}).Suppressed())
}

func TestParseStationClass(t *testing.T) {
	assert.Equal(t, StationClassCity, ParseStationClass("ville"))
	assert.Equal(t, StationClassRegional, ParseStationClass("urbaine"))
	assert.Equal(t, StationClassRegional, ParseStationClass("Regional"))
	assert.Equal(t, StationClassUnknown, ParseStationClass(""))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("arrivals")
	require.NoError(t, err)
	assert.Equal(t, Arrivals, d)

	d, err = ParseDirection("DEP")
	require.NoError(t, err)
	assert.Equal(t, Departures, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestOccurrenceTime(t *testing.T) {
	o := Occurrence{DepartureTime: NewClock(7, 0), ArrivalTime: NewClock(6, 58), Direction: Arrivals}
	assert.Equal(t, NewClock(6, 58), o.Time())
	o.Direction = Departures
	assert.Equal(t, NewClock(7, 0), o.Time())
}
