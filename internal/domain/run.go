package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned when a station, run or platform does not exist.
var ErrNotFound = errors.New("not found")

// Run is a scheduled train service template ("sillon"), independent of date.
type Run struct {
	ID                   int64  `json:"id"`
	TrainNumber          string `json:"train_number"`
	TrainType            string `json:"train_type,omitempty"`
	RollingStock         string `json:"rolling_stock,omitempty"`
	DepartureTime        Clock  `json:"departure_time"`
	ArrivalTime          Clock  `json:"arrival_time"`
	DepartureStationID   int64  `json:"departure_station_id"`
	ArrivalStationID     int64  `json:"arrival_station_id"`
	DepartureStationName string `json:"departure_station,omitempty"`
	ArrivalStationName   string `json:"arrival_station,omitempty"`
	DaysMask             uint8  `json:"days_mask"`
	Stops                []Stop `json:"stops,omitempty"`
}

// HasEndpoint reports whether stationID is the run's origin or terminus.
func (r *Run) HasEndpoint(stationID int64) bool {
	return r.DepartureStationID == stationID || r.ArrivalStationID == stationID
}

// Stop is an intermediate call of a run at a station.
type Stop struct {
	RunID         int64  `json:"schedule_id,omitempty"`
	Order         int    `json:"stop_order"`
	StationID     int64  `json:"station_id"`
	StationName   string `json:"station_name,omitempty"`
	ArrivalTime   *Clock `json:"arrival_time"`
	DepartureTime *Clock `json:"departure_time"`
}

// HasTime reports whether the stop carries at least one scheduled time.
func (s *Stop) HasTime() bool {
	return s.ArrivalTime != nil || s.DepartureTime != nil
}

// RunStop pairs a stop with the run it belongs to.
type RunStop struct {
	Run  Run
	Stop Stop
}

// DateOverride forces a run on or off for one calendar day.
type DateOverride struct {
	RunID int64  `json:"schedule_id"`
	Date  string `json:"date"`
}

// VariantType describes how a run deviates from its plan on one day
type VariantType string

const (
	VariantOnTime     VariantType = "ontime"
	VariantDelayed    VariantType = "delayed"
	VariantSuppressed VariantType = "suppressed"
)

// ParseVariantType normalises the spellings found in the original data
// ("suppression", "retard", ...). Unknown values are kept lowercased.
func ParseVariantType(s string) VariantType {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "ontime", "on_time", "a_l_heure", "":
		return VariantOnTime
	case "delayed", "delay", "retard":
		return VariantDelayed
	case "suppressed", "suppression", "cancelled", "canceled":
		return VariantSuppressed
	default:
		return VariantType(v)
	}
}

// Variant is a per-date perturbation of a run.
type Variant struct {
	RunID        int64       `json:"schedule_id,omitempty"`
	Date         string      `json:"date,omitempty"`
	Type         VariantType `json:"type"`
	DelayMinutes int         `json:"delay_minutes,omitempty"`
	Cause        string      `json:"cause,omitempty"`
}

func (v *Variant) Suppressed() bool {
	return v != nil && v.Type == VariantSuppressed
}

// PlatformAssignment is the platform a run uses at a station. It is not
// scoped to a date.
type PlatformAssignment struct {
	RunID     int64  `json:"schedule_id"`
	StationID int64  `json:"station_id"`
	Platform  string `json:"platform"`
}

type stopJSON struct {
	Order         int    `json:"stop_order"`
	StationID     int64  `json:"station_id"`
	StationName   string `json:"station_name"`
	ArrivalTime   string `json:"arrival_time"`
	DepartureTime string `json:"departure_time"`
}

// ParseStopsJSON decodes a run's embedded stop list. Callers treat an error
// as "no intermediate stops" rather than failing the whole run.
func ParseStopsJSON(runID int64, raw string) ([]Stop, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var decoded []stopJSON
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decode stops of run %d: %w", runID, err)
	}

	stops := make([]Stop, 0, len(decoded))
	for _, d := range decoded {
		arr, err := ParseOptionalClock(d.ArrivalTime)
		if err != nil {
			return nil, fmt.Errorf("stop %d of run %d: %w", d.Order, runID, err)
		}
		dep, err := ParseOptionalClock(d.DepartureTime)
		if err != nil {
			return nil, fmt.Errorf("stop %d of run %d: %w", d.Order, runID, err)
		}
		stops = append(stops, Stop{
			RunID:         runID,
			Order:         d.Order,
			StationID:     d.StationID,
			StationName:   d.StationName,
			ArrivalTime:   arr,
			DepartureTime: dep,
		})
	}

	SortStops(stops)
	return stops, nil
}

// SortStops orders stops by stop order.
func SortStops(stops []Stop) {
	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].Order < stops[j].Order
	})
}
