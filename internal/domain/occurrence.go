package domain

import (
	"fmt"
	"strings"
)

// Role is how a run visits the queried station
type Role string

const (
	RoleOrigin       Role = "origin"
	RoleIntermediate Role = "intermediate"
	RoleTerminus     Role = "terminus"
)

// Direction selects departures or arrivals at a station
type Direction string

const (
	Departures Direction = "departures"
	Arrivals   Direction = "arrivals"
)

// ParseDirection accepts "departures"/"arrivals" and their short forms.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "departures", "departure", "dep", "d":
		return Departures, nil
	case "arrivals", "arrival", "arr", "a":
		return Arrivals, nil
	default:
		return "", fmt.Errorf("invalid direction %q", s)
	}
}

// Occurrence is a run realized on one date with a role at one station.
type Occurrence struct {
	RunID                int64     `json:"id"`
	TrainNumber          string    `json:"train_number"`
	TrainType            string    `json:"train_type,omitempty"`
	RollingStock         string    `json:"rolling_stock,omitempty"`
	Date                 string    `json:"date"`
	StationID            int64     `json:"station_id"`
	Role                 Role      `json:"stop_type"`
	Direction            Direction `json:"direction"`
	DepartureTime        Clock     `json:"departure_time"`
	ArrivalTime          Clock     `json:"arrival_time"`
	DepartureStationID   int64     `json:"departure_station_id"`
	ArrivalStationID     int64     `json:"arrival_station_id"`
	DepartureStationName string    `json:"departure_station,omitempty"`
	ArrivalStationName   string    `json:"arrival_station,omitempty"`
	DaysMask             uint8     `json:"days_mask"`
	Platform             string    `json:"platform,omitempty"`
	Variant              *Variant  `json:"variant,omitempty"`
}

// Time returns the effective time for the occurrence's direction.
func (o *Occurrence) Time() Clock {
	if o.Direction == Arrivals {
		return o.ArrivalTime
	}
	return o.DepartureTime
}

// Key identifies an occurrence for deduplication.
func (o *Occurrence) Key() OccurrenceKey {
	return OccurrenceKey{RunID: o.RunID, Role: o.Role}
}

// OccurrenceKey is the (run, role) deduplication key.
type OccurrenceKey struct {
	RunID int64
	Role  Role
}
