package domain

import (
	"encoding/json"
	"strings"
)

// StationClass governs how early a platform may be shown at a station
type StationClass int

const (
	StationClassUnknown StationClass = iota
	StationClassCity
	StationClassRegional
)

func (c StationClass) String() string {
	switch c {
	case StationClassCity:
		return "city"
	case StationClassRegional:
		return "regional"
	default:
		return "unknown"
	}
}

// ParseStationClass accepts both the English names and the legacy
// "ville" / "urbaine" values stored by the original database.
func ParseStationClass(s string) StationClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "city", "citystation", "ville":
		return StationClassCity
	case "regional", "regionalstation", "urbaine":
		return StationClassRegional
	default:
		return StationClassUnknown
	}
}

func (c StationClass) MarshalJSON() ([]byte, error) {
	if c == StationClassUnknown {
		return []byte("null"), nil
	}
	return json.Marshal(c.String())
}

func (c *StationClass) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*c = StationClassUnknown
		return nil
	}
	*c = ParseStationClass(*s)
	return nil
}

// Station represents a railway station
type Station struct {
	ID     int64        `json:"id"`
	Name   string       `json:"name"`
	Region string       `json:"region,omitempty"`
	Slug   string       `json:"slug,omitempty"`
	Class  StationClass `json:"station_type"`
}
