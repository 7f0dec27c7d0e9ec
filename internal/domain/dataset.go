package domain

// Dataset is the full content of the schedule database.
type Dataset struct {
	Stations   []Station            `json:"stations"`
	Runs       []Run                `json:"runs"`
	Inclusions []DateOverride       `json:"inclusions,omitempty"`
	Exclusions []DateOverride       `json:"exclusions,omitempty"`
	Variants   []Variant            `json:"variants,omitempty"`
	Platforms  []PlatformAssignment `json:"platforms,omitempty"`
	Traffic    []TrafficInfo        `json:"traffic,omitempty"`
}

// DatasetStats summarises a dataset for logging.
type DatasetStats struct {
	Stations   int `json:"stations"`
	Runs       int `json:"runs"`
	Stops      int `json:"stops"`
	Inclusions int `json:"inclusions"`
	Exclusions int `json:"exclusions"`
	Variants   int `json:"variants"`
	Platforms  int `json:"platforms"`
	Traffic    int `json:"traffic"`
}

func (d *Dataset) Stats() DatasetStats {
	stops := 0
	for _, r := range d.Runs {
		stops += len(r.Stops)
	}
	return DatasetStats{
		Stations:   len(d.Stations),
		Runs:       len(d.Runs),
		Stops:      stops,
		Inclusions: len(d.Inclusions),
		Exclusions: len(d.Exclusions),
		Variants:   len(d.Variants),
		Platforms:  len(d.Platforms),
		Traffic:    len(d.Traffic),
	}
}
