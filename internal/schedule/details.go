package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ferrovia/internal/domain"
)

// StopDetail is a stop of a train with its platform and dwell time.
type StopDetail struct {
	domain.Stop
	Platform     string `json:"platform,omitempty"`
	DwellMinutes *int   `json:"dwell_minutes,omitempty"`
}

// TrainDetails is the run a train number operates on a given day.
type TrainDetails struct {
	Run               domain.Run      `json:"run"`
	Date              string          `json:"date"`
	Variant           *domain.Variant `json:"variant,omitempty"`
	DeparturePlatform string          `json:"departure_platform,omitempty"`
	ArrivalPlatform   string          `json:"arrival_platform,omitempty"`
	Stops             []StopDetail    `json:"stops"`
}

// TrainDetails finds the run operating trainNumber on date: the lowest run
// id that runs that day and is not suppressed.
func (r *Resolver) TrainDetails(ctx context.Context, trainNumber string, date time.Time) (*TrainDetails, error) {
	day := domain.ServiceDay(date, r.loc)
	mask := domain.WeekdayMask(day)

	runs, err := r.store.RunsByTrainNumber(ctx, trainNumber)
	if err != nil {
		return nil, sourceErr("runs by train number", err)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })

	for i := range runs {
		run := &runs[i]
		running, err := IsRunning(ctx, r.store, run, day, mask)
		if err != nil {
			return nil, err
		}
		if !running {
			continue
		}
		variant, err := r.store.Variant(ctx, run.ID, day)
		if err != nil {
			return nil, sourceErr("variant", err)
		}
		if variant.Suppressed() {
			continue
		}
		return r.trainDetails(ctx, run, variant, day)
	}

	return nil, fmt.Errorf("train %s on %s: %w", trainNumber, domain.DateKey(day), domain.ErrNotFound)
}

func (r *Resolver) trainDetails(ctx context.Context, run *domain.Run, variant *domain.Variant, day time.Time) (*TrainDetails, error) {
	stops, err := r.store.StopsForRun(ctx, run.ID)
	if err != nil {
		return nil, sourceErr("stops for run", err)
	}

	details := &TrainDetails{
		Run:     *run,
		Date:    domain.DateKey(day),
		Variant: variant,
		Stops:   make([]StopDetail, 0, len(stops)),
	}
	details.Run.Stops = nil

	if details.DeparturePlatform, _, err = r.store.Platform(ctx, run.ID, run.DepartureStationID); err != nil {
		return nil, sourceErr("platform", err)
	}
	if details.ArrivalPlatform, _, err = r.store.Platform(ctx, run.ID, run.ArrivalStationID); err != nil {
		return nil, sourceErr("platform", err)
	}

	for _, s := range stops {
		sd := StopDetail{Stop: s}
		if sd.Platform, _, err = r.store.Platform(ctx, run.ID, s.StationID); err != nil {
			return nil, sourceErr("platform", err)
		}
		if s.ArrivalTime != nil && s.DepartureTime != nil {
			dwell := max(0, int(*s.DepartureTime-*s.ArrivalTime))
			sd.DwellMinutes = &dwell
		}
		details.Stops = append(details.Stops, sd)
	}
	return details, nil
}
