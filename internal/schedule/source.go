package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ferrovia/internal/domain"
)

// Source is the data a Resolver reads. Date arguments are calendar days in
// the service time zone; implementations key them with domain.DateKey.
type Source interface {
	RunsByDeparture(ctx context.Context, stationID int64) ([]domain.Run, error)
	RunsByArrival(ctx context.Context, stationID int64) ([]domain.Run, error)
	// StopsAtStation excludes runs that have stationID as an endpoint.
	StopsAtStation(ctx context.Context, stationID int64) ([]domain.RunStop, error)
	Variant(ctx context.Context, runID int64, date time.Time) (*domain.Variant, error)
	IsExcluded(ctx context.Context, runID int64, date time.Time) (bool, error)
	IsIncluded(ctx context.Context, runID int64, date time.Time) (bool, error)
	Platform(ctx context.Context, runID, stationID int64) (string, bool, error)
}

// Catalog is the reference data used around the resolver: station lookup,
// station search and train lookups.
type Catalog interface {
	Station(ctx context.Context, id int64) (*domain.Station, error)
	SearchStations(ctx context.Context, query string, limit int) ([]domain.Station, error)
	RunsByTrainNumber(ctx context.Context, trainNumber string) ([]domain.Run, error)
	StopsForRun(ctx context.Context, runID int64) ([]domain.Stop, error)
}

// Store is a full data provider.
type Store interface {
	Source
	Catalog
}

// ErrSource marks failures of the data provider, as opposed to an empty
// schedule.
var ErrSource = errors.New("schedule source failure")

// SourceError wraps a data-provider failure with the lookup that failed.
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Is(target error) bool { return target == ErrSource }

func sourceErr(op string, err error) error {
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	return &SourceError{Op: op, Err: err}
}
