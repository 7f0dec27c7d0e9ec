package schedule

import (
	"context"
	"time"

	"ferrovia/internal/domain"
)

// IsRunning decides whether run operates on date. An exclusion override
// wins over an inclusion override, and both win over the weekly mask.
// Variants are not considered here.
func IsRunning(ctx context.Context, src Source, run *domain.Run, date time.Time, mask uint8) (bool, error) {
	excluded, err := src.IsExcluded(ctx, run.ID, date)
	if err != nil {
		return false, sourceErr("is excluded", err)
	}
	if excluded {
		return false, nil
	}

	included, err := src.IsIncluded(ctx, run.ID, date)
	if err != nil {
		return false, sourceErr("is included", err)
	}
	if included {
		return true, nil
	}

	return run.DaysMask&mask != 0, nil
}
