package schedule

import (
	"time"

	"ferrovia/internal/domain"
)

const (
	cityPlatformWindow     = 30 * time.Minute
	regionalPlatformWindow = 12 * time.Hour
)

// PlatformWindow is how long before departure a platform may be shown.
// Unknown stations use the city window.
func PlatformWindow(class domain.StationClass) time.Duration {
	if class == domain.StationClassRegional {
		return regionalPlatformWindow
	}
	return cityPlatformWindow
}

// PlatformVisible reports whether platform may be displayed at now for a
// train scheduled at the given instant. A zero scheduled instant is unknown.
func PlatformVisible(class domain.StationClass, platform string, scheduled, now time.Time) bool {
	if platform == "" || scheduled.IsZero() {
		return false
	}
	opens := scheduled.Add(-PlatformWindow(class))
	return !now.Before(opens) && !now.After(scheduled)
}

// ApplyPlatformVisibility sets PlatformVisible on every occurrence.
func ApplyPlatformVisibility(occs []DatedOccurrence, class domain.StationClass, now time.Time) {
	for i := range occs {
		occs[i].PlatformVisible = PlatformVisible(class, occs[i].Platform, occs[i].At, now)
	}
}
