package schedule

import (
	"sort"

	"ferrovia/internal/domain"
)

// Dedup keeps the first occurrence for each (run, role) pair.
func Dedup(occs []domain.Occurrence) []domain.Occurrence {
	seen := make(map[domain.OccurrenceKey]struct{}, len(occs))
	out := make([]domain.Occurrence, 0, len(occs))
	for _, o := range occs {
		k := o.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}

// SortByTime orders occurrences by their effective time for the queried
// direction, then by run id.
func SortByTime(occs []domain.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		ti, tj := occs[i].Time(), occs[j].Time()
		if ti != tj {
			return ti < tj
		}
		return occs[i].RunID < occs[j].RunID
	})
}
