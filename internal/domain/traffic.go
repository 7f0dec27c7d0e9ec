package domain

import (
	"sort"
	"time"
)

// TrafficInfo is a published traffic notice (works, strikes, disruptions).
type TrafficInfo struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Region    string    `json:"region,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SortTrafficInfo orders notices most recently updated first, then by id
// descending.
func SortTrafficInfo(items []TrafficInfo) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
