package domain

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSearchLimit caps station search results when no limit is given.
const DefaultSearchLimit = 50

// NormalizeSlug lowercases s, replaces spaces with dashes and removes
// double quotes.
func NormalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	return strings.ReplaceAll(s, `"`, "")
}

// Fold lowercases s and strips diacritics so "Dijon-Ville" and "dijon ville"
// compare on letters only.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

type matchRank int

const (
	rankExact matchRank = iota
	rankPrefix
	rankSubstring
	rankNone
)

func rankStation(st *Station, q, qSlug string) matchRank {
	name := Fold(st.Name)
	switch {
	case name == q:
		return rankExact
	case strings.HasPrefix(name, q):
		return rankPrefix
	case strings.Contains(name, q):
		return rankSubstring
	}
	slug := st.Slug
	if slug == "" {
		slug = st.Name
	}
	if qSlug != "" && strings.Contains(Fold(NormalizeSlug(slug)), qSlug) {
		return rankSubstring
	}
	return rankNone
}

// RankStations filters and orders stations for a free-text query: exact name
// matches first, then name prefixes, then substrings of the name or slug,
// each group alphabetical. An empty query returns every station
// alphabetically. limit <= 0 means DefaultSearchLimit.
func RankStations(stations []Station, query string, limit int) []Station {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	q := Fold(query)
	qSlug := Fold(NormalizeSlug(query))

	type ranked struct {
		station Station
		rank    matchRank
		key     string
	}
	matches := make([]ranked, 0, len(stations))
	for _, st := range stations {
		r := rankExact
		if q != "" {
			r = rankStation(&st, q, qSlug)
		}
		if r == rankNone {
			continue
		}
		matches = append(matches, ranked{station: st, rank: r, key: Fold(st.Name)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		if matches[i].key != matches[j].key {
			return matches[i].key < matches[j].key
		}
		return matches[i].station.ID < matches[j].station.ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	result := make([]Station, len(matches))
	for i, m := range matches {
		result[i] = m.station
	}
	return result
}
