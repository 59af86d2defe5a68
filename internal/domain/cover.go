package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies what a piece of artwork depicts or what a catalog entry is.
type Kind string

// Kinds shared by cover references and library entries.
const (
	KindMovie      Kind = "movie"
	KindShow       Kind = "show"
	KindSeason     Kind = "season"
	KindEpisode    Kind = "episode"
	KindCollection Kind = "collection"
	KindBackdrop   Kind = "backdrop"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMovie, KindShow, KindSeason, KindEpisode, KindCollection, KindBackdrop:
		return true
	default:
		return false
	}
}

// CoverReference is the parsed description of one dropped file.
// Year is 0 when absent. Season is meaningful for season and episode
// references (0 means specials), Episode only for episode references.
type CoverReference struct {
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Year       int    `json:"year,omitempty"`
	Season     int    `json:"season,omitempty"`
	Episode    int    `json:"episode,omitempty"`
	SourcePath string `json:"source_path"`
}

// HasYear reports whether the reference carries a release year.
func (r CoverReference) HasYear() bool {
	return r.Year > 0
}

// Key returns the registry key for the reference. Title normalization is the
// caller's concern; Key only lower-cases and joins.
func (r CoverReference) Key() string {
	parts := []string{string(r.Kind), strings.ToLower(strings.TrimSpace(r.Title)), strconv.Itoa(r.Year)}
	switch r.Kind {
	case KindSeason:
		parts = append(parts, fmt.Sprintf("s%02d", r.Season))
	case KindEpisode:
		parts = append(parts, fmt.Sprintf("s%02de%02d", r.Season, r.Episode))
	}
	return strings.Join(parts, "|")
}

// Label renders the reference the way it is named on disk, e.g. "Alpha City (2019)".
func (r CoverReference) Label() string {
	if r.Year > 0 {
		return fmt.Sprintf("%s (%d)", r.Title, r.Year)
	}
	return r.Title
}

// String implements fmt.Stringer.
func (r CoverReference) String() string {
	switch r.Kind {
	case KindSeason:
		return fmt.Sprintf("%s season %d", r.Label(), r.Season)
	case KindEpisode:
		return fmt.Sprintf("%s S%02dE%02d", r.Label(), r.Season, r.Episode)
	default:
		return fmt.Sprintf("%s [%s]", r.Label(), r.Kind)
	}
}
