package catalog

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/coversync/coversync-server/internal/domain"
	"github.com/coversync/coversync-server/internal/normalize"
)

// minFuzzyLen keeps edit-distance matching away from very short titles,
// where a single edit changes the meaning ("up" / "us").
const minFuzzyLen = 5

// Snapshot is an immutable view of the catalog. All methods are safe for
// concurrent use.
type Snapshot struct {
	entries   []domain.LibraryEntry
	byID      map[string]int
	byTitle   map[string][]int
	titleKeys []string
	children  map[string][]int
	fetchedAt time.Time
}

// NewSnapshot indexes entries. Entry ids must be unique.
func NewSnapshot(entries []domain.LibraryEntry, fetchedAt time.Time) (*Snapshot, error) {
	s := &Snapshot{
		entries:   slices.Clone(entries),
		byID:      make(map[string]int, len(entries)),
		byTitle:   make(map[string][]int),
		children:  make(map[string][]int),
		fetchedAt: fetchedAt,
	}
	slices.SortFunc(s.entries, func(a, b domain.LibraryEntry) int {
		return strings.Compare(a.ID, b.ID)
	})

	for i, e := range s.entries {
		if _, dup := s.byID[e.ID]; dup {
			return nil, fmt.Errorf("duplicate entry id %q", e.ID)
		}
		s.byID[e.ID] = i

		if e.ParentID != "" {
			s.children[e.ParentID] = append(s.children[e.ParentID], i)
		}
		if !e.Titled() {
			continue
		}

		seen := make(map[string]bool)
		for _, t := range e.Titles() {
			key := normalize.Title(t)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := s.byTitle[key]; !ok {
				s.titleKeys = append(s.titleKeys, key)
			}
			s.byTitle[key] = append(s.byTitle[key], i)
		}
	}
	slices.Sort(s.titleKeys)

	// Seasons and episodes share their show's folder.
	for i, e := range s.entries {
		if e.FolderPath != "" || e.ParentID == "" {
			continue
		}
		if p, ok := s.byID[e.ParentID]; ok {
			s.entries[i].FolderPath = s.entries[p].FolderPath
		}
	}
	return s, nil
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// FetchedAt returns when the snapshot's data was fetched.
func (s *Snapshot) FetchedAt() time.Time {
	return s.fetchedAt
}

// Entries returns a copy of all entries ordered by id.
func (s *Snapshot) Entries() []domain.LibraryEntry {
	return slices.Clone(s.entries)
}

// Entry returns the entry with the given id.
func (s *Snapshot) Entry(id string) (domain.LibraryEntry, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.LibraryEntry{}, false
	}
	return s.entries[i], true
}

// Signature returns the content signature of an entry.
func (s *Snapshot) Signature(id string) (string, bool) {
	e, ok := s.Entry(id)
	return e.ContentSignature, ok
}

// Summary returns the (id, signature) pairs of every entry.
func (s *Snapshot) Summary() []domain.Signature {
	out := make([]domain.Signature, len(s.entries))
	for i, e := range s.entries {
		out[i] = domain.Signature{ID: e.ID, Signature: e.ContentSignature}
	}
	return out
}

// Children returns the entries whose parent is parentID.
func (s *Snapshot) Children(parentID string) []domain.LibraryEntry {
	idx := s.children[parentID]
	out := make([]domain.LibraryEntry, len(idx))
	for i, j := range idx {
		out[i] = s.entries[j]
	}
	return out
}

// Season returns the season n of a show.
func (s *Snapshot) Season(showID string, n int) (domain.LibraryEntry, bool) {
	for _, j := range s.children[showID] {
		if e := s.entries[j]; e.Kind == domain.KindSeason && e.Season == n {
			return e, true
		}
	}
	return domain.LibraryEntry{}, false
}

// Episode returns episode e of season n of a show.
func (s *Snapshot) Episode(showID string, season, episode int) (domain.LibraryEntry, bool) {
	for _, j := range s.children[showID] {
		if e := s.entries[j]; e.Kind == domain.KindEpisode && e.Season == season && e.Episode == episode {
			return e, true
		}
	}
	return domain.LibraryEntry{}, false
}

// ExpectedFolders returns the sorted artwork folder names of every titled entry.
func (s *Snapshot) ExpectedFolders() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.entries {
		if !e.Titled() || e.FolderPath == "" || seen[e.FolderPath] {
			continue
		}
		seen[e.FolderPath] = true
		out = append(out, e.FolderPath)
	}
	slices.Sort(out)
	return out
}

// CompatibleKinds returns the entry kinds a reference of kind k may resolve to
// by title. Seasons and episodes resolve to their show first.
func CompatibleKinds(k domain.Kind) []domain.Kind {
	switch k {
	case domain.KindMovie:
		return []domain.Kind{domain.KindMovie, domain.KindShow}
	case domain.KindBackdrop:
		return []domain.Kind{domain.KindMovie, domain.KindShow, domain.KindCollection}
	case domain.KindShow, domain.KindSeason, domain.KindEpisode:
		return []domain.Kind{domain.KindShow}
	case domain.KindCollection:
		return []domain.Kind{domain.KindCollection, domain.KindMovie, domain.KindShow}
	default:
		return nil
	}
}

// yearCompatible excludes an entry only when both years are known and differ.
func yearCompatible(refYear, entryYear int) bool {
	return refYear == 0 || entryYear == 0 || refYear == entryYear
}

func (s *Snapshot) accept(i int, year int, kinds []domain.Kind, seen map[string]bool) bool {
	e := s.entries[i]
	if seen[e.ID] || !slices.Contains(kinds, e.Kind) || !yearCompatible(year, e.Year) {
		return false
	}
	seen[e.ID] = true
	return true
}

// Lookup returns entries whose normalized primary or alternate title equals
// the normalized title, filtered by kind compatibility and year. Results are
// ordered by id.
func (s *Snapshot) Lookup(title string, year int, kind domain.Kind) []domain.LibraryEntry {
	key := normalize.Title(title)
	if key == "" {
		return nil
	}
	kinds := CompatibleKinds(kind)
	seen := make(map[string]bool)
	var out []domain.LibraryEntry
	for _, i := range s.byTitle[key] {
		if s.accept(i, year, kinds, seen) {
			out = append(out, s.entries[i])
		}
	}
	return out
}

// Similar returns overlap candidates that are not exact matches: titles that
// extend the normalized title by whole words ("gamma" -> "gamma extended"),
// titles it extends, and titles within one edit. These can only ever make a
// result ambiguous, never matched.
func (s *Snapshot) Similar(title string, year int, kind domain.Kind) []domain.LibraryEntry {
	key := normalize.Title(title)
	if key == "" {
		return nil
	}
	kinds := CompatibleKinds(kind)
	seen := make(map[string]bool)
	for _, i := range s.byTitle[key] {
		seen[s.entries[i].ID] = true
	}

	var out []domain.LibraryEntry
	for _, cand := range s.titleKeys {
		if cand == key || !overlaps(key, cand) {
			continue
		}
		for _, i := range s.byTitle[cand] {
			if s.accept(i, year, kinds, seen) {
				out = append(out, s.entries[i])
			}
		}
	}
	slices.SortFunc(out, func(a, b domain.LibraryEntry) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func overlaps(a, b string) bool {
	if normalize.HasWordPrefix(a, b) || normalize.HasWordPrefix(b, a) {
		return true
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la < minFuzzyLen || lb < minFuzzyLen || la-lb > 1 || lb-la > 1 {
		return false
	}
	return fuzzy.LevenshteinDistance(a, b) <= 1
}
