// Package matcher decides, for one cover reference and one catalog snapshot,
// whether the reference is Matched, Ambiguous or Unmatched.
package matcher

import (
	"cmp"
	"slices"
	"strings"

	"github.com/coversync/coversync-server/internal/catalog"
	"github.com/coversync/coversync-server/internal/domain"
	"github.com/coversync/coversync-server/internal/normalize"
)

// Tie-break keys.
const (
	TieYear = "year"
	TieKind = "kind"
	TieID   = "id"
)

// DefaultTieBreak orders ambiguous candidates by exact year, exact kind, then id.
var DefaultTieBreak = []string{TieYear, TieKind, TieID}

// Options configures a Matcher.
type Options struct {
	TieBreak    []string
	AutoResolve bool
}

// Matcher is stateless apart from its configuration; Match is a pure function
// of its arguments.
type Matcher struct {
	blacklist   *Blacklist
	tieBreak    []string
	autoResolve bool
}

// New creates a matcher. A nil blacklist blocks nothing.
func New(bl *Blacklist, opts Options) *Matcher {
	tb := opts.TieBreak
	if len(tb) == 0 {
		tb = DefaultTieBreak
	}
	if !slices.Contains(tb, TieID) {
		tb = append(slices.Clone(tb), TieID)
	}
	return &Matcher{blacklist: bl, tieBreak: tb, autoResolve: opts.AutoResolve}
}

// Blacklist returns the active blacklist.
func (m *Matcher) Blacklist() *Blacklist {
	return m.blacklist
}

// NeedsAlternates reports whether the primary title alone finds nothing, in
// which case alternate titles should be resolved before matching.
func (m *Matcher) NeedsAlternates(snap *catalog.Snapshot, ref domain.CoverReference) bool {
	if snap == nil || m.blacklist.BlocksTitle(ref.Title) {
		return false
	}
	return len(snap.Lookup(ref.Title, ref.Year, ref.Kind)) == 0
}

// Match runs the lookup for ref's title and every alternate and classifies the result.
func (m *Matcher) Match(snap *catalog.Snapshot, ref domain.CoverReference, alternates []string) domain.MatchResult {
	res := domain.MatchResult{Reference: ref, ResolvedTitles: alternates}

	if m.blacklist.BlocksTitle(ref.Title) {
		res.Reason = domain.ReasonBlacklisted
		return res
	}
	if snap == nil {
		res.Reason = domain.ReasonNoCandidates
		return res
	}

	exact, similar := m.titleCandidates(snap, ref, alternates)

	if ref.Kind == domain.KindSeason || ref.Kind == domain.KindEpisode {
		exact = children(snap, ref, exact)
		similar = children(snap, ref, similar)
	}

	exact, blockedExact := m.filter(exact)
	similar, blockedSimilar := m.filter(similar)

	switch {
	case len(exact) == 1 && len(similar) == 0:
		res.Outcome = domain.OutcomeMatched
		res.Entry = &exact[0]
	case len(exact)+len(similar) > 0:
		res.Outcome = domain.OutcomeAmbiguous
		res.Reason = domain.ReasonAmbiguous
		res.Candidates = m.order(ref, append(exact, similar...))
	case blockedExact || blockedSimilar:
		res.Reason = domain.ReasonBlacklisted
	default:
		res.Reason = domain.ReasonNoCandidates
	}
	return res
}

// Target returns the entry a placement should use: the matched entry, or,
// with auto-resolve on, the first ambiguous candidate when that candidate
// carries the reference title (or an alternate) exactly.
func (m *Matcher) Target(snap *catalog.Snapshot, res domain.MatchResult) *domain.LibraryEntry {
	switch res.Outcome {
	case domain.OutcomeMatched:
		return res.Entry
	case domain.OutcomeAmbiguous:
		if !m.autoResolve || len(res.Candidates) == 0 {
			return nil
		}
		first := res.Candidates[0]
		titled := first
		if first.ParentID != "" && snap != nil {
			if parent, ok := snap.Entry(first.ParentID); ok {
				titled = parent
			}
		}
		wanted := make(map[string]bool)
		for _, t := range append([]string{res.Reference.Title}, res.ResolvedTitles...) {
			wanted[normalize.Title(t)] = true
		}
		for _, t := range titled.Titles() {
			if wanted[normalize.Title(t)] {
				return &first
			}
		}
	}
	return nil
}

func (m *Matcher) titleCandidates(snap *catalog.Snapshot, ref domain.CoverReference, alternates []string) (exact, similar []domain.LibraryEntry) {
	seen := make(map[string]bool)
	for _, t := range append([]string{ref.Title}, alternates...) {
		for _, e := range snap.Lookup(t, ref.Year, ref.Kind) {
			if !seen[e.ID] {
				seen[e.ID] = true
				exact = append(exact, e)
			}
		}
	}
	for _, e := range snap.Similar(ref.Title, ref.Year, ref.Kind) {
		if !seen[e.ID] {
			seen[e.ID] = true
			similar = append(similar, e)
		}
	}
	return exact, similar
}

// children maps resolved shows to the season or episode the reference names.
// A show without that child in the catalog stands in for it; the slot is
// derived from the reference either way.
func children(snap *catalog.Snapshot, ref domain.CoverReference, shows []domain.LibraryEntry) []domain.LibraryEntry {
	out := make([]domain.LibraryEntry, 0, len(shows))
	for _, show := range shows {
		var (
			child domain.LibraryEntry
			ok    bool
		)
		if ref.Kind == domain.KindSeason {
			child, ok = snap.Season(show.ID, ref.Season)
		} else {
			child, ok = snap.Episode(show.ID, ref.Season, ref.Episode)
		}
		if ok {
			out = append(out, child)
		} else {
			out = append(out, show)
		}
	}
	return out
}

func (m *Matcher) filter(entries []domain.LibraryEntry) ([]domain.LibraryEntry, bool) {
	blocked := false
	out := entries[:0:0]
	for _, e := range entries {
		if m.blacklist.BlocksEntry(e) {
			blocked = true
			continue
		}
		out = append(out, e)
	}
	return out, blocked
}

// order sorts candidates by the configured tie-break keys.
func (m *Matcher) order(ref domain.CoverReference, cands []domain.LibraryEntry) []domain.LibraryEntry {
	want := expectedKind(ref.Kind)
	rank := func(ok bool) int {
		if ok {
			return 0
		}
		return 1
	}
	slices.SortStableFunc(cands, func(a, b domain.LibraryEntry) int {
		for _, key := range m.tieBreak {
			var c int
			switch key {
			case TieYear:
				c = cmp.Compare(rank(ref.HasYear() && a.Year == ref.Year), rank(ref.HasYear() && b.Year == ref.Year))
			case TieKind:
				c = cmp.Compare(rank(a.Kind == want), rank(b.Kind == want))
			case TieID:
				c = strings.Compare(a.ID, b.ID)
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return cands
}

func expectedKind(k domain.Kind) domain.Kind {
	if k == domain.KindBackdrop {
		return domain.KindMovie
	}
	return k
}
