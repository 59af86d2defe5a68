package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/coversync/coversync-server/internal/domain"
)

// RecordUnmatched upserts a registry entry. FirstSeen is kept from the
// existing record; Attempts counts passes that failed to match the key.
func (s *Store) RecordUnmatched(ctx context.Context, key string, ref domain.CoverReference, reason string, candidates []string, now time.Time) (*domain.UnmatchedEntry, error) {
	return s.Unmatched.Upsert(ctx, key, func(cur *domain.UnmatchedEntry) *domain.UnmatchedEntry {
		if cur == nil {
			cur = &domain.UnmatchedEntry{Key: key, FirstSeen: now}
		}
		cur.Reference = ref
		cur.SourcePath = ref.SourcePath
		cur.Reason = reason
		cur.Candidates = candidates
		cur.LastSeen = now
		cur.Attempts++
		return cur
	})
}

// ClearUnmatched removes a registry entry once its reference matched.
func (s *Store) ClearUnmatched(ctx context.Context, key string) error {
	return s.Unmatched.Delete(ctx, key)
}

// ListUnmatched returns registry entries sorted by key.
func (s *Store) ListUnmatched(ctx context.Context) ([]domain.UnmatchedEntry, error) {
	entries, err := s.Unmatched.Collect(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b domain.UnmatchedEntry) int {
		return strings.Compare(a.Key, b.Key)
	})
	return entries, nil
}

// PruneUnmatched drops registry entries whose key is not in keep. Used after a
// pass to forget references whose source file is gone.
func (s *Store) PruneUnmatched(ctx context.Context, keep map[string]bool) (int, error) {
	entries, err := s.Unmatched.Collect(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if keep[e.Key] {
			continue
		}
		if err := s.Unmatched.Delete(ctx, e.Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
