package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coversync/coversync-server/internal/domain"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "coversync-store-*")
	require.NoError(t, err)

	s, err := New(filepath.Join(tmpDir, "test.db"), nil)
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
		_ = os.RemoveAll(tmpDir)
	}
	return s, cleanup
}

func TestUnmatched_RecordKeepsFirstSeen(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	ref := domain.CoverReference{Kind: domain.KindMovie, Title: "Beta", Year: 2020, SourcePath: "Beta (2020)/poster.jpg"}
	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	_, err := s.RecordUnmatched(ctx, "movie|beta|2020", ref, domain.ReasonNoCandidates, nil, first)
	require.NoError(t, err)
	got, err := s.RecordUnmatched(ctx, "movie|beta|2020", ref, domain.ReasonNoCandidates, []string{"m1"}, second)
	require.NoError(t, err)

	assert.Equal(t, 2, got.Attempts)
	assert.True(t, got.FirstSeen.Equal(first))
	assert.True(t, got.LastSeen.Equal(second))
	assert.Equal(t, []string{"m1"}, got.Candidates)

	list, err := s.ListUnmatched(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Beta (2020)/poster.jpg", list[0].SourcePath)

	require.NoError(t, s.ClearUnmatched(ctx, "movie|beta|2020"))
	require.NoError(t, s.ClearUnmatched(ctx, "movie|beta|2020"))

	list, err = s.ListUnmatched(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUnmatched_Prune(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	for _, k := range []string{"a", "b", "c"} {
		_, err := s.RecordUnmatched(ctx, k, domain.CoverReference{Title: k}, domain.ReasonNoCandidates, nil, now)
		require.NoError(t, err)
	}

	removed, err := s.PruneUnmatched(ctx, map[string]bool{"b": true})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	list, err := s.ListUnmatched(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Key)
}

func TestHistory_AppendOnlyAndOrdered(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := &domain.HistoryRecord{ID: "hist-2", EntryID: "m1", Slot: "poster.jpg", ReplacedAt: base, ArchivedPath: "replaced/m1/a/poster.jpg"}
	newer := &domain.HistoryRecord{ID: "hist-1", EntryID: "m1", Slot: "poster.jpg", ReplacedAt: base.Add(time.Minute), ArchivedPath: "replaced/m1/b/poster.jpg"}
	other := &domain.HistoryRecord{ID: "hist-3", EntryID: "m10", Slot: "poster.jpg", ReplacedAt: base}

	require.NoError(t, s.AppendHistory(ctx, newer))
	require.NoError(t, s.AppendHistory(ctx, older))
	require.NoError(t, s.AppendHistory(ctx, other))

	assert.ErrorIs(t, s.AppendHistory(ctx, older), ErrAlreadyExists)
	assert.Error(t, s.AppendHistory(ctx, &domain.HistoryRecord{ID: "x"}))

	recs, err := s.ListHistory(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "hist-2", recs[0].ID)
	assert.Equal(t, "hist-1", recs[1].ID)

	none, err := s.ListHistory(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTitles_CacheAndExpiry(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	miss, err := s.GetCachedTitles(ctx, "alpha city", 2019, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, miss)

	titles := []domain.AltTitle{{Language: "de-DE", Title: "Alpha Stadt"}}
	require.NoError(t, s.SetCachedTitles(ctx, "alpha city", 2019, titles))

	hit, err := s.GetCachedTitles(ctx, "alpha city", 2019, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, titles, hit.Titles)

	// Other year is a different key.
	miss, err = s.GetCachedTitles(ctx, "alpha city", 2020, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, miss)

	stale := CachedTitles{Titles: titles, FetchedAt: time.Now().Add(-8 * 24 * time.Hour)}
	require.NoError(t, s.set(titlesKey("old", 2001), stale))

	expired, err := s.GetCachedTitles(ctx, "old", 2001, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestTitles_EmptyResultIsCached(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.SetCachedTitles(ctx, "obscure", 0, nil))

	hit, err := s.GetCachedTitles(ctx, "obscure", 0, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Empty(t, hit.Titles)
}

func TestSignatures_Replace(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	empty, err := s.LoadSignatures(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.ReplaceSignatures(ctx, map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, s.ReplaceSignatures(ctx, map[string]string{"b": "3", "c": "4"}))

	got, err := s.LoadSignatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "3", "c": "4"}, got)

	require.NoError(t, s.ReplaceSignatures(ctx, map[string]string{}))
	got, err = s.LoadSignatures(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLastReport(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	none, err := s.LastReport(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	r := &domain.Report{PassID: "p1", Matched: 2, MissingFolders: []string{"Beta (2019)"}}
	require.NoError(t, s.SaveLastReport(ctx, r))

	got, err := s.LastReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.PassID)
	assert.Equal(t, []string{"Beta (2019)"}, got.MissingFolders)
}

func TestEntity_CreateGetExists(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	e := &domain.UnmatchedEntry{Key: "k", Reason: domain.ReasonBlacklisted}
	require.NoError(t, s.Unmatched.Create(ctx, "k", e))
	assert.ErrorIs(t, s.Unmatched.Create(ctx, "k", e), ErrAlreadyExists)

	ok, err := s.Unmatched.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Unmatched.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonBlacklisted, got.Reason)

	_, err = s.Unmatched.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntity_ContextCancelled(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Unmatched.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
