package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coversync/coversync-server/internal/domain"
)

func ids(entries []domain.LibraryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func testEntries() []domain.LibraryEntry {
	return []domain.LibraryEntry{
		{ID: "m1", Kind: domain.KindMovie, PrimaryTitle: "Alpha City", Year: 2019, FolderPath: "Alpha City (2019)", ContentSignature: "s1"},
		{ID: "m2", Kind: domain.KindMovie, PrimaryTitle: "Beta", Year: 2019, FolderPath: "Beta (2019)", ContentSignature: "s2"},
		{ID: "m3", Kind: domain.KindMovie, PrimaryTitle: "Gamma", FolderPath: "Gamma", ContentSignature: "s3"},
		{ID: "m4", Kind: domain.KindMovie, PrimaryTitle: "Gamma Extended", FolderPath: "Gamma Extended", ContentSignature: "s4"},
		{ID: "m5", Kind: domain.KindMovie, PrimaryTitle: "Die Brücke", AlternateTitles: []string{"The Bridge"}, Year: 1959, FolderPath: "Die Brücke (1959)"},
		{ID: "t1", Kind: domain.KindShow, PrimaryTitle: "Breaking Point", Year: 2008, FolderPath: "Breaking Point (2008)"},
		{ID: "t1s1", Kind: domain.KindSeason, PrimaryTitle: "Season 1", ParentID: "t1", Season: 1},
		{ID: "t1s0", Kind: domain.KindSeason, PrimaryTitle: "Specials", ParentID: "t1", Season: 0, FolderPath: "Breaking Point (2008)"},
		{ID: "t1e12", Kind: domain.KindEpisode, PrimaryTitle: "Pilot", ParentID: "t1", Season: 1, Episode: 2, FolderPath: "Breaking Point (2008)"},
		{ID: "c1", Kind: domain.KindCollection, PrimaryTitle: "Star Wars Collection", FolderPath: "Star Wars Collection"},
	}
}

func newTestSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot(testEntries(), time.Now())
	require.NoError(t, err)
	return snap
}

func TestNewSnapshot_DuplicateID(t *testing.T) {
	entries := append(testEntries(), domain.LibraryEntry{ID: "m1", Kind: domain.KindMovie, PrimaryTitle: "Other"})
	_, err := NewSnapshot(entries, time.Now())
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	snap := newTestSnapshot(t)

	tests := []struct {
		name  string
		title string
		year  int
		kind  domain.Kind
		want  []string
	}{
		{"exact movie", "Alpha City", 2019, domain.KindMovie, []string{"m1"}},
		{"case and punctuation", "alpha-city!", 2019, domain.KindMovie, []string{"m1"}},
		{"year mismatch", "Beta", 2020, domain.KindMovie, nil},
		{"year absent on reference", "Beta", 0, domain.KindMovie, []string{"m2"}},
		{"year absent on entry", "Gamma", 2001, domain.KindMovie, []string{"m3"}},
		{"alternate title", "The Bridge", 1959, domain.KindMovie, []string{"m5"}},
		{"diacritics folded", "Die Brucke", 1959, domain.KindMovie, []string{"m5"}},
		{"season resolves to show", "Breaking Point", 2008, domain.KindSeason, []string{"t1"}},
		{"movie reference finds show", "Breaking Point", 2008, domain.KindMovie, []string{"t1"}},
		{"episode ignores movies", "Alpha City", 2019, domain.KindEpisode, nil},
		{"collection", "Star Wars Collection", 0, domain.KindCollection, []string{"c1"}},
		{"seasons are not indexed by title", "Season 1", 0, domain.KindShow, nil},
		{"empty title", "  ", 0, domain.KindMovie, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := snap.Lookup(tt.title, tt.year, tt.kind)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSimilar(t *testing.T) {
	snap := newTestSnapshot(t)

	assert.Equal(t, []string{"m4"}, ids(snap.Similar("Gamma", 0, domain.KindCollection)))
	assert.Equal(t, []string{"m3"}, ids(snap.Similar("Gamma Extended", 0, domain.KindMovie)))
	assert.Equal(t, []string{"m1"}, ids(snap.Similar("Alpha Citi", 2019, domain.KindMovie)))
	assert.Empty(t, snap.Similar("Alpha City", 2019, domain.KindMovie))
	assert.Empty(t, snap.Similar("Bet", 2019, domain.KindMovie))
}

func TestChildren(t *testing.T) {
	snap := newTestSnapshot(t)

	season, ok := snap.Season("t1", 1)
	require.True(t, ok)
	assert.Equal(t, "t1s1", season.ID)

	specials, ok := snap.Season("t1", 0)
	require.True(t, ok)
	assert.Equal(t, "t1s0", specials.ID)

	_, ok = snap.Season("t1", 5)
	assert.False(t, ok)

	ep, ok := snap.Episode("t1", 1, 2)
	require.True(t, ok)
	assert.Equal(t, "t1e12", ep.ID)

	assert.Len(t, snap.Children("t1"), 3)
	assert.Equal(t, "Breaking Point (2008)", season.FolderPath)
}

func TestExpectedFoldersAndSignatures(t *testing.T) {
	snap := newTestSnapshot(t)

	assert.Equal(t, []string{
		"Alpha City (2019)",
		"Beta (2019)",
		"Breaking Point (2008)",
		"Die Brücke (1959)",
		"Gamma",
		"Gamma Extended",
		"Star Wars Collection",
	}, snap.ExpectedFolders())

	sig, ok := snap.Signature("m2")
	require.True(t, ok)
	assert.Equal(t, "s2", sig)

	assert.Len(t, snap.Summary(), snap.Len())
}
