package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoverReference_Key(t *testing.T) {
	tests := []struct {
		name string
		ref  CoverReference
		want string
	}{
		{"movie", CoverReference{Kind: KindMovie, Title: "Alpha City", Year: 2019}, "movie|alpha city|2019"},
		{"collection without year", CoverReference{Kind: KindCollection, Title: " Gamma "}, "collection|gamma|0"},
		{"season", CoverReference{Kind: KindSeason, Title: "Delta", Year: 2010, Season: 2}, "season|delta|2010|s02"},
		{"specials", CoverReference{Kind: KindSeason, Title: "Delta", Year: 2010}, "season|delta|2010|s00"},
		{"episode", CoverReference{Kind: KindEpisode, Title: "Delta", Year: 2010, Season: 1, Episode: 12}, "episode|delta|2010|s01e12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ref.Key())
		})
	}
}

func TestCoverReference_KeyIgnoresSourcePath(t *testing.T) {
	a := CoverReference{Kind: KindMovie, Title: "Beta", Year: 2020, SourcePath: "/data/pending/Beta (2020)/poster.jpg"}
	b := a
	b.SourcePath = "/data/no-match/Beta (2020)/poster.jpg"
	assert.Equal(t, a.Key(), b.Key())
}

func TestCoverReference_LabelAndString(t *testing.T) {
	movie := CoverReference{Kind: KindMovie, Title: "Alpha City", Year: 2019}
	assert.Equal(t, "Alpha City (2019)", movie.Label())
	assert.Equal(t, "Alpha City (2019) [movie]", movie.String())
	assert.True(t, movie.HasYear())

	ep := CoverReference{Kind: KindEpisode, Title: "Delta", Year: 2010, Season: 1, Episode: 2}
	assert.Equal(t, "Delta (2010) S01E02", ep.String())

	coll := CoverReference{Kind: KindCollection, Title: "Gamma"}
	assert.Equal(t, "Gamma", coll.Label())
	assert.False(t, coll.HasYear())
}

func TestKind_Valid(t *testing.T) {
	assert.True(t, KindBackdrop.Valid())
	assert.False(t, Kind("poster").Valid())
}

func TestLibraryEntry_Helpers(t *testing.T) {
	e := LibraryEntry{ID: "m1", Kind: KindMovie, PrimaryTitle: "Alpha City", AlternateTitles: []string{"Alphastadt"}}
	assert.Equal(t, []string{"Alpha City", "Alphastadt"}, e.Titles())
	assert.True(t, e.Titled())
	assert.False(t, LibraryEntry{Kind: KindSeason}.Titled())

	assert.Equal(t, "Alpha City (2019)", DefaultFolder("Alpha City", 2019, KindMovie))
	assert.Equal(t, "Gamma", DefaultFolder("Gamma", 2001, KindCollection))
	assert.Equal(t, "Zeta", DefaultFolder("Zeta", 0, KindShow))
}

func TestMatchResult_Preferred(t *testing.T) {
	entry := &LibraryEntry{ID: "m1"}
	assert.Equal(t, entry, MatchResult{Outcome: OutcomeMatched, Entry: entry}.Preferred())

	amb := MatchResult{Outcome: OutcomeAmbiguous, Candidates: []LibraryEntry{{ID: "g1"}, {ID: "g2"}}}
	assert.Equal(t, "g1", amb.Preferred().ID)

	assert.Nil(t, MatchResult{Outcome: OutcomeAmbiguous}.Preferred())
	assert.Nil(t, MatchResult{Outcome: OutcomeUnmatched}.Preferred())
	assert.Equal(t, "ambiguous", OutcomeAmbiguous.String())
}

func TestReport_Duration(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	r := &Report{StartedAt: start, CompletedAt: start.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, r.Duration())
}
