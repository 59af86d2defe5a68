package domain

import "fmt"

// LibraryEntry is one item of the media server catalog.
// Entries are owned by a catalog snapshot and never mutated after publication.
type LibraryEntry struct {
	ID               string   `json:"id"`
	Kind             Kind     `json:"kind"`
	PrimaryTitle     string   `json:"primary_title"`
	AlternateTitles  []string `json:"alternate_titles,omitempty"`
	Year             int      `json:"year,omitempty"`
	ContentSignature string   `json:"content_signature"`
	FolderPath       string   `json:"folder_path"`
	LibraryID        string   `json:"library_id,omitempty"`

	// ParentID points at the owning show for seasons and episodes.
	ParentID string `json:"parent_id,omitempty"`
	Season   int    `json:"season,omitempty"`
	Episode  int    `json:"episode,omitempty"`
}

// Titled reports whether the entry carries its own artwork folder.
// Seasons and episodes live inside their show's folder.
func (e LibraryEntry) Titled() bool {
	switch e.Kind {
	case KindMovie, KindShow, KindCollection:
		return true
	default:
		return false
	}
}

// Titles returns the primary title followed by the alternates.
func (e LibraryEntry) Titles() []string {
	out := make([]string, 0, 1+len(e.AlternateTitles))
	out = append(out, e.PrimaryTitle)
	return append(out, e.AlternateTitles...)
}

// DefaultFolder returns the folder name used for an entry's artwork.
func DefaultFolder(title string, year int, kind Kind) string {
	if kind == KindCollection || year <= 0 {
		return title
	}
	return fmt.Sprintf("%s (%d)", title, year)
}

// Signature is the lightweight (id, signature) pair of a catalog summary.
type Signature struct {
	ID        string `json:"id"`
	Signature string `json:"signature"`
}

// Chunk is one page of the catalog. Last is set when nothing follows it,
// which the page length alone cannot tell once a source drops items it
// cannot map.
type Chunk struct {
	Entries []LibraryEntry
	Last    bool
}

// AltTitle is one title returned by the metadata lookup.
type AltTitle struct {
	Language string `json:"language"`
	Title    string `json:"title"`
}
