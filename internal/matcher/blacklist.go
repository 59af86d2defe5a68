package matcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/coversync/coversync-server/internal/domain"
	"github.com/coversync/coversync-server/internal/normalize"
)

// Blacklist excludes titles, catalog entries and whole libraries from
// matching. Titles are written as "title" or "title@library".
// The file is user-owned and never pruned automatically.
type Blacklist struct {
	Titles    []string `json:"titles" yaml:"titles"`
	IDs       []string `json:"ids" yaml:"ids"`
	Libraries []string `json:"libraries" yaml:"libraries"`

	titles        map[string]bool
	libraryTitles map[string]bool
	ids           map[string]bool
	libraries     map[string]bool
}

const exampleBlacklist = `# Covers for these titles, catalog ids or libraries are never placed.
# Titles may be scoped to one library with "title@library".
titles: []
#  - Some Movie
#  - Some Show@Anime
ids: []
libraries: []
`

// LoadBlacklist reads the blacklist at path. JSON is used for a ".json"
// extension, YAML otherwise. A missing file is replaced by a commented
// example and yields an empty blacklist.
func LoadBlacklist(fsys afero.Fs, path string) (*Blacklist, error) {
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := writeExample(fsys, path); err != nil {
			return nil, err
		}
		return NewBlacklist(nil, nil, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blacklist: %w", err)
	}

	var bl Blacklist
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &bl)
	} else {
		err = yaml.Unmarshal(data, &bl)
	}
	if err != nil {
		return nil, fmt.Errorf("parse blacklist %s: %w", path, err)
	}
	return NewBlacklist(bl.Titles, bl.IDs, bl.Libraries), nil
}

func writeExample(fsys afero.Fs, path string) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blacklist dir: %w", err)
	}
	content := exampleBlacklist
	if strings.EqualFold(filepath.Ext(path), ".json") {
		content = "{\n  \"titles\": [],\n  \"ids\": [],\n  \"libraries\": []\n}\n"
	}
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write example blacklist: %w", err)
	}
	return nil
}

// NewBlacklist builds a blacklist from raw values.
func NewBlacklist(titles, ids, libraries []string) *Blacklist {
	bl := &Blacklist{
		Titles:        titles,
		IDs:           ids,
		Libraries:     libraries,
		titles:        make(map[string]bool),
		libraryTitles: make(map[string]bool),
		ids:           make(map[string]bool),
		libraries:     make(map[string]bool),
	}
	for _, t := range titles {
		title, lib, scoped := strings.Cut(t, "@")
		norm := normalize.Title(title)
		if norm == "" {
			continue
		}
		if scoped && strings.TrimSpace(lib) != "" {
			bl.libraryTitles[libraryKey(norm, lib)] = true
		} else {
			bl.titles[norm] = true
		}
	}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			bl.ids[id] = true
		}
	}
	for _, lib := range libraries {
		if lib = strings.TrimSpace(lib); lib != "" {
			bl.libraries[strings.ToLower(lib)] = true
		}
	}
	return bl
}

func libraryKey(normTitle, library string) string {
	return normTitle + "@" + strings.ToLower(strings.TrimSpace(library))
}

// Len returns the number of rules.
func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.titles) + len(b.libraryTitles) + len(b.ids) + len(b.libraries)
}

// BlocksTitle reports whether a reference title is blacklisted everywhere.
func (b *Blacklist) BlocksTitle(title string) bool {
	if b == nil {
		return false
	}
	return b.titles[normalize.Title(title)]
}

// BlocksEntry reports whether an entry is excluded by id, library or a
// library-scoped title.
func (b *Blacklist) BlocksEntry(e domain.LibraryEntry) bool {
	if b == nil {
		return false
	}
	if b.ids[e.ID] {
		return true
	}
	if e.LibraryID == "" {
		return false
	}
	if b.libraries[strings.ToLower(e.LibraryID)] {
		return true
	}
	for _, t := range e.Titles() {
		if b.libraryTitles[libraryKey(normalize.Title(t), e.LibraryID)] {
			return true
		}
	}
	return false
}
