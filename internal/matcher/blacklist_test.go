package matcher

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coversync/coversync-server/internal/domain"
)

func TestLoadBlacklist_MissingWritesExample(t *testing.T) {
	fs := afero.NewMemMapFs()

	bl, err := LoadBlacklist(fs, "/data/blacklist.yaml")
	require.NoError(t, err)
	assert.Equal(t, 0, bl.Len())

	data, err := afero.ReadFile(fs, "/data/blacklist.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "titles: []")

	again, err := LoadBlacklist(fs, "/data/blacklist.yaml")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Len())
}

func TestLoadBlacklist_YAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bl.yaml", []byte(`
titles:
  - "Schindler's List"
  - Epsilon@Kids
ids: [x1]
libraries: [Trailers]
`), 0o644))

	bl, err := LoadBlacklist(fs, "/bl.yaml")
	require.NoError(t, err)
	assert.Equal(t, 4, bl.Len())
	assert.True(t, bl.BlocksTitle("schindlers list"))
	assert.False(t, bl.BlocksTitle("Epsilon"))
	assert.True(t, bl.BlocksEntry(domain.LibraryEntry{ID: "x1"}))
	assert.True(t, bl.BlocksEntry(domain.LibraryEntry{ID: "t", LibraryID: "trailers"}))
	assert.True(t, bl.BlocksEntry(domain.LibraryEntry{ID: "e", PrimaryTitle: "Epsilon", LibraryID: "Kids"}))
	assert.False(t, bl.BlocksEntry(domain.LibraryEntry{ID: "e", PrimaryTitle: "Epsilon", LibraryID: "Movies"}))
}

func TestLoadBlacklist_JSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bl.json", []byte(`{"titles":["Alpha City"],"ids":[],"libraries":[]}`), 0o644))

	bl, err := LoadBlacklist(fs, "/bl.json")
	require.NoError(t, err)
	assert.True(t, bl.BlocksTitle("ALPHA CITY"))
}

func TestLoadBlacklist_Invalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bl.json", []byte(`{"titles":`), 0o644))

	_, err := LoadBlacklist(fs, "/bl.json")
	assert.Error(t, err)
}

func TestNilBlacklist(t *testing.T) {
	var bl *Blacklist
	assert.False(t, bl.BlocksTitle("anything"))
	assert.False(t, bl.BlocksEntry(domain.LibraryEntry{ID: "x"}))
	assert.Equal(t, 0, bl.Len())
}
