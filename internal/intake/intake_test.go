package intake

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coversync/coversync-server/internal/mutator"
)

var testLayout = mutator.Layout{
	Pending:  "/data/pending-intake",
	Cover:    "/data/organized-cover",
	NoMatch:  "/data/no-match",
	Consumed: "/data/consumed",
	Replaced: "/data/replaced",
}

func setupScanner(t *testing.T, convert bool) (*Scanner, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, testLayout.Ensure(fsys))
	m := mutator.New(fsys, testLayout, nil, nil)
	return New(fsys, testLayout, m, Options{ConvertToJPEG: convert}, nil), fsys
}

func write(t *testing.T, fsys afero.Fs, path string, data []byte) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, data, 0o644))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fsys, path)
	require.NoError(t, err)
	return ok
}

func dropsByRel(drops []Drop) map[string]Drop {
	out := make(map[string]Drop, len(drops))
	for _, d := range drops {
		out[string(d.Origin)+":"+d.RelPath] = d
	}
	return out
}

func TestIsArchive(t *testing.T) {
	for _, name := range []string{"a.zip", "a.ZIP", "a.tar.gz", "a.tgz", "a.7z", "a.rar", "a.tar"} {
		assert.True(t, IsArchive(name), name)
	}
	for _, name := range []string{"a.jpg", "a.gz", "zip"} {
		assert.False(t, IsArchive(name), name)
	}
	assert.Equal(t, "covers", archiveStem("covers.tar.gz"))
	assert.Equal(t, "Pack", archiveStem("Pack.ZIP"))
}

func TestSafeEntryPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Alpha City (2019)/poster.jpg", filepath.FromSlash("Alpha City (2019)/poster.jpg"), true},
		{"/abs/poster.jpg", filepath.FromSlash("abs/poster.jpg"), true},
		{"../../escape.jpg", "escape.jpg", true},
		{"__MACOSX/._poster.jpg", "", false},
		{".hidden/poster.jpg", "", false},
		{"dir\\file.jpg", filepath.FromSlash("dir/file.jpg"), true},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := safeEntryPath(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestScan(t *testing.T) {
	s, fsys := setupScanner(t, true)

	write(t, fsys, "/data/pending-intake/Alpha City (2019)/poster.jpg", []byte("jpg"))
	write(t, fsys, "/data/pending-intake/Gamma.png", pngBytes(t))
	write(t, fsys, "/data/pending-intake/.DS_Store", []byte("x"))
	write(t, fsys, "/data/pending-intake/notes.txt", []byte("x"))
	write(t, fsys, "/data/pending-intake/pack.zip", zipBytes(t, map[string]string{
		"Delta (2019)/poster.jpg": "delta",
		"readme.txt":              "hello",
	}))
	write(t, fsys, "/data/no-match/Beta (2020)/poster.jpg", []byte("beta"))

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Archives)
	assert.Equal(t, 1, res.Converted)

	drops := dropsByRel(res.Drops)
	assert.Len(t, drops, 4)

	alpha, ok := drops["pending:Alpha City (2019)/poster.jpg"]
	require.True(t, ok)
	assert.Equal(t, "/data/pending-intake/Alpha City (2019)/poster.jpg", alpha.AbsPath)

	_, ok = drops["pending:Gamma.jpg"]
	assert.True(t, ok)
	assert.True(t, exists(t, fsys, "/data/consumed/Gamma.png"))
	assert.False(t, exists(t, fsys, "/data/pending-intake/Gamma.png"))

	delta, ok := drops["archive:Delta (2019)/poster.jpg"]
	require.True(t, ok)
	assert.Equal(t, "/data/pending-intake/.extract/pack", delta.Archive)
	assert.True(t, exists(t, fsys, "/data/consumed/pack.zip"))

	_, ok = drops["nomatch:Beta (2020)/poster.jpg"]
	assert.True(t, ok)
}

func TestScan_NoConversion(t *testing.T) {
	s, fsys := setupScanner(t, false)
	write(t, fsys, "/data/pending-intake/Gamma.png", pngBytes(t))

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Drops, 1)
	assert.Equal(t, "Gamma.png", res.Drops[0].RelPath)
	assert.Zero(t, res.Converted)
}

func TestScan_BrokenArchiveStays(t *testing.T) {
	s, fsys := setupScanner(t, true)
	write(t, fsys, "/data/pending-intake/broken.zip", []byte("definitely not a zip"))

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "/data/pending-intake/broken.zip", res.Errors[0].Path)
	assert.True(t, exists(t, fsys, "/data/pending-intake/broken.zip"))
	assert.False(t, exists(t, fsys, "/data/pending-intake/.extract/broken"))
	assert.Empty(t, res.Drops)
}

func TestScan_MissingDirectories(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := New(fsys, testLayout, mutator.New(fsys, testLayout, nil, nil), Options{}, nil)

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Drops)
}

func TestCleanup(t *testing.T) {
	s, fsys := setupScanner(t, true)
	write(t, fsys, "/data/pending-intake/pack.zip", zipBytes(t, map[string]string{
		"Delta (2019)/poster.jpg": "delta",
		"readme.txt":              "hello",
	}))
	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Drops, 1)

	// Simulate placement of the only artwork.
	require.NoError(t, fsys.Remove(res.Drops[0].AbsPath))
	require.NoError(t, fsys.MkdirAll("/data/no-match/Empty (2001)", 0o755))

	require.NoError(t, s.Cleanup(context.Background()))

	assert.True(t, exists(t, fsys, "/data/consumed/readme.txt"))
	assert.False(t, exists(t, fsys, "/data/pending-intake/.extract"))
	assert.False(t, exists(t, fsys, "/data/no-match/Empty (2001)"))
	assert.True(t, exists(t, fsys, "/data/pending-intake"))
}
