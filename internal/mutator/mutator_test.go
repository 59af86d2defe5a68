package mutator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coversync/coversync-server/internal/domain"
	domainerrors "github.com/coversync/coversync-server/internal/errors"
)

type memHistory struct {
	mu      sync.Mutex
	records []domain.HistoryRecord
}

func (h *memHistory) AppendHistory(_ context.Context, rec *domain.HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *rec)
	return nil
}

// flakyHistory refuses appends while failures is positive.
type flakyHistory struct {
	memHistory
	failures int
}

func (h *flakyHistory) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	h.mu.Lock()
	if h.failures > 0 {
		h.failures--
		h.mu.Unlock()
		return errors.New("database is closed")
	}
	h.mu.Unlock()
	return h.memHistory.AppendHistory(ctx, rec)
}

// failingFs fails the first rename onto one destination.
type failingFs struct {
	afero.Fs
	failDst string
	failed  bool
}

func (f *failingFs) Rename(oldname, newname string) error {
	if newname == f.failDst && !f.failed {
		f.failed = true
		return errors.New("disk full")
	}
	return f.Fs.Rename(oldname, newname)
}

var testLayout = Layout{
	Pending:  "/data/pending-intake",
	Cover:    "/data/organized-cover",
	NoMatch:  "/data/no-match",
	Consumed: "/data/consumed",
	Replaced: "/data/replaced",
}

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func setupMutator(t *testing.T, fsys afero.Fs) (*Mutator, *memHistory) {
	t.Helper()
	require.NoError(t, testLayout.Ensure(fsys))
	h := &memHistory{}
	m := New(fsys, testLayout, h, nil)
	m.now = func() time.Time { return fixedNow }
	return m, h
}

func write(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
}

func read(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	return string(data)
}

func exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fsys, path)
	require.NoError(t, err)
	return ok
}

var alphaCity = domain.LibraryEntry{
	ID: "a1", Kind: domain.KindMovie, PrimaryTitle: "Alpha City", Year: 2019, FolderPath: "Alpha City (2019)",
}

func alphaRef() domain.CoverReference {
	return domain.CoverReference{Kind: domain.KindMovie, Title: "Alpha City", Year: 2019}
}

func TestSlot(t *testing.T) {
	show := domain.LibraryEntry{ID: "s", Kind: domain.KindShow, PrimaryTitle: "Cowboy Bebop", Year: 1998}
	tests := []struct {
		name  string
		entry domain.LibraryEntry
		ref   domain.CoverReference
		src   string
		want  string
	}{
		{"poster", alphaCity, alphaRef(), "x.jpg", "Alpha City (2019)/poster.jpg"},
		{"jpeg normalized", alphaCity, alphaRef(), "x.JPEG", "Alpha City (2019)/poster.jpg"},
		{"png kept", alphaCity, alphaRef(), "x.png", "Alpha City (2019)/poster.png"},
		{"backdrop", alphaCity, domain.CoverReference{Kind: domain.KindBackdrop}, "b.jpg", "Alpha City (2019)/backdrop.jpg"},
		{"season", show, domain.CoverReference{Kind: domain.KindSeason, Season: 2}, "s.jpg", "Cowboy Bebop (1998)/Season02.jpg"},
		{"specials", show, domain.CoverReference{Kind: domain.KindSeason, Season: 0}, "s.jpg", "Cowboy Bebop (1998)/Season00.jpg"},
		{"episode", show, domain.CoverReference{Kind: domain.KindEpisode, Season: 1, Episode: 12}, "e.jpg", "Cowboy Bebop (1998)/S01E12.jpg"},
		{"collection", domain.LibraryEntry{ID: "c", Kind: domain.KindCollection, PrimaryTitle: "Gamma"},
			domain.CoverReference{Kind: domain.KindCollection}, "g.jpg", "Gamma/poster.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), Slot(tt.entry, tt.ref, tt.src))
		})
	}
}

func TestApply_EmptySlot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m, h := setupMutator(t, fsys)
	src := "/data/pending-intake/Alpha City (2019)/poster.jpg"
	write(t, fsys, src, "new")

	p, err := m.Apply(context.Background(), alphaCity, alphaRef(), src)
	require.NoError(t, err)

	assert.Equal(t, "/data/organized-cover/Alpha City (2019)/poster.jpg", p.Dest)
	assert.Equal(t, "new", read(t, fsys, p.Dest))
	assert.False(t, exists(t, fsys, src))
	assert.Empty(t, p.History)
	assert.Empty(t, h.records)
}

func TestApply_ArchivesOccupant(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m, h := setupMutator(t, fsys)
	dest := "/data/organized-cover/Alpha City (2019)/poster.jpg"
	write(t, fsys, dest, "old")
	src := "/data/pending-intake/Alpha City (2019)/poster.jpg"
	write(t, fsys, src, "new")

	p, err := m.Apply(context.Background(), alphaCity, alphaRef(), src)
	require.NoError(t, err)

	archived := "/data/replaced/a1/2026-03-14_09-26-53/poster.jpg"
	assert.Equal(t, "new", read(t, fsys, dest))
	assert.Equal(t, "old", read(t, fsys, archived))

	require.Len(t, h.records, 1)
	rec := h.records[0]
	assert.Equal(t, "a1", rec.EntryID)
	assert.Equal(t, archived, rec.ArchivedPath)
	assert.Equal(t, filepath.FromSlash("Alpha City (2019)/poster.jpg"), rec.Slot)
	assert.Equal(t, fixedNow, rec.ReplacedAt)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, p.History, h.records)
}

func TestApply_HistoryFailureIsQueued(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, testLayout.Ensure(fsys))
	h := &flakyHistory{failures: 2}
	m := New(fsys, testLayout, h, nil)
	m.now = func() time.Time { return fixedNow }

	dest := "/data/organized-cover/Alpha City (2019)/poster.jpg"
	write(t, fsys, dest, "old")
	src := "/data/pending-intake/Alpha City (2019)/poster.jpg"
	write(t, fsys, src, "new")

	p, err := m.Apply(context.Background(), alphaCity, alphaRef(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrHistoryRecord))
	require.NotNil(t, p)
	assert.Equal(t, "new", read(t, fsys, dest))
	require.Len(t, p.History, 1)
	assert.Empty(t, h.records)
	assert.Len(t, m.unsaved, 1)

	// Still failing: the record stays queued.
	saved, err := m.RetryHistory(context.Background())
	assert.Equal(t, 0, saved)
	assert.True(t, errors.Is(err, domainerrors.ErrHistoryRecord))
	assert.Len(t, m.unsaved, 1)

	saved, err = m.RetryHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, saved)
	assert.Empty(t, m.unsaved)
	require.Len(t, h.records, 1)
	assert.Equal(t, p.History[0], h.records[0])
	assert.Equal(t, "old", read(t, fsys, h.records[0].ArchivedPath))
}

func TestApply_ArchivesOtherExtensions(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m, h := setupMutator(t, fsys)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	write(t, fsys, "/data/organized-cover/Alpha City (2019)/poster.png", buf.String())
	write(t, fsys, "/data/organized-cover/Alpha City (2019)/backdrop.jpg", "keep")
	src := "/data/pending-intake/Alpha City (2019).jpg"
	write(t, fsys, src, "new")

	_, err := m.Apply(context.Background(), alphaCity, alphaRef(), src)
	require.NoError(t, err)

	infos, err := afero.ReadDir(fsys, "/data/organized-cover/Alpha City (2019)")
	require.NoError(t, err)
	var names []string
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	assert.ElementsMatch(t, []string{"backdrop.jpg", "poster.jpg"}, names)

	require.Len(t, h.records, 1)
	assert.Equal(t, "/data/replaced/a1/2026-03-14_09-26-53/poster.png", h.records[0].ArchivedPath)
	assert.NotEmpty(t, h.records[0].BlurHash)
}

func TestApply_SameContentIsConsumed(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m, h := setupMutator(t, fsys)
	dest := "/data/organized-cover/Alpha City (2019)/poster.jpg"
	write(t, fsys, dest, "same")
	src := "/data/pending-intake/Alpha City (2019)/poster.jpg"
	write(t, fsys, src, "same")

	p, err := m.Apply(context.Background(), alphaCity, alphaRef(), src)
	require.NoError(t, err)

	assert.True(t, p.Unchanged)
	assert.Empty(t, h.records)
	assert.False(t, exists(t, fsys, src))
	assert.True(t, exists(t, fsys, "/data/consumed/poster.jpg"))
	assert.False(t, exists(t, fsys, "/data/replaced/a1"))
}

func TestApply_ConflictWhileFolderLocked(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m, _ := setupMutator(t, fsys)
	src := "/data/pending-intake/poster.jpg"
	write(t, fsys, src, "new")

	mu, _ := m.locks.LoadOrStore("/data/organized-cover/Alpha City (2019)", &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	_, err := m.Apply(context.Background(), alphaCity, alphaRef(), src)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrMutationConflict)
	assert.True(t, exists(t, fsys, src))
}

func TestApply_RollsBackWhenPlacementFails(t *testing.T) {
	dest := "/data/organized-cover/Alpha City (2019)/poster.jpg"
	fsys := &failingFs{Fs: afero.NewMemMapFs(), failDst: dest}
	m, h := setupMutator(t, fsys)
	write(t, fsys, dest, "old")
	src := "/data/pending-intake/poster.jpg"
	write(t, fsys, src, "new")

	_, err := m.Apply(context.Background(), alphaCity, alphaRef(), src)
	require.Error(t, err)

	assert.Equal(t, "old", read(t, fsys, dest))
	assert.Equal(t, "new", read(t, fsys, src))
	assert.False(t, exists(t, fsys, "/data/replaced/a1/2026-03-14_09-26-53/poster.jpg"))
	assert.Empty(t, h.records)
}

func TestApply_MissingSource(t *testing.T) {
	m, _ := setupMutator(t, afero.NewMemMapFs())
	_, err := m.Apply(context.Background(), alphaCity, alphaRef(), "/data/pending-intake/gone.jpg")
	assert.Error(t, err)
}

func TestConsume_NumbersCollisions(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m, _ := setupMutator(t, fsys)
	write(t, fsys, "/data/pending-intake/a/covers.zip", "1")
	write(t, fsys, "/data/pending-intake/b/covers.zip", "2")

	first, err := m.Consume("/data/pending-intake/a/covers.zip")
	require.NoError(t, err)
	second, err := m.Consume("/data/pending-intake/b/covers.zip")
	require.NoError(t, err)

	assert.Equal(t, "/data/consumed/covers.zip", first)
	assert.Equal(t, "/data/consumed/covers (1).zip", second)
	assert.Equal(t, "2", read(t, fsys, second))
}

func TestHold(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m, _ := setupMutator(t, fsys)
	write(t, fsys, "/data/no-match/Beta (2020)/poster.jpg", "older")
	write(t, fsys, "/data/pending-intake/.extract/pack/Beta (2020)/poster.jpg", "newer")

	dst, err := m.Hold("/data/pending-intake/.extract/pack/Beta (2020)/poster.jpg", "Beta (2020)/poster.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/data/no-match/Beta (2020)/poster.jpg", dst)
	assert.Equal(t, "newer", read(t, fsys, dst))
	assert.Equal(t, "older", read(t, fsys, "/data/consumed/poster.jpg"))

	// Already held: no-op.
	again, err := m.Hold(dst, "Beta (2020)/poster.jpg")
	require.NoError(t, err)
	assert.Equal(t, dst, again)
}

func TestSyncMap_LoadOrStore(t *testing.T) {
	sm := NewSyncMap[string, int]()

	actual, loaded := sm.LoadOrStore("folder", 1)
	assert.Equal(t, 1, actual)
	assert.False(t, loaded)

	actual, loaded = sm.LoadOrStore("folder", 2)
	assert.Equal(t, 1, actual)
	assert.True(t, loaded)

	v, ok := sm.Load("folder")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, sm.Len())
}
