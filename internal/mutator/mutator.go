// Package mutator moves matched artwork into its slot under the cover root,
// archiving whatever occupied the slot before.
package mutator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/coversync/coversync-server/internal/domain"
	domainerrors "github.com/coversync/coversync-server/internal/errors"
	"github.com/coversync/coversync-server/internal/id"
	"github.com/coversync/coversync-server/internal/media/images"
)

// archiveStamp names the per-replacement directory under replaced/<entryID>/.
const archiveStamp = "2006-01-02_15-04-05"

// slotExts are the extensions treated as occupying a slot.
var slotExts = []string{".jpg", ".jpeg", ".png", ".webp"}

// Layout holds the absolute lifecycle directories.
type Layout struct {
	Pending  string
	Cover    string
	NoMatch  string
	Consumed string
	Replaced string
}

// Ensure creates every lifecycle directory.
func (l Layout) Ensure(fsys afero.Fs) error {
	for _, dir := range []string{l.Pending, l.Cover, l.NoMatch, l.Consumed, l.Replaced} {
		if dir == "" {
			return fmt.Errorf("lifecycle directory not configured")
		}
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// HistoryStore persists History Records.
type HistoryStore interface {
	AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error
}

// Placement describes one completed Apply.
type Placement struct {
	EntryID string
	// Slot is the destination relative to the cover root.
	Slot string
	// Dest is the absolute destination path.
	Dest string
	// Unchanged is set when the slot already held identical content; the
	// source was consumed and nothing was archived.
	Unchanged bool
	History   []domain.HistoryRecord
}

// Mutator performs filesystem moves between lifecycle directories. Apply
// calls for different folders run in parallel; calls for the same folder
// are rejected while one is in flight.
type Mutator struct {
	fs      afero.Fs
	layout  Layout
	history HistoryStore
	locks   *SyncMap[string, *sync.Mutex]
	logger  *slog.Logger
	now     func() time.Time

	// unsaved holds History Records whose append failed, for RetryHistory.
	unsavedMu sync.Mutex
	unsaved   []domain.HistoryRecord
}

// New creates a mutator. history may be nil.
func New(fsys afero.Fs, layout Layout, history HistoryStore, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{
		fs:      fsys,
		layout:  layout,
		history: history,
		locks:   NewSyncMap[string, *sync.Mutex](),
		logger:  logger,
		now:     time.Now,
	}
}

// Layout returns the lifecycle directories.
func (m *Mutator) Layout() Layout {
	return m.layout
}

// Slot returns the destination of ref's artwork for entry, relative to the
// cover root. sourceName supplies the extension.
func Slot(entry domain.LibraryEntry, ref domain.CoverReference, sourceName string) string {
	folder := entry.FolderPath
	if folder == "" {
		folder = domain.DefaultFolder(entry.PrimaryTitle, entry.Year, entry.Kind)
	}

	var stem string
	switch ref.Kind {
	case domain.KindBackdrop:
		stem = "backdrop"
	case domain.KindSeason:
		stem = fmt.Sprintf("Season%02d", ref.Season)
	case domain.KindEpisode:
		stem = fmt.Sprintf("S%02dE%02d", ref.Season, ref.Episode)
	default:
		stem = "poster"
	}

	ext := strings.ToLower(filepath.Ext(sourceName))
	if ext == "" || ext == ".jpeg" {
		ext = ".jpg"
	}
	return filepath.Join(folder, stem+ext)
}

// Apply places sourceAbs into entry's slot for ref.
//
// Any current occupant of the slot (same stem, any image extension) is
// moved to replaced/<entryID>/<timestamp>/ first. If the final move fails,
// archived occupants are moved back so the slot is left as it was.
func (m *Mutator) Apply(ctx context.Context, entry domain.LibraryEntry, ref domain.CoverReference, sourceAbs string) (*Placement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slot := Slot(entry, ref, sourceAbs)
	dest := filepath.Join(m.layout.Cover, slot)
	folder := filepath.Dir(dest)

	mu, _ := m.locks.LoadOrStore(folder, &sync.Mutex{})
	if !mu.TryLock() {
		return nil, domainerrors.MutationConflictf("folder %q is being written by another reference", filepath.Dir(slot))
	}
	defer mu.Unlock()

	if _, err := m.fs.Stat(sourceAbs); err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}

	occupants, err := m.occupants(dest)
	if err != nil {
		return nil, err
	}

	placement := &Placement{EntryID: entry.ID, Slot: slot, Dest: dest}

	if len(occupants) == 1 && occupants[0] == dest {
		same, err := m.sameContent(sourceAbs, dest)
		if err != nil {
			return nil, err
		}
		if same {
			if _, err := m.Consume(sourceAbs); err != nil {
				return nil, err
			}
			placement.Unchanged = true
			m.logger.Debug("slot already holds this artwork", "entry_id", entry.ID, "slot", slot)
			return placement, nil
		}
	}

	stamp := m.now()
	archiveDir := filepath.Join(m.layout.Replaced, entry.ID, stamp.Format(archiveStamp))

	type archived struct{ from, to string }
	var moved []archived
	rollback := func() {
		for i := len(moved) - 1; i >= 0; i-- {
			if err := move(m.fs, moved[i].to, moved[i].from); err != nil {
				m.logger.Error("rollback of archived artwork failed",
					"entry_id", entry.ID, "path", moved[i].to, "error", err)
			}
		}
	}

	for _, occ := range occupants {
		to, err := freeName(m.fs, filepath.Join(archiveDir, filepath.Base(occ)))
		if err != nil {
			rollback()
			return nil, err
		}
		if err := move(m.fs, occ, to); err != nil {
			rollback()
			return nil, fmt.Errorf("archive occupant: %w", err)
		}
		moved = append(moved, archived{from: occ, to: to})
	}

	if err := move(m.fs, sourceAbs, dest); err != nil {
		rollback()
		return nil, fmt.Errorf("place artwork: %w", err)
	}

	var histErr error
	for _, a := range moved {
		rec := domain.HistoryRecord{
			ID:           id.MustGenerate(id.PrefixHistory),
			EntryID:      entry.ID,
			Slot:         slot,
			ReplacedAt:   stamp,
			ArchivedPath: a.to,
		}
		if hash, err := images.ComputeBlurHash(m.fs, a.to); err == nil {
			rec.BlurHash = hash
		} else {
			m.logger.Debug("no preview for archived artwork", "path", a.to, "error", err)
		}
		if m.history != nil {
			if err := m.history.AppendHistory(ctx, &rec); err != nil {
				m.logger.Warn("history record not saved, queued for retry",
					"entry_id", entry.ID, "archived_path", a.to, "error", err)
				m.queueUnsaved(rec)
				if histErr == nil {
					histErr = err
				}
			}
		}
		placement.History = append(placement.History, rec)
	}

	m.logger.Info("placed artwork",
		"entry_id", entry.ID,
		"slot", slot,
		"archived", len(moved),
	)
	if histErr != nil {
		return placement, domainerrors.HistoryRecordf("record history for %s", slot).WithCause(histErr)
	}
	return placement, nil
}

func (m *Mutator) queueUnsaved(rec domain.HistoryRecord) {
	m.unsavedMu.Lock()
	m.unsaved = append(m.unsaved, rec)
	m.unsavedMu.Unlock()
}

// RetryHistory appends the History Records an earlier Apply could not save
// and returns how many were saved. Records that fail again stay queued.
func (m *Mutator) RetryHistory(ctx context.Context) (int, error) {
	if m.history == nil {
		return 0, nil
	}
	m.unsavedMu.Lock()
	queued := m.unsaved
	m.unsaved = nil
	m.unsavedMu.Unlock()

	saved := 0
	var firstErr error
	for i := range queued {
		if err := m.history.AppendHistory(ctx, &queued[i]); err != nil {
			m.queueUnsaved(queued[i])
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		saved++
	}
	if firstErr != nil {
		return saved, domainerrors.HistoryRecordf("%d history records still unsaved", len(queued)-saved).WithCause(firstErr)
	}
	return saved, nil
}

// occupants lists files in dest's folder sharing its stem.
func (m *Mutator) occupants(dest string) ([]string, error) {
	stem := strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))
	dir := filepath.Dir(dest)

	infos, err := afero.ReadDir(m.fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot folder: %w", err)
	}

	var out []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		name := info.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !strings.EqualFold(strings.TrimSuffix(name, filepath.Ext(name)), stem) {
			continue
		}
		for _, e := range slotExts {
			if ext == e {
				out = append(out, filepath.Join(dir, name))
				break
			}
		}
	}
	return out, nil
}

func (m *Mutator) sameContent(a, b string) (bool, error) {
	sa, ha, err := images.Fingerprint(m.fs, a)
	if err != nil {
		return false, err
	}
	sb, hb, err := images.Fingerprint(m.fs, b)
	if err != nil {
		return false, err
	}
	return sa == sb && ha == hb, nil
}

// Consume moves path into the consumed directory, numbering the name on
// collision. It returns the new location.
func (m *Mutator) Consume(path string) (string, error) {
	dst, err := freeName(m.fs, filepath.Join(m.layout.Consumed, filepath.Base(path)))
	if err != nil {
		return "", err
	}
	if err := move(m.fs, path, dst); err != nil {
		return "", fmt.Errorf("consume: %w", err)
	}
	return dst, nil
}

// Hold moves an unmatched file into the no-match area at rel. An older file
// already held at rel is consumed first.
func (m *Mutator) Hold(path, rel string) (string, error) {
	dst := filepath.Join(m.layout.NoMatch, rel)
	if filepath.Clean(path) == filepath.Clean(dst) {
		return dst, nil
	}
	if exists, err := afero.Exists(m.fs, dst); err != nil {
		return "", fmt.Errorf("stat held file: %w", err)
	} else if exists {
		if _, err := m.Consume(dst); err != nil {
			return "", err
		}
	}
	if err := move(m.fs, path, dst); err != nil {
		return "", fmt.Errorf("hold: %w", err)
	}
	return dst, nil
}
