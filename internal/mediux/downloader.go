package mediux

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mholt/archives"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/coversync/coversync-server/internal/media/images"
)

const osAppendFlags = os.O_CREATE | os.O_WRONLY | os.O_APPEND

// SetSource fetches set pages and their images. Implemented by Client.
type SetSource interface {
	CheckSetURL(link string) error
	FetchSet(ctx context.Context, setURL string) (*Set, error)
	FetchAsset(ctx context.Context, id string) ([]byte, error)
}

// Options configures a Downloader.
type Options struct {
	// QueueFile lists set links, one per line. Blank lines and lines starting
	// with # are ignored.
	QueueFile string
	// Pending is the intake directory archives are dropped into.
	Pending      string
	Workers      int
	PollInterval time.Duration
}

// Result summarizes one Run.
type Result struct {
	Archives []string
	Files    int
	Skipped  int
	// Dropped are links removed from the queue because they can never work.
	Dropped []string
	// Kept are links left in the queue for the next run.
	Kept []string
}

// Downloader drains the set queue into pending-intake. Each set becomes one
// zip archive, written under a hidden name and renamed into place so the
// intake never sees a partial archive.
type Downloader struct {
	fs           afero.Fs
	source       SetSource
	opts         Options
	onDownloaded func(archives int)
	logger       *slog.Logger

	runMu   sync.Mutex
	queueMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDownloader creates a downloader.
func NewDownloader(fsys afero.Fs, source SetSource, opts Options, logger *slog.Logger) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{fs: fsys, source: source, opts: opts, logger: logger}
}

// OnDownloaded registers fn to run after a Run that wrote archives.
func (d *Downloader) OnDownloaded(fn func(archives int)) {
	d.onDownloaded = fn
}

// Start polls the queue file every PollInterval until Stop.
func (d *Downloader) Start(ctx context.Context) {
	if d.opts.PollInterval <= 0 {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := d.Run(ctx); err != nil && ctx.Err() == nil {
					d.logger.Warn("set queue run failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	d.logger.Info("set downloader started", "queue", d.opts.QueueFile, "interval", d.opts.PollInterval)
}

// Stop stops polling and waits for a running download.
func (d *Downloader) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Run downloads every queued set. Links that worked or can never work are
// removed from the queue; links that failed for a transient reason stay.
func (d *Downloader) Run(ctx context.Context) (*Result, error) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	links, err := d.readQueue()
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if len(links) == 0 {
		return res, nil
	}

	done := make(map[string]bool)
	for _, link := range links {
		if ctx.Err() != nil {
			res.Kept = append(res.Kept, link)
			continue
		}
		archive, files, skipped, err := d.downloadSet(ctx, link)
		switch {
		case err == nil:
			res.Archives = append(res.Archives, archive)
			res.Files += files
			res.Skipped += skipped
			done[link] = true
			d.logger.Info("set downloaded", "link", link, "archive", filepath.Base(archive), "files", files, "skipped", skipped)
		case Permanent(err):
			res.Dropped = append(res.Dropped, link)
			done[link] = true
			d.logger.Warn("dropping set link", "link", link, "error", err)
		default:
			res.Kept = append(res.Kept, link)
			d.logger.Warn("set download failed, kept in queue", "link", link, "error", err)
		}
	}

	if err := d.removeFromQueue(done); err != nil {
		return res, err
	}
	if len(res.Archives) > 0 && d.onDownloaded != nil {
		d.onDownloaded(len(res.Archives))
	}
	return res, nil
}

// Enqueue appends a set link to the queue file. Links that are not set
// links are rejected with a VALIDATION error.
func (d *Downloader) Enqueue(link string) error {
	link = strings.TrimSpace(link)
	if err := d.source.CheckSetURL(link); err != nil {
		return err
	}
	if err := d.fs.MkdirAll(filepath.Dir(d.opts.QueueFile), 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}

	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	f, err := d.fs.OpenFile(d.opts.QueueFile, osAppendFlags, 0o644)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	if _, err := f.WriteString(link + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append to queue: %w", err)
	}
	return f.Close()
}

// readQueue returns the distinct links in the queue file.
func (d *Downloader) readQueue() ([]string, error) {
	d.queueMu.Lock()
	data, err := afero.ReadFile(d.fs, d.opts.QueueFile)
	d.queueMu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	var links []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		links = append(links, line)
	}
	return links, sc.Err()
}

// removeFromQueue rewrites the queue without the done links. Lines added
// while the run was downloading are kept.
func (d *Downloader) removeFromQueue(done map[string]bool) error {
	if len(done) == 0 {
		return nil
	}
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	data, err := afero.ReadFile(d.fs, d.opts.QueueFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	var buf bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if done[strings.TrimSpace(sc.Text())] {
			continue
		}
		buf.WriteString(sc.Text())
		buf.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	tmp := d.opts.QueueFile + ".tmp"
	if err := afero.WriteFile(d.fs, tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	if err := d.fs.Rename(tmp, d.opts.QueueFile); err != nil {
		return fmt.Errorf("replace queue: %w", err)
	}
	return nil
}

// downloadSet fetches one set and writes its archive. Images that fail are
// skipped; a set without a single image is an error.
func (d *Downloader) downloadSet(ctx context.Context, link string) (archive string, files, skipped int, err error) {
	set, err := d.source.FetchSet(ctx, link)
	if err != nil {
		return "", 0, 0, err
	}
	name := set.Name()

	mem := afero.NewMemMapFs()
	var (
		mu      sync.Mutex
		entries []archives.FileInfo
		used    = make(map[string]bool)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for _, f := range set.Files {
		stem := set.FileName(f)
		g.Go(func() error {
			data, err := d.source.FetchAsset(gctx, f.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.logger.Warn("image download failed", "set", name, "file", stem, "error", err)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			ext, ok := imageExt(data)

			mu.Lock()
			defer mu.Unlock()
			if !ok || used[stem] {
				d.logger.Debug("skipping set file", "set", name, "file", stem, "image", ok)
				skipped++
				return nil
			}
			used[stem] = true
			entry := stem + ext
			path := "/" + entry
			if err := afero.WriteFile(mem, path, data, 0o644); err != nil {
				return fmt.Errorf("buffer %s: %w", entry, err)
			}
			info, err := mem.Stat(path)
			if err != nil {
				return fmt.Errorf("buffer %s: %w", entry, err)
			}
			entries = append(entries, archives.FileInfo{
				FileInfo:      info,
				NameInArchive: entry,
				Open:          func() (fs.File, error) { return mem.Open(path) },
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", 0, 0, err
	}
	if len(entries) == 0 {
		return "", 0, skipped, fmt.Errorf("set %q: no image could be downloaded", name)
	}
	slices.SortFunc(entries, func(a, b archives.FileInfo) int {
		return strings.Compare(a.NameInArchive, b.NameInArchive)
	})

	archive, err = d.writeArchive(ctx, name, entries)
	if err != nil {
		return "", 0, skipped, err
	}
	return archive, len(entries), skipped, nil
}

// writeArchive zips entries into pending-intake as <name>.zip, numbering
// the name when taken.
func (d *Downloader) writeArchive(ctx context.Context, name string, entries []archives.FileInfo) (string, error) {
	if err := d.fs.MkdirAll(d.opts.Pending, 0o755); err != nil {
		return "", fmt.Errorf("create pending dir: %w", err)
	}
	tmp := filepath.Join(d.opts.Pending, "."+name+".zip.part")
	out, err := d.fs.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	if err := (archives.Zip{}).Archive(ctx, out, entries); err != nil {
		_ = out.Close()
		_ = d.fs.Remove(tmp)
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = d.fs.Remove(tmp)
		return "", fmt.Errorf("close archive: %w", err)
	}

	dest := filepath.Join(d.opts.Pending, name+".zip")
	for n := 2; ; n++ {
		_, err := d.fs.Stat(dest)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			_ = d.fs.Remove(tmp)
			return "", fmt.Errorf("stat %s: %w", dest, err)
		}
		dest = filepath.Join(d.opts.Pending, fmt.Sprintf("%s_%d.zip", name, n))
	}
	if err := d.fs.Rename(tmp, dest); err != nil {
		_ = d.fs.Remove(tmp)
		return "", fmt.Errorf("move archive into place: %w", err)
	}
	return dest, nil
}

// imageExt maps sniffed image data to a file extension.
func imageExt(data []byte) (string, bool) {
	switch images.ContentType(data) {
	case "image/jpeg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/webp":
		return ".webp", true
	default:
		return "", false
	}
}
