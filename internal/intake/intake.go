// Package intake discovers dropped artwork: loose images in pending-intake,
// files held in no-match from earlier passes, and the contents of dropped
// archives.
package intake

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/coversync/coversync-server/internal/domain"
	domainerrors "github.com/coversync/coversync-server/internal/errors"
	"github.com/coversync/coversync-server/internal/media/images"
	"github.com/coversync/coversync-server/internal/mutator"
	"github.com/coversync/coversync-server/internal/parser"
)

// ExtractDir is the hidden directory under pending-intake archives are
// unpacked into.
const ExtractDir = ".extract"

const osCreateFlags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC

// Origin tells where a drop was found.
type Origin string

// Drop origins.
const (
	OriginPending Origin = "pending"
	OriginNoMatch Origin = "nomatch"
	OriginArchive Origin = "archive"
)

// Drop is one candidate artwork file.
type Drop struct {
	AbsPath string
	// RelPath is relative to the directory the drop was found in and is what
	// the parser sees.
	RelPath string
	Origin  Origin
	// Archive is the extraction directory for archive drops.
	Archive string
}

// Result is the outcome of one Scan.
type Result struct {
	Drops     []Drop
	Archives  int
	Converted int
	Errors    []domain.ReferenceError
}

// Consumer takes files out of the intake area.
type Consumer interface {
	Consume(path string) (string, error)
}

// Options configures a Scanner.
type Options struct {
	ConvertToJPEG bool
	JPEGQuality   int
}

// Scanner walks the intake directories.
type Scanner struct {
	fs       afero.Fs
	layout   mutator.Layout
	consumer Consumer
	opts     Options
	logger   *slog.Logger
}

// New creates a scanner.
func New(fsys afero.Fs, layout mutator.Layout, consumer Consumer, opts Options, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{fs: fsys, layout: layout, consumer: consumer, opts: opts, logger: logger}
}

// ExtractRoot returns the absolute extraction directory.
func (s *Scanner) ExtractRoot() string {
	return filepath.Join(s.layout.Pending, ExtractDir)
}

// Scan expands new archives, converts non-JPEG images and returns every
// drop in pending-intake, the extraction area and no-match. Per-file
// failures are collected in Result.Errors.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	res := &Result{}

	pending, err := s.walk(ctx, s.layout.Pending)
	if err != nil {
		return nil, fmt.Errorf("scan pending: %w", err)
	}
	for _, p := range pending {
		if IsArchive(p) {
			s.expand(ctx, p, res)
		}
	}

	// Re-walk: expansion may have consumed archives.
	pending, err = s.walk(ctx, s.layout.Pending)
	if err != nil {
		return nil, fmt.Errorf("scan pending: %w", err)
	}
	for _, p := range pending {
		if IsArchive(p) {
			continue
		}
		if d, ok := s.prepare(p, s.layout.Pending, OriginPending, "", res); ok {
			res.Drops = append(res.Drops, d)
		}
	}

	archiveDirs, err := afero.ReadDir(s.fs, s.ExtractRoot())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read extract root: %w", err)
	}
	for _, info := range archiveDirs {
		if !info.IsDir() {
			continue
		}
		dir := filepath.Join(s.ExtractRoot(), info.Name())
		files, err := s.walk(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("scan extracted %s: %w", info.Name(), err)
		}
		for _, p := range files {
			if d, ok := s.prepare(p, dir, OriginArchive, dir, res); ok {
				res.Drops = append(res.Drops, d)
			}
		}
	}

	held, err := s.walk(ctx, s.layout.NoMatch)
	if err != nil {
		return nil, fmt.Errorf("scan no-match: %w", err)
	}
	for _, p := range held {
		if d, ok := s.prepare(p, s.layout.NoMatch, OriginNoMatch, "", res); ok {
			res.Drops = append(res.Drops, d)
		}
	}

	s.logger.Debug("intake scanned",
		"drops", len(res.Drops),
		"archives", res.Archives,
		"converted", res.Converted,
		"errors", len(res.Errors),
	)
	return res, nil
}

// walk returns the non-hidden regular files below root in lexical order.
func (s *Scanner) walk(ctx context.Context, root string) ([]string, error) {
	var out []string
	err := afero.Walk(s.fs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

// expand unpacks one archive into the extraction area and consumes it.
// A failed extraction leaves the archive in place and records an error.
func (s *Scanner) expand(ctx context.Context, archive string, res *Result) {
	dir, err := freeDir(s.fs, filepath.Join(s.ExtractRoot(), archiveStem(filepath.Base(archive))))
	if err != nil {
		s.fail(res, archive, err)
		return
	}

	n, err := extract(ctx, s.fs, archive, dir)
	if err != nil {
		_ = s.fs.RemoveAll(dir)
		s.fail(res, archive, err)
		return
	}
	if _, err := s.consumer.Consume(archive); err != nil {
		_ = s.fs.RemoveAll(dir)
		s.fail(res, archive, err)
		return
	}
	res.Archives++
	s.logger.Info("expanded archive", "path", archive, "files", n)
}

// prepare turns a file into a drop, converting it to JPEG when configured.
// Files the parser cannot use are skipped.
func (s *Scanner) prepare(path, root string, origin Origin, archive string, res *Result) (Drop, bool) {
	name := filepath.Base(path)
	if s.opts.ConvertToJPEG && images.NeedsConversion(name) {
		converted, err := s.convert(path)
		if err != nil {
			s.fail(res, path, err)
			return Drop{}, false
		}
		if converted != path {
			res.Converted++
		}
		path = converted
		name = filepath.Base(path)
	}
	if !parser.SupportedImage(name) {
		s.logger.Debug("ignoring non-image file", "path", path)
		return Drop{}, false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		s.fail(res, path, err)
		return Drop{}, false
	}
	return Drop{AbsPath: path, RelPath: filepath.ToSlash(rel), Origin: origin, Archive: archive}, true
}

// convert writes a JPEG next to path and consumes the original. When the
// JPEG name is already taken the original is kept as is.
func (s *Scanner) convert(path string) (string, error) {
	dst := images.JPEGName(path)
	if exists, err := afero.Exists(s.fs, dst); err != nil {
		return "", err
	} else if exists {
		s.logger.Warn("not converting, jpg of the same name exists", "path", path)
		return path, nil
	}
	if err := images.ToJPEG(s.fs, path, dst, s.opts.JPEGQuality); err != nil {
		return "", err
	}
	if _, err := s.consumer.Consume(path); err != nil {
		return "", err
	}
	return dst, nil
}

func (s *Scanner) fail(res *Result, path string, err error) {
	s.logger.Warn("intake failed", "path", path, "error", err)
	res.Errors = append(res.Errors, domain.ReferenceError{
		Path:    path,
		Code:    string(domainerrors.CodeInternal),
		Message: err.Error(),
	})
}

// Cleanup consumes whatever is left in the extraction area that is not
// artwork and removes empty directories below pending-intake and no-match.
func (s *Scanner) Cleanup(ctx context.Context) error {
	root := s.ExtractRoot()
	var leftovers []string
	err := afero.Walk(s.fs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.Mode().IsRegular() && !parser.SupportedImage(info.Name()) && !images.NeedsConversion(info.Name()) {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk extract root: %w", err)
	}
	for _, p := range leftovers {
		if _, err := s.consumer.Consume(p); err != nil {
			s.logger.Warn("could not consume archive remnant", "path", p, "error", err)
		}
	}
	if err := removeEmptyDirs(s.fs, s.layout.Pending); err != nil {
		return err
	}
	return removeEmptyDirs(s.fs, s.layout.NoMatch)
}

// removeEmptyDirs removes empty directories below root, deepest first,
// leaving root itself.
func removeEmptyDirs(fsys afero.Fs, root string) error {
	if ok, err := afero.DirExists(fsys, root); err != nil || !ok {
		return err
	}
	var dirs []string
	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := afero.ReadDir(fsys, dirs[i])
		if err == nil && len(entries) == 0 {
			_ = fsys.Remove(dirs[i])
		}
	}
	return nil
}
