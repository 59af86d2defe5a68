package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"github.com/spf13/afero"
)

// archiveExts are the drop extensions treated as archives.
var archiveExts = []string{".zip", ".tar", ".tar.gz", ".tgz", ".tar.xz", ".tar.bz2", ".7z", ".rar"}

// IsArchive reports whether name looks like a supported archive.
func IsArchive(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// archiveStem strips the archive extension from a file name.
func archiveStem(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// extract unpacks the archive at src into dir and returns the number of
// files written. Entries escaping dir and hidden entries are skipped.
func extract(ctx context.Context, fsys afero.Fs, src, dir string) (int, error) {
	f, err := fsys.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(src), f)
	if err != nil {
		if errors.Is(err, archives.NoMatch) {
			return 0, fmt.Errorf("unrecognized archive format")
		}
		return 0, fmt.Errorf("identify archive: %w", err)
	}
	ex, ok := format.(archives.Extractor)
	if !ok {
		return 0, fmt.Errorf("format %s cannot be extracted", format.Extension())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind archive: %w", err)
	}

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create extract dir: %w", err)
	}

	written := 0
	err = ex.Extract(ctx, f, func(ctx context.Context, info archives.FileInfo) error {
		if info.IsDir() || info.LinkTarget != "" {
			return nil
		}
		rel, ok := safeEntryPath(info.NameInArchive)
		if !ok {
			return nil
		}
		if err := writeEntry(fsys, info, filepath.Join(dir, rel)); err != nil {
			return err
		}
		written++
		return nil
	})
	if err != nil {
		return written, fmt.Errorf("extract: %w", err)
	}
	return written, nil
}

// safeEntryPath cleans an archive entry name and rejects absolute, escaping
// and hidden paths (including __MACOSX resource forks).
func safeEntryPath(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean == "." {
		return "", false
	}
	for part := range strings.SplitSeq(clean, "/") {
		if part == ".." || strings.HasPrefix(part, ".") || part == "__MACOSX" {
			return "", false
		}
	}
	return filepath.FromSlash(clean), true
}

func writeEntry(fsys afero.Fs, info archives.FileInfo, dst string) error {
	in, err := info.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", info.NameInArchive, err)
	}
	defer in.Close()

	if err := fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}
	out, err := fsys.OpenFile(dst, osCreateFlags, 0o644)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("write entry %s: %w", dst, err)
	}
	return out.Close()
}

// freeDir returns dir, or "dir (N)" with the lowest N that does not exist.
func freeDir(fsys afero.Fs, dir string) (string, error) {
	candidate := dir
	for n := 1; ; n++ {
		_, err := fsys.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s (%d)", dir, n)
	}
}
