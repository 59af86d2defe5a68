package mutator

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// move renames src to dst, creating dst's directory. Across filesystems it
// falls back to copy and remove.
func move(fsys afero.Fs, src, dst string) error {
	if err := fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	err := fsys.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("move %s: %w", filepath.Base(src), err)
	}
	if err := copyFile(fsys, src, dst); err != nil {
		return err
	}
	if err := fsys.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

func copyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := fsys.Create(tmp)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = fsys.Remove(tmp)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("close destination: %w", err)
	}
	return fsys.Rename(tmp, dst)
}

// freeName returns dst, or "name (N).ext" with the lowest N that does not exist.
func freeName(fsys afero.Fs, dst string) (string, error) {
	ext := filepath.Ext(dst)
	base := strings.TrimSuffix(dst, ext)
	candidate := dst
	for n := 1; ; n++ {
		_, err := fsys.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
}
