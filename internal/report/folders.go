package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
)

// MissingFolders returns the expected folders that hold no file below the
// cover root.
func MissingFolders(fsys afero.Fs, coverRoot string, expected []string) ([]string, error) {
	var out []string
	for _, folder := range expected {
		has, err := hasFile(fsys, filepath.Join(coverRoot, folder))
		if err != nil {
			return nil, err
		}
		if !has {
			out = append(out, folder)
		}
	}
	slices.Sort(out)
	return out, nil
}

// UnusedFolders returns the top-level directories of the cover root that no
// catalog entry expects.
func UnusedFolders(fsys afero.Fs, coverRoot string, expected []string) ([]string, error) {
	infos, err := afero.ReadDir(fsys, coverRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cover root: %w", err)
	}

	want := make(map[string]bool, len(expected))
	for _, f := range expected {
		want[f] = true
	}

	var out []string
	for _, info := range infos {
		if info.IsDir() && !want[info.Name()] {
			out = append(out, info.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

func hasFile(fsys afero.Fs, dir string) (bool, error) {
	found := false
	err := afero.Walk(fsys, dir, func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode().IsRegular() {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipAll) {
		return false, fmt.Errorf("walk %s: %w", dir, err)
	}
	return found, nil
}
