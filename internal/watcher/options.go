package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Options configures the file watcher behavior.
type Options struct {
	IgnorePatterns []string
	SettleDelay    time.Duration
	IgnoreHidden   bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 2 * time.Second
	}

	// Default patterns cover editor and browser partials. When patterns are
	// set explicitly (even to an empty slice) IgnoreHidden is left alone.
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"Thumbs.db",
			"*.tmp",
			"*.temp",
			"*.part",
			"*.crdownload",
		}
		o.IgnoreHidden = true
	}
}

// shouldIgnore checks a path relative to its watched root against the
// ignore rules. Hidden components (the archive extraction area among them)
// are skipped when IgnoreHidden is set.
func (o *Options) shouldIgnore(rel string) bool {
	if o.IgnoreHidden {
		for part := range strings.SplitSeq(filepath.ToSlash(filepath.Clean(rel)), "/") {
			if strings.HasPrefix(part, ".") && part != "." && part != ".." {
				return true
			}
		}
	}

	base := filepath.Base(rel)
	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}

	return false
}
