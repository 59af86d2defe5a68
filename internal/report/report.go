// Package report renders the human-readable pass report files.
package report

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/afero"

	"github.com/coversync/coversync-server/internal/domain"
)

// Report file names.
const (
	UnmatchedFile = "unmatched.txt"
	MissingFile   = "missing_folders.txt"
	ExtraFile     = "extra_folders.txt"
)

// Writer writes report files into one directory, replacing them each pass.
type Writer struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
}

// NewWriter creates a report writer for dir.
func NewWriter(fsys afero.Fs, dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{fs: fsys, dir: dir, logger: logger}
}

// Dir returns the report directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write renders r and the unmatched registry.
func (w *Writer) Write(r *domain.Report, unmatched []domain.UnmatchedEntry) error {
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	files := map[string]string{
		UnmatchedFile: RenderUnmatched(r, unmatched),
		MissingFile:   renderLines("Folder not found: ", r.MissingFolders),
		ExtraFile:     renderLines("Didn't use Folder: ", r.UnusedFolders),
	}
	for name, content := range files {
		if err := w.replace(name, content); err != nil {
			return err
		}
	}
	w.logger.Debug("report written", "dir", w.dir, "unmatched", len(unmatched))
	return nil
}

// replace writes content to a temp file and renames it over name.
func (w *Writer) replace(name, content string) error {
	tmp, err := afero.TempFile(w.fs, w.dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := w.fs.Rename(tmpName, filepath.Join(w.dir, name)); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func renderLines(prefix string, items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(prefix)
		b.WriteString(it)
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderUnmatched renders the pass summary followed by a table of the
// unmatched registry.
func RenderUnmatched(r *domain.Report, unmatched []domain.UnmatchedEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pass %s (%s) completed %s\n", r.PassID, r.Trigger, r.CompletedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Matched: %d  Unmatched: %d  Ambiguous: %d  Archived: %d\n\n",
		r.Matched, r.Unmatched, r.Ambiguous, r.Archived)

	if len(unmatched) == 0 {
		b.WriteString("No unmatched artwork.\n")
		return b.String()
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Key", "Source", "Reason", "Candidates", "Attempts", "First seen"})
	for _, u := range unmatched {
		tw.AppendRow(table.Row{
			u.Key,
			u.SourcePath,
			u.Reason,
			strings.Join(u.Candidates, ", "),
			strconv.Itoa(u.Attempts),
			u.FirstSeen.Format("2006-01-02 15:04"),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	b.WriteString(tw.Render())
	b.WriteByte('\n')
	return b.String()
}
