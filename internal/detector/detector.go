// Package detector flags catalog drift by diffing the live id/signature
// summary against the map persisted after the last successful pass.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/coversync/coversync-server/internal/domain"
)

// Summarizer fetches the lightweight catalog summary.
type Summarizer interface {
	FetchSummary(ctx context.Context) ([]domain.Signature, error)
}

// SignatureStore persists the last committed summary.
type SignatureStore interface {
	LoadSignatures(ctx context.Context) (map[string]string, error)
	ReplaceSignatures(ctx context.Context, sigs map[string]string) error
}

// Diff lists the dirty entry ids of one check.
type Diff struct {
	Added   []string
	Removed []string
	Changed []string
	// Summary is the fetched summary; pass it to Commit once the pass it
	// triggered has completed.
	Summary map[string]string
}

// Dirty reports whether anything changed.
func (d *Diff) Dirty() bool {
	return d.Count() > 0
}

// Count returns the number of dirty entries.
func (d *Diff) Count() int {
	return len(d.Added) + len(d.Removed) + len(d.Changed)
}

// IDs returns every dirty id, sorted.
func (d *Diff) IDs() []string {
	out := make([]string, 0, d.Count())
	out = append(out, d.Added...)
	out = append(out, d.Removed...)
	out = append(out, d.Changed...)
	slices.Sort(out)
	return out
}

// Detector is stateless between calls; the committed map lives in the store,
// so a crash mid-pass re-flags the same entries on the next check.
type Detector struct {
	source Summarizer
	store  SignatureStore
	logger *slog.Logger
}

// New creates a detector.
func New(source Summarizer, store SignatureStore, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{source: source, store: store, logger: logger}
}

// Check fetches the summary and diffs it against the committed map.
func (d *Detector) Check(ctx context.Context) (*Diff, error) {
	sigs, err := d.source.FetchSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch summary: %w", err)
	}
	current := make(map[string]string, len(sigs))
	for _, s := range sigs {
		current[s.ID] = s.Signature
	}
	return d.Compare(ctx, current)
}

// Compare diffs an already fetched summary against the committed map.
func (d *Detector) Compare(ctx context.Context, current map[string]string) (*Diff, error) {
	committed, err := d.store.LoadSignatures(ctx)
	if err != nil {
		return nil, fmt.Errorf("load signatures: %w", err)
	}

	diff := &Diff{Summary: current}
	for id, sig := range current {
		old, ok := committed[id]
		switch {
		case !ok:
			diff.Added = append(diff.Added, id)
		case old != sig:
			diff.Changed = append(diff.Changed, id)
		}
	}
	for id := range committed {
		if _, ok := current[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	slices.Sort(diff.Added)
	slices.Sort(diff.Removed)
	slices.Sort(diff.Changed)

	if diff.Dirty() {
		d.logger.Info("catalog drift detected",
			"added", len(diff.Added),
			"removed", len(diff.Removed),
			"changed", len(diff.Changed),
		)
	}
	return diff, nil
}

// Commit persists summary as the new baseline. Call only after a pass
// completed successfully.
func (d *Detector) Commit(ctx context.Context, summary map[string]string) error {
	if summary == nil {
		return nil
	}
	if err := d.store.ReplaceSignatures(ctx, summary); err != nil {
		return fmt.Errorf("commit signatures: %w", err)
	}
	return nil
}
