// Package catalog holds the in-memory library index: chunked catalog fetches
// merged into immutable snapshots that are published with an atomic swap.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/coversync/coversync-server/internal/domain"
	domainerrors "github.com/coversync/coversync-server/internal/errors"
)

// Source is the catalog collaborator.
type Source interface {
	// FetchSummary returns every entry's id and content signature.
	FetchSummary(ctx context.Context) ([]domain.Signature, error)
	// FetchChunk returns the entries of the page of at most limit items
	// starting at offset. Offsets count source items, so a page may carry
	// fewer entries than limit without being the last one.
	FetchChunk(ctx context.Context, offset, limit int) (domain.Chunk, error)
}

// Permanent is implemented by source errors that retrying cannot fix.
type Permanent interface {
	Permanent() bool
}

// Options configures an Index.
type Options struct {
	ChunkSize  int
	Attempts   uint
	RetryDelay time.Duration
}

func (o *Options) setDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 500
	}
	if o.Attempts == 0 {
		o.Attempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
}

// Index owns the current snapshot. Readers call Current and keep the returned
// snapshot for as long as they need a consistent view.
type Index struct {
	source  Source
	opts    Options
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]
}

// New creates an empty index over source.
func New(source Source, opts Options, logger *slog.Logger) *Index {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{source: source, opts: opts, logger: logger}
}

// Current returns the published snapshot, or nil before the first successful refresh.
func (i *Index) Current() *Snapshot {
	return i.current.Load()
}

// Source returns the collaborator the index fetches from.
func (i *Index) Source() Source {
	return i.source
}

// Refresh fetches the whole catalog chunk by chunk and publishes the merged
// snapshot. On any failure the partial merge is dropped, the previous snapshot
// stays published and a CATALOG_REFRESH_FAILURE error is returned.
func (i *Index) Refresh(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	limit := i.opts.ChunkSize

	var merged []domain.LibraryEntry
	seen := make(map[string]bool)
	chunks := 0

	for offset := 0; ; offset += limit {
		page, err := i.fetchChunk(ctx, offset, limit)
		if err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeCatalogRefresh,
				"fetch catalog chunk at offset %d", offset)
		}
		chunks++

		for _, e := range page.Entries {
			if seen[e.ID] {
				return nil, domainerrors.CatalogRefresh(
					fmt.Sprintf("catalog returned entry %q twice (offset %d)", e.ID, offset))
			}
			seen[e.ID] = true
		}
		merged = append(merged, page.Entries...)

		if page.Last {
			break
		}
	}

	snap, err := NewSnapshot(merged, time.Now())
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeCatalogRefresh, "index catalog")
	}
	i.current.Store(snap)

	i.logger.Info("catalog refreshed",
		"entries", snap.Len(),
		"chunks", chunks,
		"duration", time.Since(start),
	)
	return snap, nil
}

func (i *Index) fetchChunk(ctx context.Context, offset, limit int) (domain.Chunk, error) {
	var page domain.Chunk
	err := retry.Do(
		func() error {
			var err error
			page, err = i.source.FetchChunk(ctx, offset, limit)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(i.opts.Attempts),
		retry.Delay(i.opts.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var p Permanent
			return !errors.As(err, &p) || !p.Permanent()
		}),
		retry.OnRetry(func(n uint, err error) {
			i.logger.Warn("catalog chunk fetch failed, retrying",
				"offset", offset, "attempt", n+1, "error", err)
		}),
	)
	return page, err
}
