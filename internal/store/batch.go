package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// BatchWriter provides efficient bulk write operations using BadgerDB's WriteBatch.
type BatchWriter struct {
	store     *Store
	batch     *badger.WriteBatch
	maxSize   int
	count     int
	autoFlush bool
}

// NewBatchWriter creates a new batch writer that will auto-flush when maxSize is reached.
func (s *Store) NewBatchWriter(maxSize int) *BatchWriter {
	return &BatchWriter{
		store:     s,
		batch:     s.db.NewWriteBatch(),
		maxSize:   maxSize,
		autoFlush: true,
	}
}

// Set adds a JSON encoded value to the batch.
func (b *BatchWriter) Set(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal batch value: %w", err)
	}
	if err := b.batch.Set(key, data); err != nil {
		return fmt.Errorf("batch set: %w", err)
	}
	return b.added()
}

// Delete adds a key removal to the batch.
func (b *BatchWriter) Delete(key []byte) error {
	if err := b.batch.Delete(key); err != nil {
		return fmt.Errorf("batch delete: %w", err)
	}
	return b.added()
}

func (b *BatchWriter) added() error {
	b.count++
	if b.autoFlush && b.count >= b.maxSize {
		if err := b.Flush(); err != nil {
			return fmt.Errorf("auto flush: %w", err)
		}
	}
	return nil
}

// Flush commits all pending writes in the batch.
func (b *BatchWriter) Flush() error {
	if b.count == 0 {
		return nil
	}

	if err := b.batch.Flush(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}

	if b.store.logger != nil {
		b.store.logger.LogAttrs(context.Background(), slog.LevelDebug, "batch flushed",
			slog.Int("count", b.count),
		)
	}

	b.count = 0
	b.batch = b.store.db.NewWriteBatch()

	return nil
}

// Cancel discards all pending writes in the batch.
func (b *BatchWriter) Cancel() {
	b.batch.Cancel()
	b.count = 0
}

// Count returns the number of operations in the current batch.
func (b *BatchWriter) Count() int {
	return b.count
}
