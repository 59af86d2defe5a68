package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/coversync/coversync-server/internal/domain"
)

// AppendHistory writes a history record. Records are never overwritten;
// appending a record whose key already exists fails with ErrAlreadyExists.
func (s *Store) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" || rec.EntryID == "" {
		return fmt.Errorf("history record needs id and entry id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}

	key := historyKey(rec.EntryID, rec.ReplacedAt, rec.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// ListHistory returns the records of one entry, oldest first.
func (s *Store) ListHistory(ctx context.Context, entryID string) ([]domain.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(historyEntryPrefix(entryID))
	var out []domain.HistoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec domain.HistoryRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("unmarshal history record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
