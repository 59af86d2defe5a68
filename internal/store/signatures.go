package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// LoadSignatures returns the committed id -> content signature map.
func (s *Store) LoadSignatures(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]string)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(signaturePrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), signaturePrefix)
			var sig string
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sig)
			}); err != nil {
				return fmt.Errorf("unmarshal signature %s: %w", id, err)
			}
			out[id] = sig
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceSignatures makes sigs the committed map: ids missing from sigs are
// deleted and every pair in sigs is written.
func (s *Store) ReplaceSignatures(ctx context.Context, sigs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := s.keysWithPrefix(signaturePrefix)
	if err != nil {
		return fmt.Errorf("list signatures: %w", err)
	}

	bw := s.NewBatchWriter(1000)
	for _, key := range existing {
		if _, keep := sigs[strings.TrimPrefix(key, signaturePrefix)]; keep {
			continue
		}
		if err := bw.Delete([]byte(key)); err != nil {
			bw.Cancel()
			return err
		}
	}
	for id, sig := range sigs {
		if err := bw.Set(signatureKey(id), sig); err != nil {
			bw.Cancel()
			return err
		}
	}
	if bw.Count() == 0 {
		bw.Cancel()
		return nil
	}
	return bw.Flush()
}
