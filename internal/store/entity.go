package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/dgraph-io/badger/v4"
)

// Entity provides generic CRUD operations for any domain type stored under a key prefix.
type Entity[T any] struct {
	store  *Store
	prefix string
}

// NewEntity creates a new Entity instance for type T.
func NewEntity[T any](s *Store, prefix string) *Entity[T] {
	return &Entity[T]{
		store:  s,
		prefix: prefix,
	}
}

// Create creates a new entity with the given ID.
// Returns ErrAlreadyExists if an entity with this ID already exists.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	key := []byte(e.prefix + id)
	return e.store.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity T
	err := e.store.get([]byte(e.prefix+id), &entity)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return &entity, nil
}

// Upsert reads the current value (nil when absent), lets fn produce the new
// value and writes it back in the same transaction.
func (e *Entity[T]) Upsert(ctx context.Context, id string, fn func(current *T) *T) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := []byte(e.prefix + id)
	var next *T
	err := e.store.db.Update(func(txn *badger.Txn) error {
		var current *T
		item, err := txn.Get(key)
		switch {
		case err == nil:
			current = new(T)
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, current)
			}); err != nil {
				return fmt.Errorf("failed to unmarshal entity: %w", err)
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("failed to get key: %w", err)
		}

		next = fn(current)
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal entity: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Delete deletes an entity by ID.
// This operation is idempotent - it does not return an error if the entity does not exist.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := e.store.delete([]byte(e.prefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Exists reports whether an entity with the ID is stored.
func (e *Entity[T]) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.store.exists([]byte(e.prefix + id))
}

// List returns an iterator over all entities in key order.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		_ = e.store.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(e.prefix)
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek([]byte(e.prefix)); it.ValidForPrefix([]byte(e.prefix)); it.Next() {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				var entity T
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				})
				if err != nil {
					yield(nil, err)
					return err
				}

				if !yield(&entity, nil) {
					return nil // Consumer stopped early
				}
			}

			return nil
		})
	}
}

// Collect drains List into a slice.
func (e *Entity[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for v, err := range e.List(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
