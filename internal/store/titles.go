package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/coversync/coversync-server/internal/domain"
)

// CachedTitles wraps alternate titles with cache info. An empty Titles slice
// is a valid cached answer ("the lookup found nothing").
type CachedTitles struct {
	Titles    []domain.AltTitle `json:"titles"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// GetCachedTitles retrieves cached alternate titles.
// Returns nil, nil if not found or older than ttl. Expired entries are left in
// place and overwritten by the next SetCachedTitles.
func (s *Store) GetCachedTitles(ctx context.Context, normTitle string, year int, ttl time.Duration) (*CachedTitles, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cached CachedTitles
	err := s.get(titlesKey(normTitle, year), &cached)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached titles: %w", err)
	}

	if time.Since(cached.FetchedAt) > ttl {
		return nil, nil
	}

	return &cached, nil
}

// SetCachedTitles stores alternate titles in the cache.
func (s *Store) SetCachedTitles(ctx context.Context, normTitle string, year int, titles []domain.AltTitle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if titles == nil {
		titles = []domain.AltTitle{}
	}
	return s.set(titlesKey(normTitle, year), CachedTitles{Titles: titles, FetchedAt: time.Now()})
}
