package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coversync/coversync-server/internal/domain"
	domainerrors "github.com/coversync/coversync-server/internal/errors"
	"github.com/coversync/coversync-server/internal/store"
)

type fakeLookup struct {
	calls  atomic.Int32
	titles map[string][]domain.AltTitle
	err    error
}

func (f *fakeLookup) ResolveTitles(_ context.Context, title string, _ int) ([]domain.AltTitle, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.titles[title], nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]store.CachedTitles
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]store.CachedTitles)}
}

func (m *memCache) GetCachedTitles(_ context.Context, norm string, year int, ttl time.Duration) (*store.CachedTitles, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.entries[fmt.Sprintf("%s:%d", norm, year)]
	if !ok || time.Since(c.FetchedAt) > ttl {
		return nil, nil
	}
	return &c, nil
}

func (m *memCache) SetCachedTitles(_ context.Context, norm string, year int, titles []domain.AltTitle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if titles == nil {
		titles = []domain.AltTitle{}
	}
	m.entries[fmt.Sprintf("%s:%d", norm, year)] = store.CachedTitles{Titles: titles, FetchedAt: time.Now()}
	return nil
}

func amelieRef() domain.CoverReference {
	return domain.CoverReference{Kind: domain.KindMovie, Title: "Amélie", Year: 2001}
}

// resolveOK resolves ref and requires the lookup to succeed.
func resolveOK(t *testing.T, r *Resolver, ref domain.CoverReference) []string {
	t.Helper()
	got, err := r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	return got
}

func TestResolve_CachesAnswer(t *testing.T) {
	lookup := &fakeLookup{titles: map[string][]domain.AltTitle{
		"Amélie": {{Language: "fr", Title: "Le Fabuleux Destin d'Amélie Poulain"}},
	}}
	cache := newMemCache()
	r := New(lookup, cache, time.Hour, nil)

	got := resolveOK(t, r, amelieRef())
	assert.Equal(t, []string{"Le Fabuleux Destin d'Amélie Poulain"}, got)

	got = resolveOK(t, r, amelieRef())
	assert.Equal(t, []string{"Le Fabuleux Destin d'Amélie Poulain"}, got)
	assert.Equal(t, int32(1), lookup.calls.Load())
}

func TestResolve_CachesEmptyAnswer(t *testing.T) {
	lookup := &fakeLookup{}
	cache := newMemCache()
	r := New(lookup, cache, time.Hour, nil)

	assert.Nil(t, resolveOK(t, r, amelieRef()))
	assert.Nil(t, resolveOK(t, r, amelieRef()))
	assert.Equal(t, int32(1), lookup.calls.Load())
}

func TestResolve_ExpiredEntryRefetches(t *testing.T) {
	lookup := &fakeLookup{}
	cache := newMemCache()
	cache.entries["amelie:2001"] = store.CachedTitles{
		Titles:    []domain.AltTitle{{Title: "stale"}},
		FetchedAt: time.Now().Add(-2 * time.Hour),
	}
	r := New(lookup, cache, time.Hour, nil)

	assert.Nil(t, resolveOK(t, r, amelieRef()))
	assert.Equal(t, int32(1), lookup.calls.Load())
}

func TestResolve_FailureDegradesAndIsNotCached(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("connection refused")}
	cache := newMemCache()
	r := New(lookup, cache, time.Hour, nil)

	got, err := r.Resolve(context.Background(), amelieRef())
	assert.Nil(t, got)
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeLookupFailure, domainerrors.CodeOf(err))
	assert.ErrorContains(t, err, "connection refused")
	assert.Empty(t, cache.entries)

	lookup.err = nil
	resolveOK(t, r, amelieRef())
	assert.Equal(t, int32(2), lookup.calls.Load())
	assert.Len(t, cache.entries, 1)
}

func TestResolve_Disabled(t *testing.T) {
	r := New(nil, newMemCache(), 0, nil)
	assert.False(t, r.Enabled())
	assert.Nil(t, resolveOK(t, r, amelieRef()))

	var nilResolver *Resolver
	assert.False(t, nilResolver.Enabled())
}

func TestResolve_WithBadgerCache(t *testing.T) {
	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	lookup := &fakeLookup{titles: map[string][]domain.AltTitle{
		"Amélie": {{Language: "de-DE", Title: "Die fabelhafte Welt der Amélie"}},
	}}
	r := New(lookup, s, 0, nil)

	assert.Equal(t, []string{"Die fabelhafte Welt der Amélie"}, resolveOK(t, r, amelieRef()))
	assert.Equal(t, []string{"Die fabelhafte Welt der Amélie"}, resolveOK(t, r, amelieRef()))
	assert.Equal(t, int32(1), lookup.calls.Load())
}
