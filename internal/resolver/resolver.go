// Package resolver turns a cover reference's title into the alternate titles
// the catalog may know it by (original title, translations, aliases).
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/coversync/coversync-server/internal/domain"
	domainerrors "github.com/coversync/coversync-server/internal/errors"
	"github.com/coversync/coversync-server/internal/normalize"
	"github.com/coversync/coversync-server/internal/store"
)

// DefaultTTL is how long a lookup answer stays fresh.
const DefaultTTL = 7 * 24 * time.Hour

// Lookup is the metadata-lookup collaborator.
type Lookup interface {
	ResolveTitles(ctx context.Context, title string, year int) ([]domain.AltTitle, error)
}

// Cache persists lookup answers.
type Cache interface {
	GetCachedTitles(ctx context.Context, normTitle string, year int, ttl time.Duration) (*store.CachedTitles, error)
	SetCachedTitles(ctx context.Context, normTitle string, year int, titles []domain.AltTitle) error
}

// Resolver is safe for concurrent use. Concurrent resolves of the same title
// share one lookup.
type Resolver struct {
	lookup Lookup
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// New creates a resolver. A nil lookup disables resolution: Resolve then
// always returns nil.
func New(lookup Lookup, cache Cache, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{lookup: lookup, cache: cache, ttl: ttl, logger: logger}
}

// Enabled reports whether lookups can happen.
func (r *Resolver) Enabled() bool {
	return r != nil && r.lookup != nil
}

// Resolve returns alternate titles for ref. A failed lookup degrades to no
// alternates and a LOOKUP_FAILURE error the caller reports; failures are not
// cached.
func (r *Resolver) Resolve(ctx context.Context, ref domain.CoverReference) ([]string, error) {
	if !r.Enabled() || ref.Title == "" {
		return nil, nil
	}
	norm := normalize.Title(ref.Title)
	if norm == "" {
		return nil, nil
	}

	if r.cache != nil {
		cached, err := r.cache.GetCachedTitles(ctx, norm, ref.Year, r.ttl)
		if err != nil {
			r.logger.Warn("title cache read failed", "title", ref.Title, "error", err)
		} else if cached != nil {
			return titles(cached.Titles), nil
		}
	}

	v, err, _ := r.group.Do(norm+"|"+strconv.Itoa(ref.Year), func() (any, error) {
		alts, err := r.lookup.ResolveTitles(ctx, ref.Title, ref.Year)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			if err := r.cache.SetCachedTitles(ctx, norm, ref.Year, alts); err != nil {
				r.logger.Warn("title cache write failed", "title", ref.Title, "error", err)
			}
		}
		return alts, nil
	})
	if err != nil {
		lerr := domainerrors.LookupFailure(fmt.Sprintf("resolve %q", ref.Title)).WithCause(err)
		r.logger.Warn("title lookup failed",
			"code", string(lerr.Code),
			"title", ref.Title,
			"year", ref.Year,
			"error", err,
		)
		return nil, lerr
	}
	return titles(v.([]domain.AltTitle)), nil
}

func titles(alts []domain.AltTitle) []string {
	if len(alts) == 0 {
		return nil
	}
	out := make([]string, 0, len(alts))
	for _, a := range alts {
		if a.Title != "" {
			out = append(out, a.Title)
		}
	}
	return out
}
