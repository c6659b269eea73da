// Package identity resolves player display names for the room service.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NameCache is the fast path, backed by Redis in production.
type NameCache interface {
	GetNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
	SetNames(ctx context.Context, names map[uuid.UUID]string) error
	Evict(ctx context.Context, id uuid.UUID) error
}

// NameStore is the source of truth for usernames.
type NameStore interface {
	GetUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// CachedResolver answers name lookups from the cache first and fills misses
// from the store. A failing cache only costs speed.
type CachedResolver struct {
	cache NameCache
	store NameStore
	log   *logrus.Logger
}

// NewCachedResolver builds a resolver. cache may be nil.
func NewCachedResolver(cache NameCache, store NameStore, logger *logrus.Logger) *CachedResolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedResolver{cache: cache, store: store, log: logger}
}

// ResolveDisplayNames returns the names it could find. On a store error the
// partial result is returned along with the error.
func (r *CachedResolver) ResolveDisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	ids = unique(ids)
	out := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	if r.cache != nil {
		hits, err := r.cache.GetNames(ctx, ids)
		if err != nil {
			r.log.WithError(err).Warn("name cache unavailable, falling back to database")
		}
		for id, name := range hits {
			out[id] = name
		}
	}

	misses := make([]uuid.UUID, 0, len(ids)-len(out))
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	found, err := r.store.GetUsernames(ctx, misses)
	for id, name := range found {
		out[id] = name
	}
	if len(found) > 0 && r.cache != nil {
		if cacheErr := r.cache.SetNames(ctx, found); cacheErr != nil {
			r.log.WithError(cacheErr).Warn("failed to write display names back to cache")
		}
	}
	if err != nil {
		return out, fmt.Errorf("failed to resolve %d display names: %w", len(misses), err)
	}
	return out, nil
}

// Evict forgets a player's cached name.
func (r *CachedResolver) Evict(ctx context.Context, id uuid.UUID) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Evict(ctx, id)
}

func unique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
