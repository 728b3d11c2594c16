package artifacts

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// CacheStats is a point-in-time snapshot of cache effectiveness counters.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// CachedStore decorates a Store with an LRU cache keyed by artifact path.
// Parsed artifacts are cached, so repeated model loads across cycles cost a
// map lookup instead of a fetch and a JSON parse.
type CachedStore struct {
	inner  Store
	cache  *lru.Cache[string, any]
	logger zerolog.Logger

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// NewCachedStore wraps inner with an LRU cache holding up to size entries.
func NewCachedStore(inner Store, size int, logger zerolog.Logger) (*CachedStore, error) {
	cache, err := lru.New[string, any](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{
		inner:  inner,
		cache:  cache,
		logger: logger.With().Str("component", "artifact-cache").Logger(),
	}, nil
}

// GetModel returns the cached network for path, fetching it on a miss.
func (s *CachedStore) GetModel(ctx context.Context, path string) (*Network, error) {
	key := "model:" + path
	if v, ok := s.lookup(key); ok {
		return v.(*Network), nil
	}
	n, err := s.inner.GetModel(ctx, path)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, n)
	return n, nil
}

// GetScaler returns the cached scaler bundle for path, fetching it on a miss.
func (s *CachedStore) GetScaler(ctx context.Context, path string) (ScalerBundle, error) {
	key := "scaler:" + path
	if v, ok := s.lookup(key); ok {
		return v.(ScalerBundle), nil
	}
	b, err := s.inner.GetScaler(ctx, path)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, b)
	return b, nil
}

// GetMetadata returns the cached metadata for path, fetching it on a miss.
func (s *CachedStore) GetMetadata(ctx context.Context, path string) (*Metadata, error) {
	key := "metadata:" + path
	if v, ok := s.lookup(key); ok {
		return v.(*Metadata), nil
	}
	m, err := s.inner.GetMetadata(ctx, path)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, m)
	return m, nil
}

// Invalidate drops every cached artifact for path and forwards the
// invalidation to the backing store.
func (s *CachedStore) Invalidate(path string) {
	s.cache.Remove("model:" + path)
	s.cache.Remove("scaler:" + path)
	s.cache.Remove("metadata:" + path)
	s.inner.Invalidate(path)
	s.logger.Debug().Str("path", path).Msg("artifact invalidated")
}

// Stats returns the current hit and miss counters.
func (s *CachedStore) Stats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CacheStats{Hits: s.hits, Misses: s.misses, Entries: s.cache.Len()}
}

func (s *CachedStore) lookup(key string) (any, bool) {
	v, ok := s.cache.Get(key)
	s.mu.Lock()
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	s.mu.Unlock()
	return v, ok
}
