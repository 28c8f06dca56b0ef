package hot

import (
	"context"
	"strings"
	"time"

	cachelib "github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is the in-process hot tier for single-node and embedded runs.
type MemoryStore struct {
	cache  cachelib.SetterCacheInterface[[]byte]
	client *gocache.Cache
}

// NewMemoryStore builds an in-memory hot tier with the given default
// expiration and cleanup interval.
func NewMemoryStore(defaultExpiration, cleanupInterval time.Duration) *MemoryStore {
	if defaultExpiration == 0 {
		defaultExpiration = 5 * time.Minute
	}

	if cleanupInterval == 0 {
		cleanupInterval = 10 * time.Minute
	}

	client := gocache.New(defaultExpiration, cleanupInterval)

	return &MemoryStore{
		cache:  cachelib.New[[]byte](gocache_store.NewGoCache(client)),
		client: client,
	}
}

func (s *MemoryStore) Get(ctx context.Context, tenant, exactKey string) (*Envelope, error) {
	data, err := s.cache.Get(ctx, cacheKey(tenant, exactKey))
	if err != nil {
		// The memory backend cannot fail; every error is a miss.
		return nil, ErrNotFound
	}

	return decodeEnvelope(data)
}

func (s *MemoryStore) Set(ctx context.Context, tenant, exactKey string, envelope *Envelope, ttl time.Duration) error {
	data, err := encodeEnvelope(envelope)
	if err != nil {
		return err
	}

	return s.cache.Set(ctx, cacheKey(tenant, exactKey), data, store.WithExpiration(ttl))
}

func (s *MemoryStore) Delete(ctx context.Context, tenant, exactKey string) error {
	return s.cache.Delete(ctx, cacheKey(tenant, exactKey))
}

func (s *MemoryStore) Clear(_ context.Context, tenant string) error {
	prefix := cacheKey(tenant, "")

	for key := range s.client.Items() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}

	return nil
}
