package hot

import (
	"context"
	"errors"
	"time"

	"github.com/parrotgw/parrot/internal/fingerprint"
)

// ErrNotFound is returned on a clean miss.
var ErrNotFound = errors.New("hot tier: entry not found")

// Envelope is the value stored under (tenant, exact key). It carries enough
// metadata to serve an exact hit without touching the indexed tier.
type Envelope struct {
	EntryID   string           `msgpack:"entry_id"`
	Model     string           `msgpack:"model"`
	Mode      fingerprint.Mode `msgpack:"mode"`
	Response  []byte           `msgpack:"response"`
	CreatedAt time.Time        `msgpack:"created_at"`
}

// Store is the exact-match key/value tier. Implementations must treat a miss
// as ErrNotFound and reserve other errors for dependency failures.
type Store interface {
	Get(ctx context.Context, tenant, exactKey string) (*Envelope, error)
	Set(ctx context.Context, tenant, exactKey string, envelope *Envelope, ttl time.Duration) error
	Delete(ctx context.Context, tenant, exactKey string) error
	Clear(ctx context.Context, tenant string) error
}

func cacheKey(tenant, exactKey string) string {
	return "parrot:cache:" + tenant + ":" + exactKey
}
