package index

import (
	"context"
	"time"

	"github.com/parrotgw/parrot/internal/fingerprint"
)

// Entry is one persisted cache row.
type Entry struct {
	ID                string
	Tenant            string
	ExactKey          string
	SimHash           int64
	Embedding         []float32
	CanonicalPrompt   string
	RawPromptHMAC     string
	RequestBlob       []byte
	ResponseBlob      []byte
	Model             string
	ModelFamily       string
	TemperatureBucket fingerprint.TemperatureBucket
	TopP              *float64
	Mode              fingerprint.Mode
	ToolSchemaHash    string
	HitCount          int64
	LastHitAt         *time.Time
	IsGolden          bool
	PIIPresent        bool
	CreatedAt         time.Time
	ExpiresAt         *time.Time
}

// Live reports whether the entry may still be served at the given time.
// Golden entries never expire.
func (e *Entry) Live(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// ModelMatch selects how candidate models are filtered.
type ModelMatch int

const (
	// MatchModel filters on exact model string equality.
	MatchModel ModelMatch = iota

	// MatchFamily filters on the model family.
	MatchFamily

	// MatchAny applies no model filter.
	MatchAny
)

// Query selects template-match candidates.
type Query struct {
	Tenant      string
	Mode        fingerprint.Mode
	Match       ModelMatch
	Model       string
	ModelFamily string
	SimHash     int64
	MaxHamming  int
	Limit       int
	Now         time.Time
}

// Stats summarizes the indexed tier for the operational surface.
type Stats struct {
	Entries       int64 `json:"entries"`
	GoldenEntries int64 `json:"golden_entries"`
	TotalHits     int64 `json:"total_hits"`
}

// Store is the persistent template-match tier.
type Store interface {
	// Insert persists the entry. A duplicate (tenant, exact_key) is ignored
	// silently.
	Insert(ctx context.Context, entry *Entry) error

	// Candidates returns live entries of the tenant matching mode and model
	// filter within the Hamming radius, ordered by distance then hit count,
	// capped at Limit.
	Candidates(ctx context.Context, query Query) ([]*Entry, error)

	// TouchHit increments hit_count and advances last_hit_at.
	TouchHit(ctx context.Context, id string, at time.Time) error

	// Promote marks the entry golden, exempting it from TTL eviction.
	Promote(ctx context.Context, id string) error

	// DeleteExpired removes non-golden entries whose expiry has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Purge removes every entry of the tenant.
	Purge(ctx context.Context, tenant string) error

	// Stats reports entry counts for the tenant.
	Stats(ctx context.Context, tenant string) (*Stats, error)
}
