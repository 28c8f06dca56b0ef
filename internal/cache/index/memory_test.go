package index

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parrotgw/parrot/internal/fingerprint"
)

func newEntry(tenant, exactKey string, simhash int64) *Entry {
	now := time.Now().UTC()
	expires := now.Add(time.Hour)

	return &Entry{
		ID:                uuid.NewString(),
		Tenant:            tenant,
		ExactKey:          exactKey,
		SimHash:           simhash,
		Embedding:         []float32{1, 0, 0},
		CanonicalPrompt:   "user: hello",
		RawPromptHMAC:     "digest",
		RequestBlob:       []byte(`{}`),
		ResponseBlob:      []byte(`{}`),
		Model:             "gpt-4",
		ModelFamily:       "gpt-4",
		TemperatureBucket: fingerprint.BucketDefault,
		Mode:              fingerprint.ModeText,
		ToolSchemaHash:    fingerprint.ToolSchemaNone,
		CreatedAt:         now,
		ExpiresAt:         &expires,
	}
}

func TestMemoryStore_InsertDuplicateIgnored(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := newEntry("t", "k", 1)
	require.NoError(t, store.Insert(ctx, first))

	second := newEntry("t", "k", 1)
	second.Model = "other"
	require.NoError(t, store.Insert(ctx, second))

	entries, err := store.Candidates(ctx, Query{
		Tenant: "t", Mode: fingerprint.ModeText, Match: MatchAny,
		SimHash: 1, MaxHamming: 6, Now: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gpt-4", entries[0].Model)
}

func TestMemoryStore_CandidatesFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	inRadius := newEntry("t", "a", 0b1)
	require.NoError(t, store.Insert(ctx, inRadius))

	outOfRadius := newEntry("t", "b", -1)
	require.NoError(t, store.Insert(ctx, outOfRadius))

	otherMode := newEntry("t", "c", 0b1)
	otherMode.Mode = fingerprint.ModeJSONObject
	require.NoError(t, store.Insert(ctx, otherMode))

	otherModel := newEntry("t", "d", 0b1)
	otherModel.Model = "claude-3-opus"
	require.NoError(t, store.Insert(ctx, otherModel))

	expired := newEntry("t", "e", 0b1)
	past := now.Add(-time.Minute)
	expired.ExpiresAt = &past
	require.NoError(t, store.Insert(ctx, expired))

	entries, err := store.Candidates(ctx, Query{
		Tenant: "t", Mode: fingerprint.ModeText,
		Match: MatchModel, Model: "gpt-4",
		SimHash: 0b1, MaxHamming: 6, Now: now,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ExactKey)
}

func TestMemoryStore_CandidatesOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	near := newEntry("t", "near", 0b1)
	require.NoError(t, store.Insert(ctx, near))

	far := newEntry("t", "far", 0b111)
	require.NoError(t, store.Insert(ctx, far))

	popular := newEntry("t", "popular", 0b11)
	popular.HitCount = 10
	require.NoError(t, store.Insert(ctx, popular))

	alsoTwoBits := newEntry("t", "quiet", 0b101)
	require.NoError(t, store.Insert(ctx, alsoTwoBits))

	entries, err := store.Candidates(ctx, Query{
		Tenant: "t", Mode: fingerprint.ModeText, Match: MatchAny,
		SimHash: 0b1, MaxHamming: 6, Now: now,
	})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "near", entries[0].ExactKey)
	assert.Equal(t, "popular", entries[1].ExactKey)
}

func TestMemoryStore_GoldenSurvivesSweep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	golden := newEntry("t", "golden", 1)
	require.NoError(t, store.Insert(ctx, golden))
	require.NoError(t, store.Promote(ctx, golden.ID))

	mortal := newEntry("t", "mortal", 1)
	past := now.Add(-time.Minute)
	mortal.ExpiresAt = &past
	require.NoError(t, store.Insert(ctx, mortal))

	deleted, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	stats, err := store.Stats(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)
	assert.Equal(t, int64(1), stats.GoldenEntries)
}

func TestMemoryStore_TouchHit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	entry := newEntry("t", "k", 1)
	require.NoError(t, store.Insert(ctx, entry))
	require.NoError(t, store.TouchHit(ctx, entry.ID, now))
	require.NoError(t, store.TouchHit(ctx, entry.ID, now))

	stats, err := store.Stats(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalHits)
}

func TestMemoryStore_Purge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newEntry("a", "k1", 1)))
	require.NoError(t, store.Insert(ctx, newEntry("b", "k2", 1)))
	require.NoError(t, store.Purge(ctx, "a"))

	statsA, err := store.Stats(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, statsA.Entries)

	statsB, err := store.Stats(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), statsB.Entries)
}

func TestVectorLiteralRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1, 0.125}

	literal := vectorLiteral(vec)
	require.NotNil(t, literal)

	parsed, err := parseVector(*literal)
	require.NoError(t, err)
	require.Equal(t, vec, parsed)

	assert.Nil(t, vectorLiteral(nil))
}
