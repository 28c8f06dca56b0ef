package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parrotgw/parrot/internal/cache/index"
	"github.com/parrotgw/parrot/internal/fingerprint"
)

func f64(v float64) *float64 { return &v }

func TestScore_PerfectMatch(t *testing.T) {
	now := time.Now().UTC()

	input := &ScoreInput{
		SimHash:           42,
		Embedding:         []float32{1, 0},
		TemperatureBucket: fingerprint.BucketDefault,
		WithSemantic:      true,
	}

	candidate := &index.Entry{
		SimHash:           42,
		Embedding:         []float32{1, 0},
		TemperatureBucket: fingerprint.BucketDefault,
		CreatedAt:         now,
	}

	breakdown := Score(input, candidate, now)
	assert.InDelta(t, 1.0, breakdown.Semantic, 1e-9)
	assert.InDelta(t, 1.0, breakdown.Structural, 1e-9)
	assert.InDelta(t, 1.0, breakdown.Param, 1e-9)
	assert.InDelta(t, 1.0, breakdown.Recency, 1e-9)
	assert.InDelta(t, 1.0, breakdown.Composite, 1e-9)
}

func TestScore_SemanticDominates(t *testing.T) {
	now := time.Now().UTC()

	input := &ScoreInput{
		SimHash:           42,
		Embedding:         []float32{1, 0},
		TemperatureBucket: fingerprint.BucketDefault,
		WithSemantic:      true,
	}

	// Structurally identical but semantically orthogonal: the composite
	// drops below the default threshold.
	candidate := &index.Entry{
		SimHash:           42,
		Embedding:         []float32{0, 1},
		TemperatureBucket: fingerprint.BucketDefault,
		CreatedAt:         now,
	}

	breakdown := Score(input, candidate, now)
	assert.InDelta(t, 0.5, breakdown.Semantic, 1e-9)
	assert.Less(t, breakdown.Composite, 0.87)
}

func TestScore_RecencyDecay(t *testing.T) {
	now := time.Now().UTC()

	input := &ScoreInput{SimHash: 1, TemperatureBucket: fingerprint.BucketDefault}

	fresh := &index.Entry{SimHash: 1, TemperatureBucket: fingerprint.BucketDefault, CreatedAt: now}
	weekOld := &index.Entry{SimHash: 1, TemperatureBucket: fingerprint.BucketDefault, CreatedAt: now.Add(-168 * time.Hour)}

	freshScore := Score(input, fresh, now)
	oldScore := Score(input, weekOld, now)

	assert.InDelta(t, 1.0, freshScore.Recency, 1e-9)
	assert.InDelta(t, 0.3679, oldScore.Recency, 1e-3)
	assert.Greater(t, freshScore.Composite, oldScore.Composite)
}

func TestScore_WithoutSemanticRenormalizes(t *testing.T) {
	now := time.Now().UTC()

	input := &ScoreInput{SimHash: 7, TemperatureBucket: fingerprint.BucketDefault}
	candidate := &index.Entry{SimHash: 7, TemperatureBucket: fingerprint.BucketDefault, CreatedAt: now}

	breakdown := Score(input, candidate, now)
	assert.Zero(t, breakdown.Semantic)
	assert.InDelta(t, 1.0, breakdown.Composite, 1e-9)
}

func TestTemperatureCloseness(t *testing.T) {
	assert.InDelta(t, 1.0, temperatureCloseness(fingerprint.BucketLow, fingerprint.BucketLow), 1e-9)
	assert.InDelta(t, 0.5, temperatureCloseness(fingerprint.BucketLow, fingerprint.BucketZero), 1e-9)
	assert.InDelta(t, 0.0, temperatureCloseness(fingerprint.BucketZero, fingerprint.BucketVeryHigh), 1e-9)
}

func TestTopPCloseness(t *testing.T) {
	assert.InDelta(t, 1.0, topPCloseness(nil, nil), 1e-9)
	assert.InDelta(t, 1.0, topPCloseness(f64(1.0), nil), 1e-9)
	assert.InDelta(t, 1.0, topPCloseness(f64(0.5), f64(0.5)), 1e-9)
	assert.InDelta(t, 1.0, topPCloseness(f64(0.5), f64(0.505)), 1e-9)
	assert.InDelta(t, 0.8, topPCloseness(f64(0.5), f64(0.9)), 1e-9)
	assert.InDelta(t, 0.8, topPCloseness(nil, f64(0.5)), 1e-9)
}
