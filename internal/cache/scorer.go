package cache

import (
	"math"
	"time"

	"github.com/parrotgw/parrot/internal/cache/index"
	"github.com/parrotgw/parrot/internal/embedding"
	"github.com/parrotgw/parrot/internal/fingerprint"
)

// Composite weights. Semantic dominance suppresses the principal
// false-positive risk: a structurally identical masked template with a
// different concrete URL or ID.
const (
	weightSemantic   = 0.6
	weightStructural = 0.2
	weightParam      = 0.1
	weightRecency    = 0.1

	// recencyHalfLifeHours is the decay constant of exp(-age/168h): recency
	// falls to 1/e after one week and to one half after about 4.9 days.
	recencyHalfLifeHours = 168.0
)

// ScoreInput is the request-side view the scorer compares candidates against.
type ScoreInput struct {
	SimHash           int64
	Embedding         []float32
	TemperatureBucket fingerprint.TemperatureBucket
	TopP              *float64

	// WithSemantic is false when no request embedding is available; the
	// remaining components are then renormalized.
	WithSemantic bool
}

// Breakdown is the per-component decomposition of a candidate's score.
type Breakdown struct {
	Semantic   float64 `json:"semantic"`
	Structural float64 `json:"structural"`
	Param      float64 `json:"param"`
	Recency    float64 `json:"recency"`
	Composite  float64 `json:"composite"`
}

// Score computes the composite score of a candidate against the request.
func Score(input *ScoreInput, candidate *index.Entry, now time.Time) Breakdown {
	structural := 1.0 - float64(fingerprint.HammingDistance(input.SimHash, candidate.SimHash))/64.0

	param := (temperatureCloseness(input.TemperatureBucket, candidate.TemperatureBucket) +
		topPCloseness(input.TopP, candidate.TopP)) / 2.0

	ageHours := now.Sub(candidate.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	recency := math.Exp(-ageHours / recencyHalfLifeHours)

	breakdown := Breakdown{
		Structural: structural,
		Param:      param,
		Recency:    recency,
	}

	if input.WithSemantic && len(candidate.Embedding) > 0 {
		breakdown.Semantic = (embedding.Cosine(input.Embedding, candidate.Embedding) + 1.0) / 2.0
		breakdown.Composite = weightSemantic*breakdown.Semantic +
			weightStructural*breakdown.Structural +
			weightParam*breakdown.Param +
			weightRecency*breakdown.Recency

		return breakdown
	}

	// Without semantics the remaining weights are renormalized so the
	// composite still spans [0, 1].
	rest := weightStructural + weightParam + weightRecency
	breakdown.Composite = (weightStructural*breakdown.Structural +
		weightParam*breakdown.Param +
		weightRecency*breakdown.Recency) / rest

	return breakdown
}

func temperatureCloseness(a, b fingerprint.TemperatureBucket) float64 {
	if a == b {
		return 1.0
	}

	if fingerprint.BucketsAdjacent(a, b) {
		return 0.5
	}

	return 0.0
}

func topPCloseness(a, b *float64) float64 {
	aDefault := a == nil || math.Abs(*a-1.0) < 1e-2
	bDefault := b == nil || math.Abs(*b-1.0) < 1e-2

	if aDefault && bDefault {
		return 1.0
	}

	if a != nil && b != nil && math.Abs(*a-*b) < 1e-2 {
		return 1.0
	}

	return 0.8
}
