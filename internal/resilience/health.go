package resilience

import (
	"time"
)

// DegradationMode selects which cache paths remain in service.
type DegradationMode string

const (
	// ModeFull: both tiers and the embedder are healthy.
	ModeFull DegradationMode = "full"

	// ModeExactOnly: the indexed tier is down; only exact lookups run.
	ModeExactOnly DegradationMode = "exact-only"

	// ModeTemplateOnly: the hot tier is down; template lookups still run.
	ModeTemplateOnly DegradationMode = "template-only"

	// ModeTemplateWithoutSemantic: the embedder is down while the indexed
	// tier is up, whether or not the hot tier is; template matching scores on
	// structure, params and recency with a raised admission threshold.
	ModeTemplateWithoutSemantic DegradationMode = "template-without-semantic"

	// ModePassthrough: both tiers are down; every request goes upstream.
	ModePassthrough DegradationMode = "passthrough"
)

// Health owns the per-dependency breakers and derives the degradation mode.
type Health struct {
	Hot      *Breaker
	Indexed  *Breaker
	Embedder *Breaker
	Provider *Breaker
}

// NewHealth builds the standard breaker set.
func NewHealth() *Health {
	return &Health{
		Hot: NewBreaker(Settings{
			Name:                 "hot",
			FailureRateThreshold: 0.5,
			OpenInterval:         10 * time.Second,
		}),
		Indexed: NewBreaker(Settings{
			Name:                 "indexed",
			FailureRateThreshold: 0.5,
			OpenInterval:         30 * time.Second,
		}),
		Embedder: NewBreaker(Settings{
			Name:                 "embedder",
			FailureRateThreshold: 0.5,
			OpenInterval:         30 * time.Second,
		}),
		Provider: NewBreaker(Settings{
			Name:                 "provider",
			FailureRateThreshold: 0.8,
			OpenInterval:         60 * time.Second,
		}),
	}
}

func up(b *Breaker) bool {
	return b.State() != StateOpen
}

// Mode derives the active degradation mode from the breaker states.
func (h *Health) Mode() DegradationMode {
	hotUp := up(h.Hot)
	indexedUp := up(h.Indexed)
	embedderUp := up(h.Embedder)

	switch {
	case hotUp && indexedUp && embedderUp:
		return ModeFull
	case hotUp && !indexedUp:
		return ModeExactOnly
	case !hotUp && indexedUp && embedderUp:
		return ModeTemplateOnly
	case !hotUp && indexedUp && !embedderUp:
		return ModeTemplateWithoutSemantic
	case !hotUp && !indexedUp:
		return ModePassthrough
	default:
		// hot up, indexed up, embedder down: exact still serves; template
		// falls back to structural scoring.
		return ModeTemplateWithoutSemantic
	}
}

// Report is the per-dependency health view for the /health endpoint.
type Report struct {
	Mode         DegradationMode  `json:"mode"`
	Dependencies map[string]State `json:"dependencies"`
}

// Report builds the health view.
func (h *Health) Report() *Report {
	return &Report{
		Mode: h.Mode(),
		Dependencies: map[string]State{
			h.Hot.Name():      h.Hot.State(),
			h.Indexed.Name():  h.Indexed.State(),
			h.Embedder.Name(): h.Embedder.State(),
			h.Provider.Name(): h.Provider.State(),
		},
	}
}
