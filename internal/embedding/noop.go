package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by the noop embedder; callers treat it as an
// embedder outage and score without the semantic component.
var ErrUnavailable = errors.New("no embedder configured")

// Noop is the embedder used when no embedding service is configured.
type Noop struct{}

// NewNoop returns the noop embedder.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrUnavailable
}

func (*Noop) Dim() int { return 384 }

func (*Noop) Ready() bool { return false }
