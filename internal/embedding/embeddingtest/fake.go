package embeddingtest

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/parrotgw/parrot/internal/embedding"
)

// Fake is a deterministic embedder for tests. It hashes word features into a
// fixed-dimension bag-of-words vector, so texts sharing vocabulary score high
// cosine similarity and unrelated texts score low.
type Fake struct {
	Dimension int
	Fail      bool
}

// New returns a Fake with the default dimension.
func New() *Fake {
	return &Fake{Dimension: 256}
}

func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	if f.Fail {
		return nil, context.DeadlineExceeded
	}

	vec := make([]float32, f.Dimension)

	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := xxhash.Sum64String(word)
		vec[h%uint64(f.Dimension)] += 1

		// A second feature per word reduces bucket collisions.
		vec[(h>>32)%uint64(f.Dimension)] += 1
	}

	return embedding.Normalize(vec), nil
}

func (f *Fake) Dim() int { return f.Dimension }

func (f *Fake) Ready() bool { return !f.Fail }
