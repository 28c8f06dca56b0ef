package replay

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/parrotgw/parrot/internal/llm"
	"github.com/parrotgw/parrot/internal/pkg/httpclient"
	"github.com/parrotgw/parrot/internal/pkg/streams"
)

const (
	chunkMeanWords  = 15.0
	chunkStddev     = 5.0
	delayMean       = 25 * time.Millisecond
	delayStddev     = 20 * time.Millisecond
)

// Options tune a replay.
type Options struct {
	// IncludeUsage appends a usage chunk before [DONE].
	IncludeUsage bool

	// DelayMean overrides the inter-chunk pacing mean.
	DelayMean time.Duration

	// NoSleep disables pacing entirely; chunk content is unaffected.
	NoSleep bool
}

// Seed derives the replay seed from a cache key: the first 64 bits of the
// key's SHA-256.
func Seed(cacheKey string) int64 {
	sum := sha256.Sum256([]byte(cacheKey))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// NewStream replays a cached full response as a deterministic chunk stream.
// Chunk boundaries, pacing draws and payload bytes are a pure function of the
// cache key and the response: two replays of the same entry produce identical
// event sequences. Sleeps honor context cancellation.
func NewStream(ctx context.Context, cacheKey string, cached *llm.Response, opts Options) streams.Stream[*httpclient.StreamEvent] {
	if opts.DelayMean == 0 {
		opts.DelayMean = delayMean
	}

	//nolint:gosec // Deterministic replay requires a seeded, non-crypto PRNG.
	rng := rand.New(rand.NewSource(Seed(cacheKey)))

	events := buildEvents(cacheKey, cached, rng, opts)

	return &replayStream{
		ctx:    ctx,
		events: events,
		opts:   opts,
		idx:    -1,
	}
}

type timedEvent struct {
	event *httpclient.StreamEvent
	delay time.Duration
}

//nolint:containedctx // Stream lifetime is bound to the request context.
type replayStream struct {
	ctx    context.Context
	events []timedEvent
	opts   Options
	idx    int
	err    error
}

func (s *replayStream) Next() bool {
	if s.err != nil || s.idx+1 >= len(s.events) {
		return false
	}

	s.idx++

	if delay := s.events[s.idx].delay; delay > 0 && !s.opts.NoSleep {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		case <-timer.C:
		}
	}

	return true
}

func (s *replayStream) Current() *httpclient.StreamEvent { return s.events[s.idx].event }

func (s *replayStream) Err() error { return s.err }

func (s *replayStream) Close() error { return nil }

// buildEvents materializes the full event sequence up front; the PRNG draws
// happen in a fixed order so pacing never influences content.
func buildEvents(cacheKey string, cached *llm.Response, rng *rand.Rand, opts Options) []timedEvent {
	var (
		content      string
		finishReason = "stop"
		role         = "assistant"
		toolCalls    []llm.ToolCall
	)

	if len(cached.Choices) > 0 {
		choice := cached.Choices[0]
		if choice.Message != nil {
			content = choice.Message.Text()
			toolCalls = choice.Message.ToolCalls

			if choice.Message.Role != "" {
				role = choice.Message.Role
			}
		}

		if choice.FinishReason != nil {
			finishReason = *choice.FinishReason
		}
	}

	chunk := func(delta *llm.Message, finish *string) *httpclient.StreamEvent {
		payload, _ := json.Marshal(&llm.Response{
			ID:      cached.ID,
			Object:  "chat.completion.chunk",
			Created: cached.Created,
			Model:   cached.Model,
			Choices: []llm.Choice{{Index: 0, Delta: delta, FinishReason: finish}},
		})

		return &httpclient.StreamEvent{Data: payload}
	}

	var events []timedEvent

	pieces := splitChunks(content, rng)
	for i, piece := range pieces {
		delta := &llm.Message{Content: llm.MessageContent{Content: &piece}}
		if i == 0 {
			delta.Role = role
		}

		var delay time.Duration
		if i > 0 {
			delay = gaussianDelay(rng, opts.DelayMean)
		}

		events = append(events, timedEvent{event: chunk(delta, nil), delay: delay})
	}

	// Responses without text (pure tool calls) replay as one delta.
	if len(pieces) == 0 && len(toolCalls) > 0 {
		delta := &llm.Message{Role: role, ToolCalls: toolCalls}
		events = append(events, timedEvent{event: chunk(delta, nil)})
	}

	events = append(events, timedEvent{
		event: chunk(&llm.Message{}, &finishReason),
		delay: gaussianDelay(rng, opts.DelayMean),
	})

	if opts.IncludeUsage && cached.Usage != nil {
		payload, _ := json.Marshal(&llm.Response{
			ID:      cached.ID,
			Object:  "chat.completion.chunk",
			Created: cached.Created,
			Model:   cached.Model,
			Choices: []llm.Choice{},
			Usage:   cached.Usage,
		})
		events = append(events, timedEvent{event: &httpclient.StreamEvent{Data: payload}})
	}

	events = append(events, timedEvent{event: lo.ToPtr(llm.DoneStreamEvent)})

	return events
}

// splitChunks walks word boundaries, emitting chunks whose target size is
// drawn from a Gaussian. Whitespace is preserved so the concatenation of all
// chunks reproduces the content byte for byte.
func splitChunks(content string, rng *rand.Rand) []string {
	words := splitWords(content)

	var chunks []string

	for len(words) > 0 {
		target := int(rng.NormFloat64()*chunkStddev + chunkMeanWords)
		if target < 1 {
			target = 1
		}

		if target > len(words) {
			target = len(words)
		}

		chunks = append(chunks, strings.Join(words[:target], ""))
		words = words[target:]
	}

	return chunks
}

// splitWords cuts the text into words carrying their trailing whitespace.
func splitWords(text string) []string {
	var (
		words []string
		start = 0
		inGap = false
	)

	for i, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'

		if inGap && !isSpace {
			words = append(words, text[start:i])
			start = i
			inGap = false
		} else if isSpace {
			inGap = true
		}
	}

	if start < len(text) {
		words = append(words, text[start:])
	}

	return words
}

func gaussianDelay(rng *rand.Rand, mean time.Duration) time.Duration {
	d := time.Duration(rng.NormFloat64()*float64(delayStddev) + float64(mean))
	if d < 0 {
		return 0
	}

	return d
}
