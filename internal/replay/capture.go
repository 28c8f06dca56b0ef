package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/parrotgw/parrot/internal/llm"
	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/pkg/httpclient"
	"github.com/parrotgw/parrot/internal/pkg/streams"
)

// Capture tees a miss's upstream event stream: every event is forwarded to
// the client unmodified while the deltas are reassembled in memory. When the
// terminal [DONE] marker arrives, the synthesized full response is handed to
// onComplete. Streams that end early, error out, or are cancelled never
// invoke onComplete.
func Capture(
	ctx context.Context,
	source streams.Stream[*httpclient.StreamEvent],
	onComplete func(ctx context.Context, full *llm.Response),
) streams.Stream[*httpclient.StreamEvent] {
	return &captureStream{
		ctx:        ctx,
		source:     source,
		onComplete: onComplete,
		assembler:  newAssembler(),
	}
}

//nolint:containedctx // Stream lifetime is bound to the request context.
type captureStream struct {
	ctx        context.Context
	source     streams.Stream[*httpclient.StreamEvent]
	onComplete func(ctx context.Context, full *llm.Response)
	assembler  *assembler
	done       bool
}

func (s *captureStream) Next() bool {
	if !s.source.Next() {
		return false
	}

	event := s.source.Current()

	if bytes.Equal(bytes.TrimSpace(event.Data), []byte("[DONE]")) {
		if !s.done && s.source.Err() == nil && s.ctx.Err() == nil {
			s.done = true

			if full := s.assembler.build(); full != nil && s.onComplete != nil {
				s.onComplete(s.ctx, full)
			}
		}

		return true
	}

	s.assembler.observe(s.ctx, event.Data)

	return true
}

func (s *captureStream) Current() *httpclient.StreamEvent { return s.source.Current() }

func (s *captureStream) Err() error { return s.source.Err() }

func (s *captureStream) Close() error { return s.source.Close() }

// assembler folds streamed chunks back into a full chat completion.
type assembler struct {
	id           string
	created      int64
	model        string
	role         string
	content      strings.Builder
	toolCalls    map[int]*llm.ToolCall
	finishReason *string
	usage        *llm.Usage
	sawChunk     bool
}

func newAssembler() *assembler {
	return &assembler{toolCalls: map[int]*llm.ToolCall{}}
}

func (a *assembler) observe(ctx context.Context, data []byte) {
	var chunk llm.Response
	if err := json.Unmarshal(data, &chunk); err != nil {
		log.Debug(ctx, "unparseable stream chunk ignored", log.Cause(err))
		return
	}

	a.sawChunk = true

	if chunk.ID != "" {
		a.id = chunk.ID
	}

	if chunk.Created != 0 {
		a.created = chunk.Created
	}

	if chunk.Model != "" {
		a.model = chunk.Model
	}

	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}

	if len(chunk.Choices) == 0 {
		return
	}

	choice := chunk.Choices[0]
	if choice.FinishReason != nil {
		a.finishReason = choice.FinishReason
	}

	delta := choice.Delta
	if delta == nil {
		return
	}

	if delta.Role != "" {
		a.role = delta.Role
	}

	a.content.WriteString(delta.Text())

	for _, call := range delta.ToolCalls {
		idx := 0
		if call.Index != nil {
			idx = *call.Index
		}

		existing, ok := a.toolCalls[idx]
		if !ok {
			clone := call
			a.toolCalls[idx] = &clone

			continue
		}

		if call.ID != "" {
			existing.ID = call.ID
		}

		if call.Function.Name != "" {
			existing.Function.Name = call.Function.Name
		}

		existing.Function.Arguments += call.Function.Arguments
	}
}

func (a *assembler) build() *llm.Response {
	if !a.sawChunk {
		return nil
	}

	role := a.role
	if role == "" {
		role = "assistant"
	}

	message := &llm.Message{Role: role}

	if a.content.Len() > 0 {
		content := a.content.String()
		message.Content = llm.MessageContent{Content: &content}
	}

	for i := 0; i < len(a.toolCalls); i++ {
		if call, ok := a.toolCalls[i]; ok {
			call.Index = nil
			message.ToolCalls = append(message.ToolCalls, *call)
		}
	}

	finish := a.finishReason
	if finish == nil {
		stop := "stop"
		finish = &stop
	}

	return &llm.Response{
		ID:      a.id,
		Object:  "chat.completion",
		Created: a.created,
		Model:   a.model,
		Choices: []llm.Choice{{Index: 0, Message: message, FinishReason: finish}},
		Usage:   a.usage,
	}
}
