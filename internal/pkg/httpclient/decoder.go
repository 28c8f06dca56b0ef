package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/parrotgw/parrot/internal/pkg/streams"
)

// maxEventSize bounds a single SSE event; generous to admit large payloads.
const maxEventSize = 32 * 1024 * 1024

// NewSSEDecoder decodes a text/event-stream body into StreamEvents.
//
// The decoder is not safe for concurrent use. Close is idempotent.
func NewSSEDecoder(ctx context.Context, rc io.ReadCloser) streams.Stream[*StreamEvent] {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	return &sseDecoder{
		ctx:     ctx,
		rc:      rc,
		scanner: scanner,
	}
}

//nolint:containedctx // Stream lifetime is bound to the request context.
type sseDecoder struct {
	ctx     context.Context
	rc      io.ReadCloser
	scanner *bufio.Scanner
	current *StreamEvent
	err     error
	closed  bool
}

func (s *sseDecoder) Next() bool {
	if s.err != nil || s.closed {
		return false
	}

	var (
		eventType string
		data      [][]byte
	)

	for {
		select {
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		default:
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil && err != io.EOF {
				s.err = err
			}

			return false
		}

		line := s.scanner.Bytes()

		// A blank line terminates the event.
		if len(bytes.TrimSpace(line)) == 0 {
			if len(data) == 0 {
				continue
			}

			s.current = &StreamEvent{
				Type: eventType,
				Data: bytes.Join(data, []byte("\n")),
			}

			return true
		}

		if value, ok := sseField(line, "event"); ok {
			eventType = string(value)
			continue
		}

		if value, ok := sseField(line, "data"); ok {
			data = append(data, append([]byte(nil), value...))
			continue
		}

		// Comments and unknown fields are dropped.
	}
}

func sseField(line []byte, field string) ([]byte, bool) {
	prefix := []byte(field + ":")
	if !bytes.HasPrefix(line, prefix) {
		return nil, false
	}

	value := line[len(prefix):]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}

	return value, true
}

func (s *sseDecoder) Current() *StreamEvent { return s.current }

func (s *sseDecoder) Err() error { return s.err }

func (s *sseDecoder) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	return s.rc.Close()
}
