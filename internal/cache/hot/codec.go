package hot

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Envelopes are msgpack-encoded and gzip-compressed before storage. The
// compression buffers are pooled per worker.
var (
	bufferPool = sync.Pool{
		New: func() any { return new(bytes.Buffer) },
	}

	writerPool = sync.Pool{
		New: func() any { return gzip.NewWriter(io.Discard) },
	}
)

func encodeEnvelope(envelope *Envelope) ([]byte, error) {
	raw, err := msgpack.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	//nolint:forcetypeassert // The pool only stores *bytes.Buffer.
	buf := bufferPool.Get().(*bytes.Buffer)
	defer bufferPool.Put(buf)
	buf.Reset()

	//nolint:forcetypeassert // The pool only stores *gzip.Writer.
	zw := writerPool.Get().(*gzip.Writer)
	defer writerPool.Put(zw)
	zw.Reset(buf)

	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress envelope: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress envelope: %w", err)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())

	return out, nil
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress envelope: %w", err)
	}

	defer func() { _ = zr.Close() }()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress envelope: %w", err)
	}

	var envelope Envelope
	if err := msgpack.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	return &envelope, nil
}
