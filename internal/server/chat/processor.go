package chat

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/parrotgw/parrot/internal/cache"
	"github.com/parrotgw/parrot/internal/fingerprint"
	"github.com/parrotgw/parrot/internal/llm"
	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/pkg/httpclient"
	"github.com/parrotgw/parrot/internal/pkg/streams"
	"github.com/parrotgw/parrot/internal/replay"
	"github.com/parrotgw/parrot/internal/resilience"
	"github.com/parrotgw/parrot/internal/upstream"
)

// Processor drives one chat completion through the cache core: fingerprint,
// lookup, replay on hit, forward + capture + write-through on miss.
type Processor struct {
	Engine        *cache.Engine
	Canonicalizer *fingerprint.Canonicalizer
	Registry      *upstream.Registry
}

// NewProcessor builds the processor.
func NewProcessor(engine *cache.Engine, canonicalizer *fingerprint.Canonicalizer, registry *upstream.Registry) *Processor {
	return &Processor{
		Engine:        engine,
		Canonicalizer: canonicalizer,
		Registry:      registry,
	}
}

// Result is the outcome of processing one request. Exactly one of Response
// and Stream is set.
type Result struct {
	// Response is the full non-streaming response.
	Response *httpclient.Response

	// Stream is the event stream of a streaming response.
	Stream streams.Stream[*httpclient.StreamEvent]

	// Provenance is set when the response came from cache.
	Provenance *cache.Provenance

	// Degraded carries the active degradation mode.
	Degraded resilience.DegradationMode
}

// Process runs the lookup-or-forward control flow.
func (p *Processor) Process(ctx context.Context, genericReq *httpclient.Request) (*Result, error) {
	var req llm.Request
	if err := json.Unmarshal(genericReq.Body, &req); err != nil {
		return nil, llm.NewInvalidRequestError("request body is not a valid chat completion request")
	}

	if err := req.Validate(); err != nil {
		return nil, llm.NewInvalidRequestError(err.Error())
	}

	canonical, err := p.Canonicalizer.Canonicalize(&req, genericReq.Body)
	if err != nil {
		return nil, llm.NewInvalidRequestError(err.Error())
	}

	lookup := &cache.LookupRequest{
		Tenant:      tenantFromHeaders(genericReq.Headers, p.Engine.Config().DefaultTenant),
		Request:     &req,
		Canonical:   canonical,
		Fingerprint: fingerprint.New(&req, canonical),
		Options:     optionsFromHeaders(genericReq.Headers),
	}

	degraded := p.Engine.Health().Mode()

	if hit := p.Engine.Lookup(ctx, lookup); hit != nil {
		return p.serveHit(ctx, &req, lookup, genericReq.Body, hit, degraded)
	}

	return p.forward(ctx, &req, lookup, genericReq.Body, degraded)
}

func (p *Processor) serveHit(
	ctx context.Context,
	req *llm.Request,
	lookup *cache.LookupRequest,
	body []byte,
	hit *cache.Hit,
	degraded resilience.DegradationMode,
) (*Result, error) {
	result := &Result{
		Provenance: &hit.Provenance,
		Degraded:   degraded,
	}

	if !req.IsStreaming() {
		result.Response = &httpclient.Response{
			StatusCode: http.StatusOK,
			Headers:    http.Header{"Content-Type": []string{"application/json"}},
			Body:       hit.Response,
		}

		return result, nil
	}

	var cached llm.Response
	if err := json.Unmarshal(hit.Response, &cached); err != nil {
		// A corrupt blob must not take the request down; fall through to a
		// fresh upstream call.
		log.Warn(ctx, "cached response blob is unreadable, forwarding upstream",
			log.String("entry_id", hit.Provenance.EntryID), log.Cause(err))

		return p.forward(ctx, req, lookup, body, degraded)
	}

	opts := replay.Options{}
	if req.StreamOptions != nil && req.StreamOptions.IncludeUsage {
		opts.IncludeUsage = true
	}

	result.Stream = replay.NewStream(ctx, lookup.Fingerprint.ExactKey, &cached, opts)

	return result, nil
}

func (p *Processor) forward(
	ctx context.Context,
	req *llm.Request,
	lookup *cache.LookupRequest,
	body []byte,
	degraded resilience.DegradationMode,
) (*Result, error) {
	provider, err := p.Registry.ForModel(req.Model)
	if err != nil {
		return nil, llm.NewInvalidRequestError(err.Error())
	}

	breaker := p.Engine.Health().Provider

	if !req.IsStreaming() {
		var resp *httpclient.Response

		err := breaker.Do(ctx, func(ctx context.Context) error {
			forwarded, err := provider.Forward(ctx, body)
			if err != nil {
				return err
			}

			resp = forwarded

			return nil
		})
		if err != nil {
			return nil, err
		}

		p.Engine.WriteThrough(ctx, lookup, resp.Body)

		return &Result{Response: resp, Degraded: degraded}, nil
	}

	if err := breaker.Allow(); err != nil {
		return nil, err
	}

	upstreamStream, err := provider.ForwardStream(ctx, body)
	breaker.Record(0, err)

	if err != nil {
		return nil, err
	}

	captured := replay.Capture(ctx, upstreamStream, func(taskCtx context.Context, full *llm.Response) {
		blob, err := json.Marshal(full)
		if err != nil {
			log.Warn(taskCtx, "failed to serialize captured stream", log.Cause(err))
			return
		}

		p.Engine.WriteThrough(taskCtx, lookup, blob)
	})

	return &Result{Stream: captured, Degraded: degraded}, nil
}
