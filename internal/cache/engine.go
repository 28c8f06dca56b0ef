package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/parrotgw/parrot/internal/cache/hot"
	"github.com/parrotgw/parrot/internal/cache/index"
	"github.com/parrotgw/parrot/internal/embedding"
	"github.com/parrotgw/parrot/internal/fingerprint"
	"github.com/parrotgw/parrot/internal/llm"
	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/metrics"
	"github.com/parrotgw/parrot/internal/pkg/xjson"
	"github.com/parrotgw/parrot/internal/pkg/xtime"
	"github.com/parrotgw/parrot/internal/resilience"
)

// MatchKind labels which tier served a hit.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchTemplate MatchKind = "template"
	MatchNone     MatchKind = "none"
)

// LookupMode restricts which tiers a lookup may use.
type LookupMode string

const (
	LookupExact    LookupMode = "exact"
	LookupTemplate LookupMode = "template"
	LookupBoth     LookupMode = "both"
)

// Options are the per-request cache controls, derived from headers.
type Options struct {
	// Bypass skips the lookup and forces a miss; write-through still runs.
	Bypass bool

	// NoStore skips write-through for this response.
	NoStore bool

	// Mode restricts the lookup tiers.
	Mode LookupMode

	// Compat overrides the model guardrail policy.
	Compat CompatPolicy

	// Experiment tags the request for downstream analysis.
	Experiment string
}

// Provenance describes how a hit was produced.
type Provenance struct {
	Hit         bool      `json:"hit"`
	Match       MatchKind `json:"match"`
	Score       float64   `json:"score"`
	EntryID     string    `json:"entry_id"`
	SourceModel string    `json:"source_model"`
	AgeSeconds  int64     `json:"age_seconds"`
}

// LookupRequest is one fingerprinted request entering the engine.
type LookupRequest struct {
	Tenant      string
	Request     *llm.Request
	Canonical   *fingerprint.Canonical
	Fingerprint *fingerprint.Fingerprint
	Options     Options
}

// Hit is a served cache hit.
type Hit struct {
	// Response is the full non-streaming response blob.
	Response []byte

	Provenance Provenance
}

// Engine owns the two-tier lookup and write-through paths. Both stores and
// the embedder are injected; a nil store disables its tier.
type Engine struct {
	config   Config
	hot      hot.Store
	idx      index.Store
	embedder embedding.Embedder
	health   *resilience.Health
}

// NewEngine builds the engine.
func NewEngine(
	config Config,
	hotStore hot.Store,
	idxStore index.Store,
	embedder embedding.Embedder,
	health *resilience.Health,
) *Engine {
	return &Engine{
		config:   config.WithDefaults(),
		hot:      hotStore,
		idx:      idxStore,
		embedder: embedder,
		health:   health,
	}
}

// Health exposes the breaker set for the operational surface.
func (e *Engine) Health() *resilience.Health { return e.health }

// Config exposes the effective configuration.
func (e *Engine) Config() Config { return e.config }

// Lookup runs the exact-then-template lookup. A nil result is a miss. The
// cache path is non-fatal: every dependency failure degrades and the lookup
// continues on the remaining tiers.
func (e *Engine) Lookup(ctx context.Context, req *LookupRequest) *Hit {
	if !e.config.Enabled || req.Options.Bypass {
		return nil
	}

	start := xtime.UTCNow()
	defer func() {
		metrics.RecordLookupLatency(ctx, time.Since(start))
	}()

	if mode := e.health.Mode(); mode != resilience.ModeFull {
		metrics.RecordDegradation(ctx, string(mode))
	}

	if req.Options.Mode != LookupTemplate {
		if hit := e.lookupExact(ctx, req); hit != nil {
			metrics.RecordHit(ctx, string(MatchExact))
			return hit
		}
	}

	if req.Options.Mode != LookupExact && e.config.TemplateEnabled {
		if hit := e.lookupTemplate(ctx, req); hit != nil {
			metrics.RecordHit(ctx, string(MatchTemplate))
			return hit
		}
	}

	metrics.RecordMiss(ctx)

	return nil
}

func (e *Engine) lookupExact(ctx context.Context, req *LookupRequest) *Hit {
	if e.hot == nil {
		return nil
	}

	var envelope *hot.Envelope

	err := e.health.Hot.Do(ctx, func(ctx context.Context) error {
		found, err := e.hot.Get(ctx, req.Tenant, req.Fingerprint.ExactKey)
		if errors.Is(err, hot.ErrNotFound) {
			return nil
		}

		envelope = found

		return err
	})
	if err != nil {
		log.Warn(ctx, "hot tier lookup failed", log.Cause(err))
		return nil
	}

	if envelope == nil {
		return nil
	}

	e.touchStats(ctx, envelope.EntryID)

	return &Hit{
		Response: envelope.Response,
		Provenance: Provenance{
			Hit:         true,
			Match:       MatchExact,
			Score:       1.0,
			EntryID:     envelope.EntryID,
			SourceModel: envelope.Model,
			AgeSeconds:  int64(xtime.UTCNow().Sub(envelope.CreatedAt).Seconds()),
		},
	}
}

func (e *Engine) lookupTemplate(ctx context.Context, req *LookupRequest) *Hit {
	if e.idx == nil {
		return nil
	}

	now := xtime.UTCNow()
	input := &ScoreInput{
		SimHash:           req.Fingerprint.SimHash,
		TemperatureBucket: req.Fingerprint.TemperatureBucket,
		TopP:              req.Request.TopP,
	}

	// The embedding is computed over the raw prompt text; masking would
	// collapse distinct URLs and IDs into identical templates and lose the
	// information that distinguishes them.
	if e.embedder != nil && e.embedder.Ready() {
		err := e.health.Embedder.Do(ctx, func(ctx context.Context) error {
			vec, err := e.embedder.Embed(ctx, req.Canonical.PromptText)
			if err != nil {
				return err
			}

			input.Embedding = vec

			return nil
		})
		if err != nil {
			log.Warn(ctx, "embedder unavailable, scoring without semantics", log.Cause(err))
		} else {
			input.WithSemantic = true
		}
	}

	compat := req.Options.Compat
	if compat == "" {
		compat = CompatStrict
	}

	var candidates []*index.Entry

	err := e.health.Indexed.Do(ctx, func(ctx context.Context) error {
		found, err := e.idx.Candidates(ctx, index.Query{
			Tenant:      req.Tenant,
			Mode:        req.Fingerprint.Mode,
			Match:       compat.ModelMatch(),
			Model:       req.Request.Model,
			ModelFamily: req.Fingerprint.ModelFamily,
			SimHash:     req.Fingerprint.SimHash,
			MaxHamming:  e.config.MaxHamming,
			Limit:       e.config.CandidateLimit,
			Now:         now,
		})
		if err != nil {
			return err
		}

		candidates = found

		return nil
	})
	if err != nil {
		log.Warn(ctx, "indexed tier lookup failed", log.Cause(err))
		return nil
	}

	threshold := e.config.Threshold
	if !input.WithSemantic {
		// Without the semantic component the admission bar is raised.
		threshold += 0.05
	}

	guard := &guardContext{
		Mode:           req.Fingerprint.Mode,
		ToolSchemaHash: req.Fingerprint.ToolSchemaHash,
		Compat:         compat,
		Model:          req.Request.Model,
		ModelFamily:    req.Fingerprint.ModelFamily,
		ResponseSchema: responseSchema(req.Request),
		Now:            now,
	}

	var (
		best      *index.Entry
		bestScore Breakdown
	)

	for _, candidate := range candidates {
		if !passesGuardrails(ctx, guard, candidate) {
			continue
		}

		breakdown := Score(input, candidate, now)
		if breakdown.Composite < threshold {
			continue
		}

		if best == nil || better(breakdown, candidate, bestScore, best) {
			best = candidate
			bestScore = breakdown
		}
	}

	if best == nil {
		return nil
	}

	e.touchStats(ctx, best.ID)

	return &Hit{
		Response: best.ResponseBlob,
		Provenance: Provenance{
			Hit:         true,
			Match:       MatchTemplate,
			Score:       bestScore.Composite,
			EntryID:     best.ID,
			SourceModel: best.Model,
			AgeSeconds:  int64(now.Sub(best.CreatedAt).Seconds()),
		},
	}
}

// better orders candidates by score, then recency, then hit count.
func better(score Breakdown, entry *index.Entry, bestScore Breakdown, best *index.Entry) bool {
	if score.Composite != bestScore.Composite {
		return score.Composite > bestScore.Composite
	}

	if !entry.CreatedAt.Equal(best.CreatedAt) {
		return entry.CreatedAt.After(best.CreatedAt)
	}

	return entry.HitCount > best.HitCount
}

func responseSchema(req *llm.Request) json.RawMessage {
	if req.ResponseFormat != nil && req.ResponseFormat.JSONSchema != nil {
		return req.ResponseFormat.JSONSchema.Schema
	}

	return nil
}

// touchStats updates hit_count and last_hit_at as a fire-and-forget task.
func (e *Engine) touchStats(ctx context.Context, entryID string) {
	if e.idx == nil || entryID == "" {
		return
	}

	at := xtime.UTCNow()

	e.submit(ctx, "hit-stat update", func(taskCtx context.Context) error {
		return e.health.Indexed.Do(taskCtx, func(taskCtx context.Context) error {
			return e.idx.TouchHit(taskCtx, entryID, at)
		})
	})
}

// WriteThrough persists a fresh upstream response into both tiers. It runs
// asynchronously with respect to the client response; failures are logged
// and counted, never surfaced.
func (e *Engine) WriteThrough(ctx context.Context, req *LookupRequest, responseBlob []byte) {
	if !e.config.Enabled || req.Options.NoStore {
		return
	}

	e.submit(ctx, "write-through", func(taskCtx context.Context) error {
		e.writeThrough(taskCtx, req, responseBlob)
		return nil
	})
}

func (e *Engine) writeThrough(ctx context.Context, req *LookupRequest, responseBlob []byte) {
	now := xtime.UTCNow()
	entryID := uuid.NewString()
	ttl := e.config.TTL(req.Fingerprint.ModelFamily)
	expiresAt := now.Add(ttl)

	sourceModel := req.Request.Model

	var vec []float32

	if e.embedder != nil && e.embedder.Ready() {
		err := e.health.Embedder.Do(ctx, func(ctx context.Context) error {
			embedded, err := e.embedder.Embed(ctx, req.Canonical.PromptText)
			if err != nil {
				return err
			}

			vec = embedded

			return nil
		})
		if err != nil {
			log.Warn(ctx, "embedding skipped on write-through", log.Cause(err))
		}
	}

	requestBlob := req.Canonical.JSON
	if e.config.PrivacyMode {
		requestBlob = xjson.EmptyJSON
	}

	if e.idx != nil {
		entry := &index.Entry{
			ID:                entryID,
			Tenant:            req.Tenant,
			ExactKey:          req.Fingerprint.ExactKey,
			SimHash:           req.Fingerprint.SimHash,
			Embedding:         vec,
			CanonicalPrompt:   req.Canonical.MaskedPrompt,
			RawPromptHMAC:     req.Canonical.RawDigest,
			RequestBlob:       requestBlob,
			ResponseBlob:      responseBlob,
			Model:             sourceModel,
			ModelFamily:       req.Fingerprint.ModelFamily,
			TemperatureBucket: req.Fingerprint.TemperatureBucket,
			TopP:              req.Request.TopP,
			Mode:              req.Fingerprint.Mode,
			ToolSchemaHash:    req.Fingerprint.ToolSchemaHash,
			PIIPresent:        req.Canonical.PIIPresent,
			CreatedAt:         now,
			ExpiresAt:         &expiresAt,
		}

		err := e.health.Indexed.Do(ctx, func(ctx context.Context) error {
			return e.idx.Insert(ctx, entry)
		})
		if err != nil {
			metrics.RecordWriteFailure(ctx, "indexed")
			log.Warn(ctx, "indexed tier write-through failed", log.Cause(err))
		}
	}

	if e.hot != nil {
		envelope := &hot.Envelope{
			EntryID:   entryID,
			Model:     sourceModel,
			Mode:      req.Fingerprint.Mode,
			Response:  responseBlob,
			CreatedAt: now,
		}

		err := e.health.Hot.Do(ctx, func(ctx context.Context) error {
			return e.hot.Set(ctx, req.Tenant, req.Fingerprint.ExactKey, envelope, ttl)
		})
		if err != nil {
			metrics.RecordWriteFailure(ctx, "hot")
			log.Warn(ctx, "hot tier write-through failed", log.Cause(err))
		}
	}
}

// Clear removes every cached entry of the tenant from both tiers.
func (e *Engine) Clear(ctx context.Context, tenant string) error {
	var firstErr error

	if e.hot != nil {
		if err := e.hot.Clear(ctx, tenant); err != nil {
			firstErr = err
		}
	}

	if e.idx != nil {
		if err := e.idx.Purge(ctx, tenant); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Stats reports indexed tier statistics for the tenant.
func (e *Engine) Stats(ctx context.Context, tenant string) (*index.Stats, error) {
	if e.idx == nil {
		return &index.Stats{}, nil
	}

	return e.idx.Stats(ctx, tenant)
}

// Promote pins an entry as golden, exempting it from TTL eviction.
func (e *Engine) Promote(ctx context.Context, entryID string) error {
	if e.idx == nil {
		return nil
	}

	return e.idx.Promote(ctx, entryID)
}

// SweepExpired removes expired non-golden entries from the indexed tier.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	if e.idx == nil {
		return 0, nil
	}

	return e.idx.DeleteExpired(ctx, xtime.UTCNow())
}

// submit runs a fire-and-forget task, detached from the request's
// cancellation. The response never waits on it.
func (e *Engine) submit(ctx context.Context, name string, task func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)

	go func() {
		if err := task(detached); err != nil {
			log.Warn(detached, "async cache task failed", log.String("task", name), log.Cause(err))
		}
	}()
}
