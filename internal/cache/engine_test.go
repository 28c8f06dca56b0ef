package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parrotgw/parrot/internal/cache/hot"
	"github.com/parrotgw/parrot/internal/cache/index"
	"github.com/parrotgw/parrot/internal/embedding/embeddingtest"
	"github.com/parrotgw/parrot/internal/fingerprint"
	"github.com/parrotgw/parrot/internal/llm"
	"github.com/parrotgw/parrot/internal/resilience"
)

type engineFixture struct {
	engine *Engine
	hot    *hot.MemoryStore
	idx    *index.MemoryStore
	canon  *fingerprint.Canonicalizer
}

func newFixture(t *testing.T, mutate func(*Engine)) *engineFixture {
	t.Helper()

	hotStore := hot.NewMemoryStore(time.Minute, time.Minute)
	idxStore := index.NewMemoryStore()

	engine := NewEngine(
		Config{Enabled: true, TemplateEnabled: true},
		hotStore,
		idxStore,
		embeddingtest.New(),
		resilience.NewHealth(),
	)

	if mutate != nil {
		mutate(engine)
	}

	return &engineFixture{
		engine: engine,
		hot:    hotStore,
		idx:    idxStore,
		canon:  fingerprint.NewCanonicalizer(nil),
	}
}

func (f *engineFixture) lookupRequest(t *testing.T, body string, opts Options) *LookupRequest {
	t.Helper()

	var req llm.Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	canonical, err := f.canon.Canonicalize(&req, []byte(body))
	require.NoError(t, err)

	return &LookupRequest{
		Tenant:      "tenant-a",
		Request:     &req,
		Canonical:   canonical,
		Fingerprint: fingerprint.New(&req, canonical),
		Options:     opts,
	}
}

func chatBody(content string) string {
	return fmt.Sprintf(`{"model":"gpt-4","messages":[{"role":"user","content":%q}]}`, content)
}

func responseBlob(content string) []byte {
	blob, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})

	return blob
}

func TestEngine_ExactReplay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := f.lookupRequest(t, chatBody("What is 2+2?"), Options{})
	require.Nil(t, f.engine.Lookup(ctx, req))

	f.engine.writeThrough(ctx, req, responseBlob("4"))

	hit := f.engine.Lookup(ctx, req)
	require.NotNil(t, hit)
	assert.Equal(t, MatchExact, hit.Provenance.Match)
	assert.Equal(t, 1.0, hit.Provenance.Score)
	assert.Equal(t, "gpt-4", hit.Provenance.SourceModel)
	assert.NotEmpty(t, hit.Provenance.EntryID)
}

func TestEngine_TemplateHitOnParaphrase(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cached := f.lookupRequest(t, chatBody("What is the capital of France? Please answer briefly and mention one famous landmark of the city."), Options{})
	f.engine.writeThrough(ctx, cached, responseBlob("Paris"))

	// Same vocabulary, one word swapped: inside the Hamming radius and
	// semantically close.
	paraphrase := f.lookupRequest(t, chatBody("What is the capital of France? Please answer concisely and mention one famous landmark of the city."), Options{})
	hit := f.engine.Lookup(ctx, paraphrase)
	require.NotNil(t, hit)
	assert.Equal(t, MatchTemplate, hit.Provenance.Match)
	assert.GreaterOrEqual(t, hit.Provenance.Score, 0.87)
}

func TestEngine_URLVarianceMisses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cached := f.lookupRequest(t, chatBody("Summarize https://x.test/a"), Options{})
	f.engine.writeThrough(ctx, cached, responseBlob("summary of a"))

	other := f.lookupRequest(t, chatBody("Summarize https://x.test/b"), Options{})
	assert.Nil(t, f.engine.Lookup(ctx, other))
}

func TestEngine_ModeGuard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	textReq := f.lookupRequest(t, chatBody("Return the user list"), Options{})
	f.engine.writeThrough(ctx, textReq, responseBlob("alice, bob"))

	jsonBody := `{"model":"gpt-4","messages":[{"role":"user","content":"Return the user list"}],"response_format":{"type":"json_object"}}`
	jsonReq := f.lookupRequest(t, jsonBody, Options{})
	assert.Nil(t, f.engine.Lookup(ctx, jsonReq))
}

func TestEngine_ToolSchemaGuard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	oneTool := `{"model":"gpt-4","messages":[{"role":"user","content":"weather in paris"}],"tools":[{"type":"function","function":{"name":"get_weather"}}]}`
	cached := f.lookupRequest(t, oneTool, Options{})
	f.engine.writeThrough(ctx, cached, responseBlob("sunny"))

	twoTools := `{"model":"gpt-4","messages":[{"role":"user","content":"weather in paris"}],"tools":[{"type":"function","function":{"name":"get_weather"}},{"type":"function","function":{"name":"send_email"}}]}`
	other := f.lookupRequest(t, twoTools, Options{})
	assert.Nil(t, f.engine.Lookup(ctx, other))
}

func TestEngine_ModelGuardStrictVersusFamily(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cached := f.lookupRequest(t, `{"model":"gpt-4-0613","messages":[{"role":"user","content":"hello there friend"}]}`, Options{})
	f.engine.writeThrough(ctx, cached, responseBlob("hi"))

	// Hot tier would hit on the exact key, so force the template path.
	variant := f.lookupRequest(t, `{"model":"gpt-4-1106","messages":[{"role":"user","content":"hello there friend"}]}`, Options{Mode: LookupTemplate})

	assert.Nil(t, f.engine.Lookup(ctx, variant), "strict policy rejects a different model string")

	variant.Options.Compat = CompatFamily
	hit := f.engine.Lookup(ctx, variant)
	require.NotNil(t, hit, "family policy accepts a sibling model")
	assert.Equal(t, "gpt-4-0613", hit.Provenance.SourceModel)
}

func TestEngine_TTLEnforcement(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := f.lookupRequest(t, chatBody("perishable wisdom"), Options{})
	f.engine.writeThrough(ctx, req, responseBlob("gone soon"))

	// Expire the indexed row behind the engine's back, then bypass the hot
	// tier: the stale row must not come back.
	_, err := f.idx.DeleteExpired(ctx, time.Now().UTC().Add(48*time.Hour))
	require.NoError(t, err)

	req.Options.Mode = LookupTemplate
	assert.Nil(t, f.engine.Lookup(ctx, req))
}

func TestEngine_Bypass(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := f.lookupRequest(t, chatBody("What is 2+2?"), Options{})
	f.engine.writeThrough(ctx, req, responseBlob("4"))

	req.Options.Bypass = true
	assert.Nil(t, f.engine.Lookup(ctx, req))
}

func TestEngine_HotTierDisabledTemplateStillHits(t *testing.T) {
	f := newFixture(t, func(e *Engine) { e.hot = nil })
	ctx := context.Background()

	req := f.lookupRequest(t, chatBody("What is the capital of France?"), Options{})
	f.engine.writeThrough(ctx, req, responseBlob("Paris"))

	hit := f.engine.Lookup(ctx, req)
	require.NotNil(t, hit)
	assert.Equal(t, MatchTemplate, hit.Provenance.Match)
}

func TestEngine_IndexedTierDisabledExactStillHits(t *testing.T) {
	f := newFixture(t, func(e *Engine) { e.idx = nil })
	ctx := context.Background()

	req := f.lookupRequest(t, chatBody("What is 2+2?"), Options{})
	f.engine.writeThrough(ctx, req, responseBlob("4"))

	hit := f.engine.Lookup(ctx, req)
	require.NotNil(t, hit)
	assert.Equal(t, MatchExact, hit.Provenance.Match)
}

func TestEngine_BothTiersDisabledAlwaysMisses(t *testing.T) {
	f := newFixture(t, func(e *Engine) {
		e.hot = nil
		e.idx = nil
	})
	ctx := context.Background()

	req := f.lookupRequest(t, chatBody("What is 2+2?"), Options{})
	f.engine.writeThrough(ctx, req, responseBlob("4"))
	assert.Nil(t, f.engine.Lookup(ctx, req))
}

func TestEngine_NoStoreSkipsWriteThrough(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := f.lookupRequest(t, chatBody("What is 2+2?"), Options{NoStore: true})
	f.engine.WriteThrough(ctx, req, responseBlob("4"))

	// WriteThrough is asynchronous in general, but NoStore short-circuits
	// before any task is scheduled.
	assert.Nil(t, f.engine.Lookup(ctx, req))
}

func TestEngine_PrivacyModeOmitsRequestBlob(t *testing.T) {
	f := newFixture(t, func(e *Engine) { e.config.PrivacyMode = true })
	ctx := context.Background()

	req := f.lookupRequest(t, chatBody("my email is alice@example.com"), Options{})
	f.engine.writeThrough(ctx, req, responseBlob("noted"))

	entries, err := f.idx.Candidates(ctx, index.Query{
		Tenant: "tenant-a", Mode: fingerprint.ModeText, Match: index.MatchAny,
		SimHash: req.Fingerprint.SimHash, MaxHamming: 0, Now: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, "{}", string(entries[0].RequestBlob))
	assert.True(t, entries[0].PIIPresent)
	assert.NotContains(t, entries[0].CanonicalPrompt, "alice@example.com")
}

func TestEngine_GoldenPromotionSurvivesSweep(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := f.lookupRequest(t, chatBody("keep me forever"), Options{})
	f.engine.writeThrough(ctx, req, responseBlob("kept"))

	stats, err := f.engine.Stats(ctx, "tenant-a")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Entries)

	entries, err := f.idx.Candidates(ctx, index.Query{
		Tenant: "tenant-a", Mode: fingerprint.ModeText, Match: index.MatchAny,
		SimHash: req.Fingerprint.SimHash, MaxHamming: 0, Now: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, f.engine.Promote(ctx, entries[0].ID))

	deleted, err := f.idx.DeleteExpired(ctx, time.Now().UTC().Add(100*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestEngine_Clear(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := f.lookupRequest(t, chatBody("What is 2+2?"), Options{})
	f.engine.writeThrough(ctx, req, responseBlob("4"))
	require.NotNil(t, f.engine.Lookup(ctx, req))

	require.NoError(t, f.engine.Clear(ctx, "tenant-a"))
	assert.Nil(t, f.engine.Lookup(ctx, req))
}

func TestEngine_JSONSchemaGuard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	schemaBody := `{"model":"gpt-4","messages":[{"role":"user","content":"give me a user record"}],"response_format":{"type":"json_schema","json_schema":{"name":"user","schema":{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}}}}`

	cached := f.lookupRequest(t, schemaBody, Options{})
	f.engine.writeThrough(ctx, cached, responseBlob(`{"age": 3}`))

	// The cached content does not satisfy the schema, so the candidate is
	// silently rejected.
	assert.Nil(t, f.engine.Lookup(ctx, f.lookupRequest(t, schemaBody, Options{Mode: LookupTemplate})))

	valid := f.lookupRequest(t, schemaBody, Options{})
	f.engine.Clear(ctx, "tenant-a")
	f.engine.writeThrough(ctx, valid, responseBlob(`{"name": "alice"}`))

	hit := f.engine.Lookup(ctx, f.lookupRequest(t, schemaBody, Options{Mode: LookupTemplate}))
	require.NotNil(t, hit)
}
