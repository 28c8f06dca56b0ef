package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parrotgw/parrot/internal/cache"
	"github.com/parrotgw/parrot/internal/cache/hot"
	"github.com/parrotgw/parrot/internal/cache/index"
	"github.com/parrotgw/parrot/internal/embedding/embeddingtest"
	"github.com/parrotgw/parrot/internal/fingerprint"
	"github.com/parrotgw/parrot/internal/pkg/httpclient"
	"github.com/parrotgw/parrot/internal/resilience"
	"github.com/parrotgw/parrot/internal/server/chat"
	"github.com/parrotgw/parrot/internal/upstream"
)

func newTestRouter(t *testing.T) (*gin.Engine, *cache.Engine) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"gpt-4","choices":[{"index":0,"message":{"role":"assistant","content":"4"},"finish_reason":"stop"}]}`)
	}))
	t.Cleanup(upstreamServer.Close)

	engine := cache.NewEngine(
		cache.Config{Enabled: true, TemplateEnabled: true},
		hot.NewMemoryStore(time.Minute, time.Minute),
		index.NewMemoryStore(),
		embeddingtest.New(),
		resilience.NewHealth(),
	)

	registry := upstream.NewRegistry(upstream.Config{
		Providers: []upstream.ProviderConfig{{
			Name:          "test",
			BaseURL:       upstreamServer.URL,
			ModelPatterns: []string{"gpt-.*"},
		}},
	}, httpclient.NewHttpClient())

	processor := chat.NewProcessor(engine, fingerprint.NewCanonicalizer(nil), registry)
	handlers := NewChatCompletionHandlers(processor)
	ops := NewOpsHandlers(engine)

	router := gin.New()
	router.POST("/v1/chat/completions", handlers.ChatCompletion)
	router.GET("/health", ops.Health)
	router.GET("/v1/cache/stats", ops.CacheStats)
	router.POST("/v1/cache/clear", ops.CacheClear)

	return router, engine
}

func postChat(router *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	return recorder
}

func TestChatCompletion_CacheHeaders(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"model":"gpt-4","messages":[{"role":"user","content":"What is 2+2?"}]}`

	first := postChat(router, body, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "false", first.Header().Get(chat.HeaderCacheHit))
	assert.Equal(t, "none", first.Header().Get(chat.HeaderCacheMatch))

	require.Eventually(t, func() bool {
		resp := postChat(router, body, nil)
		return resp.Header().Get(chat.HeaderCacheHit) == "true" &&
			resp.Header().Get(chat.HeaderCacheMatch) == "exact"
	}, 2*time.Second, 10*time.Millisecond)

	hit := postChat(router, body, nil)
	require.Equal(t, http.StatusOK, hit.Code)
	assert.Equal(t, "true", hit.Header().Get(chat.HeaderCacheHit))
	assert.Equal(t, "exact", hit.Header().Get(chat.HeaderCacheMatch))
	assert.Equal(t, "1.000", hit.Header().Get(chat.HeaderCacheScore))
	assert.NotEmpty(t, hit.Header().Get(chat.HeaderCacheProvenance))
	assert.Equal(t, "gpt-4", hit.Header().Get(chat.HeaderCacheSourceModel))
	assert.NotEmpty(t, hit.Header().Get(chat.HeaderCacheAge))
	assert.JSONEq(t, first.Body.String(), hit.Body.String())
}

func TestChatCompletion_InvalidRequestRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := postChat(router, `{"model":"gpt-4","messages":[]}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "invalid_request_error")
}

func TestHealth_ReportsDependencies(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"mode":"full"`)
	assert.Contains(t, recorder.Body.String(), `"hot"`)
	assert.Contains(t, recorder.Body.String(), `"indexed"`)
	assert.Contains(t, recorder.Body.String(), `"embedder"`)
	assert.Contains(t, recorder.Body.String(), `"provider"`)
}

func TestCacheStatsAndClear(t *testing.T) {
	router, engine := newTestRouter(t)

	body := `{"model":"gpt-4","messages":[{"role":"user","content":"What is 2+2?"}]}`
	postChat(router, body, nil)

	require.Eventually(t, func() bool {
		stats, err := engine.Stats(t.Context(), engine.Config().DefaultTenant)
		return err == nil && stats.Entries == 1
	}, 2*time.Second, 10*time.Millisecond)

	statsReq := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	statsRec := httptest.NewRecorder()
	router.ServeHTTP(statsRec, statsReq)
	require.Equal(t, http.StatusOK, statsRec.Code)
	assert.Contains(t, statsRec.Body.String(), `"entries":1`)

	clearReq := httptest.NewRequest(http.MethodPost, "/v1/cache/clear", nil)
	clearRec := httptest.NewRecorder()
	router.ServeHTTP(clearRec, clearReq)
	require.Equal(t, http.StatusOK, clearRec.Code)

	stats, err := engine.Stats(t.Context(), engine.Config().DefaultTenant)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
}

func TestChatCompletion_StreamingHitEmitsSSE(t *testing.T) {
	router, _ := newTestRouter(t)

	plain := `{"model":"gpt-4","messages":[{"role":"user","content":"What is 2+2?"}]}`
	postChat(router, plain, nil)

	require.Eventually(t, func() bool {
		return postChat(router, plain, nil).Header().Get(chat.HeaderCacheHit) == "true"
	}, 2*time.Second, 10*time.Millisecond)

	// SSE needs a real server: the recorder does not support CloseNotify.
	server := httptest.NewServer(router)
	defer server.Close()

	streaming := `{"model":"gpt-4","messages":[{"role":"user","content":"What is 2+2?"}],"stream":true}`

	resp, err := http.Post(server.URL+"/v1/chat/completions", "application/json", strings.NewReader(streaming))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(chat.HeaderCacheHit))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var sb strings.Builder
	buf := make([]byte, 4096)

	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])

		if err != nil {
			break
		}
	}

	assert.Contains(t, sb.String(), "data:")
	assert.Contains(t, sb.String(), "[DONE]")
}
