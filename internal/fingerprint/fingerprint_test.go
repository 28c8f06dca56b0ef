package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parrotgw/parrot/internal/llm"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name string
		req  *llm.Request
		want Mode
	}{
		{
			name: "text by default",
			req:  &llm.Request{},
			want: ModeText,
		},
		{
			name: "json object",
			req:  &llm.Request{ResponseFormat: &llm.ResponseFormat{Type: "json_object"}},
			want: ModeJSONObject,
		},
		{
			name: "json schema",
			req: &llm.Request{ResponseFormat: &llm.ResponseFormat{
				Type:       "json_schema",
				JSONSchema: &llm.JSONSchemaFormat{Name: "result", Schema: json.RawMessage(`{"type":"object"}`)},
			}},
			want: ModeJSONSchema,
		},
		{
			name: "tools",
			req:  &llm.Request{Tools: []llm.Tool{{Type: "function", Function: llm.FunctionDefinition{Name: "f"}}}},
			want: ModeTools,
		},
		{
			name: "legacy functions",
			req:  &llm.Request{Functions: []llm.FunctionDefinition{{Name: "f"}}},
			want: ModeFunction,
		},
		{
			name: "schema wins over tools",
			req: &llm.Request{
				ResponseFormat: &llm.ResponseFormat{
					Type:       "json_schema",
					JSONSchema: &llm.JSONSchemaFormat{Name: "r", Schema: json.RawMessage(`{}`)},
				},
				Tools: []llm.Tool{{Type: "function", Function: llm.FunctionDefinition{Name: "f"}}},
			},
			want: ModeJSONSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMode(tt.req))
		})
	}
}

func TestToolSchemaHash(t *testing.T) {
	weather := llm.Tool{Type: "function", Function: llm.FunctionDefinition{
		Name:       "get_weather",
		Parameters: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
	}}
	email := llm.Tool{Type: "function", Function: llm.FunctionDefinition{
		Name:       "send_email",
		Parameters: json.RawMessage(`{"type":"object"}`),
	}}

	t.Run("empty is sentinel", func(t *testing.T) {
		require.Equal(t, ToolSchemaNone, ToolSchemaHash(nil, nil))
	})

	t.Run("order independent", func(t *testing.T) {
		a := ToolSchemaHash([]llm.Tool{weather, email}, nil)
		b := ToolSchemaHash([]llm.Tool{email, weather}, nil)
		require.Equal(t, a, b)
	})

	t.Run("extra tool changes hash", func(t *testing.T) {
		a := ToolSchemaHash([]llm.Tool{weather}, nil)
		b := ToolSchemaHash([]llm.Tool{weather, email}, nil)
		require.NotEqual(t, a, b)
	})
}

func TestBucketTemperature(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	assert.Equal(t, BucketDefault, BucketTemperature(nil))
	assert.Equal(t, BucketZero, BucketTemperature(f(0)))
	assert.Equal(t, BucketZero, BucketTemperature(f(0.005)))
	assert.Equal(t, BucketLow, BucketTemperature(f(0.2)))
	assert.Equal(t, BucketMedium, BucketTemperature(f(0.5)))
	assert.Equal(t, BucketHigh, BucketTemperature(f(0.8)))
	assert.Equal(t, BucketDefault, BucketTemperature(f(1.0)))
	assert.Equal(t, BucketVeryHigh, BucketTemperature(f(1.5)))
}

func TestBucketsAdjacent(t *testing.T) {
	assert.True(t, BucketsAdjacent(BucketZero, BucketLow))
	assert.True(t, BucketsAdjacent(BucketHigh, BucketDefault))
	assert.False(t, BucketsAdjacent(BucketZero, BucketMedium))
	assert.False(t, BucketsAdjacent(BucketZero, BucketZero))
}

func TestModelFamily(t *testing.T) {
	tests := map[string]string{
		"gpt-4":                    "gpt-4",
		"gpt-4-0613":               "gpt-4",
		"gpt-4-2024-04-09":         "gpt-4",
		"gpt-4-turbo-preview":      "gpt-4-turbo",
		"claude-3-5-sonnet-20241022": "claude-3-5-sonnet",
		"gemini-pro-latest":        "gemini-pro",
	}

	for model, family := range tests {
		assert.Equal(t, family, ModelFamily(model), model)
	}
}

func TestNew_UsesMaskedPromptForSimHash(t *testing.T) {
	canon := NewCanonicalizer(nil)

	build := func(content string) (*llm.Request, *Canonical) {
		req := &llm.Request{
			Model: "gpt-4",
			Messages: []llm.Message{
				{Role: "user", Content: llm.MessageContent{Content: &content}},
			},
		}

		body, err := json.Marshal(map[string]any{
			"model":    "gpt-4",
			"messages": []map[string]string{{"role": "user", "content": content}},
		})
		require.NoError(t, err)

		c, err := canon.Canonicalize(req, body)
		require.NoError(t, err)

		return req, c
	}

	reqA, canonA := build("Summarize https://x.test/a")
	reqB, canonB := build("Summarize https://x.test/b")

	fpA := New(reqA, canonA)
	fpB := New(reqB, canonB)

	// Distinct URLs collapse to the same template, so the structural
	// fingerprints agree while the exact keys differ.
	assert.Equal(t, fpA.SimHash, fpB.SimHash)
	assert.NotEqual(t, fpA.ExactKey, fpB.ExactKey)
}
