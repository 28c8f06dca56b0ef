package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/parrotgw/parrot/internal/pkg/httpclient"
)

// Config configures the OpenAI-compatible embedding client.
type Config struct {
	// BaseURL of the embedding service, e.g. "http://embedder:8080".
	BaseURL string `conf:"base_url" yaml:"base_url" json:"base_url"`

	// Model passed to the embeddings endpoint.
	Model string `conf:"model" yaml:"model" json:"model"`

	APIKey string `conf:"api_key" yaml:"api_key" json:"api_key"`

	// Dim is the expected embedding dimension.
	Dim int `conf:"dim" yaml:"dim" json:"dim"`

	Timeout time.Duration `conf:"timeout" yaml:"timeout" json:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Dim == 0 {
		c.Dim = 384
	}

	if c.Timeout == 0 {
		c.Timeout = 2 * time.Second
	}

	return c
}

// Client calls an OpenAI-compatible /v1/embeddings endpoint. Identical
// in-flight texts are deduplicated through singleflight.
type Client struct {
	config Config
	http   *httpclient.HttpClient
	group  singleflight.Group
	ready  atomic.Bool
}

// NewClient builds an embedding client. The client starts out Ready; a failed
// request to the service clears it until a later call succeeds.
func NewClient(config Config, hc *httpclient.HttpClient) *Client {
	client := &Client{
		config: config.withDefaults(),
		http:   hc,
	}
	client.ready.Store(true)

	return client
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns the L2-normalized vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err, _ := c.group.Do(text, func() (any, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}

	//nolint:forcetypeassert // The group only stores []float32.
	return result.([]float32), nil
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{
		Model: c.config.Model,
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}

	req := &httpclient.Request{
		Method: http.MethodPost,
		URL:    c.config.BaseURL + "/v1/embeddings",
		Body:   body,
	}
	if c.config.APIKey != "" {
		req.Auth = &httpclient.AuthConfig{Type: httpclient.AuthTypeBearer, APIKey: c.config.APIKey}
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.ready.Store(false)
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response contains no data")
	}

	vec := parsed.Data[0].Embedding
	if len(vec) != c.config.Dim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), c.config.Dim)
	}

	c.ready.Store(true)

	return Normalize(vec), nil
}

// Dim returns the configured embedding dimension.
func (c *Client) Dim() int { return c.config.Dim }

// Ready reports false after a request to the embedding service failed and true
// again once a call succeeds; a response that fails decoding or the dimension
// check leaves it unchanged.
func (c *Client) Ready() bool { return c.ready.Load() }
