package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/pkg/httpclient"
	"github.com/parrotgw/parrot/internal/pkg/streams"
	"github.com/parrotgw/parrot/internal/pkg/xregexp"
)

// ProviderType distinguishes upstream wire families. All providers here speak
// the OpenAI-compatible chat completions surface; full wire conversion for
// native Anthropic/Bedrock endpoints lives outside the gateway.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderBedrock   ProviderType = "bedrock"
)

// ProviderConfig declares one upstream endpoint.
type ProviderConfig struct {
	Name string       `conf:"name" yaml:"name" json:"name"`
	Type ProviderType `conf:"type" yaml:"type" json:"type"`

	// BaseURL of the OpenAI-compatible surface, e.g. "https://api.openai.com".
	BaseURL string `conf:"base_url" yaml:"base_url" json:"base_url"`

	APIKey string `conf:"api_key" yaml:"api_key" json:"api_key"`

	// AuthHeader overrides the credential header for api_key-style auth.
	AuthHeader string `conf:"auth_header" yaml:"auth_header" json:"auth_header"`

	// ModelPatterns route requests to this provider by model name, e.g.
	// "claude-.*". Plain strings match exactly.
	ModelPatterns []string `conf:"model_patterns" yaml:"model_patterns" json:"model_patterns"`
}

// Config declares the upstream forwarder.
type Config struct {
	// Timeout bounds a full upstream round trip.
	Timeout time.Duration `conf:"timeout" yaml:"timeout" json:"timeout"`

	Providers []ProviderConfig `conf:"providers" yaml:"providers" json:"providers"`
}

// Registry dispatches requests to providers by model-name pattern.
type Registry struct {
	config    Config
	providers []*Provider
	http      *httpclient.HttpClient
}

// NewRegistry builds the provider registry.
func NewRegistry(config Config, hc *httpclient.HttpClient) *Registry {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	registry := &Registry{config: config, http: hc}

	for _, pc := range config.Providers {
		registry.providers = append(registry.providers, &Provider{
			config:  pc,
			http:    hc,
			timeout: config.Timeout,
		})
	}

	return registry
}

// ForModel returns the first provider whose patterns match the model.
func (r *Registry) ForModel(model string) (*Provider, error) {
	for _, provider := range r.providers {
		for _, pattern := range provider.config.ModelPatterns {
			if xregexp.MatchString(pattern, model) {
				return provider, nil
			}
		}
	}

	return nil, fmt.Errorf("no upstream provider configured for model %q", model)
}

// Provider forwards chat completion requests to one upstream endpoint.
type Provider struct {
	config  ProviderConfig
	http    *httpclient.HttpClient
	timeout time.Duration
}

// Name returns the provider's configured name.
func (p *Provider) Name() string { return p.config.Name }

func (p *Provider) request(body []byte) *httpclient.Request {
	req := &httpclient.Request{
		Method: http.MethodPost,
		URL:    p.config.BaseURL + "/v1/chat/completions",
		Body:   body,
	}

	if p.config.APIKey != "" {
		switch p.config.Type {
		case ProviderAnthropic:
			headerKey := p.config.AuthHeader
			if headerKey == "" {
				headerKey = "X-Api-Key"
			}

			req.Auth = &httpclient.AuthConfig{
				Type:      httpclient.AuthTypeAPIKey,
				APIKey:    p.config.APIKey,
				HeaderKey: headerKey,
			}
		default:
			req.Auth = &httpclient.AuthConfig{
				Type:   httpclient.AuthTypeBearer,
				APIKey: p.config.APIKey,
			}
		}
	}

	return req
}

// Forward sends a non-streaming chat completion upstream. Upstream errors are
// returned as *httpclient.Error so the body passes through verbatim.
func (p *Provider) Forward(ctx context.Context, body []byte) (*httpclient.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.http.Do(ctx, p.request(body))
	if err != nil {
		log.Warn(ctx, "upstream request failed",
			log.String("provider", p.config.Name), log.Cause(err))

		return nil, err
	}

	return resp, nil
}

// ForwardStream sends a streaming chat completion upstream. The returned
// stream is bound to the caller's context; cancelling it stops the forward
// and frees the provider connection.
func (p *Provider) ForwardStream(ctx context.Context, body []byte) (streams.Stream[*httpclient.StreamEvent], error) {
	stream, err := p.http.DoStream(ctx, p.request(body))
	if err != nil {
		log.Warn(ctx, "upstream stream request failed",
			log.String("provider", p.config.Name), log.Cause(err))

		return nil, err
	}

	return stream, nil
}
