package server

import (
	"time"
)

// Config controls the HTTP ingress.
type Config struct {
	Port        int           `conf:"port" yaml:"port" json:"port"`
	Host        string        `conf:"host" yaml:"host" json:"host"`
	Name        string        `conf:"name" yaml:"name" json:"name"`
	ReadTimeout time.Duration `conf:"read_timeout" yaml:"read_timeout" json:"read_timeout"`

	// RequestTimeout is the maximum duration for processing an operational
	// request.
	RequestTimeout time.Duration `conf:"request_timeout" yaml:"request_timeout" json:"request_timeout"`

	// LLMRequestTimeout is the maximum duration for a chat completion,
	// including the upstream forward.
	LLMRequestTimeout time.Duration `conf:"llm_request_timeout" yaml:"llm_request_timeout" json:"llm_request_timeout"`

	Debug bool `conf:"debug" yaml:"debug" json:"debug"`
	CORS  CORS `conf:"cors" yaml:"cors" json:"cors"`
}

// CORS controls cross-origin behavior.
type CORS struct {
	Enabled          bool          `conf:"enabled" yaml:"enabled" json:"enabled"`
	AllowedOrigins   []string      `conf:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods   []string      `conf:"allowed_methods" yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders   []string      `conf:"allowed_headers" yaml:"allowed_headers" json:"allowed_headers"`
	ExposedHeaders   []string      `conf:"exposed_headers" yaml:"exposed_headers" json:"exposed_headers"`
	AllowCredentials bool          `conf:"allow_credentials" yaml:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `conf:"max_age" yaml:"max_age" json:"max_age"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 8090
	}

	if c.Name == "" {
		c.Name = "parrot"
	}

	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}

	if c.LLMRequestTimeout == 0 {
		c.LLMRequestTimeout = 5 * time.Minute
	}

	return c
}
