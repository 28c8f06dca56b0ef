package cache

import (
	"time"

	"github.com/parrotgw/parrot/internal/pkg/xredis"
)

// Config controls the cache engine.
type Config struct {
	// Enabled gates the whole cache path; disabled means pure passthrough.
	Enabled bool `conf:"enabled" yaml:"enabled" json:"enabled"`

	// Threshold is the composite-score admission threshold for template hits.
	Threshold float64 `conf:"threshold" yaml:"threshold" json:"threshold"`

	// MaxHamming is the SimHash candidate radius.
	MaxHamming int `conf:"max_hamming" yaml:"max_hamming" json:"max_hamming"`

	// CandidateLimit caps the template candidate fetch.
	CandidateLimit int `conf:"candidate_limit" yaml:"candidate_limit" json:"candidate_limit"`

	// TemplateEnabled gates template matching; exact lookups always run.
	TemplateEnabled bool `conf:"template_enabled" yaml:"template_enabled" json:"template_enabled"`

	// DefaultTTL applies to model families without an explicit TTL.
	DefaultTTL time.Duration `conf:"default_ttl" yaml:"default_ttl" json:"default_ttl"`

	// FamilyTTL maps model families to TTLs.
	FamilyTTL map[string]time.Duration `conf:"family_ttl" yaml:"family_ttl" json:"family_ttl"`

	// PrivacyMode stops raw prompt material from being persisted; only the
	// masked template and the prompt digest are stored.
	PrivacyMode bool `conf:"privacy_mode" yaml:"privacy_mode" json:"privacy_mode"`

	// HMACSecret keys the raw prompt digest when set.
	HMACSecret string `conf:"hmac_secret" yaml:"hmac_secret" json:"hmac_secret"`

	// DefaultTenant is used when no tenant can be derived from the request.
	DefaultTenant string `conf:"default_tenant" yaml:"default_tenant" json:"default_tenant"`

	Hot   HotConfig   `conf:"hot" yaml:"hot" json:"hot"`
	Index IndexConfig `conf:"index" yaml:"index" json:"index"`

	// SweepCRON is the schedule of the expired-entry sweep.
	SweepCRON string `conf:"sweep_cron" yaml:"sweep_cron" json:"sweep_cron"`
}

// HotConfig selects and tunes the hot tier backend.
type HotConfig struct {
	// Mode is "redis" or "memory".
	Mode string `conf:"mode" yaml:"mode" json:"mode"`

	Redis xredis.Config `conf:"redis" yaml:"redis" json:"redis"`

	// CommandTimeout bounds each hot tier round trip.
	CommandTimeout time.Duration `conf:"command_timeout" yaml:"command_timeout" json:"command_timeout"`

	Memory MemoryConfig `conf:"memory" yaml:"memory" json:"memory"`
}

// MemoryConfig tunes the in-memory hot tier backend.
type MemoryConfig struct {
	Expiration      time.Duration `conf:"expiration" yaml:"expiration" json:"expiration"`
	CleanupInterval time.Duration `conf:"cleanup_interval" yaml:"cleanup_interval" json:"cleanup_interval"`
}

// IndexConfig selects and tunes the indexed tier backend.
type IndexConfig struct {
	// Mode is "postgres" or "memory".
	Mode string `conf:"mode" yaml:"mode" json:"mode"`

	DSN string `conf:"dsn" yaml:"dsn" json:"dsn"`

	StatementTimeout time.Duration `conf:"statement_timeout" yaml:"statement_timeout" json:"statement_timeout"`

	MaxConns int32 `conf:"max_conns" yaml:"max_conns" json:"max_conns"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Threshold == 0 {
		c.Threshold = 0.87
	}

	if c.MaxHamming == 0 {
		c.MaxHamming = 6
	}

	if c.CandidateLimit == 0 {
		c.CandidateLimit = 100
	}

	if c.DefaultTTL == 0 {
		c.DefaultTTL = 24 * time.Hour
	}

	if c.DefaultTenant == "" {
		c.DefaultTenant = "default"
	}

	if c.Hot.CommandTimeout == 0 {
		c.Hot.CommandTimeout = 5 * time.Second
	}

	if c.Index.StatementTimeout == 0 {
		c.Index.StatementTimeout = 10 * time.Second
	}

	if c.SweepCRON == "" {
		c.SweepCRON = "*/5 * * * *"
	}

	return c
}

// TTL returns the time-to-live for a model family.
func (c Config) TTL(modelFamily string) time.Duration {
	if ttl, ok := c.FamilyTTL[modelFamily]; ok {
		return ttl
	}

	return c.DefaultTTL
}
