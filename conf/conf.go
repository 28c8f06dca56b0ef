package conf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/parrotgw/parrot/internal/cache"
	"github.com/parrotgw/parrot/internal/embedding"
	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/metrics"
	"github.com/parrotgw/parrot/internal/server"
	"github.com/parrotgw/parrot/internal/upstream"
)

// Config is the full application configuration.
type Config struct {
	APIServer server.Config    `conf:"server" yaml:"server" json:"server"`
	Log       log.Config       `conf:"log" yaml:"log" json:"log"`
	Cache     cache.Config     `conf:"cache" yaml:"cache" json:"cache"`
	Embedding embedding.Config `conf:"embedding" yaml:"embedding" json:"embedding"`
	Upstream  upstream.Config  `conf:"upstream" yaml:"upstream" json:"upstream"`
	Metrics   metrics.Config   `conf:"metrics" yaml:"metrics" json:"metrics"`
}

// Load reads parrot.yml (working directory, ./conf, /etc/parrot) and applies
// PARROT_* environment overrides.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("parrot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./conf")
	v.AddConfigPath("/etc/parrot")

	v.SetEnvPrefix("PARROT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config

	err := v.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "conf"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

// Module provides the loaded config and its sections to the fx graph.
var Module = fx.Options(
	fx.Provide(Load),
	fx.Provide(func(cfg Config) server.Config { return cfg.APIServer.WithDefaults() }),
	fx.Provide(func(cfg Config) log.Config { return cfg.Log }),
	fx.Provide(func(cfg Config) cache.Config { return cfg.Cache.WithDefaults() }),
	fx.Provide(func(cfg Config) embedding.Config { return cfg.Embedding }),
	fx.Provide(func(cfg Config) upstream.Config { return cfg.Upstream }),
	fx.Provide(func(cfg Config) metrics.Config { return cfg.Metrics }),
)

// Validate reports configuration problems as human-readable strings.
func Validate(config Config) []string {
	var problems []string

	if config.APIServer.Port < 0 || config.APIServer.Port > 65535 {
		problems = append(problems, "server.port must be between 0 and 65535")
	}

	if config.Cache.Threshold < 0 || config.Cache.Threshold > 1 {
		problems = append(problems, "cache.threshold must be between 0 and 1")
	}

	if config.Cache.Index.Mode == "postgres" && config.Cache.Index.DSN == "" {
		problems = append(problems, "cache.index.dsn cannot be empty when the indexed tier is postgres")
	}

	if config.Cache.Hot.Mode == "redis" && config.Cache.Hot.Redis.Addr == "" && config.Cache.Hot.Redis.URL == "" {
		problems = append(problems, "cache.hot.redis requires addr or url")
	}

	for _, provider := range config.Upstream.Providers {
		if provider.BaseURL == "" {
			problems = append(problems, fmt.Sprintf("upstream provider %q has no base_url", provider.Name))
		}

		if len(provider.ModelPatterns) == 0 {
			problems = append(problems, fmt.Sprintf("upstream provider %q has no model_patterns", provider.Name))
		}
	}

	return problems
}
