package log

// Config controls logger construction.
type Config struct {
	// Name is the logger name, stamped on every entry.
	Name string `conf:"name" yaml:"name" json:"name"`

	// Level is one of debug, info, warn, error.
	Level string `conf:"level" yaml:"level" json:"level"`

	// Format is one of console, json.
	Format string `conf:"format" yaml:"format" json:"format"`

	// File enables file output with rotation when Path is set.
	File FileConfig `conf:"file" yaml:"file" json:"file"`
}

// FileConfig controls rotated file output.
type FileConfig struct {
	Path       string `conf:"path" yaml:"path" json:"path"`
	MaxSizeMB  int    `conf:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `conf:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `conf:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `conf:"compress" yaml:"compress" json:"compress"`
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "parrot"
	}

	if c.Level == "" {
		c.Level = "info"
	}

	if c.Format == "" {
		c.Format = "console"
	}

	if c.File.MaxSizeMB == 0 {
		c.File.MaxSizeMB = 100
	}

	if c.File.MaxBackups == 0 {
		c.File.MaxBackups = 5
	}

	return c
}
