package log

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a zap logger with context hooks. Hooks run on every entry and
// may contribute fields derived from the context (trace IDs, operation names).
type Logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
	hooks []Hook
}

// New builds a Logger from the given config. Provided to fx.
func New(cfg Config) *Logger {
	cfg = cfg.withDefaults()

	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoder zapcore.Encoder

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	sink := zapcore.Lock(os.Stderr)

	var core zapcore.Core
	if cfg.File.Path != "" {
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
		core = zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sink, fileSink), level)
	} else {
		core = zapcore.NewCore(encoder, sink, level)
	}

	return &Logger{
		zap:   zap.New(core, zap.AddCallerSkip(1)).Named(cfg.Name),
		level: level,
		hooks: defaultHooks,
	}
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// AsSlog exposes the logger as a *slog.Logger for libraries that speak slog.
func (l *Logger) AsSlog() *slog.Logger {
	return slog.New(&slogHandler{logger: l.zap})
}

func (l *Logger) apply(ctx context.Context, msg string, fields []Field) []Field {
	for _, hook := range l.hooks {
		fields = append(fields, hook.Apply(ctx, msg)...)
	}

	return fields
}

// Debug logs a debug entry with context hook fields applied.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.zap.Debug(msg, l.apply(ctx, msg, fields)...)
}

// Info logs an info entry with context hook fields applied.
func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.zap.Info(msg, l.apply(ctx, msg, fields)...)
}

// Warn logs a warn entry with context hook fields applied.
func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.zap.Warn(msg, l.apply(ctx, msg, fields)...)
}

// Error logs an error entry with context hook fields applied.
func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.zap.Error(msg, l.apply(ctx, msg, fields)...)
}

// DebugEnabled reports whether debug entries would be written.
func (l *Logger) DebugEnabled(context.Context) bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

var (
	globalMu sync.RWMutex
	global   = New(Config{Level: "info"})
)

// SetGlobalConfig rebuilds the global logger from the given config.
func SetGlobalConfig(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	global = New(cfg)
}

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	return global
}

// Debug logs a debug entry on the global logger.
func Debug(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Debug(ctx, msg, fields...)
}

// Info logs an info entry on the global logger.
func Info(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Info(ctx, msg, fields...)
}

// Warn logs a warn entry on the global logger.
func Warn(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Warn(ctx, msg, fields...)
}

// Error logs an error entry on the global logger.
func Error(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Error(ctx, msg, fields...)
}

// DebugEnabled reports whether the global logger writes debug entries.
func DebugEnabled(ctx context.Context) bool {
	return GetGlobalLogger().DebugEnabled(ctx)
}
