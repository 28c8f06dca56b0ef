package log

import (
	"context"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// slogHandler bridges slog records onto the underlying zap logger.
type slogHandler struct {
	logger *zap.Logger
	attrs  []zap.Field
	group  string
}

func slogLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.Core().Enabled(slogLevel(level))
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zap.Field, 0, len(h.attrs)+record.NumAttrs())
	fields = append(fields, h.attrs...)

	record.Attrs(func(attr slog.Attr) bool {
		fields = append(fields, h.attrToField(attr))
		return true
	})

	if ce := h.logger.Check(slogLevel(record.Level), record.Message); ce != nil {
		ce.Time = record.Time
		ce.Write(fields...)
	}

	return nil
}

func (h *slogHandler) attrToField(attr slog.Attr) zap.Field {
	key := attr.Key
	if h.group != "" {
		key = h.group + "." + key
	}

	return zap.Any(key, attr.Value.Any())
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &slogHandler{logger: h.logger, group: h.group}
	next.attrs = append(next.attrs, h.attrs...)

	for _, attr := range attrs {
		next.attrs = append(next.attrs, next.attrToField(attr))
	}

	return next
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}

	return &slogHandler{logger: h.logger, attrs: h.attrs, group: group}
}
