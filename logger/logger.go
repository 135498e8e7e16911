// Package logger builds the process-wide zap.Logger used by the
// coordinator, ceremonies, and transport layer. It mirrors the teacher
// corpus's logging-setup shape (level string in, ready-to-use structured
// logger out) adapted to zap instead of zerolog.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger at the given level ("debug", "info", "warn" or
// "warning", "error", "dpanic", "panic", "fatal"; anything else falls back
// to "info"). Output is JSON to stderr (zap's production config), matching
// the corpus's default of structured-by-default logging.
func New(levelStr string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(levelStr))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l, nil
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// With returns a child logger tagged with the given component name, the
// pattern used throughout the ceremony and transport code to scope log
// lines (e.g. logger.With(log, "dkg").Info("round1 complete")).
func With(l *zap.Logger, component string) *zap.Logger {
	return l.With(zap.String("component", component))
}
