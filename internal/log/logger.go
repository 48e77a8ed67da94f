// Package log provides structured logging for desens using zap.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/straja-ai/desens/internal/redact"
)

// Logger wraps zap.Logger with a redacting helper for free-form strings.
type Logger struct {
	*zap.Logger
}

// New creates a Logger. Debug enables development output at debug level;
// otherwise JSON output at the given level ("debug", "info", "warn", "error").
func New(debug bool, level string) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		lvl := zap.InfoLevel
		if level != "" {
			if parsed, err := zapcore.ParseLevel(level); err == nil {
				lvl = parsed
			}
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// stdout carries command output
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Redacted returns a string field with secrets scrubbed.
func Redacted(key, value string) zap.Field {
	return zap.String(key, redact.String(value))
}

// Err returns an error field with secrets scrubbed from its message.
func Err(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", redact.String(err.Error()))
}

// Named returns a child logger.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}
