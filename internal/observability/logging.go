// Package observability builds the engine's zap loggers and the per-map
// budgets that cap high-frequency event logging.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/battlebus/internal/config"
)

// LoggerName is the root logger name; components add their own suffix.
const LoggerName = "battlebus"

// NewLogger creates the root logger from cfg.
//
// json output disables zap sampling: per-event lines are already capped per
// map by Budget, and sampling would drop map-end summaries that share a message.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a logger named LoggerName or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
		zapCfg.Sampling = nil
		zapCfg.EncoderConfig.TimeKey = "ts"
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Named(LoggerName), nil
}

// WithSession scopes logger to one engine instance so lines from
// independent engines sharing a sink can be told apart.
//
// Postcondition: A nil logger yields a no-op logger; the result always
// carries a "session" field.
func WithSession(logger *zap.Logger, session string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.Named("engine").With(zap.String("session", session))
}
