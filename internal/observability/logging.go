// Package observability provides logger construction for the simulator.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/skirmish/internal/config"
)

// NewLogger creates a structured logger from the given logging configuration.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg, err := zapConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// NewLoggerTo is NewLogger writing to ws instead of the configured outputs.
func NewLoggerTo(cfg config.LoggingConfig, ws zapcore.WriteSyncer) (*zap.Logger, error) {
	zapCfg, err := zapConfig(cfg)
	if err != nil {
		return nil, err
	}
	var enc zapcore.Encoder
	if zapCfg.Encoding == "console" {
		enc = zapcore.NewConsoleEncoder(zapCfg.EncoderConfig)
	} else {
		enc = zapcore.NewJSONEncoder(zapCfg.EncoderConfig)
	}
	return zap.New(zapcore.NewCore(enc, ws, zapCfg.Level)), nil
}

func zapConfig(cfg config.LoggingConfig) (zap.Config, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapCfg, nil
}

// BattleLogger scopes base to one battle.
func BattleLogger(base *zap.Logger, battleID, scenario string) *zap.Logger {
	return base.Named("battle").With(
		zap.String("battle", battleID),
		zap.String("scenario", scenario),
	)
}
