// Package logging provides zap logger helpers and the structured field
// names shared across the distiller.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// Named returns logger scoped to component, or a no-op logger when logger is nil.
func Named(logger *zap.Logger, component string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.Named(component)
}

// Organization tags a log line with the tenant.
func Organization(id string) zap.Field { return zap.String("organization_id", id) }

// Record tags a log line with the business record.
func Record(id string) zap.Field { return zap.String("record_id", id) }

// Industry tags a log line with the catalog industry.
func Industry(id string) zap.Field { return zap.String("industry_id", id) }

// Stage tags a log line with a processing stage.
func Stage(stage string) zap.Field { return zap.String("stage", stage) }
