// Package logging builds the process logger from settings.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production zap logger at level ("debug", "info", "warn",
// "error"; empty means info) using the "json" or "console" encoder.
func New(level, format string) (*zap.Logger, error) {
	config, err := Config(level, format)
	if err != nil {
		return nil, err
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Config returns the zap configuration New builds from.
func Config(level, format string) (zap.Config, error) {
	config := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zap.Config{}, fmt.Errorf("log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	switch strings.ToLower(format) {
	case "", "json":
	case "console":
		config.Encoding = "console"
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return zap.Config{}, fmt.Errorf("log format %q: want json or console", format)
	}
	return config, nil
}
