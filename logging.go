package main

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(verbosity int, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(verbosityLevel(verbosity))
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg.Build()
}

// verbosityLevel maps the numeric verbosity (10 debug, 20 info, 30
// warning, 40 and up error) onto a zap level.
func verbosityLevel(v int) zapcore.Level {
	switch {
	case v <= 10:
		return zapcore.DebugLevel
	case v <= 20:
		return zapcore.InfoLevel
	case v <= 30:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
