// Package logging builds the zap logger shared by every command.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and encoding.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// New returns a logger writing to stderr.
func New(cfg Config) (*zap.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	encoder, err := newEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// newEncoder creates a JSON or console encoder.
func newEncoder(format string) (zapcore.Encoder, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "json":
		return zapcore.NewJSONEncoder(encoderCfg), nil
	case "", "console":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
