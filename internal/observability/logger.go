// Package observability holds the process-wide loggers and the metrics
// pipeline exported on /metrics.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles accepted by NewLogger.
const (
	ProfileStructured = "STRUCTURED"
	ProfileConsole    = "CONSOLE"
)

// CLILogger is used by commands for user-facing output. It is a no-op
// logger until InitCLILogger runs.
var CLILogger = zap.NewNop()

// InitCLILogger configures CLILogger for a command-line session. Messages go
// to stderr without timestamps; verbose enables debug output and levels.
func InitCLILogger(name string, verbose bool) {
	encCfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
		encCfg.LevelKey = "level"
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	CLILogger = zap.New(core).Named(name)
}

// NewLogger builds the service logger from a level name and a profile.
// STRUCTURED writes JSON; CONSOLE writes human-readable lines.
func NewLogger(level, profile string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToUpper(strings.TrimSpace(profile)) {
	case "", ProfileStructured:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case ProfileConsole:
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown logging profile %q", profile)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	return cfg.Build()
}
