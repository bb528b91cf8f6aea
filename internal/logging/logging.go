// Package logging builds the zap loggers memctl uses throughout the CLI and
// MCP server. Every sink writes to stderr; stdout stays reserved for data
// (injection blocks, JSON, answers) per the stdout-purity rule.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger writing to stderr at the given verbosity.
//
// quiet takes priority over verbose: quiet pins the level to error,
// verbose lowers it to debug, otherwise info.
func New(verbose, quiet bool) *zap.Logger {
	level := zapcore.InfoLevel
	switch {
	case quiet:
		level = zapcore.ErrorLevel
	case verbose:
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(cfg)

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level)
	return zap.New(core)
}

// Nop returns a logger that discards everything, used as the default in
// tests and library call sites that don't want to configure logging.
func Nop() *zap.Logger { return zap.NewNop() }
