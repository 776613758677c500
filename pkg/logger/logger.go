// Package logger builds the zap loggers used by ollamactl and the proxy.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Debug bool
	JSON  bool                // Structured output for the proxy; console otherwise
	Out   zapcore.WriteSyncer // Defaults to stderr so streamed answers on stdout stay clean

	// Level, when set, replaces Debug and can be changed while the logger
	// is in use.
	Level *zap.AtomicLevel
}

// New returns a logger for opts.
func New(opts Options) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var level zapcore.LevelEnabler = LevelFor(opts.Debug)
	if opts.Level != nil {
		level = *opts.Level
	}

	out := opts.Out
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}

	return zap.New(zapcore.NewCore(encoder, out, level), zap.AddCaller())
}

// NewLogger returns a console logger on stderr.
func NewLogger(debug bool) *zap.Logger {
	return New(Options{Debug: debug})
}

// LevelFor returns the level a debug setting selects.
func LevelFor(debug bool) zapcore.Level {
	if debug {
		return zap.DebugLevel
	}
	return zap.InfoLevel
}
