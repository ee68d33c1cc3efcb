// Package logging constructs the process-wide zap logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build constructs a console logger writing to stderr and installs it as
// the zap global. Stdout is reserved for machine-readable run reports, so
// diagnostics must stay on a separate stream.
func Build(verbose bool) *zap.Logger {
	level := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		if verbose {
			return true
		}
		return l >= zapcore.InfoLevel
	})

	stderrSyncer := zapcore.Lock(os.Stderr)

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
		}),
		stderrSyncer,
		level,
	)

	logger := zap.New(core)
	zap.ReplaceGlobals(logger)
	return logger
}
