// Package logging builds the diagnostic logger. Test output goes to
// stdout through the orchestrator; this logger carries the debug stream
// that -v enables.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New constructs the process logger. Verbose enables debug-level output;
// porcelain silences the logger entirely so scripted consumers see only
// the stable test output.
func New(verbose, porcelain bool) *zap.Logger {
	if porcelain {
		return zap.NewNop()
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
