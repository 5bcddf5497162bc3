// Package logging holds the process-wide zap logger.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global logger. It is a no-op until Initialize is called so
// packages can log from tests and library use without setup.
var Logger = zap.NewNop().Sugar()

// Standard field names used across components.
const (
	FieldPipeline   = "pipeline"
	FieldRunID      = "run_id"
	FieldStep       = "step"
	FieldPolicy     = "policy"
	FieldDecision   = "decision"
	FieldDrift      = "dataset_drift"
	FieldAccuracy   = "accuracy"
	FieldThreshold  = "min_accuracy"
	FieldService    = "service"
	FieldState      = "state"
	FieldModel      = "model"
	FieldNamespace  = "namespace"
	FieldStatusCode = "status_code"
	FieldURL        = "url"
	FieldError      = "error"
	FieldDurationMS = "duration_ms"
)

// Initialize replaces the global logger. jsonOutput selects the production
// JSON encoder; otherwise a console encoder writes to stderr.
func Initialize(jsonOutput bool, level string) error {
	lvl := zap.NewAtomicLevelAt(parseLevel(level))

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = lvl
		l, err := cfg.Build()
		if err != nil {
			return err
		}
		Logger = l.Sugar()
		return nil
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stderr), lvl)
	Logger = zap.New(core).Sugar()
	return nil
}

// Component returns a named child of the global logger.
func Component(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func Sync() {
	_ = Logger.Sync()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
