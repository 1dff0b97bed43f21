// Package logging builds the zap loggers used by every ctrlr component.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New
type Options struct {
	// Verbose lowers the level to debug
	Verbose bool
	// JSON selects the JSON encoder instead of the console one
	JSON bool
}

// New returns a logger writing to stderr. Console output uses the
// "15:04:05.000 INFO name msg" layout the diagnostic log also uses.
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	var enc zapcore.Encoder
	if opts.JSON {
		encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encCfg.EncodeCaller = nil
		encCfg.CallerKey = ""
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}
