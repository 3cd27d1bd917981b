// Package logging builds the zap logger shared by every command.
package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing to w. Verbose selects the development console
// encoder at debug level; otherwise JSON at info level. Commands pass stderr
// so that JSON output on stdout stays parseable.
func New(w io.Writer, verbose bool) *zap.Logger {
	var (
		encoder zapcore.Encoder
		level   zapcore.Level
	)
	if verbose {
		cfg := zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(cfg)
		level = zapcore.DebugLevel
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
		level = zapcore.InfoLevel
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	return zap.New(core)
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
