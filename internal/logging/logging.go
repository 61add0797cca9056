// Package logging builds the zap logger used by the server binary.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger writing to stderr. Development mode
// (human-readable, debug level) is selected by setting DEBUG=1 in the
// environment; otherwise a JSON production encoder at info level is used.
func New() *zap.SugaredLogger {
	level := zapcore.InfoLevel
	encoder := zap.NewProductionEncoderConfig()
	enc := zapcore.NewJSONEncoder(encoder)

	if os.Getenv("DEBUG") != "" {
		level = zapcore.DebugLevel
		devEncoder := zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(devEncoder)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core).Sugar()
}
