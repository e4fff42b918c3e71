// cmd/graphctl/internal/logger/logger.go
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Sugared = *zap.SugaredLogger

// New returns a development logger writing to stderr when debug is set,
// and a no-op logger otherwise so normal command output stays clean.
func New(debug bool) Sugared {
	if !debug {
		return zap.NewNop().Sugar()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	z, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return z.Sugar()
}
