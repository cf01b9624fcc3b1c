// Package logger provides structured logging for the identity adapter.
//
// It wraps Uber's zap logger. Log starts as a no-op logger so library code
// can log unconditionally; programs call InitLogger to enable output:
//
//	logger.InitLogger("debug") // Options: debug, info, warn, error
//
//	logger.Log.Debug("flush",
//	    zap.Int("operations", n),
//	)
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = zap.NewNop()

// InitLogger replaces Log with a production logger at the given level.
// Unknown levels fall back to info.
func InitLogger(level string) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Log = l
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(level string) zapcore.Level {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return zap.InfoLevel
	}
	return zapLevel
}
