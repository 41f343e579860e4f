package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/leafsii/redis-demo/pkg/kv"
)

func NewLogger(env string) (*zap.Logger, error) {
	var config zap.Config

	if env == "prod" {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	return config.Build()
}

func NewSugar(env string) (*zap.SugaredLogger, error) {
	logger, err := NewLogger(env)
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// KVLogFunc adapts a sugared logger to the store's logging hook. Store
// messages are per-command chatter, so they go out at debug level; messages
// carrying an error field are raised to warn.
func KVLogFunc(logger *zap.SugaredLogger) kv.LogFunc {
	if logger == nil {
		return nil
	}
	store := logger.Named("kv")
	return func(msg string, fields ...any) {
		for i := 0; i+1 < len(fields); i += 2 {
			if fields[i] == "error" {
				store.Warnw(msg, fields...)
				return
			}
		}
		store.Debugw(msg, fields...)
	}
}
