package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSugar(t *testing.T) {
	for _, env := range []string{"dev", "prod"} {
		logger, err := NewSugar(env)
		require.NoError(t, err, env)
		assert.NotNil(t, logger)
	}

	prod, err := NewLogger("prod")
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zapcore.DebugLevel))

	dev, err := NewLogger("dev")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}

func TestKVLogFunc(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logFn := KVLogFunc(zap.New(core).Sugar())

	logFn("Redis command", "command", "get")
	logFn("Redis command failed", "command", "set", "error", "boom")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "kv", entries[0].LoggerName)
	assert.Equal(t, "get", entries[0].ContextMap()["command"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)

	assert.Nil(t, KVLogFunc(nil))
}
