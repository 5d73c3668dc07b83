package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Warn("value could not be coerced",
		Field{Key: "property", Value: "amount"},
		Field{Key: "error", Value: errors.New("bad number")})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "value could not be coerced", entries[0].Message)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "amount", ctx["property"])
	assert.Equal(t, "bad number", ctx["error"])
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, &NoOpLogger{}, OrNoOp(nil))

	zl := NewZapLogger(nil)
	assert.Same(t, zl, OrNoOp(zl))
	assert.NotPanics(t, func() { zl.Info("hello") })
}
