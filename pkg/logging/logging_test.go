package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	info, err := NewLogger("voxelseg", false)
	require.NoError(t, err)
	assert.False(t, info.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, info.Desugar().Core().Enabled(zapcore.InfoLevel))

	debug, err := NewLogger("voxelseg", true)
	require.NoError(t, err)
	assert.True(t, debug.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerConfigIsIndependent(t *testing.T) {
	a := NewLoggerConfig()
	a.Level.SetLevel(zap.DebugLevel)
	assert.Equal(t, zap.InfoLevel, NewLoggerConfig().Level.Level())
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := NewNopLogger()
	assert.Same(t, l, OrNop(l))
}
