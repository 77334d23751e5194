package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestNewZapLogger(t *testing.T) {
	t.Parallel()
	for _, format := range []string{"json", "console"} {
		z, err := NewZapLogger("debug", format)
		require.NoError(t, err)
		assert.True(t, z.Core().Enabled(zapcore.DebugLevel))
	}
}

func TestUseZap(t *testing.T) {
	origLogf, origDebugf := Logf, Debugf
	defer func() { Logf, Debugf = origLogf, origDebugf }()

	core, logs := observer.New(zapcore.DebugLevel)
	UseZap(zap.New(core))

	Logf("chunk %d done", 3)
	Debugf("extractor %s took %s", "eigenvalues", "1ms")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "chunk 3 done", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)

	UseZap(nil)
	Logf("muted")
	assert.Len(t, logs.All(), 2)
}
