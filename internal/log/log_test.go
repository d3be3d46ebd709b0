package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, lvl zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(lvl)
	Use(zap.New(core))
	t.Cleanup(func() { SetFormat("console") })
	return logs
}

func TestErrorPrependsErr(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Error("store read failed", errors.New("boom"), "doc", "pages/a")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "boom", ctx["err"])
	assert.Equal(t, "pages/a", ctx["doc"])
}

func TestPairsDropsMalformedKeys(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Info("scan", "count", 3, 42, "x", "dangling")

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Len(t, ctx, 1)
	assert.EqualValues(t, 3, ctx["count"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
