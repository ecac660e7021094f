package shaper

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewSlogLogger(&out, &errOut, slog.LevelDebug)

	l.Info("shaping channel 0", "analysis")
	l.Warn("fit failed", "resolution")
	l.Error("cannot open file")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "] [analysis] shaping channel 0"), lines[0])
	assert.Contains(t, lines[1], "[WARN] [resolution] fit failed")
	assert.Contains(t, errOut.String(), `"msg":"cannot open file"`)
	assert.Contains(t, errOut.String(), `"level":"ERROR"`)
}

func TestSetLogger(t *testing.T) {
	var out bytes.Buffer
	SetLogger(NewSlogLogger(&out, &out, slog.LevelInfo))
	defer SetLogger(nil)

	logger.Info("hello", "test")
	assert.Contains(t, out.String(), "[test] hello")

	SetLogger(nil)
	assert.Equal(t, silentLogger{}, logger)
}

func TestHandlerAttrsAndLevel(t *testing.T) {
	var out bytes.Buffer
	l := slog.New(NewHandler(&out, &slog.HandlerOptions{Level: slog.LevelWarn})).With("channel", 3)

	l.Info("dropped")
	l.Warn("pinned sigma", "module", "resolution")

	line := strings.TrimSpace(out.String())
	assert.NotContains(t, line, "dropped")
	assert.True(t, strings.HasSuffix(line, "] [WARN] [3] [resolution] pinned sigma"), line)
	assert.False(t, NewHandler(&out, nil).Enabled(context.Background(), slog.LevelDebug))
}
