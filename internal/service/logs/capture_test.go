package logs

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/observability"
)

func newTestLogger(c *Capture, buf *bytes.Buffer) *slog.Logger {
	return slog.New(c.Wrap(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestCapture_RecordsAndPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	c := New(10, nil)
	logger := newTestLogger(c, &buf)

	logger.With(slog.String("component", "stream-manager")).
		Info("session started", slog.String("session_id", "s1"), slog.Int("pid", 42))

	assert.Contains(t, buf.String(), "session started")

	entries := c.Recent(Filter{})
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "info", e.Level)
	assert.Equal(t, "session started", e.Message)
	assert.Equal(t, "stream-manager", e.Component)
	assert.Equal(t, "s1", e.SessionID)
	assert.Equal(t, int64(42), e.Fields["pid"])
	assert.NotEmpty(t, e.ID)
}

func TestCapture_Groups(t *testing.T) {
	var buf bytes.Buffer
	c := New(10, nil)
	logger := newTestLogger(c, &buf)

	logger.WithGroup("ffmpeg").With(slog.String("preset", "veryfast")).
		Info("spawn", slog.Group("progress", slog.Int("frame", 7)))

	e := c.Recent(Filter{})[0]
	assert.Equal(t, "veryfast", e.Fields["ffmpeg.preset"])
	assert.Equal(t, int64(7), e.Fields["ffmpeg.progress.frame"])
}

func TestCapture_Redacts(t *testing.T) {
	var buf bytes.Buffer
	c := New(10, observability.Redactor())
	logger := newTestLogger(c, &buf)

	logger.Info("scheduling", slog.Any("key", models.StreamKey("abcd-efgh-ijkl")))

	e := c.Recent(Filter{})[0]
	assert.NotContains(t, fmt.Sprint(e.Fields["key"]), "abcd-efgh-ijkl")
}

func TestCapture_RecentFilters(t *testing.T) {
	var buf bytes.Buffer
	c := New(3, nil)
	logger := newTestLogger(c, &buf)

	logger.Debug("one")
	logger.Info("two", slog.String("session_id", "a"))
	logger.Warn("three", slog.String("session_id", "b"))
	logger.Error("four", slog.String("session_id", "a"))

	t.Run("ring keeps newest", func(t *testing.T) {
		var msgs []string
		for _, e := range c.Recent(Filter{}) {
			msgs = append(msgs, e.Message)
		}
		assert.Equal(t, []string{"two", "three", "four"}, msgs)
	})

	t.Run("min level", func(t *testing.T) {
		got := c.Recent(Filter{MinLevel: slog.LevelWarn})
		require.Len(t, got, 2)
		assert.Equal(t, "three", got[0].Message)
	})

	t.Run("session and limit", func(t *testing.T) {
		got := c.Recent(Filter{MinLevel: slog.LevelDebug, SessionID: "a", Limit: 1})
		require.Len(t, got, 1)
		assert.Equal(t, "four", got[0].Message)
	})
}

func TestCapture_Stats(t *testing.T) {
	var buf bytes.Buffer
	c := New(10, nil)
	logger := newTestLogger(c, &buf)

	logger.With(slog.String("component", "planner")).Info("sync")
	logger.Error("boom")

	st := c.Stats()
	assert.Equal(t, int64(2), st.Total)
	assert.Equal(t, int64(1), st.ByLevel["info"])
	assert.Equal(t, int64(1), st.ByLevel["error"])
	assert.Equal(t, int64(0), st.ByLevel["warn"])
	assert.Equal(t, int64(1), st.ByComponent["planner"])
	require.Len(t, st.RecentErrors, 1)
	assert.Equal(t, "boom", st.RecentErrors[0].Message)
	require.NotNil(t, st.Oldest)
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "debug", LevelName(slog.LevelDebug-4))
	assert.Equal(t, "info", LevelName(slog.LevelInfo))
	assert.Equal(t, "warn", LevelName(slog.LevelWarn+1))
	assert.Equal(t, "error", LevelName(slog.LevelError))
}
