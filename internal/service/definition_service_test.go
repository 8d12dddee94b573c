package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/repository"
	"github.com/jmylchreest/loopcast/internal/streaming"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newDefinitionService(t *testing.T) (*DefinitionService, *mockScheduler) {
	t.Helper()
	sched := &mockScheduler{}
	svc := NewDefinitionService(repository.NewStreamDefinitionRepository(setupTestDB(t)), sched).
		WithClock(func() time.Time { return now })
	return svc, sched
}

func oneOff(name string, start time.Time) *models.StreamDefinition {
	return &models.StreamDefinition{
		Name:       name,
		SourcePath: "/media/" + name + ".mp4",
		StreamKey:  "key-1234",
		StartTime:  &start,
	}
}

func TestDefinitionService_Create(t *testing.T) {
	svc, _ := newDefinitionService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, oneOff("loop", now.Add(time.Hour))))

	err := svc.Create(ctx, oneOff("loop", now.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrDefinitionExists)

	bad := oneOff("bad", now)
	bad.SourcePath = ""
	assert.ErrorIs(t, svc.Create(ctx, bad), models.ErrSourcePathRequired)

	_, err = svc.GetByID(ctx, models.NewULID())
	assert.ErrorIs(t, err, models.ErrDefinitionNotFound)
}

func TestDefinitionService_UpdateResetsSchedule(t *testing.T) {
	svc, _ := newDefinitionService(t)
	ctx := context.Background()

	def := oneOff("loop", now.Add(time.Hour))
	require.NoError(t, svc.Create(ctx, def))
	_, err := svc.Schedule(ctx, def.ID, time.Time{}, false)
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, def.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastScheduledAt)

	got.Description = "renamed only"
	require.NoError(t, svc.Update(ctx, got))
	got, err = svc.GetByID(ctx, def.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastScheduledAt)

	later := now.Add(2 * time.Hour)
	got.StartTime = &later
	require.NoError(t, svc.Update(ctx, got))
	got, err = svc.GetByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastScheduledAt)
}

func TestDefinitionService_Schedule(t *testing.T) {
	t.Run("uses next start", func(t *testing.T) {
		svc, sched := newDefinitionService(t)
		ctx := context.Background()

		def := oneOff("loop", now.Add(time.Hour))
		def.Duration = 30 * time.Minute
		require.NoError(t, svc.Create(ctx, def))

		start, err := svc.Schedule(ctx, def.ID, time.Time{}, false)
		require.NoError(t, err)
		assert.True(t, now.Add(time.Hour).Equal(start), "start %s", start)

		reqs := sched.requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, def.ID.String(), reqs[0].SessionID)
		assert.Equal(t, def.SourcePath, reqs[0].SourcePath)
		assert.Equal(t, streaming.StopAfterDuration, reqs[0].Stop.Kind)
		assert.Equal(t, 30*time.Minute, reqs[0].Stop.Duration)
	})

	t.Run("falls back to now", func(t *testing.T) {
		svc, sched := newDefinitionService(t)
		ctx := context.Background()

		def := oneOff("loop", now.Add(time.Hour))
		require.NoError(t, svc.Create(ctx, def))
		_, err := svc.Schedule(ctx, def.ID, time.Time{}, false)
		require.NoError(t, err)

		start, err := svc.Schedule(ctx, def.ID, time.Time{}, true)
		require.NoError(t, err)
		assert.Equal(t, now, start)
		require.Len(t, sched.requests(), 2)
		assert.True(t, sched.requests()[1].Replace)
	})

	t.Run("manager error", func(t *testing.T) {
		svc, sched := newDefinitionService(t)
		ctx := context.Background()
		sched.err = streaming.ErrSessionExists

		def := oneOff("loop", now.Add(time.Hour))
		require.NoError(t, svc.Create(ctx, def))
		_, err := svc.Schedule(ctx, def.ID, time.Time{}, false)
		require.ErrorIs(t, err, streaming.ErrSessionExists)

		got, err := svc.GetByID(ctx, def.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LastScheduledAt)
	})
}

func TestRequest_EndTime(t *testing.T) {
	def := oneOff("loop", now)
	def.ID = models.NewULID()
	end := now.Add(time.Hour)
	def.EndTime = &end

	req := Request(def, now, false)
	assert.Equal(t, streaming.StopAtTime, req.Stop.Kind)
	assert.Equal(t, end, req.Stop.EndTime)
	require.NoError(t, req.Validate(now.Add(-time.Minute)))
}

func TestDefinitionService_ExportImport(t *testing.T) {
	src, _ := newDefinitionService(t)
	ctx := context.Background()

	daily := &models.StreamDefinition{
		Name:         "daily",
		SourcePath:   "/media/daily.mkv",
		StreamKey:    "daily-key",
		CronSchedule: "0 18 * * *",
		Duration:     90 * time.Minute,
	}
	require.NoError(t, src.Create(ctx, daily))
	require.NoError(t, src.Create(ctx, oneOff("once", now.Add(time.Hour))))

	var buf bytes.Buffer
	n, err := src.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, buf.String(), "duration: 1h30m")
	assert.Contains(t, buf.String(), "stream_key: daily-key")

	dst, _ := newDefinitionService(t)
	res, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()), ImportOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"daily", "once"}, res.Created)
	assert.Empty(t, res.Errors)

	defs, err := dst.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, 90*time.Minute, defs[0].Duration)
	assert.Equal(t, "0 18 * * *", defs[0].CronSchedule)

	res, err = dst.Import(ctx, bytes.NewReader(buf.Bytes()), ImportOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"daily", "once"}, res.Skipped)

	res, err = dst.Import(ctx, bytes.NewReader(buf.Bytes()), ImportOptions{Overwrite: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"daily", "once"}, res.Updated)
}

func TestDefinitionService_ImportErrors(t *testing.T) {
	svc, _ := newDefinitionService(t)
	ctx := context.Background()

	doc := `version: 1
definitions:
  - name: ok
    source_path: /media/a.mp4
    stream_key: k
    start_time: 2025-06-01T18:00:00Z
    duration: 2h
  - name: no-source
    stream_key: k
    start_time: 2025-06-01T18:00:00Z
  - name: bad-duration
    source_path: /media/b.mp4
    stream_key: k
    start_time: 2025-06-01T18:00:00Z
    duration: forever
`
	res, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res.Created)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "no-source", res.Errors[0].Name)
	assert.Equal(t, "bad-duration", res.Errors[1].Name)

	_, err = svc.Import(ctx, strings.NewReader("version: 1\nunknown_field: true\n"), ImportOptions{})
	assert.Error(t, err)

	_, err = svc.Import(ctx, strings.NewReader("version: 99\n"), ImportOptions{})
	assert.ErrorContains(t, err, "unsupported export version")
}

func TestDefinitionService_ImportDryRun(t *testing.T) {
	svc, _ := newDefinitionService(t)
	ctx := context.Background()

	doc := "version: 1\ndefinitions:\n  - name: a\n    source_path: /a.mp4\n    stream_key: k\n    cron_schedule: '@hourly'\n"
	res, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Created)

	defs, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, defs)
}
