package scheduler

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/loopcast/internal/config"
	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/streaming"
)

var now = time.Date(2025, 6, 1, 17, 58, 0, 0, time.UTC)

// mockDefinitions implements Definitions for testing. Schedule marks the
// definition the way the real service does.
type mockDefinitions struct {
	mu        sync.Mutex
	defs      []*models.StreamDefinition
	scheduled map[models.ULID][]time.Time
	err       error
}

func newMockDefinitions(defs ...*models.StreamDefinition) *mockDefinitions {
	for _, d := range defs {
		d.ID = models.NewULID()
	}
	return &mockDefinitions{defs: defs, scheduled: make(map[models.ULID][]time.Time)}
}

func (m *mockDefinitions) Enabled(context.Context) ([]*models.StreamDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.StreamDefinition
	for _, d := range m.defs {
		if d.IsEnabled() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDefinitions) Schedule(_ context.Context, id models.ULID, start time.Time, _ bool) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return time.Time{}, m.err
	}
	for _, d := range m.defs {
		if d.ID == id {
			d.MarkScheduled(start)
		}
	}
	m.scheduled[id] = append(m.scheduled[id], start)
	return start, nil
}

func (m *mockDefinitions) starts(id models.ULID) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.scheduled[id]...)
}

type mockPruner struct {
	calls  int
	maxAge time.Duration
}

func (m *mockPruner) Prune(_ context.Context, maxAge time.Duration) (int64, error) {
	m.calls++
	m.maxAge = maxAge
	return 0, nil
}

func daily(name string) *models.StreamDefinition {
	return &models.StreamDefinition{
		Name:         name,
		SourcePath:   "/media/" + name + ".mp4",
		StreamKey:    "key",
		CronSchedule: "0 18 * * *",
		Duration:     time.Hour,
	}
}

func oneOff(name string, start time.Time) *models.StreamDefinition {
	return &models.StreamDefinition{
		Name:       name,
		SourcePath: "/media/" + name + ".mp4",
		StreamKey:  "key",
		StartTime:  &start,
	}
}

func newTestPlanner(defs Definitions, clock *time.Time) *Planner {
	return NewPlanner(defs, nil).WithClock(func() time.Time { return *clock })
}

func TestPlanner_Recurring(t *testing.T) {
	def := daily("evening")
	defs := newMockDefinitions(def)
	clock := now.Add(-time.Hour)
	p := newTestPlanner(defs, &clock)
	ctx := context.Background()

	p.Sync(ctx)
	assert.Empty(t, defs.starts(def.ID), "outside lookahead")

	clock = now
	p.Sync(ctx)
	p.Sync(ctx)
	starts := defs.starts(def.ID)
	require.Len(t, starts, 1)
	assert.Equal(t, time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC), starts[0])

	clock = now.Add(24 * time.Hour)
	p.Sync(ctx)
	starts = defs.starts(def.ID)
	require.Len(t, starts, 2)
	assert.Equal(t, time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC), starts[1])
}

func TestPlanner_OneOff(t *testing.T) {
	future := oneOff("future", now.Add(3*time.Hour))
	missed := oneOff("missed", now.Add(-time.Hour))
	end := now.Add(-time.Minute)
	expired := oneOff("expired", now.Add(-2*time.Hour))
	expired.EndTime = &end
	disabled := oneOff("disabled", now.Add(time.Hour))
	disabled.Enabled = models.BoolPtr(false)

	defs := newMockDefinitions(future, missed, expired, disabled)
	clock := now
	p := newTestPlanner(defs, &clock)

	p.Sync(context.Background())
	p.Sync(context.Background())

	assert.Equal(t, []time.Time{now.Add(3 * time.Hour)}, defs.starts(future.ID))
	assert.Equal(t, []time.Time{now.Add(-time.Hour)}, defs.starts(missed.ID))
	assert.Empty(t, defs.starts(expired.ID))
	assert.Empty(t, defs.starts(disabled.ID))
}

func TestPlanner_SessionStillLive(t *testing.T) {
	def := daily("evening")
	defs := newMockDefinitions(def)
	defs.err = streaming.ErrSessionExists
	clock := now
	p := newTestPlanner(defs, &clock)

	var logs bytes.Buffer
	p.WithLogger(slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo})))

	p.Sync(context.Background())
	assert.Nil(t, def.LastScheduledAt)
	assert.Contains(t, logs.String(), `"level":"INFO"`)
	assert.Contains(t, logs.String(), "previous session still live")
	assert.Contains(t, logs.String(), def.ID.String())

	defs.err = nil
	p.Sync(context.Background())
	assert.Len(t, defs.starts(def.ID), 1)
}

func TestPlanner_Prune(t *testing.T) {
	pruner := &mockPruner{}
	clock := now
	p := NewPlanner(newMockDefinitions(), pruner).
		WithClock(func() time.Time { return clock }).
		WithConfig(PlannerConfig{HistoryRetention: 24 * time.Hour})

	p.Sync(context.Background())
	p.Sync(context.Background())
	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, 24*time.Hour, pruner.maxAge)

	clock = now.Add(pruneEvery)
	p.Sync(context.Background())
	assert.Equal(t, 2, pruner.calls)
}

func TestPlanner_StartStop(t *testing.T) {
	def := oneOff("soon", now)
	defs := newMockDefinitions(def)
	p := NewPlanner(defs, nil).WithConfig(PlannerConfig{SyncInterval: 10 * time.Millisecond})

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return len(defs.starts(def.ID)) == 1 }, time.Second, 5*time.Millisecond)
	p.Stop()

	require.NoError(t, p.Start(context.Background()))
	p.Stop()
}

func TestPlannerConfigFrom(t *testing.T) {
	cfg := PlannerConfigFrom(config.SchedulerConfig{
		SyncInterval:     config.Duration(30 * time.Second),
		Lookahead:        config.Duration(2 * time.Minute),
		HistoryRetention: config.Duration(48 * time.Hour),
	})
	assert.Equal(t, PlannerConfig{
		SyncInterval:     30 * time.Second,
		Lookahead:        2 * time.Minute,
		HistoryRetention: 48 * time.Hour,
	}, cfg)
}
