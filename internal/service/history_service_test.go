package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/loopcast/internal/events"
	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/repository"
	"github.com/jmylchreest/loopcast/internal/streaming"
)

func TestHistoryService_Record(t *testing.T) {
	ctx := context.Background()
	svc := NewHistoryService(repository.NewSessionHistoryRepository(setupTestDB(t)))

	started := now
	svc.Record(ctx, events.Event{Type: events.TypeScheduled, SessionID: "a", Timestamp: now})
	svc.Record(ctx, events.Event{Type: events.TypeStarted, SessionID: "a", Timestamp: started})
	svc.Record(ctx, events.Event{Type: events.TypeLog, SessionID: "a", Message: "frame=10", Timestamp: now})
	svc.Record(ctx, events.Event{Type: events.TypeStarted, SessionID: "a", Timestamp: now.Add(time.Minute)})
	svc.Record(ctx, events.Event{Type: events.TypeStopped, SessionID: "a", Timestamp: now.Add(time.Hour)})

	svc.Record(ctx, events.Event{
		Type:       events.TypeError,
		SessionID:  "b",
		Message:    fmt.Sprintf("%s after 5 retries: exit status 1", streaming.ErrRetryBudgetExhausted),
		RetryCount: 5,
		Timestamp:  now.Add(2 * time.Hour),
	})
	svc.Record(ctx, events.Event{
		Type:      events.TypeError,
		SessionID: "c",
		Message:   "source file not accessible",
		Timestamp: now.Add(3 * time.Hour),
	})

	all, err := svc.List(ctx, repository.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "c", all[0].SessionID)
	assert.Equal(t, models.SessionOutcomeError, all[0].Outcome)
	assert.Nil(t, all[0].StartedAt)

	assert.Equal(t, "b", all[1].SessionID)
	assert.Equal(t, models.SessionOutcomeFailed, all[1].Outcome)
	assert.Equal(t, 5, all[1].RetryCount)

	assert.Equal(t, "a", all[2].SessionID)
	assert.Equal(t, models.SessionOutcomeStopped, all[2].Outcome)
	require.NotNil(t, all[2].StartedAt)
	assert.Equal(t, time.Hour, all[2].RunTime())

	failed, err := svc.List(ctx, repository.HistoryFilter{Outcome: models.SessionOutcomeFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].SessionID)
}

func TestHistoryService_Run(t *testing.T) {
	svc := NewHistoryService(repository.NewSessionHistoryRepository(setupTestDB(t)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	svc.Notify(events.Event{Type: events.TypeStopped, SessionID: "a", Timestamp: now})

	require.Eventually(t, func() bool {
		got, err := svc.List(context.Background(), repository.HistoryFilter{SessionID: "a"})
		return err == nil && len(got) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestHistoryService_NoticesBehindLogBurst(t *testing.T) {
	hub := events.NewHub()
	svc := NewHistoryService(repository.NewSessionHistoryRepository(setupTestDB(t)))
	sink := events.Fanout(hub, svc)

	// A hub subscriber that never reads fills up and starts losing events.
	stalled := hub.Subscribe(context.Background())
	defer close(stalled.Done)

	scheduled := now.Add(-time.Hour)
	sink.Notify(events.Event{Type: events.TypeScheduled, SessionID: "a", ScheduledTime: &scheduled, Timestamp: now})
	sink.Notify(events.Event{Type: events.TypeStarted, SessionID: "a", Timestamp: now})
	for i := 0; i < 5*events.DefaultBufferSize; i++ {
		sink.Notify(events.Event{Type: events.TypeLog, SessionID: "a", Message: fmt.Sprintf("frame=%d", i), Timestamp: now})
	}
	sink.Notify(events.Event{Type: events.TypeStopped, SessionID: "a", Timestamp: now.Add(time.Minute)})
	require.Len(t, stalled.Events, events.DefaultBufferSize)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		got, err := svc.List(context.Background(), repository.HistoryFilter{SessionID: "a"})
		return err == nil && len(got) == 1
	}, time.Second, 5*time.Millisecond)

	got, err := svc.List(context.Background(), repository.HistoryFilter{SessionID: "a"})
	require.NoError(t, err)
	require.NotNil(t, got[0].StartedAt)
	require.NotNil(t, got[0].ScheduledAt)
	assert.True(t, scheduled.Equal(*got[0].ScheduledAt))
	assert.Equal(t, time.Minute, got[0].RunTime())
	assert.Empty(t, svc.started)
	assert.Empty(t, svc.scheduled)

	cancel()
	require.NoError(t, <-done)
}

func TestHistoryService_FlushesOnShutdown(t *testing.T) {
	svc := NewHistoryService(repository.NewSessionHistoryRepository(setupTestDB(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Notify(events.Event{Type: events.TypeError, SessionID: "late", Message: "source file not accessible", Timestamp: now})
	require.NoError(t, svc.Run(ctx))

	got, err := svc.List(context.Background(), repository.HistoryFilter{SessionID: "late"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.SessionOutcomeError, got[0].Outcome)
}

func TestHistoryService_Prune(t *testing.T) {
	ctx := context.Background()
	svc := NewHistoryService(repository.NewSessionHistoryRepository(setupTestDB(t)))

	svc.Record(ctx, events.Event{Type: events.TypeStopped, SessionID: "old", Timestamp: time.Now().Add(-48 * time.Hour)})
	svc.Record(ctx, events.Event{Type: events.TypeStopped, SessionID: "new", Timestamp: time.Now()})

	n, err := svc.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := svc.List(ctx, repository.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].SessionID)
}
