package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/loopcast/internal/events"
	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/repository"
	"github.com/jmylchreest/loopcast/internal/streaming"
)

// HistoryService records finished sessions from manager notifications and
// answers history queries.
type HistoryService struct {
	repo   repository.SessionHistoryRepository
	logger *slog.Logger

	mu      sync.Mutex
	queue   []events.Event
	pending chan struct{}

	// started and scheduled hold times for live sessions. Only Record
	// touches them.
	started   map[string]time.Time
	scheduled map[string]time.Time
}

// NewHistoryService creates a history service.
func NewHistoryService(repo repository.SessionHistoryRepository) *HistoryService {
	return &HistoryService{
		repo:      repo,
		logger:    slog.Default(),
		pending:   make(chan struct{}, 1),
		started:   make(map[string]time.Time),
		scheduled: make(map[string]time.Time),
	}
}

// WithLogger sets the logger for the service.
func (s *HistoryService) WithLogger(logger *slog.Logger) *HistoryService {
	s.logger = logger
	return s
}

// Notify queues ev for Run. It never blocks and never drops, so the
// service can sit next to the hub in an events.Fanout. Log lines are
// ignored.
func (s *HistoryService) Notify(ev events.Event) {
	switch ev.Type {
	case events.TypeScheduled, events.TypeStarted, events.TypeStopped, events.TypeError:
	default:
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// Run persists queued notifications until ctx is done, then writes
// whatever is still queued.
func (s *HistoryService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			s.drain(flushCtx)
			return nil
		case <-s.pending:
			s.drain(ctx)
		}
	}
}

func (s *HistoryService) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			s.Record(ctx, ev)
		}
	}
}

// Record applies one notification.
func (s *HistoryService) Record(ctx context.Context, ev events.Event) {
	switch ev.Type {
	case events.TypeScheduled:
		if ev.ScheduledTime != nil {
			s.scheduled[ev.SessionID] = *ev.ScheduledTime
		}
		return
	case events.TypeStarted:
		if _, ok := s.started[ev.SessionID]; !ok {
			s.started[ev.SessionID] = ev.Timestamp
		}
		return
	case events.TypeStopped, events.TypeError:
	default:
		return
	}

	entry := &models.SessionHistory{
		SessionID:  ev.SessionID,
		Outcome:    outcomeOf(ev),
		Message:    ev.Message,
		RetryCount: ev.RetryCount,
		EndedAt:    ev.Timestamp,
	}
	if t, ok := s.scheduled[ev.SessionID]; ok {
		entry.ScheduledAt = &t
		delete(s.scheduled, ev.SessionID)
	}
	if t, ok := s.started[ev.SessionID]; ok {
		entry.StartedAt = &t
		delete(s.started, ev.SessionID)
	}
	if entry.EndedAt.IsZero() {
		entry.EndedAt = time.Now()
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "recording session history",
			slog.String("session_id", ev.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

func outcomeOf(ev events.Event) models.SessionOutcome {
	switch {
	case ev.Type == events.TypeStopped:
		return models.SessionOutcomeStopped
	case strings.Contains(ev.Message, streaming.ErrRetryBudgetExhausted.Error()):
		return models.SessionOutcomeFailed
	default:
		return models.SessionOutcomeError
	}
}

// List returns history entries, newest first.
func (s *HistoryService) List(ctx context.Context, f repository.HistoryFilter) ([]*models.SessionHistory, error) {
	return s.repo.List(ctx, f)
}

// Prune removes entries older than maxAge.
func (s *HistoryService) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "pruned session history", slog.Int64("deleted", n))
	}
	return n, nil
}
