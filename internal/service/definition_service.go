// Package service holds loopcast's business logic: saved stream
// definitions, session history and media discovery.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/repository"
	"github.com/jmylchreest/loopcast/internal/streaming"
)

// ErrDefinitionExists is returned when a definition name is taken.
var ErrDefinitionExists = errors.New("stream definition already exists")

// SessionScheduler is the part of the stream manager definitions need.
type SessionScheduler interface {
	ScheduleSession(ctx context.Context, req streaming.Request) error
}

// DefinitionService manages saved stream definitions and turns them into
// live sessions.
type DefinitionService struct {
	repo     repository.StreamDefinitionRepository
	sessions SessionScheduler
	now      func() time.Time
	logger   *slog.Logger
}

// NewDefinitionService creates a definition service. sessions may be nil
// for read-only use such as the CLI export.
func NewDefinitionService(repo repository.StreamDefinitionRepository, sessions SessionScheduler) *DefinitionService {
	return &DefinitionService{
		repo:     repo,
		sessions: sessions,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the service.
func (s *DefinitionService) WithLogger(logger *slog.Logger) *DefinitionService {
	s.logger = logger
	return s
}

// WithClock overrides the time source.
func (s *DefinitionService) WithClock(now func() time.Time) *DefinitionService {
	s.now = now
	return s
}

// Create validates and stores def.
func (s *DefinitionService) Create(ctx context.Context, def *models.StreamDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	existing, err := s.repo.GetByName(ctx, def.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, def.Name)
	}
	if err := s.repo.Create(ctx, def); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "stream definition created",
		slog.String("id", def.ID.String()),
		slog.String("name", def.Name),
		slog.Bool("recurring", def.IsRecurring()),
	)
	return nil
}

// GetByID returns models.ErrDefinitionNotFound for unknown ids.
func (s *DefinitionService) GetByID(ctx context.Context, id models.ULID) (*models.StreamDefinition, error) {
	def, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, models.ErrDefinitionNotFound
	}
	return def, nil
}

// List returns every definition ordered by name.
func (s *DefinitionService) List(ctx context.Context) ([]*models.StreamDefinition, error) {
	return s.repo.GetAll(ctx)
}

// Enabled returns the definitions the planner should consider.
func (s *DefinitionService) Enabled(ctx context.Context) ([]*models.StreamDefinition, error) {
	return s.repo.GetEnabled(ctx)
}

// Update replaces the stored definition with def. Changing the schedule
// clears LastScheduledAt so the planner picks the new time up.
func (s *DefinitionService) Update(ctx context.Context, def *models.StreamDefinition) error {
	current, err := s.GetByID(ctx, def.ID)
	if err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if def.Name != current.Name {
		other, err := s.repo.GetByName(ctx, def.Name)
		if err != nil {
			return err
		}
		if other != nil {
			return fmt.Errorf("%w: %s", ErrDefinitionExists, def.Name)
		}
	}
	def.CreatedAt = current.CreatedAt
	if scheduleChanged(current, def) {
		def.LastScheduledAt = nil
	} else {
		def.LastScheduledAt = current.LastScheduledAt
	}
	return s.repo.Update(ctx, def)
}

func scheduleChanged(a, b *models.StreamDefinition) bool {
	if a.CronSchedule != b.CronSchedule {
		return true
	}
	switch {
	case a.StartTime == nil && b.StartTime == nil:
		return false
	case a.StartTime == nil || b.StartTime == nil:
		return true
	default:
		return !a.StartTime.Equal(*b.StartTime)
	}
}

// Delete removes a definition. Live sessions started from it keep running.
func (s *DefinitionService) Delete(ctx context.Context, id models.ULID) error {
	return s.repo.Delete(ctx, id)
}

// Request builds the schedule request for one occurrence of def.
func Request(def *models.StreamDefinition, start time.Time, replace bool) streaming.Request {
	req := streaming.Request{
		SessionID:  def.ID.String(),
		SourcePath: def.SourcePath,
		StreamKey:  def.StreamKey,
		StartTime:  start,
		Replace:    replace,
	}
	switch {
	case def.Duration > 0:
		req.Stop = streaming.StopAfter(def.Duration)
	case def.EndTime != nil:
		req.Stop = streaming.StopAt(*def.EndTime)
	}
	return req
}

// Schedule hands the definition to the stream manager. A zero start uses
// the definition's next start, or now when it has none left.
func (s *DefinitionService) Schedule(ctx context.Context, id models.ULID, start time.Time, replace bool) (time.Time, error) {
	if s.sessions == nil {
		return time.Time{}, streaming.ErrManagerClosed
	}
	def, err := s.GetByID(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if start.IsZero() {
		next, ok := def.NextStart(s.now())
		if !ok {
			next = s.now()
		}
		start = next
	}

	if err := s.sessions.ScheduleSession(ctx, Request(def, start, replace)); err != nil {
		return time.Time{}, err
	}
	if err := s.repo.MarkScheduled(ctx, def.ID, start); err != nil {
		return time.Time{}, err
	}
	s.logger.InfoContext(ctx, "stream definition scheduled",
		slog.String("id", def.ID.String()),
		slog.String("name", def.Name),
		slog.Time("start_time", start),
	)
	return start, nil
}
