// Package scheduler turns saved stream definitions into live sessions.
// The Planner periodically walks the enabled definitions and hands each
// due occurrence to the stream manager.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/loopcast/internal/config"
	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/streaming"
)

// Definitions is the part of the definition service the planner uses.
type Definitions interface {
	Enabled(ctx context.Context) ([]*models.StreamDefinition, error)
	Schedule(ctx context.Context, id models.ULID, start time.Time, replace bool) (time.Time, error)
}

// HistoryPruner removes old session history.
type HistoryPruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
}

// pruneEvery limits how often history retention runs.
const pruneEvery = time.Hour

// PlannerConfig holds configuration for the planner.
type PlannerConfig struct {
	// SyncInterval is how often definitions are checked.
	// Default: 1 minute
	SyncInterval time.Duration

	// Lookahead is how far ahead a recurring occurrence is scheduled.
	// Default: 5 minutes
	Lookahead time.Duration

	// HistoryRetention is the maximum age of session history. Zero
	// disables pruning.
	HistoryRetention time.Duration
}

// DefaultPlannerConfig returns the default planner configuration.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		SyncInterval: time.Minute,
		Lookahead:    5 * time.Minute,
	}
}

// PlannerConfigFrom converts the scheduler section of the app config.
func PlannerConfigFrom(c config.SchedulerConfig) PlannerConfig {
	return PlannerConfig{
		SyncInterval:     c.SyncInterval.Duration(),
		Lookahead:        c.Lookahead.Duration(),
		HistoryRetention: c.HistoryRetention.Duration(),
	}
}

// Planner schedules definitions on a fixed interval.
type Planner struct {
	mu sync.Mutex

	defs    Definitions
	history HistoryPruner
	logger  *slog.Logger
	now     func() time.Time

	syncInterval time.Duration
	lookahead    time.Duration
	retention    time.Duration
	lastPrune    time.Time

	// Running state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPlanner creates a planner. history may be nil.
func NewPlanner(defs Definitions, history HistoryPruner) *Planner {
	cfg := DefaultPlannerConfig()
	return &Planner{
		defs:         defs,
		history:      history,
		logger:       slog.Default(),
		now:          time.Now,
		syncInterval: cfg.SyncInterval,
		lookahead:    cfg.Lookahead,
	}
}

// WithLogger sets a custom logger.
func (p *Planner) WithLogger(logger *slog.Logger) *Planner {
	p.logger = logger
	return p
}

// WithClock overrides the time source.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	return p
}

// WithConfig applies configuration to the planner.
func (p *Planner) WithConfig(cfg PlannerConfig) *Planner {
	if cfg.SyncInterval > 0 {
		p.syncInterval = cfg.SyncInterval
	}
	if cfg.Lookahead > 0 {
		p.lookahead = cfg.Lookahead
	}
	p.retention = cfg.HistoryRetention
	return p
}

// Start begins the background sync loop.
func (p *Planner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		return fmt.Errorf("planner already started")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.syncLoop(p.ctx)

	p.logger.Info("planner started",
		slog.Duration("sync_interval", p.syncInterval),
		slog.Duration("lookahead", p.lookahead))
	return nil
}

// Stop stops the sync loop and waits for an in-flight sync.
func (p *Planner) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.ctx = nil
	p.cancel = nil
	p.mu.Unlock()

	p.logger.Info("planner stopped")
}

func (p *Planner) syncLoop(ctx context.Context) {
	defer p.wg.Done()

	p.Sync(ctx)

	ticker := time.NewTicker(p.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sync(ctx)
		}
	}
}

// Sync schedules every due occurrence once and prunes history when it is
// time to.
func (p *Planner) Sync(ctx context.Context) {
	defs, err := p.defs.Enabled(ctx)
	if err != nil {
		p.logger.Error("failed to load stream definitions", slog.Any("error", err))
		return
	}

	now := p.now()
	for _, def := range defs {
		if ctx.Err() != nil {
			return
		}
		p.plan(ctx, def, now)
	}

	p.prune(ctx, now)
}

func (p *Planner) plan(ctx context.Context, def *models.StreamDefinition, now time.Time) {
	next, ok := def.NextStart(now)
	if !ok {
		return
	}
	if def.IsRecurring() && next.Sub(now) > p.lookahead {
		return
	}
	if def.EndTime != nil && !def.EndTime.After(now) {
		p.logger.Debug("stream definition window has passed",
			slog.String("name", def.Name),
			slog.Time("end_time", *def.EndTime))
		return
	}

	start, err := p.defs.Schedule(ctx, def.ID, next, false)
	switch {
	case err == nil:
		p.logger.Info("planned stream",
			slog.String("name", def.Name),
			slog.Time("start_time", start))
	case errors.Is(err, streaming.ErrSessionExists):
		// The previous occurrence is still live. This occurrence is retried
		// on the next sync and is lost if its start passes first.
		p.logger.Info("skipping occurrence, previous session still live",
			slog.String("name", def.Name),
			slog.String("session_id", def.ID.String()),
			slog.Time("start_time", next))
	default:
		p.logger.Warn("failed to plan stream",
			slog.String("name", def.Name),
			slog.Any("error", err))
	}
}

func (p *Planner) prune(ctx context.Context, now time.Time) {
	if p.history == nil || p.retention <= 0 {
		return
	}
	if !p.lastPrune.IsZero() && now.Sub(p.lastPrune) < pruneEvery {
		return
	}
	p.lastPrune = now
	if _, err := p.history.Prune(ctx, p.retention); err != nil {
		p.logger.Warn("failed to prune session history", slog.Any("error", err))
	}
}
