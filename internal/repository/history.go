package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/loopcast/internal/models"
)

// HistoryFilter narrows a history listing. Zero values match everything.
type HistoryFilter struct {
	SessionID string
	Outcome   models.SessionOutcome
	Since     time.Time
	// Limit caps the result; zero means DefaultHistoryLimit.
	Limit int
}

// DefaultHistoryLimit applies when a filter sets no limit.
const DefaultHistoryLimit = 100

type sessionHistoryRepo struct {
	db *gorm.DB
}

// NewSessionHistoryRepository creates a SessionHistoryRepository.
func NewSessionHistoryRepository(db *gorm.DB) SessionHistoryRepository {
	return &sessionHistoryRepo{db: db}
}

func (r *sessionHistoryRepo) Create(ctx context.Context, h *models.SessionHistory) error {
	if err := r.db.WithContext(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("creating session history: %w", err)
	}
	return nil
}

// List returns matching entries, newest first.
func (r *sessionHistoryRepo) List(ctx context.Context, f HistoryFilter) ([]*models.SessionHistory, error) {
	q := r.db.WithContext(ctx).Model(&models.SessionHistory{})
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.Outcome != "" {
		q = q.Where("outcome = ?", f.Outcome)
	}
	if !f.Since.IsZero() {
		q = q.Where("ended_at >= ?", f.Since)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var out []*models.SessionHistory
	if err := q.Order("ended_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing session history: %w", err)
	}
	return out, nil
}

// DeleteOlderThan prunes entries that ended before cutoff.
func (r *sessionHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("ended_at < ?", cutoff).Delete(&models.SessionHistory{})
	if res.Error != nil {
		return 0, fmt.Errorf("pruning session history: %w", res.Error)
	}
	return res.RowsAffected, nil
}
