// Package repository defines data access for loopcast models. Services
// depend on these interfaces; the GORM implementations live alongside.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/loopcast/internal/models"
)

// StreamDefinitionRepository persists saved stream definitions.
type StreamDefinitionRepository interface {
	Create(ctx context.Context, def *models.StreamDefinition) error
	// GetByID returns nil, nil when the definition does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.StreamDefinition, error)
	// GetByName returns nil, nil when no definition has the name.
	GetByName(ctx context.Context, name string) (*models.StreamDefinition, error)
	GetAll(ctx context.Context) ([]*models.StreamDefinition, error)
	GetEnabled(ctx context.Context) ([]*models.StreamDefinition, error)
	Update(ctx context.Context, def *models.StreamDefinition) error
	Delete(ctx context.Context, id models.ULID) error
	MarkScheduled(ctx context.Context, id models.ULID, at time.Time) error
}

// SessionHistoryRepository persists finished sessions.
type SessionHistoryRepository interface {
	Create(ctx context.Context, h *models.SessionHistory) error
	List(ctx context.Context, f HistoryFilter) ([]*models.SessionHistory, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
