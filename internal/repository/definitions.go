package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/loopcast/internal/models"
)

// streamDefinitionRepo implements StreamDefinitionRepository using GORM.
type streamDefinitionRepo struct {
	db *gorm.DB
}

// NewStreamDefinitionRepository creates a StreamDefinitionRepository.
func NewStreamDefinitionRepository(db *gorm.DB) StreamDefinitionRepository {
	return &streamDefinitionRepo{db: db}
}

func (r *streamDefinitionRepo) Create(ctx context.Context, def *models.StreamDefinition) error {
	if err := r.db.WithContext(ctx).Create(def).Error; err != nil {
		return fmt.Errorf("creating stream definition: %w", err)
	}
	return nil
}

func (r *streamDefinitionRepo) GetByID(ctx context.Context, id models.ULID) (*models.StreamDefinition, error) {
	var def models.StreamDefinition
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stream definition by ID: %w", err)
	}
	return &def, nil
}

func (r *streamDefinitionRepo) GetByName(ctx context.Context, name string) (*models.StreamDefinition, error) {
	var def models.StreamDefinition
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stream definition by name: %w", err)
	}
	return &def, nil
}

func (r *streamDefinitionRepo) GetAll(ctx context.Context) ([]*models.StreamDefinition, error) {
	var defs []*models.StreamDefinition
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("getting all stream definitions: %w", err)
	}
	return defs, nil
}

// GetEnabled returns enabled definitions. NULL counts as enabled.
func (r *streamDefinitionRepo) GetEnabled(ctx context.Context) ([]*models.StreamDefinition, error) {
	var defs []*models.StreamDefinition
	err := r.db.WithContext(ctx).
		Where("enabled = ? OR enabled IS NULL", true).
		Order("name ASC").
		Find(&defs).Error
	if err != nil {
		return nil, fmt.Errorf("getting enabled stream definitions: %w", err)
	}
	return defs, nil
}

func (r *streamDefinitionRepo) Update(ctx context.Context, def *models.StreamDefinition) error {
	if err := r.db.WithContext(ctx).Save(def).Error; err != nil {
		return fmt.Errorf("updating stream definition: %w", err)
	}
	return nil
}

func (r *streamDefinitionRepo) Delete(ctx context.Context, id models.ULID) error {
	res := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&models.StreamDefinition{})
	if res.Error != nil {
		return fmt.Errorf("deleting stream definition: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrDefinitionNotFound
	}
	return nil
}

// MarkScheduled stores the start time last handed to the stream manager.
func (r *streamDefinitionRepo) MarkScheduled(ctx context.Context, id models.ULID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.StreamDefinition{}).
		Where("id = ?", id).
		Update("last_scheduled_at", at).Error
	if err != nil {
		return fmt.Errorf("marking stream definition scheduled: %w", err)
	}
	return nil
}
