// Package migrations versions the loopcast schema. Applied versions are
// recorded in schema_migrations.
package migrations

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"gorm.io/gorm"
)

// Migration is one schema step. Versions sort lexically, so they are
// zero-padded.
type Migration struct {
	Version     string
	Description string
	Up          func(tx *gorm.DB) error
	Down        func(tx *gorm.DB) error
}

// Record is a row of schema_migrations.
type Record struct {
	ID          uint      `gorm:"primarykey"`
	Version     string    `gorm:"uniqueIndex;not null"`
	Description string    `gorm:"not null"`
	AppliedAt   time.Time `gorm:"not null"`
}

// TableName pins the table name.
func (Record) TableName() string { return "schema_migrations" }

// Migrator applies registered migrations in version order. Each step runs
// in its own transaction together with its bookkeeping row.
type Migrator struct {
	db         *gorm.DB
	logger     *slog.Logger
	migrations []Migration
}

// NewMigrator creates a migrator. A nil logger uses slog.Default.
func NewMigrator(db *gorm.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, logger: logger}
}

// RegisterAll adds migrations.
func (m *Migrator) RegisterAll(migrations []Migration) {
	m.migrations = append(m.migrations, migrations...)
	slices.SortFunc(m.migrations, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	pending, err := m.Pending(ctx)
	if err != nil {
		return err
	}
	for _, mig := range pending {
		log := m.logger.With(slog.String("version", mig.Version))
		log.InfoContext(ctx, "applying migration", slog.String("description", mig.Description))

		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mig.Up(tx); err != nil {
				return err
			}
			return tx.Create(&Record{
				Version:     mig.Version,
				Description: mig.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", mig.Version, err)
		}
	}
	return nil
}

// Down reverts the most recently applied migration. It is a no-op on an
// empty schema.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	var last Record
	err := m.db.WithContext(ctx).Order("version DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading last migration: %w", err)
	}

	i := slices.IndexFunc(m.migrations, func(mig Migration) bool { return mig.Version == last.Version })
	if i < 0 {
		return fmt.Errorf("migration %s is applied but not registered", last.Version)
	}
	mig := m.migrations[i]
	if mig.Down == nil {
		return fmt.Errorf("migration %s cannot be reverted", mig.Version)
	}

	m.logger.InfoContext(ctx, "reverting migration", slog.String("version", mig.Version))
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mig.Down(tx); err != nil {
			return err
		}
		return tx.Where("version = ?", mig.Version).Delete(&Record{}).Error
	})
	if err != nil {
		return fmt.Errorf("reverting migration %s: %w", mig.Version, err)
	}
	return nil
}

// Pending returns the registered migrations not yet applied, in order.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	var versions []string
	if err := m.db.WithContext(ctx).Model(&Record{}).Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var pending []Migration
	for _, mig := range m.migrations {
		if !slices.Contains(versions, mig.Version) {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}
