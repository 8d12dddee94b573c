package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/loopcast/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newMigrator(db *gorm.DB) *Migrator {
	m := NewMigrator(db, nil)
	m.RegisterAll(AllMigrations())
	return m
}

func TestAllMigrations_Ordered(t *testing.T) {
	migrations := AllMigrations()
	require.NotEmpty(t, migrations)
	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
	for _, m := range migrations {
		assert.NotNil(t, m.Up, m.Version)
		assert.NotNil(t, m.Down, m.Version)
	}
}

func TestMigrator_Up(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	m := newMigrator(db)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx), "second run is a no-op")

	assert.True(t, db.Migrator().HasTable("stream_definitions"))
	assert.True(t, db.Migrator().HasTable("session_histories"))

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var count int64
	require.NoError(t, db.Model(&Record{}).Count(&count).Error)
	assert.Equal(t, int64(len(AllMigrations())), count)
}

func TestMigrator_Down(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	m := newMigrator(db)
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	assert.False(t, db.Migrator().HasTable("session_histories"))
	assert.True(t, db.Migrator().HasTable("stream_definitions"))

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "002", pending[0].Version)
}

func TestMigrator_DownOnEmptySchema(t *testing.T) {
	m := newMigrator(setupTestDB(t))
	assert.NoError(t, m.Down(context.Background()))
}

func TestMigrator_UnregisteredVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, newMigrator(db).Up(ctx))

	// A migrator that only knows the first step cannot revert the second.
	m := NewMigrator(db, nil)
	m.RegisterAll(AllMigrations()[:1])
	assert.ErrorContains(t, m.Down(ctx), "not registered")
}

func TestMigrations_CanInsertData(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, newMigrator(db).Up(context.Background()))

	start := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	def := &models.StreamDefinition{
		Name:       "loop",
		SourcePath: "/media/loop.mp4",
		StreamKey:  "key",
		StartTime:  &start,
		Duration:   time.Hour,
	}
	require.NoError(t, db.Create(def).Error)
	assert.False(t, def.ID.IsZero())

	var got models.StreamDefinition
	require.NoError(t, db.First(&got, "id = ?", def.ID).Error)
	assert.Equal(t, time.Hour, got.Duration)
	assert.True(t, got.IsEnabled())

	hist := &models.SessionHistory{SessionID: def.ID.String(), Outcome: models.SessionOutcomeStopped, EndedAt: start}
	require.NoError(t, db.Create(hist).Error)
	assert.False(t, hist.ID.IsZero())
}
