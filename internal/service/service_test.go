package service

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/streaming"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Each :memory: connection is its own database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.StreamDefinition{}, &models.SessionHistory{}))
	return db
}

// mockScheduler records schedule requests.
type mockScheduler struct {
	mu   sync.Mutex
	reqs []streaming.Request
	err  error
}

func (m *mockScheduler) ScheduleSession(_ context.Context, req streaming.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reqs = append(m.reqs, req)
	return nil
}

func (m *mockScheduler) requests() []streaming.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]streaming.Request(nil), m.reqs...)
}
