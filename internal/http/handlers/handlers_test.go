package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/streaming"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// mockSessions implements SessionManager with the manager's error
// semantics for ids.
type mockSessions struct {
	mu       sync.Mutex
	sessions map[string]streaming.SessionInfo
	reqs     []streaming.Request
	rejected []error
	err      error
}

func newMockSessions() *mockSessions {
	return &mockSessions{sessions: make(map[string]streaming.SessionInfo)}
}

func (m *mockSessions) ScheduleSession(_ context.Context, req streaming.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if err := req.Validate(testNow); err != nil {
		return err
	}
	if _, ok := m.sessions[req.SessionID]; ok && !req.Replace {
		return streaming.ErrSessionExists
	}
	m.reqs = append(m.reqs, req)
	m.sessions[req.SessionID] = streaming.SessionInfo{
		SessionID:  req.SessionID,
		SourcePath: req.SourcePath,
		State:      streaming.StateScheduled,
		StopPolicy: req.Stop.Kind.String(),
		StartTime:  req.StartTime,
	}
	return nil
}

func (m *mockSessions) RejectSchedule(_ context.Context, _ string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, err)
	return err
}

func (m *mockSessions) StopSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *mockSessions) UpdateStreamEnd(_ context.Context, id string, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sessions[id]
	switch {
	case !ok:
		return streaming.ErrSessionNotFound
	case info.State != streaming.StateRunning:
		return streaming.ErrNotRunning
	}
	info.EndAt = &end
	m.sessions[id] = info
	return nil
}

func (m *mockSessions) Get(_ context.Context, id string) (streaming.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sessions[id]
	if !ok {
		return streaming.SessionInfo{}, streaming.ErrSessionNotFound
	}
	return info, nil
}

func (m *mockSessions) List(context.Context) ([]streaming.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]streaming.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (m *mockSessions) set(info streaming.SessionInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[info.SessionID] = info
}

// registrar is implemented by every handler.
type registrar interface {
	Register(api huma.API)
}

func newTestAPI(t *testing.T, hs ...registrar) *chi.Mux {
	t.Helper()
	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("loopcast test", "test"))
	for _, h := range hs {
		h.Register(api)
	}
	return router
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		if _, ok := body.(string); ok {
			req.Header.Set("Content-Type", "application/yaml")
		} else {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.StreamDefinition{}, &models.SessionHistory{}))
	return db
}
