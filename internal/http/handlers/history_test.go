package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/loopcast/internal/events"
	"github.com/jmylchreest/loopcast/internal/repository"
	"github.com/jmylchreest/loopcast/internal/service"
)

func TestHistoryHandler_List(t *testing.T) {
	svc := service.NewHistoryService(repository.NewSessionHistoryRepository(setupTestDB(t)))
	ctx := context.Background()
	svc.Record(ctx, events.Event{Type: events.TypeStarted, SessionID: "a", Timestamp: testNow})
	svc.Record(ctx, events.Event{Type: events.TypeStopped, SessionID: "a", Timestamp: testNow.Add(time.Hour)})
	svc.Record(ctx, events.Event{Type: events.TypeError, SessionID: "b", Message: "missing", Timestamp: testNow.Add(2 * time.Hour)})

	api := newTestAPI(t, NewHistoryHandler(svc))

	rec := do(t, api, http.MethodGet, "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	all := decode[struct {
		Sessions []HistoryResponse `json:"sessions"`
	}](t, rec).Sessions
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].SessionID)
	assert.Equal(t, "1h", all[1].RunTime)

	rec = do(t, api, http.MethodGet, "/api/v1/history?outcome=stopped", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stopped := decode[struct {
		Sessions []HistoryResponse `json:"sessions"`
	}](t, rec).Sessions
	require.Len(t, stopped, 1)
	assert.Equal(t, "a", stopped[0].SessionID)
}
