package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/loopcast/internal/service"
)

func TestMediaHandler_List(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loop.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644))

	api := newTestAPI(t, NewMediaHandler(service.NewMediaService(dir)))
	rec := do(t, api, http.MethodGet, "/api/v1/media", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Files []service.MediaFile `json:"files"`
	}](t, rec)
	require.Len(t, body.Files, 1)
	assert.Equal(t, "loop.mp4", body.Files[0].Name)

	api = newTestAPI(t, NewMediaHandler(service.NewMediaService(filepath.Join(dir, "missing"))))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, api, http.MethodGet, "/api/v1/media", nil).Code)
}
