package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocsHandler(t *testing.T) {
	h := NewDocsHandler("loopcast <API>", "/openapi.yaml")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `apiDescriptionUrl="/openapi.yaml"`)
	assert.Contains(t, rec.Body.String(), "<title>loopcast &lt;API&gt;</title>")
}
