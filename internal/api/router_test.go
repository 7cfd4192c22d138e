package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/dcrane/planwise/internal/database/testutil"
	"github.com/dcrane/planwise/internal/imagecache"
	"github.com/dcrane/planwise/internal/images"
	"github.com/dcrane/planwise/internal/notifications"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	cache := imagecache.NewFileStore(t.TempDir() + "/cache.json")
	engine, err := images.NewEngine(db, cache)
	require.NoError(t, err)

	router, err := NewRouter(db, engine, cache, notifications.NewHub())
	require.NoError(t, err)
	return router
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)

	m := httptest.NewRecorder()
	router.ServeHTTP(m, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, m.Code)
}

func TestRouterUnknownRouteReturnsJSON404(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestRouterProjectLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/projects", jsonBody(`{"name":"Trips"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	list := httptest.NewRecorder()
	router.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	require.Equal(t, http.StatusOK, list.Code)
	require.Contains(t, list.Body.String(), "Trips")
}

func jsonBody(body string) io.Reader {
	return strings.NewReader(body)
}

func TestRouterCacheAdminRoutesDoNotShadowImageRoute(t *testing.T) {
	router := newTestRouter(t)

	stats := httptest.NewRecorder()
	router.ServeHTTP(stats, httptest.NewRequest(http.MethodGet, "/api/images/cache/stats", nil))
	require.Equal(t, http.StatusOK, stats.Code)

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/images/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, missing.Code)
}
