package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"task-tracker-api/internal/app"
	"task-tracker-api/internal/auth"
	"task-tracker-api/internal/cache"
	"task-tracker-api/internal/handlers"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	_, err = params.Seed(context.Background(), db, params.Defaults)
	require.NoError(t, err)
	svc := app.New(db, cache.NewMemoryStore(nil), app.Options{})
	return SetupRoutes(handlers.NewFromServices(svc), nil)
}

func TestHealth(t *testing.T) {
	r := newRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsExposed(t *testing.T) {
	r := newRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/tasks", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestProtectedRoutes(t *testing.T) {
	r := newRouter(t)
	token, err := auth.GenerateToken("u-1", "alice")
	require.NoError(t, err)

	paths := []string{
		"/api/tasks",
		"/api/tasks/home",
		"/api/tasks/stats/today",
		"/api/archives",
		"/api/archives/capacity",
		"/api/miss-count",
		"/api/trigger-check",
		"/api/experiment",
		"/api/events/summary",
		"/api/params",
		"/api/params/category/experiment",
		"/api/params/" + params.MaxArchiveLimit,
		"/api/sessions",
		"/api/interventions",
	}
	for _, p := range paths {
		t.Run(strings.TrimPrefix(p, "/api/"), func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
			require.Equal(t, http.StatusUnauthorized, w.Code)

			w = httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, p, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		})
	}
}
