package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRequestLogger().Handler())

	promMw, err := NewPrometheusMiddleware("test", registry)
	require.NoError(t, err)
	r.Use(promMw.Handler())
	RegisterMetricsEndpoint(r, registry)

	r.GET("/test", func(c *gin.Context) {
		c.JSON(200, gin.H{"trace": c.GetString(TraceIDKey)})
	})
	r.GET("/error", func(c *gin.Context) {
		c.JSON(500, gin.H{"error": "test error"})
	})
	return r, registry
}

func TestPrometheusMiddleware_BasicMetrics(t *testing.T) {
	r, registry := newRouter(t)

	for _, path := range []string{"/test", "/error", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	var durationFound, errorsFound bool
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "test_http_request_duration_seconds":
			durationFound = true
			assert.Equal(t, "Длительность HTTP-запросов.", mf.GetHelp())
			assert.Len(t, mf.GetMetric(), 3)
		case "test_http_request_errors_total":
			errorsFound = true
			// 500 на /error и 404 на несуществующий маршрут
			assert.Len(t, mf.GetMetric(), 2)
		}
	}
	assert.True(t, durationFound, "Duration metric not found")
	assert.True(t, errorsFound, "Errors metric not found")
}

func TestPrometheusMiddleware_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewPrometheusMiddleware("dup", registry)
	require.NoError(t, err)
	_, err = NewPrometheusMiddleware("dup", registry)
	assert.Error(t, err)
}

func TestRequestLogger_TraceID(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, 200, w.Code)

	traceID := w.Header().Get("X-Trace-Id")
	assert.NotEmpty(t, traceID)
	assert.Contains(t, w.Body.String(), traceID)
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	r, _ := newRouter(t)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, 200, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "test_http_requests_inflight"))
}
