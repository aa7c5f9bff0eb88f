package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservedRoute(t *testing.T) {
	tests := []struct {
		route string
		want  bool
	}{
		{"/", true},
		{"/authorize", true},
		{"/webhook", true},
		{"/giftedsubs", true},
		{"/reward", true},
		{"/metrics", false},
		{"/ws", false},
		{"/health/live", false},
		{"/health/ready", false},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			assert.Equal(t, tt.want, observedRoute(tt.route))
		})
	}
}

func TestMiddlewareRecordsObservedRoutes(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "home") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
}

func TestMiddlewareSkipsConnectionAndProbeRoutes(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)

	// Stands in for a long-lived /ws client still connected.
	entered := make(chan struct{})
	release := make(chan struct{})

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/ws", func(c echo.Context) error {
		close(entered)
		<-release
		return c.NoContent(http.StatusOK)
	})
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	}()

	// An open connection must not count as an in-flight request.
	<-entered
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
	close(release)
	<-done

	for _, route := range []string{"/health/live", "/metrics"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, route, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 0, testutil.CollectAndCount(m.RequestsTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(m.RequestDuration))
}
