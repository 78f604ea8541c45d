package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Calculations(t *testing.T) {
	r := NewRegistry()
	r.ObserveCalculation("var", "historical", 10*time.Millisecond, nil)
	r.ObserveCalculation("var", "historical", 20*time.Millisecond, nil)
	r.ObserveCalculation("var", "monte_carlo", time.Second, errors.New("boom"))
	r.AddSimulatedPaths(10000)
	r.AddSimulatedPaths(-5)
	r.AddViolations(3)
	r.ObserveHistory("cache", "hit")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.calculations.WithLabelValues("var", "historical", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.calculations.WithLabelValues("var", "monte_carlo", StatusError)))
	assert.Equal(t, 10000.0, testutil.ToFloat64(r.simulatedPaths))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.violations))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.historyLookups.WithLabelValues("cache", "hit")))
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.ObserveCalculation("var", "historical", time.Millisecond, nil)
		r.AddSimulatedPaths(1)
		r.AddViolations(1)
		r.ObserveHistory("store", "miss")
	})
}

func TestRegistry_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRegistry()

	router := gin.New()
	router.Use(r.Middleware())
	router.GET("/v1/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(r.Handler()))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("/v1/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("unmatched", "404")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "riskengine_http_requests_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
