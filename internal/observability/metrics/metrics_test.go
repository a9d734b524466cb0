package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.RecordOrderCreated("premium_course", true)
	m.RecordWebhookResult("ok")
	m.RecordNotification(false)
	m.RecordRateLimited("orders")
}

func TestWebhookResultCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewWithRegisterer(reg)
	require.NoError(t, err)

	m.RecordWebhookResult("ok")
	m.RecordWebhookResult("ok")
	m.RecordWebhookResult("bad_signature")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookResults.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookResults.WithLabelValues("bad_signature")))
}

func TestRegisterTwiceIsTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewWithRegisterer(reg)
	require.NoError(t, err)
	second, err := NewWithRegisterer(reg)
	require.NoError(t, err)

	second.RecordRateLimited("orders")
	assert.Equal(t, 1.0, testutil.ToFloat64(first.rateLimited.WithLabelValues("orders")))
}

func TestGinMiddlewareObservesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	h, err := NewHTTPMetricsWithRegisterer(reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(h))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1, testutil.CollectAndCount(h.duration))
}
