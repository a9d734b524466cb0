package metrics

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the checkout and reconciliation counters. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ordersCreated  *prometheus.CounterVec
	webhookResults *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
}

// New registers the domain instruments with the default registry.
func New() (*Metrics, error) {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) (*Metrics, error) {
	var err error
	m := &Metrics{}
	if m.ordersCreated, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursepay",
		Name:      "orders_created_total",
		Help:      "Checkout orders created, by product and promo usage.",
	}, []string{"product", "promo"})); err != nil {
		return nil, err
	}
	if m.webhookResults, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursepay",
		Name:      "payment_webhook_results_total",
		Help:      "Payment result callbacks, by outcome.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.notifications, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursepay",
		Name:      "access_notifications_total",
		Help:      "Access notification emails, by delivery status.",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if m.rateLimited, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursepay",
		Name:      "rate_limit_denied_total",
		Help:      "Requests rejected by the public endpoint rate limiter.",
	}, []string{"scope"})); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordOrderCreated(product string, withPromo bool) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(strings.TrimSpace(product), strconv.FormatBool(withPromo)).Inc()
}

func (m *Metrics) RecordWebhookResult(result string) {
	if m == nil {
		return
	}
	m.webhookResults.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordNotification(delivered bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !delivered {
		status = "failed"
	}
	m.notifications.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}

// HTTPMetrics records request latency per route.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() (*HTTPMetrics, error) {
	return NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewHTTPMetricsWithRegisterer(reg prometheus.Registerer) (*HTTPMetrics, error) {
	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coursepay",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status_code"}))
	if err != nil {
		return nil, err
	}
	return &HTTPMetrics{duration: duration}, nil
}

// GinMiddleware observes every request handled by the engine.
func GinMiddleware(h *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		h.duration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// register returns the already registered collector when one with the same
// descriptor exists.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}
