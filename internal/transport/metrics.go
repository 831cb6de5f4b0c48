package transport

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "portfolio"
	metricsSubsystem = "http"
)

// Metrics records RED metrics for every request and serves them on /metrics.
type Metrics struct {
	reg  *prometheus.Registry
	reqs *prometheus.CounterVec
	errs *prometheus.CounterVec
	durs *prometheus.HistogramVec

	wsClients atomic.Pointer[func() int]
}

// NewMetrics registers the HTTP collectors, the change-feed client gauge and
// the Go and process collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	reqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_total",
		Help:      "Number of HTTP requests handled",
	}, []string{"method", "route", "code"})

	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "errors_total",
		Help:      "Number of HTTP requests answered with a 5xx status",
	}, []string{"method", "route"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m := &Metrics{reg: reg, reqs: reqs, errs: errs, durs: durs}

	wsClients := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Number of connected change-feed clients",
	}, func() float64 {
		if count := m.wsClients.Load(); count != nil {
			return float64((*count)())
		}
		return 0
	})

	reg.MustRegister(
		reqs, errs, durs, wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// TrackClients points the ws client gauge at count. The latest call wins.
func (m *Metrics) TrackClients(count func() int) {
	m.wsClients.Store(&count)
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		m.reqs.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		m.durs.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		if status >= http.StatusInternalServerError {
			m.errs.WithLabelValues(c.Request.Method, route).Inc()
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
