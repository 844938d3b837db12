package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/bus"
)

const namespace = "orderpipeline"

// Intake outcomes.
const (
	OrderAccepted  = "accepted"
	OrderInvalid   = "invalid"
	OrderRejected  = "rejected"
	OrderDuplicate = "duplicate"
	OrderReplayed  = "replayed"
	OrderError     = "error"
)

// Settlement outcomes.
const (
	SettlementConfirmed         = "confirmed"
	SettlementInsufficientStock = "insufficient_stock"
	SettlementSkipped           = "skipped"
)

// Notification content sources.
const (
	ContentGenerated = "generated"
	ContentFallback  = "fallback"
)

// Module provides pipeline collectors.
var Module = fx.Provide(New)

// Metrics holds pipeline collectors on a private registry.
// A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	orders        *prometheus.CounterVec
	settlements   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	deadLetters   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order intake requests by outcome",
		}, []string{"outcome"}),
		settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Inventory settlements by outcome",
		}, []string{"outcome"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications sent by content source",
		}, []string{"content"}),
		deadLetters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Messages moved to a dead-letter queue",
		}, []string{"queue"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "Duration of HTTP requests in ms",
			Buckets:   []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) OrderOutcome(outcome string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SettlementOutcome(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationSent(content string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(content).Inc()
}

// DeadLetter satisfies bus.DeadLetterFunc.
func (m *Metrics) DeadLetter(queue string, _ bus.Message, _ error) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(queue).Inc()
}

func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(float64(elapsed.Milliseconds()))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
