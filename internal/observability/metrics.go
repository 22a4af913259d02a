package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the saga's Prometheus collectors. A nil *Metrics is valid
// and turns every observation into a no-op, which keeps test wiring small.
type Metrics struct {
	messagesConsumed *prometheus.CounterVec
	handlerDuration  *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	deadLetters      *prometheus.CounterVec
	assignments      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// NewMetrics registers the saga collectors on the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freightline",
			Name:      "messages_consumed_total",
			Help:      "Messages consumed per topic and result.",
		}, []string{"topic", "result"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "freightline",
			Name:      "handler_duration_ms",
			Help:      "Message handler latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"topic"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freightline",
			Name:      "handler_retries_total",
			Help:      "Retry attempts per topic.",
		}, []string{"topic"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freightline",
			Name:      "dead_letters_total",
			Help:      "Messages forwarded to a dead-letter topic.",
		}, []string{"topic"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freightline",
			Name:      "ship_assignments_total",
			Help:      "Ship assignment outcomes.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freightline",
			Name:      "http_requests_total",
			Help:      "HTTP requests per handler and status.",
		}, []string{"handler", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "freightline",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}
	reg.MustRegister(
		m.messagesConsumed,
		m.handlerDuration,
		m.retries,
		m.deadLetters,
		m.assignments,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

// ObserveConsume records one handled message and its latency.
func (m *Metrics) ObserveConsume(topic string, dur time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messagesConsumed.WithLabelValues(topic, result).Inc()
	m.handlerDuration.WithLabelValues(topic).Observe(float64(dur.Milliseconds()))
}

// AddRetry records a retry attempt for a topic.
func (m *Metrics) AddRetry(topic string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(topic).Inc()
}

// AddDeadLetter records a message forwarded to a dead-letter topic.
func (m *Metrics) AddDeadLetter(topic string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(topic).Inc()
}

// Assignment outcomes.
const (
	OutcomeAssigned  = "assigned"
	OutcomeDuplicate = "duplicate"
	OutcomeNoShip    = "no_ship"
)

// AddAssignment records a ship assignment outcome.
func (m *Metrics) AddAssignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(handler, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(handler, status).Inc()
	m.httpLatency.WithLabelValues(handler).Observe(float64(dur.Milliseconds()))
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
