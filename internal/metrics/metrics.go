// Package metrics exposes Prometheus collectors for the ledger, the realtime
// layer and the HTTP server. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sourverse"

type Metrics struct {
	registry        *prometheus.Registry
	investments     *prometheus.CounterVec
	investAmount    prometheus.Counter
	investDurations prometheus.Histogram
	topUps          *prometheus.CounterVec
	peers           prometheus.Gauge
	events          *prometheus.CounterVec
	droppedPeers    prometheus.Counter
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New builds and registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		investments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investments_total",
			Help:      "Investment attempts by outcome.",
		}, []string{"result"}),
		investAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invested_amount_total",
			Help:      "Sum of successfully invested amounts.",
		}),
		investDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invest_duration_seconds",
			Help:      "Time spent in the ledger per investment, retries included.",
			Buckets:   prometheus.DefBuckets,
		}),
		topUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_topups_total",
			Help:      "Wallet top-ups by outcome.",
		}, []string{"result"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_peers",
			Help:      "Currently connected realtime peers.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Realtime events by name and direction.",
		}, []string{"event", "direction"}),
		droppedPeers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_slow_peers_dropped_total",
			Help:      "Peers disconnected because their outbound queue overflowed.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		m.investments, m.investAmount, m.investDurations, m.topUps,
		m.peers, m.events, m.droppedPeers,
		m.requests, m.requestDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) ObserveInvestment(result string, amount float64, d time.Duration) {
	if m == nil {
		return
	}
	m.investments.WithLabelValues(result).Inc()
	m.investDurations.Observe(d.Seconds())
	if result == "ok" && amount > 0 {
		m.investAmount.Add(amount)
	}
}

func (m *Metrics) ObserveTopUp(result string) {
	if m == nil {
		return
	}
	m.topUps.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.peers.Set(float64(n))
}

// EventSent counts one outbound event per recipient.
func (m *Metrics) EventSent(event string, recipients int) {
	if m == nil || recipients == 0 {
		return
	}
	m.events.WithLabelValues(event, "out").Add(float64(recipients))
}

func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, "in").Inc()
}

func (m *Metrics) PeerDropped() {
	if m == nil {
		return
	}
	m.droppedPeers.Inc()
}

func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
