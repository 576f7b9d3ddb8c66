// Package metrics exposes the Prometheus instrumentation for the service.
// All recording methods are nil-safe so components can run without a
// metrics set wired in (tests mostly do).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	activeConnections prometheus.Gauge
	onlineUsers       prometheus.Gauge
	messagesDelivered prometheus.Counter
	messagesDropped   prometheus.Counter
	offlineRoutes     prometheus.Counter
	httpRequests      prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yapops_active_connections",
			Help: "Number of open WebSocket connections.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yapops_online_users",
			Help: "Number of users with at least one open connection.",
		}),
		messagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yapops_messages_delivered_total",
			Help: "Message payloads pushed to a live connection.",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yapops_messages_dropped_total",
			Help: "Pushes abandoned because a connection would not drain.",
		}),
		offlineRoutes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yapops_offline_routes_total",
			Help: "Routed messages whose recipient had no live connection.",
		}),
		httpRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests handled.",
		}),
	}
	reg.MustRegister(
		m.activeConnections,
		m.onlineUsers,
		m.messagesDelivered,
		m.messagesDropped,
		m.offlineRoutes,
		m.httpRequests,
	)
	return m
}

// Handler serves the scrape endpoint for this metrics set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetActiveConnections(n int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(n))
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(n))
}

func (m *Metrics) IncDelivered() {
	if m == nil {
		return
	}
	m.messagesDelivered.Inc()
}

func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.messagesDropped.Inc()
}

func (m *Metrics) IncOfflineRoute() {
	if m == nil {
		return
	}
	m.offlineRoutes.Inc()
}

func (m *Metrics) IncHTTPRequest() {
	if m == nil {
		return
	}
	m.httpRequests.Inc()
}
