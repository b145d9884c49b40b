package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	WebhookEvents *prometheus.CounterVec
	OutboundSends *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "webhook_events_total",
			Help:      "Webhook events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		OutboundSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "outbound_sends_total",
			Help:      "Outbound messages by type and outcome.",
		}, []string{"type", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
	}

	m.registry.MustRegister(
		m.WebhookEvents,
		m.OutboundSends,
		m.HTTPRequests,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Webhook and Send are no-ops on a nil *Metrics.
func (m *Metrics) Webhook(kind, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Send(msgType, outcome string) {
	if m == nil {
		return
	}
	m.OutboundSends.WithLabelValues(msgType, outcome).Inc()
}
