package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hushline/hushline/internal/model"
)

// Metrics owns a private registry so that several instances (tests) never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	messagesSubmitted prometheus.Counter
	statusChanges     *prometheus.CounterVec
	notifications     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hushline_messages_submitted_total",
			Help: "Messages accepted from senders.",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hushline_message_status_changes_total",
			Help: "Message status changes by the new status.",
		}, []string{"status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hushline_notifications_total",
			Help: "Notification emails by delivery result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesSubmitted,
		m.statusChanges,
		m.notifications,
	)
	return m
}

func (m *Metrics) MessageSubmitted() {
	m.messagesSubmitted.Inc()
}

func (m *Metrics) StatusChanged(s model.MessageStatus) {
	m.statusChanges.WithLabelValues(string(s)).Inc()
}

// NotificationResult records the final outcome of one queued email.
func (m *Metrics) NotificationResult(ok bool) {
	result := "failed"
	if ok {
		result = "sent"
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
