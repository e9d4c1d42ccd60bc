package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// PollCycles counts per-user poll cycles by outcome
	PollCycles *prometheus.CounterVec
	// NotificationsSent counts email notifications delivered to chats
	NotificationsSent *prometheus.CounterVec
	// MessagesProcessed counts candidate messages by disposition
	MessagesProcessed *prometheus.CounterVec
	// DeviceFlowSessions counts finished device-flow sessions by outcome
	DeviceFlowSessions *prometheus.CounterVec
	// DeviceFlowActive tracks device-flow sessions currently polling
	DeviceFlowActive prometheus.Gauge
	// GmailCallErrors counts failed Gmail API calls by operation
	GmailCallErrors *prometheus.CounterVec
	// SummarizerFallbacks counts notifications rendered without a summary
	SummarizerFallbacks prometheus.Counter
	// ExtractionFallbacks counts messages with no readable content
	ExtractionFallbacks prometheus.Counter
	// TelegramSendErrors counts failed outbound chat messages
	TelegramSendErrors prometheus.Counter
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		PollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_cycles_total",
				Help:      "Total number of per-user poll cycles",
			},
			[]string{"outcome"},
		),
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Total number of email notifications sent",
			},
			[]string{"kind"},
		),
		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_processed_total",
				Help:      "Total number of candidate messages by disposition",
			},
			[]string{"disposition"},
		),
		DeviceFlowSessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_flow_sessions_total",
				Help:      "Total number of finished device-flow sessions",
			},
			[]string{"outcome"},
		),
		DeviceFlowActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "device_flow_sessions_active",
				Help:      "Device-flow sessions currently polling",
			},
		),
		GmailCallErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gmail_call_errors_total",
				Help:      "Total number of failed Gmail API calls",
			},
			[]string{"operation"},
		),
		SummarizerFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summarizer_fallbacks_total",
				Help:      "Notifications rendered with the raw fallback format",
			},
		),
		ExtractionFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extraction_fallbacks_total",
				Help:      "Messages that yielded no readable content",
			},
		),
		TelegramSendErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telegram_send_errors_total",
				Help:      "Failed outbound Telegram messages",
			},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.PollCycles,
		m.NotificationsSent,
		m.MessagesProcessed,
		m.DeviceFlowSessions,
		m.DeviceFlowActive,
		m.GmailCallErrors,
		m.SummarizerFallbacks,
		m.ExtractionFallbacks,
		m.TelegramSendErrors,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPollCycle records a finished per-user poll cycle
func (m *Metrics) RecordPollCycle(outcome string) {
	m.PollCycles.WithLabelValues(outcome).Inc()
}

// RecordNotification records a delivered notification
func (m *Metrics) RecordNotification(kind string) {
	m.NotificationsSent.WithLabelValues(kind).Inc()
}

// RecordMessage records a candidate message disposition
func (m *Metrics) RecordMessage(disposition string) {
	m.MessagesProcessed.WithLabelValues(disposition).Inc()
}

// RecordDeviceFlowSession records a finished device-flow session
func (m *Metrics) RecordDeviceFlowSession(outcome string) {
	m.DeviceFlowSessions.WithLabelValues(outcome).Inc()
}

// RecordGmailError records a failed Gmail API call
func (m *Metrics) RecordGmailError(operation string) {
	m.GmailCallErrors.WithLabelValues(operation).Inc()
}
