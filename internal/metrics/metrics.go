package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	IncomingMessages *prometheus.CounterVec
	OutgoingMessages *prometheus.CounterVec
	DuplicateDrops   *prometheus.CounterVec
	GeminiRequests   *prometheus.CounterVec
	GeminiLatency    *prometheus.HistogramVec
	IntentResults    *prometheus.CounterVec
	StageTransitions *prometheus.CounterVec
	SectionsClosed   prometheus.Counter
	OrdersCreated    *prometheus.CounterVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			IncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "incoming_messages_total",
				Help:      "Total inbound chat messages processed by channel.",
			}, []string{"channel"}),
			OutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outgoing_messages_total",
				Help:      "Total outbound chat messages sent by channel.",
			}, []string{"channel"}),
			DuplicateDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicate_messages_dropped_total",
				Help:      "Inbound messages suppressed by the dedup window.",
			}, []string{"channel"}),
			GeminiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gemini_requests_total",
				Help:      "Total Gemini API requests by outcome.",
			}, []string{"status"}),
			GeminiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gemini_request_duration_seconds",
				Help:      "Latency distribution for Gemini API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			IntentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intent_results_total",
				Help:      "Classified intents by intent name and source.",
			}, []string{"intent", "source"}),
			StageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_transitions_total",
				Help:      "Dialogue stage transitions by source and target stage.",
			}, []string{"from", "to"}),
			SectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sections_closed_total",
				Help:      "Conversation sections closed after inactivity.",
			}),
			OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_created_total",
				Help:      "Orders created by outcome.",
			}, []string{"status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.IncomingMessages,
			metricsInstance.OutgoingMessages,
			metricsInstance.DuplicateDrops,
			metricsInstance.GeminiRequests,
			metricsInstance.GeminiLatency,
			metricsInstance.IntentResults,
			metricsInstance.StageTransitions,
			metricsInstance.SectionsClosed,
			metricsInstance.OrdersCreated,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
