// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sonos_broker_notifications_sent_total", Help: "Payloads delivered per sink"},
		[]string{"sink"},
	)
	NotificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sonos_broker_notifications_dropped_total", Help: "Payloads that could not be delivered"},
		[]string{"sink"},
	)
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sonos_broker_events_received_total", Help: "Device events by category"},
		[]string{"category"},
	)
	SubscriptionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sonos_broker_subscription_ops_total", Help: "Subscribe/unsubscribe calls"},
		[]string{"op", "result"},
	)
	SnippetRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sonos_broker_snippet_runs_total", Help: "Override executions"},
		[]string{"result"},
	)
	SnippetDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sonos_broker_snippet_duration_seconds",
			Help:    "Override execution time including the wait",
			Buckets: []float64{1, 5, 10, 30, 60, 120},
		},
	)
	SoapDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonos_broker_soap_duration_seconds",
			Help:    "Device control call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"action", "result"},
	)
	Speakers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sonos_broker_speakers", Help: "Speakers in the registry"},
	)
)

func init() {
	prometheus.MustRegister(
		NotificationsSent,
		NotificationsDropped,
		EventsReceived,
		SubscriptionOps,
		SnippetRuns,
		SnippetDuration,
		SoapDuration,
		Speakers,
	)
}

// Result labels a call outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func Handler() http.Handler {
	return promhttp.Handler()
}
