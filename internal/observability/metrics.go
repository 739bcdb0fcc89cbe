// Package observability exposes Prometheus instruments for the voice
// session lifecycle.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the instruments the session state machine drives.
type Metrics struct {
	StateTransitions *prometheus.CounterVec
	TurnsCompleted   prometheus.Counter
	VoiceErrors      *prometheus.CounterVec
	SessionActive    prometheus.Gauge
}

// NewMetrics registers the instruments on reg; pass a fresh registry in
// tests to avoid duplicate registration.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions by source and target state.",
		}, []string{"from", "to"}),
		TurnsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_completed_total",
			Help:      "Conversation turns that reached playback completion.",
		}),
		VoiceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_errors_total",
			Help:      "Terminal voice session errors by kind.",
		}, []string{"kind"}),
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a voice session is established.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
