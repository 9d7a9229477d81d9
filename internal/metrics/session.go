// Package metrics exposes Prometheus instruments for voice sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsByPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voiceagent",
		Name:      "sessions",
		Help:      "Number of session controllers by phase",
	}, []string{"phase"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voiceagent",
		Name:      "session_transitions_total",
		Help:      "Total session phase transitions",
	}, []string{"from", "to"})

	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voiceagent",
		Name:      "session_failures_total",
		Help:      "Total session failures by kind",
	}, []string{"kind"})

	contextSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voiceagent",
		Name:      "context_submissions_total",
		Help:      "Context submissions by result (ok, rejected, send_error)",
	}, []string{"result"})

	uiDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voiceagent",
		Name:      "ui_frames_dropped_total",
		Help:      "UI frames that could not be queued, by frame class",
	}, []string{"class"})
)

// SessionCreated records a new controller in phase.
func SessionCreated(phase string) {
	sessionsByPhase.WithLabelValues(phase).Inc()
}

// SessionRemoved records a controller leaving the registry in phase.
func SessionRemoved(phase string) {
	sessionsByPhase.WithLabelValues(phase).Dec()
}

// RecordTransition moves one controller between phase gauges.
func RecordTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
	sessionsByPhase.WithLabelValues(from).Dec()
	sessionsByPhase.WithLabelValues(to).Inc()
}

func RecordFailure(kind string) {
	failures.WithLabelValues(kind).Inc()
}

func RecordContextSubmission(result string) {
	contextSubmissions.WithLabelValues(result).Inc()
}

func RecordUIDrop(class string) {
	uiDropped.WithLabelValues(class).Inc()
}
