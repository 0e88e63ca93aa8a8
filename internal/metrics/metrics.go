package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantora/signalmind/models"
)

// Recorder exposes the engine's operational metrics. It owns its registry so
// multiple instances (tests included) never collide.
type Recorder struct {
	registry *prometheus.Registry

	signalsEmitted  *prometheus.CounterVec
	signalsResolved *prometheus.CounterVec
	confidence      prometheus.Histogram
	regimeProb      *prometheus.GaugeVec
	tickDuration    prometheus.Histogram
	tickErrors      prometheus.Counter
}

// NewRecorder registers all engine metrics on a fresh registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		signalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signalmind",
			Name:      "signals_emitted_total",
			Help:      "Signals emitted, by action and regime.",
		}, []string{"action", "regime"}),
		signalsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signalmind",
			Name:      "signals_resolved_total",
			Help:      "Signals resolved, by result.",
		}, []string{"result"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "signalmind",
			Name:      "signal_confidence",
			Help:      "Confidence of emitted signals.",
			Buckets:   prometheus.LinearBuckets(30, 5, 14),
		}),
		regimeProb: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "signalmind",
			Name:      "regime_probability",
			Help:      "Current regime posterior probabilities.",
		}, []string{"regime"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "signalmind",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one decision tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signalmind",
			Name:      "tick_errors_total",
			Help:      "Decision ticks that failed before emitting.",
		}),
	}

	registry.MustRegister(
		r.signalsEmitted,
		r.signalsResolved,
		r.confidence,
		r.regimeProb,
		r.tickDuration,
		r.tickErrors,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// SignalEmitted records an emitted signal.
func (r *Recorder) SignalEmitted(sig *models.Signal) {
	r.signalsEmitted.WithLabelValues(sig.Action, sig.Regime).Inc()
	r.confidence.Observe(sig.Confidence)
}

// SignalResolved records a resolved outcome.
func (r *Recorder) SignalResolved(result string) {
	r.signalsResolved.WithLabelValues(result).Inc()
}

// RegimeObserved updates the posterior gauges.
func (r *Recorder) RegimeObserved(result models.RegimeResult) {
	for i, name := range models.RegimeNames {
		r.regimeProb.WithLabelValues(name).Set(result.Probabilities[i])
	}
}

// TickCompleted records the duration of one decision tick.
func (r *Recorder) TickCompleted(seconds float64) {
	r.tickDuration.Observe(seconds)
}

// TickFailed counts a failed tick.
func (r *Recorder) TickFailed() {
	r.tickErrors.Inc()
}
