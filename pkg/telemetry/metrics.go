package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for replug.
type Metrics struct {
	config MetricsConfig

	// Fix run metrics
	fixRunsStarted   *prometheus.CounterVec
	fixRunsCompleted *prometheus.CounterVec
	fixRunDuration   *prometheus.HistogramVec

	// Config patch metrics
	settingsPatched *prometheus.CounterVec
	patchFailures   *prometheus.CounterVec

	// Unit metrics
	unitsUnloaded    prometheus.Counter
	unitsLoaded      prometheus.Counter
	unitLoadFailures prometheus.Counter

	// Validation metrics
	validationScore prometheus.Gauge

	// Watch metrics
	watchEvents *prometheus.CounterVec

	// System metrics
	activeFixRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Fix run metrics
		fixRunsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fix_runs_started_total",
				Help:      "Total number of fix runs started",
			},
			[]string{"source"},
		),
		fixRunsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fix_runs_completed_total",
				Help:      "Total number of fix runs completed",
			},
			[]string{"status"},
		),
		fixRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fix_run_duration_seconds",
				Help:      "Duration of fix run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Config patch metrics
		settingsPatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settings_patched_total",
				Help:      "Total number of configuration settings patched",
			},
			[]string{"key"},
		),
		patchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "patch_failures_total",
				Help:      "Total number of configuration patch failures",
			},
			[]string{"class"},
		),

		// Unit metrics
		unitsUnloaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_unloaded_total",
				Help:      "Total number of plugin units unloaded",
			},
		),
		unitsLoaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_loaded_total",
				Help:      "Total number of plugin units loaded",
			},
		),
		unitLoadFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unit_load_failures_total",
				Help:      "Total number of plugin unit load failures",
			},
		),

		// Validation metrics
		validationScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_validation_score",
				Help:      "Score of the last configuration validation (0-100)",
			},
		),

		// Watch metrics
		watchEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watch_events_total",
				Help:      "Total number of watch events observed",
			},
			[]string{"reason"},
		),

		// System metrics
		activeFixRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_fix_runs",
				Help:      "Current number of active fix runs",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.fixRunsStarted,
		m.fixRunsCompleted,
		m.fixRunDuration,
		m.settingsPatched,
		m.patchFailures,
		m.unitsUnloaded,
		m.unitsLoaded,
		m.unitLoadFailures,
		m.validationScore,
		m.watchEvents,
		m.activeFixRuns,
	)

	return m, nil
}

// Fix Run Metrics

// RecordFixStarted increments the counter for started fix runs.
func (m *Metrics) RecordFixStarted(source string) {
	if m.fixRunsStarted == nil {
		return
	}
	m.fixRunsStarted.WithLabelValues(source).Inc()
	m.activeFixRuns.Inc()
}

// RecordFixCompleted records a completed fix run with its status and duration.
func (m *Metrics) RecordFixCompleted(status string, duration time.Duration) {
	if m.fixRunsCompleted == nil {
		return
	}
	m.fixRunsCompleted.WithLabelValues(status).Inc()
	m.fixRunDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeFixRuns.Dec()
}

// Config Patch Metrics

// RecordSettingPatched records a successfully patched setting.
func (m *Metrics) RecordSettingPatched(key string) {
	if m.settingsPatched == nil {
		return
	}
	m.settingsPatched.WithLabelValues(key).Inc()
}

// RecordPatchFailure records a configuration patch failure by error class.
func (m *Metrics) RecordPatchFailure(class string) {
	if m.patchFailures == nil {
		return
	}
	m.patchFailures.WithLabelValues(class).Inc()
}

// Unit Metrics

// RecordUnitsUnloaded records units removed from the runtime.
func (m *Metrics) RecordUnitsUnloaded(count int) {
	if m.unitsUnloaded == nil {
		return
	}
	m.unitsUnloaded.Add(float64(count))
}

// RecordUnitsLoaded records units loaded into the runtime.
func (m *Metrics) RecordUnitsLoaded(count int) {
	if m.unitsLoaded == nil {
		return
	}
	m.unitsLoaded.Add(float64(count))
}

// RecordUnitLoadFailure records a failed unit load.
func (m *Metrics) RecordUnitLoadFailure() {
	if m.unitLoadFailures == nil {
		return
	}
	m.unitLoadFailures.Inc()
}

// Validation Metrics

// SetValidationScore sets the score of the last configuration validation.
func (m *Metrics) SetValidationScore(score float64) {
	if m.validationScore == nil {
		return
	}
	m.validationScore.Set(score)
}

// Watch Metrics

// RecordWatchEvent records an observed watch event.
func (m *Metrics) RecordWatchEvent(reason string) {
	if m.watchEvents == nil {
		return
	}
	m.watchEvents.WithLabelValues(reason).Inc()
}

// System Metrics

// SetActiveFixRuns sets the current number of active fix runs.
func (m *Metrics) SetActiveFixRuns(count float64) {
	if m.activeFixRuns == nil {
		return
	}
	m.activeFixRuns.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
