// Package metrics records run counters in a Prometheus registry and writes
// them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/panbanda/luafix/pkg/models"
)

const namespace = "luafix"

// Recorder collects the metrics of one run.
type Recorder struct {
	registry *prometheus.Registry

	files        *prometheus.CounterVec
	findings     *prometheus.CounterVec
	edits        prometheus.Counter
	modified     prometheus.Counter
	cached       prometheus.Counter
	fileSeconds  prometheus.Histogram
	runSeconds   prometheus.Gauge
	lastRun      prometheus.Gauge
	programFinds prometheus.Gauge
	crashes      prometheus.Counter
}

// New creates a recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		// Labels: status (ok, parse_error, timeout, error, skipped)
		files: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed by outcome",
		}, []string{"status"}),
		// Labels: severity (GREEN, YELLOW, RED, DEBUG), pattern
		findings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings by severity and pattern",
		}, []string{"severity", "pattern"}),
		edits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_applied_total",
			Help:      "Edits applied by fix runs",
		}),
		modified: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_modified_total",
			Help:      "Files rewritten by fix runs",
		}),
		cached: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Files whose findings came from the cache",
		}),
		fileSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Per-file analysis time",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		runSeconds: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		programFinds: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unused_globals",
			Help:      "Unused globals reported by whole-program analysis",
		}),
		crashes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_crashes_total",
			Help:      "Runs whose worker pool crashed and fell back to sequential processing",
		}),
	}
}

// ObserveFile records one file result.
func (r *Recorder) ObserveFile(res models.FileResult) {
	r.files.WithLabelValues(string(res.Status)).Inc()
	for _, f := range res.Findings {
		r.findings.WithLabelValues(string(f.Severity), f.Pattern).Inc()
	}
	if res.Modified {
		r.modified.Inc()
		r.edits.Add(float64(res.Edits))
	}
	if res.Cached {
		r.cached.Inc()
	}
	if res.Duration > 0 {
		r.fileSeconds.Observe(res.Duration.Seconds())
	}
}

// ObserveProgram records whole-program findings.
func (r *Recorder) ObserveProgram(findings []models.Finding) {
	r.programFinds.Set(float64(len(findings)))
	for _, f := range findings {
		r.findings.WithLabelValues(string(f.Severity), f.Pattern).Inc()
	}
}

// ObservePool records a worker pool crash.
func (r *Recorder) ObservePool(crashed bool) {
	if crashed {
		r.crashes.Inc()
	}
}

// Finish records the run duration and completion time.
func (r *Recorder) Finish(elapsed time.Duration, at time.Time) {
	r.runSeconds.Set(elapsed.Seconds())
	r.lastRun.Set(float64(at.Unix()))
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
