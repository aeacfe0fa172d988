// Package metrics records session activity as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/opencode-ai/e2ecore/internal/driver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "e2ecore"

// Recorder is a driver.EventSink that keeps counters and histograms for
// the sessions it observes. Each Recorder owns its registry.
type Recorder struct {
	registry *prometheus.Registry

	sessions    *prometheus.CounterVec
	steps       *prometheus.CounterVec
	outputLines prometheus.Counter
	exitCodes   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	expectWait  prometheus.Histogram
	inFlight    prometheus.Gauge

	mu      sync.Mutex
	spawned map[string]struct{}
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		spawned:  make(map[string]struct{}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions resolved, by outcome.",
		}, []string{"outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Steps completed, by kind.",
		}, []string{"kind"}),
		outputLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_lines_total",
			Help:      "Output lines read from child processes.",
		}),
		exitCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "Child process exits, by exit code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time from run to resolution.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		expectWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "expect_wait_seconds",
			Help:      "Time spent waiting for each expected pattern.",
			Buckets:   prometheus.DefBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_in_flight",
			Help:      "Sessions spawned but not yet resolved.",
		}),
	}
	r.registry.MustRegister(r.sessions, r.steps, r.outputLines, r.exitCodes, r.duration, r.expectWait, r.inFlight)
	return r
}

// Registry exposes the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Emit updates metrics from a session event.
func (r *Recorder) Emit(ctx context.Context, event driver.SessionEvent) error {
	switch data := event.Data.(type) {
	case driver.SpawnedData:
		r.mu.Lock()
		r.spawned[event.SessionID] = struct{}{}
		r.mu.Unlock()
		r.inFlight.Inc()
	case driver.StepMatchedData:
		r.steps.WithLabelValues("expect").Inc()
		r.expectWait.Observe(data.Waited.Seconds())
	case driver.InputSentData:
		r.steps.WithLabelValues("send").Inc()
	case driver.OutputLineData:
		r.outputLines.Inc()
	case driver.ExitData:
		r.exitCodes.WithLabelValues(fmt.Sprint(data.ExitCode)).Inc()
	case driver.ResolvedData:
		outcome := string(data.Outcome)
		r.sessions.WithLabelValues(outcome).Inc()
		r.duration.WithLabelValues(outcome).Observe(data.Duration.Seconds())
		r.mu.Lock()
		if _, ok := r.spawned[event.SessionID]; ok {
			delete(r.spawned, event.SessionID)
			r.inFlight.Dec()
		}
		r.mu.Unlock()
	}
	return nil
}

// Close is a no-op; the registry outlives the sessions it records.
func (r *Recorder) Close() error {
	return nil
}

// WriteTextfile writes the current metrics to path in the node_exporter
// textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
