// Package metrics exposes Prometheus collectors for rating sessions.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pashagolub/prefrank/pkg/data"
	"github.com/pashagolub/prefrank/pkg/rating"
)

// Default comparisons-per-session buckets, up to the usual session cap
var defaultComparisonBuckets = []float64{0, 1, 2, 3, 5, 8, 10, 15, 20}

// Manager owns a registry and the session collectors in it. It satisfies
// data.Observer so it can be attached to a data.Runner.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	outcomesApplied       *prometheus.CounterVec
	sessionsStarted       *prometheus.CounterVec
	sessionsFinished      *prometheus.CounterVec
	comparisonsPerSession prometheus.Histogram
	lastIntervalWidth     prometheus.Gauge
}

var _ data.Observer = (*Manager)(nil)

// Option applies a configuration option to the Manager
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithComparisonBuckets sets the histogram buckets for comparisons per session
func WithComparisonBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// NewManager creates a manager with its own registry
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "prefrank",
		buckets:   defaultComparisonBuckets,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	factory := promauto.With(m.registry)
	m.outcomesApplied = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "outcomes_applied_total",
		Help:      "Comparison outcomes applied to the library",
	}, []string{"model", "result"})
	m.sessionsStarted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "sessions_started_total",
		Help:      "Rating sessions started",
	}, []string{"sentiment"})
	m.sessionsFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "sessions_finished_total",
		Help:      "Rating sessions finished, by stop reason",
	}, []string{"reason"})
	m.comparisonsPerSession = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "session_comparisons",
		Help:      "Comparisons recorded per finished session",
		Buckets:   m.buckets,
	})
	m.lastIntervalWidth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "last_session_interval_width",
		Help:      "Width of the Wilson interval when the last session finished",
	})
	return m
}

// Registry returns the registry the collectors live in
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// SessionStarted counts the session by starting sentiment
func (m *Manager) SessionStarted(_ data.RunInfo, session rating.Session) error {
	m.sessionsStarted.WithLabelValues(string(session.Sentiment)).Inc()
	return nil
}

// OutcomeApplied counts the outcome by model and result
func (m *Manager) OutcomeApplied(info data.RunInfo, outcome rating.Outcome, _, _ rating.Item) error {
	m.outcomesApplied.WithLabelValues(string(info.Model), string(outcome.Result)).Inc()
	return nil
}

// SessionFinished records the stop reason and session length
func (m *Manager) SessionFinished(_ data.RunInfo, session rating.Session) error {
	m.sessionsFinished.WithLabelValues(string(session.Reason)).Inc()
	m.comparisonsPerSession.Observe(float64(len(session.History)))
	m.lastIntervalWidth.Set(session.Upper - session.Lower)
	return nil
}

// WriteTextfile writes the registry in the text exposition format, for the
// node_exporter textfile collector. An empty path is a no-op.
func (m *Manager) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
