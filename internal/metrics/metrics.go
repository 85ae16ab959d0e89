// Package metrics exposes Prometheus instrumentation for scoring runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crm_scoring"

// Manager owns a private registry and the scoring metrics registered on
// it. A nil *Manager is valid and records nothing.
type Manager struct {
	registry *prometheus.Registry

	subjectsScored    *prometheus.CounterVec
	subjectErrors     *prometheus.CounterVec
	aiUnavailable     *prometheus.CounterVec
	alerts            *prometheus.CounterVec
	followUpFailures  prometheus.Counter
	overallScore      *prometheus.HistogramVec
	pipelineDuration  prometheus.Histogram
	batchRuns         prometheus.Counter
	writeBackFailures prometheus.Counter
}

// New registers the scoring metrics plus Go runtime collectors on a fresh
// registry.
func New() *Manager {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auto := promauto.With(reg)

	return &Manager{
		registry: reg,
		subjectsScored: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subjects_scored_total",
			Help:      "Snapshots persisted, by profile and enrichment status.",
		}, []string{"profile", "enrichment"}),
		subjectErrors: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subject_errors_total",
			Help:      "Subjects that failed to score, by error kind.",
		}, []string{"kind"}),
		aiUnavailable: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_unavailable_total",
			Help:      "Enrichment calls that fell back to deterministic scoring, by reason.",
		}, []string{"reason"}),
		alerts: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Score drop alerts raised, by profile.",
		}, []string{"profile"}),
		followUpFailures: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "follow_up_failures_total",
			Help:      "Follow-up tasks that could not be delivered.",
		}),
		overallScore: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "overall_score",
			Help:      "Distribution of overall scores.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}, []string{"profile"}),
		pipelineDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of one single-subject pipeline.",
			Buckets:   prometheus.DefBuckets,
		}),
		batchRuns: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Batch runs started.",
		}),
		writeBackFailures: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_back_failures_total",
			Help:      "CRM records rejected during score write-back.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) SubjectScored(profile, enrichment string, score int) {
	if m == nil {
		return
	}
	m.subjectsScored.WithLabelValues(profile, enrichment).Inc()
	m.overallScore.WithLabelValues(profile).Observe(float64(score))
}

func (m *Manager) SubjectFailed(kind string) {
	if m == nil {
		return
	}
	m.subjectErrors.WithLabelValues(kind).Inc()
}

func (m *Manager) AIUnavailable(reason string) {
	if m == nil {
		return
	}
	m.aiUnavailable.WithLabelValues(reason).Inc()
}

func (m *Manager) AlertRaised(profile string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(profile).Inc()
}

func (m *Manager) FollowUpFailed() {
	if m == nil {
		return
	}
	m.followUpFailures.Inc()
}

func (m *Manager) ObservePipeline(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.Observe(d.Seconds())
}

func (m *Manager) BatchStarted() {
	if m == nil {
		return
	}
	m.batchRuns.Inc()
}

func (m *Manager) WriteBackFailed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.writeBackFailures.Add(float64(n))
}
