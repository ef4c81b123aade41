// Package metrics exports Prometheus metrics for scrape runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

const namespace = "scraper"

// Metrics holds the pipeline's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Runs            *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	Opportunities   *prometheus.CounterVec
	ExtractionTiers *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	SuccessRate     *prometheus.GaugeVec
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Source runs by terminal status",
		}, []string{"source", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a source run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"source"}),
		Opportunities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Candidates by outcome (found, published, duplicate, updated, error)",
		}, []string{"source", "outcome"}),
		ExtractionTiers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_tier_total",
			Help:      "Listing pages by the extraction tier that produced results",
		}, []string{"tier"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting in the background queue",
		}),
		SuccessRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_success_rate",
			Help:      "Rolling success rate per source (0-100)",
		}, []string{"source"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun records a finished source job
func (m *Metrics) RecordRun(job *domain.ScrapingJob) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(job.SourceID, string(job.Status)).Inc()
	m.RunDuration.WithLabelValues(job.SourceID).Observe((time.Duration(job.ExecutionTimeMS) * time.Millisecond).Seconds())

	counts := map[string]int{
		"found":     job.Found,
		"published": job.Published,
		"duplicate": job.Duplicates,
		"updated":   job.Updated,
		"error":     job.Errors,
	}
	for outcome, n := range counts {
		if n > 0 {
			m.Opportunities.WithLabelValues(job.SourceID, outcome).Add(float64(n))
		}
	}
}

// RecordTier counts a page extracted by tier ("none" when nothing matched)
func (m *Metrics) RecordTier(tier string) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "none"
	}
	m.ExtractionTiers.WithLabelValues(tier).Inc()
}

// SetSuccessRate publishes a source's current success rate
func (m *Metrics) SetSuccessRate(source string, rate float64) {
	if m == nil {
		return
	}
	m.SuccessRate.WithLabelValues(source).Set(rate)
}

// SetQueueDepth reports the number of queued tasks
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
