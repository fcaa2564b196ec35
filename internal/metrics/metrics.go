// Package metrics holds the prometheus collectors of the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every pipeline collector
type Metrics struct {
	SearchDuration *prometheus.HistogramVec
	IndexerErrors  *prometheus.CounterVec
	CandidatesSeen prometheus.Counter
	BlacklistHits  prometheus.Counter
	Grabs          *prometheus.CounterVec
	GrabFailures   *prometheus.CounterVec
	DownloadStates *prometheus.GaugeVec
	Imports        *prometheus.CounterVec
	TaskRuns       *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grabarr",
			Name:      "indexer_search_duration_seconds",
			Help:      "Duration of indexer searches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"indexer"}),
		IndexerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grabarr",
			Name:      "indexer_errors_total",
			Help:      "Failed indexer searches",
		}, []string{"indexer"}),
		CandidatesSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "grabarr",
			Name:      "candidates_total",
			Help:      "Candidates returned by indexers after de-duplication",
		}),
		BlacklistHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "grabarr",
			Name:      "blacklist_hits_total",
			Help:      "Candidates dropped because they are blacklisted",
		}),
		Grabs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grabarr",
			Name:      "grabs_total",
			Help:      "Releases submitted to a download client",
		}, []string{"client", "media_type"}),
		GrabFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grabarr",
			Name:      "grab_failures_total",
			Help:      "Releases a download client refused",
		}, []string{"client"}),
		DownloadStates: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "grabarr",
			Name:      "downloads",
			Help:      "Downloads per status",
		}, []string{"status"}),
		Imports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grabarr",
			Name:      "imported_files_total",
			Help:      "Files handled by the importer",
		}, []string{"media_type", "result"}),
		TaskRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grabarr",
			Name:      "task_runs_total",
			Help:      "Scheduled task executions",
		}, []string{"task", "result"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grabarr",
			Name:      "task_duration_seconds",
			Help:      "Duration of scheduled tasks",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
	}
}
