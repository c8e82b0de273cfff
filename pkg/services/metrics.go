package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunMetrics holds the counters for one pipeline run. Each run owns its registry
// so repeated runs in one process never share state.
type RunMetrics struct {
	registry *prometheus.Registry

	FilesAnalyzed    prometheus.Counter
	FilesSkipped     prometheus.Counter
	FilesCached      prometheus.Counter
	Conflicts        prometheus.Counter
	SyntheticKeys    prometheus.Counter
	RowsRewritten    prometheus.Counter
	UnmatchedRows    prometheus.Counter
	AnalysisDuration prometheus.Histogram
}

func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RunMetrics{
		registry: reg,
		FilesAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_files_analyzed_total",
			Help: "Source files profiled and classified",
		}),
		FilesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_files_skipped_total",
			Help: "Source files skipped as unreadable",
		}),
		FilesCached: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_files_cached_total",
			Help: "Source files whose analysis came from the profile cache",
		}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_conflicts_total",
			Help: "Natural keys mapping to more than one entity",
		}),
		SyntheticKeys: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_synthetic_keys_total",
			Help: "Surrogate keys minted",
		}),
		RowsRewritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_rows_rewritten_total",
			Help: "Fact rows whose foreign key moved to a surrogate key",
		}),
		UnmatchedRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_unmatched_variation_rows_total",
			Help: "Fact rows bound to the canonical variation because no description matched",
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_file_analysis_seconds",
			Help:    "Time spent analyzing one source file",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Registry exposes the run's registry, for tests and exporters.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
