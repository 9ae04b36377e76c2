//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "textindex"

// PrometheusMetrics bundles every series of one index. Each index gets its
// own instance bound to an explicit registerer, so several indexes can
// live in one process. A nil *PrometheusMetrics is valid and records
// nothing.
type PrometheusMetrics struct {
	DocsIndexed    prometheus.Counter
	DocsRejected   prometheus.Counter
	DeletesQueued  prometheus.Counter
	ThrottledAdds  prometheus.Counter
	SegmentFlushes prometheus.Counter
	FlushDurations prometheus.Histogram

	Commits         *prometheus.CounterVec
	CommitDurations prometheus.Histogram
	LiveSegments    prometheus.Gauge

	Merges           *prometheus.CounterVec
	MergeDurations   prometheus.Histogram
	MergesInProgress prometheus.Gauge

	Searches        *prometheus.CounterVec
	SearchDurations prometheus.Histogram
	ReaderReloads   prometheus.Counter
	DocStoreCache   *prometheus.CounterVec
	CollectedFiles  prometheus.Counter
}

// NewPrometheusMetrics registers the series with reg. A nil reg creates
// unregistered series.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = NoopRegisterer{}
	}
	f := promauto.With(reg)
	return &PrometheusMetrics{
		DocsIndexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docs_indexed_total",
			Help:      "Number of documents added to a segment writer",
		}),
		DocsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docs_rejected_total",
			Help:      "Number of documents rejected because they do not match the schema",
		}),
		DeletesQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletes_total",
			Help:      "Number of delete by term operations",
		}),
		ThrottledAdds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_adds_total",
			Help:      "Number of adds delayed because too many segments are live",
		}),
		SegmentFlushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_flushes_total",
			Help:      "Number of segments written by indexing workers",
		}),
		FlushDurations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_flush_duration_seconds",
			Help:      "Duration of writing one segment",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Number of commits by outcome",
		}, []string{"status"}),
		CommitDurations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Duration of commits, including the flush of every worker",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		LiveSegments: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_segments",
			Help:      "Number of segments in the last committed index meta",
		}),
		Merges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Number of segment merges by outcome",
		}, []string{"status"}),
		MergeDurations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Duration of successful merges",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		MergesInProgress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merges_in_progress",
			Help:      "Number of merges currently running",
		}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Number of searches by outcome",
		}, []string{"status"}),
		SearchDurations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of searches over all segments",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		ReaderReloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reader_reloads_total",
			Help:      "Number of searcher generations opened",
		}),
		DocStoreCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docstore_cache_total",
			Help:      "Doc store block cache lookups by result",
		}, []string{"result"}),
		CollectedFiles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_deleted_files_total",
			Help:      "Number of unreferenced files removed",
		}),
	}
}
