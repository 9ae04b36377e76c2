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
	"time"
)

const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

func status(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusSuccess
}

func (pm *PrometheusMetrics) DocumentIndexed() {
	if pm == nil {
		return
	}

	pm.DocsIndexed.Inc()
}

func (pm *PrometheusMetrics) DocumentRejected() {
	if pm == nil {
		return
	}

	pm.DocsRejected.Inc()
}

func (pm *PrometheusMetrics) DeleteQueued() {
	if pm == nil {
		return
	}

	pm.DeletesQueued.Inc()
}

func (pm *PrometheusMetrics) AddThrottled() {
	if pm == nil {
		return
	}

	pm.ThrottledAdds.Inc()
}

func (pm *PrometheusMetrics) SegmentFlushed(start time.Time) {
	if pm == nil {
		return
	}

	pm.SegmentFlushes.Inc()
	pm.FlushDurations.Observe(time.Since(start).Seconds())
}

func (pm *PrometheusMetrics) CommitDone(start time.Time, err error) {
	if pm == nil {
		return
	}

	pm.Commits.WithLabelValues(status(err)).Inc()
	if err == nil {
		pm.CommitDurations.Observe(time.Since(start).Seconds())
	}
}

func (pm *PrometheusMetrics) SetLiveSegments(n int) {
	if pm == nil {
		return
	}

	pm.LiveSegments.Set(float64(n))
}

// MergeStarted returns the func to call once the merge is over, with the
// status it ended with.
func (pm *PrometheusMetrics) MergeStarted() func(status string) {
	if pm == nil {
		return func(string) {}
	}

	start := time.Now()
	pm.MergesInProgress.Inc()
	return func(status string) {
		pm.MergesInProgress.Dec()
		pm.Merges.WithLabelValues(status).Inc()
		if status == StatusSuccess {
			pm.MergeDurations.Observe(time.Since(start).Seconds())
		}
	}
}

func (pm *PrometheusMetrics) SearchDone(start time.Time, err error) {
	if pm == nil {
		return
	}

	pm.Searches.WithLabelValues(status(err)).Inc()
	pm.SearchDurations.Observe(time.Since(start).Seconds())
}

func (pm *PrometheusMetrics) ReaderReloaded() {
	if pm == nil {
		return
	}

	pm.ReaderReloads.Inc()
}

func (pm *PrometheusMetrics) DocStoreCacheHit() {
	if pm == nil {
		return
	}

	pm.DocStoreCache.WithLabelValues("hit").Inc()
}

func (pm *PrometheusMetrics) DocStoreCacheMiss() {
	if pm == nil {
		return
	}

	pm.DocStoreCache.WithLabelValues("miss").Inc()
}

func (pm *PrometheusMetrics) FilesCollected(n int) {
	if pm == nil {
		return
	}

	pm.CollectedFiles.Add(float64(n))
}
