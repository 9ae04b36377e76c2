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
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PrometheusMetrics
	assert.NotPanics(t, func() {
		m.DocumentIndexed()
		m.DocumentRejected()
		m.DeleteQueued()
		m.AddThrottled()
		m.SegmentFlushed(time.Now())
		m.CommitDone(time.Now(), nil)
		m.SetLiveSegments(3)
		m.MergeStarted()(StatusSuccess)
		m.SearchDone(time.Now(), nil)
		m.ReaderReloaded()
		m.DocStoreCacheHit()
		m.DocStoreCacheMiss()
		m.FilesCollected(2)
	})
}

func TestMetricsPerRegistry(t *testing.T) {
	// two indexes in one process must not collide
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	m1 := NewPrometheusMetrics(reg1)
	m2 := NewPrometheusMetrics(reg2)

	m1.DocumentIndexed()
	m1.DocumentIndexed()
	m2.DocumentIndexed()
	assert.Equal(t, float64(2), testutil.ToFloat64(m1.DocsIndexed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m2.DocsIndexed))

	count, err := testutil.GatherAndCount(reg1, "textindex_docs_indexed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsRecording(t *testing.T) {
	m := NewPrometheusMetrics(nil)

	t.Run("commits by status", func(t *testing.T) {
		m.CommitDone(time.Now(), nil)
		m.CommitDone(time.Now(), errors.New("disk full"))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.Commits.WithLabelValues(StatusSuccess)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.Commits.WithLabelValues(StatusFailed)))
	})

	t.Run("merges in progress", func(t *testing.T) {
		done := m.MergeStarted()
		assert.Equal(t, float64(1), testutil.ToFloat64(m.MergesInProgress))
		done(StatusCancelled)
		assert.Equal(t, float64(0), testutil.ToFloat64(m.MergesInProgress))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.Merges.WithLabelValues(StatusCancelled)))
	})

	t.Run("cache and gauges", func(t *testing.T) {
		m.DocStoreCacheHit()
		m.DocStoreCacheMiss()
		m.DocStoreCacheMiss()
		m.SetLiveSegments(7)
		m.FilesCollected(3)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.DocStoreCache.WithLabelValues("hit")))
		assert.Equal(t, float64(2), testutil.ToFloat64(m.DocStoreCache.WithLabelValues("miss")))
		assert.Equal(t, float64(7), testutil.ToFloat64(m.LiveSegments))
		assert.Equal(t, float64(3), testutil.ToFloat64(m.CollectedFiles))
	})
}
