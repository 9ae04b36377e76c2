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

package indexer

import (
	"time"

	"github.com/pkg/errors"

	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/usecases/monitoring"
)

const (
	DefaultNumWorkers         = 2
	DefaultMemoryBudget       = 64 * 1024 * 1024
	DefaultMaxSegments        = 64
	DefaultThrottleRate       = 1000
	DefaultMergeConcurrency   = 2
	DefaultMergeRetryInterval = time.Second
	DefaultSegmentsPerMerge   = 8
)

// queueDepthPerWorker bounds the documents waiting for a worker.
const queueDepthPerWorker = 64

type Config struct {
	NumWorkers int
	// MemoryBudget is shared by all workers. A worker flushes its segment
	// once it holds MemoryBudget / NumWorkers bytes.
	MemoryBudget uint64
	// MaxSegments is the live segment count above which adds are throttled
	// to ThrottleRate docs per second.
	MaxSegments        int
	ThrottleRate       float64
	MergeConcurrency   int
	MergeRetryInterval time.Duration
	Segment            segment.WriterOptions
	Reader             segment.ReaderOptions
}

func DefaultConfig() Config {
	return Config{
		NumWorkers:         DefaultNumWorkers,
		MemoryBudget:       DefaultMemoryBudget,
		MaxSegments:        DefaultMaxSegments,
		ThrottleRate:       DefaultThrottleRate,
		MergeConcurrency:   DefaultMergeConcurrency,
		MergeRetryInterval: DefaultMergeRetryInterval,
	}
}

func (c Config) validate() error {
	if c.NumWorkers <= 0 {
		return errors.Errorf("number of workers must be positive, got %d", c.NumWorkers)
	}
	if c.MemoryBudget < uint64(c.NumWorkers) {
		return errors.Errorf("memory budget of %d bytes is too small for %d workers",
			c.MemoryBudget, c.NumWorkers)
	}
	if c.MergeConcurrency <= 0 {
		return errors.Errorf("merge concurrency must be positive, got %d", c.MergeConcurrency)
	}
	if c.MergeRetryInterval <= 0 {
		return errors.Errorf("merge retry interval must be positive, got %s", c.MergeRetryInterval)
	}
	return nil
}

type Option func(w *IndexWriter) error

func WithMergePolicy(policy MergePolicy) Option {
	return func(w *IndexWriter) error {
		if policy == nil {
			return errors.New("merge policy must not be nil")
		}
		w.policy = policy
		return nil
	}
}

func WithMetrics(metrics *monitoring.PrometheusMetrics) Option {
	return func(w *IndexWriter) error {
		w.metrics = metrics
		return nil
	}
}

// WithProtectedFiles registers fn to list files garbage collection must
// keep although no commit references them any more, such as the files of
// segments still read by a searcher.
func WithProtectedFiles(fn func() map[string]struct{}) Option {
	return func(w *IndexWriter) error {
		w.protected = fn
		return nil
	}
}
