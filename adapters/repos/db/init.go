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

package db

import (
	"runtime"

	"github.com/weaviate/textindex/adapters/repos/db/compression"
	"github.com/weaviate/textindex/adapters/repos/db/indexer"
	"github.com/weaviate/textindex/adapters/repos/db/query"
	"github.com/weaviate/textindex/adapters/repos/db/searcher"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/usecases/config"
	"github.com/weaviate/textindex/usecases/monitoring"
)

// The config is validated when the index is opened, so the conversions
// below cannot fail.

func writerConfig(cfg config.Config, metrics *monitoring.PrometheusMetrics) indexer.Config {
	codec, _ := compression.Get(cfg.DocStore.Codec)
	return indexer.Config{
		NumWorkers:         cfg.Indexing.NumWorkers,
		MemoryBudget:       cfg.Indexing.MemoryBudget,
		MaxSegments:        cfg.Indexing.MaxSegments,
		ThrottleRate:       cfg.Indexing.ThrottleRate,
		MergeConcurrency:   cfg.Merge.Concurrency,
		MergeRetryInterval: indexer.DefaultMergeRetryInterval,
		Segment: segment.WriterOptions{
			Codec:     codec,
			BlockSize: cfg.DocStore.BlockSize,
		},
		Reader: segmentReaderOptions(cfg, metrics),
	}
}

func segmentReaderOptions(cfg config.Config, metrics *monitoring.PrometheusMetrics) segment.ReaderOptions {
	opts := segment.ReaderOptions{CacheBlocks: cfg.DocStore.CacheBlocks}
	if metrics != nil {
		opts.CacheMetrics = metrics
	}
	return opts
}

func readerOptions(cfg config.Config, metrics *monitoring.PrometheusMetrics) searcher.Options {
	concurrency := cfg.Search.Concurrency
	if concurrency == 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return searcher.Options{
		Policy:      reloadPolicy(cfg),
		Concurrency: concurrency,
		Reader:      segmentReaderOptions(cfg, metrics),
		BM25:        query.BM25{K1: cfg.BM25.K1, B: cfg.BM25.B},
	}
}

func reloadPolicy(cfg config.Config) searcher.ReloadPolicy {
	var policy searcher.ReloadPolicy
	if err := policy.UnmarshalText([]byte(cfg.Reader.ReloadPolicy)); err != nil {
		return searcher.OnCommit
	}
	return policy
}

func mergePolicy(cfg config.Config) indexer.MergePolicy {
	if cfg.Merge.Policy == config.MergePolicyNone {
		return indexer.NoMergePolicy{}
	}
	return indexer.NewLogMergePolicy(cfg.Merge.SegmentsPerMerge, cfg.Indexing.MaxSegments)
}
