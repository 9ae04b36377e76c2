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

package searcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/weaviate/textindex/adapters/repos/db/collector"
	"github.com/weaviate/textindex/adapters/repos/db/indexer"
	"github.com/weaviate/textindex/adapters/repos/db/query"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/document"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

type DocAddress = collector.DocAddress

// Searcher is a consistent view of one commit. Its statistics are summed
// over all of its segments so scores of different segments compare.
type Searcher struct {
	reader   *IndexReader
	meta     indexer.IndexMeta
	segments []*segment.Reader
	released atomic.Bool
}

func (s *Searcher) Schema() *schema.Schema {
	return s.meta.Schema
}

func (s *Searcher) Opstamp() uint64 {
	return s.meta.Opstamp
}

// Segments are ordered like the segments of the commit, the index of a
// segment is its SegmentOrd.
func (s *Searcher) Segments() []*segment.Reader {
	return s.segments
}

// NumDocs counts the alive docs.
func (s *Searcher) NumDocs() uint64 {
	var n uint64
	for _, r := range s.segments {
		n += uint64(r.NumDocs())
	}
	return n
}

// DocFreq sums the doc freq of term over the segments. Deleted docs are
// counted until a merge drops them.
func (s *Searcher) DocFreq(term schema.Term) (uint64, error) {
	var n uint64
	for _, r := range s.segments {
		df, err := r.DocFreq(term)
		if err != nil {
			return 0, errors.Wrapf(err, "doc freq in segment %s", r.ID())
		}
		n += uint64(df)
	}
	return n, nil
}

func (s *Searcher) AverageFieldNorm(field schema.FieldID) float32 {
	var tokens, docs uint64
	for _, r := range s.segments {
		tokens += r.FieldTokens(field)
		docs += uint64(r.MaxDoc())
	}
	if docs == 0 {
		return 0
	}
	return float32(tokens) / float32(docs)
}

// Doc reads the stored fields of the doc at addr.
func (s *Searcher) Doc(ctx context.Context, addr DocAddress) (*document.Document, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, enterrors.NewDeadlineError(err)
	}
	if int(addr.SegmentOrd) >= len(s.segments) {
		return nil, errors.Errorf("no segment %d in searcher of %d segments", addr.SegmentOrd, len(s.segments))
	}
	r := s.segments[addr.SegmentOrd]
	if addr.DocID >= r.MaxDoc() {
		return nil, errors.Errorf("no doc %d in segment %s of %d docs", addr.DocID, r.ID(), r.MaxDoc())
	}
	return r.Doc(addr.DocID)
}

func (s *Searcher) checkLive() error {
	if s.released.Load() {
		return enterrors.NewClosedError(errors.New("searcher released"))
	}
	return nil
}

// Release drops the segments pinned by s. Releasing twice is a no-op.
func (s *Searcher) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	return s.reader.release(s)
}

// Search runs q over every segment of s and merges what c collects. Up to
// the configured concurrency segments are searched in parallel.
func Search[F any](ctx context.Context, s *Searcher, q *query.Query, c collector.Collector[F]) (fruit F, err error) {
	start := time.Now()
	defer func() { s.reader.metrics.SearchDone(start, err) }()

	if err := s.checkLive(); err != nil {
		return fruit, err
	}
	if err := ctx.Err(); err != nil {
		return fruit, enterrors.NewDeadlineError(err)
	}
	opts := query.Options{Scoring: c.RequiresScoring(), BM25: s.reader.opts.BM25}
	w, err := query.NewWeight(q, s, opts)
	if err != nil {
		return fruit, err
	}

	fruits := make([]F, len(s.segments))
	eg, ctx := enterrors.NewErrorGroupWithContextWrapper(ctx, s.reader.logger, "search", q.String())
	eg.SetLimit(s.reader.opts.Concurrency)
	for ord, r := range s.segments {
		eg.Go(func() error {
			sc, err := c.ForSegment(uint32(ord), r)
			if err != nil {
				return err
			}
			if err := searchSegment(ctx, w, r, sc, opts.Scoring); err != nil {
				return errors.Wrapf(err, "search segment %s", r.ID())
			}
			fruits[ord] = sc.Harvest()
			return nil
		}, ord)
	}
	if err := eg.Wait(); err != nil {
		return fruit, err
	}
	return c.Merge(fruits)
}

func searchSegment[F any](ctx context.Context, w query.Weight, r *segment.Reader,
	sc collector.SegmentCollector[F], scoring bool,
) error {
	if p, ok := sc.(collector.Pruning); ok && scoring {
		return query.ForEachPruning(ctx, w, r, p.Threshold(), func(doc uint32, score float32) float32 {
			sc.Collect(doc, score)
			return p.Threshold()
		})
	}
	scorer, err := w.Scorer(r, 1)
	if err != nil {
		return err
	}
	return query.ForEach(ctx, scorer, r, sc.Collect)
}
