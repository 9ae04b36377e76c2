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
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/document"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

type addOperation struct {
	opstamp uint64
	doc     *document.Document
}

// workerPool is one generation of indexing workers. Commit and rollback
// stop it by closing ch and start a new one.
type workerPool struct {
	ch      chan addOperation
	wg      sync.WaitGroup
	discard atomic.Bool

	mu   sync.Mutex
	errs *multierror.Error
}

func (p *workerPool) addErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.errs = multierror.Append(p.errs, err)
}

func (p *workerPool) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.errs.ErrorOrNil()
}

func (w *IndexWriter) startWorkers() *workerPool {
	pool := &workerPool{
		ch: make(chan addOperation, w.config.NumWorkers*queueDepthPerWorker),
	}
	budget := int(w.config.MemoryBudget / uint64(w.config.NumWorkers))
	for i := 0; i < w.config.NumWorkers; i++ {
		wk := newWorker(i, w, pool, budget)
		pool.wg.Add(1)
		enterrors.GoWrapper(func() {
			defer pool.wg.Done()
			wk.Run()
		}, w.logger)
	}
	return pool
}

// stopWorkers closes the queue and waits for the workers to drain it. With
// discard the queued documents and the open segments are dropped, else
// every worker flushes its segment.
func (w *IndexWriter) stopWorkers(discard bool) error {
	pool := w.pool
	w.pool = nil
	pool.discard.Store(discard)
	close(pool.ch)
	pool.wg.Wait()
	return pool.err()
}

// worker indexes the documents it takes from the pool queue into its own
// segment. It flushes the segment when it exceeds its memory budget and
// when the queue is closed.
type worker struct {
	id     int
	writer *IndexWriter
	pool   *workerPool
	logger logrus.FieldLogger
	budget int

	seg *segment.Writer
}

func newWorker(id int, writer *IndexWriter, pool *workerPool, budget int) *worker {
	return &worker{
		id:     id,
		writer: writer,
		pool:   pool,
		logger: writer.logger.WithField("action", "index_worker").WithField("worker", id),
		budget: budget,
	}
}

func (wk *worker) Run() {
	for op := range wk.pool.ch {
		if wk.pool.discard.Load() || wk.writer.failed() {
			// keep draining so that nobody blocks on a full queue
			continue
		}
		if err := wk.add(op); err != nil {
			wk.abort()
			wk.pool.addErr(err)
			wk.writer.fail(err)
		}
	}

	if wk.seg == nil {
		return
	}
	if wk.pool.discard.Load() || wk.writer.failed() {
		wk.abort()
		return
	}
	if err := wk.flush(); err != nil {
		wk.pool.addErr(err)
		wk.writer.fail(err)
	}
}

func (wk *worker) add(op addOperation) error {
	if wk.seg == nil {
		seg, err := wk.writer.newSegmentWriter()
		if err != nil {
			return err
		}
		wk.seg = seg
	}

	if _, err := wk.seg.AddDocument(op.opstamp, op.doc); err != nil {
		return errors.Wrapf(err, "index document with opstamp %d", op.opstamp)
	}
	wk.writer.metrics.DocumentIndexed()

	if wk.seg.MemUsage() >= wk.budget {
		wk.logger.WithField("mem_usage", wk.seg.MemUsage()).
			WithField("num_docs", wk.seg.MaxDoc()).
			Debug("memory budget reached, flushing segment")
		return wk.flush()
	}
	return nil
}

func (wk *worker) flush() error {
	seg := wk.seg
	wk.seg = nil
	if seg.MaxDoc() == 0 {
		err := seg.Abort()
		wk.writer.segmentDone(seg.ID(), nil)
		return err
	}

	start := time.Now()
	opstamps := seg.DocOpstamps()
	meta, err := seg.Finalize(wk.writer.ctx)
	if err != nil {
		wk.writer.segmentDone(seg.ID(), nil)
		return errors.Wrapf(err, "flush segment %s", seg.ID())
	}
	wk.writer.segmentDone(seg.ID(), &flushedSegment{meta: meta, opstamps: opstamps})
	wk.writer.metrics.SegmentFlushed(start)
	return nil
}

func (wk *worker) abort() {
	if wk.seg == nil {
		return
	}
	seg := wk.seg
	wk.seg = nil
	if err := seg.Abort(); err != nil {
		wk.logger.WithField("segment", seg.ID().Short()).
			WithError(err).
			Warn("failed to remove files of discarded segment")
	}
	wk.writer.segmentDone(seg.ID(), nil)
}

// newSegmentWriter registers the new segment as in flight before its
// first file exists, so that garbage collection never sees its files
// unaccounted for.
func (w *IndexWriter) newSegmentWriter() (*segment.Writer, error) {
	w.segLock.Lock()
	defer w.segLock.Unlock()

	seg, err := segment.NewWriter(w.dir, w.schema, w.tokenizers, w.config.Segment, w.logger)
	if err != nil {
		return nil, errors.Wrap(err, "start segment")
	}
	w.inFlight[seg.ID()] = struct{}{}
	return seg, nil
}

// segmentDone ends the in flight state of a segment writer and queues its
// segment for the next commit if it was flushed.
func (w *IndexWriter) segmentDone(id segment.ID, flushed *flushedSegment) {
	w.segLock.Lock()
	delete(w.inFlight, id)
	if flushed != nil {
		w.pending = append(w.pending, *flushed)
	}
	w.segLock.Unlock()

	if flushed != nil {
		n := w.liveSegments.Add(1)
		w.metrics.SetLiveSegments(int(n))
	}
}
