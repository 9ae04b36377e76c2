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
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/analysis"
	"github.com/weaviate/textindex/entities/document"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
	"github.com/weaviate/textindex/usecases/monitoring"
)

// LockFileName is held by the single writer of an index.
const LockFileName = "writer.lock"

type State int32

const (
	StateOpen State = iota
	StateCommitting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitting:
		return "committing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// flushedSegment is a segment written by a worker but not committed yet.
type flushedSegment struct {
	meta     segment.Meta
	opstamps []uint64
}

// IndexWriter is the single writer of an index. Documents are indexed by
// a pool of workers, each building its own segment. Nothing becomes
// visible to readers before Commit.
type IndexWriter struct {
	dir        *directory.ManagedDirectory
	schema     *schema.Schema
	tokenizers *analysis.Manager
	config     Config
	logger     logrus.FieldLogger
	metrics    *monitoring.PrometheusMetrics
	policy     MergePolicy
	protected  func() map[string]struct{}

	lock    directory.Lock
	stamper *Stamper
	deletes *deleteQueue
	limiter *rate.Limiter

	// ctx is cancelled on close and aborts flushes and merges.
	ctx    context.Context
	cancel context.CancelFunc

	// barrier is held shared while an operation is stamped and queued and
	// exclusively by commit, rollback and close, so that every operation
	// stamped before a commit is part of it.
	barrier sync.RWMutex
	pool    *workerPool

	// commitLock serializes commit, rollback and close.
	commitLock sync.Mutex
	closed     bool
	state      atomic.Int32
	failMu     sync.Mutex
	failure    error

	// metaLock guards committed and readers. It is taken before segLock.
	metaLock  sync.Mutex
	committed IndexMeta
	readers   map[segment.ID]*segment.Reader

	// segLock guards pending and inFlight.
	segLock  sync.Mutex
	pending  []flushedSegment
	inFlight map[segment.ID]struct{}

	liveSegments atomic.Int64
	merges       *mergeScheduler
}

// Open takes the writer lock of dir and continues from its last commit.
// A LockError is returned if another writer holds the index.
func Open(dir *directory.ManagedDirectory, tokenizers *analysis.Manager, config Config,
	logger logrus.FieldLogger, opts ...Option,
) (*IndexWriter, error) {
	if err := config.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid index writer config")
	}

	lock, err := dir.AcquireLock(LockFileName)
	if err != nil {
		return nil, err
	}

	meta, err := ReadMeta(dir)
	if err != nil {
		lock.Release()
		return nil, errors.Wrap(err, "load index meta")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &IndexWriter{
		dir:        dir,
		schema:     meta.Schema,
		tokenizers: tokenizers,
		config:     config,
		logger:     logger,
		lock:       lock,
		stamper:    NewStamper(meta.Opstamp),
		deletes:    newDeleteQueue(),
		limiter:    rate.NewLimiter(rate.Limit(config.ThrottleRate), 1),
		ctx:        ctx,
		cancel:     cancel,
		committed:  meta,
		readers:    map[segment.ID]*segment.Reader{},
		inFlight:   map[segment.ID]struct{}{},
		policy:     NewLogMergePolicy(DefaultSegmentsPerMerge, config.MaxSegments),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			cancel()
			lock.Release()
			return nil, err
		}
	}
	if w.config.Reader.CacheMetrics == nil && w.metrics != nil {
		w.config.Reader.CacheMetrics = w.metrics
	}

	for _, m := range meta.Segments {
		r, err := segment.Open(dir, meta.Schema, m, w.config.Reader)
		if err != nil {
			w.releaseReaders()
			cancel()
			lock.Release()
			return nil, errors.Wrapf(err, "open segment %s", m.ID)
		}
		w.readers[m.ID] = r
	}

	w.merges = newMergeScheduler(w)
	w.pool = w.startWorkers()
	w.updateLiveSegments()
	w.merges.start()

	w.logger.WithField("action", "open").
		WithField("opstamp", meta.Opstamp).
		WithField("num_segments", len(meta.Segments)).
		WithField("num_docs", meta.NumDocs()).
		Info("opened index writer")

	w.merges.consider()
	return w, nil
}

func (w *IndexWriter) Schema() *schema.Schema {
	return w.schema
}

func (w *IndexWriter) State() State {
	return State(w.state.Load())
}

// CommittedMeta returns the meta of the last commit or merge.
func (w *IndexWriter) CommittedMeta() IndexMeta {
	w.metaLock.Lock()
	defer w.metaLock.Unlock()

	return w.committed.withSegments(append([]segment.Meta(nil), w.committed.Segments...))
}

// LastOpstamp is the most recent opstamp handed out.
func (w *IndexWriter) LastOpstamp() uint64 {
	return w.stamper.Last()
}

func (w *IndexWriter) checkOpen() error {
	if w.State() == StateClosed {
		w.failMu.Lock()
		defer w.failMu.Unlock()
		return enterrors.NewClosedError(w.failure)
	}
	return nil
}

func (w *IndexWriter) failed() bool {
	w.failMu.Lock()
	defer w.failMu.Unlock()

	return w.failure != nil
}

// fail closes the writer after an error that leaves it unusable. Close
// still has to be called to release its resources.
func (w *IndexWriter) fail(err error) {
	w.failMu.Lock()
	first := w.failure == nil
	if first {
		w.failure = err
	}
	w.failMu.Unlock()

	w.state.Store(int32(StateClosed))
	if first {
		w.logger.WithField("action", "index_writer_failure").
			WithError(err).
			Error("index writer failed, it must be reopened")
	}
}

// AddDocument queues doc for indexing and returns its opstamp. The
// document is validated before anything is queued, a SchemaError leaves
// the index untouched.
func (w *IndexWriter) AddDocument(ctx context.Context, doc *document.Document) (uint64, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if err := segment.ValidateDocument(w.schema, w.tokenizers, doc); err != nil {
		w.metrics.DocumentRejected()
		return 0, err
	}
	if err := w.throttle(ctx); err != nil {
		return 0, err
	}

	w.barrier.RLock()
	defer w.barrier.RUnlock()

	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	opstamp := w.stamper.Stamp()
	select {
	case w.pool.ch <- addOperation{opstamp: opstamp, doc: doc}:
		return opstamp, nil
	case <-ctx.Done():
		return 0, enterrors.NewDeadlineError(ctx.Err())
	}
}

// throttle slows adds down while there are more live segments than the
// configured ceiling, giving merges time to catch up.
func (w *IndexWriter) throttle(ctx context.Context) error {
	if w.config.MaxSegments <= 0 || w.liveSegments.Load() <= int64(w.config.MaxSegments) {
		return nil
	}
	w.metrics.AddThrottled()
	if err := w.limiter.Wait(ctx); err != nil {
		return enterrors.NewDeadlineError(err)
	}
	return nil
}

// DeleteByTerm deletes every document holding term that was added before
// this call. The delete takes effect on the next commit.
func (w *IndexWriter) DeleteByTerm(term schema.Term) (uint64, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if !term.Valid() {
		return 0, enterrors.NewSchemaError("invalid term %x", []byte(term))
	}
	f, ok := w.schema.Field(term.Field())
	if !ok {
		return 0, enterrors.NewSchemaError("unknown field %d", term.Field())
	}
	if !f.Indexed || f.Type != term.Type() {
		return 0, enterrors.NewSchemaError("cannot delete by %s term on field %q", term.Type(), f.Name)
	}

	w.barrier.RLock()
	defer w.barrier.RUnlock()

	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	opstamp := w.stamper.Stamp()
	w.deletes.Push(DeleteOperation{Opstamp: opstamp, Term: term.Clone()})
	w.metrics.DeleteQueued()
	return opstamp, nil
}

// Commit makes every add and delete stamped before it durable and
// visible, see CommitWithPayload.
func (w *IndexWriter) Commit(ctx context.Context) (uint64, error) {
	return w.CommitWithPayload(ctx, "")
}

// CommitWithPayload flushes all workers, applies the queued deletes and
// atomically replaces the index meta. On error the previous commit stays
// valid and the uncommitted work is kept for the next attempt, unless a
// worker failed to flush, which closes the writer.
func (w *IndexWriter) CommitWithPayload(ctx context.Context, payload string) (uint64, error) {
	w.commitLock.Lock()
	defer w.commitLock.Unlock()

	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	start := time.Now()

	w.barrier.Lock()
	defer w.barrier.Unlock()

	w.state.Store(int32(StateCommitting))
	opstamp := w.stamper.Stamp()

	if err := w.stopWorkers(false); err != nil {
		w.fail(err)
		w.metrics.CommitDone(start, err)
		return 0, errors.Wrap(err, "flush segments")
	}
	if err := ctx.Err(); err != nil {
		w.pool = w.startWorkers()
		w.state.Store(int32(StateOpen))
		w.metrics.CommitDone(start, err)
		return 0, enterrors.NewDeadlineError(err)
	}

	err := w.publish(opstamp, payload)
	w.pool = w.startWorkers()
	w.state.Store(int32(StateOpen))
	w.metrics.CommitDone(start, err)
	if err != nil {
		w.logger.WithField("action", "commit").
			WithField("opstamp", opstamp).
			WithError(err).
			Error("commit failed, previous commit is still valid")
		return 0, errors.Wrap(err, "commit")
	}

	w.logger.WithField("action", "commit").
		WithField("opstamp", opstamp).
		WithField("num_segments", w.liveSegments.Load()).
		WithField("took", time.Since(start)).
		Info("committed")

	w.collectGarbage()
	w.merges.consider()
	return opstamp, nil
}

// publish applies the queued deletes to the committed and the flushed
// segments and writes the new meta. The writer state is only changed
// once the meta is durable.
func (w *IndexWriter) publish(opstamp uint64, payload string) error {
	w.metaLock.Lock()
	defer w.metaLock.Unlock()

	w.segLock.Lock()
	pending := w.pending
	w.segLock.Unlock()

	ops := w.deletes.Snapshot(opstamp)

	// every reader opened here is released again if the commit fails
	var opened []*segment.Reader
	release := func() {
		for _, r := range opened {
			r.DecRef()
		}
	}

	next := make(map[segment.ID]*segment.Reader, len(w.committed.Segments)+len(pending))
	segments := make([]segment.Meta, 0, len(w.committed.Segments)+len(pending))
	add := func(r *segment.Reader, opstamps []uint64) error {
		updated, drop, err := w.applyDeletes(r, opstamps, ops, opstamp)
		if err != nil {
			return err
		}
		if updated != r {
			opened = append(opened, updated)
		}
		if drop {
			return nil
		}
		next[updated.ID()] = updated
		segments = append(segments, updated.Meta())
		return nil
	}

	for _, m := range w.committed.Segments {
		if err := add(w.readers[m.ID], nil); err != nil {
			release()
			return errors.Wrapf(err, "apply deletes to segment %s", m.ID)
		}
	}
	for _, p := range pending {
		r, err := segment.Open(w.dir, w.schema, p.meta, w.config.Reader)
		if err != nil {
			release()
			return errors.Wrapf(err, "open flushed segment %s", p.meta.ID)
		}
		opened = append(opened, r)
		if err := add(r, p.opstamps); err != nil {
			release()
			return errors.Wrapf(err, "apply deletes to segment %s", p.meta.ID)
		}
	}

	meta := IndexMeta{
		Segments: segments,
		Opstamp:  opstamp,
		Schema:   w.schema,
		Payload:  payload,
	}
	if err := WriteMeta(w.dir, meta); err != nil {
		release()
		return err
	}

	// the new meta is durable, drop every reader which is not part of it
	for _, r := range opened {
		if next[r.ID()] != r {
			r.DecRef()
		}
	}
	for id, r := range w.readers {
		if next[id] != r {
			r.DecRef()
		}
	}
	w.readers = next
	w.committed = meta

	w.segLock.Lock()
	w.pending = w.pending[len(pending):]
	w.segLock.Unlock()

	w.deletes.Drop(opstamp)
	w.updateLiveSegments()
	return nil
}

// Rollback discards every add and delete since the last commit. Running
// merges of committed segments are not affected.
func (w *IndexWriter) Rollback() error {
	w.commitLock.Lock()
	defer w.commitLock.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}

	w.barrier.Lock()
	defer w.barrier.Unlock()

	if err := w.stopWorkers(true); err != nil {
		w.fail(err)
		return errors.Wrap(err, "stop workers")
	}
	w.deletes.Clear()

	w.segLock.Lock()
	discarded := len(w.pending)
	w.pending = nil
	w.segLock.Unlock()

	w.pool = w.startWorkers()

	w.metaLock.Lock()
	w.updateLiveSegments()
	w.metaLock.Unlock()

	w.logger.WithField("action", "rollback").
		WithField("opstamp", w.CommittedMeta().Opstamp).
		WithField("discarded_segments", discarded).
		Info("rolled back to last commit")

	w.collectGarbage()
	return nil
}

// Close discards uncommitted work, aborts running merges and releases the
// writer lock. It is safe to call Close on a failed writer.
func (w *IndexWriter) Close(ctx context.Context) error {
	w.commitLock.Lock()
	defer w.commitLock.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.state.Store(int32(StateClosed))

	var result *multierror.Error

	w.barrier.Lock()
	if w.pool != nil {
		// errors of discarded work do not matter any more
		_ = w.stopWorkers(true)
	}
	w.barrier.Unlock()

	w.cancel()
	if err := w.merges.stop(ctx); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "stop merges"))
	}

	w.metaLock.Lock()
	w.releaseReaders()
	w.metaLock.Unlock()

	if err := w.lock.Release(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "release writer lock"))
	}

	w.logger.WithField("action", "close").Debug("closed index writer")
	return result.ErrorOrNil()
}

func (w *IndexWriter) releaseReaders() {
	for id, r := range w.readers {
		if err := r.DecRef(); err != nil {
			w.logger.WithField("action", "close").
				WithField("segment", id.Short()).
				WithError(err).
				Warn("failed to release segment")
		}
	}
	w.readers = map[segment.ID]*segment.Reader{}
}

// updateLiveSegments must be called with metaLock held.
func (w *IndexWriter) updateLiveSegments() {
	w.segLock.Lock()
	n := len(w.pending)
	w.segLock.Unlock()

	n += len(w.readers)
	w.liveSegments.Store(int64(n))
	w.metrics.SetLiveSegments(n)
}

// Merge merges the committed segments ids into one and waits for it. The
// result is committed as soon as the merge ends.
func (w *IndexWriter) Merge(ctx context.Context, ids []segment.ID) (segment.Meta, error) {
	if err := w.checkOpen(); err != nil {
		return segment.Meta{}, err
	}
	return w.merges.mergeNow(ctx, MergeCandidate(ids))
}

// WaitMerges blocks until no merge is running.
func (w *IndexWriter) WaitMerges(ctx context.Context) error {
	return w.merges.wait(ctx)
}
