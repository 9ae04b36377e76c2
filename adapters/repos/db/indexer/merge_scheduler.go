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
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/weaviate/sroar"
	"golang.org/x/sync/semaphore"

	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/cyclemanager"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/usecases/monitoring"
)

const (
	maxMergeRetryInterval = 5 * time.Minute
	// supersededSize bounds how many merged away segments an explicit merge
	// can still name.
	supersededSize = 1024
)

// errMergeInputGone ends a merge whose inputs were removed from the index
// while it ran.
var errMergeInputGone = errors.New("merge input is no longer part of the index")

type mergeResult struct {
	meta segment.Meta
	err  error
}

// mergeOperation holds a reference to every input reader for its whole
// lifetime, the inputs stay readable even if a commit replaces them.
type mergeOperation struct {
	candidate MergeCandidate
	readers   []*segment.Reader
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan mergeResult
	// finished is closed once the inputs are released.
	finished chan struct{}
}

type mergeFailure struct {
	backoff  backoff.BackOff
	attempts int
	retryAt  time.Time
}

// mergeScheduler runs the merges chosen by the merge policy on a bounded
// pool. Failed merges leave their inputs untouched and are retried with
// exponential backoff by a background cycle.
type mergeScheduler struct {
	w      *IndexWriter
	logger logrus.FieldLogger
	sem    *semaphore.Weighted
	cycle  cyclemanager.CycleManager

	// mu guards everything below. It is taken after the metaLock of the
	// writer.
	mu       sync.Mutex
	running  map[segment.ID]*mergeOperation
	failures map[string]*mergeFailure
	active   int
	waiters  []chan struct{}

	// superseded maps merged away segments onto the segment which replaced
	// them, the zero ID if the merge output was dropped.
	superseded *lru.Cache[segment.ID, segment.ID]
}

func newMergeScheduler(w *IndexWriter) *mergeScheduler {
	s := &mergeScheduler{
		w:        w,
		logger:   w.logger.WithField("action", "merge"),
		sem:      semaphore.NewWeighted(int64(w.config.MergeConcurrency)),
		running:  map[segment.ID]*mergeOperation{},
		failures: map[string]*mergeFailure{},
	}
	s.superseded, _ = lru.New[segment.ID, segment.ID](supersededSize)
	callbacks := cyclemanager.NewCycleCallbacks("merge", s.logger, 1)
	callbacks.Register("retry_failed_merges", s.retryCycle)
	ticker := cyclemanager.NewBackoffTicker(w.config.MergeRetryInterval, 8*w.config.MergeRetryInterval)
	s.cycle = cyclemanager.New(ticker, callbacks.CycleCallback)
	return s
}

func (s *mergeScheduler) start() {
	s.cycle.Start()
}

// stop ends the retry cycle and waits for the running merges, which are
// aborted by the cancelled writer context.
func (s *mergeScheduler) stop(ctx context.Context) error {
	if err := s.cycle.StopAndWait(ctx); err != nil {
		return err
	}
	return s.wait(ctx)
}

func (s *mergeScheduler) retryCycle(shouldAbort cyclemanager.ShouldAbortCallback) bool {
	if shouldAbort() {
		return false
	}

	s.mu.Lock()
	due := false
	now := time.Now()
	for _, f := range s.failures {
		if !now.Before(f.retryAt) {
			due = true
			break
		}
	}
	s.mu.Unlock()

	if !due {
		return false
	}
	s.logger.WithField("action", "merge_retry").Debug("retrying failed merges")
	return s.consider() > 0
}

// consider asks the merge policy for candidates among the committed
// segments which are not merging already and starts them. It returns the
// number of merges started.
func (s *mergeScheduler) consider() int {
	if s.w.ctx.Err() != nil {
		return 0
	}

	s.w.metaLock.Lock()
	s.mu.Lock()
	metas := make([]segment.Meta, 0, len(s.w.committed.Segments))
	for _, m := range s.w.committed.Segments {
		if _, busy := s.running[m.ID]; !busy {
			metas = append(metas, m)
		}
	}
	now := time.Now()
	var ops []*mergeOperation
	for _, c := range s.w.policy.ComputeMergeCandidates(metas) {
		if len(c) == 0 {
			continue
		}
		if f, ok := s.failures[c.key()]; ok && now.Before(f.retryAt) {
			continue
		}
		op, err := s.prepare(s.w.ctx, c)
		if err != nil {
			s.logger.WithError(err).Warn("skipping merge candidate")
			continue
		}
		ops = append(ops, op)
	}
	s.mu.Unlock()
	s.w.metaLock.Unlock()

	for _, op := range ops {
		s.launch(op)
	}
	return len(ops)
}

// prepare must be called with the writer metaLock and mu held.
func (s *mergeScheduler) prepare(ctx context.Context, c MergeCandidate) (*mergeOperation, error) {
	readers := make([]*segment.Reader, len(c))
	seen := map[segment.ID]struct{}{}
	for i, id := range c {
		if _, ok := seen[id]; ok {
			return nil, errors.Errorf("segment %s is listed twice", id)
		}
		seen[id] = struct{}{}
		r, ok := s.w.readers[id]
		if !ok {
			return nil, errors.Errorf("segment %s is not committed", id)
		}
		if _, busy := s.running[id]; busy {
			return nil, errors.Errorf("segment %s is already merging", id)
		}
		readers[i] = r
	}

	ctx, cancel := context.WithCancel(ctx)
	op := &mergeOperation{
		candidate: c,
		readers:   readers,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan mergeResult, 1),
		finished:  make(chan struct{}),
	}
	for i, r := range readers {
		r.IncRef()
		s.running[c[i]] = op
	}
	s.active++
	return op, nil
}

func (s *mergeScheduler) launch(op *mergeOperation) {
	enterrors.GoWrapper(func() { s.run(op) }, s.logger)
}

func (s *mergeScheduler) run(op *mergeOperation) {
	var meta segment.Meta
	err := s.sem.Acquire(op.ctx, 1)
	if err == nil {
		finished := s.w.metrics.MergeStarted()
		meta, err = s.w.merge(op)
		s.sem.Release(1)
		finished(mergeStatus(err))
	}

	s.finish(op, err)
	op.done <- mergeResult{meta: meta, err: err}
	op.cancel()

	if err == nil {
		// the merge output may complete a new level
		s.consider()
		s.w.collectGarbage()
	}
	s.release()
}

func mergeStatus(err error) string {
	switch {
	case err == nil:
		return monitoring.StatusSuccess
	case errors.Is(err, context.Canceled):
		return monitoring.StatusCancelled
	default:
		return monitoring.StatusFailed
	}
}

// finish records the outcome of op and drops its input references.
func (s *mergeScheduler) finish(op *mergeOperation, err error) {
	s.mu.Lock()
	for _, id := range op.candidate {
		delete(s.running, id)
	}
	key := op.candidate.key()
	switch {
	case err == nil:
		delete(s.failures, key)
	case errors.Is(err, context.Canceled), errors.Is(err, errMergeInputGone):
	default:
		f, ok := s.failures[key]
		if !ok {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = s.w.config.MergeRetryInterval
			b.MaxInterval = maxMergeRetryInterval
			b.MaxElapsedTime = 0
			f = &mergeFailure{backoff: b}
			s.failures[key] = f
		}
		f.attempts++
		wait := f.backoff.NextBackOff()
		f.retryAt = time.Now().Add(wait)
		s.logger.WithField("segments", len(op.candidate)).
			WithField("attempts", f.attempts).
			WithField("retry_in", wait).
			WithError(err).
			Error("merge failed, inputs are untouched")
	}
	s.mu.Unlock()

	for _, r := range op.readers {
		if err := r.DecRef(); err != nil {
			s.logger.WithField("segment", r.ID().Short()).
				WithError(err).
				Warn("failed to release merge input")
		}
	}
	close(op.finished)
}

// supersede records that the inputs of a committed merge were replaced by
// out, or dropped if out was not kept.
func (s *mergeScheduler) supersede(inputs MergeCandidate, out segment.ID, kept bool) {
	if !kept {
		out = segment.ID{}
	}
	for _, id := range inputs {
		s.superseded.Add(id, out)
	}
}

// resolve replaces the ids of c which were merged away by the segments
// which hold their docs now. Ids whose docs were dropped are removed, so
// are duplicates introduced by the replacement. It reports whether any id
// was replaced.
func (s *mergeScheduler) resolve(c MergeCandidate) (MergeCandidate, bool) {
	out := make(MergeCandidate, 0, len(c))
	// seen tells for every id taken whether it is a replacement
	seen := make(map[segment.ID]bool, len(c))
	changed := false
	for _, id := range c {
		replaced := false
		for {
			next, ok := s.superseded.Peek(id)
			if !ok || next == id {
				break
			}
			id, replaced = next, true
		}
		if replaced {
			changed = true
			if id == (segment.ID{}) {
				continue
			}
		}
		if byReplace, dup := seen[id]; dup && (replaced || byReplace) {
			continue
		}
		seen[id] = replaced
		out = append(out, id)
	}
	return out, changed
}

// busy returns a running merge holding one of the ids of c.
func (s *mergeScheduler) busy(c MergeCandidate) *mergeOperation {
	for _, id := range c {
		if op, ok := s.running[id]; ok {
			return op
		}
	}
	return nil
}

func (s *mergeScheduler) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active--
	if s.active == 0 {
		for _, c := range s.waiters {
			close(c)
		}
		s.waiters = nil
	}
}

// wait blocks until no merge is running.
func (s *mergeScheduler) wait(ctx context.Context) error {
	s.mu.Lock()
	if s.active == 0 {
		s.mu.Unlock()
		return nil
	}
	c := make(chan struct{})
	s.waiters = append(s.waiters, c)
	s.mu.Unlock()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return enterrors.NewDeadlineError(ctx.Err())
	}
}

// mergeNow merges c right away, regardless of the merge policy, and waits
// for the result. Running merges of any of the segments are waited for
// first, segments they merged away are replaced by their output.
// Cancelling ctx aborts the merge.
func (s *mergeScheduler) mergeNow(ctx context.Context, c MergeCandidate) (segment.Meta, error) {
	if len(c) == 0 {
		return segment.Meta{}, errors.New("no segments to merge")
	}

	var (
		op       *mergeOperation
		replaced bool
	)
	for op == nil {
		s.w.metaLock.Lock()
		s.mu.Lock()
		resolved, changed := s.resolve(c)
		replaced = replaced || changed
		running := s.busy(resolved)
		var (
			meta segment.Meta
			done bool
			err  error
		)
		switch {
		case running != nil:
		case len(resolved) == 0:
			err = errors.New("every segment to merge was dropped")
		case replaced && len(resolved) == 1:
			// a finished merge did the work already
			if r, ok := s.w.readers[resolved[0]]; ok {
				meta, done = r.Meta(), true
			} else {
				err = errors.Errorf("segment %s is not committed", resolved[0])
			}
		default:
			op, err = s.prepare(s.w.ctx, resolved)
		}
		s.mu.Unlock()
		s.w.metaLock.Unlock()

		if err != nil || done {
			return meta, err
		}
		if running != nil {
			s.logger.WithField("segments", len(running.candidate)).
				Debug("waiting for running merge before explicit merge")
			select {
			case <-running.finished:
			case <-ctx.Done():
				return segment.Meta{}, enterrors.NewDeadlineError(ctx.Err())
			}
		}
		c = resolved
	}

	stop := context.AfterFunc(ctx, op.cancel)
	defer stop()

	s.launch(op)
	res := <-op.done
	if res.err != nil && ctx.Err() != nil {
		return segment.Meta{}, enterrors.NewDeadlineError(res.err)
	}
	return res.meta, res.err
}

// merge writes the merged segment of op and commits it in place of the
// inputs.
func (w *IndexWriter) merge(op *mergeOperation) (segment.Meta, error) {
	merger := segment.NewMerger(w.dir, w.schema, op.readers, w.config.Segment, w.logger)

	w.segLock.Lock()
	w.inFlight[merger.ID()] = struct{}{}
	w.segLock.Unlock()
	defer func() {
		w.segLock.Lock()
		delete(w.inFlight, merger.ID())
		w.segLock.Unlock()
	}()

	start := time.Now()
	out, err := merger.Merge(op.ctx)
	if err != nil {
		return segment.Meta{}, err
	}
	out, err = w.endMerge(op, merger, out)
	if err != nil {
		return segment.Meta{}, err
	}

	w.logger.WithField("action", "merge").
		WithField("segments", len(op.candidate)).
		WithField("segment", out.ID.Short()).
		WithField("num_docs", out.NumDocs()).
		WithField("took", time.Since(start)).
		Info("merged segments")
	return out, nil
}

// endMerge replaces the inputs of op by out in the committed meta. Deletes
// committed while the merge ran are carried over to out.
func (w *IndexWriter) endMerge(op *mergeOperation, merger *segment.Merger, out segment.Meta) (segment.Meta, error) {
	w.metaLock.Lock()
	defer w.metaLock.Unlock()

	inputs := make(map[segment.ID]struct{}, len(op.candidate))
	for _, id := range op.candidate {
		if _, ok := w.readers[id]; !ok {
			return segment.Meta{}, errMergeInputGone
		}
		inputs[id] = struct{}{}
	}

	deleted := sroar.NewBitmap()
	for i, start := range op.readers {
		current := w.readers[start.ID()]
		if current.Meta().DeleteOpstamp() == start.Meta().DeleteOpstamp() {
			continue
		}
		newly := current.Deletes().Clone().AndNot(start.Deletes())
		for _, doc := range newly.ToArray() {
			if id, ok := merger.NewDocID(i, uint32(doc)); ok {
				deleted.Set(uint64(id))
			}
		}
	}

	keep := out.MaxDoc > 0 && deleted.GetCardinality() < int(out.MaxDoc)
	var reader *segment.Reader
	if keep {
		var err error
		if deleted.GetCardinality() > 0 {
			out, err = segment.WriteDeletes(w.dir, out, deleted, w.committed.Opstamp)
			if err != nil {
				return segment.Meta{}, errors.Wrap(err, "carry deletes over to merged segment")
			}
		}
		reader, err = segment.Open(w.dir, w.schema, out, w.config.Reader)
		if err != nil {
			return segment.Meta{}, errors.Wrap(err, "open merged segment")
		}
	}

	segments := make([]segment.Meta, 0, len(w.committed.Segments))
	placed := false
	for _, m := range w.committed.Segments {
		if _, ok := inputs[m.ID]; ok {
			if keep && !placed {
				segments = append(segments, out)
				placed = true
			}
			continue
		}
		segments = append(segments, m)
	}

	meta := w.committed.withSegments(segments)
	if err := WriteMeta(w.dir, meta); err != nil {
		if reader != nil {
			reader.DecRef()
		}
		return segment.Meta{}, errors.Wrap(err, "commit merged segment")
	}

	w.committed = meta
	for id := range inputs {
		w.readers[id].DecRef()
		delete(w.readers, id)
	}
	if keep {
		w.readers[out.ID] = reader
	}
	w.merges.supersede(op.candidate, out.ID, keep)
	w.updateLiveSegments()
	return out, nil
}
