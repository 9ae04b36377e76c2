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
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/indexer"
	"github.com/weaviate/textindex/adapters/repos/db/query"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/usecases/monitoring"
)

type ReloadPolicy uint8

const (
	// Manual reloads only when Reload is called.
	Manual ReloadPolicy = iota
	// OnCommit reloads whenever a commit replaces the meta file.
	OnCommit
)

func (p ReloadPolicy) String() string {
	if p == OnCommit {
		return "on_commit"
	}
	return "manual"
}

func (p ReloadPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *ReloadPolicy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "manual":
		*p = Manual
	case "on_commit":
		*p = OnCommit
	default:
		return errors.Errorf("unknown reload policy %q", text)
	}
	return nil
}

type Options struct {
	Policy ReloadPolicy
	// Concurrency bounds the segments searched in parallel by one search.
	Concurrency int
	Reader      segment.ReaderOptions
	BM25        query.BM25
}

func DefaultOptions() Options {
	return Options{
		Policy:      OnCommit,
		Concurrency: runtime.GOMAXPROCS(0),
		BM25:        query.DefaultBM25(),
	}
}

// generation is one committed state of the index with its open segments.
type generation struct {
	meta    indexer.IndexMeta
	readers []*segment.Reader
}

// IndexReader hands out searchers over the last loaded commit of an index.
// Segment readers are shared between generations as long as the segment
// and its deletes do not change.
type IndexReader struct {
	dir     directory.Directory
	opts    Options
	logger  logrus.FieldLogger
	metrics *monitoring.PrometheusMetrics

	// reloadLock serializes reloads
	reloadLock sync.Mutex

	// mu guards current, live and closed
	mu      sync.Mutex
	current *generation
	live    map[*Searcher]struct{}
	closed  bool

	watch directory.WatchHandle
}

// Open loads the last commit of dir.
func Open(dir directory.Directory, opts Options, logger logrus.FieldLogger,
	metrics *monitoring.PrometheusMetrics,
) (*IndexReader, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BM25 == (query.BM25{}) {
		opts.BM25 = query.DefaultBM25()
	}
	r := &IndexReader{
		dir:     dir,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		live:    map[*Searcher]struct{}{},
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}

	if opts.Policy == OnCommit {
		watch, err := dir.Watch(indexer.MetaFileName, r.reloadOnCommit)
		if err != nil {
			r.Close()
			return nil, errors.Wrap(err, "watch index meta")
		}
		r.watch = watch
	}
	return r, nil
}

func (r *IndexReader) reloadOnCommit() {
	if err := r.Reload(); err != nil && !errors.Is(err, enterrors.ErrClosed) {
		r.logger.WithField("action", "reader_reload").WithError(err).
			Error("reload after commit failed")
	}
}

// Reload loads the last commit. Searchers acquired before keep seeing the
// previous one.
func (r *IndexReader) Reload() error {
	r.reloadLock.Lock()
	defer r.reloadLock.Unlock()

	meta, err := indexer.ReadMeta(r.dir)
	if err != nil {
		return errors.Wrap(err, "read index meta")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return enterrors.NewClosedError(errors.New("index reader closed"))
	}
	prev := r.current
	r.mu.Unlock()

	if prev != nil && prev.meta.Opstamp == meta.Opstamp && sameSegments(prev.meta, meta) {
		return nil
	}

	next, reused, err := r.open(prev, meta)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		releaseAll(next.readers)
		return enterrors.NewClosedError(errors.New("index reader closed"))
	}
	r.current = next
	r.mu.Unlock()

	if prev != nil {
		if err := releaseAll(prev.readers); err != nil {
			r.logger.WithField("action", "reader_reload").WithError(err).
				Warn("release previous generation")
		}
	}
	r.metrics.ReaderReloaded()
	r.logger.WithField("action", "reader_reload").
		WithField("opstamp", meta.Opstamp).
		WithField("segments", len(next.readers)).
		WithField("reused", reused).
		Debug("loaded commit")
	return nil
}

// open builds the generation of meta, reusing the readers of prev.
func (r *IndexReader) open(prev *generation, meta indexer.IndexMeta) (*generation, int, error) {
	byID := map[segment.ID]*segment.Reader{}
	if prev != nil {
		for _, sr := range prev.readers {
			byID[sr.ID()] = sr
		}
	}

	next := &generation{meta: meta, readers: make([]*segment.Reader, 0, len(meta.Segments))}
	reused := 0
	for _, sm := range meta.Segments {
		var (
			sr  *segment.Reader
			err error
		)
		old, ok := byID[sm.ID]
		switch {
		case ok && old.Meta().DeleteOpstamp() == sm.DeleteOpstamp():
			old.IncRef()
			sr = old
			reused++
		case ok:
			sr, err = old.WithDeletes(r.dir, sm)
		default:
			sr, err = segment.Open(r.dir, meta.Schema, sm, r.opts.Reader)
		}
		if err != nil {
			releaseAll(next.readers)
			return nil, 0, errors.Wrapf(err, "open segment %s", sm.ID)
		}
		next.readers = append(next.readers, sr)
	}
	return next, reused, nil
}

func sameSegments(a, b indexer.IndexMeta) bool {
	if len(a.Segments) != len(b.Segments) {
		return false
	}
	for i := range a.Segments {
		if a.Segments[i].ID != b.Segments[i].ID ||
			a.Segments[i].DeleteOpstamp() != b.Segments[i].DeleteOpstamp() {
			return false
		}
	}
	return true
}

func releaseAll(readers []*segment.Reader) error {
	var errs *multierror.Error
	for _, sr := range readers {
		if err := sr.DecRef(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Searcher pins the current generation. It must be released.
func (r *IndexReader) Searcher() (*Searcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, enterrors.NewClosedError(errors.New("index reader closed"))
	}
	for _, sr := range r.current.readers {
		sr.IncRef()
	}
	s := &Searcher{
		reader:   r,
		meta:     r.current.meta,
		segments: append([]*segment.Reader(nil), r.current.readers...),
	}
	r.live[s] = struct{}{}
	return s, nil
}

func (r *IndexReader) release(s *Searcher) error {
	r.mu.Lock()
	delete(r.live, s)
	r.mu.Unlock()
	return releaseAll(s.segments)
}

// PinnedFiles lists the files of the current generation and of every
// live searcher. They must survive garbage collection.
func (r *IndexReader) PinnedFiles() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	files := map[string]struct{}{}
	add := func(meta indexer.IndexMeta) {
		for f := range meta.Files() {
			files[f] = struct{}{}
		}
	}
	if r.current != nil && !r.closed {
		add(r.current.meta)
	}
	for s := range r.live {
		add(s.meta)
	}
	return files
}

// Opstamp is the opstamp of the loaded commit.
func (r *IndexReader) Opstamp() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0
	}
	return r.current.meta.Opstamp
}

// Close stops reloading and drops the current generation. Live searchers
// stay usable until released.
func (r *IndexReader) Close() error {
	if r.watch != nil {
		r.watch.Unwatch()
	}
	r.reloadLock.Lock()
	defer r.reloadLock.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	current := r.current
	r.current = nil
	r.mu.Unlock()

	if current == nil {
		return nil
	}
	return releaseAll(current.readers)
}
