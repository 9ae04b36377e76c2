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

// Package db opens text indexes. An Index ties a directory to its schema
// and hands out the single writer and any number of readers.
package db

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/indexer"
	"github.com/weaviate/textindex/adapters/repos/db/searcher"
	"github.com/weaviate/textindex/entities/analysis"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
	"github.com/weaviate/textindex/usecases/config"
	"github.com/weaviate/textindex/usecases/monitoring"
)

type Index struct {
	dir        *directory.ManagedDirectory
	schema     *schema.Schema
	tokenizers *analysis.Manager
	config     config.Config
	logger     logrus.FieldLogger
	metrics    *monitoring.PrometheusMetrics

	mu      sync.Mutex
	writers []*indexer.IndexWriter
	readers []*searcher.IndexReader
	closed  bool
}

// Create initializes an empty index with schema s in dir. It fails if dir
// already holds an index.
func Create(dir directory.Directory, s *schema.Schema, cfg config.Config,
	logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) (*Index, error) {
	if s == nil {
		return nil, enterrors.NewSchemaError("create index without schema")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	managed, err := directory.NewManagedDirectory(dir, cfg.VerifyChecksums, logger)
	if err != nil {
		return nil, errors.Wrap(err, "load managed files")
	}
	exists, err := indexer.MetaExists(managed)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.New("directory already holds an index")
	}
	if err := indexer.WriteMeta(managed, indexer.IndexMeta{Schema: s}); err != nil {
		return nil, errors.Wrap(err, "write initial index meta")
	}
	logger.WithField("action", "create_index").
		WithField("fields", s.Len()).
		Info("created index")
	return newIndex(managed, s, cfg, logger, metrics), nil
}

// Open opens the index of dir with the schema of its last commit.
func Open(dir directory.Directory, cfg config.Config,
	logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	managed, err := directory.NewManagedDirectory(dir, cfg.VerifyChecksums, logger)
	if err != nil {
		return nil, errors.Wrap(err, "load managed files")
	}
	meta, err := indexer.ReadMeta(managed)
	if err != nil {
		return nil, errors.Wrap(err, "read index meta")
	}
	return newIndex(managed, meta.Schema, cfg, logger, metrics), nil
}

// OpenOrCreate opens the index of dir, creating it with schema s if there
// is none. An existing index must have been created with the same fields.
func OpenOrCreate(dir directory.Directory, s *schema.Schema, cfg config.Config,
	logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) (*Index, error) {
	exists, err := indexer.MetaExists(dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return Create(dir, s, cfg, logger, metrics)
	}
	idx, err := Open(dir, cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	if s != nil && !sameFields(s, idx.schema) {
		return nil, enterrors.NewSchemaError("index holds a different schema")
	}
	return idx, nil
}

// OpenFS opens or creates the index in the filesystem directory path.
func OpenFS(path string, s *schema.Schema, cfg config.Config,
	logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) (*Index, error) {
	dir, err := directory.OpenMMapDirectory(path, cfg.Reader.WatchInterval, logger)
	if err != nil {
		return nil, err
	}
	var idx *Index
	if s == nil {
		idx, err = Open(dir, cfg, logger, metrics)
	} else {
		idx, err = OpenOrCreate(dir, s, cfg, logger, metrics)
	}
	if err != nil {
		dir.Close()
		return nil, err
	}
	return idx, nil
}

// NewInRAM creates an index living in memory only.
func NewInRAM(s *schema.Schema, cfg config.Config,
	logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) (*Index, error) {
	return Create(directory.NewRAMDirectory(logger), s, cfg, logger, metrics)
}

func newIndex(dir *directory.ManagedDirectory, s *schema.Schema, cfg config.Config,
	logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) *Index {
	return &Index{
		dir:        dir,
		schema:     s,
		tokenizers: analysis.NewManager(),
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

func sameFields(a, b *schema.Schema) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, f := range a.Fields() {
		g, ok := b.Field(f.ID)
		if !ok || f != g {
			return false
		}
	}
	return true
}

func (i *Index) Schema() *schema.Schema {
	return i.schema
}

// Tokenizers is the registry used to analyze text fields. Custom
// tokenizers must be registered before the first writer is opened.
func (i *Index) Tokenizers() *analysis.Manager {
	return i.tokenizers
}

func (i *Index) Directory() *directory.ManagedDirectory {
	return i.dir
}

// Writer opens the writer of the index. Only one writer can be open at a
// time, also across processes, a second one fails with a LockError.
func (i *Index) Writer() (*indexer.IndexWriter, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, enterrors.NewClosedError(errors.New("index closed"))
	}
	opts := []indexer.Option{
		indexer.WithMergePolicy(mergePolicy(i.config)),
		indexer.WithMetrics(i.metrics),
		indexer.WithProtectedFiles(i.pinnedFiles),
	}
	w, err := indexer.Open(i.dir, i.tokenizers, writerConfig(i.config, i.metrics), i.logger, opts...)
	if err != nil {
		return nil, err
	}
	i.writers = append(i.writers, w)
	return w, nil
}

// Reader opens a reader over the last commit. With policy searcher.OnCommit
// it follows new commits on its own.
func (i *Index) Reader(policy searcher.ReloadPolicy) (*searcher.IndexReader, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, enterrors.NewClosedError(errors.New("index closed"))
	}
	opts := readerOptions(i.config, i.metrics)
	opts.Policy = policy
	r, err := searcher.Open(i.dir, opts, i.logger, i.metrics)
	if err != nil {
		return nil, err
	}
	i.readers = append(i.readers, r)
	return r, nil
}

// pinnedFiles are the files the readers of the index still need.
func (i *Index) pinnedFiles() map[string]struct{} {
	i.mu.Lock()
	readers := append([]*searcher.IndexReader(nil), i.readers...)
	i.mu.Unlock()

	files := map[string]struct{}{}
	for _, r := range readers {
		for f := range r.PinnedFiles() {
			files[f] = struct{}{}
		}
	}
	return files
}

// Close closes the writers and readers opened through the index, then the
// directory. Uncommitted changes are lost.
func (i *Index) Close(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	writers, readers := i.writers, i.readers
	i.writers, i.readers = nil, nil
	i.mu.Unlock()

	start := time.Now()
	var errs *multierror.Error
	for _, w := range writers {
		if err := w.Close(ctx); err != nil && !errors.Is(err, enterrors.ErrClosed) {
			errs = multierror.Append(errs, errors.Wrap(err, "close writer"))
		}
	}
	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, "close reader"))
		}
	}
	if err := i.dir.Close(); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "close directory"))
	}
	i.logger.WithField("action", "close_index").
		WithField("took", time.Since(start)).
		Debug("closed index")
	return errs.ErrorOrNil()
}

// DefaultReader opens a reader with the configured reload policy.
func (i *Index) DefaultReader() (*searcher.IndexReader, error) {
	return i.Reader(reloadPolicy(i.config))
}
