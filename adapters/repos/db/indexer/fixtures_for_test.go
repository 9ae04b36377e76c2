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
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/analysis"
	"github.com/weaviate/textindex/entities/document"
	"github.com/weaviate/textindex/entities/schema"
)

type fixture struct {
	schema     *schema.Schema
	tokenizers *analysis.Manager
	faulty     *directory.FaultyDirectory
	dir        *directory.ManagedDirectory
	body       schema.FieldID
	id         schema.FieldID
}

func newFixture(t *testing.T) *fixture {
	logger, _ := test.NewNullLogger()
	b := schema.NewBuilder()
	f := &fixture{
		body: b.AddTextField("body", schema.TextOptions.WithStored()),
		id:   b.AddU64Field("id", schema.NumericOptions.WithFast().WithStored()),
	}
	s, err := b.Build()
	require.NoError(t, err)
	f.schema = s
	f.tokenizers = analysis.NewManager()
	f.faulty = directory.NewFaultyDirectory(directory.NewRAMDirectory(logger))
	f.dir, err = directory.NewManagedDirectory(f.faulty, true, logger)
	require.NoError(t, err)
	require.NoError(t, WriteMeta(f.dir, IndexMeta{Schema: s}))
	return f
}

func testConfig() Config {
	c := DefaultConfig()
	c.NumWorkers = 1
	c.MemoryBudget = 8 * 1024 * 1024
	c.MergeRetryInterval = 10 * time.Millisecond
	return c
}

// open starts a writer which never merges on its own.
func (f *fixture) open(t *testing.T, opts ...Option) *IndexWriter {
	return f.openConfig(t, testConfig(), opts...)
}

func (f *fixture) openConfig(t *testing.T, config Config, opts ...Option) *IndexWriter {
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithMergePolicy(NoMergePolicy{})}, opts...)
	w, err := Open(f.dir, f.tokenizers, config, logger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close(context.Background()) })
	return w
}

func (f *fixture) doc(id uint64, body string) *document.Document {
	return document.New().AddText(f.body, body).Add(f.id, document.U64(id))
}

func (f *fixture) add(t *testing.T, w *IndexWriter, id uint64, body string) uint64 {
	opstamp, err := w.AddDocument(context.Background(), f.doc(id, body))
	require.NoError(t, err)
	return opstamp
}

func (f *fixture) commit(t *testing.T, w *IndexWriter) uint64 {
	opstamp, err := w.Commit(context.Background())
	require.NoError(t, err)
	return opstamp
}

func (f *fixture) word(w string) schema.Term {
	return schema.TermFromText(f.body, w)
}

// search returns the sorted ids of the committed alive docs holding term.
func (f *fixture) search(t *testing.T, w *IndexWriter, term schema.Term) []uint64 {
	ids := []uint64{}
	for _, m := range w.CommittedMeta().Segments {
		r, err := segment.Open(f.dir, f.schema, m, segment.ReaderOptions{})
		require.NoError(t, err)
		col, ok := r.FastFields().U64(f.id)
		require.True(t, ok)

		p, ok, err := r.Postings(term, schema.Basic)
		require.NoError(t, err)
		if ok {
			for doc := p.Doc(); doc != postings.Terminated; doc = p.Advance() {
				if r.IsDeleted(doc) {
					continue
				}
				id, _ := col.Get(doc)
				ids = append(ids, id)
			}
			require.NoError(t, p.Err())
		}
		require.NoError(t, r.DecRef())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *fixture) segmentIDs(w *IndexWriter) []segment.ID {
	var ids []segment.ID
	for _, m := range w.CommittedMeta().Segments {
		ids = append(ids, m.ID)
	}
	return ids
}

func (f *fixture) filesOf(id segment.ID) []string {
	var out []string
	for _, name := range f.dir.Managed() {
		if strings.HasPrefix(name, id.String()) {
			out = append(out, name)
		}
	}
	return out
}
