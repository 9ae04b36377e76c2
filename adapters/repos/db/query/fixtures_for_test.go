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

package query

import (
	"context"
	"sort"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/sroar"
	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/analysis"
	"github.com/weaviate/textindex/entities/document"
	"github.com/weaviate/textindex/entities/schema"
)

type fixture struct {
	schema     *schema.Schema
	tokenizers *analysis.Manager
	dir        directory.Directory
	body       schema.FieldID
	tag        schema.FieldID
	price      schema.FieldID
	id         schema.FieldID
}

type testDoc struct {
	body  string
	tag   string
	price uint64
}

func newFixture(t *testing.T) *fixture {
	logger, _ := test.NewNullLogger()
	b := schema.NewBuilder()
	f := &fixture{
		body:  b.AddTextField("body", schema.TextOptions.WithStored()),
		tag:   b.AddTextField("tag", schema.StringOptions),
		price: b.AddU64Field("price", schema.NumericOptions.WithFast()),
		id:    b.AddU64Field("id", schema.NumericOptions.WithFast().WithStored()),
	}
	s, err := b.Build()
	require.NoError(t, err)
	f.schema = s
	f.tokenizers = analysis.NewManager()
	f.dir = directory.NewRAMDirectory(logger)
	return f
}

// build writes one segment holding docs, the id of a doc is its position.
func (f *fixture) build(t *testing.T, docs ...testDoc) *segment.Reader {
	logger, _ := test.NewNullLogger()
	w, err := segment.NewWriter(f.dir, f.schema, f.tokenizers, segment.WriterOptions{}, logger)
	require.NoError(t, err)
	for i, d := range docs {
		doc := document.New().AddText(f.body, d.body).Add(f.id, document.U64(uint64(i)))
		if d.tag != "" {
			doc.AddText(f.tag, d.tag)
		}
		doc.Add(f.price, document.U64(d.price))
		_, err := w.AddDocument(uint64(i+1), doc)
		require.NoError(t, err)
	}
	meta, err := w.Finalize(context.Background())
	require.NoError(t, err)

	r, err := segment.Open(f.dir, f.schema, meta, segment.ReaderOptions{CacheBlocks: 4})
	require.NoError(t, err)
	t.Cleanup(func() { r.DecRef() })
	return r
}

// deleteDocs returns a reader of r with docs deleted.
func (f *fixture) deleteDocs(t *testing.T, r *segment.Reader, docs ...uint32) *segment.Reader {
	bm := sroar.NewBitmap()
	for _, d := range docs {
		bm.Set(uint64(d))
	}
	meta, err := segment.WriteDeletes(f.dir, r.Meta(), bm, 100)
	require.NoError(t, err)
	out, err := r.WithDeletes(f.dir, meta)
	require.NoError(t, err)
	t.Cleanup(func() { out.DecRef() })
	return out
}

func (f *fixture) text(s string) schema.Term {
	return schema.TermFromText(f.body, s)
}

type hit struct {
	doc   uint32
	score float32
}

// run returns the hits of q in r, ordered by doc.
func run(t *testing.T, r *segment.Reader, q *Query, opts Options) []hit {
	w, err := NewWeight(q, SegmentStatistics(r), opts)
	require.NoError(t, err)
	s, err := w.Scorer(r, 1)
	require.NoError(t, err)
	var hits []hit
	err = ForEach(context.Background(), s, r, func(doc uint32, score float32) {
		hits = append(hits, hit{doc: doc, score: score})
	})
	require.NoError(t, err)
	return hits
}

func docsOf(hits []hit) []uint32 {
	out := make([]uint32, len(hits))
	for i, h := range hits {
		out[i] = h.doc
	}
	return out
}

func scoreOf(hits []hit, doc uint32) float32 {
	for _, h := range hits {
		if h.doc == doc {
			return h.score
		}
	}
	return -1
}

// topScores returns the k best scores, best first.
func topScores(hits []hit, k int) []float32 {
	scores := make([]float32, len(hits))
	for i, h := range hits {
		scores[i] = h.score
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i] > scores[j] })
	if len(scores) > k {
		scores = scores[:k]
	}
	return scores
}

var animals = []testDoc{
	{body: "the quick brown fox jumps over the lazy dog", tag: "b", price: 10},
	{body: "the quick fox", tag: "a", price: 20},
	{body: "brown dog sleeps", tag: "c", price: 30},
	{body: "fox fox fox", tag: "d", price: 40},
	{body: "lazy brown fox", tag: "b", price: 50},
}
