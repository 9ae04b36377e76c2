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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

func TestTermQuery(t *testing.T) {
	f := newFixture(t)
	r := f.build(t, animals...)

	hits := run(t, r, NewTermQuery(f.text("fox")), DefaultOptions())
	assert.Equal(t, []uint32{0, 1, 3, 4}, docsOf(hits))

	// more occurrences and shorter fields score higher
	assert.Greater(t, scoreOf(hits, 3), scoreOf(hits, 1))
	assert.InDelta(t, scoreOf(hits, 1), scoreOf(hits, 4), 1e-6)
	assert.Greater(t, scoreOf(hits, 4), scoreOf(hits, 0))

	t.Run("missing term", func(t *testing.T) {
		assert.Empty(t, run(t, r, NewTermQuery(f.text("cat")), DefaultOptions()))
	})

	t.Run("numeric term", func(t *testing.T) {
		hits := run(t, r, NewTermQuery(schema.TermFromU64(f.price, 30)), DefaultOptions())
		assert.Equal(t, []uint32{2}, docsOf(hits))
	})

	t.Run("without scoring", func(t *testing.T) {
		hits := run(t, r, NewTermQuery(f.text("fox")), Options{})
		for _, h := range hits {
			assert.Equal(t, float32(1), h.score)
		}
	})

	t.Run("deleted docs are skipped", func(t *testing.T) {
		deleted := f.deleteDocs(t, r, 1, 3)
		hits := run(t, deleted, NewTermQuery(f.text("fox")), DefaultOptions())
		assert.Equal(t, []uint32{0, 4}, docsOf(hits))
	})
}

func TestPhraseQuery(t *testing.T) {
	f := newFixture(t)
	r := f.build(t, animals...)

	tests := []struct {
		name   string
		phrase []string
		slop   uint32
		want   []uint32
	}{
		{name: "adjacent", phrase: []string{"brown", "fox"}, want: []uint32{0, 4}},
		{name: "exact", phrase: []string{"quick", "fox"}, want: []uint32{1}},
		{name: "slop", phrase: []string{"quick", "fox"}, slop: 1, want: []uint32{0, 1}},
		{name: "order matters", phrase: []string{"fox", "brown"}, slop: 3},
		{name: "three terms", phrase: []string{"the", "lazy", "dog"}, want: []uint32{0}},
		{name: "single term", phrase: []string{"dog"}, want: []uint32{0, 2}},
		{name: "missing term", phrase: []string{"brown", "cat"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			terms := make([]schema.Term, len(test.phrase))
			for i, w := range test.phrase {
				terms[i] = f.text(w)
			}
			hits := run(t, r, NewPhraseQuery(terms, test.slop), DefaultOptions())
			if test.want == nil {
				assert.Empty(t, hits)
				return
			}
			assert.Equal(t, test.want, docsOf(hits))
			for _, h := range hits {
				assert.Greater(t, h.score, float32(0))
			}
		})
	}
}

func TestBooleanQueries(t *testing.T) {
	f := newFixture(t)
	r := f.build(t, animals...)
	term := func(w string) *Query { return NewTermQuery(f.text(w)) }

	tests := []struct {
		name  string
		query *Query
		want  []uint32
	}{
		{name: "and", query: NewAndQuery(term("fox"), term("brown")), want: []uint32{0, 4}},
		{name: "and with missing", query: NewAndQuery(term("fox"), term("cat"))},
		{name: "or", query: NewOrQuery(term("dog"), term("lazy")), want: []uint32{0, 2, 4}},
		{name: "or with missing", query: NewOrQuery(term("cat"), term("sleeps")), want: []uint32{2}},
		{name: "and not", query: NewAndNotQuery(term("fox"), term("lazy")), want: []uint32{1, 3}},
		{name: "and not missing", query: NewAndNotQuery(term("dog"), term("cat")), want: []uint32{0, 2}},
		{
			name:  "nested",
			query: NewAndQuery(NewOrQuery(term("dog"), term("quick")), NewAndNotQuery(term("the"), term("jumps"))),
			want:  []uint32{1},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			hits := run(t, r, test.query, DefaultOptions())
			if test.want == nil {
				assert.Empty(t, hits)
				return
			}
			assert.Equal(t, test.want, docsOf(hits))
		})
	}

	t.Run("scores add up", func(t *testing.T) {
		fox := run(t, r, term("fox"), DefaultOptions())
		brown := run(t, r, term("brown"), DefaultOptions())
		or := run(t, r, NewOrQuery(term("fox"), term("brown")), DefaultOptions())
		assert.InDelta(t, scoreOf(fox, 0)+scoreOf(brown, 0), scoreOf(or, 0), 1e-5)
		assert.InDelta(t, scoreOf(fox, 1), scoreOf(or, 1), 1e-5)

		andNot := run(t, r, NewAndNotQuery(term("fox"), term("brown")), DefaultOptions())
		assert.InDelta(t, scoreOf(fox, 3), scoreOf(andNot, 3), 1e-5)
	})
}

func TestRangeQuery(t *testing.T) {
	f := newFixture(t)
	r := f.build(t, animals...)
	price := func(v uint64) schema.Term { return schema.TermFromU64(f.price, v) }
	tag := func(s string) schema.Term { return schema.TermFromText(f.tag, s) }

	tests := []struct {
		name  string
		query *Query
		want  []uint32
	}{
		{name: "fast half open", query: NewRangeQuery(f.price, Inclusive(price(20)), Exclusive(price(40))), want: []uint32{1, 2}},
		{name: "fast inclusive", query: NewRangeQuery(f.price, Inclusive(price(20)), Inclusive(price(40))), want: []uint32{1, 2, 3}},
		{name: "fast open lower", query: NewRangeQuery(f.price, Unbounded(), Inclusive(price(30))), want: []uint32{0, 1, 2}},
		{name: "fast open upper", query: NewRangeQuery(f.price, Exclusive(price(30)), Unbounded()), want: []uint32{3, 4}},
		{name: "fast out of range", query: NewRangeQuery(f.price, Inclusive(price(60)), Unbounded())},
		{name: "fast empty", query: NewRangeQuery(f.price, Exclusive(price(20)), Exclusive(price(21)))},
		{name: "terms inclusive", query: NewRangeQuery(f.tag, Inclusive(tag("b")), Inclusive(tag("c"))), want: []uint32{0, 2, 4}},
		{name: "terms exclusive lower", query: NewRangeQuery(f.tag, Exclusive(tag("b")), Unbounded()), want: []uint32{2, 3}},
		{name: "terms open", query: NewRangeQuery(f.tag, Unbounded(), Unbounded()), want: []uint32{0, 1, 2, 3, 4}},
		{name: "terms empty", query: NewRangeQuery(f.tag, Inclusive(tag("x")), Unbounded())},
		{name: "second fast field", query: NewRangeQuery(f.id, Inclusive(schema.TermFromU64(f.id, 3)), Unbounded()), want: []uint32{3, 4}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			hits := run(t, r, test.query, DefaultOptions())
			if test.want == nil {
				assert.Empty(t, hits)
				return
			}
			assert.Equal(t, test.want, docsOf(hits))
			for _, h := range hits {
				assert.Equal(t, float32(1), h.score)
			}
		})
	}
}

func TestScoreModifiers(t *testing.T) {
	f := newFixture(t)
	r := f.build(t, animals...)
	fox := NewTermQuery(f.text("fox"))
	plain := run(t, r, fox, DefaultOptions())

	t.Run("boost", func(t *testing.T) {
		hits := run(t, r, NewBoostQuery(fox, 2), DefaultOptions())
		require.Equal(t, docsOf(plain), docsOf(hits))
		for i := range hits {
			assert.InDelta(t, 2*plain[i].score, hits[i].score, 1e-5)
		}
	})

	t.Run("const score", func(t *testing.T) {
		hits := run(t, r, NewBoostQuery(NewConstScoreQuery(fox, 3), 2), DefaultOptions())
		require.Equal(t, docsOf(plain), docsOf(hits))
		for _, h := range hits {
			assert.Equal(t, float32(6), h.score)
		}
	})

	t.Run("all", func(t *testing.T) {
		deleted := f.deleteDocs(t, r, 2)
		hits := run(t, deleted, NewAllQuery(), DefaultOptions())
		assert.Equal(t, []uint32{0, 1, 3, 4}, docsOf(hits))
	})
}

func TestNewWeightSchemaErrors(t *testing.T) {
	f := newFixture(t)
	b := schema.NewBuilder()
	stored := b.AddTextField("stored", schema.FieldOptions{Stored: true})
	other, err := b.Build()
	require.NoError(t, err)
	r := f.build(t, animals...)
	stats := SegmentStatistics(r)

	tests := []struct {
		name  string
		query *Query
	}{
		{name: "unknown field", query: NewTermQuery(schema.TermFromText(99, "fox"))},
		{name: "type mismatch", query: NewTermQuery(schema.TermFromU64(f.body, 1))},
		{name: "empty and", query: NewAndQuery()},
		{name: "empty or", query: NewOrQuery()},
		{name: "empty phrase", query: NewPhraseQuery(nil, 0)},
		{name: "phrase across fields", query: NewPhraseQuery([]schema.Term{f.text("a"), schema.TermFromText(f.tag, "b")}, 0)},
		{name: "phrase without positions", query: NewPhraseQuery([]schema.Term{schema.TermFromText(f.tag, "a"), schema.TermFromText(f.tag, "b")}, 0)},
		{name: "range bound of other field", query: NewRangeQuery(f.price, Inclusive(schema.TermFromU64(f.id, 1)), Unbounded())},
		{name: "range bound of other type", query: NewRangeQuery(f.price, Inclusive(f.text("a")), Unbounded())},
		{name: "unknown kind", query: &Query{Kind: Kind(42)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewWeight(test.query, stats, DefaultOptions())
			assert.ErrorIs(t, err, enterrors.ErrSchema)
		})
	}

	t.Run("field not indexed", func(t *testing.T) {
		_, err := NewWeight(NewTermQuery(schema.TermFromText(stored, "a")), otherStats{other}, DefaultOptions())
		assert.ErrorIs(t, err, enterrors.ErrSchema)
	})
}

type otherStats struct{ s *schema.Schema }

func (o otherStats) Schema() *schema.Schema                  { return o.s }
func (o otherStats) NumDocs() uint64                         { return 0 }
func (o otherStats) DocFreq(schema.Term) (uint64, error)     { return 0, nil }
func (o otherStats) AverageFieldNorm(schema.FieldID) float32 { return 0 }

func TestDocSetsSeekMonotonically(t *testing.T) {
	f := newFixture(t)
	r := f.build(t, animals...)
	term := func(w string) *Query { return NewTermQuery(f.text(w)) }

	queries := map[string]*Query{
		"term":   term("fox"),
		"phrase": NewPhraseQuery([]schema.Term{f.text("brown"), f.text("fox")}, 0),
		"and":    NewAndQuery(term("fox"), term("brown")),
		"or":     NewOrQuery(term("dog"), term("quick")),
		"andnot": NewAndNotQuery(term("fox"), term("lazy")),
		"range":  NewRangeQuery(f.price, Inclusive(schema.TermFromU64(f.price, 20)), Unbounded()),
		"all":    NewAllQuery(),
	}
	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			all := docsOf(run(t, r, q, DefaultOptions()))
			w, err := NewWeight(q, SegmentStatistics(r), DefaultOptions())
			require.NoError(t, err)

			for target := uint32(0); target <= 5; target++ {
				s, err := w.Scorer(r, 1)
				require.NoError(t, err)
				want := uint32(Terminated)
				for _, d := range all {
					if d >= target {
						want = d
						break
					}
				}
				assert.Equal(t, want, s.Seek(target), "seek %d", target)
				// a seek backwards stays put
				assert.Equal(t, want, s.Seek(0))
				assert.Equal(t, want, s.Doc())
			}
		})
	}
}

func TestSeekSkipsBlocks(t *testing.T) {
	f := newFixture(t)
	docs := make([]testDoc, 300)
	for i := range docs {
		docs[i] = testDoc{body: "common words"}
	}
	r := f.build(t, docs...)

	w, err := NewWeight(NewTermQuery(f.text("common")), SegmentStatistics(r), DefaultOptions())
	require.NoError(t, err)
	s, err := w.Scorer(r, 1)
	require.NoError(t, err)
	ts := s.(*termScorer)

	assert.Equal(t, uint32(150), s.Seek(150))
	assert.Equal(t, 1, ts.postings.BlocksSkipped())
	assert.Equal(t, 1, ts.postings.BlocksDecoded())
	assert.Equal(t, uint32(151), s.Advance())
}

func TestForEachHonorsContext(t *testing.T) {
	f := newFixture(t)
	docs := make([]testDoc, 3*checkInterval)
	for i := range docs {
		docs[i] = testDoc{body: "word"}
	}
	r := f.build(t, docs...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, err := NewWeight(NewAllQuery(), SegmentStatistics(r), DefaultOptions())
	require.NoError(t, err)
	s, err := w.Scorer(r, 1)
	require.NoError(t, err)

	visited := 0
	err = ForEach(ctx, s, r, func(uint32, float32) { visited++ })
	assert.ErrorIs(t, err, enterrors.ErrDeadlineExceeded)
	assert.Less(t, visited, checkInterval)
}
