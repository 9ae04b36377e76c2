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

package segment

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/sroar"
	"github.com/weaviate/textindex/adapters/repos/db/compression"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

// posting identifies a doc by its stored id rather than its doc id, which
// merges change.
type posting struct {
	id        uint64
	tf        uint32
	positions []uint32
}

// content maps every term of the alive docs of the readers to its
// postings, in a form independent of doc numbering.
func content(t *testing.T, f *fixture, readers ...*Reader) map[string][]posting {
	out := map[string][]posting{}
	for _, r := range readers {
		ids, ok := r.FastFields().U64(f.id)
		require.True(t, ok)
		stream := r.Dictionary().Stream()
		for stream.Next() {
			term := schema.Term(stream.Key()).Clone()
			fld, _ := f.schema.Field(term.Field())
			p, err := r.PostingsFromInfo(term.Field(), stream.TermInfo(), fld.IndexRecord())
			require.NoError(t, err)
			for doc := p.Doc(); doc != postings.Terminated; doc = p.Advance() {
				if r.IsDeleted(doc) {
					continue
				}
				id, _ := ids.Get(doc)
				out[term.String()] = append(out[term.String()], posting{
					id: id, tf: p.TermFreq(), positions: p.Positions(nil),
				})
			}
			require.NoError(t, p.Err())
		}
		require.NoError(t, stream.Err())
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	}
	return out
}

func storedIDs(t *testing.T, f *fixture, r *Reader) []uint64 {
	var ids []uint64
	for doc := uint32(0); doc < r.MaxDoc(); doc++ {
		if r.IsDeleted(doc) {
			continue
		}
		d, err := r.Doc(doc)
		require.NoError(t, err)
		v, ok := d.First(f.id)
		require.True(t, ok)
		ids = append(ids, v.AsU64())
	}
	return ids
}

func (f *fixture) merge(t *testing.T, opts WriterOptions, readers ...*Reader) *Reader {
	logger, _ := test.NewNullLogger()
	meta, err := NewMerger(f.dir, f.schema, readers, opts, logger).Merge(context.Background())
	require.NoError(t, err)
	return f.open(t, meta)
}

func corpus(n, offset int) []string {
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta"}
	bodies := make([]string, n)
	for i := range bodies {
		var b strings.Builder
		for j := 0; j < 3+(i+offset)%5; j++ {
			b.WriteString(words[(i*7+j*3+offset)%len(words)])
			b.WriteByte(' ')
		}
		bodies[i] = b.String()
	}
	return bodies
}

func TestMergePermutations(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.build(t, 0, corpus(150, 0)...))
	b := f.open(t, f.build(t, 1000, corpus(40, 1)...))
	cMeta := f.build(t, 2000, corpus(200, 2)...)

	deleted := sroar.NewBitmap()
	for _, doc := range []uint64{0, 5, 128, 199} {
		deleted.Set(doc)
	}
	cMeta, err := WriteDeletes(f.dir, cMeta, deleted, 9)
	require.NoError(t, err)
	c := f.open(t, cMeta)

	expected := content(t, f, a, b, c)
	require.NotEmpty(t, expected)

	opts := WriterOptions{BlockSize: 512}
	abc := f.merge(t, opts, a, b, c)
	cab := f.merge(t, opts, c, a, b)
	nested := f.merge(t, opts, f.merge(t, opts, a, b), c)
	nestedRight := f.merge(t, opts, a, f.merge(t, opts, b, c))

	for name, merged := range map[string]*Reader{"abc": abc, "cab": cab, "(ab)c": nested, "a(bc)": nestedRight} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, uint32(150+40+196), merged.MaxDoc())
			assert.False(t, merged.HasDeletes())
			assert.Equal(t, expected, content(t, f, merged))
			assert.Equal(t, a.FieldTokens(f.body)+b.FieldTokens(f.body)+c.FieldTokens(f.body)-
				deletedTokens(f, c), merged.FieldTokens(f.body))
		})
	}

	t.Run("doc ids follow the input order", func(t *testing.T) {
		ids := storedIDs(t, f, cab)
		require.Len(t, ids, 386)
		assert.Equal(t, uint64(2001), ids[0])
		assert.Equal(t, uint64(0), ids[196])
		assert.Equal(t, uint64(1000), ids[346])

		fast, ok := cab.FastFields().U64(f.id)
		require.True(t, ok)
		for doc, id := range ids {
			v, ok := fast.Get(uint32(doc))
			require.True(t, ok)
			require.Equal(t, id, v)
		}
	})

	t.Run("field norms are remapped", func(t *testing.T) {
		merged := uint32(0)
		for doc := uint32(0); doc < c.MaxDoc(); doc++ {
			if c.IsDeleted(doc) {
				continue
			}
			require.Equal(t, c.FieldNorms().Get(f.body, doc), cab.FieldNorms().Get(f.body, merged), "doc %d", doc)
			merged++
		}
	})
}

func deletedTokens(f *fixture, r *Reader) uint64 {
	var total uint64
	for _, doc := range r.Deletes().ToArray() {
		total += uint64(r.FieldNorms().Get(f.body, uint32(doc)))
	}
	return total
}

func TestMergeStoreFallbackOnCodecChange(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.build(t, 0, corpus(30, 0)...))
	zstd, err := compression.Get(compression.Zstd)
	require.NoError(t, err)
	merged := f.merge(t, WriterOptions{Codec: zstd, BlockSize: 128}, a)
	assert.Equal(t, compression.Zstd, merged.Store().Codec().Name())
	assert.Equal(t, storedIDs(t, f, a), storedIDs(t, f, merged))
}

func TestMergeDropsFullyDeletedTerms(t *testing.T) {
	f := newFixture(t)
	meta := f.build(t, 0, "common unique", "common")
	deleted := sroar.NewBitmap()
	deleted.Set(0)
	meta, err := WriteDeletes(f.dir, meta, deleted, 3)
	require.NoError(t, err)

	merged := f.merge(t, WriterOptions{}, f.open(t, meta))
	assert.Equal(t, uint32(1), merged.MaxDoc())
	_, ok, err := merged.TermInfo(schema.TermFromText(f.body, "unique"))
	require.NoError(t, err)
	assert.False(t, ok)
	df, err := merged.DocFreq(schema.TermFromText(f.body, "common"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), df)
}

func TestMergeFailureLeavesInputs(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("io error", func(t *testing.T) {
		f := newFixture(t)
		a := f.open(t, f.build(t, 0, corpus(50, 0)...))
		b := f.open(t, f.build(t, 100, corpus(50, 1)...))
		before := content(t, f, a, b)

		f.faulty.FailWrites(func(name string) bool { return strings.HasSuffix(name, ".pos") })
		m := NewMerger(f.dir, f.schema, []*Reader{a, b}, WriterOptions{}, logger)
		_, err := m.Merge(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrIO)
		assert.Empty(t, f.segmentFiles(m.id))

		f.faulty.FailWrites(nil)
		assert.Equal(t, before, content(t, f, a, b))
		reopened := f.open(t, a.Meta())
		assert.Equal(t, storedIDs(t, f, a), storedIDs(t, f, reopened))
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFixture(t)
		a := f.open(t, f.build(t, 0, corpus(50, 0)...))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := NewMerger(f.dir, f.schema, []*Reader{a}, WriterOptions{}, logger)
		_, err := m.Merge(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, f.segmentFiles(m.id))
	})
}

func TestMergeEmptyInputs(t *testing.T) {
	f := newFixture(t)
	meta := f.build(t, 0, "a", "b")
	deleted := sroar.NewBitmap()
	deleted.Set(0)
	deleted.Set(1)
	meta, err := WriteDeletes(f.dir, meta, deleted, 2)
	require.NoError(t, err)

	merged := f.merge(t, WriterOptions{}, f.open(t, meta))
	assert.Equal(t, uint32(0), merged.MaxDoc())
	assert.Equal(t, uint64(0), merged.Dictionary().NumTerms())
	assert.Empty(t, content(t, f, merged))
}
