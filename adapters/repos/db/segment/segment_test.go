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
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/sroar"
	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/weaviate/textindex/entities/analysis"
	"github.com/weaviate/textindex/entities/document"
	"github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

type fixture struct {
	schema     *schema.Schema
	tokenizers *analysis.Manager
	dir        *directory.ManagedDirectory
	faulty     *directory.FaultyDirectory
	body       schema.FieldID
	tag        schema.FieldID
	id         schema.FieldID
}

func newFixture(t *testing.T) *fixture {
	logger, _ := test.NewNullLogger()
	b := schema.NewBuilder()
	f := &fixture{
		body: b.AddTextField("body", schema.TextOptions.WithStored()),
		tag:  b.AddTextField("tag", schema.StringOptions.WithFast()),
		id:   b.AddU64Field("id", schema.NumericOptions.WithFast().WithStored()),
	}
	s, err := b.Build()
	require.NoError(t, err)
	f.schema = s
	f.tokenizers = analysis.NewManager()
	f.faulty = directory.NewFaultyDirectory(directory.NewRAMDirectory(logger))
	f.dir, err = directory.NewManagedDirectory(f.faulty, true, logger)
	require.NoError(t, err)
	return f
}

func (f *fixture) writer(t *testing.T) *Writer {
	logger, _ := test.NewNullLogger()
	w, err := NewWriter(f.dir, f.schema, f.tokenizers, WriterOptions{BlockSize: 256}, logger)
	require.NoError(t, err)
	return w
}

func (f *fixture) doc(id uint64, body string, tags ...string) *document.Document {
	d := document.New().AddText(f.body, body).Add(f.id, document.U64(id))
	for _, tag := range tags {
		d.AddText(f.tag, tag)
	}
	return d
}

// build writes one segment holding a doc per body, ids starting at
// firstID.
func (f *fixture) build(t *testing.T, firstID uint64, bodies ...string) Meta {
	w := f.writer(t)
	for i, body := range bodies {
		_, err := w.AddDocument(uint64(i+1), f.doc(firstID+uint64(i), body, fmt.Sprintf("t%d", (firstID+uint64(i))%3)))
		require.NoError(t, err)
	}
	meta, err := w.Finalize(context.Background())
	require.NoError(t, err)
	return meta
}

func (f *fixture) open(t *testing.T, meta Meta) *Reader {
	r, err := Open(f.dir, f.schema, meta, ReaderOptions{CacheBlocks: 4})
	require.NoError(t, err)
	t.Cleanup(func() {
		if r.RefCount() > 0 {
			r.DecRef()
		}
	})
	return r
}

func (f *fixture) segmentFiles(id ID) []string {
	var out []string
	for _, name := range f.dir.Managed() {
		if strings.HasPrefix(name, id.String()) {
			out = append(out, name)
		}
	}
	return out
}

func TestWriterAndReader(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t)
	for i, body := range []string{"the quick brown fox", "lazy fox fox", "nothing here"} {
		doc, err := w.AddDocument(uint64(10+i), f.doc(uint64(100+i), body, "t"))
		require.NoError(t, err)
		assert.Equal(t, uint32(i), doc)
	}
	assert.Equal(t, []uint64{10, 11, 12}, w.DocOpstamps())
	assert.Greater(t, w.MemUsage(), 0)

	meta, err := w.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), meta.MaxDoc)
	assert.Equal(t, uint64(4+3+2), meta.FieldTokens[f.body])
	assert.Len(t, f.segmentFiles(meta.ID), len(Components))

	r := f.open(t, meta)
	assert.Equal(t, uint32(3), r.NumDocs())
	assert.False(t, r.HasDeletes())

	t.Run("term postings", func(t *testing.T) {
		df, err := r.DocFreq(schema.TermFromText(f.body, "fox"))
		require.NoError(t, err)
		assert.Equal(t, uint32(2), df)

		p, ok, err := r.Postings(schema.TermFromText(f.body, "fox"), schema.WithFreqsAndPositions)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint32(0), p.Doc())
		assert.Equal(t, []uint32{3}, p.Positions(nil))
		assert.Equal(t, uint32(1), p.Advance())
		assert.Equal(t, uint32(2), p.TermFreq())
		assert.Equal(t, []uint32{1, 2}, p.Positions(nil))
		assert.Equal(t, uint32(postings.Terminated), p.Advance())

		_, ok, err = r.Postings(schema.TermFromText(f.body, "missing"), schema.Basic)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("non text terms", func(t *testing.T) {
		p, ok, err := r.Postings(schema.TermFromU64(f.id, 101), schema.Basic)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint32(1), p.Doc())

		df, err := r.DocFreq(schema.TermFromText(f.tag, "t"))
		require.NoError(t, err)
		assert.Equal(t, uint32(3), df)
	})

	t.Run("fast fields and norms", func(t *testing.T) {
		ids, ok := r.FastFields().U64(f.id)
		require.True(t, ok)
		v, ok := ids.Get(2)
		require.True(t, ok)
		assert.Equal(t, uint64(102), v)

		assert.Equal(t, uint32(4), r.FieldNorms().Get(f.body, 0))
		assert.Equal(t, uint32(3), r.FieldNorms().Get(f.body, 1))
		assert.Equal(t, uint32(2), r.FieldNorms().Get(f.body, 2))
	})

	t.Run("stored fields", func(t *testing.T) {
		d, err := r.Doc(1)
		require.NoError(t, err)
		body, ok := d.First(f.body)
		require.True(t, ok)
		assert.Equal(t, "lazy fox fox", body.AsText())
		_, ok = d.First(f.tag)
		assert.False(t, ok, "tag is not stored")

		_, err = r.Doc(3)
		assert.Error(t, err)
	})
}

func TestWriterMultiValuedPositions(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t)
	d := document.New().AddText(f.body, "a b").AddText(f.body, "c a").Add(f.id, document.U64(1))
	_, err := w.AddDocument(1, d)
	require.NoError(t, err)
	meta, err := w.Finalize(context.Background())
	require.NoError(t, err)
	r := f.open(t, meta)

	p, ok, err := r.Postings(schema.TermFromText(f.body, "a"), schema.WithFreqsAndPositions)
	require.NoError(t, err)
	require.True(t, ok)
	// the second value starts one position after the end of the first
	assert.Equal(t, []uint32{0, 4}, p.Positions(nil))
	assert.Equal(t, uint32(4), r.FieldNorms().Get(f.body, 0))
}

func TestWriterRejectsInvalidDocuments(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t)
	defer w.Abort()

	_, err := w.AddDocument(1, document.New().Add(f.body, document.U64(3)))
	assert.ErrorIs(t, err, errors.ErrSchema)
	_, err = w.AddDocument(2, document.New().AddText(99, "x"))
	assert.ErrorIs(t, err, errors.ErrSchema)
	assert.Equal(t, uint32(0), w.MaxDoc())
	assert.Empty(t, w.DocOpstamps())

	_, err = w.AddDocument(3, f.doc(1, "ok"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), w.MaxDoc())
}

func TestSeekSkipsBlocks(t *testing.T) {
	f := newFixture(t)
	bodies := make([]string, 300)
	for i := range bodies {
		bodies[i] = "x"
	}
	r := f.open(t, f.build(t, 0, bodies...))

	p, ok, err := r.Postings(schema.TermFromText(f.body, "x"), schema.WithFreqs)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(150), p.Seek(150))
	assert.Equal(t, 1, p.BlocksSkipped())
	assert.Equal(t, 1, p.BlocksDecoded())
}

func TestFinalizeFailureRemovesFiles(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t)
	_, err := w.AddDocument(1, f.doc(1, "some text"))
	require.NoError(t, err)

	f.faulty.FailWrites(func(name string) bool { return strings.HasSuffix(name, ".idx") })
	_, err = w.Finalize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIO)
	assert.Empty(t, f.segmentFiles(w.ID()))

	_, err = w.Finalize(context.Background())
	assert.Error(t, err, "a writer finalizes once")
}

func TestAbortRemovesFiles(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t)
	_, err := w.AddDocument(1, f.doc(1, "some text"))
	require.NoError(t, err)
	require.NotEmpty(t, f.segmentFiles(w.ID()))
	require.NoError(t, w.Abort())
	assert.Empty(t, f.segmentFiles(w.ID()))
}

func TestDeletes(t *testing.T) {
	f := newFixture(t)
	meta := f.build(t, 0, "a", "b", "c", "d")
	r := f.open(t, meta)

	deleted := sroar.NewBitmap()
	deleted.Set(1)
	deleted.Set(3)
	withDeletes, err := WriteDeletes(f.dir, meta, deleted, 7)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), withDeletes.NumDeleted())
	assert.Equal(t, uint32(2), withDeletes.NumDocs())
	assert.Equal(t, uint64(7), withDeletes.DeleteOpstamp())
	assert.Contains(t, withDeletes.Files(), DeleteFileName(meta.ID, 7))
	assert.False(t, meta.HasDeletes(), "metas are values")

	t.Run("reopen shares the files", func(t *testing.T) {
		r2, err := r.WithDeletes(f.dir, withDeletes)
		require.NoError(t, err)
		assert.True(t, r2.IsDeleted(1))
		assert.False(t, r2.IsDeleted(2))
		assert.False(t, r.IsDeleted(1), "open readers keep their deletes")

		require.NoError(t, r2.DecRef())
		d, err := r.Doc(2)
		require.NoError(t, err, "files stay open while r holds them")
		assert.NotNil(t, d)
	})

	t.Run("open reads the bitset", func(t *testing.T) {
		r3 := f.open(t, withDeletes)
		assert.Equal(t, uint32(2), r3.NumDocs())
		assert.True(t, r3.IsDeleted(3))
	})

	t.Run("out of range", func(t *testing.T) {
		bad := sroar.NewBitmap()
		bad.Set(10)
		_, err := WriteDeletes(f.dir, meta, bad, 8)
		assert.Error(t, err)
	})

	t.Run("mismatching count is corruption", func(t *testing.T) {
		wrong := withDeletes.WithDeletes(3, 7)
		_, err := ReadDeletes(f.dir, wrong)
		assert.ErrorIs(t, err, errors.ErrCorruptedData)
	})
}

func TestReaderRefCounting(t *testing.T) {
	f := newFixture(t)
	r, err := Open(f.dir, f.schema, f.build(t, 0, "a"), ReaderOptions{})
	require.NoError(t, err)

	r.IncRef()
	assert.Equal(t, int32(2), r.RefCount())
	require.NoError(t, r.DecRef())
	require.NoError(t, r.DecRef())
	assert.Equal(t, int32(0), r.RefCount())
	assert.Error(t, r.DecRef())
}

func TestOpenMissingSegment(t *testing.T) {
	f := newFixture(t)
	_, err := Open(f.dir, f.schema, Meta{ID: NewID(), MaxDoc: 1}, ReaderOptions{})
	assert.ErrorIs(t, err, errors.ErrIO)
}

func TestOpenBrokenComponent(t *testing.T) {
	for _, comp := range Components {
		t.Run(fmt.Sprintf("missing %s", comp), func(t *testing.T) {
			f := newFixture(t)
			meta := f.build(t, 0, "a b c", "c d")
			require.NoError(t, f.dir.Delete(meta.ID.FileName(comp)))

			var err error
			require.NotPanics(t, func() {
				_, err = Open(f.dir, f.schema, meta, ReaderOptions{})
			})
			assert.ErrorIs(t, err, errors.ErrIO)
		})

		t.Run(fmt.Sprintf("corrupted %s", comp), func(t *testing.T) {
			f := newFixture(t)
			meta := f.build(t, 0, "a b c", "c d")
			name := meta.ID.FileName(comp)
			data, err := f.faulty.AtomicRead(name)
			require.NoError(t, err)
			data[0] ^= 0xff
			require.NoError(t, f.faulty.AtomicWrite(name, data))

			require.NotPanics(t, func() {
				_, err = Open(f.dir, f.schema, meta, ReaderOptions{})
			})
			assert.ErrorIs(t, err, errors.ErrCorruptedData)
		})
	}

	t.Run("intact segment still opens", func(t *testing.T) {
		f := newFixture(t)
		r := f.open(t, f.build(t, 0, "a b c"))
		assert.Equal(t, uint32(1), r.NumDocs())
	})
}

func TestMetaIDText(t *testing.T) {
	id := NewID()
	text, err := id.MarshalText()
	require.NoError(t, err)
	var parsed ID
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, id, parsed)
	assert.Len(t, id.Short(), 8)
	assert.Error(t, parsed.UnmarshalText([]byte("nope")))
}
