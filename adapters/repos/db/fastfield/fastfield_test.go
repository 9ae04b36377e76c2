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

package fastfield

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/textindex/entities/document"
	"github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

func buildColumn(t *testing.T, numDocs uint32, add func(b *ColumnBuilder)) *Column {
	b := NewColumnBuilder()
	add(b)
	c, err := OpenColumn(b.Append(nil, numDocs))
	require.NoError(t, err)
	return c
}

func TestColumnCodecs(t *testing.T) {
	t.Run("bitpacked for a wide range", func(t *testing.T) {
		r := rand.New(rand.NewSource(1))
		vals := make([]uint64, 1000)
		c := buildColumn(t, 1000, func(b *ColumnBuilder) {
			for i := range vals {
				vals[i] = 1_000_000 + uint64(r.Intn(1<<20))
				b.Add(uint32(i), vals[i])
			}
		})
		assert.Equal(t, CodecBitpacked, c.Codec())
		assert.Equal(t, Full, c.Cardinality())
		for i, v := range vals {
			got, ok := c.Get(uint32(i))
			require.True(t, ok)
			require.Equal(t, v, got)
		}
		lo, hi := minMax(vals)
		assert.Equal(t, lo, c.MinValue())
		assert.Equal(t, hi, c.MaxValue())
	})

	t.Run("dictionary for low cardinality", func(t *testing.T) {
		levels := []uint64{7, 1 << 40, 1 << 62}
		c := buildColumn(t, 500, func(b *ColumnBuilder) {
			for i := 0; i < 500; i++ {
				b.Add(uint32(i), levels[i%3])
			}
		})
		assert.Equal(t, CodecDictionary, c.Codec())
		for i := 0; i < 500; i++ {
			assert.Equal(t, levels[i%3], c.GetOr(uint32(i), 0))
		}
	})

	t.Run("constant column takes no value bits", func(t *testing.T) {
		c := buildColumn(t, 100, func(b *ColumnBuilder) {
			for i := 0; i < 100; i++ {
				b.Add(uint32(i), 42)
			}
		})
		assert.Equal(t, uint8(0), c.vals.width)
		assert.Equal(t, uint64(42), c.GetOr(99, 0))
	})

	t.Run("get range", func(t *testing.T) {
		c := buildColumn(t, 10, func(b *ColumnBuilder) {
			for i := 0; i < 10; i++ {
				b.Add(uint32(i), uint64(i*i))
			}
		})
		dst := make([]uint64, 4)
		c.GetRange(8, dst, 7)
		assert.Equal(t, []uint64{64, 81, 7, 7}, dst)
	})
}

func TestColumnCardinalities(t *testing.T) {
	t.Run("optional", func(t *testing.T) {
		c := buildColumn(t, 200, func(b *ColumnBuilder) {
			for i := 0; i < 200; i += 3 {
				b.Add(uint32(i), uint64(i)+5)
			}
		})
		assert.Equal(t, Optional, c.Cardinality())
		for i := uint32(0); i < 200; i++ {
			v, ok := c.Get(i)
			if i%3 == 0 {
				require.True(t, ok)
				assert.Equal(t, uint64(i)+5, v)
			} else {
				assert.False(t, ok)
				assert.Equal(t, uint64(99), c.GetOr(i, 99))
			}
		}
	})

	t.Run("multivalued", func(t *testing.T) {
		c := buildColumn(t, 4, func(b *ColumnBuilder) {
			b.Add(0, 3)
			b.Add(0, 1)
			b.Add(2, 9)
			b.Add(3, 4)
			b.Add(3, 4)
			b.Add(3, 5)
		})
		assert.Equal(t, Multivalued, c.Cardinality())
		assert.Equal(t, []uint64{3, 1}, c.Values(0, nil))
		assert.Empty(t, c.Values(1, nil))
		assert.Equal(t, []uint64{9}, c.Values(2, nil))
		assert.Equal(t, []uint64{4, 4, 5}, c.Values(3, nil))
		_, ok := c.Get(1)
		assert.False(t, ok)
		v, ok := c.Get(3)
		assert.True(t, ok)
		assert.Equal(t, uint64(4), v)
	})

	t.Run("empty", func(t *testing.T) {
		c := buildColumn(t, 3, func(b *ColumnBuilder) {})
		assert.Equal(t, Optional, c.Cardinality())
		_, ok := c.Get(1)
		assert.False(t, ok)
	})
}

func TestBytesColumn(t *testing.T) {
	b := NewBytesColumnBuilder()
	b.Add(0, []byte("pear"))
	b.Add(1, []byte("apple"))
	b.Add(3, []byte("pear"))
	b.Add(3, []byte("fig"))

	c, err := OpenBytesColumn(b.Append(nil, 4))
	require.NoError(t, err)
	assert.Equal(t, 3, c.NumTerms())

	v, ok := c.Get(0)
	require.True(t, ok)
	assert.Equal(t, "pear", string(v))
	_, ok = c.Get(2)
	assert.False(t, ok)
	assert.Equal(t, [][]byte{[]byte("pear"), []byte("fig")}, c.Values(3, nil))

	// ordinals sort like the values
	o0, _ := c.Ordinals().Get(0)
	o1, _ := c.Ordinals().Get(1)
	assert.Less(t, o1, o0)
}

func TestWriterAndReaders(t *testing.T) {
	sb := schema.NewBuilder()
	price := sb.AddF64Field("price", schema.NumericOptions.WithFast())
	temp := sb.AddI64Field("temp", schema.NumericOptions.WithFast())
	at := sb.AddDateField("at", schema.NumericOptions.WithFast())
	ok := sb.AddBoolField("ok", schema.NumericOptions.WithFast())
	tag := sb.AddTextField("tag", schema.StringOptions.WithFast())
	body := sb.AddTextField("body", schema.TextOptions)
	s, err := sb.Build()
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWriter(s)
	for i := 0; i < 50; i++ {
		d := document.New().
			Add(price, document.F64(float64(i)-10.5)).
			Add(temp, document.I64(int64(-i))).
			Add(at, document.Date(now.Add(time.Duration(i)*time.Hour))).
			Add(ok, document.Bool(i%2 == 0)).
			Add(tag, document.Text([]string{"red", "green"}[i%2])).
			AddText(body, "ignored")
		w.AddDocument(uint32(i), d)
	}
	assert.Greater(t, w.MemUsage(), 0)

	var buf bytes.Buffer
	_, err = w.Serialize(&buf, 50)
	require.NoError(t, err)

	r, err := OpenReaders(buf.Bytes(), s)
	require.NoError(t, err)

	prices, found := r.F64(price)
	require.True(t, found)
	assert.Equal(t, 19.5, prices.GetOr(30, 0))
	assert.Equal(t, -10.5, prices.MinValue())

	temps, found := r.I64(temp)
	require.True(t, found)
	assert.Equal(t, int64(-49), temps.GetOr(49, 0))
	assert.Equal(t, int64(-49), temps.MinValue())

	dates, found := r.Date(at)
	require.True(t, found)
	assert.True(t, now.Add(5*time.Hour).Equal(dates.GetOr(5, time.Time{})))

	bools, found := r.Bool(ok)
	require.True(t, found)
	assert.Equal(t, true, bools.GetOr(4, false))

	tags, found := r.Bytes(tag)
	require.True(t, found)
	v, _ := tags.Get(3)
	assert.Equal(t, "green", string(v))

	_, found = r.Column(body)
	assert.False(t, found)
	_, found = r.U64(price)
	assert.False(t, found, "typed access checks the field type")
}

func TestFieldNorms(t *testing.T) {
	sb := schema.NewBuilder()
	title := sb.AddTextField("title", schema.TextOptions)
	body := sb.AddTextField("body", schema.TextOptions)
	s, err := sb.Build()
	require.NoError(t, err)

	w := NewFieldNormsWriter(s)
	w.Record(0, title, 2)
	w.Record(2, title, 7)
	w.Record(1, body, 300)

	var buf bytes.Buffer
	_, err = w.Serialize(&buf, 4)
	require.NoError(t, err)
	norms, err := OpenFieldNorms(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, uint32(2), norms.Get(title, 0))
	assert.Equal(t, uint32(0), norms.Get(title, 1))
	assert.Equal(t, uint32(7), norms.Get(title, 2))
	assert.Equal(t, uint32(0), norms.Get(title, 3))
	assert.Equal(t, uint32(300), norms.Get(body, 1))
	assert.Equal(t, uint32(4), norms.Column(body).NumDocs())
}

func TestCorruptedColumns(t *testing.T) {
	b := NewColumnBuilder()
	for i := 0; i < 20; i++ {
		b.Add(uint32(i), uint64(i)*1000)
	}
	data := b.Append(nil, 20)

	_, err := OpenColumn(data[:len(data)-3])
	assert.ErrorIs(t, err, errors.ErrCorruptedData)

	bad := append([]byte{}, data...)
	bad[0] = 9
	_, err = OpenColumn(bad)
	assert.ErrorIs(t, err, errors.ErrCorruptedData)

	_, err = OpenComposite([]byte{1, 0, 0, 0})
	assert.ErrorIs(t, err, errors.ErrCorruptedData)
}
