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

package schema

import (
	"encoding/json"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaBuilder(t *testing.T) {
	b := NewBuilder()
	title := b.AddTextField("title", TextOptions.WithStored())
	price := b.AddF64Field("price", NumericOptions.WithFast())
	tag := b.AddTextField("tag", StringOptions.WithFast())
	s, err := b.Build()
	require.NoError(t, err)

	t.Run("lookup by name and id", func(t *testing.T) {
		f, ok := s.FieldByName("price")
		require.True(t, ok)
		assert.Equal(t, price, f.ID)
		assert.Equal(t, F64, f.Type)
		assert.True(t, f.Fast)

		f, ok = s.Field(title)
		require.True(t, ok)
		assert.Equal(t, "default", f.Tokenizer)
		assert.True(t, f.HasFieldNorms())

		_, ok = s.Field(FieldID(42))
		assert.False(t, ok)
		assert.Equal(t, tag, s.MustFieldByName("tag"))
	})

	t.Run("json round trip", func(t *testing.T) {
		data, err := json.Marshal(s)
		require.NoError(t, err)
		var decoded Schema
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, s.Fields(), decoded.Fields())
		f, ok := decoded.FieldByName("tag")
		require.True(t, ok)
		assert.Equal(t, "raw", f.Tokenizer)
	})

	t.Run("duplicate names are rejected", func(t *testing.T) {
		b := NewBuilder()
		b.AddU64Field("a", NumericOptions)
		b.AddU64Field("a", NumericOptions)
		_, err := b.Build()
		assert.Error(t, err)
	})
}

func TestTermEncoding(t *testing.T) {
	t.Run("layout", func(t *testing.T) {
		term := TermFromText(3, "fox")
		assert.Equal(t, []byte{0, 0, 0, 3, 's', 'f', 'o', 'x'}, []byte(term))
		assert.Equal(t, FieldID(3), term.Field())
		assert.Equal(t, Text, term.Type())
		assert.Equal(t, []byte("fox"), term.ValueBytes())
	})

	t.Run("numeric order is preserved", func(t *testing.T) {
		ints := []int64{math.MinInt64, -1000, -1, 0, 1, 7, math.MaxInt64}
		var terms []Term
		for _, v := range ints {
			terms = append(terms, TermFromI64(1, v))
		}
		assert.True(t, sort.SliceIsSorted(terms, func(i, j int) bool {
			return terms[i].Compare(terms[j]) < 0
		}))

		floats := []float64{math.Inf(-1), -3.5, -0.25, 0, 0.25, 2, math.Inf(1)}
		terms = terms[:0]
		for _, v := range floats {
			terms = append(terms, TermFromF64(1, v))
		}
		assert.True(t, sort.SliceIsSorted(terms, func(i, j int) bool {
			return terms[i].Compare(terms[j]) < 0
		}))
	})

	t.Run("fast value mappings invert", func(t *testing.T) {
		for _, v := range []int64{math.MinInt64, -5, 0, 5, math.MaxInt64} {
			assert.Equal(t, v, U64ToI64(I64ToU64(v)))
		}
		for _, v := range []float64{-12.75, 0, 1e300, -1e-300} {
			assert.Equal(t, v, U64ToF64(F64ToU64(v)))
		}
		now := time.Date(2024, 3, 1, 12, 30, 0, 123456000, time.UTC)
		assert.True(t, now.Equal(U64ToDate(DateToU64(now))))

		u, ok := TermFromBool(0, true).FastValue()
		require.True(t, ok)
		assert.Equal(t, uint64(1), u)
		_, ok = TermFromText(0, "x").FastValue()
		assert.False(t, ok)
	})

	t.Run("string form", func(t *testing.T) {
		assert.Equal(t, `Term(field=1, type=text, "fox")`, TermFromText(1, "fox").String())
		assert.Equal(t, "Term(field=2, type=i64, -4)", TermFromI64(2, -4).String())
	})
}
