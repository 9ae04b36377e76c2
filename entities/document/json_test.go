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

package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

func TestWalkJSON(t *testing.T) {
	v, err := JSONFromBytes([]byte(`{
		"name": "Elliot Smith",
		"albums": [{"year": 1997}, {"year": 2000, "live": false}],
		"rating": -2,
		"score": 4.5,
		"big": 18446744073709551615,
		"released": "1994-07-21T00:00:00Z",
		"label": null
	}`))
	require.NoError(t, err)

	var leaves []JSONLeaf
	require.NoError(t, v.WalkJSON(func(l JSONLeaf) { leaves = append(leaves, l) }))

	released := time.Date(1994, 7, 21, 0, 0, 0, 0, time.UTC)
	expected := []JSONLeaf{
		{Path: []string{"albums", "year"}, Type: schema.U64, Num: 1997},
		{Path: []string{"albums", "live"}, Type: schema.Bool, Num: 0},
		{Path: []string{"albums", "year"}, Type: schema.U64, Num: 2000},
		{Path: []string{"big"}, Type: schema.U64, Num: 18446744073709551615},
		{Path: []string{"name"}, Type: schema.Text, Text: "Elliot Smith"},
		{Path: []string{"rating"}, Type: schema.I64, Num: schema.I64ToU64(-2)},
		{Path: []string{"released"}, Type: schema.Date, Num: schema.DateToU64(released)},
		{Path: []string{"score"}, Type: schema.F64, Num: schema.F64ToU64(4.5)},
	}
	assert.Equal(t, expected, leaves)

	assert.Equal(t, schema.JSONTermFromText(2, []string{"name"}, "Elliot Smith"), leaves[4].Term(2))
	assert.Equal(t, schema.JSONTermFromFastValue(2, []string{"big"}, schema.U64, 18446744073709551615), leaves[3].Term(2))
}

func TestJSONValue(t *testing.T) {
	v, err := JSON(map[string]any{"color": "red", "size": 3})
	require.NoError(t, err)
	assert.Equal(t, schema.JSON, v.Type())
	assert.JSONEq(t, `{"color":"red","size":3}`, v.String())

	obj, err := v.AsJSON()
	require.NoError(t, err)
	assert.Equal(t, json.Number("3"), obj["size"])

	for _, raw := range []string{`[1,2]`, `"text"`, `{"open":`, ``} {
		_, err := JSONFromBytes([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestJSONDocument(t *testing.T) {
	b := schema.NewBuilder()
	attrs := b.AddJSONField("attrs", schema.TextOptions.WithStored())
	s, err := b.Build()
	require.NoError(t, err)

	v, err := JSON(map[string]any{"k": "v"})
	require.NoError(t, err)
	doc := New().Add(attrs, v)
	require.NoError(t, doc.Validate(s))

	data, err := Marshal(doc.Stored(s))
	require.NoError(t, err)
	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	stored, ok := decoded.First(attrs)
	require.True(t, ok)
	obj, err := stored.AsJSON()
	require.NoError(t, err)
	assert.Equal(t, "v", obj["k"])

	t.Run("text is not json", func(t *testing.T) {
		assert.ErrorIs(t, New().AddText(attrs, "k=v").Validate(s), errors.ErrSchema)
	})

	t.Run("broken object", func(t *testing.T) {
		broken := New().Add(attrs, Value{typ: schema.JSON, data: []byte(`{"k":`)})
		assert.ErrorIs(t, broken.Validate(s), errors.ErrSchema)
	})
}
