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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	b := schema.NewBuilder()
	b.AddTextField("body", schema.TextOptions.WithStored())
	b.AddI64Field("rank", schema.NumericOptions.WithFast())
	b.AddDateField("created", schema.NumericOptions.WithStored())
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestDocumentValidate(t *testing.T) {
	s := testSchema(t)

	t.Run("valid", func(t *testing.T) {
		doc := New().AddText(0, "quick fox").Add(1, I64(-3))
		assert.NoError(t, doc.Validate(s))
	})

	t.Run("type mismatch", func(t *testing.T) {
		doc := New().Add(1, Text("three"))
		err := doc.Validate(s)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})

	t.Run("unknown field", func(t *testing.T) {
		doc := New().Add(9, U64(1))
		assert.ErrorIs(t, doc.Validate(s), errors.ErrSchema)
	})
}

func TestDocumentMarshal(t *testing.T) {
	s := testSchema(t)
	created := time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)
	doc := New().
		AddText(0, "lazy fox fox").
		Add(1, I64(12)).
		Add(2, Date(created))

	stored := doc.Stored(s)
	require.Len(t, stored.Values, 2)

	data, err := Marshal(stored)
	require.NoError(t, err)
	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	body, ok := decoded.First(0)
	require.True(t, ok)
	assert.Equal(t, "lazy fox fox", body.AsText())
	date, ok := decoded.First(2)
	require.True(t, ok)
	assert.True(t, created.Equal(date.AsDate()))
	assert.Empty(t, decoded.Get(1))

	_, err = Unmarshal([]byte{0xc1, 0x00})
	assert.True(t, errors.IsCorrupted(err))
}
