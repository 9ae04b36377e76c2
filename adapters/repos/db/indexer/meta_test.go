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
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	b := schema.NewBuilder()
	b.AddTextField("body", schema.TextOptions)
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestMetaRoundTrip(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := directory.NewRAMDirectory(logger)

	exists, err := MetaExists(dir)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = ReadMeta(dir)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	meta := IndexMeta{
		Segments: []segment.Meta{
			{ID: segment.NewID(), MaxDoc: 10},
			{ID: segment.NewID(), MaxDoc: 5},
		},
		Opstamp: 42,
		Schema:  testSchema(t),
		Payload: "hello",
	}
	meta.Segments[1] = meta.Segments[1].WithDeletes(2, 40)
	require.NoError(t, WriteMeta(dir, meta))

	exists, err = MetaExists(dir)
	require.NoError(t, err)
	assert.True(t, exists)

	read, err := ReadMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, meta.Segments, read.Segments)
	assert.Equal(t, uint64(42), read.Opstamp)
	assert.Equal(t, "hello", read.Payload)
	assert.Equal(t, meta.Schema.Fields(), read.Schema.Fields())
	assert.Equal(t, uint64(13), read.NumDocs())

	m, ok := read.Segment(meta.Segments[1].ID)
	require.True(t, ok)
	assert.Equal(t, uint64(40), m.DeleteOpstamp())
	_, ok = read.Segment(segment.NewID())
	assert.False(t, ok)

	files := read.Files()
	for _, s := range meta.Segments {
		for _, name := range s.Files() {
			assert.Contains(t, files, name)
		}
	}
}

func TestMetaWithoutSchema(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := directory.NewRAMDirectory(logger)
	assert.Error(t, WriteMeta(dir, IndexMeta{Opstamp: 1}))
}

func TestMetaCorruption(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := directory.NewRAMDirectory(logger)
	require.NoError(t, WriteMeta(dir, IndexMeta{Opstamp: 7, Schema: testSchema(t)}))
	valid, err := dir.AtomicRead(MetaFileName)
	require.NoError(t, err)

	var env metaEnvelope
	require.NoError(t, json.Unmarshal(valid, &env))

	tamper := func(fn func(env *metaEnvelope)) []byte {
		e := env
		fn(&e)
		data, err := json.Marshal(e)
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "not json", data: []byte("{garbage")},
		{name: "wrong version", data: tamper(func(e *metaEnvelope) { e.Version = 99 })},
		{name: "wrong checksum", data: tamper(func(e *metaEnvelope) { e.Checksum++ })},
		{name: "meta changed", data: tamper(func(e *metaEnvelope) {
			e.Meta = json.RawMessage(`{"segments":[],"opstamp":8}`)
		})},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.NoError(t, dir.AtomicWrite(MetaFileName, test.data))
			_, err := ReadMeta(dir)
			require.Error(t, err)
			assert.True(t, enterrors.IsCorrupted(err))
		})
	}
}
