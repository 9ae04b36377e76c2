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

package stacker

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/textindex/entities/schema"
)

func TestArenaHashMap(t *testing.T) {
	t.Run("create then mutate", func(t *testing.T) {
		arena := NewMemoryArena()
		m := NewArenaHashMap(arena, 1<<4, 4)

		id := m.MutateOrCreate([]byte("abc"), func(addr Addr, created bool) {
			assert.True(t, created)
			arena.WriteUint32(addr, 3)
		})
		m.MutateOrCreate([]byte("abcd"), func(addr Addr, created bool) {
			assert.True(t, created)
			arena.WriteUint32(addr, 4)
		})
		again := m.MutateOrCreate([]byte("abc"), func(addr Addr, created bool) {
			assert.False(t, created)
			assert.Equal(t, uint32(3), arena.ReadUint32(addr))
			arena.WriteUint32(addr, 5)
		})
		assert.Equal(t, id, again)
		assert.Equal(t, 2, m.Len())

		addr, ok := m.Get([]byte("abc"))
		require.True(t, ok)
		assert.Equal(t, uint32(5), arena.ReadUint32(addr))
		_, ok = m.Get([]byte("ab"))
		assert.False(t, ok)
	})

	t.Run("growth keeps every key", func(t *testing.T) {
		arena := NewMemoryArena()
		m := NewArenaHashMap(arena, 1, 4)
		const n = 20_000
		for i := 0; i < n; i++ {
			key := []byte(fmt.Sprintf("key-%d", i))
			m.MutateOrCreate(key, func(addr Addr, created bool) {
				require.True(t, created)
				arena.WriteUint32(addr, uint32(i))
			})
		}
		require.Equal(t, n, m.Len())
		assert.GreaterOrEqual(t, len(m.table), 3*(n-1))
		for i := 0; i < n; i++ {
			addr, ok := m.Get([]byte(fmt.Sprintf("key-%d", i)))
			require.True(t, ok)
			require.Equal(t, uint32(i), arena.ReadUint32(addr))
		}

		seen := 0
		m.Iter(func(key []byte, _ Addr, id UnorderedID) bool {
			assert.Equal(t, fmt.Sprintf("key-%d", id), string(key))
			seen++
			return true
		})
		assert.Equal(t, n, seen)
	})
}

func TestArenaHashMapHash(t *testing.T) {
	m := NewArenaHashMap(NewMemoryArena(), 1, 4)
	assert.Equal(t, uint32(0), m.hash(nil))
	assert.Equal(t, uint32(0x248bfa47), m.hash([]byte("hello")))

	// keys of every tail length, cut out of one larger buffer
	buf := bytes.Repeat([]byte("abcdefgh"), 4)
	for n := 0; n <= 9; n++ {
		key := buf[3 : 3+n]
		assert.Equal(t, m.hash(append([]byte(nil), key...)), m.hash(key))
	}
	assert.Equal(t, uint32(0x248bfa47), m.hash([]byte("hello")), "the hasher is reset between keys")
}

func TestExpUnrolledLinkedList(t *testing.T) {
	arena := NewMemoryArena()
	a := arena.Allocate(listStateSize)
	b := arena.Allocate(listStateSize)
	la := OpenExpUnrolledLinkedList(arena, a)
	lb := OpenExpUnrolledLinkedList(arena, b)

	var expectA, expectB []byte
	for i := 0; i < 5000; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, i%7+1)
		if i%2 == 0 {
			la.Write(chunk)
			expectA = append(expectA, chunk...)
		} else {
			lb.Write(chunk)
			expectB = append(expectB, chunk...)
		}
	}
	assert.Equal(t, expectA, la.ReadTo(nil))
	assert.Equal(t, expectB, lb.ReadTo(nil))
}

func TestTermTable(t *testing.T) {
	fox := schema.TermFromText(0, "fox")
	quick := schema.TermFromText(0, "quick")
	id := schema.TermFromU64(1, 7)

	table := NewTermTable()
	// doc 0: "quick fox", doc 1: "fox fox", doc 3: "fox"
	table.Subscribe(quick, 0, 0, schema.WithFreqsAndPositions)
	table.Subscribe(fox, 0, 1, schema.WithFreqsAndPositions)
	table.Subscribe(fox, 1, 0, schema.WithFreqsAndPositions)
	table.Subscribe(fox, 1, 1, schema.WithFreqsAndPositions)
	table.Subscribe(fox, 3, 0, schema.WithFreqsAndPositions)
	table.Subscribe(id, 1, 0, schema.Basic)
	table.Subscribe(id, 2, 0, schema.Basic)

	entries := table.SortedTerms()
	require.Len(t, entries, 3)
	assert.Equal(t, []byte(fox), entries[0].Term)
	assert.Equal(t, []byte(quick), entries[1].Term)
	assert.Equal(t, []byte(id), entries[2].Term)

	var p Postings
	require.NoError(t, table.ReadPostings(entries[0], &p))
	assert.Equal(t, []uint32{0, 1, 3}, p.Docs)
	assert.Equal(t, []uint32{1, 2, 1}, p.Freqs)
	assert.Equal(t, []uint32{1, 0, 1, 0}, p.Positions)
	assert.Equal(t, uint32(3), entries[0].DocFreq)

	require.NoError(t, table.ReadPostings(entries[2], &p))
	assert.Equal(t, []uint32{1, 2}, p.Docs)
	assert.Equal(t, []uint32{1, 1}, p.Freqs)
	assert.Empty(t, p.Positions)

	assert.Greater(t, table.MemUsage(), 0)
	table.Reset()
	assert.Equal(t, 0, table.NumTerms())
}

func TestTermTableFreqsOnly(t *testing.T) {
	term := schema.TermFromText(2, "x")
	table := NewTermTable()
	for doc := uint32(0); doc < 300; doc++ {
		for i := uint32(0); i <= doc%3; i++ {
			table.Subscribe(term, doc, i, schema.WithFreqs)
		}
	}
	entries := table.SortedTerms()
	require.Len(t, entries, 1)
	var p Postings
	require.NoError(t, table.ReadPostings(entries[0], &p))
	require.Equal(t, 300, p.Len())
	for doc := 0; doc < 300; doc++ {
		assert.Equal(t, uint32(doc), p.Docs[doc])
		assert.Equal(t, uint32(doc%3+1), p.Freqs[doc])
	}
}
