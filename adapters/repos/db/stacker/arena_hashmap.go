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
	"hash"
	"math"
	"math/bits"

	"github.com/spaolacci/murmur3"
)

// MaxKeyLen is the longest key the map accepts, keys are prefixed with
// their length as uint16.
const MaxKeyLen = math.MaxUint16

type UnorderedID uint32

type bucket struct {
	addr Addr
	hash uint32
	id   UnorderedID
}

func (b bucket) empty() bool {
	return b.addr.IsNull()
}

// ArenaHashMap is an open addressing hash map with byte slice keys. Keys
// and fixed size values live inline in the arena:
//
//	[key len uint16][key bytes][value bytes]
//
// The table itself only holds arena addresses, so growing the arena or
// the table never invalidates an entry.
//
// An ArenaHashMap is not safe for concurrent use, lookups included.
type ArenaHashMap struct {
	arena     *MemoryArena
	valueSize int
	table     []bucket
	mask      uint32
	occupied  []int
	hasher    hash.Hash32
}

// NewArenaHashMap creates a map with a table of the greatest power of two
// lower or equal to tableSize.
func NewArenaHashMap(arena *MemoryArena, tableSize int, valueSize int) *ArenaHashMap {
	if tableSize < 1 {
		tableSize = 1
	}
	size := 1 << (bits.Len(uint(tableSize)) - 1)
	return &ArenaHashMap{
		arena:     arena,
		valueSize: valueSize,
		table:     make([]bucket, size),
		mask:      uint32(size - 1),
		occupied:  make([]int, 0, size/2),
		hasher:    murmur3.New32(),
	}
}

// hash is murmur3.Sum32 of key. The streaming hasher reads the key by
// index, murmur3.Sum32 walks it with uintptr arithmetic which the race
// detector's pointer checks reject.
func (m *ArenaHashMap) hash(key []byte) uint32 {
	m.hasher.Reset()
	m.hasher.Write(key)
	return m.hasher.Sum32()
}

func (m *ArenaHashMap) Len() int {
	return len(m.occupied)
}

// MemUsage is the size of the table, the arena is accounted separately.
func (m *ArenaHashMap) MemUsage() int {
	return len(m.table)*12 + cap(m.occupied)*8
}

func (m *ArenaHashMap) saturated() bool {
	return len(m.table) < len(m.occupied)*3
}

func (m *ArenaHashMap) resize() {
	newLen := len(m.table) * 2
	mask := uint32(newLen - 1)
	table := make([]bucket, newLen)
	for i, old := range m.occupied {
		b := m.table[old]
		pos := b.hash & mask
		for !table[pos].empty() {
			pos = (pos + 1) & mask
		}
		table[pos] = b
		m.occupied[i] = int(pos)
	}
	m.table = table
	m.mask = mask
}

func (m *ArenaHashMap) keyAt(addr Addr) ([]byte, Addr) {
	keyLen := uint32(m.arena.ReadUint16(addr))
	key := m.arena.Slice(addr.Offset(2), int(keyLen))
	return key, addr.Offset(2 + keyLen)
}

// Get returns the address of the value stored for key.
func (m *ArenaHashMap) Get(key []byte) (Addr, bool) {
	hash := m.hash(key)
	pos := hash & m.mask
	for {
		b := m.table[pos]
		if b.empty() {
			return 0, false
		}
		if b.hash == hash {
			if stored, valueAddr := m.keyAt(b.addr); bytes.Equal(stored, key) {
				return valueAddr, true
			}
		}
		pos = (pos + 1) & m.mask
	}
}

// MutateOrCreate calls fn with the address of the value of key. New
// entries start with a zeroed value and created set to true. fn may
// allocate from the arena.
func (m *ArenaHashMap) MutateOrCreate(key []byte, fn func(valueAddr Addr, created bool)) UnorderedID {
	if len(key) > MaxKeyLen {
		panic("arena hashmap key too long")
	}
	for m.saturated() {
		m.resize()
	}
	hash := m.hash(key)
	pos := hash & m.mask
	for {
		b := m.table[pos]
		if b.empty() {
			addr := m.arena.Allocate(2 + len(key) + m.valueSize)
			m.arena.WriteUint16(addr, uint16(len(key)))
			copy(m.arena.Slice(addr.Offset(2), len(key)), key)
			id := UnorderedID(len(m.occupied))
			m.table[pos] = bucket{addr: addr, hash: hash, id: id}
			m.occupied = append(m.occupied, int(pos))
			fn(addr.Offset(2+uint32(len(key))), true)
			return id
		}
		if b.hash == hash {
			if stored, valueAddr := m.keyAt(b.addr); bytes.Equal(stored, key) {
				fn(valueAddr, false)
				return b.id
			}
		}
		pos = (pos + 1) & m.mask
	}
}

// Iter visits the entries in insertion order. The key slice must not be
// retained across arena allocations.
func (m *ArenaHashMap) Iter(fn func(key []byte, valueAddr Addr, id UnorderedID) bool) {
	for _, pos := range m.occupied {
		b := m.table[pos]
		key, valueAddr := m.keyAt(b.addr)
		if !fn(key, valueAddr, b.id) {
			return
		}
	}
}
