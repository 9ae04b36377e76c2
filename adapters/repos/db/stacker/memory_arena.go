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
	"encoding/binary"
	"math"
)

// Addr is an offset into a MemoryArena. Addresses stay valid when the
// arena grows because the arena never moves data relative to its start.
// The zero address is reserved and means "null".
type Addr uint32

func (a Addr) IsNull() bool {
	return a == 0
}

func (a Addr) Offset(n uint32) Addr {
	return a + Addr(n)
}

const initialArenaSize = 1 << 16

// MemoryArena is a bump allocator over a single growable byte buffer.
// Slices returned by Slice are only valid until the next Allocate.
type MemoryArena struct {
	buf []byte
}

func NewMemoryArena() *MemoryArena {
	return &MemoryArena{buf: make([]byte, 1, initialArenaSize)}
}

// Allocate reserves n zeroed bytes and returns their address.
func (a *MemoryArena) Allocate(n int) Addr {
	addr := len(a.buf)
	if uint64(addr)+uint64(n) > math.MaxUint32 {
		panic("memory arena exceeds 4GiB")
	}
	if cap(a.buf)-addr < n {
		newCap := 2 * cap(a.buf)
		for newCap-addr < n {
			newCap *= 2
		}
		grown := make([]byte, addr, newCap)
		copy(grown, a.buf)
		a.buf = grown
	}
	a.buf = a.buf[:addr+n]
	return Addr(addr)
}

func (a *MemoryArena) Slice(addr Addr, n int) []byte {
	return a.buf[addr : int(addr)+n]
}

func (a *MemoryArena) SliceFrom(addr Addr) []byte {
	return a.buf[addr:]
}

func (a *MemoryArena) ReadUint32(addr Addr) uint32 {
	return binary.LittleEndian.Uint32(a.buf[addr:])
}

func (a *MemoryArena) WriteUint32(addr Addr, v uint32) {
	binary.LittleEndian.PutUint32(a.buf[addr:], v)
}

func (a *MemoryArena) ReadUint16(addr Addr) uint16 {
	return binary.LittleEndian.Uint16(a.buf[addr:])
}

func (a *MemoryArena) WriteUint16(addr Addr, v uint16) {
	binary.LittleEndian.PutUint16(a.buf[addr:], v)
}

// Len is the number of allocated bytes.
func (a *MemoryArena) Len() int {
	return len(a.buf)
}

func (a *MemoryArena) MemUsage() int {
	return cap(a.buf)
}

// Reset drops every allocation and releases the buffer.
func (a *MemoryArena) Reset() {
	a.buf = make([]byte, 1, initialArenaSize)
}
