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

const (
	firstBlockLen = 16
	maxBlockShift = 11 // 16 << 11 = 32KiB
	listStateSize = 16
)

func blockLen(blockNum uint32) int {
	if blockNum > maxBlockShift {
		blockNum = maxBlockShift
	}
	return firstBlockLen << blockNum
}

// listState is the fixed size header of an ExpUnrolledLinkedList. It is
// stored inside the arena at a caller chosen address:
//
//	[head Addr][tail Addr][bytes used in tail][number of blocks]
type listState struct {
	head     Addr
	tail     Addr
	tailLen  uint32
	numBlock uint32
}

func readListState(arena *MemoryArena, addr Addr) listState {
	return listState{
		head:     Addr(arena.ReadUint32(addr)),
		tail:     Addr(arena.ReadUint32(addr.Offset(4))),
		tailLen:  arena.ReadUint32(addr.Offset(8)),
		numBlock: arena.ReadUint32(addr.Offset(12)),
	}
}

func writeListState(arena *MemoryArena, addr Addr, s listState) {
	arena.WriteUint32(addr, uint32(s.head))
	arena.WriteUint32(addr.Offset(4), uint32(s.tail))
	arena.WriteUint32(addr.Offset(8), s.tailLen)
	arena.WriteUint32(addr.Offset(12), s.numBlock)
}

// ExpUnrolledLinkedList is an append-only byte list made of arena blocks
// whose size doubles up to 32KiB. Each block is [next Addr][data].
type ExpUnrolledLinkedList struct {
	arena *MemoryArena
	addr  Addr
}

func OpenExpUnrolledLinkedList(arena *MemoryArena, stateAddr Addr) ExpUnrolledLinkedList {
	return ExpUnrolledLinkedList{arena: arena, addr: stateAddr}
}

func (l ExpUnrolledLinkedList) Write(data []byte) {
	s := readListState(l.arena, l.addr)
	for len(data) > 0 {
		if s.head.IsNull() || int(s.tailLen) == blockLen(s.numBlock-1) {
			n := blockLen(s.numBlock)
			block := l.arena.Allocate(4 + n)
			if s.head.IsNull() {
				s.head = block
			} else {
				l.arena.WriteUint32(s.tail, uint32(block))
			}
			s.tail = block
			s.tailLen = 0
			s.numBlock++
		}
		free := blockLen(s.numBlock-1) - int(s.tailLen)
		n := copy(l.arena.Slice(s.tail.Offset(4+s.tailLen), free), data)
		s.tailLen += uint32(n)
		data = data[n:]
	}
	writeListState(l.arena, l.addr, s)
}

// ReadTo appends the full content of the list to dst.
func (l ExpUnrolledLinkedList) ReadTo(dst []byte) []byte {
	s := readListState(l.arena, l.addr)
	block := s.head
	for i := uint32(0); i < s.numBlock; i++ {
		n := blockLen(i)
		if block == s.tail {
			n = int(s.tailLen)
		}
		dst = append(dst, l.arena.Slice(block.Offset(4), n)...)
		block = Addr(l.arena.ReadUint32(block))
	}
	return dst
}
