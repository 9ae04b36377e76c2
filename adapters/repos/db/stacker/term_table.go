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
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
	"github.com/weaviate/textindex/entities/schema"
)

// recorder layout, following the list state:
//
//	[current doc + 1][term freq][last position][doc freq][record option]
const (
	recCurDoc    = listStateSize
	recTermFreq  = listStateSize + 4
	recLastPos   = listStateSize + 8
	recDocFreq   = listStateSize + 12
	recRecord    = listStateSize + 16
	recorderSize = listStateSize + 20

	// positionEnd terminates the positions of one doc. Positions are
	// written as delta+1 so a real delta never collides with it.
	positionEnd = 0
)

const defaultTableSize = 1 << 12

// TermTable accumulates the postings of one indexing batch. Every term
// maps to a recorder whose postings are appended, varint encoded, to an
// ExpUnrolledLinkedList in the shared arena:
//
//	per doc: [doc delta] then either nothing (basic), [term freq] (freqs),
//	or [position delta + 1]... [0] (positions)
//
// A TermTable is not safe for concurrent use, each indexing worker owns
// its own.
type TermTable struct {
	arena   *MemoryArena
	table   *ArenaHashMap
	scratch [binary.MaxVarintLen32]byte
	closed  bool
}

func NewTermTable() *TermTable {
	arena := NewMemoryArena()
	return &TermTable{
		arena: arena,
		table: NewArenaHashMap(arena, defaultTableSize, recorderSize),
	}
}

func (t *TermTable) NumTerms() int {
	return t.table.Len()
}

func (t *TermTable) MemUsage() int {
	return t.arena.MemUsage() + t.table.MemUsage()
}

// Reset releases the arena and the table.
func (t *TermTable) Reset() {
	t.arena.Reset()
	t.table = NewArenaHashMap(t.arena, defaultTableSize, recorderSize)
	t.closed = false
}

func (t *TermTable) writeUvarint(list ExpUnrolledLinkedList, v uint32) {
	n := binary.PutUvarint(t.scratch[:], uint64(v))
	list.Write(t.scratch[:n])
}

// Subscribe records one occurrence of term in doc. Docs must be
// subscribed in non decreasing order, and positions within one doc in non
// decreasing order.
func (t *TermTable) Subscribe(term []byte, doc uint32, position uint32,
	record schema.IndexRecordOption,
) UnorderedID {
	return t.table.MutateOrCreate(term, func(addr Addr, created bool) {
		a := t.arena
		list := OpenExpUnrolledLinkedList(a, addr)
		if created {
			a.WriteUint32(addr.Offset(recRecord), uint32(record))
		}
		curDoc := a.ReadUint32(addr.Offset(recCurDoc))
		if curDoc != doc+1 {
			if curDoc != 0 {
				t.closeDoc(addr)
				t.writeUvarint(list, doc-(curDoc-1))
			} else {
				t.writeUvarint(list, doc)
			}
			a.WriteUint32(addr.Offset(recCurDoc), doc+1)
			a.WriteUint32(addr.Offset(recTermFreq), 0)
			a.WriteUint32(addr.Offset(recLastPos), 0)
			a.WriteUint32(addr.Offset(recDocFreq), a.ReadUint32(addr.Offset(recDocFreq))+1)
		}
		a.WriteUint32(addr.Offset(recTermFreq), a.ReadUint32(addr.Offset(recTermFreq))+1)
		if record.HasPositions() {
			last := a.ReadUint32(addr.Offset(recLastPos))
			t.writeUvarint(list, position-last+1)
			a.WriteUint32(addr.Offset(recLastPos), position)
		}
	})
}

func (t *TermTable) closeDoc(addr Addr) {
	record := schema.IndexRecordOption(t.arena.ReadUint32(addr.Offset(recRecord)))
	list := OpenExpUnrolledLinkedList(t.arena, addr)
	switch {
	case record.HasPositions():
		t.writeUvarint(list, positionEnd)
	case record.HasFreqs():
		t.writeUvarint(list, t.arena.ReadUint32(addr.Offset(recTermFreq)))
	}
}

// closeAll terminates the open doc of every term. After this no more
// occurrences may be subscribed.
func (t *TermTable) closeAll() {
	if t.closed {
		return
	}
	t.closed = true
	var addrs []Addr
	t.table.Iter(func(_ []byte, addr Addr, _ UnorderedID) bool {
		addrs = append(addrs, addr)
		return true
	})
	for _, addr := range addrs {
		t.closeDoc(addr)
	}
}

// TermEntry references one term of the table. Term points into the arena
// and is valid until Reset.
type TermEntry struct {
	Term    []byte
	Addr    Addr
	ID      UnorderedID
	DocFreq uint32
}

// SortedTerms closes the table for writing and returns its terms in
// lexicographic byte order.
func (t *TermTable) SortedTerms() []TermEntry {
	t.closeAll()
	entries := make([]TermEntry, 0, t.table.Len())
	t.table.Iter(func(key []byte, addr Addr, id UnorderedID) bool {
		entries = append(entries, TermEntry{
			Term:    key,
			Addr:    addr,
			ID:      id,
			DocFreq: t.arena.ReadUint32(addr.Offset(recDocFreq)),
		})
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Term, entries[j].Term) < 0
	})
	return entries
}

// Postings is a decoded posting list. Positions holds the positions of
// all docs back to back, Freqs[i] of them for doc i.
type Postings struct {
	Docs      []uint32
	Freqs     []uint32
	Positions []uint32
	raw       []byte
}

func (p *Postings) Reset() {
	p.Docs = p.Docs[:0]
	p.Freqs = p.Freqs[:0]
	p.Positions = p.Positions[:0]
	p.raw = p.raw[:0]
}

func (p *Postings) Len() int {
	return len(p.Docs)
}

// ReadPostings decodes the postings of the entry into dst, reusing its
// buffers. Terms of basic fields report a term frequency of one.
func (t *TermTable) ReadPostings(entry TermEntry, dst *Postings) error {
	t.closeAll()
	dst.Reset()
	addr := entry.Addr
	record := schema.IndexRecordOption(t.arena.ReadUint32(addr.Offset(recRecord)))
	dst.raw = OpenExpUnrolledLinkedList(t.arena, addr).ReadTo(dst.raw)

	r := bytes.NewReader(dst.raw)
	var doc uint32
	for r.Len() > 0 {
		delta, err := binary.ReadUvarint(r)
		if err != nil {
			return errors.Wrap(err, "read doc delta")
		}
		doc += uint32(delta)
		dst.Docs = append(dst.Docs, doc)

		switch {
		case record.HasPositions():
			var tf, pos uint32
			for {
				v, err := binary.ReadUvarint(r)
				if err != nil {
					return errors.Wrap(err, "read position")
				}
				if v == positionEnd {
					break
				}
				pos += uint32(v) - 1
				dst.Positions = append(dst.Positions, pos)
				tf++
			}
			dst.Freqs = append(dst.Freqs, tf)
		case record.HasFreqs():
			tf, err := binary.ReadUvarint(r)
			if err != nil {
				return errors.Wrap(err, "read term freq")
			}
			dst.Freqs = append(dst.Freqs, uint32(tf))
		default:
			dst.Freqs = append(dst.Freqs, 1)
		}
	}
	if uint32(len(dst.Docs)) != entry.DocFreq {
		return errors.Errorf("term table: decoded %d docs, recorded doc freq %d",
			len(dst.Docs), entry.DocFreq)
	}
	return nil
}
