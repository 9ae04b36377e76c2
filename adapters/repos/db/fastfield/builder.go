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
	"encoding/binary"
	"sort"
)

// ColumnBuilder accumulates the values of one column. Values must be added
// in non decreasing doc order.
type ColumnBuilder struct {
	docs []uint32
	vals []uint64
}

func NewColumnBuilder() *ColumnBuilder {
	return &ColumnBuilder{}
}

func (b *ColumnBuilder) Add(doc uint32, v uint64) {
	b.docs = append(b.docs, doc)
	b.vals = append(b.vals, v)
}

func (b *ColumnBuilder) Len() int {
	return len(b.vals)
}

func (b *ColumnBuilder) MemUsage() int {
	return cap(b.docs)*4 + cap(b.vals)*8
}

func (b *ColumnBuilder) Reset() {
	b.docs = b.docs[:0]
	b.vals = b.vals[:0]
}

func (b *ColumnBuilder) cardinality(numDocs uint32) Cardinality {
	if len(b.docs) == int(numDocs) {
		full := true
		for i, doc := range b.docs {
			if doc != uint32(i) {
				full = false
				break
			}
		}
		if full {
			return Full
		}
	}
	for i := 1; i < len(b.docs); i++ {
		if b.docs[i] == b.docs[i-1] {
			return Multivalued
		}
	}
	return Optional
}

// Append appends the encoded column for numDocs documents to dst.
func (b *ColumnBuilder) Append(dst []byte, numDocs uint32) []byte {
	return appendColumn(dst, b.docs, b.vals, numDocs)
}

func appendColumn(dst []byte, docs []uint32, vals []uint64, numDocs uint32) []byte {
	cb := ColumnBuilder{docs: docs, vals: vals}
	card := cb.cardinality(numDocs)
	dst = append(dst, byte(card))
	dst = binary.LittleEndian.AppendUint32(dst, numDocs)

	switch card {
	case Optional:
		words := make([]uint64, (int(numDocs)+63)/64)
		for _, doc := range docs {
			words[doc/64] |= 1 << (doc % 64)
		}
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(words)))
		for _, w := range words {
			dst = binary.LittleEndian.AppendUint64(dst, w)
		}
	case Multivalued:
		offsets := make([]uint64, numDocs+1)
		for _, doc := range docs {
			offsets[doc+1]++
		}
		for i := 1; i < len(offsets); i++ {
			offsets[i] += offsets[i-1]
		}
		dst = appendValuesWith(dst, offsets, CodecBitpacked, nil)
	}
	return appendValues(dst, vals)
}

// BytesColumnBuilder accumulates the values of a text or bytes column.
// Values are stored as ordinals into a sorted dictionary, so ordinals
// compare like the values themselves.
type BytesColumnBuilder struct {
	docs []uint32
	vals [][]byte
	size int
}

func NewBytesColumnBuilder() *BytesColumnBuilder {
	return &BytesColumnBuilder{}
}

func (b *BytesColumnBuilder) Add(doc uint32, v []byte) {
	b.docs = append(b.docs, doc)
	b.vals = append(b.vals, append([]byte(nil), v...))
	b.size += len(v)
}

func (b *BytesColumnBuilder) Len() int {
	return len(b.vals)
}

func (b *BytesColumnBuilder) MemUsage() int {
	return cap(b.docs)*4 + cap(b.vals)*24 + b.size
}

func (b *BytesColumnBuilder) Reset() {
	b.docs = b.docs[:0]
	b.vals = b.vals[:0]
	b.size = 0
}

// Append appends the encoded column to dst:
//
//	[num terms u32][term end offsets u32...][term bytes][ordinal column]
func (b *BytesColumnBuilder) Append(dst []byte, numDocs uint32) []byte {
	terms := make([][]byte, len(b.vals))
	copy(terms, b.vals)
	sort.Slice(terms, func(i, j int) bool { return bytes.Compare(terms[i], terms[j]) < 0 })
	uniq := terms[:0]
	for i, t := range terms {
		if i == 0 || !bytes.Equal(t, terms[i-1]) {
			uniq = append(uniq, t)
		}
	}

	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(uniq)))
	end := uint32(0)
	for _, t := range uniq {
		end += uint32(len(t))
		dst = binary.LittleEndian.AppendUint32(dst, end)
	}
	for _, t := range uniq {
		dst = append(dst, t...)
	}

	ords := make([]uint64, len(b.vals))
	for i, v := range b.vals {
		ords[i] = uint64(sort.Search(len(uniq), func(j int) bool { return bytes.Compare(uniq[j], v) >= 0 }))
	}
	return appendColumn(dst, b.docs, ords, numDocs)
}

// BytesColumn gives random access to the values of a text or bytes column.
type BytesColumn struct {
	ords  *Column
	ends  []byte
	terms []byte
	num   int
}

func OpenBytesColumn(data []byte) (*BytesColumn, error) {
	if len(data) < 4 {
		return nil, corrupted("bytes column header truncated")
	}
	num := int(binary.LittleEndian.Uint32(data))
	pos := 4
	if len(data) < pos+4*num {
		return nil, corrupted("bytes column offsets truncated")
	}
	ends := data[pos : pos+4*num]
	pos += 4 * num
	size := 0
	if num > 0 {
		size = int(binary.LittleEndian.Uint32(ends[4*(num-1):]))
	}
	if len(data) < pos+size {
		return nil, corrupted("bytes column terms truncated")
	}
	terms := data[pos : pos+size]
	pos += size

	ords, err := OpenColumn(data[pos:])
	if err != nil {
		return nil, err
	}
	if ords.NumValues() > 0 && ords.MaxValue() >= uint64(num) {
		return nil, corrupted("ordinal %d out of %d terms", ords.MaxValue(), num)
	}
	return &BytesColumn{ords: ords, ends: ends, terms: terms, num: num}, nil
}

// NumTerms is the number of distinct values.
func (c *BytesColumn) NumTerms() int {
	return c.num
}

// Ordinals exposes the ordinal column, ordinals sort like their values.
func (c *BytesColumn) Ordinals() *Column {
	return c.ords
}

// Term returns the value with ordinal ord.
func (c *BytesColumn) Term(ord uint64) []byte {
	start := uint32(0)
	if ord > 0 {
		start = binary.LittleEndian.Uint32(c.ends[4*(ord-1):])
	}
	end := binary.LittleEndian.Uint32(c.ends[4*ord:])
	return c.terms[start:end]
}

func (c *BytesColumn) Get(doc uint32) ([]byte, bool) {
	ord, ok := c.ords.Get(doc)
	if !ok {
		return nil, false
	}
	return c.Term(ord), true
}

func (c *BytesColumn) Values(doc uint32, dst [][]byte) [][]byte {
	dst = dst[:0]
	var buf [8]uint64
	for _, ord := range c.ords.Values(doc, buf[:0]) {
		dst = append(dst, c.Term(ord))
	}
	return dst
}
