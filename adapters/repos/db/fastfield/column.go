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
	"encoding/binary"
	"math/bits"
)

// Cardinality describes how many values a column holds per document.
type Cardinality uint8

const (
	// Full columns hold exactly one value per document.
	Full Cardinality = iota
	// Optional columns hold zero or one value per document.
	Optional
	// Multivalued columns hold any number of values per document.
	Multivalued
)

func (c Cardinality) String() string {
	switch c {
	case Full:
		return "full"
	case Optional:
		return "optional"
	case Multivalued:
		return "multivalued"
	default:
		return "unknown"
	}
}

// Column gives random access to the u64 values of one field. Values of
// non u64 fields are stored mapped to order preserving u64s, see
// schema.FastValue.
type Column struct {
	cardinality Cardinality
	numDocs     uint32
	vals        values
	present     *rankBitset
	offsets     values
}

// OpenColumn reads a column laid out as
//
//	[cardinality u8][num docs u32]
//	full:        [values]
//	optional:    [num words u32][presence words u64...][values]
//	multivalued: [start offsets, num docs + 1][values]
func OpenColumn(data []byte) (*Column, error) {
	if len(data) < 5 {
		return nil, corrupted("column header truncated")
	}
	c := &Column{
		cardinality: Cardinality(data[0]),
		numDocs:     binary.LittleEndian.Uint32(data[1:]),
	}
	pos := 5

	switch c.cardinality {
	case Full:
	case Optional:
		if len(data) < pos+4 {
			return nil, corrupted("presence header truncated")
		}
		numWords := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if numWords != (int(c.numDocs)+63)/64 || len(data) < pos+8*numWords {
			return nil, corrupted("presence bitset of %d words invalid for %d docs", numWords, c.numDocs)
		}
		words := make([]uint64, numWords)
		for i := range words {
			words[i] = binary.LittleEndian.Uint64(data[pos:])
			pos += 8
		}
		c.present = newRankBitset(words)
	case Multivalued:
		offsets, n, err := openValues(data[pos:])
		if err != nil {
			return nil, err
		}
		if offsets.num != int(c.numDocs)+1 {
			return nil, corrupted("%d start offsets for %d docs", offsets.num, c.numDocs)
		}
		c.offsets = offsets
		pos += n
	default:
		return nil, corrupted("unknown cardinality %d", data[0])
	}

	vals, _, err := openValues(data[pos:])
	if err != nil {
		return nil, err
	}
	c.vals = vals

	expected := -1
	switch c.cardinality {
	case Full:
		expected = int(c.numDocs)
	case Optional:
		expected = int(c.present.count())
	case Multivalued:
		expected = int(c.offsets.get(int(c.numDocs)))
	}
	if vals.num != expected {
		return nil, corrupted("%s column holds %d values, expected %d", c.cardinality, vals.num, expected)
	}
	return c, nil
}

func (c *Column) NumDocs() uint32 {
	return c.numDocs
}

func (c *Column) NumValues() int {
	return c.vals.num
}

func (c *Column) Cardinality() Cardinality {
	return c.cardinality
}

func (c *Column) Codec() Codec {
	return c.vals.codec
}

// MinValue and MaxValue bound every value of the column. They are only
// meaningful if the column holds values.
func (c *Column) MinValue() uint64 {
	return c.vals.min
}

func (c *Column) MaxValue() uint64 {
	return c.vals.max
}

// Get returns the first value of doc.
func (c *Column) Get(doc uint32) (uint64, bool) {
	if doc >= c.numDocs {
		return 0, false
	}
	switch c.cardinality {
	case Full:
		return c.vals.get(int(doc)), true
	case Optional:
		if !c.present.contains(doc) {
			return 0, false
		}
		return c.vals.get(int(c.present.rank(doc))), true
	default:
		start, end := c.valueRange(doc)
		if start == end {
			return 0, false
		}
		return c.vals.get(start), true
	}
}

func (c *Column) GetOr(doc uint32, def uint64) uint64 {
	if v, ok := c.Get(doc); ok {
		return v
	}
	return def
}

func (c *Column) valueRange(doc uint32) (int, int) {
	return int(c.offsets.get(int(doc))), int(c.offsets.get(int(doc) + 1))
}

// Values appends all values of doc to dst[:0].
func (c *Column) Values(doc uint32, dst []uint64) []uint64 {
	dst = dst[:0]
	if c.cardinality != Multivalued {
		if v, ok := c.Get(doc); ok {
			dst = append(dst, v)
		}
		return dst
	}
	if doc >= c.numDocs {
		return dst
	}
	start, end := c.valueRange(doc)
	for i := start; i < end; i++ {
		dst = append(dst, c.vals.get(i))
	}
	return dst
}

// GetRange fills dst with the first value of the docs start,
// start+1, ..., using def for docs without a value.
func (c *Column) GetRange(start uint32, dst []uint64, def uint64) {
	if c.cardinality == Full {
		for i := range dst {
			doc := start + uint32(i)
			if doc >= c.numDocs {
				dst[i] = def
				continue
			}
			dst[i] = c.vals.get(int(doc))
		}
		return
	}
	for i := range dst {
		dst[i] = c.GetOr(start+uint32(i), def)
	}
}

// rankBitset is a presence bitset with a cumulative popcount per word,
// making rank a constant time operation.
type rankBitset struct {
	words []uint64
	ranks []uint32
}

func newRankBitset(words []uint64) *rankBitset {
	ranks := make([]uint32, len(words)+1)
	for i, w := range words {
		ranks[i+1] = ranks[i] + uint32(bits.OnesCount64(w))
	}
	return &rankBitset{words: words, ranks: ranks}
}

func (b *rankBitset) contains(i uint32) bool {
	return b.words[i/64]&(1<<(i%64)) != 0
}

// rank is the number of set bits before i.
func (b *rankBitset) rank(i uint32) uint32 {
	w := i / 64
	return b.ranks[w] + uint32(bits.OnesCount64(b.words[w]&(1<<(i%64)-1)))
}

func (b *rankBitset) count() uint32 {
	return b.ranks[len(b.ranks)-1]
}
