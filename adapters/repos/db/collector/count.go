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

package collector

import (
	"github.com/weaviate/sroar"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
)

// Count counts the matching docs.
type Count struct{}

func NewCount() Count { return Count{} }

func (Count) RequiresScoring() bool { return false }

func (Count) ForSegment(uint32, *segment.Reader) (SegmentCollector[uint64], error) {
	return &countSegment{}, nil
}

func (Count) Merge(fruits []uint64) (uint64, error) {
	var n uint64
	for _, f := range fruits {
		n += f
	}
	return n, nil
}

type countSegment struct {
	n uint64
}

func (s *countSegment) Collect(uint32, float32) { s.n++ }
func (s *countSegment) Harvest() uint64         { return s.n }

// DocSetFruit holds the matching docs of every segment by segment ordinal.
type DocSetFruit map[uint32]*sroar.Bitmap

func (f DocSetFruit) Len() uint64 {
	var n uint64
	for _, bm := range f {
		n += uint64(bm.GetCardinality())
	}
	return n
}

func (f DocSetFruit) Contains(addr DocAddress) bool {
	bm, ok := f[addr.SegmentOrd]
	return ok && bm.Contains(uint64(addr.DocID))
}

// Addresses lists the docs in address order.
func (f DocSetFruit) Addresses() []DocAddress {
	var out []DocAddress
	for ord, bm := range f {
		for _, doc := range bm.ToArray() {
			out = append(out, DocAddress{SegmentOrd: ord, DocID: uint32(doc)})
		}
	}
	sortAddresses(out)
	return out
}

// DocSet collects the addresses of all matching docs.
type DocSet struct{}

func NewDocSet() DocSet { return DocSet{} }

func (DocSet) RequiresScoring() bool { return false }

func (DocSet) ForSegment(ord uint32, _ *segment.Reader) (SegmentCollector[DocSetFruit], error) {
	return &docSetSegment{ord: ord, docs: sroar.NewBitmap()}, nil
}

func (DocSet) Merge(fruits []DocSetFruit) (DocSetFruit, error) {
	out := DocSetFruit{}
	for _, f := range fruits {
		for ord, bm := range f {
			if prev, ok := out[ord]; ok {
				out[ord] = sroar.Or(prev, bm)
				continue
			}
			out[ord] = bm
		}
	}
	return out, nil
}

type docSetSegment struct {
	ord  uint32
	docs *sroar.Bitmap
}

func (s *docSetSegment) Collect(doc uint32, _ float32) { s.docs.Set(uint64(doc)) }

func (s *docSetSegment) Harvest() DocSetFruit {
	return DocSetFruit{s.ord: s.docs}
}
