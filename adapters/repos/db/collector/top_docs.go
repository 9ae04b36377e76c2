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
	"math"

	"github.com/weaviate/textindex/adapters/repos/db/segment"
)

type ScoredDoc struct {
	Score   float32    `json:"score"`
	Address DocAddress `json:"address"`
}

// worseScored orders by score descending, then by address ascending.
func worseScored(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return b.Address.Less(a.Address)
}

// TopDocs collects the k best scoring docs.
type TopDocs struct {
	k int
}

func NewTopDocs(k int) *TopDocs {
	return &TopDocs{k: k}
}

func (c *TopDocs) RequiresScoring() bool { return true }

func (c *TopDocs) ForSegment(ord uint32, _ *segment.Reader) (SegmentCollector[[]ScoredDoc], error) {
	return &topDocsSegment{ord: ord, heap: newBoundedHeap(c.k, worseScored)}, nil
}

func (c *TopDocs) Merge(fruits [][]ScoredDoc) ([]ScoredDoc, error) {
	return mergeSorted(fruits, c.k, worseScored), nil
}

type topDocsSegment struct {
	ord  uint32
	heap *boundedHeap[ScoredDoc]
}

func (s *topDocsSegment) Collect(doc uint32, score float32) {
	s.heap.Push(ScoredDoc{Score: score, Address: DocAddress{SegmentOrd: s.ord, DocID: doc}})
}

// Threshold is the score to beat once k docs are kept. Docs arrive in
// ascending order, so a later doc of equal score never makes it.
func (s *topDocsSegment) Threshold() float32 {
	if s.heap.k <= 0 {
		return math.MaxFloat32
	}
	if !s.heap.Full() {
		return NoThreshold
	}
	return s.heap.Top().Score
}

func (s *topDocsSegment) Harvest() []ScoredDoc {
	return s.heap.Sorted()
}
