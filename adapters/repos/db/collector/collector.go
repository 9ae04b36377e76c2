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

// Package collector turns the matches of a query into results. A
// Collector creates one SegmentCollector per segment of a searcher, the
// segments are collected in parallel and their fruits merged at the end.
package collector

import (
	"fmt"
	"math"
	"sort"

	"github.com/weaviate/textindex/adapters/repos/db/segment"
)

// DocAddress addresses a doc within one searcher generation.
type DocAddress struct {
	SegmentOrd uint32 `json:"segment_ord"`
	DocID      uint32 `json:"doc_id"`
}

func (a DocAddress) Less(other DocAddress) bool {
	if a.SegmentOrd != other.SegmentOrd {
		return a.SegmentOrd < other.SegmentOrd
	}
	return a.DocID < other.DocID
}

func (a DocAddress) String() string {
	return fmt.Sprintf("%d/%d", a.SegmentOrd, a.DocID)
}

type Collector[F any] interface {
	// ForSegment starts the collection of the segment with ordinal ord.
	ForSegment(ord uint32, r *segment.Reader) (SegmentCollector[F], error)
	// RequiresScoring is false if the collector ignores scores, the
	// query is then executed without computing them.
	RequiresScoring() bool
	Merge(fruits []F) (F, error)
}

// SegmentCollector is fed the alive matches of one segment in doc order.
type SegmentCollector[F any] interface {
	Collect(doc uint32, score float32)
	Harvest() F
}

// Pruning is implemented by segment collectors which ignore docs scoring
// at or below a threshold. It allows the query to skip them.
type Pruning interface {
	Threshold() float32
}

// NoThreshold is the threshold of a collector which takes every doc.
var NoThreshold = float32(math.Inf(-1))

type Order uint8

const (
	Asc Order = iota
	Desc
)

func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

func sortAddresses(addrs []DocAddress) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
}
