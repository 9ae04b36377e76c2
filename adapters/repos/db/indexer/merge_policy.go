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

package indexer

import (
	"math"
	"sort"
	"strings"

	"github.com/weaviate/textindex/adapters/repos/db/segment"
)

// MergeCandidate is a group of segments to merge into one.
type MergeCandidate []segment.ID

// key identifies the candidate independently of the order of its ids.
func (c MergeCandidate) key() string {
	ids := make([]string, len(c))
	for i, id := range c {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// MergePolicy decides which segments are merged. It only sees committed
// segments which are not part of a running merge.
type MergePolicy interface {
	ComputeMergeCandidates(metas []segment.Meta) []MergeCandidate
}

// NoMergePolicy never merges.
type NoMergePolicy struct{}

func (NoMergePolicy) ComputeMergeCandidates([]segment.Meta) []MergeCandidate {
	return nil
}

const (
	DefaultMinLayerSize       = 10_000
	DefaultMaxDocsBeforeMerge = 10_000_000
	DefaultDeletesRatio       = 0.5
)

// LogMergePolicy groups segments into levels by the logarithm of their
// number of alive docs and merges a level once it holds MinNumSegments
// segments, lowest level first.
type LogMergePolicy struct {
	// MinNumSegments is the number of segments of one level that triggers a
	// merge.
	MinNumSegments int
	// MinLayerSize puts every segment with fewer docs into level 0.
	MinLayerSize uint32
	// MaxDocsBeforeMerge excludes segments which are large enough already.
	MaxDocsBeforeMerge uint32
	// DeletesRatio merges a segment on its own once the share of its deleted
	// docs reaches it. Zero disables it.
	DeletesRatio float64
	// MaxSegments is the live segment count above which the smallest
	// segments are merged even if no level is full.
	MaxSegments int
}

func NewLogMergePolicy(minNumSegments, maxSegments int) *LogMergePolicy {
	return &LogMergePolicy{
		MinNumSegments:     max(minNumSegments, 2),
		MinLayerSize:       DefaultMinLayerSize,
		MaxDocsBeforeMerge: DefaultMaxDocsBeforeMerge,
		DeletesRatio:       DefaultDeletesRatio,
		MaxSegments:        maxSegments,
	}
}

func (p *LogMergePolicy) level(numDocs uint32) int {
	minLayer := max(p.MinLayerSize, 1)
	n := max(numDocs, minLayer)
	return int(math.Log2(float64(n) / float64(minLayer)))
}

func (p *LogMergePolicy) ComputeMergeCandidates(metas []segment.Meta) []MergeCandidate {
	var candidates []MergeCandidate
	used := map[segment.ID]struct{}{}

	levels := map[int][]segment.Meta{}
	for _, m := range metas {
		if p.MaxDocsBeforeMerge > 0 && m.NumDocs() > p.MaxDocsBeforeMerge {
			continue
		}
		if p.DeletesRatio > 0 && m.MaxDoc > 0 &&
			float64(m.NumDeleted())/float64(m.MaxDoc) >= p.DeletesRatio {
			candidates = append(candidates, MergeCandidate{m.ID})
			used[m.ID] = struct{}{}
			continue
		}
		l := p.level(m.NumDocs())
		levels[l] = append(levels[l], m)
	}

	ordered := make([]int, 0, len(levels))
	for l := range levels {
		ordered = append(ordered, l)
	}
	sort.Ints(ordered)

	for _, l := range ordered {
		level := levels[l]
		if len(level) < p.MinNumSegments {
			continue
		}
		candidate := make(MergeCandidate, 0, len(level))
		for _, m := range level {
			candidate = append(candidate, m.ID)
			used[m.ID] = struct{}{}
		}
		candidates = append(candidates, candidate)
	}

	if len(candidates) > 0 || p.MaxSegments <= 0 || len(metas) <= p.MaxSegments {
		return candidates
	}

	// too many segments and no level is full: merge the smallest ones
	rest := make([]segment.Meta, 0, len(metas))
	for _, m := range metas {
		if _, ok := used[m.ID]; !ok {
			rest = append(rest, m)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].NumDocs() < rest[j].NumDocs() })
	n := min(len(rest), p.MinNumSegments)
	if n < 2 {
		return candidates
	}
	candidate := make(MergeCandidate, n)
	for i := range candidate {
		candidate[i] = rest[i].ID
	}
	return append(candidates, candidate)
}
