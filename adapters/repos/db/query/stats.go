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

package query

import (
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/schema"
)

// Statistics are the index wide numbers scores are computed from. They
// are summed over every segment of a searcher so that scores of different
// segments compare.
type Statistics interface {
	Schema() *schema.Schema
	// NumDocs counts the alive docs.
	NumDocs() uint64
	// DocFreq counts the docs holding term, deleted docs included.
	DocFreq(term schema.Term) (uint64, error)
	// AverageFieldNorm is the average number of tokens of field per doc.
	AverageFieldNorm(field schema.FieldID) float32
}

type segmentStatistics struct {
	r *segment.Reader
}

// SegmentStatistics computes statistics from a single segment.
func SegmentStatistics(r *segment.Reader) Statistics {
	return segmentStatistics{r: r}
}

func (s segmentStatistics) Schema() *schema.Schema {
	return s.r.Schema()
}

func (s segmentStatistics) NumDocs() uint64 {
	return uint64(s.r.NumDocs())
}

func (s segmentStatistics) DocFreq(term schema.Term) (uint64, error) {
	df, err := s.r.DocFreq(term)
	return uint64(df), err
}

func (s segmentStatistics) AverageFieldNorm(field schema.FieldID) float32 {
	if s.r.MaxDoc() == 0 {
		return 0
	}
	return float32(s.r.FieldTokens(field)) / float32(s.r.MaxDoc())
}
