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

	"github.com/weaviate/textindex/adapters/repos/db/fastfield"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/schema"
)

// StatsFruit aggregates the values of a numeric fast field over the
// matching docs. Every value of a multi-valued field counts.
type StatsFruit struct {
	Count uint64  `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

func newStatsFruit() StatsFruit {
	return StatsFruit{Min: math.Inf(1), Max: math.Inf(-1)}
}

// Avg is NaN if no value was collected.
func (s StatsFruit) Avg() float64 {
	if s.Count == 0 {
		return math.NaN()
	}
	return s.Sum / float64(s.Count)
}

func (s *StatsFruit) add(v float64) {
	s.Count++
	s.Sum += v
	s.Min = math.Min(s.Min, v)
	s.Max = math.Max(s.Max, v)
}

func (s *StatsFruit) merge(other StatsFruit) {
	s.Count += other.Count
	s.Sum += other.Sum
	s.Min = math.Min(s.Min, other.Min)
	s.Max = math.Max(s.Max, other.Max)
}

// Stats computes count, sum, min, max and average of a fast field. Dates
// are aggregated as microseconds since the epoch.
type Stats struct {
	field schema.FieldID
}

func NewStats(field schema.FieldID) *Stats {
	return &Stats{field: field}
}

func (c *Stats) RequiresScoring() bool { return false }

func (c *Stats) ForSegment(_ uint32, r *segment.Reader) (SegmentCollector[StatsFruit], error) {
	f, err := fastValueField(r.Schema(), c.field)
	if err != nil {
		return nil, err
	}
	col, _ := r.FastFields().Column(c.field)
	return &statsSegment{col: col, toFloat: floatOf(f.Type), fruit: newStatsFruit()}, nil
}

func (c *Stats) Merge(fruits []StatsFruit) (StatsFruit, error) {
	out := newStatsFruit()
	for _, f := range fruits {
		out.merge(f)
	}
	return out, nil
}

type statsSegment struct {
	col     *fastfield.Column
	toFloat func(uint64) float64
	buf     []uint64
	fruit   StatsFruit
}

func (s *statsSegment) Collect(doc uint32, _ float32) {
	if s.col == nil {
		return
	}
	s.buf = s.col.Values(doc, s.buf[:0])
	for _, v := range s.buf {
		s.fruit.add(s.toFloat(v))
	}
}

func (s *statsSegment) Harvest() StatsFruit {
	return s.fruit
}

func floatOf(t schema.FieldType) func(uint64) float64 {
	switch t {
	case schema.I64, schema.Date:
		return func(u uint64) float64 { return float64(schema.U64ToI64(u)) }
	case schema.F64:
		return schema.U64ToF64
	default:
		return func(u uint64) float64 { return float64(u) }
	}
}
