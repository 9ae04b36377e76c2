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
	"github.com/weaviate/textindex/adapters/repos/db/fastfield"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

// FieldDoc is a doc sorted by the value of a fast field. Value is the
// order preserving encoding of the first value of the doc.
type FieldDoc struct {
	Value   uint64     `json:"value"`
	Missing bool       `json:"missing,omitempty"`
	Address DocAddress `json:"address"`
}

// TopDocsByField collects the k first docs in the order of a fast field.
// Docs without a value come last in both orders.
type TopDocsByField struct {
	field schema.FieldID
	k     int
	order Order
}

func NewTopDocsByField(field schema.FieldID, k int, order Order) *TopDocsByField {
	return &TopDocsByField{field: field, k: k, order: order}
}

func (c *TopDocsByField) RequiresScoring() bool { return false }

func (c *TopDocsByField) worse(a, b FieldDoc) bool {
	if a.Missing != b.Missing {
		return a.Missing
	}
	if a.Value != b.Value {
		if c.order == Desc {
			return a.Value < b.Value
		}
		return a.Value > b.Value
	}
	return b.Address.Less(a.Address)
}

func (c *TopDocsByField) ForSegment(ord uint32, r *segment.Reader) (SegmentCollector[[]FieldDoc], error) {
	if _, err := fastValueField(r.Schema(), c.field); err != nil {
		return nil, err
	}
	col, _ := r.FastFields().Column(c.field)
	return &byFieldSegment{ord: ord, col: col, heap: newBoundedHeap(c.k, c.worse)}, nil
}

func (c *TopDocsByField) Merge(fruits [][]FieldDoc) ([]FieldDoc, error) {
	return mergeSorted(fruits, c.k, c.worse), nil
}

type byFieldSegment struct {
	ord  uint32
	col  *fastfield.Column
	heap *boundedHeap[FieldDoc]
}

func (s *byFieldSegment) Collect(doc uint32, _ float32) {
	d := FieldDoc{Address: DocAddress{SegmentOrd: s.ord, DocID: doc}, Missing: true}
	if s.col != nil {
		if v, ok := s.col.Get(doc); ok {
			d.Value, d.Missing = v, false
		}
	}
	s.heap.Push(d)
}

func (s *byFieldSegment) Harvest() []FieldDoc {
	return s.heap.Sorted()
}

// fastValueField returns the field if it is a numeric fast field.
func fastValueField(s *schema.Schema, id schema.FieldID) (schema.Field, error) {
	f, ok := s.Field(id)
	if !ok {
		return schema.Field{}, enterrors.NewSchemaError("unknown field %d", id)
	}
	if !f.Fast || !f.Type.IsFastValue() {
		return schema.Field{}, enterrors.NewSchemaError("field %q is not a numeric fast field", f.Name)
	}
	return f, nil
}
