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
	"time"

	"github.com/weaviate/textindex/entities/schema"
)

// TypedColumn converts the mapped u64 values of a Column back to T.
type TypedColumn[T any] struct {
	*Column
	conv func(uint64) T
}

func newTyped[T any](c *Column, conv func(uint64) T) *TypedColumn[T] {
	return &TypedColumn[T]{Column: c, conv: conv}
}

func (c *TypedColumn[T]) Get(doc uint32) (T, bool) {
	u, ok := c.Column.Get(doc)
	if !ok {
		var zero T
		return zero, false
	}
	return c.conv(u), true
}

func (c *TypedColumn[T]) GetOr(doc uint32, def T) T {
	if v, ok := c.Get(doc); ok {
		return v
	}
	return def
}

func (c *TypedColumn[T]) Values(doc uint32, dst []T) []T {
	dst = dst[:0]
	var buf [8]uint64
	for _, u := range c.Column.Values(doc, buf[:0]) {
		dst = append(dst, c.conv(u))
	}
	return dst
}

func (c *TypedColumn[T]) MinValue() T {
	return c.conv(c.Column.MinValue())
}

func (c *TypedColumn[T]) MaxValue() T {
	return c.conv(c.Column.MaxValue())
}

func identity(u uint64) uint64 { return u }

func toBool(u uint64) bool { return u != 0 }

type (
	U64Column  = TypedColumn[uint64]
	I64Column  = TypedColumn[int64]
	F64Column  = TypedColumn[float64]
	BoolColumn = TypedColumn[bool]
	DateColumn = TypedColumn[time.Time]
)

func U64(c *Column) *U64Column   { return newTyped(c, identity) }
func I64(c *Column) *I64Column   { return newTyped(c, schema.U64ToI64) }
func F64(c *Column) *F64Column   { return newTyped(c, schema.U64ToF64) }
func Bool(c *Column) *BoolColumn { return newTyped(c, toBool) }
func Date(c *Column) *DateColumn { return newTyped(c, schema.U64ToDate) }
