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

package document

import (
	"fmt"
	"time"

	"github.com/weaviate/textindex/entities/schema"
)

// Value is a typed field value. Numeric values are kept in their order
// preserving uint64 form, which is what terms and fast fields consume.
type Value struct {
	typ  schema.FieldType
	num  uint64
	data []byte
}

func Text(s string) Value {
	return Value{typ: schema.Text, data: []byte(s)}
}

func Bytes(b []byte) Value {
	return Value{typ: schema.Bytes, data: b}
}

func U64(v uint64) Value {
	return Value{typ: schema.U64, num: v}
}

func I64(v int64) Value {
	return Value{typ: schema.I64, num: schema.I64ToU64(v)}
}

func F64(v float64) Value {
	return Value{typ: schema.F64, num: schema.F64ToU64(v)}
}

func Bool(v bool) Value {
	return Value{typ: schema.Bool, num: schema.BoolToU64(v)}
}

func Date(t time.Time) Value {
	return Value{typ: schema.Date, num: schema.DateToU64(t)}
}

// FromFastValue rebuilds a numeric value from its mapped form.
func FromFastValue(typ schema.FieldType, u uint64) Value {
	return Value{typ: typ, num: u}
}

func (v Value) Type() schema.FieldType { return v.typ }

func (v Value) AsText() string    { return string(v.data) }
func (v Value) AsBytes() []byte   { return v.data }
func (v Value) AsU64() uint64     { return v.num }
func (v Value) AsI64() int64      { return schema.U64ToI64(v.num) }
func (v Value) AsF64() float64    { return schema.U64ToF64(v.num) }
func (v Value) AsBool() bool      { return v.num != 0 }
func (v Value) AsDate() time.Time { return schema.U64ToDate(v.num) }

// FastValue is the mapped uint64 of a numeric value.
func (v Value) FastValue() uint64 { return v.num }

// Term returns the single term a non tokenized value is indexed under.
func (v Value) Term(field schema.FieldID) schema.Term {
	if v.typ.IsFastValue() {
		return schema.TermFromFastValue(field, v.typ, v.num)
	}
	return schema.NewTerm(field, v.typ, v.data)
}

func (v Value) String() string {
	switch v.typ {
	case schema.Text:
		return v.AsText()
	case schema.Bytes:
		return fmt.Sprintf("%x", v.data)
	case schema.JSON:
		return string(v.data)
	default:
		return schema.FormatFastValue(v.typ, v.num)
	}
}
