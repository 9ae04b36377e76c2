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

package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// TermMetadataLength is the size of the field id and type code prefix of
// every term.
const TermMetadataLength = 5

// Term is the binary key of the inverted index:
//
//	[field id uint32 big endian][type code][value bytes]
//
// Numeric values are stored as order preserving big endian uint64, so the
// byte order of two terms of one field equals the order of their values.
type Term []byte

func NewTerm(field FieldID, typ FieldType, value []byte) Term {
	t := make(Term, TermMetadataLength, TermMetadataLength+len(value))
	binary.BigEndian.PutUint32(t, uint32(field))
	t[4] = typ.Code()
	return append(t, value...)
}

// TermFromFastValue builds a term from an already mapped uint64.
func TermFromFastValue(field FieldID, typ FieldType, val uint64) Term {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], val)
	return NewTerm(field, typ, buf[:])
}

func TermFromText(field FieldID, text string) Term {
	return NewTerm(field, Text, []byte(text))
}

func TermFromBytes(field FieldID, value []byte) Term {
	return NewTerm(field, Bytes, value)
}

func TermFromU64(field FieldID, val uint64) Term {
	return TermFromFastValue(field, U64, val)
}

func TermFromI64(field FieldID, val int64) Term {
	return TermFromFastValue(field, I64, I64ToU64(val))
}

func TermFromF64(field FieldID, val float64) Term {
	return TermFromFastValue(field, F64, F64ToU64(val))
}

func TermFromBool(field FieldID, val bool) Term {
	return TermFromFastValue(field, Bool, BoolToU64(val))
}

func TermFromDate(field FieldID, val time.Time) Term {
	return TermFromFastValue(field, Date, DateToU64(val))
}

// FieldPrefix returns the bytes shared by every term of a field and type.
func FieldPrefix(field FieldID, typ FieldType) []byte {
	return NewTerm(field, typ, nil)
}

func (t Term) Field() FieldID {
	return FieldID(binary.BigEndian.Uint32(t[:4]))
}

func (t Term) Type() FieldType {
	typ, _ := FieldTypeFromCode(t[4])
	return typ
}

func (t Term) ValueBytes() []byte {
	return t[TermMetadataLength:]
}

// FastValue returns the mapped uint64 of a numeric term.
func (t Term) FastValue() (uint64, bool) {
	if !t.Type().IsFastValue() || len(t.ValueBytes()) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(t.ValueBytes()), true
}

func (t Term) Equal(other Term) bool {
	return bytes.Equal(t, other)
}

func (t Term) Compare(other Term) int {
	return bytes.Compare(t, other)
}

func (t Term) Clone() Term {
	out := make(Term, len(t))
	copy(out, t)
	return out
}

func (t Term) Valid() bool {
	if len(t) < TermMetadataLength {
		return false
	}
	_, ok := FieldTypeFromCode(t[4])
	return ok
}

func (t Term) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Term(invalid %x)", []byte(t))
	}
	var value string
	switch t.Type() {
	case Text:
		value = fmt.Sprintf("%q", t.ValueBytes())
	case Bytes:
		value = fmt.Sprintf("%x", t.ValueBytes())
	case JSON:
		value = formatJSONTerm(t)
	default:
		u, ok := t.FastValue()
		if !ok {
			value = fmt.Sprintf("invalid %x", t.ValueBytes())
			break
		}
		value = FormatFastValue(t.Type(), u)
	}
	return fmt.Sprintf("Term(field=%d, type=%s, %s)", t.Field(), t.Type(), value)
}

func I64ToU64(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

func U64ToI64(u uint64) int64 {
	return int64(u ^ (1 << 63))
}

// F64ToU64 maps floats onto uint64 such that the order of the mapped
// values is the IEEE 754 total order.
func F64ToU64(v float64) uint64 {
	b := math.Float64bits(v)
	if b&(1<<63) != 0 {
		return ^b
	}
	return b | (1 << 63)
}

func U64ToF64(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

func BoolToU64(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// DateToU64 keeps microsecond precision.
func DateToU64(t time.Time) uint64 {
	return I64ToU64(t.UnixMicro())
}

func U64ToDate(u uint64) time.Time {
	return time.UnixMicro(U64ToI64(u)).UTC()
}

// FormatFastValue renders a mapped value in its natural representation.
func FormatFastValue(typ FieldType, u uint64) string {
	switch typ {
	case U64:
		return fmt.Sprintf("%d", u)
	case I64:
		return fmt.Sprintf("%d", U64ToI64(u))
	case F64:
		return fmt.Sprintf("%g", U64ToF64(u))
	case Bool:
		return fmt.Sprintf("%t", u != 0)
	case Date:
		return U64ToDate(u).Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%d", u)
	}
}
