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
	"fmt"
)

type FieldID uint32

// FieldType is the value type of a field. Every type has a one byte code
// which is embedded into the binary representation of terms.
type FieldType uint8

const (
	Text FieldType = iota + 1
	U64
	I64
	F64
	Bool
	Date
	Bytes
	JSON
)

var fieldTypeCodes = map[FieldType]byte{
	Text:  's',
	U64:   'u',
	I64:   'i',
	F64:   'f',
	Bool:  'o',
	Date:  'd',
	Bytes: 'b',
	JSON:  'j',
}

var fieldTypeNames = map[FieldType]string{
	Text:  "text",
	U64:   "u64",
	I64:   "i64",
	F64:   "f64",
	Bool:  "bool",
	Date:  "date",
	Bytes: "bytes",
	JSON:  "json",
}

func (t FieldType) Code() byte {
	return fieldTypeCodes[t]
}

func FieldTypeFromCode(code byte) (FieldType, bool) {
	for typ, c := range fieldTypeCodes {
		if c == code {
			return typ, true
		}
	}
	return 0, false
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", uint8(t))
}

// IsFastValue reports whether values of this type map onto an order
// preserving uint64.
func (t FieldType) IsFastValue() bool {
	switch t {
	case U64, I64, F64, Bool, Date:
		return true
	default:
		return false
	}
}

// IsTokenized reports whether values of this type go through a tokenizer.
func (t FieldType) IsTokenized() bool {
	return t == Text || t == JSON
}

func (t FieldType) MarshalText() ([]byte, error) {
	name, ok := fieldTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown field type %d", uint8(t))
	}
	return []byte(name), nil
}

func (t *FieldType) UnmarshalText(text []byte) error {
	for typ, name := range fieldTypeNames {
		if name == string(text) {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown field type %q", text)
}

// IndexRecordOption controls how much is recorded per posting.
type IndexRecordOption uint8

const (
	// Basic records doc ids only.
	Basic IndexRecordOption = iota
	WithFreqs
	WithFreqsAndPositions
)

func (o IndexRecordOption) HasFreqs() bool {
	return o >= WithFreqs
}

func (o IndexRecordOption) HasPositions() bool {
	return o >= WithFreqsAndPositions
}

func (o IndexRecordOption) String() string {
	switch o {
	case Basic:
		return "basic"
	case WithFreqs:
		return "freq"
	case WithFreqsAndPositions:
		return "position"
	default:
		return fmt.Sprintf("IndexRecordOption(%d)", uint8(o))
	}
}

func (o IndexRecordOption) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *IndexRecordOption) UnmarshalText(text []byte) error {
	switch string(text) {
	case "basic":
		*o = Basic
	case "freq":
		*o = WithFreqs
	case "position":
		*o = WithFreqsAndPositions
	default:
		return fmt.Errorf("unknown index record option %q", text)
	}
	return nil
}

// FieldOptions decides which structures a field contributes to.
type FieldOptions struct {
	Indexed   bool              `json:"indexed"`
	Record    IndexRecordOption `json:"record"`
	Tokenizer string            `json:"tokenizer,omitempty"`
	Stored    bool              `json:"stored"`
	Fast      bool              `json:"fast"`
}

var (
	// TextOptions indexes tokenized text with frequencies and positions.
	TextOptions = FieldOptions{Indexed: true, Record: WithFreqsAndPositions, Tokenizer: "default"}
	// StringOptions indexes the value untokenized as a single term.
	StringOptions = FieldOptions{Indexed: true, Record: Basic, Tokenizer: "raw"}
	// NumericOptions indexes numeric values so they can be matched by
	// term and range queries.
	NumericOptions = FieldOptions{Indexed: true, Record: Basic}
)

func (o FieldOptions) WithStored() FieldOptions {
	o.Stored = true
	return o
}

func (o FieldOptions) WithFast() FieldOptions {
	o.Fast = true
	return o
}

func (o FieldOptions) WithTokenizer(name string) FieldOptions {
	o.Tokenizer = name
	return o
}

func (o FieldOptions) WithRecord(record IndexRecordOption) FieldOptions {
	o.Record = record
	return o
}

type Field struct {
	ID   FieldID   `json:"id"`
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	FieldOptions
}

// HasFieldNorms is true for indexed text and json fields, the only fields
// that are scored by length.
func (f Field) HasFieldNorms() bool {
	return f.Indexed && f.Type.IsTokenized()
}

// IndexRecord is what the postings of the field hold. Values of other
// fields are indexed as single terms, so they only record doc ids.
func (f Field) IndexRecord() IndexRecordOption {
	if !f.Type.IsTokenized() {
		return Basic
	}
	return f.Record
}
