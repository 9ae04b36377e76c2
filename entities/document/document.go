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
	"github.com/vmihailenco/msgpack/v5"
	"github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

type FieldValue struct {
	Field schema.FieldID
	Value Value
}

// Document is an ordered list of field values. A field may appear more
// than once.
type Document struct {
	Values []FieldValue
}

func New() *Document {
	return &Document{}
}

func (d *Document) Add(field schema.FieldID, v Value) *Document {
	d.Values = append(d.Values, FieldValue{Field: field, Value: v})
	return d
}

func (d *Document) AddText(field schema.FieldID, text string) *Document {
	return d.Add(field, Text(text))
}

func (d *Document) Get(field schema.FieldID) []Value {
	var out []Value
	for _, fv := range d.Values {
		if fv.Field == field {
			out = append(out, fv.Value)
		}
	}
	return out
}

func (d *Document) First(field schema.FieldID) (Value, bool) {
	for _, fv := range d.Values {
		if fv.Field == field {
			return fv.Value, true
		}
	}
	return Value{}, false
}

func (d *Document) Len() int {
	return len(d.Values)
}

// Validate rejects unknown fields and values whose type differs from the
// field type. It never mutates anything.
func (d *Document) Validate(s *schema.Schema) error {
	for i, fv := range d.Values {
		f, ok := s.Field(fv.Field)
		if !ok {
			return errors.NewSchemaError("value %d: unknown field id %d", i, fv.Field)
		}
		if f.Type != fv.Value.typ {
			return errors.NewSchemaError("value %d: field %q expects %s, got %s",
				i, f.Name, f.Type, fv.Value.typ)
		}
		if f.Type == schema.JSON {
			if err := validJSONObject(fv.Value.data); err != nil {
				return errors.NewSchemaError("value %d: field %q: %v", i, f.Name, err)
			}
		}
	}
	return nil
}

// Stored keeps only the values of stored fields.
func (d *Document) Stored(s *schema.Schema) *Document {
	out := &Document{Values: make([]FieldValue, 0, len(d.Values))}
	for _, fv := range d.Values {
		if f, ok := s.Field(fv.Field); ok && f.Stored {
			out.Values = append(out.Values, fv)
		}
	}
	return out
}

type wireValue struct {
	Field uint32 `msgpack:"f"`
	Type  uint8  `msgpack:"t"`
	Num   uint64 `msgpack:"n,omitempty"`
	Data  []byte `msgpack:"d,omitempty"`
}

// Marshal serializes the document with msgpack.
func Marshal(d *Document) ([]byte, error) {
	wire := make([]wireValue, len(d.Values))
	for i, fv := range d.Values {
		wire[i] = wireValue{
			Field: uint32(fv.Field),
			Type:  uint8(fv.Value.typ),
			Num:   fv.Value.num,
			Data:  fv.Value.data,
		}
	}
	return msgpack.Marshal(wire)
}

func Unmarshal(data []byte) (*Document, error) {
	var wire []wireValue
	if err := msgpack.Unmarshal(data, &wire); err != nil {
		return nil, errors.NewCorruptedError("", "decode stored document: %v", err)
	}
	d := &Document{Values: make([]FieldValue, len(wire))}
	for i, w := range wire {
		d.Values[i] = FieldValue{
			Field: schema.FieldID(w.Field),
			Value: Value{typ: schema.FieldType(w.Type), num: w.Num, data: w.Data},
		}
	}
	return d, nil
}
