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
	"encoding/json"

	"github.com/pkg/errors"
)

// Schema is the immutable list of fields of an index. Field ids are dense
// and equal to the position of the field in the list.
type Schema struct {
	fields []Field
	byName map[string]FieldID
}

func (s *Schema) Fields() []Field {
	return s.fields
}

func (s *Schema) Len() int {
	return len(s.fields)
}

func (s *Schema) Field(id FieldID) (Field, bool) {
	if int(id) >= len(s.fields) {
		return Field{}, false
	}
	return s.fields[id], true
}

func (s *Schema) FieldByName(name string) (Field, bool) {
	id, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[id], true
}

// MustFieldByName panics on unknown names. Intended for tests and for
// schemas built in the same function.
func (s *Schema) MustFieldByName(name string) FieldID {
	f, ok := s.FieldByName(name)
	if !ok {
		panic("unknown field " + name)
	}
	return f.ID
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields)
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var fields []Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	b := NewBuilder()
	for _, f := range fields {
		if int(f.ID) != len(b.fields) {
			return errors.Errorf("field %q has id %d, expected %d", f.Name, f.ID, len(b.fields))
		}
		b.AddField(f.Name, f.Type, f.FieldOptions)
	}
	built, err := b.Build()
	if err != nil {
		return err
	}
	*s = *built
	return nil
}

type Builder struct {
	fields []Field
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddField(name string, typ FieldType, opts FieldOptions) FieldID {
	id := FieldID(len(b.fields))
	if typ.IsTokenized() && opts.Indexed && opts.Tokenizer == "" {
		opts.Tokenizer = "default"
	}
	if !typ.IsTokenized() && typ != Bytes && opts.Indexed {
		// non text values are indexed as a single term per value
		opts.Record = Basic
		opts.Tokenizer = ""
	}
	b.fields = append(b.fields, Field{ID: id, Name: name, Type: typ, FieldOptions: opts})
	return id
}

func (b *Builder) AddTextField(name string, opts FieldOptions) FieldID {
	return b.AddField(name, Text, opts)
}

func (b *Builder) AddU64Field(name string, opts FieldOptions) FieldID {
	return b.AddField(name, U64, opts)
}

func (b *Builder) AddI64Field(name string, opts FieldOptions) FieldID {
	return b.AddField(name, I64, opts)
}

func (b *Builder) AddF64Field(name string, opts FieldOptions) FieldID {
	return b.AddField(name, F64, opts)
}

func (b *Builder) AddBoolField(name string, opts FieldOptions) FieldID {
	return b.AddField(name, Bool, opts)
}

func (b *Builder) AddDateField(name string, opts FieldOptions) FieldID {
	return b.AddField(name, Date, opts)
}

func (b *Builder) AddBytesField(name string, opts FieldOptions) FieldID {
	return b.AddField(name, Bytes, opts)
}

// AddJSONField adds a field of JSON objects. Text leaves are tokenized
// with the tokenizer of opts, other leaves are indexed as typed terms
// under their path.
func (b *Builder) AddJSONField(name string, opts FieldOptions) FieldID {
	return b.AddField(name, JSON, opts)
}

func (b *Builder) Build() (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(b.fields)),
		byName: make(map[string]FieldID, len(b.fields)),
	}
	copy(s.fields, b.fields)
	for _, f := range s.fields {
		if f.Name == "" {
			return nil, errors.Errorf("field %d has an empty name", f.ID)
		}
		if _, ok := fieldTypeCodes[f.Type]; !ok {
			return nil, errors.Errorf("field %q has unknown type %d", f.Name, f.Type)
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, errors.Errorf("duplicate field name %q", f.Name)
		}
		s.byName[f.Name] = f.ID
	}
	return s, nil
}
