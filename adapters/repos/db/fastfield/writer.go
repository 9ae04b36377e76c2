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
	"io"

	"github.com/pkg/errors"
	"github.com/weaviate/textindex/entities/document"
	"github.com/weaviate/textindex/entities/schema"
)

// Writer collects the fast field values of a segment, one builder per
// fast field of the schema.
type Writer struct {
	schema  *schema.Schema
	numeric map[schema.FieldID]*ColumnBuilder
	bytes   map[schema.FieldID]*BytesColumnBuilder
}

func NewWriter(s *schema.Schema) *Writer {
	w := &Writer{
		schema:  s,
		numeric: map[schema.FieldID]*ColumnBuilder{},
		bytes:   map[schema.FieldID]*BytesColumnBuilder{},
	}
	for _, f := range s.Fields() {
		if !f.Fast {
			continue
		}
		if f.Type.IsFastValue() {
			w.numeric[f.ID] = NewColumnBuilder()
		} else {
			w.bytes[f.ID] = NewBytesColumnBuilder()
		}
	}
	return w
}

// AddDocument records the fast values of d for doc. Documents must be
// added in increasing doc order.
func (w *Writer) AddDocument(doc uint32, d *document.Document) {
	for _, fv := range d.Values {
		if b, ok := w.numeric[fv.Field]; ok {
			b.Add(doc, fv.Value.FastValue())
		} else if b, ok := w.bytes[fv.Field]; ok {
			b.Add(doc, fv.Value.AsBytes())
		}
	}
}

// Numeric returns the builder of a u64, i64, f64, bool or date field.
func (w *Writer) Numeric(field schema.FieldID) (*ColumnBuilder, bool) {
	b, ok := w.numeric[field]
	return b, ok
}

// Bytes returns the builder of a text or bytes field.
func (w *Writer) Bytes(field schema.FieldID) (*BytesColumnBuilder, bool) {
	b, ok := w.bytes[field]
	return b, ok
}

func (w *Writer) MemUsage() int {
	total := 0
	for _, b := range w.numeric {
		total += b.MemUsage()
	}
	for _, b := range w.bytes {
		total += b.MemUsage()
	}
	return total
}

func (w *Writer) Reset() {
	for _, b := range w.numeric {
		b.Reset()
	}
	for _, b := range w.bytes {
		b.Reset()
	}
}

// Serialize writes every column as one blob of a composite file.
func (w *Writer) Serialize(out io.Writer, numDocs uint32) (int64, error) {
	cw := NewCompositeWriter()
	for field, b := range w.numeric {
		cw.Add(field, func(dst []byte) []byte { return b.Append(dst, numDocs) })
	}
	for field, b := range w.bytes {
		cw.Add(field, func(dst []byte) []byte { return b.Append(dst, numDocs) })
	}
	n, err := cw.WriteTo(out)
	if err != nil {
		return n, errors.Wrap(err, "serialize fast fields")
	}
	return n, nil
}

// Readers holds the fast field columns of one segment.
type Readers struct {
	schema  *schema.Schema
	numeric map[schema.FieldID]*Column
	bytes   map[schema.FieldID]*BytesColumn
}

func OpenReaders(data []byte, s *schema.Schema) (*Readers, error) {
	composite, err := OpenComposite(data)
	if err != nil {
		return nil, err
	}
	r := &Readers{
		schema:  s,
		numeric: map[schema.FieldID]*Column{},
		bytes:   map[schema.FieldID]*BytesColumn{},
	}
	for _, id := range composite.Fields() {
		f, ok := s.Field(id)
		if !ok || !f.Fast {
			return nil, corrupted("column for unknown fast field %d", id)
		}
		blob, _ := composite.Get(id)
		if f.Type.IsFastValue() {
			c, err := OpenColumn(blob)
			if err != nil {
				return nil, errors.Wrapf(err, "open column of field %q", f.Name)
			}
			r.numeric[id] = c
		} else {
			c, err := OpenBytesColumn(blob)
			if err != nil {
				return nil, errors.Wrapf(err, "open column of field %q", f.Name)
			}
			r.bytes[id] = c
		}
	}
	return r, nil
}

// Column returns the raw column of a numeric fast field.
func (r *Readers) Column(field schema.FieldID) (*Column, bool) {
	c, ok := r.numeric[field]
	return c, ok
}

func (r *Readers) Bytes(field schema.FieldID) (*BytesColumn, bool) {
	c, ok := r.bytes[field]
	return c, ok
}

func (r *Readers) typed(field schema.FieldID, typ schema.FieldType) (*Column, bool) {
	f, ok := r.schema.Field(field)
	if !ok || f.Type != typ {
		return nil, false
	}
	return r.Column(field)
}

func (r *Readers) U64(field schema.FieldID) (*U64Column, bool) {
	c, ok := r.typed(field, schema.U64)
	if !ok {
		return nil, false
	}
	return U64(c), true
}

func (r *Readers) I64(field schema.FieldID) (*I64Column, bool) {
	c, ok := r.typed(field, schema.I64)
	if !ok {
		return nil, false
	}
	return I64(c), true
}

func (r *Readers) F64(field schema.FieldID) (*F64Column, bool) {
	c, ok := r.typed(field, schema.F64)
	if !ok {
		return nil, false
	}
	return F64(c), true
}

func (r *Readers) Bool(field schema.FieldID) (*BoolColumn, bool) {
	c, ok := r.typed(field, schema.Bool)
	if !ok {
		return nil, false
	}
	return Bool(c), true
}

func (r *Readers) Date(field schema.FieldID) (*DateColumn, bool) {
	c, ok := r.typed(field, schema.Date)
	if !ok {
		return nil, false
	}
	return Date(c), true
}
