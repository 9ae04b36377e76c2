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
	"github.com/weaviate/textindex/entities/schema"
)

// FieldNormsWriter records the number of tokens of every indexed text
// field per document.
type FieldNormsWriter struct {
	norms map[schema.FieldID][]uint64
}

func NewFieldNormsWriter(s *schema.Schema) *FieldNormsWriter {
	w := &FieldNormsWriter{norms: map[schema.FieldID][]uint64{}}
	for _, f := range s.Fields() {
		if f.HasFieldNorms() {
			w.norms[f.ID] = nil
		}
	}
	return w
}

// Record sets the norm of field for doc. Docs never recorded have a norm
// of zero.
func (w *FieldNormsWriter) Record(doc uint32, field schema.FieldID, norm uint32) {
	norms, ok := w.norms[field]
	if !ok {
		return
	}
	for uint32(len(norms)) <= doc {
		norms = append(norms, 0)
	}
	norms[doc] = uint64(norm)
	w.norms[field] = norms
}

func (w *FieldNormsWriter) Norm(field schema.FieldID, doc uint32) uint32 {
	norms := w.norms[field]
	if doc >= uint32(len(norms)) {
		return 0
	}
	return uint32(norms[doc])
}

func (w *FieldNormsWriter) MemUsage() int {
	total := 0
	for _, n := range w.norms {
		total += cap(n) * 8
	}
	return total
}

func (w *FieldNormsWriter) Reset() {
	for f, n := range w.norms {
		w.norms[f] = n[:0]
	}
}

func (w *FieldNormsWriter) Serialize(out io.Writer, numDocs uint32) (int64, error) {
	cw := NewCompositeWriter()
	for field, norms := range w.norms {
		for uint32(len(norms)) < numDocs {
			norms = append(norms, 0)
		}
		norms = norms[:numDocs]
		docs := make([]uint32, numDocs)
		for i := range docs {
			docs[i] = uint32(i)
		}
		cw.Add(field, func(dst []byte) []byte { return appendColumn(dst, docs, norms, numDocs) })
	}
	n, err := cw.WriteTo(out)
	if err != nil {
		return n, errors.Wrap(err, "serialize field norms")
	}
	return n, nil
}

// FieldNorms reads the norms written by FieldNormsWriter.
type FieldNorms struct {
	cols map[schema.FieldID]*Column
}

func OpenFieldNorms(data []byte) (*FieldNorms, error) {
	composite, err := OpenComposite(data)
	if err != nil {
		return nil, err
	}
	fn := &FieldNorms{cols: map[schema.FieldID]*Column{}}
	for _, id := range composite.Fields() {
		blob, _ := composite.Get(id)
		c, err := OpenColumn(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "open field norms of field %d", id)
		}
		if c.Cardinality() != Full {
			return nil, corrupted("field norms of field %d are %s", id, c.Cardinality())
		}
		fn.cols[id] = c
	}
	return fn, nil
}

// Get returns the norm of field for doc, or 0 if the field has no norms.
func (f *FieldNorms) Get(field schema.FieldID, doc uint32) uint32 {
	c, ok := f.cols[field]
	if !ok {
		return 0
	}
	v, _ := c.Get(doc)
	return uint32(v)
}

// Column returns the norms of field, nil if it has none.
func (f *FieldNorms) Column(field schema.FieldID) *Column {
	return f.cols[field]
}
