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
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/weaviate/textindex/entities/schema"
)

const compositeEntrySize = 4 + 8 + 8

// CompositeWriter packs one blob per field into a single file:
//
//	[blobs][field u32, offset u64, len u64]...[num entries u32]
type CompositeWriter struct {
	data    []byte
	entries []compositeEntry
}

type compositeEntry struct {
	field  schema.FieldID
	offset uint64
	length uint64
}

func NewCompositeWriter() *CompositeWriter {
	return &CompositeWriter{}
}

// Add appends the blob built by fn for field.
func (w *CompositeWriter) Add(field schema.FieldID, fn func(dst []byte) []byte) {
	start := len(w.data)
	w.data = fn(w.data)
	w.entries = append(w.entries, compositeEntry{
		field:  field,
		offset: uint64(start),
		length: uint64(len(w.data) - start),
	})
}

func (w *CompositeWriter) WriteTo(out io.Writer) (int64, error) {
	sort.Slice(w.entries, func(i, j int) bool { return w.entries[i].field < w.entries[j].field })
	buf := w.data
	for _, e := range w.entries {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.field))
		buf = binary.LittleEndian.AppendUint64(buf, e.offset)
		buf = binary.LittleEndian.AppendUint64(buf, e.length)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(w.entries)))
	n, err := out.Write(buf)
	if err != nil {
		return int64(n), errors.Wrap(err, "write composite file")
	}
	return int64(n), nil
}

// Composite is a read view over a file written by CompositeWriter.
type Composite struct {
	blobs map[schema.FieldID][]byte
}

func OpenComposite(data []byte) (*Composite, error) {
	if len(data) < 4 {
		return nil, corrupted("composite footer truncated")
	}
	num := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	tocLen := num * compositeEntrySize
	if len(data) < 4+tocLen {
		return nil, corrupted("composite table of %d entries truncated", num)
	}
	blobsLen := uint64(len(data) - 4 - tocLen)
	toc := data[blobsLen : len(data)-4]

	c := &Composite{blobs: make(map[schema.FieldID][]byte, num)}
	for i := 0; i < num; i++ {
		entry := toc[i*compositeEntrySize:]
		field := schema.FieldID(binary.LittleEndian.Uint32(entry))
		offset := binary.LittleEndian.Uint64(entry[4:])
		length := binary.LittleEndian.Uint64(entry[12:])
		if offset+length > blobsLen || offset+length < offset {
			return nil, corrupted("blob of field %d out of bounds", field)
		}
		c.blobs[field] = data[offset : offset+length]
	}
	return c, nil
}

func (c *Composite) Get(field schema.FieldID) ([]byte, bool) {
	b, ok := c.blobs[field]
	return b, ok
}

func (c *Composite) Fields() []schema.FieldID {
	out := make([]schema.FieldID, 0, len(c.blobs))
	for f := range c.blobs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
