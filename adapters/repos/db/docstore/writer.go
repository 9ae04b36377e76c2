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

package docstore

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/weaviate/textindex/adapters/repos/db/compression"
	"github.com/weaviate/textindex/entities/document"
)

// DefaultBlockSize is the uncompressed size at which a block is closed.
const DefaultBlockSize = 16 * 1024

const (
	codecNameSize = 8
	footerSize    = codecNameSize + 8 + 4
	checkpointLen = 4 + 4 + 8 + 4
)

// Checkpoint locates one compressed block holding the docs
// [FirstDoc, EndDoc).
type Checkpoint struct {
	FirstDoc uint32
	EndDoc   uint32
	Offset   uint64
	Length   uint32
}

// Writer appends documents to a store laid out as
//
//	[compressed blocks][checkpoints][codec name][index offset u64][num docs u32]
//
// An uncompressed block is [num docs uvarint][doc lengths uvarint...][docs].
type Writer struct {
	out       io.Writer
	codec     compression.Codec
	blockSize int

	lens    []uint32
	payload []byte
	scratch []byte

	numDocs     uint32
	blockFirst  uint32
	offset      uint64
	checkpoints []Checkpoint
}

func NewWriter(out io.Writer, codec compression.Codec, blockSize int) *Writer {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Writer{out: out, codec: codec, blockSize: blockSize}
}

// Store appends d as the next document.
func (w *Writer) Store(d *document.Document) error {
	raw, err := document.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "marshal stored document")
	}
	return w.StoreBytes(raw)
}

// StoreBytes appends an already serialized document.
func (w *Writer) StoreBytes(raw []byte) error {
	w.lens = append(w.lens, uint32(len(raw)))
	w.payload = append(w.payload, raw...)
	w.numDocs++
	if len(w.payload) >= w.blockSize {
		return w.flushBlock()
	}
	return nil
}

func (w *Writer) NumDocs() uint32 {
	return w.numDocs
}

func (w *Writer) MemUsage() int {
	return cap(w.payload) + cap(w.scratch) + cap(w.lens)*4 + cap(w.checkpoints)*checkpointLen
}

func (w *Writer) writeBlock(compressed []byte, first, end uint32) error {
	n, err := w.out.Write(compressed)
	if err != nil {
		return errors.Wrap(err, "write doc store block")
	}
	w.checkpoints = append(w.checkpoints, Checkpoint{
		FirstDoc: first,
		EndDoc:   end,
		Offset:   w.offset,
		Length:   uint32(n),
	})
	w.offset += uint64(n)
	return nil
}

func (w *Writer) flushBlock() error {
	if len(w.lens) == 0 {
		return nil
	}
	block := binary.AppendUvarint(w.scratch[:0], uint64(len(w.lens)))
	for _, l := range w.lens {
		block = binary.AppendUvarint(block, uint64(l))
	}
	block = append(block, w.payload...)
	w.scratch = block

	compressed, err := w.codec.Compress(block)
	if err != nil {
		return errors.Wrap(err, "compress doc store block")
	}
	if err := w.writeBlock(compressed, w.blockFirst, w.numDocs); err != nil {
		return err
	}
	w.blockFirst = w.numDocs
	w.lens = w.lens[:0]
	w.payload = w.payload[:0]
	return nil
}

// Stack appends every block of r verbatim, shifting its doc ids to follow
// the docs already written. r must use the same codec.
func (w *Writer) Stack(r *Reader) error {
	if r.codec.Name() != w.codec.Name() {
		return errors.Errorf("cannot stack %s blocks into a %s store", r.codec.Name(), w.codec.Name())
	}
	if err := w.flushBlock(); err != nil {
		return err
	}
	base := w.numDocs
	for _, cp := range r.checkpoints {
		if err := w.writeBlock(r.rawBlock(cp), base+cp.FirstDoc, base+cp.EndDoc); err != nil {
			return err
		}
	}
	w.numDocs = base + r.numDocs
	w.blockFirst = w.numDocs
	return nil
}

// Close flushes the last block and writes the index and footer. It
// returns the total size of the store.
func (w *Writer) Close() (int64, error) {
	if err := w.flushBlock(); err != nil {
		return 0, err
	}
	buf := make([]byte, 0, 4+len(w.checkpoints)*checkpointLen+footerSize)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(w.checkpoints)))
	for _, cp := range w.checkpoints {
		buf = binary.LittleEndian.AppendUint32(buf, cp.FirstDoc)
		buf = binary.LittleEndian.AppendUint32(buf, cp.EndDoc)
		buf = binary.LittleEndian.AppendUint64(buf, cp.Offset)
		buf = binary.LittleEndian.AppendUint32(buf, cp.Length)
	}
	var name [codecNameSize]byte
	copy(name[:], w.codec.Name())
	buf = append(buf, name[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, w.offset)
	buf = binary.LittleEndian.AppendUint32(buf, w.numDocs)

	if _, err := w.out.Write(buf); err != nil {
		return 0, errors.Wrap(err, "write doc store index")
	}
	return int64(w.offset) + int64(len(buf)), nil
}
