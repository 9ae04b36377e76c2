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

package directory

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// FileSlice is a read only view of a file. The bytes stay valid until the
// FileSlice it was opened as is closed.
type FileSlice struct {
	contents []byte
	release  func() error
}

func NewFileSlice(contents []byte) FileSlice {
	return FileSlice{contents: contents}
}

func newMMapSlice(m mmap.MMap) FileSlice {
	return FileSlice{contents: m, release: m.Unmap}
}

func (f FileSlice) Bytes() []byte {
	return f.contents
}

func (f FileSlice) Len() uint64 {
	return uint64(len(f.contents))
}

// Slice returns a view of [start, end). Closing it is a no-op, the parent
// owns the memory.
func (f FileSlice) Slice(start, end uint64) (FileSlice, error) {
	if end > uint64(len(f.contents)) || start > end {
		return FileSlice{}, errors.Errorf("range [%d, %d) out of bounds of %d bytes", start, end, len(f.contents))
	}
	return FileSlice{contents: f.contents[start:end]}, nil
}

func (f FileSlice) ReadUint64(offset uint64) uint64 {
	return binary.LittleEndian.Uint64(f.contents[offset : offset+8])
}

func (f FileSlice) ReadUint32(offset uint64) uint32 {
	return binary.LittleEndian.Uint32(f.contents[offset : offset+4])
}

func (f FileSlice) Reader(start, end uint64) io.Reader {
	if end == 0 {
		return bytes.NewReader(f.contents[start:])
	}
	return bytes.NewReader(f.contents[start:end])
}

func (f FileSlice) Close() error {
	if f.release == nil {
		return nil
	}
	if err := f.release(); err != nil {
		return errors.Wrap(err, "munmap")
	}
	return nil
}
