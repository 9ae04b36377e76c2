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

package postings

import (
	"encoding/binary"

	"github.com/weaviate/textindex/adapters/repos/db/bitpacking"
)

// EncodePositions appends the position deltas of one term:
//
//	[uvarint count]
//	[bit width][packed BlockSize deltas]...
//	[uvarint delta]... for the last count % BlockSize
func EncodePositions(dst []byte, deltas []uint32) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(deltas)))
	dst = append(dst, tmp[:n]...)

	numFull := len(deltas) / BlockSize
	for b := 0; b < numFull; b++ {
		block := deltas[b*BlockSize : (b+1)*BlockSize]
		width := bitpacking.BitWidth32(block)
		dst = append(dst, width)
		dst = bitpacking.Pack32(dst, block, width)
	}
	for _, d := range deltas[numFull*BlockSize:] {
		n = binary.PutUvarint(tmp[:], uint64(d))
		dst = append(dst, tmp[:n]...)
	}
	return dst
}

// PositionReader gives access to the position deltas of one term by their
// index. Reads are expected to move forward, reading backwards restarts
// the block walk from the first block.
type PositionReader struct {
	data    []byte
	total   uint64
	numFull int
	start   int

	block       int
	blockOffset int
	buf         [BlockSize]uint32
}

func NewPositionReader(data []byte) (*PositionReader, error) {
	total, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, corrupted("invalid positions header")
	}
	return &PositionReader{
		data:        data,
		total:       total,
		numFull:     int(total / BlockSize),
		start:       n,
		block:       -1,
		blockOffset: n,
	}, nil
}

func (r *PositionReader) Len() uint64 {
	return r.total
}

// Read fills dst with the deltas at offset, offset+1, ...
func (r *PositionReader) Read(offset uint64, dst []uint32) error {
	if offset+uint64(len(dst)) > r.total {
		return corrupted("position range %d+%d out of bounds (%d)", offset, len(dst), r.total)
	}
	for i := range dst {
		idx := offset + uint64(i)
		blk := int(idx / BlockSize)
		if blk != r.block {
			if err := r.load(blk); err != nil {
				return err
			}
		}
		dst[i] = r.buf[idx%BlockSize]
	}
	return nil
}

func (r *PositionReader) load(target int) error {
	b, offset := r.block, r.blockOffset
	if b < 0 || target < b {
		b, offset = 0, r.start
	}
	for b < target {
		if offset >= len(r.data) {
			return corrupted("positions block %d out of bounds", b)
		}
		offset += 1 + bitpacking.PackedLen(BlockSize, r.data[offset])
		b++
	}

	if b < r.numFull {
		if offset >= len(r.data) {
			return corrupted("positions block %d out of bounds", b)
		}
		width := r.data[offset]
		end := offset + 1 + bitpacking.PackedLen(BlockSize, width)
		if width > 32 || end > len(r.data) {
			return corrupted("invalid positions block %d", b)
		}
		bitpacking.Unpack32(r.buf[:], r.data[offset+1:end], width)
	} else {
		pos := offset
		tail := int(r.total % BlockSize)
		for i := 0; i < tail; i++ {
			v, n := binary.Uvarint(r.data[pos:])
			if n <= 0 {
				return corrupted("invalid positions tail")
			}
			r.buf[i] = uint32(v)
			pos += n
		}
	}
	r.block, r.blockOffset = b, offset
	return nil
}
