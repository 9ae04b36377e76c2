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
	"math"

	"github.com/weaviate/textindex/entities/errors"
)

// BlockSize is the number of postings bit-packed together. Postings lists
// are encoded as
//
//	[skip entry]... one per full block
//	[full block]...  packed doc deltas, then packed term freqs
//	[tail]           uvarint (doc delta, term freq) of the last < BlockSize docs
//
// Term freqs are omitted for lists recorded without frequencies.
const BlockSize = 128

// Terminated is the doc id of an exhausted cursor.
const Terminated = math.MaxUint32

const skipEntrySize = 22

// SkipEntry describes one full block. MaxTermFreq and MinFieldNorm bound
// the best score any doc of the block can reach, as BM25 grows with the
// term frequency and shrinks with the field length.
type SkipEntry struct {
	LastDoc      uint32
	ByteLen      uint32
	TermFreqSum  uint32
	MaxTermFreq  uint32
	MinFieldNorm uint32
	DocBitWidth  uint8
	TfBitWidth   uint8
}

func (e SkipEntry) encode(dst []byte) []byte {
	var buf [skipEntrySize]byte
	binary.LittleEndian.PutUint32(buf[0:], e.LastDoc)
	binary.LittleEndian.PutUint32(buf[4:], e.ByteLen)
	binary.LittleEndian.PutUint32(buf[8:], e.TermFreqSum)
	binary.LittleEndian.PutUint32(buf[12:], e.MaxTermFreq)
	binary.LittleEndian.PutUint32(buf[16:], e.MinFieldNorm)
	buf[20] = e.DocBitWidth
	buf[21] = e.TfBitWidth
	return append(dst, buf[:]...)
}

func decodeSkipEntry(src []byte) SkipEntry {
	return SkipEntry{
		LastDoc:      binary.LittleEndian.Uint32(src[0:]),
		ByteLen:      binary.LittleEndian.Uint32(src[4:]),
		TermFreqSum:  binary.LittleEndian.Uint32(src[8:]),
		MaxTermFreq:  binary.LittleEndian.Uint32(src[12:]),
		MinFieldNorm: binary.LittleEndian.Uint32(src[16:]),
		DocBitWidth:  src[20],
		TfBitWidth:   src[21],
	}
}

// TermInfoSize is the encoded size of a TermInfo, the term dictionary
// stores them with a fixed stride.
const TermInfoSize = 36

// TermInfo locates the postings and positions of one term and carries the
// statistics needed for scoring without opening the postings.
type TermInfo struct {
	DocFreq         uint32
	PostingsOffset  uint64
	PostingsLen     uint32
	PositionsOffset uint64
	PositionsLen    uint32
	MaxTermFreq     uint32
	MinFieldNorm    uint32
}

func (ti TermInfo) Encode(dst []byte) []byte {
	var buf [TermInfoSize]byte
	binary.LittleEndian.PutUint32(buf[0:], ti.DocFreq)
	binary.LittleEndian.PutUint64(buf[4:], ti.PostingsOffset)
	binary.LittleEndian.PutUint32(buf[12:], ti.PostingsLen)
	binary.LittleEndian.PutUint64(buf[16:], ti.PositionsOffset)
	binary.LittleEndian.PutUint32(buf[24:], ti.PositionsLen)
	binary.LittleEndian.PutUint32(buf[28:], ti.MaxTermFreq)
	binary.LittleEndian.PutUint32(buf[32:], ti.MinFieldNorm)
	return append(dst, buf[:]...)
}

func DecodeTermInfo(src []byte) TermInfo {
	return TermInfo{
		DocFreq:         binary.LittleEndian.Uint32(src[0:]),
		PostingsOffset:  binary.LittleEndian.Uint64(src[4:]),
		PostingsLen:     binary.LittleEndian.Uint32(src[12:]),
		PositionsOffset: binary.LittleEndian.Uint64(src[16:]),
		PositionsLen:    binary.LittleEndian.Uint32(src[24:]),
		MaxTermFreq:     binary.LittleEndian.Uint32(src[28:]),
		MinFieldNorm:    binary.LittleEndian.Uint32(src[32:]),
	}
}

func corrupted(format string, args ...interface{}) error {
	return errors.NewCorruptedError("postings", format, args...)
}
