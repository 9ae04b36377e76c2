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
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/weaviate/textindex/adapters/repos/db/bitpacking"
	"github.com/weaviate/textindex/entities/schema"
)

// Serializer writes the postings and positions of consecutive terms to two
// append-only streams. Usage per term is NewTerm, WriteDoc for every doc in
// increasing order, then CloseTerm.
type Serializer struct {
	postingsW  io.Writer
	positionsW io.Writer

	postingsWritten  uint64
	positionsWritten uint64

	record    schema.IndexRecordOption
	docs      []uint32
	tfs       []uint32
	norms     []uint32
	positions []uint32

	scratch  [BlockSize]uint32
	skipBuf  []byte
	blockBuf []byte
	posBuf   []byte
}

func NewSerializer(postings, positions io.Writer) *Serializer {
	return &Serializer{postingsW: postings, positionsW: positions}
}

func (s *Serializer) NewTerm(record schema.IndexRecordOption) {
	s.record = record
	s.docs = s.docs[:0]
	s.tfs = s.tfs[:0]
	s.norms = s.norms[:0]
	s.positions = s.positions[:0]
}

// WriteDoc adds one posting. positions are absolute and non decreasing,
// they are ignored unless the term records positions. fieldNorm is the
// length of the field in doc and only feeds the block score bounds.
func (s *Serializer) WriteDoc(doc, termFreq uint32, positions []uint32, fieldNorm uint32) {
	if !s.record.HasFreqs() {
		termFreq = 1
	}
	s.docs = append(s.docs, doc)
	s.tfs = append(s.tfs, termFreq)
	s.norms = append(s.norms, fieldNorm)
	if s.record.HasPositions() {
		var prev uint32
		for _, p := range positions {
			s.positions = append(s.positions, p-prev)
			prev = p
		}
	}
}

func (s *Serializer) PostingsWritten() uint64 {
	return s.postingsWritten
}

func (s *Serializer) PositionsWritten() uint64 {
	return s.positionsWritten
}

// CloseTerm encodes the buffered postings and returns where they were
// written.
func (s *Serializer) CloseTerm() (TermInfo, error) {
	for i := 1; i < len(s.docs); i++ {
		if s.docs[i] <= s.docs[i-1] {
			return TermInfo{}, errors.Errorf("postings not strictly increasing: %d after %d",
				s.docs[i], s.docs[i-1])
		}
	}
	if s.record.HasPositions() {
		var sum uint64
		for _, tf := range s.tfs {
			sum += uint64(tf)
		}
		if sum != uint64(len(s.positions)) {
			return TermInfo{}, errors.Errorf("term freqs sum to %d but %d positions were given",
				sum, len(s.positions))
		}
	}

	info := TermInfo{
		DocFreq:         uint32(len(s.docs)),
		PostingsOffset:  s.postingsWritten,
		PositionsOffset: s.positionsWritten,
		MinFieldNorm:    math.MaxUint32,
	}

	s.encodePostings(&info)
	if _, err := s.postingsW.Write(s.skipBuf); err != nil {
		return TermInfo{}, errors.Wrap(err, "write skip entries")
	}
	if _, err := s.postingsW.Write(s.blockBuf); err != nil {
		return TermInfo{}, errors.Wrap(err, "write postings blocks")
	}
	info.PostingsLen = uint32(len(s.skipBuf) + len(s.blockBuf))
	s.postingsWritten += uint64(info.PostingsLen)

	if s.record.HasPositions() {
		s.posBuf = EncodePositions(s.posBuf[:0], s.positions)
		if _, err := s.positionsW.Write(s.posBuf); err != nil {
			return TermInfo{}, errors.Wrap(err, "write positions")
		}
		info.PositionsLen = uint32(len(s.posBuf))
		s.positionsWritten += uint64(info.PositionsLen)
	}

	if info.DocFreq == 0 {
		info.MinFieldNorm = 0
	}
	return info, nil
}

func (s *Serializer) encodePostings(info *TermInfo) {
	s.skipBuf = s.skipBuf[:0]
	s.blockBuf = s.blockBuf[:0]
	withFreqs := s.record.HasFreqs()

	for i, tf := range s.tfs {
		if tf > info.MaxTermFreq {
			info.MaxTermFreq = tf
		}
		if s.norms[i] < info.MinFieldNorm {
			info.MinFieldNorm = s.norms[i]
		}
	}

	numFull := len(s.docs) / BlockSize
	var prev uint32
	for b := 0; b < numFull; b++ {
		start, end := b*BlockSize, (b+1)*BlockSize
		entry := SkipEntry{LastDoc: s.docs[end-1], MinFieldNorm: math.MaxUint32}
		for i := start; i < end; i++ {
			entry.TermFreqSum += s.tfs[i]
			if s.tfs[i] > entry.MaxTermFreq {
				entry.MaxTermFreq = s.tfs[i]
			}
			if s.norms[i] < entry.MinFieldNorm {
				entry.MinFieldNorm = s.norms[i]
			}
		}

		blockStart := len(s.blockBuf)
		copy(s.scratch[:], s.docs[start:end])
		bitpacking.DeltaEncode(s.scratch[:], prev)
		entry.DocBitWidth = bitpacking.BitWidth32(s.scratch[:])
		s.blockBuf = bitpacking.Pack32(s.blockBuf, s.scratch[:], entry.DocBitWidth)
		if withFreqs {
			entry.TfBitWidth = bitpacking.BitWidth32(s.tfs[start:end])
			s.blockBuf = bitpacking.Pack32(s.blockBuf, s.tfs[start:end], entry.TfBitWidth)
		}
		entry.ByteLen = uint32(len(s.blockBuf) - blockStart)
		s.skipBuf = entry.encode(s.skipBuf)
		prev = entry.LastDoc
	}

	var tmp [binary.MaxVarintLen32]byte
	for i := numFull * BlockSize; i < len(s.docs); i++ {
		n := binary.PutUvarint(tmp[:], uint64(s.docs[i]-prev))
		s.blockBuf = append(s.blockBuf, tmp[:n]...)
		if withFreqs {
			n = binary.PutUvarint(tmp[:], uint64(s.tfs[i]))
			s.blockBuf = append(s.blockBuf, tmp[:n]...)
		}
		prev = s.docs[i]
	}
}
