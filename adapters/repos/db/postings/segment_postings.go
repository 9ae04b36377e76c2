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
	"github.com/weaviate/textindex/entities/schema"
)

// SegmentPostings is a forward-only cursor over one encoded posting list.
// It decodes at most one block at a time into fixed buffers and never
// allocates after construction. The first block is only decoded when the
// cursor is first read, so a Seek right after opening skips blocks without
// decoding them.
type SegmentPostings struct {
	data      []byte
	positions *PositionReader
	info      TermInfo
	withFreqs bool
	numFull   int

	block       int // -1 before the first load, numFull for the tail
	blockOffset int
	tfBase      uint64 // sum of term freqs before the current block
	docs        [BlockSize]uint32
	tfs         [BlockSize]uint32
	n           int
	cur         int
	done        bool

	posBuf [BlockSize]uint32

	blocksDecoded int
	blocksSkipped int
	err           error
}

// Open creates a cursor over postings. positions may be nil when the term
// has no positions recorded.
func Open(postings, positions []byte, info TermInfo, record schema.IndexRecordOption) (*SegmentPostings, error) {
	p := &SegmentPostings{}
	if err := p.Reset(postings, positions, info, record); err != nil {
		return nil, err
	}
	return p, nil
}

// Reset repositions the cursor on another posting list, reusing its
// buffers.
func (p *SegmentPostings) Reset(postings, positions []byte, info TermInfo, record schema.IndexRecordOption) error {
	numFull := int(info.DocFreq / BlockSize)
	if len(postings) < numFull*skipEntrySize {
		return corrupted("postings of %d bytes cannot hold %d skip entries", len(postings), numFull)
	}
	*p = SegmentPostings{
		data:        postings,
		info:        info,
		withFreqs:   record.HasFreqs(),
		numFull:     numFull,
		block:       -1,
		blockOffset: numFull * skipEntrySize,
		done:        info.DocFreq == 0,
	}
	if record.HasPositions() && len(positions) > 0 {
		pr, err := NewPositionReader(positions)
		if err != nil {
			return err
		}
		p.positions = pr
	}
	return nil
}

func (p *SegmentPostings) skip(b int) SkipEntry {
	return decodeSkipEntry(p.data[b*skipEntrySize:])
}

func (p *SegmentPostings) fail(err error) {
	p.err = err
	p.done = true
}

// Err reports a decoding failure. A failed cursor is terminated.
func (p *SegmentPostings) Err() error {
	return p.err
}

func (p *SegmentPostings) load(b, offset int, tfBase uint64) {
	p.block, p.blockOffset, p.tfBase, p.cur = b, offset, tfBase, 0
	p.blocksDecoded++

	if b < p.numFull {
		e := p.skip(b)
		end := offset + int(e.ByteLen)
		docBytes := bitpacking.PackedLen(BlockSize, e.DocBitWidth)
		if e.DocBitWidth > 32 || e.TfBitWidth > 32 || end > len(p.data) ||
			docBytes+bitpacking.PackedLen(BlockSize, e.TfBitWidth) != int(e.ByteLen) {
			p.fail(corrupted("invalid block %d", b))
			return
		}
		var prev uint32
		if b > 0 {
			prev = p.skip(b - 1).LastDoc
		}
		bitpacking.Unpack32(p.docs[:], p.data[offset:], e.DocBitWidth)
		bitpacking.DeltaDecode(p.docs[:], prev)
		if p.docs[BlockSize-1] != e.LastDoc {
			p.fail(corrupted("block %d ends at doc %d, skip entry says %d", b, p.docs[BlockSize-1], e.LastDoc))
			return
		}
		if p.withFreqs {
			bitpacking.Unpack32(p.tfs[:], p.data[offset+docBytes:end], e.TfBitWidth)
		} else {
			p.fillOnes(BlockSize)
		}
		p.n = BlockSize
		return
	}

	var prev uint32
	if p.numFull > 0 {
		prev = p.skip(p.numFull - 1).LastDoc
	}
	p.n = int(p.info.DocFreq) - p.numFull*BlockSize
	pos := offset
	for i := 0; i < p.n; i++ {
		if pos > len(p.data) {
			p.fail(corrupted("postings tail out of bounds"))
			return
		}
		delta, n := binary.Uvarint(p.data[pos:])
		if n <= 0 {
			p.fail(corrupted("invalid doc delta in postings tail"))
			return
		}
		pos += n
		prev += uint32(delta)
		p.docs[i] = prev
		p.tfs[i] = 1
		if p.withFreqs {
			tf, n := binary.Uvarint(p.data[pos:])
			if n <= 0 {
				p.fail(corrupted("invalid term freq in postings tail"))
				return
			}
			pos += n
			p.tfs[i] = uint32(tf)
		}
	}
	if p.n == 0 {
		p.done = true
	}
}

func (p *SegmentPostings) fillOnes(n int) {
	for i := 0; i < n; i++ {
		p.tfs[i] = 1
	}
}

func (p *SegmentPostings) start() {
	if p.block < 0 && !p.done {
		p.load(0, p.blockOffset, 0)
	}
}

// nextBlock moves to the block following the current one.
func (p *SegmentPostings) nextBlock() {
	if p.block >= p.numFull {
		p.done = true
		return
	}
	e := p.skip(p.block)
	p.load(p.block+1, p.blockOffset+int(e.ByteLen), p.tfBase+uint64(e.TermFreqSum))
}

func (p *SegmentPostings) Doc() uint32 {
	p.start()
	if p.done {
		return Terminated
	}
	return p.docs[p.cur]
}

func (p *SegmentPostings) Advance() uint32 {
	p.start()
	if p.done {
		return Terminated
	}
	p.cur++
	if p.cur >= p.n {
		p.nextBlock()
		if p.done {
			return Terminated
		}
	}
	return p.docs[p.cur]
}

// Seek moves to the first doc >= target. Whole blocks ending before target
// are skipped using the skip entries, without being decoded.
func (p *SegmentPostings) Seek(target uint32) uint32 {
	if p.done {
		return Terminated
	}
	if p.block >= 0 && p.docs[p.cur] >= target {
		return p.docs[p.cur]
	}

	b, offset, tfBase := p.block, p.blockOffset, p.tfBase
	loaded := b >= 0
	if !loaded {
		b = 0
	}
	for b < p.numFull {
		e := p.skip(b)
		if e.LastDoc >= target {
			break
		}
		if !(loaded && b == p.block) {
			p.blocksSkipped++
		}
		offset += int(e.ByteLen)
		tfBase += uint64(e.TermFreqSum)
		b++
	}

	from := 0
	if loaded && b == p.block {
		from = p.cur
	} else {
		p.load(b, offset, tfBase)
		if p.done {
			return Terminated
		}
	}

	// binary search for the first doc >= target in docs[from:n]
	lo, hi := from, p.n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if p.docs[mid] < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == p.n {
		// only possible in the tail, full blocks end at or after target
		p.done = true
		return Terminated
	}
	p.cur = lo
	return p.docs[p.cur]
}

func (p *SegmentPostings) SizeHint() uint32 {
	return p.info.DocFreq
}

func (p *SegmentPostings) TermFreq() uint32 {
	p.start()
	if p.done {
		return 0
	}
	return p.tfs[p.cur]
}

// Positions appends the absolute positions of the current doc to dst.
func (p *SegmentPostings) Positions(dst []uint32) []uint32 {
	dst = dst[:0]
	p.start()
	if p.done || p.positions == nil {
		return dst
	}
	offset := p.tfBase
	for i := 0; i < p.cur; i++ {
		offset += uint64(p.tfs[i])
	}
	tf := int(p.tfs[p.cur])
	var pos uint32
	for read := 0; read < tf; {
		n := tf - read
		if n > BlockSize {
			n = BlockSize
		}
		if err := p.positions.Read(offset+uint64(read), p.posBuf[:n]); err != nil {
			p.fail(err)
			return dst[:0]
		}
		for _, d := range p.posBuf[:n] {
			pos += d
			dst = append(dst, pos)
		}
		read += n
	}
	return dst
}

// BlockBound describes, without decoding anything, the block that would
// hold target: its last doc and the values bounding the score of its docs.
// For the tail block lastDoc is Terminated-1 and the bounds are those of
// the whole list.
func (p *SegmentPostings) BlockBound(target uint32) (lastDoc, maxTermFreq, minFieldNorm uint32) {
	b := p.block
	if b < 0 {
		b = 0
	}
	for ; b < p.numFull; b++ {
		e := p.skip(b)
		if e.LastDoc >= target {
			return e.LastDoc, e.MaxTermFreq, e.MinFieldNorm
		}
	}
	return Terminated - 1, p.info.MaxTermFreq, p.info.MinFieldNorm
}

func (p *SegmentPostings) TermInfo() TermInfo {
	return p.info
}

// BlocksDecoded counts the blocks that were unpacked so far.
func (p *SegmentPostings) BlocksDecoded() int {
	return p.blocksDecoded
}

// BlocksSkipped counts the blocks passed over by Seek without decoding.
func (p *SegmentPostings) BlocksSkipped() int {
	return p.blocksSkipped
}
