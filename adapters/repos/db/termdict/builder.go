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

package termdict

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/blevesearch/vellum"
	"github.com/pkg/errors"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/willf/bloom"
)

// BloomFalsePositiveRate of the per segment term filter.
const BloomFalsePositiveRate = 0.01

const footerSize = 24

// Builder writes a term dictionary. Terms must be inserted in strictly
// increasing byte order. The layout is
//
//	[fst: term -> ordinal][term infos, fixed stride][bloom filter]
//	[fst len uint64][num terms uint64][bloom len uint64]
type Builder struct {
	fstBuf bytes.Buffer
	fst    *vellum.Builder
	infos  []byte
	bloom  *bloom.BloomFilter
	num    uint64
	last   []byte
}

// NewBuilder sizes the bloom filter for expectedTerms.
func NewBuilder(expectedTerms int) (*Builder, error) {
	b := &Builder{}
	fst, err := vellum.New(&b.fstBuf, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create fst builder")
	}
	if expectedTerms < 1 {
		expectedTerms = 1
	}
	b.fst = fst
	b.infos = make([]byte, 0, expectedTerms*postings.TermInfoSize)
	b.bloom = bloom.NewWithEstimates(uint(expectedTerms), BloomFalsePositiveRate)
	return b, nil
}

func (b *Builder) Insert(term []byte, info postings.TermInfo) error {
	if b.num > 0 && bytes.Compare(term, b.last) <= 0 {
		return errors.Errorf("term %x inserted out of order after %x", term, b.last)
	}
	b.last = append(b.last[:0], term...)
	if err := b.fst.Insert(term, b.num); err != nil {
		return errors.Wrapf(err, "insert term %x", term)
	}
	b.infos = info.Encode(b.infos)
	b.bloom.Add(term)
	b.num++
	return nil
}

func (b *Builder) NumTerms() uint64 {
	return b.num
}

// Finish writes the dictionary to w and returns the number of bytes
// written.
func (b *Builder) Finish(w io.Writer) (int64, error) {
	if err := b.fst.Close(); err != nil {
		return 0, errors.Wrap(err, "close fst builder")
	}
	var written int64

	n, err := w.Write(b.fstBuf.Bytes())
	written += int64(n)
	if err != nil {
		return written, errors.Wrap(err, "write fst")
	}
	n, err = w.Write(b.infos)
	written += int64(n)
	if err != nil {
		return written, errors.Wrap(err, "write term infos")
	}
	bloomLen, err := b.bloom.WriteTo(w)
	written += bloomLen
	if err != nil {
		return written, errors.Wrap(err, "write bloom filter")
	}

	var footer [footerSize]byte
	binary.LittleEndian.PutUint64(footer[0:], uint64(b.fstBuf.Len()))
	binary.LittleEndian.PutUint64(footer[8:], b.num)
	binary.LittleEndian.PutUint64(footer[16:], uint64(bloomLen))
	n, err = w.Write(footer[:])
	written += int64(n)
	if err != nil {
		return written, errors.Wrap(err, "write dictionary footer")
	}
	return written, nil
}
