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

	"github.com/blevesearch/vellum"
	"github.com/pkg/errors"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/willf/bloom"
)

// Dictionary maps terms to their TermInfo. It is immutable and safe for
// concurrent use.
type Dictionary struct {
	fst   *vellum.FST
	infos []byte
	bloom *bloom.BloomFilter
	num   uint64
}

func corrupted(format string, args ...interface{}) error {
	return enterrors.NewCorruptedError("term dictionary", format, args...)
}

func Open(data []byte) (*Dictionary, error) {
	if len(data) < footerSize {
		return nil, corrupted("%d bytes is too short", len(data))
	}
	footer := data[len(data)-footerSize:]
	fstLen := binary.LittleEndian.Uint64(footer[0:])
	num := binary.LittleEndian.Uint64(footer[8:])
	bloomLen := binary.LittleEndian.Uint64(footer[16:])
	infosLen := num * postings.TermInfoSize
	if fstLen+infosLen+bloomLen+footerSize != uint64(len(data)) {
		return nil, corrupted("sections (%d+%d+%d) do not add up to %d bytes",
			fstLen, infosLen, bloomLen, len(data))
	}

	fst, err := vellum.Load(data[:fstLen])
	if err != nil {
		return nil, corrupted("load fst: %v", err)
	}
	if uint64(fst.Len()) != num {
		return nil, corrupted("fst holds %d terms, footer says %d", fst.Len(), num)
	}

	filter := &bloom.BloomFilter{}
	bloomStart := fstLen + infosLen
	if _, err := filter.ReadFrom(bytes.NewReader(data[bloomStart : bloomStart+bloomLen])); err != nil {
		return nil, corrupted("read bloom filter: %v", err)
	}

	return &Dictionary{
		fst:   fst,
		infos: data[fstLen : fstLen+infosLen],
		bloom: filter,
		num:   num,
	}, nil
}

func (d *Dictionary) NumTerms() uint64 {
	return d.num
}

// MayContain is false if term is certainly absent.
func (d *Dictionary) MayContain(term []byte) bool {
	return d.bloom.Test(term)
}

func (d *Dictionary) TermInfo(ord uint64) postings.TermInfo {
	return postings.DecodeTermInfo(d.infos[ord*postings.TermInfoSize:])
}

func (d *Dictionary) Get(term []byte) (postings.TermInfo, bool, error) {
	if !d.bloom.Test(term) {
		return postings.TermInfo{}, false, nil
	}
	ord, ok, err := d.fst.Get(term)
	if err != nil {
		return postings.TermInfo{}, false, errors.Wrapf(err, "lookup term %x", term)
	}
	if !ok || ord >= d.num {
		return postings.TermInfo{}, false, nil
	}
	return d.TermInfo(ord), true, nil
}

// Range streams the terms in [lo, hi). A nil bound is open.
func (d *Dictionary) Range(lo, hi []byte) *Stream {
	it, err := d.fst.Iterator(lo, hi)
	return &Stream{dict: d, it: it, err: err}
}

// Prefix streams the terms starting with prefix.
func (d *Dictionary) Prefix(prefix []byte) *Stream {
	return d.Range(prefix, PrefixEnd(prefix))
}

// Stream visits every term in order.
func (d *Dictionary) Stream() *Stream {
	return d.Range(nil, nil)
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, or nil if there is none.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (d *Dictionary) Close() error {
	return d.fst.Close()
}

// Stream is an ordered cursor over a range of terms. Key is only valid
// until the next call to Next.
type Stream struct {
	dict    *Dictionary
	it      *vellum.FSTIterator
	err     error
	started bool
	key     []byte
	ord     uint64
}

func (s *Stream) Next() bool {
	if s.err != nil {
		return false
	}
	if s.started {
		s.err = s.it.Next()
	}
	s.started = true
	if s.err != nil {
		return false
	}
	s.key, s.ord = s.it.Current()
	return true
}

func (s *Stream) Key() []byte {
	return s.key
}

func (s *Stream) Ord() uint64 {
	return s.ord
}

func (s *Stream) TermInfo() postings.TermInfo {
	return s.dict.TermInfo(s.ord)
}

// Err returns the error that ended the stream, reaching the end of the
// range is not an error.
func (s *Stream) Err() error {
	if s.err == nil || errors.Is(s.err, vellum.ErrIteratorDone) {
		return nil
	}
	return s.err
}
