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

package query

import (
	"bytes"
	"math"

	"github.com/pkg/errors"
	"github.com/weaviate/sroar"

	"github.com/weaviate/textindex/adapters/repos/db/fastfield"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/adapters/repos/db/termdict"
	"github.com/weaviate/textindex/entities/schema"
)

// rangeWeight matches the docs holding a value of field within bounds.
// Fast fields are scanned directly, other fields are resolved through the
// term dictionary.
type rangeWeight struct {
	field schema.Field
	lower Bound
	upper Bound
	fast  bool
}

func (w *rangeWeight) weight() {}

func (w *rangeWeight) Scorer(r *segment.Reader, boost float32) (Scorer, error) {
	if w.fast {
		col, ok := r.FastFields().Column(w.field.ID)
		if !ok {
			return emptyScorer{}, nil
		}
		lo, hi, ok := w.valueBounds()
		if !ok || lo > col.MaxValue() || hi < col.MinValue() {
			return emptyScorer{}, nil
		}
		return newFastRangeScorer(col, r.MaxDoc(), lo, hi, boost), nil
	}

	docs, err := w.dictionaryDocs(r)
	if err != nil {
		return nil, err
	}
	if docs.GetCardinality() == 0 {
		return emptyScorer{}, nil
	}
	return newBitsetScorer(docs, boost), nil
}

// valueBounds turns the bounds into an inclusive range of fast values. ok
// is false for an empty range.
func (w *rangeWeight) valueBounds() (lo, hi uint64, ok bool) {
	lo, hi = 0, math.MaxUint64
	if !w.lower.IsOpen() {
		lo, _ = w.lower.Value.FastValue()
		if w.lower.Exclusive {
			if lo == math.MaxUint64 {
				return 0, 0, false
			}
			lo++
		}
	}
	if !w.upper.IsOpen() {
		hi, _ = w.upper.Value.FastValue()
		if w.upper.Exclusive {
			if hi == 0 {
				return 0, 0, false
			}
			hi--
		}
	}
	return lo, hi, lo <= hi
}

// keyBounds turns the bounds into the half open key range [lo, hi) of the
// term dictionary.
func (w *rangeWeight) keyBounds() (lo, hi []byte) {
	prefix := schema.FieldPrefix(w.field.ID, w.field.Type)
	if w.lower.IsOpen() {
		lo = prefix
	} else {
		lo = w.lower.Value
	}
	if w.upper.IsOpen() {
		hi = termdict.PrefixEnd(prefix)
	} else if w.upper.Exclusive {
		hi = w.upper.Value
	} else {
		// the smallest key after the upper bound
		hi = append(append([]byte{}, w.upper.Value...), 0)
	}
	return lo, hi
}

// dictionaryDocs collects the docs of every term within the bounds.
func (w *rangeWeight) dictionaryDocs(r *segment.Reader) (*sroar.Bitmap, error) {
	docs := sroar.NewBitmap()
	lo, hi := w.keyBounds()
	if hi != nil && bytes.Compare(lo, hi) >= 0 {
		return docs, nil
	}

	stream := r.Dictionary().Range(lo, hi)
	for stream.Next() {
		if w.lower.Exclusive && bytes.Equal(stream.Key(), w.lower.Value) {
			continue
		}
		p, err := r.PostingsFromInfo(w.field.ID, stream.TermInfo(), schema.Basic)
		if err != nil {
			return nil, errors.Wrapf(err, "open postings of range term %x", stream.Key())
		}
		for doc := p.Doc(); doc != postings.Terminated; doc = p.Advance() {
			docs.Set(uint64(doc))
		}
		if err := p.Err(); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, errors.Wrap(err, "stream range terms")
	}
	return docs, nil
}

// fastRangeScorer scans a fast field column. A doc matches if any of its
// values lies in [lo, hi].
type fastRangeScorer struct {
	col    *fastfield.Column
	maxDoc uint32
	lo, hi uint64
	score  float32
	buf    []uint64
	doc    uint32
}

func newFastRangeScorer(col *fastfield.Column, maxDoc uint32, lo, hi uint64, score float32) *fastRangeScorer {
	s := &fastRangeScorer{col: col, maxDoc: maxDoc, lo: lo, hi: hi, score: score}
	s.doc = s.scan(0)
	return s
}

func (s *fastRangeScorer) matches(doc uint32) bool {
	s.buf = s.col.Values(doc, s.buf[:0])
	for _, v := range s.buf {
		if v >= s.lo && v <= s.hi {
			return true
		}
	}
	return false
}

func (s *fastRangeScorer) scan(from uint32) uint32 {
	for doc := from; doc < s.maxDoc; doc++ {
		if s.matches(doc) {
			return doc
		}
	}
	return Terminated
}

func (s *fastRangeScorer) Doc() uint32 { return s.doc }

func (s *fastRangeScorer) Advance() uint32 {
	if s.doc == Terminated {
		return Terminated
	}
	s.doc = s.scan(s.doc + 1)
	return s.doc
}

func (s *fastRangeScorer) Seek(target uint32) uint32 {
	if s.doc == Terminated || target <= s.doc {
		return s.doc
	}
	s.doc = s.scan(target)
	return s.doc
}

func (s *fastRangeScorer) SizeHint() uint32 { return s.maxDoc }
func (s *fastRangeScorer) Score() float32   { return s.score }
func (s *fastRangeScorer) scorer()          {}
