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
	"github.com/pkg/errors"

	"github.com/weaviate/textindex/adapters/repos/db/fastfield"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/schema"
)

type termWeight struct {
	term    schema.Term
	record  schema.IndexRecordOption
	bm25    bm25Weight
	scoring bool
}

func (w *termWeight) weight() {}

func (w *termWeight) Scorer(r *segment.Reader, boost float32) (Scorer, error) {
	s, err := w.termScorer(r, boost)
	if err != nil || s == nil {
		return emptyScorer{}, err
	}
	return s, nil
}

// termScorer returns nil if the segment does not hold the term.
func (w *termWeight) termScorer(r *segment.Reader, boost float32) (*termScorer, error) {
	p, ok, err := r.Postings(w.term, w.record)
	if err != nil {
		return nil, errors.Wrapf(err, "open postings of %s", w.term)
	}
	if !ok {
		return nil, nil
	}
	return &termScorer{
		postings: p,
		norms:    r.FieldNorms().Column(w.term.Field()),
		bm25:     w.bm25.boosted(boost),
		scoring:  w.scoring,
		boost:    boost,
	}, nil
}

// termScorer scores the docs of one posting list with BM25.
type termScorer struct {
	postings *postings.SegmentPostings
	norms    *fastfield.Column
	bm25     bm25Weight
	scoring  bool
	boost    float32
}

func (s *termScorer) Doc() uint32               { return s.postings.Doc() }
func (s *termScorer) Advance() uint32           { return s.postings.Advance() }
func (s *termScorer) Seek(target uint32) uint32 { return s.postings.Seek(target) }
func (s *termScorer) SizeHint() uint32          { return s.postings.SizeHint() }
func (s *termScorer) scorer()                   {}

func (s *termScorer) norm(doc uint32) uint32 {
	if s.norms == nil {
		return 0
	}
	return uint32(s.norms.GetOr(doc, 0))
}

func (s *termScorer) Score() float32 {
	if !s.scoring {
		return s.boost
	}
	return s.bm25.score(s.postings.TermFreq(), s.norm(s.postings.Doc()))
}

// maxScore bounds the score of every doc of the posting list.
func (s *termScorer) maxScore() float32 {
	if !s.scoring {
		return s.boost
	}
	info := s.postings.TermInfo()
	return s.bm25.maxScore(info.MaxTermFreq, info.MinFieldNorm)
}

// blockMax returns the last doc of the block holding target and a bound
// of the scores of its docs.
func (s *termScorer) blockMax(target uint32) (uint32, float32) {
	lastDoc, maxTf, minNorm := s.postings.BlockBound(target)
	if !s.scoring {
		return lastDoc, s.boost
	}
	return lastDoc, s.bm25.maxScore(maxTf, minNorm)
}

func (s *termScorer) err() error {
	return s.postings.Err()
}
