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
	"sort"

	"github.com/pkg/errors"

	"github.com/weaviate/textindex/adapters/repos/db/fastfield"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/schema"
)

type phraseWeight struct {
	terms   []schema.Term
	slop    uint32
	bm25    bm25Weight
	scoring bool
}

func (w *phraseWeight) weight() {}

func (w *phraseWeight) Scorer(r *segment.Reader, boost float32) (Scorer, error) {
	lists := make([]*postings.SegmentPostings, len(w.terms))
	for i, t := range w.terms {
		p, ok, err := r.Postings(t, schema.WithFreqsAndPositions)
		if err != nil {
			return nil, errors.Wrapf(err, "open postings of %s", t)
		}
		if !ok {
			return emptyScorer{}, nil
		}
		lists[i] = p
	}
	s := &phraseScorer{
		lists:     lists,
		positions: make([][]uint32, len(lists)),
		slop:      w.slop,
		norms:     r.FieldNorms().Column(w.terms[0].Field()),
		bm25:      w.bm25.boosted(boost),
		scoring:   w.scoring,
		boost:     boost,
	}
	// the rarest term drives the intersection
	s.order = make([]int, len(lists))
	for i := range s.order {
		s.order[i] = i
	}
	sort.SliceStable(s.order, func(a, b int) bool {
		return lists[s.order[a]].SizeHint() < lists[s.order[b]].SizeHint()
	})
	s.doc = s.align(lists[s.order[0]].Doc())
	return s, nil
}

// phraseScorer intersects the posting lists of the phrase terms and keeps
// the docs in which the positions line up.
type phraseScorer struct {
	lists     []*postings.SegmentPostings
	order     []int
	positions [][]uint32
	slop      uint32
	norms     *fastfield.Column
	bm25      bm25Weight
	scoring   bool
	boost     float32

	doc  uint32
	freq uint32
}

func (s *phraseScorer) scorer() {}

func (s *phraseScorer) Doc() uint32 { return s.doc }

func (s *phraseScorer) SizeHint() uint32 {
	return s.lists[s.order[0]].SizeHint()
}

func (s *phraseScorer) Advance() uint32 {
	if s.doc == Terminated {
		return Terminated
	}
	s.doc = s.align(s.lists[s.order[0]].Advance())
	return s.doc
}

func (s *phraseScorer) Seek(target uint32) uint32 {
	if s.doc == Terminated || target <= s.doc {
		return s.doc
	}
	s.doc = s.align(s.lists[s.order[0]].Seek(target))
	return s.doc
}

// align moves every list to the first doc >= candidate they all hold and
// where the phrase matches.
func (s *phraseScorer) align(candidate uint32) uint32 {
	lead := s.lists[s.order[0]]
	for candidate != Terminated {
		matched := true
		for _, i := range s.order[1:] {
			doc := s.lists[i].Seek(candidate)
			if doc != candidate {
				candidate = lead.Seek(doc)
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		if s.freq = s.phraseFreq(); s.freq > 0 {
			return candidate
		}
		candidate = lead.Advance()
	}
	return Terminated
}

// phraseFreq counts the occurrences of the phrase in the current doc. An
// occurrence starts at a position of the first term and continues with
// the nearest following position of every next term. The gaps it leaves
// must not add up to more than the slop.
func (s *phraseScorer) phraseFreq() uint32 {
	for i, p := range s.lists {
		s.positions[i] = p.Positions(s.positions[i])
	}
	var freq uint32
	for _, start := range s.positions[0] {
		prev := start
		ok := true
		for _, next := range s.positions[1:] {
			j := sort.Search(len(next), func(k int) bool { return next[k] > prev })
			if j == len(next) {
				ok = false
				break
			}
			prev = next[j]
		}
		if ok && prev-start-uint32(len(s.lists)-1) <= s.slop {
			freq++
		}
	}
	return freq
}

func (s *phraseScorer) Score() float32 {
	if !s.scoring {
		return s.boost
	}
	var norm uint32
	if s.norms != nil {
		norm = uint32(s.norms.GetOr(s.doc, 0))
	}
	return s.bm25.score(s.freq, norm)
}

func (s *phraseScorer) err() error {
	for _, p := range s.lists {
		if err := p.Err(); err != nil {
			return err
		}
	}
	return nil
}
