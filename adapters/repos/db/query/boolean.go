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

	"github.com/weaviate/textindex/adapters/repos/db/segment"
)

type andWeight struct {
	children []Weight
}

func (w *andWeight) weight() {}

func (w *andWeight) Scorer(r *segment.Reader, boost float32) (Scorer, error) {
	scorers := make([]Scorer, 0, len(w.children))
	for _, c := range w.children {
		s, err := c.Scorer(r, boost)
		if err != nil {
			return nil, err
		}
		if _, empty := s.(emptyScorer); empty {
			return emptyScorer{}, nil
		}
		scorers = append(scorers, s)
	}
	if len(scorers) == 1 {
		return scorers[0], nil
	}
	return newIntersection(scorers), nil
}

type orWeight struct {
	children []Weight
}

func (w *orWeight) weight() {}

func (w *orWeight) Scorer(r *segment.Reader, boost float32) (Scorer, error) {
	scorers := make([]Scorer, 0, len(w.children))
	for _, c := range w.children {
		s, err := c.Scorer(r, boost)
		if err != nil {
			return nil, err
		}
		if _, empty := s.(emptyScorer); !empty {
			scorers = append(scorers, s)
		}
	}
	switch len(scorers) {
	case 0:
		return emptyScorer{}, nil
	case 1:
		return scorers[0], nil
	default:
		return newUnion(scorers), nil
	}
}

type andNotWeight struct {
	include Weight
	exclude Weight
}

func (w *andNotWeight) weight() {}

func (w *andNotWeight) Scorer(r *segment.Reader, boost float32) (Scorer, error) {
	include, err := w.include.Scorer(r, boost)
	if err != nil {
		return nil, err
	}
	if _, empty := include.(emptyScorer); empty {
		return include, nil
	}
	exclude, err := w.exclude.Scorer(r, 1)
	if err != nil {
		return nil, err
	}
	if _, empty := exclude.(emptyScorer); empty {
		return include, nil
	}
	return newExclusion(include, exclude), nil
}

// intersection matches the docs every child matches. Its score is the sum
// of the scores of the children.
type intersection struct {
	children []Scorer
	doc      uint32
}

func newIntersection(children []Scorer) *intersection {
	// the smallest set leads, it skips the most
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].SizeHint() < children[j].SizeHint()
	})
	s := &intersection{children: children}
	s.doc = s.align(children[0].Doc())
	return s
}

// align seeks every child to candidate. A child landing past it makes its
// doc the new candidate, until all children agree.
func (s *intersection) align(candidate uint32) uint32 {
	for candidate != Terminated {
		agreed := true
		for _, c := range s.children {
			doc := c.Seek(candidate)
			if doc != candidate {
				candidate = doc
				agreed = false
				break
			}
		}
		if agreed {
			return candidate
		}
	}
	return Terminated
}

func (s *intersection) Doc() uint32 { return s.doc }

func (s *intersection) Advance() uint32 {
	if s.doc == Terminated {
		return Terminated
	}
	s.doc = s.align(s.children[0].Advance())
	return s.doc
}

func (s *intersection) Seek(target uint32) uint32 {
	if s.doc == Terminated || target <= s.doc {
		return s.doc
	}
	s.doc = s.align(target)
	return s.doc
}

func (s *intersection) SizeHint() uint32 { return s.children[0].SizeHint() }

func (s *intersection) Score() float32 {
	var score float32
	for _, c := range s.children {
		score += c.Score()
	}
	return score
}

func (s *intersection) scorer() {}

// union matches the docs any child matches. Its score is the sum of the
// scores of the children on the current doc.
type union struct {
	children []Scorer
	doc      uint32
	score    float32
}

func newUnion(children []Scorer) *union {
	s := &union{children: children}
	s.position()
	return s
}

// position moves to the smallest current doc of the children.
func (s *union) position() {
	doc := uint32(Terminated)
	for _, c := range s.children {
		if d := c.Doc(); d < doc {
			doc = d
		}
	}
	s.doc = doc
	s.score = 0
	if doc == Terminated {
		return
	}
	for _, c := range s.children {
		if c.Doc() == doc {
			s.score += c.Score()
		}
	}
}

func (s *union) Doc() uint32 { return s.doc }

func (s *union) Advance() uint32 {
	if s.doc == Terminated {
		return Terminated
	}
	for _, c := range s.children {
		if c.Doc() == s.doc {
			c.Advance()
		}
	}
	s.position()
	return s.doc
}

func (s *union) Seek(target uint32) uint32 {
	if s.doc == Terminated || target <= s.doc {
		return s.doc
	}
	for _, c := range s.children {
		c.Seek(target)
	}
	s.position()
	return s.doc
}

func (s *union) SizeHint() uint32 {
	var n uint32
	for _, c := range s.children {
		n = max(n, c.SizeHint())
	}
	return n
}

func (s *union) Score() float32 { return s.score }
func (s *union) scorer()        {}

// exclusion matches the docs of include which exclude does not match.
type exclusion struct {
	include Scorer
	exclude Scorer
	doc     uint32
}

func newExclusion(include, exclude Scorer) *exclusion {
	s := &exclusion{include: include, exclude: exclude}
	s.doc = s.skipExcluded(include.Doc())
	return s
}

func (s *exclusion) skipExcluded(doc uint32) uint32 {
	for doc != Terminated && s.exclude.Seek(doc) == doc {
		doc = s.include.Advance()
	}
	return doc
}

func (s *exclusion) Doc() uint32 { return s.doc }

func (s *exclusion) Advance() uint32 {
	if s.doc == Terminated {
		return Terminated
	}
	s.doc = s.skipExcluded(s.include.Advance())
	return s.doc
}

func (s *exclusion) Seek(target uint32) uint32 {
	if s.doc == Terminated || target <= s.doc {
		return s.doc
	}
	s.doc = s.skipExcluded(s.include.Seek(target))
	return s.doc
}

func (s *exclusion) SizeHint() uint32 { return s.include.SizeHint() }
func (s *exclusion) Score() float32   { return s.include.Score() }
func (s *exclusion) scorer()          {}
