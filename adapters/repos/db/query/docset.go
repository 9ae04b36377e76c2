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

	"github.com/weaviate/sroar"

	"github.com/weaviate/textindex/adapters/repos/db/postings"
)

// Terminated is the doc id of a DocSet past its last doc.
const Terminated = postings.Terminated

// DocSet is a forward only cursor over ascending doc ids. A new DocSet is
// positioned on its first doc.
type DocSet interface {
	// Doc is the current doc, Terminated once the set is exhausted.
	Doc() uint32
	// Advance moves to the next doc and returns it.
	Advance() uint32
	// Seek moves to the first doc >= target and returns it. It never moves
	// backwards: a target at or before the current doc returns the current
	// doc.
	Seek(target uint32) uint32
	// SizeHint estimates the number of docs in the set.
	SizeHint() uint32
}

// Scorer is a DocSet which scores its current doc. The implementations
// are the scorers of this package only.
type Scorer interface {
	DocSet
	Score() float32
	scorer()
}

// seekByAdvance implements Seek for sets without a faster way.
func seekByAdvance(d DocSet, target uint32) uint32 {
	doc := d.Doc()
	for doc < target {
		doc = d.Advance()
	}
	return doc
}

type emptyScorer struct{}

func (emptyScorer) Doc() uint32        { return Terminated }
func (emptyScorer) Advance() uint32    { return Terminated }
func (emptyScorer) Seek(uint32) uint32 { return Terminated }
func (emptyScorer) SizeHint() uint32   { return 0 }
func (emptyScorer) Score() float32     { return 0 }
func (emptyScorer) scorer()            {}

// allScorer matches every doc of a segment.
type allScorer struct {
	doc    uint32
	maxDoc uint32
	score  float32
}

func newAllScorer(maxDoc uint32, score float32) *allScorer {
	s := &allScorer{maxDoc: maxDoc, score: score}
	if maxDoc == 0 {
		s.doc = Terminated
	}
	return s
}

func (s *allScorer) Doc() uint32 { return s.doc }

func (s *allScorer) Advance() uint32 {
	return s.Seek(s.doc + 1)
}

func (s *allScorer) Seek(target uint32) uint32 {
	if s.doc == Terminated || target <= s.doc {
		return s.doc
	}
	if target >= s.maxDoc {
		s.doc = Terminated
	} else {
		s.doc = target
	}
	return s.doc
}

func (s *allScorer) SizeHint() uint32 { return s.maxDoc }
func (s *allScorer) Score() float32   { return s.score }
func (s *allScorer) scorer()          {}

// constScorer gives every doc of the wrapped set the same score.
type constScorer struct {
	DocSet
	score float32
}

func (s *constScorer) Score() float32 { return s.score }
func (s *constScorer) scorer()        {}

// bitsetScorer iterates the docs of a bitmap. It is used for matches
// computed up front, like ranges resolved through the term dictionary.
type bitsetScorer struct {
	docs  []uint64
	i     int
	score float32
}

func newBitsetScorer(bm *sroar.Bitmap, score float32) *bitsetScorer {
	return &bitsetScorer{docs: bm.ToArray(), score: score}
}

func (s *bitsetScorer) Doc() uint32 {
	if s.i >= len(s.docs) {
		return Terminated
	}
	return uint32(s.docs[s.i])
}

func (s *bitsetScorer) Advance() uint32 {
	if s.i < len(s.docs) {
		s.i++
	}
	return s.Doc()
}

func (s *bitsetScorer) Seek(target uint32) uint32 {
	if s.Doc() >= target {
		return s.Doc()
	}
	rest := s.docs[s.i:]
	s.i += sort.Search(len(rest), func(j int) bool { return rest[j] >= uint64(target) })
	return s.Doc()
}

func (s *bitsetScorer) SizeHint() uint32 { return uint32(len(s.docs) - s.i) }
func (s *bitsetScorer) Score() float32   { return s.score }
func (s *bitsetScorer) scorer()          {}
