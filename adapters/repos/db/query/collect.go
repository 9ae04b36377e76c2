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
	"context"
	"sort"

	"github.com/weaviate/textindex/adapters/repos/db/segment"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

// checkInterval is the number of docs visited between two checks of the
// context.
const checkInterval = 1024

// ForEach calls fn with every alive doc s matches and its score.
func ForEach(ctx context.Context, s Scorer, r *segment.Reader, fn func(doc uint32, score float32)) error {
	visited := 0
	for doc := s.Doc(); doc != Terminated; doc = s.Advance() {
		if visited++; visited%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return enterrors.NewDeadlineError(err)
			}
		}
		if r.IsDeleted(doc) {
			continue
		}
		fn(doc, s.Score())
	}
	return scorerErr(s)
}

// ForEachPruning calls fn with the alive docs of w scoring above
// threshold. fn returns the threshold for the next docs, it may only grow.
// Disjunctions of terms skip whole blocks whose best score cannot reach
// the threshold.
func ForEachPruning(ctx context.Context, w Weight, r *segment.Reader, threshold float32,
	fn func(doc uint32, score float32) float32,
) error {
	boost := float32(1)
	for {
		b, ok := w.(*boostWeight)
		if !ok {
			break
		}
		boost *= b.boost
		w = b.inner
	}

	if terms, ok := termWeights(w); ok && boost > 0 {
		scorers := make([]*termScorer, 0, len(terms))
		for _, t := range terms {
			s, err := t.termScorer(r, boost)
			if err != nil {
				return err
			}
			if s != nil {
				scorers = append(scorers, s)
			}
		}
		return blockMaxWand(ctx, scorers, r, threshold, fn)
	}

	s, err := w.Scorer(r, boost)
	if err != nil {
		return err
	}
	return ForEach(ctx, s, r, func(doc uint32, score float32) {
		if score > threshold {
			threshold = fn(doc, score)
		}
	})
}

// termWeights returns the terms of a scoring term query or disjunction of
// term queries.
func termWeights(w Weight) ([]*termWeight, bool) {
	switch w := w.(type) {
	case *termWeight:
		return []*termWeight{w}, w.scoring
	case *orWeight:
		terms := make([]*termWeight, len(w.children))
		for i, c := range w.children {
			t, ok := c.(*termWeight)
			if !ok || !t.scoring {
				return nil, false
			}
			terms[i] = t
		}
		return terms, true
	default:
		return nil, false
	}
}

// blockMaxWand visits the docs of the union of terms, skipping docs which
// cannot score above threshold. Terms are kept ordered by current doc. The
// pivot is the first term at which the summed score bounds of the terms
// up to it exceed the threshold, no doc before its doc can qualify. The
// block bounds then decide if the pivot doc is scored or skipped.
func blockMaxWand(ctx context.Context, terms []*termScorer, r *segment.Reader, threshold float32,
	fn func(doc uint32, score float32) float32,
) error {
	all := append([]*termScorer(nil), terms...)
	maxScores := make(map[*termScorer]float32, len(terms))
	for _, t := range terms {
		maxScores[t] = t.maxScore()
	}
	byDoc := func() {
		sort.Slice(terms, func(i, j int) bool { return terms[i].Doc() < terms[j].Doc() })
		for len(terms) > 0 && terms[len(terms)-1].Doc() == Terminated {
			terms = terms[:len(terms)-1]
		}
	}

	for steps := 1; ; steps++ {
		if steps%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return enterrors.NewDeadlineError(err)
			}
		}
		byDoc()
		if len(terms) == 0 {
			break
		}

		pivot := -1
		var upper float32
		for i, t := range terms {
			upper += maxScores[t]
			if upper > threshold {
				pivot = i
				break
			}
		}
		if pivot < 0 {
			break
		}
		pivotDoc := terms[pivot].Doc()
		for pivot+1 < len(terms) && terms[pivot+1].Doc() == pivotDoc {
			pivot++
		}

		var blockUpper float32
		next := uint32(Terminated)
		for _, t := range terms[:pivot+1] {
			lastDoc, bound := t.blockMax(pivotDoc)
			blockUpper += bound
			next = min(next, lastDoc+1)
		}

		if blockUpper <= threshold {
			// no doc up to the end of the shortest block can qualify
			if pivot+1 < len(terms) {
				next = min(next, terms[pivot+1].Doc())
			}
			next = max(next, pivotDoc+1)
			for _, t := range terms[:pivot+1] {
				t.Seek(next)
			}
			continue
		}

		if terms[0].Doc() != pivotDoc {
			// the terms before the pivot alone cannot qualify a doc
			for _, t := range terms[:pivot] {
				t.Seek(pivotDoc)
			}
			continue
		}

		if !r.IsDeleted(pivotDoc) {
			var score float32
			for _, t := range terms[:pivot+1] {
				score += t.Score()
			}
			if score > threshold {
				threshold = fn(pivotDoc, score)
			}
		}
		for _, t := range terms[:pivot+1] {
			t.Advance()
		}
	}

	for _, t := range all {
		if err := t.err(); err != nil {
			return err
		}
	}
	return nil
}

// scorerErr returns the first decoding error any posting list of s hit.
func scorerErr(s DocSet) error {
	switch s := s.(type) {
	case *termScorer:
		return s.err()
	case *phraseScorer:
		return s.err()
	case *intersection:
		for _, c := range s.children {
			if err := scorerErr(c); err != nil {
				return err
			}
		}
	case *union:
		for _, c := range s.children {
			if err := scorerErr(c); err != nil {
				return err
			}
		}
	case *exclusion:
		if err := scorerErr(s.include); err != nil {
			return err
		}
		return scorerErr(s.exclude)
	case *constScorer:
		return scorerErr(s.DocSet)
	}
	return nil
}
