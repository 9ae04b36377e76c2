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

	"github.com/weaviate/textindex/adapters/repos/db/segment"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

// Weight is a query prepared against the statistics of a searcher. It
// builds one Scorer per segment. The implementations are the weights of
// this package only.
type Weight interface {
	Scorer(r *segment.Reader, boost float32) (Scorer, error)
	weight()
}

// Options control how a Weight scores.
type Options struct {
	// Scoring computes BM25 scores. Without it every match scores its
	// boost, which is cheaper for collectors that ignore scores.
	Scoring bool
	BM25    BM25
}

func DefaultOptions() Options {
	return Options{Scoring: true, BM25: DefaultBM25()}
}

// NewWeight prepares q. Terms and fields which do not fit the schema are
// rejected with a SchemaError.
func NewWeight(q *Query, stats Statistics, opts Options) (Weight, error) {
	if q == nil {
		return nil, enterrors.NewSchemaError("nil query")
	}
	s := stats.Schema()

	switch q.Kind {
	case KindTerm:
		f, err := indexedField(s, q.Term)
		if err != nil {
			return nil, err
		}
		w := &termWeight{term: q.Term, record: f.IndexRecord(), scoring: opts.Scoring}
		if opts.Scoring {
			df, err := stats.DocFreq(q.Term)
			if err != nil {
				return nil, errors.Wrapf(err, "doc freq of %s", q.Term)
			}
			w.bm25 = newBM25Weight(opts.BM25, IDF(df, stats.NumDocs()), stats.AverageFieldNorm(f.ID))
		}
		return w, nil

	case KindPhrase:
		return newPhraseWeight(q, stats, opts)

	case KindAnd, KindOr:
		if len(q.Children) == 0 {
			return nil, enterrors.NewSchemaError("%s query without children", q.Kind)
		}
		children := make([]Weight, len(q.Children))
		for i, c := range q.Children {
			w, err := NewWeight(c, stats, opts)
			if err != nil {
				return nil, err
			}
			children[i] = w
		}
		if q.Kind == KindAnd {
			return &andWeight{children: children}, nil
		}
		return &orWeight{children: children}, nil

	case KindAndNot:
		if len(q.Children) != 2 {
			return nil, enterrors.NewSchemaError("and_not query needs 2 children, got %d", len(q.Children))
		}
		include, err := NewWeight(q.Children[0], stats, opts)
		if err != nil {
			return nil, err
		}
		exclude, err := NewWeight(q.Children[1], stats, Options{BM25: opts.BM25})
		if err != nil {
			return nil, err
		}
		return &andNotWeight{include: include, exclude: exclude}, nil

	case KindRange:
		return newRangeWeight(q, s)

	case KindBoost, KindConstScore:
		if len(q.Children) != 1 {
			return nil, enterrors.NewSchemaError("%s query needs 1 child, got %d", q.Kind, len(q.Children))
		}
		if q.Kind == KindConstScore {
			inner, err := NewWeight(q.Children[0], stats, Options{BM25: opts.BM25})
			if err != nil {
				return nil, err
			}
			return &constWeight{inner: inner, score: q.Boost}, nil
		}
		inner, err := NewWeight(q.Children[0], stats, opts)
		if err != nil {
			return nil, err
		}
		return &boostWeight{inner: inner, boost: q.Boost}, nil

	case KindAll:
		return allWeight{}, nil

	default:
		return nil, enterrors.NewSchemaError("unknown query kind %s", q.Kind)
	}
}

func indexedField(s *schema.Schema, t schema.Term) (schema.Field, error) {
	if !t.Valid() {
		return schema.Field{}, enterrors.NewSchemaError("invalid term %x", []byte(t))
	}
	f, ok := s.Field(t.Field())
	if !ok {
		return schema.Field{}, enterrors.NewSchemaError("unknown field %d", t.Field())
	}
	if !f.Indexed {
		return schema.Field{}, enterrors.NewSchemaError("field %q is not indexed", f.Name)
	}
	if f.Type != t.Type() {
		return schema.Field{}, enterrors.NewSchemaError("field %q holds %s values, got a %s term",
			f.Name, f.Type, t.Type())
	}
	return f, nil
}

func newPhraseWeight(q *Query, stats Statistics, opts Options) (Weight, error) {
	if len(q.Phrase) == 0 {
		return nil, enterrors.NewSchemaError("empty phrase")
	}
	if len(q.Phrase) == 1 {
		return NewWeight(NewTermQuery(q.Phrase[0]), stats, opts)
	}
	s := stats.Schema()
	var field schema.Field
	for i, t := range q.Phrase {
		f, err := indexedField(s, t)
		if err != nil {
			return nil, err
		}
		if i > 0 && f.ID != field.ID {
			return nil, enterrors.NewSchemaError("phrase spans fields %q and %q", field.Name, f.Name)
		}
		field = f
	}
	if !field.IndexRecord().HasPositions() {
		return nil, enterrors.NewSchemaError("field %q does not record positions", field.Name)
	}

	w := &phraseWeight{terms: q.Phrase, slop: q.Slop, scoring: opts.Scoring}
	if opts.Scoring {
		var idf float32
		for _, t := range q.Phrase {
			df, err := stats.DocFreq(t)
			if err != nil {
				return nil, errors.Wrapf(err, "doc freq of %s", t)
			}
			idf += IDF(df, stats.NumDocs())
		}
		w.bm25 = newBM25Weight(opts.BM25, idf, stats.AverageFieldNorm(field.ID))
	}
	return w, nil
}

func newRangeWeight(q *Query, s *schema.Schema) (Weight, error) {
	f, ok := s.Field(q.Field)
	if !ok {
		return nil, enterrors.NewSchemaError("unknown field %d", q.Field)
	}
	for _, b := range []Bound{q.Lower, q.Upper} {
		if b.IsOpen() {
			continue
		}
		if !b.Value.Valid() || b.Value.Field() != f.ID || b.Value.Type() != f.Type {
			return nil, enterrors.NewSchemaError("range bound %s does not belong to field %q", b.Value, f.Name)
		}
	}
	fast := f.Fast && f.Type.IsFastValue()
	if !fast && !f.Indexed {
		return nil, enterrors.NewSchemaError("field %q is neither fast nor indexed", f.Name)
	}
	return &rangeWeight{field: f, lower: q.Lower, upper: q.Upper, fast: fast}, nil
}

type boostWeight struct {
	inner Weight
	boost float32
}

func (w *boostWeight) weight() {}

func (w *boostWeight) Scorer(r *segment.Reader, boost float32) (Scorer, error) {
	return w.inner.Scorer(r, boost*w.boost)
}

type constWeight struct {
	inner Weight
	score float32
}

func (w *constWeight) weight() {}

func (w *constWeight) Scorer(r *segment.Reader, boost float32) (Scorer, error) {
	inner, err := w.inner.Scorer(r, 1)
	if err != nil {
		return nil, err
	}
	if _, empty := inner.(emptyScorer); empty {
		return inner, nil
	}
	return &constScorer{DocSet: inner, score: w.score * boost}, nil
}

type allWeight struct{}

func (allWeight) weight() {}

func (allWeight) Scorer(r *segment.Reader, boost float32) (Scorer, error) {
	return newAllScorer(r.MaxDoc(), boost), nil
}
