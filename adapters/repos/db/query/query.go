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
	"fmt"
	"strings"

	"github.com/weaviate/textindex/entities/schema"
)

// Kind tells which of the fields of a Query are set.
type Kind uint8

const (
	KindTerm Kind = iota + 1
	KindPhrase
	KindAnd
	KindOr
	KindAndNot
	KindRange
	KindBoost
	KindConstScore
	KindAll
)

func (k Kind) String() string {
	switch k {
	case KindTerm:
		return "term"
	case KindPhrase:
		return "phrase"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindAndNot:
		return "and_not"
	case KindRange:
		return "range"
	case KindBoost:
		return "boost"
	case KindConstScore:
		return "const_score"
	case KindAll:
		return "all"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Bound is one end of a range. A bound without a value is open.
type Bound struct {
	Value     schema.Term
	Exclusive bool
}

func Unbounded() Bound {
	return Bound{}
}

func Inclusive(t schema.Term) Bound {
	return Bound{Value: t}
}

func Exclusive(t schema.Term) Bound {
	return Bound{Value: t, Exclusive: true}
}

func (b Bound) IsOpen() bool {
	return b.Value == nil
}

// Query is a node of a query tree. Queries are built by the constructors
// below and are immutable once built.
type Query struct {
	Kind Kind

	// Term is set for KindTerm.
	Term schema.Term

	// Phrase and Slop are set for KindPhrase. Slop is the number of extra
	// positions allowed between the terms of the phrase.
	Phrase []schema.Term
	Slop   uint32

	// Children holds the operands of KindAnd and KindOr, the included and
	// the excluded query for KindAndNot and the wrapped query for KindBoost
	// and KindConstScore.
	Children []*Query

	// Field, Lower and Upper are set for KindRange.
	Field schema.FieldID
	Lower Bound
	Upper Bound

	// Boost is the factor of KindBoost and the score of KindConstScore.
	Boost float32
}

func NewTermQuery(term schema.Term) *Query {
	return &Query{Kind: KindTerm, Term: term}
}

// NewPhraseQuery matches docs holding terms in order. With slop > 0 up to
// slop other positions may lie between them.
func NewPhraseQuery(terms []schema.Term, slop uint32) *Query {
	return &Query{Kind: KindPhrase, Phrase: terms, Slop: slop}
}

func NewAndQuery(children ...*Query) *Query {
	return &Query{Kind: KindAnd, Children: children}
}

func NewOrQuery(children ...*Query) *Query {
	return &Query{Kind: KindOr, Children: children}
}

// NewAndNotQuery matches the docs of include which do not match exclude.
func NewAndNotQuery(include, exclude *Query) *Query {
	return &Query{Kind: KindAndNot, Children: []*Query{include, exclude}}
}

// NewRangeQuery matches docs with a value of field between lower and upper.
// Bound values are terms of field.
func NewRangeQuery(field schema.FieldID, lower, upper Bound) *Query {
	return &Query{Kind: KindRange, Field: field, Lower: lower, Upper: upper}
}

func NewBoostQuery(q *Query, boost float32) *Query {
	return &Query{Kind: KindBoost, Children: []*Query{q}, Boost: boost}
}

// NewConstScoreQuery matches the docs of q, each with the given score.
func NewConstScoreQuery(q *Query, score float32) *Query {
	return &Query{Kind: KindConstScore, Children: []*Query{q}, Boost: score}
}

// NewAllQuery matches every doc.
func NewAllQuery() *Query {
	return &Query{Kind: KindAll}
}

// Terms appends the terms q needs document frequencies for.
func (q *Query) Terms(dst []schema.Term) []schema.Term {
	switch q.Kind {
	case KindTerm:
		dst = append(dst, q.Term)
	case KindPhrase:
		dst = append(dst, q.Phrase...)
	default:
		for _, c := range q.Children {
			dst = c.Terms(dst)
		}
	}
	return dst
}

func (q *Query) String() string {
	switch q.Kind {
	case KindTerm:
		return q.Term.String()
	case KindPhrase:
		parts := make([]string, len(q.Phrase))
		for i, t := range q.Phrase {
			parts[i] = t.String()
		}
		return fmt.Sprintf("%q~%d", strings.Join(parts, " "), q.Slop)
	case KindAnd, KindOr:
		parts := make([]string, len(q.Children))
		for i, c := range q.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("%s(%s)", q.Kind, strings.Join(parts, ", "))
	case KindAndNot:
		return fmt.Sprintf("and_not(%s, %s)", q.Children[0], q.Children[1])
	case KindRange:
		return fmt.Sprintf("range(%d, %s, %s)", q.Field, q.Lower.Value, q.Upper.Value)
	case KindBoost, KindConstScore:
		return fmt.Sprintf("%s(%s, %g)", q.Kind, q.Children[0], q.Boost)
	default:
		return q.Kind.String()
	}
}
