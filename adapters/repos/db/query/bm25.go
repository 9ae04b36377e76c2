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

import "math"

const (
	DefaultK1 = float32(1.2)
	DefaultB  = float32(0.75)
)

// BM25 holds the parameters of the relevance formula.
type BM25 struct {
	K1 float32
	B  float32
}

func DefaultBM25() BM25 {
	return BM25{K1: DefaultK1, B: DefaultB}
}

// IDF is the inverse document frequency of a term found in docFreq of
// numDocs docs.
func IDF(docFreq, numDocs uint64) float32 {
	n := float64(numDocs)
	df := float64(docFreq)
	if df > n {
		df = n
	}
	return float32(math.Log(1 + (n-df+0.5)/(df+0.5)))
}

// bm25Weight scores one term, or one phrase, in one field.
type bm25Weight struct {
	params  BM25
	weight  float32
	avgNorm float32
}

func newBM25Weight(params BM25, idf, avgNorm float32) bm25Weight {
	if avgNorm <= 0 {
		avgNorm = 1
	}
	return bm25Weight{params: params, weight: idf, avgNorm: avgNorm}
}

func (w bm25Weight) boosted(boost float32) bm25Weight {
	w.weight *= boost
	return w
}

// score grows with tf and shrinks with the field length norm.
func (w bm25Weight) score(tf, norm uint32) float32 {
	f := float32(tf)
	return w.weight * f / (f + w.params.K1*(1-w.params.B+w.params.B*float32(norm)/w.avgNorm))
}

// maxScore bounds the score of every doc with a term frequency of at most
// maxTf and a norm of at least minNorm.
func (w bm25Weight) maxScore(maxTf, minNorm uint32) float32 {
	return w.score(max(maxTf, 1), minNorm)
}
