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

package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/textindex/adapters/repos/db/segment"
)

func metasWithDocs(docs ...uint32) []segment.Meta {
	metas := make([]segment.Meta, len(docs))
	for i, n := range docs {
		metas[i] = segment.Meta{ID: segment.NewID(), MaxDoc: n}
	}
	return metas
}

func ids(metas ...segment.Meta) MergeCandidate {
	c := make(MergeCandidate, len(metas))
	for i, m := range metas {
		c[i] = m.ID
	}
	return c
}

func TestNoMergePolicy(t *testing.T) {
	assert.Empty(t, NoMergePolicy{}.ComputeMergeCandidates(metasWithDocs(1, 1, 1, 1, 1)))
}

func TestLogMergePolicyLevels(t *testing.T) {
	p := NewLogMergePolicy(3, 0)
	p.MinLayerSize = 100

	tests := []struct {
		name     string
		docs     []uint32
		expected [][]int
	}{
		{
			name:     "too few segments",
			docs:     []uint32{10, 20},
			expected: nil,
		},
		{
			name:     "one full level",
			docs:     []uint32{10, 20, 99},
			expected: [][]int{{0, 1, 2}},
		},
		{
			name:     "small and large segments are not mixed",
			docs:     []uint32{10, 20, 400, 30},
			expected: [][]int{{0, 1, 3}},
		},
		{
			name:     "two full levels, lowest first",
			docs:     []uint32{400, 10, 450, 20, 500, 30},
			expected: [][]int{{1, 3, 5}, {0, 2, 4}},
		},
		{
			name:     "huge segments are left alone",
			docs:     []uint32{20_000_000, 20_000_000, 20_000_000},
			expected: nil,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			metas := metasWithDocs(test.docs...)
			var expected []MergeCandidate
			for _, group := range test.expected {
				var c MergeCandidate
				for _, i := range group {
					c = append(c, metas[i].ID)
				}
				expected = append(expected, c)
			}
			assert.Equal(t, expected, p.ComputeMergeCandidates(metas))
		})
	}
}

func TestLogMergePolicyDeletes(t *testing.T) {
	p := NewLogMergePolicy(3, 0)
	metas := metasWithDocs(100, 100)
	metas[0] = metas[0].WithDeletes(60, 1)
	metas[1] = metas[1].WithDeletes(10, 1)

	assert.Equal(t, []MergeCandidate{ids(metas[0])}, p.ComputeMergeCandidates(metas))

	p.DeletesRatio = 0
	assert.Empty(t, p.ComputeMergeCandidates(metas))
}

func TestLogMergePolicyTooManySegments(t *testing.T) {
	p := NewLogMergePolicy(4, 3)
	p.MinLayerSize = 10
	// every segment on its own level
	metas := metasWithDocs(10, 80, 20, 40)

	candidates := p.ComputeMergeCandidates(metas)
	require.Len(t, candidates, 1)
	assert.Equal(t, ids(metas[0], metas[2], metas[3], metas[1]), candidates[0])

	p.MaxSegments = 4
	assert.Empty(t, p.ComputeMergeCandidates(metas))
}

func TestLogMergePolicyMinimum(t *testing.T) {
	p := NewLogMergePolicy(0, 0)
	assert.Equal(t, 2, p.MinNumSegments)
}

func TestMergeCandidateKey(t *testing.T) {
	a, b := segment.NewID(), segment.NewID()
	assert.Equal(t, MergeCandidate{a, b}.key(), MergeCandidate{b, a}.key())
	assert.NotEqual(t, MergeCandidate{a}.key(), MergeCandidate{a, b}.key())
}
