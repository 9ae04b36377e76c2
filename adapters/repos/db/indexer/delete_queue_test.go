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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/textindex/entities/schema"
)

func TestDeleteQueue(t *testing.T) {
	q := newDeleteQueue()
	term := schema.TermFromText(0, "fox")
	for _, opstamp := range []uint64{5, 2, 9, 7} {
		q.Push(DeleteOperation{Opstamp: opstamp, Term: term})
	}
	assert.Equal(t, 4, q.Len())

	snapshot := q.Snapshot(7)
	require.Len(t, snapshot, 3)
	assert.Equal(t, uint64(2), snapshot[0].Opstamp)
	assert.Equal(t, uint64(5), snapshot[1].Opstamp)
	assert.Equal(t, uint64(7), snapshot[2].Opstamp)

	q.Drop(7)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, uint64(9), q.Snapshot(100)[0].Opstamp)

	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Snapshot(100))
}

func TestStamper(t *testing.T) {
	s := NewStamper(10)
	assert.Equal(t, uint64(10), s.Last())

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[uint64]struct{}{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stamp := s.Stamp()
				mu.Lock()
				seen[stamp] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
	assert.Equal(t, uint64(810), s.Last())
	assert.Equal(t, uint64(811), s.Stamp())
}
