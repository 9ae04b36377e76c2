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
	"sort"
	"sync"

	"github.com/weaviate/textindex/entities/schema"
)

// DeleteOperation removes every document holding Term that was added
// with a lower opstamp.
type DeleteOperation struct {
	Opstamp uint64
	Term    schema.Term
}

// deleteQueue holds the deletes which are not committed yet.
type deleteQueue struct {
	sync.RWMutex
	ops []DeleteOperation
}

func newDeleteQueue() *deleteQueue {
	return &deleteQueue{}
}

// Push is a thread-safe way to queue a single delete
func (q *deleteQueue) Push(op DeleteOperation) {
	q.Lock()
	defer q.Unlock()

	q.ops = append(q.ops, op)
}

// Snapshot returns the queued deletes with an opstamp up to upTo, ordered
// by opstamp. Concurrent pushes may have appended them out of order.
func (q *deleteQueue) Snapshot(upTo uint64) []DeleteOperation {
	q.RLock()
	defer q.RUnlock()

	out := make([]DeleteOperation, 0, len(q.ops))
	for _, op := range q.ops {
		if op.Opstamp <= upTo {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Opstamp < out[j].Opstamp })
	return out
}

// Drop removes the deletes with an opstamp up to upTo, once they are
// committed.
func (q *deleteQueue) Drop(upTo uint64) {
	q.Lock()
	defer q.Unlock()

	kept := q.ops[:0]
	for _, op := range q.ops {
		if op.Opstamp > upTo {
			kept = append(kept, op)
		}
	}
	q.ops = kept
}

func (q *deleteQueue) Clear() {
	q.Lock()
	defer q.Unlock()

	q.ops = nil
}

func (q *deleteQueue) Len() int {
	q.RLock()
	defer q.RUnlock()

	return len(q.ops)
}
