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

package collector

import "sort"

// boundedHeap keeps the best k items pushed. The worst kept item sits at
// the root so it can be replaced in O(log k).
type boundedHeap[T any] struct {
	items []T
	k     int
	// worse orders the items, the root is the worst
	worse func(a, b T) bool
}

func newBoundedHeap[T any](k int, worse func(a, b T) bool) *boundedHeap[T] {
	return &boundedHeap[T]{items: make([]T, 0, min(k, 1024)), k: k, worse: worse}
}

func (h *boundedHeap[T]) Len() int { return len(h.items) }

func (h *boundedHeap[T]) Full() bool { return len(h.items) >= h.k }

// Top is the worst kept item.
func (h *boundedHeap[T]) Top() T { return h.items[0] }

// Push offers item, it is kept if the heap is not full or if it beats the
// worst item.
func (h *boundedHeap[T]) Push(item T) bool {
	if h.k <= 0 {
		return false
	}
	if !h.Full() {
		h.items = append(h.items, item)
		i := len(h.items) - 1
		for i != 0 && h.worse(h.items[i], h.items[h.parent(i)]) {
			h.swap(i, h.parent(i))
			i = h.parent(i)
		}
		return true
	}
	if !h.worse(h.items[0], item) {
		return false
	}
	h.items[0] = item
	h.heapify(0)
	return true
}

// Sorted returns the kept items best first and empties the heap.
func (h *boundedHeap[T]) Sorted() []T {
	out := h.items
	h.items = nil
	sort.Slice(out, func(i, j int) bool { return h.worse(out[j], out[i]) })
	return out
}

func (h *boundedHeap[T]) left(i int) int { return 2*i + 1 }

func (h *boundedHeap[T]) right(i int) int { return 2*i + 2 }

func (h *boundedHeap[T]) parent(i int) int { return (i - 1) / 2 }

func (h *boundedHeap[T]) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

// heapify restores the heap property below i.
func (h *boundedHeap[T]) heapify(i int) {
	left := h.left(i)
	right := h.right(i)
	worst := i
	if left < len(h.items) && h.worse(h.items[left], h.items[worst]) {
		worst = left
	}
	if right < len(h.items) && h.worse(h.items[right], h.items[worst]) {
		worst = right
	}
	if worst != i {
		h.swap(i, worst)
		h.heapify(worst)
	}
}

// mergeSorted keeps the k best items of the fruits.
func mergeSorted[T any](fruits [][]T, k int, worse func(a, b T) bool) []T {
	h := newBoundedHeap(k, worse)
	for _, fruit := range fruits {
		for _, item := range fruit {
			h.Push(item)
		}
	}
	return h.Sorted()
}
