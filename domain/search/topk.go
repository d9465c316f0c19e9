package search

import (
	"container/heap"
	"sort"
)

// Match identifies a candidate row by batch and row index.
type Match struct {
	Batch    int
	Row      int
	Distance float64
}

// TopK keeps the k closest matches seen so far.
type TopK struct {
	k     int
	items maxHeap
}

// NewTopK creates a collector for the k closest matches.
func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, items: make(maxHeap, 0, k)}
}

// Push offers a match. It is kept only while among the k closest.
func (t *TopK) Push(m Match) {
	if t.k == 0 {
		return
	}
	if len(t.items) < t.k {
		heap.Push(&t.items, m)
		return
	}
	if worse(t.items[0], m) {
		t.items[0] = m
		heap.Fix(&t.items, 0)
	}
}

// Batches returns the set of batch indexes referenced by held matches.
func (t *TopK) Batches() map[int]bool {
	out := make(map[int]bool, len(t.items))
	for _, m := range t.items {
		out[m.Batch] = true
	}
	return out
}

// Len returns the number of matches held.
func (t *TopK) Len() int { return len(t.items) }

// Sorted returns the matches by ascending distance. Ties keep scan order.
func (t *TopK) Sorted() []Match {
	out := make([]Match, len(t.items))
	copy(out, t.items)
	sort.Slice(out, func(i, j int) bool { return worse(out[j], out[i]) })
	return out
}

// worse reports whether a ranks after b: farther, or equally far and later
// in scan order.
func worse(a, b Match) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	if a.Batch != b.Batch {
		return a.Batch > b.Batch
	}
	return a.Row > b.Row
}

// maxHeap orders matches with the worst on top.
type maxHeap []Match

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxHeap) Push(x any) { *h = append(*h, x.(Match)) }

func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
