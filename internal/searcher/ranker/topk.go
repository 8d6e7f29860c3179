package ranker

import "container/heap"

// topK keeps the best limit results using a min-heap over the result order,
// then unloads it back-to-front. limit <= 0 returns everything, fully
// sorted.
func topK(results []RankedResult, limit int) []RankedResult {
	if limit <= 0 || limit >= len(results) {
		sortAll(results)
		return results
	}
	h := &resultHeap{}
	heap.Init(h)
	for _, r := range results {
		heap.Push(h, r)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	out := make([]RankedResult, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(RankedResult)
	}
	return out
}

// resultHeap is a min-heap: the root is the worst retained result, popped
// first when the heap overflows the limit.
type resultHeap []RankedResult

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool { return less(h[j], h[i]) }

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x interface{}) {
	*h = append(*h, x.(RankedResult))
}

func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
