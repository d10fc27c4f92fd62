package scheduler

import "time"

// retryItem is one task waiting out a backoff delay before re-entering the
// ready queue.
type retryItem struct {
	taskID string
	wakeAt time.Time
}

// retryHeap is a min-heap ordered by wake time, tied by task id so the
// tie-break stays deterministic when two retries wake in the same instant
// (relevant mainly under a fake clock in tests).
type retryHeap []retryItem

func (h retryHeap) Len() int { return len(h) }
func (h retryHeap) Less(i, j int) bool {
	if !h[i].wakeAt.Equal(h[j].wakeAt) {
		return h[i].wakeAt.Before(h[j].wakeAt)
	}
	return h[i].taskID < h[j].taskID
}
func (h retryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *retryHeap) Push(x any) { *h = append(*h, x.(retryItem)) }

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
