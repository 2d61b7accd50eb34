// Package swapqueue implements the single process-wide priority queue
// serialising all outbound trade intents. No library in the retrieved pack
// supplies a priority queue; container/heap is the standard-library idiom
// for exactly this and is used here without apology (see DESIGN.md).
package swapqueue

import (
	"container/heap"
	"time"

	"github.com/walltrack/engine/pkg/models"
)

type item struct {
	order      *models.Order
	enqueuedAt time.Time
	index      int
}

// priorityHeap orders by Priority ascending (CRITICAL=1 first), then by
// enqueuedAt ascending (FIFO within a priority).
type priorityHeap []*item

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].order.Priority != h[j].order.Priority {
		return h[i].order.Priority < h[j].order.Priority
	}
	return h[i].enqueuedAt.Before(h[j].enqueuedAt)
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

var _ heap.Interface = (*priorityHeap)(nil)
