package ao

import "time"

// TimeEvent is a periodic (or one-shot) timer armed against one AO,
// re-queued as it expires (§4.10). Stop disarms it; an expiration already
// posted before Stop is still delivered — handlers must be idempotent.
type TimeEvent struct {
	ao       AO
	signal   Signal
	period   time.Duration // 0 = one-shot
	next     time.Time
	armed    bool
	heapIdx  int
	newEvent func(now time.Time) Event
}

// Stop disarms the TimeEvent. Safe to call more than once.
func (t *TimeEvent) Stop() {
	t.armed = false
}

// timeEventHeap orders TimeEvents by next-fire time for container/heap.
type timeEventHeap []*TimeEvent

func (h timeEventHeap) Len() int            { return len(h) }
func (h timeEventHeap) Less(i, j int) bool  { return h[i].next.Before(h[j].next) }
func (h timeEventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx, h[j].heapIdx = i, j
}
func (h *timeEventHeap) Push(x interface{}) {
	te := x.(*TimeEvent)
	te.heapIdx = len(*h)
	*h = append(*h, te)
}
func (h *timeEventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	te := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return te
}
