// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Min-heap of timer handles ordered by due time.

package native

import "container/heap"

type timerHeap []*handle

func (t timerHeap) Len() int { return len(t) }

func (t timerHeap) Less(i, j int) bool { return t[i].due < t[j].due }

func (t timerHeap) Swap(i, j int) {
	t[i], t[j] = t[j], t[i]
	t[i].heapIdx = i
	t[j].heapIdx = j
}

func (t *timerHeap) Push(x any) {
	h := x.(*handle)
	h.heapIdx = len(*t)
	*t = append(*t, h)
}

func (t *timerHeap) Pop() any {
	old := *t
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.heapIdx = -1
	*t = old[:n-1]
	return h
}

func (t *timerHeap) push(h *handle) { heap.Push(t, h) }

func (t *timerHeap) popMin() *handle { return heap.Pop(t).(*handle) }

func (t *timerHeap) remove(h *handle) {
	if h.heapIdx >= 0 && h.heapIdx < len(*t) && (*t)[h.heapIdx] == h {
		heap.Remove(t, h.heapIdx)
	}
}

func (t timerHeap) min() *handle {
	if len(t) == 0 {
		return nil
	}
	return t[0]
}
