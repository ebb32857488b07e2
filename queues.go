package microkern

import (
	"container/heap"

	"golang.org/x/exp/slices"
)

// tickSignBit is bit 31 of the tick counter; a flip during an advance
// triggers a rebase of the time-of-day base.
const tickSignBit uint32 = 1 << 31

// tickExpired reports whether deadline is at or before now on the
// wrapping 32-bit tick line. Valid while the span between the two is
// below 2³¹ ticks.
func tickExpired(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// runQueue is the set of TaskReady tasks, ordered by priority with the
// most urgent (lowest numeric) at the head. It never contains the
// running task. Priorities are unique; insert rejects duplicates.
type runQueue struct {
	q []*Task
}

func (r *runQueue) search(priority uint8) (int, bool) {
	return slices.BinarySearchFunc(r.q, priority, func(t *Task, p uint8) int {
		return int(t.priority) - int(p)
	})
}

// insert adds t in priority order. Returns ErrInvalidParam if a task
// of equal priority is already queued.
func (r *runQueue) insert(t *Task) error {
	i, found := r.search(t.priority)
	if found {
		return ErrInvalidParam
	}
	r.q = slices.Insert(r.q, i, t)
	return nil
}

// remove takes t out of the queue. No-op if absent.
func (r *runQueue) remove(t *Task) {
	if i, found := r.search(t.priority); found && r.q[i] == t {
		r.q = slices.Delete(r.q, i, i+1)
	}
}

// head returns the most urgent ready task, or nil when empty.
func (r *runQueue) head() *Task {
	if len(r.q) == 0 {
		return nil
	}
	return r.q[0]
}

func (r *runQueue) empty() bool { return len(r.q) == 0 }

// sleepHeap is a min-heap of sleeping tasks keyed by wake tick, with
// wrap-aware comparison.
type sleepHeap []*Task

func (h sleepHeap) Len() int { return len(h) }
func (h sleepHeap) Less(i, j int) bool {
	return int32(h[i].nextWakeup-h[j].nextWakeup) < 0
}
func (h sleepHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sleepHeap) Push(x any) {
	*h = append(*h, x.(*Task))
}

func (h *sleepHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// sleepQueue holds TaskSleeping tasks: a deadline-ordered heap for
// finite waits plus a side list for wait-forever sleepers, which only
// an external TaskWake can move back.
type sleepQueue struct {
	h       sleepHeap
	forever []*Task
}

// insert adds t according to its waitForever flag and nextWakeup.
func (s *sleepQueue) insert(t *Task) {
	if t.waitForever {
		s.forever = append(s.forever, t)
		return
	}
	heap.Push(&s.h, t)
}

// remove takes t out of whichever list holds it. No-op if absent.
func (s *sleepQueue) remove(t *Task) {
	for i, f := range s.forever {
		if f == t {
			s.forever = slices.Delete(s.forever, i, i+1)
			return
		}
	}
	for i, f := range s.h {
		if f == t {
			heap.Remove(&s.h, i)
			return
		}
	}
}

// drainExpired removes and returns every task whose deadline is at or
// before now, in deadline order. Wait-forever sleepers are never
// drained.
func (s *sleepQueue) drainExpired(now uint32) []*Task {
	var out []*Task
	for len(s.h) > 0 && tickExpired(now, s.h[0].nextWakeup) {
		out = append(out, heap.Pop(&s.h).(*Task))
	}
	return out
}

func (s *sleepQueue) empty() bool { return len(s.h) == 0 && len(s.forever) == 0 }
