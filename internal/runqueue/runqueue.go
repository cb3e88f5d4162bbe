// Package runqueue implements the per-CPU ready queue (spec.md §4.1):
// an intrusive, indexed binary min-heap keyed by virtual_deadline, with
// O(log N) add/remove/update via a thread-to-heap-index back
// reference. The shape follows the general Go "index-tracking heap"
// idiom (container/heap plus an externally maintained index field),
// the same trick sched.Thread.HeapIndex exists to support.
package runqueue

import (
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
)

// Queue is a per-CPU run queue. It satisfies sched.RunQueue
// structurally; nothing in internal/sched imports this package.
type Queue struct {
	items []*sched.Thread
}

// New creates an empty run queue.
func New() *Queue {
	return &Queue{}
}

func less(a, b *sched.Thread) bool {
	da, db := a.VirtualDeadline(), b.VirtualDeadline()
	if da.Equal(db) {
		return a.ID() < b.ID() // deterministic tie-break (spec.md §4.1)
	}
	return da.Before(db)
}

func (q *Queue) swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].HeapIndex = i
	q.items[j].HeapIndex = j
}

func (q *Queue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !less(q.items[i], q.items[parent]) {
			break
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *Queue) siftDown(i int) {
	n := len(q.items)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && less(q.items[left], q.items[smallest]) {
			smallest = left
		}
		if right < n && less(q.items[right], q.items[smallest]) {
			smallest = right
		}
		if smallest == i {
			return
		}
		q.swap(i, smallest)
		i = smallest
	}
}

// Add inserts a thread into the queue (spec.md §4.1 add).
func (q *Queue) Add(t *sched.Thread) {
	t.HeapIndex = len(q.items)
	q.items = append(q.items, t)
	q.siftUp(t.HeapIndex)
}

// AddBatch inserts many threads at once, for the balancer (spec.md
// §4.1 add_batch).
func (q *Queue) AddBatch(threads []*sched.Thread) {
	for _, t := range threads {
		q.Add(t)
	}
}

// Remove removes a thread by identity in O(log N) using its stored
// heap index (spec.md §4.1 remove). Returns false if the thread was
// not present in this queue.
func (q *Queue) Remove(t *sched.Thread) bool {
	i := t.HeapIndex
	if i < 0 || i >= len(q.items) || q.items[i] != t {
		return false
	}
	last := len(q.items) - 1
	q.swap(i, last)
	q.items = q.items[:last]
	t.HeapIndex = -1
	if i < len(q.items) {
		q.siftDown(i)
		q.siftUp(i)
	}
	return true
}

// PopMin removes and returns the thread with the smallest
// virtual_deadline, or nil if the queue is empty (spec.md §4.1
// pop_min).
func (q *Queue) PopMin() *sched.Thread {
	if len(q.items) == 0 {
		return nil
	}
	min := q.items[0]
	q.Remove(min)
	return min
}

// PopMultiple removes and returns up to k threads in deadline order
// (spec.md §4.1 pop_multiple). It is not part of sched.RunQueue; the
// balancer's steal path pops one thread at a time with PopMin.
func (q *Queue) PopMultiple(k int) []*sched.Thread {
	out := make([]*sched.Thread, 0, k)
	for i := 0; i < k; i++ {
		t := q.PopMin()
		if t == nil {
			break
		}
		out = append(out, t)
	}
	return out
}

// PeekMin returns the thread with the smallest virtual_deadline
// without removing it, or nil if empty (spec.md §4.1 peek_min).
func (q *Queue) PeekMin() *sched.Thread {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Update re-keys a thread whose virtual_deadline has changed (spec.md
// §4.1 update): since the heap holds pointers and the comparator reads
// the live field, a mutation only needs to re-settle the thread's
// existing heap slot in both directions.
func (q *Queue) Update(t *sched.Thread) {
	i := t.HeapIndex
	if i < 0 || i >= len(q.items) || q.items[i] != t {
		return
	}
	q.siftDown(i)
	q.siftUp(t.HeapIndex)
}

// Count returns the number of threads currently queued (spec.md §4.1
// count).
func (q *Queue) Count() int {
	return len(q.items)
}

// Snapshot returns a defensive copy of the queue's current contents,
// in no particular order, for the introspect dump surface (spec.md
// §4.15 /dump/runqueue/{cpu}) to read without taking the queue apart.
func (q *Queue) Snapshot() []*sched.Thread {
	return append([]*sched.Thread(nil), q.items...)
}

// IsEmpty reports whether the queue holds no threads (spec.md §4.1
// is_empty).
func (q *Queue) IsEmpty() bool {
	return len(q.items) == 0
}

// LowestActiveBasePriority scans the queue for the lowest base_priority
// among its currently enqueued non-RT threads, the floor
// internal/eevdf.DeriveEffectivePriority applies (spec.md §3.1 "floors
// active non-RT to the lowest active priority"). ok is false if the
// queue holds no non-RT thread.
func (q *Queue) LowestActiveBasePriority() (priority int, ok bool) {
	for _, t := range q.items {
		bp := t.BasePriority()
		if sched.IsRealTime(bp) {
			continue
		}
		if !ok || bp < priority {
			priority, ok = bp, true
		}
	}
	return priority, ok
}
