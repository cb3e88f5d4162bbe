package load

import (
	"sync"

	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

// coreEntry is one slot in a shard's load heap.
type coreEntry struct {
	core  topology.CoreID
	load  float64
	index int
}

// entryHeap is a plain slice of *coreEntry ordered by its less
// comparator; a Shard's lowHeap and highHeap are both entryHeaps, and
// they reuse the same index-tracking shape as internal/runqueue's
// thread heap.
type entryHeap struct {
	entries []*coreEntry
	less    func(a, b float64) bool
}

func (h *entryHeap) swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *entryHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(h.entries[i].load, h.entries[parent].load) {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *entryHeap) siftDown(i int) {
	n := len(h.entries)
	for {
		l, r := 2*i+1, 2*i+2
		best := i
		if l < n && h.less(h.entries[l].load, h.entries[best].load) {
			best = l
		}
		if r < n && h.less(h.entries[r].load, h.entries[best].load) {
			best = r
		}
		if best == i {
			return
		}
		h.swap(i, best)
		i = best
	}
}

func (h *entryHeap) push(e *coreEntry) {
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
	h.siftUp(e.index)
}

func (h *entryHeap) remove(e *coreEntry) {
	i := e.index
	if i < 0 || i >= len(h.entries) || h.entries[i] != e {
		return
	}
	last := len(h.entries) - 1
	h.swap(i, last)
	h.entries = h.entries[:last]
	e.index = -1
	if i < len(h.entries) {
		h.siftDown(i)
		h.siftUp(i)
	}
}

func (h *entryHeap) peek() *coreEntry {
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[0]
}

// Shard holds one slice of the global core population (core_id mod N),
// each with its own independently-locked low-load min-heap and
// high-load max-heap (spec.md §3.6: "sharded min/max heaps of cores by
// load ... each with its own lock").
type Shard struct {
	mu       sync.RWMutex
	byCore   map[topology.CoreID]*coreEntry
	lowHeap  entryHeap // min-heap: root is least-loaded
	highHeap entryHeap // max-heap: root is most-loaded
}

func newShard() *Shard {
	return &Shard{
		byCore:   make(map[topology.CoreID]*coreEntry),
		lowHeap:  entryHeap{less: func(a, b float64) bool { return a < b }},
		highHeap: entryHeap{less: func(a, b float64) bool { return a > b }},
	}
}

// Update inserts or re-buckets a core's load entry into this shard's
// low-load or high-load heap depending on whether it is currently
// above HighLoadThreshold.
func (s *Shard) Update(core topology.CoreID, newLoad float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byCore[core]; ok {
		s.lowHeap.remove(e)
		s.highHeap.remove(e)
		e.load = newLoad
		s.insertLocked(e)
		return
	}
	e := &coreEntry{core: core, load: newLoad, index: -1}
	s.byCore[core] = e
	s.insertLocked(e)
}

func (s *Shard) insertLocked(e *coreEntry) {
	if e.load >= HighLoadThreshold {
		s.highHeap.push(e)
	} else {
		s.lowHeap.push(e)
	}
}

// Remove drops a core from this shard entirely (core went defunct).
func (s *Shard) Remove(core topology.CoreID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byCore[core]
	if !ok {
		return
	}
	s.lowHeap.remove(e)
	s.highHeap.remove(e)
	delete(s.byCore, core)
}

// LeastLoaded returns the shard's current least-loaded core and its
// load, or ok=false if the shard has no tracked cores.
func (s *Shard) LeastLoaded() (core topology.CoreID, load float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.lowHeap.peek()
	if e == nil {
		// highHeap is a max-heap, so its root is its most-loaded entry;
		// scan it for the minimum instead.
		for _, c := range s.highHeap.entries {
			if e == nil || c.load < e.load {
				e = c
			}
		}
	}
	if e == nil {
		return 0, 0, false
	}
	return e.core, e.load, true
}

// MostLoaded returns the shard's current most-loaded core and its
// load, or ok=false if the shard has no tracked cores.
func (s *Shard) MostLoaded() (core topology.CoreID, load float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.highHeap.peek()
	if e == nil {
		// lowHeap is a min-heap, so its root is its least-loaded entry;
		// scan it for the maximum instead.
		for _, c := range s.lowHeap.entries {
			if e == nil || c.load > e.load {
				e = c
			}
		}
	}
	if e == nil {
		return 0, 0, false
	}
	return e.core, e.load, true
}

// ShardedCoreHeaps is the global sharded core-load ranking structure
// (spec.md §3.6). Cores are assigned to shards by core_id mod N so
// contention on the balancer's sampling path is spread across shard
// locks instead of one global one.
type ShardedCoreHeaps struct {
	shards []*Shard
}

// NewShardedCoreHeaps creates n independently-locked shards.
func NewShardedCoreHeaps(n int) *ShardedCoreHeaps {
	if n < 1 {
		n = 1
	}
	h := &ShardedCoreHeaps{shards: make([]*Shard, n)}
	for i := range h.shards {
		h.shards[i] = newShard()
	}
	return h
}

func (h *ShardedCoreHeaps) shardFor(core topology.CoreID) *Shard {
	return h.shards[int(core)%len(h.shards)]
}

// Update re-buckets a core's load reading.
func (h *ShardedCoreHeaps) Update(core topology.CoreID, newLoad float64) {
	h.shardFor(core).Update(core, newLoad)
}

// Remove drops a defunct core from tracking.
func (h *ShardedCoreHeaps) Remove(core topology.CoreID) {
	h.shardFor(core).Remove(core)
}

// LeastLoadedAcrossShards samples every shard's least-loaded core and
// returns the global minimum, for the balancer choosing a migration
// destination (spec.md §4.7).
func (h *ShardedCoreHeaps) LeastLoadedAcrossShards() (core topology.CoreID, load float64, ok bool) {
	best := -1.0
	found := false
	for _, s := range h.shards {
		c, l, o := s.LeastLoaded()
		if !o {
			continue
		}
		if !found || l < best {
			best, core, found = l, c, true
		}
	}
	return core, best, found
}

// MostLoadedAcrossShards samples every shard's most-loaded core and
// returns the global maximum, for the balancer choosing a migration
// source (spec.md §4.7).
func (h *ShardedCoreHeaps) MostLoadedAcrossShards() (core topology.CoreID, load float64, ok bool) {
	best := -1.0
	found := false
	for _, s := range h.shards {
		c, l, o := s.MostLoaded()
		if !o {
			continue
		}
		if !found || l > best {
			best, core, found = l, c, true
		}
	}
	return core, best, found
}
