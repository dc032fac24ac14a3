package streams

import (
	"container/heap"
	"sync"
)

// waiter is one pending registration keyed by the global index it waits for.
type waiter struct {
	target LogIndex
	owner  *ConsumerBase // nil for global-progress waits
	fire   func()
	abort  func(error)
	index  int // heap position, -1 once popped
}

type waitHeap []*waiter

func (h waitHeap) Len() int           { return len(h) }
func (h waitHeap) Less(i, j int) bool { return h[i].target < h[j].target }
func (h waitHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *waitHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waitHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// waitRegistry tracks the consumption loop's progress and the waits on it.
// Settling happens outside the lock so callbacks may re-enter the registry.
type waitRegistry struct {
	mu       sync.Mutex
	applied  LogIndex
	pending  waitHeap
	final    bool
	finalErr error
	onChange func(pending int)
}

func (r *waitRegistry) register(w *waiter) {
	r.mu.Lock()
	switch {
	case w.target <= r.applied:
		r.mu.Unlock()
		w.fire()
		return
	case r.final:
		err := r.finalErr
		r.mu.Unlock()
		w.abort(err)
		return
	case w.owner != nil && w.owner.closed.Load():
		r.mu.Unlock()
		w.abort(&AbortedWaitError{})
		return
	}
	heap.Push(&r.pending, w)
	n := len(r.pending)
	r.mu.Unlock()
	r.changed(n)
}

// advance records that idx has been processed and fires every wait it
// satisfies.
func (r *waitRegistry) advance(idx LogIndex) {
	r.mu.Lock()
	r.applied = idx
	var ready []*waiter
	for len(r.pending) > 0 && r.pending[0].target <= idx {
		ready = append(ready, heap.Pop(&r.pending).(*waiter))
	}
	n := len(r.pending)
	r.mu.Unlock()
	for _, w := range ready {
		w.fire()
	}
	if len(ready) > 0 {
		r.changed(n)
	}
}

func (r *waitRegistry) appliedIndex() LogIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

// terminate aborts every pending wait with err. Later registrations beyond
// the applied index are aborted immediately.
func (r *waitRegistry) terminate(err error) {
	r.mu.Lock()
	if r.final {
		r.mu.Unlock()
		return
	}
	r.final, r.finalErr = true, err
	aborted := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, w := range aborted {
		w.abort(err)
	}
	r.changed(0)
}

// abortOwner aborts the waits registered through one consumer handle.
func (r *waitRegistry) abortOwner(owner *ConsumerBase, err error) {
	r.mu.Lock()
	var aborted []*waiter
	kept := r.pending[:0]
	for _, w := range r.pending {
		if w.owner == owner {
			aborted = append(aborted, w)
			continue
		}
		kept = append(kept, w)
	}
	for i := len(kept); i < len(r.pending); i++ {
		r.pending[i] = nil
	}
	for i, w := range kept {
		w.index = i
	}
	r.pending = kept
	heap.Init(&r.pending)
	n := len(r.pending)
	r.mu.Unlock()
	for _, w := range aborted {
		w.abort(err)
	}
	r.changed(n)
}

// remove drops w without settling it. It is a no-op once w has fired or been
// aborted.
func (r *waitRegistry) remove(w *waiter) {
	r.mu.Lock()
	if w.index < 0 || w.index >= len(r.pending) || r.pending[w.index] != w {
		r.mu.Unlock()
		return
	}
	heap.Remove(&r.pending, w.index)
	w.index = -1
	n := len(r.pending)
	r.mu.Unlock()
	r.changed(n)
}

func (r *waitRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *waitRegistry) changed(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}
