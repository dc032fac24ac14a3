package streams

import (
	"slices"
	"sync"
)

type inboxEntry struct {
	index LogIndex
	value any
}

// inbox is the append-only projection of the shared log onto one stream.
// The consumption loop is its only writer; readers block on notifyCh, which
// is closed and replaced on every append.
type inbox struct {
	mu       sync.Mutex
	entries  []inboxEntry
	released LogIndex
	notifyCh chan struct{}
	done     bool
	err      error
}

func newInbox() *inbox {
	return &inbox{notifyCh: make(chan struct{})}
}

func (b *inbox) append(idx LogIndex, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.entries = append(b.entries, inboxEntry{index: idx, value: v})
	b.notifyLocked()
}

// finish ends the inbox. Readers drain what is buffered and then observe err;
// a nil err is a clean end of data.
func (b *inbox) finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done, b.err = true, err
	close(b.notifyCh)
}

func (b *inbox) notifyLocked() {
	close(b.notifyCh)
	b.notifyCh = make(chan struct{})
}

// seek returns the first entry with index >= from. When none is buffered it
// returns the channel to wait on, or done with the terminal error.
func (b *inbox) seek(from LogIndex) (e inboxEntry, ok bool, wait <-chan struct{}, done bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.search(from)
	if i < len(b.entries) {
		return b.entries[i], true, nil, false, nil
	}
	if b.done {
		return inboxEntry{}, false, nil, true, b.err
	}
	return inboxEntry{}, false, b.notifyCh, false, nil
}

func (b *inbox) lookup(idx LogIndex) (inboxEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.search(idx)
	if i < len(b.entries) && b.entries[i].index == idx {
		return b.entries[i], true
	}
	return inboxEntry{}, false
}

func (b *inbox) search(idx LogIndex) int {
	i, _ := slices.BinarySearchFunc(b.entries, idx, func(e inboxEntry, idx LogIndex) int {
		switch {
		case e.index < idx:
			return -1
		case e.index > idx:
			return 1
		}
		return 0
	})
	return i
}

// release drops entries with index <= through.
func (b *inbox) release(through LogIndex) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if through <= b.released {
		return
	}
	b.released = through
	i := b.search(through + 1)
	b.entries = slices.Clone(b.entries[i:])
}

func (b *inbox) releasedThrough() LogIndex {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

func (b *inbox) snapshot() []inboxEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.entries)
}

func (b *inbox) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
