package streams

import (
	"context"
	"sync/atomic"
)

// WaitResult is what a stream wait resolves with. Found reports whether the
// waited index was an entry of this stream; Value is only set if it was.
type WaitResult[T any] struct {
	Index LogIndex
	Value T
	Found bool
}

// ConsumerBase is the type-erased read handle of one stream.
type ConsumerBase struct {
	d      *Demultiplexer
	desc   *StreamDescriptor
	box    *inbox
	closed atomic.Bool
}

func (c *ConsumerBase) ID() StreamID { return c.desc.ID }

func (c *ConsumerBase) Name() string { return c.desc.Name }

// WaitFor resolves once the loop has processed the global index idx.
func (c *ConsumerBase) WaitFor(idx LogIndex) *Future[WaitResult[any]] {
	return waitFor[any](c, idx)
}

// Entries iterates over the stream from its lowest retained entry.
func (c *ConsumerBase) Entries() *Iterator[any] { return newIterator[any](c.box, 0) }

// Release drops buffered entries with index <= idx. Iterators positioned
// before idx skip ahead to the next retained entry.
func (c *ConsumerBase) Release(idx LogIndex) { c.box.release(idx) }

// EntriesFrom iterates over the stream starting at the first retained entry
// with index >= from.
func (c *ConsumerBase) EntriesFrom(from LogIndex) *Iterator[any] { return newIterator[any](c.box, from) }

// Snapshot copies the currently buffered entries.
func (c *ConsumerBase) Snapshot() []Entry[any] { return snapshotOf[any](c.box) }

// Len is the number of buffered entries.
func (c *ConsumerBase) Len() int { return c.box.size() }

// Close tears the handle down: its pending waits are aborted and its
// iterators end with an *AbortedWaitError once drained. The stream stops
// buffering new entries; other streams are unaffected.
func (c *ConsumerBase) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.box.finish(&AbortedWaitError{})
	c.d.waits.abortOwner(c, &AbortedWaitError{})
	return nil
}

func waitFor[T any](c *ConsumerBase, idx LogIndex) *Future[WaitResult[T]] {
	f := newFuture[WaitResult[T]]()
	if c.closed.Load() {
		f.abort(&AbortedWaitError{})
		return f
	}
	w := &waiter{
		target: idx,
		owner:  c,
		index:  -1,
		fire: func() {
			res := WaitResult[T]{Index: idx}
			if e, ok := c.box.lookup(idx); ok {
				res.Value, _ = e.value.(T)
				res.Found = true
			}
			f.resolve(res)
		},
		abort: func(err error) { f.abort(err) },
	}
	f.release = func() { c.d.waits.remove(w) }
	c.d.waits.register(w)
	return f
}

// Consumer is the typed read handle of one stream.
type Consumer[T any] struct {
	*ConsumerBase
}

// ConsumerFor returns the typed read handle of stream id. T must be the
// value type the stream was declared with.
func ConsumerFor[T any](d *Demultiplexer, id StreamID) (*Consumer[T], error) {
	base, err := d.Stream(id)
	if err != nil {
		return nil, err
	}
	if err := checkType[T](base.desc); err != nil {
		return nil, err
	}
	return &Consumer[T]{ConsumerBase: base}, nil
}

// WaitFor resolves once the loop has processed the global index idx. If idx
// belongs to this stream the result carries the value stored there.
func (c *Consumer[T]) WaitFor(idx LogIndex) *Future[WaitResult[T]] {
	return waitFor[T](c.ConsumerBase, idx)
}

// Entries iterates over the stream from its lowest retained entry.
func (c *Consumer[T]) Entries() *Iterator[T] { return newIterator[T](c.box, 0) }

// WaitForIterator waits until idx has been processed and returns an
// iterator starting at idx.
func (c *Consumer[T]) WaitForIterator(ctx context.Context, idx LogIndex) (*Iterator[T], error) {
	fut := c.WaitFor(idx)
	if _, err := fut.Wait(ctx); err != nil {
		fut.Cancel()
		return nil, err
	}
	return newIterator[T](c.box, idx), nil
}

// Snapshot copies the currently buffered entries.
func (c *Consumer[T]) Snapshot() []Entry[T] { return snapshotOf[T](c.box) }

func snapshotOf[T any](box *inbox) []Entry[T] {
	raw := box.snapshot()
	out := make([]Entry[T], len(raw))
	for i, e := range raw {
		v, _ := e.value.(T)
		out[i] = Entry[T]{Index: e.index, Value: v}
	}
	return out
}
