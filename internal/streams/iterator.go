package streams

import (
	"context"
	"iter"
)

// Entry is one decoded value together with its global log index.
type Entry[T any] struct {
	Index LogIndex
	Value T
}

// Iterator walks one stream's inbox in index order. Reaching the end of the
// buffered entries blocks until more arrive; the sequence only ends once the
// source log is closed or the consumer is torn down.
type Iterator[T any] struct {
	box  *inbox
	next LogIndex
}

func newIterator[T any](box *inbox, from LogIndex) *Iterator[T] {
	return &Iterator[T]{box: box, next: from}
}

// Next returns the next entry. ok is false once the sequence has ended;
// err is then nil for a clean end, or the reason the stream stopped.
func (it *Iterator[T]) Next(ctx context.Context) (e Entry[T], ok bool, err error) {
	for {
		ie, found, wait, done, ferr := it.box.seek(it.next)
		if found {
			it.next = ie.index + 1
			v, _ := ie.value.(T)
			return Entry[T]{Index: ie.index, Value: v}, true, nil
		}
		if done {
			return Entry[T]{}, false, ferr
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return Entry[T]{}, false, ctx.Err()
		}
	}
}

// All adapts the iterator for range-over-func. A terminal error is yielded
// once with a zero entry.
func (it *Iterator[T]) All(ctx context.Context) iter.Seq2[Entry[T], error] {
	return func(yield func(Entry[T], error) bool) {
		for {
			e, ok, err := it.Next(ctx)
			if err != nil {
				yield(Entry[T]{}, err)
				return
			}
			if !ok || !yield(e, nil) {
				return
			}
		}
	}
}
