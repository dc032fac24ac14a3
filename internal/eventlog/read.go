package eventlog

import "fmt"

type Item struct {
	Index   uint64
	Header  []byte
	Payload []byte
}

// Read returns up to limit items with index >= from, in ascending order.
// A limit <= 0 reads to the end. A record failing its checksum is reported as
// ErrCorrupt rather than skipped, since readers depend on contiguity.
func (l *Log) Read(from uint64, limit int) ([]Item, error) {
	low, high := entryBounds(l.name)
	iter, err := l.db.NewRangeIter(low, high)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	items := make([]Item, 0, max(1, min(limit, 256)))
	for ok := iter.SeekGE(KeyLogEntry(l.name, from)); ok && (limit <= 0 || len(items) < limit); ok = iter.Next() {
		idx := indexFromKey(iter.Key())
		dec, err := DecodeRecord(iter.Value())
		if err != nil {
			return items, fmt.Errorf("log %q index %d: %w", l.name, idx, err)
		}
		items = append(items, Item{Index: idx, Header: dec.Header, Payload: dec.Payload})
	}
	return items, iter.Error()
}

// Get returns the entry at index.
func (l *Log) Get(index uint64) (Item, error) {
	b, err := l.db.Get(KeyLogEntry(l.name, index))
	if err != nil {
		return Item{}, ErrNotFound
	}
	dec, err := DecodeRecord(b)
	if err != nil {
		return Item{}, fmt.Errorf("log %q index %d: %w", l.name, index, err)
	}
	return Item{Index: index, Header: dec.Header, Payload: dec.Payload}, nil
}
