package raftlog

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/hashicorp/raft"

	pebblestore "github.com/rzbill/logmux/internal/storage/pebble"
)

var errKeyNotFound = errors.New("not found")

// Store keeps raft's own log and stable state in Pebble, next to the event log
// the FSM writes to. It implements raft.LogStore and raft.StableStore.
type Store struct {
	db     *pebblestore.DB
	prefix string
}

func NewStore(db *pebblestore.DB, prefix string) *Store {
	return &Store{db: db, prefix: prefix}
}

func (s *Store) logKey(index uint64) []byte {
	k := make([]byte, 0, len(s.prefix)+3+8)
	k = append(k, s.prefix...)
	k = append(k, "/l/"...)
	return binary.BigEndian.AppendUint64(k, index)
}

func (s *Store) logBounds() ([]byte, []byte) {
	low := append([]byte(s.prefix), "/l/"...)
	high := append([]byte(s.prefix), "/l0"...)
	return low, high
}

func (s *Store) stableKey(key []byte) []byte {
	k := append([]byte(s.prefix), "/s/"...)
	return append(k, key...)
}

func (s *Store) edgeIndex(last bool) (uint64, error) {
	low, high := s.logBounds()
	iter, err := s.db.NewRangeIter(low, high)
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	ok := iter.First()
	if last {
		ok = iter.Last()
	}
	if !ok {
		return 0, iter.Error()
	}
	k := iter.Key()
	return binary.BigEndian.Uint64(k[len(k)-8:]), nil
}

func (s *Store) FirstIndex() (uint64, error) { return s.edgeIndex(false) }
func (s *Store) LastIndex() (uint64, error)  { return s.edgeIndex(true) }

func (s *Store) GetLog(index uint64, out *raft.Log) error {
	b, err := s.db.Get(s.logKey(index))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return raft.ErrLogNotFound
		}
		return err
	}
	return decodeLog(b, out)
}

func (s *Store) StoreLog(l *raft.Log) error { return s.StoreLogs([]*raft.Log{l}) }

func (s *Store) StoreLogs(logs []*raft.Log) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, l := range logs {
		if err := b.Set(s.logKey(l.Index), encodeLog(l), nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(context.Background(), b)
}

func (s *Store) DeleteRange(min, max uint64) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(s.logKey(min), s.logKey(max+1), nil); err != nil {
		return err
	}
	return s.db.CommitBatch(context.Background(), b)
}

func (s *Store) Set(key []byte, val []byte) error { return s.db.Set(s.stableKey(key), val) }

// Get returns an error whose text is "not found" for missing keys, which is
// what raft checks for when loading its state.
func (s *Store) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(s.stableKey(key))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, errKeyNotFound
	}
	return v, err
}

func (s *Store) SetUint64(key []byte, val uint64) error {
	return s.Set(key, binary.BigEndian.AppendUint64(nil, val))
}

func (s *Store) GetUint64(key []byte) (uint64, error) {
	v, err := s.Get(key)
	if err != nil {
		if errors.Is(err, errKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(v) != 8 {
		return 0, errors.New("raftlog: malformed uint64 value")
	}
	return binary.BigEndian.Uint64(v), nil
}

func encodeLog(l *raft.Log) []byte {
	b := make([]byte, 0, 32+len(l.Data)+len(l.Extensions))
	b = binary.AppendUvarint(b, l.Index)
	b = binary.AppendUvarint(b, l.Term)
	b = append(b, byte(l.Type))
	b = binary.AppendUvarint(b, uint64(len(l.Data)))
	b = append(b, l.Data...)
	b = binary.AppendUvarint(b, uint64(len(l.Extensions)))
	b = append(b, l.Extensions...)
	return binary.AppendVarint(b, l.AppendedAt.UnixNano())
}

var errMalformedLog = errors.New("raftlog: malformed log record")

func decodeLog(b []byte, out *raft.Log) error {
	var n int
	next := func() (uint64, bool) {
		v, k := binary.Uvarint(b[n:])
		if k <= 0 {
			return 0, false
		}
		n += k
		return v, true
	}
	bytesField := func() ([]byte, bool) {
		ln, ok := next()
		if !ok || uint64(len(b)-n) < ln {
			return nil, false
		}
		v := append([]byte(nil), b[n:n+int(ln)]...)
		n += int(ln)
		return v, true
	}
	var ok bool
	if out.Index, ok = next(); !ok {
		return errMalformedLog
	}
	if out.Term, ok = next(); !ok || n >= len(b) {
		return errMalformedLog
	}
	out.Type = raft.LogType(b[n])
	n++
	if out.Data, ok = bytesField(); !ok {
		return errMalformedLog
	}
	if out.Extensions, ok = bytesField(); !ok {
		return errMalformedLog
	}
	ts, k := binary.Varint(b[n:])
	if k <= 0 {
		return errMalformedLog
	}
	out.AppendedAt = time.Unix(0, ts)
	return nil
}
