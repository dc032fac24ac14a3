package streams

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"reflect"
	"slices"

	"github.com/rzbill/logmux/internal/replog"
)

// StreamID identifies one logical stream within a Spec.
type StreamID uint32

// StreamTag identifies one wire encoding of a stream's value type.
type StreamTag uint32

// LogIndex is a position in the shared log, global across all streams.
type LogIndex = replog.Index

// TagCodec binds a codec to the tag it is registered under.
type TagCodec[T any] struct {
	Tag   StreamTag
	Codec Codec[T]
}

// Use registers c under tag.
func Use[T any](tag StreamTag, c Codec[T]) TagCodec[T] {
	return TagCodec[T]{Tag: tag, Codec: c}
}

// TagDescriptor is the type-erased codec for one (stream, tag) pair.
type TagDescriptor struct {
	Stream StreamID
	Tag    StreamTag

	codec  any
	encode func(any) ([]byte, error)
	decode func([]byte) (any, error)
}

func (t TagDescriptor) Encode(v any) ([]byte, error) { return t.encode(v) }
func (t TagDescriptor) Decode(b []byte) (any, error) { return t.decode(b) }

// StreamDescriptor describes one declared stream.
type StreamDescriptor struct {
	ID        StreamID
	Name      string
	ValueType reflect.Type

	// tags are sorted by ascending tag number.
	tags []TagDescriptor
	err  error
}

// Declare describes stream id carrying values of type T. The highest
// numbered tag is used for writing; every tag remains readable.
func Declare[T any](id StreamID, name string, tags ...TagCodec[T]) StreamDescriptor {
	d := StreamDescriptor{ID: id, Name: name, ValueType: reflect.TypeFor[T]()}
	if len(tags) == 0 {
		d.err = fmt.Errorf("stream %d (%s) declares no tags", id, name)
		return d
	}
	for _, tc := range tags {
		if tc.Codec == nil {
			d.err = fmt.Errorf("stream %d (%s) tag %d has a nil codec", id, name, tc.Tag)
			return d
		}
		c := tc.Codec
		d.tags = append(d.tags, TagDescriptor{
			Stream: id,
			Tag:    tc.Tag,
			codec:  c,
			encode: func(v any) ([]byte, error) {
				tv, ok := v.(T)
				if !ok {
					return nil, &MisuseError{Op: "insert", Reason: fmt.Sprintf("stream %d expects %s, got %T", id, d.ValueType, v)}
				}
				return c.Encode(tv)
			},
			decode: func(b []byte) (any, error) { return c.Decode(b) },
		})
	}
	slices.SortFunc(d.tags, func(a, b TagDescriptor) int { return cmp.Compare(a.Tag, b.Tag) })
	for i := 1; i < len(d.tags); i++ {
		if d.tags[i].Tag == d.tags[i-1].Tag {
			d.err = fmt.Errorf("stream %d (%s) registers tag %d twice", id, name, d.tags[i].Tag)
			return d
		}
	}
	return d
}

// CanonicalTag is the tag new entries are written with.
func (d StreamDescriptor) CanonicalTag() TagDescriptor { return d.tags[len(d.tags)-1] }

// Tags lists the registered tags in ascending order.
func (d StreamDescriptor) Tags() []StreamTag {
	out := make([]StreamTag, len(d.tags))
	for i, t := range d.tags {
		out[i] = t.Tag
	}
	return out
}

func (d StreamDescriptor) lookupTag(tag StreamTag) (TagDescriptor, bool) {
	i, ok := slices.BinarySearchFunc(d.tags, tag, func(t TagDescriptor, tag StreamTag) int { return cmp.Compare(t.Tag, tag) })
	if !ok {
		return TagDescriptor{}, false
	}
	return d.tags[i], true
}

// Spec is the immutable set of streams shared by every participant of one
// log. It is passed explicitly to both the Multiplexer and Demultiplexer.
type Spec struct {
	streams     map[StreamID]*StreamDescriptor
	ordered     []*StreamDescriptor
	fingerprint uint64
}

// NewSpec validates descs and builds a Spec.
func NewSpec(descs ...StreamDescriptor) (*Spec, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("%w: no streams declared", ErrInvalidSpec)
	}
	s := &Spec{streams: make(map[StreamID]*StreamDescriptor, len(descs))}
	for i := range descs {
		d := descs[i]
		if d.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, d.err)
		}
		if d.tags == nil {
			return nil, fmt.Errorf("%w: stream %d was not built with Declare", ErrInvalidSpec, d.ID)
		}
		if _, dup := s.streams[d.ID]; dup {
			return nil, fmt.Errorf("%w: stream id %d declared twice", ErrInvalidSpec, d.ID)
		}
		s.streams[d.ID] = &d
		s.ordered = append(s.ordered, &d)
	}
	slices.SortFunc(s.ordered, func(a, b *StreamDescriptor) int { return cmp.Compare(a.ID, b.ID) })
	s.fingerprint = fingerprint(s.ordered)
	return s, nil
}

// MustSpec is NewSpec for package-level declarations; it panics on error.
func MustSpec(descs ...StreamDescriptor) *Spec {
	s, err := NewSpec(descs...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Spec) Lookup(id StreamID) (StreamDescriptor, bool) {
	d, ok := s.streams[id]
	if !ok {
		return StreamDescriptor{}, false
	}
	return *d, true
}

func (s *Spec) LookupTag(id StreamID, tag StreamTag) (TagDescriptor, bool) {
	d, ok := s.streams[id]
	if !ok {
		return TagDescriptor{}, false
	}
	return d.lookupTag(tag)
}

// Streams returns the declared streams ordered by ID.
func (s *Spec) Streams() []StreamDescriptor {
	out := make([]StreamDescriptor, len(s.ordered))
	for i, d := range s.ordered {
		out[i] = *d
	}
	return out
}

// Fingerprint digests IDs, names, value types and tag sets. Participants
// with different fingerprints cannot share a log.
func (s *Spec) Fingerprint() uint64 { return s.fingerprint }

var crcTable = crc64.MakeTable(crc64.ECMA)

func fingerprint(ds []*StreamDescriptor) uint64 {
	var b []byte
	for _, d := range ds {
		b = binary.AppendUvarint(b, uint64(d.ID))
		b = append(b, d.Name...)
		b = append(b, 0)
		b = append(b, d.ValueType.String()...)
		b = append(b, 0)
		for _, t := range d.tags {
			b = binary.AppendUvarint(b, uint64(t.Tag))
		}
		b = append(b, 0xff)
	}
	return crc64.Checksum(b, crcTable)
}
