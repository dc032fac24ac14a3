package streams

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Codec converts a stream value to and from its wire payload.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

var errTrailingBytes = errors.New("trailing bytes after value")

// Int64 encodes signed integers as zig-zag varints.
func Int64() Codec[int64] { return int64Codec{} }

type int64Codec struct{}

func (int64Codec) Encode(v int64) ([]byte, error) { return binary.AppendVarint(nil, v), nil }

func (int64Codec) Decode(b []byte) (int64, error) {
	v, n := binary.Varint(b)
	if n <= 0 {
		return 0, fmt.Errorf("int64: bad varint (%d bytes)", len(b))
	}
	if n != len(b) {
		return 0, fmt.Errorf("int64: %w", errTrailingBytes)
	}
	return v, nil
}

// Uint64 encodes unsigned integers as uvarints.
func Uint64() Codec[uint64] { return uint64Codec{} }

type uint64Codec struct{}

func (uint64Codec) Encode(v uint64) ([]byte, error) { return binary.AppendUvarint(nil, v), nil }

func (uint64Codec) Decode(b []byte) (uint64, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, fmt.Errorf("uint64: bad uvarint (%d bytes)", len(b))
	}
	if n != len(b) {
		return 0, fmt.Errorf("uint64: %w", errTrailingBytes)
	}
	return v, nil
}

// String stores the raw bytes of the string.
func String() Codec[string] { return stringCodec{} }

type stringCodec struct{}

func (stringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (stringCodec) Decode(b []byte) (string, error) { return string(b), nil }

// Bytes stores the value verbatim. Decoded slices are copies.
func Bytes() Codec[[]byte] { return bytesCodec{} }

type bytesCodec struct{}

func (bytesCodec) Encode(v []byte) ([]byte, error) { return append([]byte{}, v...), nil }
func (bytesCodec) Decode(b []byte) ([]byte, error) { return append([]byte{}, b...), nil }

// JSON encodes values with encoding/json.
func JSON[T any]() Codec[T] { return jsonCodec[T]{} }

type jsonCodec[T any] struct{}

func (jsonCodec[T]) Encode(v T) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec[T]) Decode(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}

// Proto encodes protobuf messages in the binary wire format. Marshalling is
// deterministic so identical values produce identical log bytes.
func Proto[T proto.Message]() Codec[T] { return protoCodec[T]{} }

type protoCodec[T proto.Message] struct{}

func (protoCodec[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (protoCodec[T]) Decode(b []byte) (T, error) {
	m := newMessage[T]()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}

// ProtoJSON encodes protobuf messages as canonical protobuf JSON.
func ProtoJSON[T proto.Message]() Codec[T] { return protoJSONCodec[T]{} }

type protoJSONCodec[T proto.Message] struct{}

func (protoJSONCodec[T]) Encode(v T) ([]byte, error) { return protojson.Marshal(v) }

func (protoJSONCodec[T]) Decode(b []byte) (T, error) {
	m := newMessage[T]()
	if err := protojson.Unmarshal(b, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}

func newMessage[T proto.Message]() T {
	var zero T
	return zero.ProtoReflect().New().Interface().(T)
}

// FuncCodec adapts a pair of functions to a Codec.
func FuncCodec[T any](enc func(T) ([]byte, error), dec func([]byte) (T, error)) Codec[T] {
	return funcCodec[T]{enc: enc, dec: dec}
}

type funcCodec[T any] struct {
	enc func(T) ([]byte, error)
	dec func([]byte) (T, error)
}

func (c funcCodec[T]) Encode(v T) ([]byte, error) { return c.enc(v) }
func (c funcCodec[T]) Decode(b []byte) (T, error) { return c.dec(b) }
