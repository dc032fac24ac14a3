package streams

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Envelope is one entry of the shared log as seen by this package.
// Index is the entry's log position and is not part of the wire bytes.
type Envelope struct {
	Index   LogIndex
	Stream  StreamID
	Tag     StreamTag
	Payload []byte
}

// EncodeEnvelope renders e as uvarint(stream) | uvarint(tag) | payload.
func EncodeEnvelope(e Envelope) []byte {
	b := make([]byte, 0, 2*binary.MaxVarintLen32+len(e.Payload))
	b = binary.AppendUvarint(b, uint64(e.Stream))
	b = binary.AppendUvarint(b, uint64(e.Tag))
	return append(b, e.Payload...)
}

// DecodeEnvelope parses the wire bytes of an envelope. Payload aliases b.
func DecodeEnvelope(b []byte) (Envelope, error) {
	stream, n := binary.Uvarint(b)
	if n <= 0 || stream > math.MaxUint32 {
		return Envelope{}, fmt.Errorf("%w: bad stream id", ErrMalformedEnvelope)
	}
	tag, m := binary.Uvarint(b[n:])
	if m <= 0 || tag > math.MaxUint32 {
		return Envelope{}, fmt.Errorf("%w: bad stream tag", ErrMalformedEnvelope)
	}
	return Envelope{Stream: StreamID(stream), Tag: StreamTag(tag), Payload: b[n+m:]}, nil
}
