package eventlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// A stored record is
//
//	uvarint(len(header)) | header | payload | crc32c(header|payload) BE
//
// Local logs put the term in the header; the replication stream puts the
// index and term there.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const crcLen = 4

type Record struct {
	Header  []byte
	Payload []byte
}

func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+crcLen)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)
	return binary.BigEndian.AppendUint32(out, checksum(header, payload))
}

// DecodeRecord copies header and payload out of b. Every failure wraps
// ErrCorrupt.
func DecodeRecord(b []byte) (Record, error) {
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return Record{}, fmt.Errorf("%w: bad header length", ErrCorrupt)
	}
	rest := len(b) - n - crcLen
	if rest < 0 || hlen > uint64(rest) {
		return Record{}, fmt.Errorf("%w: truncated (%d bytes, header %d)", ErrCorrupt, len(b), hlen)
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-crcLen]
	if got, want := checksum(header, payload), binary.BigEndian.Uint32(b[len(b)-crcLen:]); got != want {
		return Record{}, fmt.Errorf("%w: checksum %08x, stored %08x", ErrCorrupt, got, want)
	}
	return Record{
		Header:  append([]byte(nil), header...),
		Payload: append([]byte(nil), payload...),
	}, nil
}

func checksum(header, payload []byte) uint32 {
	return crc32.Update(crc32.Update(0, castagnoli, header), castagnoli, payload)
}

// TermHeader encodes a replication term as an 8-byte record header.
func TermHeader(term uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), term)
}

// TermFromHeader decodes a header written by TermHeader; 0 if absent.
func TermFromHeader(h []byte) uint64 {
	if len(h) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(h[:8])
}
