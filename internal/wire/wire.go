// Package wire frames stored cache values. Every byte slice handed to a
// tier store is an envelope: magic and version for corruption detection,
// the writing tier and write time for provenance, then the payload. The
// decoder is strict — any deviation, including trailing bytes, reports
// ErrCorrupt so the engine can self-heal by dropping the entry.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version   byte = 1
	kindEntry byte = 1
)

var (
	ErrCorrupt = errors.New("stateless: corrupt entry")
	magic4     = [...]byte{'S', 'T', 'L', 'S'}
)

// Entry is the stored form of one cache value.
type Entry struct {
	// Origin is the tier that wrote the entry.
	Origin string

	// WrittenAt is the write time in Unix nanoseconds.
	WrittenAt int64

	// Payload is the codec output. Decode returns a subslice of the input
	// buffer; callers that outlive the buffer must copy.
	Payload []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames an entry:
//
//	magic(4) | ver(1) | kind(1) | olen(1) | origin(olen) | written(u64 be) | vlen(u32 be) | payload(vlen)
func Encode(e Entry) ([]byte, error) {
	if len(e.Origin) > 0xFF {
		return nil, fmt.Errorf("stateless: origin %q too long", e.Origin)
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 1 + len(e.Origin) + 8 + 4 + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	buf.WriteByte(byte(len(e.Origin)))
	buf.WriteString(e.Origin)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(e.WrittenAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

// Decode validates and unwraps an envelope. The payload is zero-copy.
func Decode(b []byte) (Entry, error) {
	const hdr = 4 + 1 + 1 + 1
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}

	off := 6

	olen := int(b[off])
	off++
	if olen > len(b)-off {
		return Entry{}, ErrCorrupt
	}
	origin := string(b[off : off+olen])
	off += olen

	if off+8 > len(b) {
		return Entry{}, ErrCorrupt
	}
	written := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
		return Entry{}, ErrCorrupt
	}
	if off+vlen != len(b) { // no trailing bytes
		return Entry{}, ErrCorrupt
	}

	return Entry{Origin: origin, WrittenAt: written, Payload: b[off : off+vlen]}, nil
}
