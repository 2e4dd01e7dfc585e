package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// RecordSize is the encoded size of a Record.
const RecordSize = 24

// ErrRecordSize is returned when decoding a buffer that is not exactly
// RecordSize bytes long.
var ErrRecordSize = errors.New("wire: record must be 24 bytes")

// Record is the fixed-layout structure exchanged by the struct client
// and server. The encoded layout is
//
//	offset 0  int64  A
//	offset 8  int32  B
//	offset 12 int16  C
//	offset 14 int16  D
//	offset 16 [8]byte E (NUL padded)
//
// all little-endian.
type Record struct {
	A int64
	B int32
	C int16
	D int16
	E [8]byte
}

// DefaultRecord returns the record the lab client sends.
func DefaultRecord() Record {
	return NewRecord(12345678910, 333444, 66, 33, "Hello!!")
}

// NewRecord builds a Record, truncating text to 7 bytes so that E always
// keeps a terminating NUL.
func NewRecord(a int64, b int32, c, d int16, text string) Record {
	r := Record{A: a, B: b, C: c, D: d}
	copy(r.E[:len(r.E)-1], text)
	return r
}

// Text returns E up to its first NUL byte.
func (r Record) Text() string {
	if i := bytes.IndexByte(r.E[:], 0); i >= 0 {
		return string(r.E[:i])
	}
	return string(r.E[:])
}

// MarshalBinary encodes the record into its 24-byte wire form.
func (r Record) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, RecordSize))
}

// AppendBinary appends the wire form of r to b.
func (r Record) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint64(b, uint64(r.A))
	b = binary.LittleEndian.AppendUint32(b, uint32(r.B))
	b = binary.LittleEndian.AppendUint16(b, uint16(r.C))
	b = binary.LittleEndian.AppendUint16(b, uint16(r.D))
	return append(b, r.E[:]...), nil
}

// UnmarshalBinary decodes a 24-byte wire form into r.
func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) != RecordSize {
		return fmt.Errorf("%w: got %d", ErrRecordSize, len(b))
	}
	r.A = int64(binary.LittleEndian.Uint64(b[0:8]))
	r.B = int32(binary.LittleEndian.Uint32(b[8:12]))
	r.C = int16(binary.LittleEndian.Uint16(b[12:14]))
	r.D = int16(binary.LittleEndian.Uint16(b[14:16]))
	copy(r.E[:], b[16:24])
	return nil
}

// String renders the record one field per line, the way the struct
// server prints it.
func (r Record) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "a = %d\n", r.A)
	fmt.Fprintf(&sb, "b = %d\n", r.B)
	fmt.Fprintf(&sb, "c = %d\n", r.C)
	fmt.Fprintf(&sb, "d = %d\n", r.D)
	fmt.Fprintf(&sb, "e = %s", r.Text())
	return sb.String()
}
