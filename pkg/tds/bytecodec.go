package tds

import (
	"bytes"
	"encoding/binary"

	"github.com/ha1tch/godriver-mssql/internal/errors"
)

// reader wraps a byte slice with a cursor, the shape the token decoder
// and column codecs consume throughout this package.
type reader struct {
	buf []byte
	pos int
}

func newReader(b []byte) *reader { return &reader{buf: b} }

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errors.New(errors.CodeMalformedPacket, "unexpected end of token stream").Build()
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// uint32BE reads a big-endian uint32, used for the TDS version field
// in PRELOGIN and LOGINACK tokens.
func (r *reader) uint32BE() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (r *reader) int16() (int16, error) {
	v, err := r.uint16()
	return int16(v), err
}

func (r *reader) int32() (int32, error) {
	v, err := r.uint32()
	return int32(v), err
}

func (r *reader) int64() (int64, error) {
	v, err := r.uint64()
	return int64(v), err
}

// bVarchar reads a B_VARCHAR: one-byte character count followed by
// that many UCS-2 characters.
func (r *reader) bVarchar() (string, error) {
	n, err := r.byte()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n) * 2)
	if err != nil {
		return "", err
	}
	return ucs2ToString(b), nil
}

// usVarchar reads a US_VARCHAR: two-byte character count followed by
// that many UCS-2 characters.
func (r *reader) usVarchar() (string, error) {
	n, err := r.uint16()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n) * 2)
	if err != nil {
		return "", err
	}
	return ucs2ToString(b), nil
}

// writer accumulates an outbound token/value stream.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) Bytes() []byte { return w.buf.Bytes() }

func (w *writer) writeByte(b byte) { w.buf.WriteByte(b) }

func (w *writer) writeBytes(b []byte) { w.buf.Write(b) }

func (w *writer) writeUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeInt16(v int16) { w.writeUint16(uint16(v)) }
func (w *writer) writeInt32(v int32) { w.writeUint32(uint32(v)) }
func (w *writer) writeInt64(v int64) { w.writeUint64(uint64(v)) }

func (w *writer) writeBVarchar(s string) {
	b := stringToUCS2(s)
	w.writeByte(byte(len([]rune(s))))
	w.writeBytes(b)
}

func (w *writer) writeUSVarchar(s string) {
	b := stringToUCS2(s)
	w.writeUint16(uint16(len([]rune(s))))
	w.writeBytes(b)
}

// guidBytesToGo reorders the wire's mixed-endian GUID layout
// (little-endian Data1/2/3, big-endian Data4) into the RFC 4122 byte
// order google/uuid expects.
func guidBytesToGo(b []byte) [16]byte {
	var out [16]byte
	if len(b) != 16 {
		return out
	}
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:])
	return out
}

// guidBytesToWire is the inverse of guidBytesToGo.
func guidBytesToWire(b [16]byte) []byte {
	out := make([]byte, 16)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:])
	return out
}

// readPLP reads a Partially Length-Prefixed value: an 8-byte total
// length (0xFFFFFFFFFFFFFFFF meaning SQL NULL, 0 meaning
// empty-but-not-null) followed by a sequence of 4-byte chunk-length
// prefixed chunks terminated by a zero-length chunk.
func readPLP(r *reader) ([]byte, bool, error) {
	total, err := r.uint64()
	if err != nil {
		return nil, false, err
	}
	const plpNull = 0xFFFFFFFFFFFFFFFF
	if total == plpNull {
		return nil, true, nil
	}
	var out []byte
	for {
		chunkLen, err := r.uint32()
		if err != nil {
			return nil, false, err
		}
		if chunkLen == 0 {
			break
		}
		chunk, err := r.bytes(int(chunkLen))
		if err != nil {
			return nil, false, err
		}
		out = append(out, chunk...)
	}
	return out, false, nil
}

// writePLP writes data as a single-chunk PLP value, or the PLP null
// marker if data is nil.
func writePLP(w *writer, data []byte) {
	if data == nil {
		w.writeUint64(0xFFFFFFFFFFFFFFFF)
		return
	}
	w.writeUint64(uint64(len(data)))
	if len(data) > 0 {
		w.writeUint32(uint32(len(data)))
		w.writeBytes(data)
	}
	w.writeUint32(0)
}
