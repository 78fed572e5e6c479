package tds

import (
	"bytes"
	"testing"
)

func TestReaderPrimitives(t *testing.T) {
	w := &writer{}
	w.writeByte(0x42)
	w.writeUint16(1234)
	w.writeUint32(567890)
	w.writeUint64(123456789012345)
	w.writeInt16(-5)
	w.writeInt32(-500000)

	r := newReader(w.Bytes())
	b, err := r.byte()
	if err != nil || b != 0x42 {
		t.Fatalf("byte() = %v, %v, want 0x42, nil", b, err)
	}
	u16, err := r.uint16()
	if err != nil || u16 != 1234 {
		t.Fatalf("uint16() = %v, %v, want 1234, nil", u16, err)
	}
	u32, err := r.uint32()
	if err != nil || u32 != 567890 {
		t.Fatalf("uint32() = %v, %v, want 567890, nil", u32, err)
	}
	u64, err := r.uint64()
	if err != nil || u64 != 123456789012345 {
		t.Fatalf("uint64() = %v, %v, want 123456789012345, nil", u64, err)
	}
	i16, err := r.int16()
	if err != nil || i16 != -5 {
		t.Fatalf("int16() = %v, %v, want -5, nil", i16, err)
	}
	i32, err := r.int32()
	if err != nil || i32 != -500000 {
		t.Fatalf("int32() = %v, %v, want -500000, nil", i32, err)
	}
	if r.remaining() != 0 {
		t.Fatalf("remaining() = %d, want 0", r.remaining())
	}
}

func TestReaderBytesPastEndErrors(t *testing.T) {
	r := newReader([]byte{1, 2, 3})
	if _, err := r.bytes(4); err == nil {
		t.Fatal("expected error reading past end of buffer")
	}
}

func TestUint32BEMatchesBigEndianLayout(t *testing.T) {
	r := newReader([]byte{0x74, 0x00, 0x00, 0x04})
	got, err := r.uint32BE()
	if err != nil {
		t.Fatalf("uint32BE: %v", err)
	}
	if got != VerTDS74 {
		t.Fatalf("uint32BE = 0x%08X, want 0x%08X", got, VerTDS74)
	}
}

func TestBVarcharUSVarcharRoundTrip(t *testing.T) {
	w := &writer{}
	w.writeBVarchar("sa")
	w.writeUSVarchar("a longer server name")

	r := newReader(w.Bytes())
	s1, err := r.bVarchar()
	if err != nil || s1 != "sa" {
		t.Fatalf("bVarchar() = %q, %v, want %q, nil", s1, err, "sa")
	}
	s2, err := r.usVarchar()
	if err != nil || s2 != "a longer server name" {
		t.Fatalf("usVarchar() = %q, %v, want %q, nil", s2, err, "a longer server name")
	}
}

func TestGUIDByteReorderingRoundTrips(t *testing.T) {
	wire := []byte{
		0x04, 0x03, 0x02, 0x01, // Data1, little-endian
		0x06, 0x05, // Data2, little-endian
		0x08, 0x07, // Data3, little-endian
		0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10, // Data4, big-endian
	}
	goOrder := guidBytesToGo(wire)
	back := guidBytesToWire(goOrder)
	if !bytes.Equal(back, wire) {
		t.Fatalf("guidBytesToWire(guidBytesToGo(wire)) = %x, want %x", back, wire)
	}
}

func TestPLPRoundTripNonNull(t *testing.T) {
	w := &writer{}
	data := []byte("a PLP value that spans more than one hypothetical chunk")
	writePLP(w, data)

	r := newReader(w.Bytes())
	got, isNull, err := readPLP(r)
	if err != nil {
		t.Fatalf("readPLP: %v", err)
	}
	if isNull {
		t.Fatal("expected non-null PLP value")
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("readPLP = %q, want %q", got, data)
	}
}

func TestPLPRoundTripNull(t *testing.T) {
	w := &writer{}
	writePLP(w, nil)

	r := newReader(w.Bytes())
	got, isNull, err := readPLP(r)
	if err != nil {
		t.Fatalf("readPLP: %v", err)
	}
	if !isNull {
		t.Fatal("expected null PLP value")
	}
	if got != nil {
		t.Fatalf("readPLP data = %v, want nil", got)
	}
}

func TestPLPRoundTripEmptyNotNull(t *testing.T) {
	w := &writer{}
	writePLP(w, []byte{})

	r := newReader(w.Bytes())
	got, isNull, err := readPLP(r)
	if err != nil {
		t.Fatalf("readPLP: %v", err)
	}
	if isNull {
		t.Fatal("expected non-null (empty) PLP value")
	}
	if len(got) != 0 {
		t.Fatalf("readPLP data = %v, want empty", got)
	}
}
