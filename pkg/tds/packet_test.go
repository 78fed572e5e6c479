package tds

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Type:     PacketLogin7,
		Status:   StatusEOM,
		Length:   512,
		SPID:     7,
		PacketID: 3,
	}
	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("wrote %d bytes, want %d", buf.Len(), HeaderSize)
	}
	got, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
	if !got.IsLastPacket() {
		t.Fatal("expected IsLastPacket true")
	}
	if got.PayloadLength() != 512-HeaderSize {
		t.Fatalf("PayloadLength = %d, want %d", got.PayloadLength(), 512-HeaderSize)
	}
}

func TestFramerWriteMessageSinglePacket(t *testing.T) {
	f := NewFramer(4096)
	var buf bytes.Buffer
	payload := []byte("SELECT 1")
	if err := f.WriteMessage(&buf, PacketSQLBatch, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	typ, got, err := f.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if typ != PacketSQLBatch {
		t.Fatalf("type = %v, want %v", typ, PacketSQLBatch)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestFramerWriteMessageChunksAcrossPackets(t *testing.T) {
	f := NewFramer(MinPacketSize)
	maxPayload := MinPacketSize - HeaderSize
	payload := bytes.Repeat([]byte{'x'}, maxPayload*2+17)

	var buf bytes.Buffer
	if err := f.WriteMessage(&buf, PacketSQLBatch, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	var packets int
	r := bytes.NewReader(buf.Bytes())
	var reassembled []byte
	for {
		h, err := ReadHeader(r)
		if err != nil {
			t.Fatalf("ReadHeader: %v", err)
		}
		packets++
		chunk := make([]byte, h.PayloadLength())
		if _, err := r.Read(chunk); err != nil {
			t.Fatalf("read chunk: %v", err)
		}
		reassembled = append(reassembled, chunk...)
		if h.IsLastPacket() {
			break
		}
	}
	if packets != 3 {
		t.Fatalf("packets = %d, want 3", packets)
	}
	if !bytes.Equal(reassembled, payload) {
		t.Fatal("reassembled payload does not match original")
	}
}

func TestFramerPacketIDSkipsZero(t *testing.T) {
	f := &Framer{PacketSize: MinPacketSize, nextID: 255}
	first := f.nextPacketID()
	second := f.nextPacketID()
	if first != 255 {
		t.Fatalf("first id = %d, want 255", first)
	}
	if second != 1 {
		t.Fatalf("second id = %d, want 1 (zero is skipped)", second)
	}
}

func TestFramerResetSequence(t *testing.T) {
	f := NewFramer(MinPacketSize)
	f.nextPacketID()
	f.nextPacketID()
	f.ResetSequence()
	if got := f.nextPacketID(); got != 1 {
		t.Fatalf("after reset, id = %d, want 1", got)
	}
}

func TestFramerClampsPacketSize(t *testing.T) {
	f := NewFramer(1)
	if f.PacketSize != MinPacketSize {
		t.Fatalf("PacketSize = %d, want clamped to %d", f.PacketSize, MinPacketSize)
	}
	f = NewFramer(1 << 20)
	if f.PacketSize != MaxPacketSize {
		t.Fatalf("PacketSize = %d, want clamped to %d", f.PacketSize, MaxPacketSize)
	}
}

func TestFramerWriteMessageEmptyPayload(t *testing.T) {
	f := NewFramer(DefaultPacketSize)
	var buf bytes.Buffer
	if err := f.WriteMessage(&buf, PacketAttention, nil); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	typ, payload, err := f.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if typ != PacketAttention {
		t.Fatalf("type = %v, want ATTENTION", typ)
	}
	if len(payload) != 0 {
		t.Fatalf("payload = %v, want empty", payload)
	}
}
