// Package tds implements the wire-level mechanics of the TDS (Tabular
// Data Stream) protocol used by Microsoft SQL Server: packet framing,
// the PRELOGIN/LOGIN7 handshake, the typed column codec layer and the
// tabular result token stream.
//
// This is a client-side implementation: it builds outbound requests
// (PRELOGIN, LOGIN7, SQL_BATCH, RPC, ATTENTION) and decodes inbound
// responses (PRELOGIN response, LOGINACK and the rest of the token
// stream). It speaks TDS 7.4 and does not negotiate an older dialect.
package tds

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ha1tch/godriver-mssql/internal/errors"
)

// PacketType identifies the type of TDS packet.
type PacketType uint8

const (
	PacketSQLBatch     PacketType = 1
	PacketRPCRequest   PacketType = 3
	PacketReply        PacketType = 4
	PacketAttention    PacketType = 6
	PacketBulkLoad     PacketType = 7
	PacketFedAuthToken PacketType = 8
	PacketTransMgrReq  PacketType = 14
	PacketNormal       PacketType = 15
	PacketLogin7       PacketType = 16
	PacketSSPIMessage  PacketType = 17
	PacketPrelogin     PacketType = 18
)

func (p PacketType) String() string {
	switch p {
	case PacketSQLBatch:
		return "SQL_BATCH"
	case PacketRPCRequest:
		return "RPC_REQUEST"
	case PacketReply:
		return "REPLY"
	case PacketAttention:
		return "ATTENTION"
	case PacketBulkLoad:
		return "BULK_LOAD"
	case PacketFedAuthToken:
		return "FEDAUTH_TOKEN"
	case PacketTransMgrReq:
		return "TRANS_MGR_REQ"
	case PacketNormal:
		return "NORMAL"
	case PacketLogin7:
		return "LOGIN7"
	case PacketSSPIMessage:
		return "SSPI_MESSAGE"
	case PacketPrelogin:
		return "PRELOGIN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

// PacketStatus indicates the status bits of a TDS packet.
type PacketStatus uint8

const (
	StatusNormal                  PacketStatus = 0x00
	StatusEOM                     PacketStatus = 0x01
	StatusIgnore                  PacketStatus = 0x02
	StatusResetConnection         PacketStatus = 0x08
	StatusResetConnectionSkipTran PacketStatus = 0x10
)

const (
	// HeaderSize is the size of a TDS packet header in bytes.
	HeaderSize = 8

	// DefaultPacketSize is proposed during PRELOGIN absent other info.
	DefaultPacketSize = 4096

	// MaxPacketSize is the largest packet size this core negotiates.
	MaxPacketSize = 32767

	// MinPacketSize is the smallest packet size the server may impose.
	MinPacketSize = 512
)

// Header is the 8-byte TDS packet header.
type Header struct {
	Type     PacketType
	Status   PacketStatus
	Length   uint16 // total packet length including header
	SPID     uint16 // server process id, 0 on outbound client packets
	PacketID uint8  // sequence number within the connection, wraps, never 0
	Window   uint8  // unused, always 0
}

// ReadHeader reads a TDS packet header.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return Header{
		Type:     PacketType(buf[0]),
		Status:   PacketStatus(buf[1]),
		Length:   binary.BigEndian.Uint16(buf[2:4]),
		SPID:     binary.BigEndian.Uint16(buf[4:6]),
		PacketID: buf[6],
		Window:   buf[7],
	}, nil
}

// Write writes the header.
func (h Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	buf[0] = byte(h.Type)
	buf[1] = byte(h.Status)
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint16(buf[4:6], h.SPID)
	buf[6] = h.PacketID
	buf[7] = h.Window
	_, err := w.Write(buf[:])
	return err
}

// PayloadLength returns the payload length, excluding the header.
func (h Header) PayloadLength() int {
	if h.Length <= HeaderSize {
		return 0
	}
	return int(h.Length) - HeaderSize
}

// IsLastPacket reports whether the End-Of-Message status bit is set.
func (h Header) IsLastPacket() bool {
	return h.Status&StatusEOM != 0
}

// Framer splits an outbound logical message into packets no larger
// than PacketSize and reassembles inbound packets back into a logical
// message. It tracks the packet-id sequence for one direction.
type Framer struct {
	PacketSize int
	nextID     uint8
}

// NewFramer creates a Framer. packetSize is clamped to
// [MinPacketSize, MaxPacketSize].
func NewFramer(packetSize int) *Framer {
	if packetSize < MinPacketSize {
		packetSize = MinPacketSize
	}
	if packetSize > MaxPacketSize {
		packetSize = MaxPacketSize
	}
	return &Framer{PacketSize: packetSize, nextID: 1}
}

// nextPacketID returns the next packet id, wrapping mod 256 and
// skipping zero (zero is not a valid TDS packet id).
func (f *Framer) nextPacketID() uint8 {
	id := f.nextID
	f.nextID++
	if f.nextID == 0 {
		f.nextID = 1
	}
	return id
}

// ResetSequence resets the packet-id counter to 1. Nothing in this
// module calls it.
func (f *Framer) ResetSequence() {
	f.nextID = 1
}

// WriteMessage writes payload as one or more packets of the given
// type, setting StatusEOM on the final packet.
func (f *Framer) WriteMessage(w io.Writer, typ PacketType, payload []byte) error {
	maxPayload := f.PacketSize - HeaderSize
	if maxPayload <= 0 {
		return errors.Internal("packet size too small for header")
	}
	if len(payload) == 0 {
		return f.writeChunk(w, typ, nil, true)
	}
	for offset := 0; offset < len(payload); offset += maxPayload {
		end := offset + maxPayload
		if end > len(payload) {
			end = len(payload)
		}
		last := end == len(payload)
		if err := f.writeChunk(w, typ, payload[offset:end], last); err != nil {
			return err
		}
	}
	return nil
}

func (f *Framer) writeChunk(w io.Writer, typ PacketType, chunk []byte, last bool) error {
	status := StatusNormal
	if last {
		status = StatusEOM
	}
	h := Header{
		Type:     typ,
		Status:   status,
		Length:   uint16(HeaderSize + len(chunk)),
		PacketID: f.nextPacketID(),
	}
	if err := h.Write(w); err != nil {
		return errors.Wrap(errors.CodeConnectionLost, err, "write packet header").Build()
	}
	if len(chunk) > 0 {
		if _, err := w.Write(chunk); err != nil {
			return errors.Wrap(errors.CodeConnectionLost, err, "write packet payload").Build()
		}
	}
	return nil
}

// ReadMessage reads packets from r until StatusEOM, returning the
// concatenated payload and the type of the first packet.
func (f *Framer) ReadMessage(r io.Reader) (PacketType, []byte, error) {
	var payload []byte
	var typ PacketType
	first := true
	for {
		h, err := ReadHeader(r)
		if err != nil {
			if err == io.EOF {
				return 0, nil, err
			}
			return 0, nil, errors.Wrap(errors.CodeConnectionLost, err, "read packet header").Build()
		}
		if first {
			typ = h.Type
			first = false
		}
		n := h.PayloadLength()
		if n > 0 {
			chunk := make([]byte, n)
			if _, err := io.ReadFull(r, chunk); err != nil {
				return 0, nil, errors.Wrap(errors.CodeConnectionLost, err, "read packet payload").Build()
			}
			payload = append(payload, chunk...)
		}
		if h.IsLastPacket() {
			break
		}
	}
	return typ, payload, nil
}
