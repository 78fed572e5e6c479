package tds

import (
	"encoding/binary"
	"fmt"

	"github.com/ha1tch/godriver-mssql/internal/errors"
)

// TDS protocol versions.
const (
	VerTDS70     uint32 = 0x70000000
	VerTDS71     uint32 = 0x71000000
	VerTDS71Rev1 uint32 = 0x71000001
	VerTDS72     uint32 = 0x72090002
	VerTDS73A    uint32 = 0x730A0003
	VerTDS73B    uint32 = 0x730B0003
	VerTDS74     uint32 = 0x74000004
)

// VersionString returns a human-readable version string.
func VersionString(ver uint32) string {
	switch ver {
	case VerTDS70:
		return "7.0"
	case VerTDS71:
		return "7.1"
	case VerTDS71Rev1:
		return "7.1 Rev 1"
	case VerTDS72:
		return "7.2"
	case VerTDS73A:
		return "7.3A"
	case VerTDS73B:
		return "7.3B"
	case VerTDS74:
		return "7.4"
	default:
		return fmt.Sprintf("unknown (0x%08X)", ver)
	}
}

// Prelogin option tokens.
const (
	PreloginVersion    uint8 = 0x00
	PreloginEncryption uint8 = 0x01
	PreloginInstOpt    uint8 = 0x02
	PreloginThreadID   uint8 = 0x03
	PreloginMARS       uint8 = 0x04
	PreloginTraceID    uint8 = 0x05
	PreloginFedAuth    uint8 = 0x06
	PreloginNonceOpt   uint8 = 0x07
	PreloginTerminator uint8 = 0xFF
)

// Encryption options for PRELOGIN.
const (
	EncryptOff    uint8 = 0x00 // off, will not encrypt
	EncryptOn     uint8 = 0x01 // on, will encrypt
	EncryptNotSup uint8 = 0x02 // client/server does not support encryption
	EncryptReq    uint8 = 0x03 // encryption required
)

// PreloginOption is one (token, offset, length) header entry.
type PreloginOption struct {
	Token  uint8
	Offset uint16
	Length uint16
}

// ClientVersion identifies this driver's build for the VERSION option.
type ClientVersion struct {
	Major    uint8
	Minor    uint8
	Build    uint16
	SubBuild uint16
}

// Bytes returns the 6-byte wire representation.
func (v ClientVersion) Bytes() []byte {
	buf := make([]byte, 6)
	buf[0] = v.Major
	buf[1] = v.Minor
	binary.BigEndian.PutUint16(buf[2:4], v.Build)
	binary.BigEndian.PutUint16(buf[4:6], v.SubBuild)
	return buf
}

// PreloginRequest is the client's outbound PRELOGIN payload.
type PreloginRequest struct {
	Version    ClientVersion
	Encryption uint8
	Instance   string // instance name, "" reports as a single zero byte
	ThreadID   uint32
	MARS       uint8 // 0 = off, 1 = on
}

// Encode serializes the request into the PRELOGIN payload format: a
// run of 5-byte option headers terminated by 0xFF, followed by the
// concatenated option values at the offsets named in those headers.
func (r *PreloginRequest) Encode() []byte {
	versionData := r.Version.Bytes()
	instanceData := append([]byte(r.Instance), 0) // null terminated

	type opt struct {
		token  uint8
		length int
	}
	opts := []opt{
		{PreloginVersion, len(versionData)},
		{PreloginEncryption, 1},
		{PreloginInstOpt, len(instanceData)},
		{PreloginThreadID, 4},
		{PreloginMARS, 1},
	}

	headerSize := len(opts)*5 + 1
	offset := uint16(headerSize)
	offsets := make([]uint16, len(opts))
	for i, o := range opts {
		offsets[i] = offset
		offset += uint16(o.length)
	}

	buf := make([]byte, int(offset))
	pos := 0
	for i, o := range opts {
		buf[pos] = o.token
		binary.BigEndian.PutUint16(buf[pos+1:pos+3], offsets[i])
		binary.BigEndian.PutUint16(buf[pos+3:pos+5], uint16(o.length))
		pos += 5
	}
	buf[pos] = PreloginTerminator
	pos++

	pos += copy(buf[pos:], versionData)
	buf[pos] = r.Encryption
	pos++
	pos += copy(buf[pos:], instanceData)
	binary.BigEndian.PutUint32(buf[pos:pos+4], r.ThreadID)
	pos += 4
	buf[pos] = r.MARS

	return buf
}

// PreloginResponse is the server's PRELOGIN reply, parsed client-side.
type PreloginResponse struct {
	Version    uint32 // derived from the 4 version bytes, big-endian
	SubBuild   uint16
	Encryption uint8
	Instance   string
	ThreadID   uint32
	MARS       uint8
	FedAuth    uint8
	Nonce      []byte // present only when server advertises a nonce
}

// ParsePreloginResponse parses a server PRELOGIN response payload.
func ParsePreloginResponse(data []byte) (*PreloginResponse, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.CodeMalformedPacket, "empty PRELOGIN response").Build()
	}

	options := make(map[uint8]PreloginOption)
	offset := 0
	for {
		if offset >= len(data) {
			return nil, errors.New(errors.CodeMalformedPacket, "PRELOGIN response truncated reading option headers").Build()
		}
		token := data[offset]
		if token == PreloginTerminator {
			break
		}
		if offset+5 > len(data) {
			return nil, errors.New(errors.CodeMalformedPacket, "PRELOGIN option header truncated").Build()
		}
		options[token] = PreloginOption{
			Token:  token,
			Offset: binary.BigEndian.Uint16(data[offset+1 : offset+3]),
			Length: binary.BigEndian.Uint16(data[offset+3 : offset+5]),
		}
		offset += 5
	}

	r := &PreloginResponse{}
	for token, opt := range options {
		start, end := int(opt.Offset), int(opt.Offset)+int(opt.Length)
		if end > len(data) || start > end {
			return nil, errors.Newf(errors.CodeMalformedPacket, "PRELOGIN option %d out of bounds", token).Build()
		}
		value := data[start:end]

		switch token {
		case PreloginVersion:
			if len(value) >= 6 {
				r.Version = binary.BigEndian.Uint32(value[0:4])
				r.SubBuild = binary.BigEndian.Uint16(value[4:6])
			}
		case PreloginEncryption:
			if len(value) >= 1 {
				r.Encryption = value[0]
			}
		case PreloginInstOpt:
			for i, b := range value {
				if b == 0 {
					r.Instance = string(value[:i])
					break
				}
			}
		case PreloginThreadID:
			if len(value) >= 4 {
				r.ThreadID = binary.BigEndian.Uint32(value)
			}
		case PreloginMARS:
			if len(value) >= 1 {
				r.MARS = value[0]
			}
		case PreloginFedAuth:
			if len(value) >= 1 {
				r.FedAuth = value[0]
			}
		case PreloginNonceOpt:
			if len(value) >= 32 {
				r.Nonce = append([]byte(nil), value[:32]...)
			}
		}
	}

	return r, nil
}

// NegotiateEncryption decides, given the client's requested encryption
// mode and the server's advertised mode, whether a TLS handshake must
// be interleaved before LOGIN7. It mirrors the client-side half of the
// rules a server-side implementation applies symmetrically: encryption
// happens whenever either side asks for it (On or Req), unless the
// server does not support it; when both sides are Off, it does not.
func NegotiateEncryption(clientWants, serverOffers uint8) (encrypt bool, err error) {
	if serverOffers == EncryptNotSup {
		if clientWants == EncryptReq {
			return false, errors.New(errors.CodeTLSHandshakeFailed, "server does not support encryption but it was required").Build()
		}
		return false, nil
	}
	if clientWants == EncryptReq || serverOffers == EncryptReq {
		return true, nil
	}
	if clientWants == EncryptOn || serverOffers == EncryptOn {
		return true, nil
	}
	return false, nil
}
