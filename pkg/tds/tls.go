package tds

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/ha1tch/godriver-mssql/internal/errors"
)

// preloginTLSConn adapts a net.Conn so that crypto/tls can run a
// handshake whose records are carried inside TDS PRELOGIN packets, as
// MS-TDS requires for the handshake phase of negotiated encryption.
type preloginTLSConn struct {
	net.Conn
	framer  *Framer
	pending []byte
}

func newPreloginTLSConn(conn net.Conn) *preloginTLSConn {
	return &preloginTLSConn{Conn: conn, framer: NewFramer(DefaultPacketSize)}
}

func (c *preloginTLSConn) Read(b []byte) (int, error) {
	for len(c.pending) == 0 {
		typ, payload, err := c.framer.ReadMessage(c.Conn)
		if err != nil {
			return 0, err
		}
		if typ != PacketPrelogin {
			return 0, errors.New(errors.CodeProtocolError,
				"expected TLS handshake data wrapped in a PRELOGIN packet").Build()
		}
		c.pending = payload
	}
	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *preloginTLSConn) Write(b []byte) (int, error) {
	if err := c.framer.WriteMessage(c.Conn, PacketPrelogin, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// switchableConn lets crypto/tls be handed one net.Conn for the
// handshake (PRELOGIN-wrapped) and silently redirected to a second,
// raw net.Conn for everything after: MS-TDS encryption covers the
// whole session from the handshake onward, but only the handshake
// itself travels inside PRELOGIN packets.
type switchableConn struct {
	net.Conn
}

func (s *switchableConn) switchTo(c net.Conn) { s.Conn = c }

// ClientHandshakeOverPrelogin performs the client side of a TLS
// handshake whose records are exchanged inside PRELOGIN packets, then
// returns a *tls.Conn that talks directly to conn for all subsequent
// traffic.
func ClientHandshakeOverPrelogin(conn net.Conn, cfg *tls.Config, timeout time.Duration) (*tls.Conn, error) {
	sw := &switchableConn{Conn: newPreloginTLSConn(conn)}
	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
		defer conn.SetDeadline(time.Time{})
	}
	tlsConn := tls.Client(sw, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, errors.Wrap(errors.CodeTLSHandshakeFailed, err, "TLS handshake over PRELOGIN failed").Build()
	}
	sw.switchTo(conn)
	return tlsConn, nil
}
