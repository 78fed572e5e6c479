package mssql

import (
	"net"
	"testing"

	"github.com/ha1tch/godriver-mssql/internal/log"
	"github.com/ha1tch/godriver-mssql/pkg/tds"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StatePrelogin:       "PRELOGIN",
		StateSSLNegotiation: "SSL_NEGOTIATION",
		StateLogin:          "LOGIN",
		StatePostLogin:      "POST_LOGIN",
		StateReady:          "READY",
		StateSending:        "SENDING",
		StateReceiving:      "RECEIVING",
		StateClosed:         "CLOSED",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
	if got := State(99).String(); got != "UNKNOWN" {
		t.Errorf("unknown state String() = %q, want UNKNOWN", got)
	}
}

func TestApplyEnvChangeDatabase(t *testing.T) {
	c := &Connection{logger: newTestLogger(), framer: tds.NewFramer(tds.DefaultPacketSize)}
	c.session.Store(&SessionState{Database: "master"})

	ec := tds.EnvChange{Type: tds.EnvDatabase, NewValue: ucs2(t, "reporting")}
	c.applyEnvChange(ec)

	if got := c.Session().Database; got != "reporting" {
		t.Fatalf("Database = %q, want %q", got, "reporting")
	}
}

func TestApplyEnvChangePacketSize(t *testing.T) {
	c := &Connection{logger: newTestLogger(), framer: tds.NewFramer(tds.DefaultPacketSize)}
	c.session.Store(&SessionState{PacketSize: tds.DefaultPacketSize})

	ec := tds.EnvChange{Type: tds.EnvPacketSize, NewValue: ucs2(t, "8192")}
	c.applyEnvChange(ec)

	if got := c.Session().PacketSize; got != 8192 {
		t.Fatalf("PacketSize = %d, want 8192", got)
	}
	if c.framer.PacketSize != 8192 {
		t.Fatalf("framer.PacketSize = %d, want 8192", c.framer.PacketSize)
	}
}

func TestApplyEnvChangeTransactionLifecycle(t *testing.T) {
	c := &Connection{logger: newTestLogger(), framer: tds.NewFramer(tds.DefaultPacketSize)}
	c.session.Store(&SessionState{})

	descriptor := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	c.applyEnvChange(tds.EnvChange{Type: tds.EnvBeginTran, NewValue: descriptor})
	if got := c.Session().TransactionDescriptor; got != leUint64(descriptor) {
		t.Fatalf("TransactionDescriptor = %d, want %d", got, leUint64(descriptor))
	}

	c.applyEnvChange(tds.EnvChange{Type: tds.EnvCommitTran})
	if got := c.Session().TransactionDescriptor; got != 0 {
		t.Fatalf("TransactionDescriptor after commit = %d, want 0", got)
	}
}

func TestApplyEnvChangeCollation(t *testing.T) {
	c := &Connection{logger: newTestLogger(), framer: tds.NewFramer(tds.DefaultPacketSize)}
	c.session.Store(&SessionState{})

	c.applyEnvChange(tds.EnvChange{Type: tds.EnvSQLCollation, NewValue: tds.DefaultCollationBytes[:]})
	want := tds.ParseCollation(tds.DefaultCollationBytes[:])
	if got := c.Session().Collation; got != want {
		t.Fatalf("Collation = %+v, want %+v", got, want)
	}
}

func TestLeUint64(t *testing.T) {
	b := []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if got := leUint64(b); got != 1 {
		t.Fatalf("leUint64 = %d, want 1", got)
	}
	if got := leUint64(nil); got != 0 {
		t.Fatalf("leUint64(nil) = %d, want 0", got)
	}
}

// fakeServerConn drives the server half of a PRELOGIN/LOGIN7 handshake
// over an in-memory net.Pipe, with no TLS negotiated, so Connect can be
// exercised without a real SQL Server.
func fakeServerConn(t *testing.T, conn net.Conn) {
	t.Helper()
	framer := tds.NewFramer(tds.DefaultPacketSize)

	typ, _, err := framer.ReadMessage(conn)
	if err != nil || typ != tds.PacketPrelogin {
		t.Errorf("fake server: read PRELOGIN: type=%v err=%v", typ, err)
		return
	}
	resp := (&tds.PreloginRequest{
		Version:    tds.ClientVersion{Major: 12},
		Encryption: tds.EncryptNotSup,
		ThreadID:   1,
	}).Encode()
	if err := framer.WriteMessage(conn, tds.PacketPrelogin, resp); err != nil {
		t.Errorf("fake server: write PRELOGIN response: %v", err)
		return
	}

	typ, _, err = framer.ReadMessage(conn)
	if err != nil || typ != tds.PacketLogin7 {
		t.Errorf("fake server: read LOGIN7: type=%v err=%v", typ, err)
		return
	}

	w := fakeWriter{}
	w.writeByte(byte(tds.TokenEnvChange))
	envBody := fakeWriter{}
	envBody.writeByte(tds.EnvDatabase)
	db := []byte{'t', 0, 'e', 0, 's', 0, 't', 0}
	envBody.writeByte(4)
	envBody.writeBytes(db)
	envBody.writeByte(0)
	w.writeUint16(uint16(len(envBody.buf)))
	w.writeBytes(envBody.buf)

	w.writeByte(byte(tds.TokenLoginAck))
	laBody := fakeWriter{}
	laBody.writeByte(byte(tds.LoginAckSQL2012))
	laBody.writeBytes([]byte{0x74, 0x00, 0x00, 0x04})
	name := []byte{'S', 0, 'Q', 0, 'L', 0}
	laBody.writeByte(3)
	laBody.writeBytes(name)
	laBody.writeBytes([]byte{0, 0, 0, 0})
	w.writeUint16(uint16(len(laBody.buf)))
	w.writeBytes(laBody.buf)

	w.writeByte(byte(tds.TokenDone))
	w.writeUint16(0)
	w.writeUint16(0)
	w.writeUint64(0)

	if err := framer.WriteMessage(conn, tds.PacketReply, w.buf); err != nil {
		t.Errorf("fake server: write login response: %v", err)
	}
}

// fakeWriter is a minimal byte-buffer builder local to the test file,
// independent of pkg/tds's unexported writer type.
type fakeWriter struct{ buf []byte }

func (w *fakeWriter) writeByte(b byte) { w.buf = append(w.buf, b) }
func (w *fakeWriter) writeBytes(b []byte) { w.buf = append(w.buf, b...) }
func (w *fakeWriter) writeUint16(v uint16) { w.buf = append(w.buf, byte(v), byte(v>>8)) }
func (w *fakeWriter) writeUint64(v uint64) {
	for i := 0; i < 8; i++ {
		w.buf = append(w.buf, byte(v>>(8*i)))
	}
}

func TestConnectHandshakeNoEncryption(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fakeServerConn(t, server)
	}()

	c := &Connection{
		netConn: client,
		framer:  tds.NewFramer(tds.DefaultPacketSize),
		logger:  newTestLogger(),
	}
	c.state.Store(int32(StatePrelogin))
	c.session.Store(&SessionState{})

	cfg := defaultConfig()
	cfg.encrypt = tds.EncryptOff
	if err := c.handshake(cfg, "sa", "pw"); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	<-done

	if got := c.Session().Database; got != "test" {
		t.Fatalf("Database = %q, want %q", got, "test")
	}
}

func ucs2(t *testing.T, s string) []byte {
	t.Helper()
	b := make([]byte, 0, len(s)*2)
	for _, r := range s {
		b = append(b, byte(r), 0)
	}
	return b
}

func newTestLogger() *log.Logger { return log.Default() }
