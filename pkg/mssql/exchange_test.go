package mssql

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ha1tch/godriver-mssql/internal/log"
	"github.com/ha1tch/godriver-mssql/pkg/tds"
)

func newTestConnection(t *testing.T, conn net.Conn) *Connection {
	t.Helper()
	c := &Connection{
		netConn: conn,
		framer:  tds.NewFramer(tds.DefaultPacketSize),
		logger:  log.Default(),
	}
	c.state.Store(int32(StateReady))
	c.session.Store(&SessionState{})
	c.exchange = newExchange(c)
	return c
}

// writeDoneOnlyReply answers whatever the client just sent with a
// single DONE token carrying status, ending the logical message.
func writeDoneOnlyReply(t *testing.T, server net.Conn, status uint16) {
	t.Helper()
	framer := tds.NewFramer(tds.DefaultPacketSize)
	w := fakeWriter{}
	w.writeByte(byte(tds.TokenDone))
	w.writeUint16(status)
	w.writeUint16(0)
	w.writeUint64(0)
	if err := framer.WriteMessage(server, tds.PacketReply, w.buf); err != nil {
		t.Errorf("fake server: write DONE reply: %v", err)
	}
}

func drainStream(stream *ResultStream) []tds.Token {
	var toks []tds.Token
	for tok := range stream.Tokens() {
		toks = append(toks, tok)
	}
	return toks
}

func TestExchangeSingleInFlight(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := newTestConnection(t, client)
	framer := tds.NewFramer(tds.DefaultPacketSize)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		for i := 0; i < 2; i++ {
			if _, _, err := framer.ReadMessage(server); err != nil {
				t.Errorf("fake server: read request %d: %v", i, err)
				return
			}
			writeDoneOnlyReply(t, server, tds.DoneFinal)
		}
	}()

	ctx := context.Background()
	stream1, err := c.exchange.Do(ctx, tds.PacketSQLBatch, []byte("SELECT 1"))
	if err != nil {
		t.Fatalf("first Do: %v", err)
	}

	secondStarted := make(chan struct{})
	secondDone := make(chan struct{})
	var stream2 *ResultStream
	var err2 error
	go func() {
		close(secondStarted)
		stream2, err2 = c.exchange.Do(ctx, tds.PacketSQLBatch, []byte("SELECT 2"))
		close(secondDone)
	}()
	<-secondStarted

	select {
	case <-secondDone:
		t.Fatal("second Do returned before first exchange's slot was released")
	case <-time.After(30 * time.Millisecond):
	}

	drainStream(stream1)
	if err := stream1.Err(); err != nil {
		t.Fatalf("stream1.Err(): %v", err)
	}

	select {
	case <-secondDone:
	case <-time.After(time.Second):
		t.Fatal("second Do never unblocked after first exchange completed")
	}
	if err2 != nil {
		t.Fatalf("second Do: %v", err2)
	}
	drainStream(stream2)
	if err := stream2.Err(); err != nil {
		t.Fatalf("stream2.Err(): %v", err)
	}

	<-serverDone
}

func TestExchangeRejectsWhenNotReady(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := newTestConnection(t, client)
	c.state.Store(int32(StateSending))

	_, err := c.exchange.Do(context.Background(), tds.PacketSQLBatch, []byte("SELECT 1"))
	if err == nil {
		t.Fatal("expected error when connection is not READY")
	}

	c.state.Store(int32(StateReady))
	framer := tds.NewFramer(tds.DefaultPacketSize)
	go func() {
		framer.ReadMessage(server)
		writeDoneOnlyReply(t, server, tds.DoneFinal)
	}()
	stream, err := c.exchange.Do(context.Background(), tds.PacketSQLBatch, []byte("SELECT 1"))
	if err != nil {
		t.Fatalf("Do after state recovered: %v", err)
	}
	drainStream(stream)
}

func TestExchangeAttentionCancellation(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := newTestConnection(t, client)
	framer := tds.NewFramer(tds.DefaultPacketSize)

	attnSeen := make(chan struct{})
	go func() {
		// first message: the original request, never answered directly
		if _, _, err := framer.ReadMessage(server); err != nil {
			t.Errorf("fake server: read request: %v", err)
			return
		}
		// second message: the ATTENTION sent on cancellation
		typ, _, err := framer.ReadMessage(server)
		if err != nil {
			t.Errorf("fake server: read ATTENTION: %v", err)
			return
		}
		if typ != tds.PacketAttention {
			t.Errorf("fake server: got packet type %v, want ATTENTION", typ)
		}
		close(attnSeen)
		writeDoneOnlyReply(t, server, tds.DoneFinal|tds.DoneAttn)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.exchange.Do(ctx, tds.PacketSQLBatch, []byte("SELECT 1"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	cancel()
	<-attnSeen
	drainStream(stream)

	if err := stream.Err(); err != ctx.Err() {
		t.Fatalf("stream.Err() = %v, want %v", err, ctx.Err())
	}
}

func TestExchangeCloseAllDrainsSlot(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := newTestConnection(t, client)
	c.exchange.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.exchange.Do(ctx, tds.PacketSQLBatch, []byte("SELECT 1"))
	if err != context.DeadlineExceeded {
		t.Fatalf("Do after closeAll: err = %v, want context.DeadlineExceeded", err)
	}
}
