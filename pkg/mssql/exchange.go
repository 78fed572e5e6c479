package mssql

import (
	"context"

	"github.com/ha1tch/godriver-mssql/internal/errors"
	"github.com/ha1tch/godriver-mssql/pkg/tds"
)

// ResultStream is the decoded response to one exchange: a sequence of
// tokens delivered as they arrive off the wire. Consumers must drain
// it to completion (or cancel ctx) before issuing another exchange —
// the connection allows exactly one request in flight.
type ResultStream struct {
	tokens chan tds.Token
	errs   chan error
	done   chan struct{}
}

// Tokens returns the channel of decoded tokens. It is closed when the
// server's terminating DONE token has been delivered or an error
// occurs.
func (s *ResultStream) Tokens() <-chan tds.Token { return s.tokens }

// Err blocks until the stream is fully drained and returns the first
// error encountered, or nil.
func (s *ResultStream) Err() error {
	<-s.done
	select {
	case err := <-s.errs:
		return err
	default:
		return nil
	}
}

// exchange serializes access to the connection's single logical
// request/response slot: acquiring the slot channel is what "exactly
// one outstanding exchange" means in this implementation.
type exchange struct {
	conn *Connection
	slot chan struct{} // buffered 1; holding the token means the slot is free
}

func newExchange(c *Connection) *exchange {
	e := &exchange{conn: c, slot: make(chan struct{}, 1)}
	e.slot <- struct{}{}
	return e
}

// Do sends payload as a packet of the given type and returns a stream
// of the decoded response tokens. It blocks until any previously
// in-flight exchange has completed; ctx cancellation before the slot
// is acquired returns ctx.Err() without sending anything. Once sent,
// ctx cancellation triggers an ATTENTION and the stream ends with
// ctx.Err() instead of a clean DONE.
func (e *exchange) Do(ctx context.Context, typ tds.PacketType, payload []byte) (*ResultStream, error) {
	select {
	case <-e.slot:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.conn.State() != StateReady {
		e.slot <- struct{}{}
		return nil, errors.New(errors.CodeIllegalState, "connection is not ready for a new exchange").
			Field("state", e.conn.State().String()).Build()
	}

	e.conn.setState(StateSending)
	if err := e.conn.framer.WriteMessage(e.conn.netConn, typ, payload); err != nil {
		e.conn.setState(StateReady)
		e.slot <- struct{}{}
		return nil, err
	}
	e.conn.setState(StateReceiving)

	stream := &ResultStream{
		tokens: make(chan tds.Token, 16),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	cancelSeen := make(chan struct{})
	watchDone := make(chan struct{})
	go e.watchCancel(ctx, cancelSeen, watchDone)
	go e.receive(ctx, stream, cancelSeen, watchDone)

	return stream, nil
}

// watchCancel sends an ATTENTION as soon as ctx is canceled, and exits
// without sending anything once receive signals the exchange finished
// on its own first.
func (e *exchange) watchCancel(ctx context.Context, cancelSeen, done chan struct{}) {
	select {
	case <-ctx.Done():
		close(cancelSeen)
		e.conn.framer.WriteMessage(e.conn.netConn, tds.PacketAttention, nil)
		e.conn.logger.Exchange().Info("ATTENTION sent on context cancellation")
	case <-done:
	}
}

// receive reads tokens off the wire until the terminating DONE, then
// releases the exchange slot. When an ATTENTION was sent, the server
// acknowledges it with a DONE carrying the DoneAttn bit; receive stops
// delivering tokens, discards everything up to that acknowledgement,
// and the stream then ends with ctx.Err() instead of nil.
func (e *exchange) receive(ctx context.Context, stream *ResultStream, cancelSeen, watchDone chan struct{}) {
	defer close(watchDone)
	defer close(stream.tokens)
	defer close(stream.done)
	defer func() {
		e.conn.setState(StateReady)
		e.slot <- struct{}{}
	}()

	var tr *tds.TokenReader
	var canceled bool
	for {
		if tr == nil {
			typ, data, err := e.conn.framer.ReadMessage(e.conn.netConn)
			if err != nil {
				stream.errs <- err
				return
			}
			if typ != tds.PacketReply {
				stream.errs <- errors.New(errors.CodeProtocolError, "expected tabular result packet").Build()
				return
			}
			tr = tds.NewTokenReader(data)
		}

		tok, err := tr.Next()
		if err == tds.ErrNoMoreTokens {
			tr = nil
			continue
		}
		if err != nil {
			stream.errs <- err
			return
		}

		if !canceled {
			select {
			case stream.tokens <- tok:
			case <-cancelSeen:
				// The caller canceled ctx and may have already stopped
				// draining Tokens(); don't wait on a receiver that will
				// never come.
			}
			select {
			case <-cancelSeen:
				canceled = true
			default:
			}
		}
		if canceled {
			// Once an ATTENTION has gone out, tokens are discarded until
			// the server acknowledges it with a DONE carrying DoneAttn.
			if tok.Type == tds.TokenDone && tok.Done.Attn() {
				stream.errs <- ctx.Err()
				return
			}
			continue
		}

		// Only a DONE with MORE clear ends the exchange. DONEPROC and
		// DONEINPROC mark the end of one statement within a batch or
		// stored procedure call, not the end of the response; more
		// tokens, including the final DONE, still follow.
		if tok.Type == tds.TokenDone && !tok.Done.More() {
			return
		}
	}
}

// closeAll drains the exchange slot so no further Do call can
// succeed once the connection is closed.
func (e *exchange) closeAll() {
	select {
	case <-e.slot:
	default:
	}
}

// Column is re-exported for callers that want to shape a result set
// without importing pkg/tds directly.
type Column = tds.Column
