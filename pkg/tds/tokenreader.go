package tds

import "github.com/ha1tch/godriver-mssql/internal/errors"

// ErrNoMoreTokens is returned by TokenReader.Next once the underlying
// buffer is exhausted; it is not a protocol error.
var ErrNoMoreTokens = errors.New(errors.CodeInternal, "no more tokens").Build()

// TokenReader decodes a sequence of tokens from one tabular result
// message, remembering the most recent COLMETADATA so that ROW and
// NBCROW tokens further along in the same stream decode correctly.
type TokenReader struct {
	r       *reader
	columns []Column
}

// NewTokenReader wraps a fully reassembled tabular result payload
// (the concatenated body of a PacketReply message) for token-by-token
// decoding.
func NewTokenReader(data []byte) *TokenReader {
	return &TokenReader{r: newReader(data)}
}

// Columns returns the column metadata from the most recently decoded
// COLMETADATA token, or nil if none has been seen yet.
func (t *TokenReader) Columns() []Column { return t.columns }

// Next decodes and returns the next token, or ErrNoMoreTokens once the
// stream is exhausted.
func (t *TokenReader) Next() (Token, error) {
	if t.r.remaining() == 0 {
		return Token{}, ErrNoMoreTokens
	}
	tok, err := decodeToken(t.r, t.columns)
	if err != nil {
		return Token{}, err
	}
	if tok.Type == TokenColMetadata {
		t.columns = tok.Columns
	}
	return tok, nil
}
