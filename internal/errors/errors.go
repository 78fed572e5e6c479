// Package errors provides structured, categorized errors for the driver
// core: a Code-tagged, Severity-tagged error type with field attachment,
// cause chaining compatible with errors.Is/As, and a fluent Builder.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Code identifies the error category and specific condition.
//
// Ranges follow the error kinds named in the driver's error-handling
// design: 2xxx transport, 3xxx protocol, 4xxx server-reported, 5xxx
// codec/decode, 6xxx usage (post-connection illegal state), 9xxx
// internal.
type Code int

const (
	// 2xxx: transport — ConnectionLost. Fatal, closes the connection.
	CodeConnectionLost     Code = 2000
	CodeConnectionRefused  Code = 2001
	CodeConnectionTimeout  Code = 2002
	CodeConnectionReset    Code = 2003
	CodeTLSHandshakeFailed Code = 2010

	// 3xxx: protocol — ProtocolError. Fatal, closes the connection.
	CodeProtocolError      Code = 3000
	CodeMalformedPacket    Code = 3001
	CodeUnexpectedToken    Code = 3002
	CodeOutOfOrderPacket   Code = 3003
	CodeUnsupportedVersion Code = 3004

	// 4xxx: server-reported — ServerError. Non-fatal, attached to the
	// exchange result.
	CodeServerError   Code = 4000
	CodeServerInfo    Code = 4001
	CodeLoginRejected Code = 4002

	// 5xxx: codec/decode domain — CodecError. Non-fatal.
	CodeCodecError          Code = 5000
	CodeUnsupportedType     Code = 5001
	CodeTruncatedValue      Code = 5002
	CodeInvalidCollation    Code = 5003
	CodeValueOutOfRange     Code = 5004

	// 6xxx: usage — IllegalState. Non-fatal, caller error.
	CodeIllegalState       Code = 6000
	CodeExchangeInFlight   Code = 6001
	CodeConnectionClosed   Code = 6002
	CodeNotConnected       Code = 6003

	// 9xxx: internal.
	CodeInternal Code = 9000
)

func (c Code) String() string {
	switch c {
	case CodeConnectionLost:
		return "CONNECTION_LOST"
	case CodeConnectionRefused:
		return "CONNECTION_REFUSED"
	case CodeConnectionTimeout:
		return "CONNECTION_TIMEOUT"
	case CodeConnectionReset:
		return "CONNECTION_RESET"
	case CodeTLSHandshakeFailed:
		return "TLS_HANDSHAKE_FAILED"
	case CodeProtocolError:
		return "PROTOCOL_ERROR"
	case CodeMalformedPacket:
		return "MALFORMED_PACKET"
	case CodeUnexpectedToken:
		return "UNEXPECTED_TOKEN"
	case CodeOutOfOrderPacket:
		return "OUT_OF_ORDER_PACKET"
	case CodeUnsupportedVersion:
		return "UNSUPPORTED_VERSION"
	case CodeServerError:
		return "SERVER_ERROR"
	case CodeServerInfo:
		return "SERVER_INFO"
	case CodeLoginRejected:
		return "LOGIN_REJECTED"
	case CodeCodecError:
		return "CODEC_ERROR"
	case CodeUnsupportedType:
		return "UNSUPPORTED_TYPE"
	case CodeTruncatedValue:
		return "TRUNCATED_VALUE"
	case CodeInvalidCollation:
		return "INVALID_COLLATION"
	case CodeValueOutOfRange:
		return "VALUE_OUT_OF_RANGE"
	case CodeIllegalState:
		return "ILLEGAL_STATE"
	case CodeExchangeInFlight:
		return "EXCHANGE_IN_FLIGHT"
	case CodeConnectionClosed:
		return "CONNECTION_CLOSED"
	case CodeNotConnected:
		return "NOT_CONNECTED"
	case CodeInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("CODE_%d", int(c))
	}
}

// Category returns the broad error kind for this code, matching the
// driver's error-handling taxonomy.
func (c Code) Category() string {
	switch {
	case c >= 2000 && c < 3000:
		return "transport"
	case c >= 3000 && c < 4000:
		return "protocol"
	case c >= 4000 && c < 5000:
		return "server"
	case c >= 5000 && c < 6000:
		return "codec"
	case c >= 6000 && c < 7000:
		return "usage"
	case c >= 9000:
		return "internal"
	default:
		return "unknown"
	}
}

// Fatal reports whether an error of this code terminates the connection
// (transport and protocol kinds are fatal; server, codec, usage are not).
func (c Code) Fatal() bool {
	cat := c.Category()
	return cat == "transport" || cat == "protocol"
}

// Severity indicates the importance of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is a structured, categorized error.
type Error struct {
	Code     Code
	Message  string
	Severity Severity
	Fields   map[string]interface{}
	Cause    error
	Stack    string
	Time     time.Time
	OpName   string
}

func (e *Error) Error() string {
	var buf strings.Builder
	if e.OpName != "" {
		buf.WriteString(e.OpName)
		buf.WriteString(": ")
	}
	buf.WriteString(e.Message)
	if e.Cause != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Cause.Error())
	}
	return buf.String()
}

// Unwrap allows errors.Is/As to traverse into the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Format implements fmt.Formatter for verbose (%+v) output including
// fields and stack trace.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "[%s] %s", e.Code, e.Error())
			if len(e.Fields) > 0 {
				fmt.Fprintf(f, " fields=%v", e.Fields)
			}
			if e.Stack != "" {
				fmt.Fprintf(f, "\n%s", e.Stack)
			}
			return
		}
		fmt.Fprint(f, e.Error())
	case 's':
		fmt.Fprint(f, e.Error())
	}
}

// WithField attaches a single field to the error and returns it.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithFields attaches multiple fields to the error and returns it.
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// WithOp sets the operation name on the error and returns it.
func (e *Error) WithOp(op string) *Error {
	e.OpName = op
	return e
}

func captureStack(skip int) string {
	const depth = 16
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	var buf strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&buf, "  %s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return buf.String()
}

// Builder builds an Error fluently.
type Builder struct {
	err *Error
}

// New starts building an Error with the given code and message.
func New(code Code, message string) *Builder {
	return &Builder{err: &Error{
		Code:     code,
		Message:  message,
		Severity: SeverityError,
		Time:     time.Now(),
	}}
}

// Newf is New with Printf-style formatting.
func Newf(code Code, format string, args ...interface{}) *Builder {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap starts building an Error that wraps an existing cause.
func Wrap(code Code, cause error, message string) *Builder {
	return &Builder{err: &Error{
		Code:     code,
		Message:  message,
		Severity: SeverityError,
		Cause:    cause,
		Time:     time.Now(),
	}}
}

// Wrapf is Wrap with Printf-style formatting.
func Wrapf(code Code, cause error, format string, args ...interface{}) *Builder {
	return Wrap(code, cause, fmt.Sprintf(format, args...))
}

func (b *Builder) Severity(s Severity) *Builder {
	b.err.Severity = s
	return b
}

func (b *Builder) Field(key string, value interface{}) *Builder {
	b.err.WithField(key, value)
	return b
}

func (b *Builder) Fields(fields map[string]interface{}) *Builder {
	b.err.WithFields(fields)
	return b
}

func (b *Builder) Op(op string) *Builder {
	b.err.OpName = op
	return b
}

func (b *Builder) CaptureStack() *Builder {
	b.err.Stack = captureStack(1)
	return b
}

// Build returns the built Error.
func (b *Builder) Build() *Error {
	return b.err
}

// Err returns the built Error as an error.
func (b *Builder) Err() error {
	return b.err
}

// Constructors for common cases.

func ConnectionLost(cause error, message string) *Error {
	return Wrap(CodeConnectionLost, cause, message).Severity(SeverityCritical).Build()
}

func ProtocolViolation(message string) *Error {
	return New(CodeProtocolError, message).Severity(SeverityCritical).Build()
}

func ServerReported(number int32, class uint8, state uint8, message string) *Error {
	return New(CodeServerError, message).
		Severity(SeverityError).
		Field("number", number).
		Field("class", class).
		Field("state", state).
		Build()
}

func CodecFailure(message string) *Error {
	return New(CodeCodecError, message).Severity(SeverityWarning).Build()
}

func IllegalState(message string) *Error {
	return New(CodeIllegalState, message).Severity(SeverityWarning).Build()
}

func Internal(message string) *Error {
	return New(CodeInternal, message).Severity(SeverityCritical).CaptureStack().Build()
}

// Extraction helpers.

func GetCode(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

func GetSeverity(err error) (Severity, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Severity, true
	}
	return 0, false
}

func GetFields(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

func IsCode(err error, code Code) bool {
	c, ok := GetCode(err)
	return ok && c == code
}

func IsCategory(err error, category string) bool {
	c, ok := GetCode(err)
	return ok && c.Category() == category
}

func IsFatal(err error) bool {
	c, ok := GetCode(err)
	return ok && c.Fatal()
}

// Is and As are re-exported so callers don't need two imports.
func Is(err, target error) bool { return errors.Is(err, target) }
func As(err error, target interface{}) bool { return errors.As(err, target) }
func Join(errs ...error) error  { return errors.Join(errs...) }
