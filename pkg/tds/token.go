package tds

import (
	"github.com/ha1tch/godriver-mssql/internal/errors"
)

// TokenType identifies the leading byte of a token in the tabular
// result token stream.
type TokenType uint8

const (
	TokenReturnStatus  TokenType = 0x79
	TokenColMetadata   TokenType = 0x81
	TokenOrder         TokenType = 0xA9
	TokenError         TokenType = 0xAA
	TokenInfo          TokenType = 0xAB
	TokenReturnValue   TokenType = 0xAC
	TokenLoginAck      TokenType = 0xAD
	TokenFeatureExtAck TokenType = 0xAE
	TokenRow           TokenType = 0xD1
	TokenNBCRow        TokenType = 0xD2
	TokenEnvChange     TokenType = 0xE3
	TokenSSPI          TokenType = 0xED
	TokenFedAuthInfo   TokenType = 0xEE
	TokenDone          TokenType = 0xFD
	TokenDoneProc      TokenType = 0xFE
	TokenDoneInProc    TokenType = 0xFF
)

func (t TokenType) String() string {
	switch t {
	case TokenReturnStatus:
		return "RETURNSTATUS"
	case TokenColMetadata:
		return "COLMETADATA"
	case TokenOrder:
		return "ORDER"
	case TokenError:
		return "ERROR"
	case TokenInfo:
		return "INFO"
	case TokenReturnValue:
		return "RETURNVALUE"
	case TokenLoginAck:
		return "LOGINACK"
	case TokenFeatureExtAck:
		return "FEATUREEXTACK"
	case TokenRow:
		return "ROW"
	case TokenNBCRow:
		return "NBCROW"
	case TokenEnvChange:
		return "ENVCHANGE"
	case TokenSSPI:
		return "SSPI"
	case TokenFedAuthInfo:
		return "FEDAUTHINFO"
	case TokenDone:
		return "DONE"
	case TokenDoneProc:
		return "DONEPROC"
	case TokenDoneInProc:
		return "DONEINPROC"
	default:
		return "UNKNOWN"
	}
}

// Done status flags, shared by DONE, DONEPROC and DONEINPROC.
const (
	DoneFinal      uint16 = 0x0000
	DoneMore       uint16 = 0x0001
	DoneSrvError   uint16 = 0x0002
	DoneInxact     uint16 = 0x0004
	DoneCount      uint16 = 0x0010
	DoneAttn       uint16 = 0x0020
	DoneRPCInBatch uint16 = 0x0080
)

// ENVCHANGE sub-types.
const (
	EnvDatabase            uint8 = 1
	EnvLanguage            uint8 = 2
	EnvCharset             uint8 = 3
	EnvPacketSize          uint8 = 4
	EnvSortID              uint8 = 5
	EnvSortFlags           uint8 = 6
	EnvSQLCollation        uint8 = 7
	EnvBeginTran           uint8 = 8
	EnvCommitTran          uint8 = 9
	EnvRollbackTran        uint8 = 10
	EnvEnlistDTC           uint8 = 11
	EnvDefectTran          uint8 = 12
	EnvMirrorPartner       uint8 = 13
	EnvPromoteTran         uint8 = 15
	EnvTranMgrAddr         uint8 = 16
	EnvTranEnded           uint8 = 17
	EnvResetConnAck        uint8 = 18
	EnvStartedInstanceName uint8 = 19
	EnvRouting             uint8 = 20
)

// LoginAckInterface is the TDS interface byte in a LOGINACK token.
type LoginAckInterface uint8

const (
	LoginAckSQL70   LoginAckInterface = 0x70
	LoginAckSQL2000 LoginAckInterface = 0x71
	LoginAckSQL2005 LoginAckInterface = 0x72
	LoginAckSQL2008 LoginAckInterface = 0x73
	LoginAckSQL2012 LoginAckInterface = 0x74
)

// DoneStatus is the decoded DONE/DONEPROC/DONEINPROC token body.
type DoneStatus struct {
	Status   uint16
	CurCmd   uint16
	RowCount uint64
}

func (d DoneStatus) More() bool    { return d.Status&DoneMore != 0 }
func (d DoneStatus) HasError() bool { return d.Status&DoneSrvError != 0 }
func (d DoneStatus) HasCount() bool { return d.Status&DoneCount != 0 }
func (d DoneStatus) Attn() bool    { return d.Status&DoneAttn != 0 }

// EnvChange is a decoded ENVCHANGE token.
type EnvChange struct {
	Type     uint8
	NewValue []byte
	OldValue []byte
}

// FeatureAck is one (featureID, data) pair from a FEATUREEXTACK token.
type FeatureAck struct {
	FeatureID uint8
	Data      []byte
}

// LoginAck is the decoded LOGINACK token body.
type LoginAck struct {
	Interface   LoginAckInterface
	TDSVersion  uint32
	ProgName    string
	ProgVersion uint32
}

// ReturnValue is a decoded RETURNVALUE token: the value of an output
// parameter or the return value of a function, reported after a
// stored procedure call completes.
type ReturnValue struct {
	Ordinal  uint16
	Name     string
	Status   uint8
	UserType uint32
	Info     TypeInformation
	Value    interface{}
}

// Order is a decoded ORDER token: the 0-based column indexes the
// result set is sorted by.
type Order []uint16

// Token is one decoded element of the tabular result token stream.
// Exactly one of its fields is meaningful, selected by Type.
type Token struct {
	Type         TokenType
	Columns      []Column
	Row          Row
	Done         DoneStatus
	Error        ErrorInfo
	Info         ErrorInfo
	EnvChange    EnvChange
	FeatureAck   []FeatureAck
	LoginAck     LoginAck
	ReturnStatus int32
	ReturnValue  ReturnValue
	Order        Order
}

// decodeToken reads one token from r. columns is the most recently
// seen COLMETADATA, needed to decode ROW/NBCROW bodies; it may be nil
// before the first COLMETADATA of a result set.
func decodeToken(r *reader, columns []Column) (Token, error) {
	b, err := r.byte()
	if err != nil {
		return Token{}, err
	}
	typ := TokenType(b)
	switch typ {
	case TokenColMetadata:
		cols, err := decodeColMetadata(r)
		return Token{Type: typ, Columns: cols}, err
	case TokenRow:
		row, err := decodeRowToken(r, columns)
		return Token{Type: typ, Row: row}, err
	case TokenNBCRow:
		row, err := decodeNBCRow(r, columns)
		return Token{Type: typ, Row: row}, err
	case TokenDone, TokenDoneProc, TokenDoneInProc:
		d, err := decodeDoneBody(r)
		return Token{Type: typ, Done: d}, err
	case TokenError:
		e, err := decodeErrorInfo(r)
		return Token{Type: typ, Error: e}, err
	case TokenInfo:
		e, err := decodeErrorInfo(r)
		return Token{Type: typ, Info: e}, err
	case TokenEnvChange:
		ec, err := decodeEnvChange(r)
		return Token{Type: typ, EnvChange: ec}, err
	case TokenFeatureExtAck:
		acks, err := decodeFeatureExtAck(r)
		return Token{Type: typ, FeatureAck: acks}, err
	case TokenLoginAck:
		la, err := decodeLoginAck(r)
		return Token{Type: typ, LoginAck: la}, err
	case TokenReturnStatus:
		v, err := decodeReturnStatus(r)
		return Token{Type: typ, ReturnStatus: v}, err
	case TokenReturnValue:
		rv, err := decodeReturnValue(r)
		return Token{Type: typ, ReturnValue: rv}, err
	case TokenOrder:
		o, err := decodeOrder(r)
		return Token{Type: typ, Order: o}, err
	default:
		return Token{}, errors.New(errors.CodeUnexpectedToken, "unrecognized token type").
			Field("token", b).Build()
	}
}

// decodeColMetadata reads a COLMETADATA token body into its columns.
// NoMetadata (count 0xFFFF) yields a nil, zero-length slice.
func decodeColMetadata(r *reader) ([]Column, error) {
	count, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if count == 0xFFFF {
		return nil, nil
	}
	cols := make([]Column, count)
	for i := range cols {
		col, err := decodeColumnTypeInfo(r)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	return cols, nil
}

// decodeColumnTypeInfo reads one COLMETADATA column entry: UserType,
// Flags, TYPE_INFO, and the column name.
func decodeColumnTypeInfo(r *reader) (Column, error) {
	userType, err := r.uint32()
	if err != nil {
		return Column{}, err
	}
	flags, err := r.uint16()
	if err != nil {
		return Column{}, err
	}
	ti, err := decodeTypeInfo(r)
	if err != nil {
		return Column{}, err
	}
	name, err := r.bVarchar()
	if err != nil {
		return Column{}, err
	}
	return Column{Name: name, UserType: userType, Flags: flags, Info: ti}, nil
}

// decodeTypeInfo reads a TYPE_INFO: the type byte followed by
// whatever auxiliary length/precision/scale/collation fields that
// type carries on the wire.
func decodeTypeInfo(r *reader) (TypeInformation, error) {
	tb, err := r.byte()
	if err != nil {
		return TypeInformation{}, err
	}
	t := SQLType(tb)
	ti := TypeInformation{Type: t}

	switch LengthStrategyFor(t) {
	case StrategyFixed:
		// No additional bytes; FixedLengthFor(t) gives the width.
	case StrategyByteLen:
		n, err := r.byte()
		if err != nil {
			return ti, err
		}
		ti.Length = uint32(n)
		switch t {
		case TypeDecimalN, TypeNumericN:
			prec, err := r.byte()
			if err != nil {
				return ti, err
			}
			scale, err := r.byte()
			if err != nil {
				return ti, err
			}
			ti.Precision, ti.Scale = prec, scale
		case TypeTimeN, TypeDateTime2N, TypeDateTimeOffsetN:
			scale, err := r.byte()
			if err != nil {
				return ti, err
			}
			ti.Scale = scale
		case TypeChar, TypeVarChar, TypeBinary, TypeVarBinary:
			if t == TypeChar || t == TypeVarChar {
				cb, err := r.bytes(5)
				if err != nil {
					return ti, err
				}
				ti.Collation = ParseCollation(cb)
			}
		}
	case StrategyUShortLen:
		n, err := r.uint16()
		if err != nil {
			return ti, err
		}
		ti.Length = uint32(n)
		ti.IsMax = IsMaxType(t, ti.Length)
		if t == TypeBigVarChar || t == TypeBigChar || t == TypeNVarChar || t == TypeNChar {
			cb, err := r.bytes(5)
			if err != nil {
				return ti, err
			}
			ti.Collation = ParseCollation(cb)
		}
	case StrategyLongLen:
		n, err := r.uint32()
		if err != nil {
			return ti, err
		}
		ti.Length = n
		if t == TypeText || t == TypeNText {
			cb, err := r.bytes(5)
			if err != nil {
				return ti, err
			}
			ti.Collation = ParseCollation(cb)
		}
		if t == TypeText || t == TypeNText || t == TypeImage {
			// TEXTPTR/TIMESTAMP metadata a client never needs to act
			// on; the value itself still carries its own length
			// prefix, so nothing further is read here.
		}
	case StrategyPartLen:
		n, err := r.uint16()
		if err != nil {
			return ti, err
		}
		ti.Length = uint32(n)
		ti.IsMax = true
	}
	return ti, nil
}

// decodeRowToken reads a ROW token body: one value per column, in
// column order.
func decodeRowToken(r *reader, columns []Column) (Row, error) {
	row := make(Row, len(columns))
	for i, col := range columns {
		v, err := DefaultCodecs.Decode(r, col.Info)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// decodeDoneBody reads the shared DONE/DONEPROC/DONEINPROC body.
func decodeDoneBody(r *reader) (DoneStatus, error) {
	status, err := r.uint16()
	if err != nil {
		return DoneStatus{}, err
	}
	curCmd, err := r.uint16()
	if err != nil {
		return DoneStatus{}, err
	}
	rowCount, err := r.uint64()
	if err != nil {
		return DoneStatus{}, err
	}
	return DoneStatus{Status: status, CurCmd: curCmd, RowCount: rowCount}, nil
}

// decodeErrorInfo reads the shared ERROR/INFO token body.
func decodeErrorInfo(r *reader) (ErrorInfo, error) {
	if _, err := r.uint16(); err != nil { // token length, unused once the body is parsed
		return ErrorInfo{}, err
	}
	number, err := r.int32()
	if err != nil {
		return ErrorInfo{}, err
	}
	state, err := r.byte()
	if err != nil {
		return ErrorInfo{}, err
	}
	severity, err := r.byte()
	if err != nil {
		return ErrorInfo{}, err
	}
	message, err := r.usVarchar()
	if err != nil {
		return ErrorInfo{}, err
	}
	serverName, err := r.bVarchar()
	if err != nil {
		return ErrorInfo{}, err
	}
	procName, err := r.bVarchar()
	if err != nil {
		return ErrorInfo{}, err
	}
	lineNo, err := r.int32()
	if err != nil {
		return ErrorInfo{}, err
	}
	return ErrorInfo{
		Number: number, State: state, Severity: severity,
		Message: message, ServerName: serverName, ProcName: procName,
		LineNo: lineNo,
	}, nil
}

// decodeEnvChange reads an ENVCHANGE token body. Most sub-types carry
// a pair of BYTE-length-prefixed values: UCS-2 text whose length counts
// characters for most types, raw bytes whose length counts bytes for
// EnvSQLCollation and the transaction sub-types (begin/commit/rollback,
// DTC enlist/defect, manager address, transaction ended, reset ack).
// This reads both generically and leaves interpretation to the caller.
func decodeEnvChange(r *reader) (EnvChange, error) {
	tokenLen, err := r.uint16()
	if err != nil {
		return EnvChange{}, err
	}
	body, err := r.bytes(int(tokenLen))
	if err != nil {
		return EnvChange{}, err
	}
	br := newReader(body)
	envType, err := br.byte()
	if err != nil {
		return EnvChange{}, err
	}
	switch envType {
	case EnvRouting:
		// ROUTING carries a differently shaped payload: a USHORT
		// value length, then Protocol(1)/Port(2)/AltServerLen(2)/
		// AltServer(N) for the new value, and an (often empty) old
		// value of the same shape. Surface it as raw bytes; callers
		// that care about routing parse this themselves.
		newVal, _ := br.bytes(br.remaining())
		return EnvChange{Type: envType, NewValue: newVal}, nil
	default:
		newLen, err := br.byte()
		if err != nil {
			return EnvChange{}, err
		}
		unit := 2
		switch envType {
		case EnvSQLCollation, EnvBeginTran, EnvCommitTran, EnvRollbackTran,
			EnvEnlistDTC, EnvDefectTran, EnvTranMgrAddr, EnvTranEnded, EnvResetConnAck:
			unit = 1
		}
		newVal, err := br.bytes(int(newLen) * unit)
		if err != nil {
			return EnvChange{}, err
		}
		oldLen, err := br.byte()
		if err != nil {
			return EnvChange{}, err
		}
		oldVal, err := br.bytes(int(oldLen) * unit)
		if err != nil {
			return EnvChange{}, err
		}
		return EnvChange{Type: envType, NewValue: newVal, OldValue: oldVal}, nil
	}
}

// NewValueString decodes a non-collation ENVCHANGE's NewValue as a
// UCS-2 string.
func (e EnvChange) NewValueString() string { return ucs2ToString(e.NewValue) }

// OldValueString decodes a non-collation ENVCHANGE's OldValue as a
// UCS-2 string.
func (e EnvChange) OldValueString() string { return ucs2ToString(e.OldValue) }

// decodeFeatureExtAck reads a FEATUREEXTACK token: a sequence of
// (featureID, dataLen, data) entries terminated by 0xFF. This core
// does not interpret any individual feature; it preserves the raw
// pairs for the caller to inspect.
func decodeFeatureExtAck(r *reader) ([]FeatureAck, error) {
	var acks []FeatureAck
	for {
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		if id == FeatureExtTerminator {
			return acks, nil
		}
		n, err := r.uint32()
		if err != nil {
			return nil, err
		}
		data, err := r.bytes(int(n))
		if err != nil {
			return nil, err
		}
		acks = append(acks, FeatureAck{FeatureID: id, Data: data})
	}
}

// decodeLoginAck reads a LOGINACK token body.
func decodeLoginAck(r *reader) (LoginAck, error) {
	if _, err := r.uint16(); err != nil { // token length
		return LoginAck{}, err
	}
	iface, err := r.byte()
	if err != nil {
		return LoginAck{}, err
	}
	tdsVersion, err := r.uint32BE()
	if err != nil {
		return LoginAck{}, err
	}
	progName, err := r.bVarchar()
	if err != nil {
		return LoginAck{}, err
	}
	progVersion, err := r.uint32BE()
	if err != nil {
		return LoginAck{}, err
	}
	return LoginAck{
		Interface: LoginAckInterface(iface), TDSVersion: tdsVersion,
		ProgName: progName, ProgVersion: progVersion,
	}, nil
}

// decodeReturnStatus reads a RETURNSTATUS token body.
func decodeReturnStatus(r *reader) (int32, error) {
	return r.int32()
}

// decodeReturnValue reads a RETURNVALUE token body: an output
// parameter or function return value reported after a procedure call.
func decodeReturnValue(r *reader) (ReturnValue, error) {
	if _, err := r.uint16(); err != nil { // token length
		return ReturnValue{}, err
	}
	ordinal, err := r.uint16()
	if err != nil {
		return ReturnValue{}, err
	}
	name, err := r.bVarchar()
	if err != nil {
		return ReturnValue{}, err
	}
	status, err := r.byte()
	if err != nil {
		return ReturnValue{}, err
	}
	userType, err := r.uint32()
	if err != nil {
		return ReturnValue{}, err
	}
	if _, err := r.uint16(); err != nil { // column flags, unused for a return value
		return ReturnValue{}, err
	}
	ti, err := decodeTypeInfo(r)
	if err != nil {
		return ReturnValue{}, err
	}
	val, err := DefaultCodecs.Decode(r, ti)
	if err != nil {
		return ReturnValue{}, err
	}
	return ReturnValue{
		Ordinal: ordinal, Name: name, Status: status,
		UserType: userType, Info: ti, Value: val,
	}, nil
}

// decodeOrder reads an ORDER token body: a list of 0-based column
// indexes the result set is ordered by.
func decodeOrder(r *reader) (Order, error) {
	tokenLen, err := r.uint16()
	if err != nil {
		return nil, err
	}
	n := int(tokenLen) / 2
	order := make(Order, n)
	for i := range order {
		v, err := r.uint16()
		if err != nil {
			return nil, err
		}
		order[i] = v
	}
	return order, nil
}
