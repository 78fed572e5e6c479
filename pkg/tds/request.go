package tds

// AllHeaders is the ALL_HEADERS block that prefixes SQL_BATCH and RPC
// request payloads on TDS 7.2+: a transaction descriptor and a count
// of requests still outstanding on the connection.
type AllHeaders struct {
	TransactionDescriptor uint64
	OutstandingRequests   uint32
}

const (
	allHeadersTypeTransDescriptor uint16 = 2
	allHeadersEntryLen                   = 4 + 2 + 8 + 4 // length + type + descriptor + count
	allHeadersTotalLen                   = 4 + allHeadersEntryLen
)

// encode writes the ALL_HEADERS block.
func (h AllHeaders) encode(w *writer) {
	w.writeUint32(allHeadersTotalLen)
	w.writeUint32(allHeadersEntryLen)
	w.writeUint16(allHeadersTypeTransDescriptor)
	w.writeUint64(h.TransactionDescriptor)
	w.writeUint32(h.OutstandingRequests)
}

// EncodeSQLBatch builds a SQL_BATCH request payload: ALL_HEADERS
// followed by the UCS-2 query text.
func EncodeSQLBatch(headers AllHeaders, query string) []byte {
	w := &writer{}
	headers.encode(w)
	w.writeBytes(stringToUCS2(query))
	return w.Bytes()
}

// RPC parameter status flags.
const (
	ParamByRefValue   uint8 = 0x01
	ParamDefaultValue uint8 = 0x02
	ParamEncrypted    uint8 = 0x08
)

// Param is one RPC parameter: its name (without the leading '@'),
// type, and value. A nil Value encodes as SQL NULL.
type Param struct {
	Name     string
	Info     TypeInformation
	Value    interface{}
	Output   bool
}

// RPCCall describes an RPC_REQUEST: a system procedure (by ID) or a
// named procedure, with its parameters in call order.
type RPCCall struct {
	ProcID   uint16 // 0 means ProcName identifies the procedure
	ProcName string
	Options  uint16
	Params   []Param
}

// EncodeRPCRequest builds an RPC_REQUEST payload: ALL_HEADERS, the
// procedure identifier, option flags, and each parameter's
// name/status/TYPE_INFO/value.
func EncodeRPCRequest(headers AllHeaders, call RPCCall) ([]byte, error) {
	w := &writer{}
	headers.encode(w)

	if call.ProcID != 0 {
		w.writeUint16(0xFFFF)
		w.writeUint16(call.ProcID)
	} else {
		w.writeUSVarchar(call.ProcName)
	}
	w.writeUint16(call.Options)

	for _, p := range call.Params {
		name := p.Name
		if name != "" && name[0] != '@' {
			name = "@" + name
		}
		w.writeBVarchar(name)

		status := uint8(0)
		if p.Output {
			status |= ParamByRefValue
		}
		w.writeByte(status)

		info := p.Info
		if p.Value == nil && LengthStrategyFor(info.Type) == StrategyFixed {
			// A fixed-length type has no NULL form; send its nullable counterpart.
			info.Length = uint32(FixedLengthFor(info.Type))
			switch info.Type {
			case TypeInt1, TypeInt2, TypeInt4, TypeInt8:
				info.Type = TypeIntN
			case TypeBit:
				info.Type = TypeBitN
			case TypeFloat4, TypeFloat8:
				info.Type = TypeFloatN
			case TypeMoney, TypeMoney4:
				info.Type = TypeMoneyN
			case TypeDateTime, TypeDateTime4:
				info.Type = TypeDateTimeN
			}
		}
		if err := encodeTypeInfo(w, info); err != nil {
			return nil, err
		}
		if err := DefaultCodecs.Encode(w, info, p.Value); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// encodeTypeInfo writes a TYPE_INFO matching the layout decodeTypeInfo
// reads: the type byte plus whatever length/precision/scale/collation
// fields that type carries.
func encodeTypeInfo(w *writer, ti TypeInformation) error {
	w.writeByte(byte(ti.Type))

	switch LengthStrategyFor(ti.Type) {
	case StrategyFixed:
		// No additional bytes.
	case StrategyByteLen:
		w.writeByte(byte(ti.Length))
		switch ti.Type {
		case TypeDecimalN, TypeNumericN:
			w.writeByte(ti.Precision)
			w.writeByte(ti.Scale)
		case TypeTimeN, TypeDateTime2N, TypeDateTimeOffsetN:
			w.writeByte(ti.Scale)
		case TypeChar, TypeVarChar:
			w.writeBytes(collationOrDefault(ti.Collation))
		}
	case StrategyUShortLen:
		length := ti.Length
		if ti.IsMax {
			length = 0xFFFF
		}
		w.writeUint16(uint16(length))
		switch ti.Type {
		case TypeBigVarChar, TypeBigChar, TypeNVarChar, TypeNChar:
			w.writeBytes(collationOrDefault(ti.Collation))
		}
	case StrategyLongLen:
		w.writeUint32(ti.Length)
		switch ti.Type {
		case TypeText, TypeNText:
			w.writeBytes(collationOrDefault(ti.Collation))
		}
	case StrategyPartLen:
		w.writeUint16(0xFFFF)
	}
	return nil
}

func collationOrDefault(c Collation) []byte {
	b := c.Bytes()
	if c == (Collation{}) {
		return DefaultCollationBytes[:]
	}
	return b
}
