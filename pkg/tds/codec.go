package tds

import (
	"math"
	"reflect"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ha1tch/godriver-mssql/internal/errors"
)

// sqlBaseDate is the legacy TDS epoch (1900-01-01) that DATETIME and
// DATETIME4 day counts are measured from.
var sqlBaseDate = civil.Date{Year: 1900, Month: 1, Day: 1}

// dateBaseDate is the epoch (0001-01-01) that DATE, DATETIME2 and
// DATETIMEOFFSET day counts are measured from.
var dateBaseDate = civil.Date{Year: 1, Month: 1, Day: 1}

// Codecs decodes column/parameter values off the wire and encodes Go
// values back onto it, according to a column or parameter's
// TypeInformation. It is the single entry point pkg/mssql uses for
// all scalar value conversion.
type Codecs struct{}

// DefaultCodecs is the package's stateless codec registry.
var DefaultCodecs = Codecs{}

// GoType returns the Go type Decode produces for ti, for callers that
// need to pre-size destinations (e.g. database/sql-style scanning is
// out of scope, but a caller inspecting COLMETADATA still wants this).
func (Codecs) GoType(ti TypeInformation) reflect.Type {
	switch ti.Type {
	case TypeInt1:
		return reflect.TypeOf(uint8(0))
	case TypeInt2:
		return reflect.TypeOf(int16(0))
	case TypeInt4:
		return reflect.TypeOf(int32(0))
	case TypeInt8:
		return reflect.TypeOf(int64(0))
	case TypeIntN:
		switch ti.Length {
		case 1:
			return reflect.TypeOf(uint8(0))
		case 2:
			return reflect.TypeOf(int16(0))
		case 4:
			return reflect.TypeOf(int32(0))
		default:
			return reflect.TypeOf(int64(0))
		}
	case TypeBit, TypeBitN:
		return reflect.TypeOf(false)
	case TypeFloat4:
		return reflect.TypeOf(float32(0))
	case TypeFloat8:
		return reflect.TypeOf(float64(0))
	case TypeFloatN:
		if ti.Length == 4 {
			return reflect.TypeOf(float32(0))
		}
		return reflect.TypeOf(float64(0))
	case TypeMoney, TypeMoney4, TypeMoneyN, TypeDecimalN, TypeNumericN, TypeDecimal, TypeNumeric:
		return reflect.TypeOf(decimal.Decimal{})
	case TypeDateN:
		return reflect.TypeOf(civil.Date{})
	case TypeTimeN:
		return reflect.TypeOf(civil.Time{})
	case TypeDateTime, TypeDateTime4, TypeDateTimeN, TypeDateTime2N:
		return reflect.TypeOf(civil.DateTime{})
	case TypeDateTimeOffsetN:
		return reflect.TypeOf(time.Time{})
	case TypeGUID:
		return reflect.TypeOf(uuid.UUID{})
	case TypeChar, TypeVarChar, TypeBigChar, TypeBigVarChar, TypeText,
		TypeNChar, TypeNVarChar, TypeNText, TypeXML:
		return reflect.TypeOf("")
	case TypeBinary, TypeVarBinary, TypeBigBinary, TypeBigVarBin, TypeImage:
		return reflect.TypeOf([]byte(nil))
	default:
		return reflect.TypeOf([]byte(nil))
	}
}

// Decode reads one value of the type described by ti from r, honoring
// the type's length strategy, and returns it as the Go value GoType
// names (or nil for SQL NULL).
func (c Codecs) Decode(r *reader, ti TypeInformation) (interface{}, error) {
	strategy := LengthStrategyFor(ti.Type)
	if IsMaxType(ti.Type, ti.Length) {
		return c.decodePLP(r, ti)
	}

	switch strategy {
	case StrategyFixed:
		return c.decodeFixed(r, ti)
	case StrategyByteLen:
		n, err := r.byte()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		return c.decodeSized(r, ti, int(n))
	case StrategyUShortLen:
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		if n == 0xFFFF {
			return nil, nil
		}
		return c.decodeSized(r, ti, int(n))
	case StrategyLongLen:
		n, err := r.uint32()
		if err != nil {
			return nil, err
		}
		if n == 0xFFFFFFFF {
			return nil, nil
		}
		return c.decodeSized(r, ti, int(n))
	case StrategyPartLen:
		return c.decodePLP(r, ti)
	default:
		return nil, errors.Newf(errors.CodeUnsupportedType, "unknown length strategy for %s", ti.Type).Build()
	}
}

func (c Codecs) decodeFixed(r *reader, ti TypeInformation) (interface{}, error) {
	switch ti.Type {
	case TypeInt1:
		v, err := r.byte()
		return v, err
	case TypeInt2:
		return r.int16()
	case TypeInt4:
		return r.int32()
	case TypeInt8:
		return r.int64()
	case TypeBit:
		v, err := r.byte()
		return v != 0, err
	case TypeFloat4:
		v, err := r.uint32()
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(v), nil
	case TypeFloat8:
		v, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(v), nil
	case TypeMoney4:
		v, err := r.int32()
		if err != nil {
			return nil, err
		}
		return decimal.New(int64(v), -4), nil
	case TypeMoney:
		hi, err := r.int32()
		if err != nil {
			return nil, err
		}
		lo, err := r.uint32()
		if err != nil {
			return nil, err
		}
		v := (int64(hi) << 32) | int64(lo)
		return decimal.New(v, -4), nil
	case TypeDateTime4:
		return c.decodeSmallDateTime(r)
	case TypeDateTime:
		return c.decodeDateTime(r)
	default:
		return nil, errors.Newf(errors.CodeUnsupportedType, "unsupported fixed type %s", ti.Type).Build()
	}
}

func (c Codecs) decodeSmallDateTime(r *reader) (interface{}, error) {
	days, err := r.uint16()
	if err != nil {
		return nil, err
	}
	minutes, err := r.uint16()
	if err != nil {
		return nil, err
	}
	d := sqlBaseDate.AddDays(int(days))
	return civil.DateTime{Date: d, Time: civil.Time{Hour: int(minutes / 60), Minute: int(minutes % 60)}}, nil
}

func (c Codecs) decodeDateTime(r *reader) (interface{}, error) {
	days, err := r.int32()
	if err != nil {
		return nil, err
	}
	ticks, err := r.uint32() // 1/300th second ticks since midnight
	if err != nil {
		return nil, err
	}
	d := sqlBaseDate.AddDays(int(days))
	totalMillis := int64(ticks) * 10 / 3
	h := totalMillis / 3600000
	totalMillis %= 3600000
	m := totalMillis / 60000
	totalMillis %= 60000
	s := totalMillis / 1000
	ns := (totalMillis % 1000) * 1e6
	return civil.DateTime{Date: d, Time: civil.Time{Hour: int(h), Minute: int(m), Second: int(s), Nanosecond: int(ns)}}, nil
}

// decodeSized decodes a value whose length has already been read as n
// bytes (ByteLen/UShortLen/LongLen strategies).
func (c Codecs) decodeSized(r *reader, ti TypeInformation, n int) (interface{}, error) {
	switch ti.Type {
	case TypeIntN:
		return c.decodeIntN(r, n)
	case TypeBitN:
		b, err := r.byte()
		return b != 0, err
	case TypeFloatN:
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		if n == 4 {
			return math.Float32frombits(leUint32(b)), nil
		}
		if n != 8 {
			return nil, errors.New(errors.CodeMalformedPacket, "FLOATN: unexpected length").Build()
		}
		return math.Float64frombits(leUint64(b)), nil
	case TypeMoneyN:
		return c.decodeMoneyN(r, n)
	case TypeDateTimeN:
		if n == 4 {
			return c.decodeSmallDateTime(r)
		}
		return c.decodeDateTime(r)
	case TypeDateN:
		return c.decodeDate(r)
	case TypeTimeN:
		return c.decodeTime(r, ti.Scale, n)
	case TypeDateTime2N:
		return c.decodeDateTime2(r, ti.Scale, n)
	case TypeDateTimeOffsetN:
		return c.decodeDateTimeOffset(r, ti.Scale, n)
	case TypeDecimalN, TypeNumericN, TypeDecimal, TypeNumeric:
		return c.decodeDecimal(r, ti, n)
	case TypeGUID:
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		return uuid.UUID(guidBytesToGo(b)), nil
	case TypeChar, TypeVarChar, TypeBigChar, TypeBigVarChar:
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		return ti.Collation.DecodeNarrow(b)
	case TypeNChar, TypeNVarChar:
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		return ucs2ToString(b), nil
	case TypeBinary, TypeVarBinary, TypeBigBinary, TypeBigVarBin:
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case TypeText, TypeNText, TypeImage, TypeXML, TypeSSVariant:
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		if ti.Type == TypeNText || ti.Type == TypeXML {
			return ucs2ToString(b), nil
		}
		if ti.Type == TypeImage {
			out := make([]byte, len(b))
			copy(out, b)
			return out, nil
		}
		return ti.Collation.DecodeNarrow(b)
	default:
		return nil, errors.Newf(errors.CodeUnsupportedType, "unsupported sized type %s", ti.Type).Build()
	}
}

func (c Codecs) decodeIntN(r *reader, n int) (interface{}, error) {
	switch n {
	case 1:
		return r.byte()
	case 2:
		return r.int16()
	case 4:
		return r.int32()
	case 8:
		return r.int64()
	default:
		return nil, errors.Newf(errors.CodeCodecError, "invalid INTN length %d", n).Build()
	}
}

func (c Codecs) decodeMoneyN(r *reader, n int) (interface{}, error) {
	switch n {
	case 4:
		v, err := r.int32()
		if err != nil {
			return nil, err
		}
		return decimal.New(int64(v), -4), nil
	case 8:
		hi, err := r.int32()
		if err != nil {
			return nil, err
		}
		lo, err := r.uint32()
		if err != nil {
			return nil, err
		}
		return decimal.New((int64(hi)<<32)|int64(lo), -4), nil
	default:
		return nil, errors.Newf(errors.CodeCodecError, "invalid MONEYN length %d", n).Build()
	}
}

func (c Codecs) decodeDate(r *reader) (interface{}, error) {
	b, err := r.bytes(3)
	if err != nil {
		return nil, err
	}
	days := int(b[0]) | int(b[1])<<8 | int(b[2])<<16
	return dateBaseDate.AddDays(days), nil
}

// readTimeTicks reads the n-byte time-since-midnight field used by
// TIME(scale)/DATETIME2(scale)/DATETIMEOFFSET(scale), whose byte width
// depends on scale (3 bytes for scale<=2, 4 for <=4, 5 for <=7).
func readTimeTicks(r *reader, scale uint8) (int64, error) {
	width := 5
	switch {
	case scale <= 2:
		width = 3
	case scale <= 4:
		width = 4
	}
	b, err := r.bytes(width)
	if err != nil {
		return 0, err
	}
	var v int64
	for i := width - 1; i >= 0; i-- {
		v = (v << 8) | int64(b[i])
	}
	return v, nil
}

// ticksToTime converts scale-dependent ticks-since-midnight to
// (hour, minute, second, nanosecond).
func ticksToTime(ticks int64, scale uint8) (h, m, s, ns int) {
	divisor := int64(1)
	for i := uint8(0); i < 7-scale; i++ {
		divisor *= 10
	}
	hundredNanos := ticks * divisor // normalize to 100ns units
	totalSeconds := hundredNanos / 10_000_000
	ns = int((hundredNanos % 10_000_000) * 100)
	h = int(totalSeconds / 3600)
	totalSeconds %= 3600
	m = int(totalSeconds / 60)
	s = int(totalSeconds % 60)
	return
}

func (c Codecs) decodeTime(r *reader, scale uint8, _ int) (interface{}, error) {
	ticks, err := readTimeTicks(r, scale)
	if err != nil {
		return nil, err
	}
	h, m, s, ns := ticksToTime(ticks, scale)
	return civil.Time{Hour: h, Minute: m, Second: s, Nanosecond: ns}, nil
}

func (c Codecs) decodeDateTime2(r *reader, scale uint8, n int) (interface{}, error) {
	ticks, err := readTimeTicks(r, scale)
	if err != nil {
		return nil, err
	}
	dateBytes, err := r.bytes(3)
	if err != nil {
		return nil, err
	}
	days := int(dateBytes[0]) | int(dateBytes[1])<<8 | int(dateBytes[2])<<16
	h, m, s, ns := ticksToTime(ticks, scale)
	return civil.DateTime{
		Date: dateBaseDate.AddDays(days),
		Time: civil.Time{Hour: h, Minute: m, Second: s, Nanosecond: ns},
	}, nil
}

func (c Codecs) decodeDateTimeOffset(r *reader, scale uint8, n int) (interface{}, error) {
	ticks, err := readTimeTicks(r, scale)
	if err != nil {
		return nil, err
	}
	dateBytes, err := r.bytes(3)
	if err != nil {
		return nil, err
	}
	days := int(dateBytes[0]) | int(dateBytes[1])<<8 | int(dateBytes[2])<<16
	offsetMinutes, err := r.int16()
	if err != nil {
		return nil, err
	}
	h, m, s, ns := ticksToTime(ticks, scale)
	d := dateBaseDate.AddDays(days)
	loc := time.FixedZone("", int(offsetMinutes)*60)
	return time.Date(d.Year, time.Month(d.Month), d.Day, h, m, s, ns, loc), nil
}

func (c Codecs) decodeDecimal(r *reader, ti TypeInformation, n int) (interface{}, error) {
	sign, err := r.byte()
	if err != nil {
		return nil, err
	}
	magBytes, err := r.bytes(n - 1)
	if err != nil {
		return nil, err
	}
	var mag uint64
	// little-endian magnitude, up to 16 bytes (96-bit+ precision); for
	// precision up to 38 this can exceed 64 bits, so fold into a
	// decimal.Decimal via repeated byte accumulation instead of a
	// plain uint64 when wide.
	if len(magBytes) <= 8 {
		for i := len(magBytes) - 1; i >= 0; i-- {
			mag = (mag << 8) | uint64(magBytes[i])
		}
		coeff := int64(mag)
		if sign == 0 {
			coeff = -coeff
		}
		return decimal.New(coeff, -int32(ti.Scale)), nil
	}
	// Wide path: build the big-endian-accumulated integer via decimal
	// arithmetic, byte by byte (little-endian input).
	acc := decimal.Zero
	base := decimal.New(1, 0)
	step := decimal.New(256, 0)
	for _, b := range magBytes {
		acc = acc.Add(base.Mul(decimal.New(int64(b), 0)))
		base = base.Mul(step)
	}
	if sign == 0 {
		acc = acc.Neg()
	}
	return acc.Shift(-int32(ti.Scale)), nil
}

func (c Codecs) decodePLP(r *reader, ti TypeInformation) (interface{}, error) {
	data, isNull, err := readPLP(r)
	if err != nil {
		return nil, err
	}
	if isNull {
		return nil, nil
	}
	switch ti.Type {
	case TypeBigVarChar:
		return ti.Collation.DecodeNarrow(data)
	case TypeNVarChar, TypeXML:
		return ucs2ToString(data), nil
	case TypeBigVarBin:
		return data, nil
	default:
		return data, nil
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

// Encode writes a Go value of the type described by ti onto w,
// including its length prefix (or NULL marker), for outbound RPC
// parameters.
func (c Codecs) Encode(w *writer, ti TypeInformation, val interface{}) error {
	if val == nil {
		return c.encodeNull(w, ti)
	}

	switch ti.Type {
	case TypeInt1:
		w.writeByte(byte(toInt64OrZero(val)))
	case TypeInt2:
		w.writeInt16(int16(toInt64OrZero(val)))
	case TypeInt4:
		w.writeInt32(int32(toInt64OrZero(val)))
	case TypeInt8:
		w.writeInt64(toInt64OrZero(val))
	case TypeIntN:
		n := intNWidth(ti, val)
		w.writeByte(byte(n))
		switch n {
		case 1:
			w.writeByte(byte(toInt64OrZero(val)))
		case 2:
			w.writeInt16(int16(toInt64OrZero(val)))
		case 4:
			w.writeInt32(int32(toInt64OrZero(val)))
		case 8:
			w.writeInt64(toInt64OrZero(val))
		}
	case TypeBit, TypeBitN:
		if ti.Type == TypeBitN {
			w.writeByte(1)
		}
		if b, _ := val.(bool); b {
			w.writeByte(1)
		} else {
			w.writeByte(0)
		}
	case TypeFloat4, TypeFloatN:
		f := toFloat64OrZero(val)
		if ti.Type == TypeFloatN {
			if ti.Length == 4 {
				w.writeByte(4)
				w.writeUint32(math.Float32bits(float32(f)))
			} else {
				w.writeByte(8)
				w.writeUint64(math.Float64bits(f))
			}
		} else {
			w.writeUint32(math.Float32bits(float32(f)))
		}
	case TypeFloat8:
		w.writeUint64(math.Float64bits(toFloat64OrZero(val)))
	case TypeMoney, TypeMoney4, TypeMoneyN:
		return c.encodeMoney(w, ti, val)
	case TypeDecimalN, TypeNumericN, TypeDecimal, TypeNumeric:
		return c.encodeDecimal(w, ti, val)
	case TypeGUID:
		u, ok := val.(uuid.UUID)
		if !ok {
			return errors.Newf(errors.CodeCodecError, "expected uuid.UUID, got %T", val).Build()
		}
		w.writeByte(16)
		w.writeBytes(guidBytesToWire([16]byte(u)))
	case TypeChar, TypeVarChar, TypeBinary, TypeVarBinary:
		return c.encodeByteLenBytes(w, ti, val)
	case TypeBigChar, TypeBigVarChar:
		return c.encodeUShortLenNarrow(w, ti, val)
	case TypeNChar, TypeNVarChar:
		return c.encodeUShortLenWide(w, ti, val)
	case TypeBigBinary, TypeBigVarBin:
		return c.encodeUShortLenBytes(w, ti, val)
	case TypeDateN:
		return c.encodeDate(w, val)
	case TypeTimeN:
		return c.encodeTime(w, ti, val)
	case TypeDateTime, TypeDateTime4, TypeDateTimeN:
		return c.encodeDateTime(w, ti, val)
	case TypeDateTime2N:
		return c.encodeDateTime2(w, ti, val)
	case TypeDateTimeOffsetN:
		return c.encodeDateTimeOffset(w, ti, val)
	default:
		return errors.Newf(errors.CodeUnsupportedType, "encode: unsupported type %s", ti.Type).Build()
	}
	return nil
}

func (c Codecs) encodeNull(w *writer, ti TypeInformation) error {
	switch LengthStrategyFor(ti.Type) {
	case StrategyByteLen:
		w.writeByte(0)
	case StrategyUShortLen:
		w.writeUint16(0xFFFF)
	case StrategyLongLen:
		w.writeUint32(0xFFFFFFFF)
	case StrategyPartLen:
		w.writeUint64(0xFFFFFFFFFFFFFFFF)
	default:
		return errors.Newf(errors.CodeIllegalState, "type %s has no NULL representation", ti.Type).Build()
	}
	return nil
}

func intNWidth(ti TypeInformation, val interface{}) int {
	if ti.Length == 1 || ti.Length == 2 || ti.Length == 4 || ti.Length == 8 {
		return int(ti.Length)
	}
	v := toInt64OrZero(val)
	switch {
	case v >= -128 && v <= 127:
		return 1
	case v >= -32768 && v <= 32767:
		return 2
	case v >= -2147483648 && v <= 2147483647:
		return 4
	default:
		return 8
	}
}

func (c Codecs) encodeMoney(w *writer, ti TypeInformation, val interface{}) error {
	d, ok := toDecimal(val)
	if !ok {
		return errors.Newf(errors.CodeCodecError, "cannot convert %T to decimal money", val).Build()
	}
	scaled := d.Shift(4).Round(0).IntPart()
	if ti.Type == TypeMoney4 {
		w.writeInt32(int32(scaled))
		return nil
	}
	if ti.Type == TypeMoneyN {
		w.writeByte(8)
	}
	w.writeInt32(int32(scaled >> 32))
	w.writeUint32(uint32(scaled))
	return nil
}

func (c Codecs) encodeDecimal(w *writer, ti TypeInformation, val interface{}) error {
	d, ok := toDecimal(val)
	if !ok {
		return errors.Newf(errors.CodeCodecError, "cannot convert %T to decimal", val).Build()
	}
	scaled := d.Shift(int32(ti.Scale)).Round(0)
	sign := byte(1)
	if scaled.Sign() < 0 {
		sign = 0
		scaled = scaled.Neg()
	}
	width := decimalByteWidth(ti.Precision)
	w.writeByte(byte(1 + width))
	w.writeByte(sign)
	mag := make([]byte, width)
	coeff := scaled.BigInt()
	bytesLE := coeff.Bytes() // big-endian
	for i := 0; i < len(bytesLE) && i < width; i++ {
		mag[i] = bytesLE[len(bytesLE)-1-i]
	}
	w.writeBytes(mag)
	return nil
}

func decimalByteWidth(precision uint8) int {
	switch {
	case precision <= 9:
		return 4
	case precision <= 19:
		return 8
	case precision <= 28:
		return 12
	default:
		return 16
	}
}

func (c Codecs) encodeByteLenBytes(w *writer, ti TypeInformation, val interface{}) error {
	b, err := toBytesValue(ti, val)
	if err != nil {
		return err
	}
	if len(b) > 255 {
		return errors.Newf(errors.CodeCodecError, "value of %d bytes exceeds BYTELEN's 255-byte limit", len(b)).Build()
	}
	w.writeByte(byte(len(b)))
	w.writeBytes(b)
	return nil
}

func (c Codecs) encodeUShortLenBytes(w *writer, ti TypeInformation, val interface{}) error {
	b, err := toBytesValue(ti, val)
	if err != nil {
		return err
	}
	w.writeUint16(uint16(len(b)))
	w.writeBytes(b)
	return nil
}

func (c Codecs) encodeUShortLenNarrow(w *writer, ti TypeInformation, val interface{}) error {
	s, ok := val.(string)
	if !ok {
		return errors.Newf(errors.CodeCodecError, "cannot convert %T to string", val).Build()
	}
	b, err := ti.Collation.EncodeNarrow(s)
	if err != nil {
		return errors.Wrap(errors.CodeCodecError, err, "encode narrow string").Build()
	}
	w.writeUint16(uint16(len(b)))
	w.writeBytes(b)
	return nil
}

func (c Codecs) encodeUShortLenWide(w *writer, ti TypeInformation, val interface{}) error {
	s, ok := val.(string)
	if !ok {
		return errors.Newf(errors.CodeCodecError, "cannot convert %T to string", val).Build()
	}
	b := stringToUCS2(s)
	w.writeUint16(uint16(len(b)))
	w.writeBytes(b)
	return nil
}

func toBytesValue(ti TypeInformation, val interface{}) ([]byte, error) {
	switch v := val.(type) {
	case []byte:
		return v, nil
	case string:
		return ti.Collation.EncodeNarrow(v)
	default:
		return nil, errors.Newf(errors.CodeCodecError, "cannot convert %T to bytes", val).Build()
	}
}

func (c Codecs) encodeDate(w *writer, val interface{}) error {
	d, ok := val.(civil.Date)
	if !ok {
		return errors.Newf(errors.CodeCodecError, "cannot convert %T to civil.Date", val).Build()
	}
	days := daysBetween(dateBaseDate, d)
	w.writeByte(3)
	w.writeBytes([]byte{byte(days), byte(days >> 8), byte(days >> 16)})
	return nil
}

func (c Codecs) encodeTime(w *writer, ti TypeInformation, val interface{}) error {
	t, ok := val.(civil.Time)
	if !ok {
		return errors.Newf(errors.CodeCodecError, "cannot convert %T to civil.Time", val).Build()
	}
	ticks := timeToTicks(t, ti.Scale)
	width := 5
	switch {
	case ti.Scale <= 2:
		width = 3
	case ti.Scale <= 4:
		width = 4
	}
	w.writeByte(byte(width))
	b := make([]byte, width)
	for i := 0; i < width; i++ {
		b[i] = byte(ticks)
		ticks >>= 8
	}
	w.writeBytes(b)
	return nil
}

func (c Codecs) encodeDateTime(w *writer, ti TypeInformation, val interface{}) error {
	dt, ok := val.(civil.DateTime)
	if !ok {
		return errors.Newf(errors.CodeCodecError, "cannot convert %T to civil.DateTime", val).Build()
	}
	days := daysBetween(sqlBaseDate, dt.Date)
	if ti.Type == TypeDateTime4 || (ti.Type == TypeDateTimeN && ti.Length == 4) {
		if ti.Type == TypeDateTimeN {
			w.writeByte(4)
		}
		w.writeUint16(uint16(days))
		w.writeUint16(uint16(dt.Time.Hour*60 + dt.Time.Minute))
		return nil
	}
	if ti.Type == TypeDateTimeN {
		w.writeByte(8)
	}
	ticks := int64(dt.Time.Hour)*3600 + int64(dt.Time.Minute)*60 + int64(dt.Time.Second)
	ticks = ticks*300 + int64(dt.Time.Nanosecond)*3/10_000_000
	w.writeInt32(int32(days))
	w.writeUint32(uint32(ticks))
	return nil
}

func (c Codecs) encodeDateTime2(w *writer, ti TypeInformation, val interface{}) error {
	dt, ok := val.(civil.DateTime)
	if !ok {
		return errors.Newf(errors.CodeCodecError, "cannot convert %T to civil.DateTime", val).Build()
	}
	ticks := timeToTicks(dt.Time, ti.Scale)
	width := 5
	switch {
	case ti.Scale <= 2:
		width = 3
	case ti.Scale <= 4:
		width = 4
	}
	days := daysBetween(dateBaseDate, dt.Date)
	w.writeByte(byte(width + 3))
	b := make([]byte, width)
	t := ticks
	for i := 0; i < width; i++ {
		b[i] = byte(t)
		t >>= 8
	}
	w.writeBytes(b)
	w.writeBytes([]byte{byte(days), byte(days >> 8), byte(days >> 16)})
	return nil
}

func (c Codecs) encodeDateTimeOffset(w *writer, ti TypeInformation, val interface{}) error {
	t, ok := val.(time.Time)
	if !ok {
		return errors.Newf(errors.CodeCodecError, "cannot convert %T to time.Time", val).Build()
	}
	_, offsetSec := t.Zone()
	ct := civil.TimeOf(t)
	cd := civil.DateOf(t)
	ticks := timeToTicks(ct, ti.Scale)
	width := 5
	switch {
	case ti.Scale <= 2:
		width = 3
	case ti.Scale <= 4:
		width = 4
	}
	days := daysBetween(dateBaseDate, cd)
	w.writeByte(byte(width + 5))
	b := make([]byte, width)
	tt := ticks
	for i := 0; i < width; i++ {
		b[i] = byte(tt)
		tt >>= 8
	}
	w.writeBytes(b)
	w.writeBytes([]byte{byte(days), byte(days >> 8), byte(days >> 16)})
	w.writeInt16(int16(offsetSec / 60))
	return nil
}

func timeToTicks(t civil.Time, scale uint8) int64 {
	hundredNanos := int64(t.Hour)*3600_0000000 + int64(t.Minute)*60_0000000 + int64(t.Second)*1_0000000 + int64(t.Nanosecond)/100
	divisor := int64(1)
	for i := uint8(0); i < 7-scale; i++ {
		divisor *= 10
	}
	return hundredNanos / divisor
}

func daysBetween(base, d civil.Date) int {
	return int(d.DaysSince(base))
}

func toInt64OrZero(v interface{}) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	default:
		return 0
	}
}

func toFloat64OrZero(v interface{}) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	default:
		return 0
	}
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case float64:
		return decimal.NewFromFloat(x), true
	case int64:
		return decimal.New(x, 0), true
	case string:
		d, err := decimal.NewFromString(x)
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}
