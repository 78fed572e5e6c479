package tds

// LengthStrategy identifies how a TYPE_INFO's length prefix is encoded
// on the wire, per MS-TDS 2.2.5.
type LengthStrategy uint8

const (
	// StrategyFixed types carry no length prefix at all; the length is
	// implied by the SQLType itself (e.g. INT4 is always 4 bytes).
	StrategyFixed LengthStrategy = iota
	// StrategyByteLen types prefix each value with a single length byte;
	// 0 means SQL NULL.
	StrategyByteLen
	// StrategyUShortLen types prefix each value with a two-byte length;
	// 0xFFFF means SQL NULL.
	StrategyUShortLen
	// StrategyLongLen types prefix each value with a four-byte length;
	// 0xFFFFFFFF means SQL NULL.
	StrategyLongLen
	// StrategyPartLen (PLP) types use the chunked partially-length-
	// prefixed encoding; an all-ones 8-byte length means SQL NULL.
	StrategyPartLen
)

// Length is a tagged length value decoded from a TYPE_INFO/value
// prefix: it is either SQL NULL, a known byte count, or — for PLP
// types being streamed — unknown until fully read.
type Length struct {
	IsNull    bool
	Known     bool
	Value     uint32
	IsPLP     bool
	IsPLPNull bool
}

// NullLength returns the Length value denoting SQL NULL.
func NullLength() Length { return Length{IsNull: true} }

// KnownLength returns a Length with a known byte count.
func KnownLength(n uint32) Length { return Length{Known: true, Value: n} }

// UnknownPLPLength returns the Length used while a PLP value's total
// size has not yet been determined (its 8-byte prefix was the
// unknown-length sentinel rather than an explicit count).
func UnknownPLPLength() Length { return Length{IsPLP: true} }

// LengthStrategyFor returns the length-encoding strategy for a SQLType.
func LengthStrategyFor(t SQLType) LengthStrategy {
	switch t {
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8, TypeBit,
		TypeFloat4, TypeFloat8, TypeMoney, TypeMoney4,
		TypeDateTime, TypeDateTime4, TypeNull:
		return StrategyFixed
	case TypeIntN, TypeBitN, TypeFloatN, TypeMoneyN, TypeDateTimeN,
		TypeGUID, TypeDecimalN, TypeNumericN,
		TypeDateN, TypeTimeN, TypeDateTime2N, TypeDateTimeOffsetN,
		TypeChar, TypeVarChar, TypeBinary, TypeVarBinary:
		return StrategyByteLen
	case TypeBigVarChar, TypeBigChar, TypeBigVarBin, TypeBigBinary,
		TypeNVarChar, TypeNChar:
		return StrategyUShortLen
	case TypeText, TypeNText, TypeImage, TypeXML, TypeSSVariant:
		return StrategyLongLen
	default:
		return StrategyFixed
	}
}

// IsMaxType reports whether t is a (MAX)/LOB type that uses PLP
// encoding on TDS 7.2+ (VARCHAR(MAX), NVARCHAR(MAX), VARBINARY(MAX),
// XML) rather than its declared length strategy.
func IsMaxType(t SQLType, declaredLength uint32) bool {
	switch t {
	case TypeBigVarChar, TypeBigVarBin, TypeNVarChar, TypeXML:
		return declaredLength == 0xFFFF
	default:
		return false
	}
}

// FixedLengthFor returns the wire byte width of a StrategyFixed type.
func FixedLengthFor(t SQLType) int {
	switch t {
	case TypeInt1, TypeBit:
		return 1
	case TypeInt2:
		return 2
	case TypeInt4, TypeFloat4, TypeMoney4, TypeDateTime4:
		return 4
	case TypeInt8, TypeFloat8, TypeMoney, TypeDateTime:
		return 8
	default:
		return 0
	}
}

// TypeInformation is the decoded TYPE_INFO for a column or parameter:
// the SQLType plus whatever auxiliary fields that type carries
// (length, precision/scale, collation).
type TypeInformation struct {
	Type       SQLType
	Length     uint32 // declared max length, meaning depends on Type
	Precision  uint8  // DECIMAL/NUMERIC only
	Scale      uint8  // DECIMAL/NUMERIC/TIME/DATETIME2/DATETIMEOFFSET
	Collation  Collation
	IsMax      bool // VARCHAR(MAX)/NVARCHAR(MAX)/VARBINARY(MAX)/XML
}
