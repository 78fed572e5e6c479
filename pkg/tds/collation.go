package tds

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Collation is a TDS 5-byte COLLATION: a 20-bit LCID, comparison
// flags and a code-page-selecting sort id, used to pick the narrow
// (non-Unicode) charset for CHAR/VARCHAR/TEXT columns.
type Collation struct {
	LCID             uint32 // low 20 bits
	ComparisonFlags  uint8  // next 8 bits
	SortID           uint8  // final byte
}

// DefaultCollationBytes is Latin1_General_CI_AS, the common default a
// server reports absent any database-level override.
var DefaultCollationBytes = [5]byte{0x09, 0x04, 0xD0, 0x00, 0x34}

// ParseCollation decodes a 5-byte COLLATION field.
func ParseCollation(b []byte) Collation {
	if len(b) < 5 {
		b = DefaultCollationBytes[:]
	}
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return Collation{
		LCID:            v & 0x000FFFFF,
		ComparisonFlags: uint8((v >> 20) & 0xFF),
		SortID:          b[4],
	}
}

// Bytes encodes the collation back to its 5-byte wire form.
func (c Collation) Bytes() []byte {
	v := (c.LCID & 0x000FFFFF) | (uint32(c.ComparisonFlags) << 20)
	b := make([]byte, 5)
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = c.SortID
	return b
}

// sortIDCodepage maps the legacy SQL Server sort-id byte to its
// Windows code page, per the mapping table TDS clients use to decode
// narrow CHAR/VARCHAR/TEXT columns. Sort ids outside this table (most
// modern Windows collations use LCID-based lookup instead of a sort
// id) fall back to code page 1252.
var sortIDCodepage = map[uint8]int{
	30: 437, 31: 437, 32: 437, 33: 437, 34: 437,
	40: 850, 41: 850, 42: 850, 43: 850, 44: 850, 49: 850,
	51: 1252, 52: 1252, 53: 1252, 54: 1252,
	55: 850, 56: 850, 57: 850, 58: 850, 59: 850, 60: 850, 61: 850,
	71: 1250, 72: 1250, 73: 1250, 74: 1250, 75: 1250,
	80: 1251, 81: 1251, 82: 1251,
	104: 1253, 105: 1253, 106: 1253,
	112: 1254, 113: 1254, 114: 1254,
	120: 1255, 121: 1255,
	130: 1256, 131: 1256,
	145: 1257, 146: 1257, 147: 1257, 148: 1257,
}

// Codepage returns the Windows code page this collation implies for
// narrow-charset decoding.
func (c Collation) Codepage() int {
	if cp, ok := sortIDCodepage[c.SortID]; ok {
		return cp
	}
	return 1252
}

// NarrowEncoding returns the golang.org/x/text encoding that decodes
// bytes in this collation's narrow charset.
func (c Collation) NarrowEncoding() encoding.Encoding {
	switch c.Codepage() {
	case 437:
		return charmap.CodePage437
	case 850:
		return charmap.CodePage850
	case 1250:
		return charmap.Windows1250
	case 1251:
		return charmap.Windows1251
	case 1253:
		return charmap.Windows1253
	case 1254:
		return charmap.Windows1254
	case 1255:
		return charmap.Windows1255
	case 1256:
		return charmap.Windows1256
	case 1257:
		return charmap.Windows1257
	case 932:
		return japanese.ShiftJIS
	case 936:
		return simplifiedchinese.GBK
	case 949:
		return korean.EUCKR
	case 950:
		return traditionalchinese.Big5
	default:
		return charmap.Windows1252
	}
}

// DecodeNarrow decodes bytes in this collation's narrow charset to a
// Go string.
func (c Collation) DecodeNarrow(b []byte) (string, error) {
	out, err := c.NarrowEncoding().NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EncodeNarrow encodes a Go string to this collation's narrow charset.
func (c Collation) EncodeNarrow(s string) ([]byte, error) {
	return c.NarrowEncoding().NewEncoder().Bytes([]byte(s))
}
