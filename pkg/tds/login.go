package tds

import (
	"encoding/binary"
	"unicode/utf16"
)

// LOGIN7 option flags (see MS-TDS 2.2.6.4).
const (
	// OptionFlags1
	FlagByteOrder uint8 = 0x01 // 0 = little endian
	FlagChar      uint8 = 0x02 // 0 = ASCII charset
	FlagFloat     uint8 = 0x0C
	FlagDumpLoad  uint8 = 0x10
	FlagUseDB     uint8 = 0x20
	FlagDatabase  uint8 = 0x40
	FlagSetLang   uint8 = 0x80

	// OptionFlags2
	FlagLanguage      uint8 = 0x01
	FlagODBC          uint8 = 0x02
	FlagTransBoundary uint8 = 0x04
	FlagCacheConnect  uint8 = 0x08
	FlagUserType      uint8 = 0x70
	FlagIntSecurity   uint8 = 0x80 // SSPI — never set by this client

	// OptionFlags3
	FlagChangePassword   uint8 = 0x01
	FlagBinaryXML        uint8 = 0x02
	FlagUserInstance     uint8 = 0x04
	FlagUnknownCollation uint8 = 0x08
	FlagExtension        uint8 = 0x10

	// TypeFlags
	FlagSQLType        uint8 = 0x0F
	FlagOLEDB          uint8 = 0x10
	FlagReadOnlyIntent uint8 = 0x20
)

// Login7HeaderSize is the fixed size of the LOGIN7 header.
const Login7HeaderSize = 94

// FeatureExtUTF8Support is the FEATUREEXT feature id for UTF-8 support.
const FeatureExtUTF8Support uint8 = 0x0A

// FeatureExtTerminator marks the end of a FEATUREEXTACK/FEATUREEXT list.
const FeatureExtTerminator uint8 = 0xFF

// Login7Request holds the fields needed to build an outbound LOGIN7
// packet. Credential/URL parsing that produces these values is out of
// scope; the caller supplies already-resolved strings.
type Login7Request struct {
	TDSVersion     uint32
	PacketSize     uint32
	ClientProgVer  uint32
	ClientPID      uint32
	ClientTimeZone int32
	ClientLCID     uint32

	HostName   string
	UserName   string
	Password   string
	AppName    string
	ServerName string
	CtlIntName string // client interface library name
	Language   string
	Database   string

	ReadOnlyIntent bool
	UseUTF8        bool // request FeatureExt UTF8_SUPPORT (0x0A)
}

// Encode builds the LOGIN7 payload: the 94-byte fixed header followed
// by the variable-length UCS-2 fields and, if requested, a feature
// extension block.
func (r *Login7Request) Encode() []byte {
	hostName := stringToUCS2(r.HostName)
	userName := stringToUCS2(r.UserName)
	password := mangleUCS2Password(r.Password)
	appName := stringToUCS2(r.AppName)
	serverName := stringToUCS2(r.ServerName)
	ctlIntName := stringToUCS2(r.CtlIntName)
	language := stringToUCS2(r.Language)
	database := stringToUCS2(r.Database)

	var featureExt []byte
	if r.UseUTF8 {
		featureExt = append(featureExt, FeatureExtUTF8Support, 0, 0, 0, 0)
		featureExt = append(featureExt, FeatureExtTerminator)
	}

	offset := uint16(Login7HeaderSize)

	var h struct {
		hostNameOffset, hostNameLength             uint16
		userNameOffset, userNameLength             uint16
		passwordOffset, passwordLength             uint16
		appNameOffset, appNameLength                 uint16
		serverNameOffset, serverNameLength           uint16
		extensionOffset, extensionLength             uint16
		ctlIntNameOffset, ctlIntNameLength           uint16
		languageOffset, languageLength               uint16
		databaseOffset, databaseLength               uint16
	}

	place := func(data []byte) (off uint16) {
		off = offset
		offset += uint16(len(data))
		return off
	}

	h.hostNameOffset = place(hostName)
	h.hostNameLength = uint16(len([]rune(r.HostName)))
	h.userNameOffset = place(userName)
	h.userNameLength = uint16(len([]rune(r.UserName)))
	h.passwordOffset = place(password)
	h.passwordLength = uint16(len([]rune(r.Password)))
	h.appNameOffset = place(appName)
	h.appNameLength = uint16(len([]rune(r.AppName)))
	h.serverNameOffset = place(serverName)
	h.serverNameLength = uint16(len([]rune(r.ServerName)))

	// Extension offset points at a 4-byte DWORD holding the real offset
	// of the feature-ext block; that DWORD itself occupies 4 bytes here.
	var extPointer []byte
	if featureExt != nil {
		extPointer = make([]byte, 4)
	}
	h.extensionOffset = place(extPointer)
	h.extensionLength = uint16(len(extPointer))

	h.ctlIntNameOffset = place(ctlIntName)
	h.ctlIntNameLength = uint16(len([]rune(r.CtlIntName)))
	h.languageOffset = place(language)
	h.languageLength = uint16(len([]rune(r.Language)))
	h.databaseOffset = place(database)
	h.databaseLength = uint16(len([]rune(r.Database)))

	featureExtOffset := uint32(0)
	if featureExt != nil {
		featureExtOffset = uint32(offset)
		offset += uint16(len(featureExt))
	}

	optionFlags3 := uint8(0)
	if featureExt != nil {
		optionFlags3 |= FlagExtension
	}
	typeFlags := FlagOLEDB
	if r.ReadOnlyIntent {
		typeFlags |= FlagReadOnlyIntent
	}

	total := int(offset)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint32(buf[4:8], r.TDSVersion)
	binary.LittleEndian.PutUint32(buf[8:12], r.PacketSize)
	binary.LittleEndian.PutUint32(buf[12:16], r.ClientProgVer)
	binary.LittleEndian.PutUint32(buf[16:20], r.ClientPID)
	binary.LittleEndian.PutUint32(buf[20:24], 0) // ConnectionID, server-assigned
	buf[24] = FlagUseDB | FlagSetLang
	buf[25] = FlagODBC
	buf[26] = typeFlags
	buf[27] = optionFlags3
	binary.LittleEndian.PutUint32(buf[28:32], uint32(r.ClientTimeZone))
	binary.LittleEndian.PutUint32(buf[32:36], r.ClientLCID)

	putOff := func(pos int, off, length uint16) {
		binary.LittleEndian.PutUint16(buf[pos:pos+2], off)
		binary.LittleEndian.PutUint16(buf[pos+2:pos+4], length)
	}
	putOff(36, h.hostNameOffset, h.hostNameLength)
	putOff(40, h.userNameOffset, h.userNameLength)
	putOff(44, h.passwordOffset, h.passwordLength)
	putOff(48, h.appNameOffset, h.appNameLength)
	putOff(52, h.serverNameOffset, h.serverNameLength)
	putOff(56, h.extensionOffset, h.extensionLength)
	putOff(60, h.ctlIntNameOffset, h.ctlIntNameLength)
	putOff(64, h.languageOffset, h.languageLength)
	putOff(68, h.databaseOffset, h.databaseLength)
	// ClientID (72:78) left zero; no MAC address reported.
	putOff(78, 0, 0)  // SSPI — unused, no integrated auth
	putOff(82, 0, 0)  // AtchDBFile — unused
	putOff(86, 0, 0)  // ChangePassword — unused
	binary.LittleEndian.PutUint32(buf[90:94], 0)

	pos := Login7HeaderSize
	pos += copy(buf[pos:], hostName)
	pos += copy(buf[pos:], userName)
	pos += copy(buf[pos:], password)
	pos += copy(buf[pos:], appName)
	pos += copy(buf[pos:], serverName)
	if extPointer != nil {
		binary.LittleEndian.PutUint32(extPointer, featureExtOffset)
	}
	pos += copy(buf[pos:], extPointer)
	pos += copy(buf[pos:], ctlIntName)
	pos += copy(buf[pos:], language)
	pos += copy(buf[pos:], database)
	if featureExt != nil {
		copy(buf[pos:], featureExt)
	}

	return buf
}

// mangleUCS2Password XOR's and nibble-swaps a UCS-2 password for the
// wire per MS-TDS 2.2.6.4 — obfuscation, not encryption.
func mangleUCS2Password(s string) []byte {
	b := stringToUCS2(s)
	for i := range b {
		v := (b[i] << 4) | (b[i] >> 4)
		b[i] = v ^ 0xA5
	}
	return b
}

// ucs2ToString converts UCS-2 (UTF-16LE) bytes to a Go string.
func ucs2ToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u16))
}

// stringToUCS2 converts a Go string to UCS-2 (UTF-16LE) bytes.
func stringToUCS2(s string) []byte {
	u16 := utf16.Encode([]rune(s))
	b := make([]byte, len(u16)*2)
	for i, v := range u16 {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}
