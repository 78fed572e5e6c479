package tds

import "testing"

func TestSQLTypeString(t *testing.T) {
	cases := map[SQLType]string{
		TypeInt4:    "INT",
		TypeNVarChar: "NVARCHAR",
		TypeGUID:    "UNIQUEIDENTIFIER",
		TypeXML:     "XML",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", uint8(typ), got, want)
		}
	}
	if got := SQLType(0x99).String(); got != "UNKNOWN(0x99)" {
		t.Errorf("unknown type String() = %q, want UNKNOWN(0x99)", got)
	}
}

func TestColumnNullableAndEncrypted(t *testing.T) {
	c := Column{Flags: ColFlagNullable | ColFlagEncrypted}
	if !c.Nullable() {
		t.Error("expected Nullable true")
	}
	if !c.Encrypted() {
		t.Error("expected Encrypted true")
	}

	plain := Column{Flags: ColFlagKey}
	if plain.Nullable() {
		t.Error("expected Nullable false")
	}
	if plain.Encrypted() {
		t.Error("expected Encrypted false")
	}
}
