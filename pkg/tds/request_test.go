package tds

import "testing"

func TestEncodeSQLBatch(t *testing.T) {
	headers := AllHeaders{TransactionDescriptor: 0xDEADBEEFCAFEBABE, OutstandingRequests: 1}
	data := EncodeSQLBatch(headers, "SELECT 1")

	r := newReader(data)
	totalLen, err := r.uint32()
	if err != nil || totalLen != allHeadersTotalLen {
		t.Fatalf("ALL_HEADERS total length = %d, %v, want %d", totalLen, err, allHeadersTotalLen)
	}
	entryLen, _ := r.uint32()
	if entryLen != allHeadersEntryLen {
		t.Fatalf("entry length = %d, want %d", entryLen, allHeadersEntryLen)
	}
	hdrType, _ := r.uint16()
	if hdrType != allHeadersTypeTransDescriptor {
		t.Fatalf("header type = %d, want %d", hdrType, allHeadersTypeTransDescriptor)
	}
	txnDesc, _ := r.uint64()
	if txnDesc != headers.TransactionDescriptor {
		t.Fatalf("transaction descriptor = 0x%X, want 0x%X", txnDesc, headers.TransactionDescriptor)
	}
	outstanding, _ := r.uint32()
	if outstanding != 1 {
		t.Fatalf("outstanding requests = %d, want 1", outstanding)
	}
	query, err := r.bytes(r.remaining())
	if err != nil {
		t.Fatalf("reading query text: %v", err)
	}
	if got := ucs2ToString(query); got != "SELECT 1" {
		t.Fatalf("query text = %q, want %q", got, "SELECT 1")
	}
}

func TestEncodeTypeInfoMatchesDecodeTypeInfo(t *testing.T) {
	cases := []TypeInformation{
		{Type: TypeInt4},
		{Type: TypeIntN, Length: 4},
		{Type: TypeDecimalN, Length: 17, Precision: 18, Scale: 4},
		{Type: TypeNVarChar, Length: 100, Collation: ParseCollation(DefaultCollationBytes[:])},
		{Type: TypeVarChar, Length: 50, Collation: ParseCollation(DefaultCollationBytes[:])},
		{Type: TypeBigVarBin, Length: 8000},
	}
	for _, ti := range cases {
		w := &writer{}
		if err := encodeTypeInfo(w, ti); err != nil {
			t.Fatalf("encodeTypeInfo(%+v): %v", ti, err)
		}
		r := newReader(w.Bytes())
		got, err := decodeTypeInfo(r)
		if err != nil {
			t.Fatalf("decodeTypeInfo after encodeTypeInfo(%+v): %v", ti, err)
		}
		if got.Type != ti.Type || got.Length != ti.Length || got.Precision != ti.Precision || got.Scale != ti.Scale {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, ti)
		}
		if r.remaining() != 0 {
			t.Fatalf("encodeTypeInfo(%+v) left %d trailing bytes", ti, r.remaining())
		}
	}
}

func TestEncodeRPCRequestNamedProcedureWithParams(t *testing.T) {
	call := RPCCall{
		ProcName: "usp_GetCustomer",
		Params: []Param{
			{Name: "id", Info: TypeInformation{Type: TypeInt4}, Value: int32(7)},
			{Name: "@name", Info: TypeInformation{Type: TypeNVarChar, Length: 100, Collation: ParseCollation(DefaultCollationBytes[:])}, Value: "Ada"},
		},
	}
	data, err := EncodeRPCRequest(AllHeaders{}, call)
	if err != nil {
		t.Fatalf("EncodeRPCRequest: %v", err)
	}

	r := newReader(data)
	r.bytes(allHeadersTotalLen) // skip ALL_HEADERS

	procName, err := r.usVarchar()
	if err != nil || procName != "usp_GetCustomer" {
		t.Fatalf("procName = %q, %v, want %q", procName, err, "usp_GetCustomer")
	}
	options, err := r.uint16()
	if err != nil || options != 0 {
		t.Fatalf("options = %d, %v, want 0", options, err)
	}

	name1, err := r.bVarchar()
	if err != nil || name1 != "@id" {
		t.Fatalf("param 1 name = %q, %v, want @id", name1, err)
	}
	status1, _ := r.byte()
	if status1 != 0 {
		t.Fatalf("param 1 status = %d, want 0", status1)
	}
	ti1, err := decodeTypeInfo(r)
	if err != nil {
		t.Fatalf("decodeTypeInfo param 1: %v", err)
	}
	v1, err := DefaultCodecs.Decode(r, ti1)
	if err != nil {
		t.Fatalf("Decode param 1: %v", err)
	}
	if v1.(int32) != 7 {
		t.Fatalf("param 1 value = %v, want 7", v1)
	}

	name2, err := r.bVarchar()
	if err != nil || name2 != "@name" {
		t.Fatalf("param 2 name = %q, %v, want @name", name2, err)
	}
	r.byte() // status
	ti2, err := decodeTypeInfo(r)
	if err != nil {
		t.Fatalf("decodeTypeInfo param 2: %v", err)
	}
	v2, err := DefaultCodecs.Decode(r, ti2)
	if err != nil {
		t.Fatalf("Decode param 2: %v", err)
	}
	if v2.(string) != "Ada" {
		t.Fatalf("param 2 value = %q, want Ada", v2)
	}
}

func TestEncodeRPCRequestByProcID(t *testing.T) {
	call := RPCCall{ProcID: 10} // sp_executesql
	data, err := EncodeRPCRequest(AllHeaders{}, call)
	if err != nil {
		t.Fatalf("EncodeRPCRequest: %v", err)
	}
	r := newReader(data)
	r.bytes(allHeadersTotalLen)
	marker, _ := r.uint16()
	if marker != 0xFFFF {
		t.Fatalf("marker = 0x%04X, want 0xFFFF", marker)
	}
	procID, _ := r.uint16()
	if procID != 10 {
		t.Fatalf("procID = %d, want 10", procID)
	}
}

func TestParamOutputSetsByRefStatusFlag(t *testing.T) {
	call := RPCCall{
		ProcName: "usp_DoThing",
		Params: []Param{
			{Name: "result", Info: TypeInformation{Type: TypeInt4}, Value: nil, Output: true},
		},
	}
	data, err := EncodeRPCRequest(AllHeaders{}, call)
	if err != nil {
		t.Fatalf("EncodeRPCRequest: %v", err)
	}
	r := newReader(data)
	r.bytes(allHeadersTotalLen)
	r.usVarchar() // proc name
	r.uint16()    // options
	r.bVarchar()  // param name
	status, _ := r.byte()
	if status&ParamByRefValue == 0 {
		t.Fatal("expected ParamByRefValue bit set for an output parameter")
	}
}

func TestCollationOrDefault(t *testing.T) {
	zero := collationOrDefault(Collation{})
	want := DefaultCollationBytes[:]
	if len(zero) != len(want) {
		t.Fatalf("collationOrDefault(zero value) length = %d, want %d", len(zero), len(want))
	}
	for i := range want {
		if zero[i] != want[i] {
			t.Fatalf("collationOrDefault(zero value) = %x, want %x", zero, want)
		}
	}
}
