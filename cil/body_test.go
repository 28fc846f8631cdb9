package cil_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pcrain/ilreader/cil"
	ilerrors "github.com/pcrain/ilreader/errors"
)

var (
	errParseBounds  = &ilerrors.Error{Phase: ilerrors.PhaseParse, Kind: ilerrors.KindOutOfBounds}
	errParseInvalid = &ilerrors.Error{Phase: ilerrors.PhaseParse, Kind: ilerrors.KindInvalidData}
)

func le16(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

// fatHeader builds a 12-byte fat method header.
func fatHeader(flags uint16, maxStack uint16, codeSize uint32, localSig uint32) []byte {
	return concat(le16(3<<12|flags|0x3), le16(maxStack), le32(codeSize), le32(localSig))
}

func TestParseTinyBody(t *testing.T) {
	data := []byte{2<<2 | 0x2, 0x00, 0x2A, 0xCC} // trailing byte belongs to the next body
	body, err := cil.ParseMethodBody(data)
	if err != nil {
		t.Fatalf("ParseMethodBody: %v", err)
	}
	if body.Fat {
		t.Error("tiny body reported as fat")
	}
	if !bytes.Equal(body.Code, []byte{0x00, 0x2A}) {
		t.Errorf("code = % x", body.Code)
	}
	if body.MaxStack != 8 {
		t.Errorf("MaxStack = %d, want 8", body.MaxStack)
	}
	if body.InitLocals() {
		t.Error("tiny body cannot init locals")
	}
}

func TestParseTinyBodyTruncated(t *testing.T) {
	_, err := cil.ParseMethodBody([]byte{3<<2 | 0x2, 0x00})
	if !errors.Is(err, errParseBounds) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseFatBody(t *testing.T) {
	code := []byte{0x00, 0x00, 0x2A}
	data := concat(fatHeader(cil.FlagInitLocals, 2, uint32(len(code)), 0x11000001), code)

	body, err := cil.ParseMethodBody(data)
	if err != nil {
		t.Fatalf("ParseMethodBody: %v", err)
	}
	if !body.Fat || !body.InitLocals() {
		t.Errorf("Fat = %v, InitLocals = %v", body.Fat, body.InitLocals())
	}
	if body.MaxStack != 2 {
		t.Errorf("MaxStack = %d", body.MaxStack)
	}
	if body.LocalVarSig != 0x11000001 {
		t.Errorf("LocalVarSig = %s", body.LocalVarSig)
	}
	if !bytes.Equal(body.Code, code) {
		t.Errorf("code = % x", body.Code)
	}
	if len(body.Clauses) != 0 {
		t.Errorf("clauses = %v", body.Clauses)
	}
}

func TestParseFatBodyWithSmallEHSection(t *testing.T) {
	code := []byte{0x00, 0x00, 0x2A}
	data := concat(
		fatHeader(cil.FlagMoreSects|cil.FlagInitLocals, 1, uint32(len(code)), 0),
		code,
		[]byte{0x00},           // pad to 4-byte boundary (12 + 3 + 1)
		[]byte{0x01, 16, 0, 0}, // small EH section, 4 + 12 bytes
		le16(uint16(cil.ClauseCatch)), le16(0), []byte{1}, le16(1), []byte{2},
		le32(0x01000005),
	)

	body, err := cil.ParseMethodBody(data)
	if err != nil {
		t.Fatalf("ParseMethodBody: %v", err)
	}
	want := []cil.ExceptionClause{{
		Kind:          cil.ClauseCatch,
		TryOffset:     0,
		TryLength:     1,
		HandlerOffset: 1,
		HandlerLength: 2,
		ClassToken:    0x01000005,
	}}
	if diff := cmp.Diff(want, body.Clauses); diff != "" {
		t.Errorf("clauses mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFatBodyWithChainedSections(t *testing.T) {
	code := []byte{0x00, 0x00, 0x00, 0x2A}
	data := concat(
		fatHeader(cil.FlagMoreSects, 1, uint32(len(code)), 0),
		code,
		[]byte{0x41 | 0x80, 28, 0, 0}, // fat EH section, more follow
		le32(uint32(cil.ClauseFinally)), le32(0), le32(2), le32(2), le32(2), le32(0),
		[]byte{0x01, 16, 0, 0}, // small EH section, last
		le16(uint16(cil.ClauseFilter)), le16(0), []byte{1}, le16(3), []byte{1},
		le32(2),
	)

	body, err := cil.ParseMethodBody(data)
	if err != nil {
		t.Fatalf("ParseMethodBody: %v", err)
	}
	want := []cil.ExceptionClause{
		{Kind: cil.ClauseFinally, TryOffset: 0, TryLength: 2, HandlerOffset: 2, HandlerLength: 2},
		{Kind: cil.ClauseFilter, TryOffset: 0, TryLength: 1, HandlerOffset: 3, HandlerLength: 1, FilterOffset: 2},
	}
	if diff := cmp.Diff(want, body.Clauses); diff != "" {
		t.Errorf("clauses mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMethodBodyErrors(t *testing.T) {
	tests := []struct {
		target error
		name   string
		data   []byte
	}{
		{name: "empty", data: nil, target: errParseBounds},
		{name: "unknown format", data: []byte{0x00}, target: errParseInvalid},
		{name: "fat header size", data: concat(le16(2<<12|0x3), make([]byte, 10)), target: errParseInvalid},
		{name: "fat header truncated", data: le16(3<<12 | 0x3), target: errParseBounds},
		{name: "fat code truncated", data: concat(fatHeader(0, 1, 100, 0), []byte{0x2A}), target: errParseBounds},
		{
			name:   "section too small",
			data:   concat(fatHeader(cil.FlagMoreSects, 1, 4, 0), []byte{0, 0, 0, 0x2A}, []byte{0x01, 2, 0, 0}),
			target: errParseInvalid,
		},
		{
			name:   "clause size mismatch",
			data:   concat(fatHeader(cil.FlagMoreSects, 1, 4, 0), []byte{0, 0, 0, 0x2A}, []byte{0x01, 10, 0, 0}, make([]byte, 6)),
			target: errParseInvalid,
		},
		{
			name:   "section truncated",
			data:   concat(fatHeader(cil.FlagMoreSects, 1, 4, 0), []byte{0, 0, 0, 0x2A}, []byte{0x01, 16, 0, 0}, make([]byte, 4)),
			target: errParseBounds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cil.ParseMethodBody(tt.data)
			if !errors.Is(err, tt.target) {
				t.Fatalf("err = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestParsedBodyDecodes(t *testing.T) {
	body, err := cil.ParseMethodBody([]byte{3<<2 | 0x2, 0x02, 0x03, 0x2A})
	if err != nil {
		t.Fatalf("ParseMethodBody: %v", err)
	}
	insts, err := cil.Decode(cil.InitOpcodeTable(), body.Code, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var names []string
	for _, inst := range insts {
		names = append(names, inst.Opcode.Name)
	}
	if diff := cmp.Diff([]string{"ldarg.0", "ldarg.1", "ret"}, names); diff != "" {
		t.Errorf("opcodes mismatch (-want +got):\n%s", diff)
	}
}
