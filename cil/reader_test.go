package cil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/pcrain/ilreader/cil"
	ilerrors "github.com/pcrain/ilreader/errors"
)

var errDecodeBounds = &ilerrors.Error{Phase: ilerrors.PhaseDecode, Kind: ilerrors.KindOutOfBounds}

type fakeMember struct {
	Name string
	Tok  cil.Token
}

func (m fakeMember) Token() cil.Token     { return m.Tok }
func (m fakeMember) Kind() cil.MemberKind { return cil.MemberMethod }
func (m fakeMember) String() string       { return m.Name }

type resolveCall struct {
	TypeArgs   []string
	MethodArgs []string
	Tok        cil.Token
}

// fakeModule resolves tokens present in members and records every call.
type fakeModule struct {
	members map[cil.Token]string
	calls   []resolveCall
	panics  bool
}

func (f *fakeModule) ResolveMember(tok cil.Token, typeArgs, methodArgs []string) (cil.Member, error) {
	f.calls = append(f.calls, resolveCall{Tok: tok, TypeArgs: typeArgs, MethodArgs: methodArgs})
	if f.panics {
		panic("runtime inconsistency")
	}
	name, ok := f.members[tok]
	if !ok {
		return nil, ilerrors.NotFound(ilerrors.PhaseResolve, "token", tok.String())
	}
	return fakeMember{Name: name, Tok: tok}, nil
}

func newMethod(mod *fakeModule) cil.Method {
	return cil.Method{Module: mod, TypeArgs: []string{"System.Int32"}, GenericArgs: []string{"System.String"}}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// op joins an opcode encoding with its operand bytes.
func op(code []byte, operands ...[]byte) []byte {
	return concat(append([][]byte{code}, operands...)...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestAdvanceSingleNop(t *testing.T) {
	r := cil.NewReader(cil.InitOpcodeTable(), []byte{0x00})
	m := newMethod(&fakeModule{})

	ok, err := r.Advance(m)
	if err != nil || !ok {
		t.Fatalf("first Advance = %v, %v", ok, err)
	}
	inst := r.Instruction()
	if r.Opcode().Name != "nop" {
		t.Errorf("opcode = %s, want nop", r.Opcode())
	}
	if inst.Length != 1 || len(inst.Operand) != 0 {
		t.Errorf("length = %d, operand = % x", inst.Length, inst.Operand)
	}
	if r.MetadataToken() != 0 || r.Operand() != nil {
		t.Errorf("token = %s, member = %v", r.MetadataToken(), r.Operand())
	}

	ok, err = r.Advance(m)
	if err != nil || ok {
		t.Fatalf("second Advance = %v, %v, want false, nil", ok, err)
	}
	// Exhaustion does not touch the published instruction.
	if r.Instruction().Opcode.Name != "nop" {
		t.Errorf("instruction changed after exhaustion: %s", r.Instruction().Opcode)
	}

	ok, err = r.Advance(m)
	if err != nil || ok {
		t.Fatalf("third Advance = %v, %v, want false, nil", ok, err)
	}
}

func TestAdvanceEmptyBuffer(t *testing.T) {
	r := cil.NewReader(cil.InitOpcodeTable(), nil)
	ok, err := r.Advance(nil)
	if ok || err != nil {
		t.Fatalf("Advance on empty buffer = %v, %v", ok, err)
	}
}

func TestAdvanceFixedWidthStream(t *testing.T) {
	code := concat(
		[]byte{0x00},                       // nop
		op([]byte{0x20}, le32(42)),         // ldc.i4 42
		op([]byte{0x21}, make([]byte, 8)),  // ldc.i8
		op([]byte{0x22}, le32(0x3F800000)), // ldc.r4 1.0
		op([]byte{0x23}, make([]byte, 8)),  // ldc.r8
		[]byte{0x1F, 0xFF},                 // ldc.i4.s -1
		[]byte{0x0E, 0x01},                 // ldarg.s 1
		[]byte{0x13, 0x02},                 // stloc.s 2
		[]byte{0xFE, 0x0C, 0x03, 0x00},     // ldloc 3
		[]byte{0xFE, 0x0B, 0x01, 0x00},     // starg 1
		[]byte{0x2B, 0x00},                 // br.s +0
		op([]byte{0x38}, le32(0)),          // br +0
		[]byte{0xDE, 0x00},                 // leave.s +0
		[]byte{0xFE, 0x12, 0x04},           // unaligned. 4
		[]byte{0xFE, 0x01},                 // ceq
		[]byte{0x2A},                       // ret
	)
	want := []struct {
		name   string
		length int
	}{
		{"nop", 1}, {"ldc.i4", 5}, {"ldc.i8", 9}, {"ldc.r4", 5}, {"ldc.r8", 9},
		{"ldc.i4.s", 2}, {"ldarg.s", 2}, {"stloc.s", 2}, {"ldloc", 4}, {"starg", 4},
		{"br.s", 2}, {"br", 5}, {"leave.s", 2}, {"unaligned.", 3}, {"ceq", 2}, {"ret", 1},
	}

	r := cil.NewReader(cil.InitOpcodeTable(), code)
	m := newMethod(&fakeModule{})
	expectedOffset := 0
	for i, w := range want {
		ok, err := r.Advance(m)
		if err != nil || !ok {
			t.Fatalf("instruction %d (%s): Advance = %v, %v", i, w.name, ok, err)
		}
		inst := r.Instruction()
		if inst.Opcode.Name != w.name {
			t.Errorf("instruction %d: opcode = %s, want %s", i, inst.Opcode, w.name)
		}
		if inst.Offset != expectedOffset {
			t.Errorf("instruction %d: offset = %d, want %d", i, inst.Offset, expectedOffset)
		}
		if inst.Length != w.length {
			t.Errorf("instruction %d (%s): length = %d, want %d", i, w.name, inst.Length, w.length)
		}
		if inst.Token != 0 || inst.Member != nil {
			t.Errorf("instruction %d: unexpected token operand %s", i, inst.Token)
		}
		expectedOffset = inst.Next()
	}

	if r.Position() != len(code) {
		t.Errorf("position = %d, want %d", r.Position(), len(code))
	}
	ok, err := r.Advance(m)
	if ok || err != nil {
		t.Fatalf("Advance at end = %v, %v", ok, err)
	}
}

func TestAdvanceExtendedOpcodeWithFourByteOperand(t *testing.T) {
	tok := cil.NewToken(cil.TableTypeDef, 1)
	code := concat([]byte{0xFE, 0x1C}, le32(uint32(tok))) // sizeof
	mod := &fakeModule{members: map[cil.Token]string{tok: "Demo.Point"}}

	r := cil.NewReader(cil.InitOpcodeTable(), code)
	ok, err := r.Advance(newMethod(mod))
	if err != nil || !ok {
		t.Fatalf("Advance = %v, %v", ok, err)
	}
	inst := r.Instruction()
	if inst.Opcode.Name != "sizeof" || inst.Opcode.Size != 2 {
		t.Errorf("opcode = %s (size %d)", inst.Opcode, inst.Opcode.Size)
	}
	if inst.Size() != 6 || inst.Next() != 6 || r.Position() != 6 {
		t.Errorf("size = %d, next = %d, position = %d, want 6", inst.Size(), inst.Next(), r.Position())
	}
	if inst.Token != tok {
		t.Errorf("token = %s, want %s", inst.Token, tok)
	}
	if inst.Member == nil || inst.Member.String() != "Demo.Point" {
		t.Errorf("member = %v", inst.Member)
	}

	ok, err = r.Advance(newMethod(mod))
	if ok || err != nil {
		t.Fatalf("Advance at end = %v, %v", ok, err)
	}
}

func TestAdvanceResolvesMethodToken(t *testing.T) {
	tok := cil.NewToken(cil.TableMemberRef, 0x12)
	mod := &fakeModule{members: map[cil.Token]string{tok: "System.Console::WriteLine"}}
	code := concat([]byte{0x28}, le32(uint32(tok)), []byte{0x2A})

	r := cil.NewReader(cil.InitOpcodeTable(), code)
	if ok, err := r.Advance(newMethod(mod)); !ok || err != nil {
		t.Fatalf("Advance = %v, %v", ok, err)
	}
	if r.MetadataToken() != tok {
		t.Errorf("token = %s, want %s", r.MetadataToken(), tok)
	}
	if r.Operand() == nil || r.Operand().String() != "System.Console::WriteLine" {
		t.Errorf("member = %v", r.Operand())
	}
	if !r.Instruction().Resolved() {
		t.Error("Resolved() = false")
	}

	want := []resolveCall{{Tok: tok, TypeArgs: []string{"System.Int32"}, MethodArgs: []string{"System.String"}}}
	if diff := cmp.Diff(want, mod.calls); diff != "" {
		t.Errorf("resolve calls mismatch (-want +got):\n%s", diff)
	}
}

func TestAdvanceConstructorPassesNoMethodArgs(t *testing.T) {
	tok := cil.NewToken(cil.TableMethodDef, 3)
	mod := &fakeModule{members: map[cil.Token]string{tok: "Demo::.ctor"}}
	m := cil.Method{Module: mod, TypeArgs: []string{"T0"}, GenericArgs: []string{"ignored"}, Constructor: true}

	if _, err := cil.Decode(cil.InitOpcodeTable(), concat([]byte{0x73}, le32(uint32(tok))), m); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(mod.calls) != 1 {
		t.Fatalf("resolve calls = %d, want 1", len(mod.calls))
	}
	if mod.calls[0].MethodArgs != nil {
		t.Errorf("constructor passed method args %v", mod.calls[0].MethodArgs)
	}
	if diff := cmp.Diff([]string{"T0"}, mod.calls[0].TypeArgs); diff != "" {
		t.Errorf("type args mismatch (-want +got):\n%s", diff)
	}
}

func TestAdvanceUnresolvableToken(t *testing.T) {
	bad := cil.Token(0x0A00FFFF)
	code := concat([]byte{0x28}, le32(uint32(bad)), []byte{0x2A})
	mod := &fakeModule{members: map[cil.Token]string{}}

	insts, err := cil.Decode(cil.InitOpcodeTable(), code, newMethod(mod))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(insts) != 2 {
		t.Fatalf("decoded %d instructions, want 2", len(insts))
	}
	call := insts[0]
	if call.Token != bad {
		t.Errorf("token = %s, want %s", call.Token, bad)
	}
	if call.Member != nil {
		t.Errorf("member = %v, want nil", call.Member)
	}
	if !errors.Is(call.ResolveErr, &ilerrors.Error{Phase: ilerrors.PhaseResolve, Kind: ilerrors.KindNotFound}) {
		t.Errorf("ResolveErr = %v", call.ResolveErr)
	}
	if insts[1].Opcode.Name != "ret" {
		t.Errorf("decoding did not continue past unresolved token: %s", insts[1].Opcode)
	}
}

func TestAdvanceResolverPanicIsContained(t *testing.T) {
	code := concat([]byte{0x28}, le32(0x06000001))
	mod := &fakeModule{panics: true}

	insts, err := cil.Decode(cil.InitOpcodeTable(), code, newMethod(mod))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if insts[0].Member != nil || insts[0].ResolveErr == nil {
		t.Errorf("member = %v, err = %v", insts[0].Member, insts[0].ResolveErr)
	}
	if insts[0].Token != 0x06000001 {
		t.Errorf("token = %s", insts[0].Token)
	}
}

func TestAdvanceWithoutContext(t *testing.T) {
	code := concat([]byte{0x28}, le32(0x06000001))
	insts, err := cil.Decode(cil.InitOpcodeTable(), code, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if insts[0].Member != nil || insts[0].ResolveErr == nil {
		t.Errorf("member = %v, err = %v", insts[0].Member, insts[0].ResolveErr)
	}

	// A Method with no module fails resolution the same way.
	insts, err = cil.Decode(cil.InitOpcodeTable(), code, cil.Method{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if insts[0].Member != nil || insts[0].ResolveErr == nil {
		t.Errorf("member = %v, err = %v", insts[0].Member, insts[0].ResolveErr)
	}
}

func TestAdvanceTruncatedOperand(t *testing.T) {
	code := []byte{0x00, 0x20, 0x01, 0x02} // nop; ldc.i4 with 2 of 4 bytes
	r := cil.NewReader(cil.InitOpcodeTable(), code)
	m := newMethod(&fakeModule{})

	if ok, err := r.Advance(m); !ok || err != nil {
		t.Fatalf("first Advance = %v, %v", ok, err)
	}

	ok, err := r.Advance(m)
	if ok {
		t.Fatal("Advance succeeded on truncated operand")
	}
	if !errors.Is(err, errDecodeBounds) {
		t.Fatalf("err = %v, want decode out_of_bounds", err)
	}
	var e *ilerrors.Error
	if errors.As(err, &e) {
		if e.Offset != 2 {
			t.Errorf("error offset = %d, want 2", e.Offset)
		}
		if len(e.Path) == 0 || e.Path[len(e.Path)-1] != "ldc.i4" {
			t.Errorf("error path = %v, want ldc.i4", e.Path)
		}
	}

	// Published state is untouched and the error is sticky.
	if r.Instruction().Opcode.Name != "nop" {
		t.Errorf("published instruction = %s, want nop", r.Instruction().Opcode)
	}
	ok, again := r.Advance(m)
	if ok || again != err {
		t.Errorf("Advance after failure = %v, %v", ok, again)
	}
	if r.Err() != err {
		t.Errorf("Err() = %v", r.Err())
	}
}

func TestAdvanceTruncatedToken(t *testing.T) {
	code := []byte{0x28, 0x01, 0x00, 0x00}
	mod := &fakeModule{}
	_, err := cil.Decode(cil.InitOpcodeTable(), code, newMethod(mod))
	if !errors.Is(err, errDecodeBounds) {
		t.Fatalf("err = %v", err)
	}
	if len(mod.calls) != 0 {
		t.Errorf("resolver called %d times on a truncated token", len(mod.calls))
	}
}

func TestAdvanceTruncatedExtendedPrefix(t *testing.T) {
	_, err := cil.Decode(cil.InitOpcodeTable(), []byte{0x00, 0xFE}, nil)
	if !errors.Is(err, errDecodeBounds) {
		t.Fatalf("err = %v", err)
	}
}

func TestAdvanceUnpopulatedSlots(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		length int
	}{
		{name: "unused single", code: []byte{0x24}, length: 1},
		{name: "beyond single table", code: []byte{0xE1}, length: 1},
		{name: "unused extended", code: []byte{0xFE, 0x08}, length: 2},
		{name: "beyond extended table", code: []byte{0xFE, 0x40}, length: 2},
		{name: "0xFF takes extended path", code: []byte{0xFF, 0x01}, length: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insts, err := cil.Decode(cil.InitOpcodeTable(), tt.code, nil)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(insts) != 1 {
				t.Fatalf("decoded %d instructions, want 1", len(insts))
			}
			if tt.name != "0xFF takes extended path" && insts[0].Opcode.Valid() {
				t.Errorf("opcode = %s, want invalid", insts[0].Opcode)
			}
			if insts[0].Length != tt.length {
				t.Errorf("length = %d, want %d", insts[0].Length, tt.length)
			}
		})
	}
}

func TestSwitchModes(t *testing.T) {
	code := concat(
		op([]byte{0x45}, le32(2), le32(1), le32(2)), // switch (2 targets)
		[]byte{0x2A},                                // ret
	)

	t.Run("table", func(t *testing.T) {
		insts, err := cil.Decode(cil.InitOpcodeTable(), code, nil)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(insts) != 2 {
			t.Fatalf("decoded %d instructions, want 2", len(insts))
		}
		if insts[0].Length != 13 || len(insts[0].Operand) != 12 {
			t.Errorf("switch length = %d, operand = %d bytes", insts[0].Length, len(insts[0].Operand))
		}
		if insts[1].Opcode.Name != "ret" || insts[1].Offset != 13 {
			t.Errorf("second instruction = %s at %d", insts[1].Opcode, insts[1].Offset)
		}
	})

	t.Run("count only", func(t *testing.T) {
		// Targets are decoded as instructions: the stream misaligns.
		insts, err := cil.Decode(cil.InitOpcodeTable(), code, nil, cil.WithSwitchMode(cil.SwitchCountOnly))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		var names []string
		for _, inst := range insts {
			names = append(names, inst.Opcode.Name)
		}
		want := []string{"switch", "break", "nop", "nop", "nop", "ldarg.0", "nop", "nop", "nop", "ret"}
		if diff := cmp.Diff(want, names); diff != "" {
			t.Errorf("decoded opcodes mismatch (-want +got):\n%s", diff)
		}
		if insts[0].Length != 5 {
			t.Errorf("switch length = %d, want 5", insts[0].Length)
		}
	})

	t.Run("count exceeds body", func(t *testing.T) {
		bad := concat([]byte{0x45}, le32(0xFFFFFFFF), le32(0))
		_, err := cil.Decode(cil.InitOpcodeTable(), bad, nil)
		if !errors.Is(err, errDecodeBounds) {
			t.Fatalf("err = %v, want decode out_of_bounds", err)
		}
	})
}

func TestTokenScopes(t *testing.T) {
	field := cil.NewToken(cil.TableFieldDef, 1)
	str := cil.NewToken(cil.TableUserString, 0x10)
	method := cil.NewToken(cil.TableMethodDef, 2)
	code := concat(
		op([]byte{0x7B}, le32(uint32(field))),  // ldfld
		op([]byte{0x72}, le32(uint32(str))),    // ldstr
		op([]byte{0x28}, le32(uint32(method))), // call
	)
	members := map[cil.Token]string{field: "Demo::count", method: "Demo::Run"}

	t.Run("members", func(t *testing.T) {
		mod := &fakeModule{members: members}
		insts, err := cil.Decode(cil.InitOpcodeTable(), code, newMethod(mod))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if insts[0].Token != field || insts[0].Member == nil {
			t.Errorf("ldfld token = %s, member = %v", insts[0].Token, insts[0].Member)
		}
		if insts[1].Token != str || insts[1].Member != nil || insts[1].ResolveErr != nil {
			t.Errorf("ldstr token = %s, member = %v, err = %v", insts[1].Token, insts[1].Member, insts[1].ResolveErr)
		}
		if insts[2].Token != method || insts[2].Member == nil {
			t.Errorf("call token = %s, member = %v", insts[2].Token, insts[2].Member)
		}
		if len(mod.calls) != 2 {
			t.Errorf("resolve calls = %d, want 2", len(mod.calls))
		}
	})

	t.Run("methods", func(t *testing.T) {
		mod := &fakeModule{members: members}
		insts, err := cil.Decode(cil.InitOpcodeTable(), code, newMethod(mod), cil.WithTokenScope(cil.TokenScopeMethods))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		for i := 0; i < 2; i++ {
			if insts[i].Token != 0 || insts[i].Member != nil || insts[i].Length != 5 {
				t.Errorf("instruction %d: token = %s, member = %v, length = %d", i, insts[i].Token, insts[i].Member, insts[i].Length)
			}
		}
		if insts[2].Token != method || insts[2].Member == nil {
			t.Errorf("call token = %s, member = %v", insts[2].Token, insts[2].Member)
		}
		if len(mod.calls) != 1 {
			t.Errorf("resolve calls = %d, want 1", len(mod.calls))
		}
	})
}

func TestDecodeIdempotent(t *testing.T) {
	known := cil.NewToken(cil.TableMethodDef, 1)
	code := concat(
		[]byte{0x02},                          // ldarg.0
		op([]byte{0x28}, le32(uint32(known))), // call known
		op([]byte{0x28}, le32(0x0A00FFFF)),    // call unknown
		op([]byte{0x45}, le32(1), le32(0)),    // switch
		[]byte{0x2C, 0x00},                    // brfalse.s
		[]byte{0x2A},                          // ret
	)
	mod := &fakeModule{members: map[cil.Token]string{known: "Demo::Run"}}
	table := cil.InitOpcodeTable()

	first, err := cil.Decode(table, code, newMethod(mod))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := cil.Decode(table, code, newMethod(mod))
		if err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if diff := cmp.Diff(first, again, cmpopts.EquateErrors()); diff != "" {
			t.Fatalf("decode %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestInstructionString(t *testing.T) {
	tok := cil.NewToken(cil.TableMethodDef, 1)
	mod := &fakeModule{members: map[cil.Token]string{tok: "Demo::Run"}}
	code := concat([]byte{0x00}, []byte{0x28}, le32(uint32(tok)), []byte{0x28}, le32(0x06000009))

	insts, err := cil.Decode(cil.InitOpcodeTable(), code, newMethod(mod))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{
		"IL_0000: nop",
		"IL_0001: call Demo::Run",
		"IL_0006: call 0x06000009",
	}
	for i, w := range want {
		if got := fmt.Sprint(insts[i]); got != w {
			t.Errorf("instruction %d = %q, want %q", i, got, w)
		}
	}
}

func TestToken(t *testing.T) {
	tok := cil.NewToken(cil.TableMemberRef, 0x123456)
	if tok != 0x0A123456 {
		t.Errorf("NewToken = %s", tok)
	}
	if tok.Table() != cil.TableMemberRef || tok.Table().String() != "MemberRef" {
		t.Errorf("Table = %s", tok.Table())
	}
	if tok.RID() != 0x123456 {
		t.Errorf("RID = 0x%x", tok.RID())
	}
	if tok.IsNil() || !cil.NewToken(cil.TableTypeDef, 0).IsNil() {
		t.Error("IsNil mismatch")
	}
	if tok.String() != "0x0a123456" {
		t.Errorf("String = %q", tok.String())
	}
}
