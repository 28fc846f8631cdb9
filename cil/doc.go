// Package cil decodes the instruction stream of a single CIL (ECMA-335)
// method body.
//
// # Opcode Table
//
// The canonical instruction set is the static Opcodes slice. It is turned
// into a lookup table once per process by an explicit call:
//
//	table := cil.InitOpcodeTable()
//
// InitOpcodeTable is idempotent and safe to call from several goroutines;
// the returned table is read-only. BuildOpcodeTable builds a table from any
// descriptor set and reports collisions instead of overwriting slots.
//
// # Decoding
//
// A Reader walks one code buffer forward, one instruction per Advance:
//
//	r := cil.NewReader(table, body.Code)
//	for {
//	    ok, err := r.Advance(method)
//	    if err != nil {
//	        return err // truncated stream; fatal for this reader
//	    }
//	    if !ok {
//	        break
//	    }
//	    inst := r.Instruction()
//	    fmt.Println(inst)
//	}
//
// Token operands are resolved through the MethodContext passed to Advance.
// Resolution failures never stop decoding: the instruction reports the raw
// token, a nil Member and the failure in ResolveErr.
//
// # Method Bodies
//
// ParseMethodBody strips the tiny or fat header that precedes the IL
// stream and decodes exception handling clauses:
//
//	body, err := cil.ParseMethodBody(data)
//	insts, err := cil.Decode(table, body.Code, method)
//
// # Switch Operands
//
// By default a switch operand is consumed in full (count followed by count
// 4-byte targets). WithSwitchMode(SwitchCountOnly) consumes only the count
// word, as some older decoders do.
package cil
