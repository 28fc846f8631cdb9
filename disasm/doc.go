// Package disasm renders decoded CIL method bodies as ildasm-style
// listings.
//
//	body, _ := cil.ParseMethodBody(data)
//	l, err := disasm.Disassemble(cil.InitOpcodeTable(), body, method)
//	disasm.WriteText(os.Stdout, l, disasm.DefaultStyle(nil))
//
// A Listing can also be exported as YAML or canonical CBOR. Operands that
// failed to resolve keep their raw token and record the reason in
// Line.Unresolved.
package disasm
