// Package ilreader decodes the bytecode of CIL (ECMA-335) method bodies.
//
// # Architecture Overview
//
//	ilreader/
//	├── cil/          Opcode table, instruction reader, method body headers
//	├── metadata/     Manifest-backed owning module and token resolution
//	├── disasm/       ildasm-style listings with text, YAML and CBOR output
//	├── errors/       Structured error types for debugging
//	└── cmd/ildump/   Command line disassembler with an interactive viewer
//
// # Quick Start
//
// Decode a method body and print each instruction:
//
//	table := cil.InitOpcodeTable()
//	body, err := cil.ParseMethodBody(data)
//	if err != nil {
//	    return err
//	}
//	r := cil.NewReader(table, body.Code)
//	for {
//	    ok, err := r.Advance(method)
//	    if err != nil {
//	        return err
//	    }
//	    if !ok {
//	        break
//	    }
//	    fmt.Println(r.Instruction())
//	}
//
// Token operands resolve through a cil.MethodContext. metadata.Module
// provides one backed by a TOML or YAML manifest:
//
//	mod, err := metadata.Load("demo.toml")
//	entry, err := mod.Method("Demo::Run")
//	l, err := disasm.Disassemble(table, body, entry.Context(mod))
//	disasm.WriteText(os.Stdout, l, nil)
//
// # Error Handling
//
// Errors are *errors.Error values carrying a phase, a kind and the byte
// offset in the instruction stream:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindOutOfBounds}) {
//	    // truncated instruction stream
//	}
//
// A token that cannot be resolved is not an error: the instruction keeps
// its raw token and reports a nil member.
//
// # Logging
//
// Packages that log use zap and default to a no-op logger. Install one
// with cil.SetLogger and metadata.SetLogger.
package ilreader
