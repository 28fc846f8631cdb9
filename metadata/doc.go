// Package metadata provides a manifest-backed owning module for CIL method
// bodies.
//
// A manifest declares the members that token operands refer to and the
// method bodies to decode. It is written in TOML or YAML:
//
//	name = "Demo.dll"
//
//	[[member]]
//	token = 0x0A000001
//	kind = "method"
//	declaring_type = "System.Collections.Generic.List`1<!0>"
//	name = "Add"
//	signature = "void(!0)"
//
//	[[method]]
//	name = "Demo::Run"
//	token = 0x06000001
//	declaring_type_args = ["System.Int32"]
//	body = "1E 02 28010000 0A 2A"
//
// Member kinds are method, constructor, field and type. The token table must
// match the kind. Bodies are hex with the tiny or fat header included;
// whitespace inside the string is ignored.
//
// Module implements cil.Resolver. Generic placeholders !N and !!N in a
// member are replaced with the declaring type's and the method's generic
// arguments on resolution:
//
//	mod, err := metadata.Load("demo.toml")
//	entry, err := mod.Method("Demo::Run")
//	body, err := entry.Body()
//	insts, err := cil.Decode(cil.InitOpcodeTable(), body.Code, entry.Context(mod))
package metadata
