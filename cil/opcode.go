package cil

import "fmt"

// OperandKind describes the bytes that immediately follow an opcode.
type OperandKind uint8

const (
	InlineNone OperandKind = iota
	ShortInlineBrTarget
	ShortInlineI
	ShortInlineR
	ShortInlineVar
	InlineVar
	InlineI
	InlineI8
	InlineR
	InlineBrTarget
	InlineField
	InlineMethod
	InlineSig
	InlineString
	InlineSwitch
	InlineTok
	InlineType
	InlinePhi // obsolete; no canonical opcode carries it
)

var operandKindNames = [...]string{
	InlineNone:          "InlineNone",
	ShortInlineBrTarget: "ShortInlineBrTarget",
	ShortInlineI:        "ShortInlineI",
	ShortInlineR:        "ShortInlineR",
	ShortInlineVar:      "ShortInlineVar",
	InlineVar:           "InlineVar",
	InlineI:             "InlineI",
	InlineI8:            "InlineI8",
	InlineR:             "InlineR",
	InlineBrTarget:      "InlineBrTarget",
	InlineField:         "InlineField",
	InlineMethod:        "InlineMethod",
	InlineSig:           "InlineSig",
	InlineString:        "InlineString",
	InlineSwitch:        "InlineSwitch",
	InlineTok:           "InlineTok",
	InlineType:          "InlineType",
	InlinePhi:           "InlinePhi",
}

func (k OperandKind) String() string {
	if int(k) < len(operandKindNames) {
		return operandKindNames[k]
	}
	return fmt.Sprintf("OperandKind(%d)", uint8(k))
}

// Size returns the fixed operand width in bytes. InlineSwitch reports the
// width of its count word only; unknown kinds report 0.
func (k OperandKind) Size() int {
	switch k {
	case ShortInlineBrTarget, ShortInlineI, ShortInlineVar:
		return 1
	case InlineVar:
		return 2
	case InlineBrTarget, InlineField, InlineI, InlineMethod, InlineSig,
		InlineString, InlineSwitch, InlineTok, InlineType, ShortInlineR:
		return 4
	case InlineI8, InlineR:
		return 8
	default:
		return 0
	}
}

// IsToken reports whether the operand is a 4-byte metadata token.
func (k OperandKind) IsToken() bool {
	switch k {
	case InlineField, InlineMethod, InlineSig, InlineString, InlineTok, InlineType:
		return true
	}
	return false
}

// IsBranch reports whether the operand is a branch displacement.
func (k OperandKind) IsBranch() bool {
	return k == ShortInlineBrTarget || k == InlineBrTarget
}

// OpcodeType classifies an opcode the way the runtime's own opcode
// enumeration does. Internal opcodes exist only for tooling.
type OpcodeType uint8

const (
	Primitive OpcodeType = iota
	Macro
	Prefix
	ObjModel
	Internal
)

func (t OpcodeType) String() string {
	switch t {
	case Primitive:
		return "primitive"
	case Macro:
		return "macro"
	case Prefix:
		return "prefix"
	case ObjModel:
		return "objmodel"
	case Internal:
		return "internal"
	}
	return fmt.Sprintf("OpcodeType(%d)", uint8(t))
}

// FlowControl describes how an instruction affects control flow.
type FlowControl uint8

const (
	FlowNext FlowControl = iota
	FlowBranch
	FlowCondBranch
	FlowCall
	FlowReturn
	FlowThrow
	FlowBreak
	FlowMeta
)

func (f FlowControl) String() string {
	switch f {
	case FlowNext:
		return "next"
	case FlowBranch:
		return "branch"
	case FlowCondBranch:
		return "cond-branch"
	case FlowCall:
		return "call"
	case FlowReturn:
		return "return"
	case FlowThrow:
		return "throw"
	case FlowBreak:
		return "break"
	case FlowMeta:
		return "meta"
	}
	return fmt.Sprintf("FlowControl(%d)", uint8(f))
}

// ExtendedPrefix is the first byte of every two-byte opcode.
const ExtendedPrefix = 0xFE

// Opcode describes one instruction of the canonical instruction set.
type Opcode struct {
	Name    string
	Value   uint16 // 0x00..0xFF for one-byte opcodes, 0xFE00|b for two-byte ones
	Size    uint8
	Operand OperandKind
	Type    OpcodeType
	Flow    FlowControl
}

// Valid reports whether o came from a populated table slot.
func (o Opcode) Valid() bool {
	return o.Size != 0
}

// OperandSize returns the fixed operand width of the opcode.
func (o Opcode) OperandSize() int {
	return o.Operand.Size()
}

func (o Opcode) String() string {
	if !o.Valid() {
		return "<invalid>"
	}
	return o.Name
}

// Encoding returns the opcode's byte encoding.
func (o Opcode) Encoding() []byte {
	if o.Size == 2 {
		return []byte{byte(o.Value >> 8), byte(o.Value)}
	}
	return []byte{byte(o.Value)}
}

func op1(name string, value byte, operand OperandKind, typ OpcodeType, flow FlowControl) Opcode {
	return Opcode{Name: name, Value: uint16(value), Size: 1, Operand: operand, Type: typ, Flow: flow}
}

func op2(name string, value byte, operand OperandKind, typ OpcodeType, flow FlowControl) Opcode {
	return Opcode{Name: name, Value: ExtendedPrefix<<8 | uint16(value), Size: 2, Operand: operand, Type: typ, Flow: flow}
}

// Opcodes is the canonical ECMA-335 instruction set, including the
// internal prefix pseudo-opcodes that never appear in real streams.
var Opcodes = []Opcode{
	op1("nop", 0x00, InlineNone, Primitive, FlowNext),
	op1("break", 0x01, InlineNone, Primitive, FlowBreak),
	op1("ldarg.0", 0x02, InlineNone, Macro, FlowNext),
	op1("ldarg.1", 0x03, InlineNone, Macro, FlowNext),
	op1("ldarg.2", 0x04, InlineNone, Macro, FlowNext),
	op1("ldarg.3", 0x05, InlineNone, Macro, FlowNext),
	op1("ldloc.0", 0x06, InlineNone, Macro, FlowNext),
	op1("ldloc.1", 0x07, InlineNone, Macro, FlowNext),
	op1("ldloc.2", 0x08, InlineNone, Macro, FlowNext),
	op1("ldloc.3", 0x09, InlineNone, Macro, FlowNext),
	op1("stloc.0", 0x0A, InlineNone, Macro, FlowNext),
	op1("stloc.1", 0x0B, InlineNone, Macro, FlowNext),
	op1("stloc.2", 0x0C, InlineNone, Macro, FlowNext),
	op1("stloc.3", 0x0D, InlineNone, Macro, FlowNext),
	op1("ldarg.s", 0x0E, ShortInlineVar, Macro, FlowNext),
	op1("ldarga.s", 0x0F, ShortInlineVar, Macro, FlowNext),
	op1("starg.s", 0x10, ShortInlineVar, Macro, FlowNext),
	op1("ldloc.s", 0x11, ShortInlineVar, Macro, FlowNext),
	op1("ldloca.s", 0x12, ShortInlineVar, Macro, FlowNext),
	op1("stloc.s", 0x13, ShortInlineVar, Macro, FlowNext),
	op1("ldnull", 0x14, InlineNone, Primitive, FlowNext),
	op1("ldc.i4.m1", 0x15, InlineNone, Macro, FlowNext),
	op1("ldc.i4.0", 0x16, InlineNone, Macro, FlowNext),
	op1("ldc.i4.1", 0x17, InlineNone, Macro, FlowNext),
	op1("ldc.i4.2", 0x18, InlineNone, Macro, FlowNext),
	op1("ldc.i4.3", 0x19, InlineNone, Macro, FlowNext),
	op1("ldc.i4.4", 0x1A, InlineNone, Macro, FlowNext),
	op1("ldc.i4.5", 0x1B, InlineNone, Macro, FlowNext),
	op1("ldc.i4.6", 0x1C, InlineNone, Macro, FlowNext),
	op1("ldc.i4.7", 0x1D, InlineNone, Macro, FlowNext),
	op1("ldc.i4.8", 0x1E, InlineNone, Macro, FlowNext),
	op1("ldc.i4.s", 0x1F, ShortInlineI, Macro, FlowNext),
	op1("ldc.i4", 0x20, InlineI, Primitive, FlowNext),
	op1("ldc.i8", 0x21, InlineI8, Primitive, FlowNext),
	op1("ldc.r4", 0x22, ShortInlineR, Primitive, FlowNext),
	op1("ldc.r8", 0x23, InlineR, Primitive, FlowNext),
	op1("dup", 0x25, InlineNone, Primitive, FlowNext),
	op1("pop", 0x26, InlineNone, Primitive, FlowNext),
	op1("jmp", 0x27, InlineMethod, Primitive, FlowCall),
	op1("call", 0x28, InlineMethod, Primitive, FlowCall),
	op1("calli", 0x29, InlineSig, Primitive, FlowCall),
	op1("ret", 0x2A, InlineNone, Primitive, FlowReturn),
	op1("br.s", 0x2B, ShortInlineBrTarget, Macro, FlowBranch),
	op1("brfalse.s", 0x2C, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("brtrue.s", 0x2D, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("beq.s", 0x2E, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("bge.s", 0x2F, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("bgt.s", 0x30, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("ble.s", 0x31, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("blt.s", 0x32, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("bne.un.s", 0x33, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("bge.un.s", 0x34, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("bgt.un.s", 0x35, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("ble.un.s", 0x36, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("blt.un.s", 0x37, ShortInlineBrTarget, Macro, FlowCondBranch),
	op1("br", 0x38, InlineBrTarget, Primitive, FlowBranch),
	op1("brfalse", 0x39, InlineBrTarget, Primitive, FlowCondBranch),
	op1("brtrue", 0x3A, InlineBrTarget, Primitive, FlowCondBranch),
	op1("beq", 0x3B, InlineBrTarget, Macro, FlowCondBranch),
	op1("bge", 0x3C, InlineBrTarget, Macro, FlowCondBranch),
	op1("bgt", 0x3D, InlineBrTarget, Macro, FlowCondBranch),
	op1("ble", 0x3E, InlineBrTarget, Macro, FlowCondBranch),
	op1("blt", 0x3F, InlineBrTarget, Macro, FlowCondBranch),
	op1("bne.un", 0x40, InlineBrTarget, Macro, FlowCondBranch),
	op1("bge.un", 0x41, InlineBrTarget, Macro, FlowCondBranch),
	op1("bgt.un", 0x42, InlineBrTarget, Macro, FlowCondBranch),
	op1("ble.un", 0x43, InlineBrTarget, Macro, FlowCondBranch),
	op1("blt.un", 0x44, InlineBrTarget, Macro, FlowCondBranch),
	op1("switch", 0x45, InlineSwitch, Primitive, FlowCondBranch),
	op1("ldind.i1", 0x46, InlineNone, Primitive, FlowNext),
	op1("ldind.u1", 0x47, InlineNone, Primitive, FlowNext),
	op1("ldind.i2", 0x48, InlineNone, Primitive, FlowNext),
	op1("ldind.u2", 0x49, InlineNone, Primitive, FlowNext),
	op1("ldind.i4", 0x4A, InlineNone, Primitive, FlowNext),
	op1("ldind.u4", 0x4B, InlineNone, Primitive, FlowNext),
	op1("ldind.i8", 0x4C, InlineNone, Primitive, FlowNext),
	op1("ldind.i", 0x4D, InlineNone, Primitive, FlowNext),
	op1("ldind.r4", 0x4E, InlineNone, Primitive, FlowNext),
	op1("ldind.r8", 0x4F, InlineNone, Primitive, FlowNext),
	op1("ldind.ref", 0x50, InlineNone, Primitive, FlowNext),
	op1("stind.ref", 0x51, InlineNone, Primitive, FlowNext),
	op1("stind.i1", 0x52, InlineNone, Primitive, FlowNext),
	op1("stind.i2", 0x53, InlineNone, Primitive, FlowNext),
	op1("stind.i4", 0x54, InlineNone, Primitive, FlowNext),
	op1("stind.i8", 0x55, InlineNone, Primitive, FlowNext),
	op1("stind.r4", 0x56, InlineNone, Primitive, FlowNext),
	op1("stind.r8", 0x57, InlineNone, Primitive, FlowNext),
	op1("add", 0x58, InlineNone, Primitive, FlowNext),
	op1("sub", 0x59, InlineNone, Primitive, FlowNext),
	op1("mul", 0x5A, InlineNone, Primitive, FlowNext),
	op1("div", 0x5B, InlineNone, Primitive, FlowNext),
	op1("div.un", 0x5C, InlineNone, Primitive, FlowNext),
	op1("rem", 0x5D, InlineNone, Primitive, FlowNext),
	op1("rem.un", 0x5E, InlineNone, Primitive, FlowNext),
	op1("and", 0x5F, InlineNone, Primitive, FlowNext),
	op1("or", 0x60, InlineNone, Primitive, FlowNext),
	op1("xor", 0x61, InlineNone, Primitive, FlowNext),
	op1("shl", 0x62, InlineNone, Primitive, FlowNext),
	op1("shr", 0x63, InlineNone, Primitive, FlowNext),
	op1("shr.un", 0x64, InlineNone, Primitive, FlowNext),
	op1("neg", 0x65, InlineNone, Primitive, FlowNext),
	op1("not", 0x66, InlineNone, Primitive, FlowNext),
	op1("conv.i1", 0x67, InlineNone, Primitive, FlowNext),
	op1("conv.i2", 0x68, InlineNone, Primitive, FlowNext),
	op1("conv.i4", 0x69, InlineNone, Primitive, FlowNext),
	op1("conv.i8", 0x6A, InlineNone, Primitive, FlowNext),
	op1("conv.r4", 0x6B, InlineNone, Primitive, FlowNext),
	op1("conv.r8", 0x6C, InlineNone, Primitive, FlowNext),
	op1("conv.u4", 0x6D, InlineNone, Primitive, FlowNext),
	op1("conv.u8", 0x6E, InlineNone, Primitive, FlowNext),
	op1("callvirt", 0x6F, InlineMethod, ObjModel, FlowCall),
	op1("cpobj", 0x70, InlineType, ObjModel, FlowNext),
	op1("ldobj", 0x71, InlineType, ObjModel, FlowNext),
	op1("ldstr", 0x72, InlineString, ObjModel, FlowNext),
	op1("newobj", 0x73, InlineMethod, ObjModel, FlowCall),
	op1("castclass", 0x74, InlineType, ObjModel, FlowNext),
	op1("isinst", 0x75, InlineType, ObjModel, FlowNext),
	op1("conv.r.un", 0x76, InlineNone, Primitive, FlowNext),
	op1("unbox", 0x79, InlineType, Primitive, FlowNext),
	op1("throw", 0x7A, InlineNone, ObjModel, FlowThrow),
	op1("ldfld", 0x7B, InlineField, ObjModel, FlowNext),
	op1("ldflda", 0x7C, InlineField, ObjModel, FlowNext),
	op1("stfld", 0x7D, InlineField, ObjModel, FlowNext),
	op1("ldsfld", 0x7E, InlineField, ObjModel, FlowNext),
	op1("ldsflda", 0x7F, InlineField, ObjModel, FlowNext),
	op1("stsfld", 0x80, InlineField, ObjModel, FlowNext),
	op1("stobj", 0x81, InlineType, Primitive, FlowNext),
	op1("conv.ovf.i1.un", 0x82, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.i2.un", 0x83, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.i4.un", 0x84, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.i8.un", 0x85, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.u1.un", 0x86, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.u2.un", 0x87, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.u4.un", 0x88, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.u8.un", 0x89, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.i.un", 0x8A, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.u.un", 0x8B, InlineNone, Primitive, FlowNext),
	op1("box", 0x8C, InlineType, Primitive, FlowNext),
	op1("newarr", 0x8D, InlineType, ObjModel, FlowNext),
	op1("ldlen", 0x8E, InlineNone, ObjModel, FlowNext),
	op1("ldelema", 0x8F, InlineType, ObjModel, FlowNext),
	op1("ldelem.i1", 0x90, InlineNone, ObjModel, FlowNext),
	op1("ldelem.u1", 0x91, InlineNone, ObjModel, FlowNext),
	op1("ldelem.i2", 0x92, InlineNone, ObjModel, FlowNext),
	op1("ldelem.u2", 0x93, InlineNone, ObjModel, FlowNext),
	op1("ldelem.i4", 0x94, InlineNone, ObjModel, FlowNext),
	op1("ldelem.u4", 0x95, InlineNone, ObjModel, FlowNext),
	op1("ldelem.i8", 0x96, InlineNone, ObjModel, FlowNext),
	op1("ldelem.i", 0x97, InlineNone, ObjModel, FlowNext),
	op1("ldelem.r4", 0x98, InlineNone, ObjModel, FlowNext),
	op1("ldelem.r8", 0x99, InlineNone, ObjModel, FlowNext),
	op1("ldelem.ref", 0x9A, InlineNone, ObjModel, FlowNext),
	op1("stelem.i", 0x9B, InlineNone, ObjModel, FlowNext),
	op1("stelem.i1", 0x9C, InlineNone, ObjModel, FlowNext),
	op1("stelem.i2", 0x9D, InlineNone, ObjModel, FlowNext),
	op1("stelem.i4", 0x9E, InlineNone, ObjModel, FlowNext),
	op1("stelem.i8", 0x9F, InlineNone, ObjModel, FlowNext),
	op1("stelem.r4", 0xA0, InlineNone, ObjModel, FlowNext),
	op1("stelem.r8", 0xA1, InlineNone, ObjModel, FlowNext),
	op1("stelem.ref", 0xA2, InlineNone, ObjModel, FlowNext),
	op1("ldelem", 0xA3, InlineType, ObjModel, FlowNext),
	op1("stelem", 0xA4, InlineType, ObjModel, FlowNext),
	op1("unbox.any", 0xA5, InlineType, ObjModel, FlowNext),
	op1("conv.ovf.i1", 0xB3, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.u1", 0xB4, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.i2", 0xB5, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.u2", 0xB6, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.i4", 0xB7, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.u4", 0xB8, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.i8", 0xB9, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.u8", 0xBA, InlineNone, Primitive, FlowNext),
	op1("refanyval", 0xC2, InlineType, Primitive, FlowNext),
	op1("ckfinite", 0xC3, InlineNone, Primitive, FlowNext),
	op1("mkrefany", 0xC6, InlineType, Primitive, FlowNext),
	op1("ldtoken", 0xD0, InlineTok, Primitive, FlowNext),
	op1("conv.u2", 0xD1, InlineNone, Primitive, FlowNext),
	op1("conv.u1", 0xD2, InlineNone, Primitive, FlowNext),
	op1("conv.i", 0xD3, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.i", 0xD4, InlineNone, Primitive, FlowNext),
	op1("conv.ovf.u", 0xD5, InlineNone, Primitive, FlowNext),
	op1("add.ovf", 0xD6, InlineNone, Primitive, FlowNext),
	op1("add.ovf.un", 0xD7, InlineNone, Primitive, FlowNext),
	op1("mul.ovf", 0xD8, InlineNone, Primitive, FlowNext),
	op1("mul.ovf.un", 0xD9, InlineNone, Primitive, FlowNext),
	op1("sub.ovf", 0xDA, InlineNone, Primitive, FlowNext),
	op1("sub.ovf.un", 0xDB, InlineNone, Primitive, FlowNext),
	op1("endfinally", 0xDC, InlineNone, Primitive, FlowReturn),
	op1("leave", 0xDD, InlineBrTarget, Primitive, FlowBranch),
	op1("leave.s", 0xDE, ShortInlineBrTarget, Primitive, FlowBranch),
	op1("stind.i", 0xDF, InlineNone, Primitive, FlowNext),
	op1("conv.u", 0xE0, InlineNone, Primitive, FlowNext),

	// Tooling-only prefixes. They share byte values with real encodings
	// (0xFE is the extended escape) and are never placed in the table.
	op1("prefix7", 0xF8, InlineNone, Internal, FlowMeta),
	op1("prefix6", 0xF9, InlineNone, Internal, FlowMeta),
	op1("prefix5", 0xFA, InlineNone, Internal, FlowMeta),
	op1("prefix4", 0xFB, InlineNone, Internal, FlowMeta),
	op1("prefix3", 0xFC, InlineNone, Internal, FlowMeta),
	op1("prefix2", 0xFD, InlineNone, Internal, FlowMeta),
	op1("prefix1", 0xFE, InlineNone, Internal, FlowMeta),
	op1("prefixref", 0xFF, InlineNone, Internal, FlowMeta),

	op2("arglist", 0x00, InlineNone, Primitive, FlowNext),
	op2("ceq", 0x01, InlineNone, Primitive, FlowNext),
	op2("cgt", 0x02, InlineNone, Primitive, FlowNext),
	op2("cgt.un", 0x03, InlineNone, Primitive, FlowNext),
	op2("clt", 0x04, InlineNone, Primitive, FlowNext),
	op2("clt.un", 0x05, InlineNone, Primitive, FlowNext),
	op2("ldftn", 0x06, InlineMethod, Primitive, FlowNext),
	op2("ldvirtftn", 0x07, InlineMethod, Primitive, FlowNext),
	op2("ldarg", 0x09, InlineVar, Primitive, FlowNext),
	op2("ldarga", 0x0A, InlineVar, Primitive, FlowNext),
	op2("starg", 0x0B, InlineVar, Primitive, FlowNext),
	op2("ldloc", 0x0C, InlineVar, Primitive, FlowNext),
	op2("ldloca", 0x0D, InlineVar, Primitive, FlowNext),
	op2("stloc", 0x0E, InlineVar, Primitive, FlowNext),
	op2("localloc", 0x0F, InlineNone, Primitive, FlowNext),
	op2("endfilter", 0x11, InlineNone, Primitive, FlowReturn),
	op2("unaligned.", 0x12, ShortInlineI, Prefix, FlowMeta),
	op2("volatile.", 0x13, InlineNone, Prefix, FlowMeta),
	op2("tail.", 0x14, InlineNone, Prefix, FlowMeta),
	op2("initobj", 0x15, InlineType, ObjModel, FlowNext),
	op2("constrained.", 0x16, InlineType, Prefix, FlowMeta),
	op2("cpblk", 0x17, InlineNone, Primitive, FlowNext),
	op2("initblk", 0x18, InlineNone, Primitive, FlowNext),
	op2("rethrow", 0x1A, InlineNone, ObjModel, FlowThrow),
	op2("sizeof", 0x1C, InlineType, Primitive, FlowNext),
	op2("refanytype", 0x1D, InlineNone, Primitive, FlowNext),
	op2("readonly.", 0x1E, InlineNone, Prefix, FlowMeta),
}
