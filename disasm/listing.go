package disasm

import (
	"fmt"

	"github.com/pcrain/ilreader/cil"
	"github.com/pcrain/ilreader/errors"
)

// Line is one rendered instruction.
type Line struct {
	Name       string `yaml:"opcode" cbor:"opcode"`
	Operand    string `yaml:"operand,omitempty" cbor:"operand,omitempty"`
	Token      string `yaml:"token,omitempty" cbor:"token,omitempty"`
	Member     string `yaml:"member,omitempty" cbor:"member,omitempty"`
	Unresolved string `yaml:"unresolved,omitempty" cbor:"unresolved,omitempty"` // resolution failure, if any
	Offset     int    `yaml:"offset" cbor:"offset"`
}

// Label returns the IL_xxxx label of the line.
func (l Line) Label() string {
	return label(l.Offset)
}

// Clause is a rendered exception handling clause.
type Clause struct {
	Kind         string `yaml:"kind" cbor:"kind"`
	TryStart     string `yaml:"try_start" cbor:"try_start"`
	TryEnd       string `yaml:"try_end" cbor:"try_end"`
	HandlerStart string `yaml:"handler_start" cbor:"handler_start"`
	HandlerEnd   string `yaml:"handler_end" cbor:"handler_end"`
	Class        string `yaml:"class,omitempty" cbor:"class,omitempty"`
	Filter       string `yaml:"filter,omitempty" cbor:"filter,omitempty"`
}

// Listing is the disassembly of one method body.
type Listing struct {
	Method     string   `yaml:"method,omitempty" cbor:"method,omitempty"`
	Lines      []Line   `yaml:"instructions" cbor:"instructions"`
	Clauses    []Clause `yaml:"clauses,omitempty" cbor:"clauses,omitempty"`
	MaxStack   uint16   `yaml:"maxstack" cbor:"maxstack"`
	InitLocals bool     `yaml:"init_locals" cbor:"init_locals"`
}

// Disassemble decodes body under m. On a decode error the listing holds the
// instructions before the failure and the error is returned with it.
func Disassemble(table *cil.OpcodeTable, body *cil.MethodBody, m cil.MethodContext, opts ...cil.Option) (*Listing, error) {
	if body == nil {
		return nil, errors.InvalidInput(errors.PhaseRender, "nil method body")
	}

	l, err := DisassembleCode(table, body.Code, m, opts...)
	l.MaxStack = body.MaxStack
	l.InitLocals = body.InitLocals()
	for _, c := range body.Clauses {
		l.Clauses = append(l.Clauses, renderClause(c, m))
	}
	return l, err
}

// DisassembleCode decodes a bare IL stream with no method header.
func DisassembleCode(table *cil.OpcodeTable, code []byte, m cil.MethodContext, opts ...cil.Option) (*Listing, error) {
	if table == nil {
		table = cil.InitOpcodeTable()
	}

	l := &Listing{}
	r := cil.NewReader(table, code, opts...)
	for {
		ok, err := r.Advance(m)
		if err != nil {
			return l, err
		}
		if !ok {
			return l, nil
		}
		l.Lines = append(l.Lines, renderLine(r.Instruction(), code))
	}
}

func renderLine(inst cil.Instruction, code []byte) Line {
	line := Line{
		Offset:  inst.Offset,
		Name:    inst.Opcode.Name,
		Operand: formatOperand(inst),
	}
	if !inst.Opcode.Valid() {
		line.Name = fmt.Sprintf("<unknown % x>", code[inst.Offset:inst.Next()])
	}
	if inst.Token != 0 {
		line.Token = inst.Token.String()
	}
	if inst.Member != nil {
		line.Member = inst.Member.String()
	}
	if inst.ResolveErr != nil {
		line.Unresolved = inst.ResolveErr.Error()
	}
	return line
}

func renderClause(c cil.ExceptionClause, m cil.MethodContext) Clause {
	out := Clause{
		Kind:         c.Kind.String(),
		TryStart:     label(int(c.TryOffset)),
		TryEnd:       label(int(c.TryOffset + c.TryLength)),
		HandlerStart: label(int(c.HandlerOffset)),
		HandlerEnd:   label(int(c.HandlerOffset + c.HandlerLength)),
	}
	switch c.Kind {
	case cil.ClauseCatch:
		out.Class = resolveName(m, c.ClassToken)
	case cil.ClauseFilter:
		out.Filter = label(int(c.FilterOffset))
	}
	return out
}

// resolveName renders a catch class, falling back to the raw token when
// the resolver fails or panics.
func resolveName(m cil.MethodContext, tok cil.Token) (name string) {
	if m == nil || tok.IsNil() {
		return tok.String()
	}
	defer func() {
		if p := recover(); p != nil {
			name = tok.String()
		}
	}()
	var methodArgs []string
	if !m.IsConstructor() {
		methodArgs = m.MethodArgs()
	}
	member, err := m.ResolveMember(tok, m.DeclaringTypeArgs(), methodArgs)
	if err != nil || member == nil {
		return tok.String()
	}
	return member.String()
}

func label(offset int) string {
	return fmt.Sprintf("IL_%04x", offset)
}
