package cil

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pcrain/ilreader/cil/internal/binary"
	"github.com/pcrain/ilreader/errors"
)

// SwitchMode selects how much of a switch operand the reader consumes.
type SwitchMode uint8

const (
	// SwitchTable reads the target count and skips every 4-byte target.
	SwitchTable SwitchMode = iota
	// SwitchCountOnly consumes only the 4-byte count, leaving the targets
	// to be decoded as instructions. Streams containing a switch will
	// usually misalign or under-run in this mode.
	SwitchCountOnly
)

// TokenScope selects which token operands are reported and resolved.
type TokenScope uint8

const (
	// TokenScopeMembers resolves method, field, type and ldtoken operands
	// and reports the raw token of string and signature operands.
	TokenScopeMembers TokenScope = iota
	// TokenScopeMethods resolves method operands only; every other token
	// operand is skipped as an opaque 4-byte value.
	TokenScopeMethods
)

type options struct {
	logger     *zap.Logger
	switchMode SwitchMode
	tokenScope TokenScope
}

// Option configures a Reader.
type Option func(*options)

// WithSwitchMode sets how switch operands are consumed.
func WithSwitchMode(mode SwitchMode) Option {
	return func(o *options) { o.switchMode = mode }
}

// WithTokenScope sets which token operands are resolved.
func WithTokenScope(scope TokenScope) Option {
	return func(o *options) { o.tokenScope = scope }
}

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

var (
	errNoModule  = errors.InvalidInput(errors.PhaseResolve, "method has no owning module")
	errNoContext = errors.InvalidInput(errors.PhaseResolve, "no method context")
)

// Instruction is one decoded instruction.
type Instruction struct {
	Member     Member // nil unless a token operand resolved
	ResolveErr error  // why resolution failed; never returned by Advance
	Operand    []byte // raw operand bytes, borrowed from the code buffer
	Opcode     Opcode
	Offset     int
	Length     int // opcode plus operand bytes
	Token      Token
}

// Size returns the encoded size in bytes: opcode plus operand.
func (i Instruction) Size() int {
	return i.Length
}

// Next returns the offset of the following instruction.
func (i Instruction) Next() int {
	return i.Offset + i.Length
}

// Resolved reports whether the operand resolved to a member.
func (i Instruction) Resolved() bool {
	return i.Member != nil
}

// Reader decodes the instruction stream of one method body. It borrows
// the code buffer and must not be used from more than one goroutine.
type Reader struct {
	err   error
	table *OpcodeTable
	cur   *binary.Reader
	code  []byte
	inst  Instruction
	opts  options
}

// NewReader creates a Reader over code using table, which normally comes
// from InitOpcodeTable.
func NewReader(table *OpcodeTable, code []byte, opts ...Option) *Reader {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}
	return &Reader{
		table: table,
		cur:   binary.NewReader(code, errors.PhaseDecode),
		code:  code,
		opts:  o,
	}
}

// Advance decodes the next instruction. It returns false with a nil error
// once the buffer is exhausted. An error is fatal: the published
// instruction keeps its previous value and every later call returns the
// same error.
func (r *Reader) Advance(m MethodContext) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	if r.cur.Remaining() == 0 {
		return false, nil
	}

	inst, err := r.decode(m)
	if err != nil {
		r.err = err
		return false, err
	}
	r.inst = inst
	return true, nil
}

// Instruction returns the most recently decoded instruction.
func (r *Reader) Instruction() Instruction {
	return r.inst
}

// Opcode returns the opcode of the current instruction.
func (r *Reader) Opcode() Opcode {
	return r.inst.Opcode
}

// MetadataToken returns the raw token of the current instruction, 0 when
// it has none.
func (r *Reader) MetadataToken() Token {
	return r.inst.Token
}

// Operand returns the member the current operand resolved to, or nil.
func (r *Reader) Operand() Member {
	return r.inst.Member
}

// Position returns the offset of the next undecoded byte.
func (r *Reader) Position() int {
	return r.cur.Position()
}

// Len returns the length of the code buffer.
func (r *Reader) Len() int {
	return r.cur.Len()
}

// Err returns the error that stopped decoding, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) decode(m MethodContext) (Instruction, error) {
	start := r.cur.Position()

	op, err := r.readOpcode()
	if err != nil {
		return Instruction{}, err
	}
	inst := Instruction{Offset: start, Opcode: op}

	switch {
	case op.Operand == InlineSwitch:
		inst.Operand, err = r.readSwitch()

	case op.Operand.IsToken() && r.reportsToken(op.Operand):
		inst.Operand, err = r.cur.ReadBytes(4)
		if err != nil {
			break
		}
		inst.Token = tokenFromBytes(inst.Operand)
		if r.resolvesToken(op.Operand) {
			inst.Member, inst.ResolveErr = r.resolve(m, inst.Token)
			if inst.ResolveErr != nil {
				r.opts.logger.Debug("operand token unresolved",
					zap.Int("offset", start),
					zap.String("opcode", op.Name),
					zap.Stringer("token", inst.Token),
					zap.Error(inst.ResolveErr))
			}
		}

	default:
		inst.Operand, err = r.cur.ReadBytes(op.Operand.Size())
	}
	if err != nil {
		return Instruction{}, annotate(err, op)
	}

	inst.Length = r.cur.Position() - start
	return inst, nil
}

func (r *Reader) readOpcode() (Opcode, error) {
	b, err := r.cur.ReadByte()
	if err != nil {
		return Opcode{}, err
	}
	if b < ExtendedPrefix {
		return r.table.Lookup(b), nil
	}
	b, err = r.cur.ReadByte()
	if err != nil {
		return Opcode{}, annotate(err, Opcode{Name: "extended prefix"})
	}
	return r.table.LookupExtended(b), nil
}

func (r *Reader) readSwitch() ([]byte, error) {
	if r.opts.switchMode == SwitchCountOnly {
		return r.cur.ReadBytes(4)
	}

	start := r.cur.Position()
	count, err := r.cur.ReadU32LE()
	if err != nil {
		return nil, err
	}
	need := uint64(count) * 4
	if rem := r.cur.Remaining(); need > uint64(rem) {
		return nil, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Offset(r.cur.Position()).
			Value(count).
			Detail("switch table of %d targets needs %d bytes, %d remaining", count, need, rem).
			Build()
	}
	if err := r.cur.Skip(int(need)); err != nil {
		return nil, err
	}
	return r.code[start:r.cur.Position():r.cur.Position()], nil
}

func (r *Reader) reportsToken(kind OperandKind) bool {
	if r.opts.tokenScope == TokenScopeMethods {
		return kind == InlineMethod
	}
	return true
}

func (r *Reader) resolvesToken(kind OperandKind) bool {
	switch kind {
	case InlineMethod:
		return true
	case InlineField, InlineType, InlineTok:
		return r.opts.tokenScope == TokenScopeMembers
	}
	return false
}

// resolve never fails the decode; a failing or panicking resolver yields
// a nil member and the reason.
func (r *Reader) resolve(m MethodContext, tok Token) (member Member, err error) {
	if m == nil {
		return nil, errNoContext
	}

	defer func() {
		if p := recover(); p != nil {
			member = nil
			err = errors.New(errors.PhaseResolve, errors.KindInvalidData).
				Value(tok).
				Detail("resolver panicked on token %s: %v", tok, p).
				Build()
		}
	}()

	typeArgs := m.DeclaringTypeArgs()
	var methodArgs []string
	if !m.IsConstructor() {
		methodArgs = m.MethodArgs()
	}

	member, err = m.ResolveMember(tok, typeArgs, methodArgs)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errors.NotFound(errors.PhaseResolve, "member for token", tok.String())
	}
	return member, nil
}

// annotate records which opcode was being decoded when err occurred.
func annotate(err error, op Opcode) error {
	if e, ok := err.(*errors.Error); ok && op.Name != "" {
		e.Path = append(e.Path, op.Name)
	}
	return err
}

func tokenFromBytes(b []byte) Token {
	return Token(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

// Decode reads every instruction of code. On error it returns the
// instructions decoded so far together with the error.
func Decode(table *OpcodeTable, code []byte, m MethodContext, opts ...Option) ([]Instruction, error) {
	r := NewReader(table, code, opts...)
	// Rough estimate: two bytes per instruction on average.
	out := make([]Instruction, 0, len(code)/2)
	for {
		ok, err := r.Advance(m)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, r.Instruction())
	}
}

// String renders the instruction as "IL_0000: name".
func (i Instruction) String() string {
	if i.Token != 0 {
		if i.Member != nil {
			return fmt.Sprintf("IL_%04x: %s %s", i.Offset, i.Opcode, i.Member)
		}
		return fmt.Sprintf("IL_%04x: %s %s", i.Offset, i.Opcode, i.Token)
	}
	return fmt.Sprintf("IL_%04x: %s", i.Offset, i.Opcode)
}
