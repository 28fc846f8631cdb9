package cil

import (
	"github.com/pcrain/ilreader/cil/internal/binary"
	"github.com/pcrain/ilreader/errors"
)

// Method header format bits.
const (
	headerFormatMask = 0x03
	headerTiny       = 0x02
	headerFat        = 0x03

	// FlagMoreSects marks a fat body followed by extra data sections.
	FlagMoreSects = 0x08
	// FlagInitLocals requests zero-initialized locals.
	FlagInitLocals = 0x10

	fatHeaderDwords = 3
	tinyMaxStack    = 8
)

// Extra data section flags.
const (
	sectEHTable   = 0x01
	sectFatFormat = 0x40
	sectMoreSects = 0x80
)

// ClauseKind is the kind of an exception handling clause.
type ClauseKind uint32

const (
	ClauseCatch   ClauseKind = 0x0
	ClauseFilter  ClauseKind = 0x1
	ClauseFinally ClauseKind = 0x2
	ClauseFault   ClauseKind = 0x4
)

func (k ClauseKind) String() string {
	switch k {
	case ClauseCatch:
		return "catch"
	case ClauseFilter:
		return "filter"
	case ClauseFinally:
		return "finally"
	case ClauseFault:
		return "fault"
	}
	return "unknown"
}

// ExceptionClause is one protected region and its handler.
type ExceptionClause struct {
	Kind          ClauseKind
	TryOffset     uint32
	TryLength     uint32
	HandlerOffset uint32
	HandlerLength uint32
	ClassToken    Token  // catch clauses only
	FilterOffset  uint32 // filter clauses only
}

// MethodBody is a parsed method body: header fields, the IL stream, and
// exception handling clauses.
type MethodBody struct {
	Code        []byte // borrowed from the input
	Clauses     []ExceptionClause
	LocalVarSig Token
	MaxStack    uint16
	Flags       uint16
	Fat         bool
}

// InitLocals reports whether locals are zero-initialized.
func (b *MethodBody) InitLocals() bool {
	return b.Flags&FlagInitLocals != 0
}

// ParseMethodBody decodes a method body starting with its tiny or fat
// header.
func ParseMethodBody(data []byte) (*MethodBody, error) {
	r := binary.NewReader(data, errors.PhaseParse)

	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch first & headerFormatMask {
	case headerTiny:
		size := int(first >> 2)
		code, err := r.ReadBytes(size)
		if err != nil {
			return nil, err
		}
		return &MethodBody{Code: code, MaxStack: tinyMaxStack, Flags: uint16(first & headerFormatMask)}, nil

	case headerFat:
		return parseFatBody(r)
	}

	return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
		Offset(0).
		Value(first).
		Detail("unknown method header format 0x%02x", first&headerFormatMask).
		Build()
}

func parseFatBody(r *binary.Reader) (*MethodBody, error) {
	if err := r.Seek(0); err != nil {
		return nil, err
	}
	flagsAndSize, err := r.ReadU16LE()
	if err != nil {
		return nil, err
	}
	if dwords := flagsAndSize >> 12; dwords != fatHeaderDwords {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Offset(0).
			Value(dwords).
			Detail("fat header size %d dwords, want %d", dwords, fatHeaderDwords).
			Build()
	}

	body := &MethodBody{Fat: true, Flags: flagsAndSize & 0x0FFF}
	if body.MaxStack, err = r.ReadU16LE(); err != nil {
		return nil, err
	}
	codeSize, err := r.ReadU32LE()
	if err != nil {
		return nil, err
	}
	sig, err := r.ReadU32LE()
	if err != nil {
		return nil, err
	}
	body.LocalVarSig = Token(sig)

	if uint64(codeSize) > uint64(r.Remaining()) {
		return nil, errors.Truncated(errors.PhaseParse, r.Position(), int(min(codeSize, 1<<30)), r.Remaining())
	}
	if body.Code, err = r.ReadBytes(int(codeSize)); err != nil {
		return nil, err
	}

	more := body.Flags&FlagMoreSects != 0
	for more {
		r.Align(4)
		var clauses []ExceptionClause
		clauses, more, err = parseSection(r)
		if err != nil {
			return nil, err
		}
		body.Clauses = append(body.Clauses, clauses...)
	}
	return body, nil
}

func parseSection(r *binary.Reader) ([]ExceptionClause, bool, error) {
	start := r.Position()
	kind, err := r.ReadByte()
	if err != nil {
		return nil, false, err
	}
	more := kind&sectMoreSects != 0
	fat := kind&sectFatFormat != 0

	var dataSize int
	if fat {
		size, err := r.ReadU24LE()
		if err != nil {
			return nil, false, err
		}
		dataSize = int(size)
	} else {
		size, err := r.ReadByte()
		if err != nil {
			return nil, false, err
		}
		dataSize = int(size)
		if err := r.Skip(2); err != nil {
			return nil, false, err
		}
	}

	// dataSize counts the 4-byte section header.
	payload := dataSize - 4
	if payload < 0 {
		return nil, false, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Offset(start).
			Value(dataSize).
			Detail("section data size %d smaller than its header", dataSize).
			Build()
	}

	if kind&sectEHTable == 0 {
		// Unknown or optional IL tables carry nothing we decode.
		if err := r.Skip(payload); err != nil {
			return nil, false, err
		}
		return nil, more, nil
	}

	clauseSize := 12
	if fat {
		clauseSize = 24
	}
	if payload%clauseSize != 0 {
		return nil, false, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Offset(start).
			Value(dataSize).
			Detail("exception section payload %d is not a multiple of %d", payload, clauseSize).
			Build()
	}

	clauses := make([]ExceptionClause, 0, payload/clauseSize)
	for i := 0; i < payload/clauseSize; i++ {
		var c ExceptionClause
		if fat {
			c, err = readFatClause(r)
		} else {
			c, err = readSmallClause(r)
		}
		if err != nil {
			return nil, false, err
		}
		clauses = append(clauses, c)
	}
	return clauses, more, nil
}

func readSmallClause(r *binary.Reader) (ExceptionClause, error) {
	var c ExceptionClause
	flags, err := r.ReadU16LE()
	if err != nil {
		return c, err
	}
	c.Kind = ClauseKind(flags)
	tryOff, err := r.ReadU16LE()
	if err != nil {
		return c, err
	}
	tryLen, err := r.ReadByte()
	if err != nil {
		return c, err
	}
	handlerOff, err := r.ReadU16LE()
	if err != nil {
		return c, err
	}
	handlerLen, err := r.ReadByte()
	if err != nil {
		return c, err
	}
	c.TryOffset, c.TryLength = uint32(tryOff), uint32(tryLen)
	c.HandlerOffset, c.HandlerLength = uint32(handlerOff), uint32(handlerLen)
	err = readClauseTail(r, &c)
	return c, err
}

func readFatClause(r *binary.Reader) (ExceptionClause, error) {
	var c ExceptionClause
	var fields [5]uint32
	for i := range fields {
		v, err := r.ReadU32LE()
		if err != nil {
			return c, err
		}
		fields[i] = v
	}
	c.Kind = ClauseKind(fields[0])
	c.TryOffset, c.TryLength = fields[1], fields[2]
	c.HandlerOffset, c.HandlerLength = fields[3], fields[4]
	err := readClauseTail(r, &c)
	return c, err
}

func readClauseTail(r *binary.Reader, c *ExceptionClause) error {
	v, err := r.ReadU32LE()
	if err != nil {
		return err
	}
	switch c.Kind {
	case ClauseCatch:
		c.ClassToken = Token(v)
	case ClauseFilter:
		c.FilterOffset = v
	}
	return nil
}
