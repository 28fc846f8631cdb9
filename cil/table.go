package cil

import (
	"fmt"
	"sync"

	"github.com/pcrain/ilreader/errors"
)

const (
	singleTableSize   = 225 // 0x00..0xE0
	extendedTableSize = 31  // 0xFE 0x00..0xFE 0x1E
)

// OpcodeTable maps encoded bytes to opcode descriptors. It is immutable
// once built and safe for concurrent use.
type OpcodeTable struct {
	single   [singleTableSize]Opcode
	extended [extendedTableSize]Opcode
}

// BuildOpcodeTable places every non-internal descriptor into its slot.
// A descriptor that does not fit the table or lands on a populated slot is
// an error; the canonical set never produces one.
func BuildOpcodeTable(descs []Opcode) (*OpcodeTable, error) {
	t := &OpcodeTable{}
	for _, op := range descs {
		if op.Type == Internal {
			continue
		}

		var slot *Opcode
		switch op.Size {
		case 1:
			if int(op.Value) >= singleTableSize {
				return nil, errors.New(errors.PhaseBuild, errors.KindOutOfBounds).
					Path(op.Name).
					Value(op.Value).
					Detail("one-byte value 0x%02x outside table (size %d)", op.Value, singleTableSize).
					Build()
			}
			slot = &t.single[op.Value]
		case 2:
			if op.Value>>8 != ExtendedPrefix || int(op.Value&0xFF) >= extendedTableSize {
				return nil, errors.New(errors.PhaseBuild, errors.KindOutOfBounds).
					Path(op.Name).
					Value(op.Value).
					Detail("two-byte value 0x%04x outside extended table (size %d)", op.Value, extendedTableSize).
					Build()
			}
			slot = &t.extended[op.Value&0xFF]
		default:
			return nil, errors.New(errors.PhaseBuild, errors.KindInvalidData).
				Path(op.Name).
				Value(op.Size).
				Detail("opcode size %d, want 1 or 2", op.Size).
				Build()
		}

		if slot.Valid() {
			return nil, errors.Collision(errors.PhaseBuild,
				fmt.Sprintf("%d:0x%02x", op.Size, op.Value&0xFF), slot.Name, op.Name)
		}
		*slot = op
	}
	return t, nil
}

var (
	defaultTable     *OpcodeTable
	defaultTableOnce sync.Once
)

// InitOpcodeTable builds the process-wide table from Opcodes on the first
// call and returns the same table on every call. It must be invoked
// explicitly before readers are created.
func InitOpcodeTable() *OpcodeTable {
	defaultTableOnce.Do(func() {
		t, err := BuildOpcodeTable(Opcodes)
		if err != nil {
			panic(fmt.Sprintf("cil: canonical opcode set is corrupt: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Lookup returns the one-byte opcode encoded as b, or the zero Opcode when
// the slot is empty.
func (t *OpcodeTable) Lookup(b byte) Opcode {
	if int(b) >= singleTableSize {
		return Opcode{}
	}
	return t.single[b]
}

// LookupExtended returns the two-byte opcode whose second byte is b.
func (t *OpcodeTable) LookupExtended(b byte) Opcode {
	if int(b) >= extendedTableSize {
		return Opcode{}
	}
	return t.extended[b]
}

// All returns the populated descriptors, one-byte opcodes first, each in
// encoding order.
func (t *OpcodeTable) All() []Opcode {
	out := make([]Opcode, 0, len(Opcodes))
	for _, op := range t.single {
		if op.Valid() {
			out = append(out, op)
		}
	}
	for _, op := range t.extended {
		if op.Valid() {
			out = append(out, op)
		}
	}
	return out
}

// ByName finds a populated descriptor by mnemonic.
func (t *OpcodeTable) ByName(name string) (Opcode, bool) {
	for _, op := range t.All() {
		if op.Name == name {
			return op, true
		}
	}
	return Opcode{}, false
}
