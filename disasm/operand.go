package disasm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pcrain/ilreader/cil"
)

// formatOperand renders an instruction operand in ildasm style. Branch
// targets are relative to the start of the next instruction.
func formatOperand(inst cil.Instruction) string {
	op := inst.Operand
	if len(op) < inst.Opcode.OperandSize() {
		return ""
	}

	switch kind := inst.Opcode.Operand; kind {
	case cil.ShortInlineBrTarget:
		return label(inst.Next() + int(int8(op[0])))
	case cil.InlineBrTarget:
		return label(inst.Next() + int(int32(binary.LittleEndian.Uint32(op))))
	case cil.ShortInlineI:
		return strconv.Itoa(int(int8(op[0])))
	case cil.InlineI:
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(op))), 10)
	case cil.InlineI8:
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(op)), 10)
	case cil.ShortInlineR:
		f := math.Float32frombits(binary.LittleEndian.Uint32(op))
		return strconv.FormatFloat(float64(f), 'g', -1, 32)
	case cil.InlineR:
		return strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(op)), 'g', -1, 64)
	case cil.ShortInlineVar:
		return variable(inst.Opcode, int(op[0]))
	case cil.InlineVar:
		return variable(inst.Opcode, int(binary.LittleEndian.Uint16(op)))
	case cil.InlineSwitch:
		return formatSwitch(inst)
	default:
		if !kind.IsToken() {
			return ""
		}
		if inst.Member != nil {
			return inst.Member.String()
		}
		return cil.Token(binary.LittleEndian.Uint32(op)).String()
	}
}

// variable names arguments A_n and locals V_n.
func variable(op cil.Opcode, index int) string {
	if strings.Contains(op.Name, "arg") {
		return "A_" + strconv.Itoa(index)
	}
	return "V_" + strconv.Itoa(index)
}

func formatSwitch(inst cil.Instruction) string {
	op := inst.Operand
	count := int(binary.LittleEndian.Uint32(op))
	targets := op[4:]
	if len(targets) != count*4 {
		// Count-only decoding leaves the targets in the stream.
		return fmt.Sprintf("(%d targets)", count)
	}

	labels := make([]string, count)
	for i := range labels {
		delta := int32(binary.LittleEndian.Uint32(targets[i*4:]))
		labels[i] = label(inst.Next() + int(delta))
	}
	return "(" + strings.Join(labels, ", ") + ")"
}
