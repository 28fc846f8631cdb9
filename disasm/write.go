package disasm

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/pcrain/ilreader/errors"
)

// Style colors the text listing. A nil *Style writes plain text.
type Style struct {
	Header     lipgloss.Style
	Offset     lipgloss.Style
	Opcode     lipgloss.Style
	Operand    lipgloss.Style
	Unresolved lipgloss.Style
	Clause     lipgloss.Style
}

// DefaultStyle returns the listing colors, rendered for r. A nil renderer
// uses lipgloss's default renderer.
func DefaultStyle(r *lipgloss.Renderer) *Style {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return &Style{
		Header:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		Offset:     r.NewStyle().Foreground(lipgloss.Color("#666666")),
		Opcode:     r.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		Operand:    r.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		Unresolved: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		Clause:     r.NewStyle().Italic(true).Foreground(lipgloss.Color("#FFD700")),
	}
}

type part uint8

const (
	partHeader part = iota
	partOffset
	partOpcode
	partOperand
	partUnresolved
	partClause
)

func (s *Style) render(p part, text string) string {
	if s == nil || text == "" {
		return text
	}
	var st lipgloss.Style
	switch p {
	case partHeader:
		st = s.Header
	case partOffset:
		st = s.Offset
	case partOpcode:
		st = s.Opcode
	case partOperand:
		st = s.Operand
	case partUnresolved:
		st = s.Unresolved
	case partClause:
		st = s.Clause
	}
	return st.Render(text)
}

// opcodeWidth pads mnemonics so most operands line up.
const opcodeWidth = 12

// FormatLine renders one line as "IL_0000: name operand".
func FormatLine(line Line, style *Style) string {
	var b strings.Builder
	b.WriteString(style.render(partOffset, line.Label()+":"))
	b.WriteByte(' ')
	if line.Operand == "" {
		b.WriteString(style.render(partOpcode, line.Name))
	} else {
		b.WriteString(style.render(partOpcode, fmt.Sprintf("%-*s", opcodeWidth, line.Name)))
		b.WriteByte(' ')
		if line.Unresolved != "" {
			b.WriteString(style.render(partUnresolved, line.Operand))
		} else {
			b.WriteString(style.render(partOperand, line.Operand))
		}
	}
	return b.String()
}

// FormatClause renders an exception clause as an ildasm-style .try line.
func FormatClause(c Clause) string {
	var b strings.Builder
	fmt.Fprintf(&b, ".try %s to %s ", c.TryStart, c.TryEnd)
	switch {
	case c.Class != "":
		fmt.Fprintf(&b, "catch %s ", c.Class)
	case c.Filter != "":
		fmt.Fprintf(&b, "filter %s ", c.Filter)
	default:
		b.WriteString(c.Kind + " ")
	}
	fmt.Fprintf(&b, "handler %s to %s", c.HandlerStart, c.HandlerEnd)
	return b.String()
}

// WriteText writes the listing as text, one instruction per line.
func WriteText(w io.Writer, l *Listing, style *Style) error {
	bw := bufio.NewWriter(w)

	if l.Method != "" {
		fmt.Fprintln(bw, style.render(partHeader, ".method "+l.Method))
	}
	fmt.Fprintln(bw, style.render(partHeader, fmt.Sprintf(".maxstack %d", l.MaxStack)))
	if l.InitLocals {
		fmt.Fprintln(bw, style.render(partHeader, ".locals init"))
	}
	for _, line := range l.Lines {
		fmt.Fprintln(bw, FormatLine(line, style))
	}
	for _, c := range l.Clauses {
		fmt.Fprintln(bw, style.render(partClause, FormatClause(c)))
	}

	if err := bw.Flush(); err != nil {
		return errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "write text listing")
	}
	return nil
}

// WriteYAML writes the listing as a YAML document.
func WriteYAML(w io.Writer, l *Listing) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(l); err != nil {
		return errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "encode yaml listing")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "close yaml encoder")
	}
	return nil
}

// cborEncMode uses canonical encoding so equal listings encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("disasm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalCBOR encodes the listing as canonical CBOR.
func MarshalCBOR(l *Listing) ([]byte, error) {
	data, err := cborEncMode.Marshal(l)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "encode cbor listing")
	}
	return data, nil
}

// UnmarshalCBOR decodes a listing written by MarshalCBOR.
func UnmarshalCBOR(data []byte) (*Listing, error) {
	var l Listing
	if err := cbor.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "decode cbor listing")
	}
	return &l, nil
}

// WriteCBOR writes the listing as canonical CBOR.
func WriteCBOR(w io.Writer, l *Listing) error {
	data, err := MarshalCBOR(l)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "write cbor listing")
	}
	return nil
}
