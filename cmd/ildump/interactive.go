package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pcrain/ilreader/disasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	opcodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	operandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#666666")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateBrowse modelState = iota
	stateGoto
)

// detailLines is the height reserved for the title, details pane and help.
const detailLines = 12

type interactiveModel struct {
	err      error
	listing  *disasm.Listing
	input    textinput.Model
	selected int
	top      int
	height   int
	state    modelState
}

func newInteractiveModel(l *disasm.Listing) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "IL_0000"
	ti.Prompt = "goto: "
	ti.CharLimit = 16
	ti.Width = 20
	return &interactiveModel{
		listing: l,
		input:   ti,
		height:  20,
		state:   stateBrowse,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = max(msg.Height-detailLines, 3)
		m.scroll()
		return m, nil

	case tea.KeyMsg:
		if m.state == stateGoto {
			return m.updateGoto(msg)
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			m.move(-1)

		case "down", "j":
			m.move(1)

		case "pgup":
			m.move(-m.height)

		case "pgdown":
			m.move(m.height)

		case "home":
			m.move(-len(m.listing.Lines))

		case "end":
			m.move(len(m.listing.Lines))

		case "g":
			m.state = stateGoto
			m.err = nil
			m.input.SetValue("")
			return m, m.input.Focus()
		}
	}
	return m, nil
}

func (m *interactiveModel) updateGoto(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.state = stateBrowse
		m.input.Blur()
		return m, nil

	case "enter":
		m.state = stateBrowse
		m.input.Blur()
		off, err := parseOffset(m.input.Value())
		if err != nil {
			m.err = err
			return m, nil
		}
		m.jump(off)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) move(delta int) {
	if len(m.listing.Lines) == 0 {
		return
	}
	m.selected = min(max(m.selected+delta, 0), len(m.listing.Lines)-1)
	m.scroll()
}

// jump selects the instruction covering off: the last one starting at or
// before it.
func (m *interactiveModel) jump(off int) {
	lines := m.listing.Lines
	i := sort.Search(len(lines), func(i int) bool { return lines[i].Offset > off })
	if i == 0 {
		m.err = fmt.Errorf("no instruction at IL_%04x", off)
		return
	}
	m.selected = i - 1
	m.scroll()
}

func (m *interactiveModel) scroll() {
	if m.selected < m.top {
		m.top = m.selected
	}
	if m.selected >= m.top+m.height {
		m.top = m.selected - m.height + 1
	}
}

// parseOffset accepts "IL_001f", "0x1f", "1f" or a bare hex offset.
func parseOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "IL_"), "il_")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad offset %q", s)
	}
	return int(v), nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	title := m.listing.Method
	if title == "" {
		title = "method body"
	}
	b.WriteString(titleStyle.Render("IL Dump"))
	b.WriteString(" ")
	b.WriteString(title)
	fmt.Fprintf(&b, "  maxstack %d", m.listing.MaxStack)
	if m.listing.InitLocals {
		b.WriteString("  init locals")
	}
	b.WriteString("\n\n")

	if len(m.listing.Lines) == 0 {
		b.WriteString("(empty method body)\n")
	}
	end := min(m.top+m.height, len(m.listing.Lines))
	for i := m.top; i < end; i++ {
		line := m.listing.Lines[i]
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + disasm.FormatLine(line, nil)))
		} else {
			b.WriteString("  " + m.formatLine(line))
		}
		b.WriteString("\n")
	}

	if len(m.listing.Lines) > 0 {
		b.WriteString("\n")
		b.WriteString(detailStyle.Render(m.details(m.listing.Lines[m.selected])))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}

	if m.state == stateGoto {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter jump • esc cancel"))
	} else {
		b.WriteString(helpStyle.Render("↑/↓ select • pgup/pgdown page • g goto • q quit"))
	}
	return b.String()
}

func (m *interactiveModel) formatLine(line disasm.Line) string {
	s := line.Label() + ": " + opcodeStyle.Render(line.Name)
	if line.Operand != "" {
		s += " " + operandStyle.Render(line.Operand)
	}
	return s
}

func (m *interactiveModel) details(line disasm.Line) string {
	var b strings.Builder
	fmt.Fprintf(&b, "offset   %s (%d)\n", line.Label(), line.Offset)
	fmt.Fprintf(&b, "opcode   %s", line.Name)
	if line.Operand != "" {
		fmt.Fprintf(&b, "\noperand  %s", line.Operand)
	}
	if line.Token != "" {
		fmt.Fprintf(&b, "\ntoken    %s", line.Token)
	}
	if line.Member != "" {
		fmt.Fprintf(&b, "\nmember   %s", line.Member)
	}
	if line.Unresolved != "" {
		fmt.Fprintf(&b, "\nerror    %s", errorStyle.Render(line.Unresolved))
	}
	for _, c := range m.listing.Clauses {
		if covers(c.TryStart, c.TryEnd, line.Offset) || covers(c.HandlerStart, c.HandlerEnd, line.Offset) {
			b.WriteString("\nclause   " + disasm.FormatClause(c))
		}
	}
	return b.String()
}

// covers reports whether off lies in the label range [start, end).
func covers(start, end string, off int) bool {
	s, err := parseOffset(start)
	if err != nil {
		return false
	}
	e, err := parseOffset(end)
	if err != nil {
		return false
	}
	return off >= s && off < e
}

func runInteractive(l *disasm.Listing) error {
	p := tea.NewProgram(newInteractiveModel(l), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
