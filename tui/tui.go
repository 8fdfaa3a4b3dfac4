package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nathoo/npcmind/cli"
	"github.com/nathoo/npcmind/engine"
)

// rawLine stores an unstyled output line with its classification,
// so we can re-wrap and re-style when the terminal is resized.
type rawLine struct {
	text     string
	kind     lineKind
	isInput  bool // true for echoed player input
	isSystem bool // true for system messages
}

// Model is the Bubble Tea model for the npcmind TUI.
type Model struct {
	ctx     context.Context
	session *cli.Session

	viewport viewport.Model
	input    textinput.Model
	history  *History

	rawLines []rawLine // accumulated lines (unstyled, for re-wrapping)

	width    int
	height   int
	ready    bool
	quitting bool
}

// outputMsg carries console output into the Update loop.
type outputMsg struct {
	input string // echoed player input (empty for the intro)
	out   cli.Output
}

// New creates a TUI model wired to the given engine.
func New(ctx context.Context, eng *engine.Engine) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 256
	ti.PromptStyle = styleInputPrompt

	return Model{
		ctx:     ctx,
		session: cli.NewSession(eng),
		input:   ti,
		history: NewHistory(100),
	}
}

// Session exposes the console session so callers can set the save
// directory or the starting NPC.
func (m *Model) Session() *cli.Session {
	return m.session
}

// Run starts the Bubble Tea program. It returns when the player quits or
// ctx is done.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init returns the initial command that produces the intro text.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.intro())
}

func (m Model) intro() tea.Cmd {
	return func() tea.Msg {
		var lines []string
		if title := m.session.Engine.Defs.Settings.Title; title != "" {
			lines = append(lines, title, "")
		}
		lines = append(lines, "Talking to "+m.session.Name()+". Type /help for commands.")
		return outputMsg{out: cli.Output{Lines: lines}}
	}
}

// Update handles key presses, window resizes and console output.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	case tea.KeyMsg:
		if next, cmd, done := m.handleKey(msg); done {
			return next, cmd
		}
	case outputMsg:
		m = m.appendOutput(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// resize fits the viewport above the status bar and input line.
func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	vpHeight := max(height-2, 1)
	if m.ready {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	} else {
		m.viewport = viewport.New(width, vpHeight)
		m.viewport.KeyMap = viewportKeyMap()
		m.ready = true
	}
	m.refreshViewport()
}

// handleKey consumes navigation and submit keys. Keys it does not consume
// fall through to the text input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit, true
	case "enter":
		next, cmd := m.handleEnter()
		return next, cmd, true
	case "tab":
		return m.cycleNPC(), nil, true
	case "up":
		if prev, ok := m.history.Prev(); ok {
			m.input.SetValue(prev)
			m.input.CursorEnd()
		}
		return m, nil, true
	case "down":
		next, ok := m.history.Next()
		if !ok {
			next = ""
			m.history.ResetCursor()
		}
		m.input.SetValue(next)
		m.input.CursorEnd()
		return m, nil, true
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd, true
	}
	return m, nil, false
}

// cycleNPC switches the session to the next NPC in roster order.
func (m Model) cycleNPC() Model {
	ids := m.session.Engine.NPCs()
	if len(ids) < 2 {
		return m
	}
	next := ids[0]
	for i, id := range ids {
		if id == m.session.NPC {
			next = ids[(i+1)%len(ids)]
			break
		}
	}
	return m.appendOutput(outputMsg{out: m.session.Exec(m.ctx, "/npc "+next)})
}

// handleEnter sends the submitted line to the session.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if input == "" {
		return m, nil
	}

	m.history.Push(input)
	m.history.ResetCursor()

	out := m.session.Exec(m.ctx, input)
	m = m.appendOutput(outputMsg{input: input, out: out})
	if out.Quit {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// appendOutput adds lines to the transcript and refreshes the viewport.
func (m Model) appendOutput(msg outputMsg) Model {
	if msg.input != "" {
		m.rawLines = append(m.rawLines, rawLine{
			text: "> " + msg.input, isInput: true,
		})
	}

	for _, line := range msg.out.Lines {
		kind := classifyLine(line)
		rl := rawLine{text: line, kind: kind}
		if msg.out.System && kind != kindTrace && kind != kindError {
			rl.isSystem = true
		}
		m.rawLines = append(m.rawLines, rl)
	}

	// Blank line separator between turns.
	m.rawLines = append(m.rawLines, rawLine{})

	m.refreshViewport()

	return m
}

// refreshViewport re-wraps and re-styles the transcript at the current
// width.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	width := max(m.width, 10)
	styled := make([]string, len(m.rawLines))
	for i, rl := range m.rawLines {
		styled[i] = rl.render(width)
	}
	m.viewport.SetContent(strings.Join(styled, "\n"))
	m.viewport.GotoBottom()
}

func (rl rawLine) render(width int) string {
	if rl.text == "" {
		return ""
	}
	wrapped := wordWrap(rl.text, width)
	switch {
	case rl.isInput:
		return stylePlayerInput.Render(wrapped)
	case rl.isSystem:
		return styledSystemMsg(wrapped)
	}
	return renderLineKind(wrapped, rl.kind)
}

// renderLineKind applies the style for a given lineKind.
func renderLineKind(line string, kind lineKind) string {
	switch kind {
	case kindAction:
		return styledAction(line)
	case kindDirective:
		return styleDirective.Render(line)
	case kindFeedback:
		return styledFeedback(line)
	case kindSystem:
		return styleSystem.Render(line)
	case kindError:
		return styleError.Render(line)
	case kindTrace:
		return styleTrace.Render(line)
	default:
		return styleText.Render(line)
	}
}

// wordWrap wraps text to fit within the given width, breaking at word
// boundaries. Leading indentation is repeated on every wrapped line.
func wordWrap(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	indent := text[:len(text)-len(strings.TrimLeft(text, " "))]

	var result strings.Builder
	result.WriteString(indent)
	words := strings.Fields(text)
	lineLen := len(indent)

	for i, word := range words {
		wLen := len(word)

		if i == 0 {
			result.WriteString(word)
			lineLen += wLen
			continue
		}

		if lineLen+1+wLen > width {
			result.WriteString("\n")
			result.WriteString(indent)
			result.WriteString(word)
			lineLen = len(indent) + wLen
		} else {
			result.WriteString(" ")
			result.WriteString(word)
			lineLen += 1 + wLen
		}
	}

	return result.String()
}

// View renders the full TUI layout: viewport + status bar + input.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	return m.viewport.View() + "\n" + m.renderStatusBar() + "\n" + m.input.View()
}

// viewportKeyMap returns a viewport keymap with Up/Down disabled
// (we use those for input history).
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}
