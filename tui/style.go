package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles used throughout the TUI.
var (
	styleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Bold(true)

	styleInputPrompt = lipgloss.NewStyle().
				Foreground(lipgloss.Color("34"))

	styleText = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	styleSpeaker = lipgloss.NewStyle().
			Bold(true)

	styleAction = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	styleDirective = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228"))

	styleRewardUp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("78"))

	styleRewardDown = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	styleSystem = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	stylePlayerInput = lipgloss.NewStyle().
				Foreground(lipgloss.Color("34"))

	styleTrace = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// lineKind identifies the type of an output line for styling.
type lineKind int

const (
	kindText lineKind = iota
	kindAction
	kindDirective
	kindFeedback
	kindSystem
	kindError
	kindTrace
)

// classifyLine determines what kind of output line this is.
func classifyLine(line string) lineKind {
	switch {
	case strings.HasPrefix(line, "[trace]"):
		return kindTrace
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return kindSystem
	case strings.HasPrefix(line, "feedback:"):
		return kindFeedback
	case strings.Contains(line, " failed: "),
		strings.HasPrefix(line, "Unknown "):
		return kindError
	case strings.HasPrefix(line, "  ") && strings.TrimSpace(line) != "":
		return kindDirective
	case isActionLine(line):
		return kindAction
	default:
		return kindText
	}
}

// isActionLine matches "Name (style) ACT_ID".
func isActionLine(line string) bool {
	open := strings.LastIndex(line, " (")
	if open <= 0 {
		return false
	}
	_, rest, ok := strings.Cut(line[open:], ") ")
	return ok && strings.HasPrefix(rest, "ACT_") && !strings.Contains(rest, " ")
}

// styledAction renders "Lydia (warm) ACT_GREET" with the speaker bold.
func styledAction(line string) string {
	open := strings.LastIndex(line, " (")
	if open <= 0 {
		return styleText.Render(line)
	}
	return styleSpeaker.Render(line[:open]) + styleAction.Render(line[open:])
}

// styledFeedback colours the reward line by its sign.
func styledFeedback(line string) string {
	if strings.Contains(line, "reward -") {
		return styleRewardDown.Render(line)
	}
	return styleRewardUp.Render(line)
}

// styledSystemMsg renders a system message in gray with brackets.
func styledSystemMsg(text string) string {
	return styleSystem.Render("[" + text + "]")
}
