package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nathoo/npcmind/engine/decision"
)

// renderStatusBar produces a full-width inverted status line showing the
// active NPC, affinity, mood, last action and turn.
func (m Model) renderStatusBar() string {
	s := m.session
	st, err := s.Engine.State(s.NPC)
	if err != nil {
		return styleStatusBar.Width(m.width).Render(" " + err.Error())
	}

	left := fmt.Sprintf(" %s | Aff: %+.2f (%s) | Mood: %s",
		s.Name(), st.Affinity, decision.Band(st.Affinity), st.Mood)
	right := fmt.Sprintf("T:%d ", st.Turn)

	// Show the last action if it fits.
	if st.LastAction != nil {
		candidate := fmt.Sprintf("Last: %s | T:%d ", actionLabel(string(st.LastAction.Action)), st.Turn)
		if lipgloss.Width(left)+lipgloss.Width(candidate)+2 < m.width {
			right = candidate
		}
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return styleStatusBar.Width(m.width).Render(bar)
}

// actionLabel derives a readable label from an action id.
// "ACT_OFFER_QUEST" -> "Offer Quest".
func actionLabel(id string) string {
	words := strings.Split(strings.TrimPrefix(id, "ACT_"), "_")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = w[:1] + strings.ToLower(w[1:])
		}
	}
	return strings.Join(words, " ")
}
