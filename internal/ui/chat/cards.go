package chat

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailobot/internal/relay"
	"github.com/nhle/mailobot/internal/theme"
)

// cardLabels maps card types to their display headers.
var cardLabels = map[string]string{
	"summary":     "Summary",
	"translation": "Translation",
	"analysis":    "Analysis",
	"draft":       "Draft",
}

// renderCard renders a structured card as a bordered block in the
// transcript.
func renderCard(card relay.Card, width int) string {
	label, ok := cardLabels[card.Type]
	if !ok {
		label = "Card"
	}

	var sections []string

	header := theme.CardTypeStyle(card.Type).Render(label)
	if card.Title != "" {
		header = lipgloss.JoinHorizontal(
			lipgloss.Top,
			header,
			" ",
			theme.CardTitleStyle.Render(card.Title),
		)
	}
	sections = append(sections, header)

	if len(card.Fields) > 0 {
		keyStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorGray)

		// Deterministic field order.
		names := make([]string, 0, len(card.Fields))
		for name := range card.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			sections = append(sections,
				keyStyle.Render(name+": ")+card.Fields[name])
		}
	}

	if card.Body != "" {
		sections = append(sections, "")
		sections = append(sections, card.Body)
	}

	maxWidth := width
	if maxWidth < 20 {
		maxWidth = 20
	}

	return theme.CardStyle.
		MaxWidth(maxWidth).
		Render(strings.Join(sections, "\n"))
}
