package ui

import (
	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/charmbracelet/lipgloss"
)

var (
	// ANSI 6 (cyan) reads well on dark and light terminals
	TitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true).MarginBottom(1)

	UsageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	// ANSI 8 (gray) keeps descriptions and metadata in the background
	DescStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	FlagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	UserStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	AssistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
)

// RoleLabel renders a role padded to a fixed width so styled columns stay aligned.
func RoleLabel(role core.Role) string {
	label := string(role)
	for len(label) < len(core.RoleAssistant) {
		label += " "
	}

	switch role {
	case core.RoleUser:
		return UserStyle.Render(label)
	case core.RoleAssistant:
		return AssistantStyle.Render(label)
	default:
		return label
	}
}
