package ui

import (
	"testing"

	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestRoleLabel_FixedWidth(t *testing.T) {
	for _, role := range []core.Role{core.RoleUser, core.RoleAssistant, core.Role("tool")} {
		assert.Equal(t, len(core.RoleAssistant), lipgloss.Width(RoleLabel(role)), role)
	}
}
