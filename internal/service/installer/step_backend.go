package installer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/HummdG/tazaticket-final/internal/config"
	tea "github.com/charmbracelet/bubbletea"
)

// BackendStep selects the durable store
type BackendStep struct {
	choices []string
	cursor  int
	placed  bool
}

func NewBackendStep() Step {
	return &BackendStep{
		choices: []string{config.BackendSQLite, config.BackendDynamoDB, config.BackendMemory},
	}
}

func (s *BackendStep) Init() tea.Cmd {
	return nil
}

func (s *BackendStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	s.place(state)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if s.cursor > 0 {
				s.cursor--
			}
		case "down", "j":
			if s.cursor < len(s.choices)-1 {
				s.cursor++
			}
		case "enter":
			state.EnvVars["STORE_BACKEND"] = s.choices[s.cursor]
			return nil, nil
		}
	}
	return s, nil
}

// place starts the cursor on the configured backend.
func (s *BackendStep) place(state *InstallState) {
	if s.placed {
		return
	}
	s.placed = true
	if i := slices.Index(s.choices, state.EnvVars["STORE_BACKEND"]); i >= 0 {
		s.cursor = i
	}
}

func (s *BackendStep) View(state *InstallState) string {
	s.place(state)

	var b strings.Builder
	b.WriteString("Select the history store:\n\n")
	for i, choice := range s.choices {
		if s.cursor == i {
			b.WriteString(selStyle.Render(fmt.Sprintf("❯ %s", choice)) + "\n")
		} else {
			b.WriteString(itemStyle.Render(fmt.Sprintf("  %s", choice)) + "\n")
		}
	}
	return b.String()
}
