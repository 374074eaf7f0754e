package installer

import (
	"fmt"

	"github.com/HummdG/tazaticket-final/internal/config"
	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
)

// FinalizationStep checks the collected values the same way the service will
// read them on start
type FinalizationStep struct {
	err error
}

func NewFinalizationStep() Step {
	return &FinalizationStep{}
}

func (s *FinalizationStep) Init() tea.Cmd {
	return func() tea.Msg { return nextMsg{} }
}

func (s *FinalizationStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	if s.err != nil {
		return s, nil
	}

	if s.err = Check(state); s.err != nil {
		return s, nil
	}

	if state.EnvVars["DYNAMODB_ENDPOINT"] == "" {
		delete(state.EnvVars, "DYNAMODB_ENDPOINT")
	}
	return nil, nil
}

func (s *FinalizationStep) View(state *InstallState) string {
	if s.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", s.err)) + "\n"
	}
	return "Checking configuration...\n"
}

// Check parses the collected variables into the service configs and validates them.
func Check(state *InstallState) error {
	opts := env.Options{Environment: state.EnvVars}

	var app config.AppConfig
	if err := env.ParseWithOptions(&app, opts); err != nil {
		return err
	}
	if err := app.Validate(); err != nil {
		return err
	}

	var mem config.MemoryConfig
	if err := env.ParseWithOptions(&mem, opts); err != nil {
		return err
	}
	if err := mem.Validate(); err != nil {
		return err
	}

	if app.StoreBackend == config.BackendDynamoDB {
		var dyn config.DynamoConfig
		if err := env.ParseWithOptions(&dyn, opts); err != nil {
			return err
		}
	}
	return nil
}
