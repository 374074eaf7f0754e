package installer

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

// SaveEnvStep writes the collected configuration to the .env file
type SaveEnvStep struct {
	err   error
	saved bool
}

func NewSaveEnvStep() Step {
	return &SaveEnvStep{}
}

func (s *SaveEnvStep) Init() tea.Cmd {
	return func() tea.Msg { return nextMsg{} }
}

func (s *SaveEnvStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	if s.saved {
		return nil, nil
	}
	if s.err != nil {
		return s, nil
	}

	if s.err = SaveEnv(state); s.err != nil {
		return s, nil
	}

	s.saved = true
	return nil, nil
}

func (s *SaveEnvStep) View(state *InstallState) string {
	if s.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", s.err)) + "\n"
	}
	if s.saved {
		return "Configuration saved successfully!\n"
	}
	return "Saving configuration...\n"
}

// SaveEnv writes state.EnvVars to state.EnvPath, readable only by the owner.
func SaveEnv(state *InstallState) error {
	content, err := godotenv.Marshal(state.EnvVars)
	if err != nil {
		return fmt.Errorf("failed to render .env: %w", err)
	}

	// round-trip through the parser so a malformed file never lands on disk
	if _, err := godotenv.Unmarshal(content); err != nil {
		return fmt.Errorf("generated .env does not parse: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(state.EnvPath), 0755); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}
	if err := os.WriteFile(state.EnvPath, []byte(content+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write .env: %w", err)
	}
	return nil
}
