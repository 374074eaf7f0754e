package installer

import (
	"fmt"

	"github.com/HummdG/tazaticket-final/internal/config"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	itemStyle  = lipgloss.NewStyle().PaddingLeft(2)
	selStyle   = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("5"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// Step represents a single step in the setup wizard
type Step interface {
	Init() tea.Cmd
	Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd)
	View(state *InstallState) string
}

// Skipper is implemented by steps that only apply to some answers.
type Skipper interface {
	Skip(state *InstallState) bool
}

func onlyDynamoDB(state *InstallState) bool {
	return state.EnvVars["STORE_BACKEND"] != config.BackendDynamoDB
}

func getSteps() []Step {
	return []Step{
		NewBackendStep(),
		NewInputStep("CHAT_HISTORY_TABLE", "DynamoDB table name:", required, onlyDynamoDB),
		NewInputStep("AWS_REGION", "AWS region:", required, onlyDynamoDB),
		NewInputStep("DYNAMODB_ENDPOINT", "DynamoDB endpoint (empty for AWS):", nil, onlyDynamoDB),
		NewInputStep("CONTEXT_PAIRS", "Pairs kept in the context window:", positiveInt, nil),
		NewInputStep("BATCH_PAIRS", "Evicted pairs per durable write:", positiveInt, nil),
		NewInputStep("MAX_RAM_PAIRS", "Pairs held in memory per thread before a forced write:", positiveInt, nil),
		NewInputStep("SESSION_IDLE_SECONDS", "Idle seconds before a session rotates:", positiveInt, nil),
		NewFinalizationStep(),
		NewSaveEnvStep(),
	}
}

type nextMsg struct{}

// model is the main Bubble Tea model that orchestrates the steps
type model struct {
	steps       []Step
	currentStep int
	state       *InstallState
	quitting    bool
	width       int
	height      int
}

func newModel(state *InstallState) model {
	return model{
		steps: getSteps(),
		state: state,
	}
}

func (m model) Init() tea.Cmd {
	if len(m.steps) > 0 {
		return m.steps[0].Init()
	}
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, tea.Quit
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.done() {
		return m, tea.Quit
	}

	nextStep, cmd := m.steps[m.currentStep].Update(msg, m.state, m.width, m.height)
	if nextStep == nil {
		return m.advance()
	}

	m.steps[m.currentStep] = nextStep
	return m, cmd
}

// advance moves past the finished step and any steps that do not apply.
func (m model) advance() (tea.Model, tea.Cmd) {
	for m.currentStep++; m.currentStep < len(m.steps); m.currentStep++ {
		if s, ok := m.steps[m.currentStep].(Skipper); ok && s.Skip(m.state) {
			continue
		}
		return m, m.steps[m.currentStep].Init()
	}
	return m, tea.Quit
}

func (m model) done() bool {
	return m.currentStep >= len(m.steps)
}

func (m model) View() string {
	if m.quitting {
		return "Setup cancelled.\n"
	}
	if m.done() {
		return "Configuration complete!\n"
	}
	return titleStyle.Render("Configuring tazamem") + "\n\n" +
		m.steps[m.currentStep].View(m.state) +
		hintStyle.Render("\n(press ctrl+c to quit)") + "\n"
}

// RunWizard asks for each setting on the terminal and saves the result.
func RunWizard(state *InstallState) (*InstallState, error) {
	p := tea.NewProgram(newModel(state), tea.WithAltScreen())
	m, err := p.Run()
	if err != nil {
		return nil, err
	}

	final := m.(model)
	if final.quitting || !final.done() {
		return nil, fmt.Errorf("setup interrupted")
	}
	return final.state, nil
}
