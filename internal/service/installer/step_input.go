package installer

import (
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// InputStep collects one variable. An empty answer keeps the current value,
// which is shown as the placeholder.
type InputStep struct {
	key      string
	prompt   string
	validate func(string) error
	skip     func(*InstallState) bool

	input  textinput.Model
	seeded bool
	err    error
}

func NewInputStep(key, prompt string, validate func(string) error, skip func(*InstallState) bool) *InputStep {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 255
	ti.Width = 40

	return &InputStep{
		key:      key,
		prompt:   prompt,
		validate: validate,
		skip:     skip,
		input:    ti,
	}
}

func (s *InputStep) Init() tea.Cmd {
	return textinput.Blink
}

func (s *InputStep) Skip(state *InstallState) bool {
	return s.skip != nil && s.skip(state)
}

func (s *InputStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	s.seed(state)

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		val := strings.TrimSpace(s.input.Value())
		if val == "" {
			val = state.EnvVars[s.key]
		}
		if s.validate != nil {
			if s.err = s.validate(val); s.err != nil {
				return s, cmd
			}
		}
		state.EnvVars[s.key] = val
		return nil, nil
	}
	return s, cmd
}

func (s *InputStep) seed(state *InstallState) {
	if s.seeded {
		return
	}
	s.seeded = true
	s.input.Placeholder = state.EnvVars[s.key]
}

func (s *InputStep) View(state *InstallState) string {
	s.seed(state)

	view := s.prompt + "\n\n" + s.input.View() + "\n"
	if s.err != nil {
		view += "\n" + errorStyle.Render(s.key+": "+s.err.Error()) + "\n"
	}
	return view + "\n(press enter to confirm)\n"
}

func required(v string) error {
	if v == "" {
		return errors.New("a value is required")
	}
	return nil
}

func positiveInt(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.New("must be a whole number")
	}
	if n <= 0 {
		return errors.New("must be positive")
	}
	return nil
}
