package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HummdG/tazaticket-final/internal/core"
)

const defaultThreadID = "cli-local"

var errUsage = errors.New("expected 'user: <text>', 'assistant: <text>' or a command: /start /window /flush /end /thread <id>")

// Console drives the memory surface from typed lines. It is an operator tool:
// the operator plays both sides of a conversation on one thread at a time.
type Console struct {
	mem     core.Memory
	thread  string
	started bool
}

func NewConsole(mem core.Memory) *Console {
	return &Console{mem: mem, thread: defaultThreadID}
}

func (c *Console) Thread() string {
	return c.thread
}

// Handle executes one line and returns the text to show.
func (c *Console) Handle(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)

	if role, text, ok := strings.Cut(line, ":"); ok && !strings.HasPrefix(line, "/") {
		return c.turn(ctx, core.Role(strings.ToLower(strings.TrimSpace(role))), strings.TrimSpace(text))
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/start":
		if err := c.start(ctx); err != nil {
			return "", err
		}
		return fmt.Sprintf("session started on %s", c.thread), nil

	case "/window":
		return render(c.mem.Window(ctx, c.thread)), nil

	case "/flush":
		if err := c.mem.FlushAll(ctx, c.thread); err != nil {
			return "", err
		}
		return "flushed", nil

	case "/end":
		if err := c.mem.OnSessionEnd(ctx, c.thread); err != nil {
			return "", err
		}
		c.started = false
		return fmt.Sprintf("session on %s ended", c.thread), nil

	case "/thread":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			return c.thread, nil
		}
		c.thread = arg
		c.started = false
		return fmt.Sprintf("switched to %s", c.thread), nil
	}

	return "", errUsage
}

func (c *Console) turn(ctx context.Context, role core.Role, text string) (string, error) {
	if !role.Valid() {
		return "", errUsage
	}
	if !c.started {
		if err := c.start(ctx); err != nil {
			return "", err
		}
	}

	if role == core.RoleUser {
		return "", c.mem.StartTurn(ctx, c.thread, text)
	}
	return "", c.mem.CompleteTurn(ctx, c.thread, text)
}

func (c *Console) start(ctx context.Context) error {
	if err := c.mem.OnSessionStart(ctx, c.thread); err != nil {
		return err
	}
	c.started = true
	return nil
}

func render(messages []core.Message) string {
	if len(messages) == 0 {
		return "(empty window)"
	}

	var sb strings.Builder
	for i, msg := range messages {
		fmt.Fprintf(&sb, "%3d %-9s %s", i+1, msg.Role, msg.Content)
		if i < len(messages)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
