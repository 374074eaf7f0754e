package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/HummdG/tazaticket-final/internal/config"
	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/HummdG/tazaticket-final/pkg/log"
	"github.com/chzyer/readline"
)

type ReadLine struct {
	console *Console
	rl      *readline.Instance
}

func NewReadLine(mem core.Memory, cfg *config.AppConfig) (*ReadLine, error) {
	// Ensure runtime directory exists
	if err := os.MkdirAll(cfg.GetRuntimePath(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tazamem> ",
		HistoryFile:     cfg.GetHistoryPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("user:"),
			readline.PcItem("assistant:"),
			readline.PcItem("/start"),
			readline.PcItem("/window"),
			readline.PcItem("/flush"),
			readline.PcItem("/end"),
			readline.PcItem("/thread"),
		),
	})
	if err != nil {
		return nil, err
	}

	return &ReadLine{
		console: NewConsole(mem),
		rl:      rl,
	}, nil
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Str("thread_id", r.console.Thread()).Msg("memory console started. Type 'exit' to quit.")

	for {
		// Check context before blocking read
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					return nil // Exit on Ctrl+C
				}
				continue
			} else if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}

		out, err := r.console.Handle(ctx, line)
		if err != nil {
			logger.Debug().Err(err).Str("line", line).Msg("console command failed")
			fmt.Fprintf(r.rl.Stdout(), "Error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Fprintln(r.rl.Stdout(), out)
		}
	}
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
