package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/HummdG/tazaticket-final/internal/config"
	"github.com/HummdG/tazaticket-final/internal/service/installer"
	"github.com/HummdG/tazaticket-final/pkg/env"
	"github.com/HummdG/tazaticket-final/pkg/log"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	force    bool
	defaults bool
)

// envTemplate collects every config struct so the generated file lists all
// recognized variables with their defaults.
type envTemplate struct {
	App    config.AppConfig
	Memory config.MemoryConfig
	Dynamo config.DynamoConfig
}

var initCmd = &cobra.Command{
	Use:          "init",
	Short:        "Create the runtime directory and a .env, asking for each setting on a terminal",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Setup logger
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)

		runtimePath := config.GetRuntimePath()
		if err := os.MkdirAll(runtimePath, 0755); err != nil {
			return fmt.Errorf("failed to create runtime directory: %w", err)
		}

		envPath := filepath.Join(runtimePath, ".env")
		if _, err := os.Stat(envPath); err == nil && !force {
			logger.Info().Str("path", envPath).Msg(".env already exists, use --force to overwrite")
			return nil
		}

		vars, err := defaultEnv()
		if err != nil {
			return err
		}
		state := installer.NewInstallState(envPath, vars)

		if interactive() {
			if _, err := installer.RunWizard(state); err != nil {
				return err
			}
		} else if err := installer.SaveEnv(state); err != nil {
			return err
		}

		logger.Info().Msgf("initialized runtime directory at: %s", runtimePath)
		logger.Info().Msgf("Setup complete! You can now run '%s start'.", cmd.Root().Name())
		return nil
	},
}

// defaultEnv lists every recognized variable with its default value.
func defaultEnv() (map[string]string, error) {
	content, err := env.MarshalEnv(&envTemplate{Memory: *config.DefaultMemoryConfig()})
	if err != nil {
		return nil, err
	}
	vars, err := godotenv.Unmarshal(content)
	if err != nil {
		return nil, fmt.Errorf("default .env does not parse: %w", err)
	}
	return vars, nil
}

func interactive() bool {
	if defaults {
		return false
	}
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func init() {
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing .env")
	initCmd.Flags().BoolVar(&defaults, "defaults", false, "write the defaults without prompting")
	rootCmd.AddCommand(initCmd)
}
