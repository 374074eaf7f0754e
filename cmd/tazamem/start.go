package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/HummdG/tazaticket-final/pkg/log"
	"github.com/HummdG/tazaticket-final/pkg/srv"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the memory service",
	Long:  `Opens the configured store, starts the idle janitor, the metrics listener and the operator console, and flushes every thread on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting tazamem")

		app, err := NewServices(ctx)
		if err != nil {
			return err
		}

		// Start services
		srv.StartServices(ctx, app.services)

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, app.services, app.shutdownTimeout)
		logger.Info().Msg("tazamem has been shut down gracefully")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
