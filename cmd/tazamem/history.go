package main

import (
	"fmt"
	"time"

	"github.com/HummdG/tazaticket-final/internal/config"
	"github.com/HummdG/tazaticket-final/internal/service/ui"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:          "history <thread-id>",
	Short:        "Print the stored history of a conversation thread",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
			return err
		}
		appCfg := config.NewAppConfig(ctx)

		table, cleanup, err := initTable(ctx, appCfg)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup.Shutdown(ctx)
		}

		items, err := table.QueryRange(ctx, args[0], true, historyLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintf(out, "no stored messages for %s\n", args[0])
			return nil
		}

		// newest first from the store, printed oldest first
		for i := len(items) - 1; i >= 0; i-- {
			item := items[i]
			meta := ui.DescStyle.Render(fmt.Sprintf("%6d  turn %-4d  %s", item.Seq, item.Turn, item.Timestamp.Local().Format(time.DateTime)))
			fmt.Fprintf(out, "%s  %s  %s\n", meta, ui.RoleLabel(item.Role), item.Content)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "number of most recent messages to show, 0 for all")
	rootCmd.AddCommand(historyCmd)
}
