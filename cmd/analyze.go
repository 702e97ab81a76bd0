// File: cmd/analyze.go
package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/clipsight/internal/observability"
)

var analyzeLimit int

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run sentiment analysis over stored videos that have no verdict yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := observability.GetLogger()
		st, closeStore, err := openStore(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		limit := analyzeLimit
		if limit < 1 {
			limit = cfg.Analysis.BatchSize
		}
		return runBacklogAnalysis(ctx, st, limit, logger)
	},
}

func init() {
	analyzeCmd.Flags().IntVarP(&analyzeLimit, "limit", "l", 0, "max videos to analyze (0 uses the configured batch size)")
	rootCmd.AddCommand(analyzeCmd)
}
