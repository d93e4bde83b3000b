package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <agency-id>",
	Short: "Scrape one agency now",
	Long:  "Runs a single scrape attempt for the agency, honoring the domain's rate policy. The attempt is recorded whatever its outcome.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initHarvester(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		attempt, err := env.Orchestrator.ScrapeAgency(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("scrape done",
			zap.String("agency_id", attempt.AgencyID),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Int("found", attempt.ListingsFound),
			zap.Int("new", attempt.New),
			zap.Int("updated", attempt.Updated),
			zap.Int("removed", attempt.Removed),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}
