package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cycleEvery time.Duration

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Scrape every active agency once",
	Long:  "Runs one full pass over the scrapeable agencies with the configured worker pool. With --every, repeats until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initHarvester(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		for {
			if _, err := env.Orchestrator.RunCycle(ctx); err != nil {
				if ctx.Err() != nil {
					zap.L().Info("cycle interrupted")
					return nil
				}
				return err
			}
			if cycleEvery <= 0 {
				return nil
			}

			zap.L().Info("next cycle scheduled", zap.Duration("in", cycleEvery))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(cycleEvery):
			}
		}
	},
}

func init() {
	cycleCmd.Flags().DurationVar(&cycleEvery, "every", 0, "repeat the cycle at this interval (0 runs once)")
	rootCmd.AddCommand(cycleCmd)
}
