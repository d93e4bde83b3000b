package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <area>",
	Short: "Discover agencies in a geographic area",
	Long:  "Queries the configured providers for agencies in the area (postal code or department prefix), merges sightings by normalized website URL and upserts them as pending agencies.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initHarvester(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Discovery.Discover(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		zap.L().Info("discovery complete",
			zap.String("area", args[0]),
			zap.Int("candidates", summary.Candidates),
			zap.Int("created", summary.Created),
			zap.Int("enriched", summary.Enriched),
			zap.Int("reactivated", summary.Reactivated),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
