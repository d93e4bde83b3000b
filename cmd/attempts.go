package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/store"
)

var (
	attemptsOutcome string
	attemptsLimit   int
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts <agency-id>",
	Short: "Show the scrape attempt log for an agency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initHarvester(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		attempts, err := env.Store.ListScrapeAttempts(ctx, store.AttemptFilter{
			AgencyID: args[0],
			Outcome:  model.OutcomeClass(attemptsOutcome),
			Limit:    attemptsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list attempts")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(attempts)
	},
}

func init() {
	attemptsCmd.Flags().StringVar(&attemptsOutcome, "outcome", "", "filter by outcome class")
	attemptsCmd.Flags().IntVar(&attemptsLimit, "limit", 50, "maximum attempts to list")
	rootCmd.AddCommand(attemptsCmd)
}
