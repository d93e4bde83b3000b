package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var agenciesLimit int

var agenciesCmd = &cobra.Command{
	Use:   "agencies",
	Short: "List known agencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initHarvester(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		agencies, err := env.Store.ListAgencies(ctx, agenciesLimit)
		if err != nil {
			return eris.Wrap(err, "list agencies")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(agencies)
	},
}

func init() {
	agenciesCmd.Flags().IntVar(&agenciesLimit, "limit", 100, "maximum agencies to list")
	rootCmd.AddCommand(agenciesCmd)
}
