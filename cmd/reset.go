package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Manual reset of blocked domains and parked agencies",
}

var resetDomainCmd = &cobra.Command{
	Use:   "domain <domain>",
	Short: "Unblock a domain and restore its base delay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initHarvester(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Governor.Reset(ctx, args[0]); err != nil {
			return err
		}
		zap.L().Info("domain reset", zap.String("domain", args[0]))
		return nil
	},
}

var resetAgencyCmd = &cobra.Command{
	Use:   "agency <agency-id>",
	Short: "Clear an agency's failure counter and return it to rotation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initHarvester(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Orchestrator.ResetAgency(ctx, args[0])
	},
}

func init() {
	resetCmd.AddCommand(resetDomainCmd)
	resetCmd.AddCommand(resetAgencyCmd)
	rootCmd.AddCommand(resetCmd)
}
