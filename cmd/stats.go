package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsCmd = &cobra.Command{
	Use:   "stats USER",
	Short: "Show how a user responded to nudges today, this week and overall",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustServices(ctx)
		defer s.Close()

		st, err := s.engine.GetNudgeStats(ctx, args[0])
		if err != nil {
			s.logger.Fatal("unable to compute stats", zap.Error(err))
		}

		if err := emit(cmd.OutOrStdout(), st, func() { printStats(cmd.OutOrStdout(), args[0], st) }); err != nil {
			s.logger.Fatal("printing stats", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
