package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spigell/nudger/internal/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	evaluateUsers   []string
	evaluateAll     bool
	evaluateEvery   time.Duration
	evaluateWorkers int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run a nudge evaluation pass for one or more users",
	Long: `Runs the rule catalogue against each user's career state and stores the nudges that pass
the gates, cooldowns and the daily limit. With --every the sweep repeats until interrupted.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if len(evaluateUsers) == 0 && !evaluateAll {
			cmd.PrintErrln("either --user or --all is required")
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s := mustServices(ctx)
		defer s.Close()

		if evaluateEvery <= 0 {
			if err := runEvaluation(ctx, cmd, s); err != nil {
				s.logger.Fatal("evaluation failed", zap.Error(err))
			}
			return
		}

		s.logger.Info("starting periodic evaluation", zap.Duration("every", evaluateEvery))
		for {
			if err := runEvaluation(ctx, cmd, s); err != nil {
				s.logger.Error("evaluation failed. Retrying on the next tick.", zap.Error(err))
			}
			if err := utils.WaitFor(ctx, evaluateEvery); err != nil {
				s.logger.Info("stopping periodic evaluation")
				return
			}
		}
	},
}

func init() {
	evaluateCmd.Flags().StringSliceVarP(&evaluateUsers, "user", "u", nil, "user to evaluate (repeatable)")
	evaluateCmd.Flags().BoolVar(&evaluateAll, "all", false, "evaluate every known user")
	evaluateCmd.Flags().DurationVar(&evaluateEvery, "every", 0, "repeat the sweep at this interval")
	evaluateCmd.Flags().IntVarP(&evaluateWorkers, "workers", "w", 0, "parallel passes (defaults to the workers setting)")

	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluation(ctx context.Context, cmd *cobra.Command, s *services) error {
	users := evaluateUsers
	if evaluateAll {
		ids, err := s.store.ListUserIDs(ctx)
		if err != nil {
			return err
		}
		users = ids
	}

	// A single user gets the detailed report.
	if len(users) == 1 {
		ev, err := s.engine.EvaluateNudgesForUser(ctx, users[0])
		if ev != nil {
			if perr := emit(cmd.OutOrStdout(), ev, func() { printEvaluation(cmd.OutOrStdout(), ev) }); perr != nil {
				return perr
			}
		}
		return err
	}

	workers := evaluateWorkers
	if workers <= 0 {
		workers = s.config.Workers
	}

	summary := s.engine.Sweep(ctx, users, workers)
	if err := emit(cmd.OutOrStdout(), summary, func() { printSweep(cmd.OutOrStdout(), summary) }); err != nil {
		return err
	}

	if summary.Failed > 0 && summary.Failed == len(summary.Results) {
		return errors.New("every pass in the sweep failed")
	}
	return nil
}
