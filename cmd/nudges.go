package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/nudger/internal/nudge"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	actionAccept  = "Accept"
	actionSnooze  = "Snooze"
	actionDismiss = "Dismiss"
	actionSkip    = "Skip"
	actionQuit    = "Quit"
)

var snoozeFor time.Duration

var nudgesCmd = &cobra.Command{
	Use:   "nudges",
	Short: "List nudges and record what the user did with them",
}

var nudgesListCmd = &cobra.Command{
	Use:   "list USER",
	Short: "List pending nudges and snoozed ones whose snooze has expired",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustServices(ctx)
		defer s.Close()

		active, err := s.engine.ActiveNudges(ctx, args[0])
		if err != nil {
			s.logger.Fatal("unable to list nudges", zap.Error(err))
		}

		if err := emit(cmd.OutOrStdout(), active, func() {
			printNudges(cmd.OutOrStdout(), "Active nudges for "+args[0], active)
		}); err != nil {
			s.logger.Fatal("printing nudges", zap.Error(err))
		}
	},
}

var nudgesAcceptCmd = outcomeCommand("accept", "Mark a nudge as accepted", nudge.ActionAccept)
var nudgesDismissCmd = outcomeCommand("dismiss", "Dismiss a nudge", nudge.ActionDismiss)
var nudgesSnoozeCmd = outcomeCommand("snooze", "Hide a nudge until the snooze expires", nudge.ActionSnooze)

var nudgesReviewCmd = &cobra.Command{
	Use:   "review USER",
	Short: "Go through active nudges interactively",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustServices(ctx)
		defer s.Close()

		if err := review(ctx, cmd, s, args[0]); err != nil {
			s.logger.Fatal("review failed", zap.Error(err))
		}
	},
}

func init() {
	nudgesSnoozeCmd.Flags().DurationVar(&snoozeFor, "for", 24*time.Hour, "how long to snooze")
	nudgesReviewCmd.Flags().DurationVar(&snoozeFor, "snooze-for", 24*time.Hour, "how long the snooze action hides a nudge")

	nudgesCmd.AddCommand(nudgesListCmd, nudgesAcceptCmd, nudgesDismissCmd, nudgesSnoozeCmd, nudgesReviewCmd)
	rootCmd.AddCommand(nudgesCmd)
}

func outcomeCommand(use, short string, action nudge.Action) *cobra.Command {
	return &cobra.Command{
		Use:   use + " USER NUDGE_ID",
		Short: short,
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			s := mustServices(ctx)
			defer s.Close()

			n, err := applyAction(ctx, s, args[0], args[1], action)
			if err != nil {
				s.logger.Fatal("unable to record outcome", zap.String("action", string(action)), zap.Error(err))
			}

			if err := emit(cmd.OutOrStdout(), n, func() { fmt.Fprintln(cmd.OutOrStdout(), renderNudge(n)) }); err != nil {
				s.logger.Fatal("printing nudge", zap.Error(err))
			}
		},
	}
}

func applyAction(ctx context.Context, s *services, userID, nudgeID string, action nudge.Action) (*nudge.Nudge, error) {
	switch action {
	case nudge.ActionAccept:
		return s.engine.AcceptNudge(ctx, userID, nudgeID)
	case nudge.ActionDismiss:
		return s.engine.DismissNudge(ctx, userID, nudgeID)
	case nudge.ActionSnooze:
		if snoozeFor <= 0 {
			return nil, fmt.Errorf("snooze duration must be positive, got %s", snoozeFor)
		}
		return s.engine.SnoozeNudge(ctx, userID, nudgeID, time.Now().Add(snoozeFor))
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func review(ctx context.Context, cmd *cobra.Command, s *services, userID string) error {
	active, err := s.engine.ActiveNudges(ctx, userID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(active) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("no active nudges for "+userID))
		return nil
	}

	for i, n := range active {
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Nudge %d of %d", i+1, len(active))))
		fmt.Fprintln(out, renderNudge(n))

		prompt := promptui.Select{
			Label: "What do you want to do with this nudge?",
			Items: []string{actionAccept, actionSnooze, actionDismiss, actionSkip, actionQuit},
		}

		_, choice, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}
			return fmt.Errorf("prompt failed: %w", err)
		}

		var action nudge.Action
		switch choice {
		case actionAccept:
			action = nudge.ActionAccept
		case actionSnooze:
			action = nudge.ActionSnooze
		case actionDismiss:
			action = nudge.ActionDismiss
		case actionSkip:
			continue
		case actionQuit:
			return nil
		}

		updated, err := applyAction(ctx, s, userID, n.ID, action)
		if err != nil {
			s.logger.Error("unable to record outcome", zap.String("nudge", n.ID), zap.Error(err))
			continue
		}
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%s is now %s", updated.ID, updated.Status)))
	}

	return nil
}
