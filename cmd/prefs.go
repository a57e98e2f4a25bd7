package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change a user's nudge preferences",
}

var prefsGetCmd = &cobra.Command{
	Use:   "get USER",
	Short: "Show preferences, creating the defaults on first read",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustServices(ctx)
		defer s.Close()

		p, err := s.engine.GetUserPreferences(ctx, args[0])
		if err != nil {
			s.logger.Fatal("unable to load preferences", zap.Error(err))
		}

		if err := emit(cmd.OutOrStdout(), p, func() { printPreferences(cmd.OutOrStdout(), p) }); err != nil {
			s.logger.Fatal("printing preferences", zap.Error(err))
		}
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set USER KEY=VALUE...",
	Short: "Update preferences, e.g. daily_limit=5 quiet_hours_start=23 channels.email=true",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		partial, err := parseAssignments(args[1:])
		if err != nil {
			cmd.PrintErrln(err)
			os.Exit(1)
		}

		ctx := context.Background()
		s := mustServices(ctx)
		defer s.Close()

		p, err := s.engine.SetUserPreferences(ctx, args[0], partial)
		if err != nil {
			s.logger.Fatal("unable to update preferences", zap.Error(err))
		}

		if err := emit(cmd.OutOrStdout(), p, func() { printPreferences(cmd.OutOrStdout(), p) }); err != nil {
			s.logger.Fatal("printing preferences", zap.Error(err))
		}
	},
}

func init() {
	prefsCmd.AddCommand(prefsGetCmd, prefsSetCmd)
	rootCmd.AddCommand(prefsCmd)
}

// parseAssignments turns key=value pairs into a partial preferences map.
// Dotted keys nest, so channels.email=true becomes {"channels": {"email": "true"}}.
// Values stay strings and are converted when the patch is decoded.
func parseAssignments(args []string) (map[string]any, error) {
	partial := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}

		parent, child, nested := strings.Cut(key, ".")
		if !nested {
			partial[key] = strings.TrimSpace(value)
			continue
		}

		m, _ := partial[parent].(map[string]any)
		if m == nil {
			if _, taken := partial[parent]; taken {
				return nil, fmt.Errorf("%q is set both as a value and as a group", parent)
			}
			m = map[string]any{}
			partial[parent] = m
		}
		m[child] = strings.TrimSpace(value)
	}
	return partial, nil
}
