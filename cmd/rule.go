package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/spigell/nudger/internal/nudge"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ruleCmd = &cobra.Command{
	Use:   "rule USER TYPE",
	Short: "Evaluate one rule for a user without gates, cooldowns or persistence",
	Long: "Evaluate one rule for a user without gates, cooldowns or persistence.\n\nKnown rules: " +
		strings.Join(ruleTypeNames(), ", "),
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustServices(ctx)
		defer s.Close()

		rt, err := nudge.ParseRuleType(args[1])
		if err != nil {
			s.logger.Fatal("bad rule type", zap.Error(err))
		}

		check, err := s.engine.EvaluateSingleRule(ctx, args[0], rt)
		if err != nil {
			var ruleErr *nudge.RuleError
			if errors.As(err, &ruleErr) {
				s.logger.Fatal("rule failed", zap.String("rule", string(ruleErr.RuleType)), zap.Error(ruleErr.Err))
			}
			s.logger.Fatal("unable to evaluate rule", zap.Error(err))
		}

		if err := emit(cmd.OutOrStdout(), check, func() { printRuleCheck(cmd.OutOrStdout(), check) }); err != nil {
			s.logger.Fatal("printing result", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(ruleCmd)
}

func ruleTypeNames() []string {
	types := nudge.AllRuleTypes()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return names
}
