package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load users' career state from a JSON file into the local store",
	Long: `Replaces the stored career state (profile, skills, applications, interviews, goals, documents)
of every user in the file. Use "-" to read from stdin. Nudges and preferences are left alone.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustServices(ctx)
		defer s.Close()

		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				s.logger.Fatal("unable to open state file", zap.Error(err))
			}
			defer f.Close()
			r = f
		}

		n, err := s.store.ImportState(ctx, r)
		if err != nil {
			s.logger.Fatal("import failed", zap.Error(err))
		}

		s.logger.Info("career state imported", zap.Int("users", n), zap.String("file", args[0]))
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
