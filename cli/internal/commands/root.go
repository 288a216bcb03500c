package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// NewRoot returns the errprop root command with every subcommand attached.
func NewRoot() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "errprop",
		Short:         "Linear error propagation for sums and differences",
		Long:          "errprop adds and subtracts measured quantities and propagates their absolute errors: δR = δA + δB + δC + ...",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log parsing details to stderr")

	root.AddCommand(newCalcCommand(), newSlidesCommand())
	return root
}
