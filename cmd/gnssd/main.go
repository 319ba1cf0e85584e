package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gnssd",
		Short:         "Forsense GNSS/INS receiver daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.AddCommand(runCmd())
	cmd.AddCommand(replayCmd())
	cmd.AddCommand(summaryCmd())
	return cmd
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gnssd: %v\n", err)
		os.Exit(1)
	}
}
