package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run [command]",
	Short: "Execute a single natural-language command",
	Long: `Runs one command through the pipeline and exits non-zero on failure.

Examples:
  pilot run show only architecture and site
  pilot run "fly to pump 7"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		input := joinArgs(args)
		logger.Info("Executing command", zap.String("input", input))

		result := execute(a, input)
		printResult(result)
		if !result.Success {
			return fmt.Errorf("command failed")
		}
		return nil
	},
}
