package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"scenepilot/internal/config"
	"scenepilot/internal/logging"
)

var (
	// Global flags
	verbose   bool
	apiKey    string
	workspace string
	localOnly bool

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "ScenePilot - natural-language control for 3D scene viewers",
	Long: `ScenePilot turns natural-language commands into scene operations:
layer visibility, camera navigation, and feature highlighting.

Commands go through a deterministic parse/match/validate pipeline; when a
completion-service API key is configured, an agent pipeline handles
free-form input and falls back to the local pipeline on any failure.

Run without arguments to start the interactive chat loop.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws := resolveWorkspace()

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(ws); err != nil {
			return fmt.Errorf("failed to initialize file logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ScenePilot version",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.DefaultConfig()
		fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Completion-service API key (or set PILOT_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().BoolVar(&localOnly, "local", false, "Force the local pipeline, skip the agent path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(equipmentCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(versionCmd)
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
