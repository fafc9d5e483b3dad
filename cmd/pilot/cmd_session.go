package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var sessionID string

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Export, import, and list saved sessions",
}

var sessionExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the current session context",
	Long: `Writes the session snapshot (dialog history, scene state, retrieval
context) to a JSON file, or saves it in the workspace database when no
file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		snapshot, err := a.sess.Export()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			if err := os.WriteFile(args[0], snapshot, 0o644); err != nil {
				return fmt.Errorf("write session file: %w", err)
			}
			fmt.Printf("Session exported to %s\n", args[0])
			return nil
		}

		if err := a.db.SaveSession(sessionID, snapshot); err != nil {
			return err
		}
		fmt.Printf("Session %q saved to %s\n", sessionID, a.db.Path())
		return nil
	},
}

var sessionImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a session snapshot",
	Long: `Merges a previously exported snapshot into the current session.
Reads from a JSON file, or from the workspace database when no file is
given. Fields absent from the snapshot keep their current values.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var snapshot []byte
		if len(args) == 1 {
			snapshot, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read session file: %w", err)
			}
		} else {
			snapshot, err = a.db.LoadSession(sessionID)
			if err != nil {
				return err
			}
		}

		if err := a.sess.Import(snapshot); err != nil {
			return err
		}
		fmt.Printf("Session imported (%d turns)\n", a.sess.TurnCount())
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions saved in the workspace database",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.db.ListSessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No saved sessions.")
			return nil
		}
		for _, info := range sessions {
			fmt.Printf("%-20s %s\n", info.ID, info.SavedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	sessionCmd.PersistentFlags().StringVar(&sessionID, "id", "default", "Saved-session ID in the workspace database")

	sessionCmd.AddCommand(sessionExportCmd)
	sessionCmd.AddCommand(sessionImportCmd)
	sessionCmd.AddCommand(sessionListCmd)
}
