package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scenepilot/internal/registry"
)

var (
	entityType     string
	entityCategory string
)

var entitiesCmd = &cobra.Command{
	Use:   "entities [name]",
	Short: "List or find scene entities",
	Long: `Lists registered entities, optionally filtered by a name reference
(exact, alias, fuzzy, semantic, or spatial, the same resolution commands
use), by --type, or by --category.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entities := a.reg.Find(registry.Query{Type: entityType, Category: entityCategory})
		if len(args) == 1 {
			entities = a.orchestrator.ResolveReference(args[0])
		}
		if len(entities) == 0 {
			fmt.Println("No matching entities.")
			return nil
		}

		for _, e := range entities {
			visibility := "hidden"
			if e.Visible {
				visibility = "visible"
			}
			fmt.Printf("%-24s %-10s %-10s %s\n", e.Name, e.Type, visibility, e.ID)
		}
		fmt.Printf("%d entities\n", len(entities))
		return nil
	},
}

func init() {
	entitiesCmd.Flags().StringVar(&entityType, "type", "", "Filter by entity type (layer, feature, camera_target)")
	entitiesCmd.Flags().StringVar(&entityCategory, "category", "", "Filter by semantic category")
}
