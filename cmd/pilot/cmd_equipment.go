package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scenepilot/internal/retrieval"
)

var (
	equipmentTopK   int
	equipmentOutput string
)

var equipmentCmd = &cobra.Command{
	Use:   "equipment",
	Short: "Search, import, and export the equipment database",
}

var equipmentSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Keyword search over equipment records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		query := joinArgs(args)
		hits := a.equipment.Search(query, equipmentTopK)
		if len(hits) == 0 {
			fmt.Printf("No equipment matches %q.\n", query)
			return nil
		}
		for _, rec := range hits {
			fmt.Print(rec.Describe())
			fmt.Println()
		}
		fmt.Printf("%d of %d records matched\n", len(hits), a.equipment.Count())
		return nil
	},
}

var equipmentImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import equipment records from a JSON list",
	Long: `Reads a JSON array of equipment records, inserts the new ones
(duplicate element IDs are skipped), and persists the database.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read equipment file: %w", err)
		}
		var records []retrieval.Equipment
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("parse equipment file: %w", err)
		}

		inserted, err := a.equipment.InsertBatch(records)
		if err != nil {
			return err
		}
		if err := a.db.SaveEquipment(a.equipment.All()); err != nil {
			return err
		}
		logger.Info("Imported equipment", zap.Int("inserted", inserted), zap.Int("total", a.equipment.Count()))
		fmt.Printf("Imported %d records (%d total)\n", inserted, a.equipment.Count())
		return nil
	},
}

var equipmentExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full equipment database as grouped JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.equipment.WriteExport(equipmentOutput); err != nil {
			return err
		}
		fmt.Printf("Exported %d records to %s\n", a.equipment.Count(), equipmentOutput)
		return nil
	},
}

func init() {
	equipmentSearchCmd.Flags().IntVar(&equipmentTopK, "top-k", 10, "Maximum results")
	equipmentExportCmd.Flags().StringVarP(&equipmentOutput, "output", "o", "complete_database.json", "Export file path")

	equipmentCmd.AddCommand(equipmentSearchCmd)
	equipmentCmd.AddCommand(equipmentImportCmd)
	equipmentCmd.AddCommand(equipmentExportCmd)
}
