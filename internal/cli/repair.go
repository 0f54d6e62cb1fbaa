package cli

import (
	"fmt"

	"github.com/raphaelgruber/lecturekb/internal/enhance"
	"github.com/raphaelgruber/lecturekb/internal/notes"
	"github.com/spf13/cobra"
)

var repairNotesDir string

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Normalize [[wiki-links]] across the note corpus",
	Long: `Repair rewrites bare and half-formed [[wiki-links]] into their
canonical "[[【subject】concept|display]]" form, resolving bare names and
aliases through the concept index. Links to unknown concepts are left
untouched.`,
	Example: `  lecturekb repair --notes ./notes`,
	RunE:    runRepair,
}

func init() {
	repairCmd.Flags().StringVarP(&repairNotesDir, "notes", "n", "", "note corpus directory")
	_ = repairCmd.MarkFlagRequired("notes")
}

func runRepair(cmd *cobra.Command, args []string) error {
	noteStore, err := notes.NewStore(repairNotesDir)
	if err != nil {
		return err
	}
	conceptStore, err := newConceptStore(repairNotesDir)
	if err != nil {
		return err
	}
	if conceptStore.Len() == 0 {
		return fmt.Errorf("concept index is empty, run scan or generate first")
	}

	report, err := enhance.RepairLinks(conceptStore, noteStore)
	if err != nil {
		return err
	}

	fmt.Printf("Notes scanned: %d\n", report.Total)
	fmt.Printf("Repaired:      %d\n", report.Repaired)
	fmt.Printf("Unchanged:     %d\n", report.Unchanged)
	if report.Failed > 0 {
		fmt.Printf("Failed:        %d\n", report.Failed)
	}
	return nil
}
