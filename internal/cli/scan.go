package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scanNotesDir string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rebuild the concept index from a note corpus",
	Long: `Scan walks the note directory, reads every note's front matter and
wiki links, and rewrites the concept index from what it finds. Use it
after moving or hand-editing notes.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanNotesDir, "notes", "n", "", "note corpus directory")

	_ = scanCmd.MarkFlagRequired("notes")
}

func runScan(cmd *cobra.Command, args []string) error {
	store, err := newConceptStore(scanNotesDir)
	if err != nil {
		return err
	}

	if err := store.Scan(scanNotesDir); err != nil {
		return fmt.Errorf("rebuild concept index: %w", err)
	}

	fmt.Printf("Concept index rebuilt: %d concepts\n", store.Len())
	return nil
}
