package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/raphaelgruber/lecturekb/internal/metrics"
	"github.com/spf13/cobra"
)

var statsNotesDir string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show metrics recorded by the last generate or enhance run",
	Long: `Stats reads the metrics snapshot that generate and enhance persist
alongside the note corpus and prints per-operation timings and token
usage for the most recent run.`,
	Example: `  lecturekb stats --notes ./notes`,
	RunE:    runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsNotesDir, "notes", "n", "", "note corpus directory")
	_ = statsCmd.MarkFlagRequired("notes")
}

func runStats(cmd *cobra.Command, args []string) error {
	saved, err := metrics.ReadSnapshot(metricsPath(statsNotesDir))
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Println("No recorded runs. Run generate or enhance first.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Last run: %s (%s)\n", saved.Command, saved.RecordedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration: %.1fs\n\n", saved.Snapshot.UptimeSeconds)

	snap := saved.Snapshot
	printOp("Embedding", snap.Embedding)
	printOp("LLM generate", snap.LLMGenerate)
	printOp("Rerank", snap.Rerank)
	printOp("Note writes", snap.NoteWrite)
	printOp("Concept updates", snap.ConceptUpdate)
	return nil
}

func printOp(name string, op *metrics.OperationSnapshot) {
	if op == nil {
		fmt.Printf("%-16s no activity\n", name+":")
		return
	}

	fmt.Printf("%-16s %d calls, avg %.1fms (min %dms, max %dms)\n",
		name+":", op.Count, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.TotalInputTokens != nil {
		fmt.Printf("%-16s ~%d in / ~%d out tokens (avg %.0f / %.0f)\n",
			"", *op.TotalInputTokens, *op.TotalOutputTokens,
			*op.AvgInputTokens, *op.AvgOutputTokens)
	}
}
