package cli

import (
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/lecturekb/internal/enhance"
	"github.com/raphaelgruber/lecturekb/internal/llm"
	"github.com/raphaelgruber/lecturekb/internal/notes"
	"github.com/raphaelgruber/lecturekb/internal/retrieval"
	"github.com/spf13/cobra"
)

var (
	enhanceNotesDir string
	enhanceForce    bool
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Re-link existing notes against the grown concept graph",
	Long: `Enhance finds notes whose content changed since the last pass (or all
notes, when the concept index grew substantially), retrieves related
concepts for each and asks the LLM to weave in missing [[wiki-links]].
Unchanged notes are skipped.`,
	Example: `  lecturekb enhance --notes ./notes
  lecturekb enhance --notes ./notes --force-full`,
	RunE: runEnhance,
}

func init() {
	enhanceCmd.Flags().StringVarP(&enhanceNotesDir, "notes", "n", "", "note corpus directory")
	enhanceCmd.Flags().BoolVar(&enhanceForce, "force-full", false, "reprocess every note regardless of tracking state")

	_ = enhanceCmd.MarkFlagRequired("notes")
}

func runEnhance(cmd *cobra.Command, args []string) error {
	model, err := llm.NewModel(cfg)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	embedder, err := llm.NewEmbedder(cfg, collector)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}

	noteStore, err := notes.NewStore(enhanceNotesDir)
	if err != nil {
		return err
	}
	conceptStore, err := newConceptStore(enhanceNotesDir)
	if err != nil {
		return err
	}

	// Reranking needs an external endpoint; without one, retrieval
	// degrades to embedding recall only.
	var reranker retrieval.Reranker
	if r, err := llm.NewReranker(cfg, collector); err != nil {
		slog.Warn("reranker unavailable, using embedding recall only", "error", err)
	} else {
		reranker = r
	}

	cache := retrieval.OpenCache(cachePath(enhanceNotesDir), cfg.EmbedModel)
	retriever := retrieval.New(embedder, reranker, cache, retrieval.Config{
		RecallK:        cfg.RecallK,
		RerankK:        cfg.RerankK,
		ScoreThreshold: cfg.ScoreThreshold,
	})

	service := enhance.New(model, retriever, newTracker(enhanceNotesDir), conceptStore, noteStore, collector)
	report, err := service.Run(cmd.Context(), enhanceForce)
	if err != nil {
		return err
	}

	saveMetrics(enhanceNotesDir, "enhance")

	fmt.Printf("Pass type:  %s\n", report.PassType)
	fmt.Printf("Candidates: %d\n", report.Candidates)
	fmt.Printf("Processed:  %d\n", report.Processed)
	fmt.Printf("Modified:   %d\n", report.Modified)
	fmt.Printf("Unchanged:  %d\n", report.Unchanged)
	if report.Failed > 0 {
		fmt.Printf("Failed:     %d\n", report.Failed)
	}
	return nil
}
