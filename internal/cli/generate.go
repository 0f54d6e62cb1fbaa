package cli

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/lecturekb/internal/generate"
	"github.com/raphaelgruber/lecturekb/internal/llm"
	"github.com/raphaelgruber/lecturekb/internal/notes"
	"github.com/raphaelgruber/lecturekb/internal/scheduler"
	"github.com/raphaelgruber/lecturekb/internal/segment"
	"github.com/spf13/cobra"
)

var (
	generateTranscript string
	generateOutline    string
	generateSubject    string
	generateOut        string
	generateCourseURL  string
	generatePlain      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate notes from a lecture transcript",
	Long: `Generate segments the transcript around each knowledge point in the
outline, asks the LLM for one note per point and writes the results
under the output directory, updating the concept index.`,
	Example: `  lecturekb generate --transcript lecture.lrc --concepts outline.md --subject 数学 --out ./notes
  lecturekb generate -t lecture.srt -c outline.md -s 物理 -o ./notes --course-url https://example.com/watch?v=abc`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateTranscript, "transcript", "t", "", "transcript file (LRC, SRT or plain text)")
	generateCmd.Flags().StringVarP(&generateOutline, "concepts", "c", "", "knowledge-point outline file")
	generateCmd.Flags().StringVarP(&generateSubject, "subject", "s", "", "subject the notes belong to")
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "", "note output directory")
	generateCmd.Flags().StringVar(&generateCourseURL, "course-url", "", "course URL for timestamp deep links")
	generateCmd.Flags().BoolVar(&generatePlain, "plain", false, "disable the interactive progress display")

	_ = generateCmd.MarkFlagRequired("transcript")
	_ = generateCmd.MarkFlagRequired("concepts")
	_ = generateCmd.MarkFlagRequired("subject")
	_ = generateCmd.MarkFlagRequired("out")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	transcript, err := os.ReadFile(generateTranscript)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	outline, err := os.ReadFile(generateOutline)
	if err != nil {
		return fmt.Errorf("read outline: %w", err)
	}

	model, err := llm.NewModel(cfg)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	noteStore, err := notes.NewStore(generateOut)
	if err != nil {
		return err
	}
	conceptStore, err := newConceptStore(generateOut)
	if err != nil {
		return err
	}

	segmenter := segment.New(segment.Config{
		BufferSeconds: cfg.BufferSeconds,
		MaxGap:        cfg.MaxGapSeconds,
	})
	sched := scheduler.New(scheduler.Config{
		ConcurrencyCeiling: cfg.ConcurrencyCeiling,
		MaxRetries:         cfg.MaxRetries,
		RetryBaseDelay:     cfg.RetryBaseDelay,
		QuotaWindow:        cfg.QuotaWindow,
		PerTaskTimeout:     cfg.PerTaskTimeout,
		IsFatal:            generate.IsFatal,
	})

	pipeline := generate.New(model, segmenter, sched, noteStore, conceptStore, collector)
	req := generate.Request{
		Transcript: string(transcript),
		Outline:    string(outline),
		Subject:    generateSubject,
		CourseURL:  generateCourseURL,
	}

	ctx := cmd.Context()
	var report generate.Report
	if generatePlain {
		report, err = pipeline.Run(ctx, req)
	} else {
		report, err = runGenerationProgress(func(onProgress func(completed, total int)) (generate.Report, error) {
			req.OnProgress = onProgress
			return pipeline.Run(ctx, req)
		})
	}
	if err != nil {
		return err
	}

	saveMetrics(generateOut, "generate")

	fmt.Printf("Knowledge points: %d\n", report.KnowledgePoints)
	fmt.Printf("Notes written:    %d\n", report.NotesWritten)
	if len(report.Skipped) > 0 {
		fmt.Printf("Skipped, no transcript text (%d):\n", len(report.Skipped))
		for _, name := range report.Skipped {
			fmt.Printf("  • %s\n", name)
		}
	}
	if len(report.Failed) > 0 {
		fmt.Printf("Failed (%d):\n", len(report.Failed))
		for _, name := range report.Failed {
			fmt.Printf("  • %s\n", name)
		}
	}
	return nil
}
