// Package cli provides the command-line interface for lecturekb.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/lecturekb/internal/concept"
	"github.com/raphaelgruber/lecturekb/internal/config"
	"github.com/raphaelgruber/lecturekb/internal/metrics"
	"github.com/raphaelgruber/lecturekb/internal/tracker"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, metrics and log cleanup
	cfg        config.Config
	collector  *metrics.Collector
	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "lecturekb",
	Short: "Turn lecture transcripts into cross-linked knowledge-base notes",
	Long: `Lecturekb converts timestamped lecture transcripts into markdown
knowledge-base notes with YAML front matter and [[wiki-link]] cross
references, maintained in a per-subject concept index.

Generation segments the transcript per knowledge point and fans the
LLM calls out under a rate-limit-aware scheduler; enhancement re-links
existing notes against the grown concept graph, touching only notes
whose content actually changed.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)
		logCleanup = cleanup

		collector = metrics.NewCollector()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// stateDir is where lecturekb keeps its machine state alongside a note
// corpus: concept index, change tracking, embedding cache.
const stateDir = ".lecturekb"

// newConceptStore opens the concept index for a note corpus. The JSON
// index lives in the state directory; the human-readable markdown
// index sits next to the notes.
func newConceptStore(notesDir string) (*concept.Store, error) {
	store := concept.NewStore(
		filepath.Join(notesDir, stateDir, "concepts.json"),
		filepath.Join(notesDir, "概念索引.md"),
	)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load concept index: %w", err)
	}
	return store, nil
}

func newTracker(notesDir string) *tracker.Tracker {
	return tracker.New(filepath.Join(notesDir, stateDir, "note_change_tracking.json"))
}

// cachePath resolves the embedding cache location, keeping relative
// configured paths inside the note corpus.
func cachePath(notesDir string) string {
	if filepath.IsAbs(cfg.CacheFile) {
		return cfg.CacheFile
	}
	return filepath.Join(notesDir, cfg.CacheFile)
}

func metricsPath(notesDir string) string {
	return filepath.Join(notesDir, stateDir, "metrics.json")
}

// saveMetrics persists the run's collector snapshot next to the note
// corpus so a later stats invocation can report on it. Failures are
// logged, not fatal.
func saveMetrics(notesDir, command string) {
	if collector == nil {
		return
	}
	if err := metrics.WriteSnapshot(metricsPath(notesDir), command, collector.Snapshot()); err != nil {
		slog.Warn("failed to persist metrics snapshot", "error", err)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the lecturekb version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lecturekb %s\n", Version)
	},
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
