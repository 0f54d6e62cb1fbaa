// Package tracker decides which notes need a re-linking pass by
// comparing normalized content hashes across passes.
package tracker

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LargeGrowthThreshold: more new concepts than this since the last
// pass forces full reprocessing, because incremental linking cannot
// reason about that many new link targets.
const LargeGrowthThreshold = 10

// PassType labels a history entry.
type PassType string

const (
	PassIncremental PassType = "incremental"
	PassFull        PassType = "full"
)

// PassSummary is one history entry.
type PassSummary struct {
	ID             string   `json:"id"`
	Timestamp      string   `json:"timestamp"`
	ProcessedNotes int      `json:"processed_notes"`
	TotalConcepts  int      `json:"total_concepts"`
	Type           PassType `json:"type"`
}

// state is the persisted tracking file.
type state struct {
	LastFullEnhancement string            `json:"last_full_enhancement,omitempty"`
	NoteHashes          map[string]string `json:"note_hashes"`
	ConceptCount        int               `json:"concept_count_at_last_enhancement"`
	History             []PassSummary     `json:"enhancement_history"`
}

// Note pairs a note path with its current content.
type Note struct {
	Path    string
	Content string
}

// Tracker persists note hashes and pass history in a JSON file.
type Tracker struct {
	path  string
	state state
}

// New loads the tracking file at path, starting fresh when it is
// missing or corrupt.
func New(path string) *Tracker {
	t := &Tracker{
		path:  path,
		state: state{NoteHashes: make(map[string]string)},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("tracking file unreadable, starting fresh", "path", path, "error", err)
		}
		return t
	}
	if err := json.Unmarshal(data, &t.state); err != nil {
		slog.Warn("tracking file corrupt, starting fresh", "path", path, "error", err)
		t.state = state{NoteHashes: make(map[string]string)}
		return t
	}
	if t.state.NoteHashes == nil {
		t.state.NoteHashes = make(map[string]string)
	}
	return t
}

// NotesRequiringPass returns the candidates that need reprocessing.
// Concept growth beyond LargeGrowthThreshold returns everything (full
// pass); otherwise exactly the notes whose normalized hash changed.
// An empty result means nothing to do, not an error.
func (t *Tracker) NotesRequiringPass(candidates []Note, conceptCount int) ([]Note, PassType) {
	growth := conceptCount - t.state.ConceptCount
	if growth > LargeGrowthThreshold {
		slog.Info("large concept growth, full pass required",
			"new_concepts", growth,
			"threshold", LargeGrowthThreshold)
		return candidates, PassFull
	}

	var changed []Note
	for _, note := range candidates {
		hash := HashContent(note.Content)
		if stored, ok := t.state.NoteHashes[note.Path]; !ok || stored != hash {
			changed = append(changed, note)
		}
	}
	slog.Info("incremental diff computed", "candidates", len(candidates), "changed", len(changed))
	return changed, PassIncremental
}

// RecordPass stores the processed notes' hashes, the current concept
// count and a history entry. Call exactly once per completed pass;
// unprocessed notes keep their previous hashes.
func (t *Tracker) RecordPass(processed []Note, conceptCount int, passType PassType) error {
	now := time.Now().Format(time.RFC3339)
	for _, note := range processed {
		t.state.NoteHashes[note.Path] = HashContent(note.Content)
	}
	t.state.ConceptCount = conceptCount
	if passType == PassFull {
		t.state.LastFullEnhancement = now
	}
	t.state.History = append(t.state.History, PassSummary{
		ID:             uuid.NewString(),
		Timestamp:      now,
		ProcessedNotes: len(processed),
		TotalConcepts:  conceptCount,
		Type:           passType,
	})

	return t.save()
}

// ForceFullRebuild clears all tracked hashes so the next pass
// processes every note.
func (t *Tracker) ForceFullRebuild() error {
	slog.Info("tracking state reset, next pass will be full")
	t.state.NoteHashes = make(map[string]string)
	t.state.ConceptCount = 0
	return t.save()
}

// History returns the recorded pass summaries, oldest first.
func (t *Tracker) History() []PassSummary {
	return append([]PassSummary(nil), t.state.History...)
}

func (t *Tracker) save() error {
	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracking state: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tracking dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp tracking file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write tracking state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close tracking file: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace tracking file: %w", err)
	}
	return nil
}

var (
	dateRe       = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	timeRe       = regexp.MustCompile(`\d{2}:\d{2}:\d{2}`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeContent strips volatile substrings (dates, times) and
// collapses whitespace so cosmetic re-saves hash identically.
func NormalizeContent(content string) string {
	content = dateRe.ReplaceAllString(content, "")
	content = timeRe.ReplaceAllString(content, "")
	content = whitespaceRe.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}

// HashContent returns the MD5 hex digest of the normalized content.
func HashContent(content string) string {
	sum := md5.Sum([]byte(NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}
