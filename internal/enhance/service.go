// Package enhance re-links existing notes against the grown concept
// graph, touching only notes whose content actually changed.
package enhance

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/lecturekb/internal/concept"
	"github.com/raphaelgruber/lecturekb/internal/llm"
	"github.com/raphaelgruber/lecturekb/internal/metrics"
	"github.com/raphaelgruber/lecturekb/internal/notes"
	"github.com/raphaelgruber/lecturekb/internal/retrieval"
	"github.com/raphaelgruber/lecturekb/internal/tracker"
)

// Model is the text generation dependency.
type Model interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CandidateFinder is the retrieval dependency.
type CandidateFinder interface {
	BuildEmbeddings(ctx context.Context, store *concept.Store) error
	FindCandidates(ctx context.Context, query string, store *concept.Store) ([]retrieval.Candidate, error)
}

// Report summarizes one enhancement pass. Partial success is the
// normal case: a failed note is counted and skipped, not fatal.
type Report struct {
	Candidates int
	Processed  int
	Modified   int
	Unchanged  int
	Failed     int
	PassType   tracker.PassType
}

// Service runs enhancement passes.
type Service struct {
	model     Model
	finder    CandidateFinder
	tracker   *tracker.Tracker
	concepts  *concept.Store
	notes     *notes.Store
	collector *metrics.Collector
}

// New creates a Service. collector may be nil.
func New(model Model, finder CandidateFinder, tr *tracker.Tracker, conceptStore *concept.Store, noteStore *notes.Store, collector *metrics.Collector) *Service {
	return &Service{
		model:     model,
		finder:    finder,
		tracker:   tr,
		concepts:  conceptStore,
		notes:     noteStore,
		collector: collector,
	}
}

// Run executes one enhancement pass over the note corpus. With force
// set, tracking state is reset first so every note is reprocessed.
func (s *Service) Run(ctx context.Context, force bool) (Report, error) {
	if force {
		if err := s.tracker.ForceFullRebuild(); err != nil {
			return Report{}, fmt.Errorf("reset tracking state: %w", err)
		}
	}

	if err := s.finder.BuildEmbeddings(ctx, s.concepts); err != nil {
		return Report{}, fmt.Errorf("build concept embeddings: %w", err)
	}

	candidates, err := collectNotes(s.notes.Root())
	if err != nil {
		return Report{}, fmt.Errorf("collect notes: %w", err)
	}

	pending, passType := s.tracker.NotesRequiringPass(candidates, s.concepts.Len())
	report := Report{Candidates: len(candidates), PassType: passType}
	if len(pending) == 0 {
		slog.Info("no notes require enhancement")
		return report, nil
	}

	slog.Info("enhancement pass starting", "pass_type", passType, "notes", len(pending))

	var processed []tracker.Note
	for _, note := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		final, modified, err := s.enhanceOne(ctx, note)
		if err != nil {
			if llm.IsFatal(err) {
				return report, fmt.Errorf("enhance %s: %w", note.Path, err)
			}
			slog.Warn("note enhancement failed, skipping", "path", note.Path, "error", err)
			report.Failed++
			continue
		}

		report.Processed++
		if modified {
			report.Modified++
		} else {
			report.Unchanged++
		}
		processed = append(processed, tracker.Note{Path: note.Path, Content: final})
	}

	if len(processed) > 0 {
		if err := s.tracker.RecordPass(processed, s.concepts.Len(), passType); err != nil {
			return report, fmt.Errorf("record pass: %w", err)
		}
	}

	slog.Info("enhancement pass complete",
		"processed", report.Processed,
		"modified", report.Modified,
		"unchanged", report.Unchanged,
		"failed", report.Failed)
	return report, nil
}

// enhanceOne retrieves link candidates for one note, asks the model for
// an enhanced body and applies it. Returns the note's final content.
func (s *Service) enhanceOne(ctx context.Context, note tracker.Note) (final string, modified bool, err error) {
	metaRaw, body := notes.SplitFrontMatter(note.Content)
	meta := notes.ParseMeta(metaRaw)

	query := meta.Title
	if query == "" {
		query = filepath.Base(note.Path)
	}
	query += "\n" + excerpt(body, 1500)

	found, err := s.finder.FindCandidates(ctx, query, s.concepts)
	if err != nil {
		return "", false, fmt.Errorf("find candidates: %w", err)
	}
	if len(found) == 0 {
		slog.Debug("no link candidates for note", "path", note.Path)
		return note.Content, false, nil
	}

	start := time.Now()
	response, err := s.model.GenerateWithSystem(ctx, enhanceSystemPrompt, enhanceUserPrompt(meta.Title, body, found))
	if err != nil {
		return "", false, err
	}
	if s.collector != nil {
		s.collector.RecordLLMUsage(metrics.OpLLMGenerate, time.Since(start),
			int64(len(body)), int64(len(response)))
	}

	enhancement := notes.ParseEnhancement(response)
	if !enhancement.Modified {
		return note.Content, false, nil
	}

	updated := notes.Render(notes.Note{Meta: meta, Content: enhancement.Content})
	if err := s.notes.Replace(note.Path, updated); err != nil {
		return "", false, fmt.Errorf("apply enhancement: %w", err)
	}
	return updated, true, nil
}

const enhanceSystemPrompt = `你是一名知识库维护助手。检查给定笔记的正文，在合适的位置为列出的已有概念补充 [[双链]] 引用。

规则：
- 只在语义确实相关处添加双链，不要生硬堆砌。
- 不改写原有内容，不删除已有双链。
- 输出格式：
MODIFIED: true 或 false
ENHANCED_CONTENT:
（仅当 MODIFIED 为 true 时输出修改后的完整正文）`

func enhanceUserPrompt(title, body string, candidates []retrieval.Candidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "笔记：%s\n\n可引用的概念：\n", title)
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- [[%s]]\n", c.Title)
	}
	sb.WriteString("\n正文：\n")
	sb.WriteString(body)
	return sb.String()
}

// collectNotes gathers every markdown note under root, skipping backup
// files left by interrupted writes.
func collectNotes(root string) ([]tracker.Note, error) {
	var collected []tracker.Note
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		// Only front-matter markdown is a managed note; generated
		// index files and stray markdown are left alone.
		if !strings.HasPrefix(string(data), "---\n") {
			return nil
		}
		collected = append(collected, tracker.Note{Path: path, Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collected, nil
}

func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
