// Package generate turns a lecture transcript and a knowledge-point
// outline into written notes and concept index updates.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/lecturekb/internal/concept"
	"github.com/raphaelgruber/lecturekb/internal/llm"
	"github.com/raphaelgruber/lecturekb/internal/metrics"
	"github.com/raphaelgruber/lecturekb/internal/notes"
	"github.com/raphaelgruber/lecturekb/internal/scheduler"
	"github.com/raphaelgruber/lecturekb/internal/segment"
	"github.com/raphaelgruber/lecturekb/internal/subtitle"
)

// Model is the text generation dependency.
type Model interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Request describes one generation run.
type Request struct {
	// Transcript is the raw lecture transcript (LRC, SRT or plain text).
	Transcript string
	// Outline lists the knowledge points, one per line, with optional
	// time ranges.
	Outline string
	Subject string
	// CourseURL, when set, turns timestamp markers in note bodies into
	// deep links.
	CourseURL string
	// OnProgress receives (completed, total) after every batch.
	OnProgress func(completed, total int)
}

// Report summarizes a completed run. Failed holds the names of
// knowledge points whose generation did not produce a note; Skipped
// holds points whose time window matched no transcript text, so no
// task was scheduled for them.
type Report struct {
	KnowledgePoints int
	NotesWritten    int
	Failed          []string
	Skipped         []string
	Stats           scheduler.Stats
}

// Pipeline wires segmentation, scheduling, generation and persistence.
type Pipeline struct {
	model     Model
	segmenter *segment.Segmenter
	sched     *scheduler.Scheduler
	notes     *notes.Store
	concepts  *concept.Store
	collector *metrics.Collector
}

// New creates a Pipeline. collector may be nil.
func New(model Model, segmenter *segment.Segmenter, sched *scheduler.Scheduler, noteStore *notes.Store, conceptStore *concept.Store, collector *metrics.Collector) *Pipeline {
	return &Pipeline{
		model:     model,
		segmenter: segmenter,
		sched:     sched,
		notes:     noteStore,
		concepts:  conceptStore,
		collector: collector,
	}
}

// taskPayload carries a task's knowledge point through the scheduler.
type taskPayload struct {
	point   segment.KnowledgePoint
	segment segment.Segment
}

// Run executes the full pipeline. Individual failed knowledge points
// are reported, not fatal; the returned error covers only conditions
// that stop the whole run.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	points := ParseOutline(req.Outline)
	if len(points) == 0 {
		return Report{}, fmt.Errorf("no knowledge points in outline")
	}

	lines := subtitle.Parse(req.Transcript, subtitle.FormatAuto)
	segments := p.segmenter.Segment(lines, points)

	// The concept context is frozen before any task runs so every
	// prompt in the run sees the same course state.
	courseContext := renderCourseContext(p.concepts.ExportForGeneration())

	var skipped []string
	tasks := make([]scheduler.Task, 0, len(points))
	for i, kp := range points {
		seg := segments[i]
		if seg.Provenance == segment.ProvenanceEmpty {
			slog.Warn("knowledge point has no transcript text, skipping", "concept", kp.Name)
			skipped = append(skipped, kp.Name)
			continue
		}
		prompt := userPrompt(req.Subject, kp, seg, courseContext)
		tasks = append(tasks, scheduler.Task{
			ID:      kp.ID,
			Payload: taskPayload{point: kp, segment: seg},
			Fn: func(ctx context.Context) (string, error) {
				start := time.Now()
				response, err := p.model.GenerateWithSystem(ctx, systemPrompt, prompt)
				if err == nil && p.collector != nil {
					in := int64(segment.TokenEstimate(prompt))
					out := int64(segment.TokenEstimate(response))
					p.collector.RecordLLMUsage(metrics.OpLLMGenerate, time.Since(start), in, out)
				}
				return response, err
			},
		})
	}

	slog.Info("generation run starting",
		"knowledge_points", len(points),
		"tasks", len(tasks),
		"subject", req.Subject)

	outcomes, stats, err := p.sched.Run(ctx, tasks, scheduler.Options{OnProgress: req.OnProgress})
	report := Report{KnowledgePoints: len(points), Skipped: skipped, Stats: stats}
	if err != nil {
		return report, fmt.Errorf("run generation tasks: %w", err)
	}

	updates := make(map[string]concept.Record)
	for _, outcome := range outcomes {
		payload := outcome.Payload.(taskPayload)
		if outcome.Err != nil {
			report.Failed = append(report.Failed, payload.point.Name)
			continue
		}
		written := p.applyResponse(outcome.Result, payload, req, updates)
		if written == 0 {
			report.Failed = append(report.Failed, payload.point.Name)
			continue
		}
		report.NotesWritten += written
	}

	if len(updates) > 0 {
		start := time.Now()
		if err := p.concepts.Update(updates); err != nil {
			return report, fmt.Errorf("update concept index: %w", err)
		}
		if p.collector != nil {
			p.collector.RecordTiming(metrics.OpConceptUpdate, time.Since(start))
		}
	}

	slog.Info("generation run complete",
		"notes_written", report.NotesWritten,
		"failed", len(report.Failed),
		"skipped", len(report.Skipped),
		"concepts_updated", len(updates))
	return report, nil
}

// applyResponse parses one model response and writes its notes,
// accumulating concept index updates. Returns the number of notes
// written.
func (p *Pipeline) applyResponse(response string, payload taskPayload, req Request, updates map[string]concept.Record) int {
	ref := notes.ConceptRef{
		ID:      payload.point.ID,
		Name:    payload.point.Name,
		Subject: req.Subject,
	}

	written := 0
	for _, note := range notes.ParseResponse(response, ref) {
		if note.Meta.Subject == "" {
			note.Meta.Subject = req.Subject
		}
		if note.Meta.CourseURL == "" {
			note.Meta.CourseURL = req.CourseURL
		}
		if note.Meta.TimeRange == "" && payload.segment.Provenance == segment.ProvenanceNormal {
			note.Meta.TimeRange = payload.segment.TimeRange.String()
		}

		start := time.Now()
		path, err := p.notes.Write(note)
		if err != nil {
			slog.Error("failed to write note", "title", note.Meta.Title, "error", err)
			continue
		}
		if p.collector != nil {
			p.collector.RecordTiming(metrics.OpNoteWrite, time.Since(start))
		}
		written++

		related := append([]string(nil), note.Meta.Related...)
		related = append(related, notes.ExtractWikiLinks(note.Content)...)
		updates[note.Meta.Title] = concept.Record{
			FilePath: path,
			Aliases:  note.Meta.Aliases,
			Tags:     note.Meta.Tags,
			Related:  dedupe(related),
			Subject:  note.Meta.Subject,
		}
	}
	return written
}

// IsFatal reports whether a task error must stop retrying. Exposed so
// callers wire it into the scheduler config.
func IsFatal(err error) bool {
	return llm.IsFatal(err)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
