package enhance

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/raphaelgruber/lecturekb/internal/concept"
	"github.com/raphaelgruber/lecturekb/internal/notes"
)

// LinkRepairReport summarizes one repair pass over the corpus.
type LinkRepairReport struct {
	Total     int
	Repaired  int
	Unchanged int
	Failed    int
}

var wikiLinkPattern = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// RepairLinks normalizes every [[wiki-link]] in the note corpus against
// the concept index. Bare links gain their subject-prefixed canonical
// target and a display alias; links to unknown concepts are left
// untouched.
func RepairLinks(conceptStore *concept.Store, noteStore *notes.Store) (LinkRepairReport, error) {
	collected, err := collectNotes(noteStore.Root())
	if err != nil {
		return LinkRepairReport{}, fmt.Errorf("collect notes: %w", err)
	}

	report := LinkRepairReport{Total: len(collected)}
	slog.Info("link repair pass starting", "notes", len(collected))

	for _, note := range collected {
		repaired, changed := repairContent(note.Content, conceptStore)
		if !changed {
			report.Unchanged++
			continue
		}
		if err := noteStore.Replace(note.Path, repaired); err != nil {
			slog.Warn("failed to write repaired note", "path", note.Path, "error", err)
			report.Failed++
			continue
		}
		report.Repaired++
	}

	slog.Info("link repair pass complete",
		"repaired", report.Repaired,
		"unchanged", report.Unchanged,
		"failed", report.Failed)
	return report, nil
}

// repairContent rewrites each link in one note's text, reporting whether
// anything changed.
func repairContent(content string, store *concept.Store) (string, bool) {
	changed := false
	repaired := wikiLinkPattern.ReplaceAllStringFunc(content, func(match string) string {
		inner := match[2 : len(match)-2]
		fixed, ok := repairLink(inner, store)
		if !ok {
			return match
		}
		changed = true
		return "[[" + fixed + "]]"
	})
	return repaired, changed
}

// repairLink normalizes one link's inner text. Three malformed shapes
// are fixed, always against an existing concept:
//
//	[[name|display]] -> [[【subject】name|display]]
//	[[name]]         -> [[【subject】name|name]]
//	[[【subject】name]] -> [[【subject】name|name]]
//
// Links that are already canonical, or whose target resolves to no
// concept, are left alone.
func repairLink(inner string, store *concept.Store) (string, bool) {
	target := inner
	display := ""
	if idx := strings.Index(inner, "|"); idx >= 0 {
		target = inner[:idx]
		display = inner[idx+1:]
	}

	if strings.HasPrefix(target, "【") {
		if display != "" {
			return "", false
		}
		// Prefixed but missing its display alias.
		if _, ok := store.Get(target); !ok {
			return "", false
		}
		return target + "|" + concept.BareName(target), true
	}

	_, title, ok := store.Lookup(target)
	if !ok {
		return "", false
	}
	if display == "" {
		display = target
	}
	return title + "|" + display, true
}
