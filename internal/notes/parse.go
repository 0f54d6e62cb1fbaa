package notes

import (
	"fmt"
	"log/slog"
	"strings"
)

// NoteSeparator splits a multi-note model response.
const NoteSeparator = "=== NOTE_SEPARATOR ==="

// ConceptRef identifies the concept a response was generated for, used
// to synthesize minimal metadata when the model's own metadata is
// unusable.
type ConceptRef struct {
	ID      string
	Name    string
	Subject string
}

// ParseResponse parses a model response into notes. Multi-note
// responses are split on NoteSeparator; each document is parsed
// independently so one malformed note cannot sink the rest.
func ParseResponse(response string, ref ConceptRef) []Note {
	response = StripCodeFence(response)

	var parsed []Note
	for _, doc := range strings.Split(response, NoteSeparator) {
		doc = strings.TrimSpace(doc)
		if doc == "" {
			continue
		}
		parsed = append(parsed, parseDocument(doc, ref))
	}
	return parsed
}

// parseDocument handles one note document in either the labelled
// "YAML:"/"CONTENT:" layout or plain front-matter markdown.
func parseDocument(doc string, ref ConceptRef) Note {
	doc = StripCodeFence(doc)

	if metaRaw, content, ok := splitLabelled(doc); ok {
		meta := ParseMeta(metaRaw)
		if meta.Title == "" {
			slog.Warn("model metadata unusable, synthesizing from concept", "concept", ref.Name)
			meta = FallbackMeta(ref)
		}
		return Note{Meta: meta, Content: strings.TrimSpace(content)}
	}

	metaRaw, body := SplitFrontMatter(doc)
	meta := ParseMeta(metaRaw)
	if meta.Title == "" {
		slog.Warn("model metadata unusable, synthesizing from concept", "concept", ref.Name)
		meta = FallbackMeta(ref)
	}
	return Note{Meta: meta, Content: strings.TrimSpace(body)}
}

// splitLabelled extracts the "YAML:" and "CONTENT:" sections.
func splitLabelled(doc string) (meta, content string, ok bool) {
	yamlIdx := strings.Index(doc, "YAML:")
	contentIdx := strings.Index(doc, "CONTENT:")
	if yamlIdx < 0 || contentIdx < 0 || contentIdx < yamlIdx {
		return "", "", false
	}
	meta = strings.TrimSpace(doc[yamlIdx+len("YAML:") : contentIdx])
	meta = StripCodeFence(meta)
	content = strings.TrimSpace(doc[contentIdx+len("CONTENT:"):])
	return meta, content, true
}

// FallbackMeta builds the minimal valid metadata for a concept whose
// generated metadata could not be parsed.
func FallbackMeta(ref ConceptRef) Meta {
	name := ref.Name
	if name == "" {
		name = ref.ID
	}
	return Meta{
		Title:   fmt.Sprintf("【%s】%s", ref.Subject, name),
		Subject: ref.Subject,
		Tags:    []string{ref.Subject},
	}
}

// Enhancement is the parsed result of a note-enhancement response.
type Enhancement struct {
	Modified bool
	Content  string
}

// ParseEnhancement reads the "MODIFIED: true/false" protocol. The
// enhanced content follows an "ENHANCED_CONTENT:" label when the model
// made changes.
func ParseEnhancement(response string) Enhancement {
	response = StripCodeFence(response)

	modified := false
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "MODIFIED:") {
			value := strings.TrimSpace(strings.TrimPrefix(trimmed, "MODIFIED:"))
			modified = strings.EqualFold(value, "true")
			break
		}
	}
	if !modified {
		return Enhancement{}
	}

	idx := strings.Index(response, "ENHANCED_CONTENT:")
	if idx < 0 {
		// Claimed modified but provided nothing usable.
		return Enhancement{}
	}
	content := strings.TrimSpace(response[idx+len("ENHANCED_CONTENT:"):])
	content = StripCodeFence(content)
	if content == "" {
		return Enhancement{}
	}
	return Enhancement{Modified: true, Content: content}
}
