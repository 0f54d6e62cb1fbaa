// Package notes parses model responses into note records and writes
// them to disk as front-matter markdown.
package notes

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Meta is a note's front matter.
type Meta struct {
	Title     string   `yaml:"title"`
	Aliases   []string `yaml:"aliases,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
	Subject   string   `yaml:"subject,omitempty"`
	Related   []string `yaml:"related_concepts,omitempty"`
	CourseURL string   `yaml:"course_url,omitempty"`
	TimeRange string   `yaml:"time_range,omitempty"`
	Created   string   `yaml:"created,omitempty"`
}

// Note is one parsed knowledge-base note.
type Note struct {
	Meta    Meta
	Content string
}

// SplitFrontMatter separates "---" delimited front matter from the
// body. A missing closing delimiter yields empty metadata and the
// whole remainder as body.
func SplitFrontMatter(content string) (meta string, body string) {
	if !strings.HasPrefix(content, "---\n") {
		return "", content
	}
	rest := strings.TrimPrefix(content, "---\n")
	endIdx := strings.Index(rest, "\n---")
	if endIdx < 0 {
		return "", content
	}
	meta = rest[:endIdx]
	body = strings.TrimLeft(rest[endIdx+4:], "\n")
	return meta, body
}

// ParseMeta unmarshals front matter YAML, repairing the common model
// mistake of omitting the space after a key's colon. Unparseable
// metadata returns the zero Meta, never an error.
func ParseMeta(raw string) Meta {
	var meta Meta
	if err := yaml.Unmarshal([]byte(raw), &meta); err == nil {
		return meta
	}
	repaired := repairYAML(raw)
	if err := yaml.Unmarshal([]byte(repaired), &meta); err != nil {
		return Meta{}
	}
	return meta
}

var missingSpaceRe = regexp.MustCompile(`(?m)^(\s*[^:\s][^:\n]*):(\S)`)

// repairYAML inserts the space after colons that models drop, e.g.
// "title:函数定义" becomes "title: 函数定义".
func repairYAML(raw string) string {
	return missingSpaceRe.ReplaceAllString(raw, "$1: $2")
}

var wikiLinkRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// ExtractWikiLinks finds [[wiki-style]] link targets in content. For
// [[Title|Alias]] only the title part counts. Results are deduped in
// first-seen order.
func ExtractWikiLinks(content string) []string {
	matches := wikiLinkRe.FindAllStringSubmatch(content, -1)

	links := make([]string, 0, len(matches))
	seen := make(map[string]bool)
	for _, match := range matches {
		link := strings.TrimSpace(match[1])
		if idx := strings.Index(link, "|"); idx >= 0 {
			link = strings.TrimSpace(link[:idx])
		}
		if link != "" && !seen[link] {
			links = append(links, link)
			seen[link] = true
		}
	}
	return links
}

var codeFenceRe = regexp.MustCompile("^```[a-zA-Z0-9_-]*\n")

// StripCodeFence removes one outer fenced code block, with or without
// a language tag. Inner fences are left alone.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	without := codeFenceRe.ReplaceAllString(trimmed, "")
	if without == trimmed {
		return s
	}
	if idx := strings.LastIndex(without, "\n```"); idx >= 0 {
		without = without[:idx] + without[idx+4:]
	}
	return strings.TrimSpace(without)
}
