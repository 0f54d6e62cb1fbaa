package generate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/raphaelgruber/lecturekb/internal/segment"
)

var (
	listMarkerRe = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.、)])\s*`)
	// nameStopRe marks where a knowledge point's name ends: an opening
	// paren or the first time token.
	nameStopRe = regexp.MustCompile(`[（(]|\d{1,3}:\d{2}`)
)

// ParseOutline turns a knowledge-point outline into segmentation input.
// One point per non-empty line, e.g. "- 函数定义 (12:30-14:00)"; list
// markers are stripped and the name is the text before any time range.
func ParseOutline(raw string) []segment.KnowledgePoint {
	var points []segment.KnowledgePoint
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		stripped := listMarkerRe.ReplaceAllString(line, "")
		name := stripped
		if loc := nameStopRe.FindStringIndex(stripped); loc != nil {
			name = stripped[:loc[0]]
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		points = append(points, segment.KnowledgePoint{
			ID:   fmt.Sprintf("kp-%03d", len(points)+1),
			Name: name,
			Raw:  stripped,
		})
	}
	return points
}
