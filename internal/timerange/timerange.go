// Package timerange parses, normalizes and merges transcript time ranges.
package timerange

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultMaxGap is the largest gap (seconds) between two ranges that
	// still counts as adjacent for merging.
	DefaultMaxGap = 5.0

	// DefaultBuffer is the symmetric padding (seconds) added around a
	// knowledge point's time window.
	DefaultBuffer = 30.0

	// maxValidSeconds caps a plausible lecture timestamp at 24 hours.
	maxValidSeconds = 24 * 3600.0
)

// TimeRange is a half-open slice of lecture time owned by one or more
// knowledge points. Start is always <= End.
type TimeRange struct {
	Start  float64
	End    float64
	Owners []string
}

// New builds a TimeRange, swapping start and end if given in reverse.
func New(start, end float64, owners ...string) TimeRange {
	if start > end {
		start, end = end, start
	}
	return TimeRange{Start: start, End: end, Owners: owners}
}

// Duration returns the range length in seconds.
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// Overlaps reports whether the two ranges share any time.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// AdjacentWithin reports whether the gap between the two ranges is at
// most maxGap seconds.
func (r TimeRange) AdjacentWithin(other TimeRange, maxGap float64) bool {
	if r.Overlaps(other) {
		return false
	}
	var gap float64
	if r.End < other.Start {
		gap = other.Start - r.End
	} else {
		gap = r.Start - other.End
	}
	return gap <= maxGap
}

// Mergeable reports whether the ranges overlap or sit within maxGap of
// each other.
func (r TimeRange) Mergeable(other TimeRange, maxGap float64) bool {
	return r.Overlaps(other) || r.AdjacentWithin(other, maxGap)
}

// Merge unions two ranges: min start, max end, combined owners.
func (r TimeRange) Merge(other TimeRange) TimeRange {
	merged := TimeRange{
		Start: math.Min(r.Start, other.Start),
		End:   math.Max(r.End, other.End),
	}
	seen := make(map[string]bool, len(r.Owners)+len(other.Owners))
	for _, o := range r.Owners {
		if !seen[o] {
			merged.Owners = append(merged.Owners, o)
			seen[o] = true
		}
	}
	for _, o := range other.Owners {
		if !seen[o] {
			merged.Owners = append(merged.Owners, o)
			seen[o] = true
		}
	}
	return merged
}

// Valid reports whether the range lies inside a plausible lecture.
func (r TimeRange) Valid() bool {
	return r.Start >= 0 && r.End >= 0 && r.Start <= maxValidSeconds && r.End <= maxValidSeconds
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s-%s", FormatSeconds(r.Start), FormatSeconds(r.End))
}

// Time token patterns, most specific first. Matched against trimmed
// fragments like "01:23:45.678" or "23:45" or "45.6".
var timePatterns = []struct {
	re    *regexp.Regexp
	parse func(m []string) float64
}{
	{
		// HH:MM:SS.mmm
		regexp.MustCompile(`^(\d{1,2}):(\d{1,2}):(\d{1,2})\.(\d{1,3})$`),
		func(m []string) float64 {
			return atoiF(m[1])*3600 + atoiF(m[2])*60 + atoiF(m[3]) + fraction(m[4])
		},
	},
	{
		// HH:MM:SS
		regexp.MustCompile(`^(\d{1,2}):(\d{1,2}):(\d{1,2})$`),
		func(m []string) float64 {
			return atoiF(m[1])*3600 + atoiF(m[2])*60 + atoiF(m[3])
		},
	},
	{
		// MM:SS.mmm
		regexp.MustCompile(`^(\d{1,3}):(\d{1,2})\.(\d{1,3})$`),
		func(m []string) float64 {
			return atoiF(m[1])*60 + atoiF(m[2]) + fraction(m[3])
		},
	},
	{
		// MM:SS
		regexp.MustCompile(`^(\d{1,3}):(\d{1,2})$`),
		func(m []string) float64 {
			return atoiF(m[1])*60 + atoiF(m[2])
		},
	},
	{
		// SS.mmm
		regexp.MustCompile(`^(\d{1,5})\.(\d{1,3})$`),
		func(m []string) float64 {
			return atoiF(m[1]) + fraction(m[2])
		},
	},
	{
		// SS
		regexp.MustCompile(`^(\d{1,5})$`),
		func(m []string) float64 {
			return atoiF(m[1])
		},
	},
}

// rangeSeparators split "12:30-14:00" style expressions. Includes the
// CJK separators that show up in lecture outlines.
var rangeSeparators = []string{"-", "~", "to", "至", "到"}

// timeExprRe finds candidate time expressions inside free text, e.g.
// "(12:30.500-14:00)" inside a knowledge point line. Only colon forms
// qualify here so bare counts like "第3章" don't turn into timestamps.
var timeExprRe = regexp.MustCompile(`\d{1,3}:\d{1,2}(?::\d{1,2})?(?:\.\d{1,3})?(?:\s*(?:-|~|to|至|到)\s*\d{1,3}:\d{1,2}(?::\d{1,2})?(?:\.\d{1,3})?)?`)

// ParseSeconds converts a single time token to seconds.
func ParseSeconds(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, p := range timePatterns {
		if m := p.re.FindStringSubmatch(s); m != nil {
			return p.parse(m), nil
		}
	}
	return 0, fmt.Errorf("unrecognized time %q", s)
}

// ParseRange parses a "start-end" expression into a TimeRange. A lone
// time yields a zero-duration range at that instant.
func ParseRange(expr string, owners ...string) (TimeRange, error) {
	expr = strings.TrimSpace(expr)
	for _, sep := range rangeSeparators {
		idx := splitIndex(expr, sep)
		if idx < 0 {
			continue
		}
		start, err := ParseSeconds(expr[:idx])
		if err != nil {
			continue
		}
		end, err := ParseSeconds(expr[idx+len(sep):])
		if err != nil {
			continue
		}
		return New(start, end, owners...), nil
	}
	at, err := ParseSeconds(expr)
	if err != nil {
		return TimeRange{}, fmt.Errorf("parse range %q: %w", expr, err)
	}
	return New(at, at, owners...), nil
}

// splitIndex finds a separator occurrence that has digits on both
// sides, so "12:30-14:00" splits but a leading "-" does not.
func splitIndex(expr, sep string) int {
	from := 0
	for {
		i := strings.Index(expr[from:], sep)
		if i < 0 {
			return -1
		}
		i += from
		left := strings.TrimSpace(expr[:i])
		right := strings.TrimSpace(expr[i+len(sep):])
		if left != "" && right != "" && isDigit(left[len(left)-1]) && isDigit(right[0]) {
			return i
		}
		from = i + len(sep)
		if from >= len(expr) {
			return -1
		}
	}
}

// ExtractRanges pulls every time expression out of free text, e.g. a
// knowledge point line "函数定义 (12:30-14:00, 25:10)".
func ExtractRanges(text string, owners ...string) []TimeRange {
	var ranges []TimeRange
	for _, expr := range timeExprRe.FindAllString(text, -1) {
		r, err := ParseRange(expr, owners...)
		if err != nil {
			continue
		}
		ranges = append(ranges, r)
	}
	return ranges
}

// Normalize drops invalid ranges, sorts by start and merges any that
// overlap or sit within maxGap of each other.
func Normalize(ranges []TimeRange, maxGap float64) []TimeRange {
	valid := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Valid() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Start < valid[j].Start })

	merged := []TimeRange{valid[0]}
	for _, r := range valid[1:] {
		last := &merged[len(merged)-1]
		if last.Mergeable(r, maxGap) {
			*last = last.Merge(r)
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// AddBuffer pads every range symmetrically by buffer seconds, clamps to
// [0, max] and re-normalizes the result.
func AddBuffer(ranges []TimeRange, buffer, max, maxGap float64) []TimeRange {
	buffered := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		start := math.Max(0, r.Start-buffer)
		end := r.End + buffer
		if max > 0 && end > max {
			end = max
		}
		buffered = append(buffered, TimeRange{Start: start, End: end, Owners: r.Owners})
	}
	return Normalize(buffered, maxGap)
}

// FormatSeconds renders seconds as "MM:SS.mmm", or "HH:MM:SS.mmm" past
// the hour mark.
func FormatSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	h := int(sec) / 3600
	m := (int(sec) % 3600) / 60
	s := sec - float64(h*3600+m*60)
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
	}
	return fmt.Sprintf("%02d:%06.3f", m, s)
}

func atoiF(s string) float64 {
	n, _ := strconv.Atoi(s)
	return float64(n)
}

// fraction interprets the digits after the dot: "5" is 0.5, "50" is
// 0.50, "500" is 0.500.
func fraction(s string) float64 {
	n, _ := strconv.Atoi(s)
	return float64(n) / math.Pow(10, float64(len(s)))
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
