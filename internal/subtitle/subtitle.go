// Package subtitle parses LRC, SRT and plain-text transcripts into
// timestamped lines.
package subtitle

import (
	"regexp"
	"strconv"
	"strings"
)

// Format identifies a transcript file format.
type Format string

const (
	FormatAuto  Format = ""
	FormatLRC   Format = "lrc"
	FormatSRT   Format = "srt"
	FormatPlain Format = "txt"
)

// Line is one transcript line. At is nil for plain text without
// timestamps; End is set only for SRT cues.
type Line struct {
	At   *float64
	End  *float64
	Text string
}

// Timed reports whether the line carries a timestamp.
func (l Line) Timed() bool {
	return l.At != nil
}

var (
	lrcLineRe  = regexp.MustCompile(`^\[(\d{1,3}):(\d{1,2})(?:\.(\d{1,3}))?\](.*)$`)
	srtTimeRe  = regexp.MustCompile(`(\d{1,2}):(\d{1,2}):(\d{1,2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{1,2}):(\d{1,2})[,.](\d{1,3})`)
	srtIndexRe = regexp.MustCompile(`^\d+$`)
)

// Parse splits raw transcript text into lines. With FormatAuto the
// format is detected from the content.
func Parse(raw string, hint Format) []Line {
	format := hint
	if format == FormatAuto {
		format = Detect(raw)
	}

	switch format {
	case FormatLRC:
		return parseLRC(raw)
	case FormatSRT:
		return parseSRT(raw)
	default:
		return parsePlain(raw)
	}
}

// Detect guesses the transcript format from its content.
func Detect(raw string) Format {
	if srtTimeRe.MatchString(raw) {
		return FormatSRT
	}
	for _, line := range strings.Split(raw, "\n") {
		if lrcLineRe.MatchString(strings.TrimSpace(line)) {
			return FormatLRC
		}
	}
	return FormatPlain
}

// parseLRC handles "[MM:SS.mm]text" lines. Lines without a tag are
// kept untimed so nothing is silently dropped.
func parseLRC(raw string) []Line {
	var lines []Line
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		m := lrcLineRe.FindStringSubmatch(l)
		if m == nil {
			lines = append(lines, Line{Text: l})
			continue
		}
		at := atoiF(m[1])*60 + atoiF(m[2])
		if m[3] != "" {
			at += atoiF(m[3]) / pow10(len(m[3]))
		}
		text := strings.TrimSpace(m[4])
		if text == "" {
			continue
		}
		lines = append(lines, Line{At: &at, Text: text})
	}
	return lines
}

// parseSRT handles numbered cue blocks. Every text line of a cue
// carries the cue's start time; the cue end is kept for overlap checks.
func parseSRT(raw string) []Line {
	var lines []Line
	blocks := regexp.MustCompile(`\n\s*\n`).Split(strings.ReplaceAll(raw, "\r\n", "\n"), -1)

	for _, block := range blocks {
		var start, end *float64
		for _, l := range strings.Split(block, "\n") {
			l = strings.TrimSpace(l)
			if l == "" || srtIndexRe.MatchString(l) {
				continue
			}
			if m := srtTimeRe.FindStringSubmatch(l); m != nil {
				s := atoiF(m[1])*3600 + atoiF(m[2])*60 + atoiF(m[3]) + atoiF(m[4])/pow10(len(m[4]))
				e := atoiF(m[5])*3600 + atoiF(m[6])*60 + atoiF(m[7]) + atoiF(m[8])/pow10(len(m[8]))
				start, end = &s, &e
				continue
			}
			lines = append(lines, Line{At: start, End: end, Text: l})
		}
	}
	return lines
}

func parsePlain(raw string) []Line {
	var lines []Line
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, Line{Text: l})
	}
	return lines
}

func atoiF(s string) float64 {
	n, _ := strconv.Atoi(s)
	return float64(n)
}

func pow10(n int) float64 {
	p := 1.0
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}
