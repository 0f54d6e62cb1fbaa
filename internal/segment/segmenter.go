// Package segment carves a transcript into per-concept text windows.
package segment

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/raphaelgruber/lecturekb/internal/subtitle"
	"github.com/raphaelgruber/lecturekb/internal/timerange"
)

// Provenance records how a segment's text was obtained.
type Provenance string

const (
	// ProvenanceNormal means the text came from subtitle lines inside
	// the concept's buffered time window.
	ProvenanceNormal Provenance = "normal"
	// ProvenanceFullText means the transcript had no usable timestamps,
	// so the whole text stands in for the window.
	ProvenanceFullText Provenance = "full-text-fallback"
	// ProvenanceEmpty means the window matched no transcript lines.
	ProvenanceEmpty Provenance = "empty"
	// ProvenanceNoTimestamp means no time ranges could be extracted for
	// the concept at all and the whole transcript is used.
	ProvenanceNoTimestamp Provenance = "no-timestamp"
)

// Segment is one concept's slice of the transcript.
type Segment struct {
	Text          string
	TimeRange     timerange.TimeRange
	Owners        []string
	TokenEstimate int
	Provenance    Provenance
}

// Config tunes window construction.
type Config struct {
	// BufferSeconds pads each knowledge point's window symmetrically.
	BufferSeconds float64
	// MaxGap merges windows closer than this many seconds.
	MaxGap float64
}

// DefaultConfig matches the tuning used for hour-scale lectures.
func DefaultConfig() Config {
	return Config{
		BufferSeconds: timerange.DefaultBuffer,
		MaxGap:        timerange.DefaultMaxGap,
	}
}

// Segmenter builds per-concept segments from parsed transcript lines.
type Segmenter struct {
	cfg Config
}

// New creates a Segmenter.
func New(cfg Config) *Segmenter {
	if cfg.BufferSeconds <= 0 {
		cfg.BufferSeconds = timerange.DefaultBuffer
	}
	if cfg.MaxGap <= 0 {
		cfg.MaxGap = timerange.DefaultMaxGap
	}
	return &Segmenter{cfg: cfg}
}

// KnowledgePoint is one concept to segment, with the raw outline text
// its time ranges are extracted from.
type KnowledgePoint struct {
	ID   string
	Name string
	// Raw is the outline line, e.g. "函数定义 (12:30-14:00)".
	Raw string
}

// Segment builds one segment per knowledge point. Points whose raw
// text yields no time ranges fall back to the full transcript.
func (s *Segmenter) Segment(lines []subtitle.Line, points []KnowledgePoint) []Segment {
	fullText := joinLines(lines)
	maxEnd := lastTimestamp(lines) + 60

	segments := make([]Segment, 0, len(points))
	for _, kp := range points {
		segments = append(segments, s.segmentOne(lines, fullText, maxEnd, kp))
	}
	return segments
}

func (s *Segmenter) segmentOne(lines []subtitle.Line, fullText string, maxEnd float64, kp KnowledgePoint) Segment {
	ranges := timerange.ExtractRanges(kp.Raw, kp.ID)
	if len(ranges) == 0 {
		slog.Warn("no time ranges found for knowledge point, using full transcript", "concept", kp.Name)
		return Segment{
			Text:          fullText,
			TimeRange:     timerange.New(0, 0, kp.ID),
			Owners:        []string{kp.ID},
			TokenEstimate: TokenEstimate(fullText),
			Provenance:    ProvenanceNoTimestamp,
		}
	}

	ranges = timerange.AddBuffer(ranges, s.cfg.BufferSeconds, maxEnd, s.cfg.MaxGap)

	// A point with several mentions gets the union window spanning all
	// of them after buffering.
	window := ranges[0]
	for _, r := range ranges[1:] {
		window = window.Merge(r)
	}

	text, timed := extractText(lines, window)
	if !timed {
		return Segment{
			Text:          fullText,
			TimeRange:     window,
			Owners:        []string{kp.ID},
			TokenEstimate: TokenEstimate(fullText),
			Provenance:    ProvenanceFullText,
		}
	}
	if text == "" {
		slog.Warn("time window matched no transcript text", "concept", kp.Name, "window", window.String())
		return Segment{
			Text:       "",
			TimeRange:  window,
			Owners:     []string{kp.ID},
			Provenance: ProvenanceEmpty,
		}
	}

	return Segment{
		Text:          text,
		TimeRange:     window,
		Owners:        []string{kp.ID},
		TokenEstimate: TokenEstimate(text),
		Provenance:    ProvenanceNormal,
	}
}

// extractText collects transcript lines whose timestamps fall inside
// the window. SRT cues are included when their span overlaps the
// window. Returns timed=false when no line had a timestamp at all.
func extractText(lines []subtitle.Line, window timerange.TimeRange) (text string, timed bool) {
	var parts []string
	for _, l := range lines {
		if !l.Timed() {
			continue
		}
		timed = true
		if l.End != nil {
			cue := timerange.New(*l.At, *l.End)
			if cue.Overlaps(window) {
				parts = append(parts, l.Text)
			}
			continue
		}
		if *l.At >= window.Start && *l.At <= window.End {
			parts = append(parts, l.Text)
		}
	}
	return strings.Join(parts, "\n"), timed
}

func joinLines(lines []subtitle.Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n")
}

func lastTimestamp(lines []subtitle.Line) float64 {
	var last float64
	for _, l := range lines {
		if l.End != nil && *l.End > last {
			last = *l.End
		} else if l.Timed() && *l.At > last {
			last = *l.At
		}
	}
	return last
}

// TokenEstimate approximates the model token count of mixed CJK and
// Latin text: one per CJK rune, 1.3 per Latin word, 0.5 per other rune.
func TokenEstimate(text string) int {
	var cjk, other int
	var words int
	inWord := false
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r):
			cjk++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				words++
				inWord = true
			}
		case unicode.IsSpace(r):
			inWord = false
		default:
			other++
			inWord = false
		}
	}

	estimate := int(float64(cjk) + float64(words)*1.3 + float64(other)*0.5)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}
