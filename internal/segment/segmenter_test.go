package segment

import (
	"testing"

	"github.com/raphaelgruber/lecturekb/internal/subtitle"
)

func timedLines() []subtitle.Line {
	at := func(sec float64, text string) subtitle.Line {
		return subtitle.Line{At: &sec, Text: text}
	}
	return []subtitle.Line{
		at(10, "开场白"),
		at(700, "我们先看函数定义"),
		at(760, "函数由名字和参数组成"),
		at(830, "这是函数的返回值"),
		at(2000, "最后是总结"),
	}
}

func TestSegmentNormal(t *testing.T) {
	s := New(DefaultConfig())
	points := []KnowledgePoint{{ID: "kp-1", Name: "函数定义", Raw: "函数定义 (12:30-14:00)"}}

	segs := s.Segment(timedLines(), points)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}

	seg := segs[0]
	if seg.Provenance != ProvenanceNormal {
		t.Errorf("provenance = %q, want %q", seg.Provenance, ProvenanceNormal)
	}
	// Buffered window [720, 870] catches the two middle lines.
	want := "函数由名字和参数组成\n这是函数的返回值"
	if seg.Text != want {
		t.Errorf("text = %q, want %q", seg.Text, want)
	}
	if seg.TokenEstimate == 0 {
		t.Errorf("token estimate should be positive")
	}
	if len(seg.Owners) != 1 || seg.Owners[0] != "kp-1" {
		t.Errorf("owners = %v, want [kp-1]", seg.Owners)
	}
}

func TestSegmentEmptyWindow(t *testing.T) {
	s := New(Config{BufferSeconds: 1, MaxGap: 1})
	points := []KnowledgePoint{{ID: "kp-1", Name: "无声区间", Raw: "无声区间 (20:00-20:10)"}}

	segs := s.Segment(timedLines(), points)
	seg := segs[0]
	if seg.Provenance != ProvenanceEmpty {
		t.Fatalf("provenance = %q, want %q", seg.Provenance, ProvenanceEmpty)
	}
	if seg.Text != "" {
		t.Errorf("empty segment must carry empty text, got %q", seg.Text)
	}
}

func TestSegmentNoTimestampFallback(t *testing.T) {
	s := New(DefaultConfig())
	points := []KnowledgePoint{{ID: "kp-1", Name: "函数定义", Raw: "函数定义"}}

	segs := s.Segment(timedLines(), points)
	seg := segs[0]
	if seg.Provenance != ProvenanceNoTimestamp {
		t.Fatalf("provenance = %q, want %q", seg.Provenance, ProvenanceNoTimestamp)
	}
	if seg.TimeRange.Start != 0 || seg.TimeRange.End != 0 {
		t.Errorf("fallback time range = %v, want 0-0", seg.TimeRange)
	}
	if seg.Text == "" {
		t.Errorf("fallback segment should carry the full transcript")
	}
}

func TestSegmentFullTextFallback(t *testing.T) {
	untimed := []subtitle.Line{
		{Text: "第一行"},
		{Text: "第二行"},
	}
	s := New(DefaultConfig())
	points := []KnowledgePoint{{ID: "kp-1", Name: "概念", Raw: "概念 (00:10-00:20)"}}

	segs := s.Segment(untimed, points)
	seg := segs[0]
	if seg.Provenance != ProvenanceFullText {
		t.Fatalf("provenance = %q, want %q", seg.Provenance, ProvenanceFullText)
	}
	if seg.Text != "第一行\n第二行" {
		t.Errorf("text = %q, want full transcript", seg.Text)
	}
}

func TestSegmentSRTOverlap(t *testing.T) {
	at, end := 55.0, 70.0
	lines := []subtitle.Line{{At: &at, End: &end, Text: "cue spanning the boundary"}}

	s := New(Config{BufferSeconds: 5, MaxGap: 1})
	// Window [60, 75] after buffer; cue [55, 70] overlaps it.
	points := []KnowledgePoint{{ID: "kp-1", Name: "overlap", Raw: "overlap (01:05-01:10)"}}

	segs := s.Segment(lines, points)
	if segs[0].Provenance != ProvenanceNormal {
		t.Fatalf("provenance = %q, want %q", segs[0].Provenance, ProvenanceNormal)
	}
	if segs[0].Text != "cue spanning the boundary" {
		t.Errorf("text = %q", segs[0].Text)
	}
}

func TestTokenEstimate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 1},
		{"cjk only", "函数定义", 4},
		{"english words", "func main loop", 3}, // 3 × 1.3 = 3.9 → 3
		{"mixed", "函数 def 定义", 5},           // 4 CJK + 1 word × 1.3 = 5.3 → 5
		{"punctuation", "。。", 1},             // 2 × 0.5 = 1
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenEstimate(tt.in); got != tt.want {
				t.Errorf("TokenEstimate(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
