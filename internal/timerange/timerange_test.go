package timerange

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestNewSwapsReversedBounds(t *testing.T) {
	r := New(90, 30, "kp-1")
	if r.Start != 30 || r.End != 90 {
		t.Errorf("New(90, 30) = [%v, %v], want [30, 90]", r.Start, r.End)
	}
	if !almostEqual(r.Duration(), 60) {
		t.Errorf("Duration() = %v, want 60", r.Duration())
	}
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"01:02:03.500", 3723.5},
		{"01:02:03", 3723},
		{"12:30.250", 750.25},
		{"12:30", 750},
		{"45.5", 45.5},
		{"45", 45},
		{"00:00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeconds(tt.in)
			if err != nil {
				t.Fatalf("ParseSeconds(%q) error: %v", tt.in, err)
			}
			if !almostEqual(got, tt.want) {
				t.Errorf("ParseSeconds(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSecondsRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "12:xx", "1:2:3:4"} {
		if _, err := ParseSeconds(in); err == nil {
			t.Errorf("ParseSeconds(%q) expected error", in)
		}
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in         string
		start, end float64
	}{
		{"12:30-14:00", 750, 840},
		{"12:30 ~ 14:00", 750, 840},
		{"12:30 to 14:00", 750, 840},
		{"12:30至14:00", 750, 840},
		{"12:30到14:00", 750, 840},
		{"14:00-12:30", 750, 840}, // reversed bounds swap
		{"12:30", 750, 750},      // lone time, zero duration
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := ParseRange(tt.in)
			if err != nil {
				t.Fatalf("ParseRange(%q) error: %v", tt.in, err)
			}
			if !almostEqual(r.Start, tt.start) || !almostEqual(r.End, tt.end) {
				t.Errorf("ParseRange(%q) = [%v, %v], want [%v, %v]", tt.in, r.Start, r.End, tt.start, tt.end)
			}
		})
	}
}

func TestExtractRanges(t *testing.T) {
	text := "函数定义 (12:30-14:00) 以及回顾 25:10"
	ranges := ExtractRanges(text, "kp-1")
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(ranges))
	}
	if !almostEqual(ranges[0].Start, 750) || !almostEqual(ranges[0].End, 840) {
		t.Errorf("first range = %v, want [750, 840]", ranges[0])
	}
	if !almostEqual(ranges[1].Start, 1510) || !almostEqual(ranges[1].End, 1510) {
		t.Errorf("second range = %v, want [1510, 1510]", ranges[1])
	}
	if len(ranges[0].Owners) != 1 || ranges[0].Owners[0] != "kp-1" {
		t.Errorf("owners = %v, want [kp-1]", ranges[0].Owners)
	}
}

func TestMergeUnionsOwnersAndBounds(t *testing.T) {
	a := New(10, 20, "a")
	b := New(15, 40, "b", "a")
	m := a.Merge(b)

	if m.Start != 10 || m.End != 40 {
		t.Errorf("merged bounds = [%v, %v], want [10, 40]", m.Start, m.End)
	}
	if m.Duration() < a.Duration() || m.Duration() < b.Duration() {
		t.Errorf("merged duration %v shorter than an input", m.Duration())
	}
	if len(m.Owners) != 2 {
		t.Errorf("owners = %v, want exactly {a, b}", m.Owners)
	}
}

func TestMergeableWithinGap(t *testing.T) {
	tests := []struct {
		name   string
		a, b   TimeRange
		maxGap float64
		want   bool
	}{
		{"overlapping", New(0, 10), New(5, 15), 0, true},
		{"touching", New(0, 10), New(10, 20), 0, true},
		{"gap within limit", New(0, 10), New(14, 20), 5, true},
		{"gap at limit", New(0, 10), New(15, 20), 5, true},
		{"gap beyond limit", New(0, 10), New(16, 20), 5, false},
		{"reversed order gap", New(14, 20), New(0, 10), 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Mergeable(tt.b, tt.maxGap); got != tt.want {
				t.Errorf("Mergeable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	ranges := []TimeRange{
		New(100, 110, "c"),
		New(0, 10, "a"),
		New(12, 20, "b"),     // within gap of [0, 10]
		New(-5, -1, "bad"),   // negative, dropped
		New(90000, 90010),    // past 24h, dropped
	}

	got := Normalize(ranges, DefaultMaxGap)
	if len(got) != 2 {
		t.Fatalf("got %d ranges, want 2: %v", len(got), got)
	}
	if got[0].Start != 0 || got[0].End != 20 {
		t.Errorf("first = %v, want [0, 20]", got[0])
	}
	if len(got[0].Owners) != 2 {
		t.Errorf("first owners = %v, want {a, b}", got[0].Owners)
	}
	if got[1].Start != 100 {
		t.Errorf("second = %v, want start 100", got[1])
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize(nil, DefaultMaxGap); got != nil {
		t.Errorf("Normalize(nil) = %v, want nil", got)
	}
}

func TestAddBuffer(t *testing.T) {
	ranges := []TimeRange{New(40, 60, "a")}
	got := AddBuffer(ranges, 30, 80, DefaultMaxGap)

	if len(got) != 1 {
		t.Fatalf("got %d ranges, want 1", len(got))
	}
	// Clamped to [0, 80] despite 40-30 = 10 and 60+30 = 90.
	if got[0].Start != 10 || got[0].End != 80 {
		t.Errorf("buffered = %v, want [10, 80]", got[0])
	}
}

func TestAddBufferClampsToZero(t *testing.T) {
	got := AddBuffer([]TimeRange{New(5, 20)}, 30, 0, DefaultMaxGap)
	if len(got) != 1 || got[0].Start != 0 {
		t.Errorf("buffered = %v, want start clamped to 0", got)
	}
}

func TestAddBufferMergesNeighbours(t *testing.T) {
	ranges := []TimeRange{New(0, 10, "a"), New(50, 60, "b")}
	got := AddBuffer(ranges, 30, 0, DefaultMaxGap)
	if len(got) != 1 {
		t.Fatalf("got %d ranges, want 1 after buffering: %v", len(got), got)
	}
	if len(got[0].Owners) != 2 {
		t.Errorf("owners = %v, want {a, b}", got[0].Owners)
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00.000"},
		{750.25, "12:30.250"},
		{3723.5, "01:02:03.500"},
		{-3, "00:00.000"},
	}

	for _, tt := range tests {
		if got := FormatSeconds(tt.in); got != tt.want {
			t.Errorf("FormatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
