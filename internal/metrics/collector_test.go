package metrics

import (
	"testing"
	"time"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpNoteWrite, 10*time.Millisecond)
	c.RecordTiming(OpNoteWrite, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap.NoteWrite == nil {
		t.Fatal("expected note write snapshot")
	}
	if snap.NoteWrite.Count != 2 {
		t.Errorf("count = %d, want 2", snap.NoteWrite.Count)
	}
	if snap.NoteWrite.MinTimeMs != 10 || snap.NoteWrite.MaxTimeMs != 30 {
		t.Errorf("min/max = %d/%d, want 10/30", snap.NoteWrite.MinTimeMs, snap.NoteWrite.MaxTimeMs)
	}
	if snap.NoteWrite.AvgTimeMs != 20 {
		t.Errorf("avg = %f, want 20", snap.NoteWrite.AvgTimeMs)
	}
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()

	c.RecordLLMUsage(OpLLMGenerate, 100*time.Millisecond, 500, 200)
	c.RecordLLMUsage(OpLLMGenerate, 200*time.Millisecond, 1500, 400)

	snap := c.Snapshot()
	if snap.LLMGenerate == nil {
		t.Fatal("expected llm generate snapshot")
	}
	if *snap.LLMGenerate.TotalInputTokens != 2000 {
		t.Errorf("total input = %d, want 2000", *snap.LLMGenerate.TotalInputTokens)
	}
	if *snap.LLMGenerate.MinInputTokens != 500 || *snap.LLMGenerate.MaxInputTokens != 1500 {
		t.Errorf("min/max input = %d/%d, want 500/1500",
			*snap.LLMGenerate.MinInputTokens, *snap.LLMGenerate.MaxInputTokens)
	}
	if *snap.LLMGenerate.AvgOutputTokens != 300 {
		t.Errorf("avg output = %f, want 300", *snap.LLMGenerate.AvgOutputTokens)
	}
}

func TestSnapshotEmptyOps(t *testing.T) {
	snap := NewCollector().Snapshot()
	if snap.Embedding != nil || snap.LLMGenerate != nil || snap.Rerank != nil {
		t.Error("untouched operations must snapshot as nil")
	}
	if snap.UptimeSeconds < 0 {
		t.Error("uptime must be non-negative")
	}
}
