package concept

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "concepts.json"), filepath.Join(dir, "concepts.md"))
}

func TestUpdateAndLookup(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Update(map[string]Record{
		"【数学】极限": {
			Aliases: []string{"limit"},
			Tags:    []string{"数学"},
			Related: []string{"【数学】导数"},
			Subject: "数学",
		},
	}))

	rec, title, ok := store.Lookup("【数学】极限")
	require.True(t, ok)
	assert.Equal(t, "【数学】极限", title)
	assert.Equal(t, "数学", rec.Subject)
	assert.NotEmpty(t, rec.LastUpdated)

	_, title, ok = store.Lookup("limit")
	require.True(t, ok, "alias lookup")
	assert.Equal(t, "【数学】极限", title)

	_, title, ok = store.Lookup("极限")
	require.True(t, ok, "bare name lookup")
	assert.Equal(t, "【数学】极限", title)

	_, _, ok = store.Lookup("不存在")
	assert.False(t, ok)
}

func TestUpdateOverwritesByTitle(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Update(map[string]Record{
		"【数学】极限": {Subject: "数学", Tags: []string{"old"}},
	}))
	require.NoError(t, store.Update(map[string]Record{
		"【数学】极限": {Subject: "数学", Tags: []string{"new"}},
	}))

	rec, _ := store.Get("【数学】极限")
	assert.Equal(t, []string{"new"}, rec.Tags)
	assert.Equal(t, 1, store.Len())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Update(map[string]Record{
		"【数学】极限": {Subject: "数学", Aliases: []string{"limit"}, Related: []string{"【数学】导数"}},
		"【物理】动量": {Subject: "物理"},
	}))

	reloaded := NewStore(store.indexPath, store.markdownPath)
	require.NoError(t, reloaded.Load())

	assert.Equal(t, SourceIndex, reloaded.LoadSource())
	assert.Equal(t, 2, reloaded.Len())

	rec, ok := reloaded.Get("【数学】极限")
	require.True(t, ok)
	assert.Equal(t, []string{"limit"}, rec.Aliases)
	assert.Equal(t, []string{"【数学】导数"}, rec.Related)
}

func TestLoadEmptyIndexDistinctFromAbsent(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "concepts.json")

	// An index holding zero concepts is valid and empty.
	empty := NewStore(indexPath, filepath.Join(dir, "concepts.md"))
	require.NoError(t, empty.Save())

	loaded := NewStore(indexPath, filepath.Join(dir, "concepts.md"))
	require.NoError(t, loaded.Load())
	assert.Equal(t, 0, loaded.Len())
	assert.Equal(t, SourceIndex, loaded.LoadSource())

	// No index at all also starts empty but is reported differently.
	other := NewStore(filepath.Join(dir, "missing.json"), filepath.Join(dir, "missing.md"))
	require.NoError(t, other.Load())
	assert.Equal(t, 0, other.Len())
	assert.Equal(t, SourceEmpty, other.LoadSource())
}

func TestLoadCorruptIndexDegradesToMarkdown(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Update(map[string]Record{
		"【数学】极限": {Subject: "数学", Aliases: []string{"limit", "lim"}},
	}))

	// Corrupt the JSON index; the markdown rendering survives.
	require.NoError(t, os.WriteFile(store.indexPath, []byte("{not json"), 0o644))

	recovered := NewStore(store.indexPath, store.markdownPath)
	require.NoError(t, recovered.Load())
	assert.Equal(t, SourceMarkdown, recovered.LoadSource())

	rec, ok := recovered.Get("【数学】极限")
	require.True(t, ok)
	assert.Equal(t, "数学", rec.Subject)
	assert.Equal(t, []string{"limit", "lim"}, rec.Aliases)
}

func TestIndexFileShape(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Update(map[string]Record{
		"【数学】极限": {Subject: "数学"},
	}))

	data, err := os.ReadFile(store.indexPath)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	meta, ok := raw["metadata"].(map[string]any)
	require.True(t, ok, "index must carry a metadata block")
	assert.Equal(t, SchemaVersion, meta["version"])
	assert.Equal(t, float64(1), meta["total_concepts"])
	assert.NotEmpty(t, meta["created"])
	assert.NotEmpty(t, meta["last_updated"])

	_, ok = raw["concepts"].(map[string]any)
	assert.True(t, ok, "index must carry a concepts map")
}

func TestScan(t *testing.T) {
	corpus := t.TempDir()
	subjectDir := filepath.Join(corpus, "数学")
	require.NoError(t, os.MkdirAll(subjectDir, 0o755))

	note := `---
title: 【数学】极限
aliases:
  - limit
tags:
  - 数学
subject: 数学
---

极限与 [[【数学】导数]] 相关，另见 [[【数学】连续|连续性]]。`
	require.NoError(t, os.WriteFile(filepath.Join(subjectDir, "【数学】极限.md"), []byte(note), 0o644))

	// A note without front matter falls back to directory and filename.
	require.NoError(t, os.WriteFile(filepath.Join(subjectDir, "导数.md"), []byte("正文"), 0o644))

	store := newTestStore(t)
	require.NoError(t, store.Scan(corpus))
	assert.Equal(t, 2, store.Len())

	rec, ok := store.Get("【数学】极限")
	require.True(t, ok)
	assert.Equal(t, []string{"limit"}, rec.Aliases)
	// The alias part of a piped link is dropped.
	assert.Equal(t, []string{"【数学】导数", "【数学】连续"}, rec.Related)

	_, ok = store.Get("【数学】导数")
	assert.True(t, ok, "untitled note keyed by directory and filename")
}

func TestScanReplacesPreviousContents(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Update(map[string]Record{
		"【旧】概念": {Subject: "旧"},
	}))

	require.NoError(t, store.Scan(t.TempDir()))
	assert.Equal(t, 0, store.Len())
}

func TestExportForGeneration(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Update(map[string]Record{
		"【数学】极限": {Subject: "数学", Aliases: []string{"limit"}, Related: []string{"【数学】导数"}},
		"【数学】导数": {Subject: "数学"},
		"【物理】动量": {Subject: "物理"},
	}))

	export := store.ExportForGeneration()
	assert.Equal(t, []string{"【数学】导数", "【数学】极限", "【物理】动量"}, export.Titles)
	assert.Equal(t, []string{"limit"}, export.Aliases["【数学】极限"])
	assert.Equal(t, []string{"【数学】导数"}, export.Relationships["【数学】极限"])
	assert.Equal(t, []string{"【数学】导数", "【数学】极限"}, export.Subjects["数学"])

	// The export is a snapshot: store changes must not leak into it.
	require.NoError(t, store.Update(map[string]Record{
		"【化学】摩尔": {Subject: "化学"},
	}))
	assert.Len(t, export.Titles, 3)
}

func TestBareName(t *testing.T) {
	assert.Equal(t, "极限", BareName("【数学】极限"))
	assert.Equal(t, "plain", BareName("plain"))
	assert.Equal(t, "【broken", BareName("【broken"))
}
