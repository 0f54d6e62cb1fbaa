package retrieval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStableUnderCosmeticEdits(t *testing.T) {
	a := Key("极限", "极限, 别名: limit。更新于 2024-01-01 12:30:45")
	b := Key("极限", "极限 别名 limit 更新于 2024-06-01 09:15:00")
	assert.Equal(t, a, b)

	c := Key("极限", "极限, 别名: Limit")
	assert.Equal(t, a, c, "case is not embedding signal")

	d := Key("极限", "导数")
	assert.NotEqual(t, a, d)
}

func TestCachePutGet(t *testing.T) {
	c := OpenCache(filepath.Join(t.TempDir(), "cache.json"), "bge-m3")

	_, ok := c.Get("极限", "内容")
	assert.False(t, ok)

	c.Put("极限", "内容", []float32{0.1, 0.2})
	vec, ok := c.Get("极限", "内容")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, vec)

	// A content change misses the old entry.
	_, ok = c.Get("极限", "新的内容")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestCacheSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c := OpenCache(path, "bge-m3")
	c.Put("极限", "内容", []float32{0.5})
	c.Save()

	reloaded := OpenCache(path, "bge-m3")
	vec, ok := reloaded.Get("极限", "内容")
	require.True(t, ok)
	assert.Equal(t, []float32{0.5}, vec)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	meta := raw["metadata"].(map[string]any)
	assert.Equal(t, CacheVersion, meta["version"])
	assert.Equal(t, "bge-m3", meta["model"])
	assert.Equal(t, float64(1), meta["total_concepts"])
}

func TestCacheModelMismatchRebuilds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c := OpenCache(path, "bge-m3")
	c.Put("极限", "内容", []float32{0.5})
	c.Save()

	other := OpenCache(path, "nomic-embed-text")
	_, ok := other.Get("极限", "内容")
	assert.False(t, ok, "vectors from a different model must not be served")
	assert.Equal(t, 0, other.Len())
}

func TestCacheLegacyFlatMapMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	old := map[string][]float32{"极限": {0.1, 0.2}, "导数": {0.3}}
	data, err := json.Marshal(old)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c := OpenCache(path, "bge-m3")

	// A legacy entry is served and re-keyed on first access.
	vec, ok := c.Get("极限", "当前内容")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, vec)

	c.Save()
	reloaded := OpenCache(path, "bge-m3")
	vec, ok = reloaded.Get("极限", "当前内容")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, vec)

	// The never-accessed legacy entry did not survive the rewrite.
	_, ok = reloaded.Get("导数", "任何内容")
	assert.False(t, ok)
}

func TestCacheCorruptFileRebuilds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{nonsense"), 0o644))

	c := OpenCache(path, "bge-m3")
	assert.Equal(t, 0, c.Len())

	c.Put("极限", "内容", []float32{1})
	c.Save()

	reloaded := OpenCache(path, "bge-m3")
	assert.Equal(t, 1, reloaded.Len())
}
