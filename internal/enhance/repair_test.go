package enhance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/lecturekb/internal/concept"
	"github.com/raphaelgruber/lecturekb/internal/notes"
)

func newRepairFixture(t *testing.T) (*concept.Store, *notes.Store) {
	t.Helper()
	dir := t.TempDir()

	noteStore, err := notes.NewStore(filepath.Join(dir, "notes"))
	require.NoError(t, err)
	conceptStore := concept.NewStore(filepath.Join(dir, "concepts.json"), filepath.Join(dir, "concepts.md"))
	require.NoError(t, conceptStore.Update(map[string]concept.Record{
		"【数学】极限": {Subject: "数学", Aliases: []string{"limit"}},
		"【数学】导数": {Subject: "数学"},
	}))
	return conceptStore, noteStore
}

func TestRepairLinkBareName(t *testing.T) {
	store, _ := newRepairFixture(t)

	fixed, ok := repairLink("导数", store)
	require.True(t, ok)
	assert.Equal(t, "【数学】导数|导数", fixed)
}

func TestRepairLinkAlias(t *testing.T) {
	store, _ := newRepairFixture(t)

	fixed, ok := repairLink("limit", store)
	require.True(t, ok)
	assert.Equal(t, "【数学】极限|limit", fixed, "alias stays as the display text")
}

func TestRepairLinkPipedWithoutPrefix(t *testing.T) {
	store, _ := newRepairFixture(t)

	fixed, ok := repairLink("导数|求导", store)
	require.True(t, ok)
	assert.Equal(t, "【数学】导数|求导", fixed)
}

func TestRepairLinkPrefixedGainsDisplayAlias(t *testing.T) {
	store, _ := newRepairFixture(t)

	fixed, ok := repairLink("【数学】导数", store)
	require.True(t, ok)
	assert.Equal(t, "【数学】导数|导数", fixed)
}

func TestRepairLinkLeavesCanonicalAndUnknownAlone(t *testing.T) {
	store, _ := newRepairFixture(t)

	_, ok := repairLink("【数学】导数|导数", store)
	assert.False(t, ok, "fully formed links stay as they are")

	_, ok = repairLink("不存在的概念", store)
	assert.False(t, ok, "links to unknown concepts are left untouched")

	_, ok = repairLink("【物理】动量", store)
	assert.False(t, ok, "prefixed links to unknown concepts are left untouched")
}

func TestRepairLinksRewritesCorpus(t *testing.T) {
	conceptStore, noteStore := newRepairFixture(t)

	path := writeNote(t, noteStore.Root(), "【数学】连续.md",
		"连续由 [[极限]] 定义，与 [[【数学】导数]] 和 [[未知概念]] 相关。")
	untouched := writeNote(t, noteStore.Root(), "【数学】集合.md", "没有任何链接。")

	report, err := RepairLinks(conceptStore, noteStore)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Repaired)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 0, report.Failed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "[[【数学】极限|极限]]")
	assert.Contains(t, content, "[[【数学】导数|导数]]")
	assert.Contains(t, content, "[[未知概念]]", "dangling link survives unmodified")
	assert.NoFileExists(t, path+".backup", "backup is dropped after a successful write")

	before, err := os.ReadFile(untouched)
	require.NoError(t, err)
	assert.Contains(t, string(before), "没有任何链接")
}

func TestRepairLinksIdempotent(t *testing.T) {
	conceptStore, noteStore := newRepairFixture(t)

	writeNote(t, noteStore.Root(), "【数学】连续.md", "连续由 [[极限]] 定义。")

	report, err := RepairLinks(conceptStore, noteStore)
	require.NoError(t, err)
	require.Equal(t, 1, report.Repaired)

	// A second pass finds everything already canonical.
	report, err = RepairLinks(conceptStore, noteStore)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Repaired)
	assert.Equal(t, 1, report.Unchanged)
}
