package notes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreWrite(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.Write(Note{
		Meta: Meta{
			Title:   "【Python基础】函数定义",
			Subject: "Python基础",
			Tags:    []string{"Python基础"},
		},
		Content: "# 函数定义\n\n正文。",
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(store.Root(), "Python基础", "【Python基础】函数定义.md"), path)

	text, err := store.Read(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "---\n"), "front matter must open the file")
	assert.Contains(t, text, "title: 【Python基础】函数定义")
	assert.Contains(t, text, "created: ")
	assert.Contains(t, text, "# 函数定义")
}

func TestStoreWriteLinksTimestamps(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.Write(Note{
		Meta:    Meta{Title: "clip", CourseURL: "https://example.com/course"},
		Content: "关键点在 [12:30] 处。",
	})
	require.NoError(t, err)

	text, err := store.Read(path)
	require.NoError(t, err)
	assert.Contains(t, text, "[12:30](https://example.com/course?t=750)")
}

func TestStoreReplaceKeepsNoBackupOnSuccess(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.Write(Note{Meta: Meta{Title: "note"}, Content: "v1"})
	require.NoError(t, err)

	require.NoError(t, store.Replace(path, "v2"))

	text, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", text)

	_, err = os.Stat(path + ".backup")
	assert.True(t, os.IsNotExist(err), "backup must be removed after a successful write")
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"【数学】极限", "【数学】极限"},
		{`a<b>c:d"e/f\g|h?i*j`, "a_b_c_d_e_f_g_h_i_j"},
		{strings.Repeat("长", 150), strings.Repeat("长", 100)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeFilename(tt.in))
	}
}

func TestRenderRoundTrip(t *testing.T) {
	note := Note{
		Meta: Meta{
			Title:   "【数学】导数",
			Aliases: []string{"derivative"},
			Subject: "数学",
			Created: "2026-01-15",
		},
		Content: "正文。",
	}

	text := Render(note)
	metaRaw, body := SplitFrontMatter(text)
	parsed := ParseMeta(metaRaw)

	assert.Equal(t, note.Meta.Title, parsed.Title)
	assert.Equal(t, note.Meta.Aliases, parsed.Aliases)
	assert.Equal(t, note.Meta.Created, parsed.Created)
	assert.Equal(t, "正文。\n", body)
}

func TestLinkTimestamps(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"minute seconds", "见 [12:30]。", "见 [12:30](https://c?t=750)。"},
		{"hours", "见 [1:02:30]。", "见 [1:02:30](https://c?t=3750)。"},
		{"already linked", "见 [12:30](https://c?t=750)。", "见 [12:30](https://c?t=750)。"},
		{"no url passthrough", "见 [12:30]。", "见 [12:30]。"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "https://c"
			if tt.name == "no url passthrough" {
				url = ""
			}
			assert.Equal(t, tt.want, LinkTimestamps(tt.in, url))
		})
	}
}

func TestLinkTimestampsAppendsToQuery(t *testing.T) {
	got := LinkTimestamps("[00:30]", "https://c?lesson=2")
	assert.Equal(t, "[00:30](https://c?lesson=2&t=30)", got)
}
