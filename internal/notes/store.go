package notes

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store writes notes as front-matter markdown files under a root
// directory, one subdirectory per subject.
type Store struct {
	root string
}

// NewStore creates a note store rooted at dir.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create notes dir: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// Write renders the note and writes it under its subject directory.
// The note's created date is stamped and timestamp markers become
// course links when a course URL is present. Returns the file path.
func (s *Store) Write(note Note) (string, error) {
	meta := note.Meta
	if meta.Created == "" {
		meta.Created = time.Now().Format("2006-01-02")
	}

	content := note.Content
	if meta.CourseURL != "" {
		content = LinkTimestamps(content, meta.CourseURL)
	}

	dir := s.root
	if meta.Subject != "" {
		dir = filepath.Join(s.root, meta.Subject)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create subject dir: %w", err)
	}

	path := filepath.Join(dir, SafeFilename(meta.Title)+".md")
	if err := writeWithBackup(path, Render(Note{Meta: meta, Content: content})); err != nil {
		return "", err
	}

	slog.Info("note written", "path", path)
	return path, nil
}

// Read returns a note file's raw text.
func (s *Store) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read note: %w", err)
	}
	return string(data), nil
}

// Replace overwrites an existing note file, keeping a backup of the
// previous content until the write has succeeded.
func (s *Store) Replace(path, content string) error {
	return writeWithBackup(path, content)
}

// Render produces the full file text: YAML front matter plus body.
func Render(note Note) string {
	var sb strings.Builder
	sb.WriteString("---\n")

	out, err := yaml.Marshal(note.Meta)
	if err != nil {
		// Meta is plain strings and slices; marshalling cannot
		// realistically fail, but keep the note body regardless.
		slog.Error("marshal front matter", "error", err)
		out = []byte(fmt.Sprintf("title: %q\n", note.Meta.Title))
	}
	sb.Write(out)
	sb.WriteString("---\n\n")
	sb.WriteString(note.Content)
	sb.WriteString("\n")
	return sb.String()
}

// unsafeFilenameChars cannot appear in note filenames.
const unsafeFilenameChars = `<>:"/\|?*`

// SafeFilename strips filesystem-hostile characters and caps length.
func SafeFilename(title string) string {
	safe := strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeFilenameChars, r) {
			return '_'
		}
		return r
	}, title)

	runes := []rune(safe)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	return string(runes)
}

// writeWithBackup protects the previous file content: back up, write,
// drop the backup on success, restore it on failure.
func writeWithBackup(path, content string) error {
	backup := path + ".backup"
	hadPrevious := false

	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(backup, prev, 0o644); err != nil {
			return fmt.Errorf("write backup: %w", err)
		}
		hadPrevious = true
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		if hadPrevious {
			if restoreErr := os.Rename(backup, path); restoreErr != nil {
				slog.Error("failed to restore backup", "path", path, "error", restoreErr)
			}
		}
		return fmt.Errorf("write note: %w", err)
	}

	if hadPrevious {
		if err := os.Remove(backup); err != nil {
			slog.Warn("failed to remove backup", "path", backup, "error", err)
		}
	}
	return nil
}
