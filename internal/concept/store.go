// Package concept maintains the concept graph: one record per note
// title, persisted as a JSON index plus a human-readable rendering.
package concept

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/lecturekb/internal/notes"
)

// SchemaVersion tags the JSON index for forward migration.
const SchemaVersion = "1.0"

// Record is one concept's graph entry. Title is the unique key in the
// "【subject】name" form. Related may reference titles that do not
// exist yet; dangling links are tolerated.
type Record struct {
	FilePath    string   `json:"file_path,omitempty"`
	Aliases     []string `json:"aliases"`
	Tags        []string `json:"tags"`
	Related     []string `json:"related_concepts"`
	Subject     string   `json:"subject"`
	LastUpdated string   `json:"last_updated"`
}

// Export is the frozen read-only view handed to generation prompts.
// The concurrent generation phase reads it without touching the store.
type Export struct {
	Titles        []string
	Aliases       map[string][]string
	Relationships map[string][]string
	Subjects      map[string][]string
}

// Store holds the in-memory concept map and its on-disk index files.
// Mutations happen through a single logical writer; reads may be
// concurrent.
type Store struct {
	mu       sync.RWMutex
	concepts map[string]Record

	indexPath    string
	markdownPath string
	created      string
	source       Source
}

// Source records where the store's contents came from on load.
type Source string

const (
	// SourceIndex means the authoritative JSON index was loaded, even
	// if it held zero concepts.
	SourceIndex Source = "index"
	// SourceMarkdown means concepts were recovered from the
	// human-readable rendering.
	SourceMarkdown Source = "markdown"
	// SourceEmpty means no index existed and the store started empty.
	SourceEmpty Source = "empty"
)

type indexMetadata struct {
	Created       string `json:"created"`
	LastUpdated   string `json:"last_updated"`
	TotalConcepts int    `json:"total_concepts"`
	Version       string `json:"version"`
}

type indexFile struct {
	Metadata indexMetadata     `json:"metadata"`
	Concepts map[string]Record `json:"concepts"`
}

// NewStore creates a store backed by indexPath (authoritative JSON)
// and markdownPath (regenerated human-readable index).
func NewStore(indexPath, markdownPath string) *Store {
	return &Store{
		concepts:     make(map[string]Record),
		indexPath:    indexPath,
		markdownPath: markdownPath,
	}
}

// Load reads the JSON index. A missing index falls back to parsing the
// markdown rendering; if that is also missing the store starts empty.
// An index that exists but holds zero concepts loads as a valid empty
// store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.indexPath)
	if os.IsNotExist(err) {
		slog.Info("concept index absent, trying markdown fallback", "path", s.indexPath)
		return s.loadMarkdownLocked()
	}
	if err != nil {
		return fmt.Errorf("read concept index: %w", err)
	}

	var index indexFile
	if err := json.Unmarshal(data, &index); err != nil {
		slog.Warn("concept index corrupt, trying markdown fallback", "path", s.indexPath, "error", err)
		return s.loadMarkdownLocked()
	}

	s.concepts = index.Concepts
	if s.concepts == nil {
		s.concepts = make(map[string]Record)
	}
	s.created = index.Metadata.Created
	s.source = SourceIndex
	slog.Info("concept index loaded", "concepts", len(s.concepts), "version", index.Metadata.Version)
	return nil
}

// LoadSource reports where the last Load got its data from, which
// distinguishes an empty index file from no index at all.
func (s *Store) LoadSource() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// loadMarkdownLocked best-effort recovers concepts from the
// human-readable index. Degrades to an empty store with a warning.
func (s *Store) loadMarkdownLocked() error {
	s.concepts = make(map[string]Record)

	data, err := os.ReadFile(s.markdownPath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("markdown index unreadable, starting empty", "path", s.markdownPath, "error", err)
		} else {
			slog.Info("no concept index found, starting empty")
		}
		s.source = SourceEmpty
		return nil
	}
	s.source = SourceMarkdown

	subject := ""
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "## "); ok {
			subject = strings.TrimSpace(after)
			continue
		}
		if !strings.HasPrefix(line, "- [[") {
			continue
		}
		links := notes.ExtractWikiLinks(line)
		if len(links) == 0 {
			continue
		}
		title := links[0]
		rec := Record{Subject: subject}
		if start := strings.Index(line, "(aliases: "); start >= 0 {
			end := strings.Index(line[start:], ")")
			if end > 0 {
				for _, a := range strings.Split(line[start+len("(aliases: "):start+end], ",") {
					if a = strings.TrimSpace(a); a != "" {
						rec.Aliases = append(rec.Aliases, a)
					}
				}
			}
		}
		s.concepts[title] = rec
	}

	slog.Info("concepts recovered from markdown index", "concepts", len(s.concepts))
	return nil
}

// Scan walks a note corpus and replaces the in-memory map with what it
// finds. Every subject directory's markdown files contribute one
// record each.
func (s *Store) Scan(corpusRoot string) error {
	found := make(map[string]Record)

	err := filepath.WalkDir(corpusRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
			return nil
		}
		// The store's own markdown rendering is not a note.
		if filepath.Clean(path) == filepath.Clean(s.markdownPath) {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			slog.Warn("skipping unreadable note", "path", path, "error", readErr)
			return nil
		}

		metaRaw, body := notes.SplitFrontMatter(string(data))
		meta := notes.ParseMeta(metaRaw)

		subject := meta.Subject
		if subject == "" {
			subject = filepath.Base(filepath.Dir(path))
		}
		title := meta.Title
		if title == "" {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			title = fmt.Sprintf("【%s】%s", subject, name)
		}

		found[title] = Record{
			FilePath:    path,
			Aliases:     meta.Aliases,
			Tags:        meta.Tags,
			Related:     notes.ExtractWikiLinks(body),
			Subject:     subject,
			LastUpdated: time.Now().Format(time.RFC3339),
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan corpus: %w", err)
	}

	s.mu.Lock()
	s.concepts = found
	s.mu.Unlock()

	slog.Info("corpus scan complete", "root", corpusRoot, "concepts", len(found))
	return s.Save()
}

// Update merges records into the map, overwriting by title, and
// persists the result.
func (s *Store) Update(records map[string]Record) error {
	s.mu.Lock()
	now := time.Now().Format(time.RFC3339)
	for title, rec := range records {
		if rec.LastUpdated == "" {
			rec.LastUpdated = now
		}
		s.concepts[title] = rec
	}
	s.mu.Unlock()

	return s.Save()
}

// Lookup finds a concept by exact title, bare name or alias.
func (s *Store) Lookup(nameOrAlias string) (Record, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.concepts[nameOrAlias]; ok {
		return rec, nameOrAlias, true
	}

	for title, rec := range s.concepts {
		if BareName(title) == nameOrAlias {
			return rec, title, true
		}
		for _, alias := range rec.Aliases {
			if alias == nameOrAlias {
				return rec, title, true
			}
		}
	}
	return Record{}, "", false
}

// Get returns the record for an exact title.
func (s *Store) Get(title string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.concepts[title]
	return rec, ok
}

// Len returns the number of concepts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.concepts)
}

// Titles returns all concept titles sorted.
func (s *Store) Titles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	titles := make([]string, 0, len(s.concepts))
	for t := range s.concepts {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

// ExportForGeneration snapshots the store into the read-only view used
// for prompt construction. The copy is deep enough that a concurrent
// batch can hold it while the store keeps evolving.
func (s *Store) ExportForGeneration() Export {
	s.mu.RLock()
	defer s.mu.RUnlock()

	export := Export{
		Titles:        make([]string, 0, len(s.concepts)),
		Aliases:       make(map[string][]string, len(s.concepts)),
		Relationships: make(map[string][]string, len(s.concepts)),
		Subjects:      make(map[string][]string),
	}
	for title, rec := range s.concepts {
		export.Titles = append(export.Titles, title)
		if len(rec.Aliases) > 0 {
			export.Aliases[title] = append([]string(nil), rec.Aliases...)
		}
		if len(rec.Related) > 0 {
			export.Relationships[title] = append([]string(nil), rec.Related...)
		}
		export.Subjects[rec.Subject] = append(export.Subjects[rec.Subject], title)
	}
	sort.Strings(export.Titles)
	for _, titles := range export.Subjects {
		sort.Strings(titles)
	}
	return export
}

// Save writes the JSON index atomically and regenerates the markdown
// rendering from it. A failed write never destroys the previous index.
func (s *Store) Save() error {
	s.mu.RLock()
	index := indexFile{
		Metadata: indexMetadata{
			Created:       s.created,
			LastUpdated:   time.Now().Format(time.RFC3339),
			TotalConcepts: len(s.concepts),
			Version:       SchemaVersion,
		},
		Concepts: s.concepts,
	}
	if index.Metadata.Created == "" {
		index.Metadata.Created = index.Metadata.LastUpdated
	}
	data, err := json.MarshalIndent(index, "", "  ")
	markdown := s.renderMarkdownLocked()
	s.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("marshal concept index: %w", err)
	}

	s.mu.Lock()
	s.created = index.Metadata.Created
	s.mu.Unlock()

	if err := atomicWrite(s.indexPath, data); err != nil {
		return fmt.Errorf("write concept index: %w", err)
	}
	if err := atomicWrite(s.markdownPath, []byte(markdown)); err != nil {
		// The JSON index is authoritative; a failed rendering is only
		// a warning.
		slog.Warn("failed to write markdown index", "path", s.markdownPath, "error", err)
	}
	return nil
}

// renderMarkdownLocked renders the human-readable index grouped by
// subject. Caller must hold at least a read lock.
func (s *Store) renderMarkdownLocked() string {
	bySubject := make(map[string][]string)
	for title, rec := range s.concepts {
		bySubject[rec.Subject] = append(bySubject[rec.Subject], title)
	}

	subjects := make([]string, 0, len(bySubject))
	for subject := range bySubject {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	var sb strings.Builder
	sb.WriteString("# 概念索引\n\n")
	sb.WriteString(fmt.Sprintf("共 %d 个概念\n", len(s.concepts)))

	for _, subject := range subjects {
		sb.WriteString(fmt.Sprintf("\n## %s\n\n", subject))
		titles := bySubject[subject]
		sort.Strings(titles)
		for _, title := range titles {
			rec := s.concepts[title]
			if len(rec.Aliases) > 0 {
				sb.WriteString(fmt.Sprintf("- [[%s]] (aliases: %s)\n", title, strings.Join(rec.Aliases, ", ")))
			} else {
				sb.WriteString(fmt.Sprintf("- [[%s]]\n", title))
			}
		}
	}
	return sb.String()
}

// BareName strips the "【subject】" prefix from a title.
func BareName(title string) string {
	if strings.HasPrefix(title, "【") {
		if idx := strings.Index(title, "】"); idx >= 0 {
			return title[idx+len("】"):]
		}
	}
	return title
}

// atomicWrite writes via a temp file and rename so a crash mid-write
// cannot leave a truncated file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
