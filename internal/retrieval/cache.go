// Package retrieval selects concept-link candidates with dense
// embedding recall followed by cross-encoder reranking.
package retrieval

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// CacheVersion tags the on-disk embedding cache format.
const CacheVersion = "2.0"

// cacheFile is the persisted cache. Embeddings are keyed by
// "conceptName#md5(normalizedContent)" so cosmetic edits don't
// invalidate them.
type cacheFile struct {
	Metadata      cacheMetadata        `json:"metadata"`
	ConceptHashes map[string]string    `json:"concept_hashes"`
	Embeddings    map[string][]float32 `json:"embeddings"`
}

type cacheMetadata struct {
	Version       string `json:"version"`
	Model         string `json:"model"`
	Created       string `json:"created"`
	LastUpdated   string `json:"last_updated"`
	TotalConcepts int    `json:"total_concepts"`
}

// Cache is a read-through embedding cache. It is an optimization
// only: corruption or loss rebuilds transparently, never an error.
type Cache struct {
	mu     sync.Mutex
	path   string
	model  string
	hashes map[string]string
	// vectors keyed by the stable "name#hash" form.
	vectors map[string][]float32
	// legacy holds pre-2.0 entries keyed by bare concept name, kept
	// until their owners are seen again and the entries migrated.
	legacy  map[string][]float32
	created string
}

// OpenCache loads the cache at path, starting empty when the file is
// missing, corrupt or belongs to a different embedding model.
func OpenCache(path, model string) *Cache {
	c := &Cache{
		path:    path,
		model:   model,
		hashes:  make(map[string]string),
		vectors: make(map[string][]float32),
		legacy:  make(map[string][]float32),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("embedding cache unreadable, rebuilding", "path", path, "error", err)
		}
		return c
	}

	var parsed cacheFile
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Metadata.Version == CacheVersion {
		if parsed.Metadata.Model != "" && parsed.Metadata.Model != model {
			slog.Warn("embedding cache built with different model, rebuilding",
				"cached_model", parsed.Metadata.Model, "model", model)
			return c
		}
		if parsed.ConceptHashes != nil {
			c.hashes = parsed.ConceptHashes
		}
		if parsed.Embeddings != nil {
			c.vectors = parsed.Embeddings
		}
		c.created = parsed.Metadata.Created
		slog.Info("embedding cache loaded", "entries", len(c.vectors))
		return c
	}

	// Old format: a flat name -> vector map. Entries migrate to the
	// hashed key form as their concepts are next requested.
	var old map[string][]float32
	if err := json.Unmarshal(data, &old); err == nil && len(old) > 0 {
		c.legacy = old
		slog.Info("legacy embedding cache found, migrating lazily", "entries", len(old))
		return c
	}

	slog.Warn("embedding cache corrupt, rebuilding", "path", path)
	return c
}

// Key computes the stable cache key for a concept and its content.
func Key(name, content string) string {
	sum := md5.Sum([]byte(normalizeForEmbedding(content)))
	return name + "#" + hex.EncodeToString(sum[:])
}

// Get returns the cached vector for the concept's current content.
// Legacy entries are migrated to the current key on first hit.
func (c *Cache) Get(name, content string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(name, content)
	if vec, ok := c.vectors[key]; ok {
		return vec, true
	}

	if vec, ok := c.legacy[name]; ok {
		c.vectors[key] = vec
		c.hashes[name] = strings.TrimPrefix(key, name+"#")
		delete(c.legacy, name)
		return vec, true
	}

	return nil, false
}

// Put stores a vector under the concept's stable key.
func (c *Cache) Put(name, content string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(name, content)
	c.vectors[key] = vec
	c.hashes[name] = strings.TrimPrefix(key, name+"#")
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vectors)
}

// Save persists the cache atomically. Failures are logged, not
// returned: the cache must never block the caller's correctness.
func (c *Cache) Save() {
	c.mu.Lock()
	now := time.Now().Format(time.RFC3339)
	if c.created == "" {
		c.created = now
	}
	out := cacheFile{
		Metadata: cacheMetadata{
			Version:       CacheVersion,
			Model:         c.model,
			Created:       c.created,
			LastUpdated:   now,
			TotalConcepts: len(c.hashes),
		},
		ConceptHashes: c.hashes,
		Embeddings:    c.vectors,
	}
	c.mu.Unlock()

	data, err := json.Marshal(out)
	if err != nil {
		slog.Warn("failed to marshal embedding cache", "error", err)
		return
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("failed to create cache dir", "path", dir, "error", err)
		return
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		slog.Warn("failed to create temp cache file", "error", err)
		return
	}
	if _, err := tmp.Write(data); err == nil && tmp.Close() == nil {
		if err := os.Rename(tmp.Name(), c.path); err != nil {
			slog.Warn("failed to replace cache file", "error", err)
			os.Remove(tmp.Name())
		}
	} else {
		tmp.Close()
		os.Remove(tmp.Name())
		slog.Warn("failed to write cache file", "path", c.path)
	}
}

var (
	embedDateRe  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	embedTimeRe  = regexp.MustCompile(`\d{2}:\d{2}:\d{2}`)
	embedPunctRe = regexp.MustCompile(`[\p{P}\p{S}]`)
	embedSpaceRe = regexp.MustCompile(`\s+`)
)

// normalizeForEmbedding reduces content to its semantic skeleton:
// dates, times, punctuation and whitespace runs carry no embedding
// signal and would churn cache keys.
func normalizeForEmbedding(content string) string {
	content = embedDateRe.ReplaceAllString(content, "")
	content = embedTimeRe.ReplaceAllString(content, "")
	content = embedPunctRe.ReplaceAllString(content, "")
	content = embedSpaceRe.ReplaceAllString(content, " ")
	return strings.ToLower(strings.TrimSpace(content))
}
