package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache stores per-document token hashes so unchanged documents are not
// re-encoded between indexing runs.
type Cache struct {
	path        string
	fingerprint string
	entries     map[string]CacheEntry
	mu          sync.RWMutex
	dirty       bool
}

// CacheEntry represents a cached document state.
type CacheEntry struct {
	// SHA256 hash of the document's token ids
	ContentHash string `json:"content_hash"`

	// When this document was last indexed
	IndexedAt time.Time `json:"indexed_at"`

	// Vector store point id
	PointID string `json:"point_id"`

	// Non-padding segments and whether the document was truncated
	Segments  int  `json:"segments"`
	Truncated bool `json:"truncated,omitempty"`
}

// CacheFile is the JSON structure stored on disk.
type CacheFile struct {
	CorpusID string `json:"corpus_id"`

	// Model settings the vectors were produced with
	Fingerprint string `json:"fingerprint"`

	UpdatedAt time.Time             `json:"updated_at"`
	Documents map[string]CacheEntry `json:"documents"`
}

// NewCache creates a new cache for a corpus.
func NewCache(cacheDir, corpusID string) (*Cache, error) {
	cache := &Cache{
		path:    filepath.Join(cacheDir, corpusID+".json"),
		entries: make(map[string]CacheEntry),
	}

	if err := cache.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	return cache, nil
}

// load reads the cache from disk.
func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	var cacheFile CacheFile
	if err := json.Unmarshal(data, &cacheFile); err != nil {
		return fmt.Errorf("failed to parse cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fingerprint = cacheFile.Fingerprint
	c.entries = cacheFile.Documents
	if c.entries == nil {
		c.entries = make(map[string]CacheEntry)
	}

	return nil
}

// Save writes the cache to disk atomically.
func (c *Cache) Save(corpusID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(CacheFile{
		CorpusID:    corpusID,
		Fingerprint: c.fingerprint,
		UpdatedAt:   time.Now().UTC(),
		Documents:   c.entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save cache: %w", err)
	}

	return nil
}

// Fingerprint returns the model fingerprint the cache was written with.
func (c *Cache) Fingerprint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fingerprint
}

// SetFingerprint records the model fingerprint.
func (c *Cache) SetFingerprint(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fingerprint != fp {
		c.fingerprint = fp
		c.dirty = true
	}
}

// Get retrieves a cache entry for a document.
func (c *Cache) Get(documentID string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[documentID]
	return entry, ok
}

// Set updates or creates a cache entry.
func (c *Cache) Set(documentID string, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[documentID] = entry
	c.dirty = true
}

// Delete removes a cache entry.
func (c *Cache) Delete(documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, documentID)
	c.dirty = true
}

// HasChanged checks if a document has changed based on its token hash.
func (c *Cache) HasChanged(documentID, contentHash string) bool {
	entry, exists := c.Get(documentID)
	if !exists {
		return true
	}
	return entry.ContentHash != contentHash
}

// GetAllDocuments returns all cached document ids.
func (c *Cache) GetAllDocuments() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry)
	c.dirty = true
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{DocumentCount: len(c.entries)}
	for _, entry := range c.entries {
		stats.SegmentCount += entry.Segments
		if entry.Truncated {
			stats.TruncatedCount++
		}
	}
	return stats
}

// CacheStats contains cache statistics.
type CacheStats struct {
	DocumentCount  int
	SegmentCount   int
	TruncatedCount int
}
