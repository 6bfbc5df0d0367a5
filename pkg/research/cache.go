// Package research generates implementation contracts for subtasks, with a
// content-addressed on-disk cache and a bounded-concurrency work queue.
package research

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"prp/pkg/backlog"
	"prp/pkg/logx"
	"prp/pkg/metrics"
	"prp/pkg/runerrors"
	"prp/pkg/utils"
)

// DefaultTTL is how long a cache entry stays valid after creation.
const DefaultTTL = 24 * time.Hour

// CacheEntry is the persisted form of one cached research result.
type CacheEntry struct {
	SubtaskID   string    `json:"subtask_id"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
	Contract    string    `json:"contract"`
}

// Cache stores research contracts on disk, one JSON file per subtask, keyed
// by the subtask's content hash. An entry is valid only while its stored
// hash matches the subtask's current hash and its age is within the TTL.
type Cache struct {
	mu       sync.Mutex
	dir      string
	ttl      time.Duration
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewCache creates a cache rooted at dir, creating the directory if needed.
// A non-positive ttl falls back to DefaultTTL; a nil recorder discards
// metrics.
func NewCache(dir string, ttl time.Duration, recorder metrics.Recorder) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, runerrors.NewStorage(err, "failed to create research cache directory")
	}
	return &Cache{
		dir:      dir,
		ttl:      ttl,
		recorder: recorder,
		logger:   logx.NewLogger("research-cache"),
	}, nil
}

// Lookup returns the cached contract for the subtask if a valid entry
// exists. Stale entries, whether expired or invalidated by a content
// change, are evicted on sight.
func (c *Cache) Lookup(s *backlog.Subtask) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.entryPath(s.ID)
	data, err := os.ReadFile(path)
	if err != nil {
		c.recorder.IncCacheMiss()
		return "", false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("Evicting unreadable cache entry for %s: %v", s.ID, err)
		c.evictLocked(path)
		c.recorder.IncCacheMiss()
		return "", false
	}

	if entry.ContentHash != backlog.ContentHash(s) {
		c.logger.Debug("Cache entry for %s invalidated by content change", s.ID)
		c.evictLocked(path)
		c.recorder.IncCacheMiss()
		return "", false
	}
	if time.Since(entry.CreatedAt) >= c.ttl {
		c.logger.Debug("Cache entry for %s expired (age %v)", s.ID, time.Since(entry.CreatedAt).Round(time.Second))
		c.evictLocked(path)
		c.recorder.IncCacheMiss()
		return "", false
	}

	// Refresh the access time; failure here degrades bookkeeping only.
	entry.AccessedAt = time.Now().UTC()
	if refreshed, err := json.MarshalIndent(&entry, "", "  "); err == nil {
		if err := utils.WriteFileAtomic(path, refreshed, utils.DefaultFileMode); err != nil {
			c.logger.Warn("Failed to refresh access time for %s: %v", s.ID, err)
		}
	}

	c.recorder.IncCacheHit()
	return entry.Contract, true
}

// Put stores a freshly generated contract for the subtask.
func (c *Cache) Put(s *backlog.Subtask, contract string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	entry := CacheEntry{
		SubtaskID:   s.ID,
		ContentHash: backlog.ContentHash(s),
		CreatedAt:   now,
		AccessedAt:  now,
		Contract:    contract,
	}

	data, err := json.MarshalIndent(&entry, "", "  ")
	if err != nil {
		return runerrors.NewStorage(err, "failed to encode cache entry for "+s.ID)
	}
	if err := utils.WriteFileAtomic(c.entryPath(s.ID), data, utils.DefaultFileMode); err != nil {
		return runerrors.NewStorage(err, "failed to write cache entry for "+s.ID)
	}
	return nil
}

// Evict removes any cached entry for the subtask id.
func (c *Cache) Evict(subtaskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(c.entryPath(subtaskID))
}

// evictLocked removes the entry file and counts the eviction. Caller holds mu.
func (c *Cache) evictLocked(path string) {
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("Failed to evict cache entry %s: %v", path, err)
		}
		return
	}
	c.recorder.IncCacheEviction()
}

func (c *Cache) entryPath(subtaskID string) string {
	return filepath.Join(c.dir, subtaskID+".json")
}
