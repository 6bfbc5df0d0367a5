package research

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prp/pkg/backlog"
)

// countingRecorder tallies recorder calls for assertions.
type countingRecorder struct {
	mu        sync.Mutex
	hits      int
	misses    int
	evictions int
	retries   int
	observed  int
}

func (c *countingRecorder) IncCacheHit()     { c.mu.Lock(); c.hits++; c.mu.Unlock() }
func (c *countingRecorder) IncCacheMiss()    { c.mu.Lock(); c.misses++; c.mu.Unlock() }
func (c *countingRecorder) IncCacheEviction() { c.mu.Lock(); c.evictions++; c.mu.Unlock() }
func (c *countingRecorder) ObserveResearch(_ bool, _ time.Duration) {
	c.mu.Lock()
	c.observed++
	c.mu.Unlock()
}
func (c *countingRecorder) IncResearchRetry(_ string) { c.mu.Lock(); c.retries++; c.mu.Unlock() }
func (c *countingRecorder) IncSubtaskOutcome(_ string) {}
func (c *countingRecorder) ObserveLLMRequest(_, _ string, _, _ int, _ bool, _ time.Duration) {}

func testSubtask() *backlog.Subtask {
	return &backlog.Subtask{
		ID:          "P1.M1.T1.S1",
		Title:       "Implement parser",
		Description: "Parse the requirements document",
		Status:      backlog.StatusPlanned,
		StoryPoints: 2,
	}
}

func TestCacheMissOnEmpty(t *testing.T) {
	rec := &countingRecorder{}
	cache, err := NewCache(t.TempDir(), DefaultTTL, rec)
	require.NoError(t, err)

	_, ok := cache.Lookup(testSubtask())
	assert.False(t, ok)
	assert.Equal(t, 1, rec.misses)
	assert.Zero(t, rec.hits)
}

func TestCachePutThenHit(t *testing.T) {
	rec := &countingRecorder{}
	cache, err := NewCache(t.TempDir(), DefaultTTL, rec)
	require.NoError(t, err)

	s := testSubtask()
	require.NoError(t, cache.Put(s, "the contract"))

	contract, ok := cache.Lookup(s)
	assert.True(t, ok)
	assert.Equal(t, "the contract", contract)
	assert.Equal(t, 1, rec.hits)
	assert.Zero(t, rec.misses)
}

func TestCacheInvalidatedByContentChange(t *testing.T) {
	dir := t.TempDir()
	rec := &countingRecorder{}
	cache, err := NewCache(dir, DefaultTTL, rec)
	require.NoError(t, err)

	s := testSubtask()
	require.NoError(t, cache.Put(s, "stale contract"))

	changed := *s
	changed.Description = "Parse the requirements document differently"

	_, ok := cache.Lookup(&changed)
	assert.False(t, ok)
	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 1, rec.evictions)

	// The stale entry is gone from disk.
	_, statErr := os.Stat(filepath.Join(dir, s.ID+".json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	rec := &countingRecorder{}
	cache, err := NewCache(t.TempDir(), time.Millisecond, rec)
	require.NoError(t, err)

	s := testSubtask()
	require.NoError(t, cache.Put(s, "short-lived"))
	time.Sleep(5 * time.Millisecond)

	_, ok := cache.Lookup(s)
	assert.False(t, ok)
	assert.Equal(t, 1, rec.evictions)
}

func TestCacheCorruptEntryEvicted(t *testing.T) {
	dir := t.TempDir()
	rec := &countingRecorder{}
	cache, err := NewCache(dir, DefaultTTL, rec)
	require.NoError(t, err)

	s := testSubtask()
	require.NoError(t, os.WriteFile(filepath.Join(dir, s.ID+".json"), []byte("not json"), 0o644))

	_, ok := cache.Lookup(s)
	assert.False(t, ok)
	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 1, rec.evictions)
}

func TestCacheStatusChangeDoesNotInvalidate(t *testing.T) {
	cache, err := NewCache(t.TempDir(), DefaultTTL, nil)
	require.NoError(t, err)

	s := testSubtask()
	require.NoError(t, cache.Put(s, "contract"))

	// Execution state is not part of the content hash.
	progressed := *s
	progressed.Status = backlog.StatusImplementing

	contract, ok := cache.Lookup(&progressed)
	assert.True(t, ok)
	assert.Equal(t, "contract", contract)
}
