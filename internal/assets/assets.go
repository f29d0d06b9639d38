// Package assets handles asset loading and caching across mounted archives.
package assets

import (
	"fmt"
	"sync"

	"github.com/Cyrex0/enfusion-unpacker/pkg/encoding"
	"github.com/Cyrex0/enfusion-unpacker/pkg/pak"
)

// Manager handles asset loading from PAK archives.
type Manager struct {
	archives []*pak.Archive
	cache    *Cache
	mu       sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
	}
}

// Mount adds a PAK archive to the manager.
// Archives are searched in reverse order (last mounted = highest priority).
func (m *Manager) Mount(path string) error {
	archive, err := pak.Open(path)
	if err != nil {
		return fmt.Errorf("mounting archive %s: %w", path, err)
	}

	m.mu.Lock()
	m.archives = append(m.archives, archive)
	m.mu.Unlock()

	return nil
}

// Load loads an entry from the mounted archives. The returned slice is
// shared with the cache and must be treated as read-only.
func (m *Manager) Load(path string) ([]byte, error) {
	key := encoding.NormalizeArchivePath(path)

	// Check cache first
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Search archives in reverse order
	for i := len(m.archives) - 1; i >= 0; i-- {
		data, err := m.archives[i].Read(key)
		if err == nil {
			m.cache.Set(key, data)
			return data, nil
		}
	}

	return nil, fmt.Errorf("file not found: %s", path)
}

// List returns the union of entry paths across all mounted archives.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var result []string
	for _, archive := range m.archives {
		for _, path := range archive.List() {
			if !seen[path] {
				seen[path] = true
				result = append(result, path)
			}
		}
	}
	return result
}

// Contains reports whether any mounted archive holds the entry.
func (m *Manager) Contains(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.archives) - 1; i >= 0; i-- {
		if m.archives[i].Contains(path) {
			return true
		}
	}
	return false
}

// CacheStats returns cache hit and miss counts.
func (m *Manager) CacheStats() (hits, misses int) {
	return m.cache.Stats()
}

// Close closes all archives.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, archive := range m.archives {
		archive.Close()
	}
	m.archives = nil
	m.cache.Clear()
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache. Stats mutate under the same lock,
// so this takes the write path.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
