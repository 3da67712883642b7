package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/hammamikhairi/smartnotifier/internal/logger"
)

// DefaultCacheEntries bounds the in-memory audio cache.
const DefaultCacheEntries = 256

// AudioCache keeps synthesized announcements in memory and optionally on
// disk. Keys are sha256(voice + ":" + text). The memory tier holds at most
// maxEntries clips and evicts the oldest insert first; the disk tier is
// unbounded and is read even when writes are off.
type AudioCache struct {
	mu         sync.Mutex
	entries    map[string][]byte
	order      []string // insertion order of entries
	maxEntries int
	voice      string
	dir        string
	diskWrite  bool
	hits       int64
	misses     int64
	log        *logger.Logger
}

// NewAudioCache creates a cache. An empty dir disables the disk tier.
func NewAudioCache(voice, dir string, diskWrite bool, maxEntries int, log *logger.Logger) *AudioCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if dir != "" && diskWrite {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("cache: creating %s: %v", dir, err)
		}
	}
	return &AudioCache{
		entries:    make(map[string][]byte),
		maxEntries: maxEntries,
		voice:      voice,
		dir:        dir,
		diskWrite:  diskWrite,
		log:        log,
	}
}

// Get returns cached audio for text, checking memory then disk.
func (c *AudioCache) Get(text string) ([]byte, bool) {
	key := c.key(text)

	c.mu.Lock()
	if data, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return data, true
	}
	c.mu.Unlock()

	if c.dir != "" {
		if data, err := os.ReadFile(c.path(key)); err == nil {
			c.mu.Lock()
			c.storeLocked(key, data)
			c.hits++
			c.mu.Unlock()
			c.log.Debug("cache hit (disk): %s", truncate(text, 40))
			return data, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// Put stores audio for text in memory, and on disk when enabled.
func (c *AudioCache) Put(text string, audio []byte) {
	key := c.key(text)

	c.mu.Lock()
	c.storeLocked(key, audio)
	c.mu.Unlock()

	if c.dir != "" && c.diskWrite {
		if err := os.WriteFile(c.path(key), audio, 0o644); err != nil {
			c.log.Error("cache: writing %s: %v", key[:12], err)
		}
	}
}

func (c *AudioCache) storeLocked(key string, audio []byte) {
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = audio
	for len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len returns the number of clips held in memory.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *AudioCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *AudioCache) key(text string) string {
	h := sha256.Sum256([]byte(c.voice + ":" + text))
	return hex.EncodeToString(h[:])
}

func (c *AudioCache) path(key string) string {
	return filepath.Join(c.dir, key+".wav")
}
