// Package cache keeps rendered voice audio on disk so repeated requests for
// the same text, voice and effect chain skip synthesis.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const fileExt = ".bin"

// Cache is a disk-backed LRU cache for rendered audio buffers.
type Cache struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	total    int64
	log      *slog.Logger
	entries  map[string]*entry

	hits, misses int
}

type entry struct {
	size       int64
	accessedAt time.Time
	path       string
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Hits    int   `json:"hits"`
	Misses  int   `json:"misses"`
}

// New creates a Cache that stores files in dir with a total size cap of maxBytes.
// It creates dir if it does not exist and indexes the files already there.
func New(dir string, maxBytes int64, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		log:      logger.With("component", "cache"),
		entries:  make(map[string]*entry),
	}
	c.loadExisting()
	return c, nil
}

// Get returns cached data for key and true on hit, or nil and false on miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	data, err := os.ReadFile(e.path)
	if err != nil {
		c.log.Warn("cache file unreadable, removing entry", "key", key, "error", err)
		c.drop(key)
		c.misses++
		return nil, false
	}

	e.accessedAt = time.Now()
	c.hits++
	return data, true
}

// Put stores data under key, evicting least-recently-used entries if necessary.
// Entries larger than the cap are skipped.
func (c *Cache) Put(key string, data []byte) error {
	size := int64(len(data))
	if size > c.maxBytes {
		c.log.Debug("skipping oversized cache entry", "key", key, "size", size)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.drop(key)
	}
	c.evict(size)

	p := filepath.Join(c.dir, key+fileExt)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("cache: write: %w", err)
	}
	c.entries[key] = &entry{size: size, accessedAt: time.Now(), path: p}
	c.total += size
	return nil
}

// Stats reports the entry count, stored bytes and hit counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Bytes: c.total, Hits: c.hits, Misses: c.misses}
}

// RenderKey identifies one rendered buffer.
type RenderKey struct {
	Text        string
	Engine      string
	Fingerprint string
	Emotion     voice.Emotion
	Intensity   float64
	Effects     []voice.EffectConfig
	Transform   *voice.VoiceTransform
}

// Key produces a deterministic SHA-256 hex key from render parameters.
func Key(k RenderKey) string {
	h := sha256.New()
	fmt.Fprintf(h, "text=%s\nengine=%s\nvoice=%s\nemotion=%s\nintensity=%f\n",
		k.Text, k.Engine, k.Fingerprint, k.Emotion, k.Intensity)
	for _, e := range k.Effects {
		params, _ := json.Marshal(e.Parameters)
		fmt.Fprintf(h, "effect=%s:%f:%s\n", e.Type, e.Intensity, params)
	}
	if t := k.Transform; t != nil {
		fmt.Fprintf(h, "transform=%f:%f:%f:%f:%f\n", t.PitchShift, t.FormantShift, t.TimbreMorph, t.Breathiness, t.Roughness)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Fingerprint hashes the audible parameters of p. The identifier and
// timestamps are excluded, so equal presets share entries.
func Fingerprint(p voice.VoiceProfile) string {
	p.ProfileID = ""
	p.CreatedAt = time.Time{}
	p.UpdatedAt = time.Time{}
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}

// drop removes key from disk and the index. Must be called with mu held.
func (c *Cache) drop(key string) {
	e := c.entries[key]
	os.Remove(e.path)
	delete(c.entries, key)
	c.total -= e.size
}

// evict removes least-recently-used entries until total + needed <= maxBytes.
// Must be called with mu held.
func (c *Cache) evict(needed int64) {
	for c.total+needed > c.maxBytes {
		oldest := c.oldestKey()
		if oldest == "" {
			break
		}
		size := c.entries[oldest].size
		c.drop(oldest)
		c.log.Debug("evicted cache entry", "key", oldest, "size", size)
	}
}

// oldestKey returns the key with the earliest accessedAt. Must be called with mu held.
func (c *Cache) oldestKey() string {
	var (
		oldest     string
		oldestTime time.Time
	)
	for k, e := range c.entries {
		if oldest == "" || e.accessedAt.Before(oldestTime) {
			oldest, oldestTime = k, e.accessedAt
		}
	}
	return oldest
}

// loadExisting indexes the cache files in dir using their mod times.
func (c *Cache) loadExisting() {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*"+fileExt))
	if err != nil {
		c.log.Warn("cache: glob existing files", "error", err)
		return
	}
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		key := strings.TrimSuffix(filepath.Base(p), fileExt)
		c.entries[key] = &entry{size: info.Size(), accessedAt: info.ModTime(), path: p}
		c.total += info.Size()
	}
	if len(c.entries) > 0 {
		c.log.Info("loaded existing cache entries", "count", len(c.entries), "total_bytes", c.total)
		// The cap may have shrunk since the files were written.
		c.evict(0)
	}
}
