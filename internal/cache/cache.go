package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pranot/segtrans/pkg/file"
	"github.com/pranot/segtrans/pkg/log"
)

const DefaultPersistInterval = 10

// Entry is one cached processing result. Entries are never mutated
// after insertion.
type Entry struct {
	Output       string  `json:"output"`
	Tier         string  `json:"tier"`
	CostEstimate float64 `json:"cost_estimate"`
}

// Stats reports hit/miss accounting for one run.
type Stats struct {
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries"`
}

// Key derives the canonical cache key for a piece of input text, its
// context, and the tier it would be processed on. The context map is
// serialized with sorted keys so that semantically identical contexts
// always agree on the key regardless of map ordering.
func Key(text string, context map[string]string, tier string) string {
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(text))
	sb.WriteByte('|')
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(context[k])
		sb.WriteByte(';')
	}
	sb.WriteByte('|')
	sb.WriteString(tier)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}

// Cache is a content-addressed result cache with periodic JSON
// persistence. Puts are idempotent: the first value for a key wins and
// duplicates neither overwrite nor disturb the statistics, which is
// what keeps cost accounting at-most-once under concurrent workers.
type Cache struct {
	path            string
	persistInterval int

	mu             sync.Mutex
	entries        map[string]Entry
	hits           int
	misses         int
	putsSinceFlush int
	dirty          bool

	group singleflight.Group
}

// Load opens the cache at path, pre-warming from a prior run when the
// file exists. A corrupt or unreadable file yields an empty cache and
// a warning; every entry is recomputable from source, so corruption is
// never fatal.
func Load(path string, persistInterval int) *Cache {
	if persistInterval <= 0 {
		persistInterval = DefaultPersistInterval
	}
	c := &Cache{
		path:            path,
		persistInterval: persistInterval,
		entries:         make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Cache file %s unreadable, starting empty: %v", path, err)
		}
		return c
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		log.Warn("Cache file %s corrupt, starting empty: %v", path, err)
		c.entries = make(map[string]Entry)
	}
	return c
}

// Get returns the cached entry and whether it was present, updating
// hit/miss counters.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return entry, ok
}

// Put stores an entry if the key is absent. Re-insertion under an
// existing key returns the existing value unchanged.
func (c *Cache) Put(key string, entry Entry) Entry {
	c.mu.Lock()

	if existing, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return existing
	}
	c.entries[key] = entry
	c.putsSinceFlush++
	c.dirty = true
	shouldPersist := c.putsSinceFlush >= c.persistInterval
	if shouldPersist {
		c.putsSinceFlush = 0
	}
	c.mu.Unlock()

	if shouldPersist {
		if err := c.Persist(); err != nil {
			log.Warn("Cache persist failed: %v", err)
		}
	}
	return entry
}

// GetOrCompute returns the cached entry for key, or runs compute and
// stores the result. Concurrent callers with the same key share one
// compute call; only the caller whose closure actually ran compute
// reports hit=false, so a key's cost is charged exactly once.
func (c *Cache) GetOrCompute(key string, compute func() (Entry, error)) (Entry, bool, error) {
	if entry, ok := c.Get(key); ok {
		return entry, true, nil
	}

	computed := false
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A racing caller may have stored the entry between the miss
		// above and this singleflight slot.
		c.mu.Lock()
		if entry, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return entry, nil
		}
		c.mu.Unlock()

		entry, err := compute()
		if err != nil {
			return Entry{}, err
		}
		computed = true
		return c.Put(key, entry), nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return v.(Entry), !computed, nil
}

// Stats returns a snapshot of the run's hit/miss accounting.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Persist writes the full cache to disk atomically. Skipped when
// nothing changed since the last write.
func (c *Cache) Persist() error {
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("marshal cache: %w", err)
	}
	c.dirty = false
	c.mu.Unlock()

	if err := file.WriteAtomic(c.path, data, 0644); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	return nil
}

// Close persists any unflushed entries.
func (c *Cache) Close() error {
	return c.Persist()
}
