package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sif-backend/internal/domain"
	"sif-backend/pkg/logger"
)

// MemoryCache is an in-memory key-value cache with per-entry TTL and a
// size cap enforced by oldest-first eviction
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
}

type entry struct {
	value     interface{}
	expiresAt time.Time
	createdAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(defaultTTL time.Duration, maxSize int) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*entry),
		ttl:     defaultTTL,
		maxSize: maxSize,
	}
}

// Set stores a value. A zero ttl means the cache default.
func (mc *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if ttl == 0 {
		ttl = mc.ttl
	}

	if mc.maxSize > 0 && len(mc.entries) >= mc.maxSize {
		mc.evictOldest()
	}

	now := time.Now()
	mc.entries[key] = &entry{
		value:     value,
		expiresAt: now.Add(ttl),
		createdAt: now,
	}
}

// Get returns the value for key. Expired entries read as misses; the
// cleanup loop reclaims them.
func (mc *MemoryCache) Get(key string) (interface{}, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	e, ok := mc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Delete removes a single entry
func (mc *MemoryCache) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.entries, key)
}

// Clear removes all entries
func (mc *MemoryCache) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries = make(map[string]*entry)
}

// Size returns the current number of entries, expired included
func (mc *MemoryCache) Size() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.entries)
}

// evictOldest removes the entry with the earliest creation time.
// Caller holds the write lock.
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, e := range mc.entries {
		if oldestKey == "" || e.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.createdAt
		}
	}

	if oldestKey != "" {
		delete(mc.entries, oldestKey)
		logger.Debug("Cache entry evicted",
			zap.String("key", oldestKey),
			zap.Time("created_at", oldestTime),
		)
	}
}

func (mc *MemoryCache) cleanupExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	expired := 0
	for key, e := range mc.entries {
		if now.After(e.expiresAt) {
			delete(mc.entries, key)
			expired++
		}
	}

	if expired > 0 {
		logger.Debug("Expired cache entries cleaned up",
			zap.Int("count", expired),
			zap.Int("remaining", len(mc.entries)),
		)
	}
}

// StartCleanup launches the expiry reclaim loop and returns a stop function
func (mc *MemoryCache) StartCleanup(interval time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mc.cleanupExpired()
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}

// SettingsCache caches user settings aggregates keyed by uid. Values are
// stored as JSON so callers always get an independent copy back, never a
// pointer into the cache.
type SettingsCache struct {
	cache *MemoryCache
}

// NewSettingsCache creates a new settings cache
func NewSettingsCache(defaultTTL time.Duration, maxSize int) *SettingsCache {
	return &SettingsCache{
		cache: NewMemoryCache(defaultTTL, maxSize),
	}
}

func settingsKey(uid string) string {
	return fmt.Sprintf("settings:%s", uid)
}

// Put stores a settings aggregate for a user
func (sc *SettingsCache) Put(uid string, settings *domain.UserSettings, ttl time.Duration) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	sc.cache.Set(settingsKey(uid), data, ttl)
	return nil
}

// Get retrieves a settings aggregate for a user
func (sc *SettingsCache) Get(uid string) (*domain.UserSettings, bool) {
	value, ok := sc.cache.Get(settingsKey(uid))
	if !ok {
		return nil, false
	}

	data, ok := value.([]byte)
	if !ok {
		return nil, false
	}

	var settings domain.UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		logger.Error("Failed to unmarshal settings from cache",
			zap.String("uid", uid),
			zap.Error(err))
		return nil, false
	}

	return &settings, true
}

// Invalidate removes a user's settings from the cache
func (sc *SettingsCache) Invalidate(uid string) {
	sc.cache.Delete(settingsKey(uid))
}

// Size returns the number of cached aggregates
func (sc *SettingsCache) Size() int {
	return sc.cache.Size()
}
