// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

// Package admission decides whether records from a never-seen stream id may
// be stored. The cache is advisory; the retention sweeper reconciles it with
// the store.
package admission

import "sync"

// Entry is a stream id together with its observed record count.
type Entry struct {
	Hash  string
	Count int64
}

// Cache is a bounded in-memory map from stream id to observed record count.
// All operations are O(1) or O(n) map work under a single mutex, never
// blocking on I/O, so it is safe on the ingest hot path.
type Cache struct {
	mu        sync.Mutex
	maxHashes int
	counts    map[string]int64
}

// NewCache creates a cache admitting at most maxHashes distinct stream ids.
func NewCache(maxHashes int) *Cache {
	return &Cache{
		maxHashes: maxHashes,
		counts:    make(map[string]int64),
	}
}

// Admit reports whether a record with the given stream id should be stored.
// Known ids are always admitted and their counter incremented; unknown ids
// are admitted only while the cache holds fewer than its cap.
func (cache *Cache) Admit(hash string) bool {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if _, ok := cache.counts[hash]; ok {
		cache.counts[hash]++
		return true
	}
	if len(cache.counts) < cache.maxHashes {
		cache.counts[hash] = 1
		return true
	}
	return false
}

// Reseed atomically replaces the cache contents.
func (cache *Cache) Reseed(entries []Entry) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.counts = make(map[string]int64, len(entries))
	for _, entry := range entries {
		cache.counts[entry.Hash] = entry.Count
	}
}

// Len returns the number of distinct stream ids currently admitted.
func (cache *Cache) Len() int {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return len(cache.counts)
}

// Count returns the observed record count for a stream id.
func (cache *Cache) Count(hash string) int64 {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return cache.counts[hash]
}
