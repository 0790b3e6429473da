// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokenstore

import (
	"sync"
	"time"

	"github.com/sellermesh/adsgate/pkg/logger"
)

const (
	// maxEntries caps the in-memory store; the oldest entry is evicted when
	// a Set would exceed it.
	maxEntries = 1000

	// sweepInterval throttles the opportunistic expired-entry sweep.
	sweepInterval = 300 * time.Second
)

// MemoryStore is the in-process token cache. All operations are guarded by a
// single mutex; expired entries are dropped on read and swept opportunistically
// on write.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]Entry
	lastSweep time.Time
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]Entry),
		lastSweep: time.Now(),
	}
}

// Get retrieves a token. Entries inside the expiry buffer are removed and
// reported as absent.
func (s *MemoryStore) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	entry, ok := s.entries[k]
	if !ok {
		return Entry{}, false
	}
	if entry.IsExpired() {
		delete(s.entries, k)
		return Entry{}, false
	}
	return entry, true
}

// Set stores or replaces a token, sweeping expired entries and evicting the
// oldest one when the store is full.
func (s *MemoryStore) Set(key Key, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	k := key.String()
	if _, exists := s.entries[k]; !exists && len(s.entries) >= maxEntries {
		s.evictOldestLocked()
	}
	s.entries[k] = entry
	return nil
}

// Invalidate removes a specific token. Removing an absent key is not an error.
func (s *MemoryStore) Invalidate(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key.String())
	return nil
}

// InvalidateMatching removes every token matching the filter.
func (s *MemoryStore) InvalidateMatching(f Filter) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for raw := range s.entries {
		key, err := ParseKey(raw)
		if err != nil {
			// Should be unreachable; keys only enter the map via Key.String.
			delete(s.entries, raw)
			removed++
			continue
		}
		if f.Matches(key) {
			delete(s.entries, raw)
			removed++
		}
	}
	return removed
}

// Clear removes all stored tokens.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
	return nil
}

// snapshot returns a copy of the live entries. Used by the persistent layer
// when mirroring to disk.
func (s *MemoryStore) snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// sweepLocked drops expired entries, at most once per sweepInterval.
func (s *MemoryStore) sweepLocked() {
	now := time.Now()
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now

	swept := 0
	for k, entry := range s.entries {
		if entry.IsExpired() {
			delete(s.entries, k)
			swept++
		}
	}
	if swept > 0 {
		logger.Debugf("Swept %d expired token(s) from cache", swept)
	}
}

// evictOldestLocked removes the entry with the oldest CreatedAt.
func (s *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, entry := range s.entries {
		if oldestKey == "" || entry.CreatedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = entry.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
		logger.Debugf("Token cache full, evicted oldest entry %s", oldestKey)
	}
}
