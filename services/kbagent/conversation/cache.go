// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"sync"

	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
)

// ContextCache is a per-Manager, in-process cache of recent conversation
// context, keyed by conversation id.
//
// # Description
//
// Each entry mirrors a suffix of the persisted message history as
// MessageViews ordered oldest to newest. Entries are populated lazily on the
// first context read, appended to on every message append for a conversation
// already cached (write-through), and evicted when a conversation is deleted.
//
// This is a single-instance optimization, not a distributed cache: entries
// reflect appends made through this process only, and across service
// instances caches are independent. Concurrent writers to the same
// conversation get last-write-wins on the entry; the persistent store is
// authoritative and never corrupted by that race. A cached context may at
// worst transiently miss a concurrent append.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Returned slices are copies.
type ContextCache struct {
	mu      sync.Mutex
	entries map[string][]datatypes.MessageView
}

// NewContextCache returns an empty cache.
func NewContextCache() *ContextCache {
	return &ContextCache{
		entries: make(map[string][]datatypes.MessageView),
	}
}

// Get returns a copy of the cached context for a conversation and whether an
// entry exists.
func (c *ContextCache) Get(conversationID string) ([]datatypes.MessageView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[conversationID]
	if !ok {
		return nil, false
	}
	out := make([]datatypes.MessageView, len(entry))
	copy(out, entry)
	return out, true
}

// Put replaces the entry for a conversation with the given views.
func (c *ContextCache) Put(conversationID string, views []datatypes.MessageView) {
	entry := make([]datatypes.MessageView, len(views))
	copy(entry, views)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[conversationID] = entry
}

// Append adds a view to an existing entry and reports whether one existed.
// A conversation with no cache hit yet is left uncached; the next context
// read populates it from the store.
func (c *ContextCache) Append(conversationID string, view datatypes.MessageView) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[conversationID]
	if !ok {
		return false
	}
	c.entries[conversationID] = append(entry, view)
	return true
}

// Evict removes the entry for a conversation, if any.
func (c *ContextCache) Evict(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, conversationID)
}

// Len returns the number of cached conversations.
func (c *ContextCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// tail returns the last n elements of views, or all of them when n is larger
// than the slice or not positive.
func tail(views []datatypes.MessageView, n int) []datatypes.MessageView {
	if n <= 0 || n >= len(views) {
		return views
	}
	return views[len(views)-n:]
}
