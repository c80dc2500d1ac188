// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import "sync"

type etagEntry struct {
	etag string
	body []byte
}

// ETagCache stores ETag and response body pairs for conditional GET
// requests. When a GET response carries an ETag header, the body is
// cached; subsequent GETs to the same URL send If-None-Match, and a
// 304 Not Modified is served from the cache without consuming quota.
//
// The cache has no eviction policy. It lives for the duration of one
// client and is bounded by the number of distinct URLs queried, which
// for this tool is the number of vendored packages plus a handful of
// forge endpoints.
type ETagCache struct {
	mu      sync.Mutex
	entries map[string]etagEntry
}

// NewETagCache returns an empty cache.
func NewETagCache() *ETagCache {
	return &ETagCache{entries: make(map[string]etagEntry)}
}

// Get returns the cached ETag for a URL, or "" when not cached.
func (cache *ETagCache) Get(url string) string {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return cache.entries[url].etag
}

// Body returns the cached response body for a URL, or nil.
func (cache *ETagCache) Body(url string) []byte {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return cache.entries[url].body
}

// Put stores an ETag and response body for a URL. An empty etag is
// ignored.
func (cache *ETagCache) Put(url, etag string, body []byte) {
	if etag == "" {
		return
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries[url] = etagEntry{etag: etag, body: body}
}
