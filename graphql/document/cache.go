/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package document

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/willf/bitset"
)

// Cache caches parsed documents by query text to save parsing efforts on queries that are issued
// on every render.
type Cache interface {
	// Get looks up document for the given query.
	Get(query string) (doc *Document, ok bool)

	// Add adds a document that associated with the query to the cache.
	Add(query string, doc *Document)
}

// ParseCached looks up the query in the cache and parses it on a miss. A nil cache parses every
// time.
func ParseCached(cache Cache, query string) (*Document, error) {
	if cache == nil {
		return Parse(query)
	}
	if doc, ok := cache.Get(query); ok {
		return doc, nil
	}
	doc, err := Parse(query)
	if err != nil {
		return nil, err
	}
	cache.Add(query, doc)
	return doc, nil
}

type lruEntry struct {
	query string
	doc   *Document

	// Next and previous pointers in the doubly-linked list of elements. The list is a ring such that
	// &l.root is both the next element of the last list element and the previous element of the
	// first list element.
	next, prev *lruEntry
}

const sizeOfLRUEntry = unsafe.Sizeof(lruEntry{})

// lruEntryAllocator hands out entries from a preallocated array. Allocated entries have their
// corresponding bits set.
type lruEntryAllocator struct {
	entries   []lruEntry
	allocated *bitset.BitSet
}

func newLRUEntryAllocator(maxEntries uint) lruEntryAllocator {
	return lruEntryAllocator{
		entries:   make([]lruEntry, maxEntries),
		allocated: bitset.New(maxEntries),
	}
}

// New allocates an entry to store given query and document. It panics if there's no any entry
// available to allocate.
func (allocator *lruEntryAllocator) New(query string, doc *Document) *lruEntry {
	i, found := allocator.allocated.NextClear(0)
	if !found || i >= uint(len(allocator.entries)) {
		panic("LRUCache: no available entry to return")
	}
	allocator.allocated.Set(i)

	entry := &allocator.entries[i]
	entry.query = query
	entry.doc = doc
	return entry
}

func (allocator *lruEntryAllocator) indexOf(entry *lruEntry) uint {
	entryAddr := uintptr(unsafe.Pointer(entry))
	firstEntryAddr := uintptr(unsafe.Pointer(&allocator.entries[0]))
	return uint((entryAddr - firstEntryAddr) / sizeOfLRUEntry)
}

// Free marks the entry to be free for later reuse.
func (allocator *lruEntryAllocator) Free(entry *lruEntry) {
	entry.query = ""
	entry.doc = nil
	allocator.allocated.Clear(allocator.indexOf(entry))
}

// lruEvictList is a doubly linked list that maintains eviction order for LRUCache. Its
// implementation mirrors container/list and only provides the operations used by LRUCache.
type lruEvictList struct {
	allocator lruEntryAllocator

	// sentinel list element, only &root, root.prev, and root.next are used
	root lruEntry

	// current list length excluding (this) sentinel element
	len uint
}

func newLRUEvictList(maxEntries uint) *lruEvictList {
	l := &lruEvictList{
		allocator: newLRUEntryAllocator(maxEntries),
	}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

// Len returns the number of elements of list l.
func (l *lruEvictList) Len() uint { return l.len }

// Back returns the last element of list l or nil if the list is empty.
func (l *lruEvictList) Back() *lruEntry {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

// PushFront inserts a new entry with given values at the front of list l and returns it.
func (l *lruEvictList) PushFront(query string, doc *Document) *lruEntry {
	e := l.allocator.New(query, doc)
	at := &l.root
	n := at.next
	at.next = e
	e.prev = at
	e.next = n
	n.prev = e
	l.len++
	return e
}

// Remove removes e from l and returns it to the allocator.
func (l *lruEvictList) Remove(e *lruEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil
	e.prev = nil
	l.len--
	l.allocator.Free(e)
}

// MoveToFront moves element e to the front of list l.
func (l *lruEvictList) MoveToFront(e *lruEntry) {
	at := &l.root
	if at.next == e {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev

	n := at.next
	at.next = e
	e.prev = at
	e.next = n
	n.prev = e
}

// LRUCache is a thread-safe LRU cache that implements Cache. Most part of implementation directly
// derived from groupcache/lru with a mutex added to make it safe for concurrent access.
type LRUCache struct {
	// The maximum number of cached documents before an item is evicted. It must be greater than 0.
	maxEntries uint

	// m guards cache and evictList.
	m         sync.Mutex
	cache     map[string]*lruEntry
	evictList *lruEvictList
}

var _ Cache = (*LRUCache)(nil)

var errZeroCacheSize = errors.New("LRUCache: must specified a non-zero cache size")

// NewLRUCache creates a new LRUCache with given size.
func NewLRUCache(maxEntries uint) (*LRUCache, error) {
	if maxEntries == 0 {
		return nil, errZeroCacheSize
	}

	return &LRUCache{
		maxEntries: maxEntries,
		cache:      make(map[string]*lruEntry, maxEntries),
		evictList:  newLRUEvictList(maxEntries),
	}, nil
}

// Len returns the number of cached documents.
func (c *LRUCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return int(c.evictList.Len())
}

// Get implements Cache.
func (c *LRUCache) Get(query string) (doc *Document, ok bool) {
	c.m.Lock()
	if entry, hit := c.cache[query]; hit {
		c.evictList.MoveToFront(entry)
		doc = entry.doc
		ok = true
	}
	c.m.Unlock()
	return
}

// Add implements Cache.
func (c *LRUCache) Add(query string, doc *Document) {
	c.m.Lock()
	defer c.m.Unlock()

	if e, ok := c.cache[query]; ok {
		c.evictList.MoveToFront(e)
		e.doc = doc
		return
	}

	if c.evictList.Len() >= c.maxEntries {
		c.removeOldest()
	}
	c.cache[query] = c.evictList.PushFront(query, doc)
}

// removeOldest removes the oldest entry from the cache. c.m must be held.
func (c *LRUCache) removeOldest() {
	if e := c.evictList.Back(); e != nil {
		delete(c.cache, e.query)
		c.evictList.Remove(e)
	}
}

// NopCache does nothing.
type NopCache struct{}

var _ Cache = NopCache{}

// Get implements Cache.
func (NopCache) Get(query string) (doc *Document, ok bool) {
	return
}

// Add implements Cache.
func (NopCache) Add(query string, doc *Document) {}
