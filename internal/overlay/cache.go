// Package overlay implements the write-back store buffer of the disk staging
// layer: an in-memory view of piece data that a network goroutine has
// produced but a disk worker has not yet flushed. Readers consult the cache
// first and fall through to the real file on a miss.
package overlay

import (
	"sync"

	"github.com/google/uuid"
)

// Location identifies a unique block within a unique piece within a unique
// torrent. It is a comparable value type; Go map keys give equality and
// hashing over all three fields.
type Location struct {
	Torrent uuid.UUID
	Piece   int
	Offset  int
}

// Cache maps locations to non-owning buffer views under a single lock.
// The cache never owns the bytes it stores: the buffer.Handle that produced
// an entry stays the owner, and callers must erase the entry before the
// owner releases the buffer back to its pool.
type Cache struct {
	mu      sync.Mutex
	entries map[Location][]byte
}

// NewCache creates an empty overlay cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[Location][]byte),
	}
}

// Insert records that loc's current data lives at buf. An existing mapping
// for the same location is overwritten without being freed; the previous
// buffer is already owned elsewhere and remains the caller's responsibility.
func (c *Cache) Insert(loc Location, buf []byte) {
	c.mu.Lock()
	c.entries[loc] = buf
	c.mu.Unlock()
}

// Erase removes the mapping if present. Erasing an absent location is a
// no-op; callers are expected to only erase what they inserted.
func (c *Cache) Erase(loc Location) {
	c.mu.Lock()
	delete(c.entries, loc)
	c.mu.Unlock()
}

// EraseIf removes the mapping only if it still refers to buf, identified by
// backing array and length. A flusher overtaken by a newer insert at the same
// location must leave the newer entry in place; checking identity under the
// lock is what keeps the erase safe against that race.
func (c *Cache) EraseIf(loc Location, buf []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.entries[loc]
	if !ok || len(stored) != len(buf) || len(stored) == 0 || &stored[0] != &buf[0] {
		return false
	}

	delete(c.entries, loc)

	return true
}

// Get invokes consumer with the staged buffer while holding the internal
// lock and reports whether a mapping existed. The buffer is only guaranteed
// valid inside the callback (another goroutine could erase and free it the
// moment the lock drops), so the read has to happen inside the critical
// section. The consumer must not block and must not re-enter the cache.
func (c *Cache) Get(loc Location, consumer func(buf []byte)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, ok := c.entries[loc]
	if !ok {
		return false
	}

	consumer(buf)

	return true
}

// GetPair is Get for a read spanning two locations, typically a block
// boundary where the first half is staged and the second half may not be.
// When at least one mapping exists, consumer runs under the lock with nil
// for whichever side is absent. The two booleans report which sides hit.
func (c *Cache) GetPair(a, b Location, consumer func(bufA, bufB []byte)) (foundA, foundB bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bufA, okA := c.entries[a]
	bufB, okB := c.entries[b]

	if okA || okB {
		consumer(bufA, bufB)
	}

	return okA, okB
}

// Size returns the current entry count.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// DropTorrent removes every entry belonging to the given torrent and returns
// how many were dropped. The entries are non-owning views, so nothing is
// freed here; the buffers still belong to whatever queued their flush. Used
// by storage teardown, where the normal flush-then-erase pipeline is skipped.
func (c *Cache) DropTorrent(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0

	for loc := range c.entries {
		if loc.Torrent == id {
			delete(c.entries, loc)
			dropped++
		}
	}

	return dropped
}
