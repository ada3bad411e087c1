// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import (
	"math/bits"
	"sync/atomic"
)

// listCacheMaxCapacity caps the largest spine capacity BufferListCache will
// hold onto; anything bigger is dropped on Store rather than retained.
const listCacheMaxCapacity = 4096

// BufferListCache recycles stream spine slices keyed by capacity slot, slot
// i sized roughly 2^i, so a stream's spine allocation can be handed back on
// Close and reused by the next stream instead of reallocated (C7).
//
// The source models this as a thread-local cache; Go has no goroutine-local
// storage, so this is a single process-wide instance with one atomic slot per
// capacity bucket instead — still lock-free (Store is one CAS; Take is one
// swap per slot it visits), just shared across goroutines rather than pinned
// to one OS thread. See DESIGN.md for the full reasoning.
type BufferListCache struct {
	_ noCopy
	slots []atomic.Pointer[spine]
}

// NewBufferListCache constructs an empty cache with slots up to
// listCacheMaxCapacity.
func NewBufferListCache() *BufferListCache {
	n := bits.Len(uint(listCacheMaxCapacity-1)) + 1
	return &BufferListCache{slots: make([]atomic.Pointer[spine], n)}
}

// slotForCapacity returns the smallest i such that 2^i >= capacityEntries,
// clamped to the cache's slot range.
func slotForCapacity(capacityEntries int) int {
	if capacityEntries < 1 {
		capacityEntries = 1
	}
	if capacityEntries > listCacheMaxCapacity {
		capacityEntries = listCacheMaxCapacity
	}
	return bits.Len(uint(capacityEntries - 1))
}

// Take returns a reusable spine with capacity at least desiredCapacity
// entries, walking slots from the best fit upward and returning the first
// non-empty one found; if every candidate slot is empty, a fresh spine sized
// to the best-fit slot's capacity is allocated.
func (c *BufferListCache) Take(desiredCapacity int) *spine {
	if desiredCapacity > listCacheMaxCapacity {
		s := make(spine, 0, desiredCapacity)
		return &s
	}
	best := slotForCapacity(desiredCapacity)
	for i := best; i < len(c.slots); i++ {
		if sp := c.slots[i].Swap(nil); sp != nil {
			*sp = (*sp)[:0]
			return sp
		}
	}
	s := make(spine, 0, 1<<uint(best))
	return &s
}

// Store clears list and places it into the highest slot i with
// 2^i <= cap(list), so every spine in slot i holds at least 2^i entries. A
// list larger than listCacheMaxCapacity, or whose slot is already occupied,
// is dropped.
func (c *BufferListCache) Store(list *spine) {
	if list == nil {
		return
	}
	*list = (*list)[:0]
	capacity := cap(*list)
	if capacity < 1 || capacity > listCacheMaxCapacity {
		return
	}
	slot := bits.Len(uint(capacity)) - 1
	c.slots[slot].CompareAndSwap(nil, list)
}

var globalListCache = NewBufferListCache()

// ListCache returns the process-wide BufferListCache.
func ListCache() *BufferListCache {
	return globalListCache
}
