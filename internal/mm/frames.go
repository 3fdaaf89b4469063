// Package mm provides the physical-frame allocator and the
// address-space primitive the core consumes. Both are simulator-grade:
// frames come from a fixed in-process arena, address spaces are
// opaque page-directory identifiers.
package mm

import (
	"fmt"
	"sync"
)

// PageSize is the frame granularity. Kernel stacks are one page.
const PageSize = 4096

// DefaultArenaPages is the default number of allocatable frames.
const DefaultArenaPages = 1024

// FrameAllocator hands out fixed-size pages from a contiguous arena.
// A free list of page indices keeps allocation O(1); the arena itself
// is never grown.
type FrameAllocator struct {
	mu    sync.Mutex
	arena []byte
	free  []uint32
}

// NewFrameAllocator creates an allocator with the given number of
// pages; pages <= 0 selects DefaultArenaPages.
func NewFrameAllocator(pages int) *FrameAllocator {
	if pages <= 0 {
		pages = DefaultArenaPages
	}
	a := &FrameAllocator{
		arena: make([]byte, pages*PageSize),
		free:  make([]uint32, 0, pages),
	}
	for i := pages - 1; i >= 0; i-- {
		a.free = append(a.free, uint32(i))
	}
	return a
}

// AllocPage returns a zeroed page and its frame number. It fails when
// the arena is exhausted.
func (a *FrameAllocator) AllocPage() ([]byte, uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.free) == 0 {
		return nil, 0, fmt.Errorf("frame allocator: out of pages")
	}
	pfn := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	page := a.arena[pfn*PageSize : (pfn+1)*PageSize : (pfn+1)*PageSize]
	for i := range page {
		page[i] = 0
	}
	return page, pfn, nil
}

// FreePage returns a frame to the allocator. Double frees are a caller
// bug and are not detected.
func (a *FrameAllocator) FreePage(pfn uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(pfn)*PageSize < len(a.arena) {
		a.free = append(a.free, pfn)
	}
}

// FreePages reports how many frames remain allocatable.
func (a *FrameAllocator) FreePages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}
