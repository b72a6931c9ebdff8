// Package svmpages implements the reference hv.PagePool used by tests
// and cmd/mkcore: a single anonymous mmap carved into PageSize slots
// with a free list, the same technique the teacher's internal/hv/kvm
// package uses to back guest RAM with an mmap'd byte slice.
package svmpages

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tinyrange/svmcore/internal/hv"
)

type allocation struct {
	index int
	tag   hv.PageTag
}

// MmapPagePool is a fixed-capacity page pool backed by one anonymous
// mmap. It is safe for concurrent use by multiple PPs (spec.md §5
// requires the page pool to provide per-allocation atomicity).
type MmapPagePool struct {
	mu        sync.Mutex
	mem       []byte
	capacity  int
	free      []int
	allocated map[uintptr]allocation
}

// NewMmapPagePool reserves capacity pages of backing memory.
func NewMmapPagePool(capacity int) (*MmapPagePool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("svmpages: capacity must be positive")
	}

	mem, err := unix.Mmap(-1, 0, capacity*hv.PageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("svmpages: mmap pool: %w", err)
	}

	p := &MmapPagePool{
		mem:       mem,
		capacity:  capacity,
		allocated: make(map[uintptr]allocation),
	}
	for i := capacity - 1; i >= 0; i-- {
		p.free = append(p.free, i)
	}
	return p, nil
}

// Allocate implements hv.PagePool.
func (p *MmapPagePool) Allocate(tag hv.PageTag) (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return 0, hv.ErrPoolExhausted
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	off := idx * hv.PageSize
	if aligned := alignUp(uint64(off), hv.PageSize); aligned != uint64(off) {
		// Every slot boundary is a multiple of the page size by
		// construction; this would only trip if the free-list
		// bookkeeping above got corrupted.
		panic("svmpages: allocation offset is not page-aligned")
	}
	page := p.mem[off : off+hv.PageSize]
	clear(page)

	virt := uintptr(unsafe.Pointer(&page[0]))
	p.allocated[virt] = allocation{index: idx, tag: tag}
	return virt, nil
}

// Deallocate implements hv.PagePool.
func (p *MmapPagePool) Deallocate(virt uintptr, tag hv.PageTag) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.allocated[virt]
	if !ok {
		return fmt.Errorf("svmpages: deallocate 0x%x: %w", virt, hv.ErrUnmappedPage)
	}
	if a.tag != tag {
		return fmt.Errorf("svmpages: deallocate 0x%x: tag mismatch, got %s want %s", virt, tag, a.tag)
	}

	delete(p.allocated, virt)
	p.free = append(p.free, a.index)
	return nil
}

// VirtToPhys implements hv.PagePool.
//
// A real microkernel resolves this through the boot loader's identity
// map of kernel memory (out of scope here, spec.md §1); this reference
// pool instead reports the allocation's offset into its own backing
// mapping, which is stable and unique for the allocation's lifetime.
func (p *MmapPagePool) VirtToPhys(virt uintptr) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.allocated[virt]; !ok {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&p.mem[0]))
	return uint64(virt - base), true
}

// Close releases the pool's backing mapping.
func (p *MmapPagePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return unix.Munmap(p.mem)
}

var _ hv.PagePool = (*MmapPagePool)(nil)
