package vps

import (
	"fmt"
	"sync"

	"github.com/tinyrange/svmcore/internal/hv"
	"github.com/tinyrange/svmcore/internal/hv/exitlog"
	"github.com/tinyrange/svmcore/internal/hv/ids"
)

// Pool is a fixed-capacity table of VpsEntry slots, indexed by VPSID.
// Entries are reused in most-recently-freed-first order (spec.md
// §4.2), which keeps hot entries resident rather than round-robining
// across the whole table.
type Pool struct {
	mu      sync.Mutex
	entries []*VpsEntry
	free    []ids.VPSID // stack, most-recently-freed on top

	pagePool hv.PagePool
	exitLog  *exitlog.Reporter
	pp       ids.PPID
}

// NewPool builds a pool of capacity slots, all Uninitialized.
func NewPool(capacity int, pagePool hv.PagePool, exitLog *exitlog.Reporter, pp ids.PPID) *Pool {
	p := &Pool{
		entries:  make([]*VpsEntry, capacity),
		pagePool: pagePool,
		exitLog:  exitLog,
		pp:       pp,
	}
	for i := 0; i < capacity; i++ {
		p.entries[i] = New(pp, exitLog)
	}
	return p
}

// Capacity returns the fixed slot count.
func (p *Pool) Capacity() int { return len(p.entries) }

// Allocate claims a free VPSID, initializes it, and allocates its
// VMCB backing in one step. The newly allocated entry's ID and a
// lookup handle are both returned.
func (p *Pool) Allocate(intrinsics hv.Intrinsics) (ids.VPSID, *VpsEntry, error) {
	p.mu.Lock()

	var id ids.VPSID
	var entry *VpsEntry

	if len(p.free) > 0 {
		id = p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		entry = p.entries[id]
	} else {
		id = ids.InvalidVPS
		for i, e := range p.entries {
			if e.IsUninitialized() {
				id = ids.VPSID(i)
				entry = e
				break
			}
		}
		if !id.Valid() {
			p.mu.Unlock()
			return ids.InvalidVPS, nil, fmt.Errorf("vps: pool allocate: %w", hv.ErrPoolExhausted)
		}
	}
	p.mu.Unlock()

	if entry.IsUninitialized() {
		if err := entry.Initialize(intrinsics, p.pagePool, id); err != nil {
			return ids.InvalidVPS, nil, err
		}
	}
	if err := entry.Allocate(); err != nil {
		return ids.InvalidVPS, nil, err
	}
	return id, entry, nil
}

// Deallocate releases id's VMCB backing and returns it to the free
// stack, most-recently-freed first.
func (p *Pool) Deallocate(id ids.VPSID) error {
	entry, err := p.Entry(id)
	if err != nil {
		return err
	}
	if err := entry.Deallocate(); err != nil {
		return err
	}

	p.mu.Lock()
	p.free = append(p.free, id)
	p.mu.Unlock()
	return nil
}

// Entry returns the entry bound to id, or an error if id is out of
// range.
func (p *Pool) Entry(id ids.VPSID) (*VpsEntry, error) {
	if !id.Valid() || int(id) >= len(p.entries) {
		return nil, fmt.Errorf("vps: pool entry: %w", ErrInvalidArgument)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[id], nil
}
