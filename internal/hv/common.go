// Package hv defines the collaborator interfaces the VPS subsystem is
// built against: the physical page allocator and the privileged
// instruction intrinsics. Both are implemented elsewhere (the real
// instances require a boot-time handshake with the loader that is out
// of scope here); this package only fixes the contract.
package hv

import (
	"errors"
)

var (
	// ErrPoolExhausted is returned by PagePool.Allocate when no pages remain.
	ErrPoolExhausted = errors.New("hv: page pool exhausted")
	// ErrUnmappedPage is returned when a virtual address has no known
	// physical mapping.
	ErrUnmappedPage = errors.New("hv: page not mapped")
	// ErrHardwareEntryFailure is returned by Intrinsics.Vmrun callers
	// when the world-switch reports a hardware entry failure (~0).
	ErrHardwareEntryFailure = errors.New("hv: VMRUN entry failure")
)

// CpuArchitecture names the guest architecture a backend targets. The
// VPS subsystem itself is AMD-SVM flavored (spec.md's scope note); the
// tag exists so callers that enumerate backends can report it.
type CpuArchitecture string

const ArchitectureAMD64SVM CpuArchitecture = "amd64-svm"

// PageTag identifies the purpose of a page-pool allocation, mirroring
// the GUEST_VMCB / HOST_VMCB tags VpsEntry.allocate requests.
type PageTag string

const (
	TagGuestVMCB PageTag = "guest_vmcb"
	TagHostVMCB  PageTag = "host_vmcb"
)

const PageSize = 4096

// PagePool is the opaque physical-page allocator. Allocations are
// page-granular (PageSize) and page-aligned. The boot-time handshake
// that seeds the pool's backing memory is an external collaborator,
// out of scope for this package.
type PagePool interface {
	// Allocate returns a page-aligned virtual address usable as a
	// microkernel-side pointer to a zeroed page, tagged for
	// accounting/debugging.
	Allocate(tag PageTag) (uintptr, error)
	// Deallocate returns a page previously returned by Allocate.
	Deallocate(virt uintptr, tag PageTag) error
	// VirtToPhys resolves a virtual address returned by Allocate to
	// the physical address VMRUN requires as an operand.
	VirtToPhys(virt uintptr) (uint64, bool)
}

// Intrinsics is the opaque privileged-instruction layer: thread-local
// storage register access and the AMD-V world-switch itself. A real
// implementation issues these as actual privileged instructions; tests
// use a software double.
type Intrinsics interface {
	// TLSReg reads a 64-bit slot from the calling PP's TLS page at the
	// given byte offset (see spec.md §6 for the offset table).
	TLSReg(offset uint64) uint64
	// SetTLSReg writes a 64-bit slot in the calling PP's TLS page.
	SetTLSReg(offset uint64, value uint64)
	// Vmrun enters the guest described by the given guest/host VMCB
	// virtual+physical address pairs and does not return until the
	// guest VM-exits. The result is either the architectural exit
	// reason or 0xFFFFFFFFFFFFFFFF on hardware entry failure.
	Vmrun(guestVirt uintptr, guestPhys uint64, hostVirt uintptr, hostPhys uint64) uint64
}
