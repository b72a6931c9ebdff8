package vps

import (
	"unsafe"

	"github.com/tinyrange/svmcore/internal/hv/vmcb"
)

// VmcbBacking owns the two page-sized hardware state blocks a VPS
// needs: the guest VMCB the extension manipulates and the host VMCB
// AMD-V uses to save host state across VMRUN/VMEXIT. Either both
// blocks (and both physical addresses) are valid, or all four are the
// zero value — spec.md §3's invariant.
type VmcbBacking struct {
	GuestVirt uintptr
	GuestPhys uint64
	HostVirt  uintptr
	HostPhys  uint64
}

// Valid reports whether the backing currently owns both blocks.
func (b VmcbBacking) Valid() bool {
	return b.GuestVirt != 0 && b.HostVirt != 0
}

// Guest returns the field-accessible view of the guest VMCB. The
// cast is safe because vmcb.Vmcb is defined as exactly one page of
// bytes and GuestVirt was carved out of page-granular pool memory.
func (b VmcbBacking) Guest() *vmcb.Vmcb {
	return (*vmcb.Vmcb)(unsafe.Pointer(b.GuestVirt))
}
