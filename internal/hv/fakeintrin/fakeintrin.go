// Package fakeintrin is a software double for hv.Intrinsics, letting
// the vps and dispatch packages exercise allocation, register access,
// and VMRUN failure paths in ordinary tests without real privileged
// instructions. Modeled on the teacher's use of an in-memory test
// double for its VirtualCPU interface in internal/hv/kvm's tests.
package fakeintrin

import (
	"sync"

	"github.com/tinyrange/svmcore/internal/hv"
)

// VmrunFunc lets a test script the result of the next Vmrun call. The
// default, if unset, returns a fixed synthetic exit reason.
type VmrunFunc func(guestVirt uintptr, guestPhys uint64, hostVirt uintptr, hostPhys uint64) uint64

// Intrinsics is a single PP's worth of fake TLS storage plus a
// pluggable Vmrun result.
type Intrinsics struct {
	mu  sync.Mutex
	tls map[uint64]uint64

	// VmrunHook, if set, is called for every Vmrun invocation. Otherwise
	// Vmrun returns DefaultExitReason.
	VmrunHook VmrunFunc

	// DefaultExitReason is returned by Vmrun when VmrunHook is nil.
	DefaultExitReason uint64
}

// New returns a fake with zeroed TLS and a default exit reason of 0x400
// (an arbitrary synthetic "NPF" code distinct from any reserved value).
func New() *Intrinsics {
	return &Intrinsics{
		tls:               make(map[uint64]uint64),
		DefaultExitReason: 0x400,
	}
}

func (f *Intrinsics) TLSReg(offset uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tls[offset]
}

func (f *Intrinsics) SetTLSReg(offset uint64, value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tls[offset] = value
}

func (f *Intrinsics) Vmrun(guestVirt uintptr, guestPhys uint64, hostVirt uintptr, hostPhys uint64) uint64 {
	if f.VmrunHook != nil {
		return f.VmrunHook(guestVirt, guestPhys, hostVirt, hostPhys)
	}
	return f.DefaultExitReason
}

var _ hv.Intrinsics = (*Intrinsics)(nil)
