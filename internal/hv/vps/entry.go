// Package vps implements the Virtual Processor State subsystem:
// VmcbBacking, VpsEntry's lifecycle and register-access ABI, VpsPool,
// and the StateMarshal bulk converter (spec.md §4.1-§4.2, §4.5).
//
// The lifecycle machinery (guarded state transitions, rollback on
// partial allocation) follows the same shape as the teacher's
// virtualCPU/virtualMachine types in internal/hv/kvm — an id, owned
// hardware resources, and a mutex protecting transitions — generalized
// from "one VM's worth of KVM file descriptors" to "one VPS's worth of
// VMCB pages".
package vps

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tinyrange/svmcore/internal/debug"
	"github.com/tinyrange/svmcore/internal/hv"
	"github.com/tinyrange/svmcore/internal/hv/exitlog"
	"github.com/tinyrange/svmcore/internal/hv/ids"
	"github.com/tinyrange/svmcore/internal/hv/vmcb"
	"github.com/tinyrange/svmcore/internal/timeslice"
)

var (
	// ErrInvalidState is returned when an operation's lifecycle
	// precondition (Free/Allocated) is not met.
	ErrInvalidState = errors.New("vps: entry is not in the required lifecycle state")
	// ErrInvalidArgument covers sentinel IDs, out-of-range indices,
	// misaligned indices, and unknown register tags.
	ErrInvalidArgument = errors.New("vps: invalid argument")
)

// lifecycle is the explicit state enum spec.md §9 asks for in place of
// the source's self-reference ("m_next == this means allocated")
// sentinel.
type lifecycle int

const (
	stateUninitialized lifecycle = iota
	stateFree
	stateAllocated
)

var (
	tsHostTime  = timeslice.RegisterKind("vps_host_time", 0)
	tsGuestTime = timeslice.RegisterKind("vps_guest_time", timeslice.SliceFlagGuestTime)
)

// VpsEntry is one virtual-processor-state slot.
type VpsEntry struct {
	mu sync.Mutex

	id    ids.VPSID
	state lifecycle

	assignedVP ids.VPID
	backing    VmcbBacking

	pagePool   hv.PagePool
	intrinsics hv.Intrinsics
	exitLog    *exitlog.Reporter
	pp         ids.PPID

	rec *timeslice.Recorder

	// lastExitNripValid records whether the exit that most recently
	// returned from Run is one AMD-V documents as populating nRIP.
	// AdvanceIP refuses to read garbage when it is not (spec.md §9).
	lastExitNripValid bool
}

// New constructs an uninitialized entry belonging to ring ring pp,
// reporting through exitLog.
func New(pp ids.PPID, exitLog *exitlog.Reporter) *VpsEntry {
	return &VpsEntry{
		pp:         pp,
		exitLog:    exitLog,
		assignedVP: ids.InvalidVP,
		rec:        timeslice.NewRecorder(),
	}
}

// Initialize transitions Uninitialized -> Free. id must be non-
// sentinel. An invalid id leaves the entry Uninitialized; calling it on
// an entry that is not Uninitialized fails and leaves its state as is.
func (e *VpsEntry) Initialize(intrinsics hv.Intrinsics, pool hv.PagePool, id ids.VPSID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateUninitialized {
		return fmt.Errorf("vps: initialize: %w", ErrInvalidState)
	}
	if !id.Valid() {
		return fmt.Errorf("vps: initialize: %w", ErrInvalidArgument)
	}

	e.id = id
	e.intrinsics = intrinsics
	e.pagePool = pool
	e.assignedVP = ids.InvalidVP
	e.state = stateFree
	return nil
}

// Release transitions back to Uninitialized; exposed for symmetry with
// the lifecycle diagram in spec.md §3. Nothing in this package calls
// it, and it does not return an Allocated entry's pages to the pool.
func (e *VpsEntry) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = stateUninitialized
	e.assignedVP = ids.InvalidVP
	e.backing = VmcbBacking{}
}

// ID returns the entry's identity. Valid for the life of the entry.
func (e *VpsEntry) ID() ids.VPSID { return e.id }

// IsUninitialized reports whether the entry has never been
// initialized (or has been Released back to that state).
func (e *VpsEntry) IsUninitialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateUninitialized
}

// Allocate transitions Free -> Allocated, drawing a guest and a host
// VMCB page from the page pool. If any step fails, every page
// acquired earlier in this call is released before returning and the
// entry stays Free — the "scoped acquisition with guaranteed release"
// pattern spec.md §9 calls for in place of exceptions-and-finally.
func (e *VpsEntry) Allocate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateFree {
		return fmt.Errorf("vps: allocate: %w", ErrInvalidState)
	}

	var rollbacks []func()
	rollback := func() {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
	}

	guestVirt, err := e.pagePool.Allocate(hv.TagGuestVMCB)
	if err != nil {
		return fmt.Errorf("vps: allocate guest vmcb: %w", err)
	}
	rollbacks = append(rollbacks, func() { e.pagePool.Deallocate(guestVirt, hv.TagGuestVMCB) })

	guestPhys, ok := e.pagePool.VirtToPhys(guestVirt)
	if !ok {
		rollback()
		return fmt.Errorf("vps: allocate: %w", hv.ErrUnmappedPage)
	}

	hostVirt, err := e.pagePool.Allocate(hv.TagHostVMCB)
	if err != nil {
		rollback()
		return fmt.Errorf("vps: allocate host vmcb: %w", err)
	}
	rollbacks = append(rollbacks, func() { e.pagePool.Deallocate(hostVirt, hv.TagHostVMCB) })

	hostPhys, ok := e.pagePool.VirtToPhys(hostVirt)
	if !ok {
		rollback()
		return fmt.Errorf("vps: allocate: %w", hv.ErrUnmappedPage)
	}

	e.backing = VmcbBacking{
		GuestVirt: guestVirt,
		GuestPhys: guestPhys,
		HostVirt:  hostVirt,
		HostPhys:  hostPhys,
	}
	e.state = stateAllocated
	return nil
}

// Deallocate returns the VMCB pages to the pool and transitions to
// Free. A no-op on an already-Free entry.
func (e *VpsEntry) Deallocate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateFree {
		return nil
	}
	if e.state != stateAllocated {
		return fmt.Errorf("vps: deallocate: %w", ErrInvalidState)
	}

	var firstErr error
	if err := e.pagePool.Deallocate(e.backing.GuestVirt, hv.TagGuestVMCB); err != nil {
		firstErr = err
	}
	if err := e.pagePool.Deallocate(e.backing.HostVirt, hv.TagHostVMCB); err != nil && firstErr == nil {
		firstErr = err
	}

	e.backing = VmcbBacking{}
	e.assignedVP = ids.InvalidVP
	e.state = stateFree

	if firstErr != nil {
		return fmt.Errorf("vps: deallocate: %w", firstErr)
	}
	return nil
}

// AssignVP binds the entry to vpid. Requires Allocated state.
func (e *VpsEntry) AssignVP(vpid ids.VPID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateAllocated {
		return fmt.Errorf("vps: assign_vp: %w", ErrInvalidState)
	}
	if !vpid.Valid() {
		return fmt.Errorf("vps: assign_vp: %w", ErrInvalidArgument)
	}

	e.assignedVP = vpid
	return nil
}

// AssignedVP returns the currently bound VP, or ids.InvalidVP.
func (e *VpsEntry) AssignedVP() ids.VPID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assignedVP
}

func (e *VpsEntry) requireAllocated() error {
	if e.state != stateAllocated {
		return fmt.Errorf("vps: %w", ErrInvalidState)
	}
	return nil
}

// Read8 reads a byte from the guest VMCB at index.
func (e *VpsEntry) Read8(index int) (uint8, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return 0, err
	}
	v, err := e.backing.Guest().Read8(index)
	if err != nil {
		return 0, fmt.Errorf("vps: read8: %w", ErrInvalidArgument)
	}
	return v, nil
}

// Write8 writes a byte to the guest VMCB at index.
func (e *VpsEntry) Write8(index int, val uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return err
	}
	if err := e.backing.Guest().Write8(index, val); err != nil {
		return fmt.Errorf("vps: write8: %w", ErrInvalidArgument)
	}
	return nil
}

// Read16 reads a 16-bit word from the guest VMCB at index.
func (e *VpsEntry) Read16(index int) (uint16, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return 0, err
	}
	v, err := e.backing.Guest().Read16(index)
	if err != nil {
		return 0, fmt.Errorf("vps: read16: %w", ErrInvalidArgument)
	}
	return v, nil
}

// Write16 writes a 16-bit word to the guest VMCB at index.
func (e *VpsEntry) Write16(index int, val uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return err
	}
	if err := e.backing.Guest().Write16(index, val); err != nil {
		return fmt.Errorf("vps: write16: %w", ErrInvalidArgument)
	}
	return nil
}

// Read32 reads a 32-bit dword from the guest VMCB at index.
func (e *VpsEntry) Read32(index int) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return 0, err
	}
	v, err := e.backing.Guest().Read32(index)
	if err != nil {
		return 0, fmt.Errorf("vps: read32: %w", ErrInvalidArgument)
	}
	return v, nil
}

// Write32 writes a 32-bit dword to the guest VMCB at index.
func (e *VpsEntry) Write32(index int, val uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return err
	}
	if err := e.backing.Guest().Write32(index, val); err != nil {
		return fmt.Errorf("vps: write32: %w", ErrInvalidArgument)
	}
	return nil
}

// Read64 reads a 64-bit qword from the guest VMCB at index.
func (e *VpsEntry) Read64(index int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return 0, err
	}
	v, err := e.backing.Guest().Read64(index)
	if err != nil {
		return 0, fmt.Errorf("vps: read64: %w", ErrInvalidArgument)
	}
	return v, nil
}

// Write64 writes a 64-bit qword to the guest VMCB at index.
func (e *VpsEntry) Write64(index int, val uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return err
	}
	if err := e.backing.Guest().Write64(index, val); err != nil {
		return fmt.Errorf("vps: write64: %w", ErrInvalidArgument)
	}
	return nil
}

// ReadReg reads register reg symbolically, resolving through TLS or
// the guest VMCB depending on where the tag's field table says it
// lives.
func (e *VpsEntry) ReadReg(reg vmcb.Reg) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return 0, err
	}
	return e.readRegLocked(reg)
}

// WriteReg writes register reg symbolically.
func (e *VpsEntry) WriteReg(reg vmcb.Reg, val uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return err
	}
	return e.writeRegLocked(reg, val)
}

// AdvanceIP sets guest RIP to nRIP, used by extensions that decide to
// skip the faulting instruction. Only valid after a VMExit that AMD-V
// documents as populating nRIP (spec.md §9); calling it otherwise
// fails rather than silently reading an undefined field.
func (e *VpsEntry) AdvanceIP() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return err
	}
	if !e.lastExitNripValid {
		return fmt.Errorf("vps: advance_ip: nrip not valid for the last exit: %w", ErrInvalidState)
	}

	nrip, err := e.backing.Guest().NRIP()
	if err != nil {
		return fmt.Errorf("vps: advance_ip: %w", err)
	}
	if err := e.writeRegLocked(vmcb.RegRip, nrip); err != nil {
		return fmt.Errorf("vps: advance_ip: %w", err)
	}
	return nil
}

// Clear forces a full VMCB reload on the next VMRUN by zeroing the
// AMD-V clean bits. Hardware-specific; does not alter architectural
// state.
func (e *VpsEntry) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return err
	}
	e.backing.Guest().Clear()
	return nil
}

// nripValidExitReasons lists the AMD-V VMExit codes documented to
// populate nRIP (decode-assist exits: IOIO, plus a handful of others).
// Extending this list is a matter of adding the documented exit code;
// it is deliberately not exhaustive of every AMD-V exit reason.
var nripValidExitReasons = map[uint64]bool{
	0x07b: true, // VMEXIT_IOIO
	0x07c: true, // VMEXIT_MSR
	0x065: true, // VMEXIT_CR0_SEL_WRITE
}

// Run issues the world-switch via Intrinsics.Vmrun and does not
// return until the guest VM-exits. 0xFFFFFFFFFFFFFFFF is a hardware
// entry failure: the entry's state is dumped to the debug channel and
// an error is returned without touching the VPS's Allocated state —
// the caller decides whether to zombify it. Any other value is the
// architectural exit reason, appended to the reporter and returned.
func (e *VpsEntry) Run() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return 0, err
	}
	backing := e.backing
	id := e.id
	preRip, _ := e.readRegLocked(vmcb.RegRip)
	preRsp, _ := e.readRegLocked(vmcb.RegRsp)
	preCr3, _ := e.readRegLocked(vmcb.RegCr3)

	e.rec.Record(tsHostTime)
	result := e.intrinsics.Vmrun(backing.GuestVirt, backing.GuestPhys, backing.HostVirt, backing.HostPhys)
	e.rec.Record(tsGuestTime)

	if result == 0xFFFFFFFFFFFFFFFF {
		e.dumpEntryFailureLocked(preRip, preRsp, preCr3)
		return 0, fmt.Errorf("vps: run: %w", hv.ErrHardwareEntryFailure)
	}

	e.lastExitNripValid = nripValidExitReasons[result]
	e.appendExitLocked(id, result)
	return result, nil
}

// appendExitLocked builds an exit record and appends it to the reporter.
// Callers must already hold e.mu.
func (e *VpsEntry) appendExitLocked(id ids.VPSID, exitReason uint64) {
	rsp, _ := e.readRegLocked(vmcb.RegRsp)
	rip, _ := e.readRegLocked(vmcb.RegRip)

	var gprs [15]uint64
	for i, reg := range []vmcb.Reg{
		vmcb.RegRax, vmcb.RegRbx, vmcb.RegRcx, vmcb.RegRdx, vmcb.RegRbp,
		vmcb.RegRsi, vmcb.RegRdi, vmcb.RegR8, vmcb.RegR9, vmcb.RegR10,
		vmcb.RegR11, vmcb.RegR12, vmcb.RegR13, vmcb.RegR14, vmcb.RegR15,
	} {
		gprs[i], _ = e.readRegLocked(reg)
	}

	e.exitLog.Add(e.pp, exitlog.Record{
		ExitReason: exitReason,
		Gprs:       gprs,
		Rsp:        rsp,
		Rip:        rip,
		ActiveVPS:  id,
	})
}

// dumpEntryFailureLocked writes the rip/rsp/cr3 values Run snapshotted
// before issuing VMRUN (spec.md §9's open question: state after a
// failed VMRUN may itself be undefined). Using the pre-run snapshot
// means the dump always reflects real state. Callers must already hold
// e.mu.
func (e *VpsEntry) dumpEntryFailureLocked(rip, rsp, cr3 uint64) {
	d := debug.WithSource("vps.run")
	d.Writef("VMRUN entry failure: vps=%d rip=0x%x rsp=0x%x cr3=0x%x", e.id, rip, rsp, cr3)
}
