package dispatch

import (
	"sync"

	"github.com/tinyrange/svmcore/internal/debug"
	"github.com/tinyrange/svmcore/internal/hv"
	"github.com/tinyrange/svmcore/internal/hv/ids"
	"github.com/tinyrange/svmcore/internal/hv/vmcb"
	"github.com/tinyrange/svmcore/internal/hv/vps"
)

// Handle is the token returned by OpenHandle and required on every
// subsequent syscall from the same extension (spec.md §4.3 step 3).
type Handle uint64

// Args is the up-to-four-register argument vector a syscall carries
// alongside its opcode word.
type Args [4]uint64

// Dispatcher is SyscallDispatch: it decodes opcode words, runs the
// six-step validation contract, and routes VPS-family operations to a
// vps.Pool. Only the VPS family is wired to a concrete subsystem here;
// the others are recognized by the decoder but have no backing
// implementation in this core (spec.md §1 scopes CONTROL/DEBUG/
// CALLBACK/VM/VP/INTRINSIC/MEM out). Within the VPS family,
// init_as_root and promote are also left unwired — see dispatchVPS.
type Dispatcher struct {
	mu         sync.Mutex
	pool       *vps.Pool
	intrinsics hv.Intrinsics
	handles    map[ids.ExtID]Handle
	perms      map[ids.ExtID]map[Family]bool

	nextHandle uint64
}

// New builds a dispatcher routing VPS-family syscalls to pool. Newly
// created VPS entries are initialized against intrinsics, the calling
// PP's privileged-instruction collaborator.
func New(pool *vps.Pool, intrinsics hv.Intrinsics) *Dispatcher {
	return &Dispatcher{
		pool:       pool,
		intrinsics: intrinsics,
		handles:    make(map[ids.ExtID]Handle),
		perms:      make(map[ids.ExtID]map[Family]bool),
		nextHandle: 1,
	}
}

// Grant authorizes ext to invoke syscalls in family. Permission
// defaults to denied (spec.md §4.3 step 4); the loader/registration
// path is expected to call Grant once per extension at load time.
func (d *Dispatcher) Grant(ext ids.ExtID, family Family) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.perms[ext]
	if !ok {
		m = make(map[Family]bool)
		d.perms[ext] = m
	}
	m[family] = true
}

// OpenHandle implements the version handshake: version must have
// BfSpecID1Mask set, or the call fails closed.
func (d *Dispatcher) OpenHandle(ext ids.ExtID, version uint16) (Handle, Status) {
	if version&BfSpecID1Mask == 0 {
		return 0, Fail(ClassUnsupported, 0)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := Handle(d.nextHandle)
	d.nextHandle++
	d.handles[ext] = h
	return h, Success
}

// Dispatch runs the full six-step contract for one syscall and, for
// recognized VPS-family operations, performs it against the pool.
func (d *Dispatcher) Dispatch(ext ids.ExtID, word uint64, handle Handle, args Args) (uint64, Status) {
	op := Decode(word)

	// Step 1: signature.
	if uint64(op.Signature) != Signature {
		return 0, Fail(ClassUnsupported, 0)
	}
	// Step 2: flags reserved, must be zero.
	if op.Flags != 0 {
		return 0, Fail(InvalidParamsClass(0), 0)
	}
	// Step 3: handle.
	d.mu.Lock()
	want, opened := d.handles[ext]
	d.mu.Unlock()
	if !opened || handle != want {
		return 0, Fail(ClassInvalidHandle, 0)
	}
	// Step 4: permission.
	d.mu.Lock()
	allowed := d.perms[ext][op.Family]
	d.mu.Unlock()
	if !allowed {
		return 0, Fail(ClassInvalidPermExt, uint16(op.Family))
	}

	if op.Family != FamilyVPS {
		return 0, Fail(ClassUnsupported, uint16(op.Family))
	}

	return d.dispatchVPS(op.Index, args)
}

func argVPSID(args Args, n int) (ids.VPSID, Status, bool) {
	id := ids.VPSID(args[n])
	if !id.Valid() {
		return 0, Fail(InvalidParamsClass(n), 0), false
	}
	return id, Success, true
}

func (d *Dispatcher) dispatchVPS(index Index, args Args) (uint64, Status) {
	switch index {
	case VpsCreate:
		return d.vpsCreate()
	case VpsDestroy:
		return d.vpsDestroy(args)
	case VpsRead8, VpsRead16, VpsRead32, VpsRead64:
		return d.vpsRead(index, args)
	case VpsWrite8, VpsWrite16, VpsWrite32, VpsWrite64:
		return d.vpsWrite(index, args)
	case VpsReadReg:
		return d.vpsReadReg(args)
	case VpsWriteReg:
		return d.vpsWriteReg(args)
	case VpsRun:
		return d.vpsRun(args)
	case VpsRunCurrent:
		return d.vpsRunCurrent()
	case VpsAdvanceIP:
		return d.vpsAdvanceIP(args)
	case VpsAdvanceIPAndRunCurrent:
		return d.vpsAdvanceIPAndRunCurrent()
	case VpsClear:
		return d.vpsClear(args)
	case VpsInitAsRoot, VpsPromote:
		// Both require state this core has no source for: init_as_root
		// needs the loader-provided root VP state for a PPID (the boot
		// handshake spec.md §1 scopes out), and promote performs a
		// non-returning host-control transfer that replaces the calling
		// PP's execution state outright — a hardware operation with no
		// software fallback, not a gap in the dispatch table.
		return 0, Fail(ClassUnsupported, uint16(index))
	default:
		return 0, Fail(ClassUnsupported, uint16(index))
	}
}

// activeEntry resolves the VPS named by the calling extension's
// TLSActiveVPS slot, for the run_current family of operations.
func (d *Dispatcher) activeEntry() (*vps.VpsEntry, Status, bool) {
	id := ids.VPSID(d.intrinsics.TLSReg(TLSActiveVPS))
	if !id.Valid() {
		return nil, Fail(ClassInvalidState, 0), false
	}
	entry, err := d.pool.Entry(id)
	if err != nil {
		return nil, Fail(ClassInvalidHandle, 0), false
	}
	return entry, Success, true
}

func (d *Dispatcher) vpsCreate() (uint64, Status) {
	id, _, err := d.pool.Allocate(d.intrinsics)
	if err != nil {
		debug.WithSource("dispatch.vps_create").Writef("create failed: %v", err)
		return 0, Fail(ClassResourceExhausted, 0)
	}
	return uint64(id), Success
}

func (d *Dispatcher) vpsDestroy(args Args) (uint64, Status) {
	id, status, ok := argVPSID(args, 0)
	if !ok {
		return 0, status
	}
	if err := d.pool.Deallocate(id); err != nil {
		debug.WithSource("dispatch.vps_destroy").Writef("vps=%d: %v", id, err)
		return 0, Fail(ClassInvalidState, 0)
	}
	return 0, Success
}

func (d *Dispatcher) entry(args Args) (*vps.VpsEntry, Status, bool) {
	id, status, ok := argVPSID(args, 0)
	if !ok {
		return nil, status, false
	}
	entry, err := d.pool.Entry(id)
	if err != nil {
		return nil, Fail(ClassInvalidHandle, 0), false
	}
	return entry, Success, true
}

func (d *Dispatcher) vpsRead(index Index, args Args) (uint64, Status) {
	entry, status, ok := d.entry(args)
	if !ok {
		return 0, status
	}
	fieldIndex := int(args[1])

	var (
		v   uint64
		err error
	)
	switch index {
	case VpsRead8:
		var b uint8
		b, err = entry.Read8(fieldIndex)
		v = uint64(b)
	case VpsRead16:
		var w uint16
		w, err = entry.Read16(fieldIndex)
		v = uint64(w)
	case VpsRead32:
		var dw uint32
		dw, err = entry.Read32(fieldIndex)
		v = uint64(dw)
	default:
		v, err = entry.Read64(fieldIndex)
	}
	if err != nil {
		return 0, Fail(InvalidParamsClass(1), 0)
	}
	return v, Success
}

func (d *Dispatcher) vpsWrite(index Index, args Args) (uint64, Status) {
	entry, status, ok := d.entry(args)
	if !ok {
		return 0, status
	}
	fieldIndex := int(args[1])
	value := args[2]

	var err error
	switch index {
	case VpsWrite8:
		err = entry.Write8(fieldIndex, uint8(value))
	case VpsWrite16:
		err = entry.Write16(fieldIndex, uint16(value))
	case VpsWrite32:
		err = entry.Write32(fieldIndex, uint32(value))
	default:
		err = entry.Write64(fieldIndex, value)
	}
	if err != nil {
		return 0, Fail(InvalidParamsClass(1), 0)
	}
	return 0, Success
}

func (d *Dispatcher) vpsReadReg(args Args) (uint64, Status) {
	entry, status, ok := d.entry(args)
	if !ok {
		return 0, status
	}
	reg := vmcb.Reg(args[1])
	v, err := entry.ReadReg(reg)
	if err != nil {
		return 0, Fail(InvalidParamsClass(1), 0)
	}
	return v, Success
}

func (d *Dispatcher) vpsWriteReg(args Args) (uint64, Status) {
	entry, status, ok := d.entry(args)
	if !ok {
		return 0, status
	}
	reg := vmcb.Reg(args[1])
	if err := entry.WriteReg(reg, args[2]); err != nil {
		return 0, Fail(InvalidParamsClass(1), 0)
	}
	return 0, Success
}

func (d *Dispatcher) vpsRun(args Args) (uint64, Status) {
	entry, status, ok := d.entry(args)
	if !ok {
		return 0, status
	}
	exitReason, err := entry.Run()
	if err != nil {
		return 0, Fail(ClassHardwareEntryFailure, 0)
	}
	return exitReason, Success
}

func (d *Dispatcher) vpsRunCurrent() (uint64, Status) {
	entry, status, ok := d.activeEntry()
	if !ok {
		return 0, status
	}
	exitReason, err := entry.Run()
	if err != nil {
		return 0, Fail(ClassHardwareEntryFailure, 0)
	}
	return exitReason, Success
}

func (d *Dispatcher) vpsAdvanceIP(args Args) (uint64, Status) {
	entry, status, ok := d.entry(args)
	if !ok {
		return 0, status
	}
	if err := entry.AdvanceIP(); err != nil {
		return 0, Fail(ClassInvalidState, 0)
	}
	return 0, Success
}

func (d *Dispatcher) vpsAdvanceIPAndRunCurrent() (uint64, Status) {
	entry, status, ok := d.activeEntry()
	if !ok {
		return 0, status
	}
	if err := entry.AdvanceIP(); err != nil {
		return 0, Fail(ClassInvalidState, 0)
	}
	exitReason, err := entry.Run()
	if err != nil {
		return 0, Fail(ClassHardwareEntryFailure, 0)
	}
	return exitReason, Success
}

func (d *Dispatcher) vpsClear(args Args) (uint64, Status) {
	entry, status, ok := d.entry(args)
	if !ok {
		return 0, status
	}
	if err := entry.Clear(); err != nil {
		return 0, Fail(ClassInvalidState, 0)
	}
	return 0, Success
}
