package vps

import (
	"errors"
	"testing"

	"github.com/tinyrange/svmcore/internal/hv/exitlog"
	"github.com/tinyrange/svmcore/internal/hv/fakeintrin"
	"github.com/tinyrange/svmcore/internal/hv/ids"
	"github.com/tinyrange/svmcore/internal/hv/svmpages"
	"github.com/tinyrange/svmcore/internal/hv/vmcb"
)

func newTestEntry(t *testing.T) (*VpsEntry, *svmpages.MmapPagePool) {
	t.Helper()
	pagePool, err := svmpages.NewMmapPagePool(4)
	if err != nil {
		t.Fatalf("NewMmapPagePool: %v", err)
	}
	t.Cleanup(func() { pagePool.Close() })

	e := New(ids.PPID(0), exitlog.NewReporter(16, true))
	if err := e.Initialize(fakeintrin.New(), pagePool, ids.VPSID(0)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return e, pagePool
}

func TestLifecycleColdRun(t *testing.T) {
	e, _ := newTestEntry(t)

	if err := e.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !e.backing.Valid() {
		t.Fatal("backing not valid after Allocate")
	}

	if err := e.AssignVP(ids.VPID(0)); err != nil {
		t.Fatalf("AssignVP: %v", err)
	}
	if e.AssignedVP() != ids.VPID(0) {
		t.Fatal("AssignedVP mismatch")
	}

	if err := e.WriteReg(vmcb.RegRip, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteReg: %v", err)
	}
	got, err := e.ReadReg(vmcb.RegRip)
	if err != nil {
		t.Fatalf("ReadReg: %v", err)
	}
	if got != 0xDEADBEEF {
		t.Fatalf("ReadReg(rip) = 0x%x, want 0xDEADBEEF", got)
	}

	if err := e.Deallocate(); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	if e.AssignedVP().Valid() {
		t.Fatal("assigned vp should be invalid after deallocate")
	}
}

func TestAllocateOnAllocatedFails(t *testing.T) {
	e, _ := newTestEntry(t)
	if err := e.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := e.Allocate(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Allocate: got %v, want ErrInvalidState", err)
	}
}

func TestDeallocateOnFreeIsNoOp(t *testing.T) {
	e, _ := newTestEntry(t)
	if err := e.Deallocate(); err != nil {
		t.Fatalf("Deallocate on Free: %v", err)
	}
}

func TestOperationsRequireAllocated(t *testing.T) {
	e, _ := newTestEntry(t)
	if err := e.Clear(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Clear on Free: got %v, want ErrInvalidState", err)
	}
	if _, err := e.ReadReg(vmcb.RegRax); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("ReadReg on Free: got %v, want ErrInvalidState", err)
	}
}

func TestRunRecordsExit(t *testing.T) {
	e, _ := newTestEntry(t)
	if err := e.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	fake := e.intrinsics.(*fakeintrin.Intrinsics)
	fake.VmrunHook = func(uintptr, uint64, uintptr, uint64) uint64 { return 0x400 }

	exitReason, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exitReason != 0x400 {
		t.Fatalf("exitReason = 0x%x, want 0x400", exitReason)
	}

	recs := e.exitLog.Records(ids.PPID(0))
	if len(recs) != 1 || recs[0].ExitReason != 0x400 {
		t.Fatalf("exit log = %+v, want one record with reason 0x400", recs)
	}
}

func TestRunEntryFailure(t *testing.T) {
	e, _ := newTestEntry(t)
	if err := e.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	fake := e.intrinsics.(*fakeintrin.Intrinsics)
	fake.VmrunHook = func(uintptr, uint64, uintptr, uint64) uint64 { return 0xFFFFFFFFFFFFFFFF }

	if _, err := e.Run(); err == nil {
		t.Fatal("Run should fail on hardware entry failure")
	}

	if e.state != stateAllocated {
		t.Fatal("entry should remain Allocated after an entry failure")
	}
}

func TestAdvanceIPRequiresValidExit(t *testing.T) {
	e, _ := newTestEntry(t)
	if err := e.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := e.AdvanceIP(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("AdvanceIP before any exit: got %v, want ErrInvalidState", err)
	}

	fake := e.intrinsics.(*fakeintrin.Intrinsics)
	fake.VmrunHook = func(uintptr, uint64, uintptr, uint64) uint64 { return 0x07b } // VMEXIT_IOIO

	if err := e.backing.Guest().SetNRIP(0x1234); err != nil {
		t.Fatalf("SetNRIP: %v", err)
	}
	if _, err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := e.AdvanceIP(); err != nil {
		t.Fatalf("AdvanceIP: %v", err)
	}
	rip, err := e.ReadReg(vmcb.RegRip)
	if err != nil {
		t.Fatalf("ReadReg(rip): %v", err)
	}
	if rip != 0x1234 {
		t.Fatalf("rip after AdvanceIP = 0x%x, want 0x1234", rip)
	}
}

func TestWriteOutOfRangeLeavesStateUnchanged(t *testing.T) {
	e, _ := newTestEntry(t)
	if err := e.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := e.Write64(0x1000, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Write64(0x1000): got %v, want ErrInvalidArgument", err)
	}
}
