// Command mkcore wires the VPS subsystem end-to-end (page pool,
// fake intrinsics, pool, and syscall dispatcher) and drives a cold
// VPS lifecycle through the syscall ABI, for manual smoke-testing
// outside of the test suite. Modeled on the teacher's cmd/timeslice:
// a small flag-parsed entry point over one library's public surface.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tinyrange/svmcore/internal/debug"
	"github.com/tinyrange/svmcore/internal/hv/dispatch"
	"github.com/tinyrange/svmcore/internal/hv/exitlog"
	"github.com/tinyrange/svmcore/internal/hv/fakeintrin"
	"github.com/tinyrange/svmcore/internal/hv/ids"
	"github.com/tinyrange/svmcore/internal/hv/svmpages"
	"github.com/tinyrange/svmcore/internal/hv/vmcb"
	"github.com/tinyrange/svmcore/internal/hv/vps"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	capacity := fs.Int("capacity", 4, "number of VPS slots in the pool")
	debugLog := fs.String("debug-log", "", "path to write the binary debug log to")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if *debugLog != "" {
		if err := debug.OpenFile(*debugLog); err != nil {
			fmt.Fprintf(os.Stderr, "failed to open debug log: %v\n", err)
			os.Exit(1)
		}
	}

	if err := run(*capacity); err != nil {
		fmt.Fprintf(os.Stderr, "mkcore: %v\n", err)
		os.Exit(1)
	}
}

func run(capacity int) error {
	pagePool, err := svmpages.NewMmapPagePool(capacity * 2)
	if err != nil {
		return fmt.Errorf("page pool: %w", err)
	}
	defer pagePool.Close()

	exitLog := exitlog.NewReporter(64, true)
	intrinsics := fakeintrin.New()
	pool := vps.NewPool(capacity, pagePool, exitLog, ids.PPID(0))

	d := dispatch.New(pool, intrinsics)

	ext := ids.ExtID(0)
	d.Grant(ext, dispatch.FamilyVPS)
	d.Grant(ext, dispatch.FamilyHandle)

	handle, status := d.OpenHandle(ext, 0x2)
	if !status.IsSuccess() {
		return fmt.Errorf("open_handle failed: class=%d code=%d", status.Class(), status.Code())
	}

	word := dispatch.Signature<<48 | uint64(dispatch.FamilyVPS)<<16 | uint64(dispatch.VpsCreate)
	vpsid, status := d.Dispatch(ext, word, handle, dispatch.Args{})
	if !status.IsSuccess() {
		return fmt.Errorf("vps_create failed: class=%d code=%d", status.Class(), status.Code())
	}
	fmt.Printf("created vps id=%d\n", vpsid)

	writeRip := dispatch.Signature<<48 | uint64(dispatch.FamilyVPS)<<16 | uint64(dispatch.VpsWriteReg)
	_, status = d.Dispatch(ext, writeRip, handle, dispatch.Args{vpsid, uint64(vmcb.RegRip), 0xDEADBEEF})
	if !status.IsSuccess() {
		return fmt.Errorf("write_reg(rip) failed: class=%d code=%d", status.Class(), status.Code())
	}

	readRip := dispatch.Signature<<48 | uint64(dispatch.FamilyVPS)<<16 | uint64(dispatch.VpsReadReg)
	rip, status := d.Dispatch(ext, readRip, handle, dispatch.Args{vpsid, uint64(vmcb.RegRip)})
	if !status.IsSuccess() {
		return fmt.Errorf("read_reg(rip) failed: class=%d code=%d", status.Class(), status.Code())
	}
	fmt.Printf("rip=0x%x\n", rip)

	destroy := dispatch.Signature<<48 | uint64(dispatch.FamilyVPS)<<16 | uint64(dispatch.VpsDestroy)
	_, status = d.Dispatch(ext, destroy, handle, dispatch.Args{vpsid})
	if !status.IsSuccess() {
		return fmt.Errorf("vps_destroy failed: class=%d code=%d", status.Class(), status.Code())
	}
	fmt.Println("destroyed vps")

	return nil
}
