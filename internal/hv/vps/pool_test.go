package vps

import (
	"errors"
	"testing"

	"github.com/tinyrange/svmcore/internal/hv"
	"github.com/tinyrange/svmcore/internal/hv/exitlog"
	"github.com/tinyrange/svmcore/internal/hv/fakeintrin"
	"github.com/tinyrange/svmcore/internal/hv/ids"
	"github.com/tinyrange/svmcore/internal/hv/svmpages"
)

func newTestPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	pagePool, err := svmpages.NewMmapPagePool(capacity * 2)
	if err != nil {
		t.Fatalf("NewMmapPagePool: %v", err)
	}
	t.Cleanup(func() { pagePool.Close() })
	return NewPool(capacity, pagePool, exitlog.NewReporter(16, true), ids.PPID(0))
}

func TestPoolColdLifecycle(t *testing.T) {
	p := newTestPool(t, 2)
	intrinsics := fakeintrin.New()

	id, entry, err := p.Allocate(intrinsics)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id != ids.VPSID(0) {
		t.Fatalf("first Allocate id = %d, want 0", id)
	}

	if err := entry.AssignVP(ids.VPID(0)); err != nil {
		t.Fatalf("AssignVP: %v", err)
	}

	if err := p.Deallocate(id); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}

	id2, _, err := p.Allocate(intrinsics)
	if err != nil {
		t.Fatalf("re-Allocate: %v", err)
	}
	if id2 != ids.VPSID(0) {
		t.Fatalf("re-Allocate id = %d, want 0 (most-recently-freed reuse)", id2)
	}
}

func TestPoolExhaustion(t *testing.T) {
	p := newTestPool(t, 1)
	intrinsics := fakeintrin.New()

	if _, _, err := p.Allocate(intrinsics); err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	if _, _, err := p.Allocate(intrinsics); !errors.Is(err, hv.ErrPoolExhausted) {
		t.Fatalf("second Allocate: got %v, want ErrPoolExhausted", err)
	}
}

func TestPoolEntryInvalidID(t *testing.T) {
	p := newTestPool(t, 1)
	if _, err := p.Entry(ids.InvalidVPS); err == nil {
		t.Fatal("Entry(InvalidVPS) should fail")
	}
	if _, err := p.Entry(ids.VPSID(5)); err == nil {
		t.Fatal("Entry(out of range) should fail")
	}
}

func TestPoolMostRecentlyFreedReuseOrder(t *testing.T) {
	p := newTestPool(t, 3)
	intrinsics := fakeintrin.New()

	id0, _, _ := p.Allocate(intrinsics)
	id1, _, _ := p.Allocate(intrinsics)
	_, _, _ = p.Allocate(intrinsics)

	if err := p.Deallocate(id0); err != nil {
		t.Fatalf("Deallocate id0: %v", err)
	}
	if err := p.Deallocate(id1); err != nil {
		t.Fatalf("Deallocate id1: %v", err)
	}

	// id1 was freed most recently, so it is reused first.
	got, _, err := p.Allocate(intrinsics)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != id1 {
		t.Fatalf("Allocate reused %d, want most-recently-freed %d", got, id1)
	}
}
