package vps

import "testing"

func TestStateSaveRoundTrip(t *testing.T) {
	e, _ := newTestEntry(t)
	if err := e.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	want := State{
		Rax: 1, Rbx: 2, Rcx: 3, Rdx: 4, Rbp: 5, Rsi: 6, Rdi: 7,
		R8: 8, R9: 9, R10: 10, R11: 11, R12: 12, R13: 13, R14: 14, R15: 15,
		Rsp: 0x1000, Rip: 0x2000, Rflags: 0x202,
		GdtrBase: 0x3000, GdtrLimit: 0x27, IdtrBase: 0x4000, IdtrLimit: 0x1ff,
		CsSelector: 0x08, CsBase: 0, CsLimit: 0xFFFFFFFF, CsAttrib: 0xA09B,
		SsSelector: 0x10, SsAttrib: 0xC093,
		Cr0: 0x80000011, Cr3: 0x5000, Cr4: 0x20,
		Efer: 0x500, Pat: 0x7040600070406,
	}

	if err := e.StateSaveToVps(want); err != nil {
		t.Fatalf("StateSaveToVps: %v", err)
	}
	got, err := e.VpsToStateSave()
	if err != nil {
		t.Fatalf("VpsToStateSave: %v", err)
	}

	if got != want {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, want)
	}
}

func TestStateMarshalRequiresAllocated(t *testing.T) {
	e, _ := newTestEntry(t)
	if err := e.StateSaveToVps(State{}); err == nil {
		t.Fatal("StateSaveToVps on Free should fail")
	}
	if _, err := e.VpsToStateSave(); err == nil {
		t.Fatal("VpsToStateSave on Free should fail")
	}
}
