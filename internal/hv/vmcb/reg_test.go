package vmcb

import "testing"

func TestRegLocationKnownTags(t *testing.T) {
	kind, offset, width, err := RegLocation(RegRax)
	if err != nil {
		t.Fatalf("RegLocation(RegRax): %v", err)
	}
	if kind != StorageTLS || offset != tlsRax || width != 8 {
		t.Fatalf("RegRax = {%v %d %d}, want {TLS 0x800 8}", kind, offset, width)
	}

	kind, offset, width, err = RegLocation(RegCsAttrib)
	if err != nil {
		t.Fatalf("RegLocation(RegCsAttrib): %v", err)
	}
	if kind != StorageVMCB || offset != offCsAttrib || width != 2 {
		t.Fatalf("RegCsAttrib = {%v %d %d}, want {VMCB 0x%x 2}", kind, offset, width, offCsAttrib)
	}
}

func TestRegLocationUnknownTag(t *testing.T) {
	if _, _, _, err := RegLocation(Reg(regCount)); err == nil {
		t.Fatal("RegLocation(regCount) should fail")
	}
	if _, _, _, err := RegLocation(Reg(^uint64(0))); err == nil {
		t.Fatal("RegLocation(huge tag) should fail")
	}
}

func TestEveryRegHasATableEntry(t *testing.T) {
	for r := Reg(0); r < regCount; r++ {
		if _, _, _, err := RegLocation(r); err != nil {
			t.Fatalf("Reg(%d) has no table entry: %v", r, err)
		}
	}
}

// TestRegTagValues pins every Reg to its real bf_reg_t ordinal. These
// values are part of the wire ABI and must never be renumbered.
func TestRegTagValues(t *testing.T) {
	want := map[Reg]int{
		RegRax: 0, RegRbx: 1, RegRcx: 2, RegRdx: 3, RegRbp: 4, RegRsi: 5, RegRdi: 6,
		RegR8: 7, RegR9: 8, RegR10: 9, RegR11: 10, RegR12: 11, RegR13: 12, RegR14: 13, RegR15: 14,
		RegRip: 15, RegRsp: 16, RegRflags: 17,
		RegGdtrBase: 18, RegGdtrLimit: 19, RegIdtrBase: 20, RegIdtrLimit: 21,
		RegEsSelector: 22, RegEsBase: 23, RegEsLimit: 24, RegEsAttrib: 25,
		RegCsSelector: 26, RegCsBase: 27, RegCsLimit: 28, RegCsAttrib: 29,
		RegSsSelector: 30, RegSsBase: 31, RegSsLimit: 32, RegSsAttrib: 33,
		RegDsSelector: 34, RegDsBase: 35, RegDsLimit: 36, RegDsAttrib: 37,
		RegFsSelector: 38, RegFsBase: 39, RegFsLimit: 40, RegFsAttrib: 41,
		RegGsSelector: 42, RegGsBase: 43, RegGsLimit: 44, RegGsAttrib: 45,
		RegLdtrSelector: 46, RegLdtrBase: 47, RegLdtrLimit: 48, RegLdtrAttrib: 49,
		RegTrSelector: 50, RegTrBase: 51, RegTrLimit: 52, RegTrAttrib: 53,
		RegCr0: 54, RegCr2: 55, RegCr3: 56, RegCr4: 57,
		RegDr6: 58, RegDr7: 59,
		RegEfer: 60, RegStar: 61, RegLstar: 62, RegCstar: 63, RegSfmask: 64,
		RegIa32FsBase: 65, RegIa32GsBase: 66, RegKernelGsBase: 67,
		RegSysenterCs: 68, RegSysenterEsp: 69, RegSysenterEip: 70,
		RegPat: 71, RegIa32Debugctl: 72,
	}
	if len(want) != int(regCount) {
		t.Fatalf("want has %d entries, regCount = %d", len(want), regCount)
	}
	for reg, tag := range want {
		if int(reg) != tag {
			t.Fatalf("%v = %d, want %d", reg, reg, tag)
		}
	}
}
