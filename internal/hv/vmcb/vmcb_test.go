package vmcb

import "testing"

func TestCompressDecompressRoundTrip(t *testing.T) {
	for i := 0; i < 0x10000; i++ {
		a := uint16(i)
		// bits 8-11 must be zero in architectural form for lossless
		// compression, per spec.md §3.
		if a&0x0F00 != 0 {
			continue
		}
		got := DecompressAttrib(CompressAttrib(a))
		if got != a {
			t.Fatalf("compress/decompress round trip: a=0x%x got=0x%x", a, got)
		}
	}
}

func TestDecompressCompressRoundTrip(t *testing.T) {
	for c := uint16(0); c < 0x1000; c++ {
		if c&0xF000 != 0 {
			continue
		}
		got := CompressAttrib(DecompressAttrib(c))
		if got != c {
			t.Fatalf("decompress/compress round trip: c=0x%x got=0x%x", c, got)
		}
	}
}

func TestAttribBoundaryExample(t *testing.T) {
	v := &Vmcb{}
	if err := v.Write16(offCsAttrib, 0xA09B); err != nil {
		t.Fatalf("write16: %v", err)
	}

	got, err := v.Read16(offCsAttrib)
	if err != nil {
		t.Fatalf("read16: %v", err)
	}
	if got != 0xA09B {
		t.Fatalf("read16 after write16 = 0x%x, want 0xA09B", got)
	}

	raw := binaryRead16(v, offCsAttrib)
	if raw != 0x0A9B {
		t.Fatalf("backing store = 0x%x, want compressed 0x0A9B", raw)
	}
}

func binaryRead16(v *Vmcb, index int) uint16 {
	return uint16(v.mem[index]) | uint16(v.mem[index+1])<<8
}

func TestWrite8Boundary(t *testing.T) {
	v := &Vmcb{}
	if err := v.Write8(4095, 1); err != nil {
		t.Fatalf("write8(4095) should succeed: %v", err)
	}
	if err := v.Write8(4096, 1); err == nil {
		t.Fatal("write8(4096) should fail")
	}
}

func TestWrite64Boundary(t *testing.T) {
	v := &Vmcb{}
	if err := v.Write64(4088, 1); err != nil {
		t.Fatalf("write64(4088) should succeed: %v", err)
	}
	if err := v.Write64(4089, 1); err == nil {
		t.Fatal("write64(4089) misaligned should fail")
	}
	if err := v.Write64(4096, 1); err == nil {
		t.Fatal("write64(4096) should fail")
	}
}

func TestRead64WriteRoundTrip(t *testing.T) {
	v := &Vmcb{}
	for i := 0; i < 4088; i += 8 {
		if err := v.Write64(i, uint64(i)*7+1); err != nil {
			t.Fatalf("write64(%d): %v", i, err)
		}
	}
	for i := 0; i < 4088; i += 8 {
		got, err := v.Read64(i)
		if err != nil {
			t.Fatalf("read64(%d): %v", i, err)
		}
		if want := uint64(i)*7 + 1; got != want {
			t.Fatalf("read64(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestOutOfRangeLeavesStateUnchanged(t *testing.T) {
	v := &Vmcb{}
	if err := v.Write64(0x1000, 1); err == nil {
		t.Fatal("write64(0x1000) should fail")
	}
	for _, b := range v.mem {
		if b != 0 {
			t.Fatal("out-of-range write mutated the backing store")
		}
	}
}

func TestClearZeroesCleanBits(t *testing.T) {
	v := &Vmcb{}
	if err := v.Write32(offVmcbCleanBits, 0xFFFFFFFF); err != nil {
		t.Fatalf("write32: %v", err)
	}
	v.Clear()
	got, err := v.Read32(offVmcbCleanBits)
	if err != nil {
		t.Fatalf("read32: %v", err)
	}
	if got != 0 {
		t.Fatalf("clean bits after Clear = 0x%x, want 0", got)
	}
}
