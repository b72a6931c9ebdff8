// Package vmcb models the AMD-V Virtual Machine Control Block: its
// fixed 4 KiB field layout, indexed byte/word/dword/qword access, and
// the symbolic register enumeration (bf_reg_t) extensions use to name
// architectural registers without knowing VMCB offsets.
//
// Field layout and the segment-attribute compression scheme are
// grounded on the AMD APM Vol 2 Appendix B save-area layout as
// reproduced by the retrieval pack's sevEsSaveArea (kata-containers
// src/runtime/pkg/sev) and the GHCB field-offset access pattern in
// usbarmory/tamago's kvm/svm package.
package vmcb

import (
	"encoding/binary"
	"fmt"
)

// Size is the fixed size of a VMCB in bytes.
const Size = 4096

// Vmcb is a page-sized, fixed-layout hardware state block. Field
// access is either indexed (Read8..Write64, used by extensions that
// know raw offsets) or symbolic (via Reg, resolved through regFields).
type Vmcb struct {
	mem [Size]byte
}

// ErrOutOfRange is returned by the indexed accessors when the index is
// misaligned or would read/write past the end of the block.
var ErrOutOfRange = fmt.Errorf("vmcb: index out of range or misaligned")

func checkIndex(index, width int) error {
	if index < 0 || width <= 0 {
		return ErrOutOfRange
	}
	if index%width != 0 {
		return ErrOutOfRange
	}
	if index+width > Size {
		return ErrOutOfRange
	}
	return nil
}

// Read8 reads a byte at index.
func (v *Vmcb) Read8(index int) (uint8, error) {
	if err := checkIndex(index, 1); err != nil {
		return 0, err
	}
	return v.mem[index], nil
}

// Write8 writes a byte at index.
func (v *Vmcb) Write8(index int, val uint8) error {
	if err := checkIndex(index, 1); err != nil {
		return err
	}
	v.mem[index] = val
	return nil
}

// Read16 reads a 16-bit word at index. Segment-attribute fields are
// stored in VMCB-native compressed form (0x0FFF) and are decompressed
// to architectural form (0xF0FF) transparently, per spec.md scenario 2.
func (v *Vmcb) Read16(index int) (uint16, error) {
	if err := checkIndex(index, 2); err != nil {
		return 0, err
	}
	raw := binary.LittleEndian.Uint16(v.mem[index:])
	if attribOffsets[index] {
		return DecompressAttrib(raw), nil
	}
	return raw, nil
}

// Write16 writes a 16-bit word at index, compressing segment-attribute
// values into VMCB-native form on the way in.
func (v *Vmcb) Write16(index int, val uint16) error {
	if err := checkIndex(index, 2); err != nil {
		return err
	}
	if attribOffsets[index] {
		val = CompressAttrib(val)
	}
	binary.LittleEndian.PutUint16(v.mem[index:], val)
	return nil
}

// Read32 reads a 32-bit dword at index.
func (v *Vmcb) Read32(index int) (uint32, error) {
	if err := checkIndex(index, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v.mem[index:]), nil
}

// Write32 writes a 32-bit dword at index.
func (v *Vmcb) Write32(index int, val uint32) error {
	if err := checkIndex(index, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(v.mem[index:], val)
	return nil
}

// Read64 reads a 64-bit qword at index.
func (v *Vmcb) Read64(index int) (uint64, error) {
	if err := checkIndex(index, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v.mem[index:]), nil
}

// Write64 writes a 64-bit qword at index.
func (v *Vmcb) Write64(index int, val uint64) error {
	if err := checkIndex(index, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(v.mem[index:], val)
	return nil
}

// Clear implements the AMD-V clean-bits reload: writing zero forces
// the CPU to reload every VMCB region on the next VMRUN.
func (v *Vmcb) Clear() {
	binary.LittleEndian.PutUint32(v.mem[offVmcbCleanBits:], 0)
}

// CompressAttrib packs an architectural-form (0xF0FF) segment
// attribute into the VMCB-native compressed form (0x0FFF).
func CompressAttrib(a uint16) uint16 {
	return (a & 0x00FF) | ((a & 0xF000) >> 4)
}

// DecompressAttrib expands a VMCB-native compressed (0x0FFF) segment
// attribute back into architectural form (0xF0FF).
func DecompressAttrib(c uint16) uint16 {
	return (c & 0x00FF) | ((c & 0x0F00) << 4)
}
