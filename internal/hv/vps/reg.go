package vps

import (
	"fmt"

	"github.com/tinyrange/svmcore/internal/hv/vmcb"
)

// readRegLocked and writeRegLocked resolve a symbolic register through
// vmcb's const lookup table, dispatching to TLS or the guest VMCB
// depending on where the table says the value lives. Callers must
// already hold e.mu and have verified Allocated state.

func (e *VpsEntry) readRegLocked(reg vmcb.Reg) (uint64, error) {
	kind, offset, w, err := vmcb.RegLocation(reg)
	if err != nil {
		return 0, fmt.Errorf("vps: read_reg: %w", ErrInvalidArgument)
	}

	if kind == vmcb.StorageTLS {
		return e.intrinsics.TLSReg(uint64(offset)), nil
	}

	guest := e.backing.Guest()
	switch w {
	case 1:
		v, err := guest.Read8(offset)
		return uint64(v), err
	case 2:
		v, err := guest.Read16(offset)
		return uint64(v), err
	case 4:
		v, err := guest.Read32(offset)
		return uint64(v), err
	default:
		return guest.Read64(offset)
	}
}

func (e *VpsEntry) writeRegLocked(reg vmcb.Reg, val uint64) error {
	kind, offset, w, err := vmcb.RegLocation(reg)
	if err != nil {
		return fmt.Errorf("vps: write_reg: %w", ErrInvalidArgument)
	}

	if kind == vmcb.StorageTLS {
		e.intrinsics.SetTLSReg(uint64(offset), val)
		return nil
	}

	guest := e.backing.Guest()
	switch w {
	case 1:
		return guest.Write8(offset, uint8(val))
	case 2:
		return guest.Write16(offset, uint16(val))
	case 4:
		return guest.Write32(offset, uint32(val))
	default:
		return guest.Write64(offset, val)
	}
}
