package vps

import "github.com/tinyrange/svmcore/internal/hv/vmcb"

// State is the plain, hardware-independent view of a VPS's full
// architectural register file: every tag vmcb.Reg enumerates, named
// instead of indexed so a caller working with State never has to know
// a vmcb.Reg ordinal. Segment-attribute fields are always in
// architectural (decompressed, 0xF0FF) form here; the VMCB-native
// compressed form is an implementation detail of the backing store.
type State struct {
	Rax, Rbx, Rcx, Rdx, Rbp, Rsi, Rdi                     uint64
	R8, R9, R10, R11, R12, R13, R14, R15                  uint64
	Rsp, Rip, Rflags                                      uint64
	GdtrBase, IdtrBase                                    uint64
	GdtrLimit, IdtrLimit                                  uint32
	EsSelector, EsAttrib                                  uint16
	EsBase                                                uint64
	EsLimit                                               uint32
	CsSelector, CsAttrib                                  uint16
	CsBase                                                uint64
	CsLimit                                               uint32
	SsSelector, SsAttrib                                  uint16
	SsBase                                                uint64
	SsLimit                                               uint32
	DsSelector, DsAttrib                                  uint16
	DsBase                                                uint64
	DsLimit                                               uint32
	FsSelector, FsAttrib                                  uint16
	FsBase                                                uint64
	FsLimit                                               uint32
	GsSelector, GsAttrib                                  uint16
	GsBase                                                uint64
	GsLimit                                               uint32
	LdtrSelector, LdtrAttrib                              uint16
	LdtrBase                                               uint64
	LdtrLimit                                              uint32
	TrSelector, TrAttrib                                   uint16
	TrBase                                                 uint64
	TrLimit                                                uint32
	Cr0, Cr2, Cr3, Cr4                                     uint64
	Dr6, Dr7                                               uint64
	Efer, Pat, Star, Lstar, Cstar, Sfmask                  uint64
	Ia32FsBase, Ia32GsBase, KernelGsBase                   uint64
	SysenterCs, SysenterEsp, SysenterEip                   uint64
	Ia32Debugctl                                           uint64
}

// regOrder lists every Reg tag together with a State field accessor
// pair, so StateSaveToVps/VpsToStateSave can walk the same list in
// both directions instead of hand-writing 73 parallel assignments.
var regOrder = []struct {
	reg vmcb.Reg
	get func(*State) uint64
	set func(*State, uint64)
}{
	{vmcb.RegRax, func(s *State) uint64 { return s.Rax }, func(s *State, v uint64) { s.Rax = v }},
	{vmcb.RegRbx, func(s *State) uint64 { return s.Rbx }, func(s *State, v uint64) { s.Rbx = v }},
	{vmcb.RegRcx, func(s *State) uint64 { return s.Rcx }, func(s *State, v uint64) { s.Rcx = v }},
	{vmcb.RegRdx, func(s *State) uint64 { return s.Rdx }, func(s *State, v uint64) { s.Rdx = v }},
	{vmcb.RegRbp, func(s *State) uint64 { return s.Rbp }, func(s *State, v uint64) { s.Rbp = v }},
	{vmcb.RegRsi, func(s *State) uint64 { return s.Rsi }, func(s *State, v uint64) { s.Rsi = v }},
	{vmcb.RegRdi, func(s *State) uint64 { return s.Rdi }, func(s *State, v uint64) { s.Rdi = v }},
	{vmcb.RegR8, func(s *State) uint64 { return s.R8 }, func(s *State, v uint64) { s.R8 = v }},
	{vmcb.RegR9, func(s *State) uint64 { return s.R9 }, func(s *State, v uint64) { s.R9 = v }},
	{vmcb.RegR10, func(s *State) uint64 { return s.R10 }, func(s *State, v uint64) { s.R10 = v }},
	{vmcb.RegR11, func(s *State) uint64 { return s.R11 }, func(s *State, v uint64) { s.R11 = v }},
	{vmcb.RegR12, func(s *State) uint64 { return s.R12 }, func(s *State, v uint64) { s.R12 = v }},
	{vmcb.RegR13, func(s *State) uint64 { return s.R13 }, func(s *State, v uint64) { s.R13 = v }},
	{vmcb.RegR14, func(s *State) uint64 { return s.R14 }, func(s *State, v uint64) { s.R14 = v }},
	{vmcb.RegR15, func(s *State) uint64 { return s.R15 }, func(s *State, v uint64) { s.R15 = v }},

	{vmcb.RegRip, func(s *State) uint64 { return s.Rip }, func(s *State, v uint64) { s.Rip = v }},
	{vmcb.RegRsp, func(s *State) uint64 { return s.Rsp }, func(s *State, v uint64) { s.Rsp = v }},
	{vmcb.RegRflags, func(s *State) uint64 { return s.Rflags }, func(s *State, v uint64) { s.Rflags = v }},

	{vmcb.RegGdtrBase, func(s *State) uint64 { return s.GdtrBase }, func(s *State, v uint64) { s.GdtrBase = v }},
	{vmcb.RegGdtrLimit, func(s *State) uint64 { return uint64(s.GdtrLimit) }, func(s *State, v uint64) { s.GdtrLimit = uint32(v) }},
	{vmcb.RegIdtrBase, func(s *State) uint64 { return s.IdtrBase }, func(s *State, v uint64) { s.IdtrBase = v }},
	{vmcb.RegIdtrLimit, func(s *State) uint64 { return uint64(s.IdtrLimit) }, func(s *State, v uint64) { s.IdtrLimit = uint32(v) }},

	{vmcb.RegEsSelector, func(s *State) uint64 { return uint64(s.EsSelector) }, func(s *State, v uint64) { s.EsSelector = uint16(v) }},
	{vmcb.RegEsBase, func(s *State) uint64 { return s.EsBase }, func(s *State, v uint64) { s.EsBase = v }},
	{vmcb.RegEsLimit, func(s *State) uint64 { return uint64(s.EsLimit) }, func(s *State, v uint64) { s.EsLimit = uint32(v) }},
	{vmcb.RegEsAttrib, func(s *State) uint64 { return uint64(s.EsAttrib) }, func(s *State, v uint64) { s.EsAttrib = uint16(v) }},

	{vmcb.RegCsSelector, func(s *State) uint64 { return uint64(s.CsSelector) }, func(s *State, v uint64) { s.CsSelector = uint16(v) }},
	{vmcb.RegCsBase, func(s *State) uint64 { return s.CsBase }, func(s *State, v uint64) { s.CsBase = v }},
	{vmcb.RegCsLimit, func(s *State) uint64 { return uint64(s.CsLimit) }, func(s *State, v uint64) { s.CsLimit = uint32(v) }},
	{vmcb.RegCsAttrib, func(s *State) uint64 { return uint64(s.CsAttrib) }, func(s *State, v uint64) { s.CsAttrib = uint16(v) }},

	{vmcb.RegSsSelector, func(s *State) uint64 { return uint64(s.SsSelector) }, func(s *State, v uint64) { s.SsSelector = uint16(v) }},
	{vmcb.RegSsBase, func(s *State) uint64 { return s.SsBase }, func(s *State, v uint64) { s.SsBase = v }},
	{vmcb.RegSsLimit, func(s *State) uint64 { return uint64(s.SsLimit) }, func(s *State, v uint64) { s.SsLimit = uint32(v) }},
	{vmcb.RegSsAttrib, func(s *State) uint64 { return uint64(s.SsAttrib) }, func(s *State, v uint64) { s.SsAttrib = uint16(v) }},

	{vmcb.RegDsSelector, func(s *State) uint64 { return uint64(s.DsSelector) }, func(s *State, v uint64) { s.DsSelector = uint16(v) }},
	{vmcb.RegDsBase, func(s *State) uint64 { return s.DsBase }, func(s *State, v uint64) { s.DsBase = v }},
	{vmcb.RegDsLimit, func(s *State) uint64 { return uint64(s.DsLimit) }, func(s *State, v uint64) { s.DsLimit = uint32(v) }},
	{vmcb.RegDsAttrib, func(s *State) uint64 { return uint64(s.DsAttrib) }, func(s *State, v uint64) { s.DsAttrib = uint16(v) }},

	{vmcb.RegFsSelector, func(s *State) uint64 { return uint64(s.FsSelector) }, func(s *State, v uint64) { s.FsSelector = uint16(v) }},
	{vmcb.RegFsBase, func(s *State) uint64 { return s.FsBase }, func(s *State, v uint64) { s.FsBase = v }},
	{vmcb.RegFsLimit, func(s *State) uint64 { return uint64(s.FsLimit) }, func(s *State, v uint64) { s.FsLimit = uint32(v) }},
	{vmcb.RegFsAttrib, func(s *State) uint64 { return uint64(s.FsAttrib) }, func(s *State, v uint64) { s.FsAttrib = uint16(v) }},

	{vmcb.RegGsSelector, func(s *State) uint64 { return uint64(s.GsSelector) }, func(s *State, v uint64) { s.GsSelector = uint16(v) }},
	{vmcb.RegGsBase, func(s *State) uint64 { return s.GsBase }, func(s *State, v uint64) { s.GsBase = v }},
	{vmcb.RegGsLimit, func(s *State) uint64 { return uint64(s.GsLimit) }, func(s *State, v uint64) { s.GsLimit = uint32(v) }},
	{vmcb.RegGsAttrib, func(s *State) uint64 { return uint64(s.GsAttrib) }, func(s *State, v uint64) { s.GsAttrib = uint16(v) }},

	{vmcb.RegLdtrSelector, func(s *State) uint64 { return uint64(s.LdtrSelector) }, func(s *State, v uint64) { s.LdtrSelector = uint16(v) }},
	{vmcb.RegLdtrBase, func(s *State) uint64 { return s.LdtrBase }, func(s *State, v uint64) { s.LdtrBase = v }},
	{vmcb.RegLdtrLimit, func(s *State) uint64 { return uint64(s.LdtrLimit) }, func(s *State, v uint64) { s.LdtrLimit = uint32(v) }},
	{vmcb.RegLdtrAttrib, func(s *State) uint64 { return uint64(s.LdtrAttrib) }, func(s *State, v uint64) { s.LdtrAttrib = uint16(v) }},

	{vmcb.RegTrSelector, func(s *State) uint64 { return uint64(s.TrSelector) }, func(s *State, v uint64) { s.TrSelector = uint16(v) }},
	{vmcb.RegTrBase, func(s *State) uint64 { return s.TrBase }, func(s *State, v uint64) { s.TrBase = v }},
	{vmcb.RegTrLimit, func(s *State) uint64 { return uint64(s.TrLimit) }, func(s *State, v uint64) { s.TrLimit = uint32(v) }},
	{vmcb.RegTrAttrib, func(s *State) uint64 { return uint64(s.TrAttrib) }, func(s *State, v uint64) { s.TrAttrib = uint16(v) }},

	{vmcb.RegCr0, func(s *State) uint64 { return s.Cr0 }, func(s *State, v uint64) { s.Cr0 = v }},
	{vmcb.RegCr2, func(s *State) uint64 { return s.Cr2 }, func(s *State, v uint64) { s.Cr2 = v }},
	{vmcb.RegCr3, func(s *State) uint64 { return s.Cr3 }, func(s *State, v uint64) { s.Cr3 = v }},
	{vmcb.RegCr4, func(s *State) uint64 { return s.Cr4 }, func(s *State, v uint64) { s.Cr4 = v }},

	{vmcb.RegDr6, func(s *State) uint64 { return s.Dr6 }, func(s *State, v uint64) { s.Dr6 = v }},
	{vmcb.RegDr7, func(s *State) uint64 { return s.Dr7 }, func(s *State, v uint64) { s.Dr7 = v }},

	{vmcb.RegEfer, func(s *State) uint64 { return s.Efer }, func(s *State, v uint64) { s.Efer = v }},
	{vmcb.RegStar, func(s *State) uint64 { return s.Star }, func(s *State, v uint64) { s.Star = v }},
	{vmcb.RegLstar, func(s *State) uint64 { return s.Lstar }, func(s *State, v uint64) { s.Lstar = v }},
	{vmcb.RegCstar, func(s *State) uint64 { return s.Cstar }, func(s *State, v uint64) { s.Cstar = v }},
	{vmcb.RegSfmask, func(s *State) uint64 { return s.Sfmask }, func(s *State, v uint64) { s.Sfmask = v }},
	{vmcb.RegIa32FsBase, func(s *State) uint64 { return s.Ia32FsBase }, func(s *State, v uint64) { s.Ia32FsBase = v }},
	{vmcb.RegIa32GsBase, func(s *State) uint64 { return s.Ia32GsBase }, func(s *State, v uint64) { s.Ia32GsBase = v }},
	{vmcb.RegKernelGsBase, func(s *State) uint64 { return s.KernelGsBase }, func(s *State, v uint64) { s.KernelGsBase = v }},
	{vmcb.RegSysenterCs, func(s *State) uint64 { return s.SysenterCs }, func(s *State, v uint64) { s.SysenterCs = v }},
	{vmcb.RegSysenterEsp, func(s *State) uint64 { return s.SysenterEsp }, func(s *State, v uint64) { s.SysenterEsp = v }},
	{vmcb.RegSysenterEip, func(s *State) uint64 { return s.SysenterEip }, func(s *State, v uint64) { s.SysenterEip = v }},
	{vmcb.RegPat, func(s *State) uint64 { return s.Pat }, func(s *State, v uint64) { s.Pat = v }},
	{vmcb.RegIa32Debugctl, func(s *State) uint64 { return s.Ia32Debugctl }, func(s *State, v uint64) { s.Ia32Debugctl = v }},
}

// StateSaveToVps writes every field of s into the entry's register
// file (TLS and guest VMCB both). The entry must be Allocated.
func (e *VpsEntry) StateSaveToVps(s State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return err
	}
	for _, r := range regOrder {
		if err := e.writeRegLocked(r.reg, r.get(&s)); err != nil {
			return err
		}
	}
	return nil
}

// VpsToStateSave reads the entry's full register file into a State.
// The entry must be Allocated.
func (e *VpsEntry) VpsToStateSave() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAllocated(); err != nil {
		return State{}, err
	}
	var s State
	for _, r := range regOrder {
		v, err := e.readRegLocked(r.reg)
		if err != nil {
			return State{}, err
		}
		r.set(&s, v)
	}
	return s, nil
}
