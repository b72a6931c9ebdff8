package vmcb

// Save-area field offsets. Fields are laid out in the same relative
// order as the retrieval pack's sevEsSaveArea struct (segments, then
// descriptor-table registers, then control/debug registers, then
// RIP/RSP/RFLAGS, then the MSR block), compacted to the fields this
// core actually exposes — general-purpose registers other than those
// named below live in TLS, not the VMCB, per spec.md §3.
const (
	offEsSelector = 0x000
	offEsAttrib   = 0x002
	offEsLimit    = 0x004
	offEsBase     = 0x008

	offCsSelector = 0x010
	offCsAttrib   = 0x012
	offCsLimit    = 0x014
	offCsBase     = 0x018

	offSsSelector = 0x020
	offSsAttrib   = 0x022
	offSsLimit    = 0x024
	offSsBase     = 0x028

	offDsSelector = 0x030
	offDsAttrib   = 0x032
	offDsLimit    = 0x034
	offDsBase     = 0x038

	offFsSelector = 0x040
	offFsAttrib   = 0x042
	offFsLimit    = 0x044
	offFsBase     = 0x048

	offGsSelector = 0x050
	offGsAttrib   = 0x052
	offGsLimit    = 0x054
	offGsBase     = 0x058

	offLdtrSelector = 0x060
	offLdtrAttrib   = 0x062
	offLdtrLimit    = 0x064
	offLdtrBase     = 0x068

	offTrSelector = 0x070
	offTrAttrib   = 0x072
	offTrLimit    = 0x074
	offTrBase     = 0x078

	offGdtrLimit = 0x080
	offGdtrBase  = 0x088

	offIdtrLimit = 0x090
	offIdtrBase  = 0x098

	offCr0 = 0x0A0
	offCr2 = 0x0A8
	offCr3 = 0x0B0
	offCr4 = 0x0B8

	offDr6 = 0x0C0
	offDr7 = 0x0C8

	offRflags = 0x0D0
	offRip    = 0x0D8
	offRsp    = 0x0E0

	offEfer         = 0x0E8
	offStar         = 0x0F0
	offLstar        = 0x0F8
	offCstar        = 0x100
	offSfmask       = 0x108
	offIa32FsBase   = 0x110
	offIa32GsBase   = 0x118
	offKernelGsBase = 0x120
	offSysenterCs   = 0x128
	offSysenterEsp  = 0x130
	offSysenterEip  = 0x138
	offPat          = 0x140
	offDebugctl     = 0x148

	offVmcbCleanBits = 0x150
	offNrip          = 0x158
)

// attribOffsets marks every VMCB offset that stores a segment
// attribute in compressed form; Read16/Write16 consult it.
var attribOffsets = map[int]bool{
	offEsAttrib:   true,
	offCsAttrib:   true,
	offSsAttrib:   true,
	offDsAttrib:   true,
	offFsAttrib:   true,
	offGsAttrib:   true,
	offLdtrAttrib: true,
	offTrAttrib:   true,
}

// NRIP returns the next-RIP field. Only populated by the hardware on
// VMExits that the AMD-V architecture documents as nRIP-valid; reading
// it after other exits returns whatever was last written (spec.md §9's
// open question — callers must check the last exit reason before
// trusting this; vps.VpsEntry.AdvanceIP does so via the nRIP-valid flag
// its Run sets from that reason).
func (v *Vmcb) NRIP() (uint64, error) { return v.Read64(offNrip) }

// SetNRIP sets the next-RIP field; used by tests to simulate hardware
// populating it on a decode-assist VMExit.
func (v *Vmcb) SetNRIP(val uint64) error { return v.Write64(offNrip, val) }
