package vmcb

import "fmt"

// Reg names an architectural register an extension can read or write
// symbolically. Tag values are part of the syscall ABI (spec.md §6)
// and must never be renumbered — they are fixed to the real bf_reg_t
// enumeration this core's ABI descends from.
type Reg uint64

const (
	RegRax Reg = iota // 0
	RegRbx
	RegRcx
	RegRdx
	RegRbp
	RegRsi
	RegRdi
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15

	RegRip // 15
	RegRsp // 16
	RegRflags

	RegGdtrBase
	RegGdtrLimit
	RegIdtrBase
	RegIdtrLimit

	RegEsSelector
	RegEsBase
	RegEsLimit
	RegEsAttrib
	RegCsSelector
	RegCsBase
	RegCsLimit
	RegCsAttrib
	RegSsSelector
	RegSsBase
	RegSsLimit
	RegSsAttrib
	RegDsSelector
	RegDsBase
	RegDsLimit
	RegDsAttrib
	RegFsSelector
	RegFsBase
	RegFsLimit
	RegFsAttrib
	RegGsSelector
	RegGsBase
	RegGsLimit
	RegGsAttrib

	RegLdtrSelector
	RegLdtrBase
	RegLdtrLimit
	RegLdtrAttrib
	RegTrSelector
	RegTrBase
	RegTrLimit
	RegTrAttrib

	RegCr0
	RegCr2
	RegCr3
	RegCr4

	RegDr6
	RegDr7

	RegEfer
	RegStar
	RegLstar
	RegCstar
	RegSfmask
	RegIa32FsBase
	RegIa32GsBase
	RegKernelGsBase
	RegSysenterCs
	RegSysenterEsp
	RegSysenterEip
	RegPat
	RegIa32Debugctl // 72

	regCount
)

// storage identifies where a Reg's value actually lives.
type storage int

const (
	StorageTLS storage = iota
	StorageVMCB
)

// backward-compatible unexported aliases used within this package.
const (
	storageTLS  = StorageTLS
	storageVMCB = StorageVMCB
)

// width names the access width of a register, matching the read/write
// family (read8/16/32/64) a dispatch caller must use.
type width int

const (
	w8  width = 1
	w16 width = 2
	w32 width = 4
	w64 width = 8
)

// field describes how to resolve a Reg: either a TLS byte offset or a
// VMCB byte offset plus its access width. This is the const lookup
// table spec.md §9 asks for in place of a hand-written switch: a
// keyed array literal sized by regCount, so every declared Reg has a
// slot. A tag left out of the literal gets the zero field (TLS offset
// 0, width 0); nothing checks for that at init.
type field struct {
	kind   storage
	offset int
	w      width
}

// TLS offsets, bit-exact per spec.md §6.
const (
	tlsRax = 0x800
	tlsRbx = 0x808
	tlsRcx = 0x810
	tlsRdx = 0x818
	tlsRbp = 0x820
	tlsRsi = 0x828
	tlsRdi = 0x830
	tlsR8  = 0x838
	tlsR9  = 0x840
	tlsR10 = 0x848
	tlsR11 = 0x850
	tlsR12 = 0x858
	tlsR13 = 0x860
	tlsR14 = 0x868
	tlsR15 = 0x870
)

var regFields = [regCount]field{
	RegRax: {storageTLS, tlsRax, w64},
	RegRbx: {storageTLS, tlsRbx, w64},
	RegRcx: {storageTLS, tlsRcx, w64},
	RegRdx: {storageTLS, tlsRdx, w64},
	RegRbp: {storageTLS, tlsRbp, w64},
	RegRsi: {storageTLS, tlsRsi, w64},
	RegRdi: {storageTLS, tlsRdi, w64},
	RegR8:  {storageTLS, tlsR8, w64},
	RegR9:  {storageTLS, tlsR9, w64},
	RegR10: {storageTLS, tlsR10, w64},
	RegR11: {storageTLS, tlsR11, w64},
	RegR12: {storageTLS, tlsR12, w64},
	RegR13: {storageTLS, tlsR13, w64},
	RegR14: {storageTLS, tlsR14, w64},
	RegR15: {storageTLS, tlsR15, w64},

	RegRip:    {storageVMCB, offRip, w64},
	RegRsp:    {storageVMCB, offRsp, w64},
	RegRflags: {storageVMCB, offRflags, w64},

	RegGdtrBase:  {storageVMCB, offGdtrBase, w64},
	RegGdtrLimit: {storageVMCB, offGdtrLimit, w32},
	RegIdtrBase:  {storageVMCB, offIdtrBase, w64},
	RegIdtrLimit: {storageVMCB, offIdtrLimit, w32},

	RegEsSelector: {storageVMCB, offEsSelector, w16},
	RegEsBase:     {storageVMCB, offEsBase, w64},
	RegEsLimit:    {storageVMCB, offEsLimit, w32},
	RegEsAttrib:   {storageVMCB, offEsAttrib, w16},
	RegCsSelector: {storageVMCB, offCsSelector, w16},
	RegCsBase:     {storageVMCB, offCsBase, w64},
	RegCsLimit:    {storageVMCB, offCsLimit, w32},
	RegCsAttrib:   {storageVMCB, offCsAttrib, w16},
	RegSsSelector: {storageVMCB, offSsSelector, w16},
	RegSsBase:     {storageVMCB, offSsBase, w64},
	RegSsLimit:    {storageVMCB, offSsLimit, w32},
	RegSsAttrib:   {storageVMCB, offSsAttrib, w16},
	RegDsSelector: {storageVMCB, offDsSelector, w16},
	RegDsBase:     {storageVMCB, offDsBase, w64},
	RegDsLimit:    {storageVMCB, offDsLimit, w32},
	RegDsAttrib:   {storageVMCB, offDsAttrib, w16},
	RegFsSelector: {storageVMCB, offFsSelector, w16},
	RegFsBase:     {storageVMCB, offFsBase, w64},
	RegFsLimit:    {storageVMCB, offFsLimit, w32},
	RegFsAttrib:   {storageVMCB, offFsAttrib, w16},
	RegGsSelector: {storageVMCB, offGsSelector, w16},
	RegGsBase:     {storageVMCB, offGsBase, w64},
	RegGsLimit:    {storageVMCB, offGsLimit, w32},
	RegGsAttrib:   {storageVMCB, offGsAttrib, w16},

	RegLdtrSelector: {storageVMCB, offLdtrSelector, w16},
	RegLdtrBase:     {storageVMCB, offLdtrBase, w64},
	RegLdtrLimit:    {storageVMCB, offLdtrLimit, w32},
	RegLdtrAttrib:   {storageVMCB, offLdtrAttrib, w16},
	RegTrSelector:   {storageVMCB, offTrSelector, w16},
	RegTrBase:       {storageVMCB, offTrBase, w64},
	RegTrLimit:      {storageVMCB, offTrLimit, w32},
	RegTrAttrib:     {storageVMCB, offTrAttrib, w16},

	RegCr0: {storageVMCB, offCr0, w64},
	RegCr2: {storageVMCB, offCr2, w64},
	RegCr3: {storageVMCB, offCr3, w64},
	RegCr4: {storageVMCB, offCr4, w64},

	RegDr6: {storageVMCB, offDr6, w64},
	RegDr7: {storageVMCB, offDr7, w64},

	RegEfer:         {storageVMCB, offEfer, w64},
	RegStar:         {storageVMCB, offStar, w64},
	RegLstar:        {storageVMCB, offLstar, w64},
	RegCstar:        {storageVMCB, offCstar, w64},
	RegSfmask:       {storageVMCB, offSfmask, w64},
	RegIa32FsBase:   {storageVMCB, offIa32FsBase, w64},
	RegIa32GsBase:   {storageVMCB, offIa32GsBase, w64},
	RegKernelGsBase: {storageVMCB, offKernelGsBase, w64},
	RegSysenterCs:   {storageVMCB, offSysenterCs, w64},
	RegSysenterEsp:  {storageVMCB, offSysenterEsp, w64},
	RegSysenterEip:  {storageVMCB, offSysenterEip, w64},
	RegPat:          {storageVMCB, offPat, w64},
	RegIa32Debugctl: {storageVMCB, offDebugctl, w64},
}

// ErrUnknownReg is returned for a Reg value with no table entry.
var ErrUnknownReg = fmt.Errorf("vmcb: unknown register tag")

func lookup(r Reg) (field, error) {
	if r < 0 || r >= regCount {
		return field{}, ErrUnknownReg
	}
	return regFields[r], nil
}

// RegLocation resolves reg to its storage kind, byte offset, and
// access width in bytes. It is the public face of the lookup table for
// callers outside this package (the vps and dispatch packages).
func RegLocation(r Reg) (kind storage, offset int, widthBytes int, err error) {
	f, err := lookup(r)
	if err != nil {
		return 0, 0, 0, err
	}
	return f.kind, f.offset, int(f.w), nil
}
