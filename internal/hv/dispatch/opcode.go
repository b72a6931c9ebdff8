// Package dispatch implements SyscallDispatch: decoding the 64-bit
// syscall opcode word, the six-step validation contract, and routing
// to the VPS subsystem. Routing is a family check (only the VPS family
// is routed) followed by a switch on the opcode index within that
// family; there is no registered handler table.
package dispatch

// Signature is the required top 16 bits of every opcode word.
const Signature uint64 = 0x6642

// Family names the opcode family occupying bits 31:16.
type Family uint16

const (
	FamilyControl Family = iota
	FamilyHandle
	FamilyDebug
	FamilyCallback
	FamilyVM
	FamilyVP
	FamilyVPS
	FamilyIntrinsic
	FamilyMem
)

// Index names the opcode index occupying bits 15:0, within a family.
type Index uint16

// VPS family indices.
const (
	VpsCreate Index = iota
	VpsDestroy
	VpsInitAsRoot
	VpsRead8
	VpsRead16
	VpsRead32
	VpsRead64
	VpsWrite8
	VpsWrite16
	VpsWrite32
	VpsWrite64
	VpsReadReg
	VpsWriteReg
	VpsRun
	VpsRunCurrent
	VpsAdvanceIP
	VpsAdvanceIPAndRunCurrent
	VpsPromote
	VpsClear
)

// HANDLE family indices.
const (
	HandleOpen Index = iota
)

// TLS offsets outside the GPR block: the currently-active VPS a
// run_current/advance_ip_and_run_current call targets, and the PP's
// scheduling thread id. Bit-exact per spec.md §6.
const (
	TLSActiveVPS = 0xFF0
	TLSThreadID  = 0xFF8
)

// Opcode is a decoded syscall word.
type Opcode struct {
	Signature uint16
	Flags     uint16
	Family    Family
	Index     Index
}

// Decode splits a 64-bit opcode word into its four fields without
// validating any of them; validation is Decode's caller's job
// (the dispatch contract's steps 1-2).
func Decode(word uint64) Opcode {
	return Opcode{
		Signature: uint16(word >> 48),
		Flags:     uint16(word >> 32),
		Family:    Family(uint16(word >> 16)),
		Index:     Index(uint16(word)),
	}
}

// BfSpecID1Mask is the version bit open_handle requires set.
const BfSpecID1Mask = 0x2
