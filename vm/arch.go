package vm

// Extension is a bitset of architectural features an instruction requires.
// Bit positions 0-25 mirror the misa letter assignments so runtime misa
// writes can be checked against the same mask.
type Extension uint64

const (
	ExtA Extension = 1 << iota // atomics
	ExtB                       // bit manipulation
	ExtC                       // compressed
	ExtD                       // double float
	ExtE                       // embedded register file
	ExtF                       // single float
	ExtG
	ExtH // hypervisor
	ExtI // base integer
	ExtJ
	ExtK // crypto
	ExtL
	ExtM // multiply/divide
	ExtN // user interrupts
	ExtO
	ExtP // packed SIMD
	ExtQ
	ExtR
	ExtS // supervisor mode
	ExtT
	ExtU // user mode
	ExtV // vector
	ExtW
	ExtX
	ExtY
	ExtZ
)

// Sub-extensions without misa letters occupy the bits above 'Z'
const (
	ExtZifencei Extension = 1 << (26 + iota)
	ExtZicsr
	ExtZicond
	ExtZicbom
	ExtZicboz
	ExtZfhmin
	ExtZfinx
	ExtSvinval
)

// misaLetterMask covers the single-letter extensions held in misa
const misaLetterMask Extension = (1 << 26) - 1

// ExtensionFromLetter maps a misa letter to its Extension bit
func ExtensionFromLetter(letter byte) (Extension, bool) {
	if letter < 'A' || letter > 'Z' {
		return 0, false
	}
	return 1 << (letter - 'A'), true
}

// Has reports whether all bits of want are present
func (e Extension) Has(want Extension) bool {
	return e&want == want
}

// Mode is a hart privilege mode. U, S and M are numbered 0, 1, 2 in
// privilege order; Base returns the architectural two-bit encoding
// (U=0, S=1, M=3). The virtual and debug modes extend beyond M.
type Mode int

const (
	ModeU Mode = iota
	ModeS      // HS when the hypervisor extension is on
	ModeM
	ModeVS
	ModeVU
	ModeDebug
)

// Virtual reports whether the mode executes with the virtualisation bit set
func (m Mode) Virtual() bool {
	return m == ModeVS || m == ModeVU
}

// Base returns the architectural two-bit privilege encoding
func (m Mode) Base() uint64 {
	switch m {
	case ModeU, ModeVU:
		return 0
	case ModeS, ModeVS:
		return 1
	case ModeM, ModeDebug:
		return 3
	}
	return 0
}

func (m Mode) String() string {
	switch m {
	case ModeU:
		return "U"
	case ModeS:
		return "S"
	case ModeM:
		return "M"
	case ModeVS:
		return "VS"
	case ModeVU:
		return "VU"
	case ModeDebug:
		return "Debug"
	}
	return "?"
}

// Disable reasons: a hart with a non-zero disable mask does not fetch
type Disable uint32

const (
	DisableWFI Disable = 1 << iota
	DisableReset
	DisableDebug
	DisableReservation
	DisableCustom
)

// AtomicCode identifies the active atomic phase so an external bus model
// can observe and arbitrate it
type AtomicCode int

const (
	AtomicNone AtomicCode = iota
	AtomicSwap
	AtomicAdd
	AtomicAnd
	AtomicOr
	AtomicXor
	AtomicMin
	AtomicMax
	AtomicMinU
	AtomicMaxU
	AtomicLR
	AtomicSC
)
