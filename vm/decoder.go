package vm

// Operation tags every instruction the core can execute. The decoder maps
// unrecognised words to OpLast and the dispatcher raises Illegal-Instruction
// for them.
type Operation uint16

const (
	// RV32I/RV64I base
	OpLUI Operation = iota
	OpAUIPC
	OpJAL
	OpJALR
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpLB
	OpLH
	OpLW
	OpLD
	OpLBU
	OpLHU
	OpLWU
	OpSB
	OpSH
	OpSW
	OpSD
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpADDIW
	OpSLLIW
	OpSRLIW
	OpSRAIW
	OpADDW
	OpSUBW
	OpSLLW
	OpSRLW
	OpSRAW
	OpFENCE
	OpFENCEI
	OpECALL
	OpEBREAK

	// Zicsr
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	// Privileged
	OpMRET
	OpSRET
	OpMNRET
	OpDRET
	OpWFI
	OpSFENCEVMA
	OpSINVALVMA
	OpSFENCEWINVAL
	OpSFENCEINVALIR
	OpHFENCEVVMA
	OpHFENCEGVMA

	// M
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	OpMULW
	OpDIVW
	OpDIVUW
	OpREMW
	OpREMUW

	// A
	OpLR
	OpSC
	OpAMOSWAP
	OpAMOADD
	OpAMOXOR
	OpAMOAND
	OpAMOOR
	OpAMOMIN
	OpAMOMAX
	OpAMOMINU
	OpAMOMAXU

	// Zicond
	OpCZEROEQZ
	OpCZERONEZ

	// Zicbom / Zicboz
	OpCBOCLEAN
	OpCBOFLUSH
	OpCBOINVAL
	OpCBOZERO

	// F/D (width carried in the operand descriptors)
	OpFLW
	OpFLD
	OpFSW
	OpFSD
	OpFADD
	OpFSUB
	OpFMUL
	OpFDIV
	OpFSQRT
	OpFSGNJ
	OpFSGNJN
	OpFSGNJX
	OpFMIN
	OpFMAX
	OpFMADD
	OpFMSUB
	OpFNMSUB
	OpFNMADD
	OpFCVTFI  // int -> float
	OpFCVTIF  // float -> int
	OpFCVTFF  // float -> float
	OpFMVFX   // x -> f raw bits
	OpFMVXF   // f -> x raw bits
	OpFEQ
	OpFLT
	OpFLE
	OpFCLASS

	// Vector configuration
	OpVSETVLI
	OpVSETIVLI
	OpVSETVL

	// Vector loads/stores
	OpVLE  // unit-stride load
	OpVSE  // unit-stride store
	OpVLSE // strided load
	OpVSSE // strided store
	OpVLXE // indexed load
	OpVSXE // indexed store
	OpVLEFF // fault-only-first load
	OpVLRE  // whole-register load
	OpVSRE  // whole-register store
	OpVLM   // mask load
	OpVSM   // mask store

	// Vector integer arithmetic
	OpVADD
	OpVSUB
	OpVRSUB
	OpVAND
	OpVOR
	OpVXOR
	OpVSLL
	OpVSRL
	OpVSRA
	OpVMINU
	OpVMIN
	OpVMAXU
	OpVMAX
	OpVMULHU
	OpVMUL
	OpVMULH
	OpVDIVU
	OpVDIV
	OpVREMU
	OpVREM
	OpVMACC
	OpVNMSAC
	OpVMADD
	OpVNMSUB
	OpVWADDU
	OpVWADD
	OpVWSUBU
	OpVWSUB
	OpVWMUL
	OpVWMULU
	OpVNSRL
	OpVNSRA
	OpVMVV // vmv.v.v / .v.x / .v.i per operand class
	OpVMVXS
	OpVMVSX
	OpVMERGE

	// Vector compares producing mask results
	OpVMSEQ
	OpVMSNE
	OpVMSLTU
	OpVMSLT
	OpVMSLEU
	OpVMSLE
	OpVMSGTU
	OpVMSGT

	// Vector mask-register logical
	OpVMAND
	OpVMNAND
	OpVMANDN
	OpVMXOR
	OpVMOR
	OpVMNOR
	OpVMORN
	OpVMXNOR
	OpVCPOP
	OpVFIRST

	// Vector reductions
	OpVREDSUM
	OpVREDAND
	OpVREDOR
	OpVREDXOR
	OpVREDMINU
	OpVREDMIN
	OpVREDMAXU
	OpVREDMAX

	// Vector fixed-point
	OpVSADDU
	OpVSADD
	OpVSSUBU
	OpVSSUB
	OpVAADDU
	OpVAADD
	OpVASUBU
	OpVASUB
	OpVSSRL
	OpVSSRA

	// Vector permutation
	OpVSLIDEUP
	OpVSLIDEDOWN
	OpVSLIDE1UP
	OpVSLIDE1DOWN
	OpVRGATHER
	OpVCOMPRESS

	// Vector floating-point
	OpVFADD
	OpVFSUB
	OpVFRSUB
	OpVFMUL
	OpVFDIV
	OpVFRDIV
	OpVFSQRT
	OpVFMIN
	OpVFMAX
	OpVFMACC
	OpVFNMACC
	OpVFSGNJ
	OpVFSGNJN
	OpVFSGNJX
	OpVFREDOSUM
	OpVFREDUSUM
	OpVFREDMIN
	OpVFREDMAX
	OpVFMVFS
	OpVFMVSF
	OpVFRECE7
	OpVFRSQRTE7

	// Sentinel: no encoding matched
	OpLast
)

// RegClass identifies the register file an operand lives in
type RegClass uint8

const (
	RegNone RegClass = iota
	RegX
	RegF
	RegV
)

// Operand flags
const (
	RegFlagNaNBox   uint8 = 1 << iota // value must be NaN-boxed in FLEN register
	RegFlagUnsigned                   // operand is treated as unsigned
	RegFlagBF16                       // 16-bit view is BFLOAT16
	RegFlagZfinx                      // F value held in the X file
	RegFlagQuiet                      // suppressed in disassembly
)

// RegDesc describes one operand: register class, index, width and modifiers
type RegDesc struct {
	Class RegClass
	Index uint8
	Bits  uint16
	Flags uint8
}

// IsNone reports whether the operand slot is unused
func (r RegDesc) IsNone() bool { return r.Class == RegNone }

func xd(idx uint32, bits uint16) RegDesc { return RegDesc{Class: RegX, Index: uint8(idx), Bits: bits} }
func fd(idx uint32, bits uint16) RegDesc {
	return RegDesc{Class: RegF, Index: uint8(idx), Bits: bits, Flags: RegFlagNaNBox}
}
func vd(idx uint32) RegDesc { return RegDesc{Class: RegV, Index: uint8(idx)} }

// RoundingMode is a static FP rounding mode, or RoundCurrent for dynamic frm
type RoundingMode uint8

const (
	RoundRNE RoundingMode = iota // round to nearest, ties to even
	RoundRTZ                     // toward zero
	RoundRDN                     // toward -inf
	RoundRUP                     // toward +inf
	RoundRMM                     // to nearest, ties to max magnitude
	RoundBad5                    // reserved encoding
	RoundBad6                    // reserved encoding
	RoundCurrent                 // dynamic: read fcsr.frm
	RoundROD                     // round to odd (internal, conversions)
)

// Valid reports whether the encoding names a real rounding mode
func (r RoundingMode) Valid() bool {
	return r <= RoundRMM || r == RoundCurrent || r == RoundROD
}

// InstructionInfo is the decoder's output: one record fully describing a
// fetched instruction. Decoding is pure and never touches hart state.
type InstructionInfo struct {
	PC    uint64
	Raw   uint32
	Bytes uint // 2 or 4

	Op  Operation
	Rd  RegDesc
	Rs1 RegDesc
	Rs2 RegDesc
	Rs3 RegDesc

	Imm int64
	Rnd RoundingMode

	// Masked is set when a vector op takes the v0 mask; MaskReg names it
	Masked  bool
	MaskReg uint8

	MemBits uint16 // access width for loads/stores, or vector EEW
	Aq, Rl  bool
	Pred    uint8 // fence predecessor set (I|O|R|W)
	Succ    uint8 // fence successor set

	CSR uint16

	// Arch is the extension set this encoding requires
	Arch Extension

	// Shape describes vector operand geometry; zero for scalar ops
	Shape VShape

	// Nf is the segment count minus one for vector segment loads/stores
	Nf uint8
}

// Decode translates the instruction word at pc into an InstructionInfo.
// The low 16 bits alone are consulted when they encode a compressed
// instruction. No hart state is read or written.
func Decode(v *Variant, pc uint64, word uint32) InstructionInfo {
	if word&0x3 != 0x3 {
		return decodeCompressed(v, pc, uint16(word))
	}
	return decode32(v, pc, word)
}

// illegalInfo is the decode result for an unmatched encoding
func illegalInfo(pc uint64, word uint32, bytes uint) InstructionInfo {
	return InstructionInfo{PC: pc, Raw: word, Bytes: bytes, Op: OpLast}
}
