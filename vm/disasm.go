package vm

import (
	"fmt"
	"strings"
)

// opNames maps operation tags to their base mnemonics. Width and format
// suffixes are appended by Disassemble from the operand descriptors.
var opNames = map[Operation]string{
	OpLUI: "lui", OpAUIPC: "auipc", OpJAL: "jal", OpJALR: "jalr",
	OpBEQ: "beq", OpBNE: "bne", OpBLT: "blt", OpBGE: "bge",
	OpBLTU: "bltu", OpBGEU: "bgeu",
	OpLB: "lb", OpLH: "lh", OpLW: "lw", OpLD: "ld",
	OpLBU: "lbu", OpLHU: "lhu", OpLWU: "lwu",
	OpSB: "sb", OpSH: "sh", OpSW: "sw", OpSD: "sd",
	OpADDI: "addi", OpSLTI: "slti", OpSLTIU: "sltiu", OpXORI: "xori",
	OpORI: "ori", OpANDI: "andi", OpSLLI: "slli", OpSRLI: "srli", OpSRAI: "srai",
	OpADD: "add", OpSUB: "sub", OpSLL: "sll", OpSLT: "slt", OpSLTU: "sltu",
	OpXOR: "xor", OpSRL: "srl", OpSRA: "sra", OpOR: "or", OpAND: "and",
	OpADDIW: "addiw", OpSLLIW: "slliw", OpSRLIW: "srliw", OpSRAIW: "sraiw",
	OpADDW: "addw", OpSUBW: "subw", OpSLLW: "sllw", OpSRLW: "srlw", OpSRAW: "sraw",
	OpFENCE: "fence", OpFENCEI: "fence.i", OpECALL: "ecall", OpEBREAK: "ebreak",
	OpCSRRW: "csrrw", OpCSRRS: "csrrs", OpCSRRC: "csrrc",
	OpCSRRWI: "csrrwi", OpCSRRSI: "csrrsi", OpCSRRCI: "csrrci",
	OpMRET: "mret", OpSRET: "sret", OpMNRET: "mnret", OpDRET: "dret", OpWFI: "wfi",
	OpSFENCEVMA: "sfence.vma", OpSINVALVMA: "sinval.vma",
	OpSFENCEWINVAL: "sfence.w.inval", OpSFENCEINVALIR: "sfence.inval.ir",
	OpHFENCEVVMA: "hfence.vvma", OpHFENCEGVMA: "hfence.gvma",
	OpMUL: "mul", OpMULH: "mulh", OpMULHSU: "mulhsu", OpMULHU: "mulhu",
	OpDIV: "div", OpDIVU: "divu", OpREM: "rem", OpREMU: "remu",
	OpMULW: "mulw", OpDIVW: "divw", OpDIVUW: "divuw", OpREMW: "remw", OpREMUW: "remuw",
	OpLR: "lr", OpSC: "sc", OpAMOSWAP: "amoswap", OpAMOADD: "amoadd",
	OpAMOXOR: "amoxor", OpAMOAND: "amoand", OpAMOOR: "amoor",
	OpAMOMIN: "amomin", OpAMOMAX: "amomax", OpAMOMINU: "amominu", OpAMOMAXU: "amomaxu",
	OpCZEROEQZ: "czero.eqz", OpCZERONEZ: "czero.nez",
	OpCBOCLEAN: "cbo.clean", OpCBOFLUSH: "cbo.flush",
	OpCBOINVAL: "cbo.inval", OpCBOZERO: "cbo.zero",
	OpFLW: "flw", OpFLD: "fld", OpFSW: "fsw", OpFSD: "fsd",
	OpFADD: "fadd", OpFSUB: "fsub", OpFMUL: "fmul", OpFDIV: "fdiv", OpFSQRT: "fsqrt",
	OpFSGNJ: "fsgnj", OpFSGNJN: "fsgnjn", OpFSGNJX: "fsgnjx",
	OpFMIN: "fmin", OpFMAX: "fmax",
	OpFMADD: "fmadd", OpFMSUB: "fmsub", OpFNMSUB: "fnmsub", OpFNMADD: "fnmadd",
	OpFCVTFI: "fcvt", OpFCVTIF: "fcvt", OpFCVTFF: "fcvt",
	OpFMVFX: "fmv", OpFMVXF: "fmv",
	OpFEQ: "feq", OpFLT: "flt", OpFLE: "fle", OpFCLASS: "fclass",
	OpVSETVLI: "vsetvli", OpVSETIVLI: "vsetivli", OpVSETVL: "vsetvl",
	OpVLE: "vle", OpVSE: "vse", OpVLSE: "vlse", OpVSSE: "vsse",
	OpVLXE: "vlxe", OpVSXE: "vsxe", OpVLEFF: "vleff",
	OpVLRE: "vlre", OpVSRE: "vsre", OpVLM: "vlm.v", OpVSM: "vsm.v",
	OpVADD: "vadd", OpVSUB: "vsub", OpVRSUB: "vrsub",
	OpVAND: "vand", OpVOR: "vor", OpVXOR: "vxor",
	OpVSLL: "vsll", OpVSRL: "vsrl", OpVSRA: "vsra",
	OpVMINU: "vminu", OpVMIN: "vmin", OpVMAXU: "vmaxu", OpVMAX: "vmax",
	OpVMULHU: "vmulhu", OpVMUL: "vmul", OpVMULH: "vmulh",
	OpVDIVU: "vdivu", OpVDIV: "vdiv", OpVREMU: "vremu", OpVREM: "vrem",
	OpVMACC: "vmacc", OpVNMSAC: "vnmsac", OpVMADD: "vmadd", OpVNMSUB: "vnmsub",
	OpVWADDU: "vwaddu", OpVWADD: "vwadd", OpVWSUBU: "vwsubu", OpVWSUB: "vwsub",
	OpVWMUL: "vwmul", OpVWMULU: "vwmulu",
	OpVNSRL: "vnsrl", OpVNSRA: "vnsra",
	OpVMVV: "vmv.v", OpVMVXS: "vmv.x.s", OpVMVSX: "vmv.s.x", OpVMERGE: "vmerge",
	OpVMSEQ: "vmseq", OpVMSNE: "vmsne", OpVMSLTU: "vmsltu", OpVMSLT: "vmslt",
	OpVMSLEU: "vmsleu", OpVMSLE: "vmsle", OpVMSGTU: "vmsgtu", OpVMSGT: "vmsgt",
	OpVMAND: "vmand.mm", OpVMNAND: "vmnand.mm", OpVMANDN: "vmandn.mm",
	OpVMXOR: "vmxor.mm", OpVMOR: "vmor.mm", OpVMNOR: "vmnor.mm",
	OpVMORN: "vmorn.mm", OpVMXNOR: "vmxnor.mm",
	OpVCPOP: "vcpop.m", OpVFIRST: "vfirst.m",
	OpVREDSUM: "vredsum", OpVREDAND: "vredand", OpVREDOR: "vredor",
	OpVREDXOR: "vredxor", OpVREDMINU: "vredminu", OpVREDMIN: "vredmin",
	OpVREDMAXU: "vredmaxu", OpVREDMAX: "vredmax",
	OpVSADDU: "vsaddu", OpVSADD: "vsadd", OpVSSUBU: "vssubu", OpVSSUB: "vssub",
	OpVAADDU: "vaaddu", OpVAADD: "vaadd", OpVASUBU: "vasubu", OpVASUB: "vasub",
	OpVSSRL: "vssrl", OpVSSRA: "vssra",
	OpVSLIDEUP: "vslideup", OpVSLIDEDOWN: "vslidedown",
	OpVSLIDE1UP: "vslide1up", OpVSLIDE1DOWN: "vslide1down",
	OpVRGATHER: "vrgather", OpVCOMPRESS: "vcompress.vm",
	OpVFADD: "vfadd", OpVFSUB: "vfsub", OpVFRSUB: "vfrsub",
	OpVFMUL: "vfmul", OpVFDIV: "vfdiv", OpVFRDIV: "vfrdiv", OpVFSQRT: "vfsqrt.v",
	OpVFMIN: "vfmin", OpVFMAX: "vfmax",
	OpVFMACC: "vfmacc", OpVFNMACC: "vfnmacc",
	OpVFSGNJ: "vfsgnj", OpVFSGNJN: "vfsgnjn", OpVFSGNJX: "vfsgnjx",
	OpVFREDOSUM: "vfredosum", OpVFREDUSUM: "vfredusum",
	OpVFREDMIN: "vfredmin", OpVFREDMAX: "vfredmax",
	OpVFMVFS: "vfmv.f.s", OpVFMVSF: "vfmv.s.f",
	OpVFRECE7: "vfrec7.v", OpVFRSQRTE7: "vfrsqrt7.v",
}

func (op Operation) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	if op == OpLast {
		return "<illegal>"
	}
	return fmt.Sprintf("op(%d)", uint16(op))
}

// regName formats an operand for disassembly
func regName(r RegDesc) string {
	switch r.Class {
	case RegX:
		return fmt.Sprintf("x%d", r.Index)
	case RegF:
		return fmt.Sprintf("f%d", r.Index)
	case RegV:
		return fmt.Sprintf("v%d", r.Index)
	}
	return ""
}

// fpSuffix picks the format letter from an operand width
func fpSuffix(bits uint16) string {
	switch bits {
	case 16:
		return ".h"
	case 32:
		return ".s"
	case 64:
		return ".d"
	}
	return ""
}

// Disassemble renders a decoded instruction as assembly text
func Disassemble(info *InstructionInfo) string {
	name := info.Op.String()
	if info.Op == OpLast {
		return fmt.Sprintf(".word 0x%08X", info.Raw)
	}

	var operands []string
	add := func(s string) { operands = append(operands, s) }

	switch info.Op {
	case OpLUI, OpAUIPC:
		add(regName(info.Rd))
		add(fmt.Sprintf("0x%X", uint64(info.Imm)>>12&0xFFFFF))
	case OpJAL:
		add(regName(info.Rd))
		add(fmt.Sprintf("%d", info.Imm))
	case OpJALR:
		add(regName(info.Rd))
		add(fmt.Sprintf("%d(%s)", info.Imm, regName(info.Rs1)))
	case OpBEQ, OpBNE, OpBLT, OpBGE, OpBLTU, OpBGEU:
		add(regName(info.Rs1))
		add(regName(info.Rs2))
		add(fmt.Sprintf("%d", info.Imm))
	case OpLB, OpLH, OpLW, OpLD, OpLBU, OpLHU, OpLWU, OpFLW, OpFLD:
		add(regName(info.Rd))
		add(fmt.Sprintf("%d(%s)", info.Imm, regName(info.Rs1)))
	case OpSB, OpSH, OpSW, OpSD, OpFSW, OpFSD:
		add(regName(info.Rs2))
		add(fmt.Sprintf("%d(%s)", info.Imm, regName(info.Rs1)))
	case OpADDI, OpSLTI, OpSLTIU, OpXORI, OpORI, OpANDI, OpSLLI, OpSRLI, OpSRAI,
		OpADDIW, OpSLLIW, OpSRLIW, OpSRAIW:
		add(regName(info.Rd))
		add(regName(info.Rs1))
		add(fmt.Sprintf("%d", info.Imm))
	case OpADD, OpSUB, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpSRA, OpOR, OpAND,
		OpADDW, OpSUBW, OpSLLW, OpSRLW, OpSRAW,
		OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU,
		OpMULW, OpDIVW, OpDIVUW, OpREMW, OpREMUW, OpCZEROEQZ, OpCZERONEZ:
		add(regName(info.Rd))
		add(regName(info.Rs1))
		add(regName(info.Rs2))
	case OpCSRRW, OpCSRRS, OpCSRRC:
		add(regName(info.Rd))
		add(fmt.Sprintf("0x%03X", info.CSR))
		add(regName(info.Rs1))
	case OpCSRRWI, OpCSRRSI, OpCSRRCI:
		add(regName(info.Rd))
		add(fmt.Sprintf("0x%03X", info.CSR))
		add(fmt.Sprintf("%d", info.Imm))
	case OpECALL, OpEBREAK, OpMRET, OpSRET, OpMNRET, OpDRET, OpWFI,
		OpFENCE, OpFENCEI, OpSFENCEWINVAL, OpSFENCEINVALIR:
	case OpSFENCEVMA, OpSINVALVMA, OpHFENCEVVMA, OpHFENCEGVMA:
		add(regName(info.Rs1))
		add(regName(info.Rs2))
	case OpLR:
		name += amoWidthSuffix(info) + aqrlSuffix(info)
		add(regName(info.Rd))
		add(fmt.Sprintf("(%s)", regName(info.Rs1)))
	case OpSC, OpAMOSWAP, OpAMOADD, OpAMOXOR, OpAMOAND, OpAMOOR,
		OpAMOMIN, OpAMOMAX, OpAMOMINU, OpAMOMAXU:
		name += amoWidthSuffix(info) + aqrlSuffix(info)
		add(regName(info.Rd))
		add(regName(info.Rs2))
		add(fmt.Sprintf("(%s)", regName(info.Rs1)))
	case OpCBOCLEAN, OpCBOFLUSH, OpCBOINVAL, OpCBOZERO:
		add(fmt.Sprintf("(%s)", regName(info.Rs1)))
	case OpFADD, OpFSUB, OpFMUL, OpFDIV, OpFSGNJ, OpFSGNJN, OpFSGNJX,
		OpFMIN, OpFMAX:
		name += fpSuffix(info.Rd.Bits)
		add(regName(info.Rd))
		add(regName(info.Rs1))
		add(regName(info.Rs2))
	case OpFSQRT:
		name += fpSuffix(info.Rd.Bits)
		add(regName(info.Rd))
		add(regName(info.Rs1))
	case OpFMADD, OpFMSUB, OpFNMSUB, OpFNMADD:
		name += fpSuffix(info.Rd.Bits)
		add(regName(info.Rd))
		add(regName(info.Rs1))
		add(regName(info.Rs2))
		add(regName(info.Rs3))
	case OpFEQ, OpFLT, OpFLE:
		name += fpSuffix(info.Rs1.Bits)
		add(regName(info.Rd))
		add(regName(info.Rs1))
		add(regName(info.Rs2))
	case OpFCLASS:
		name += fpSuffix(info.Rs1.Bits)
		add(regName(info.Rd))
		add(regName(info.Rs1))
	case OpFCVTIF, OpFCVTFI, OpFCVTFF, OpFMVXF, OpFMVFX:
		add(regName(info.Rd))
		add(regName(info.Rs1))
	case OpVSETVLI, OpVSETIVLI, OpVSETVL:
		add(regName(info.Rd))
		if info.Op == OpVSETIVLI {
			add(fmt.Sprintf("%d", info.Nf))
		} else {
			add(regName(info.Rs1))
		}
		if info.Op == OpVSETVL {
			add(regName(info.Rs2))
		} else {
			add(fmt.Sprintf("0x%X", uint64(info.Imm)))
		}
	case OpVLE, OpVLSE, OpVLXE, OpVLEFF, OpVSE, OpVSSE, OpVSXE, OpVLRE, OpVSRE,
		OpVLM, OpVSM:
		if info.Op != OpVLM && info.Op != OpVSM {
			name += fmt.Sprintf("%d.v", info.MemBits)
		}
		add(regName(info.Rd))
		add(fmt.Sprintf("(%s)", regName(info.Rs1)))
		if info.Op == OpVLSE || info.Op == OpVSSE || info.Op == OpVLXE || info.Op == OpVSXE {
			add(regName(info.Rs2))
		}
	default:
		// vector arithmetic: suffix from the operand category
		name += vCategorySuffix(info)
		if !info.Rd.IsNone() {
			add(regName(info.Rd))
		}
		if !info.Rs2.IsNone() {
			add(regName(info.Rs2))
		}
		switch {
		case !info.Rs1.IsNone():
			add(regName(info.Rs1))
		case info.Shape.Src1 == VOperandImm:
			add(fmt.Sprintf("%d", info.Imm))
		}
	}

	if info.Masked {
		add("v0.t")
	}
	if len(operands) == 0 {
		return name
	}
	return name + " " + strings.Join(operands, ", ")
}

func amoWidthSuffix(info *InstructionInfo) string {
	if info.MemBits == 32 {
		return ".w"
	}
	return ".d"
}

func aqrlSuffix(info *InstructionInfo) string {
	switch {
	case info.Aq && info.Rl:
		return ".aqrl"
	case info.Aq:
		return ".aq"
	case info.Rl:
		return ".rl"
	}
	return ""
}

// vCategorySuffix derives .vv/.vx/.vi/.vf/.vs from the shape
func vCategorySuffix(info *InstructionInfo) string {
	if info.Shape.Dst == VOperandNone && info.Shape.Src2 == VOperandNone {
		return ""
	}
	if info.Shape.Reduction {
		return ".vs"
	}
	switch info.Shape.Src1 {
	case VOperandVector, VOperandMaskReg:
		return ".vv"
	case VOperandScalarX:
		return ".vx"
	case VOperandScalarF:
		return ".vf"
	case VOperandImm:
		return ".vi"
	}
	return ".v"
}
