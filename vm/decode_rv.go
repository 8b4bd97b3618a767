package vm

// Instruction field extraction helpers. RISC-V immediates are scattered
// across the word; each helper reassembles and sign-extends one format.

func fldRd(w uint32) uint32  { return (w >> 7) & 0x1F }
func fldRs1(w uint32) uint32 { return (w >> 15) & 0x1F }
func fldRs2(w uint32) uint32 { return (w >> 20) & 0x1F }
func fldRs3(w uint32) uint32 { return (w >> 27) & 0x1F }
func fldF3(w uint32) uint32  { return (w >> 12) & 0x7 }
func fldF7(w uint32) uint32  { return (w >> 25) & 0x7F }

func immI(w uint32) int64 { return int64(int32(w)) >> 20 }
func immS(w uint32) int64 {
	return int64(int32(w&0xFE000000))>>20 | int64((w>>7)&0x1F)
}
func immB(w uint32) int64 {
	imm := int64(int32(w&0x80000000))>>19 |
		int64((w>>25)&0x3F)<<5 |
		int64((w>>8)&0xF)<<1 |
		int64((w>>7)&0x1)<<11
	return imm
}
func immU(w uint32) int64 { return int64(int32(w & 0xFFFFF000)) }
func immJ(w uint32) int64 {
	imm := int64(int32(w&0x80000000))>>11 |
		int64((w>>21)&0x3FF)<<1 |
		int64((w>>20)&0x1)<<11 |
		int64((w>>12)&0xFF)<<12
	return imm
}

// decode32 handles the 32-bit encodings
func decode32(v *Variant, pc uint64, w uint32) InstructionInfo {
	info := InstructionInfo{PC: pc, Raw: w, Bytes: 4, Op: OpLast, Arch: ExtI}
	xbits := uint16(v.XLEN)

	switch w & 0x7F {
	case 0x37: // LUI
		info.Op = OpLUI
		info.Rd = xd(fldRd(w), xbits)
		info.Imm = immU(w)

	case 0x17: // AUIPC
		info.Op = OpAUIPC
		info.Rd = xd(fldRd(w), xbits)
		info.Imm = immU(w)

	case 0x6F: // JAL
		info.Op = OpJAL
		info.Rd = xd(fldRd(w), xbits)
		info.Imm = immJ(w)

	case 0x67: // JALR
		if fldF3(w) == 0 {
			info.Op = OpJALR
			info.Rd = xd(fldRd(w), xbits)
			info.Rs1 = xd(fldRs1(w), xbits)
			info.Imm = immI(w)
		}

	case 0x63: // BRANCH
		ops := [8]Operation{OpBEQ, OpBNE, OpLast, OpLast, OpBLT, OpBGE, OpBLTU, OpBGEU}
		info.Op = ops[fldF3(w)]
		info.Rs1 = xd(fldRs1(w), xbits)
		info.Rs2 = xd(fldRs2(w), xbits)
		info.Imm = immB(w)

	case 0x03: // LOAD
		info.Rd = xd(fldRd(w), xbits)
		info.Rs1 = xd(fldRs1(w), xbits)
		info.Imm = immI(w)
		switch fldF3(w) {
		case 0:
			info.Op, info.MemBits = OpLB, 8
		case 1:
			info.Op, info.MemBits = OpLH, 16
		case 2:
			info.Op, info.MemBits = OpLW, 32
		case 3:
			if v.XLEN == 64 {
				info.Op, info.MemBits = OpLD, 64
			}
		case 4:
			info.Op, info.MemBits = OpLBU, 8
		case 5:
			info.Op, info.MemBits = OpLHU, 16
		case 6:
			if v.XLEN == 64 {
				info.Op, info.MemBits = OpLWU, 32
			}
		}

	case 0x23: // STORE
		info.Rs1 = xd(fldRs1(w), xbits)
		info.Rs2 = xd(fldRs2(w), xbits)
		info.Imm = immS(w)
		switch fldF3(w) {
		case 0:
			info.Op, info.MemBits = OpSB, 8
		case 1:
			info.Op, info.MemBits = OpSH, 16
		case 2:
			info.Op, info.MemBits = OpSW, 32
		case 3:
			if v.XLEN == 64 {
				info.Op, info.MemBits = OpSD, 64
			}
		}

	case 0x13: // OP-IMM
		info.Rd = xd(fldRd(w), xbits)
		info.Rs1 = xd(fldRs1(w), xbits)
		info.Imm = immI(w)
		shamtMask := uint32(0x1F)
		if v.XLEN == 64 {
			shamtMask = 0x3F
		}
		switch fldF3(w) {
		case 0:
			info.Op = OpADDI
		case 1:
			if w>>20&^shamtMask == 0 {
				info.Op = OpSLLI
				info.Imm = int64(w >> 20 & shamtMask)
			}
		case 2:
			info.Op = OpSLTI
		case 3:
			info.Op = OpSLTIU
		case 4:
			info.Op = OpXORI
		case 5:
			top := w >> 20 &^ shamtMask
			if top == 0 {
				info.Op = OpSRLI
				info.Imm = int64(w >> 20 & shamtMask)
			} else if top == 0x400 {
				info.Op = OpSRAI
				info.Imm = int64(w >> 20 & shamtMask)
			}
		case 6:
			info.Op = OpORI
		case 7:
			info.Op = OpANDI
		}

	case 0x1B: // OP-IMM-32
		if v.XLEN != 64 {
			break
		}
		info.Rd = xd(fldRd(w), xbits)
		info.Rs1 = xd(fldRs1(w), xbits)
		switch fldF3(w) {
		case 0:
			info.Op = OpADDIW
			info.Imm = immI(w)
		case 1:
			if fldF7(w) == 0 {
				info.Op = OpSLLIW
				info.Imm = int64(fldRs2(w))
			}
		case 5:
			switch fldF7(w) {
			case 0x00:
				info.Op = OpSRLIW
				info.Imm = int64(fldRs2(w))
			case 0x20:
				info.Op = OpSRAIW
				info.Imm = int64(fldRs2(w))
			}
		}

	case 0x33: // OP
		info.Rd = xd(fldRd(w), xbits)
		info.Rs1 = xd(fldRs1(w), xbits)
		info.Rs2 = xd(fldRs2(w), xbits)
		switch fldF7(w) {
		case 0x00:
			ops := [8]Operation{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}
			info.Op = ops[fldF3(w)]
		case 0x20:
			switch fldF3(w) {
			case 0:
				info.Op = OpSUB
			case 5:
				info.Op = OpSRA
			}
		case 0x01:
			ops := [8]Operation{OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU}
			info.Op = ops[fldF3(w)]
			info.Arch = ExtM
		case 0x07:
			switch fldF3(w) {
			case 5:
				info.Op, info.Arch = OpCZEROEQZ, ExtZicond
			case 7:
				info.Op, info.Arch = OpCZERONEZ, ExtZicond
			}
		}

	case 0x3B: // OP-32
		if v.XLEN != 64 {
			break
		}
		info.Rd = xd(fldRd(w), xbits)
		info.Rs1 = xd(fldRs1(w), xbits)
		info.Rs2 = xd(fldRs2(w), xbits)
		switch fldF7(w) {
		case 0x00:
			switch fldF3(w) {
			case 0:
				info.Op = OpADDW
			case 1:
				info.Op = OpSLLW
			case 5:
				info.Op = OpSRLW
			}
		case 0x20:
			switch fldF3(w) {
			case 0:
				info.Op = OpSUBW
			case 5:
				info.Op = OpSRAW
			}
		case 0x01:
			switch fldF3(w) {
			case 0:
				info.Op = OpMULW
			case 4:
				info.Op = OpDIVW
			case 5:
				info.Op = OpDIVUW
			case 6:
				info.Op = OpREMW
			case 7:
				info.Op = OpREMUW
			}
			info.Arch = ExtM
		}

	case 0x0F: // MISC-MEM
		switch fldF3(w) {
		case 0:
			info.Op = OpFENCE
			info.Succ = uint8(w >> 20 & 0xF)
			info.Pred = uint8(w >> 24 & 0xF)
		case 1:
			info.Op = OpFENCEI
			info.Arch = ExtZifencei
		case 2: // CBO.* share the encoding space with cbo imm12 selectors
			switch w >> 20 {
			case 0:
				info.Op, info.Arch = OpCBOINVAL, ExtZicbom
			case 1:
				info.Op, info.Arch = OpCBOCLEAN, ExtZicbom
			case 2:
				info.Op, info.Arch = OpCBOFLUSH, ExtZicbom
			case 4:
				info.Op, info.Arch = OpCBOZERO, ExtZicboz
			}
			info.Rs1 = xd(fldRs1(w), xbits)
		}

	case 0x2F: // AMO
		f3 := fldF3(w)
		if f3 != 2 && f3 != 3 {
			break
		}
		if f3 == 3 && v.XLEN != 64 {
			break
		}
		info.Arch = ExtA
		info.MemBits = 32 << (f3 - 2)
		info.Rd = xd(fldRd(w), xbits)
		info.Rs1 = xd(fldRs1(w), xbits)
		info.Rs2 = xd(fldRs2(w), xbits)
		info.Aq = w>>26&1 != 0
		info.Rl = w>>25&1 != 0
		switch w >> 27 {
		case 0x02:
			if fldRs2(w) == 0 {
				info.Op = OpLR
			}
		case 0x03:
			info.Op = OpSC
		case 0x01:
			info.Op = OpAMOSWAP
		case 0x00:
			info.Op = OpAMOADD
		case 0x04:
			info.Op = OpAMOXOR
		case 0x0C:
			info.Op = OpAMOAND
		case 0x08:
			info.Op = OpAMOOR
		case 0x10:
			info.Op = OpAMOMIN
		case 0x14:
			info.Op = OpAMOMAX
		case 0x18:
			info.Op = OpAMOMINU
		case 0x1C:
			info.Op = OpAMOMAXU
		}

	case 0x73: // SYSTEM
		decodeSystem(v, w, &info)

	case 0x07: // LOAD-FP (scalar or vector)
		decodeLoadFP(v, w, &info)

	case 0x27: // STORE-FP (scalar or vector)
		decodeStoreFP(v, w, &info)

	case 0x53: // OP-FP
		decodeOpFP(v, w, &info)

	case 0x43, 0x47, 0x4B, 0x4F: // FMADD/FMSUB/FNMSUB/FNMADD
		decodeFMA(v, w, &info)

	case 0x57: // OP-V
		decodeOpV(v, w, &info)
	}

	if info.Op == OpLast {
		return illegalInfo(pc, w, 4)
	}
	return info
}

// decodeSystem covers Zicsr, ECALL/EBREAK, returns and fence-family
// privileged instructions
func decodeSystem(v *Variant, w uint32, info *InstructionInfo) {
	xbits := uint16(v.XLEN)
	f3 := fldF3(w)

	if f3 == 0 {
		switch w >> 20 {
		case 0x000:
			if fldRs1(w) == 0 && fldRd(w) == 0 {
				info.Op = OpECALL
			}
		case 0x001:
			if fldRs1(w) == 0 && fldRd(w) == 0 {
				info.Op = OpEBREAK
			}
		case 0x102:
			info.Op, info.Arch = OpSRET, ExtS
		case 0x302:
			info.Op = OpMRET
		case 0x702:
			info.Op = OpMNRET
		case 0x7B2:
			info.Op = OpDRET
		case 0x105:
			if fldRs1(w) == 0 && fldRd(w) == 0 {
				info.Op = OpWFI
			}
		default:
			switch fldF7(w) {
			case 0x09:
				info.Op, info.Arch = OpSFENCEVMA, ExtS
				info.Rs1 = xd(fldRs1(w), xbits)
				info.Rs2 = xd(fldRs2(w), xbits)
			case 0x0B:
				info.Op, info.Arch = OpSINVALVMA, ExtS|ExtSvinval
				info.Rs1 = xd(fldRs1(w), xbits)
				info.Rs2 = xd(fldRs2(w), xbits)
			case 0x0C:
				switch fldRs2(w) {
				case 0:
					info.Op, info.Arch = OpSFENCEWINVAL, ExtS|ExtSvinval
				case 1:
					info.Op, info.Arch = OpSFENCEINVALIR, ExtS|ExtSvinval
				}
			case 0x11:
				info.Op, info.Arch = OpHFENCEVVMA, ExtH
				info.Rs1 = xd(fldRs1(w), xbits)
				info.Rs2 = xd(fldRs2(w), xbits)
			case 0x31:
				info.Op, info.Arch = OpHFENCEGVMA, ExtH
				info.Rs1 = xd(fldRs1(w), xbits)
				info.Rs2 = xd(fldRs2(w), xbits)
			}
		}
		return
	}

	// CSR instructions
	info.Arch = ExtZicsr
	info.CSR = uint16(w >> 20)
	info.Rd = xd(fldRd(w), xbits)
	switch f3 {
	case 1:
		info.Op = OpCSRRW
		info.Rs1 = xd(fldRs1(w), xbits)
	case 2:
		info.Op = OpCSRRS
		info.Rs1 = xd(fldRs1(w), xbits)
	case 3:
		info.Op = OpCSRRC
		info.Rs1 = xd(fldRs1(w), xbits)
	case 5:
		info.Op = OpCSRRWI
		info.Imm = int64(fldRs1(w))
	case 6:
		info.Op = OpCSRRSI
		info.Imm = int64(fldRs1(w))
	case 7:
		info.Op = OpCSRRCI
		info.Imm = int64(fldRs1(w))
	}
}

// fpWidthFromFmt maps the 2-bit fmt field to a width and its arch bits
func fpWidthFromFmt(fmt uint32) (uint16, Extension) {
	switch fmt {
	case 0:
		return 32, ExtF
	case 1:
		return 64, ExtD
	case 2:
		return 16, ExtZfhmin
	}
	return 0, 0 // quad: callers leave the op undecoded, so it traps Illegal
}

func decodeLoadFP(v *Variant, w uint32, info *InstructionInfo) {
	f3 := fldF3(w)
	switch f3 {
	case 1: // reserved scalar width
	case 2:
		info.Op, info.MemBits, info.Arch = OpFLW, 32, ExtF
	case 3:
		info.Op, info.MemBits, info.Arch = OpFLD, 64, ExtD
	default:
		decodeVecLoad(v, w, info)
		return
	}
	xbits := uint16(v.XLEN)
	info.Rd = fd(fldRd(w), uint16(v.FLEN))
	info.Rd.Bits = info.MemBits
	info.Rs1 = xd(fldRs1(w), xbits)
	info.Imm = immI(w)
}

func decodeStoreFP(v *Variant, w uint32, info *InstructionInfo) {
	f3 := fldF3(w)
	switch f3 {
	case 1:
	case 2:
		info.Op, info.MemBits, info.Arch = OpFSW, 32, ExtF
	case 3:
		info.Op, info.MemBits, info.Arch = OpFSD, 64, ExtD
	default:
		decodeVecStore(v, w, info)
		return
	}
	xbits := uint16(v.XLEN)
	info.Rs1 = xd(fldRs1(w), xbits)
	info.Rs2 = fd(fldRs2(w), info.MemBits)
	info.Imm = immS(w)
}

func decodeOpFP(v *Variant, w uint32, info *InstructionInfo) {
	xbits := uint16(v.XLEN)
	bits, arch := fpWidthFromFmt(fldF7(w) & 0x3)
	if bits == 0 {
		return
	}
	info.Arch = arch
	info.Rnd = RoundingMode(fldF3(w))
	rd, rs1, rs2 := fldRd(w), fldRs1(w), fldRs2(w)

	switch fldF7(w) >> 2 {
	case 0x00:
		info.Op = OpFADD
	case 0x01:
		info.Op = OpFSUB
	case 0x02:
		info.Op = OpFMUL
	case 0x03:
		info.Op = OpFDIV
	case 0x0B:
		if rs2 == 0 {
			info.Op = OpFSQRT
		}
	case 0x04:
		info.Rnd = RoundCurrent
		switch fldF3(w) {
		case 0:
			info.Op = OpFSGNJ
		case 1:
			info.Op = OpFSGNJN
		case 2:
			info.Op = OpFSGNJX
		}
	case 0x05:
		info.Rnd = RoundCurrent
		switch fldF3(w) {
		case 0:
			info.Op = OpFMIN
		case 1:
			info.Op = OpFMAX
		}
	case 0x14:
		info.Rnd = RoundCurrent
		switch fldF3(w) {
		case 0:
			info.Op = OpFLE
		case 1:
			info.Op = OpFLT
		case 2:
			info.Op = OpFEQ
		}
		info.Rd = xd(rd, xbits)
		info.Rs1 = fd(rs1, bits)
		info.Rs2 = fd(rs2, bits)
		return
	case 0x18: // FCVT.int.fmt
		if rs2 > 3 || (rs2 > 1 && v.XLEN == 32) {
			return
		}
		info.Op = OpFCVTIF
		info.Rd = xd(rd, [4]uint16{32, 32, 64, 64}[rs2])
		if rs2&1 != 0 {
			info.Rd.Flags |= RegFlagUnsigned
		}
		info.Rs1 = fd(rs1, bits)
		return
	case 0x1A: // FCVT.fmt.int
		if rs2 > 3 || (rs2 > 1 && v.XLEN == 32) {
			return
		}
		info.Op = OpFCVTFI
		info.Rd = fd(rd, bits)
		info.Rs1 = xd(rs1, [4]uint16{32, 32, 64, 64}[rs2])
		if rs2&1 != 0 {
			info.Rs1.Flags |= RegFlagUnsigned
		}
		return
	case 0x08: // FCVT.fmt.fmt
		srcBits, srcArch := fpWidthFromFmt(rs2 & 0x3)
		if srcBits == 0 || srcBits == bits {
			return
		}
		info.Op = OpFCVTFF
		info.Arch = arch | srcArch
		info.Rd = fd(rd, bits)
		info.Rs1 = fd(rs1, srcBits)
		return
	case 0x1C:
		switch fldF3(w) {
		case 0: // FMV.X.fmt
			if rs2 == 0 && bits <= uint16(v.XLEN) {
				info.Op = OpFMVXF
				info.Rd = xd(rd, xbits)
				info.Rs1 = fd(rs1, bits)
				info.Rs1.Flags &^= RegFlagNaNBox // raw bit move
			}
		case 1: // FCLASS
			if rs2 == 0 {
				info.Op = OpFCLASS
				info.Rd = xd(rd, xbits)
				info.Rs1 = fd(rs1, bits)
			}
		}
		return
	case 0x1E: // FMV.fmt.X
		if fldF3(w) == 0 && rs2 == 0 && bits <= uint16(v.XLEN) {
			info.Op = OpFMVFX
			info.Rd = fd(rd, bits)
			info.Rs1 = xd(rs1, xbits)
		}
		return
	}
	if info.Op == OpLast {
		return
	}
	info.Rd = fd(rd, bits)
	info.Rs1 = fd(rs1, bits)
	if info.Op != OpFSQRT {
		info.Rs2 = fd(rs2, bits)
	}
}

func decodeFMA(v *Variant, w uint32, info *InstructionInfo) {
	bits, arch := fpWidthFromFmt(fldF7(w) & 0x3)
	if bits == 0 {
		return
	}
	switch w & 0x7F {
	case 0x43:
		info.Op = OpFMADD
	case 0x47:
		info.Op = OpFMSUB
	case 0x4B:
		info.Op = OpFNMSUB
	case 0x4F:
		info.Op = OpFNMADD
	}
	info.Arch = arch
	info.Rnd = RoundingMode(fldF3(w))
	info.Rd = fd(fldRd(w), bits)
	info.Rs1 = fd(fldRs1(w), bits)
	info.Rs2 = fd(fldRs2(w), bits)
	info.Rs3 = fd(fldRs3(w), bits)
}
