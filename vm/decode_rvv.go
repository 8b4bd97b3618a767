package vm

// Vector instruction decode. OP-V funct3 selects the operand category
// (OPIVV/OPFVV/OPMVV/OPIVI/OPIVX/OPFVF/OPMVX/config); funct6 the operation.

const (
	catOPIVV = 0
	catOPFVV = 1
	catOPMVV = 2
	catOPIVI = 3
	catOPIVX = 4
	catOPFVF = 5
	catOPMVX = 6
	catOPCFG = 7
)

// decodeOpV decodes even when V is not configured; the dispatcher's
// enablement check produces the trap so the report can name the op
func decodeOpV(v *Variant, w uint32, info *InstructionInfo) {
	info.Arch = ExtV
	xbits := uint16(v.XLEN)
	f3 := fldF3(w)
	funct6 := w >> 26
	vm := w>>25&1 != 0
	rd, rs1, rs2 := fldRd(w), fldRs1(w), fldRs2(w)

	info.Masked = !vm
	info.MaskReg = 0

	if f3 == catOPCFG {
		info.Rd = xd(rd, xbits)
		switch {
		case w>>31 == 0: // vsetvli
			info.Op = OpVSETVLI
			info.Rs1 = xd(rs1, xbits)
			info.Imm = int64(w >> 20 & 0x7FF)
		case w>>30 == 3: // vsetivli
			info.Op = OpVSETIVLI
			info.Imm = int64(w >> 20 & 0x3FF)
			info.Rs1 = RegDesc{} // uimm in rs1 field
			info.Nf = uint8(rs1) // 5-bit AVL immediate
		case w>>25 == 0x40: // vsetvl
			info.Op = OpVSETVL
			info.Rs1 = xd(rs1, xbits)
			info.Rs2 = xd(rs2, xbits)
		}
		info.Masked = false
		return
	}

	switch f3 {
	case catOPIVV, catOPIVX, catOPIVI:
		decodeOPI(v, w, info, f3, funct6, rd, rs1, rs2)
	case catOPMVV, catOPMVX:
		decodeOPM(v, w, info, f3, funct6, rd, rs1, rs2)
	case catOPFVV, catOPFVF:
		decodeOPF(v, w, info, f3, funct6, rd, rs1, rs2)
	}
}

// src1 operand for the integer categories
func opiSrc1(f3 uint32) VOperandKind {
	switch f3 {
	case catOPIVV:
		return VOperandVector
	case catOPIVX:
		return VOperandScalarX
	}
	return VOperandImm
}

func setVSrc1(v *Variant, info *InstructionInfo, kind VOperandKind, w uint32, rs1 uint32, signedImm bool) {
	switch kind {
	case VOperandVector, VOperandMaskReg:
		info.Rs1 = vd(rs1)
	case VOperandScalarX:
		info.Rs1 = xd(rs1, uint16(v.XLEN))
	case VOperandScalarF:
		info.Rs1 = fd(rs1, uint16(v.FLEN))
	case VOperandImm:
		imm := int64(rs1)
		if signedImm && rs1>>4&1 != 0 {
			imm |= ^int64(0x1F)
		}
		info.Imm = imm
	}
}

func decodeOPI(v *Variant, w uint32, info *InstructionInfo, f3, funct6, rd, rs1, rs2 uint32) {
	src1 := opiSrc1(f3)
	info.Rd = vd(rd)
	info.Rs2 = vd(rs2)
	signedImm := true

	type entry struct {
		op    Operation
		shape VShape
		vv    bool // valid in OPIVV
		vx    bool
		vi    bool
	}
	sh := VShape{Dst: VOperandVector, Src1: src1, Src2: VOperandVector}

	var e entry
	switch funct6 {
	case 0x00:
		e = entry{OpVADD, sh, true, true, true}
	case 0x02:
		e = entry{OpVSUB, sh, true, true, false}
	case 0x03:
		e = entry{OpVRSUB, sh, false, true, true}
	case 0x04:
		e = entry{OpVMINU, sh, true, true, false}
	case 0x05:
		e = entry{OpVMIN, sh, true, true, false}
	case 0x06:
		e = entry{OpVMAXU, sh, true, true, false}
	case 0x07:
		e = entry{OpVMAX, sh, true, true, false}
	case 0x09:
		e = entry{OpVAND, sh, true, true, true}
	case 0x0A:
		e = entry{OpVOR, sh, true, true, true}
	case 0x0B:
		e = entry{OpVXOR, sh, true, true, true}
	case 0x0C:
		g := sh
		g.NoSrcDstOverlap = true
		e = entry{OpVRGATHER, g, true, true, true}
		signedImm = false
	case 0x0E:
		e = entry{OpVSLIDEUP, shapeSlide(src1, true), false, true, true}
		signedImm = false
	case 0x0F:
		e = entry{OpVSLIDEDOWN, shapeSlide(src1, false), false, true, true}
		signedImm = false
	case 0x17:
		if info.Masked {
			g := sh
			g.NoMaskDstOverlap = true
			e = entry{OpVMERGE, g, true, true, true}
		} else {
			// vmv.v.* ignores vs2 (must be v0 in the encoding)
			mv := VShape{Dst: VOperandVector, Src1: src1}
			e = entry{OpVMVV, mv, true, true, true}
			info.Rs2 = RegDesc{}
		}
	case 0x18:
		e = entry{OpVMSEQ, shapeCmp(src1), true, true, true}
	case 0x19:
		e = entry{OpVMSNE, shapeCmp(src1), true, true, true}
	case 0x1A:
		e = entry{OpVMSLTU, shapeCmp(src1), true, true, false}
	case 0x1B:
		e = entry{OpVMSLT, shapeCmp(src1), true, true, false}
	case 0x1C:
		e = entry{OpVMSLEU, shapeCmp(src1), true, true, true}
	case 0x1D:
		e = entry{OpVMSLE, shapeCmp(src1), true, true, true}
	case 0x1E:
		e = entry{OpVMSGTU, shapeCmp(src1), false, true, true}
	case 0x1F:
		e = entry{OpVMSGT, shapeCmp(src1), false, true, true}
	case 0x20:
		e = entry{OpVSADDU, sh, true, true, true}
	case 0x21:
		e = entry{OpVSADD, sh, true, true, true}
	case 0x22:
		e = entry{OpVSSUBU, sh, true, true, false}
	case 0x23:
		e = entry{OpVSSUB, sh, true, true, false}
	case 0x25:
		e = entry{OpVSLL, sh, true, true, true}
		signedImm = false
	case 0x28:
		e = entry{OpVSRL, sh, true, true, true}
		signedImm = false
	case 0x29:
		e = entry{OpVSRA, sh, true, true, true}
		signedImm = false
	case 0x2A:
		e = entry{OpVSSRL, sh, true, true, true}
		signedImm = false
	case 0x2B:
		e = entry{OpVSSRA, sh, true, true, true}
		signedImm = false
	case 0x2C:
		e = entry{OpVNSRL, shapeNarrow(src1), true, true, true}
		signedImm = false
	case 0x2D:
		e = entry{OpVNSRA, shapeNarrow(src1), true, true, true}
		signedImm = false
	default:
		return
	}

	valid := (f3 == catOPIVV && e.vv) || (f3 == catOPIVX && e.vx) || (f3 == catOPIVI && e.vi)
	if !valid {
		return
	}
	info.Op = e.op
	info.Shape = e.shape
	setVSrc1(v, info, src1, w, rs1, signedImm)
}

func decodeOPM(v *Variant, w uint32, info *InstructionInfo, f3, funct6, rd, rs1, rs2 uint32) {
	xbits := uint16(v.XLEN)
	isVV := f3 == catOPMVV
	src1 := VOperandVector
	if !isVV {
		src1 = VOperandScalarX
	}
	info.Rd = vd(rd)
	info.Rs2 = vd(rs2)
	sh := VShape{Dst: VOperandVector, Src1: src1, Src2: VOperandVector}

	switch funct6 {
	case 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07:
		if !isVV {
			return
		}
		ops := [8]Operation{OpVREDSUM, OpVREDAND, OpVREDOR, OpVREDXOR,
			OpVREDMINU, OpVREDMIN, OpVREDMAXU, OpVREDMAX}
		info.Op = ops[funct6]
		info.Shape = shapeReduction(false)
		info.Rs1 = vd(rs1)
	case 0x08:
		info.Op, info.Shape = OpVAADDU, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x09:
		info.Op, info.Shape = OpVAADD, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x0A:
		info.Op, info.Shape = OpVASUBU, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x0B:
		info.Op, info.Shape = OpVASUB, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x0E:
		if isVV {
			return
		}
		info.Op, info.Shape = OpVSLIDE1UP, shapeSlide(VOperandScalarX, true)
		info.Rs1 = xd(rs1, xbits)
	case 0x0F:
		if isVV {
			return
		}
		info.Op, info.Shape = OpVSLIDE1DOWN, shapeSlide(VOperandScalarX, false)
		info.Rs1 = xd(rs1, xbits)
	case 0x10:
		if isVV { // VWXUNARY0
			switch rs1 {
			case 0x00:
				info.Op = OpVMVXS
				info.Rd = xd(rd, xbits)
				info.Shape = VShape{Src2: VOperandVector}
			case 0x10:
				info.Op = OpVCPOP
				info.Rd = xd(rd, xbits)
				info.Shape = VShape{Src2: VOperandMaskReg}
			case 0x11:
				info.Op = OpVFIRST
				info.Rd = xd(rd, xbits)
				info.Shape = VShape{Src2: VOperandMaskReg}
			}
		} else { // VRXUNARY0: vmv.s.x
			if rs2 == 0 {
				info.Op = OpVMVSX
				info.Rs1 = xd(rs1, xbits)
				info.Rs2 = RegDesc{}
				info.Shape = VShape{Dst: VOperandVector, Src1: VOperandScalarX}
			}
		}
	case 0x17:
		if !isVV {
			return
		}
		info.Op = OpVCOMPRESS
		info.Rs1 = vd(rs1)
		info.Shape = VShape{
			Dst: VOperandVector, Src1: VOperandMaskReg, Src2: VOperandVector,
			NoSrcDstOverlap: true,
		}
	case 0x18, 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E, 0x1F:
		if !isVV {
			return
		}
		ops := [8]Operation{OpVMANDN, OpVMAND, OpVMOR, OpVMXOR,
			OpVMORN, OpVMNAND, OpVMNOR, OpVMXNOR}
		info.Op = ops[funct6-0x18]
		info.Shape = shapeMaskLogical
		info.Rs1 = vd(rs1)
	case 0x20:
		info.Op, info.Shape = OpVDIVU, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x21:
		info.Op, info.Shape = OpVDIV, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x22:
		info.Op, info.Shape = OpVREMU, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x23:
		info.Op, info.Shape = OpVREM, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x24:
		info.Op, info.Shape = OpVMULHU, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x25:
		info.Op, info.Shape = OpVMUL, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x27:
		info.Op, info.Shape = OpVMULH, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x29:
		info.Op, info.Shape = OpVMADD, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x2B:
		info.Op, info.Shape = OpVNMSUB, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x2D:
		info.Op, info.Shape = OpVMACC, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x2F:
		info.Op, info.Shape = OpVNMSAC, sh
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x30:
		info.Op, info.Shape = OpVWADDU, shapeWiden(src1, false)
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x31:
		info.Op, info.Shape = OpVWADD, shapeWiden(src1, false)
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x32:
		info.Op, info.Shape = OpVWSUBU, shapeWiden(src1, false)
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x33:
		info.Op, info.Shape = OpVWSUB, shapeWiden(src1, false)
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x38:
		info.Op, info.Shape = OpVWMULU, shapeWiden(src1, false)
		setVSrc1(v, info, src1, w, rs1, true)
	case 0x3B:
		info.Op, info.Shape = OpVWMUL, shapeWiden(src1, false)
		setVSrc1(v, info, src1, w, rs1, true)
	}
}

func decodeOPF(v *Variant, w uint32, info *InstructionInfo, f3, funct6, rd, rs1, rs2 uint32) {
	isVV := f3 == catOPFVV
	src1 := VOperandVector
	if !isVV {
		src1 = VOperandScalarF
	}
	info.Rd = vd(rd)
	info.Rs2 = vd(rs2)
	info.Rnd = RoundCurrent
	sh := VShape{Dst: VOperandVector, Src1: src1, Src2: VOperandVector, FP: true}

	setSrc := func() { setVSrc1(v, info, src1, w, rs1, false) }

	switch funct6 {
	case 0x00:
		info.Op, info.Shape = OpVFADD, sh
		setSrc()
	case 0x01:
		if isVV {
			info.Op, info.Shape = OpVFREDUSUM, shapeReduction(true)
			info.Rs1 = vd(rs1)
		}
	case 0x02:
		info.Op, info.Shape = OpVFSUB, sh
		setSrc()
	case 0x03:
		if isVV {
			info.Op, info.Shape = OpVFREDOSUM, shapeReduction(true)
			info.Rs1 = vd(rs1)
		}
	case 0x04:
		info.Op, info.Shape = OpVFMIN, sh
		setSrc()
	case 0x05:
		if isVV {
			info.Op, info.Shape = OpVFREDMIN, shapeReduction(true)
			info.Rs1 = vd(rs1)
		}
	case 0x06:
		info.Op, info.Shape = OpVFMAX, sh
		setSrc()
	case 0x07:
		if isVV {
			info.Op, info.Shape = OpVFREDMAX, shapeReduction(true)
			info.Rs1 = vd(rs1)
		}
	case 0x08:
		info.Op, info.Shape = OpVFSGNJ, sh
		setSrc()
	case 0x09:
		info.Op, info.Shape = OpVFSGNJN, sh
		setSrc()
	case 0x0A:
		info.Op, info.Shape = OpVFSGNJX, sh
		setSrc()
	case 0x10:
		if isVV { // vfmv.f.s
			if rs1 == 0 {
				info.Op = OpVFMVFS
				info.Rd = fd(rd, uint16(v.FLEN))
				info.Shape = VShape{Src2: VOperandVector, FP: true}
			}
		} else { // vfmv.s.f
			if rs2 == 0 {
				info.Op = OpVFMVSF
				info.Rs1 = fd(rs1, uint16(v.FLEN))
				info.Rs2 = RegDesc{}
				info.Shape = VShape{Dst: VOperandVector, Src1: VOperandScalarF, FP: true}
			}
		}
	case 0x13: // VFUNARY1
		if !isVV {
			return
		}
		switch rs1 {
		case 0x00:
			info.Op = OpVFSQRT
		case 0x04:
			info.Op = OpVFRSQRTE7
		case 0x05:
			info.Op = OpVFRECE7
		default:
			return
		}
		info.Shape = VShape{Dst: VOperandVector, Src2: VOperandVector, FP: true}
	case 0x20:
		info.Op, info.Shape = OpVFDIV, sh
		setSrc()
	case 0x21:
		if !isVV {
			info.Op, info.Shape = OpVFRDIV, sh
			setSrc()
		}
	case 0x24:
		info.Op, info.Shape = OpVFMUL, sh
		setSrc()
	case 0x27:
		if !isVV {
			info.Op, info.Shape = OpVFRSUB, sh
			setSrc()
		}
	case 0x2C:
		info.Op, info.Shape = OpVFMACC, sh
		setSrc()
	case 0x2D:
		info.Op, info.Shape = OpVFNMACC, sh
		setSrc()
	}
}

// Vector memory decode. nf=bits 31:29, mew=28, mop=27:26, vm=25.
func vecEEW(f3 uint32) uint16 {
	switch f3 {
	case 0:
		return 8
	case 5:
		return 16
	case 6:
		return 32
	case 7:
		return 64
	}
	return 0
}

func decodeVecLoad(v *Variant, w uint32, info *InstructionInfo) {
	eew := vecEEW(fldF3(w))
	if eew == 0 || w>>28&1 != 0 {
		return
	}
	info.Arch = ExtV
	info.MemBits = eew
	info.Nf = uint8(w >> 29)
	info.Masked = w>>25&1 == 0
	info.Rd = vd(fldRd(w))
	info.Rs1 = xd(fldRs1(w), uint16(v.XLEN))

	switch w >> 26 & 0x3 {
	case 0: // unit-stride; rs2 field selects the variant
		switch fldRs2(w) {
		case 0x00:
			info.Op = OpVLE
		case 0x08:
			info.Op = OpVLRE
		case 0x0B:
			if eew == 8 {
				info.Op = OpVLM
			}
		case 0x10:
			info.Op = OpVLEFF
		}
	case 2: // strided
		info.Op = OpVLSE
		info.Rs2 = xd(fldRs2(w), uint16(v.XLEN))
	case 1, 3: // indexed (unordered/ordered treated alike)
		info.Op = OpVLXE
		info.Rs2 = vd(fldRs2(w))
	}
	if info.Op != OpLast {
		info.Shape = VShape{Dst: VOperandVector}
	}
}

func decodeVecStore(v *Variant, w uint32, info *InstructionInfo) {
	eew := vecEEW(fldF3(w))
	if eew == 0 || w>>28&1 != 0 {
		return
	}
	info.Arch = ExtV
	info.MemBits = eew
	info.Nf = uint8(w >> 29)
	info.Masked = w>>25&1 == 0
	info.Rd = vd(fldRd(w)) // vs3: data source, held in the rd slot
	info.Rs1 = xd(fldRs1(w), uint16(v.XLEN))

	switch w >> 26 & 0x3 {
	case 0:
		switch fldRs2(w) {
		case 0x00:
			info.Op = OpVSE
		case 0x08:
			info.Op = OpVSRE
		case 0x0B:
			if eew == 8 {
				info.Op = OpVSM
			}
		}
	case 2:
		info.Op = OpVSSE
		info.Rs2 = xd(fldRs2(w), uint16(v.XLEN))
	case 1, 3:
		info.Op = OpVSXE
		info.Rs2 = vd(fldRs2(w))
	}
	if info.Op != OpLast {
		info.Shape = VShape{Src2: VOperandVector}
	}
}
