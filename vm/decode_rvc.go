package vm

// Compressed decode: every RVC encoding expands to its 32-bit counterpart's
// operation tag, so the dispatcher never sees a compressed-specific op.

func cReg(field uint16) uint32 { return uint32(field&0x7) + 8 }

// decodeCompressed handles the 16-bit encodings
func decodeCompressed(v *Variant, pc uint64, hw uint16) InstructionInfo {
	info := InstructionInfo{PC: pc, Raw: uint32(hw), Bytes: 2, Op: OpLast, Arch: ExtC}
	xbits := uint16(v.XLEN)

	if hw == 0 {
		// all-zero is defined illegal
		return illegalInfo(pc, uint32(hw), 2)
	}

	quadrant := hw & 0x3
	f3 := hw >> 13 & 0x7

	switch quadrant {
	case 0:
		switch f3 {
		case 0: // C.ADDI4SPN
			imm := uint64(hw>>5&0x1)<<3 | uint64(hw>>6&0x1)<<2 |
				uint64(hw>>7&0xF)<<6 | uint64(hw>>11&0x3)<<4
			if imm != 0 {
				info.Op = OpADDI
				info.Rd = xd(cReg(hw>>2), xbits)
				info.Rs1 = xd(2, xbits)
				info.Imm = int64(imm)
			}
		case 1: // C.FLD
			info.Op, info.MemBits = OpFLD, 64
			info.Arch |= ExtD
			info.Rd = fd(cReg(hw>>2), 64)
			info.Rs1 = xd(cReg(hw>>7), xbits)
			info.Imm = int64(hw>>10&0x7)<<3 | int64(hw>>5&0x3)<<6
		case 2: // C.LW
			info.Op, info.MemBits = OpLW, 32
			info.Rd = xd(cReg(hw>>2), xbits)
			info.Rs1 = xd(cReg(hw>>7), xbits)
			info.Imm = int64(hw>>10&0x7)<<3 | int64(hw>>6&0x1)<<2 | int64(hw>>5&0x1)<<6
		case 3: // C.LD (RV64)
			if v.XLEN == 64 {
				info.Op, info.MemBits = OpLD, 64
				info.Rd = xd(cReg(hw>>2), xbits)
				info.Rs1 = xd(cReg(hw>>7), xbits)
				info.Imm = int64(hw>>10&0x7)<<3 | int64(hw>>5&0x3)<<6
			}
		case 5: // C.FSD
			info.Op, info.MemBits = OpFSD, 64
			info.Arch |= ExtD
			info.Rs2 = fd(cReg(hw>>2), 64)
			info.Rs1 = xd(cReg(hw>>7), xbits)
			info.Imm = int64(hw>>10&0x7)<<3 | int64(hw>>5&0x3)<<6
		case 6: // C.SW
			info.Op, info.MemBits = OpSW, 32
			info.Rs2 = xd(cReg(hw>>2), xbits)
			info.Rs1 = xd(cReg(hw>>7), xbits)
			info.Imm = int64(hw>>10&0x7)<<3 | int64(hw>>6&0x1)<<2 | int64(hw>>5&0x1)<<6
		case 7: // C.SD (RV64)
			if v.XLEN == 64 {
				info.Op, info.MemBits = OpSD, 64
				info.Rs2 = xd(cReg(hw>>2), xbits)
				info.Rs1 = xd(cReg(hw>>7), xbits)
				info.Imm = int64(hw>>10&0x7)<<3 | int64(hw>>5&0x3)<<6
			}
		}

	case 1:
		switch f3 {
		case 0: // C.ADDI / C.NOP
			info.Op = OpADDI
			rd := uint32(hw >> 7 & 0x1F)
			info.Rd = xd(rd, xbits)
			info.Rs1 = xd(rd, xbits)
			info.Imm = cImm6(hw)
		case 1:
			if v.XLEN == 64 { // C.ADDIW
				rd := uint32(hw >> 7 & 0x1F)
				if rd != 0 {
					info.Op = OpADDIW
					info.Rd = xd(rd, xbits)
					info.Rs1 = xd(rd, xbits)
					info.Imm = cImm6(hw)
				}
			} else { // C.JAL
				info.Op = OpJAL
				info.Rd = xd(1, xbits)
				info.Imm = cImmJ(hw)
			}
		case 2: // C.LI
			info.Op = OpADDI
			info.Rd = xd(uint32(hw>>7&0x1F), xbits)
			info.Rs1 = xd(0, xbits)
			info.Imm = cImm6(hw)
		case 3:
			rd := uint32(hw >> 7 & 0x1F)
			if rd == 2 { // C.ADDI16SP
				imm := int64(int16(hw>>12&0x1)<<9) |
					int64(hw>>6&0x1)<<4 | int64(hw>>5&0x1)<<6 |
					int64(hw>>3&0x3)<<7 | int64(hw>>2&0x1)<<5
				if hw>>12&0x1 != 0 {
					imm |= ^int64(0x1FF)
				}
				if imm != 0 {
					info.Op = OpADDI
					info.Rd = xd(2, xbits)
					info.Rs1 = xd(2, xbits)
					info.Imm = imm
				}
			} else if rd != 0 { // C.LUI
				imm := cImm6(hw) << 12
				if imm != 0 {
					info.Op = OpLUI
					info.Rd = xd(rd, xbits)
					info.Imm = imm
				}
			}
		case 4:
			decodeCArith(v, hw, &info)
		case 5: // C.J
			info.Op = OpJAL
			info.Rd = xd(0, xbits)
			info.Imm = cImmJ(hw)
		case 6: // C.BEQZ
			info.Op = OpBEQ
			info.Rs1 = xd(cReg(hw>>7), xbits)
			info.Rs2 = xd(0, xbits)
			info.Imm = cImmB(hw)
		case 7: // C.BNEZ
			info.Op = OpBNE
			info.Rs1 = xd(cReg(hw>>7), xbits)
			info.Rs2 = xd(0, xbits)
			info.Imm = cImmB(hw)
		}

	case 2:
		rd := uint32(hw >> 7 & 0x1F)
		switch f3 {
		case 0: // C.SLLI
			shamt := uint64(hw>>12&0x1)<<5 | uint64(hw>>2&0x1F)
			if v.XLEN == 32 && shamt > 31 {
				break
			}
			info.Op = OpSLLI
			info.Rd = xd(rd, xbits)
			info.Rs1 = xd(rd, xbits)
			info.Imm = int64(shamt)
		case 1: // C.FLDSP
			info.Op, info.MemBits = OpFLD, 64
			info.Arch |= ExtD
			info.Rd = fd(rd, 64)
			info.Rs1 = xd(2, xbits)
			info.Imm = int64(hw>>12&0x1)<<5 | int64(hw>>5&0x3)<<3 | int64(hw>>2&0x7)<<6
		case 2: // C.LWSP
			if rd != 0 {
				info.Op, info.MemBits = OpLW, 32
				info.Rd = xd(rd, xbits)
				info.Rs1 = xd(2, xbits)
				info.Imm = int64(hw>>12&0x1)<<5 | int64(hw>>4&0x7)<<2 | int64(hw>>2&0x3)<<6
			}
		case 3: // C.LDSP (RV64)
			if v.XLEN == 64 && rd != 0 {
				info.Op, info.MemBits = OpLD, 64
				info.Rd = xd(rd, xbits)
				info.Rs1 = xd(2, xbits)
				info.Imm = int64(hw>>12&0x1)<<5 | int64(hw>>5&0x3)<<3 | int64(hw>>2&0x7)<<6
			}
		case 4:
			rs2 := uint32(hw >> 2 & 0x1F)
			if hw>>12&0x1 == 0 {
				if rs2 == 0 { // C.JR
					if rd != 0 {
						info.Op = OpJALR
						info.Rd = xd(0, xbits)
						info.Rs1 = xd(rd, xbits)
					}
				} else { // C.MV
					info.Op = OpADD
					info.Rd = xd(rd, xbits)
					info.Rs1 = xd(0, xbits)
					info.Rs2 = xd(rs2, xbits)
				}
			} else {
				if rs2 == 0 {
					if rd == 0 { // C.EBREAK
						info.Op = OpEBREAK
					} else { // C.JALR
						info.Op = OpJALR
						info.Rd = xd(1, xbits)
						info.Rs1 = xd(rd, xbits)
					}
				} else { // C.ADD
					info.Op = OpADD
					info.Rd = xd(rd, xbits)
					info.Rs1 = xd(rd, xbits)
					info.Rs2 = xd(rs2, xbits)
				}
			}
		case 5: // C.FSDSP
			info.Op, info.MemBits = OpFSD, 64
			info.Arch |= ExtD
			info.Rs2 = fd(uint32(hw>>2&0x1F), 64)
			info.Rs1 = xd(2, xbits)
			info.Imm = int64(hw>>10&0x7)<<3 | int64(hw>>7&0x7)<<6
		case 6: // C.SWSP
			info.Op, info.MemBits = OpSW, 32
			info.Rs2 = xd(uint32(hw>>2&0x1F), xbits)
			info.Rs1 = xd(2, xbits)
			info.Imm = int64(hw>>9&0xF)<<2 | int64(hw>>7&0x3)<<6
		case 7: // C.SDSP (RV64)
			if v.XLEN == 64 {
				info.Op, info.MemBits = OpSD, 64
				info.Rs2 = xd(uint32(hw>>2&0x1F), xbits)
				info.Rs1 = xd(2, xbits)
				info.Imm = int64(hw>>10&0x7)<<3 | int64(hw>>7&0x7)<<6
			}
		}
	}

	if info.Op == OpLast {
		return illegalInfo(pc, uint32(hw), 2)
	}
	return info
}

// decodeCArith handles the quadrant-1 funct3=100 arithmetic group
func decodeCArith(v *Variant, hw uint16, info *InstructionInfo) {
	xbits := uint16(v.XLEN)
	rd := cReg(hw >> 7)
	switch hw >> 10 & 0x3 {
	case 0: // C.SRLI
		shamt := uint64(hw>>12&0x1)<<5 | uint64(hw>>2&0x1F)
		if v.XLEN == 32 && shamt > 31 {
			return
		}
		info.Op = OpSRLI
		info.Rd = xd(rd, xbits)
		info.Rs1 = xd(rd, xbits)
		info.Imm = int64(shamt)
	case 1: // C.SRAI
		shamt := uint64(hw>>12&0x1)<<5 | uint64(hw>>2&0x1F)
		if v.XLEN == 32 && shamt > 31 {
			return
		}
		info.Op = OpSRAI
		info.Rd = xd(rd, xbits)
		info.Rs1 = xd(rd, xbits)
		info.Imm = int64(shamt)
	case 2: // C.ANDI
		info.Op = OpANDI
		info.Rd = xd(rd, xbits)
		info.Rs1 = xd(rd, xbits)
		info.Imm = cImm6(hw)
	case 3:
		rs2 := cReg(hw >> 2)
		info.Rd = xd(rd, xbits)
		info.Rs1 = xd(rd, xbits)
		info.Rs2 = xd(rs2, xbits)
		if hw>>12&0x1 == 0 {
			ops := [4]Operation{OpSUB, OpXOR, OpOR, OpAND}
			info.Op = ops[hw>>5&0x3]
		} else if v.XLEN == 64 {
			switch hw >> 5 & 0x3 {
			case 0:
				info.Op = OpSUBW
			case 1:
				info.Op = OpADDW
			}
		}
	}
}

// cImm6 extracts the common sign-extended 6-bit immediate
func cImm6(hw uint16) int64 {
	imm := int64(hw >> 2 & 0x1F)
	if hw>>12&0x1 != 0 {
		imm |= ^int64(0x1F)
	}
	return imm
}

// cImmJ extracts the C.J/C.JAL target offset
func cImmJ(hw uint16) int64 {
	imm := int64(hw>>3&0x7)<<1 | int64(hw>>11&0x1)<<4 |
		int64(hw>>2&0x1)<<5 | int64(hw>>7&0x1)<<6 |
		int64(hw>>6&0x1)<<7 | int64(hw>>9&0x3)<<8 |
		int64(hw>>8&0x1)<<10
	if hw>>12&0x1 != 0 {
		imm |= ^int64(0x7FF)
	}
	return imm
}

// cImmB extracts the C.BEQZ/C.BNEZ target offset
func cImmB(hw uint16) int64 {
	imm := int64(hw>>3&0x3)<<1 | int64(hw>>10&0x3)<<3 |
		int64(hw>>2&0x1)<<5 | int64(hw>>5&0x3)<<6
	if hw>>12&0x1 != 0 {
		imm |= ^int64(0xFF)
	}
	return imm
}
