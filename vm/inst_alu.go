package vm

import "math/bits"

// Base integer, multiply/divide and conditional-zero emitters. Every
// emitter advances the PC itself so branches and jumps stay uniform.

func registerBaseEmitters() {
	register(OpLUI, func(ms *MorphState) error {
		ms.Hart.SetX(int(ms.Info.Rd.Index), uint64(ms.Info.Imm))
		ms.Hart.PC = ms.nextPC()
		return nil
	})
	register(OpAUIPC, func(ms *MorphState) error {
		ms.Hart.SetX(int(ms.Info.Rd.Index), ms.Info.PC+uint64(ms.Info.Imm))
		ms.Hart.PC = ms.nextPC()
		return nil
	})
	register(OpJAL, func(ms *MorphState) error {
		h := ms.Hart
		target := ms.Info.PC + uint64(ms.Info.Imm)
		if err := h.checkJumpAlign(ms.Info, target); err != nil {
			return err
		}
		h.SetX(int(ms.Info.Rd.Index), ms.nextPC())
		h.PC = target
		return nil
	})
	register(OpJALR, func(ms *MorphState) error {
		h := ms.Hart
		target := (h.GetX(int(ms.Info.Rs1.Index)) + uint64(ms.Info.Imm)) &^ 1
		if err := h.checkJumpAlign(ms.Info, target); err != nil {
			return err
		}
		h.SetX(int(ms.Info.Rd.Index), ms.nextPC())
		h.PC = target
		return nil
	})

	register(OpBEQ, branchEmitter(func(a, b uint64) bool { return a == b }))
	register(OpBNE, branchEmitter(func(a, b uint64) bool { return a != b }))
	register(OpBLT, branchEmitter(func(a, b uint64) bool { return int64(a) < int64(b) }))
	register(OpBGE, branchEmitter(func(a, b uint64) bool { return int64(a) >= int64(b) }))
	register(OpBLTU, branchEmitter(func(a, b uint64) bool { return a < b }))
	register(OpBGEU, branchEmitter(func(a, b uint64) bool { return a >= b }))

	register(OpADDI, aluImm(func(a uint64, imm int64) uint64 { return a + uint64(imm) }))
	register(OpSLTI, aluImm(func(a uint64, imm int64) uint64 {
		if int64(a) < imm {
			return 1
		}
		return 0
	}))
	register(OpSLTIU, aluImm(func(a uint64, imm int64) uint64 {
		if a < uint64(imm) {
			return 1
		}
		return 0
	}))
	register(OpXORI, aluImm(func(a uint64, imm int64) uint64 { return a ^ uint64(imm) }))
	register(OpORI, aluImm(func(a uint64, imm int64) uint64 { return a | uint64(imm) }))
	register(OpANDI, aluImm(func(a uint64, imm int64) uint64 { return a & uint64(imm) }))

	register(OpSLLI, shiftImm(func(a uint64, sh uint, xlen uint) uint64 { return a << sh }))
	register(OpSRLI, shiftImm(func(a uint64, sh uint, xlen uint) uint64 { return a >> sh }))
	register(OpSRAI, shiftImm(func(a uint64, sh uint, xlen uint) uint64 {
		if xlen == 32 {
			return uint64(uint32(int32(uint32(a)) >> sh))
		}
		return uint64(int64(a) >> sh)
	}))

	register(OpADD, aluReg(func(a, b uint64) uint64 { return a + b }))
	register(OpSUB, aluReg(func(a, b uint64) uint64 { return a - b }))
	register(OpXOR, aluReg(func(a, b uint64) uint64 { return a ^ b }))
	register(OpOR, aluReg(func(a, b uint64) uint64 { return a | b }))
	register(OpAND, aluReg(func(a, b uint64) uint64 { return a & b }))
	register(OpSLT, aluReg(func(a, b uint64) uint64 {
		if int64(a) < int64(b) {
			return 1
		}
		return 0
	}))
	register(OpSLTU, aluReg(func(a, b uint64) uint64 {
		if a < b {
			return 1
		}
		return 0
	}))
	register(OpSLL, shiftReg(func(a uint64, sh uint, xlen uint) uint64 { return a << sh }))
	register(OpSRL, shiftReg(func(a uint64, sh uint, xlen uint) uint64 { return a >> sh }))
	register(OpSRA, shiftReg(func(a uint64, sh uint, xlen uint) uint64 {
		if xlen == 32 {
			return uint64(uint32(int32(uint32(a)) >> sh))
		}
		return uint64(int64(a) >> sh)
	}))

	// RV64 word forms
	register(OpADDIW, wordImm(func(a uint32, imm int64) uint32 { return a + uint32(imm) }))
	register(OpSLLIW, wordImm(func(a uint32, imm int64) uint32 { return a << uint(imm&0x1F) }))
	register(OpSRLIW, wordImm(func(a uint32, imm int64) uint32 { return a >> uint(imm&0x1F) }))
	register(OpSRAIW, wordImm(func(a uint32, imm int64) uint32 {
		return uint32(int32(a) >> uint(imm&0x1F))
	}))
	register(OpADDW, wordReg(func(a, b uint32) uint32 { return a + b }))
	register(OpSUBW, wordReg(func(a, b uint32) uint32 { return a - b }))
	register(OpSLLW, wordReg(func(a, b uint32) uint32 { return a << (b & 0x1F) }))
	register(OpSRLW, wordReg(func(a, b uint32) uint32 { return a >> (b & 0x1F) }))
	register(OpSRAW, wordReg(func(a, b uint32) uint32 { return uint32(int32(a) >> (b & 0x1F)) }))

	// M extension
	register(OpMUL, aluReg(func(a, b uint64) uint64 { return a * b }))
	register(OpMULH, func(ms *MorphState) error {
		h := ms.Hart
		a, b := h.GetXSigned(int(ms.Info.Rs1.Index)), h.GetXSigned(int(ms.Info.Rs2.Index))
		if h.Variant.XLEN == 32 {
			h.SetX(int(ms.Info.Rd.Index), uint64(a*b>>32))
		} else {
			hi, _ := bits.Mul64(uint64(a), uint64(b))
			// correct unsigned high product for signed operands
			if a < 0 {
				hi -= uint64(b)
			}
			if b < 0 {
				hi -= uint64(a)
			}
			h.SetX(int(ms.Info.Rd.Index), hi)
		}
		h.PC = ms.nextPC()
		return nil
	})
	register(OpMULHU, func(ms *MorphState) error {
		h := ms.Hart
		a, b := h.GetX(int(ms.Info.Rs1.Index)), h.GetX(int(ms.Info.Rs2.Index))
		if h.Variant.XLEN == 32 {
			h.SetX(int(ms.Info.Rd.Index), a*b>>32)
		} else {
			hi, _ := bits.Mul64(a, b)
			h.SetX(int(ms.Info.Rd.Index), hi)
		}
		h.PC = ms.nextPC()
		return nil
	})
	register(OpMULHSU, func(ms *MorphState) error {
		h := ms.Hart
		a := h.GetXSigned(int(ms.Info.Rs1.Index))
		b := h.GetX(int(ms.Info.Rs2.Index))
		if h.Variant.XLEN == 32 {
			h.SetX(int(ms.Info.Rd.Index), uint64(a*int64(uint32(b))>>32))
		} else {
			hi, _ := bits.Mul64(uint64(a), b)
			if a < 0 {
				hi -= b
			}
			h.SetX(int(ms.Info.Rd.Index), hi)
		}
		h.PC = ms.nextPC()
		return nil
	})
	register(OpDIV, aluReg(divSigned))
	register(OpDIVU, aluReg(divUnsigned))
	register(OpREM, aluReg(remSigned))
	register(OpREMU, aluReg(remUnsigned))
	register(OpMULW, wordReg(func(a, b uint32) uint32 { return a * b }))
	register(OpDIVW, wordReg(func(a, b uint32) uint32 {
		return uint32(divSigned(uint64(int64(int32(a))), uint64(int64(int32(b)))))
	}))
	register(OpDIVUW, wordReg(func(a, b uint32) uint32 {
		if b == 0 {
			return ^uint32(0)
		}
		return a / b
	}))
	register(OpREMW, wordReg(func(a, b uint32) uint32 {
		return uint32(remSigned(uint64(int64(int32(a))), uint64(int64(int32(b)))))
	}))
	register(OpREMUW, wordReg(func(a, b uint32) uint32 {
		if b == 0 {
			return a
		}
		return a % b
	}))

	// Zicond
	register(OpCZEROEQZ, aluReg(func(a, b uint64) uint64 {
		if b == 0 {
			return 0
		}
		return a
	}))
	register(OpCZERONEZ, aluReg(func(a, b uint64) uint64 {
		if b != 0 {
			return 0
		}
		return a
	}))
}

func divSigned(a, b uint64) uint64 {
	sa, sb := int64(a), int64(b)
	switch {
	case sb == 0:
		return ^uint64(0)
	case sa == -1<<63 && sb == -1:
		return a // overflow: result is the dividend
	default:
		return uint64(sa / sb)
	}
}

func divUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func remSigned(a, b uint64) uint64 {
	sa, sb := int64(a), int64(b)
	switch {
	case sb == 0:
		return a
	case sa == -1<<63 && sb == -1:
		return 0
	default:
		return uint64(sa % sb)
	}
}

func remUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

func aluImm(op func(a uint64, imm int64) uint64) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		h.SetX(int(ms.Info.Rd.Index), op(h.GetX(int(ms.Info.Rs1.Index)), ms.Info.Imm))
		h.PC = ms.nextPC()
		return nil
	}
}

func aluReg(op func(a, b uint64) uint64) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		h.SetX(int(ms.Info.Rd.Index),
			op(h.GetX(int(ms.Info.Rs1.Index)), h.GetX(int(ms.Info.Rs2.Index))))
		h.PC = ms.nextPC()
		return nil
	}
}

func shiftImm(op func(a uint64, sh uint, xlen uint) uint64) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		h.SetX(int(ms.Info.Rd.Index),
			op(h.GetX(int(ms.Info.Rs1.Index)), uint(ms.Info.Imm), h.Variant.XLEN))
		h.PC = ms.nextPC()
		return nil
	}
}

func shiftReg(op func(a uint64, sh uint, xlen uint) uint64) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		mask := uint64(0x1F)
		if h.Variant.XLEN == 64 {
			mask = 0x3F
		}
		sh := uint(h.GetX(int(ms.Info.Rs2.Index)) & mask)
		h.SetX(int(ms.Info.Rd.Index), op(h.GetX(int(ms.Info.Rs1.Index)), sh, h.Variant.XLEN))
		h.PC = ms.nextPC()
		return nil
	}
}

// wordImm/wordReg operate on the low 32 bits and sign-extend the result
func wordImm(op func(a uint32, imm int64) uint32) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		r := op(uint32(h.GetX(int(ms.Info.Rs1.Index))), ms.Info.Imm)
		h.SetX(int(ms.Info.Rd.Index), uint64(int64(int32(r))))
		h.PC = ms.nextPC()
		return nil
	}
}

func wordReg(op func(a, b uint32) uint32) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		r := op(uint32(h.GetX(int(ms.Info.Rs1.Index))), uint32(h.GetX(int(ms.Info.Rs2.Index))))
		h.SetX(int(ms.Info.Rd.Index), uint64(int64(int32(r))))
		h.PC = ms.nextPC()
		return nil
	}
}

func branchEmitter(cond func(a, b uint64) bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		if cond(h.GetX(int(ms.Info.Rs1.Index)), h.GetX(int(ms.Info.Rs2.Index))) {
			target := ms.Info.PC + uint64(ms.Info.Imm)
			if err := h.checkJumpAlign(ms.Info, target); err != nil {
				return err
			}
			h.PC = target
		} else {
			h.PC = ms.nextPC()
		}
		return nil
	}
}

// checkJumpAlign raises misaligned-fetch for targets the variant cannot
// fetch: 2-byte alignment with C, 4-byte without
func (h *Hart) checkJumpAlign(info *InstructionInfo, target uint64) error {
	align := uint64(3)
	if h.MisaEnabled(ExtC) {
		align = 1
	}
	if target&align != 0 {
		return &TrapError{Cause: CauseMisalignedFetch, Tval: target}
	}
	return nil
}
