package vm

import "math/bits"

// Vector configuration and arithmetic emitters. Each emitter resolves the
// execution environment via vectorBegin and drives runElements with a
// per-element body.

// vxrm rounding modes
const (
	vxrmRNU = 0 // round to nearest up
	vxrmRNE = 1 // round to nearest even
	vxrmRDN = 2 // round down (truncate)
	vxrmROD = 3 // round to odd
)

func registerVectorEmitters() {
	register(OpVSETVLI, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if h.VSOff() {
			return h.illegalOrVirtual(info.Raw, true, "vector unit off")
		}
		avl := h.GetX(int(info.Rs1.Index))
		vl := h.VSetVL(avl, uint64(info.Imm), info.Rd.Index != 0, info.Rs1.Index != 0)
		h.SetX(int(info.Rd.Index), vl)
		ms.Block.InvalidateVectorKnowledge()
		h.PC = ms.nextPC()
		return nil
	})
	register(OpVSETIVLI, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if h.VSOff() {
			return h.illegalOrVirtual(info.Raw, true, "vector unit off")
		}
		// the AVL is a 5-bit immediate, always treated as non-zero rs1
		vl := h.VSetVL(uint64(info.Nf), uint64(info.Imm), info.Rd.Index != 0, true)
		h.SetX(int(info.Rd.Index), vl)
		ms.Block.InvalidateVectorKnowledge()
		h.PC = ms.nextPC()
		return nil
	})
	register(OpVSETVL, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if h.VSOff() {
			return h.illegalOrVirtual(info.Raw, true, "vector unit off")
		}
		avl := h.GetX(int(info.Rs1.Index))
		vtypeRaw := h.GetX(int(info.Rs2.Index))
		vl := h.VSetVL(avl, vtypeRaw, info.Rd.Index != 0, info.Rs1.Index != 0)
		h.SetX(int(info.Rd.Index), vl)
		ms.Block.InvalidateVectorKnowledge()
		h.PC = ms.nextPC()
		return nil
	})

	// integer arithmetic
	register(OpVADD, vBinEmitter(func(a, b uint64, sew uint) uint64 { return a + b }))
	register(OpVSUB, vBinEmitter(func(a, b uint64, sew uint) uint64 { return b - a }))
	register(OpVRSUB, vBinEmitter(func(a, b uint64, sew uint) uint64 { return a - b }))
	register(OpVAND, vBinEmitter(func(a, b uint64, sew uint) uint64 { return a & b }))
	register(OpVOR, vBinEmitter(func(a, b uint64, sew uint) uint64 { return a | b }))
	register(OpVXOR, vBinEmitter(func(a, b uint64, sew uint) uint64 { return a ^ b }))
	register(OpVSLL, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		return b << (a & uint64(sew-1))
	}))
	register(OpVSRL, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		return b >> (a & uint64(sew-1))
	}))
	register(OpVSRA, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		return uint64(signExtend(b, sew) >> (a & uint64(sew-1)))
	}))
	register(OpVMINU, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		if a < b {
			return a
		}
		return b
	}))
	register(OpVMAXU, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		if a > b {
			return a
		}
		return b
	}))
	register(OpVMIN, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		if signExtend(a, sew) < signExtend(b, sew) {
			return a
		}
		return b
	}))
	register(OpVMAX, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		if signExtend(a, sew) > signExtend(b, sew) {
			return a
		}
		return b
	}))
	register(OpVMUL, vBinEmitter(func(a, b uint64, sew uint) uint64 { return a * b }))
	register(OpVMULH, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		return mulHigh(uint64(signExtend(a, sew)), uint64(signExtend(b, sew)), sew, true, true)
	}))
	register(OpVMULHU, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		return mulHigh(a, b, sew, false, false)
	}))
	register(OpVDIVU, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		if a == 0 {
			return widthMask(uint16(sew))
		}
		return b / a
	}))
	register(OpVDIV, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		sa, sb := signExtend(a, sew), signExtend(b, sew)
		switch {
		case sa == 0:
			return widthMask(uint16(sew))
		case sb == -(int64(1)<<(sew-1)) && sa == -1:
			return uint64(sb)
		default:
			return uint64(sb / sa)
		}
	}))
	register(OpVREMU, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		if a == 0 {
			return b
		}
		return b % a
	}))
	register(OpVREM, vBinEmitter(func(a, b uint64, sew uint) uint64 {
		sa, sb := signExtend(a, sew), signExtend(b, sew)
		switch {
		case sa == 0:
			return b
		case sb == -(int64(1)<<(sew-1)) && sa == -1:
			return 0
		default:
			return uint64(sb % sa)
		}
	}))

	// multiply-accumulate: vd participates as an operand
	register(OpVMACC, vMAccEmitter(func(s1, s2, d uint64) uint64 { return s1*s2 + d }))
	register(OpVNMSAC, vMAccEmitter(func(s1, s2, d uint64) uint64 { return d - s1*s2 }))
	register(OpVMADD, vMAccEmitter(func(s1, s2, d uint64) uint64 { return s1*d + s2 }))
	register(OpVNMSUB, vMAccEmitter(func(s1, s2, d uint64) uint64 { return s2 - s1*d }))

	// widening
	register(OpVWADDU, vWideEmitter(func(a, b uint64, sew uint) uint64 { return a + b }, false))
	register(OpVWADD, vWideEmitter(func(a, b uint64, sew uint) uint64 {
		return uint64(signExtend(a, sew) + signExtend(b, sew))
	}, true))
	register(OpVWSUBU, vWideEmitter(func(a, b uint64, sew uint) uint64 { return b - a }, false))
	register(OpVWSUB, vWideEmitter(func(a, b uint64, sew uint) uint64 {
		return uint64(signExtend(b, sew) - signExtend(a, sew))
	}, true))
	register(OpVWMULU, vWideEmitter(func(a, b uint64, sew uint) uint64 { return a * b }, false))
	register(OpVWMUL, vWideEmitter(func(a, b uint64, sew uint) uint64 {
		return uint64(signExtend(a, sew) * signExtend(b, sew))
	}, true))

	// narrowing shifts
	register(OpVNSRL, vNarrowEmitter(func(a, b uint64, sew uint) uint64 {
		return b >> (a & uint64(2*sew-1))
	}))
	register(OpVNSRA, vNarrowEmitter(func(a, b uint64, sew uint) uint64 {
		return uint64(signExtend(b, 2*sew) >> (a & uint64(2*sew-1)))
	}))

	// moves and merge
	register(OpVMVV, func(ms *MorphState) error {
		env, err := ms.Hart.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		t := ms.Hart.runElements(env, func(i uint64) *TrapError {
			ms.Hart.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, ms.vSrc1(env, i))
			return nil
		})
		return ms.vFinish(t)
	})
	register(OpVMERGE, func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		// vmerge reads the mask as a selector, not a gate
		env.masked = false
		t := h.runElements(env, func(i uint64) *TrapError {
			var v uint64
			if h.VGetMaskBit(int(ms.Info.MaskReg), i) {
				v = ms.vSrc1(env, i)
			} else {
				v = h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			}
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, v)
			return nil
		})
		return ms.vFinish(t)
	})
	register(OpVMVXS, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		v := h.VGetElem(int(info.Rs2.Index), 0, env.cfg.SEW)
		h.SetX(int(info.Rd.Index), uint64(signExtend(v, env.cfg.SEW)))
		h.CSR.SetRaw(CSRvstart, 0)
		h.PC = ms.nextPC()
		return nil
	})
	register(OpVMVSX, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		if h.CSR.Raw(CSRvl) > 0 && h.CSR.Raw(CSRvstart) < h.CSR.Raw(CSRvl) {
			h.VSetElem(int(info.Rd.Index), 0, env.cfg.SEW,
				h.GetX(int(info.Rs1.Index))&widthMask(uint16(env.cfg.SEW)))
			h.SetVSDirty()
		}
		h.CSR.SetRaw(CSRvstart, 0)
		h.PC = ms.nextPC()
		return nil
	})
	register(OpVFMVFS, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		v := h.VGetElem(int(info.Rs2.Index), 0, env.cfg.SEW)
		h.SetF(int(info.Rd.Index), v, uint16(env.cfg.SEW))
		h.CSR.SetRaw(CSRvstart, 0)
		h.PC = ms.nextPC()
		return nil
	})
	register(OpVFMVSF, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		if h.CSR.Raw(CSRvl) > 0 && h.CSR.Raw(CSRvstart) < h.CSR.Raw(CSRvl) {
			h.VSetElem(int(info.Rd.Index), 0, env.cfg.SEW,
				h.GetF(int(info.Rs1.Index), uint16(env.cfg.SEW)))
			h.SetVSDirty()
		}
		h.CSR.SetRaw(CSRvstart, 0)
		h.PC = ms.nextPC()
		return nil
	})

	// compares producing mask results
	register(OpVMSEQ, vCmpEmitter(func(a, b uint64, sew uint) bool { return b == a }))
	register(OpVMSNE, vCmpEmitter(func(a, b uint64, sew uint) bool { return b != a }))
	register(OpVMSLTU, vCmpEmitter(func(a, b uint64, sew uint) bool { return b < a }))
	register(OpVMSLT, vCmpEmitter(func(a, b uint64, sew uint) bool {
		return signExtend(b, sew) < signExtend(a, sew)
	}))
	register(OpVMSLEU, vCmpEmitter(func(a, b uint64, sew uint) bool { return b <= a }))
	register(OpVMSLE, vCmpEmitter(func(a, b uint64, sew uint) bool {
		return signExtend(b, sew) <= signExtend(a, sew)
	}))
	register(OpVMSGTU, vCmpEmitter(func(a, b uint64, sew uint) bool { return b > a }))
	register(OpVMSGT, vCmpEmitter(func(a, b uint64, sew uint) bool {
		return signExtend(b, sew) > signExtend(a, sew)
	}))

	// mask-register logicals operate on vl bits
	register(OpVMAND, vMaskLogicalEmitter(func(a, b bool) bool { return a && b }))
	register(OpVMNAND, vMaskLogicalEmitter(func(a, b bool) bool { return !(a && b) }))
	register(OpVMANDN, vMaskLogicalEmitter(func(a, b bool) bool { return b && !a }))
	register(OpVMXOR, vMaskLogicalEmitter(func(a, b bool) bool { return a != b }))
	register(OpVMOR, vMaskLogicalEmitter(func(a, b bool) bool { return a || b }))
	register(OpVMNOR, vMaskLogicalEmitter(func(a, b bool) bool { return !(a || b) }))
	register(OpVMORN, vMaskLogicalEmitter(func(a, b bool) bool { return b || !a }))
	register(OpVMXNOR, vMaskLogicalEmitter(func(a, b bool) bool { return a == b }))

	register(OpVCPOP, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		if h.CSR.Raw(CSRvstart) != 0 {
			return IllegalInstruction(info.Raw, "vcpop with non-zero vstart")
		}
		var n uint64
		for i := uint64(0); i < env.vl; i++ {
			if env.active(h, i) && h.VGetMaskBit(int(info.Rs2.Index), i) {
				n++
			}
		}
		h.SetX(int(info.Rd.Index), n)
		h.PC = ms.nextPC()
		return nil
	})
	register(OpVFIRST, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		if h.CSR.Raw(CSRvstart) != 0 {
			return IllegalInstruction(info.Raw, "vfirst with non-zero vstart")
		}
		result := int64(-1)
		for i := uint64(0); i < env.vl; i++ {
			if env.active(h, i) && h.VGetMaskBit(int(info.Rs2.Index), i) {
				result = int64(i)
				break
			}
		}
		h.SetX(int(info.Rd.Index), uint64(result))
		h.PC = ms.nextPC()
		return nil
	})

	// reductions
	register(OpVREDSUM, vRedEmitter(func(acc, v uint64, sew uint) uint64 { return acc + v }))
	register(OpVREDAND, vRedEmitter(func(acc, v uint64, sew uint) uint64 { return acc & v }))
	register(OpVREDOR, vRedEmitter(func(acc, v uint64, sew uint) uint64 { return acc | v }))
	register(OpVREDXOR, vRedEmitter(func(acc, v uint64, sew uint) uint64 { return acc ^ v }))
	register(OpVREDMINU, vRedEmitter(func(acc, v uint64, sew uint) uint64 {
		if v < acc {
			return v
		}
		return acc
	}))
	register(OpVREDMAXU, vRedEmitter(func(acc, v uint64, sew uint) uint64 {
		if v > acc {
			return v
		}
		return acc
	}))
	register(OpVREDMIN, vRedEmitter(func(acc, v uint64, sew uint) uint64 {
		if signExtend(v, sew) < signExtend(acc, sew) {
			return v
		}
		return acc
	}))
	register(OpVREDMAX, vRedEmitter(func(acc, v uint64, sew uint) uint64 {
		if signExtend(v, sew) > signExtend(acc, sew) {
			return v
		}
		return acc
	}))

	// fixed-point
	register(OpVSADDU, vSatEmitter(func(a, b uint64, sew uint) (uint64, bool) {
		s := b + a
		if s < b || s > widthMask(uint16(sew)) {
			return widthMask(uint16(sew)), true
		}
		return s, false
	}))
	register(OpVSADD, vSatEmitter(func(a, b uint64, sew uint) (uint64, bool) {
		return satAddSigned(signExtend(b, sew), signExtend(a, sew), sew)
	}))
	register(OpVSSUBU, vSatEmitter(func(a, b uint64, sew uint) (uint64, bool) {
		if a > b {
			return 0, true
		}
		return b - a, false
	}))
	register(OpVSSUB, vSatEmitter(func(a, b uint64, sew uint) (uint64, bool) {
		return satAddSigned(signExtend(b, sew), -signExtend(a, sew), sew)
	}))
	register(OpVAADDU, vAvgEmitter(false, false))
	register(OpVAADD, vAvgEmitter(true, false))
	register(OpVASUBU, vAvgEmitter(false, true))
	register(OpVASUB, vAvgEmitter(true, true))
	register(OpVSSRL, vScaledShiftEmitter(false))
	register(OpVSSRA, vScaledShiftEmitter(true))

	// permutations
	register(OpVSLIDEUP, func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		offset := ms.vSlideAmount(env)
		t := h.runElements(env, func(i uint64) *TrapError {
			if i < offset {
				return nil // elements below the offset are untouched
			}
			v := h.VGetElem(int(ms.Info.Rs2.Index), i-offset, env.cfg.SEW)
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, v)
			return nil
		})
		return ms.vFinish(t)
	})
	register(OpVSLIDEDOWN, func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		offset := ms.vSlideAmount(env)
		t := h.runElements(env, func(i uint64) *TrapError {
			var v uint64
			if i+offset < env.vlmax {
				v = h.VGetElem(int(ms.Info.Rs2.Index), i+offset, env.cfg.SEW)
			}
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, v)
			return nil
		})
		return ms.vFinish(t)
	})
	register(OpVSLIDE1UP, func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		scalar := h.GetX(int(ms.Info.Rs1.Index)) & widthMask(uint16(env.cfg.SEW))
		t := h.runElements(env, func(i uint64) *TrapError {
			var v uint64
			if i == 0 {
				v = scalar
			} else {
				v = h.VGetElem(int(ms.Info.Rs2.Index), i-1, env.cfg.SEW)
			}
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, v)
			return nil
		})
		return ms.vFinish(t)
	})
	register(OpVSLIDE1DOWN, func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		scalar := h.GetX(int(ms.Info.Rs1.Index)) & widthMask(uint16(env.cfg.SEW))
		t := h.runElements(env, func(i uint64) *TrapError {
			var v uint64
			if i+1 < env.vl {
				v = h.VGetElem(int(ms.Info.Rs2.Index), i+1, env.cfg.SEW)
			} else {
				v = scalar
			}
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, v)
			return nil
		})
		return ms.vFinish(t)
	})
	register(OpVRGATHER, func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		t := h.runElements(env, func(i uint64) *TrapError {
			idx := ms.vSrc1(env, i)
			var v uint64
			if idx < env.vlmax {
				v = h.VGetElem(int(ms.Info.Rs2.Index), idx, env.cfg.SEW)
			}
			// out-of-range indices read zero
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, v)
			return nil
		})
		return ms.vFinish(t)
	})
	register(OpVCOMPRESS, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		if h.CSR.Raw(CSRvstart) != 0 {
			return IllegalInstruction(info.Raw, "vcompress with non-zero vstart")
		}
		// the write pointer lives in the hart scratch register so the
		// iteration remains an explicit state machine
		h.scratch = 0
		for i := uint64(0); i < env.vl; i++ {
			if !h.VGetMaskBit(int(info.Rs1.Index), i) {
				continue
			}
			v := h.VGetElem(int(info.Rs2.Index), i, env.cfg.SEW)
			h.VSetElem(int(info.Rd.Index), h.scratch, env.cfg.SEW, v)
			h.scratch++
		}
		if env.cfg.VTA && h.Variant.AgnosticOnes {
			for i := h.scratch; i < env.vlmax; i++ {
				h.VSetElem(int(info.Rd.Index), i, env.cfg.SEW, ^uint64(0))
			}
		}
		h.SetVSDirty()
		h.CSR.SetRaw(CSRvstart, 0)
		h.PC = ms.nextPC()
		return nil
	})
}

// vSrc1 fetches the first-source operand for the current element
func (ms *MorphState) vSrc1(env *vectorEnv, i uint64) uint64 {
	mask := widthMask(uint16(env.cfg.SEW))
	switch env.shape.Src1 {
	case VOperandVector:
		return ms.Hart.VGetElem(int(ms.Info.Rs1.Index), i, env.cfg.SEW)
	case VOperandScalarX:
		return ms.Hart.GetX(int(ms.Info.Rs1.Index)) & mask
	case VOperandScalarF:
		return ms.Hart.GetF(int(ms.Info.Rs1.Index), uint16(env.cfg.SEW))
	case VOperandImm:
		return uint64(ms.Info.Imm) & mask
	}
	return 0
}

// vSlideAmount is the slide offset: scalar register or immediate
func (ms *MorphState) vSlideAmount(env *vectorEnv) uint64 {
	if env.shape.Src1 == VOperandImm {
		return uint64(ms.Info.Imm) & 0x1F
	}
	return ms.Hart.GetX(int(ms.Info.Rs1.Index))
}

// vFinish converts an element trap to the emitter return and advances PC
func (ms *MorphState) vFinish(t *TrapError) error {
	if t != nil {
		return t
	}
	ms.Hart.PC = ms.nextPC()
	return nil
}

func vBinEmitter(op func(src1, src2 uint64, sew uint) uint64) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		mask := widthMask(uint16(env.cfg.SEW))
		t := h.runElements(env, func(i uint64) *TrapError {
			a := ms.vSrc1(env, i)
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, op(a, b, env.cfg.SEW)&mask)
			return nil
		})
		return ms.vFinish(t)
	}
}

func vMAccEmitter(op func(s1, s2, d uint64) uint64) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		mask := widthMask(uint16(env.cfg.SEW))
		t := h.runElements(env, func(i uint64) *TrapError {
			s1 := ms.vSrc1(env, i)
			s2 := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			d := h.VGetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW)
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, op(s1, s2, d)&mask)
			return nil
		})
		return ms.vFinish(t)
	}
}

func vWideEmitter(op func(src1, src2 uint64, sew uint) uint64, signed bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		mask := widthMask(uint16(env.sewDst))
		t := h.runElements(env, func(i uint64) *TrapError {
			a := ms.vSrc1(env, i)
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			h.VSetElem(int(ms.Info.Rd.Index), i, env.sewDst, op(a, b, env.cfg.SEW)&mask)
			return nil
		})
		return ms.vFinish(t)
	}
}

func vNarrowEmitter(op func(src1, src2Wide uint64, sew uint) uint64) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		mask := widthMask(uint16(env.cfg.SEW))
		t := h.runElements(env, func(i uint64) *TrapError {
			a := ms.vSrc1(env, i)
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.sewSrc2)
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, op(a, b, env.cfg.SEW)&mask)
			return nil
		})
		return ms.vFinish(t)
	}
}

func vCmpEmitter(pred func(src1, src2 uint64, sew uint) bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		t := h.runElements(env, func(i uint64) *TrapError {
			a := ms.vSrc1(env, i)
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			h.VSetMaskBit(int(ms.Info.Rd.Index), i, pred(a, b, env.cfg.SEW))
			return nil
		})
		if t == nil {
			h.maskTailFill(env)
		}
		return ms.vFinish(t)
	}
}

func vMaskLogicalEmitter(op func(a, b bool) bool) emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		if h.CSR.Raw(CSRvstart) != 0 {
			return IllegalInstruction(info.Raw, "mask logical with non-zero vstart")
		}
		for i := uint64(0); i < env.vl; i++ {
			a := h.VGetMaskBit(int(info.Rs1.Index), i)
			b := h.VGetMaskBit(int(info.Rs2.Index), i)
			h.VSetMaskBit(int(info.Rd.Index), i, op(a, b))
		}
		h.maskTailFill(env)
		h.SetVSDirty()
		h.CSR.SetRaw(CSRvstart, 0)
		h.PC = ms.nextPC()
		return nil
	}
}

// vRedEmitter folds active elements of vs2 into an accumulator seeded
// from vs1[0] and writes the result to vd[0]
func vRedEmitter(fold func(acc, v uint64, sew uint) uint64) emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		if h.CSR.Raw(CSRvstart) != 0 {
			return IllegalInstruction(info.Raw, "reduction with non-zero vstart")
		}
		if env.vl == 0 {
			h.PC = ms.nextPC()
			return nil
		}
		mask := widthMask(uint16(env.cfg.SEW))
		acc := h.VGetElem(int(info.Rs1.Index), 0, env.cfg.SEW)
		for i := uint64(0); i < env.vl; i++ {
			if !env.active(h, i) {
				continue
			}
			acc = fold(acc, h.VGetElem(int(info.Rs2.Index), i, env.cfg.SEW), env.cfg.SEW) & mask
		}
		h.VSetElem(int(info.Rd.Index), 0, env.cfg.SEW, acc)
		if env.cfg.VTA && h.Variant.AgnosticOnes {
			for i := uint64(1); i < uint64(h.Variant.VLEN)/uint64(env.cfg.SEW); i++ {
				h.VSetElem(int(info.Rd.Index), i, env.cfg.SEW, ^uint64(0))
			}
		}
		h.SetVSDirty()
		h.CSR.SetRaw(CSRvstart, 0)
		h.PC = ms.nextPC()
		return nil
	}
}

// vSatEmitter is a binary op whose local overflow flag accumulates into vxsat
func vSatEmitter(op func(src1, src2 uint64, sew uint) (uint64, bool)) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		sat := false
		mask := widthMask(uint16(env.cfg.SEW))
		t := h.runElements(env, func(i uint64) *TrapError {
			a := ms.vSrc1(env, i)
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			v, o := op(a, b, env.cfg.SEW)
			sat = sat || o
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, v&mask)
			return nil
		})
		if t == nil && sat {
			h.CSR.SetRaw(CSRvcsr, h.CSR.Raw(CSRvcsr)|vcsrSatMask)
		}
		return ms.vFinish(t)
	}
}

// vAvgEmitter implements the averaging add/sub with vxrm rounding
func vAvgEmitter(signed, sub bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		vxrm := h.CSR.Raw(CSRvcsr) >> vcsrRmShift & 0x3
		mask := widthMask(uint16(env.cfg.SEW))
		t := h.runElements(env, func(i uint64) *TrapError {
			a := ms.vSrc1(env, i)
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			var wide int64
			if signed {
				if sub {
					wide = signExtend(b, env.cfg.SEW) - signExtend(a, env.cfg.SEW)
				} else {
					wide = signExtend(b, env.cfg.SEW) + signExtend(a, env.cfg.SEW)
				}
			} else {
				if sub {
					wide = int64(b) - int64(a)
				} else {
					wide = int64(b) + int64(a)
				}
			}
			v := fixedPointShift(uint64(wide), 1, vxrm, signed)
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, v&mask)
			return nil
		})
		return ms.vFinish(t)
	}
}

// vScaledShiftEmitter implements vssrl/vssra: shift with vxrm rounding
func vScaledShiftEmitter(arith bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, err := h.vectorBegin(ms.Info)
		if err != nil {
			return err
		}
		vxrm := h.CSR.Raw(CSRvcsr) >> vcsrRmShift & 0x3
		mask := widthMask(uint16(env.cfg.SEW))
		t := h.runElements(env, func(i uint64) *TrapError {
			shift := uint(ms.vSrc1(env, i) & uint64(env.cfg.SEW-1))
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			var v uint64
			if arith {
				v = fixedPointShift(uint64(signExtend(b, env.cfg.SEW)), shift, vxrm, true)
			} else {
				v = fixedPointShift(b, shift, vxrm, false)
			}
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, v&mask)
			return nil
		})
		return ms.vFinish(t)
	}
}

// fixedPointShift applies the vxrm discard-bit adjustment, then shifts
func fixedPointShift(v uint64, shift uint, vxrm uint64, signed bool) uint64 {
	if shift == 0 {
		return v
	}
	discarded := v & (1<<shift - 1)
	var shifted uint64
	if signed {
		shifted = uint64(int64(v) >> shift)
	} else {
		shifted = v >> shift
	}
	switch vxrm {
	case vxrmRNU:
		if discarded>>(shift-1)&1 != 0 {
			shifted++
		}
	case vxrmRNE:
		top := discarded >> (shift - 1) & 1
		rest := discarded & (1<<(shift-1) - 1)
		if top != 0 && (rest != 0 || shifted&1 != 0) {
			shifted++
		}
	case vxrmRDN:
		// truncate
	case vxrmROD:
		if discarded != 0 {
			shifted |= 1
		}
	}
	return shifted
}

// satAddSigned saturates a+b to the signed sew range
func satAddSigned(a, b int64, sew uint) (uint64, bool) {
	s := a + b
	lo := -(int64(1) << (sew - 1))
	hi := int64(1)<<(sew-1) - 1
	if sew == 64 {
		// detect 64-bit overflow from the operand signs
		if a > 0 && b > 0 && s < 0 {
			return uint64(hi), true
		}
		if a < 0 && b < 0 && s >= 0 {
			return uint64(lo), true
		}
		return uint64(s), false
	}
	if s > hi {
		return uint64(hi), true
	}
	if s < lo {
		return uint64(lo), true
	}
	return uint64(s), false
}

// mulHigh returns the high sew bits of the product
func mulHigh(a, b uint64, sew uint, aSigned, bSigned bool) uint64 {
	if sew < 64 {
		return a * b >> sew
	}
	hi, _ := bits.Mul64(a, b)
	if aSigned && int64(a) < 0 {
		hi -= b
	}
	if bSigned && int64(b) < 0 {
		hi -= a
	}
	return hi
}
