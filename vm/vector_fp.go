package vm

// Vector floating-point emitters, composed from the scalar FP engine.
// Element width follows SEW; only 32- and 64-bit elements are valid FP
// shapes on this model.

func vfCheckSEW(ms *MorphState, env *vectorEnv) error {
	if env.cfg.SEW != 32 && env.cfg.SEW != 64 {
		return IllegalInstruction(ms.Info.Raw, "fp vector op at unsupported SEW")
	}
	return nil
}

func registerVectorFPEmitters() {
	register(OpVFADD, vfBinEmitter(OpFADD, false))
	register(OpVFSUB, vfBinEmitter(OpFSUB, false))
	register(OpVFRSUB, vfBinEmitter(OpFSUB, true))
	register(OpVFMUL, vfBinEmitter(OpFMUL, false))
	register(OpVFDIV, vfBinEmitter(OpFDIV, false))
	register(OpVFRDIV, vfBinEmitter(OpFDIV, true))

	register(OpVFSQRT, func(ms *MorphState) error {
		return ms.vfUnary(func(a uint64, sew uint, rm RoundingMode) FPResult {
			if sew == 32 {
				return FPUSqrt32(uint32(a), rm)
			}
			return FPUSqrt64(a, rm)
		})
	})
	register(OpVFRECE7, func(ms *MorphState) error {
		return ms.vfUnary(func(a uint64, sew uint, rm RoundingMode) FPResult {
			if sew == 32 {
				return FPURecip7_32(uint32(a), rm)
			}
			return FPURecip7_64(a, rm)
		})
	})
	register(OpVFRSQRTE7, func(ms *MorphState) error {
		return ms.vfUnary(func(a uint64, sew uint, rm RoundingMode) FPResult {
			if sew == 32 {
				return FPURSqrt7_32(uint32(a))
			}
			return FPURSqrt7_64(a)
		})
	})

	register(OpVFMIN, vfMinMaxEmitter(false))
	register(OpVFMAX, vfMinMaxEmitter(true))

	register(OpVFSGNJ, vfSgnjEmitter(func(a, b, signBit uint64) uint64 {
		return b&^signBit | a&signBit
	}))
	register(OpVFSGNJN, vfSgnjEmitter(func(a, b, signBit uint64) uint64 {
		return b&^signBit | ^a&signBit
	}))
	register(OpVFSGNJX, vfSgnjEmitter(func(a, b, signBit uint64) uint64 {
		return b ^ a&signBit
	}))

	register(OpVFMACC, vfFMAEmitter(false))
	register(OpVFNMACC, vfFMAEmitter(true))

	register(OpVFREDOSUM, vfRedSumEmitter())
	register(OpVFREDUSUM, vfRedSumEmitter()) // unordered folds in element order too
	register(OpVFREDMIN, vfRedMinMaxEmitter(false))
	register(OpVFREDMAX, vfRedMinMaxEmitter(true))
}

// vfBegin combines the vector and FP entry checks and resolves rounding
func (ms *MorphState) vfBegin() (*vectorEnv, RoundingMode, error) {
	if err := ms.fpEnter(); err != nil {
		return nil, 0, err
	}
	env, err := ms.Hart.vectorBegin(ms.Info)
	if err != nil {
		return nil, 0, err
	}
	if err := vfCheckSEW(ms, env); err != nil {
		return nil, 0, err
	}
	rm, err := ms.Hart.ResolveRM(ms.Info.Rnd, ms.Info.Raw)
	if err != nil {
		return nil, 0, err
	}
	return env, rm, nil
}

func vfBinEmitter(op Operation, reversed bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, rm, err := ms.vfBegin()
		if err != nil {
			return err
		}
		t := h.runElements(env, func(i uint64) *TrapError {
			a := ms.vSrc1(env, i)
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			if reversed {
				a, b = b, a
			}
			var r FPResult
			if env.cfg.SEW == 32 {
				r = FPUOp32(op, uint32(b), uint32(a), rm)
			} else {
				r = FPUOp64(op, b, a, rm)
			}
			ms.fflags |= r.Flags
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, r.Bits)
			return nil
		})
		return ms.vFinish(t)
	}
}

func (ms *MorphState) vfUnary(op func(a uint64, sew uint, rm RoundingMode) FPResult) error {
	h := ms.Hart
	env, rm, err := ms.vfBegin()
	if err != nil {
		return err
	}
	t := h.runElements(env, func(i uint64) *TrapError {
		a := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
		r := op(a, env.cfg.SEW, rm)
		ms.fflags |= r.Flags
		h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, r.Bits)
		return nil
	})
	return ms.vFinish(t)
}

func vfMinMaxEmitter(max bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, _, err := ms.vfBegin()
		if err != nil {
			return err
		}
		t := h.runElements(env, func(i uint64) *TrapError {
			a := ms.vSrc1(env, i)
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			var r FPResult
			if env.cfg.SEW == 32 {
				r = FPUMinMax32(uint32(b), uint32(a), max, h.Variant.FPVersion23)
			} else {
				r = FPUMinMax64(b, a, max, h.Variant.FPVersion23)
			}
			ms.fflags |= r.Flags
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, r.Bits)
			return nil
		})
		return ms.vFinish(t)
	}
}

func vfSgnjEmitter(combine func(src1, src2, signBit uint64) uint64) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, _, err := ms.vfBegin()
		if err != nil {
			return err
		}
		signBit := uint64(1) << (env.cfg.SEW - 1)
		t := h.runElements(env, func(i uint64) *TrapError {
			a := ms.vSrc1(env, i)
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, combine(a, b, signBit))
			return nil
		})
		return ms.vFinish(t)
	}
}

func vfFMAEmitter(negate bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		env, rm, err := ms.vfBegin()
		if err != nil {
			return err
		}
		t := h.runElements(env, func(i uint64) *TrapError {
			a := ms.vSrc1(env, i)
			b := h.VGetElem(int(ms.Info.Rs2.Index), i, env.cfg.SEW)
			d := h.VGetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW)
			var r FPResult
			if env.cfg.SEW == 32 {
				r = FPUFMA32(uint32(a), uint32(b), uint32(d), negate, negate, rm)
			} else {
				r = FPUFMA64(a, b, d, negate, negate, rm)
			}
			ms.fflags |= r.Flags
			h.VSetElem(int(ms.Info.Rd.Index), i, env.cfg.SEW, r.Bits)
			return nil
		})
		return ms.vFinish(t)
	}
}

func vfRedSumEmitter() emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, rm, err := ms.vfBegin()
		if err != nil {
			return err
		}
		if h.CSR.Raw(CSRvstart) != 0 {
			return IllegalInstruction(info.Raw, "fp reduction with non-zero vstart")
		}
		if env.vl == 0 {
			h.PC = ms.nextPC()
			return nil
		}
		acc := h.VGetElem(int(info.Rs1.Index), 0, env.cfg.SEW)
		for i := uint64(0); i < env.vl; i++ {
			if !env.active(h, i) {
				continue
			}
			v := h.VGetElem(int(info.Rs2.Index), i, env.cfg.SEW)
			var r FPResult
			if env.cfg.SEW == 32 {
				r = FPUOp32(OpFADD, uint32(acc), uint32(v), rm)
			} else {
				r = FPUOp64(OpFADD, acc, v, rm)
			}
			ms.fflags |= r.Flags
			acc = r.Bits
		}
		h.VSetElem(int(info.Rd.Index), 0, env.cfg.SEW, acc)
		h.vfRedTail(env, info)
		return nil
	}
}

func vfRedMinMaxEmitter(max bool) emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, _, err := ms.vfBegin()
		if err != nil {
			return err
		}
		if h.CSR.Raw(CSRvstart) != 0 {
			return IllegalInstruction(info.Raw, "fp reduction with non-zero vstart")
		}
		if env.vl == 0 {
			h.PC = ms.nextPC()
			return nil
		}
		acc := h.VGetElem(int(info.Rs1.Index), 0, env.cfg.SEW)
		for i := uint64(0); i < env.vl; i++ {
			if !env.active(h, i) {
				continue
			}
			v := h.VGetElem(int(info.Rs2.Index), i, env.cfg.SEW)
			var r FPResult
			if env.cfg.SEW == 32 {
				r = FPUMinMax32(uint32(acc), uint32(v), max, h.Variant.FPVersion23)
			} else {
				r = FPUMinMax64(acc, v, max, h.Variant.FPVersion23)
			}
			ms.fflags |= r.Flags
			acc = r.Bits
		}
		h.VSetElem(int(info.Rd.Index), 0, env.cfg.SEW, acc)
		h.vfRedTail(env, info)
		return nil
	}
}

// vfRedTail finishes an FP reduction: tail policy, vstart, VS dirty, PC
func (h *Hart) vfRedTail(env *vectorEnv, info *InstructionInfo) {
	if env.cfg.VTA && h.Variant.AgnosticOnes {
		for i := uint64(1); i < uint64(h.Variant.VLEN)/uint64(env.cfg.SEW); i++ {
			h.VSetElem(int(info.Rd.Index), i, env.cfg.SEW, ^uint64(0))
		}
	}
	h.SetVSDirty()
	h.CSR.SetRaw(CSRvstart, 0)
	h.PC = info.PC + uint64(info.Bytes)
}
