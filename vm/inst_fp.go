package vm

// Scalar floating-point emitters. Operand reads go through the NaN-box
// check; results are boxed into the FLEN register image. The block state
// tracks known-boxed registers so repeated narrow ops elide the check.

func registerFPEmitters() {
	register(OpFADD, fpBinEmitter(OpFADD))
	register(OpFSUB, fpBinEmitter(OpFSUB))
	register(OpFMUL, fpBinEmitter(OpFMUL))
	register(OpFDIV, fpBinEmitter(OpFDIV))

	register(OpFSQRT, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		rm, err := h.ResolveRM(info.Rnd, info.Raw)
		if err != nil {
			return err
		}
		a := ms.readF(info.Rs1)
		var r FPResult
		if info.Rd.Bits == 32 {
			r = FPUSqrt32(uint32(a), rm)
		} else {
			r = FPUSqrt64(a, rm)
		}
		ms.writeF(info.Rd, r.Bits)
		ms.fflags |= r.Flags
		h.PC = ms.nextPC()
		return nil
	})

	register(OpFSGNJ, fpSgnjEmitter(func(a, b, signBit uint64) uint64 {
		return a&^signBit | b&signBit
	}))
	register(OpFSGNJN, fpSgnjEmitter(func(a, b, signBit uint64) uint64 {
		return a&^signBit | ^b&signBit
	}))
	register(OpFSGNJX, fpSgnjEmitter(func(a, b, signBit uint64) uint64 {
		return a ^ b&signBit
	}))

	register(OpFMIN, fpMinMaxEmitter(false))
	register(OpFMAX, fpMinMaxEmitter(true))

	register(OpFMADD, fpFMAEmitter(false, false))
	register(OpFMSUB, fpFMAEmitter(false, true))
	register(OpFNMSUB, fpFMAEmitter(true, false))
	register(OpFNMADD, fpFMAEmitter(true, true))

	register(OpFEQ, fpCmpEmitter())
	register(OpFLT, fpCmpEmitter())
	register(OpFLE, fpCmpEmitter())

	register(OpFCLASS, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		a := ms.readF(info.Rs1)
		var r uint64
		if info.Rs1.Bits == 32 {
			r = FPUClass32(uint32(a))
		} else {
			r = FPUClass64(a)
		}
		h.SetX(int(info.Rd.Index), r)
		h.PC = ms.nextPC()
		return nil
	})

	register(OpFCVTIF, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		rm, err := h.ResolveRM(info.Rnd, info.Raw)
		if err != nil {
			return err
		}
		a := ms.readF(info.Rs1)
		v, flags := FPUToInt(a, info.Rs1.Bits, info.Rd.Bits,
			info.Rd.Flags&RegFlagUnsigned != 0, rm)
		if info.Rd.Bits == 32 && h.Variant.XLEN == 64 {
			v = uint64(int64(int32(uint32(v))))
		}
		h.SetX(int(info.Rd.Index), v)
		ms.fflags |= flags
		h.PC = ms.nextPC()
		return nil
	})
	register(OpFCVTFI, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		rm, err := h.ResolveRM(info.Rnd, info.Raw)
		if err != nil {
			return err
		}
		v := h.GetX(int(info.Rs1.Index))
		r := FPUFromInt(v, info.Rs1.Bits, info.Rs1.Flags&RegFlagUnsigned != 0, info.Rd.Bits, rm)
		ms.writeF(info.Rd, r.Bits)
		ms.fflags |= r.Flags
		h.PC = ms.nextPC()
		return nil
	})
	register(OpFCVTFF, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		if err := ms.checkZfhmin(); err != nil {
			return err
		}
		rm, err := h.ResolveRM(info.Rnd, info.Raw)
		if err != nil {
			return err
		}
		a := ms.readF(info.Rs1)
		r := FPUConvert(a, info.Rs1.Bits, info.Rd.Bits, rm)
		ms.writeF(info.Rd, r.Bits)
		ms.fflags |= r.Flags
		h.PC = ms.nextPC()
		return nil
	})

	register(OpFMVXF, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		v := h.F[info.Rs1.Index] & widthMask(info.Rs1.Bits)
		// the integer view is sign-extended from the FP width
		v = uint64(signExtend(v, uint(info.Rs1.Bits)))
		h.SetX(int(info.Rd.Index), v)
		h.PC = ms.nextPC()
		return nil
	})
	register(OpFMVFX, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		ms.writeF(info.Rd, h.GetX(int(info.Rs1.Index)))
		h.PC = ms.nextPC()
		return nil
	})
}

// fpEnter raises the FS-off trap shared by every FP emitter
func (ms *MorphState) fpEnter() error {
	if ms.Hart.FSOff() {
		return ms.Hart.illegalOrVirtual(ms.Info.Raw, true, "fp op with FS off")
	}
	return nil
}

// checkZfhmin rejects 16-bit operands when only Zfhmin-level support is
// configured off
func (ms *MorphState) checkZfhmin() error {
	info := ms.Info
	if info.Rs1.Bits != 16 && info.Rd.Bits != 16 {
		return nil
	}
	if !ms.Hart.Variant.Has(ExtZfhmin) {
		return IllegalInstruction(info.Raw, "half-precision requires Zfhmin")
	}
	return nil
}

// readF reads an FP operand through the NaN-box check, consulting the
// block state to skip checks for known-boxed registers
func (ms *MorphState) readF(r RegDesc) uint64 {
	h := ms.Hart
	if r.Flags&RegFlagNaNBox == 0 || ms.Block.KnownNaNBoxed(int(r.Index), r.Bits) {
		return h.F[r.Index] & widthMask(r.Bits)
	}
	return h.GetF(int(r.Index), r.Bits)
}

// writeF writes an FP result, boxing and updating block knowledge
func (ms *MorphState) writeF(r RegDesc, bits uint64) {
	h := ms.Hart
	h.SetF(int(r.Index), bits, r.Bits)
	if r.Bits < uint16(h.Variant.FLEN) {
		ms.Block.MarkNaNBoxed(int(r.Index), r.Bits)
	} else {
		ms.Block.ClearNaNBoxed(int(r.Index))
	}
	ms.Block.FSDirty = true
}

func fpBinEmitter(op Operation) emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		rm, err := h.ResolveRM(info.Rnd, info.Raw)
		if err != nil {
			return err
		}
		a, b := ms.readF(info.Rs1), ms.readF(info.Rs2)
		var r FPResult
		if info.Rd.Bits == 32 {
			r = FPUOp32(op, uint32(a), uint32(b), rm)
		} else {
			r = FPUOp64(op, a, b, rm)
		}
		ms.writeF(info.Rd, r.Bits)
		ms.fflags |= r.Flags
		h.PC = ms.nextPC()
		return nil
	}
}

func fpSgnjEmitter(combine func(a, b, signBit uint64) uint64) emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		a, b := ms.readF(info.Rs1), ms.readF(info.Rs2)
		signBit := uint64(1) << (info.Rd.Bits - 1)
		ms.writeF(info.Rd, combine(a, b, signBit))
		h.PC = ms.nextPC()
		return nil
	}
}

func fpMinMaxEmitter(max bool) emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		a, b := ms.readF(info.Rs1), ms.readF(info.Rs2)
		var r FPResult
		if info.Rd.Bits == 32 {
			r = FPUMinMax32(uint32(a), uint32(b), max, h.Variant.FPVersion23)
		} else {
			r = FPUMinMax64(a, b, max, h.Variant.FPVersion23)
		}
		ms.writeF(info.Rd, r.Bits)
		ms.fflags |= r.Flags
		h.PC = ms.nextPC()
		return nil
	}
}

func fpFMAEmitter(negProduct, negAddend bool) emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		rm, err := h.ResolveRM(info.Rnd, info.Raw)
		if err != nil {
			return err
		}
		a, b, c := ms.readF(info.Rs1), ms.readF(info.Rs2), ms.readF(info.Rs3)
		var r FPResult
		if info.Rd.Bits == 32 {
			r = FPUFMA32(uint32(a), uint32(b), uint32(c), negProduct, negAddend, rm)
		} else {
			r = FPUFMA64(a, b, c, negProduct, negAddend, rm)
		}
		ms.writeF(info.Rd, r.Bits)
		ms.fflags |= r.Flags
		h.PC = ms.nextPC()
		return nil
	}
}

func fpCmpEmitter() emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		if err := ms.fpEnter(); err != nil {
			return err
		}
		a, b := ms.readF(info.Rs1), ms.readF(info.Rs2)
		var r, flags uint64
		if info.Rs1.Bits == 32 {
			r, flags = FPUCompare32(info.Op, uint32(a), uint32(b))
		} else {
			r, flags = FPUCompare64(info.Op, a, b)
		}
		h.SetX(int(info.Rd.Index), r)
		ms.fflags |= flags
		h.PC = ms.nextPC()
		return nil
	}
}
