package vm

// Vector loads and stores: unit-stride, strided, indexed, fault-only-
// first, whole-register and mask transfers. The element loop is the same
// explicit iterator the arithmetic ops use, so a mid-instruction fault
// leaves vstart at the faulting element.

func registerVectorMemEmitters() {
	register(OpVLE, vLoadEmitter(strideUnit))
	register(OpVLSE, vLoadEmitter(strideScalar))
	register(OpVLXE, vLoadEmitter(strideIndexed))
	register(OpVSE, vStoreEmitter(strideUnit))
	register(OpVSSE, vStoreEmitter(strideScalar))
	register(OpVSXE, vStoreEmitter(strideIndexed))

	register(OpVLEFF, func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		if !h.Variant.FaultOnlyFirst {
			return IllegalInstruction(info.Raw, "fault-only-first loads disabled")
		}
		eew := uint(info.MemBits)
		base := h.GetX(int(info.Rs1.Index))
		size := uint64(eew / 8)

		// explicit iterator: the ff_active flag is set before the loop and
		// cleared when a later element faults, truncating vl instead of
		// raising the exception
		ffActive := true
		for i := env.vstart; i < env.vl; i++ {
			if !env.active(h, i) {
				continue
			}
			addr := base + i*size
			v, trap := h.Mem.Read(h, addr, size)
			if trap != nil {
				if i == 0 {
					h.CSR.SetRaw(CSRvstart, 0)
					return trap // element 0 faults architecturally
				}
				ffActive = false
				h.CSR.SetRaw(CSRvl, i)
				env.vl = i
				break
			}
			h.VSetElem(int(info.Rd.Index), i, eew, v)
		}
		if ffActive {
			// tail fill only applies when no truncation happened
			h.vectorTailFill(env)
		}
		h.SetVSDirty()
		h.CSR.SetRaw(CSRvstart, 0)
		h.PC = ms.nextPC()
		return nil
	})

	register(OpVLM, func(ms *MorphState) error {
		return ms.vWholeMask(true)
	})
	register(OpVSM, func(ms *MorphState) error {
		return ms.vWholeMask(false)
	})
	register(OpVLRE, func(ms *MorphState) error {
		return ms.vWholeReg(true)
	})
	register(OpVSRE, func(ms *MorphState) error {
		return ms.vWholeReg(false)
	})
}

type strideKind int

const (
	strideUnit strideKind = iota
	strideScalar
	strideIndexed
)

// vElemAddr computes the effective address of element i
func (ms *MorphState) vElemAddr(kind strideKind, env *vectorEnv, base uint64, i uint64, size uint64) uint64 {
	switch kind {
	case strideScalar:
		return base + i*ms.Hart.GetX(int(ms.Info.Rs2.Index))
	case strideIndexed:
		// index EEW follows the instruction's memory width
		return base + ms.Hart.VGetElem(int(ms.Info.Rs2.Index), i, uint(ms.Info.MemBits))
	default:
		return base + i*size
	}
}

func vLoadEmitter(kind strideKind) emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		eew := uint(info.MemBits)
		if kind == strideIndexed {
			// data elements use SEW; the index vector uses the memory width
			eew = env.cfg.SEW
		}
		size := uint64(info.MemBits / 8)
		if kind != strideIndexed {
			size = uint64(eew / 8)
		}
		dataSize := uint64(eew / 8)
		env.sewDst = eew // tail fill follows the effective element width
		base := h.GetX(int(info.Rs1.Index))

		t := h.runElements(env, func(i uint64) *TrapError {
			addr := ms.vElemAddr(kind, env, base, i, size)
			v, trap := h.Mem.Read(h, addr, dataSize)
			if trap != nil {
				return trap
			}
			h.VSetElem(int(info.Rd.Index), i, eew, v)
			return nil
		})
		return ms.vFinish(t)
	}
}

func vStoreEmitter(kind strideKind) emitFn {
	return func(ms *MorphState) error {
		h, info := ms.Hart, ms.Info
		env, err := h.vectorBegin(info)
		if err != nil {
			return err
		}
		eew := uint(info.MemBits)
		if kind == strideIndexed {
			eew = env.cfg.SEW
		}
		size := uint64(info.MemBits / 8)
		if kind != strideIndexed {
			size = uint64(eew / 8)
		}
		dataSize := uint64(eew / 8)
		base := h.GetX(int(info.Rs1.Index))

		t := h.runElements(env, func(i uint64) *TrapError {
			addr := ms.vElemAddr(kind, env, base, i, size)
			// vs3 data travels in the Rd slot
			v := h.VGetElem(int(info.Rd.Index), i, eew)
			return h.Mem.Write(h, addr, dataSize, v)
		})
		return ms.vFinish(t)
	}
}

// vWholeMask implements vlm.v/vsm.v: ceil(vl/8) bytes of mask data
func (ms *MorphState) vWholeMask(load bool) error {
	h, info := ms.Hart, ms.Info
	if h.VSOff() {
		return h.illegalOrVirtual(info.Raw, true, "vector unit off")
	}
	cfg := h.VConfigCurrent()
	if cfg.Vill {
		return IllegalInstruction(info.Raw, "vtype.vill set")
	}
	vl := h.CSR.Raw(CSRvl)
	bytes := (vl + 7) / 8
	base := h.GetX(int(info.Rs1.Index))
	start := h.CSR.Raw(CSRvstart)

	for i := start; i < bytes; i++ {
		if load {
			v, t := h.Mem.Read(h, base+i, 1)
			if t != nil {
				h.CSR.SetRaw(CSRvstart, i)
				return t
			}
			h.V[uint64(info.Rd.Index)*uint64(h.Variant.VLEN/8)+i] = byte(v)
		} else {
			v := h.V[uint64(info.Rd.Index)*uint64(h.Variant.VLEN/8)+i]
			if t := h.Mem.Write(h, base+i, 1, uint64(v)); t != nil {
				h.CSR.SetRaw(CSRvstart, i)
				return t
			}
		}
	}
	if load {
		h.SetVSDirty()
	}
	h.CSR.SetRaw(CSRvstart, 0)
	h.PC = ms.nextPC()
	return nil
}

// vWholeReg implements vl<nf>re/vs<nf>r: nf+1 whole registers regardless
// of vtype, using vlmax of the encoded EEW
func (ms *MorphState) vWholeReg(load bool) error {
	h, info := ms.Hart, ms.Info
	if h.VSOff() {
		return h.illegalOrVirtual(info.Raw, true, "vector unit off")
	}
	nregs := uint64(info.Nf) + 1
	switch nregs {
	case 1, 2, 4, 8:
	default:
		return IllegalInstruction(info.Raw, "whole-register count must be 1/2/4/8")
	}
	if uint64(info.Rd.Index)%nregs != 0 {
		return IllegalInstruction(info.Raw, "whole-register group misaligned")
	}
	vlenB := uint64(h.Variant.VLEN / 8)
	total := nregs * vlenB
	base := h.GetX(int(info.Rs1.Index))
	start := h.CSR.Raw(CSRvstart) * uint64(info.MemBits/8)

	for i := start; i < total; i++ {
		off := uint64(info.Rd.Index)*vlenB + i
		if load {
			v, t := h.Mem.Read(h, base+i, 1)
			if t != nil {
				h.CSR.SetRaw(CSRvstart, i/uint64(info.MemBits/8))
				return t
			}
			h.V[off] = byte(v)
		} else {
			if t := h.Mem.Write(h, base+i, 1, uint64(h.V[off])); t != nil {
				h.CSR.SetRaw(CSRvstart, i/uint64(info.MemBits/8))
				return t
			}
		}
	}
	if load {
		h.SetVSDirty()
	}
	h.CSR.SetRaw(CSRvstart, 0)
	h.PC = ms.nextPC()
	return nil
}
