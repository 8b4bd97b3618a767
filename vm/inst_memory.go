package vm

// Scalar loads, stores, atomics and FP loads/stores

func registerMemoryEmitters() {
	register(OpLB, loadEmitter(1, true))
	register(OpLH, loadEmitter(2, true))
	register(OpLW, loadEmitter(4, true))
	register(OpLD, loadEmitter(8, true))
	register(OpLBU, loadEmitter(1, false))
	register(OpLHU, loadEmitter(2, false))
	register(OpLWU, loadEmitter(4, false))

	register(OpSB, storeEmitter(1))
	register(OpSH, storeEmitter(2))
	register(OpSW, storeEmitter(4))
	register(OpSD, storeEmitter(8))

	register(OpLR, func(ms *MorphState) error {
		h := ms.Hart
		size := uint64(ms.Info.MemBits / 8)
		addr := h.GetX(int(ms.Info.Rs1.Index))
		v, t := h.Mem.LoadReserved(h, addr, size)
		if t != nil {
			return t
		}
		if size == 4 {
			v = uint64(int64(int32(uint32(v))))
		}
		h.SetX(int(ms.Info.Rd.Index), v)
		h.PC = ms.nextPC()
		return nil
	})
	register(OpSC, func(ms *MorphState) error {
		h := ms.Hart
		size := uint64(ms.Info.MemBits / 8)
		addr := h.GetX(int(ms.Info.Rs1.Index))
		r, t := h.Mem.StoreConditional(h, addr, size, h.GetX(int(ms.Info.Rs2.Index)))
		if t != nil {
			return t
		}
		h.SetX(int(ms.Info.Rd.Index), r)
		h.PC = ms.nextPC()
		return nil
	})

	register(OpAMOSWAP, amoEmitter(AtomicSwap))
	register(OpAMOADD, amoEmitter(AtomicAdd))
	register(OpAMOAND, amoEmitter(AtomicAnd))
	register(OpAMOOR, amoEmitter(AtomicOr))
	register(OpAMOXOR, amoEmitter(AtomicXor))
	register(OpAMOMIN, amoEmitter(AtomicMin))
	register(OpAMOMAX, amoEmitter(AtomicMax))
	register(OpAMOMINU, amoEmitter(AtomicMinU))
	register(OpAMOMAXU, amoEmitter(AtomicMaxU))

	// FP loads/stores: raw bit transfers, NaN-boxed on the way in
	register(OpFLW, fpLoadEmitter(4, 32))
	register(OpFLD, fpLoadEmitter(8, 64))
	register(OpFSW, fpStoreEmitter(4, 32))
	register(OpFSD, fpStoreEmitter(8, 64))
}

func loadEmitter(size uint64, signed bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		addr := h.GetX(int(ms.Info.Rs1.Index)) + uint64(ms.Info.Imm)
		v, t := h.Mem.Read(h, addr, size)
		if t != nil {
			return t
		}
		if signed {
			v = uint64(signExtend(v, uint(size*8)))
		}
		h.SetX(int(ms.Info.Rd.Index), v)
		h.PC = ms.nextPC()
		return nil
	}
}

func storeEmitter(size uint64) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		addr := h.GetX(int(ms.Info.Rs1.Index)) + uint64(ms.Info.Imm)
		if t := h.Mem.Write(h, addr, size, h.GetX(int(ms.Info.Rs2.Index))); t != nil {
			return t
		}
		h.PC = ms.nextPC()
		return nil
	}
}

func amoEmitter(code AtomicCode) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		size := uint64(ms.Info.MemBits / 8)
		addr := h.GetX(int(ms.Info.Rs1.Index))
		old, t := h.Mem.AMO(h, code, addr, size, h.GetX(int(ms.Info.Rs2.Index)))
		if t != nil {
			return t
		}
		if size == 4 {
			old = uint64(int64(int32(uint32(old))))
		}
		h.SetX(int(ms.Info.Rd.Index), old)
		h.PC = ms.nextPC()
		return nil
	}
}

func fpLoadEmitter(size uint64, width uint16) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		if h.FSOff() {
			return h.illegalOrVirtual(ms.Info.Raw, true, "fp load with FS off")
		}
		addr := h.GetX(int(ms.Info.Rs1.Index)) + uint64(ms.Info.Imm)
		v, t := h.Mem.Read(h, addr, size)
		if t != nil {
			return t
		}
		h.SetF(int(ms.Info.Rd.Index), v, width)
		ms.Block.MarkNaNBoxed(int(ms.Info.Rd.Index), width)
		h.PC = ms.nextPC()
		return nil
	}
}

func fpStoreEmitter(size uint64, width uint16) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		if h.FSOff() {
			return h.illegalOrVirtual(ms.Info.Raw, true, "fp store with FS off")
		}
		addr := h.GetX(int(ms.Info.Rs1.Index)) + uint64(ms.Info.Imm)
		// stores move the raw register image without a box check
		v := h.F[ms.Info.Rs2.Index] & widthMask(width)
		if t := h.Mem.Write(h, addr, size, v); t != nil {
			return t
		}
		h.PC = ms.nextPC()
		return nil
	}
}
