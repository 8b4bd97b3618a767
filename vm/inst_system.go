package vm

// System emitters: environment calls, CSR accesses, returns, fences and
// cache-management operations

func registerSystemEmitters() {
	register(OpECALL, func(ms *MorphState) error {
		var cause Cause
		switch ms.Hart.Mode {
		case ModeU, ModeVU:
			cause = CauseUserECall
		case ModeS:
			cause = CauseSupervisorECall
		case ModeVS:
			cause = CauseVirtualSupECall
		default:
			cause = CauseMachineECall
		}
		return &TrapError{Cause: cause}
	})
	register(OpEBREAK, func(ms *MorphState) error {
		return &TrapError{Cause: CauseBreakpoint, Tval: ms.Info.PC}
	})

	register(OpCSRRW, csrEmitter(func(old, operand uint64) uint64 { return operand }, true, false))
	register(OpCSRRS, csrEmitter(func(old, operand uint64) uint64 { return old | operand }, false, false))
	register(OpCSRRC, csrEmitter(func(old, operand uint64) uint64 { return old &^ operand }, false, false))
	register(OpCSRRWI, csrEmitter(func(old, operand uint64) uint64 { return operand }, true, true))
	register(OpCSRRSI, csrEmitter(func(old, operand uint64) uint64 { return old | operand }, false, true))
	register(OpCSRRCI, csrEmitter(func(old, operand uint64) uint64 { return old &^ operand }, false, true))

	register(OpMRET, func(ms *MorphState) error {
		if ms.Hart.Mode != ModeM {
			return IllegalInstruction(ms.Info.Raw, "mret below M-mode")
		}
		return ms.Hart.MRet()
	})
	register(OpSRET, func(ms *MorphState) error {
		return ms.Hart.SRet(ms.Info.Raw)
	})
	register(OpMNRET, func(ms *MorphState) error {
		return ms.Hart.MNRet(ms.Info.Raw)
	})
	register(OpDRET, func(ms *MorphState) error {
		return ms.Hart.DRet(ms.Info.Raw)
	})

	register(OpWFI, func(ms *MorphState) error {
		h := ms.Hart
		// TW traps WFI from any mode below M; VTW from virtual modes
		if h.Mode != ModeM {
			if h.CSR.Raw(CSRmstatus)&StatusTW != 0 {
				return h.illegalOrVirtual(ms.Info.Raw, h.Mode.Virtual(), "wfi with mstatus.TW set")
			}
			if h.Mode.Virtual() && h.CSR.Raw(CSRhstatus)&HStatusVTW != 0 {
				return VirtualInstruction(ms.Info.Raw, "wfi with hstatus.VTW set")
			}
		}
		h.PC = ms.nextPC()
		if !h.Variant.WFIIsNop {
			if _, pending := h.PendingInterrupt(); !pending {
				h.Disable |= DisableWFI
			}
		}
		return nil
	})

	register(OpFENCE, func(ms *MorphState) error {
		// the predecessor/successor sets order accesses on the shared
		// domain; a sequential interpreter is already fully ordered
		ms.Hart.PC = ms.nextPC()
		return nil
	})
	register(OpFENCEI, func(ms *MorphState) error {
		// instruction-cache invalidation: drop cached translations
		ms.Hart.Mem.FlushTLBs()
		ms.Hart.PC = ms.nextPC()
		return nil
	})

	register(OpSFENCEVMA, sfenceEmitter(false))
	register(OpSINVALVMA, sfenceEmitter(true))
	register(OpSFENCEWINVAL, func(ms *MorphState) error {
		if err := ms.Hart.checkSFencePriv(ms.Info.Raw); err != nil {
			return err
		}
		ms.Hart.PC = ms.nextPC()
		return nil
	})
	register(OpSFENCEINVALIR, func(ms *MorphState) error {
		if err := ms.Hart.checkSFencePriv(ms.Info.Raw); err != nil {
			return err
		}
		ms.Hart.PC = ms.nextPC()
		return nil
	})

	register(OpHFENCEVVMA, func(ms *MorphState) error {
		h := ms.Hart
		if h.Mode.Virtual() {
			return VirtualInstruction(ms.Info.Raw, "hfence.vvma from virtual mode")
		}
		if h.Mode == ModeU {
			return IllegalInstruction(ms.Info.Raw, "hfence.vvma from U-mode")
		}
		h.Mem.SFenceVMA(TLBVS1, h.GetX(int(ms.Info.Rs1.Index)), h.GetX(int(ms.Info.Rs2.Index)),
			ms.Info.Rs1.Index == 0 && ms.Info.Rs2.Index == 0)
		h.PC = ms.nextPC()
		return nil
	})
	register(OpHFENCEGVMA, func(ms *MorphState) error {
		h := ms.Hart
		if h.Mode.Virtual() {
			return VirtualInstruction(ms.Info.Raw, "hfence.gvma from virtual mode")
		}
		if h.Mode == ModeU {
			return IllegalInstruction(ms.Info.Raw, "hfence.gvma from U-mode")
		}
		if h.Mode == ModeS && h.CSR.Raw(CSRmstatus)&StatusTVM != 0 {
			return IllegalInstruction(ms.Info.Raw, "hfence.gvma with mstatus.TVM set")
		}
		h.Mem.SFenceVMA(TLBVS2, h.GetX(int(ms.Info.Rs1.Index)), h.GetX(int(ms.Info.Rs2.Index)),
			ms.Info.Rs1.Index == 0 && ms.Info.Rs2.Index == 0)
		h.PC = ms.nextPC()
		return nil
	})

	register(OpCBOCLEAN, cboEmitter(EnvcfgCBCFE, false))
	register(OpCBOFLUSH, cboEmitter(EnvcfgCBCFE, false))
	register(OpCBOINVAL, cboEmitter(EnvcfgCBIE, false))
	register(OpCBOZERO, cboEmitter(EnvcfgCBZE, true))
}

// csrEmitter builds a CSR read-modify-write emitter. write is forced for
// CSRRW; CSRRS/CSRRC skip the write when the operand register is x0 (or
// the immediate is zero), which also skips the read-only check.
func csrEmitter(modify func(old, operand uint64) uint64, alwaysWrite, immediate bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		info := ms.Info
		idx := CSRIndex(info.CSR)

		var operand uint64
		operandZero := false
		if immediate {
			operand = uint64(info.Imm)
			operandZero = info.Imm == 0
		} else {
			operand = h.GetX(int(info.Rs1.Index))
			operandZero = info.Rs1.Index == 0
		}
		doWrite := alwaysWrite || !operandZero

		if err := h.CSR.CheckAccess(idx, doWrite, info.Raw); err != nil {
			return err
		}

		// CSRRW with rd=x0 skips the read side effects
		var old uint64
		if !(alwaysWrite && info.Rd.Index == 0) {
			var err error
			old, err = h.CSR.Read(idx)
			if err != nil {
				return err
			}
		}

		if doWrite {
			retained, err := h.CSR.Write(idx, modify(old, operand))
			if err != nil {
				return err
			}
			h.CSR.WriteState(idx, ms.Block)
			if d, ok := h.CSR.Lookup(idx); ok && d.WriteRdBypass {
				old = retained
			}
		}

		h.SetX(int(info.Rd.Index), old&h.Variant.XLenMask())
		h.PC = ms.nextPC()
		return nil
	}
}

// checkSFencePriv applies the privilege and TVM/VTVM rules shared by the
// SFENCE.VMA family
func (h *Hart) checkSFencePriv(raw uint32) error {
	switch h.Mode {
	case ModeM:
		return nil
	case ModeS:
		if h.CSR.Raw(CSRmstatus)&StatusTVM != 0 {
			return IllegalInstruction(raw, "sfence.vma with mstatus.TVM set")
		}
		return nil
	case ModeVS:
		if h.CSR.Raw(CSRhstatus)&HStatusVTVM != 0 {
			return VirtualInstruction(raw, "sfence.vma with hstatus.VTVM set")
		}
		return nil
	default:
		return h.illegalOrVirtual(raw, h.Mode.Virtual(), "sfence.vma from U-mode")
	}
}

func sfenceEmitter(invalOnly bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		if err := h.checkSFencePriv(ms.Info.Raw); err != nil {
			return err
		}
		class := TLBHS
		if h.Mode == ModeVS {
			class = TLBVS1
		}
		vaddr := h.GetX(int(ms.Info.Rs1.Index))
		asid := h.GetX(int(ms.Info.Rs2.Index))
		h.Mem.SFenceVMA(class, vaddr, asid, ms.Info.Rs1.Index == 0 && ms.Info.Rs2.Index == 0)
		h.PC = ms.nextPC()
		return nil
	}
}

// cboEmitter gates the operation on the per-mode envcfg enable and
// reduces it to a line-sized try-write (plus a zero fill for CBO.ZERO)
func cboEmitter(enableBit uint64, zero bool) emitFn {
	return func(ms *MorphState) error {
		h := ms.Hart
		if err := h.checkCBOEnable(ms.Info.Raw, enableBit); err != nil {
			return err
		}
		addr := h.GetX(int(ms.Info.Rs1.Index))
		if t := h.Mem.CacheOp(h, addr, zero); t != nil {
			return t
		}
		h.PC = ms.nextPC()
		return nil
	}
}

// checkCBOEnable walks the envcfg chain: menvcfg gates everything below
// M (Illegal), henvcfg additionally gates virtual modes (Virtual)
func (h *Hart) checkCBOEnable(raw uint32, bit uint64) error {
	if h.Mode == ModeM {
		return nil
	}
	if h.CSR.Raw(CSRmenvcfg)&bit == 0 {
		return IllegalInstruction(raw, "cache op disabled by menvcfg")
	}
	if h.Mode.Virtual() {
		if h.CSR.Raw(CSRhenvcfg)&bit == 0 {
			return VirtualInstruction(raw, "cache op disabled by henvcfg")
		}
		return nil
	}
	if h.Mode == ModeU && h.CSR.Raw(CSRsenvcfg)&bit == 0 {
		return IllegalInstruction(raw, "cache op disabled by senvcfg")
	}
	return nil
}
