package vm

// Atomic and reservation-based accesses. The memory domain's atomic guard
// serialises the load-op-store window against other harts on the same
// domain; the AtomicCode field exposes the active phase to an external
// bus model via the extension hooks.

// LoadReserved implements LR.W/LR.D: load atomically and record the
// reservation granule
func (m *MemorySystem) LoadReserved(h *Hart, vaddr uint64, size uint64) (uint64, *TrapError) {
	m.atomicMu.Lock()
	defer m.atomicMu.Unlock()

	h.AtomicCode = AtomicLR
	defer func() { h.AtomicCode = AtomicNone }()

	if vaddr&(size-1) != 0 {
		// LR never tolerates misalignment regardless of the unaligned policy
		return 0, &TrapError{Cause: CauseMisalignedLoad, Tval: vaddr}
	}
	paddr, t := m.Translate(h, vaddr, AccessRead)
	if t != nil {
		return 0, t
	}
	if cls, err := m.pma(paddr, size); err == nil && !cls.Reservable {
		return 0, &TrapError{Cause: CauseLoadAccess, Tval: vaddr, Desc: "region not reservable"}
	}
	seg, offset, t := m.checkPhysical(h, paddr, vaddr, size, AccessRead)
	if t != nil {
		return 0, t
	}
	value := readPhys(seg, offset, size, h.bigEndian(AccessRead))
	h.Reservation = paddr &^ (h.Variant.ReservationGranule - 1)
	return value, nil
}

// StoreConditional implements SC.W/SC.D: returns 0 on success, 1 on
// failure. The store fault is generated in preference to any load fault,
// and the reservation is consumed either way.
func (m *MemorySystem) StoreConditional(h *Hart, vaddr uint64, size uint64, value uint64) (uint64, *TrapError) {
	m.atomicMu.Lock()
	defer m.atomicMu.Unlock()

	h.AtomicCode = AtomicSC
	defer func() { h.AtomicCode = AtomicNone }()
	defer h.ClearReservation()

	if vaddr&(size-1) != 0 {
		return 0, &TrapError{Cause: CauseMisalignedStore, Tval: vaddr}
	}
	paddr, t := m.TryWrite(h, vaddr, size)
	if t != nil {
		return 0, t
	}
	if !h.ReservationCovers(paddr) {
		return 1, nil
	}
	seg, offset, _ := m.checkPhysical(h, paddr, vaddr, size, AccessWrite)
	writePhys(seg, offset, size, value, h.bigEndian(AccessWrite))
	m.invalidateReservations(h, paddr)
	return 0, nil
}

// amoOp applies the binary operation of an AMO
func amoOp(code AtomicCode, old, operand uint64, size uint64) uint64 {
	if size == 4 {
		// operate on the sign-extended 32-bit views
		o32, p32 := int32(uint32(old)), int32(uint32(operand))
		var r uint32
		switch code {
		case AtomicSwap:
			r = uint32(p32)
		case AtomicAdd:
			r = uint32(o32 + p32)
		case AtomicAnd:
			r = uint32(old) & uint32(operand)
		case AtomicOr:
			r = uint32(old) | uint32(operand)
		case AtomicXor:
			r = uint32(old) ^ uint32(operand)
		case AtomicMin:
			if o32 < p32 {
				r = uint32(o32)
			} else {
				r = uint32(p32)
			}
		case AtomicMax:
			if o32 > p32 {
				r = uint32(o32)
			} else {
				r = uint32(p32)
			}
		case AtomicMinU:
			if uint32(old) < uint32(operand) {
				r = uint32(old)
			} else {
				r = uint32(operand)
			}
		case AtomicMaxU:
			if uint32(old) > uint32(operand) {
				r = uint32(old)
			} else {
				r = uint32(operand)
			}
		}
		return uint64(r)
	}

	switch code {
	case AtomicSwap:
		return operand
	case AtomicAdd:
		return old + operand
	case AtomicAnd:
		return old & operand
	case AtomicOr:
		return old | operand
	case AtomicXor:
		return old ^ operand
	case AtomicMin:
		if int64(old) < int64(operand) {
			return old
		}
		return operand
	case AtomicMax:
		if int64(old) > int64(operand) {
			return old
		}
		return operand
	case AtomicMinU:
		if old < operand {
			return old
		}
		return operand
	case AtomicMaxU:
		if old > operand {
			return old
		}
		return operand
	}
	return old
}

// AMO performs an atomic read-modify-write: try-store first (so a store
// fault wins over a load fault), then load, op, store under the guard.
// The previous memory value is returned.
func (m *MemorySystem) AMO(h *Hart, code AtomicCode, vaddr uint64, size uint64, operand uint64) (uint64, *TrapError) {
	m.atomicMu.Lock()
	defer m.atomicMu.Unlock()

	h.AtomicCode = code
	defer func() { h.AtomicCode = AtomicNone }()

	if vaddr&(size-1) != 0 {
		return 0, &TrapError{Cause: CauseMisalignedStore, Tval: vaddr}
	}
	paddr, t := m.TryWrite(h, vaddr, size)
	if t != nil {
		return 0, t
	}
	if cls, err := m.pma(paddr, size); err == nil && !cls.AtomicOK && !cls.Device {
		return 0, &TrapError{Cause: CauseStoreAccess, Tval: vaddr, Desc: "region does not support atomics"}
	}

	// a derived model may take over the whole sequence
	if done, result, t := h.Ext.customAMO(h, code, paddr, size, operand); done {
		return result, t
	}

	seg, offset, t := m.checkPhysical(h, paddr, vaddr, size, AccessRead)
	if t != nil {
		return 0, t
	}
	big := h.bigEndian(AccessRead)
	old := readPhys(seg, offset, size, big)
	writePhys(seg, offset, size, amoOp(code, old, operand, size), big)
	m.invalidateReservations(h, paddr)
	return old, nil
}

// CacheOp reduces CBO.CLEAN/FLUSH/INVAL to a try-write on the aligned
// line so PMP and page faults surface faithfully; CBO.ZERO also stores
// zeros over the whole line
func (m *MemorySystem) CacheOp(h *Hart, vaddr uint64, zero bool) *TrapError {
	line := h.Variant.CacheLineBytes
	base := vaddr &^ (line - 1)
	paddr, t := m.TryWrite(h, base, line)
	if t != nil {
		return t
	}
	if zero {
		seg, offset, t := m.checkPhysical(h, paddr, base, line, AccessWrite)
		if t != nil {
			return t
		}
		for i := uint64(0); i < line; i++ {
			seg.Data[offset+i] = 0
		}
		m.invalidateReservations(h, paddr)
	}
	return nil
}
