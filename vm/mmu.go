package vm

import "fmt"

// TLBClass selects one of the three translation caches
type TLBClass int

const (
	TLBHS  TLBClass = iota // single-stage (satp) translations
	TLBVS1                 // guest virtual -> guest physical (vsatp)
	TLBVS2                 // guest physical -> host physical (hgatp)
)

// tlbKey identifies a cached translation: at most one entry exists per
// (ASID or VMID, virtual page, privilege class) tuple
type tlbKey struct {
	asid  uint16
	vpage uint64
	user  bool
}

// TLBEntry caches a completed walk
type TLBEntry struct {
	PPage uint64
	Perms uint8 // PTE permission bits R/W/X/U
	A, D  bool
	Global bool
}

// PTE bits
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteG = 1 << 5
	pteA = 1 << 6
	pteD = 1 << 7
)

// walkSpec describes one paging mode
type walkSpec struct {
	levels   int
	pteSize  uint64
	vpnBits  uint
	pageBits uint
}

func walkSpecFor(mode uint64, xlen uint) (walkSpec, bool) {
	if xlen == 32 {
		if mode == 1 {
			return walkSpec{levels: 2, pteSize: 4, vpnBits: 10, pageBits: 12}, true
		}
		return walkSpec{}, false
	}
	switch mode {
	case 8: // Sv39
		return walkSpec{levels: 3, pteSize: 8, vpnBits: 9, pageBits: 12}, true
	case 9: // Sv48
		return walkSpec{levels: 4, pteSize: 8, vpnBits: 9, pageBits: 12}, true
	case 10: // Sv57
		return walkSpec{levels: 5, pteSize: 8, vpnBits: 9, pageBits: 12}, true
	}
	return walkSpec{}, false
}

// satpMode extracts the MODE field of a satp-format register
func satpMode(v uint64, xlen uint) uint64 {
	if xlen == 32 {
		return v >> 31
	}
	return v >> 60
}

func satpASID(v uint64, xlen uint) uint16 {
	if xlen == 32 {
		return uint16(v >> 22 & 0x1FF)
	}
	return uint16(v >> 44 & 0xFFFF)
}

func satpPPN(v uint64, xlen uint) uint64 {
	if xlen == 32 {
		return v & 0x3FFFFF
	}
	return v & (1<<44 - 1)
}

// Translate maps a virtual address to physical for the hart's current
// effective mode, consulting and filling the TLBs
func (m *MemorySystem) Translate(h *Hart, vaddr uint64, access AccessType) (uint64, *TrapError) {
	mode := h.effectiveMode()
	if access == AccessFetch {
		mode = h.Mode
	}

	if mode == ModeM || mode == ModeDebug {
		return vaddr & h.Variant.XLenMask(), nil
	}

	if mode.Virtual() {
		// stage 1: guest virtual -> guest physical via vsatp
		gpa := vaddr
		vsatp := h.CSR.Raw(CSRvsatp)
		if _, on := walkSpecFor(satpMode(vsatp, h.Variant.XLEN), h.Variant.XLEN); on {
			var t *TrapError
			gpa, t = m.walk(h, TLBVS1, vsatp, vaddr, access, mode == ModeVU, true)
			if t != nil {
				return 0, t
			}
		}
		// stage 2: guest physical -> host physical via hgatp
		return m.translateG(h, gpa, vaddr, access)
	}

	satp := h.CSR.Raw(CSRsatp)
	if _, on := walkSpecFor(satpMode(satp, h.Variant.XLEN), h.Variant.XLEN); !on {
		return vaddr & h.Variant.XLenMask(), nil
	}
	return m.walk(h, TLBHS, satp, vaddr, access, mode == ModeU, false)
}

// translateG performs the G-stage translation of a guest physical address
func (m *MemorySystem) translateG(h *Hart, gpa, vaddr uint64, access AccessType) (uint64, *TrapError) {
	hgatp := h.CSR.Raw(CSRhgatp)
	if _, on := walkSpecFor(satpMode(hgatp, h.Variant.XLEN), h.Variant.XLEN); !on {
		return gpa, nil
	}
	pa, t := m.walkG(h, hgatp, gpa, access)
	if t != nil {
		t.Tval = vaddr
		t.Tval2 = gpa >> 2
		return 0, t
	}
	return pa, nil
}

// sumMXR returns the SUM and MXR controls for the active stage
func (h *Hart) sumMXR(virtual bool) (sum, mxr bool) {
	status := h.CSR.Raw(CSRmstatus)
	if virtual {
		vs := h.CSR.Raw(CSRvsstatus)
		return vs&StatusSUM != 0, vs&StatusMXR != 0 || status&StatusMXR != 0
	}
	return status&StatusSUM != 0, status&StatusMXR != 0
}

// walk performs a single-stage page-table walk rooted at atp, filling the
// class TLB on success. user selects the privilege class; virtual marks a
// VS1-stage walk whose PTE loads are themselves G-stage translated.
func (m *MemorySystem) walk(h *Hart, class TLBClass, atp, vaddr uint64, access AccessType, user, virtual bool) (uint64, *TrapError) {
	xlen := h.Variant.XLEN
	spec, _ := walkSpecFor(satpMode(atp, xlen), xlen)
	asid := satpASID(atp, xlen)
	vpage := vaddr >> spec.pageBits

	if e, ok := m.tlbs[class][tlbKey{asid, vpage, user}]; ok {
		if t := m.checkPTEPerms(h, e.Perms, e.A, e.D, vaddr, access, user, virtual); t == nil {
			return e.PPage<<spec.pageBits | vaddr&(1<<spec.pageBits-1), nil
		}
		// cached entry no longer satisfies this access; re-walk
		delete(m.tlbs[class], tlbKey{asid, vpage, user})
	}

	// virtual addresses must be canonical for the active mode
	vaBits := spec.pageBits + uint(spec.levels)*spec.vpnBits
	if xlen == 64 {
		top := vaddr >> (vaBits - 1)
		if top != 0 && top != 1<<(64-vaBits+1)-1 {
			return 0, &TrapError{Cause: pageFaultCause(access), Tval: vaddr,
				Desc: "non-canonical virtual address"}
		}
	}

	a := satpPPN(atp, xlen) << spec.pageBits
	var pte uint64
	var pteAddr uint64
	level := spec.levels - 1

	for ; level >= 0; level-- {
		vpn := vaddr >> (spec.pageBits + uint(level)*spec.vpnBits) & (1<<spec.vpnBits - 1)
		pteAddr = a + vpn*spec.pteSize

		// a VS1-stage PTE load goes through the G-stage itself
		loadAddr := pteAddr
		if virtual {
			var t *TrapError
			loadAddr, t = m.translateG(h, pteAddr, vaddr, AccessRead)
			if t != nil {
				t.Cause = guestPageFaultCause(access)
				return 0, t
			}
		}

		seg, offset, t := m.checkPhysical(h, loadAddr, vaddr, spec.pteSize, AccessRead)
		if t != nil {
			return 0, &TrapError{Cause: accessFaultCause(access), Tval: vaddr,
				Desc: fmt.Sprintf("PTE load failed at 0x%016X", loadAddr)}
		}
		pte = readPhys(seg, offset, spec.pteSize, false)

		if h.Ext.validatePTE != nil && !h.Ext.validatePTE(h, pteAddr, pte, level) {
			return 0, &TrapError{Cause: pageFaultCause(access), Tval: vaddr, Desc: "PTE rejected by model hook"}
		}

		if pte&pteV == 0 || (pte&pteW != 0 && pte&pteR == 0) {
			return 0, &TrapError{Cause: pageFaultCause(access), Tval: vaddr,
				Desc: fmt.Sprintf("invalid PTE at level %d", level)}
		}
		if pte&(pteR|pteX) != 0 {
			break // leaf
		}
		a = pte >> 10 << spec.pageBits
	}
	if level < 0 {
		return 0, &TrapError{Cause: pageFaultCause(access), Tval: vaddr, Desc: "walk exhausted levels"}
	}

	// superpage alignment: the low PPN slices must be zero
	ppn := pte >> 10 & (1<<44 - 1)
	if level > 0 {
		align := uint64(1)<<(uint(level)*spec.vpnBits) - 1
		if ppn&align != 0 {
			return 0, &TrapError{Cause: pageFaultCause(access), Tval: vaddr, Desc: "misaligned superpage"}
		}
		// expand the superpage with the low VPN slices
		ppn |= vaddr >> spec.pageBits & align
	}

	perms := uint8(pte & (pteR | pteW | pteX | pteU))
	if t := m.checkPTEPerms(h, perms, pte&pteA != 0, pte&pteD != 0, vaddr, access, user, virtual); t != nil {
		return 0, t
	}

	// A/D update: set atomically when configured, else page fault
	if pte&pteA == 0 || (access == AccessWrite && pte&pteD == 0) {
		if !h.Variant.UpdatePTEAD {
			return 0, &TrapError{Cause: pageFaultCause(access), Tval: vaddr,
				Desc: "A/D update required"}
		}
		pte |= pteA
		if access == AccessWrite {
			pte |= pteD
		}
		loadAddr := pteAddr
		if virtual {
			loadAddr, _ = m.translateG(h, pteAddr, vaddr, AccessWrite)
		}
		if seg, offset, t := m.checkPhysical(h, loadAddr, vaddr, spec.pteSize, AccessWrite); t == nil {
			writePhys(seg, offset, spec.pteSize, pte, false)
		}
	}

	m.installTLB(class, tlbKey{asid, vpage, user}, &TLBEntry{
		PPage:  ppn,
		Perms:  perms,
		A:      pte&pteA != 0,
		D:      pte&pteD != 0,
		Global: pte&pteG != 0,
	})

	return ppn<<spec.pageBits | vaddr&(1<<spec.pageBits-1), nil
}

// walkG performs the G-stage walk. G-stage PTEs use the user bit for all
// accesses (guest accesses behave as user-level at this stage).
func (m *MemorySystem) walkG(h *Hart, hgatp, gpa uint64, access AccessType) (uint64, *TrapError) {
	xlen := h.Variant.XLEN
	spec, _ := walkSpecFor(satpMode(hgatp, xlen), xlen)
	vmid := satpASID(hgatp, xlen)
	vpage := gpa >> spec.pageBits

	if e, ok := m.tlbs[TLBVS2][tlbKey{vmid, vpage, true}]; ok {
		if gPermOK(e.Perms, access) && e.A && (access != AccessWrite || e.D) {
			return e.PPage<<spec.pageBits | gpa&(1<<spec.pageBits-1), nil
		}
		delete(m.tlbs[TLBVS2], tlbKey{vmid, vpage, true})
	}

	a := satpPPN(hgatp, xlen) << spec.pageBits
	var pte uint64
	var pteAddr uint64
	level := spec.levels - 1

	for ; level >= 0; level-- {
		vpn := gpa >> (spec.pageBits + uint(level)*spec.vpnBits) & (1<<spec.vpnBits - 1)
		pteAddr = a + vpn*spec.pteSize
		seg, offset, t := m.checkPhysical(h, pteAddr, gpa, spec.pteSize, AccessRead)
		if t != nil {
			return 0, &TrapError{Cause: accessFaultCause(access), Desc: "G-stage PTE load failed"}
		}
		pte = readPhys(seg, offset, spec.pteSize, false)
		if pte&pteV == 0 || (pte&pteW != 0 && pte&pteR == 0) {
			return 0, &TrapError{Cause: guestPageFaultCause(access), Desc: "invalid G-stage PTE"}
		}
		if pte&(pteR|pteX) != 0 {
			break
		}
		a = pte >> 10 << spec.pageBits
	}
	if level < 0 {
		return 0, &TrapError{Cause: guestPageFaultCause(access), Desc: "G-stage walk exhausted"}
	}

	ppn := pte >> 10 & (1<<44 - 1)
	if level > 0 {
		align := uint64(1)<<(uint(level)*spec.vpnBits) - 1
		if ppn&align != 0 {
			return 0, &TrapError{Cause: guestPageFaultCause(access), Desc: "misaligned G-stage superpage"}
		}
		ppn |= gpa >> spec.pageBits & align
	}

	perms := uint8(pte & (pteR | pteW | pteX | pteU))
	if pte&pteU == 0 || !gPermOK(perms, access) {
		return 0, &TrapError{Cause: guestPageFaultCause(access), Desc: "G-stage permission denied"}
	}
	if pte&pteA == 0 || (access == AccessWrite && pte&pteD == 0) {
		if !h.Variant.UpdatePTEAD {
			return 0, &TrapError{Cause: guestPageFaultCause(access), Desc: "G-stage A/D update required"}
		}
		pte |= pteA
		if access == AccessWrite {
			pte |= pteD
		}
		if seg, offset, t := m.checkPhysical(h, pteAddr, gpa, spec.pteSize, AccessWrite); t == nil {
			writePhys(seg, offset, spec.pteSize, pte, false)
		}
	}

	m.installTLB(TLBVS2, tlbKey{vmid, vpage, true}, &TLBEntry{
		PPage: ppn, Perms: perms,
		A: pte&pteA != 0, D: pte&pteD != 0, Global: pte&pteG != 0,
	})
	return ppn<<spec.pageBits | gpa&(1<<spec.pageBits-1), nil
}

func gPermOK(perms uint8, access AccessType) bool {
	switch access {
	case AccessRead:
		return perms&pteR != 0
	case AccessWrite:
		return perms&pteW != 0
	default:
		return perms&pteX != 0
	}
}

// checkPTEPerms applies U/SUM/MXR and the R/W/X requirement
func (m *MemorySystem) checkPTEPerms(h *Hart, perms uint8, a, d bool, vaddr uint64, access AccessType, user, virtual bool) *TrapError {
	sum, mxr := h.sumMXR(virtual)

	if user {
		if perms&pteU == 0 {
			return &TrapError{Cause: pageFaultCause(access), Tval: vaddr, Desc: "U-bit clear for user access"}
		}
	} else {
		// supervisor access to a user page needs SUM, and never executes
		if perms&pteU != 0 {
			if access == AccessFetch || !sum {
				return &TrapError{Cause: pageFaultCause(access), Tval: vaddr, Desc: "user page from supervisor"}
			}
		}
	}

	switch access {
	case AccessRead:
		if perms&pteR == 0 && !(mxr && perms&pteX != 0) {
			return &TrapError{Cause: pageFaultCause(access), Tval: vaddr, Desc: "page not readable"}
		}
	case AccessWrite:
		if perms&pteW == 0 {
			return &TrapError{Cause: pageFaultCause(access), Tval: vaddr, Desc: "page not writable"}
		}
	case AccessFetch:
		if perms&pteX == 0 {
			return &TrapError{Cause: pageFaultCause(access), Tval: vaddr, Desc: "page not executable"}
		}
	}
	if !a || (access == AccessWrite && !d) {
		return &TrapError{Cause: pageFaultCause(access), Tval: vaddr, Desc: "A/D check failed"}
	}
	return nil
}

// installTLB caches a walk result, evicting arbitrarily when full
func (m *MemorySystem) installTLB(class TLBClass, key tlbKey, e *TLBEntry) {
	tlb := m.tlbs[class]
	if m.variant != nil && m.variant.TLBSize > 0 && len(tlb) >= m.variant.TLBSize {
		for k := range tlb {
			m.freeTLBEntry(class, k, tlb[k])
			delete(tlb, k)
			break
		}
	}
	tlb[key] = e
}

func (m *MemorySystem) freeTLBEntry(class TLBClass, key tlbKey, e *TLBEntry) {
	for _, h := range m.harts {
		h.Ext.notifyTLBFree(h, class, key.vpage, e)
	}
}

// FlushTLB empties one translation cache
func (m *MemorySystem) FlushTLB(class TLBClass) {
	for k, e := range m.tlbs[class] {
		m.freeTLBEntry(class, k, e)
		delete(m.tlbs[class], k)
	}
}

// FlushTLBs empties all translation caches
func (m *MemorySystem) FlushTLBs() {
	for c := range m.tlbs {
		m.FlushTLB(TLBClass(c))
	}
}

// SFenceVMA invalidates matching entries: vaddr==0 matches every page,
// asid==0 matches every ASID; global entries ignore the ASID filter
func (m *MemorySystem) SFenceVMA(class TLBClass, vaddr uint64, asid uint64, matchAll bool) {
	tlb := m.tlbs[class]
	for k, e := range tlb {
		if !matchAll {
			if vaddr != 0 && k.vpage != vaddr>>12 {
				continue
			}
			if asid != 0 && !e.Global && uint64(k.asid) != asid {
				continue
			}
		}
		m.freeTLBEntry(class, k, e)
		delete(tlb, k)
	}
}
