package vm

import (
	"fmt"
)

// Cause is an architectural exception or interrupt cause code
type Cause uint64

// Exception causes
const (
	CauseMisalignedFetch    Cause = 0
	CauseFetchAccess        Cause = 1
	CauseIllegalInstruction Cause = 2
	CauseBreakpoint         Cause = 3
	CauseMisalignedLoad     Cause = 4
	CauseLoadAccess         Cause = 5
	CauseMisalignedStore    Cause = 6
	CauseStoreAccess        Cause = 7
	CauseUserECall          Cause = 8
	CauseSupervisorECall    Cause = 9
	CauseVirtualSupECall    Cause = 10
	CauseMachineECall       Cause = 11
	CauseFetchPageFault     Cause = 12
	CauseLoadPageFault      Cause = 13
	CauseStorePageFault     Cause = 15
	CauseFetchGuestPage     Cause = 20
	CauseLoadGuestPage      Cause = 21
	CauseVirtualInstruction Cause = 22
	CauseStoreGuestPage     Cause = 23
)

// Interrupt causes (the interrupt bit is added on CSR write)
const (
	IntSSoft  Cause = 1
	IntVSSoft Cause = 2
	IntMSoft  Cause = 3
	IntSTimer Cause = 5
	IntVSTimer Cause = 6
	IntMTimer Cause = 7
	IntSExt   Cause = 9
	IntVSExt  Cause = 10
	IntMExt   Cause = 11
	IntSGuestExt Cause = 12
)

// TrapError is an architectural exception travelling up to the execution
// loop. It is an error so instruction bodies can abort with ordinary
// error returns, but it is consumed by the trap machine rather than
// reported to the caller.
type TrapError struct {
	Cause Cause
	Tval  uint64
	Tval2 uint64 // guest physical address >> 2 for guest-page faults
	Desc  string
}

func (t *TrapError) Error() string {
	if t.Desc != "" {
		return fmt.Sprintf("trap cause=%d tval=0x%X: %s", t.Cause, t.Tval, t.Desc)
	}
	return fmt.Sprintf("trap cause=%d tval=0x%X", t.Cause, t.Tval)
}

// IllegalInstruction builds the Illegal-Instruction trap carrying the
// faulting opcode
func IllegalInstruction(raw uint32, desc string) *TrapError {
	return &TrapError{Cause: CauseIllegalInstruction, Tval: uint64(raw), Desc: desc}
}

// VirtualInstruction builds the Virtual-Instruction trap
func VirtualInstruction(raw uint32, desc string) *TrapError {
	return &TrapError{Cause: CauseVirtualInstruction, Tval: uint64(raw), Desc: desc}
}

// FatalError is a simulator-internal error: unknown CSR wiring, an
// unimplemented operation tag, malformed configuration. It aborts the
// simulation and must never be converted into an architectural trap.
type FatalError struct {
	PC   uint64
	Desc string
}

func (f *FatalError) Error() string {
	return fmt.Sprintf("fatal simulator error at PC=0x%016X: %s", f.PC, f.Desc)
}

// illegalOrVirtual picks between Illegal-Instruction and Virtual-Instruction
// based on the current mode: a condition that arises purely from hypervisor
// configuration raises Virtual-Instruction when detected in VS/VU
func (h *Hart) illegalOrVirtual(raw uint32, virtualCause bool, desc string) *TrapError {
	if virtualCause && h.Mode.Virtual() {
		return VirtualInstruction(raw, desc)
	}
	return IllegalInstruction(raw, desc)
}

// interruptBit returns the xlen-appropriate interrupt flag for cause values
func (h *Hart) interruptBit() uint64 {
	if h.Variant.XLEN == 32 {
		return 1 << 31
	}
	return 1 << 63
}

// Trap routes an exception to the correct mode and performs the entry.
// Delegation consults medeleg/mideleg, then hedeleg/hideleg for traps
// arising in virtual modes.
func (h *Hart) Trap(t *TrapError, interrupt bool) {
	target := h.trapTarget(t.Cause, interrupt)

	cause := uint64(t.Cause)
	if interrupt {
		cause |= h.interruptBit()
	}

	h.Ext.notifyTrap(h, t, target)

	// An LR reservation does not survive a trap entry
	h.ClearReservation()

	switch target {
	case ModeM:
		h.trapEnterM(cause, t)
	case ModeS:
		h.trapEnterS(cause, t, false)
	case ModeVS:
		h.trapEnterS(cause, t, true)
	}
}

// trapTarget applies the two delegation levels
func (h *Hart) trapTarget(c Cause, interrupt bool) Mode {
	if h.Mode == ModeM {
		return ModeM
	}
	bit := uint64(1) << uint(c)
	var mdeleg uint64
	if interrupt {
		mdeleg = h.CSR.Raw(CSRmideleg)
	} else {
		mdeleg = h.CSR.Raw(CSRmedeleg)
	}
	if mdeleg&bit == 0 || !h.Variant.Has(ExtS) {
		return ModeM
	}
	if h.Mode.Virtual() && h.Variant.Has(ExtH) {
		var hdeleg uint64
		if interrupt {
			hdeleg = h.CSR.Raw(CSRhideleg)
		} else {
			hdeleg = h.CSR.Raw(CSRhedeleg)
		}
		if hdeleg&bit != 0 {
			return ModeVS
		}
	}
	return ModeS
}

func (h *Hart) trapEnterM(cause uint64, t *TrapError) {
	status := h.CSR.Raw(CSRmstatus)

	// stack: MPP <- mode, MPV <- V, MPIE <- MIE, MIE <- 0
	status &^= StatusMPPMask
	status |= h.Mode.Base() << StatusMPPShift
	if h.Variant.Has(ExtH) {
		status &^= StatusMPV
		if h.Mode.Virtual() {
			status |= StatusMPV
		}
	}
	status &^= StatusMPIE
	if status&StatusMIE != 0 {
		status |= StatusMPIE
	}
	status &^= StatusMIE
	h.CSR.SetRaw(CSRmstatus, status)

	h.CSR.SetRaw(CSRmepc, h.PC)
	h.CSR.SetRaw(CSRmcause, cause)
	h.CSR.SetRaw(CSRmtval, t.Tval)
	if h.Variant.Has(ExtH) {
		h.CSR.SetRaw(CSRmtval2, t.Tval2)
	}

	h.Mode = ModeM
	h.PC = h.trapVector(CSRmtvec, cause)
}

func (h *Hart) trapEnterS(cause uint64, t *TrapError, virtual bool) {
	var statusCSR, epcCSR, causeCSR, tvalCSR, tvecCSR CSRIndex
	if virtual {
		statusCSR, epcCSR, causeCSR, tvalCSR, tvecCSR =
			CSRvsstatus, CSRvsepc, CSRvscause, CSRvstval, CSRvstvec
	} else {
		statusCSR, epcCSR, causeCSR, tvalCSR, tvecCSR =
			CSRmstatus, CSRsepc, CSRscause, CSRstval, CSRstvec
	}

	status := h.CSR.Raw(statusCSR)
	status &^= StatusSPP
	if h.Mode.Base() == 1 {
		status |= StatusSPP
	}
	status &^= StatusSPIE
	if status&StatusSIE != 0 {
		status |= StatusSPIE
	}
	status &^= StatusSIE
	h.CSR.SetRaw(statusCSR, status)

	if !virtual && h.Variant.Has(ExtH) {
		// HS-level trap from a virtual mode records SPV and the guest tval
		hs := h.CSR.Raw(CSRhstatus)
		hs &^= HStatusSPV
		if h.Mode.Virtual() {
			hs |= HStatusSPV
		}
		h.CSR.SetRaw(CSRhstatus, hs)
		h.CSR.SetRaw(CSRhtval, t.Tval2)
	}

	h.CSR.SetRaw(epcCSR, h.PC)
	h.CSR.SetRaw(causeCSR, cause)
	h.CSR.SetRaw(tvalCSR, t.Tval)

	if virtual {
		h.Mode = ModeVS
	} else {
		h.Mode = ModeS
	}
	h.PC = h.trapVector(tvecCSR, cause)
}

// trapVector applies the tvec MODE field: vectored interrupts jump to
// base + 4*cause
func (h *Hart) trapVector(tvec CSRIndex, cause uint64) uint64 {
	v := h.CSR.Raw(tvec)
	base := v &^ 0x3
	if v&0x3 == 1 && cause&h.interruptBit() != 0 {
		return base + 4*(cause&^h.interruptBit())
	}
	return base
}

// MRet implements MRET: restore from the M-level stack
func (h *Hart) MRet() error {
	if h.Mode != ModeM {
		return IllegalInstruction(0, "mret outside M-mode")
	}
	status := h.CSR.Raw(CSRmstatus)
	mpp := status >> StatusMPPShift & 0x3
	mpv := status&StatusMPV != 0

	// MIE <- MPIE, MPIE <- 1, MPP <- U
	status &^= StatusMIE
	if status&StatusMPIE != 0 {
		status |= StatusMIE
	}
	status |= StatusMPIE
	status &^= StatusMPPMask
	// MPRV is cleared whenever the return target is less privileged than M
	if mpp != 3 {
		status &^= StatusMPRV
	}
	status &^= StatusMPV
	h.CSR.SetRaw(CSRmstatus, status)

	h.Mode = h.modeFromStack(mpp, mpv)
	h.PC = h.CSR.Raw(CSRmepc)
	h.ClearReservation()
	return nil
}

// SRet implements SRET, including the TSR and VTSR traps
func (h *Hart) SRet(raw uint32) error {
	switch h.Mode {
	case ModeM:
	case ModeS:
		if h.CSR.Raw(CSRmstatus)&StatusTSR != 0 {
			return IllegalInstruction(raw, "sret with mstatus.TSR set")
		}
	case ModeVS:
		if h.CSR.Raw(CSRhstatus)&HStatusVTSR != 0 {
			return VirtualInstruction(raw, "sret with hstatus.VTSR set")
		}
		// virtual sret restores from the VS-level stack
		return h.sretFrom(CSRvsstatus, CSRvsepc, true)
	default:
		return h.illegalOrVirtual(raw, true, "sret from unprivileged mode")
	}
	return h.sretFrom(CSRmstatus, CSRsepc, false)
}

func (h *Hart) sretFrom(statusCSR, epcCSR CSRIndex, virtual bool) error {
	status := h.CSR.Raw(statusCSR)
	spp := status >> 8 & 0x1

	status &^= StatusSIE
	if status&StatusSPIE != 0 {
		status |= StatusSIE
	}
	status |= StatusSPIE
	status &^= StatusSPP
	// the return target is never M, so MPRV cannot stay set
	status &^= StatusMPRV
	h.CSR.SetRaw(statusCSR, status)

	if virtual {
		if spp == 1 {
			h.Mode = ModeVS
		} else {
			h.Mode = ModeVU
		}
	} else {
		spv := false
		if h.Variant.Has(ExtH) {
			hs := h.CSR.Raw(CSRhstatus)
			spv = hs&HStatusSPV != 0
			h.CSR.SetRaw(CSRhstatus, hs&^HStatusSPV)
		}
		h.Mode = h.modeFromStack(spp, spv)
	}
	h.PC = h.CSR.Raw(epcCSR)
	h.ClearReservation()
	return nil
}

// MNRet implements the resumable-NMI return
func (h *Hart) MNRet(raw uint32) error {
	if h.Mode != ModeM {
		return IllegalInstruction(raw, "mnret outside M-mode")
	}
	mnstatus := h.CSR.Raw(CSRmnstatus)
	mpp := mnstatus >> StatusMPPShift & 0x3
	h.CSR.SetRaw(CSRmnstatus, mnstatus|0x8) // set NMIE
	h.Mode = h.modeFromStack(mpp, mnstatus&StatusMPV != 0)
	h.PC = h.CSR.Raw(CSRmnepc)
	return nil
}

// DRet leaves debug mode
func (h *Hart) DRet(raw uint32) error {
	if h.Mode != ModeDebug {
		return IllegalInstruction(raw, "dret outside debug mode")
	}
	h.Mode = ModeM
	h.PC = h.CSR.Raw(CSRdpc)
	h.Disable &^= DisableDebug
	return nil
}

// modeFromStack converts a saved two-bit privilege + virtual flag back to a Mode
func (h *Hart) modeFromStack(pp uint64, virtual bool) Mode {
	switch pp {
	case 3:
		return ModeM
	case 1:
		if virtual && h.Variant.Has(ExtH) {
			return ModeVS
		}
		return ModeS
	default:
		if virtual && h.Variant.Has(ExtH) {
			return ModeVU
		}
		return ModeU
	}
}

// PendingInterrupt samples mip&mie under the current enable stack and
// returns the highest-priority pending interrupt, if any. Priority is
// MEI > MSI > MTI > SEI > SSI > STI > VS variants, with an extension
// override hook.
func (h *Hart) PendingInterrupt() (Cause, bool) {
	pending := h.CSR.Raw(CSRmip) & h.CSR.Raw(CSRmie)
	if pending == 0 {
		return 0, false
	}

	status := h.CSR.Raw(CSRmstatus)
	mideleg := h.CSR.Raw(CSRmideleg)

	// machine-level interrupts: enabled below M, or in M when MIE set
	mEnabled := h.Mode != ModeM || status&StatusMIE != 0
	// supervisor-level: enabled below S, or in S when SIE set
	sEnabled := h.Mode == ModeU || h.Mode.Virtual() ||
		(h.Mode == ModeS && status&StatusSIE != 0)

	order := []Cause{IntMExt, IntMSoft, IntMTimer, IntSExt, IntSSoft, IntSTimer,
		IntVSExt, IntVSSoft, IntVSTimer, IntSGuestExt}
	if o := h.Ext.interruptPriority(h, order); o != nil {
		order = o
	}

	for _, c := range order {
		bit := uint64(1) << uint(c)
		if pending&bit == 0 {
			continue
		}
		delegated := mideleg&bit != 0
		if !delegated {
			if mEnabled {
				return c, true
			}
		} else if sEnabled {
			return c, true
		}
	}
	return 0, false
}

// UpdateInterrupt is the external interrupt-controller input: it drives a
// single mip bit and becomes visible at the next instruction boundary
func (h *Hart) UpdateInterrupt(index uint, level bool) {
	mip := h.CSR.Raw(CSRmip)
	if level {
		mip |= 1 << index
	} else {
		mip &^= 1 << index
	}
	h.CSR.SetRaw(CSRmip, mip)
	if level {
		// a pending interrupt releases a waiting hart
		h.Disable &^= DisableWFI
	}
}
