package vm

// Standard CSR definitions. Each entry wires the address to its mask,
// callbacks and policy flags; the registry machinery lives in csr.go.

const (
	fcsrFlagsMask = 0x1F
	fcsrFrmShift  = 5
	fcsrFrmMask   = 0x7 << fcsrFrmShift
	fcsrMask      = fcsrFlagsMask | fcsrFrmMask

	vcsrSatMask = 0x1
	vcsrRmShift = 1
	vcsrRmMask  = 0x3 << vcsrRmShift
)

// mstatus writable bits for this model (per-XLEN fields added in MaskFn)
const mstatusWritableBase = uint64(StatusSIE | StatusMIE | StatusSPIE | StatusMPIE |
	StatusSPP | StatusMPPMask | StatusFSMask | StatusVSMask |
	StatusMPRV | StatusSUM | StatusMXR | StatusTVM | StatusTW | StatusTSR)

const sstatusVisible = uint64(StatusSIE | StatusSPIE | StatusSPP |
	StatusFSMask | StatusVSMask | StatusSUM | StatusMXR | StatusUBE)

// supervisor-visible interrupt bits
const sInterruptMask = uint64(1<<IntSSoft | 1<<IntSTimer | 1<<IntSExt)
const mInterruptMask = sInterruptMask |
	uint64(1<<IntMSoft|1<<IntMTimer|1<<IntMExt)
const hsInterruptMask = uint64(1<<IntVSSoft | 1<<IntVSTimer | 1<<IntVSExt | 1<<IntSGuestExt)

// envcfg cache-management enables
const (
	EnvcfgFIOM = 1 << 0
	EnvcfgCBIE = 0x3 << 4
	EnvcfgCBCFE = 1 << 6
	EnvcfgCBZE = 1 << 7
)

func hasS(h *Hart) bool { return h.Variant.Has(ExtS) }
func hasH(h *Hart) bool { return h.Variant.Has(ExtH) }

func (b *CSRBank) defineStandard() {
	h := b.hart

	// ---- floating-point CSRs ----
	fpPresent := func(h *Hart) bool { return h.Variant.FLEN > 0 || h.Variant.Has(ExtZfinx) }
	b.define(&CSRDef{
		Addr: CSRfflags, Name: "fflags", Present: fpPresent, Mask: fcsrFlagsMask,
		Read: func(h *Hart) uint64 { return h.CSR.Raw(CSRfcsr) & fcsrFlagsMask },
		Write: func(h *Hart, v uint64) uint64 {
			h.CSR.SetRaw(CSRfcsr, h.CSR.Raw(CSRfcsr)&^uint64(fcsrFlagsMask)|v&fcsrFlagsMask)
			h.SetFSDirty()
			return v & fcsrFlagsMask
		},
	})
	b.define(&CSRDef{
		Addr: CSRfrm, Name: "frm", Present: fpPresent, Mask: 0x7, EndRM: true,
		Read: func(h *Hart) uint64 { return h.CSR.Raw(CSRfcsr) >> fcsrFrmShift & 0x7 },
		Write: func(h *Hart, v uint64) uint64 {
			h.CSR.SetRaw(CSRfcsr, h.CSR.Raw(CSRfcsr)&^uint64(fcsrFrmMask)|v<<fcsrFrmShift&fcsrFrmMask)
			h.SetFSDirty()
			return v & 0x7
		},
		WriteState: func(h *Hart, bs *BlockState) { bs.KnownRM = RoundCurrent; bs.RMValid = false },
	})
	b.define(&CSRDef{
		Addr: CSRfcsr, Name: "fcsr", Present: fpPresent, Mask: fcsrMask, EndRM: true,
		Read: func(h *Hart) uint64 { return h.CSR.Raw(CSRfcsr) & fcsrMask },
		Write: func(h *Hart, v uint64) uint64 {
			h.CSR.SetRaw(CSRfcsr, v&fcsrMask)
			h.SetFSDirty()
			return v & fcsrMask
		},
		WriteState: func(h *Hart, bs *BlockState) { bs.RMValid = false },
	})

	// ---- vector CSRs ----
	vPresent := func(h *Hart) bool { return h.Variant.Has(ExtV) }
	b.define(&CSRDef{
		Addr: CSRvstart, Name: "vstart", Arch: ExtV, EndBlock: true,
		MaskFn: func(h *Hart) uint64 { return uint64(h.Variant.VLEN - 1) },
		Write: func(h *Hart, v uint64) uint64 {
			h.CSR.SetRaw(CSRvstart, v)
			h.SetVSDirty()
			return v
		},
		WriteState: func(h *Hart, bs *BlockState) { bs.VStartZero = false },
	})
	b.define(&CSRDef{
		Addr: CSRvxsat, Name: "vxsat", Arch: ExtV, Mask: 0x1,
		Read: func(h *Hart) uint64 { return h.CSR.Raw(CSRvcsr) & vcsrSatMask },
		Write: func(h *Hart, v uint64) uint64 {
			h.CSR.SetRaw(CSRvcsr, h.CSR.Raw(CSRvcsr)&^uint64(vcsrSatMask)|v&vcsrSatMask)
			h.SetVSDirty()
			return v & vcsrSatMask
		},
	})
	b.define(&CSRDef{
		Addr: CSRvxrm, Name: "vxrm", Arch: ExtV, Mask: 0x3,
		Read: func(h *Hart) uint64 { return h.CSR.Raw(CSRvcsr) >> vcsrRmShift & 0x3 },
		Write: func(h *Hart, v uint64) uint64 {
			h.CSR.SetRaw(CSRvcsr, h.CSR.Raw(CSRvcsr)&^uint64(vcsrRmMask)|v<<vcsrRmShift&vcsrRmMask)
			h.SetVSDirty()
			return v & 0x3
		},
	})
	b.define(&CSRDef{
		Addr: CSRvcsr, Name: "vcsr", Arch: ExtV, Mask: 0x7,
		Write: func(h *Hart, v uint64) uint64 {
			h.CSR.SetRaw(CSRvcsr, v&0x7)
			h.SetVSDirty()
			return v & 0x7
		},
	})
	b.define(&CSRDef{Addr: CSRvl, Name: "vl", Arch: ExtV, NoTrace: true,
		WriteState: func(h *Hart, bs *BlockState) { bs.InvalidateVectorKnowledge() }})
	b.define(&CSRDef{Addr: CSRvtype, Name: "vtype", Arch: ExtV,
		WriteState: func(h *Hart, bs *BlockState) { bs.InvalidateVectorKnowledge() }})
	b.define(&CSRDef{Addr: CSRvlenb, Name: "vlenb", Arch: ExtV, Present: vPresent,
		Read: func(h *Hart) uint64 { return uint64(h.Variant.VLEN / 8) }})

	// ---- machine information ----
	b.define(&CSRDef{Addr: CSRmvendorid, Name: "mvendorid", Read: zeroRead})
	b.define(&CSRDef{Addr: CSRmarchid, Name: "marchid", Read: zeroRead})
	b.define(&CSRDef{Addr: CSRmimpid, Name: "mimpid", Read: zeroRead})
	b.define(&CSRDef{Addr: CSRmhartid, Name: "mhartid"})

	// ---- machine trap setup / handling ----
	b.define(&CSRDef{
		Addr: CSRmstatus, Name: "mstatus", EndBlock: true,
		MaskFn: func(h *Hart) uint64 {
			m := mstatusWritableBase
			if h.Variant.XLEN == 64 {
				m |= StatusMBE | StatusSBE | uint64(StatusUBE)
				if h.Variant.Has(ExtH) {
					m |= StatusMPV | StatusGVA
				}
			}
			return m
		},
		Write: func(h *Hart, v uint64) uint64 {
			if !h.Variant.Has(ExtS) {
				v &^= StatusSIE | StatusSPIE | StatusSPP | StatusSUM | StatusMXR |
					StatusTVM | StatusTSR
			}
			if h.Variant.FLEN == 0 {
				v &^= StatusFSMask
			}
			if !h.Variant.Has(ExtV) {
				v &^= StatusVSMask
			}
			// MPP can only hold a supported mode
			mpp := v >> StatusMPPShift & 0x3
			if mpp == 2 || (mpp == 1 && !h.Variant.Has(ExtS)) {
				v &^= StatusMPPMask
				v |= 3 << StatusMPPShift
			}
			v = withSD(v, h.Variant.XLEN)
			h.CSR.SetRaw(CSRmstatus, v)
			return v
		},
	})
	b.define(&CSRDef{
		Addr: CSRmisa, Name: "misa", EndBlock: true,
		MaskFn: func(h *Hart) uint64 {
			// only configured letters may be toggled; E and the MXL field are fixed
			return uint64(h.Variant.Extensions&misaLetterMask) &^ uint64(ExtE)
		},
		Write: func(h *Hart, v uint64) uint64 {
			// preserve MXL, force I on
			mxl := h.CSR.Raw(CSRmisa) &^ uint64(misaLetterMask)
			v = v&uint64(misaLetterMask) | mxl | uint64(ExtI)
			// D requires F
			if v&uint64(ExtF) == 0 {
				v &^= uint64(ExtD)
			}
			h.CSR.SetRaw(CSRmisa, v)
			return v
		},
	})
	b.define(&CSRDef{Addr: CSRmedeleg, Name: "medeleg", Arch: ExtS,
		Mask: 0xF0F7FF &^ (1 << CauseMachineECall)})
	b.define(&CSRDef{Addr: CSRmideleg, Name: "mideleg", Arch: ExtS,
		MaskFn: func(h *Hart) uint64 {
			m := sInterruptMask
			if h.Variant.Has(ExtH) {
				m |= hsInterruptMask
			}
			return m
		}})
	b.define(&CSRDef{Addr: CSRmie, Name: "mie",
		MaskFn: func(h *Hart) uint64 {
			m := mInterruptMask
			if h.Variant.Has(ExtH) {
				m |= hsInterruptMask
			}
			return m
		}})
	b.define(&CSRDef{Addr: CSRmtvec, Name: "mtvec", Mask: ^uint64(0x2)})
	b.define(&CSRDef{Addr: CSRmcounteren, Name: "mcounteren", Arch: ExtU, Mask: 0x7})
	b.define(&CSRDef{Addr: CSRmcountinhibit, Name: "mcountinhibit", Mask: 0x5})
	b.define(&CSRDef{Addr: CSRmenvcfg, Name: "menvcfg",
		Mask: EnvcfgFIOM | EnvcfgCBIE | EnvcfgCBCFE | EnvcfgCBZE})
	b.define(&CSRDef{Addr: CSRmscratch, Name: "mscratch"})
	b.define(&CSRDef{Addr: CSRmepc, Name: "mepc", MaskFn: epcMask})
	b.define(&CSRDef{Addr: CSRmcause, Name: "mcause"})
	b.define(&CSRDef{Addr: CSRmtval, Name: "mtval"})
	b.define(&CSRDef{
		Addr: CSRmip, Name: "mip", NoTrace: true,
		// only the supervisor software/timer/external bits are writable here;
		// machine-level bits are driven by UpdateInterrupt
		MaskFn: func(h *Hart) uint64 {
			m := sInterruptMask
			if h.Variant.Has(ExtH) {
				m |= hsInterruptMask
			}
			return m
		},
	})
	b.define(&CSRDef{Addr: CSRmtinst, Name: "mtinst", Arch: ExtH})
	b.define(&CSRDef{Addr: CSRmtval2, Name: "mtval2", Arch: ExtH})

	// ---- PMP ----
	for i := uint(0); i*4 < h.Variant.PMPEntries && i < 8; i += 2 {
		// cfg registers come in even-numbered pairs on RV64; only
		// pmpcfg0..pmpcfg6 are defined, so entries 32..63 have address
		// registers but no cfg field and stay OFF
		idx := CSRIndex(uint(CSRpmpcfg0) + i)
		n := i
		b.define(&CSRDef{
			Addr: idx, Name: pmpcfgName(n), EndBlock: true,
			Present: func(h *Hart) bool { return h.Variant.PMPEntries > n*4 },
			Read:    func(h *Hart) uint64 { return h.Mem.PMP.ReadCfg(n) },
			Write: func(h *Hart, v uint64) uint64 {
				h.Mem.PMP.WriteCfg(n, v, h.Variant.PMPEntries)
				h.Mem.FlushTLBs()
				return h.Mem.PMP.ReadCfg(n)
			},
		})
	}
	for i := uint(0); i < h.Variant.PMPEntries && i < 64; i++ {
		idx := CSRIndex(uint(CSRpmpaddr0) + i)
		n := i
		b.define(&CSRDef{
			Addr: idx, Name: pmpaddrName(n), EndBlock: true,
			Present: func(h *Hart) bool { return h.Variant.PMPEntries > n },
			Read:    func(h *Hart) uint64 { return h.Mem.PMP.ReadAddr(n) },
			Write: func(h *Hart, v uint64) uint64 {
				h.Mem.PMP.WriteAddr(n, v)
				h.Mem.FlushTLBs()
				return h.Mem.PMP.ReadAddr(n)
			},
		})
	}

	// ---- supervisor ----
	b.define(&CSRDef{
		Addr: CSRsstatus, Name: "sstatus", Arch: ExtS, VirtualAlias: CSRvsstatus,
		Mask: sstatusVisible,
		Read: func(h *Hart) uint64 {
			return withSD(h.CSR.Raw(CSRmstatus)&sstatusVisible, h.Variant.XLEN)
		},
		Write: func(h *Hart, v uint64) uint64 {
			m := h.CSR.Raw(CSRmstatus)&^sstatusVisible | v&sstatusVisible
			m = withSD(m, h.Variant.XLEN)
			h.CSR.SetRaw(CSRmstatus, m)
			return m & sstatusVisible
		},
		EndBlock: true,
	})
	b.define(&CSRDef{
		Addr: CSRsie, Name: "sie", Arch: ExtS, VirtualAlias: CSRvsie,
		Read: func(h *Hart) uint64 { return h.CSR.Raw(CSRmie) & h.CSR.Raw(CSRmideleg) & sInterruptMask },
		Write: func(h *Hart, v uint64) uint64 {
			deleg := h.CSR.Raw(CSRmideleg) & sInterruptMask
			h.CSR.SetRaw(CSRmie, h.CSR.Raw(CSRmie)&^deleg|v&deleg)
			return v & deleg
		},
	})
	b.define(&CSRDef{Addr: CSRstvec, Name: "stvec", Arch: ExtS, VirtualAlias: CSRvstvec,
		Mask: ^uint64(0x2)})
	b.define(&CSRDef{Addr: CSRscounteren, Name: "scounteren", Arch: ExtS, Mask: 0x7})
	b.define(&CSRDef{Addr: CSRsenvcfg, Name: "senvcfg", Arch: ExtS,
		Mask: EnvcfgFIOM | EnvcfgCBIE | EnvcfgCBCFE | EnvcfgCBZE})
	b.define(&CSRDef{Addr: CSRsscratch, Name: "sscratch", Arch: ExtS, VirtualAlias: CSRvsscratch})
	b.define(&CSRDef{Addr: CSRsepc, Name: "sepc", Arch: ExtS, VirtualAlias: CSRvsepc, MaskFn: epcMask})
	b.define(&CSRDef{Addr: CSRscause, Name: "scause", Arch: ExtS, VirtualAlias: CSRvscause})
	b.define(&CSRDef{Addr: CSRstval, Name: "stval", Arch: ExtS, VirtualAlias: CSRvstval})
	b.define(&CSRDef{
		Addr: CSRsip, Name: "sip", Arch: ExtS, VirtualAlias: CSRvsip, NoTrace: true,
		Read: func(h *Hart) uint64 { return h.CSR.Raw(CSRmip) & h.CSR.Raw(CSRmideleg) & sInterruptMask },
		Write: func(h *Hart, v uint64) uint64 {
			// only SSIP is software-writable at S level
			deleg := h.CSR.Raw(CSRmideleg) & (1 << IntSSoft)
			h.CSR.SetRaw(CSRmip, h.CSR.Raw(CSRmip)&^deleg|v&deleg)
			return v & deleg
		},
	})
	b.define(&CSRDef{
		Addr: CSRsatp, Name: "satp", Arch: ExtS, VirtualAlias: CSRvsatp,
		TrapTVM: true, EndBlock: true,
		Write: func(h *Hart, v uint64) uint64 {
			v = legalSatp(h, CSRsatp, v)
			h.CSR.SetRaw(CSRsatp, v)
			h.Mem.FlushTLB(TLBHS)
			return v
		},
	})

	// ---- hypervisor ----
	b.define(&CSRDef{Addr: CSRhstatus, Name: "hstatus", Arch: ExtH, EndBlock: true,
		Mask: HStatusVSBE | HStatusGVA | HStatusSPV | HStatusSPVP | HStatusHU |
			HStatusVTVM | HStatusVTW | HStatusVTSR})
	b.define(&CSRDef{Addr: CSRhedeleg, Name: "hedeleg", Arch: ExtH,
		Mask: 0xB1FF}) // traps that can continue to VS
	b.define(&CSRDef{Addr: CSRhideleg, Name: "hideleg", Arch: ExtH, Mask: hsInterruptMask})
	b.define(&CSRDef{Addr: CSRhie, Name: "hie", Arch: ExtH, Mask: hsInterruptMask,
		Read: func(h *Hart) uint64 { return h.CSR.Raw(CSRmie) & hsInterruptMask },
		Write: func(h *Hart, v uint64) uint64 {
			h.CSR.SetRaw(CSRmie, h.CSR.Raw(CSRmie)&^hsInterruptMask|v&hsInterruptMask)
			return v & hsInterruptMask
		}})
	b.define(&CSRDef{Addr: CSRhcounteren, Name: "hcounteren", Arch: ExtH, Mask: 0x7})
	b.define(&CSRDef{Addr: CSRhenvcfg, Name: "henvcfg", Arch: ExtH,
		Mask: EnvcfgFIOM | EnvcfgCBIE | EnvcfgCBCFE | EnvcfgCBZE})
	b.define(&CSRDef{Addr: CSRhtval, Name: "htval", Arch: ExtH})
	b.define(&CSRDef{Addr: CSRhip, Name: "hip", Arch: ExtH, NoTrace: true,
		Read: func(h *Hart) uint64 { return h.CSR.Raw(CSRmip) & hsInterruptMask }})
	b.define(&CSRDef{Addr: CSRhvip, Name: "hvip", Arch: ExtH,
		Mask: 1<<IntVSSoft | 1<<IntVSTimer | 1<<IntVSExt,
		Write: func(h *Hart, v uint64) uint64 {
			m := uint64(1<<IntVSSoft | 1<<IntVSTimer | 1<<IntVSExt)
			h.CSR.SetRaw(CSRhvip, v&m)
			h.CSR.SetRaw(CSRmip, h.CSR.Raw(CSRmip)&^m|v&m)
			return v & m
		}})
	b.define(&CSRDef{Addr: CSRhtinst, Name: "htinst", Arch: ExtH})
	b.define(&CSRDef{
		Addr: CSRhgatp, Name: "hgatp", Arch: ExtH, TrapTVM: true, EndBlock: true,
		Write: func(h *Hart, v uint64) uint64 {
			v = legalHgatp(h, v)
			h.CSR.SetRaw(CSRhgatp, v)
			h.Mem.FlushTLB(TLBVS2)
			return v
		},
	})

	// ---- virtual supervisor ----
	b.define(&CSRDef{
		Addr: CSRvsstatus, Name: "vsstatus", Arch: ExtH, EndBlock: true,
		Mask: sstatusVisible,
		Write: func(h *Hart, v uint64) uint64 {
			v = withSD(v&sstatusVisible, h.Variant.XLEN)
			h.CSR.SetRaw(CSRvsstatus, v)
			return v
		},
	})
	b.define(&CSRDef{Addr: CSRvsie, Name: "vsie", Arch: ExtH,
		Read: func(h *Hart) uint64 {
			// VS bits are shifted down one position in the VS view
			return h.CSR.Raw(CSRmie) & hsInterruptMask >> 1 & sInterruptMask
		},
		Write: func(h *Hart, v uint64) uint64 {
			bits := v & sInterruptMask << 1 & hsInterruptMask
			h.CSR.SetRaw(CSRmie, h.CSR.Raw(CSRmie)&^(hsInterruptMask&^uint64(1<<IntSGuestExt))|bits)
			return v & sInterruptMask
		}})
	b.define(&CSRDef{Addr: CSRvstvec, Name: "vstvec", Arch: ExtH, Mask: ^uint64(0x2)})
	b.define(&CSRDef{Addr: CSRvsscratch, Name: "vsscratch", Arch: ExtH})
	b.define(&CSRDef{Addr: CSRvsepc, Name: "vsepc", Arch: ExtH, MaskFn: epcMask})
	b.define(&CSRDef{Addr: CSRvscause, Name: "vscause", Arch: ExtH})
	b.define(&CSRDef{Addr: CSRvstval, Name: "vstval", Arch: ExtH})
	b.define(&CSRDef{Addr: CSRvsip, Name: "vsip", Arch: ExtH, NoTrace: true,
		Read: func(h *Hart) uint64 {
			return h.CSR.Raw(CSRmip) & hsInterruptMask >> 1 & sInterruptMask
		}})
	b.define(&CSRDef{
		Addr: CSRvsatp, Name: "vsatp", Arch: ExtH, EndBlock: true,
		Write: func(h *Hart, v uint64) uint64 {
			v = legalSatp(h, CSRvsatp, v)
			h.CSR.SetRaw(CSRvsatp, v)
			h.Mem.FlushTLB(TLBVS1)
			return v
		},
	})

	// ---- resumable NMI ----
	b.define(&CSRDef{Addr: CSRmnscratch, Name: "mnscratch", NoSaveRestore: true})
	b.define(&CSRDef{Addr: CSRmnepc, Name: "mnepc", MaskFn: epcMask, NoSaveRestore: true})
	b.define(&CSRDef{Addr: CSRmncause, Name: "mncause", NoSaveRestore: true})
	b.define(&CSRDef{Addr: CSRmnstatus, Name: "mnstatus", Mask: StatusMPPMask | StatusMPV | 0x8,
		NoSaveRestore: true})

	// ---- debug ----
	b.define(&CSRDef{Addr: CSRdcsr, Name: "dcsr", NoSaveRestore: true, Mask: 0xFFFF,
		Present: func(h *Hart) bool { return true }})
	b.define(&CSRDef{Addr: CSRdpc, Name: "dpc", NoSaveRestore: true, MaskFn: epcMask})

	// ---- counters ----
	b.define(&CSRDef{Addr: CSRmcycle, Name: "mcycle", NoTrace: true,
		Read:  func(h *Hart) uint64 { return h.Cycles },
		Write: func(h *Hart, v uint64) uint64 { h.Cycles = v; return v }})
	b.define(&CSRDef{Addr: CSRminstret, Name: "minstret", NoTrace: true,
		Read:  func(h *Hart) uint64 { return h.Instret },
		Write: func(h *Hart, v uint64) uint64 { h.Instret = v; return v }})
	b.define(&CSRDef{Addr: CSRcycle, Name: "cycle", NoTrace: true,
		Present: counterPresent(0),
		Read:    func(h *Hart) uint64 { return h.Cycles }})
	b.define(&CSRDef{Addr: CSRtime, Name: "time", NoTrace: true, NoSaveRestore: true,
		Present: counterPresent(1),
		Read:    func(h *Hart) uint64 { return h.Cycles }})
	b.define(&CSRDef{Addr: CSRinstret, Name: "instret", NoTrace: true,
		Present: counterPresent(2),
		Read:    func(h *Hart) uint64 { return h.Instret }})
}

func zeroRead(h *Hart) uint64 { return 0 }

// epcMask clears bit 0 always, and bit 1 when compressed is disabled
func epcMask(h *Hart) uint64 {
	if h.MisaEnabled(ExtC) {
		return ^uint64(1)
	}
	return ^uint64(3)
}

// counterPresent gates the user counter views on mcounteren when below M
func counterPresent(bit uint) func(h *Hart) bool {
	return func(h *Hart) bool {
		if h.Mode == ModeM || h.Mode == ModeDebug {
			return true
		}
		return h.CSR.Raw(CSRmcounteren)&(1<<bit) != 0
	}
}

// legalSatp keeps only supported translation modes; an illegal mode write
// leaves the register unchanged per the privileged spec
func legalSatp(h *Hart, idx CSRIndex, v uint64) uint64 {
	if h.Variant.XLEN == 32 {
		return v // Sv32 or bare, both legal
	}
	mode := v >> 60
	switch mode {
	case 0, 8, 9, 10: // bare, Sv39, Sv48, Sv57
		return v
	}
	return h.CSR.Raw(idx)
}

func legalHgatp(h *Hart, v uint64) uint64 {
	mode := v >> 60
	switch mode {
	case 0, 8, 9, 10:
		return v
	}
	return h.CSR.Raw(CSRhgatp)
}

func pmpcfgName(n uint) string {
	return "pmpcfg" + string(rune('0'+n))
}

func pmpaddrName(n uint) string {
	if n < 10 {
		return "pmpaddr" + string(rune('0'+n))
	}
	return "pmpaddr" + string(rune('0'+n/10)) + string(rune('0'+n%10))
}

// SetFSDirty marks the floating-point context dirty in mstatus (and
// vsstatus when virtualised)
func (h *Hart) SetFSDirty() {
	if h.Variant.FLEN == 0 {
		return
	}
	s := h.CSR.Raw(CSRmstatus)
	s = s&^uint64(StatusFSMask) | uint64(ExtStatusDirty)<<StatusFSShift
	h.CSR.SetRaw(CSRmstatus, withSD(s, h.Variant.XLEN))
	if h.Mode.Virtual() {
		vs := h.CSR.Raw(CSRvsstatus)
		vs = vs&^uint64(StatusFSMask) | uint64(ExtStatusDirty)<<StatusFSShift
		h.CSR.SetRaw(CSRvsstatus, withSD(vs, h.Variant.XLEN))
	}
}

// SetVSDirty marks the vector context dirty
func (h *Hart) SetVSDirty() {
	if !h.Variant.Has(ExtV) {
		return
	}
	s := h.CSR.Raw(CSRmstatus)
	s = s&^uint64(StatusVSMask) | uint64(ExtStatusDirty)<<StatusVSShift
	h.CSR.SetRaw(CSRmstatus, withSD(s, h.Variant.XLEN))
	if h.Mode.Virtual() {
		vs := h.CSR.Raw(CSRvsstatus)
		vs = vs&^uint64(StatusVSMask) | uint64(ExtStatusDirty)<<StatusVSShift
		h.CSR.SetRaw(CSRvsstatus, withSD(vs, h.Variant.XLEN))
	}
}

// FSOff reports whether floating-point context access must trap
func (h *Hart) FSOff() bool {
	if h.Variant.Has(ExtZfinx) {
		return false
	}
	if statusFS(h.CSR.Raw(CSRmstatus)) == ExtStatusOff {
		return true
	}
	if h.Mode.Virtual() && statusFS(h.CSR.Raw(CSRvsstatus)) == ExtStatusOff {
		return true
	}
	return false
}

// VSOff reports whether vector context access must trap
func (h *Hart) VSOff() bool {
	if statusVS(h.CSR.Raw(CSRmstatus)) == ExtStatusOff {
		return true
	}
	if h.Mode.Virtual() && statusVS(h.CSR.Raw(CSRvsstatus)) == ExtStatusOff {
		return true
	}
	return false
}
