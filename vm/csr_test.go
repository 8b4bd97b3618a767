package vm_test

import (
	"testing"

	"github.com/lookbusy1344/riscv-emulator/vm"
)

// csrrw builds a CSRRW encoding
func csrrw(csr uint16, rd, rs1 uint32) uint32 {
	return uint32(csr)<<20 | rs1<<15 | 1<<12 | rd<<7 | 0x73
}

func csrrs(csr uint16, rd, rs1 uint32) uint32 {
	return uint32(csr)<<20 | rs1<<15 | 2<<12 | rd<<7 | 0x73
}

func TestCSRWriteReadRoundTrip(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[1] = 0xCAFEBABE

	// CSRRW x0, mscratch, x1 then CSRRS x2, mscratch, x0
	runAt(t, machine, codeBase, csrrw(0x340, 0, 1))
	runAt(t, machine, codeBase+4, csrrs(0x340, 2, 0))

	if got := h.GetX(2); got != 0xCAFEBABE {
		t.Errorf("mscratch read = 0x%X, want 0xCAFEBABE", got)
	}
}

func TestCSRWriteMaskApplied(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// mtvec clears the reserved mode bit (bit 1)
	h.X[1] = 0x8000_1002
	runAt(t, machine, codeBase, csrrw(0x305, 0, 1))
	if got := h.CSR.Raw(vm.CSRmtvec); got != 0x8000_1000 {
		t.Errorf("mtvec = 0x%X, want 0x80001000", got)
	}
}

func TestCSRFrmFflagsViews(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// write frm=RTZ (1) via the frm view, then read fcsr
	h.X[1] = 1
	runAt(t, machine, codeBase, csrrw(0x002, 0, 1))
	if got := h.CSR.Raw(vm.CSRfcsr); got>>5&0x7 != 1 {
		t.Errorf("fcsr.frm = %d, want 1 (fcsr=0x%X)", got>>5&0x7, got)
	}

	// write fflags and confirm the fcsr composition
	h.X[1] = 0x1F
	runAt(t, machine, codeBase+4, csrrw(0x001, 0, 1))
	if got := h.CSR.Raw(vm.CSRfcsr); got != 1<<5|0x1F {
		t.Errorf("fcsr = 0x%X, want 0x3F", got)
	}
}

func TestCSRUnknownTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	runAt(t, machine, codeBase, csrrw(0x5C0, 0, 1)) // unimplemented custom CSR
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func TestCSRPrivilegeTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.Mode = vm.ModeU

	// mscratch from U-mode
	runAt(t, machine, codeBase, csrrs(0x340, 1, 0))
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
	if h.Mode != vm.ModeM {
		t.Errorf("trap should land in M-mode, got %s", h.Mode)
	}
}

func TestCSRReadOnlyWriteTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// CSRRW to mhartid (0xF14, read-only)
	runAt(t, machine, codeBase, csrrw(0xF14, 1, 2))
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func TestCSRRSWithX0DoesNotWrite(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// CSRRS x1, mhartid, x0 reads a read-only CSR without trapping
	runAt(t, machine, codeBase, csrrs(0xF14, 1, 0))
	if got := h.CSR.Raw(vm.CSRmcause); got == uint64(vm.CauseIllegalInstruction) {
		t.Error("read-only CSR read with rs1=x0 must not trap")
	}
}

func TestSstatusIsViewOfMstatus(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// set SUM via sstatus; it must appear in mstatus
	h.X[1] = 1 << 18
	runAt(t, machine, codeBase, csrrs(0x100, 0, 1))
	if h.CSR.Raw(vm.CSRmstatus)&(1<<18) == 0 {
		t.Error("sstatus.SUM write did not reach mstatus")
	}

	// machine-only bits are invisible through sstatus
	runAt(t, machine, codeBase+4, csrrs(0x100, 2, 0))
	if h.GetX(2)&(1<<3) != 0 {
		t.Error("sstatus read exposed mstatus.MIE")
	}
}

func TestMisaToggleDisablesExtension(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// clear the C bit in misa; a compressed instruction must then trap
	misa := h.CSR.Raw(vm.CSRmisa)
	h.X[1] = misa &^ (1 << 2)
	runAt(t, machine, codeBase, csrrw(0x301, 0, 1))

	writeInst(t, machine, codeBase+4, 0x0000428D) // C.LI x5, 3
	h.PC = codeBase + 4
	step(t, machine)
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("compressed op with C disabled: mcause = %d, want illegal", got)
	}
}

func TestSatpIllegalModeWriteIgnored(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// mode 5 is reserved; the write must leave satp unchanged
	h.X[1] = uint64(5)<<60 | 0x1234
	runAt(t, machine, codeBase, csrrw(0x180, 0, 1))
	if got := h.CSR.Raw(vm.CSRsatp); got != 0 {
		t.Errorf("satp = 0x%X, want 0 after reserved-mode write", got)
	}
}

func TestSatpTVMTrapsInSMode(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRmstatus, h.CSR.Raw(vm.CSRmstatus)|1<<20) // TVM
	h.Mode = vm.ModeS

	runAt(t, machine, codeBase, csrrs(0x180, 1, 0))
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("satp with TVM: mcause = %d, want illegal", got)
	}
}

func TestVlenbReportsGeometry(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	runAt(t, machine, codeBase, csrrs(0xC22, 1, 0))
	if got := h.GetX(1); got != 16 { // VLEN=128 bits
		t.Errorf("vlenb = %d, want 16", got)
	}
}
