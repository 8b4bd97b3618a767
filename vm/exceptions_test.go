package vm_test

import (
	"testing"

	"github.com/lookbusy1344/riscv-emulator/vm"
)

func TestECallFromUTrapsToM(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRmtvec, 0x8000_0800)
	h.Mode = vm.ModeU

	runAt(t, machine, codeBase, 0x00000073) // ECALL

	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseUserECall) {
		t.Errorf("mcause = %d, want %d", got, vm.CauseUserECall)
	}
	if h.Mode != vm.ModeM {
		t.Errorf("mode = %s, want M", h.Mode)
	}
	if h.PC != 0x8000_0800 {
		t.Errorf("PC = 0x%X, want mtvec target", h.PC)
	}
	if h.CSR.Raw(vm.CSRmepc) != codeBase {
		t.Errorf("mepc = 0x%X, want 0x%X", h.CSR.Raw(vm.CSRmepc), codeBase)
	}
}

func TestECallDelegatedToS(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRmedeleg, 1<<vm.CauseUserECall)
	h.CSR.SetRaw(vm.CSRstvec, 0x8000_0900)
	h.Mode = vm.ModeU

	runAt(t, machine, codeBase, 0x00000073)

	if h.Mode != vm.ModeS {
		t.Errorf("mode = %s, want S after delegation", h.Mode)
	}
	if got := h.CSR.Raw(vm.CSRscause); got != uint64(vm.CauseUserECall) {
		t.Errorf("scause = %d, want %d", got, vm.CauseUserECall)
	}
	if h.PC != 0x8000_0900 {
		t.Errorf("PC = 0x%X, want stvec target", h.PC)
	}
	// SPP records U, SPIE records the prior SIE
	if h.CSR.Raw(vm.CSRmstatus)&(1<<8) != 0 {
		t.Error("sstatus.SPP should record U-mode")
	}
}

func TestTrapClearsReservation(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	if _, trap := h.Mem.LoadReserved(h, codeBase+0x100, 4); trap != nil {
		t.Fatal(trap)
	}
	h.Mode = vm.ModeU
	runAt(t, machine, codeBase, 0x00000073) // ECALL traps

	r, trap := h.Mem.StoreConditional(h, codeBase+0x100, 4, 1)
	if trap != nil {
		t.Fatal(trap)
	}
	if r != 1 {
		t.Error("sc after trap entry must fail")
	}
}

func TestMRetRestoresStack(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// stack: MPP=U, MPIE=1, mepc set
	status := h.CSR.Raw(vm.CSRmstatus)
	status = status &^ uint64(0x3<<11) // MPP = U
	status |= 1 << 7                   // MPIE
	h.CSR.SetRaw(vm.CSRmstatus, status)
	h.CSR.SetRaw(vm.CSRmepc, codeBase+0x40)

	runAt(t, machine, codeBase, 0x30200073) // MRET

	if h.Mode != vm.ModeU {
		t.Errorf("mode = %s, want U", h.Mode)
	}
	if h.PC != codeBase+0x40 {
		t.Errorf("PC = 0x%X, want mepc", h.PC)
	}
	if h.CSR.Raw(vm.CSRmstatus)&(1<<3) == 0 {
		t.Error("MIE must be restored from MPIE")
	}
	if h.CSR.Raw(vm.CSRmstatus)&(1<<7) == 0 {
		t.Error("MPIE must read 1 after mret")
	}
}

func TestMRetBelowMTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.Mode = vm.ModeS

	runAt(t, machine, codeBase, 0x30200073)
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func TestSRetTSRTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRmstatus, h.CSR.Raw(vm.CSRmstatus)|1<<22) // TSR
	h.Mode = vm.ModeS

	runAt(t, machine, codeBase, 0x10200073) // SRET
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func TestWFITWTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRmstatus, h.CSR.Raw(vm.CSRmstatus)|1<<21) // TW
	h.Mode = vm.ModeS

	runAt(t, machine, codeBase, 0x10500073) // WFI
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func TestWFIWaitsAndInterruptReleases(t *testing.T) {
	cfg := testConfig()
	cfg.Execution.WFIIsNop = false
	machine := newTestVM(t, cfg)
	h := machine.Hart

	runAt(t, machine, codeBase, 0x10500073) // WFI
	if !h.Stalled() {
		t.Fatal("hart should stall on WFI")
	}

	h.UpdateInterrupt(uint(vm.IntMTimer), true)
	if h.Stalled() {
		t.Error("pending interrupt must release the WFI stall")
	}
}

func TestInterruptPreemptsAndVectors(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRmtvec, 0x8000_0800|1) // vectored
	h.CSR.SetRaw(vm.CSRmie, 1<<vm.IntMTimer)
	h.CSR.SetRaw(vm.CSRmstatus, h.CSR.Raw(vm.CSRmstatus)|1<<3) // MIE
	h.UpdateInterrupt(uint(vm.IntMTimer), true)

	writeInst(t, machine, codeBase, 0x00000013) // NOP target irrelevant
	h.PC = codeBase
	step(t, machine)

	want := uint64(vm.IntMTimer) | 1<<63
	if got := h.CSR.Raw(vm.CSRmcause); got != want {
		t.Errorf("mcause = 0x%X, want 0x%X", got, want)
	}
	if h.PC != 0x8000_0800+4*uint64(vm.IntMTimer) {
		t.Errorf("vectored PC = 0x%X", h.PC)
	}
}

func TestInterruptMaskedByMIE(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRmie, 1<<vm.IntMTimer)
	// mstatus.MIE stays clear: in M-mode the interrupt must be held off
	h.UpdateInterrupt(uint(vm.IntMTimer), true)

	writeInst(t, machine, codeBase, 0x00000013)
	h.PC = codeBase
	step(t, machine)
	if h.CSR.Raw(vm.CSRmcause)&1<<63 != 0 {
		t.Error("masked interrupt must not be taken in M-mode")
	}
}

func TestVTVMSFenceVirtualInstruction(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// delegate virtual-instruction to S so scause receives it
	h.CSR.SetRaw(vm.CSRmedeleg, 1<<vm.CauseVirtualInstruction)
	h.CSR.SetRaw(vm.CSRstvec, 0x8000_0A00)
	h.CSR.SetRaw(vm.CSRhstatus, 1<<20) // VTVM
	h.Mode = vm.ModeVS

	// SFENCE.VMA x0, x0
	runAt(t, machine, codeBase, 0x12000073)

	if got := h.CSR.Raw(vm.CSRscause); got != uint64(vm.CauseVirtualInstruction) {
		t.Errorf("scause = %d, want 22", got)
	}
	if h.Mode != vm.ModeS {
		t.Errorf("mode = %s, want S (HS) after the virtual-instruction trap", h.Mode)
	}
}

func TestVirtualModeCSRUsesVSAlias(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRvsscratch, 0x55AA)
	h.Mode = vm.ModeVS

	// CSRRS x1, sscratch, x0 reads vsscratch when V=1
	runAt(t, machine, codeBase, csrrs(0x140, 1, 0))
	if got := h.GetX(1); got != 0x55AA {
		t.Errorf("sscratch in VS-mode = 0x%X, want vsscratch value", got)
	}
}

func TestResetState(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[5] = 9
	h.Mode = vm.ModeU
	h.CSR.SetRaw(vm.CSRmstatus, h.CSR.Raw(vm.CSRmstatus)|1<<3)

	machine.Reset()

	if h.Mode != vm.ModeM {
		t.Error("reset must enter M-mode")
	}
	if h.PC != h.Variant.ResetVector {
		t.Errorf("reset PC = 0x%X, want reset vector", h.PC)
	}
	if h.CSR.Raw(vm.CSRmstatus)&(1<<3) != 0 {
		t.Error("reset must clear mstatus.MIE")
	}
	if h.GetX(5) != 0 {
		t.Error("reset must clear the register file")
	}
}

func TestResetNotifiesObservers(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	called := false
	h.Ext.Register("model", &vm.ExtCallbacks{
		ResetNotify: func(h *vm.Hart) { called = true },
	})
	machine.Reset()
	if !called {
		t.Error("reset observer not invoked")
	}
}

func TestTrapNotifyObserver(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	var seen vm.Cause
	h.Ext.Register("model", &vm.ExtCallbacks{
		TrapNotify: func(h *vm.Hart, tr *vm.TrapError, target vm.Mode) { seen = tr.Cause },
	})
	h.Mode = vm.ModeU
	runAt(t, machine, codeBase, 0x00000073) // ECALL
	if seen != vm.CauseUserECall {
		t.Errorf("observer saw cause %d, want %d", seen, vm.CauseUserECall)
	}
}

func TestEBreakTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	runAt(t, machine, codeBase, 0x00100073) // EBREAK
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseBreakpoint) {
		t.Errorf("mcause = %d, want breakpoint", got)
	}
	if got := h.CSR.Raw(vm.CSRmtval); got != codeBase {
		t.Errorf("mtval = 0x%X, want the breakpoint PC", got)
	}
}
