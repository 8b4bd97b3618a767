package vm_test

import (
	"testing"

	"github.com/lookbusy1344/riscv-emulator/config"
	"github.com/lookbusy1344/riscv-emulator/vm"
)

func TestPMPLockedNAPOTStoreFault(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// entry 0: NAPOT covering [0x1000, 0x1100), R only, locked
	h.Mem.PMP.WriteAddr(0, 0x1000>>2|0x1F)
	h.Mem.PMP.WriteCfg(0, 0x99, 16) // L | NAPOT | R

	h.Mode = vm.ModeS
	h.X[2] = 0x1000
	h.X[4] = 0x1234

	// SW x4, 0(x2)
	runAt(t, machine, codeBase, 0x00412023)

	if got := h.CSR.Raw(vm.CSRmcause); got != 7 {
		t.Errorf("mcause = %d, want 7 (store access fault)", got)
	}
	if got := h.CSR.Raw(vm.CSRmtval); got != 0x1000 {
		t.Errorf("mtval = 0x%X, want 0x1000", got)
	}
}

func TestPMPLockedEntryRejectsReconfiguration(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	h.Mem.PMP.WriteAddr(0, 0x41F)
	h.Mem.PMP.WriteCfg(0, 0x99, 16) // locked
	h.Mem.PMP.WriteCfg(0, 0x1F, 16) // attempt to unlock and open up
	if got := h.Mem.PMP.ReadCfg(0) & 0xFF; got != 0x99 {
		t.Errorf("locked pmpcfg changed to 0x%02X", got)
	}
	h.Mem.PMP.WriteAddr(0, 0)
	if got := h.Mem.PMP.ReadAddr(0); got != 0x41F {
		t.Errorf("locked pmpaddr changed to 0x%X", got)
	}
}

func TestPMPLockedAppliesToMachineMode(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	h.Mem.PMP.WriteAddr(0, 0x1000>>2|0x1F)
	h.Mem.PMP.WriteCfg(0, 0x99, 16) // locked, R only

	// M-mode write into the locked region must fault too
	if trap := h.Mem.Write(h, 0x1000, 4, 1); trap == nil {
		t.Error("locked PMP entry must constrain M-mode")
	}
	// M-mode write outside any entry passes
	if trap := h.Mem.Write(h, 0x2000, 4, 1); trap != nil {
		t.Errorf("unexpected fault outside PMP region: %v", trap)
	}
}

func TestLRSCSuccess(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[2] = codeBase + 0x1000
	h.X[4] = 99

	// LR.W x1, (x2) then SC.W x3, x4, (x2)
	runAt(t, machine, codeBase, 0x100120AF)
	runAt(t, machine, codeBase+4, 0x184121AF)

	if got := h.GetX(3); got != 0 {
		t.Errorf("sc result = %d, want 0 (success)", got)
	}
	v, trap := h.Mem.Read(h, codeBase+0x1000, 4)
	if trap != nil || v != 99 {
		t.Errorf("memory = %d (%v), want 99", v, trap)
	}
}

func TestLRSCFailsAfterRemoteStore(t *testing.T) {
	cfg := testConfig()
	mem := vm.NewMemorySystem()
	mem.AddSegment("ram", vm.DefaultRAMBase, 1<<20, vm.PermRead|vm.PermWrite|vm.PermExecute)

	a, err := vm.NewVMWithMemory(cfg, mem)
	if err != nil {
		t.Fatal(err)
	}
	b, err := vm.NewVMWithMemory(cfg, mem)
	if err != nil {
		t.Fatal(err)
	}

	addr := uint64(vm.DefaultRAMBase + 0x100)
	if _, trap := mem.LoadReserved(a.Hart, addr, 4); trap != nil {
		t.Fatalf("lr: %v", trap)
	}
	// another hart stores into the same line
	if trap := mem.Write(b.Hart, addr, 4, 7); trap != nil {
		t.Fatalf("remote store: %v", trap)
	}
	r, trap := mem.StoreConditional(a.Hart, addr, 4, 1)
	if trap != nil {
		t.Fatalf("sc: %v", trap)
	}
	if r != 1 {
		t.Errorf("sc result = %d, want 1 (failure)", r)
	}
	// the remote value must survive the failed sc
	if v, _ := mem.Read(b.Hart, addr, 4); v != 7 {
		t.Errorf("memory = %d, want 7", v)
	}
}

func TestSCWithoutReservationFails(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	r, trap := h.Mem.StoreConditional(h, codeBase+0x100, 4, 1)
	if trap != nil {
		t.Fatalf("sc: %v", trap)
	}
	if r != 1 {
		t.Errorf("sc without reservation = %d, want 1", r)
	}
}

func TestAMOAddReturnsOldValue(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	addr := uint64(codeBase + 0x200)
	if trap := h.Mem.Write(h, addr, 8, 40); trap != nil {
		t.Fatal(trap)
	}
	h.X[1] = addr
	h.X[2] = 2

	// AMOADD.D x3, x2, (x1)
	runAt(t, machine, codeBase, 0x0020B1AF)
	if got := h.GetX(3); got != 40 {
		t.Errorf("amoadd returned %d, want old value 40", got)
	}
	if v, _ := h.Mem.Read(h, addr, 8); v != 42 {
		t.Errorf("memory = %d, want 42", v)
	}
}

func TestSv39TranslationAndSFence(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// root page table at 0x80001000; vpn2=1 maps the gigapage at the RAM
	// base with full permissions and A/D preset
	root := uint64(0x8000_1000)
	ptePPN := uint64(vm.DefaultRAMBase) >> 12
	pte := ptePPN<<10 | 0xCF // V|R|W|X|A|D
	writePhys64(t, machine, root+8, pte)

	h.CSR.SetRaw(vm.CSRsatp, 8<<60|root>>12)
	h.Mode = vm.ModeS

	vaddr := uint64(0x4000_0000) + 0x3000
	if trap := h.Mem.Write(h, vaddr, 8, 0x77); trap != nil {
		t.Fatalf("translated write: %v", trap)
	}
	phys, err := h.Mem.ReadBytes(uint64(vm.DefaultRAMBase)+0x3000, 1)
	if err != nil || phys[0] != 0x77 {
		t.Fatalf("physical readback = %v (%v), want 0x77", phys, err)
	}

	// retarget the PTE; the stale TLB entry must answer until sfence
	writePhys64(t, machine, root+8, (ptePPN+0x40000)<<10|0xCF)
	if _, trap := h.Mem.Read(h, vaddr, 8); trap != nil {
		t.Fatalf("read through cached translation: %v", trap)
	}

	h.Mem.SFenceVMA(vm.TLBHS, 0, 0, true)
	// the new mapping points past the RAM segment, so the access now faults
	if _, trap := h.Mem.Read(h, vaddr, 8); trap == nil {
		t.Error("sfence did not invalidate the cached translation")
	}
}

func TestPageFaultOnMissingPTE(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	root := uint64(0x8000_1000)
	h.CSR.SetRaw(vm.CSRsatp, 8<<60|root>>12)
	h.Mode = vm.ModeS

	// vpn2=32 was never mapped: the zero PTE is invalid
	_, trap := h.Mem.Read(h, 0x8000_0000_0, 8)
	if trap == nil {
		t.Fatal("expected page fault")
	}
	if trap.Cause != vm.CauseLoadPageFault {
		t.Errorf("cause = %d, want load page fault", trap.Cause)
	}
}

func TestBigEndianDataAccess(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRmstatus, h.CSR.Raw(vm.CSRmstatus)|1<<37) // MBE

	addr := uint64(codeBase + 0x400)
	if trap := h.Mem.Write(h, addr, 4, 0x11223344); trap != nil {
		t.Fatal(trap)
	}
	// byte order in memory must be big-endian
	b0, _ := h.Mem.Read(h, addr, 1)
	if b0 != 0x11 {
		t.Errorf("first byte = 0x%02X, want 0x11", b0)
	}
}

func TestUnalignedPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Memory.AllowUnaligned = true
	machine := newTestVM(t, cfg)
	h := machine.Hart

	addr := uint64(codeBase + 0x501)
	if trap := h.Mem.Write(h, addr, 4, 0xAABBCCDD); trap != nil {
		t.Fatalf("unaligned store with policy enabled: %v", trap)
	}
	v, trap := h.Mem.Read(h, addr, 4)
	if trap != nil || v != 0xAABBCCDD {
		t.Errorf("unaligned readback = 0x%X (%v)", v, trap)
	}
}

func TestCBOZeroClearsLine(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	line := uint64(codeBase + 0x600)
	for i := uint64(0); i < 64; i += 8 {
		if trap := h.Mem.Write(h, line+i, 8, ^uint64(0)); trap != nil {
			t.Fatal(trap)
		}
	}
	h.X[1] = line + 8 // any address inside the line

	// CBO.ZERO (x1): imm12=4, f3=2, opcode 0x0F
	runAt(t, machine, codeBase, 0x0040A00F)
	for i := uint64(0); i < 64; i += 8 {
		if v, _ := h.Mem.Read(h, line+i, 8); v != 0 {
			t.Fatalf("line byte at +%d not zeroed", i)
		}
	}
}

func TestCBODisabledByMenvcfg(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.Mode = vm.ModeS // menvcfg.CBZE is clear out of reset
	h.X[1] = codeBase + 0x600

	runAt(t, machine, codeBase, 0x0040A00F)
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func writePhys64(t *testing.T, machine *vm.VM, addr, v uint64) {
	t.Helper()
	data := make([]byte, 8)
	for i := range data {
		data[i] = byte(v >> (8 * i))
	}
	if err := machine.Mem.LoadBytes(addr, data); err != nil {
		t.Fatal(err)
	}
}

func TestVariantFromConfigExtensionParsing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Arch.Extensions = "IMC"
	cfg.Arch.FLEN = 0
	v, err := vm.VariantFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Has(vm.ExtM) || !v.Has(vm.ExtC) {
		t.Error("variant missing configured extensions")
	}
	if v.Has(vm.ExtV) {
		t.Error("variant has unconfigured extension V")
	}
}
