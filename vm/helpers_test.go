package vm_test

import (
	"testing"

	"github.com/lookbusy1344/riscv-emulator/config"
	"github.com/lookbusy1344/riscv-emulator/vm"
)

// testConfig returns an RV64GCV configuration with the hypervisor
// extension, suitable for most tests
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Arch.Extensions = "IMAFDCVHSU"
	cfg.Arch.Zicond = true
	cfg.Arch.Zicbom = true
	cfg.Arch.Zicboz = true
	return cfg
}

// newTestVM builds a VM, enables the FP and vector contexts and maps a
// low segment so physical addresses near zero are usable
func newTestVM(t *testing.T, cfg *config.Config) *vm.VM {
	t.Helper()
	machine, err := vm.NewVM(cfg)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	machine.Mem.AddSegment("low", 0, 0x10000, vm.PermRead|vm.PermWrite|vm.PermExecute)
	enableUnits(machine.Hart)
	return machine
}

// enableUnits sets mstatus.FS and VS to Initial so FP/vector ops run
func enableUnits(h *vm.Hart) {
	s := h.CSR.Raw(vm.CSRmstatus)
	s |= 1 << 13 // FS = Initial
	s |= 1 << 9  // VS = Initial
	h.CSR.SetRaw(vm.CSRmstatus, s)
}

// writeInst stores a 32-bit instruction word at addr
func writeInst(t *testing.T, machine *vm.VM, addr uint64, word uint32) {
	t.Helper()
	data := []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
	if err := machine.Mem.LoadBytes(addr, data); err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
}

// step executes one instruction and fails the test on simulator errors
func step(t *testing.T, machine *vm.VM) {
	t.Helper()
	if err := machine.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
}

// runAt points the PC at addr, writes the instruction there and steps
func runAt(t *testing.T, machine *vm.VM, addr uint64, word uint32) {
	t.Helper()
	writeInst(t, machine, addr, word)
	machine.Hart.PC = addr
	step(t, machine)
}
