package vm_test

import (
	"testing"

	"github.com/lookbusy1344/riscv-emulator/vm"
)

const codeBase = vm.DefaultRAMBase

func TestADD64(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[1] = 0x8000000000000000
	h.X[2] = 1
	mieBefore := h.CSR.Raw(vm.CSRmstatus) & (1 << 3)

	// ADD x3, x1, x2
	runAt(t, machine, codeBase, 0x002081B3)

	if got := h.GetX(3); got != 0x8000000000000001 {
		t.Errorf("x3 = 0x%016X, want 0x8000000000000001", got)
	}
	if h.CSR.Raw(vm.CSRmstatus)&(1<<3) != mieBefore {
		t.Error("mstatus.MIE changed by ADD")
	}
	if h.PC != codeBase+4 {
		t.Errorf("PC = 0x%X, want 0x%X", h.PC, codeBase+4)
	}
}

func TestX0AlwaysZero(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// ADDI x0, x0, 42
	runAt(t, machine, codeBase, 0x02A00013)
	if h.GetX(0) != 0 {
		t.Error("x0 must read as zero after a write")
	}
}

func TestADDINegativeImmediate(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[1] = 10

	// ADDI x2, x1, -3
	runAt(t, machine, codeBase, 0xFFD08113)
	if got := h.GetX(2); got != 7 {
		t.Errorf("x2 = %d, want 7", got)
	}
}

func TestBranchTakenAndNot(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[1] = 5
	h.X[2] = 5

	// BEQ x1, x2, +16
	runAt(t, machine, codeBase, 0x00208863)
	if h.PC != codeBase+16 {
		t.Errorf("taken branch PC = 0x%X, want 0x%X", h.PC, codeBase+16)
	}

	h.X[2] = 6
	runAt(t, machine, codeBase, 0x00208863)
	if h.PC != codeBase+4 {
		t.Errorf("untaken branch PC = 0x%X, want 0x%X", h.PC, codeBase+4)
	}
}

func TestJALLinksReturnAddress(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// JAL x1, +8
	runAt(t, machine, codeBase, 0x008000EF)
	if h.GetX(1) != codeBase+4 {
		t.Errorf("ra = 0x%X, want 0x%X", h.GetX(1), codeBase+4)
	}
	if h.PC != codeBase+8 {
		t.Errorf("PC = 0x%X, want 0x%X", h.PC, codeBase+8)
	}
}

func TestLoadStoreRoundTrip(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[1] = codeBase + 0x1000
	h.X[2] = 0xDEADBEEFCAFEF00D

	// SD x2, 0(x1)
	runAt(t, machine, codeBase, 0x0020B023)
	// LD x3, 0(x1)
	runAt(t, machine, codeBase+4, 0x0000B183)

	if got := h.GetX(3); got != 0xDEADBEEFCAFEF00D {
		t.Errorf("x3 = 0x%016X, want 0xDEADBEEFCAFEF00D", got)
	}
}

func TestMisalignedLoadTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[1] = codeBase + 0x1001

	// LW x2, 0(x1) at a misaligned address
	runAt(t, machine, codeBase, 0x0000A103)
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseMisalignedLoad) {
		t.Errorf("mcause = %d, want %d", got, vm.CauseMisalignedLoad)
	}
	if got := h.CSR.Raw(vm.CSRmtval); got != codeBase+0x1001 {
		t.Errorf("mtval = 0x%X", got)
	}
}

func TestIllegalEncodingTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	runAt(t, machine, codeBase, 0xFFFFFFFF)
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
	if h.CSR.Raw(vm.CSRmepc) != codeBase {
		t.Errorf("mepc = 0x%X, want 0x%X", h.CSR.Raw(vm.CSRmepc), codeBase)
	}
}

func TestCompressedDecodeExecutes(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// C.LI x5, 3
	writeInst(t, machine, codeBase, 0x0000428D)
	h.PC = codeBase
	step(t, machine)
	if got := h.GetX(5); got != 3 {
		t.Errorf("x5 = %d, want 3", got)
	}
	if h.PC != codeBase+2 {
		t.Errorf("PC advanced by %d, want 2", h.PC-codeBase)
	}
}

func TestDivisionEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		op   uint32 // funct3 for OP with funct7=1
		want uint64
	}{
		{"div by zero", 10, 0, 4, ^uint64(0)},
		{"rem by zero", 10, 0, 6, 10},
		{"signed overflow div", 1 << 63, ^uint64(0), 4, 1 << 63},
		{"signed overflow rem", 1 << 63, ^uint64(0), 6, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := newTestVM(t, testConfig())
			h := machine.Hart
			h.X[1] = tt.a
			h.X[2] = tt.b
			word := uint32(0x02000000) | 2<<20 | 1<<15 | tt.op<<12 | 3<<7 | 0x33
			runAt(t, machine, codeBase, word)
			if got := h.GetX(3); got != tt.want {
				t.Errorf("result = 0x%016X, want 0x%016X", got, tt.want)
			}
		})
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[5] = 0x1234
	h.CSR.SetRaw(vm.CSRmscratch, 0xABCD)
	h.PC = codeBase + 0x40

	cp := h.Save()
	h.X[5] = 0
	h.CSR.SetRaw(vm.CSRmscratch, 0)
	h.PC = 0

	if err := h.Restore(cp); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if h.GetX(5) != 0x1234 || h.CSR.Raw(vm.CSRmscratch) != 0xABCD || h.PC != codeBase+0x40 {
		t.Error("checkpoint restore did not reinstate state")
	}
}

func TestDisassembleBasics(t *testing.T) {
	machine := newTestVM(t, testConfig())
	info, trap := machine.Morph(codeBase)
	_ = info
	_ = trap

	tests := []struct {
		word uint32
		want string
	}{
		{0x002081B3, "add x3, x1, x2"},
		{0x00000073, "ecall"},
		{0x10500073, "wfi"},
	}
	for _, tt := range tests {
		writeInst(t, machine, codeBase, tt.word)
		decoded, trap := machine.Morph(codeBase)
		if trap != nil {
			t.Fatalf("morph trap: %v", trap)
		}
		if got := vm.Disassemble(&decoded); got != tt.want {
			t.Errorf("Disassemble(0x%08X) = %q, want %q", tt.word, got, tt.want)
		}
	}
}
