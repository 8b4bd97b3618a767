package vm_test

import (
	"testing"

	"github.com/lookbusy1344/riscv-emulator/vm"
)

// vsetvli builds a VSETVLI encoding with the given vtypei
func vsetvli(rd, rs1 uint32, vtypei uint32) uint32 {
	return vtypei<<20 | rs1<<15 | 7<<12 | rd<<7 | 0x57
}

// vtypei composes the vtype immediate
func vtypei(sew, lmul uint32, ta, ma bool) uint32 {
	v := sew<<3 | lmul
	if ta {
		v |= 1 << 6
	}
	if ma {
		v |= 1 << 7
	}
	return v
}

func TestVSETVLIMaxLength(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// VSETVLI x1, x0, e32,m2,ta,ma on VLEN=128 -> vl = 8
	runAt(t, machine, codeBase, vsetvli(1, 0, vtypei(2, 1, true, true)))

	if got := h.GetX(1); got != 8 {
		t.Errorf("vl = %d, want 8", got)
	}
	vtype := h.CSR.Raw(vm.CSRvtype)
	if vtype>>3&0x7 != 2 {
		t.Errorf("vtype.vsew = %d, want 2", vtype>>3&0x7)
	}
	if vtype&0x7 != 1 {
		t.Errorf("vtype.vlmul = %d, want 1", vtype&0x7)
	}
	if vtype>>63 != 0 {
		t.Error("vtype.vill set for a legal configuration")
	}
	if got := h.CSR.Raw(vm.CSRvl); got != 8 {
		t.Errorf("vl CSR = %d, want 8", got)
	}
}

func TestVSETVLIClampsToVLMax(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[5] = 100

	// e32, m1 -> vlmax = 4
	runAt(t, machine, codeBase, vsetvli(1, 5, vtypei(2, 0, true, true)))
	if got := h.GetX(1); got != 4 {
		t.Errorf("vl = %d, want vlmax 4", got)
	}
}

func TestVSETVLIRoundTripLaw(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.X[5] = 3

	vt := vtypei(2, 0, true, true)
	runAt(t, machine, codeBase, vsetvli(1, 5, vt))
	first := h.GetX(1)

	// same vtype with rs1=x0, rd!=x0 always returns vlmax, whatever the
	// PreserveVLOnX0 setting (that flag only covers rd=x0, rs1=x0)
	runAt(t, machine, codeBase+4, vsetvli(2, 0, vt))
	second := h.GetX(2)
	if first != 3 {
		t.Errorf("first vl = %d, want 3", first)
	}
	if second != 4 {
		t.Errorf("rd!=x0, rs1=x0 must return vlmax (4), got %d", second)
	}
}

func TestVSETVLIPreserveVLConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Vector.PreserveVLOnX0 = true
	machine := newTestVM(t, cfg)
	h := machine.Hart
	h.X[5] = 3

	vt := vtypei(2, 0, true, true)
	runAt(t, machine, codeBase, vsetvli(1, 5, vt))
	// rd=x0, rs1=x0: with preservation the old vl (3) survives
	runAt(t, machine, codeBase+4, vsetvli(0, 0, vt))
	if got := h.CSR.Raw(vm.CSRvl); got != 3 {
		t.Errorf("preserved vl = %d, want 3", got)
	}
}

func TestVSETVLIIllegalSEWSetsVill(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// e128 (sew code 4) exceeds ELEN=64
	runAt(t, machine, codeBase, vsetvli(1, 0, vtypei(4, 0, false, false)))
	if h.CSR.Raw(vm.CSRvtype)>>63 != 1 {
		t.Error("vtype.vill not set for reserved SEW")
	}
	if h.CSR.Raw(vm.CSRvl) != 0 {
		t.Error("vl must be zero when vill is set")
	}

	// any vector op must now trap
	runAt(t, machine, codeBase+4, 0x02218257) // vadd.vv v4, v2, v3
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func setupVL(t *testing.T, machine *vm.VM, avl uint64, sew, lmul uint32) {
	t.Helper()
	machine.Hart.X[5] = avl
	runAt(t, machine, codeBase+0x100, vsetvli(1, 5, vtypei(sew, lmul, true, true)))
}

func TestVADDElements(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 4, 2, 0) // e32, m1, vl=4

	for i := uint64(0); i < 4; i++ {
		h.VSetElem(3, i, 32, 10+i)
		h.VSetElem(2, i, 32, 100*i)
	}
	// vadd.vv v4, v2, v3
	runAt(t, machine, codeBase, 0x02218257)

	for i := uint64(0); i < 4; i++ {
		want := 10 + i + 100*i
		if got := h.VGetElem(4, i, 32); got != want {
			t.Errorf("v4[%d] = %d, want %d", i, got, want)
		}
	}
	if h.CSR.Raw(vm.CSRvstart) != 0 {
		t.Error("vstart must be zero after completion")
	}
}

func TestVADDMasked(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 4, 2, 0)

	for i := uint64(0); i < 4; i++ {
		h.VSetElem(3, i, 32, 5)
		h.VSetElem(2, i, 32, 7)
		h.VSetElem(4, i, 32, 0xAAAA)
		h.VSetMaskBit(0, i, i%2 == 0)
	}
	// vadd.vv v4, v2, v3, v0.t (vm=0)
	runAt(t, machine, codeBase, 0x00218257)

	for i := uint64(0); i < 4; i++ {
		got := h.VGetElem(4, i, 32)
		if i%2 == 0 {
			if got != 12 {
				t.Errorf("active v4[%d] = %d, want 12", i, got)
			}
		} else {
			// vma=1 with agnostic-ones fills inactive elements with ones
			if got != 0xFFFFFFFF {
				t.Errorf("inactive v4[%d] = 0x%X, want all-ones", i, got)
			}
		}
	}
}

func TestVectorTailFill(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 2, 2, 0) // vl=2, vlmax=4, ta

	for i := uint64(0); i < 4; i++ {
		h.VSetElem(3, i, 32, 1)
		h.VSetElem(2, i, 32, 2)
		h.VSetElem(4, i, 32, 0x1111)
	}
	runAt(t, machine, codeBase, 0x02218257) // vadd.vv v4, v2, v3

	for i := uint64(0); i < 2; i++ {
		if got := h.VGetElem(4, i, 32); got != 3 {
			t.Errorf("body v4[%d] = %d, want 3", i, got)
		}
	}
	for i := uint64(2); i < 4; i++ {
		if got := h.VGetElem(4, i, 32); got != 0xFFFFFFFF {
			t.Errorf("tail v4[%d] = 0x%X, want all-ones", i, got)
		}
	}
}

func TestVStartEqualsVLSkipsBody(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 2, 2, 0)

	for i := uint64(0); i < 4; i++ {
		h.VSetElem(4, i, 32, 0x2222)
	}
	h.CSR.SetRaw(vm.CSRvstart, 2) // vstart == vl

	runAt(t, machine, codeBase, 0x02218257)
	for i := uint64(0); i < 2; i++ {
		if got := h.VGetElem(4, i, 32); got != 0x2222 {
			t.Errorf("body v4[%d] modified with vstart==vl", i)
		}
	}
	if h.CSR.Raw(vm.CSRvstart) != 0 {
		t.Error("vstart must be cleared")
	}
}

func TestVectorLoadStore(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 4, 2, 0)

	base := uint64(codeBase + 0x2000)
	for i := uint64(0); i < 4; i++ {
		if trap := h.Mem.Write(h, base+4*i, 4, 0x10+i); trap != nil {
			t.Fatal(trap)
		}
	}
	h.X[10] = base

	// vle32.v v8, (x10): nf=0 mop=0 lumop=0 vm=1 rs1=10 width=6 vd=8 op=0x07
	runAt(t, machine, codeBase, 0x02056407)
	for i := uint64(0); i < 4; i++ {
		if got := h.VGetElem(8, i, 32); got != 0x10+i {
			t.Errorf("v8[%d] = 0x%X, want 0x%X", i, got, 0x10+i)
		}
	}

	// vse32.v v8, (x10) writing to a fresh area
	h.X[10] = base + 0x100
	runAt(t, machine, codeBase+4, 0x02056427)
	for i := uint64(0); i < 4; i++ {
		v, trap := h.Mem.Read(h, base+0x100+4*i, 4)
		if trap != nil || v != 0x10+i {
			t.Errorf("stored[%d] = 0x%X (%v)", i, v, trap)
		}
	}
}

func TestVectorFaultOnlyFirstTruncates(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 4, 2, 0)

	// place the base so element 2 crosses the end of the low segment
	base := uint64(0x10000 - 8)
	h.X[10] = base
	if trap := h.Mem.Write(h, base, 4, 1); trap != nil {
		t.Fatal(trap)
	}
	if trap := h.Mem.Write(h, base+4, 4, 2); trap != nil {
		t.Fatal(trap)
	}

	// vle32ff.v v8, (x10): lumop=0x10
	runAt(t, machine, codeBase, 0x02056407|0x10<<20)

	if got := h.CSR.Raw(vm.CSRvl); got != 2 {
		t.Errorf("vl = %d, want truncation to 2", got)
	}
	if got := h.CSR.Raw(vm.CSRmcause); got == uint64(vm.CauseLoadAccess) {
		t.Error("fault-only-first must not raise the fault for element 2")
	}
	if h.VGetElem(8, 0, 32) != 1 || h.VGetElem(8, 1, 32) != 2 {
		t.Error("committed elements lost")
	}
}

func TestVectorFaultOnlyFirstElementZeroFaults(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 4, 2, 0)

	h.X[10] = 0x20000 // unmapped
	runAt(t, machine, codeBase, 0x02056407|0x10<<20)
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseLoadAccess) {
		t.Errorf("mcause = %d, want load access fault", got)
	}
}

func TestVREDSUM(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 4, 2, 0)

	h.VSetElem(1, 0, 32, 1000) // seed in vs1[0]
	for i := uint64(0); i < 4; i++ {
		h.VSetElem(2, i, 32, i+1)
	}
	// vredsum.vs v4, v2, v1: OPMVV funct6=0, vm=1
	runAt(t, machine, codeBase, 0x02000000|1<<25|2<<20|1<<15|2<<12|4<<7|0x57)
	if got := h.VGetElem(4, 0, 32); got != 1010 {
		t.Errorf("vredsum = %d, want 1010", got)
	}
}

func TestVSADDUSaturates(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 2, 0, 0) // e8

	h.VSetElem(2, 0, 8, 0xF0)
	h.VSetElem(3, 0, 8, 0x20)
	h.VSetElem(2, 1, 8, 1)
	h.VSetElem(3, 1, 8, 2)

	// vsaddu.vv v4, v2, v3: funct6 0x20, OPIVV
	runAt(t, machine, codeBase, 0x20<<26|1<<25|2<<20|3<<15|0<<12|4<<7|0x57)
	if got := h.VGetElem(4, 0, 8); got != 0xFF {
		t.Errorf("saturated sum = 0x%X, want 0xFF", got)
	}
	if got := h.VGetElem(4, 1, 8); got != 3 {
		t.Errorf("unsaturated sum = %d, want 3", got)
	}
	if h.CSR.Raw(vm.CSRvcsr)&1 == 0 {
		t.Error("vxsat must be set after saturation")
	}
}

func TestVSlideUpDown(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 4, 2, 0)

	for i := uint64(0); i < 4; i++ {
		h.VSetElem(2, i, 32, 10+i)
		h.VSetElem(4, i, 32, 0xBEEF)
	}
	h.X[6] = 1

	// vslideup.vx v4, v2, x6: funct6 0x0E, OPIVX
	runAt(t, machine, codeBase, 0x0E<<26|1<<25|2<<20|6<<15|4<<12|4<<7|0x57)
	if got := h.VGetElem(4, 0, 32); got != 0xBEEF {
		t.Errorf("slideup below offset modified: v4[0]=0x%X", got)
	}
	for i := uint64(1); i < 4; i++ {
		if got := h.VGetElem(4, i, 32); got != 10+i-1 {
			t.Errorf("slideup v4[%d] = %d, want %d", i, got, 10+i-1)
		}
	}

	// vslidedown.vx v6? reuse v4 as dst from v2
	runAt(t, machine, codeBase+4, 0x0F<<26|1<<25|2<<20|6<<15|4<<12|4<<7|0x57)
	for i := uint64(0); i < 3; i++ {
		if got := h.VGetElem(4, i, 32); got != 10+i+1 {
			t.Errorf("slidedown v4[%d] = %d, want %d", i, got, 10+i+1)
		}
	}
	if got := h.VGetElem(4, 3, 32); got != 0 {
		t.Errorf("slidedown out-of-range v4[3] = %d, want 0", got)
	}
}

func TestVCompress(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 4, 2, 0)

	for i := uint64(0); i < 4; i++ {
		h.VSetElem(2, i, 32, 100+i)
	}
	h.VSetMaskBit(1, 0, false)
	h.VSetMaskBit(1, 1, true)
	h.VSetMaskBit(1, 2, false)
	h.VSetMaskBit(1, 3, true)

	// vcompress.vm v4, v2, v1: funct6 0x17, OPMVV, vm=1
	runAt(t, machine, codeBase, 0x17<<26|1<<25|2<<20|1<<15|2<<12|4<<7|0x57)
	if got := h.VGetElem(4, 0, 32); got != 101 {
		t.Errorf("compress[0] = %d, want 101", got)
	}
	if got := h.VGetElem(4, 1, 32); got != 103 {
		t.Errorf("compress[1] = %d, want 103", got)
	}
}

func TestVRGatherOutOfRangeReadsZero(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 4, 2, 0)

	for i := uint64(0); i < 4; i++ {
		h.VSetElem(2, i, 32, 50+i)
	}
	h.VSetElem(3, 0, 32, 2)
	h.VSetElem(3, 1, 32, 99) // out of range
	h.VSetElem(3, 2, 32, 0)
	h.VSetElem(3, 3, 32, 3)

	// vrgather.vv v4, v2, v3: funct6 0x0C, OPIVV
	runAt(t, machine, codeBase, 0x0C<<26|1<<25|2<<20|3<<15|0<<12|4<<7|0x57)
	want := []uint64{52, 0, 50, 53}
	for i, w := range want {
		if got := h.VGetElem(4, uint64(i), 32); got != w {
			t.Errorf("vrgather[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestVectorOpWithVSOffTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	// clear mstatus.VS
	h.CSR.SetRaw(vm.CSRmstatus, h.CSR.Raw(vm.CSRmstatus)&^uint64(0x3<<9))

	runAt(t, machine, codeBase, vsetvli(1, 0, vtypei(2, 0, true, true)))
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func TestWideningAdd(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 2, 2, 0) // e32 m1

	h.VSetElem(2, 0, 32, 0xFFFFFFFF)
	h.VSetElem(1, 0, 32, 1)
	h.VSetElem(2, 1, 32, 7)
	h.VSetElem(1, 1, 32, 8)

	// vwaddu.vv v4, v2, v1: OPMVV funct6 0x30
	runAt(t, machine, codeBase, 0x30<<26|1<<25|2<<20|1<<15|2<<12|4<<7|0x57)
	if got := h.VGetElem(4, 0, 64); got != 0x100000000 {
		t.Errorf("vwaddu[0] = 0x%X, want 0x100000000", got)
	}
	if got := h.VGetElem(4, 1, 64); got != 15 {
		t.Errorf("vwaddu[1] = %d, want 15", got)
	}
}

func TestWidenedGroupMisalignmentTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	setupVL(t, machine, 4, 2, 1) // e32 m2: dst EMUL=4 for widening

	// vwaddu.vv v5, v2, v1: destination v5 not aligned to a group of 4
	runAt(t, machine, codeBase, 0x30<<26|1<<25|2<<20|1<<15|2<<12|5<<7|0x57)
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal for misaligned group", got)
	}
}
