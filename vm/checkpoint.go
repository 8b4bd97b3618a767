package vm

import "fmt"

// Checkpoint captures the architectural state of a hart: register files,
// PC, mode, reservation and every CSR not flagged no_save_restore. The
// embedding simulator chooses the serialisation; the core only provides
// the data.
type Checkpoint struct {
	X    [32]uint64
	F    [32]uint64
	V    []byte
	PC   uint64
	Mode Mode

	Reservation uint64
	Disable     Disable

	Cycles  uint64
	Instret uint64

	CSRs map[CSRIndex]uint64
}

// Save captures the current hart state
func (h *Hart) Save() *Checkpoint {
	cp := &Checkpoint{
		X:           h.X,
		F:           h.F,
		PC:          h.PC,
		Mode:        h.Mode,
		Reservation: h.Reservation,
		Disable:     h.Disable,
		Cycles:      h.Cycles,
		Instret:     h.Instret,
		CSRs:        make(map[CSRIndex]uint64),
	}
	if h.V != nil {
		cp.V = make([]byte, len(h.V))
		copy(cp.V, h.V)
	}
	for _, idx := range h.CSR.Indices() {
		d, _ := h.CSR.Lookup(idx)
		if d.NoSaveRestore {
			continue
		}
		// raw storage round-trips exactly; derived views are rebuilt on read
		cp.CSRs[d.Addr] = h.CSR.Raw(d.Addr)
	}
	return cp
}

// Restore reinstates a checkpoint captured on a hart of the same variant
func (h *Hart) Restore(cp *Checkpoint) error {
	if cp.V != nil && len(cp.V) != len(h.V) {
		return fmt.Errorf("checkpoint vector file is %d bytes, hart has %d", len(cp.V), len(h.V))
	}
	h.X = cp.X
	h.F = cp.F
	if cp.V != nil {
		copy(h.V, cp.V)
	}
	h.PC = cp.PC
	h.Mode = cp.Mode
	h.Reservation = cp.Reservation
	h.Disable = cp.Disable
	h.Cycles = cp.Cycles
	h.Instret = cp.Instret
	for idx, v := range cp.CSRs {
		h.CSR.SetRaw(idx, v)
	}
	// restored translation controls invalidate everything cached
	h.Mem.FlushTLBs()
	return nil
}
