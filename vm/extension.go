package vm

import "sort"

// ExtCallbacks is the table a derived model registers to observe and
// refine core behaviour. Every field is optional.
type ExtCallbacks struct {
	// CustomAMO takes over an atomic sequence; return done=false to let
	// the core implement it
	CustomAMO func(h *Hart, code AtomicCode, paddr, size, operand uint64) (done bool, result uint64, t *TrapError)

	// TrapNotify observes every trap entry after the target is resolved
	TrapNotify func(h *Hart, t *TrapError, target Mode)

	// ResetNotify observes hart reset
	ResetNotify func(h *Hart)

	// FirstException may replace the cause of the first exception of an
	// instruction; return nil to keep the original
	FirstException func(h *Hart, t *TrapError) *TrapError

	// InterruptPriority may reorder the interrupt priority list
	InterruptPriority func(h *Hart, order []Cause) []Cause

	// RefinePMPMode may substitute the privilege used for PMP matching
	RefinePMPMode func(h *Hart, mode Mode, paddr uint64, access AccessType) Mode

	// ValidatePTE may reject a PTE during a walk
	ValidatePTE func(h *Hart, pteAddr, pte uint64, level int) bool

	// TLBEntryFree observes TLB evictions and invalidations
	TLBEntryFree func(h *Hart, class TLBClass, vpage uint64, e *TLBEntry)
}

// ExtTable collects registered callback tables by opaque id and iterates
// them in deterministic id order
type ExtTable struct {
	tables map[string]*ExtCallbacks
	order  []string

	validatePTE func(h *Hart, pteAddr, pte uint64, level int) bool
}

// NewExtTable returns an empty callback table
func NewExtTable() *ExtTable {
	return &ExtTable{tables: make(map[string]*ExtCallbacks)}
}

// Register installs (or replaces) the callback table for id
func (e *ExtTable) Register(id string, cb *ExtCallbacks) {
	if _, exists := e.tables[id]; !exists {
		e.order = append(e.order, id)
		sort.Strings(e.order)
	}
	e.tables[id] = cb
	e.rebuild()
}

// Unregister removes the callback table for id
func (e *ExtTable) Unregister(id string) {
	if _, exists := e.tables[id]; !exists {
		return
	}
	delete(e.tables, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.rebuild()
}

// rebuild recomputes the merged hot-path hooks
func (e *ExtTable) rebuild() {
	e.validatePTE = nil
	for _, id := range e.order {
		cb := e.tables[id]
		if cb.ValidatePTE != nil {
			fn := cb.ValidatePTE
			prev := e.validatePTE
			e.validatePTE = func(h *Hart, pteAddr, pte uint64, level int) bool {
				if prev != nil && !prev(h, pteAddr, pte, level) {
					return false
				}
				return fn(h, pteAddr, pte, level)
			}
		}
	}
}

// visit iterates the registered tables in id order
func (e *ExtTable) visit(fn func(cb *ExtCallbacks)) {
	for _, id := range e.order {
		fn(e.tables[id])
	}
}

func (e *ExtTable) customAMO(h *Hart, code AtomicCode, paddr, size, operand uint64) (bool, uint64, *TrapError) {
	var done bool
	var result uint64
	var trap *TrapError
	e.visit(func(cb *ExtCallbacks) {
		if done || cb.CustomAMO == nil {
			return
		}
		done, result, trap = cb.CustomAMO(h, code, paddr, size, operand)
	})
	return done, result, trap
}

func (e *ExtTable) notifyTrap(h *Hart, t *TrapError, target Mode) {
	e.visit(func(cb *ExtCallbacks) {
		if cb.TrapNotify != nil {
			cb.TrapNotify(h, t, target)
		}
	})
}

func (e *ExtTable) notifyReset(h *Hart) {
	e.visit(func(cb *ExtCallbacks) {
		if cb.ResetNotify != nil {
			cb.ResetNotify(h)
		}
	})
}

func (e *ExtTable) filterFirstException(h *Hart, t *TrapError) *TrapError {
	out := t
	e.visit(func(cb *ExtCallbacks) {
		if cb.FirstException == nil {
			return
		}
		if r := cb.FirstException(h, out); r != nil {
			out = r
		}
	})
	return out
}

func (e *ExtTable) interruptPriority(h *Hart, order []Cause) []Cause {
	var out []Cause
	e.visit(func(cb *ExtCallbacks) {
		if cb.InterruptPriority == nil {
			return
		}
		if r := cb.InterruptPriority(h, order); r != nil {
			out = r
		}
	})
	return out
}

func (e *ExtTable) refinePMPMode(h *Hart, mode Mode, paddr uint64, access AccessType) Mode {
	out := mode
	e.visit(func(cb *ExtCallbacks) {
		if cb.RefinePMPMode != nil {
			out = cb.RefinePMPMode(h, out, paddr, access)
		}
	})
	return out
}

func (e *ExtTable) notifyTLBFree(h *Hart, class TLBClass, vpage uint64, entry *TLBEntry) {
	e.visit(func(cb *ExtCallbacks) {
		if cb.TLBEntryFree != nil {
			cb.TLBEntryFree(h, class, vpage, entry)
		}
	})
}
