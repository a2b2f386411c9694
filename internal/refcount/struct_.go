package refcount

import (
	"github.com/orizon-lang/rcgen/internal/layout"
	"github.com/orizon-lang/rcgen/internal/lir"
)

// buildStruct emits one field visit per refcounted field, in declaration
// order, skipping fields whose layout carries nothing to refcount at all.
// A struct never owns a cell of its own; it is purely a vehicle for its
// fields' obligations.
func (e *Emitter) buildStruct(b *funcBuilder, l layout.RCLayout, mode Mode, wr WhenRecursive) error {
	var offset int64

	for i, f := range l.Fields {
		size := f.StackSize(e.cfg.PtrBytes)

		if f.ContainsRefcounted() {
			fieldPtr := b.newTemp("fieldptr")
			b.emit(lir.GEP{Dst: fieldPtr, Base: "value", Index: i, Offset: offset})

			loaded := b.newTemp("field")
			b.emit(lir.Load{Dst: loaded, Addr: fieldPtr})

			// Propagate this helper's own "amount" parameter on increment
			// rather than defaulting to 1: duplicating a struct value N
			// times duplicates each of its refcounted fields' references N
			// times too, since a struct has no cell of its own to absorb
			// the count. Decrement always drops a field by exactly one.
			if err := e.EmitModifyCall(b, loaded, f, selfAmountCallMode(mode), wr); err != nil {
				return err
			}
		}

		offset += size
	}

	return nil
}

// buildClosure refcounts only a closure's captured environment: its
// argument and return layouts describe the function it calls, not data it
// owns, so they never carry an obligation of their own. This mirrors how a
// defunctionalized closure representation typically boxes just its capture
// set behind one allocation; a backend that instead inlines captures
// unboxed into the closure's own stack slot would skip this entirely, a
// design point callers should expect to revisit as their closure
// representation firms up.
func (e *Emitter) buildClosure(b *funcBuilder, l layout.RCLayout, mode Mode, wr WhenRecursive) error {
	var offset int64

	for i, f := range l.ClosureCaptured {
		size := f.StackSize(e.cfg.PtrBytes)

		if f.ContainsRefcounted() {
			fieldPtr := b.newTemp("captureptr")
			b.emit(lir.GEP{Dst: fieldPtr, Base: "value", Index: i, Offset: offset})

			loaded := b.newTemp("capture")
			b.emit(lir.Load{Dst: loaded, Addr: fieldPtr})

			// Propagate this helper's own "amount" parameter on increment
			// rather than defaulting to 1: duplicating a struct value N
			// times duplicates each of its refcounted fields' references N
			// times too, since a struct has no cell of its own to absorb
			// the count. Decrement always drops a field by exactly one.
			if err := e.EmitModifyCall(b, loaded, f, selfAmountCallMode(mode), wr); err != nil {
				return err
			}
		}

		offset += size
	}

	return nil
}
