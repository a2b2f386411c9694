package refcount

import (
	"fmt"

	"github.com/orizon-lang/rcgen/internal/layout"
	"github.com/orizon-lang/rcgen/internal/lir"
)

// buildUnion dispatches on a tagged union's encoding. Each encoding differs
// in whether it owns a refcount cell at all, whether a tag word is stored
// alongside its fields, and whether one arm is represented as a null
// pointer instead of an allocation.
func (e *Emitter) buildUnion(b *funcBuilder, l layout.RCLayout, mode Mode) error {
	switch l.Variant {
	case layout.UnionNonRecursive:
		return e.buildNonRecursiveUnion(b, l, mode)
	case layout.UnionRecursive:
		return e.buildRecursiveUnion(b, l, mode)
	case layout.UnionNullableWrapped:
		return e.buildNullableWrapped(b, l, mode)
	case layout.UnionNullableUnwrapped:
		return e.buildNullableUnwrapped(b, l, mode)
	case layout.UnionNonNullableUnwrapped:
		return e.buildNonNullableUnwrapped(b, l, mode)
	default:
		return nil
	}
}

// buildNonRecursiveUnion handles tags with no shared cell: the union is
// inline data, like a struct whose field set depends on a runtime
// discriminant, so both modes always recurse directly into whichever arm
// matched. A bare RecursivePointer field here has nothing to loop back to —
// NonRecursive means exactly that — so it is rejected outright rather than
// silently mishandled.
func (e *Emitter) buildNonRecursiveUnion(b *funcBuilder, l layout.RCLayout, mode Mode) error {
	for _, t := range l.Tags {
		for _, f := range t.Fields {
			if containsNakedRecursivePointer(f) {
				return errNakedRecursivePointer(fmt.Sprintf("tag %q", t.Name))
			}
		}
	}

	if len(l.Tags) == 0 {
		return errEmptyTagList("NonRecursive union")
	}

	tagPtr := b.newTemp("uniontagptr")
	b.emit(lir.GEP{Dst: tagPtr, Base: "value", Index: 0, Offset: 0})

	tag := b.newTemp("uniontag")
	b.emit(lir.Load{Dst: tag, Addr: tagPtr})

	doneLabel := b.reserveLabel("union_done")
	armLabels := make([]string, len(l.Tags))
	cases := make([]lir.SwitchCase, len(l.Tags))

	for i, t := range l.Tags {
		armLabels[i] = b.reserveLabel(fmt.Sprintf("union_tag_%d", t.ID))
		cases[i] = lir.SwitchCase{Value: t.ID, Target: armLabels[i]}
	}

	b.emit(lir.Switch{Cond: tag, Default: doneLabel, Cases: cases})

	for i, t := range l.Tags {
		b.openReserved(armLabels[i])

		if err := e.emitInlineFields(b, t.Fields, mode, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
			return err
		}

		b.emit(lir.Br{Target: doneLabel})
	}

	b.openReserved(doneLabel)

	return nil
}

// emitInlineFields recurses unconditionally into every refcounted field,
// used for data that has no cell of its own (struct fields, and a
// non-recursive union's per-tag payload).
func (e *Emitter) emitInlineFields(b *funcBuilder, fields []layout.RCLayout, mode Mode, wr WhenRecursive) error {
	var offset int64

	cm := selfAmountCallMode(mode)

	for i, f := range fields {
		size := f.StackSize(e.cfg.PtrBytes)

		if f.ContainsRefcounted() {
			fieldPtr := b.newTemp("tagfieldptr")
			b.emit(lir.GEP{Dst: fieldPtr, Base: "value", Index: i, Offset: offset})

			loaded := b.newTemp("tagfield")
			b.emit(lir.Load{Dst: loaded, Addr: fieldPtr})

			// This tag has no cell of its own, so the enclosing helper's own
			// "amount" carries through unchanged on increment.
			if err := e.EmitModifyCall(b, loaded, f, cm, wr); err != nil {
				return err
			}
		}

		offset += size
	}

	return nil
}

// buildRecursiveUnion handles a union boxed behind one shared cell, every
// tag sharing the same allocation kind. The tag switch and its field
// phases run unconditionally, for both modes — only the arm's own cell op
// (Phase B, inside emitFieldPhases) is mode-gated in its effect (bump vs.
// possibly free).
func (e *Emitter) buildRecursiveUnion(b *funcBuilder, l layout.RCLayout, mode Mode) error {
	if len(l.Tags) == 0 {
		return errEmptyTagList("Recursive union")
	}

	return e.emitTaggedBody(b, l, l.Tags, mode, true)
}

// buildNullableWrapped handles a union where one tag is a bare null
// pointer and the rest share a boxed, tagged representation. The null
// check happens before any cell touch at all, since there may be nothing
// there to refcount.
func (e *Emitter) buildNullableWrapped(b *funcBuilder, l layout.RCLayout, mode Mode) error {
	if len(l.OtherTags) == 0 {
		return errEmptyTagList("NullableWrapped union")
	}

	isNull := b.newTemp("is_null")
	b.emit(lir.Cmp{Dst: isNull, Pred: "eq", LHS: "value", RHS: "0"})

	boxedLabel, doneLabel := reserveLabels2(b, "nullable_boxed", "nullable_done")
	b.emit(lir.BrCond{Cond: isNull, True: doneLabel, False: boxedLabel})

	b.openReserved(boxedLabel)

	if err := e.emitTaggedBody(b, l, l.OtherTags, mode, true); err != nil {
		return err
	}

	b.emit(lir.Br{Target: doneLabel})
	b.openReserved(doneLabel)

	return nil
}

// buildNullableUnwrapped handles exactly two tags, one null and one boxed
// directly with no tag word, so the boxed arm's fields start at offset 0.
func (e *Emitter) buildNullableUnwrapped(b *funcBuilder, l layout.RCLayout, mode Mode) error {
	isNull := b.newTemp("is_null")
	b.emit(lir.Cmp{Dst: isNull, Pred: "eq", LHS: "value", RHS: "0"})

	boxedLabel, doneLabel := reserveLabels2(b, "unwrapped_boxed", "unwrapped_done")
	b.emit(lir.BrCond{Cond: isNull, True: doneLabel, False: boxedLabel})

	b.openReserved(boxedLabel)

	if err := e.buildUnwrappedBoxed(b, l, mode); err != nil {
		return err
	}

	b.emit(lir.Br{Target: doneLabel})
	b.openReserved(doneLabel)

	return nil
}

// buildNonNullableUnwrapped handles a single non-null tag stored directly
// behind a shared box: no null arm, no tag word, always present.
func (e *Emitter) buildNonNullableUnwrapped(b *funcBuilder, l layout.RCLayout, mode Mode) error {
	return e.buildUnwrappedBoxed(b, l, mode)
}

// buildUnwrappedBoxed is the shared body for the two tag-word-free boxed
// encodings: there is only one variant shape, so no switch is needed — the
// field phases (including the cell's own op) run directly against
// OtherFields at offset 0, since there is no discriminant to skip past.
func (e *Emitter) buildUnwrappedBoxed(b *funcBuilder, l layout.RCLayout, mode Mode) error {
	return e.emitFieldPhases(b, l, l.OtherFields, mode, 0)
}

// emitTaggedBody reads the discriminant tag out of value and switches to
// the matching arm's field phases. withTagWord controls whether fields
// start one pointer-word past the discriminant (true, the common
// Recursive/NullableWrapped case) or at offset 0. Every tag gets a case,
// including ones with no refcounted fields: emitFieldPhases degenerates to
// "apply the cell's own refcount op only" for those, which still must run
// on every dispatch since every tag shares the one cell.
func (e *Emitter) emitTaggedBody(b *funcBuilder, unionLayout layout.RCLayout, tags []layout.UnionTag, mode Mode, withTagWord bool) error {
	tagPtr := b.newTemp("uniontagptr")
	b.emit(lir.GEP{Dst: tagPtr, Base: "value", Index: 0, Offset: 0})

	tag := b.newTemp("uniontag")
	b.emit(lir.Load{Dst: tag, Addr: tagPtr})

	doneLabel := b.reserveLabel("union_done")
	armLabels := make([]string, len(tags))
	cases := make([]lir.SwitchCase, len(tags))

	for i, t := range tags {
		armLabels[i] = b.reserveLabel(fmt.Sprintf("union_tag_%d", t.ID))
		cases[i] = lir.SwitchCase{Value: t.ID, Target: armLabels[i]}
	}

	b.emit(lir.Switch{Cond: tag, Default: doneLabel, Cases: cases})

	var baseOffset int64
	if withTagWord {
		baseOffset = e.cfg.PtrBytes
	}

	for i, t := range tags {
		b.openReserved(armLabels[i])

		if err := e.emitFieldPhases(b, unionLayout, t.Fields, mode, baseOffset); err != nil {
			return err
		}

		b.emit(lir.Br{Target: doneLabel})
	}

	b.openReserved(doneLabel)

	return nil
}

// emitFieldPhases implements Phase A-D for one tag's (or one tag-word-free
// variant's) fields, run in full on every dispatch — increment or
// decrement alike, whether or not Phase B happens to free the cell:
// defer-load every refcounted field first (Phase A, safe because the
// allocation is not actually released until Phase B runs), apply the
// cell's own refcount op (Phase B — this may free the cell, so it must
// come after Phase A's reads and before Phases C/D touch the loaded
// fields), recurse into the non-recursive ones in place (Phase C), then
// tail-call recurse into any RecursivePointer fields last (Phase D) so that
// call stays in tail position — the step that turns what would otherwise be
// O(depth) recursive drops of a linked structure into an O(1) iterative
// walk.
func (e *Emitter) emitFieldPhases(b *funcBuilder, unionLayout layout.RCLayout, fields []layout.RCLayout, mode Mode, baseOffset int64) error {
	type deferredField struct {
		ptr   Value
		field layout.RCLayout
	}

	var nonRecursive, recursivePtrs []deferredField

	offset := baseOffset

	for i, f := range fields {
		size := f.StackSize(e.cfg.PtrBytes)

		if f.ContainsRefcounted() {
			fieldPtr := b.newTemp("unionfieldptr")
			b.emit(lir.GEP{Dst: fieldPtr, Base: "value", Index: i, Offset: offset})

			loaded := b.newTemp("unionfield")
			b.emit(lir.Load{Dst: loaded, Addr: fieldPtr})

			if f.Kind == layout.RCRecursivePointer {
				recursivePtrs = append(recursivePtrs, deferredField{loaded, f})
			} else {
				nonRecursive = append(nonRecursive, deferredField{loaded, f})
			}
		}

		offset += size
	}

	if err := e.emitCellOp(b, "value", unionLayout, mode); err != nil {
		return err
	}

	wr := WhenRecursive{Kind: WhenRecursiveLoop, Layout: unionLayout}
	cm := selfAmountCallMode(mode)

	for _, d := range nonRecursive {
		if err := e.EmitModifyCall(b, d.ptr, d.field, cm, wr); err != nil {
			return err
		}
	}

	selfName := functionName(e.interner, unionLayout, mode)
	for _, d := range recursivePtrs {
		b.emit(lir.Call{Callee: selfName, Args: cm.callArgs(d.ptr), Tail: true})
	}

	return nil
}

// containsNakedRecursivePointer reports whether l is, or inline-contains
// (through struct nesting, without crossing a boxed/cell boundary), a bare
// RecursivePointer — the thing a NonRecursive union's tags must never have,
// since there is no enclosing recursive cell for it to resolve against.
func containsNakedRecursivePointer(l layout.RCLayout) bool {
	switch l.Kind {
	case layout.RCRecursivePointer:
		return true
	case layout.RCStruct:
		for _, f := range l.Fields {
			if containsNakedRecursivePointer(f) {
				return true
			}
		}

		return false
	default:
		return false
	}
}
