package refcount

import (
	"github.com/orizon-lang/rcgen/internal/layout"
	"github.com/orizon-lang/rcgen/internal/lir"
)

// buildBuiltin lowers a refcounted builtin container (List/Str/Dict/Set).
// Scalars never reach here: EmitModify's ContainsRefcounted guard filters
// them out before a helper is ever requested.
func (e *Emitter) buildBuiltin(b *funcBuilder, l layout.RCLayout, mode Mode) error {
	switch l.Builtin {
	case layout.BuiltinStr:
		return e.buildStr(b, l, mode)
	case layout.BuiltinList:
		return e.buildListLike(b, l, mode, l.Element)
	case layout.BuiltinDict:
		return e.buildDictOrSet(b, l, mode, true)
	case layout.BuiltinSet:
		return e.buildDictOrSet(b, l, mode, false)
	default:
		return nil
	}
}

// buildStr handles the small-string-optimization split: a string whose
// length word, read as signed, is zero or negative is stored inline (never
// refcounted); only a heap-allocated string with a strictly positive length
// carries a cell worth touching.
func (e *Emitter) buildStr(b *funcBuilder, l layout.RCLayout, mode Mode) error {
	lenPtr := b.newTemp("strlenptr")
	b.emit(lir.GEP{Dst: lenPtr, Base: "value", Index: 1, Offset: e.cfg.PtrBytes})

	length := b.newTemp("strlen")
	b.emit(lir.Load{Dst: length, Addr: lenPtr})

	isSmall := b.newTemp("is_small")
	b.emit(lir.Cmp{Dst: isSmall, Pred: "sle", LHS: length, RHS: "0"})

	heapLabel, doneLabel := reserveLabels2(b, "str_heap", "str_done")
	b.emit(lir.BrCond{Cond: isSmall, True: doneLabel, False: heapLabel})

	b.openReserved(heapLabel)

	if err := e.emitCellOp(b, "value", l, mode); err != nil {
		return err
	}

	b.emit(lir.Br{Target: doneLabel})

	b.openReserved(doneLabel)

	return nil
}

// buildListLike emits the shared shape behind List, Dict, and Set: a single
// refcounted cell shared by the container and its elements. Elements are
// visited unconditionally whenever the element layout is refcounted — on
// both increment and decrement, and regardless of whether the container's
// own count happens to reach zero — and always before the container's own
// cell op, so every read through data_ptr completes before a decrement that
// might free it.
func (e *Emitter) buildListLike(b *funcBuilder, l layout.RCLayout, mode Mode, elem *layout.RCLayout) error {
	recurse := elem != nil && l.ElementMode == layout.Refcounted && elem.ContainsRefcounted()

	if recurse {
		e.containers.EmitListElementLoop(b, "value", *elem, func(b *funcBuilder, elemPtr Value) {
			loaded := b.newTemp("elem")
			b.emit(lir.Load{Dst: loaded, Addr: elemPtr})
			_ = e.EmitModifyCall(b, loaded, *elem, selfAmountCallMode(mode), WhenRecursive{Kind: WhenRecursiveUnreachable})
		})
	}

	return e.emitCellOp(b, "value", l, mode)
}

func (e *Emitter) buildDictOrSet(b *funcBuilder, l layout.RCLayout, mode Mode, hasValue bool) error {
	keyRefcounted := l.Key != nil && l.Key.ContainsRefcounted()
	valRefcounted := hasValue && l.Element != nil && l.Element.ContainsRefcounted()

	if keyRefcounted || valRefcounted {
		e.emitDictLoop(b, l, mode, hasValue, keyRefcounted, valRefcounted)
	}

	return e.emitCellOp(b, "value", l, mode)
}

func (e *Emitter) emitDictLoop(b *funcBuilder, l layout.RCLayout, mode Mode, hasValue, keyRefcounted, valRefcounted bool) {
	var keyLayout, valLayout layout.RCLayout
	if l.Key != nil {
		keyLayout = *l.Key
	}

	if l.Element != nil {
		valLayout = *l.Element
	}

	cm := selfAmountCallMode(mode)

	e.containers.EmitDictElementLoop(b, "value", keyLayout, valLayout, func(b *funcBuilder, keyPtr, valPtr Value) {
		if keyRefcounted {
			loaded := b.newTemp("key")
			b.emit(lir.Load{Dst: loaded, Addr: keyPtr})
			_ = e.EmitModifyCall(b, loaded, keyLayout, cm, WhenRecursive{Kind: WhenRecursiveUnreachable})
		}

		if hasValue && valRefcounted {
			loaded := b.newTemp("val")
			b.emit(lir.Load{Dst: loaded, Addr: valPtr})
			_ = e.EmitModifyCall(b, loaded, valLayout, cm, WhenRecursive{Kind: WhenRecursiveUnreachable})
		}
	})
}

// emitCellOp applies mode to value's own refcount cell. Increment stays
// inlined (emitIncrementBy), reading its amount straight from the
// generated helper's own "amount" parameter. Decrement routes through the
// shared, alignment-keyed decrement helper (ensureDecrementHelper), which
// always drops the count by exactly one and does no recursion of its own —
// any child/element traversal is entirely the caller's responsibility,
// already done above before this is reached.
func (e *Emitter) emitCellOp(b *funcBuilder, value Value, l layout.RCLayout, mode Mode) error {
	if mode == ModeInc {
		emitIncrementBy(b, value, "amount", e.cfg.PtrBytes)

		return nil
	}

	alignment := alignmentClassFor(l, e.cfg.PtrBytes)

	fn, err := e.ensureDecrementHelper(alignment)
	if err != nil {
		return err
	}

	cell := cellAddrFromDataPtr(b, value, e.cfg.PtrBytes)
	b.emit(lir.Call{Callee: fn.Name, Args: []string{cell}})

	return nil
}
