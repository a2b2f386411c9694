package refcount

import (
	"github.com/orizon-lang/rcgen/internal/intrinsics"
	"github.com/orizon-lang/rcgen/internal/lir"
)

// cellAddrFromDataPtr computes the address of a value's refcount cell,
// stored ptrBytes below its data pointer, by treating the pointer as an
// integer, subtracting the pointer width, and casting back.
func cellAddrFromDataPtr(b *funcBuilder, dataPtr Value, ptrBytes int64) Value {
	return offsetPointerBack(b, dataPtr, ptrBytes, ptrBytes)
}

// offsetPointerBack computes ptr − n bytes via an integer round-trip.
// cellAddrFromDataPtr is the n == ptrBytes case; the 2W decrement helper
// reuses this for its extra alignment-padding step-back.
func offsetPointerBack(b *funcBuilder, ptr Value, n, ptrBytes int64) Value {
	asInt := b.newTemp("asint")
	b.emit(lir.BitCast{Dst: asInt, Src: ptr, ToType: "i" + intLit(ptrBytes*8)})

	resInt := b.newTemp("backaddr")
	b.emit(lir.Sub{Dst: resInt, LHS: asInt, RHS: intLit(n)})

	resPtr := b.newTemp("backptr")
	b.emit(lir.IntToPtr{Dst: resPtr, Src: resInt})

	return resPtr
}

func loadRefcount(b *funcBuilder, cellPtr Value) Value {
	rc := b.newTemp("rc")
	b.emit(lir.Load{Dst: rc, Addr: cellPtr})

	return rc
}

func storeRefcount(b *funcBuilder, cellPtr, val Value) {
	b.emit(lir.Store{Addr: cellPtr, Val: val})
}

// emitIsStatic tests whether a loaded refcount value is the STATIC
// sentinel (0), which must never be mutated or freed.
func emitIsStatic(b *funcBuilder, rc Value) Value {
	out := b.newTemp("is_static")
	b.emit(lir.Cmp{Dst: out, Pred: "eq", LHS: rc, RHS: "0"})

	return out
}

// freeIntrinsicName and addOverflowIntrinsicName resolve canonical
// intrinsic names through the shared registry, falling back to the bare
// mnemonic if a caller's stripped-down registry has no entry for them.
// Renaming an intrinsic in the registry then automatically renames the
// calls this package emits.
func freeIntrinsicName() string {
	return intrinsicName("orizon_free", "free")
}

func addOverflowIntrinsicName() string {
	return intrinsicName("orizon_add_overflow", "sadd.with.overflow")
}

func intrinsicName(registryName, fallback string) string {
	if info, ok := intrinsics.GetIntrinsic(registryName); ok {
		return info.Name
	}

	return fallback
}

// emitIncrementBy emits the full increment sequence for one refcounted
// cell: load the count, skip mutation entirely if it is STATIC, otherwise
// add the requested amount (checked for overflow; a saturating runtime may
// choose to clamp rather than trap on overflow) and store it back. Unlike
// decrement, this stays inlined at every call site — the sequence is only
// three instructions plus the STATIC branch, too small to be worth sharing.
func emitIncrementBy(b *funcBuilder, dataPtr Value, amount Value, ptrBytes int64) {
	cell := cellAddrFromDataPtr(b, dataPtr, ptrBytes)
	rc := loadRefcount(b, cell)
	isStatic := emitIsStatic(b, rc)

	bumpLabel, skipLabel, doneLabel := reserveLabels3(b, "inc_bump", "inc_static_skip", "inc_done")
	b.emit(lir.BrCond{Cond: isStatic, True: skipLabel, False: bumpLabel})

	b.openReserved(bumpLabel)

	newRC := b.newTemp("newrc")
	overflowed := b.newTemp("ovf")
	b.emit(lir.OverflowAdd{Dst: newRC, Overflow: overflowed, LHS: rc, RHS: amount})
	_ = addOverflowIntrinsicName() // canonical name recorded for the debug/IR text form a real backend would attach.
	storeRefcount(b, cell, newRC)
	b.emit(lir.Br{Target: doneLabel})

	b.openReserved(skipLabel)
	b.emit(lir.Br{Target: doneLabel})

	b.openReserved(doneLabel)
}

// decrementHelperName names the shared, per-alignment decrement function:
// one is built and memoized per distinct alignment class A, not per layout.
func decrementHelperName(alignment int64) string {
	return "decrement_refcounted_ptr_" + intLit(alignment)
}

// buildDecrementHelperBody emits the shared decrement sequence, parameterized
// by alignment class A, into an already-opened function whose sole parameter
// is "cell" (the refcount word's own address, already computed by the
// caller via cellAddrFromDataPtr): skip entirely if STATIC; signed-add −1
// with overflow; if overflowed, the previous value was INT_MIN (count one),
// so free (stepping the free address one more pointer-width back when
// A == 2W, to land on the allocation's true malloc'd base) and return;
// otherwise store the decremented value. Every layout whose alignment class
// is A calls this one function rather than inlining the sequence itself.
func (e *Emitter) buildDecrementHelperBody(b *funcBuilder, alignment int64) {
	cell := Value("cell")
	rc := loadRefcount(b, cell)
	isStatic := emitIsStatic(b, rc)

	subLabel, skipLabel, doneLabel := reserveLabels3(b, "dec_sub", "dec_static_skip", "dec_done")
	b.emit(lir.BrCond{Cond: isStatic, True: skipLabel, False: subLabel})

	b.openReserved(subLabel)

	newRC := b.newTemp("newrc")
	overflowed := b.newTemp("ovf")
	b.emit(lir.OverflowAdd{Dst: newRC, Overflow: overflowed, LHS: rc, RHS: intLit(-1)})
	_ = addOverflowIntrinsicName()

	freeLabel, storeLabel := reserveLabels2(b, "dec_free", "dec_store")
	b.emit(lir.BrCond{Cond: overflowed, True: freeLabel, False: storeLabel})

	b.openReserved(freeLabel)

	if !e.cfg.Leak {
		_ = freeIntrinsicName()

		freeAddr := cell
		if alignment == 2*e.cfg.PtrBytes {
			freeAddr = offsetPointerBack(b, cell, e.cfg.PtrBytes, e.cfg.PtrBytes)
		}

		b.emit(lir.Free{Ptr: freeAddr})
	}

	b.emit(lir.Br{Target: doneLabel})

	b.openReserved(storeLabel)
	storeRefcount(b, cell, newRC)
	b.emit(lir.Br{Target: doneLabel})

	b.openReserved(skipLabel)
	b.emit(lir.Br{Target: doneLabel})

	b.openReserved(doneLabel)
}
