package refcount

import (
	"github.com/orizon-lang/rcgen/internal/layout"
	"github.com/orizon-lang/rcgen/internal/lir"
)

// ContainerHelpers supplies the handful of container primitives the
// generator treats as black boxes: extracting a list's length and
// iterating its elements, and iterating a dict's key/value pairs. A real
// backend wires these to whatever runtime representation it actually uses;
// defaultContainerHelpers below gives a reference implementation grounded
// in the same pointer-and-length convention the cell ops use.
type ContainerHelpers interface {
	// EmitListLen returns an SSA value holding a list wrapper's element
	// count, read out of the wrapper (not the refcount cell).
	EmitListLen(b *funcBuilder, listWrapper Value) Value

	// EmitListElementLoop emits a counted loop from 0 to the list's
	// length, invoking body once per iteration with the address of that
	// element. The loop is the only place list element layouts recurse
	// through, mirroring the single shared iteration primitive a real
	// container runtime would expose.
	EmitListElementLoop(b *funcBuilder, listWrapper Value, elem layout.RCLayout, body func(b *funcBuilder, elemPtr Value))

	// EmitDictElementLoop emits a loop over a dict's occupied slots,
	// invoking body once per pair with the address of the key and the
	// address of the value.
	EmitDictElementLoop(b *funcBuilder, dictWrapper Value, key, val layout.RCLayout, body func(b *funcBuilder, keyPtr, valPtr Value))
}

// defaultContainerHelpers is the reference ContainerHelpers used when a
// caller does not supply its own. It lowers to a simple index-based loop:
// a pointer-sized counter compared against the length, with the loop body
// inlined between the header and latch blocks.
type defaultContainerHelpers struct{ ptrBytes int64 }

// NewDefaultContainerHelpers returns the reference ContainerHelpers
// implementation, whose loop lowering assumes the given pointer width for
// computing element addresses.
func NewDefaultContainerHelpers(ptrBytes int64) ContainerHelpers {
	return defaultContainerHelpers{ptrBytes: ptrBytes}
}

func (h defaultContainerHelpers) EmitListLen(b *funcBuilder, listWrapper Value) Value {
	lenPtr := b.newTemp("lenptr")
	b.emit(lir.GEP{Dst: lenPtr, Base: listWrapper, Index: 1, Offset: h.ptrBytes})

	length := b.newTemp("len")
	b.emit(lir.Load{Dst: length, Addr: lenPtr})

	return length
}

func (h defaultContainerHelpers) EmitListElementLoop(b *funcBuilder, listWrapper Value, elem layout.RCLayout, body func(b *funcBuilder, elemPtr Value)) {
	length := h.EmitListLen(b, listWrapper)

	dataPtr := b.newTemp("dataptr")
	b.emit(lir.Load{Dst: dataPtr, Addr: listWrapper})

	idx := b.newTemp("idx")
	b.emit(lir.Mov{Dst: idx, Src: "0"})

	headerLabel, bodyLabel, doneLabel := reserveLabels3(b, "loop_header", "loop_body", "loop_done")
	b.emit(lir.Br{Target: headerLabel})

	b.openReserved(headerLabel)

	cond := b.newTemp("lt")
	b.emit(lir.Cmp{Dst: cond, Pred: "lt", LHS: idx, RHS: length})
	b.emit(lir.BrCond{Cond: cond, True: bodyLabel, False: doneLabel})

	b.openReserved(bodyLabel)

	elemPtr := b.newTemp("elemptr")
	b.emit(lir.GEP{Dst: elemPtr, Base: dataPtr, Index: 0, Offset: 0})

	body(b, elemPtr)

	nextIdx := b.newTemp("idxnext")
	b.emit(lir.Add{Dst: nextIdx, LHS: idx, RHS: "1"})
	b.emit(lir.Br{Target: headerLabel})

	b.openReserved(doneLabel)
}

func (h defaultContainerHelpers) EmitDictElementLoop(b *funcBuilder, dictWrapper Value, key, val layout.RCLayout, body func(b *funcBuilder, keyPtr, valPtr Value)) {
	// Dict storage is modeled as a parallel key/value list pair sharing one
	// length, so the loop shape is identical to EmitListElementLoop with
	// two element pointers advanced together.
	length := h.EmitListLen(b, dictWrapper)

	keysPtr := b.newTemp("keysptr")
	b.emit(lir.Load{Dst: keysPtr, Addr: dictWrapper})

	valsBase := b.newTemp("valsbase")
	b.emit(lir.GEP{Dst: valsBase, Base: dictWrapper, Index: 2, Offset: 2 * h.ptrBytes})

	valsPtr := b.newTemp("valsptr")
	b.emit(lir.Load{Dst: valsPtr, Addr: valsBase})

	idx := b.newTemp("idx")
	b.emit(lir.Mov{Dst: idx, Src: "0"})

	headerLabel, bodyLabel, doneLabel := reserveLabels3(b, "dict_loop_header", "dict_loop_body", "dict_loop_done")
	b.emit(lir.Br{Target: headerLabel})

	b.openReserved(headerLabel)

	cond := b.newTemp("lt")
	b.emit(lir.Cmp{Dst: cond, Pred: "lt", LHS: idx, RHS: length})
	b.emit(lir.BrCond{Cond: cond, True: bodyLabel, False: doneLabel})

	b.openReserved(bodyLabel)

	keyPtr := b.newTemp("keyptr")
	b.emit(lir.GEP{Dst: keyPtr, Base: keysPtr, Index: 0, Offset: 0})

	valPtr := b.newTemp("valptr")
	b.emit(lir.GEP{Dst: valPtr, Base: valsPtr, Index: 0, Offset: 0})

	body(b, keyPtr, valPtr)

	nextIdx := b.newTemp("idxnext")
	b.emit(lir.Add{Dst: nextIdx, LHS: idx, RHS: "1"})
	b.emit(lir.Br{Target: headerLabel})

	b.openReserved(doneLabel)
}
