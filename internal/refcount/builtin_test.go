package refcount

import (
	"testing"

	"github.com/orizon-lang/rcgen/internal/layout"
	"github.com/orizon-lang/rcgen/internal/lir"
)

// TestListOfScalarsNeverRecurses verifies a list of plain scalars only
// touches its own cell (through the shared decrement helper): there is
// nothing underneath worth visiting.
func TestListOfScalarsNeverRecurses(t *testing.T) {
	scalar := layout.RCLayout{Kind: layout.RCBuiltin, Builtin: layout.BuiltinScalar}
	l := layout.RCLayout{Kind: layout.RCBuiltin, Builtin: layout.BuiltinList, ElementMode: layout.ByValue, Element: &scalar}

	e := newTestEmitter(t)

	b := newFuncBuilder("caller", []string{"v"})
	if err := e.EmitModify(b, "v", l, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify: %v", err)
	}

	name := functionName(e.interner, l, ModeDec)

	fn, ok := e.funcs[name]
	if !ok {
		t.Fatalf("helper %q was not generated", name)
	}

	for _, bb := range fn.Blocks {
		for _, ins := range bb.Insns {
			if c, ok := ins.(lir.Call); ok && c.Callee != decrementHelperName(8) {
				t.Errorf("list-of-scalars decrement should never call an element helper, found call to %s", c.Callee)
			}
		}
	}
}

// TestListOfStrIncrementVisitsElements checks that incrementing a list of
// strings also increments its elements: the element loop calls the string
// element's increment helper.
func TestListOfStrIncrementVisitsElements(t *testing.T) {
	e := newTestEmitter(t)
	l := listOfStrLayout()

	b := newFuncBuilder("caller", []string{"v"})
	if err := e.EmitModify(b, "v", l, ModeInc, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify: %v", err)
	}

	name := functionName(e.interner, l, ModeInc)

	fn, ok := e.funcs[name]
	if !ok {
		t.Fatalf("helper %q was not generated", name)
	}

	elemName := functionName(e.interner, strLayout(), ModeInc)
	sawElemCall := false

	for _, bb := range fn.Blocks {
		for _, ins := range bb.Insns {
			if c, ok := ins.(lir.Call); ok && c.Callee == elemName {
				sawElemCall = true
			}
		}
	}

	if !sawElemCall {
		t.Errorf("list-of-strings increment should call %s for its elements", elemName)
	}
}

// TestListOfStrDecrementVisitsElementsAndFrees checks the decrement side:
// the element loop calls the string element's decrement helper, and the
// list's own cell goes to the shared decrement helper, which holds the free.
func TestListOfStrDecrementVisitsElementsAndFrees(t *testing.T) {
	e := newTestEmitter(t)
	l := listOfStrLayout()

	b := newFuncBuilder("caller", []string{"v"})
	if err := e.EmitModify(b, "v", l, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify: %v", err)
	}

	name := functionName(e.interner, l, ModeDec)

	fn, ok := e.funcs[name]
	if !ok {
		t.Fatalf("helper %q was not generated", name)
	}

	elemName := functionName(e.interner, strLayout(), ModeDec)
	sawCall := false

	for _, bb := range fn.Blocks {
		for _, ins := range bb.Insns {
			if c, ok := ins.(lir.Call); ok && c.Callee == elemName {
				sawCall = true
			}
		}
	}

	if !hasFreeCall(e, fn) {
		t.Error("expected a free reachable from the list-of-strings decrement helper")
	}

	if !sawCall {
		t.Error("expected a recursive call into the string element's decrement helper")
	}
}

// TestStrSmallStringSkipsCellOp exercises the SSO branch structurally: the
// helper must branch on the length's sign before ever touching a cell.
func TestStrSmallStringSkipsCellOp(t *testing.T) {
	e := newTestEmitter(t)
	l := strLayout()

	b := newFuncBuilder("caller", []string{"v"})
	if err := e.EmitModify(b, "v", l, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify: %v", err)
	}

	name := functionName(e.interner, l, ModeDec)

	fn, ok := e.funcs[name]
	if !ok {
		t.Fatalf("helper %q was not generated", name)
	}

	var sawCmp bool

	for _, bb := range fn.Blocks {
		for _, ins := range bb.Insns {
			if c, ok := ins.(lir.Cmp); ok && c.Pred == "sle" {
				sawCmp = true
			}
		}
	}

	if !sawCmp {
		t.Error("expected a signed length comparison distinguishing small-string from heap-allocated")
	}
}

func TestStructRecursesOnlyIntoRefcountedFields(t *testing.T) {
	scalar := layout.RCLayout{Kind: layout.RCBuiltin, Builtin: layout.BuiltinScalar}
	s := layout.RCLayout{Kind: layout.RCStruct, Fields: []layout.RCLayout{scalar, strLayout(), scalar}}

	for _, mode := range []Mode{ModeInc, ModeDec} {
		e := newTestEmitter(t)

		b := newFuncBuilder("caller", []string{"v"})
		if err := e.EmitModify(b, "v", s, mode, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
			t.Fatalf("mode %s: EmitModify: %v", mode, err)
		}

		name := functionName(e.interner, s, mode)

		fn, ok := e.funcs[name]
		if !ok {
			t.Fatalf("mode %s: helper %q was not generated", mode, name)
		}

		gepCount := 0

		for _, bb := range fn.Blocks {
			for _, ins := range bb.Insns {
				if _, ok := ins.(lir.GEP); ok {
					gepCount++
				}
			}
		}

		if gepCount != 1 {
			t.Errorf("mode %s: expected exactly 1 field GEP (only the Str field), got %d", mode, gepCount)
		}
	}
}

func TestStructAllScalarsGeneratesNoHelper(t *testing.T) {
	scalar := layout.RCLayout{Kind: layout.RCBuiltin, Builtin: layout.BuiltinScalar}
	s := layout.RCLayout{Kind: layout.RCStruct, Fields: []layout.RCLayout{scalar, scalar}}

	e := newTestEmitter(t)

	b := newFuncBuilder("caller", []string{"v"})
	if err := e.EmitModify(b, "v", s, ModeInc, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify: %v", err)
	}

	if len(e.module.Functions) != 0 {
		t.Errorf("expected no helper for an all-scalar struct, got %d", len(e.module.Functions))
	}
}
