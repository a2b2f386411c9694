package refcount

import (
	"testing"

	"github.com/orizon-lang/rcgen/internal/layout"
	"github.com/orizon-lang/rcgen/internal/lir"
)

func TestClosureRecursesOnlyIntoCaptured(t *testing.T) {
	scalar := layout.RCLayout{Kind: layout.RCBuiltin, Builtin: layout.BuiltinScalar}
	c := layout.RCLayout{
		Kind:            layout.RCClosure,
		ClosureArgs:     []layout.RCLayout{scalar},
		ClosureCaptured: []layout.RCLayout{strLayout(), scalar},
		ClosureReturn:   &scalar,
	}

	e := newTestEmitter(t)

	b := newFuncBuilder("caller", []string{"v"})
	if err := e.EmitModify(b, "v", c, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify: %v", err)
	}

	name := functionName(e.interner, c, ModeDec)

	fn, ok := e.funcs[name]
	if !ok {
		t.Fatalf("helper %q was not generated", name)
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
		t.Errorf("expected exactly 1 capture GEP (only the Str capture), got %d", gepCount)
	}
}

// TestRecursivePointerUnreachableOutsideUnion checks that requesting a
// modify for a bare RecursivePointer with no enclosing loop context fails
// rather than silently emitting nonsense.
func TestRecursivePointerUnreachableOutsideUnion(t *testing.T) {
	e := newTestEmitter(t)
	l := layout.RCLayout{Kind: layout.RCRecursivePointer}

	b := newFuncBuilder("caller", []string{"v"})
	if err := e.EmitModify(b, "v", l, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err == nil {
		t.Fatal("expected an error for a bare RecursivePointer with WhenRecursiveUnreachable, got nil")
	}
}
