package refcount

import (
	"strings"
	"testing"

	"github.com/orizon-lang/rcgen/internal/layout"
	"github.com/orizon-lang/rcgen/internal/lir"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		ptrBytes  int64
		shouldErr bool
	}{
		{"one_byte", 1, false},
		{"two_bytes", 2, false},
		{"four_bytes", 4, false},
		{"eight_bytes", 8, false},
		{"three_bytes", 3, true},
		{"zero_bytes", 0, true},
		{"negative", -8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{PtrBytes: tt.ptrBytes}
			err := cfg.Validate()

			if tt.shouldErr && err == nil {
				t.Fatalf("expected error for PtrBytes=%d, got nil", tt.ptrBytes)
			}

			if !tt.shouldErr && err != nil {
				t.Fatalf("unexpected error for PtrBytes=%d: %v", tt.ptrBytes, err)
			}
		})
	}
}

func TestConfigValidateABIVersion(t *testing.T) {
	tests := []struct {
		name       string
		abiVersion string
		shouldErr  bool
	}{
		{"empty_skips_check", "", false},
		{"current_major", "1.0.0", false},
		{"current_major_patch", "1.4.2", false},
		{"future_major_rejected", "2.0.0", true},
		{"malformed_version", "not-a-version", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{PtrBytes: 8, ABIVersion: tt.abiVersion}
			err := cfg.Validate()

			if tt.shouldErr && err == nil {
				t.Fatalf("expected error for ABIVersion=%q, got nil", tt.abiVersion)
			}

			if !tt.shouldErr && err != nil {
				t.Fatalf("unexpected error for ABIVersion=%q: %v", tt.abiVersion, err)
			}
		})
	}
}

func TestValidateAlignmentClass(t *testing.T) {
	tests := []struct {
		name      string
		alignment int64
		ptrBytes  int64
		shouldErr bool
	}{
		{"w_at_8", 8, 8, false},
		{"two_w_at_8", 16, 8, false},
		{"w_at_4", 4, 4, false},
		{"two_w_at_4", 8, 4, false},
		{"below_w", 4, 8, true},
		{"above_two_w", 32, 8, true},
		{"zero", 0, 8, true},
		{"negative", -8, 8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAlignmentClass(tt.alignment, tt.ptrBytes)
			if tt.shouldErr && err == nil {
				t.Errorf("alignment %d (ptrBytes %d): expected error, got nil", tt.alignment, tt.ptrBytes)
			}

			if !tt.shouldErr && err != nil {
				t.Errorf("alignment %d (ptrBytes %d): unexpected error: %v", tt.alignment, tt.ptrBytes, err)
			}
		})
	}
}

func TestModeString(t *testing.T) {
	if ModeInc.String() != "inc" {
		t.Errorf("ModeInc.String() = %q, want inc", ModeInc.String())
	}

	if ModeDec.String() != "dec" {
		t.Errorf("ModeDec.String() = %q, want dec", ModeDec.String())
	}
}

func strLayout() layout.RCLayout {
	return layout.RCLayout{Kind: layout.RCBuiltin, Builtin: layout.BuiltinStr}
}

func listOfStrLayout() layout.RCLayout {
	elem := strLayout()

	return layout.RCLayout{Kind: layout.RCBuiltin, Builtin: layout.BuiltinList, ElementMode: layout.Refcounted, Element: &elem}
}

func newTestEmitter(t *testing.T) *Emitter {
	t.Helper()

	e, err := NewEmitter(Config{PtrBytes: 8}, nil)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}

	return e
}

// TestMemoizationSharesHelperAcrossCallSites verifies two independent
// EmitModify calls for the same layout and mode generate exactly one
// helper function, not two.
func TestMemoizationSharesHelperAcrossCallSites(t *testing.T) {
	e := newTestEmitter(t)
	l := listOfStrLayout()

	b1 := newFuncBuilder("caller1", []string{"v"})
	if err := e.EmitModify(b1, "v", l, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("first EmitModify: %v", err)
	}

	afterFirst := len(e.module.Functions)

	b2 := newFuncBuilder("caller2", []string{"v"})
	if err := e.EmitModify(b2, "v", l, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("second EmitModify: %v", err)
	}

	if got := len(e.module.Functions); got != afterFirst {
		t.Errorf("second EmitModify for the same layout grew the module from %d to %d functions; want no growth", afterFirst, got)
	}
}

// TestIncDecShareNumericSuffix is the spec's core naming invariant: the
// increment and decrement helpers for the same layout must share the same
// numeric id, because both derive it from the canonical decrement key.
func TestIncDecShareNumericSuffix(t *testing.T) {
	e := newTestEmitter(t)
	l := listOfStrLayout()

	incName := functionName(e.interner, l, ModeInc)
	decName := functionName(e.interner, l, ModeDec)

	if incName[:3] != "Inc" {
		t.Fatalf("expected Inc-prefixed name, got %q", incName)
	}

	if decName[:3] != "Dec" {
		t.Fatalf("expected Dec-prefixed name, got %q", decName)
	}

	incSuffix := incName[len("Inc"):]
	decSuffix := decName[len("Dec"):]

	if incSuffix != decSuffix {
		t.Errorf("Inc/Dec suffixes differ: %q vs %q (names: %s, %s)", incSuffix, decSuffix, incName, decName)
	}
}

// TestDistinctLayoutsGetDistinctIDs guards against over-eager memoization:
// two structurally different list element types must not collapse onto the
// same helper.
func TestDistinctLayoutsGetDistinctIDs(t *testing.T) {
	e := newTestEmitter(t)

	strElem := strLayout()
	listOfStr := layout.RCLayout{Kind: layout.RCBuiltin, Builtin: layout.BuiltinList, ElementMode: layout.Refcounted, Element: &strElem}

	innerList := listOfStrLayout()
	listOfListOfStr := layout.RCLayout{Kind: layout.RCBuiltin, Builtin: layout.BuiltinList, ElementMode: layout.Refcounted, Element: &innerList}

	id1 := e.interner.idFor(listOfStr)
	id2 := e.interner.idFor(listOfListOfStr)

	if id1 == id2 {
		t.Errorf("expected distinct ids for distinct layouts, both got %d", id1)
	}
}

// TestEmitModifyCallUsesRuntimeAmount checks that supplying a CallMode
// amount reuses the same memoized helper (amount lives in a parameter, not
// baked into the body) and threads the caller's value through as the call
// argument instead of the literal "1".
func TestEmitModifyCallUsesRuntimeAmount(t *testing.T) {
	e := newTestEmitter(t)
	l := strLayout()

	b := newFuncBuilder("caller", []string{"v", "n"})
	if err := e.EmitModifyCall(b, "v", l, CallMode{Mode: ModeInc, Amount: "n"}, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModifyCall: %v", err)
	}

	if err := e.EmitModify(b, "v", l, ModeInc, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify: %v", err)
	}

	if len(e.module.Functions) != 1 {
		t.Fatalf("expected both calls to share 1 memoized helper, got %d", len(e.module.Functions))
	}

	calls := 0

	for _, ins := range b.fn.Blocks[0].Insns {
		if c, ok := ins.(lir.Call); ok {
			calls++

			if calls == 1 && (len(c.Args) != 2 || c.Args[1] != "n") {
				t.Errorf("expected first call's amount arg to be %q, got %v", "n", c.Args)
			}

			if calls == 2 && (len(c.Args) != 2 || c.Args[1] != "1") {
				t.Errorf("expected second call's amount arg to be %q, got %v", "1", c.Args)
			}
		}
	}

	if calls != 2 {
		t.Fatalf("expected 2 calls emitted at the caller, got %d", calls)
	}
}

// TestDecrementRecursesUnconditionally guards against a container only
// visiting its elements inside the branch that discovers its own count
// reached zero. The per-layout decrement helper must never branch on "is
// the count one" at all — that check, and the free it can trigger, live
// entirely inside the shared decrement_refcounted_ptr_<A> helper; the
// per-layout helper just visits elements and calls it unconditionally.
func TestDecrementRecursesUnconditionally(t *testing.T) {
	e := newTestEmitter(t)
	l := listOfStrLayout()

	b := newFuncBuilder("caller", []string{"v"})
	if err := e.EmitModify(b, "v", l, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify: %v", err)
	}

	listFnName := functionName(e.interner, l, ModeDec)
	elemFnName := functionName(e.interner, strLayout(), ModeDec)

	var listFn *lir.Function

	for _, fn := range e.module.Functions {
		if fn.Name == listFnName {
			listFn = fn
		}
	}

	if listFn == nil {
		t.Fatalf("decrement helper %q not found", listFnName)
	}

	foundElemCall := false

	for _, bb := range listFn.Blocks {
		if strings.Contains(bb.Label, "free") || strings.Contains(strings.ReplaceAll(bb.Label, "done", ""), "one") {
			t.Errorf("list decrement helper has a %q block; the is-one/free check belongs only in the shared decrement helper", bb.Label)
		}

		for _, ins := range bb.Insns {
			if c, ok := ins.(lir.Call); ok && c.Callee == elemFnName {
				foundElemCall = true
			}
		}
	}

	if !foundElemCall {
		t.Errorf("expected list decrement helper to call element decrement helper %q unconditionally", elemFnName)
	}
}

// TestSharedDecrementHelperIsMemoizedAcrossLayouts verifies that two
// distinct layouts with the same alignment class route their decrement
// through the same shared decrement_refcounted_ptr_<A> function rather
// than each inlining their own copy of the sequence.
func TestSharedDecrementHelperIsMemoizedAcrossLayouts(t *testing.T) {
	e := newTestEmitter(t)

	str := strLayout()
	listOfStr := listOfStrLayout()

	b1 := newFuncBuilder("caller1", []string{"v"})
	if err := e.EmitModify(b1, "v", str, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify str: %v", err)
	}

	b2 := newFuncBuilder("caller2", []string{"v"})
	if err := e.EmitModify(b2, "v", listOfStr, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify list: %v", err)
	}

	sharedName := decrementHelperName(e.cfg.PtrBytes)

	count := 0

	for _, fn := range e.module.Functions {
		if fn.Name == sharedName {
			count++
		}
	}

	if count != 1 {
		t.Errorf("expected exactly 1 shared decrement helper %q, got %d", sharedName, count)
	}
}

// TestDecrementHelperTakesOnlyValue guards the helper signature split: a
// decrement helper drops its count by exactly one and carries no amount
// parameter, unlike increment helpers.
func TestDecrementHelperTakesOnlyValue(t *testing.T) {
	e := newTestEmitter(t)
	l := strLayout()

	b := newFuncBuilder("caller", []string{"v"})
	if err := e.EmitModify(b, "v", l, ModeDec, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify: %v", err)
	}

	name := functionName(e.interner, l, ModeDec)

	for _, fn := range e.module.Functions {
		if fn.Name == name {
			if len(fn.Params) != 1 || fn.Params[0] != "value" {
				t.Errorf("decrement helper params = %v, want [value]", fn.Params)
			}

			return
		}
	}

	t.Fatalf("helper %q not found", name)
}

// TestStrHelperSkipsZeroLength guards the small-string boundary: a
// zero-length heap-shaped string must also skip the cell op, so the check
// must be <= 0, not < 0.
func TestStrHelperSkipsZeroLength(t *testing.T) {
	e := newTestEmitter(t)
	l := strLayout()

	b := newFuncBuilder("caller", []string{"v", "n"})
	if err := e.EmitModifyCall(b, "v", l, CallMode{Mode: ModeInc, Amount: "n"}, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModifyCall: %v", err)
	}

	name := functionName(e.interner, l, ModeInc)

	var fn *lir.Function

	for _, f := range e.module.Functions {
		if f.Name == name {
			fn = f
		}
	}

	if fn == nil {
		t.Fatalf("helper %q not found", name)
	}

	found := false

	for _, bb := range fn.Blocks {
		for _, ins := range bb.Insns {
			if c, ok := ins.(lir.Cmp); ok && c.Pred == "sle" {
				found = true
			}
		}
	}

	if !found {
		t.Errorf("expected str helper's small-string check to use predicate %q (exactly-zero must also skip)", "sle")
	}
}

func TestEmitModifySkipsScalar(t *testing.T) {
	e := newTestEmitter(t)
	scalar := layout.RCLayout{Kind: layout.RCBuiltin, Builtin: layout.BuiltinScalar}

	b := newFuncBuilder("caller", []string{"v"})
	if err := e.EmitModify(b, "v", scalar, ModeInc, WhenRecursive{Kind: WhenRecursiveUnreachable}); err != nil {
		t.Fatalf("EmitModify on scalar: %v", err)
	}

	if len(e.module.Functions) != 0 {
		t.Errorf("expected no helper generated for a scalar, got %d", len(e.module.Functions))
	}
}
