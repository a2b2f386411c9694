package refcount

import (
	"fmt"

	"github.com/orizon-lang/rcgen/internal/debug"
	"github.com/orizon-lang/rcgen/internal/layout"
	"github.com/orizon-lang/rcgen/internal/lir"
)

// Emitter is the layout-directed, memoizing code generator. One Emitter
// corresponds to one compilation unit: every Modify call during its
// lifetime shares the same memoization table, so two call sites needing
// "decrement a list of strings" get exactly one generated helper between
// them, however many times they ask for it.
type Emitter struct {
	cfg        Config
	containers ContainerHelpers
	interner   *interner
	module     *lir.Module
	funcs      map[string]*lir.Function // keyed by function name
	debugInfo  []debug.GeneratedFunction
}

// NewEmitter builds an Emitter for the given configuration. A nil
// ContainerHelpers falls back to NewDefaultContainerHelpers(cfg.PtrBytes).
func NewEmitter(cfg Config, containers ContainerHelpers) (*Emitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if containers == nil {
		containers = NewDefaultContainerHelpers(cfg.PtrBytes)
	}

	return &Emitter{
		cfg:        cfg,
		containers: containers,
		interner:   newInterner(),
		module:     &lir.Module{Name: "refcount"},
		funcs:      make(map[string]*lir.Function),
	}, nil
}

// Module returns the accumulated low-level IR module containing every
// helper function generated so far.
func (e *Emitter) Module() *lir.Module { return e.module }

// DebugProgram returns a debug.GeneratedProgram describing every helper
// function generated so far, suitable for handing to debug.NewEmitter().
func (e *Emitter) DebugProgram() *debug.GeneratedProgram {
	return &debug.GeneratedProgram{ModuleName: e.module.Name, Functions: append([]debug.GeneratedFunction(nil), e.debugInfo...)}
}

// EmitModify is the entry point: "build (or reuse) the helper function
// that applies mode to a value of layout l, then call it on value."
// It is the Go-level analogue of a dispatcher that would otherwise emit
// the call inline at every duplication/drop point in a program. The helper
// is always called with an amount of 1; EmitModifyCall exposes the
// by-N-amount form for callers that collapse a run of identical
// increments/decrements into one call.
func (e *Emitter) EmitModify(b *funcBuilder, value Value, l layout.RCLayout, mode Mode, wr WhenRecursive) error {
	cm := callModeDec1()
	if mode == ModeInc {
		cm = callModeInc1()
	}

	return e.EmitModifyCall(b, value, l, cm, wr)
}

// EmitModifyCall is EmitModify generalized over CallMode: when cm.Amount is
// set, the same memoized helper is invoked with that runtime value instead
// of the literal 1, since the helper's body never bakes the amount in — it
// only ever reads it back out of its own "amount" parameter.
func (e *Emitter) EmitModifyCall(b *funcBuilder, value Value, l layout.RCLayout, cm CallMode, wr WhenRecursive) error {
	if !l.ContainsRefcounted() {
		return nil // nothing to do: a plain scalar or all-scalar struct.
	}

	fn, err := e.getOrBuildHelper(l, cm.Mode, wr)
	if err != nil {
		return err
	}

	b.emit(lir.Call{Callee: fn.Name, Args: cm.callArgs(value)})

	return nil
}

// getOrBuildHelper returns the memoized helper function for (l, mode),
// building it on first request. wr supplies the RecursivePointer
// resolution passed to struct, closure and RecursivePointer builds; builtin
// and union builds do not use it (a recursive union's field phases resolve
// RecursivePointer to the union itself).
func (e *Emitter) getOrBuildHelper(l layout.RCLayout, mode Mode, wr WhenRecursive) (*lir.Function, error) {
	name := functionName(e.interner, l, mode)
	if fn, ok := e.funcs[name]; ok {
		return fn, nil
	}

	// Reserve the name before building the body: a recursive union's own
	// body calls back into this same helper, so the memo table must
	// already answer "yes, building" before we recurse into it.
	placeholder := &lir.Function{Name: name}
	e.funcs[name] = placeholder

	b := newFuncBuilder(name, helperParamsFor(mode))

	var err error

	switch l.Kind {
	case layout.RCBuiltin:
		err = e.buildBuiltin(b, l, mode)
	case layout.RCStruct:
		err = e.buildStruct(b, l, mode, wr)
	case layout.RCUnion:
		err = e.buildUnion(b, l, mode)
	case layout.RCRecursivePointer:
		err = e.buildRecursivePointer(b, l, mode, wr)
	case layout.RCClosure:
		err = e.buildClosure(b, l, mode, wr)
	default:
		// FunctionPointer, Pointer, PhantomEmptyStruct: never refcounted,
		// so ContainsRefcounted() above should have short-circuited before
		// we ever reach here for a bare value of one of these kinds. A
		// struct field of one of these kinds is handled in buildStruct by
		// simply skipping it.
		err = nil
	}

	if err != nil {
		delete(e.funcs, name)

		return nil, err
	}

	b.emit(lir.Ret{})
	e.module.Functions = append(e.module.Functions, b.fn)
	e.funcs[name] = b.fn

	variables := []debug.GeneratedVariable{
		{Name: "value", Type: "ptr", Size: e.cfg.PtrBytes, Alignment: e.cfg.PtrBytes, IsParam: true},
	}
	if mode == ModeInc {
		variables = append(variables, debug.GeneratedVariable{Name: "amount", Type: "isize", Size: e.cfg.PtrBytes, Alignment: e.cfg.PtrBytes, IsParam: true})
	}

	e.debugInfo = append(e.debugInfo, debug.GeneratedFunction{
		Name:        name,
		LayoutKind:  layoutKindTag(l),
		BlockLabels: b.blockLabels(),
		Variables:   variables,
	})

	return b.fn, nil
}

// ensureDecrementHelper returns the memoized shared decrement function for
// alignment class A, building it on first request. One function serves
// every layout whose alignment class is A, regardless of kind — this is
// the function calls to a layout's decrement path ultimately route through.
func (e *Emitter) ensureDecrementHelper(alignment int64) (*lir.Function, error) {
	if err := validateAlignmentClass(alignment, e.cfg.PtrBytes); err != nil {
		return nil, err
	}

	name := decrementHelperName(alignment)
	if fn, ok := e.funcs[name]; ok {
		return fn, nil
	}

	b := newFuncBuilder(name, []string{"cell"})
	e.buildDecrementHelperBody(b, alignment)
	b.emit(lir.Ret{})

	e.module.Functions = append(e.module.Functions, b.fn)
	e.funcs[name] = b.fn
	e.debugInfo = append(e.debugInfo, debug.GeneratedFunction{
		Name:        name,
		LayoutKind:  "decrement_helper",
		BlockLabels: b.blockLabels(),
		Variables: []debug.GeneratedVariable{
			{Name: "cell", Type: "ptr", Size: e.cfg.PtrBytes, Alignment: alignment, IsParam: true},
		},
	})

	return b.fn, nil
}

func (e *Emitter) buildRecursivePointer(b *funcBuilder, l layout.RCLayout, mode Mode, wr WhenRecursive) error {
	switch wr.Kind {
	case WhenRecursiveUnreachable:
		return errRecursivePointerUnreachable(fmt.Sprintf("mode=%s", mode))
	case WhenRecursiveLoop:
		return e.EmitModify(b, "value", wr.Layout, mode, wr)
	default:
		return errRecursivePointerUnreachable(fmt.Sprintf("mode=%s", mode))
	}
}
