// Package refcount generates reference-counting increment and decrement
// helper functions from a value's memory layout. It mirrors, for a
// pointer-tagged, eagerly-freed runtime, the job LLVM codegen for a
// reference-counted functional language backend does: given a layout, emit
// (and memoize) one function that walks a value's refcounted parts and
// bumps or drops their counts, freeing a cell's backing allocation the
// moment its count would go to zero.
//
// The package does not decide layouts, parse source, or emit machine code
// directly: those are the job of an (external) layout solver and code
// emitter. It builds internal/lir functions through funcBuilder
// (builder.go), a small builder over basic blocks, loads/stores, pointer
// arithmetic, and calls, and it consumes a ContainerHelpers implementation
// for the handful of container primitives (list/dict iteration) that are
// themselves black boxes here.
package refcount

import (
	semver "github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/rcgen/internal/layout"
)

// supportedABI constrains the runtime ABI versions this generator's encoding
// of the refcount word (zero as the STATIC sentinel, INT_MIN-as-one) is valid
// for. A runtime that bumps its ABI major version to change that encoding
// must be rejected rather than silently miscompiled against.
var supportedABI = mustConstraint(">=1.0.0, <2.0.0")

func mustConstraint(expr string) *semver.Constraints {
	c, err := semver.NewConstraint(expr)
	if err != nil {
		panic(err)
	}

	return c
}

// Mode selects which refcount operation a dispatch builds: bump the count
// on a duplication point, or drop it (and possibly free) at a drop point.
type Mode int

const (
	ModeInc Mode = iota
	ModeDec
)

func (m Mode) String() string {
	if m == ModeInc {
		return "inc"
	}

	return "dec"
}

// CallMode extends Mode with the increment amount, since incrementing by a
// statically known constant (usually 1) and incrementing by a runtime value
// (e.g. a list's element count when owning a borrowed slice) share the same
// helper body but differ in how the caller invokes it.
type CallMode struct {
	Mode   Mode
	Amount string // SSA value name or decimal literal; "" means inc-by-1 / dec-by-1
}

func callModeInc1() CallMode { return CallMode{Mode: ModeInc} }
func callModeDec1() CallMode { return CallMode{Mode: ModeDec} }

// amountOrOne returns cm.Amount, defaulting to the literal "1" when the
// caller didn't supply a runtime value — the common case of a single
// duplication or drop point.
func (cm CallMode) amountOrOne() string {
	if cm.Amount == "" {
		return "1"
	}

	return cm.Amount
}

// callArgs builds the call argument list for invoking a helper on value.
// A decrement helper's signature is void(value): it always drops by
// exactly one, so Amount is never consulted. An increment helper's
// signature is void(value, amount).
func (cm CallMode) callArgs(value string) []string {
	if cm.Mode == ModeDec {
		return []string{value}
	}

	return []string{value, cm.amountOrOne()}
}

// selfAmountCallMode builds the CallMode a helper uses when recursing into
// its own children (list elements, dict keys/values, struct fields, union
// fields): decrement always drops a child by exactly one, but increment
// forwards this helper's own "amount" parameter rather than hardcoding 1 —
// N new references to the parent imply N new indirect references to every
// child reachable through it.
func selfAmountCallMode(mode Mode) CallMode {
	if mode == ModeInc {
		return CallMode{Mode: mode, Amount: "amount"}
	}

	return CallMode{Mode: mode}
}

// Config is the small amount of target-dependent configuration the
// generator needs: it does not otherwise know anything about the target
// beyond what layout.RCLayout already encodes.
type Config struct {
	// PtrBytes is the target's pointer width in bytes. Only 1, 2, 4, and 8
	// are defined; anything else is a programmer error.
	PtrBytes int64
	// Leak, when true, omits the free call from decrement helpers. Used by
	// callers that manage memory externally (e.g. an arena) and only want
	// the bookkeeping side effects of a decrement, never the deallocation.
	Leak bool
	// ABIVersion names the runtime ABI this module's generated helpers will
	// run against, e.g. "1.2.0". Empty skips the check (the common case for
	// a caller with no versioned runtime to compare against).
	ABIVersion string
}

// Validate rejects configurations the generator has no encoding for.
func (c Config) Validate() error {
	switch c.PtrBytes {
	case 1, 2, 4, 8:
	default:
		return errUnsupportedPointerWidth(c.PtrBytes)
	}

	if c.ABIVersion != "" {
		v, err := semver.NewVersion(c.ABIVersion)
		if err != nil {
			return errInvalidABIVersion(c.ABIVersion, err)
		}

		if !supportedABI.Check(v) {
			return errUnsupportedABIVersion(c.ABIVersion)
		}
	}

	return nil
}

// alignmentClassFor computes A = max(ptr_bytes, layout.alignment), the
// bucket a layout's decrement call routes through.
func alignmentClassFor(l layout.RCLayout, ptrBytes int64) int64 {
	if a := l.AlignmentBytes(ptrBytes); a > ptrBytes {
		return a
	}

	return ptrBytes
}

// validateAlignmentClass rejects an alignment the generator has no free-path
// bucket for. Exactly two classes exist for a given pointer width: W
// (ptrBytes itself) and 2W. A real allocator buckets decrement helpers by
// alignment class so a single free path can serve every layout needing that
// alignment; anything else is a programming error.
func validateAlignmentClass(alignment, ptrBytes int64) error {
	switch alignment {
	case ptrBytes, 2 * ptrBytes:
		return nil
	default:
		return errInvalidAlignmentClass(alignment, ptrBytes)
	}
}

// layoutKindTag gives a short, stable string per layout.RCKind used when
// building memoization keys and function-name fragments; it is distinct
// from RCKind.String() so renaming the debug String() never silently
// changes generated symbol names.
func layoutKindTag(l layout.RCLayout) string {
	switch l.Kind {
	case layout.RCBuiltin:
		return "builtin_" + l.Builtin.String()
	case layout.RCStruct:
		return "struct"
	case layout.RCUnion:
		return "union_" + l.Variant.String()
	case layout.RCRecursivePointer:
		return "recptr"
	case layout.RCClosure:
		return "closure"
	case layout.RCFunctionPointer:
		return "fnptr"
	case layout.RCPointer:
		return "ptr"
	case layout.RCPhantomEmptyStruct:
		return "phantom"
	default:
		return "unknown"
	}
}
