package layout

import "fmt"

// RCKind enumerates the shapes a value's layout can take for refcounting
// purposes. It mirrors the shapes a layout solver can hand to the refcount
// generator: scalar builtins, refcounted builtin containers, aggregates,
// tagged unions (in their various recursive encodings), and the handful of
// leaf kinds that never carry a refcount cell.
type RCKind int

const (
	RCBuiltin RCKind = iota
	RCStruct
	RCUnion
	RCRecursivePointer
	RCClosure
	RCFunctionPointer
	RCPointer
	RCPhantomEmptyStruct
)

func (k RCKind) String() string {
	switch k {
	case RCBuiltin:
		return "Builtin"
	case RCStruct:
		return "Struct"
	case RCUnion:
		return "Union"
	case RCRecursivePointer:
		return "RecursivePointer"
	case RCClosure:
		return "Closure"
	case RCFunctionPointer:
		return "FunctionPointer"
	case RCPointer:
		return "Pointer"
	case RCPhantomEmptyStruct:
		return "PhantomEmptyStruct"
	default:
		return "Unknown"
	}
}

// BuiltinKind enumerates the builtin container shapes that may carry a
// refcount cell. Scalars (ints, floats, bools) are represented with
// BuiltinScalar and never recurse.
type BuiltinKind int

const (
	BuiltinScalar BuiltinKind = iota
	BuiltinList
	BuiltinStr
	BuiltinDict
	BuiltinSet
)

func (k BuiltinKind) String() string {
	switch k {
	case BuiltinScalar:
		return "Scalar"
	case BuiltinList:
		return "List"
	case BuiltinStr:
		return "Str"
	case BuiltinDict:
		return "Dict"
	case BuiltinSet:
		return "Set"
	default:
		return "Unknown"
	}
}

// ElementMode records whether a container's elements are themselves
// refcounted (and so must be visited) or plain values that can be dropped
// without recursing.
type ElementMode int

const (
	ByValue ElementMode = iota
	Refcounted
)

func (m ElementMode) String() string {
	if m == Refcounted {
		return "Refcounted"
	}

	return "ByValue"
}

// UnionVariant distinguishes the ways a tagged union can be encoded, each
// with different refcounting obligations.
type UnionVariant int

const (
	// NonRecursive: tags carry only non-recursive fields; no cell of its own.
	UnionNonRecursive UnionVariant = iota
	// Recursive: every tag is boxed behind one shared refcounted cell.
	UnionRecursive
	// NullableWrapped: one tag is represented as a null pointer; the rest
	// share a boxed, recursive representation.
	UnionNullableWrapped
	// NullableUnwrapped: exactly two tags, one null and one represented
	// directly (without an extra tag word) by a boxed struct.
	UnionNullableUnwrapped
	// NonNullableUnwrapped: a single non-null tag stored directly behind a
	// shared box, with no null variant and no tag word.
	UnionNonNullableUnwrapped
)

func (v UnionVariant) String() string {
	switch v {
	case UnionNonRecursive:
		return "NonRecursive"
	case UnionRecursive:
		return "Recursive"
	case UnionNullableWrapped:
		return "NullableWrapped"
	case UnionNullableUnwrapped:
		return "NullableUnwrapped"
	case UnionNonNullableUnwrapped:
		return "NonNullableUnwrapped"
	default:
		return "Unknown"
	}
}

// RCLayout is the refcounting-relevant shape of a value, as handed down by
// an (external) layout solver. It is the dispatch key the refcount
// generator's memoized emitter switches on.
type RCLayout struct {
	Kind RCKind

	// Align, when nonzero, overrides the alignment AlignmentBytes reports.
	// A layout solver sets this on a shape (e.g. a struct whose widest field
	// needs double-pointer-width alignment) that must bucket into the 2W
	// decrement-helper class instead of the default W.
	Align int64

	// Builtin fields (Kind == RCBuiltin).
	Builtin     BuiltinKind
	ElementMode ElementMode
	Element     *RCLayout // element layout for List; value layout for Dict/Set
	Key         *RCLayout // key layout for Dict

	// Struct fields (Kind == RCStruct).
	Fields []RCLayout

	// Union fields (Kind == RCUnion).
	Variant      UnionVariant
	Tags         []UnionTag // NonRecursive, Recursive
	NullTagID    int64      // NullableWrapped, NullableUnwrapped: which tag is null
	OtherTags    []UnionTag // NullableWrapped: the non-null tags
	OtherFields  []RCLayout // NullableUnwrapped, NonNullableUnwrapped: the boxed fields

	// Closure fields (Kind == RCClosure).
	ClosureArgs     []RCLayout
	ClosureCaptured []RCLayout
	ClosureReturn   *RCLayout
}

// UnionTag names one arm of a tagged union together with its payload fields.
type UnionTag struct {
	ID     int64
	Name   string
	Fields []RCLayout
}

func (l RCLayout) String() string {
	return fmt.Sprintf("%s(%s)", l.Kind, l.describeExtra())
}

func (l RCLayout) describeExtra() string {
	switch l.Kind {
	case RCBuiltin:
		return l.Builtin.String()
	case RCUnion:
		return l.Variant.String()
	case RCStruct:
		return fmt.Sprintf("%d fields", len(l.Fields))
	default:
		return ""
	}
}

// IsRefcounted reports whether a value of this layout carries a refcount
// cell directly (i.e. modifying it means touching its own cell, as opposed
// to only possibly recursing into children that do).
func (l RCLayout) IsRefcounted() bool {
	switch l.Kind {
	case RCBuiltin:
		switch l.Builtin {
		case BuiltinList:
			return l.ElementMode == Refcounted || true // list wrapper itself always owns a cell when non-empty
		case BuiltinStr, BuiltinDict, BuiltinSet:
			return true
		default:
			return false
		}
	case RCUnion:
		return l.Variant != UnionNonRecursive
	case RCRecursivePointer:
		return true
	default:
		return false
	}
}

// ContainsRefcounted reports whether a value of this layout, or any value
// reachable through it without crossing a function boundary, might require
// a refcount operation. A Struct of all scalars returns false; a Struct
// with one refcounted field returns true.
func (l RCLayout) ContainsRefcounted() bool {
	if l.IsRefcounted() {
		return true
	}

	switch l.Kind {
	case RCStruct:
		for _, f := range l.Fields {
			if f.ContainsRefcounted() {
				return true
			}
		}

		return false
	case RCClosure:
		for _, f := range l.ClosureCaptured {
			if f.ContainsRefcounted() {
				return true
			}
		}

		return false
	case RCUnion:
		for _, t := range l.Tags {
			for _, f := range t.Fields {
				if f.ContainsRefcounted() {
					return true
				}
			}
		}

		return false
	default:
		return false
	}
}

// AlignmentBytes returns the layout's required alignment under a target
// with the given pointer width, used to bucket decrement helpers that can
// share one alignment-indexed free path. Only two classes exist: W
// (ptrBytes) and 2W; Align lets a layout solver report the latter where a
// single-word header isn't wide enough.
func (l RCLayout) AlignmentBytes(ptrBytes int64) int64 {
	if l.Align != 0 {
		return l.Align
	}

	switch l.Kind {
	case RCStruct:
		max := ptrBytes

		for _, f := range l.Fields {
			if a := f.AlignmentBytes(ptrBytes); a > max {
				max = a
			}
		}

		return max
	default:
		return ptrBytes
	}
}

// StackSize reports the number of bytes a value of this layout occupies
// directly (not counting what it points to): one pointer width per scalar
// or pointer slot. Callers use it to step field offsets.
func (l RCLayout) StackSize(ptrBytes int64) int64 {
	switch l.Kind {
	case RCPhantomEmptyStruct:
		return 0
	case RCBuiltin:
		switch l.Builtin {
		case BuiltinScalar:
			return ptrBytes
		default:
			return ptrBytes // pointer to the wrapper/cell
		}
	case RCStruct:
		var total int64
		for _, f := range l.Fields {
			total += f.StackSize(ptrBytes)
		}

		return total
	default:
		return ptrBytes
	}
}
