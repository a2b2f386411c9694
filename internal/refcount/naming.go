package refcount

import (
	"fmt"

	"github.com/orizon-lang/rcgen/internal/layout"
)

// interner assigns a stable numeric id to each distinct layout it sees,
// always keyed under the canonical "decrement" form of that layout,
// regardless of which mode (increment or decrement) is actually being
// requested. This is what guarantees Inc_<kind>_<id> and Dec_<kind>_<id>
// share the same numeric suffix: both derive their id from the same
// dec-keyed lookup.
type interner struct {
	ids  map[string]int
	next int
}

func newInterner() *interner {
	return &interner{ids: make(map[string]int)}
}

// idFor returns the memoization id for l, allocating a fresh one on first
// sight. The key is built under ModeDec unconditionally; see decKey.
func (in *interner) idFor(l layout.RCLayout) int {
	key := decKey(l)

	if id, ok := in.ids[key]; ok {
		return id
	}

	id := in.next
	in.next++
	in.ids[key] = id

	return id
}

// decKey renders a layout into a string that is stable across repeated
// calls for structurally identical layouts (same shape, same nested
// shapes) so two call sites that both need "a list of strings" share one
// memoized helper instead of generating duplicates.
func decKey(l layout.RCLayout) string {
	switch l.Kind {
	case layout.RCBuiltin:
		switch l.Builtin {
		case layout.BuiltinList:
			elemKey := "_"
			if l.Element != nil {
				elemKey = decKey(*l.Element)
			}

			return fmt.Sprintf("builtin_list_%s_%s", l.ElementMode, elemKey)
		case layout.BuiltinDict, layout.BuiltinSet:
			keyKey, valKey := "_", "_"
			if l.Key != nil {
				keyKey = decKey(*l.Key)
			}

			if l.Element != nil {
				valKey = decKey(*l.Element)
			}

			return fmt.Sprintf("builtin_%s_%s_%s", l.Builtin, keyKey, valKey)
		default:
			return fmt.Sprintf("builtin_%s", l.Builtin)
		}
	case layout.RCStruct:
		s := "struct["
		for i, f := range l.Fields {
			if i > 0 {
				s += ","
			}

			s += decKey(f)
		}

		return s + "]"
	case layout.RCUnion:
		s := fmt.Sprintf("union_%s[", l.Variant)

		for _, t := range l.Tags {
			s += fmt.Sprintf("%d:", t.ID)
			for _, f := range t.Fields {
				s += decKey(f) + ","
			}

			s += ";"
		}

		for _, t := range l.OtherTags {
			s += fmt.Sprintf("o%d:", t.ID)
			for _, f := range t.Fields {
				s += decKey(f) + ","
			}

			s += ";"
		}

		for _, f := range l.OtherFields {
			s += decKey(f) + ","
		}

		s += fmt.Sprintf("]null=%d", l.NullTagID)

		return s
	case layout.RCRecursivePointer:
		return "recptr"
	case layout.RCClosure:
		s := "closure["
		for _, f := range l.ClosureCaptured {
			s += decKey(f) + ","
		}

		return s + "]"
	default:
		return layoutKindTag(l)
	}
}

// functionName builds the externally visible symbol for a layout under a
// given call mode, e.g. "Inc_union_Recursive_3" / "Dec_union_Recursive_3".
// Both share id 3 because idFor always derives it from the dec-keyed form.
func functionName(in *interner, l layout.RCLayout, mode Mode) string {
	id := in.idFor(l)

	return fmt.Sprintf("%s_%s_%d", modeSymbol(mode), layoutKindTag(l), id)
}

func modeSymbol(m Mode) string {
	if m == ModeInc {
		return "Inc"
	}

	return "Dec"
}
