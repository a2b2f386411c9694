package refcount

import "github.com/orizon-lang/rcgen/internal/layout"

// WhenRecursiveKind tells the dispatcher what a bare RecursivePointer
// layout resolves to while it is walking a union's fields. Outside of a
// recursive union's own field-emission, RecursivePointer is meaningless:
// there is no enclosing cell for it to point back to.
type WhenRecursiveKind int

const (
	// Unreachable: no enclosing recursive union; seeing RecursivePointer
	// here is always a programmer error.
	WhenRecursiveUnreachable WhenRecursiveKind = iota
	// Loop: the enclosing recursive union's own layout, substituted in for
	// any RecursivePointer field so the dispatcher can recurse into it.
	WhenRecursiveLoop
)

// WhenRecursive is threaded explicitly through every recursive call the
// dispatcher makes, rather than stashed in global/package state, so two
// concurrent or nested emissions never interfere with each other.
type WhenRecursive struct {
	Kind WhenRecursiveKind
	// Layout is populated when Kind == WhenRecursiveLoop.
	Layout layout.RCLayout
}
