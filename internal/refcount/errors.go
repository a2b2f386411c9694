package refcount

import stderrors "github.com/orizon-lang/rcgen/internal/errors"

// Thin wrappers over the ambient error-construction stack, kept local so
// call sites read as plain Go errors rather than reaching across packages
// at every call site.

func errUnsupportedPointerWidth(ptrBytes int64) error {
	return stderrors.UnsupportedPointerWidth(ptrBytes)
}

func errRecursivePointerUnreachable(site string) error {
	return stderrors.RecursivePointerUnreachable(site)
}

func errNakedRecursivePointer(tagName string) error {
	return stderrors.NakedRecursivePointerInNonRecursiveUnion(tagName)
}

func errInvalidAlignmentClass(alignment, ptrBytes int64) error {
	return stderrors.InvalidAlignmentClass(alignment, ptrBytes)
}

func errEmptyTagList(context string) error {
	return stderrors.EmptyTagList(context)
}

func errInvalidABIVersion(version string, parseErr error) error {
	return stderrors.InvalidABIVersion(version, parseErr)
}

func errUnsupportedABIVersion(version string) error {
	return stderrors.UnsupportedABIVersion(version)
}
