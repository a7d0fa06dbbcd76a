package entitystore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-digitaltwin/go-entitystore/entity"
)

var (
	// ErrDuplicateIdentifier is reported by add-style patches targeting an
	// identifier already present in the collection. It is the same error as
	// entity.ErrDuplicateID.
	ErrDuplicateIdentifier = entity.ErrDuplicateID

	// ErrUnknownCollection is reported when a patch or a computed value references
	// a named collection that was never registered on the store, or that holds a
	// different type of entities than the referencing key.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrUnknownSlice is reported when a state slice or computed value is
	// referenced by a name that was never registered on the store.
	ErrUnknownSlice = errors.New("unknown slice")

	// ErrCyclicComputation is reported by Build when the dependency graph of the
	// computed values contains a cycle. See CycleError.
	ErrCyclicComputation = errors.New("cyclic computation")

	// ErrExternalSource wraps failures emitted by bridged event sources. See
	// SourceError.
	ErrExternalSource = errors.New("external source failure")

	// ErrDuplicateName is reported by Build when two features share a name.
	ErrDuplicateName = errors.New("duplicate slice name")

	// ErrClosed is reported by operations on a store that was torn down.
	ErrClosed = errors.New("store closed")

	// ErrActive is reported by Activate on a store that is already active.
	ErrActive = errors.New("store already active")
)

// A CycleError describes a cycle in the dependency graph of computed values.
//
// Use errors.Is(err, ErrCyclicComputation) to test for this class of errors.
type CycleError struct {
	// Path lists the computed values along the cycle, starting and ending with the
	// same name.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCyclicComputation, strings.Join(e.Path, " -> "))
}

// Is reports whether target is ErrCyclicComputation.
func (e *CycleError) Is(target error) bool {
	return target == ErrCyclicComputation
}

// A SourceError records a failure emitted by the external source bridged into
// the named slice. It is the error held by an Async state in the Failed status.
//
// Use errors.Is(err, ErrExternalSource) to test for this class of errors.
type SourceError struct {
	Slice string
	Err   error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Slice, ErrExternalSource, e.Err)
}

// Is reports whether target is ErrExternalSource.
func (e *SourceError) Is(target error) bool {
	return target == ErrExternalSource
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
