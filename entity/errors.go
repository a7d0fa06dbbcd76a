package entity

import (
	"errors"
	"fmt"
)

// ErrDuplicateID is reported by add-style operations when the identifier of an
// added entity is already present in the collection (or repeats within the
// added batch).
var ErrDuplicateID = errors.New("duplicate entity identifier")

// A DuplicateIDError records the identifier that violated uniqueness.
//
// Use errors.Is(err, ErrDuplicateID) to test for this class of errors.
type DuplicateIDError struct {
	ID any
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("entity %v: %v", e.ID, ErrDuplicateID)
}

// Is reports whether target is ErrDuplicateID.
func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}
