package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOperation is wrapped by commands that are well formed but not
	// applicable to the current tree, such as moving across parents.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrCyclicHierarchy is returned when an ancestor walk revisits a category.
	ErrCyclicHierarchy = errors.New("cyclic category hierarchy")
)

// ErrNotFound is returned when a command references an unknown record.
type ErrNotFound struct {
	Entity EntityType
	ID     int
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
