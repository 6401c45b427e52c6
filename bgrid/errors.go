package bgrid

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the engine.  Callers should test with errors.Is since
// every returned error wraps one of these with context.
var (
	// ErrValue is an invalid argument or combination of arguments.
	ErrValue = errors.New("invalid value")

	// ErrMalformedIndex is a row index that is not a complete Cartesian product.
	ErrMalformedIndex = errors.New("malformed row index")

	// ErrData is column data that cannot be represented, e.g., a missing value
	// in a non-nullable integer column.
	ErrData = errors.New("unrepresentable data")

	// ErrCodec is an encoded coordinate outside the range of its codec.
	ErrCodec = errors.New("coordinate codec out of range")

	// ErrNotFound is a missing element, attribute, or key.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is a write that would replace an element without permission.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation is a table that failed schema validation.
	ErrValidation = errors.New("schema validation failed")
)

// UnknownNamesError lists attribute names that could not be resolved.
type UnknownNamesError struct {
	Names []string
}

func (e *UnknownNamesError) Error() string {
	return fmt.Sprintf("unknown attribute names: %s", strings.Join(e.Names, ", "))
}

// Unwrap makes errors.Is(err, ErrValue) true for unknown names.
func (e *UnknownNamesError) Unwrap() error {
	return ErrValue
}

// CycleError reports a calculated attribute that depends on itself.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("calculated attribute cycle: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrValue
}
