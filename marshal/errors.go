package marshal

import (
	"errors"
	"fmt"

	"github.com/chazu/spur/objects"
)

// Marshalling errors
var (
	ErrNotAnInteger        = objects.ErrNotAnInteger
	ErrNotAFloat           = objects.ErrNotAFloat
	ErrNotAPointer         = errors.New("not convertible to a pointer")
	ErrIllegalArgumentType = errors.New("type cannot be used as an argument")
	ErrInvalidType         = errors.New("invalid marshall type")
	ErrArgumentCount       = errors.New("argument count does not match")
)

// RangeKind tells which end of a type's range a value fell off.
type RangeKind uint8

const (
	Overflow RangeKind = iota
	Underflow
)

func (k RangeKind) String() string {
	if k == Underflow {
		return "underflow"
	}
	return "overflow"
}

// RangeError reports a number that does not fit the target type.
type RangeError struct {
	Type  Type
	Kind  RangeKind
	Value string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %s does not fit in %s", e.Kind, e.Value, e.Type)
}

// ArgumentError wraps the failure to marshal one argument.
type ArgumentError struct {
	Index int
	Type  Type
	Err   error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }
