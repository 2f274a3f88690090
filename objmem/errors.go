package objmem

import (
	"errors"
	"fmt"
)

// Representation errors
var (
	ErrNotAnObject     = errors.New("not a heap object")
	ErrNotAnImmediate  = errors.New("not an immediate")
	ErrForwarded       = errors.New("object is forwarded")
	ErrInvalidAddress  = errors.New("address outside object space")
	ErrImmutable       = errors.New("object is immutable")
	ErrOutOfMemory     = errors.New("object space exhausted")
	ErrNoClass         = errors.New("no class at index")
	ErrClassTableFull  = errors.New("class table full")
	ErrNotBooted       = errors.New("object space has no special objects")
	ErrSnapshotVersion = errors.New("unsupported snapshot version")
)

// TypeError reports an object whose format or class does not fit the view
// it was asked to become.
type TypeError struct {
	Want string
	Got  Format
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("expected %s, got format %v", e.Want, e.Got)
}

// SlotCountError reports an object with the wrong number of slots for a
// fixed-layout view, or an allocation request that cannot be encoded.
type SlotCountError struct {
	Want int
	Got  int
}

func (e *SlotCountError) Error() string {
	return fmt.Sprintf("expected %d slots, got %d", e.Want, e.Got)
}

// BoundsError reports an index past the end of an object.
type BoundsError struct {
	Index int
	Len   int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("index %d out of bounds (len %d)", e.Index, e.Len)
}
