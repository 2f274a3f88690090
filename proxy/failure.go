package proxy

import (
	"fmt"
)

// Primitive failure codes
const (
	PrimNoErr             = 0
	PrimErrGenericFailure = 1
	PrimErrBadReceiver    = 2
	PrimErrBadArgument    = 3
	PrimErrBadIndex       = 4
	PrimErrBadNumArgs     = 5
	PrimErrInappropriate  = 6
	PrimErrUnsupported    = 7
	PrimErrNoMemory       = 9
)

var failureNames = map[int]string{
	PrimNoErr:             "no error",
	PrimErrGenericFailure: "generic failure",
	PrimErrBadReceiver:    "bad receiver",
	PrimErrBadArgument:    "bad argument",
	PrimErrBadIndex:       "bad index",
	PrimErrBadNumArgs:     "bad number of arguments",
	PrimErrInappropriate:  "inappropriate operation",
	PrimErrUnsupported:    "unsupported operation",
	PrimErrNoMemory:       "insufficient object memory",
}

// FailureName describes a failure code.
func FailureName(code int) string {
	if name, ok := failureNames[code]; ok {
		return name
	}
	return fmt.Sprintf("failure code %d", code)
}

// PrimitiveFailure is returned by Machine.Call when the primitive failed.
type PrimitiveFailure struct {
	Code int
}

func (e *PrimitiveFailure) Error() string {
	return "primitive failed: " + FailureName(e.Code)
}
