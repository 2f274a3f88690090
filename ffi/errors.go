package ffi

import (
	"errors"
	"fmt"
)

// Callout errors
var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrDoubleRelease      = errors.New("invocation released twice")
	ErrInvalidState       = errors.New("invalid invocation state")
	ErrReleased           = errors.New("callout released")
	ErrNoLibrary          = errors.New("no such library")
	ErrNoSymbol           = errors.New("no such symbol")
	ErrUnavailable        = errors.New("dynamic loading not available in this build")
)

// ResolveError reports a library or symbol that could not be resolved.
// Resolution failures are not retried.
type ResolveError struct {
	Module string
	Symbol string
	Err    error
}

func (e *ResolveError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("resolve %s: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("resolve %s in %s: %v", e.Symbol, e.Module, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// ArgumentCountError reports a call site passing a different number of
// arguments than the signature declares.
type ArgumentCountError struct {
	Want int
	Got  int
}

func (e *ArgumentCountError) Error() string {
	return fmt.Sprintf("wrong number of arguments: got %d, want %d", e.Got, e.Want)
}
