// Package ffi binds and calls native functions on behalf of the object
// space.
//
// A Loader opens a Library by name; Library.Bind resolves one symbol
// against a Signature and returns a Function. A Callout caches a bound
// Function for one ExternalFunction object, and an Invocation carries one
// marshalled call of it through the event loop to completion.
//
// Two backends exist. GoLoader serves modules of Go functions registered
// in-process and is always available. DynamicLoader opens shared objects
// with dlopen and calls them through libffi; it is only functional when
// built with the libffi tag on linux with cgo enabled.
package ffi
