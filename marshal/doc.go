// Package marshal converts between object-space words and the typed
// values passed to and returned from native functions.
//
// A Type names one C-level argument or result type. Marshaller.Argument
// reads a word as a Value of a given Type, range-checking integers against
// the width of the target; Marshaller.Result boxes a native result back
// into the object space.
package marshal
