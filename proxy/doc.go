// Package proxy is the boundary between primitives and the interpreter
// that calls them.
//
// Interpreter is the call-site stack protocol a primitive sees: the
// receiver and arguments on the stack, the ways to answer a value or fail,
// and semaphore signalling. Machine implements it in-process over an
// objmem.Space; it drives primitives from tests and from the spur command.
package proxy
