// Package eventloop carries foreign calls from the interpreter goroutine
// to the goroutine that performs them.
//
// The interpreter owns a Sender; a Loop receives Call, WakeUp and
// Terminate messages in FIFO order. A Bridge owns both ends and decides
// where the loop runs: on a dedicated worker goroutine locked to an OS
// thread, or inline on the goroutine that submits the work.
package eventloop
