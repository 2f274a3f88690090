package ffi

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chazu/spur/marshal"
)

// State is the lifecycle position of an Invocation.
type State int32

const (
	// Pending invocations have marshalled arguments and wait to run.
	Pending State = iota
	// Invoking invocations are inside the native call.
	Invoking
	// Completed invocations hold a result that has not been extracted.
	Completed
	// Released invocations have handed their frame back.
	Released
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Invoking:
		return "invoking"
	case Completed:
		return "completed"
	case Released:
		return "released"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Frame holds the marshalled arguments and the result slot of one call.
type Frame struct {
	Args   []marshal.Value
	Result marshal.Value
	Err    error
}

// Invocation is one call of a Callout travelling through the event loop.
// Execute runs it exactly once; Done is closed when the result is ready.
type Invocation struct {
	ID uuid.UUID

	callout    *Callout
	frame      Frame
	state      atomic.Int32
	done       chan struct{}
	onComplete func()
}

func newInvocation(c *Callout, args []marshal.Value, onComplete func()) *Invocation {
	return &Invocation{
		ID:         uuid.New(),
		callout:    c,
		frame:      Frame{Args: args},
		done:       make(chan struct{}),
		onComplete: onComplete,
	}
}

// Callout returns the callout being invoked.
func (inv *Invocation) Callout() *Callout { return inv.callout }

// State returns the current state.
func (inv *Invocation) State() State { return State(inv.state.Load()) }

// Execute performs the native call, stores the result, closes Done and
// then runs the completion callback. It fails with ErrInvalidState if the
// invocation is not pending.
func (inv *Invocation) Execute() error {
	if !inv.state.CompareAndSwap(int32(Pending), int32(Invoking)) {
		return fmt.Errorf("%w: execute in state %s", ErrInvalidState, inv.State())
	}
	inv.frame.Result, inv.frame.Err = inv.callout.Call(inv.frame.Args)
	inv.state.Store(int32(Completed))
	close(inv.done)
	if inv.onComplete != nil {
		inv.onComplete()
	}
	return nil
}

// Done is closed once Execute has stored the result.
func (inv *Invocation) Done() <-chan struct{} { return inv.done }

// Result returns the stored result. It is only available between
// completion and release.
func (inv *Invocation) Result() (marshal.Value, error) {
	if s := inv.State(); s != Completed {
		return marshal.Value{}, fmt.Errorf("%w: result read in state %s", ErrInvalidState, s)
	}
	return inv.frame.Result, inv.frame.Err
}

// Release discards the frame. A pending invocation is abandoned and its
// Done channel closed without a result. Releasing an invocation still in
// flight is an error; releasing one twice panics with ErrDoubleRelease.
func (inv *Invocation) Release() error {
	for {
		s := inv.State()
		switch s {
		case Released:
			panic(fmt.Errorf("%w: invocation %s", ErrDoubleRelease, inv.ID))
		case Invoking:
			return fmt.Errorf("%w: release in state %s", ErrInvalidState, s)
		}
		if inv.state.CompareAndSwap(int32(s), int32(Released)) {
			inv.frame = Frame{}
			if s == Pending {
				close(inv.done)
			}
			return nil
		}
	}
}

func (inv *Invocation) String() string {
	return fmt.Sprintf("invocation %s of %s (%s)", inv.ID, inv.callout, inv.State())
}
