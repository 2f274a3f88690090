package primitives

import (
	"fmt"

	"github.com/chazu/spur/eventloop"
	"github.com/chazu/spur/ffi"
	"github.com/chazu/spur/marshal"
	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/proxy"
)

// Stack offsets of primitiveEventLoopCallout
const (
	calloutSemaphoreIndex = iota
	calloutArguments
	calloutExternalFunction
)

// Stack offsets of primitiveExtractReturnValue
const (
	extractCalloutAddress = iota
	extractReceiver
)

func (p *Plugin) registerEventLoopPrimitives() error {
	for _, prim := range []struct {
		name  string
		entry func()
		run   func(*Plugin)
	}{
		{"primitiveEventLoopCallout", PrimitiveEventLoopCallout, (*Plugin).EventLoopCallout},
		{"primitiveExtractReturnValue", PrimitiveExtractReturnValue, (*Plugin).ExtractReturnValue},
		{"primitiveGetSemaphoreSignaller", PrimitiveGetSemaphoreSignaller, (*Plugin).GetSemaphoreSignaller},
		{"primitiveGetEventLoop", PrimitiveGetEventLoop, (*Plugin).GetEventLoop},
		{"primitiveGetEventLoopReceiver", PrimitiveGetEventLoopReceiver, (*Plugin).GetEventLoopReceiver},
		{"primitiveSetEventLoopWaker", PrimitiveSetEventLoopWaker, (*Plugin).SetEventLoopWaker},
	} {
		if err := p.register(prim.name, prim.entry, prim.run); err != nil {
			return err
		}
	}
	return nil
}

// loopCallout returns the callout cached by fn, binding it on first use.
func (p *Plugin) loopCallout(fn ffi.LoopFunction) (*ffi.Callout, error) {
	addr, err := fn.HandleAddress()
	if err != nil {
		return nil, err
	}
	if callout, ok := p.callouts.Lookup(addr); ok && !callout.IsReleased() {
		return callout, nil
	}
	module, err := fn.ModuleName()
	if err != nil {
		return nil, err
	}
	symbol, err := fn.FunctionName()
	if err != nil {
		return nil, err
	}
	sig, err := fn.Signature()
	if err != nil {
		return nil, err
	}
	return p.callouts.Ensure(addr, module, symbol, sig)
}

// EventLoopCallout marshals the arguments array for the external function
// and queues the call on the event loop. When it completes the semaphore
// at the given index is signalled, unless the index is 0.
//
// With a semaphore the primitive answers an ExternalAddress naming the
// invocation, to be handed to primitiveExtractReturnValue. Without one
// nothing waits for the result and the address is null.
func (p *Plugin) EventLoopCallout() {
	const name = "primitiveEventLoopCallout"
	space := p.interp.Space()

	if p.bridge == nil {
		p.fail(name, fmt.Errorf("no event loop"), proxy.PrimErrUnsupported)
		return
	}
	if !p.checkArgumentCount(name, 3) {
		return
	}

	fn, err := ffi.AsLoopFunction(space, p.interp.StackValue(calloutExternalFunction))
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	index, err := p.interp.StackIntegerValue(calloutSemaphoreIndex)
	if err == nil && index < 0 {
		err = fmt.Errorf("negative semaphore index %d", index)
	}
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	array, err := objects.AsArray(space, p.interp.StackValue(calloutArguments))
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}

	callout, err := p.loopCallout(fn)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	sig := callout.Signature()
	if err := sig.CheckArgumentCount(array.Len()); err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	args, err := marshal.New(space).Arguments(array, sig.Args)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}

	semaphore := int(index)
	inv, err := callout.Invoke(args, func() {
		if semaphore == 0 {
			return
		}
		if err := p.interp.SignalSemaphore(semaphore); err != nil {
			p.log.Errorf("%s: signal semaphore %d: %s", name, semaphore, err)
		}
	})
	if err != nil {
		p.fail(name, err, proxy.PrimErrGenericFailure)
		return
	}

	var handle uint64
	if semaphore != 0 {
		handle = p.invocations.Create(inv)
	}
	if err := p.bridge.Submit(inv); err != nil {
		if handle != 0 {
			p.invocations.Release(handle)
		}
		p.bridgeFailure(name, err)
		return
	}
	p.log.Debugf("%s: queued %s", name, inv)
	p.returnAddress(name, handle)
}

// ExtractReturnValue answers the result of a completed event loop callout
// and releases its frame. The callout address argument is nulled.
func (p *Plugin) ExtractReturnValue() {
	const name = "primitiveExtractReturnValue"
	space := p.interp.Space()

	addr, err := p.externalAddressAt(extractCalloutAddress)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	if addr.IsNull() {
		p.interp.PrimitiveFail()
		return
	}
	inv, ok := p.invocations.Lookup(addr.Address())
	if !ok {
		p.fail(name, fmt.Errorf("no invocation %d", addr.Address()), proxy.PrimErrBadArgument)
		return
	}
	if inv.State() != ffi.Completed {
		p.fail(name, fmt.Errorf("%w: %s", ffi.ErrInvalidState, inv), proxy.PrimErrInappropriate)
		return
	}

	p.invocations.Release(addr.Address())
	addr.SetAddress(0)
	defer func() {
		if err := inv.Release(); err != nil {
			p.log.Errorf("%s: %s", name, err)
		}
	}()

	result, err := inv.Result()
	if err != nil {
		p.fail(name, err, proxy.PrimErrGenericFailure)
		return
	}
	// Pop the address argument and the receiver.
	if err := marshal.New(space).PushResult(p.interp, result, extractReceiver+1); err != nil {
		p.fail(name, err, proxy.PrimErrNoMemory)
	}
}

// GetSemaphoreSignaller answers the address of SignalSemaphore.
func (p *Plugin) GetSemaphoreSignaller() {
	p.returnAddress("primitiveGetSemaphoreSignaller", functionAddress(SignalSemaphore))
}

// GetEventLoop answers a handle on the event loop, null if the plugin has
// none.
func (p *Plugin) GetEventLoop() {
	p.returnAddress("primitiveGetEventLoop", p.loopHandle)
}

// GetEventLoopReceiver answers the address of ReceiveEvents.
func (p *Plugin) GetEventLoopReceiver() {
	p.returnAddress("primitiveGetEventLoopReceiver", functionAddress(ReceiveEvents))
}

// SetEventLoopWaker installs the waker whose address is the argument at
// offset 0, to be called with the thunk at offset 1. The address must
// have been returned by RegisterWaker.
func (p *Plugin) SetEventLoopWaker() {
	const name = "primitiveSetEventLoopWaker"
	if p.bridge == nil {
		p.fail(name, fmt.Errorf("no event loop"), proxy.PrimErrUnsupported)
		return
	}
	if !p.checkArgumentCount(name, 2) {
		return
	}
	fnAddr, err := p.externalAddressAt(0)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	thunk, err := p.externalAddressAt(1)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	fn, ok := p.wakers.Lookup(fnAddr.Address())
	if !ok {
		p.fail(name, fmt.Errorf("no waker at %#x", fnAddr.Address()), proxy.PrimErrBadArgument)
		return
	}
	p.bridge.Sender().SetWaker(eventloop.NewWaker(fn, uintptr(thunk.Address())))
	p.returnBool(true)
}

// ReceiveEvents drains the event loop named by handle on the calling
// goroutine. A zero handle is ignored. It reports whether a Terminate was
// received.
func (p *Plugin) ReceiveEvents(handle uint64) (terminated bool, err error) {
	if handle == 0 {
		return false, nil
	}
	loop, ok := p.loops.Lookup(handle)
	if !ok {
		return false, fmt.Errorf("no event loop %d", handle)
	}
	return loop.TryReceive()
}
