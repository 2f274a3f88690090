package primitives

import (
	"github.com/chazu/spur/ffi"
	"github.com/chazu/spur/marshal"
	"github.com/chazu/spur/proxy"
)

func (p *Plugin) registerFFIPrimitives() error {
	for _, prim := range []struct {
		name  string
		entry func()
		run   func(*Plugin)
	}{
		{"primitiveBareFfiCallout", PrimitiveBareFfiCallout, (*Plugin).BareFfiCallout},
		{"primitiveBareFfiCalloutInvalidate", PrimitiveBareFfiCalloutInvalidate, (*Plugin).BareFfiCalloutInvalidate},
		{"primitiveBareFfiCalloutRelease", PrimitiveBareFfiCalloutRelease, (*Plugin).BareFfiCalloutRelease},
	} {
		if err := p.register(prim.name, prim.entry, prim.run); err != nil {
			return err
		}
	}
	return nil
}

// bareCallout returns the callout cached by fn, binding it on first use.
func (p *Plugin) bareCallout(fn ffi.BareFunction) (*ffi.Callout, error) {
	addr, err := fn.CalloutAddress()
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

// BareFfiCallout calls the receiver's function synchronously with the
// method arguments and answers the boxed result.
func (p *Plugin) BareFfiCallout() {
	const name = "primitiveBareFfiCallout"
	space := p.interp.Space()

	fn, err := ffi.AsBareFunction(space, p.interp.MethodReceiver())
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadReceiver)
		return
	}
	callout, err := p.bareCallout(fn)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadReceiver)
		return
	}

	sig := callout.Signature()
	n := p.interp.MethodArgumentCount()
	if err := sig.CheckArgumentCount(n); err != nil {
		p.fail(name, err, proxy.PrimErrBadNumArgs)
		return
	}

	m := fn.Marshaller()
	args := make([]marshal.Value, n)
	for i, t := range sig.Args {
		v, err := m.Argument(p.interp.MethodArgument(i), t)
		if err != nil {
			p.fail(name, &marshal.ArgumentError{Index: i, Type: t, Err: err}, proxy.PrimErrBadArgument)
			return
		}
		args[i] = v
	}

	result, err := callout.Call(args)
	if err != nil {
		p.fail(name, err, proxy.PrimErrGenericFailure)
		return
	}
	w, err := m.Result(result)
	if err != nil {
		p.fail(name, err, proxy.PrimErrNoMemory)
		return
	}
	p.interp.MethodReturnValue(w)
}

// BareFfiCalloutInvalidate binds the receiver's callout if it has none and
// answers the receiver.
func (p *Plugin) BareFfiCalloutInvalidate() {
	const name = "primitiveBareFfiCalloutInvalidate"
	receiver := p.interp.MethodReceiver()

	fn, err := ffi.AsBareFunction(p.interp.Space(), receiver)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadReceiver)
		return
	}
	callout, err := p.bareCallout(fn)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadReceiver)
		return
	}
	p.log.Debugf("%s: %s at %#x", name, callout, callout.Address())
	p.interp.MethodReturnValue(receiver)
}

// BareFfiCalloutRelease releases the callout cached in the ExternalAddress
// argument. A null address is ignored.
func (p *Plugin) BareFfiCalloutRelease() {
	const name = "primitiveBareFfiCalloutRelease"
	if !p.checkArgumentCount(name, 1) {
		return
	}
	addr, err := p.externalAddressAt(0)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	if err := p.callouts.Release(addr); err != nil {
		p.fail(name, err, proxy.PrimErrGenericFailure)
		return
	}
	p.interp.MethodReturnValue(p.interp.MethodReceiver())
}
