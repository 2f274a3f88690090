package primitives

import (
	"golang.org/x/sys/unix"

	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/proxy"
)

func (p *Plugin) registerSystemPrimitives() error {
	for _, prim := range []struct {
		name  string
		entry func()
		run   func(*Plugin)
	}{
		{"primitiveGetNamedPrimitives", PrimitiveGetNamedPrimitives, (*Plugin).GetNamedPrimitives},
		{"primitiveFcntl", PrimitiveFcntl, (*Plugin).Fcntl},
	} {
		if err := p.register(prim.name, prim.entry, prim.run); err != nil {
			return err
		}
	}
	return nil
}

// GetNamedPrimitives answers an Array holding, for every export, an Array
// of its plugin name, primitive name and address.
func (p *Plugin) GetNamedPrimitives() {
	const name = "primitiveGetNamedPrimitives"
	space := p.interp.Space()

	exports := p.exports.Exports()
	result, err := objects.NewArray(space, len(exports))
	if err != nil {
		p.fail(name, err, proxy.PrimErrNoMemory)
		return
	}
	for i, e := range exports {
		plugin, err := objects.NewByteString(space, e.Plugin)
		if err != nil {
			p.fail(name, err, proxy.PrimErrNoMemory)
			return
		}
		primitive, err := objects.NewByteString(space, e.Name)
		if err != nil {
			p.fail(name, err, proxy.PrimErrNoMemory)
			return
		}
		addr, err := objects.NewExternalAddress(space, e.Address)
		if err != nil {
			p.fail(name, err, proxy.PrimErrNoMemory)
			return
		}
		entry, err := objects.NewArrayOf(space, plugin.Word(), primitive.Word(), addr.Word())
		if err != nil {
			p.fail(name, err, proxy.PrimErrNoMemory)
			return
		}
		if err := result.AtPut(i, entry.Word()); err != nil {
			p.fail(name, err, proxy.PrimErrGenericFailure)
			return
		}
	}
	p.interp.MethodReturnValue(result.Word())
}

// Fcntl calls fcntl(2) with a file descriptor, a command and an optional
// integer argument, answering its result. A failed call answers -1.
func (p *Plugin) Fcntl() {
	const name = "primitiveFcntl"
	if !p.checkArgumentCount(name, 2, 3) {
		return
	}
	n := p.interp.MethodArgumentCount()

	values := make([]int64, n)
	for i := range values {
		v, err := p.interp.StackIntegerValue(n - 1 - i)
		if err != nil {
			p.fail(name, err, proxy.PrimErrBadArgument)
			return
		}
		values[i] = v
	}
	var arg int
	if n == 3 {
		arg = int(values[2])
	}

	result, err := unix.FcntlInt(uintptr(values[0]), int(values[1]), arg)
	if err != nil {
		p.log.Debugf("%s: fcntl(%d, %d, %d): %s", name, values[0], values[1], arg, err)
		result = -1
	}
	p.returnInteger(name, int64(result))
}
