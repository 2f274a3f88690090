package ffi

import (
	"fmt"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/spur/marshal"
)

var log = commonlog.GetLogger("spur.ffi")

// Callout is a function resolved against a signature, cached on the
// ExternalFunction object that describes it until that object releases it.
type Callout struct {
	Module string
	Symbol string

	lib      Library
	fn       Function
	released atomic.Bool
}

// Bind opens module through loader and resolves symbol in it.
func Bind(loader Loader, module, symbol string, sig Signature) (*Callout, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	lib, err := loader.Open(module)
	if err != nil {
		log.Warningf("open %s: %s", module, err)
		return nil, err
	}
	fn, err := lib.Bind(symbol, sig)
	if err != nil {
		log.Warningf("bind %s in %s: %s", symbol, lib.Name(), err)
		lib.Close()
		return nil, err
	}
	c := &Callout{Module: module, Symbol: symbol, lib: lib, fn: fn}
	log.Debugf("bound %s at %#x", c, c.Address())
	return c, nil
}

// Signature returns the signature the callout was bound with.
func (c *Callout) Signature() Signature { return c.fn.Signature() }

// Address returns the entry point of the bound function.
func (c *Callout) Address() uint64 { return c.fn.Address() }

// IsReleased reports whether Release has been called.
func (c *Callout) IsReleased() bool { return c.released.Load() }

// Call invokes the function synchronously. The argument count is checked
// before anything is called.
func (c *Callout) Call(args []marshal.Value) (marshal.Value, error) {
	if c.released.Load() {
		return marshal.Value{}, ErrReleased
	}
	if err := c.Signature().CheckArgumentCount(len(args)); err != nil {
		return marshal.Value{}, err
	}
	return c.fn.Call(args)
}

// Invoke prepares an asynchronous call. onComplete, if set, runs once on
// the executing goroutine after the result is stored.
func (c *Callout) Invoke(args []marshal.Value, onComplete func()) (*Invocation, error) {
	if c.released.Load() {
		return nil, ErrReleased
	}
	if err := c.Signature().CheckArgumentCount(len(args)); err != nil {
		return nil, err
	}
	return newInvocation(c, args, onComplete), nil
}

// Release drops the function and closes its library. Later calls fail
// with ErrReleased. Releasing twice is a no-op.
func (c *Callout) Release() error {
	if c.released.Swap(true) {
		return nil
	}
	if r, ok := c.fn.(interface{ release() }); ok {
		r.release()
	}
	log.Debugf("released %s", c)
	return c.lib.Close()
}

func (c *Callout) String() string {
	return fmt.Sprintf("%s:%s%s", c.Module, c.Symbol, c.Signature())
}
