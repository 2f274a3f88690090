package ffi

import (
	"errors"

	"github.com/chazu/spur/marshal"
)

// Function is a native entry point bound to a signature.
type Function interface {
	// Call invokes the function. args must already match the signature.
	Call(args []marshal.Value) (marshal.Value, error)
	Address() uint64
	Signature() Signature
}

// Library is an opened native module.
type Library interface {
	Name() string
	Bind(symbol string, sig Signature) (Function, error)
	Close() error
}

// Loader opens libraries by name.
type Loader interface {
	Open(name string) (Library, error)
}

// ChainLoader tries each loader in turn. Aliases rename a module before
// any loader sees it.
type ChainLoader struct {
	Loaders []Loader
	Aliases map[string]string
}

// NewChainLoader returns a ChainLoader over loaders.
func NewChainLoader(aliases map[string]string, loaders ...Loader) *ChainLoader {
	return &ChainLoader{Loaders: loaders, Aliases: aliases}
}

// Open returns the first library any loader can open. When all fail the
// error of the first loader is returned, wrapped in *ResolveError.
func (c *ChainLoader) Open(name string) (Library, error) {
	if alias, ok := c.Aliases[name]; ok {
		name = alias
	}
	var first error
	for _, l := range c.Loaders {
		lib, err := l.Open(name)
		if err == nil {
			return lib, nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		first = ErrNoLibrary
	}
	var resolveErr *ResolveError
	if errors.As(first, &resolveErr) {
		return nil, first
	}
	return nil, &ResolveError{Module: name, Err: first}
}
