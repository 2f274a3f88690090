package ffi

import (
	"fmt"

	"github.com/chazu/spur/objects"
)

// Callouts binds callouts lazily and caches them in the ExternalAddress
// slot of the function objects that describe them. The address stores a
// handle into the table, never a Go pointer.
type Callouts struct {
	loader Loader
	table  *HandleTable[*Callout]
}

// NewCallouts creates an empty cache resolving through loader.
func NewCallouts(loader Loader) *Callouts {
	return &Callouts{loader: loader, table: NewHandleTable[*Callout]()}
}

// Ensure returns the callout cached in addr, binding and caching a new one
// if addr is null. A handle that no longer names a callout is rebound.
func (c *Callouts) Ensure(addr objects.ExternalAddress, module, symbol string, sig Signature) (*Callout, error) {
	if !addr.IsNull() {
		if callout, ok := c.table.Lookup(addr.Address()); ok && !callout.IsReleased() {
			return callout, nil
		}
	}
	callout, err := Bind(c.loader, module, symbol, sig)
	if err != nil {
		return nil, err
	}
	addr.SetAddress(c.table.Create(callout))
	return callout, nil
}

// Lookup returns the callout cached in addr without binding.
func (c *Callouts) Lookup(addr objects.ExternalAddress) (*Callout, bool) {
	if addr.IsNull() {
		return nil, false
	}
	return c.table.Lookup(addr.Address())
}

// Release drops the callout cached in addr and nulls the address. A null
// address is a no-op.
func (c *Callouts) Release(addr objects.ExternalAddress) error {
	if addr.IsNull() {
		return nil
	}
	callout, ok := c.table.Release(addr.Address())
	addr.SetAddress(0)
	if !ok {
		return nil
	}
	if err := callout.Release(); err != nil {
		return fmt.Errorf("release %s: %w", callout, err)
	}
	return nil
}

// Len returns the number of cached callouts.
func (c *Callouts) Len() int { return c.table.Len() }

// Close releases every cached callout.
func (c *Callouts) Close() error {
	var first error
	c.table.Drain(func(_ uint64, callout *Callout) {
		if err := callout.Release(); err != nil && first == nil {
			first = err
		}
	})
	return first
}
