package ffi

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/chazu/spur/marshal"
)

// GoFunc is a native function implemented in Go.
type GoFunc func(args []marshal.Value) marshal.Value

// GoLoader serves in-process modules of Go functions.
type GoLoader struct {
	mu      sync.RWMutex
	modules map[string]*GoModule
}

// NewGoLoader creates an empty loader.
func NewGoLoader() *GoLoader {
	return &GoLoader{modules: make(map[string]*GoModule)}
}

// Module returns the module called name, creating it on first use.
func (l *GoLoader) Module(name string) *GoModule {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.modules[name]
	if !ok {
		m = &GoModule{name: name, funcs: make(map[string]GoFunc)}
		l.modules[name] = m
	}
	return m
}

// Open returns a registered module.
func (l *GoLoader) Open(name string) (Library, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.modules[name]
	if !ok {
		return nil, &ResolveError{Module: name, Err: ErrNoLibrary}
	}
	return m, nil
}

// GoModule is a named set of Go functions.
type GoModule struct {
	name  string
	mu    sync.RWMutex
	funcs map[string]GoFunc
}

// Define registers fn under symbol, replacing any previous definition.
func (m *GoModule) Define(symbol string, fn GoFunc) *GoModule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs[symbol] = fn
	return m
}

// Symbols lists the defined symbols in sorted order.
func (m *GoModule) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.funcs))
	for name := range m.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *GoModule) Name() string { return m.name }

// Bind resolves symbol. The Go function receives arguments already
// converted to sig and its result is coerced to sig.Return.
func (m *GoModule) Bind(symbol string, sig Signature) (Function, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	fn, ok := m.funcs[symbol]
	m.mu.RUnlock()
	if !ok {
		return nil, &ResolveError{Module: m.name, Symbol: symbol, Err: ErrNoSymbol}
	}
	return &goFunction{symbol: symbol, fn: fn, sig: sig}, nil
}

func (m *GoModule) Close() error { return nil }

type goFunction struct {
	symbol string
	fn     GoFunc
	sig    Signature
}

func (f *goFunction) Call(args []marshal.Value) (result marshal.Value, err error) {
	if err := f.sig.CheckArgumentCount(len(args)); err != nil {
		return marshal.Value{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", f.symbol, r)
		}
	}()
	return coerce(f.fn(args), f.sig.Return), nil
}

func (f *goFunction) Address() uint64 { return uint64(reflect.ValueOf(f.fn).Pointer()) }

func (f *goFunction) Signature() Signature { return f.sig }

// coerce reinterprets v as type t, the way a native return register would
// be read.
func coerce(v marshal.Value, t marshal.Type) marshal.Value {
	switch {
	case v.Type() == t:
		return v
	case t == marshal.Void:
		return marshal.VoidValue()
	case t.IsFloat() && v.Type().IsFloat():
		return marshal.FloatValue(t, v.Float64())
	case t.IsFloat():
		return marshal.FloatValue(t, float64(v.Int64()))
	case v.Type().IsFloat():
		return marshal.IntValue(t, int64(v.Float64()))
	}
	return marshal.RawValue(t, v.Bits())
}
