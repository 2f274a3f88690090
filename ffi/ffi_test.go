package ffi

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/spur/marshal"
	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/objmem"
)

func newSpace(t *testing.T) *objmem.Space {
	t.Helper()
	space, err := objmem.Boot(1 << 18)
	require.NoError(t, err)
	t.Cleanup(func() { space.Close() })
	return space
}

func testLoader(calls *atomic.Int32) *GoLoader {
	loader := NewGoLoader()
	loader.Module("testlib").
		Define("negate", func(args []marshal.Value) marshal.Value {
			calls.Add(1)
			return marshal.IntValue(marshal.I32, -args[0].Int64())
		}).
		Define("half", func(args []marshal.Value) marshal.Value {
			return marshal.FloatValue(marshal.F64, args[0].Float64()/2)
		}).
		Define("boom", func(args []marshal.Value) marshal.Value {
			panic("boom")
		})
	return loader
}

var negateSig = Signature{Args: []marshal.Type{marshal.I32}, Return: marshal.I32}

func TestParseSignature(t *testing.T) {
	sig, err := ParseSignature("(i32, pointer) -> void")
	require.NoError(t, err)
	require.Equal(t, []marshal.Type{marshal.I32, marshal.Pointer}, sig.Args)
	require.Equal(t, marshal.Void, sig.Return)
	require.Equal(t, "(i32, pointer) -> void", sig.String())

	sig, err = ParseSignature("() -> f64")
	require.NoError(t, err)
	require.Empty(t, sig.Args)

	for _, bad := range []string{"i32 -> i32", "(i32)", "(void) -> i32", "(i33) -> i32"} {
		_, err := ParseSignature(bad)
		require.ErrorIs(t, err, ErrMalformedSignature, bad)
	}
}

func TestGoLoaderBind(t *testing.T) {
	var calls atomic.Int32
	loader := testLoader(&calls)

	callout, err := Bind(loader, "testlib", "negate", negateSig)
	require.NoError(t, err)
	require.NotZero(t, callout.Address())

	v, err := callout.Call([]marshal.Value{marshal.IntValue(marshal.I32, 5)})
	require.NoError(t, err)
	require.Equal(t, int64(-5), v.Int64())
	require.Equal(t, int32(1), calls.Load())

	_, err = Bind(loader, "nolib", "negate", negateSig)
	var resolveErr *ResolveError
	require.True(t, errors.As(err, &resolveErr))
	require.ErrorIs(t, err, ErrNoLibrary)

	_, err = Bind(loader, "testlib", "missing", negateSig)
	require.True(t, errors.As(err, &resolveErr))
	require.Equal(t, "missing", resolveErr.Symbol)
	require.ErrorIs(t, err, ErrNoSymbol)
}

func TestGoFunctionCoercesResult(t *testing.T) {
	var calls atomic.Int32
	callout, err := Bind(testLoader(&calls), "testlib", "half",
		Signature{Args: []marshal.Type{marshal.F64}, Return: marshal.F32})
	require.NoError(t, err)

	v, err := callout.Call([]marshal.Value{marshal.FloatValue(marshal.F64, 5)})
	require.NoError(t, err)
	require.Equal(t, marshal.F32, v.Type())
	require.Equal(t, 2.5, v.Float64())
}

func TestGoFunctionPanicBecomesError(t *testing.T) {
	var calls atomic.Int32
	callout, err := Bind(testLoader(&calls), "testlib", "boom", Signature{Return: marshal.Void})
	require.NoError(t, err)

	_, err = callout.Call(nil)
	require.ErrorContains(t, err, "boom")
}

func TestArgumentCountMismatchFailsBeforeCalling(t *testing.T) {
	var calls atomic.Int32
	callout, err := Bind(testLoader(&calls), "testlib", "negate", negateSig)
	require.NoError(t, err)

	_, err = callout.Call(nil)
	var countErr *ArgumentCountError
	require.True(t, errors.As(err, &countErr))
	require.Equal(t, 1, countErr.Want)
	require.Equal(t, 0, countErr.Got)

	_, err = callout.Invoke([]marshal.Value{marshal.IntValue(marshal.I32, 1), marshal.IntValue(marshal.I32, 2)}, nil)
	require.True(t, errors.As(err, &countErr))
	require.Zero(t, calls.Load())
}

func TestChainLoaderAliases(t *testing.T) {
	var calls atomic.Int32
	chain := NewChainLoader(map[string]string{"libtest.so": "testlib"}, NewDynamicLoader(), testLoader(&calls))

	lib, err := chain.Open("libtest.so")
	require.NoError(t, err)
	require.Equal(t, "testlib", lib.Name())

	_, err = chain.Open("absent")
	var resolveErr *ResolveError
	require.True(t, errors.As(err, &resolveErr))
}

func TestInvocationLifecycle(t *testing.T) {
	var calls, completions atomic.Int32
	callout, err := Bind(testLoader(&calls), "testlib", "negate", negateSig)
	require.NoError(t, err)

	inv, err := callout.Invoke([]marshal.Value{marshal.IntValue(marshal.I32, 5)}, func() { completions.Add(1) })
	require.NoError(t, err)
	require.Equal(t, Pending, inv.State())

	_, err = inv.Result()
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, inv.Execute())
	<-inv.Done()
	require.Equal(t, Completed, inv.State())
	require.Equal(t, int32(1), completions.Load())

	v, err := inv.Result()
	require.NoError(t, err)
	require.Equal(t, int64(-5), v.Int64())

	require.ErrorIs(t, inv.Execute(), ErrInvalidState)
	require.Equal(t, int32(1), calls.Load())

	require.NoError(t, inv.Release())
	require.Equal(t, Released, inv.State())
	require.PanicsWithError(t, "invocation released twice: invocation "+inv.ID.String(), func() {
		_ = inv.Release()
	})
}

func TestReleasedCallout(t *testing.T) {
	var calls atomic.Int32
	callout, err := Bind(testLoader(&calls), "testlib", "negate", negateSig)
	require.NoError(t, err)
	require.NoError(t, callout.Release())
	require.NoError(t, callout.Release())

	_, err = callout.Call([]marshal.Value{marshal.IntValue(marshal.I32, 1)})
	require.ErrorIs(t, err, ErrReleased)
}

func TestHandleTable(t *testing.T) {
	table := NewHandleTable[string]()
	a := table.Create("a")
	b := table.Create("b")
	require.NotZero(t, a)
	require.NotEqual(t, a, b)

	v, ok := table.Lookup(a)
	require.True(t, ok)
	require.Equal(t, "a", v)

	v, ok = table.Release(a)
	require.True(t, ok)
	require.Equal(t, "a", v)
	_, ok = table.Lookup(a)
	require.False(t, ok)

	var drained []string
	table.Drain(func(_ uint64, v string) { drained = append(drained, v) })
	require.Equal(t, []string{"b"}, drained)
	require.Zero(t, table.Len())
}

func TestBareFunctionView(t *testing.T) {
	space := newSpace(t)
	sig := Signature{Args: []marshal.Type{marshal.Pointer, marshal.U8}, Return: marshal.I64}

	fn, err := NewBareFunction(space, "testlib", "negate", sig)
	require.NoError(t, err)

	fn, err = AsBareFunction(space, fn.Word())
	require.NoError(t, err)
	module, err := fn.ModuleName()
	require.NoError(t, err)
	require.Equal(t, "testlib", module)
	symbol, err := fn.FunctionName()
	require.NoError(t, err)
	require.Equal(t, "negate", symbol)

	decoded, err := fn.Signature()
	require.NoError(t, err)
	require.Equal(t, sig, decoded)

	addr, err := fn.CalloutAddress()
	require.NoError(t, err)
	require.True(t, addr.IsNull())

	m := fn.Marshaller()
	require.True(t, m.ExternalObjectClass.IsValid())
	require.True(t, m.ExternalEnumerationClass.IsValid())

	_, err = AsBareFunction(space, objmem.FromInteger(3))
	require.Error(t, err)
}

func TestLoopFunctionView(t *testing.T) {
	space := newSpace(t)

	fn, err := NewLoopFunction(space, "testlib", "negate", negateSig)
	require.NoError(t, err)

	sig, err := fn.Signature()
	require.NoError(t, err)
	require.Equal(t, negateSig, sig)

	// Definitions may also hold bare SmallIntegers.
	def, err := objects.NewArrayOf(space, objmem.FromInteger(int64(marshal.Void)), objmem.FromInteger(int64(marshal.F64)))
	require.NoError(t, err)
	require.NoError(t, fn.FieldAtPut(LoopDefinitionSlot, def.Word()))
	sig, err = fn.Signature()
	require.NoError(t, err)
	require.Equal(t, Signature{Args: []marshal.Type{marshal.F64}, Return: marshal.Void}, sig)

	empty, err := objects.NewArray(space, 0)
	require.NoError(t, err)
	require.NoError(t, fn.FieldAtPut(LoopDefinitionSlot, empty.Word()))
	_, err = fn.Signature()
	require.ErrorIs(t, err, ErrMalformedSignature)
}

func TestCalloutsCacheInExternalAddress(t *testing.T) {
	space := newSpace(t)
	var calls atomic.Int32
	callouts := NewCallouts(testLoader(&calls))

	addr, err := objects.NewExternalAddress(space, 0)
	require.NoError(t, err)

	first, err := callouts.Ensure(addr, "testlib", "negate", negateSig)
	require.NoError(t, err)
	require.False(t, addr.IsNull())

	second, err := callouts.Ensure(addr, "testlib", "negate", negateSig)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, callouts.Len())

	require.NoError(t, callouts.Release(addr))
	require.True(t, addr.IsNull())
	require.True(t, first.IsReleased())
	require.NoError(t, callouts.Release(addr))

	_, err = callouts.Ensure(addr, "testlib", "missing", negateSig)
	require.ErrorIs(t, err, ErrNoSymbol)
	require.True(t, addr.IsNull())

	_, err = callouts.Ensure(addr, "testlib", "negate", negateSig)
	require.NoError(t, err)
	require.NoError(t, callouts.Close())
	require.Zero(t, callouts.Len())
}
