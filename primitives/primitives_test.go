package primitives

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/chazu/spur/eventloop"
	"github.com/chazu/spur/ffi"
	"github.com/chazu/spur/marshal"
	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/objmem"
	"github.com/chazu/spur/proxy"
)

type fixture struct {
	space   *objmem.Space
	machine *proxy.Machine
	plugin  *Plugin
	calls   atomic.Int32
}

func newFixture(t *testing.T, mode eventloop.Mode) *fixture {
	t.Helper()
	space, err := objmem.Boot(1 << 18)
	require.NoError(t, err)
	t.Cleanup(func() { space.Close() })

	f := &fixture{space: space, machine: proxy.NewMachine(space)}

	loader := ffi.NewGoLoader()
	loader.Module("libtest").
		Define("minusFive", func([]marshal.Value) marshal.Value {
			f.calls.Add(1)
			return marshal.IntValue(marshal.I32, -5)
		}).
		Define("add", func(args []marshal.Value) marshal.Value {
			f.calls.Add(1)
			return marshal.IntValue(marshal.I32, args[0].Int64()+args[1].Int64())
		}).
		Define("byte", func(args []marshal.Value) marshal.Value {
			return marshal.UintValue(marshal.U8, args[0].Uint64())
		}).
		Define("nothing", func([]marshal.Value) marshal.Value {
			f.calls.Add(1)
			return marshal.VoidValue()
		})

	bridge := eventloop.NewBridge(eventloop.Options{Mode: mode, Capacity: 8})
	require.NoError(t, bridge.Start(context.Background()))
	t.Cleanup(func() { _ = bridge.Stop(time.Second) })

	f.plugin, err = New(f.machine, Options{Loader: loader, Bridge: bridge})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.plugin.Close() })
	return f
}

func (f *fixture) call(t *testing.T, name string, receiver objmem.Word, args ...objmem.Word) (objmem.Word, error) {
	t.Helper()
	prim, ok := f.plugin.Primitive(name)
	require.True(t, ok, name)
	return f.machine.Call(prim, receiver, args...)
}

func requireFailure(t *testing.T, err error, code int) {
	t.Helper()
	var failure *proxy.PrimitiveFailure
	require.True(t, errors.As(err, &failure), "expected a primitive failure, got %v", err)
	require.Equal(t, proxy.FailureName(code), proxy.FailureName(failure.Code))
}

func newString(t *testing.T, space *objmem.Space, s string) objmem.Word {
	t.Helper()
	str, err := objects.NewByteString(space, s)
	require.NoError(t, err)
	return str.Word()
}

// ---------------------------------------------------------------------------
// Event loop callouts
// ---------------------------------------------------------------------------

func TestEventLoopCalloutEndToEnd(t *testing.T) {
	for _, mode := range []eventloop.Mode{eventloop.Worker, eventloop.Inline} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t, mode)
			fn, err := ffi.NewLoopFunction(f.space, "libtest", "minusFive", ffi.Signature{Return: marshal.I32})
			require.NoError(t, err)
			args, err := objects.NewArray(f.space, 0)
			require.NoError(t, err)

			sem := proxy.NewSemaphore(0)
			index := f.machine.Semaphores.Register(sem)

			handle, err := f.call(t, "primitiveEventLoopCallout", f.space.Nil(),
				fn.Word(), args.Word(), objmem.FromInteger(int64(index)))
			require.NoError(t, err)
			addr, err := objects.AsExternalAddress(f.space, handle)
			require.NoError(t, err)
			require.False(t, addr.IsNull())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, sem.Wait(ctx))

			result, err := f.call(t, "primitiveExtractReturnValue", f.space.Nil(), handle)
			require.NoError(t, err)
			require.Equal(t, objmem.FromInteger(-5), result)

			require.Equal(t, int64(1), sem.Signals())
			require.Equal(t, int32(1), f.calls.Load())
			require.Equal(t, 0, f.plugin.PendingInvocations())
			require.True(t, addr.IsNull())

			// The callout is cached in the function's handle slot.
			slot, err := fn.HandleAddress()
			require.NoError(t, err)
			require.False(t, slot.IsNull())
			require.Equal(t, 1, f.plugin.Callouts().Len())
		})
	}
}

func TestEventLoopCalloutArguments(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	sig := ffi.Signature{Args: []marshal.Type{marshal.I32, marshal.I32}, Return: marshal.I32}
	fn, err := ffi.NewLoopFunction(f.space, "libtest", "add", sig)
	require.NoError(t, err)
	args, err := objects.NewArrayOf(f.space, objmem.FromInteger(40), objmem.FromInteger(2))
	require.NoError(t, err)
	index := f.machine.Semaphores.Register(proxy.NewSemaphore(0))

	handle, err := f.call(t, "primitiveEventLoopCallout", f.space.Nil(),
		fn.Word(), args.Word(), objmem.FromInteger(int64(index)))
	require.NoError(t, err)

	result, err := f.call(t, "primitiveExtractReturnValue", f.space.Nil(), handle)
	require.NoError(t, err)
	require.Equal(t, objmem.FromInteger(42), result)

	// Extracting twice fails: the address was nulled.
	_, err = f.call(t, "primitiveExtractReturnValue", f.space.Nil(), handle)
	requireFailure(t, err, proxy.PrimErrGenericFailure)
}

func TestEventLoopCalloutVoidAnswersReceiver(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	fn, err := ffi.NewLoopFunction(f.space, "libtest", "nothing", ffi.Signature{Return: marshal.Void})
	require.NoError(t, err)
	args, err := objects.NewArray(f.space, 0)
	require.NoError(t, err)
	index := f.machine.Semaphores.Register(proxy.NewSemaphore(0))

	handle, err := f.call(t, "primitiveEventLoopCallout", f.space.Nil(),
		fn.Word(), args.Word(), objmem.FromInteger(int64(index)))
	require.NoError(t, err)

	receiver := objmem.FromInteger(77)
	result, err := f.call(t, "primitiveExtractReturnValue", receiver, handle)
	require.NoError(t, err)
	require.Equal(t, receiver, result)
}

func TestEventLoopCalloutWithoutSemaphore(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	fn, err := ffi.NewLoopFunction(f.space, "libtest", "minusFive", ffi.Signature{Return: marshal.I32})
	require.NoError(t, err)
	args, err := objects.NewArray(f.space, 0)
	require.NoError(t, err)

	handle, err := f.call(t, "primitiveEventLoopCallout", f.space.Nil(),
		fn.Word(), args.Word(), objmem.FromInteger(0))
	require.NoError(t, err)
	addr, err := objects.AsExternalAddress(f.space, handle)
	require.NoError(t, err)
	require.True(t, addr.IsNull())
	require.Equal(t, int32(1), f.calls.Load())
	require.Equal(t, 0, f.plugin.PendingInvocations())
}

func TestEventLoopCalloutFailures(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	sig := ffi.Signature{Args: []marshal.Type{marshal.U8}, Return: marshal.U8}
	fn, err := ffi.NewLoopFunction(f.space, "libtest", "byte", sig)
	require.NoError(t, err)

	tooBig, err := objects.NewArrayOf(f.space, objmem.FromInteger(256))
	require.NoError(t, err)
	_, err = f.call(t, "primitiveEventLoopCallout", f.space.Nil(), fn.Word(), tooBig.Word(), objmem.FromInteger(0))
	requireFailure(t, err, proxy.PrimErrBadArgument)

	empty, err := objects.NewArray(f.space, 0)
	require.NoError(t, err)
	_, err = f.call(t, "primitiveEventLoopCallout", f.space.Nil(), fn.Word(), empty.Word(), objmem.FromInteger(0))
	requireFailure(t, err, proxy.PrimErrBadNumArgs)

	missing, err := ffi.NewLoopFunction(f.space, "libtest", "absent", sig)
	require.NoError(t, err)
	_, err = f.call(t, "primitiveEventLoopCallout", f.space.Nil(), missing.Word(), empty.Word(), objmem.FromInteger(0))
	requireFailure(t, err, proxy.PrimErrGenericFailure)

	_, err = f.call(t, "primitiveEventLoopCallout", f.space.Nil(), f.space.Nil(), empty.Word(), objmem.FromInteger(0))
	requireFailure(t, err, proxy.PrimErrBadArgument)

	require.Zero(t, f.calls.Load())
}

func TestExtractReturnValueNullFails(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	null, err := objects.NewExternalAddress(f.space, 0)
	require.NoError(t, err)
	_, err = f.call(t, "primitiveExtractReturnValue", f.space.Nil(), null.Word())
	requireFailure(t, err, proxy.PrimErrGenericFailure)
}

func TestDisconnectedBridgeIsFatal(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	var fatal error
	f.plugin.fatal = func(err error) { fatal = err }
	require.NoError(t, f.plugin.Bridge().Stop(time.Second))

	fn, err := ffi.NewLoopFunction(f.space, "libtest", "minusFive", ffi.Signature{Return: marshal.I32})
	require.NoError(t, err)
	args, err := objects.NewArray(f.space, 0)
	require.NoError(t, err)
	_, err = f.call(t, "primitiveEventLoopCallout", f.space.Nil(), fn.Word(), args.Word(), objmem.FromInteger(0))
	requireFailure(t, err, proxy.PrimErrGenericFailure)
	require.ErrorIs(t, fatal, eventloop.ErrDisconnected)
}

func TestEventLoopHandlesAndWaker(t *testing.T) {
	f := newFixture(t, eventloop.Inline)

	handle, err := f.call(t, "primitiveGetEventLoop", f.space.Nil())
	require.NoError(t, err)
	loop, err := objects.AsExternalAddress(f.space, handle)
	require.NoError(t, err)
	require.False(t, loop.IsNull())

	terminated, err := f.plugin.ReceiveEvents(loop.Address())
	require.NoError(t, err)
	require.False(t, terminated)

	receiver, err := f.call(t, "primitiveGetEventLoopReceiver", f.space.Nil())
	require.NoError(t, err)
	addr, err := objects.AsExternalAddress(f.space, receiver)
	require.NoError(t, err)
	require.Equal(t, functionAddress(ReceiveEvents), addr.Address())

	signaller, err := f.call(t, "primitiveGetSemaphoreSignaller", f.space.Nil())
	require.NoError(t, err)
	addr, err = objects.AsExternalAddress(f.space, signaller)
	require.NoError(t, err)
	require.Equal(t, functionAddress(SignalSemaphore), addr.Address())

	var woken []uintptr
	waker, err := objects.NewExternalAddress(f.space, f.plugin.RegisterWaker(func(thunk uintptr) bool {
		woken = append(woken, thunk)
		return true
	}))
	require.NoError(t, err)
	thunk, err := objects.NewExternalAddress(f.space, 0xBEEF)
	require.NoError(t, err)

	ok, err := f.call(t, "primitiveSetEventLoopWaker", f.space.Nil(), thunk.Word(), waker.Word())
	require.NoError(t, err)
	require.Equal(t, f.space.True(), ok)

	require.NoError(t, f.plugin.Bridge().Sender().Send(eventloop.WakeUp()))
	require.Equal(t, []uintptr{0xBEEF}, woken)

	unknown, err := objects.NewExternalAddress(f.space, 12345)
	require.NoError(t, err)
	_, err = f.call(t, "primitiveSetEventLoopWaker", f.space.Nil(), thunk.Word(), unknown.Word())
	requireFailure(t, err, proxy.PrimErrBadArgument)
}

// ---------------------------------------------------------------------------
// Bare callouts
// ---------------------------------------------------------------------------

func TestBareFfiCallout(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	sig := ffi.Signature{Args: []marshal.Type{marshal.I32, marshal.I32}, Return: marshal.I32}
	fn, err := ffi.NewBareFunction(f.space, "libtest", "add", sig)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		result, err := f.call(t, "primitiveBareFfiCallout", fn.Word(), objmem.FromInteger(2), objmem.FromInteger(3))
		require.NoError(t, err)
		require.Equal(t, objmem.FromInteger(5), result)
	}
	require.Equal(t, 1, f.plugin.Callouts().Len())

	_, err = f.call(t, "primitiveBareFfiCallout", fn.Word(), objmem.FromInteger(2))
	requireFailure(t, err, proxy.PrimErrBadNumArgs)

	_, err = f.call(t, "primitiveBareFfiCallout", fn.Word(), objmem.FromInteger(2), newString(t, f.space, "x"))
	requireFailure(t, err, proxy.PrimErrBadArgument)

	_, err = f.call(t, "primitiveBareFfiCallout", f.space.Nil())
	requireFailure(t, err, proxy.PrimErrBadReceiver)

	require.Equal(t, int32(3), f.calls.Load())
}

func TestBareFfiCalloutRange(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	sig := ffi.Signature{Args: []marshal.Type{marshal.U8}, Return: marshal.U8}
	fn, err := ffi.NewBareFunction(f.space, "libtest", "byte", sig)
	require.NoError(t, err)

	result, err := f.call(t, "primitiveBareFfiCallout", fn.Word(), objmem.FromInteger(255))
	require.NoError(t, err)
	require.Equal(t, objmem.FromInteger(255), result)

	_, err = f.call(t, "primitiveBareFfiCallout", fn.Word(), objmem.FromInteger(256))
	requireFailure(t, err, proxy.PrimErrBadArgument)
	_, err = f.call(t, "primitiveBareFfiCallout", fn.Word(), objmem.FromInteger(-1))
	requireFailure(t, err, proxy.PrimErrBadArgument)
}

func TestBareFfiCalloutInvalidateAndRelease(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	fn, err := ffi.NewBareFunction(f.space, "libtest", "minusFive", ffi.Signature{Return: marshal.I32})
	require.NoError(t, err)

	result, err := f.call(t, "primitiveBareFfiCalloutInvalidate", fn.Word())
	require.NoError(t, err)
	require.Equal(t, fn.Word(), result)
	require.Equal(t, 1, f.plugin.Callouts().Len())
	require.Zero(t, f.calls.Load())

	addr, err := fn.CalloutAddress()
	require.NoError(t, err)
	require.False(t, addr.IsNull())

	_, err = f.call(t, "primitiveBareFfiCalloutRelease", fn.Word(), addr.Word())
	require.NoError(t, err)
	require.True(t, addr.IsNull())
	require.Zero(t, f.plugin.Callouts().Len())

	// Releasing a null address is a no-op.
	_, err = f.call(t, "primitiveBareFfiCalloutRelease", fn.Word(), addr.Word())
	require.NoError(t, err)

	// The next call binds again.
	result, err = f.call(t, "primitiveBareFfiCallout", fn.Word())
	require.NoError(t, err)
	require.Equal(t, objmem.FromInteger(-5), result)
}

func TestBareFfiCalloutUnresolved(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	fn, err := ffi.NewBareFunction(f.space, "libmissing", "f", ffi.Signature{Return: marshal.Void})
	require.NoError(t, err)
	_, err = f.call(t, "primitiveBareFfiCallout", fn.Word())
	requireFailure(t, err, proxy.PrimErrGenericFailure)
}

// ---------------------------------------------------------------------------
// Object primitives
// ---------------------------------------------------------------------------

func TestIdentityHash(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	str, err := objects.NewByteString(f.space, "hash me")
	require.NoError(t, err)

	result, err := f.call(t, "primitiveIdentityHash", str.Word())
	require.NoError(t, err)
	require.Equal(t, objmem.FromInteger(int64(str.IdentityHash())), result)

	_, err = f.call(t, "primitiveIdentityHash", objmem.FromInteger(3))
	requireFailure(t, err, proxy.PrimErrBadArgument)
}

func TestIdentityDictionaryScanFor(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	d, err := objects.NewIdentityDictionary(f.space, 8)
	require.NoError(t, err)
	key := objmem.FromInteger(5)
	require.NoError(t, d.AtPut(key, objmem.FromInteger(50)))

	want, err := d.ScanFor(key)
	require.NoError(t, err)

	result, err := f.call(t, "primitiveIdentityDictionaryScanFor", d.Word(), key, objmem.FromInteger(5))
	require.NoError(t, err)
	require.Equal(t, objmem.FromInteger(int64(want+1)), result)

	_, err = f.call(t, "primitiveIdentityDictionaryScanFor", d.Word(), key)
	requireFailure(t, err, proxy.PrimErrBadNumArgs)
}

func TestWideStringByteIndexToCharIndex(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	ws, err := objects.NewWideString(f.space, "aé€x")
	require.NoError(t, err)

	for byteIndex, want := range map[int64]int64{0: 1, 1: 2, 2: 2, 3: 3, 5: 3, 6: 4, 100: 4} {
		result, err := f.call(t, "primitiveWideStringByteIndexToCharIndex", ws.Word(), objmem.FromInteger(byteIndex))
		require.NoError(t, err)
		require.Equal(t, objmem.FromInteger(want), result, "byte index %d", byteIndex)
	}
}

func TestFirstBytePointerOfDataObject(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	bytes, err := objects.NewByteArray(f.space, []byte{1, 2, 3})
	require.NoError(t, err)

	result, err := f.call(t, "primitiveFirstBytePointerOfDataObject", bytes.Word())
	require.NoError(t, err)
	addr, err := objects.AsExternalAddress(f.space, result)
	require.NoError(t, err)
	require.Equal(t, bytes.FirstFieldAddress(), addr.Address())
}

func TestDebugPrintArray(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	array, err := objects.NewArrayOf(f.space, objmem.FromInteger(1), f.space.Nil(), newString(t, f.space, "two"))
	require.NoError(t, err)
	result, err := f.call(t, "primitiveDebugPrintArray", f.space.Nil(), array.Word())
	require.NoError(t, err)
	require.Equal(t, f.space.True(), result)

	require.Equal(t, "SmallInteger(1)", Describe(f.space, objmem.FromInteger(1)))
	require.Equal(t, "nil", Describe(f.space, f.space.Nil()))
	require.Contains(t, Describe(f.space, array.MustFieldAt(2)), `"two"`)
}

// ---------------------------------------------------------------------------
// System primitives
// ---------------------------------------------------------------------------

func TestFcntl(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fd := objmem.FromInteger(int64(r.Fd()))
	flags, err := f.call(t, "primitiveFcntl", f.space.Nil(), fd, objmem.FromInteger(unix.F_GETFD))
	require.NoError(t, err)
	n, ok := flags.Integer()
	require.True(t, ok)
	require.GreaterOrEqual(t, n, int64(0))

	result, err := f.call(t, "primitiveFcntl", f.space.Nil(), objmem.FromInteger(-1), objmem.FromInteger(unix.F_GETFD))
	require.NoError(t, err)
	require.Equal(t, objmem.FromInteger(-1), result)

	_, err = f.call(t, "primitiveFcntl", f.space.Nil(), fd)
	requireFailure(t, err, proxy.PrimErrBadNumArgs)
}

func TestGetNamedPrimitives(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	result, err := f.call(t, "primitiveGetNamedPrimitives", f.space.Nil())
	require.NoError(t, err)

	array, err := objects.AsArray(f.space, result)
	require.NoError(t, err)
	require.Equal(t, f.plugin.Exports().Len(), array.Len())
	require.Len(t, f.plugin.PrimitiveNames(), array.Len())

	first, err := objects.AsArray(f.space, array.MustFieldAt(0))
	require.NoError(t, err)
	require.Equal(t, 3, first.Len())
	name, err := objects.StringValue(f.space, first.MustFieldAt(1))
	require.NoError(t, err)
	require.Equal(t, "primitiveBareFfiCallout", name)
	addr, err := objects.AsExternalAddress(f.space, first.MustFieldAt(2))
	require.NoError(t, err)
	require.Equal(t, functionAddress(PrimitiveBareFfiCallout), addr.Address())
}

// ---------------------------------------------------------------------------
// Export table
// ---------------------------------------------------------------------------

func TestExportTableEncoding(t *testing.T) {
	f := newFixture(t, eventloop.Inline)
	table := f.plugin.Exports()

	encoded, err := table.Encode()
	require.NoError(t, err)
	defer encoded.Close()

	require.Equal(t, table.Len(), CountValid(encoded.Bytes()))

	for i, e := range table.Exports() {
		plugin, name, addr := encoded.Record(i)
		s, err := encoded.CString(plugin)
		require.NoError(t, err)
		require.Equal(t, e.Plugin, s)
		s, err = encoded.CString(name)
		require.NoError(t, err)
		require.Equal(t, e.Name, s)
		require.Equal(t, e.Address, addr)

		depth := encoded.Bytes()[name-encoded.Address()+uint64(len(e.Name))+1]
		require.Equal(t, byte(0xff), depth)
	}

	plugin, name, addr := encoded.Record(table.Len())
	require.Zero(t, plugin|name|addr)
}

func TestCountValidStopsAtNullField(t *testing.T) {
	mem := make([]byte, 4*recordSize)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			putPointer(mem[i*recordSize+j*pointerSize:], uint64(0x1000+i*8+j))
		}
	}
	putPointer(mem[1*recordSize+pointerSize:], 0)
	require.Equal(t, 1, CountValid(mem))
	require.Zero(t, CountValid(nil))
}

func TestExportTableRejectsDuplicates(t *testing.T) {
	table := NewExportTable()
	require.NoError(t, table.Export("", "primitiveFcntl", PrimitiveFcntl))
	require.ErrorIs(t, table.Export("", "primitiveFcntl", PrimitiveFcntl), ErrDuplicateExport)
	require.NoError(t, table.Export("Other", "primitiveFcntl", PrimitiveFcntl))
	require.Error(t, table.Export("", "primitiveNil", nil))

	e, ok := table.Lookup("Other", "primitiveFcntl")
	require.True(t, ok)
	require.Equal(t, functionAddress(PrimitiveFcntl), e.Address)
}

// ---------------------------------------------------------------------------
// Process-wide plugin
// ---------------------------------------------------------------------------

func TestInstallOnce(t *testing.T) {
	f := newFixture(t, eventloop.Inline)

	// Entry points are inert before Install.
	if Current() == nil {
		PrimitiveIdentityHash()
	}

	require.NoError(t, Install(f.plugin))
	require.ErrorIs(t, Install(f.plugin), ErrAlreadyInstalled)
	require.Same(t, f.plugin, Current())

	str, err := objects.NewByteString(f.space, "entry")
	require.NoError(t, err)
	result, err := f.machine.Call(PrimitiveIdentityHash, str.Word())
	require.NoError(t, err)
	require.Equal(t, objmem.FromInteger(int64(str.IdentityHash())), result)

	sem := proxy.NewSemaphore(0)
	index := f.machine.Semaphores.Register(sem)
	SignalSemaphore(uintptr(index))
	require.Equal(t, int64(1), sem.Signals())
}
