package primitives

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/spur/eventloop"
	"github.com/chazu/spur/ffi"
	"github.com/chazu/spur/marshal"
	"github.com/chazu/spur/objmem"
	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/proxy"
)

// Options configure a Plugin.
type Options struct {
	// Name is the plugin name recorded in the export table. The VM's own
	// primitives use the empty name.
	Name string
	// Loader resolves foreign modules. Defaults to an empty GoLoader.
	Loader ffi.Loader
	// Bridge carries event loop callouts. Without one they fail as
	// unsupported.
	Bridge *eventloop.Bridge
	// Fatal is told about bridge failures the plugin cannot recover from.
	Fatal func(error)
}

// Plugin is the state shared by the primitives of one interpreter.
type Plugin struct {
	name   string
	interp proxy.Interpreter
	log    commonlog.Logger
	fatal  func(error)

	callouts    *ffi.Callouts
	bridge      *eventloop.Bridge
	invocations *ffi.HandleTable[*ffi.Invocation]
	loops       *ffi.HandleTable[*eventloop.Loop]
	loopHandle  uint64
	wakers      *ffi.HandleTable[func(uintptr) bool]

	exports    *ExportTable
	primitives map[string]func(*Plugin)
}

// New creates a plugin serving interp and registers its primitives.
func New(interp proxy.Interpreter, opts Options) (*Plugin, error) {
	loader := opts.Loader
	if loader == nil {
		loader = ffi.NewGoLoader()
	}
	p := &Plugin{
		name:        opts.Name,
		interp:      interp,
		log:         commonlog.GetLogger("spur.primitives"),
		fatal:       opts.Fatal,
		callouts:    ffi.NewCallouts(loader),
		bridge:      opts.Bridge,
		invocations: ffi.NewHandleTable[*ffi.Invocation](),
		loops:       ffi.NewHandleTable[*eventloop.Loop](),
		wakers:      ffi.NewHandleTable[func(uintptr) bool](),
		exports:     NewExportTable(),
		primitives:  make(map[string]func(*Plugin)),
	}
	if p.bridge != nil {
		p.loopHandle = p.loops.Create(p.bridge.Loop())
	}

	for _, register := range []func() error{
		p.registerFFIPrimitives,
		p.registerEventLoopPrimitives,
		p.registerObjectPrimitives,
		p.registerSystemPrimitives,
	} {
		if err := register(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// register exports entry under name and records run for dispatch by name.
func (p *Plugin) register(name string, entry func(), run func(*Plugin)) error {
	if err := p.exports.Export(p.name, name, entry); err != nil {
		return err
	}
	p.primitives[name] = run
	return nil
}

// Name returns the plugin name.
func (p *Plugin) Name() string { return p.name }

// Interpreter returns the interpreter the plugin serves.
func (p *Plugin) Interpreter() proxy.Interpreter { return p.interp }

// Exports returns the export table.
func (p *Plugin) Exports() *ExportTable { return p.exports }

// Callouts returns the callout cache.
func (p *Plugin) Callouts() *ffi.Callouts { return p.callouts }

// Bridge returns the event loop bridge, nil if there is none.
func (p *Plugin) Bridge() *eventloop.Bridge { return p.bridge }

// PendingInvocations returns the number of event loop callouts whose
// results have not been extracted.
func (p *Plugin) PendingInvocations() int { return p.invocations.Len() }

// Primitive returns the named primitive bound to this plugin.
func (p *Plugin) Primitive(name string) (func(), bool) {
	run, ok := p.primitives[name]
	if !ok {
		return nil, false
	}
	return func() { run(p) }, true
}

// PrimitiveNames returns the registered primitive names, sorted.
func (p *Plugin) PrimitiveNames() []string {
	names := make([]string, 0, len(p.primitives))
	for name := range p.primitives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterWaker makes fn callable as an event loop waker and returns the
// address primitiveSetEventLoopWaker expects for it.
func (p *Plugin) RegisterWaker(fn func(thunk uintptr) bool) uint64 {
	return p.wakers.Create(fn)
}

// Close releases pending invocations and cached callouts.
func (p *Plugin) Close() error {
	p.invocations.Drain(func(_ uint64, inv *ffi.Invocation) {
		if err := inv.Release(); err != nil {
			p.log.Warningf("close: %s", err)
		}
	})
	return p.callouts.Close()
}

// ---------------------------------------------------------------------------
// Failure
// ---------------------------------------------------------------------------

// failureCode maps an error to a primitive failure code. def is used for
// representation errors, which mean a bad receiver or a bad argument
// depending on where the object came from.
func failureCode(err error, def int) int {
	var (
		rangeErr *marshal.RangeError
		argErr   *marshal.ArgumentError
		countErr *ffi.ArgumentCountError
		resolve  *ffi.ResolveError
	)
	switch {
	case errors.As(err, &countErr), errors.Is(err, marshal.ErrArgumentCount):
		return proxy.PrimErrBadNumArgs
	case errors.As(err, &argErr), errors.As(err, &rangeErr),
		errors.Is(err, marshal.ErrNotAnInteger), errors.Is(err, marshal.ErrNotAFloat),
		errors.Is(err, marshal.ErrNotAPointer), errors.Is(err, marshal.ErrIllegalArgumentType):
		return proxy.PrimErrBadArgument
	case errors.Is(err, objmem.ErrOutOfMemory):
		return proxy.PrimErrNoMemory
	case errors.As(err, &resolve), errors.Is(err, ffi.ErrMalformedSignature):
		return proxy.PrimErrGenericFailure
	case errors.Is(err, ffi.ErrInvalidState), errors.Is(err, ffi.ErrReleased):
		return proxy.PrimErrInappropriate
	case errors.Is(err, ffi.ErrUnavailable):
		return proxy.PrimErrUnsupported
	}
	return def
}

// fail logs err against the primitive and fails it.
func (p *Plugin) fail(primitive string, err error, def int) {
	code := failureCode(err, def)
	p.log.Errorf("%s: %s (%s)", primitive, err, proxy.FailureName(code))
	p.interp.PrimitiveFailFor(code)
}

// bridgeFailure reports a broken event loop: it is logged at critical
// level, handed to the Fatal callback and fails the primitive.
func (p *Plugin) bridgeFailure(primitive string, err error) {
	err = fmt.Errorf("%s: %w", primitive, err)
	p.log.Criticalf("%s", err)
	if p.fatal != nil {
		p.fatal(err)
	}
	p.interp.PrimitiveFailFor(proxy.PrimErrGenericFailure)
}

// ---------------------------------------------------------------------------
// Answers
// ---------------------------------------------------------------------------

func (p *Plugin) returnInteger(primitive string, n int64) {
	w, err := objects.NewInteger(p.interp.Space(), n)
	if err != nil {
		p.fail(primitive, err, proxy.PrimErrNoMemory)
		return
	}
	p.interp.MethodReturnValue(w)
}

func (p *Plugin) returnAddress(primitive string, addr uint64) {
	ea, err := objects.NewExternalAddress(p.interp.Space(), addr)
	if err != nil {
		p.fail(primitive, err, proxy.PrimErrNoMemory)
		return
	}
	p.interp.MethodReturnValue(ea.Word())
}

func (p *Plugin) returnBool(b bool) {
	p.interp.MethodReturnValue(p.interp.Space().Bool(b))
}

// externalAddressAt reads the ExternalAddress at a stack offset.
func (p *Plugin) externalAddressAt(offset int) (objects.ExternalAddress, error) {
	return objects.AsExternalAddress(p.interp.Space(), p.interp.StackValue(offset))
}

func (p *Plugin) checkArgumentCount(primitive string, want ...int) bool {
	n := p.interp.MethodArgumentCount()
	for _, w := range want {
		if n == w {
			return true
		}
	}
	p.log.Errorf("%s: wrong argument count, expected %v got %d", primitive, want, n)
	p.interp.PrimitiveFailFor(proxy.PrimErrBadNumArgs)
	return false
}
