package primitives

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
)

// ErrAlreadyInstalled is returned by a second Install.
var ErrAlreadyInstalled = errors.New("primitives plugin already installed")

var (
	installOnce sync.Once
	installed   atomic.Pointer[Plugin]
)

// Install publishes p as the process-wide plugin. It succeeds once per
// process.
func Install(p *Plugin) error {
	ok := false
	installOnce.Do(func() {
		installed.Store(p)
		ok = true
	})
	if !ok {
		return ErrAlreadyInstalled
	}
	return nil
}

// Current returns the installed plugin, nil before Install.
func Current() *Plugin { return installed.Load() }

func functionAddress(fn any) uint64 {
	return uint64(reflect.ValueOf(fn).Pointer())
}

// with runs fn against the installed plugin. Before Install there is no
// interpreter to fail, so the call is dropped.
func with(fn func(*Plugin)) {
	if p := Current(); p != nil {
		fn(p)
	}
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Each entry point runs the Plugin method of the same name against the
// installed plugin.

func PrimitiveBareFfiCallout() {
	with((*Plugin).BareFfiCallout)
}

func PrimitiveBareFfiCalloutInvalidate() {
	with((*Plugin).BareFfiCalloutInvalidate)
}

func PrimitiveBareFfiCalloutRelease() {
	with((*Plugin).BareFfiCalloutRelease)
}

func PrimitiveEventLoopCallout() {
	with((*Plugin).EventLoopCallout)
}

func PrimitiveExtractReturnValue() {
	with((*Plugin).ExtractReturnValue)
}

func PrimitiveGetNamedPrimitives() {
	with((*Plugin).GetNamedPrimitives)
}

func PrimitiveGetSemaphoreSignaller() {
	with((*Plugin).GetSemaphoreSignaller)
}

func PrimitiveGetEventLoop() {
	with((*Plugin).GetEventLoop)
}

func PrimitiveGetEventLoopReceiver() {
	with((*Plugin).GetEventLoopReceiver)
}

func PrimitiveSetEventLoopWaker() {
	with((*Plugin).SetEventLoopWaker)
}

func PrimitiveIdentityHash() {
	with((*Plugin).IdentityHash)
}

func PrimitiveIdentityDictionaryScanFor() {
	with((*Plugin).IdentityDictionaryScanFor)
}

func PrimitiveWideStringByteIndexToCharIndex() {
	with((*Plugin).WideStringByteIndexToCharIndex)
}

func PrimitiveFirstBytePointerOfDataObject() {
	with((*Plugin).FirstBytePointerOfDataObject)
}

func PrimitiveFcntl() {
	with((*Plugin).Fcntl)
}

func PrimitiveDebugPrintArray() {
	with((*Plugin).DebugPrintArray)
}

// SignalSemaphore signals the installed plugin's semaphore at index. It is
// the function primitiveGetSemaphoreSignaller answers and may be called
// from any goroutine.
func SignalSemaphore(index uintptr) {
	p := Current()
	if p == nil {
		return
	}
	if err := p.interp.SignalSemaphore(int(index)); err != nil {
		p.log.Errorf("signal semaphore %d: %s", index, err)
	}
}

// ReceiveEvents drains the installed plugin's event loop named by handle.
// It is the function primitiveGetEventLoopReceiver answers. A Terminate
// or a broken loop is reported through the plugin's Fatal callback.
func ReceiveEvents(handle uintptr) {
	p := Current()
	if p == nil {
		return
	}
	terminated, err := p.ReceiveEvents(uint64(handle))
	switch {
	case err != nil:
		p.log.Criticalf("receive events: %s", err)
		if p.fatal != nil {
			p.fatal(err)
		}
	case terminated:
		p.log.Info("event loop terminated")
		if p.fatal != nil {
			p.fatal(errTerminated)
		}
	}
}

// errTerminated tells the Fatal callback that the loop was asked to stop.
var errTerminated = errors.New("event loop terminated")

// IsTerminated reports whether err, as given to Options.Fatal, only means
// the event loop received Terminate.
func IsTerminated(err error) bool { return errors.Is(err, errTerminated) }
