package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chazu/spur/config"
	"github.com/chazu/spur/eventloop"
	"github.com/chazu/spur/ffi"
	"github.com/chazu/spur/marshal"
	"github.com/chazu/spur/objmem"
	"github.com/chazu/spur/primitives"
	"github.com/chazu/spur/proxy"
)

// demoModule is the in-process library the demo calls into.
const demoModule = "libspurdemo"

// session wires an object space, an interpreter, a bridge and the plugin
// the way an embedding VM would.
type session struct {
	space   *objmem.Space
	machine *proxy.Machine
	bridge  *eventloop.Bridge
	plugin  *primitives.Plugin

	mu    sync.Mutex
	fatal error
}

func newSession(ctx context.Context, cfg *config.Config) (*session, error) {
	words, err := cfg.MemoryWords()
	if err != nil {
		return nil, err
	}
	space, err := objmem.Boot(words)
	if err != nil {
		return nil, err
	}

	opts, err := cfg.BridgeOptions()
	if err != nil {
		space.Close()
		return nil, err
	}
	s := &session{
		space:   space,
		machine: proxy.NewMachine(space),
		bridge:  eventloop.NewBridge(opts),
	}
	if err := s.bridge.Start(ctx); err != nil {
		space.Close()
		return nil, err
	}

	loader := ffi.NewChainLoader(cfg.Libraries.Alias,
		demoLoader(),
		ffi.NewDynamicLoader(cfg.SearchPaths()...),
	)
	s.plugin, err = primitives.New(s.machine, primitives.Options{
		Loader: loader,
		Bridge: s.bridge,
		Fatal:  s.setFatal,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	log.Infof("session: %d words, bridge %s, dynamic loading %t", words, opts.Mode, ffi.DynamicAvailable())
	return s, nil
}

func (s *session) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

// err returns the first fatal bridge error.
func (s *session) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// call runs a named primitive on the session's machine.
func (s *session) call(name string, receiver objmem.Word, args ...objmem.Word) (objmem.Word, error) {
	prim, ok := s.plugin.Primitive(name)
	if !ok {
		return 0, fmt.Errorf("no primitive %s", name)
	}
	result, err := s.machine.Call(prim, receiver, args...)
	if ferr := s.err(); ferr != nil {
		return 0, ferr
	}
	return result, err
}

func (s *session) close() error {
	var errs []error
	if s.plugin != nil {
		errs = append(errs, s.plugin.Close())
	}
	if err := s.bridge.Stop(5 * time.Second); err != nil && !errors.Is(err, eventloop.ErrDisconnected) {
		errs = append(errs, err)
	}
	errs = append(errs, s.space.Close())
	return errors.Join(errs...)
}

func demoLoader() *ffi.GoLoader {
	loader := ffi.NewGoLoader()
	loader.Module(demoModule).
		Define("add", func(args []marshal.Value) marshal.Value {
			return marshal.IntValue(marshal.I64, args[0].Int64()+args[1].Int64())
		}).
		Define("minusFive", func([]marshal.Value) marshal.Value {
			return marshal.IntValue(marshal.I32, -5)
		}).
		Define("hypot", func(args []marshal.Value) marshal.Value {
			return marshal.FloatValue(marshal.F64, math.Hypot(args[0].Float64(), args[1].Float64()))
		}).
		Define("sleep", func(args []marshal.Value) marshal.Value {
			time.Sleep(time.Duration(args[0].Uint64()) * time.Millisecond)
			return marshal.VoidValue()
		})
	return loader
}
