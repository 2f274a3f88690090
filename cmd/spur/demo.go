package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/spur/config"
	"github.com/chazu/spur/ffi"
	"github.com/chazu/spur/marshal"
	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/objmem"
	"github.com/chazu/spur/primitives"
	"github.com/chazu/spur/proxy"
)

// runDemo processes the `spur demo` subcommand: a synchronous callout, a
// batch of event loop callouts and their extraction.
func runDemo(cfg *config.Config, verbose bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	if err := primitives.Install(s.plugin); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return demoSession(ctx, s, verbose) })
	return g.Wait()
}

func demoSession(ctx context.Context, s *session, verbose bool) error {
	space := s.space

	// Synchronous call on the interpreter goroutine.
	add, err := ffi.NewBareFunction(space, demoModule, "add", ffi.Signature{
		Args:   []marshal.Type{marshal.I64, marshal.I64},
		Return: marshal.I64,
	})
	if err != nil {
		return err
	}
	sum, err := s.call("primitiveBareFfiCallout", add.Word(), objmem.FromInteger(40), objmem.FromInteger(2))
	if err != nil {
		return err
	}
	fmt.Printf("add(40, 2) = %s\n", primitives.Describe(space, sum))

	// Event loop calls, each completing through its own semaphore.
	calls := []struct {
		symbol string
		sig    ffi.Signature
		args   []objmem.Word
	}{
		{"minusFive", ffi.Signature{Return: marshal.I32}, nil},
		{"hypot", ffi.Signature{Args: []marshal.Type{marshal.F64, marshal.F64}, Return: marshal.F64},
			[]objmem.Word{objmem.FromInteger(3), objmem.FromInteger(4)}},
		{"sleep", ffi.Signature{Args: []marshal.Type{marshal.U32}, Return: marshal.Void},
			[]objmem.Word{objmem.FromInteger(10)}},
	}

	type pending struct {
		symbol string
		sem    *proxy.Semaphore
		handle objmem.Word
	}
	var queued []pending
	for _, c := range calls {
		fn, err := ffi.NewLoopFunction(space, demoModule, c.symbol, c.sig)
		if err != nil {
			return err
		}
		args, err := objects.NewArrayOf(space, c.args...)
		if err != nil {
			return err
		}
		sem := proxy.NewSemaphore(1)
		index := s.machine.Semaphores.Register(sem)

		handle, err := s.call("primitiveEventLoopCallout", space.Nil(),
			fn.Word(), args.Word(), objmem.FromInteger(int64(index)))
		if err != nil {
			return fmt.Errorf("%s: %w", c.symbol, err)
		}
		if verbose {
			fmt.Printf("queued %s%s on semaphore %d\n", c.symbol, c.sig, index)
		}
		queued = append(queued, pending{c.symbol, sem, handle})
	}

	for _, p := range queued {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.sem.Wait(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("%s: waiting for completion: %w", p.symbol, err)
		}
		result, err := s.call("primitiveExtractReturnValue", space.Nil(), p.handle)
		if err != nil {
			return fmt.Errorf("%s: %w", p.symbol, err)
		}
		fmt.Printf("%s = %s\n", p.symbol, primitives.Describe(space, result))
	}

	if verbose {
		fmt.Printf("%d callouts cached, %d invocations pending\n",
			s.plugin.Callouts().Len(), s.plugin.PendingInvocations())
	}
	return s.err()
}
