package eventloop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Mode selects where a Bridge runs its loop.
type Mode uint8

const (
	// Worker runs the loop on a dedicated goroutine.
	Worker Mode = iota
	// Inline runs queued work on the goroutine that submits it.
	Inline
)

func (m Mode) String() string {
	if m == Inline {
		return "inline"
	}
	return "worker"
}

// ParseMode reads "worker" or "inline".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "worker":
		return Worker, nil
	case "inline":
		return Inline, nil
	}
	return 0, fmt.Errorf("unknown bridge mode %q", s)
}

// Options configure a Bridge.
type Options struct {
	Mode     Mode
	Capacity int
	// LockOSThread pins the worker goroutine to one OS thread, for native
	// libraries with thread affinity.
	LockOSThread bool
}

// Bridge owns a loop and its sender.
type Bridge struct {
	opts    Options
	loop    *Loop
	sender  *Sender
	group   *errgroup.Group
	cancel  context.CancelFunc
	started atomic.Bool
}

// NewBridge creates a bridge. Start it before submitting work.
func NewBridge(opts Options) *Bridge {
	loop, sender := New(opts.Capacity)
	return &Bridge{opts: opts, loop: loop, sender: sender}
}

// Mode returns the bridge's mode.
func (b *Bridge) Mode() Mode { return b.opts.Mode }

// Loop returns the receiving end.
func (b *Bridge) Loop() *Loop { return b.loop }

// Sender returns the sending end.
func (b *Bridge) Sender() *Sender { return b.sender }

// Start launches the worker goroutine in Worker mode. In Inline mode it
// only marks the bridge started.
func (b *Bridge) Start(ctx context.Context) error {
	if b.started.Swap(true) {
		return errors.New("event loop bridge already started")
	}
	if b.opts.Mode == Inline {
		return nil
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.group, ctx = errgroup.WithContext(ctx)
	b.group.Go(func() error {
		if b.opts.LockOSThread {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		log.Info("event loop worker started")
		err := b.loop.Run(ctx)
		log.Infof("event loop worker stopped: %v", err)
		return err
	})
	return nil
}

// Submit queues job. In Inline mode the queue is drained before Submit
// returns, so job has been executed unless a Terminate preceded it.
func (b *Bridge) Submit(job Job) error {
	if err := b.sender.Send(Call(job)); err != nil {
		return err
	}
	if b.opts.Mode == Inline {
		if _, err := b.loop.TryReceive(); err != nil {
			return err
		}
	}
	return nil
}

// Poll drains the queue on the calling goroutine. It is how an Inline
// bridge's owner services wake-ups.
func (b *Bridge) Poll() (terminated bool, err error) {
	return b.loop.TryReceive()
}

// Stop queues Terminate behind any pending work and waits up to timeout
// for the worker to finish it. The timeout covers queueing Terminate as
// well as the join; a worker that does not stop in time yields ErrJoin.
func (b *Bridge) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	defer b.sender.Close()

	if err := b.sender.SendContext(ctx, Terminate()); err != nil {
		switch {
		case errors.Is(err, ErrDisconnected):
		case errors.Is(err, context.DeadlineExceeded):
			b.abandon()
			return fmt.Errorf("%w within %s: queue full", ErrJoin, timeout)
		default:
			return err
		}
	}

	if b.opts.Mode == Inline || b.group == nil {
		_, err := b.loop.TryReceive()
		return err
	}

	joined := make(chan error, 1)
	go func() { joined <- b.group.Wait() }()
	select {
	case err := <-joined:
		b.cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-ctx.Done():
		b.abandon()
		return fmt.Errorf("%w within %s", ErrJoin, timeout)
	}
}

// abandon cancels the worker's context. A worker stuck in a native call
// still finishes that call first.
func (b *Bridge) abandon() {
	if b.cancel != nil {
		b.cancel()
	}
}
