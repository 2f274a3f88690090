package eventloop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("spur.eventloop")

// DefaultCapacity is the queue length used when New is given zero.
const DefaultCapacity = 64

// Loop is the receiving end of the queue.
type Loop struct {
	messages chan Message

	// exited is closed once the loop has processed Terminate or Run has
	// returned.
	exited   chan struct{}
	exitOnce sync.Once

	// hungUp is closed by Sender.Close.
	hungUp   chan struct{}
	hangOnce sync.Once
}

// Sender is the sending end of the queue. It is safe for concurrent use.
type Sender struct {
	loop  *Loop
	mu    sync.RWMutex
	done  bool
	waker atomic.Pointer[Waker]
}

// New creates a loop and its sender. Capacity bounds the queue; Send
// blocks while the queue is full.
func New(capacity int) (*Loop, *Sender) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Loop{
		messages: make(chan Message, capacity),
		exited:   make(chan struct{}),
		hungUp:   make(chan struct{}),
	}
	return l, &Sender{loop: l}
}

// ---------------------------------------------------------------------------
// Receiving
// ---------------------------------------------------------------------------

// Run processes messages until Terminate, context cancellation, or the
// sender hanging up. Terminate returns nil. A hang-up first drains what is
// already queued, then returns ErrDisconnected.
func (l *Loop) Run(ctx context.Context) error {
	defer l.exit()
	for {
		select {
		case msg := <-l.messages:
			if !l.process(msg) {
				return nil
			}
		case <-l.hungUp:
			terminated, err := l.drain()
			if terminated || err != nil {
				return err
			}
			return ErrDisconnected
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryReceive processes every message already queued without blocking. It
// stops at Terminate, reporting it instead of exiting. Once the sender
// has hung up and the queue is empty it returns ErrDisconnected.
func (l *Loop) TryReceive() (terminated bool, err error) {
	if terminated, err = l.drain(); terminated || err != nil {
		return terminated, err
	}
	select {
	case <-l.hungUp:
		return false, ErrDisconnected
	default:
		return false, nil
	}
}

// Exited is closed once the loop has stopped.
func (l *Loop) Exited() <-chan struct{} { return l.exited }

func (l *Loop) drain() (bool, error) {
	for {
		select {
		case msg := <-l.messages:
			if !l.process(msg) {
				l.exit()
				return true, nil
			}
		default:
			return false, nil
		}
	}
}

// process handles one message and reports whether to keep going.
func (l *Loop) process(msg Message) bool {
	switch msg.Kind {
	case KindTerminate:
		log.Debug("terminate received")
		return false
	case KindWakeUp:
	case KindCall:
		if err := execute(msg.Job); err != nil {
			log.Errorf("call %v: %s", msg.Job, err)
		}
	default:
		log.Warningf("unknown message kind %s", msg.Kind)
	}
	return true
}

// execute runs a job, recovering from panics.
func execute(job Job) (err error) {
	if job == nil {
		return fmt.Errorf("call without a job")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Execute()
}

func (l *Loop) exit() {
	l.exitOnce.Do(func() { close(l.exited) })
}

// ---------------------------------------------------------------------------
// Sending
// ---------------------------------------------------------------------------

// Send queues msg and wakes the loop's waker, if one is set. It fails with
// ErrDisconnected after Close or once the loop has stopped.
func (s *Sender) Send(msg Message) error {
	return s.SendContext(context.Background(), msg)
}

// SendContext is Send, giving up with ctx's error if the queue stays full
// until ctx is done.
func (s *Sender) SendContext(ctx context.Context, msg Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.done {
		return ErrDisconnected
	}
	select {
	case <-s.loop.exited:
		return ErrDisconnected
	default:
	}

	select {
	case s.loop.messages <- msg:
	case <-s.loop.exited:
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Debugf("sent %s", msg)

	if w := s.waker.Load(); w != nil {
		w.Wake()
	}
	return nil
}

// SetWaker installs a waker called after every send; nil removes it.
func (s *Sender) SetWaker(w *Waker) { s.waker.Store(w) }

// Close hangs up. The loop drains what is queued and stops with
// ErrDisconnected.
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.loop.hangOnce.Do(func() { close(s.loop.hungUp) })
}

// Waker nudges an external event source (typically a UI thread's run
// loop) to poll the queue.
type Waker struct {
	fn    func(thunk uintptr) bool
	thunk uintptr
}

// NewWaker returns a waker calling fn with thunk.
func NewWaker(fn func(thunk uintptr) bool, thunk uintptr) *Waker {
	return &Waker{fn: fn, thunk: thunk}
}

// Wake calls the wake function and returns what it reports.
func (w *Waker) Wake() bool { return w.fn(w.thunk) }
