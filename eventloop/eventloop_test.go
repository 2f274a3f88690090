package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type jobFunc func() error

func (f jobFunc) Execute() error { return f() }

type recorder struct {
	mu    sync.Mutex
	order []int
}

func (r *recorder) job(i int) Job {
	return jobFunc(func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.order = append(r.order, i)
		return nil
	})
}

func (r *recorder) seen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.order...)
}

func TestRunPreservesOrder(t *testing.T) {
	loop, sender := New(8)
	rec := &recorder{}

	var g errgroup.Group
	g.Go(func() error { return loop.Run(context.Background()) })

	want := make([]int, 100)
	for i := range want {
		want[i] = i
		require.NoError(t, sender.Send(Call(rec.job(i))))
	}
	require.NoError(t, sender.Send(Terminate()))
	require.NoError(t, g.Wait())
	require.Equal(t, want, rec.seen())
}

func TestTerminateStopsBeforeLaterCalls(t *testing.T) {
	loop, sender := New(8)
	rec := &recorder{}

	require.NoError(t, sender.Send(Call(rec.job(1))))
	require.NoError(t, sender.Send(WakeUp()))
	require.NoError(t, sender.Send(Terminate()))
	require.NoError(t, sender.Send(Call(rec.job(2))))

	require.NoError(t, loop.Run(context.Background()))
	require.Equal(t, []int{1}, rec.seen())

	require.ErrorIs(t, sender.Send(Call(rec.job(3))), ErrDisconnected)
	<-loop.Exited()
}

func TestTryReceive(t *testing.T) {
	loop, sender := New(8)
	rec := &recorder{}

	terminated, err := loop.TryReceive()
	require.NoError(t, err)
	require.False(t, terminated)

	require.NoError(t, sender.Send(Call(rec.job(1))))
	require.NoError(t, sender.Send(Call(rec.job(2))))
	terminated, err = loop.TryReceive()
	require.NoError(t, err)
	require.False(t, terminated)
	require.Equal(t, []int{1, 2}, rec.seen())

	require.NoError(t, sender.Send(Terminate()))
	require.NoError(t, sender.Send(Call(rec.job(3))))
	terminated, err = loop.TryReceive()
	require.NoError(t, err)
	require.True(t, terminated)
	require.Equal(t, []int{1, 2}, rec.seen())
}

func TestHangUpDrainsThenDisconnects(t *testing.T) {
	loop, sender := New(8)
	rec := &recorder{}

	require.NoError(t, sender.Send(Call(rec.job(1))))
	sender.Close()
	require.ErrorIs(t, sender.Send(Call(rec.job(2))), ErrDisconnected)

	require.ErrorIs(t, loop.Run(context.Background()), ErrDisconnected)
	require.Equal(t, []int{1}, rec.seen())

	_, err := loop.TryReceive()
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestRunHonoursContext(t *testing.T) {
	loop, _ := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, loop.Run(ctx), context.Canceled)
}

func TestPanickingJobDoesNotStopLoop(t *testing.T) {
	loop, sender := New(8)
	rec := &recorder{}

	require.NoError(t, sender.Send(Call(jobFunc(func() error { panic("native crash") }))))
	require.NoError(t, sender.Send(Call(jobFunc(func() error { return errors.New("failed") }))))
	require.NoError(t, sender.Send(Call(rec.job(1))))
	require.NoError(t, sender.Send(Terminate()))

	require.NoError(t, loop.Run(context.Background()))
	require.Equal(t, []int{1}, rec.seen())
}

func TestWakerCalledPerSend(t *testing.T) {
	_, sender := New(8)
	var wakes atomic.Int32
	var thunks []uintptr
	sender.SetWaker(NewWaker(func(thunk uintptr) bool {
		wakes.Add(1)
		thunks = append(thunks, thunk)
		return true
	}, 42))

	require.NoError(t, sender.Send(WakeUp()))
	require.NoError(t, sender.Send(WakeUp()))
	require.Equal(t, int32(2), wakes.Load())
	require.Equal(t, []uintptr{42, 42}, thunks)

	sender.SetWaker(nil)
	require.NoError(t, sender.Send(WakeUp()))
	require.Equal(t, int32(2), wakes.Load())
}

func TestWorkerBridge(t *testing.T) {
	b := NewBridge(Options{Mode: Worker, Capacity: 4, LockOSThread: true})
	require.NoError(t, b.Start(context.Background()))
	require.Error(t, b.Start(context.Background()))

	rec := &recorder{}
	for i := 0; i < 20; i++ {
		require.NoError(t, b.Submit(rec.job(i)))
	}
	require.NoError(t, b.Stop(5*time.Second))
	require.Len(t, rec.seen(), 20)

	require.ErrorIs(t, b.Submit(rec.job(99)), ErrDisconnected)
}

func TestInlineBridgeExecutesOnSubmit(t *testing.T) {
	b := NewBridge(Options{Mode: Inline})
	require.NoError(t, b.Start(context.Background()))

	rec := &recorder{}
	require.NoError(t, b.Submit(rec.job(7)))
	require.Equal(t, []int{7}, rec.seen())

	require.NoError(t, b.Stop(time.Second))
	require.ErrorIs(t, b.Submit(rec.job(8)), ErrDisconnected)
}

func TestStopReportsJoinFailure(t *testing.T) {
	b := NewBridge(Options{Mode: Worker})
	require.NoError(t, b.Start(context.Background()))

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, b.Submit(jobFunc(func() error {
		close(started)
		<-release
		return nil
	})))
	<-started

	require.ErrorIs(t, b.Stop(20*time.Millisecond), ErrJoin)
	close(release)
}

func TestStopWithFullQueueReportsJoinFailure(t *testing.T) {
	b := NewBridge(Options{Mode: Worker, Capacity: 1})
	require.NoError(t, b.Start(context.Background()))

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	require.NoError(t, b.Submit(jobFunc(func() error {
		close(started)
		<-release
		return nil
	})))
	<-started
	require.NoError(t, b.Submit(jobFunc(func() error { return nil })))

	stopped := make(chan error, 1)
	go func() { stopped <- b.Stop(50 * time.Millisecond) }()
	select {
	case err := <-stopped:
		require.ErrorIs(t, err, ErrJoin)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked past its timeout")
	}
}

func TestSendContextGivesUpOnFullQueue(t *testing.T) {
	_, sender := New(1)
	require.NoError(t, sender.Send(WakeUp()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sender.SendContext(ctx, WakeUp()), context.DeadlineExceeded)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Inline")
	require.NoError(t, err)
	require.Equal(t, Inline, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	require.Equal(t, Worker, m)

	_, err = ParseMode("main")
	require.Error(t, err)
}
