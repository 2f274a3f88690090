package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Semaphore: Counting semaphore using buffered channel pattern
// ---------------------------------------------------------------------------

// DefaultSemaphoreCapacity bounds the excess signals a semaphore holds.
const DefaultSemaphoreCapacity = 1024

// ErrNoSemaphore is returned for an index with no registered semaphore.
var ErrNoSemaphore = errors.New("no semaphore at index")

// Semaphore is a counting semaphore that may be signalled from any
// goroutine. Signals beyond its capacity are coalesced.
type Semaphore struct {
	permits chan struct{}
	signals atomic.Int64
}

// NewSemaphore creates a semaphore with no excess signals.
func NewSemaphore(capacity int) *Semaphore {
	if capacity < 1 {
		capacity = DefaultSemaphoreCapacity
	}
	return &Semaphore{permits: make(chan struct{}, capacity)}
}

// Signal adds one excess signal without blocking.
func (s *Semaphore) Signal() {
	s.signals.Add(1)
	select {
	case s.permits <- struct{}{}:
	default:
		// Already at capacity
	}
}

// Wait consumes one signal, blocking until one arrives or ctx is done.
func (s *Semaphore) Wait(ctx context.Context) error {
	select {
	case <-s.permits:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryWait consumes one signal if one is available.
func (s *Semaphore) TryWait() bool {
	select {
	case <-s.permits:
		return true
	default:
		return false
	}
}

// Signals returns the total number of Signal calls.
func (s *Semaphore) Signals() int64 { return s.signals.Load() }

// Excess returns the number of signals not yet consumed.
func (s *Semaphore) Excess() int { return len(s.permits) }

// SemaphoreTable holds the semaphores an image registered as external
// objects. Index 0 is never used, so it can mean "no semaphore".
type SemaphoreTable struct {
	mu   sync.RWMutex
	sems []*Semaphore
}

// Register adds s and returns its index.
func (t *SemaphoreTable) Register(s *Semaphore) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sems = append(t.sems, s)
	return len(t.sems)
}

// At returns the semaphore at index.
func (t *SemaphoreTable) At(index int) (*Semaphore, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index < 1 || index > len(t.sems) {
		return nil, fmt.Errorf("%w %d", ErrNoSemaphore, index)
	}
	return t.sems[index-1], nil
}

// Signal signals the semaphore at index. It is safe to call from any
// goroutine.
func (t *SemaphoreTable) Signal(index int) error {
	s, err := t.At(index)
	if err != nil {
		return err
	}
	s.Signal()
	return nil
}
