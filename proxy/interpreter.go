package proxy

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/spur/objmem"
)

var log = commonlog.GetLogger("spur.proxy")

// Interpreter is what a primitive sees of the interpreter that called it.
// Stack offsets count from the top: offset 0 is the last argument and
// offset MethodArgumentCount() is the receiver.
type Interpreter interface {
	Space() *objmem.Space

	StackValue(offset int) objmem.Word
	StackObjectValue(offset int) (objmem.Object, error)
	StackIntegerValue(offset int) (int64, error)
	MethodArgumentCount() int
	MethodReceiver() objmem.Word
	MethodArgument(index int) objmem.Word

	Pop(n int)
	Push(w objmem.Word)
	PopThenPush(n int, w objmem.Word)
	// MethodReturnValue pops the receiver and arguments and answers w.
	MethodReturnValue(w objmem.Word)

	PrimitiveFail()
	PrimitiveFailFor(code int)
	Failed() bool
	FailureCode() int

	// SignalSemaphore may be called from any goroutine.
	SignalSemaphore(index int) error
}

// Machine is an in-process Interpreter over one object space. Apart from
// SignalSemaphore it must only be used from one goroutine.
type Machine struct {
	space      *objmem.Space
	stack      []objmem.Word
	argCount   int
	failure    int
	Semaphores SemaphoreTable
}

// NewMachine creates a machine with an empty stack.
func NewMachine(space *objmem.Space) *Machine {
	return &Machine{space: space}
}

// Call runs prim with receiver and args pushed as a fresh call site and
// returns what it answered. A failed primitive returns *PrimitiveFailure.
func (m *Machine) Call(prim func(), receiver objmem.Word, args ...objmem.Word) (objmem.Word, error) {
	m.stack = append(m.stack[:0], receiver)
	m.stack = append(m.stack, args...)
	m.argCount = len(args)
	m.failure = PrimNoErr

	prim()

	if m.Failed() {
		log.Debugf("primitive failed: %s", FailureName(m.failure))
		return 0, &PrimitiveFailure{Code: m.failure}
	}
	if len(m.stack) == 0 {
		return 0, fmt.Errorf("primitive left an empty stack")
	}
	return m.stack[len(m.stack)-1], nil
}

// Stack returns a copy of the stack, bottom first.
func (m *Machine) Stack() []objmem.Word {
	return append([]objmem.Word(nil), m.stack...)
}

func (m *Machine) Space() *objmem.Space { return m.space }

func (m *Machine) StackValue(offset int) objmem.Word {
	i := len(m.stack) - 1 - offset
	if i < 0 || i >= len(m.stack) {
		return 0
	}
	return m.stack[i]
}

// StackObjectValue returns the heap object at offset, failing the
// primitive with PrimErrBadArgument if there is none.
func (m *Machine) StackObjectValue(offset int) (objmem.Object, error) {
	obj, err := m.space.Object(m.StackValue(offset))
	if err != nil {
		m.PrimitiveFailFor(PrimErrBadArgument)
		return objmem.Object{}, err
	}
	return obj, nil
}

// StackIntegerValue returns the SmallInteger at offset, failing the
// primitive with PrimErrBadArgument if there is none.
func (m *Machine) StackIntegerValue(offset int) (int64, error) {
	n, ok := m.StackValue(offset).Integer()
	if !ok {
		m.PrimitiveFailFor(PrimErrBadArgument)
		return 0, fmt.Errorf("stack offset %d: %w", offset, objmem.ErrNotAnImmediate)
	}
	return n, nil
}

func (m *Machine) MethodArgumentCount() int { return m.argCount }

func (m *Machine) MethodReceiver() objmem.Word { return m.StackValue(m.argCount) }

// MethodArgument returns argument index, counting from 0 for the first.
func (m *Machine) MethodArgument(index int) objmem.Word {
	return m.StackValue(m.argCount - 1 - index)
}

func (m *Machine) Pop(n int) {
	m.stack = m.stack[:max(len(m.stack)-n, 0)]
}

func (m *Machine) Push(w objmem.Word) { m.stack = append(m.stack, w) }

func (m *Machine) PopThenPush(n int, w objmem.Word) {
	m.Pop(n)
	m.Push(w)
}

func (m *Machine) MethodReturnValue(w objmem.Word) {
	m.PopThenPush(m.argCount+1, w)
}

func (m *Machine) PrimitiveFail() { m.PrimitiveFailFor(PrimErrGenericFailure) }

// PrimitiveFailFor records the first failure code of the call.
func (m *Machine) PrimitiveFailFor(code int) {
	if m.failure == PrimNoErr {
		m.failure = code
	}
}

func (m *Machine) Failed() bool { return m.failure != PrimNoErr }

func (m *Machine) FailureCode() int { return m.failure }

func (m *Machine) SignalSemaphore(index int) error {
	return m.Semaphores.Signal(index)
}
