package marshal

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/objmem"
)

// maxUnwrapDepth bounds how many ExternalObject or ExternalEnumeration
// wrappers are peeled off one argument.
const maxUnwrapDepth = 16

// Marshaller converts words of one object space to and from Values.
//
// ExternalObjectClass instances are passed to Pointer parameters by their
// handle (slot 0); ExternalEnumerationClass instances are passed to integer
// parameters by their value (slot 0). Either class may be left zero.
type Marshaller struct {
	Space                    *objmem.Space
	ExternalObjectClass      objmem.Object
	ExternalEnumerationClass objmem.Object
}

// New returns a Marshaller using the kernel ExternalObject and
// ExternalEnumeration classes of space.
func New(space *objmem.Space) *Marshaller {
	m := &Marshaller{Space: space}
	if c, err := space.ClassNamed(objmem.ExternalObjectClassName); err == nil {
		m.ExternalObjectClass = c
	}
	if c, err := space.ClassNamed(objmem.ExternalEnumerationClassName); err == nil {
		m.ExternalEnumerationClass = c
	}
	return m
}

// Stack is the part of the interpreter's stack protocol PushResult needs.
type Stack interface {
	Pop(n int)
	PopThenPush(n int, w objmem.Word)
}

// ---------------------------------------------------------------------------
// Arguments
// ---------------------------------------------------------------------------

// Argument reads w as a value of type t.
func (m *Marshaller) Argument(w objmem.Word, t Type) (Value, error) {
	switch {
	case t == Void:
		return Value{}, fmt.Errorf("%w: %s", ErrIllegalArgumentType, t)
	case t == Bool:
		return BoolValue(w == m.Space.True()), nil
	case t.IsInteger():
		return m.integer(w, t, 0)
	case t.IsFloat():
		return m.float(w, t)
	case t == Pointer:
		addr, err := m.pointer(w, 0)
		if err != nil {
			return Value{}, err
		}
		return PointerValue(addr), nil
	}
	return Value{}, fmt.Errorf("%w: %d", ErrInvalidType, uint8(t))
}

// Arguments marshals every element of args against types.
func (m *Marshaller) Arguments(args objects.Array, types []Type) ([]Value, error) {
	if args.Len() != len(types) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrArgumentCount, args.Len(), len(types))
	}
	values := make([]Value, len(types))
	for i, t := range types {
		w, err := args.At(i)
		if err != nil {
			return nil, &ArgumentError{Index: i, Type: t, Err: err}
		}
		if values[i], err = m.Argument(w, t); err != nil {
			return nil, &ArgumentError{Index: i, Type: t, Err: err}
		}
	}
	return values, nil
}

func (m *Marshaller) integer(w objmem.Word, t Type, depth int) (Value, error) {
	if n, ok := w.Integer(); ok {
		return checked(t, n < 0, magnitude(n), strconv.FormatInt(n, 10))
	}
	if c, ok := w.Character(); ok {
		return checked(t, false, uint64(c), strconv.FormatUint(uint64(c), 10))
	}
	if w.IsImmediate() {
		return Value{}, ErrNotAnInteger
	}

	if objects.IsLargeInteger(m.Space, w) {
		mag, negative, err := objects.LargeIntegerMagnitude(m.Space, w)
		if errors.Is(err, objects.ErrIntegerTooLarge) {
			kind := Overflow
			if negative {
				kind = Underflow
			}
			return Value{}, &RangeError{Type: t, Kind: kind, Value: "large integer"}
		}
		if err != nil {
			return Value{}, err
		}
		text := strconv.FormatUint(mag, 10)
		if negative {
			text = "-" + text
		}
		return checked(t, negative, mag, text)
	}

	if depth < maxUnwrapDepth && m.isKindOf(w, m.ExternalEnumerationClass) {
		inner, err := m.slot0(w)
		if err != nil {
			return Value{}, err
		}
		return m.integer(inner, t, depth+1)
	}
	return Value{}, ErrNotAnInteger
}

func magnitude(n int64) uint64 {
	if n < 0 {
		return uint64(-n)
	}
	return uint64(n)
}

// checked range-checks a sign and magnitude against t.
func checked(t Type, negative bool, mag uint64, text string) (Value, error) {
	lo, hi := t.Range()
	if negative {
		// |lo| computed without overflowing int64
		if mag > uint64(-(lo+1))+1 {
			return Value{}, &RangeError{Type: t, Kind: Underflow, Value: text}
		}
		return UintValue(t, -mag), nil
	}
	if mag > hi {
		return Value{}, &RangeError{Type: t, Kind: Overflow, Value: text}
	}
	return UintValue(t, mag), nil
}

func (m *Marshaller) float(w objmem.Word, t Type) (Value, error) {
	var f float64
	if n, ok := w.Integer(); ok {
		f = float64(n)
	} else if objects.IsFloat(m.Space, w) {
		v, err := objects.FloatValue(m.Space, w)
		if err != nil {
			return Value{}, err
		}
		f = v
	} else {
		return Value{}, ErrNotAFloat
	}

	if t == F32 && !math.IsInf(f, 0) && !math.IsNaN(f) {
		switch {
		case f > math.MaxFloat32:
			return Value{}, &RangeError{Type: t, Kind: Overflow, Value: strconv.FormatFloat(f, 'g', -1, 64)}
		case f < -math.MaxFloat32:
			return Value{}, &RangeError{Type: t, Kind: Underflow, Value: strconv.FormatFloat(f, 'g', -1, 64)}
		}
	}
	return FloatValue(t, f), nil
}

func (m *Marshaller) pointer(w objmem.Word, depth int) (uint64, error) {
	if m.Space.IsNil(w) {
		return 0, nil
	}
	if w.IsImmediate() {
		return 0, ErrNotAPointer
	}
	obj, err := m.Space.Object(w)
	if err != nil {
		return 0, err
	}
	if objects.IsExternalAddress(m.Space, w) {
		ea, err := objects.AsExternalAddress(m.Space, w)
		if err != nil {
			return 0, err
		}
		return ea.Address(), nil
	}
	if depth < maxUnwrapDepth && m.isKindOf(w, m.ExternalObjectClass) {
		handle, err := m.slot0(w)
		if err != nil {
			return 0, err
		}
		return m.pointer(handle, depth+1)
	}
	return obj.FirstFieldAddress(), nil
}

func (m *Marshaller) isKindOf(w objmem.Word, class objmem.Object) bool {
	return class.IsValid() && m.Space.IsKindOf(w, class)
}

func (m *Marshaller) slot0(w objmem.Word) (objmem.Word, error) {
	obj, err := m.Space.Object(w)
	if err != nil {
		return 0, err
	}
	return obj.FieldAt(0)
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// Result boxes a native result: void answers nil, integers become
// SmallIntegers or large integers, floats become SmallFloat64 or
// BoxedFloat64 and pointers become new ExternalAddresses.
func (m *Marshaller) Result(v Value) (objmem.Word, error) {
	t := v.Type()
	switch {
	case t == Void:
		return m.Space.Nil(), nil
	case t == Bool:
		return m.Space.Bool(v.Bool()), nil
	case t.IsInteger() && t.Signed():
		return objects.NewInteger(m.Space, v.Int64())
	case t.IsInteger():
		return objects.NewUnsignedInteger(m.Space, v.Uint64())
	case t.IsFloat():
		return objects.NewFloat(m.Space, v.Float64())
	case t == Pointer:
		ea, err := objects.NewExternalAddress(m.Space, v.Pointer())
		if err != nil {
			return 0, err
		}
		return ea.Word(), nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidType, uint8(t))
}

// PushResult boxes v and replaces the top popCount stack entries with it.
// A void result pops popCount-1 entries so the receiver is left as the
// answer.
func (m *Marshaller) PushResult(stack Stack, v Value, popCount int) error {
	if v.Type() == Void {
		if popCount > 1 {
			stack.Pop(popCount - 1)
		}
		return nil
	}
	w, err := m.Result(v)
	if err != nil {
		return err
	}
	stack.PopThenPush(popCount, w)
	return nil
}
