package objects

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/chazu/spur/objmem"
)

// Number errors
var (
	ErrNotAnInteger    = errors.New("not an integer")
	ErrNotAFloat       = errors.New("not a float")
	ErrIntegerTooLarge = errors.New("integer does not fit in 64 bits")
)

// ---------------------------------------------------------------------------
// Integers
// ---------------------------------------------------------------------------

// NewInteger boxes n as a SmallInteger when it fits, otherwise as a
// LargePositiveInteger or LargeNegativeInteger.
func NewInteger(space *objmem.Space, n int64) (objmem.Word, error) {
	if w, ok := objmem.TryFromInteger(n); ok {
		return w, nil
	}
	if n < 0 {
		// Two's complement negation is exact for MinInt64 when read unsigned.
		return newLargeInteger(space, objmem.ClassIndexLargeNegativeInteger, uint64(-n))
	}
	return newLargeInteger(space, objmem.ClassIndexLargePositiveInteger, uint64(n))
}

// NewUnsignedInteger boxes n as a SmallInteger or LargePositiveInteger.
func NewUnsignedInteger(space *objmem.Space, n uint64) (objmem.Word, error) {
	if n <= uint64(objmem.MaxSmallInteger) {
		return objmem.FromInteger(int64(n)), nil
	}
	return newLargeInteger(space, objmem.ClassIndexLargePositiveInteger, n)
}

func newLargeInteger(space *objmem.Space, classIndex uint32, magnitude uint64) (objmem.Word, error) {
	size := max((bits.Len64(magnitude)+7)/8, 1)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], magnitude)
	obj, err := space.AllocateBytes(classIndex, buf[:size])
	if err != nil {
		return 0, err
	}
	return obj.Word(), nil
}

// LargeIntegerMagnitude decodes a LargePositiveInteger or
// LargeNegativeInteger into its magnitude and sign. Magnitudes wider than
// 64 bits return ErrIntegerTooLarge.
func LargeIntegerMagnitude(space *objmem.Space, w objmem.Word) (magnitude uint64, negative bool, err error) {
	index := space.ClassIndexOf(w)
	switch index {
	case objmem.ClassIndexLargePositiveInteger:
	case objmem.ClassIndexLargeNegativeInteger:
		negative = true
	default:
		return 0, false, ErrNotAnInteger
	}
	obj, err := space.Object(w)
	if err != nil {
		return 0, false, err
	}
	data := obj.Bytes()
	for i := len(data) - 1; i >= 8; i-- {
		if data[i] != 0 {
			return 0, negative, ErrIntegerTooLarge
		}
	}
	var buf [8]byte
	copy(buf[:], data)
	return binary.LittleEndian.Uint64(buf[:]), negative, nil
}

// IsLargeInteger reports whether w is a LargePositiveInteger or a
// LargeNegativeInteger.
func IsLargeInteger(space *objmem.Space, w objmem.Word) bool {
	index := space.ClassIndexOf(w)
	return index == objmem.ClassIndexLargePositiveInteger || index == objmem.ClassIndexLargeNegativeInteger
}

// IntegerValue reads a SmallInteger or a large integer that fits in int64.
func IntegerValue(space *objmem.Space, w objmem.Word) (int64, error) {
	if n, ok := w.Integer(); ok {
		return n, nil
	}
	mag, negative, err := LargeIntegerMagnitude(space, w)
	if err != nil {
		return 0, err
	}
	switch {
	case negative && mag <= 1<<63:
		return int64(-mag), nil
	case !negative && mag <= math.MaxInt64:
		return int64(mag), nil
	}
	return 0, ErrIntegerTooLarge
}

// Unsigned64Value reads a non-negative SmallInteger or a
// LargePositiveInteger that fits in uint64.
func Unsigned64Value(space *objmem.Space, w objmem.Word) (uint64, error) {
	if n, ok := w.Integer(); ok {
		if n < 0 {
			return 0, fmt.Errorf("%w: negative value %d", ErrNotAnInteger, n)
		}
		return uint64(n), nil
	}
	mag, negative, err := LargeIntegerMagnitude(space, w)
	if err != nil {
		return 0, err
	}
	if negative && mag != 0 {
		return 0, fmt.Errorf("%w: negative large integer", ErrNotAnInteger)
	}
	return mag, nil
}

// ---------------------------------------------------------------------------
// Floats
// ---------------------------------------------------------------------------

// NewFloat returns f as a SmallFloat64 immediate when representable,
// otherwise as a BoxedFloat64 object.
func NewFloat(space *objmem.Space, f float64) (objmem.Word, error) {
	if w, ok := objmem.TryFromSmallFloat(f); ok {
		return w, nil
	}
	obj, err := space.Allocate(objmem.ClassIndexFloat, objmem.FormatIndexable64, 1)
	if err != nil {
		return 0, err
	}
	if err := obj.Uint64AtPut(0, math.Float64bits(f)); err != nil {
		return 0, err
	}
	return obj.Word(), nil
}

// IsFloat reports whether w is a SmallFloat64 or a BoxedFloat64.
func IsFloat(space *objmem.Space, w objmem.Word) bool {
	return w.IsSmallFloat() || space.ClassIndexOf(w) == objmem.ClassIndexFloat
}

// FloatValue reads a SmallFloat64 or BoxedFloat64.
func FloatValue(space *objmem.Space, w objmem.Word) (float64, error) {
	if f, ok := w.SmallFloat(); ok {
		return f, nil
	}
	if space.ClassIndexOf(w) != objmem.ClassIndexFloat {
		return 0, ErrNotAFloat
	}
	obj, err := space.Object(w)
	if err != nil {
		return 0, err
	}
	raw, err := obj.Uint64At(0)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(raw), nil
}
