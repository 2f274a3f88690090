package marshal

import (
	"fmt"
	"math"
	"math/bits"
)

// Type is a native argument or result type. The numbering is shared with
// the image: a BareFFIType object stores one of these values.
type Type uint8

const (
	Void Type = iota
	Bool
	U8
	I8
	U16
	I16
	U32
	I32
	U64
	I64
	USize
	ISize
	SChar
	UChar
	Short
	UShort
	Int
	UInt
	Long
	ULong
	LongLong
	ULongLong
	F32
	F64
	Pointer

	numTypes
)

var typeNames = [...]string{
	Void:      "void",
	Bool:      "bool",
	U8:        "u8",
	I8:        "i8",
	U16:       "u16",
	I16:       "i16",
	U32:       "u32",
	I32:       "i32",
	U64:       "u64",
	I64:       "i64",
	USize:     "usize",
	ISize:     "isize",
	SChar:     "schar",
	UChar:     "uchar",
	Short:     "short",
	UShort:    "ushort",
	Int:       "int",
	UInt:      "uint",
	Long:      "long",
	ULong:     "ulong",
	LongLong:  "longlong",
	ULongLong: "ulonglong",
	F32:       "f32",
	F64:       "f64",
	Pointer:   "pointer",
}

// wordBytes is the size of a pointer, size_t and C long on the supported
// (LP64) platforms.
const wordBytes = bits.UintSize / 8

// TypeFromValue validates a type number read from the image.
func TypeFromValue(n int64) (Type, error) {
	if n < 0 || n >= int64(numTypes) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidType, n)
	}
	return Type(n), nil
}

// ParseType looks a type up by its lower-case name.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return Type(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidType, name)
}

func (t Type) String() string {
	if t < numTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// IsValid reports whether t is one of the defined types.
func (t Type) IsValid() bool { return t < numTypes }

// Size returns the byte size of a value of type t. Bool travels as one
// byte.
func (t Type) Size() int {
	switch t {
	case Void:
		return 0
	case Bool, U8, I8, SChar, UChar:
		return 1
	case U16, I16, Short, UShort:
		return 2
	case U32, I32, Int, UInt, F32:
		return 4
	case U64, I64, LongLong, ULongLong, F64:
		return 8
	case USize, ISize, Long, ULong, Pointer:
		return wordBytes
	}
	return 0
}

// Signed reports whether t is a signed integer type.
func (t Type) Signed() bool {
	switch t {
	case I8, I16, I32, I64, ISize, SChar, Short, Int, Long, LongLong:
		return true
	}
	return false
}

// IsInteger reports whether t is one of the integer types.
func (t Type) IsInteger() bool {
	return t >= U8 && t <= ULongLong
}

// IsFloat reports whether t is F32 or F64.
func (t Type) IsFloat() bool { return t == F32 || t == F64 }

// Range returns the smallest and largest value an integer type holds.
// Non-integer types return 0, 0.
func (t Type) Range() (lo int64, hi uint64) {
	if !t.IsInteger() {
		return 0, 0
	}
	width := uint(t.Size() * 8)
	if t.Signed() {
		return -1 << (width - 1), 1<<(width-1) - 1
	}
	if width == 64 {
		return 0, math.MaxUint64
	}
	return 0, 1<<width - 1
}

// mask keeps the low Size bytes of a raw value.
func (t Type) mask() uint64 {
	if n := t.Size(); n > 0 && n < 8 {
		return 1<<(uint(n)*8) - 1
	}
	return math.MaxUint64
}
