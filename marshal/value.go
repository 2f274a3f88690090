package marshal

import (
	"fmt"
	"math"
)

// Value is one marshalled argument or result: a type and its raw bits,
// truncated to the type's width.
type Value struct {
	typ  Type
	bits uint64
}

// VoidValue is the result of a function returning nothing.
func VoidValue() Value { return Value{typ: Void} }

// BoolValue makes a Bool value.
func BoolValue(b bool) Value {
	if b {
		return Value{typ: Bool, bits: 1}
	}
	return Value{typ: Bool}
}

// IntValue makes an integer value of type t, truncating n to t's width.
func IntValue(t Type, n int64) Value {
	return Value{typ: t, bits: uint64(n) & t.mask()}
}

// UintValue makes an integer value of type t, truncating n to t's width.
func UintValue(t Type, n uint64) Value {
	return Value{typ: t, bits: n & t.mask()}
}

// FloatValue makes an F32 or F64 value.
func FloatValue(t Type, f float64) Value {
	if t == F32 {
		return Value{typ: F32, bits: uint64(math.Float32bits(float32(f)))}
	}
	return Value{typ: F64, bits: math.Float64bits(f)}
}

// PointerValue makes a Pointer value.
func PointerValue(addr uint64) Value { return Value{typ: Pointer, bits: addr} }

// RawValue rebuilds a value from bits produced by a native call.
func RawValue(t Type, bits uint64) Value { return Value{typ: t, bits: bits & t.mask()} }

func (v Value) Type() Type { return v.typ }

// Bits returns the raw bits, zero-extended to 64.
func (v Value) Bits() uint64 { return v.bits }

func (v Value) Bool() bool { return v.bits&0xFF != 0 }

// Int64 returns an integer value sign-extended when its type is signed.
func (v Value) Int64() int64 {
	if v.typ.Signed() {
		shift := uint(64 - v.typ.Size()*8)
		return int64(v.bits<<shift) >> shift
	}
	return int64(v.bits)
}

func (v Value) Uint64() uint64 { return v.bits }

// Float64 returns a float value, widening F32.
func (v Value) Float64() float64 {
	if v.typ == F32 {
		return float64(math.Float32frombits(uint32(v.bits)))
	}
	return math.Float64frombits(v.bits)
}

func (v Value) Pointer() uint64 { return v.bits }

func (v Value) String() string {
	switch {
	case v.typ == Void:
		return "void"
	case v.typ == Bool:
		return fmt.Sprintf("bool(%t)", v.Bool())
	case v.typ.IsFloat():
		return fmt.Sprintf("%s(%g)", v.typ, v.Float64())
	case v.typ == Pointer:
		return fmt.Sprintf("pointer(%#x)", v.bits)
	case v.typ.Signed():
		return fmt.Sprintf("%s(%d)", v.typ, v.Int64())
	}
	return fmt.Sprintf("%s(%d)", v.typ, v.bits)
}
