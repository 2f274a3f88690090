package objmem

import (
	"math"
	"math/bits"
)

// Word is a raw 64-bit Spur object pointer.
//
// The low 3 bits are the tag:
//   - 000: pointer to a heap object (word-aligned address)
//   - 001: SmallInteger, 61-bit signed payload
//   - 010: Character, code point payload
//   - 100: SmallFloat64, rotated IEEE 754 double with a reduced exponent
//
// A Word is only ever turned into memory access by Space, and only when its
// tag says it is a heap pointer.
type Word int64

// Tagging constants
const (
	// TagBits is the width of the immediate tag.
	TagBits = 3

	tagMask Word = 0x7

	SmallIntegerTag Word = 1
	CharacterTag    Word = 2
	SmallFloatTag   Word = 4
)

// SmallInteger range (61-bit signed)
const (
	MaxSmallInteger int64 = 1<<60 - 1
	MinSmallInteger int64 = -(1 << 60)

	// Sign bit of the 61-bit payload, and the bits to set when extending it.
	intSignBit    uint64 = 1 << 60
	intSignExtend uint64 = 0xE000000000000000
)

// SmallFloat64 encoding constants
const (
	smallFloatExponentOffset uint64 = 896
	smallFloatMantissaBits          = 52
)

// MaxCharacter is the largest code point a Character immediate holds.
const MaxCharacter = 0x3FFFFFFF

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsImmediate reports whether w encodes a value directly instead of
// pointing at a heap object. Any non-zero tag is an immediate.
func IsImmediate(w Word) bool {
	return w&tagMask != 0
}

// IsImmediate reports whether w is an immediate.
func (w Word) IsImmediate() bool {
	return IsImmediate(w)
}

// IsPointer reports whether w is a heap object pointer.
func (w Word) IsPointer() bool {
	return w&tagMask == 0
}

// IsSmallInteger reports whether w is a SmallInteger immediate.
func (w Word) IsSmallInteger() bool {
	return w&SmallIntegerTag != 0
}

// IsCharacter reports whether w is a Character immediate.
func (w Word) IsCharacter() bool {
	return w&tagMask == CharacterTag
}

// IsSmallFloat reports whether w is a SmallFloat64 immediate.
func (w Word) IsSmallFloat() bool {
	return w&tagMask == SmallFloatTag
}

// Tag returns the low tag bits of w.
func (w Word) Tag() Word {
	return w & tagMask
}

// ---------------------------------------------------------------------------
// SmallInteger
// ---------------------------------------------------------------------------

// Integer decodes w as a SmallInteger. The second result is false when w is
// not a SmallInteger.
func (w Word) Integer() (int64, bool) {
	if !w.IsSmallInteger() {
		return 0, false
	}
	payload := uint64(w) >> TagBits

	// Sign extend from 61 bits to 64 bits
	if payload&intSignBit != 0 {
		payload |= intSignExtend
	}
	return int64(payload), true
}

// MustInteger decodes w as a SmallInteger.
// Panics if w is not a SmallInteger.
func (w Word) MustInteger() int64 {
	n, ok := w.Integer()
	if !ok {
		panic("Word.MustInteger: not a small integer")
	}
	return n
}

// FromInteger encodes n as a SmallInteger.
// Panics if n is outside the SmallInteger range.
func FromInteger(n int64) Word {
	w, ok := TryFromInteger(n)
	if !ok {
		panic("FromInteger: value out of range")
	}
	return w
}

// TryFromInteger encodes n as a SmallInteger, returning false if out of range.
func TryFromInteger(n int64) (Word, bool) {
	if n > MaxSmallInteger || n < MinSmallInteger {
		return 0, false
	}
	return Word(uint64(n)<<TagBits | uint64(SmallIntegerTag)), true
}

// IsSmallIntegerValue reports whether n fits in a SmallInteger.
func IsSmallIntegerValue(n int64) bool {
	return n >= MinSmallInteger && n <= MaxSmallInteger
}

// ---------------------------------------------------------------------------
// Character
// ---------------------------------------------------------------------------

// Character decodes w as a Character code point.
func (w Word) Character() (rune, bool) {
	if !w.IsCharacter() {
		return 0, false
	}
	return rune(uint64(w) >> TagBits), true
}

// FromCharacter encodes a code point as a Character immediate.
func FromCharacter(r rune) Word {
	return Word(uint64(uint32(r)&MaxCharacter)<<TagBits | uint64(CharacterTag))
}

// ---------------------------------------------------------------------------
// SmallFloat64
// ---------------------------------------------------------------------------

// SmallFloat decodes w as a SmallFloat64.
func (w Word) SmallFloat() (float64, bool) {
	if !w.IsSmallFloat() {
		return 0, false
	}
	rot := uint64(w) >> TagBits
	if rot > 1 {
		rot += smallFloatExponentOffset << (smallFloatMantissaBits + 1)
	}
	return math.Float64frombits(bits.RotateLeft64(rot, -1)), true
}

// IsSmallFloatValue reports whether f can be encoded as a SmallFloat64:
// zero, or a finite value whose exponent fits the 8-bit reduced range.
func IsSmallFloatValue(f float64) bool {
	raw := math.Float64bits(f)
	exp := (raw >> smallFloatMantissaBits) & 0x7FF
	if raw<<1 == 0 {
		return true
	}
	return exp > smallFloatExponentOffset && exp < smallFloatExponentOffset+256
}

// TryFromSmallFloat encodes f as a SmallFloat64 immediate, returning false
// if its exponent is out of range.
func TryFromSmallFloat(f float64) (Word, bool) {
	if !IsSmallFloatValue(f) {
		return 0, false
	}
	rot := bits.RotateLeft64(math.Float64bits(f), 1)
	if rot > 1 {
		rot -= smallFloatExponentOffset << (smallFloatMantissaBits + 1)
	}
	return Word(rot<<TagBits | uint64(SmallFloatTag)), true
}
