package objmem

import "fmt"

// FormatKind is the closed set of object shapes a Spur format tag selects.
type FormatKind uint8

const (
	// ZeroSized objects have no fields (nil, true, false).
	ZeroSized FormatKind = iota
	// NonIndexable objects have named instance variables only (Point).
	NonIndexable
	// IndexableNoFields objects are pointer arrays without instance variables (Array).
	IndexableNoFields
	// IndexableWithFields objects have instance variables and a pointer array (Context).
	IndexableWithFields
	// WeakIndexable objects are weak pointer arrays (WeakArray).
	WeakIndexable
	// WeakNonIndexable objects are ephemerons.
	WeakNonIndexable
	// Forwarded objects were moved by the GC; slot 0 holds the new address.
	Forwarded
	// Indexable64 objects hold 64-bit words.
	Indexable64
	// Indexable32 objects hold 32-bit words (2 padding variants).
	Indexable32
	// Indexable16 objects hold 16-bit units (4 padding variants).
	Indexable16
	// Indexable8 objects hold bytes (8 padding variants).
	Indexable8
	// CompiledMethod objects hold literals followed by bytecodes (8 padding variants).
	CompiledMethod
	// Unsupported covers the reserved format values.
	Unsupported
)

var formatKindNames = [...]string{
	ZeroSized:           "ZeroSized",
	NonIndexable:        "NonIndexable",
	IndexableNoFields:   "IndexableNoFields",
	IndexableWithFields: "IndexableWithFields",
	WeakIndexable:       "WeakIndexable",
	WeakNonIndexable:    "WeakNonIndexable",
	Forwarded:           "Forwarded",
	Indexable64:         "Indexable64",
	Indexable32:         "Indexable32",
	Indexable16:         "Indexable16",
	Indexable8:          "Indexable8",
	CompiledMethod:      "CompiledMethod",
	Unsupported:         "Unsupported",
}

func (k FormatKind) String() string {
	if int(k) < len(formatKindNames) {
		return formatKindNames[k]
	}
	return fmt.Sprintf("FormatKind(%d)", uint8(k))
}

// Raw format tag values
const (
	formatZeroSized           uint8 = 0
	formatNonIndexable        uint8 = 1
	formatIndexableNoFields   uint8 = 2
	formatIndexableWithFields uint8 = 3
	formatWeakIndexable       uint8 = 4
	formatWeakNonIndexable    uint8 = 5
	formatForwarded           uint8 = 7
	formatIndexable64         uint8 = 9
	formatIndexable32         uint8 = 10
	formatIndexable16         uint8 = 12
	formatIndexable8          uint8 = 16
	formatCompiledMethod      uint8 = 24
)

// shiftForWord is log2 of the word size in bytes.
const shiftForWord = 3

// Format is a decoded 5-bit format tag. The kind is derived from the bits;
// for the sized variants the low bits encode how many trailing units of the
// last slot are padding.
type Format struct {
	kind FormatKind
	bits uint8
}

// FormatFromBits decodes a raw format tag.
func FormatFromBits(b uint8) Format {
	b &= 1<<formatBits - 1
	switch {
	case b == formatZeroSized:
		return Format{ZeroSized, b}
	case b == formatNonIndexable:
		return Format{NonIndexable, b}
	case b == formatIndexableNoFields:
		return Format{IndexableNoFields, b}
	case b == formatIndexableWithFields:
		return Format{IndexableWithFields, b}
	case b == formatWeakIndexable:
		return Format{WeakIndexable, b}
	case b == formatWeakNonIndexable:
		return Format{WeakNonIndexable, b}
	case b == formatForwarded:
		return Format{Forwarded, b}
	case b == formatIndexable64:
		return Format{Indexable64, b}
	case b >= 10 && b <= 11:
		return Format{Indexable32, b}
	case b >= 12 && b <= 15:
		return Format{Indexable16, b}
	case b >= 16 && b <= 23:
		return Format{Indexable8, b}
	case b >= 24 && b <= 31:
		return Format{CompiledMethod, b}
	default:
		return Format{Unsupported, b}
	}
}

// Fixed formats
var (
	FormatZeroSized           = FormatFromBits(formatZeroSized)
	FormatNonIndexable        = FormatFromBits(formatNonIndexable)
	FormatIndexableNoFields   = FormatFromBits(formatIndexableNoFields)
	FormatIndexableWithFields = FormatFromBits(formatIndexableWithFields)
	FormatWeakIndexable       = FormatFromBits(formatWeakIndexable)
	FormatWeakNonIndexable    = FormatFromBits(formatWeakNonIndexable)
	FormatForwarded           = FormatFromBits(formatForwarded)
	FormatIndexable64         = FormatFromBits(formatIndexable64)
)

// Bits returns the raw 5-bit format tag.
func (f Format) Bits() uint8 { return f.bits }

// Kind returns the shape selected by the format.
func (f Format) Kind() FormatKind { return f.kind }

// IsPointers reports whether the object's slots hold Words the GC traces.
func (f Format) IsPointers() bool {
	return f.bits <= formatWeakNonIndexable
}

// IsIndexable reports whether the object has an indexable part.
func (f Format) IsIndexable() bool {
	switch f.kind {
	case IndexableNoFields, IndexableWithFields, WeakIndexable,
		Indexable64, Indexable32, Indexable16, Indexable8, CompiledMethod:
		return true
	}
	return false
}

// IsBytes reports whether the object is an 8-bit indexable (not a method).
func (f Format) IsBytes() bool { return f.kind == Indexable8 }

// UnitSize returns the size in bytes of one indexable unit, or 8 for
// pointer formats.
func (f Format) UnitSize() int {
	switch f.kind {
	case Indexable32:
		return 4
	case Indexable16:
		return 2
	case Indexable8, CompiledMethod:
		return 1
	default:
		return 8
	}
}

// IndexableUnits returns the number of payload units for an object of this
// format with the given slot count. For the sized formats the low bits of
// the format subtract the padding units of the last slot.
func (f Format) IndexableUnits(slots int) int {
	switch f.kind {
	case ZeroSized, NonIndexable, IndexableNoFields, IndexableWithFields,
		WeakIndexable, WeakNonIndexable, Indexable64:
		return slots
	case Indexable32:
		return (slots << (shiftForWord - 2)) - int(f.bits&1)
	case Indexable16:
		return (slots << (shiftForWord - 1)) - int(f.bits&3)
	case Indexable8, CompiledMethod:
		return (slots << shiftForWord) - int(f.bits&7)
	default:
		// Forwarded and Unsupported
		return 0
	}
}

// SizedFormat returns the format and slot count for an indexable object of
// kind holding n units. Kind must be one of the sized formats or a pointer
// format, in which case n is the slot count.
func SizedFormat(kind FormatKind, n int) (Format, int) {
	switch kind {
	case Indexable32:
		slots := (n + 1) / 2
		return FormatFromBits(formatIndexable32 + uint8(slots*2-n)), slots
	case Indexable16:
		slots := (n + 3) / 4
		return FormatFromBits(formatIndexable16 + uint8(slots*4-n)), slots
	case Indexable8:
		slots := (n + 7) / 8
		return FormatFromBits(formatIndexable8 + uint8(slots*8-n)), slots
	case CompiledMethod:
		slots := (n + 7) / 8
		return FormatFromBits(formatCompiledMethod + uint8(slots*8-n)), slots
	default:
		return Format{kind: kind, bits: kindBits(kind)}, n
	}
}

func kindBits(kind FormatKind) uint8 {
	switch kind {
	case ZeroSized:
		return formatZeroSized
	case NonIndexable:
		return formatNonIndexable
	case IndexableNoFields:
		return formatIndexableNoFields
	case IndexableWithFields:
		return formatIndexableWithFields
	case WeakIndexable:
		return formatWeakIndexable
	case WeakNonIndexable:
		return formatWeakNonIndexable
	case Forwarded:
		return formatForwarded
	case Indexable64:
		return formatIndexable64
	case Indexable32:
		return formatIndexable32
	case Indexable16:
		return formatIndexable16
	case Indexable8:
		return formatIndexable8
	case CompiledMethod:
		return formatCompiledMethod
	default:
		return 6
	}
}

func (f Format) String() string {
	return fmt.Sprintf("%s(%d)", f.kind, f.bits)
}
