package objmem

import "fmt"

// Header is the 64-bit Spur object header that precedes every object's
// payload.
//
// Layout, from the least significant bit:
//
//	| 22: classIndex | 1: reserved | 1: isImmutable | 5: format |
//	| 1: isRemembered | 1: isPinned | 1: isGrey | 22: identityHash |
//	| 1: reserved | 1: isMarked | 8: numSlots |
//
// Every field has a getter and a With setter returning a new header; the
// GC bits are opaque here but always round-trip unchanged.
type Header uint64

// Field positions and widths
const (
	classIndexShift   = 0
	classIndexBits    = 22
	immutableShift    = 23
	formatShift       = 24
	formatBits        = 5
	rememberedShift   = 29
	pinnedShift       = 30
	greyShift         = 31
	identityHashShift = 32
	identityHashBits  = 22
	markedShift       = 55
	numSlotsShift     = 56
	numSlotsBits      = 8
)

// Limits of the header fields
const (
	MaxClassIndex   = 1<<classIndexBits - 1
	MaxIdentityHash = 1<<identityHashBits - 1

	// OverflowSlots in the numSlots field means the real slot count lives
	// in the word before the header.
	OverflowSlots = 1<<numSlotsBits - 1

	// overflowCountMask selects the 56-bit slot count of an overflow word.
	overflowCountMask uint64 = 0x00FFFFFFFFFFFFFF

	// MaxSlots is the largest slot count an overflow word can carry.
	MaxSlots = int64(overflowCountMask)
)

func (h Header) field(shift, width uint) uint64 {
	return (uint64(h) >> shift) & (1<<width - 1)
}

func (h Header) withField(shift, width uint, v uint64) Header {
	mask := uint64(1<<width-1) << shift
	return Header((uint64(h) &^ mask) | ((v << shift) & mask))
}

func (h Header) flag(shift uint) bool {
	return h.field(shift, 1) != 0
}

func (h Header) withFlag(shift uint, on bool) Header {
	if on {
		return h.withField(shift, 1, 1)
	}
	return h.withField(shift, 1, 0)
}

// NewHeader builds a header with the given class index, format and slot
// count; all flags and the identity hash are zero. Slot counts of 255 and
// above are stored as OverflowSlots.
func NewHeader(classIndex uint32, format Format, numSlots int) Header {
	var h Header
	h = h.WithClassIndex(classIndex)
	h = h.WithFormat(format)
	if numSlots >= OverflowSlots {
		h = h.WithNumSlots(OverflowSlots)
	} else {
		h = h.WithNumSlots(uint8(numSlots))
	}
	return h
}

// ClassIndex returns the index of the object's class in the class table.
func (h Header) ClassIndex() uint32 {
	return uint32(h.field(classIndexShift, classIndexBits))
}

// WithClassIndex returns h with the class index replaced.
func (h Header) WithClassIndex(index uint32) Header {
	return h.withField(classIndexShift, classIndexBits, uint64(index))
}

// IsImmutable reports the immutability flag.
func (h Header) IsImmutable() bool { return h.flag(immutableShift) }

// WithImmutable returns h with the immutability flag set to on.
func (h Header) WithImmutable(on bool) Header { return h.withFlag(immutableShift, on) }

// Format returns the decoded object format.
func (h Header) Format() Format {
	return FormatFromBits(uint8(h.field(formatShift, formatBits)))
}

// WithFormat returns h with the format replaced.
func (h Header) WithFormat(f Format) Header {
	return h.withField(formatShift, formatBits, uint64(f.Bits()))
}

// IsRemembered reports the remembered-set flag.
func (h Header) IsRemembered() bool { return h.flag(rememberedShift) }

// WithRemembered returns h with the remembered flag set to on.
func (h Header) WithRemembered(on bool) Header { return h.withFlag(rememberedShift, on) }

// IsPinned reports whether the object must not be moved by the GC.
func (h Header) IsPinned() bool { return h.flag(pinnedShift) }

// WithPinned returns h with the pinned flag set to on.
func (h Header) WithPinned(on bool) Header { return h.withFlag(pinnedShift, on) }

// IsGrey reports the GC grey flag.
func (h Header) IsGrey() bool { return h.flag(greyShift) }

// WithGrey returns h with the grey flag set to on.
func (h Header) WithGrey(on bool) Header { return h.withFlag(greyShift, on) }

// IdentityHash returns the 22-bit identity hash. Zero means not yet assigned.
func (h Header) IdentityHash() uint32 {
	return uint32(h.field(identityHashShift, identityHashBits))
}

// WithIdentityHash returns h with the identity hash replaced.
func (h Header) WithIdentityHash(hash uint32) Header {
	return h.withField(identityHashShift, identityHashBits, uint64(hash))
}

// IsMarked reports the GC mark flag.
func (h Header) IsMarked() bool { return h.flag(markedShift) }

// WithMarked returns h with the mark flag set to on.
func (h Header) WithMarked(on bool) Header { return h.withFlag(markedShift, on) }

// NumSlots returns the inline slot count. OverflowSlots means the real count
// is stored out of line.
func (h Header) NumSlots() uint8 {
	return uint8(h.field(numSlotsShift, numSlotsBits))
}

// WithNumSlots returns h with the inline slot count replaced.
func (h Header) WithNumSlots(n uint8) Header {
	return h.withField(numSlotsShift, numSlotsBits, uint64(n))
}

// HasOverflowSlots reports whether the slot count lives in the preceding word.
func (h Header) HasOverflowSlots() bool {
	return h.NumSlots() == OverflowSlots
}

func (h Header) String() string {
	return fmt.Sprintf("Header{class: %d, format: %v, slots: %d, hash: %d, immutable: %t, pinned: %t}",
		h.ClassIndex(), h.Format(), h.NumSlots(), h.IdentityHash(), h.IsImmutable(), h.IsPinned())
}
