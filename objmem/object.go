package objmem

import (
	"encoding/binary"
	"fmt"
)

// forwardedClassIndexPun marks forwarders. Any class index at or below it is
// a pun rather than a real class.
const forwardedClassIndexPun = 8

// Object is a validated, non-owning view of a heap object: its header
// address plus the Space it lives in. It is a small value and is meant to
// be passed by value and rebuilt from a Word whenever the GC may have run.
type Object struct {
	space *Space
	addr  uint64
}

// Word returns the tagged pointer for o.
func (o Object) Word() Word { return Word(o.addr) }

// Address returns the address of o's header.
func (o Object) Address() uint64 { return o.addr }

// Space returns the region o lives in.
func (o Object) Space() *Space { return o.space }

// IsValid reports whether o refers to anything at all.
func (o Object) IsValid() bool { return o.space != nil }

// Header returns o's header word.
func (o Object) Header() Header {
	return Header(o.space.load64(o.addr))
}

// SetHeader replaces o's header word.
func (o Object) SetHeader(h Header) {
	o.space.store64(o.addr, uint64(h))
}

// ClassIndex returns the class index from the header.
func (o Object) ClassIndex() uint32 { return o.Header().ClassIndex() }

// Format returns the format from the header.
func (o Object) Format() Format { return o.Header().Format() }

// IsForwarded reports whether o has been replaced by a forwarder.
func (o Object) IsForwarded() bool {
	return o.ClassIndex() <= forwardedClassIndexPun
}

// NumSlots returns the number of 64-bit slots in o's body. When the header
// holds the overflow sentinel the count is read from the preceding word.
func (o Object) NumSlots() int {
	h := o.Header()
	if !h.HasOverflowSlots() {
		return int(h.NumSlots())
	}
	return int(o.space.load64(o.addr-WordSize) & overflowCountMask)
}

// IndexableUnits returns the number of payload units, per o's format. A
// malformed header whose padding exceeds its payload counts as empty.
func (o Object) IndexableUnits() int {
	return max(o.Format().IndexableUnits(o.NumSlots()), 0)
}

// FirstFieldAddress returns the address of o's first payload byte. This is
// what a native function receives when o is passed as a pointer.
func (o Object) FirstFieldAddress() uint64 {
	return o.addr + WordSize
}

func (o Object) fieldAddress(i int) uint64 {
	return o.addr + WordSize + uint64(i)*WordSize
}

// FieldAt returns slot i.
func (o Object) FieldAt(i int) (Word, error) {
	if n := o.NumSlots(); i < 0 || i >= n {
		return 0, &BoundsError{Index: i, Len: n}
	}
	return Word(o.space.load64(o.fieldAddress(i))), nil
}

// FieldAtPut stores w into slot i.
func (o Object) FieldAtPut(i int, w Word) error {
	if n := o.NumSlots(); i < 0 || i >= n {
		return &BoundsError{Index: i, Len: n}
	}
	if o.IsImmutable() {
		return ErrImmutable
	}
	o.space.store64(o.fieldAddress(i), uint64(w))
	return nil
}

// MustFieldAt returns slot i and panics if it is out of bounds. For code
// that has already checked the object's shape.
func (o Object) MustFieldAt(i int) Word {
	w, err := o.FieldAt(i)
	if err != nil {
		panic(fmt.Sprintf("Object.MustFieldAt: %v", err))
	}
	return w
}

// FieldsAtPut stores words into consecutive slots starting at first.
func (o Object) FieldsAtPut(first int, words ...Word) error {
	for i, w := range words {
		if err := o.FieldAtPut(first+i, w); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Non-pointer payloads
// ---------------------------------------------------------------------------

// Bytes returns the indexable payload of a sized object as a slice aliasing
// object memory. Its length is IndexableUnits times the unit size.
func (o Object) Bytes() []byte {
	return o.space.slice(o.FirstFieldAddress(), o.IndexableUnits()*o.Format().UnitSize())
}

func (o Object) unitBounds(i, size int) error {
	f := o.Format()
	if f.UnitSize() != size || !f.IsIndexable() {
		return &TypeError{Want: fmt.Sprintf("%d-bit indexable", size*8), Got: f}
	}
	if n := o.IndexableUnits(); i < 0 || i >= n {
		return &BoundsError{Index: i, Len: n}
	}
	return nil
}

// ByteAt returns byte i of an 8-bit object.
func (o Object) ByteAt(i int) (byte, error) {
	if err := o.unitBounds(i, 1); err != nil {
		return 0, err
	}
	return o.space.slice(o.FirstFieldAddress()+uint64(i), 1)[0], nil
}

// ByteAtPut stores byte i of an 8-bit object.
func (o Object) ByteAtPut(i int, b byte) error {
	if err := o.unitBounds(i, 1); err != nil {
		return err
	}
	if o.IsImmutable() {
		return ErrImmutable
	}
	o.space.slice(o.FirstFieldAddress()+uint64(i), 1)[0] = b
	return nil
}

// Uint16At returns unit i of a 16-bit object.
func (o Object) Uint16At(i int) (uint16, error) {
	if err := o.unitBounds(i, 2); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint16(o.space.slice(o.FirstFieldAddress()+uint64(i)*2, 2)), nil
}

// Uint32At returns unit i of a 32-bit object.
func (o Object) Uint32At(i int) (uint32, error) {
	if err := o.unitBounds(i, 4); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(o.space.slice(o.FirstFieldAddress()+uint64(i)*4, 4)), nil
}

// Uint32AtPut stores unit i of a 32-bit object.
func (o Object) Uint32AtPut(i int, v uint32) error {
	if err := o.unitBounds(i, 4); err != nil {
		return err
	}
	if o.IsImmutable() {
		return ErrImmutable
	}
	binary.NativeEndian.PutUint32(o.space.slice(o.FirstFieldAddress()+uint64(i)*4, 4), v)
	return nil
}

// Uint64At returns unit i of a 64-bit object.
func (o Object) Uint64At(i int) (uint64, error) {
	if o.Format().Kind() != Indexable64 {
		return 0, &TypeError{Want: "64-bit indexable", Got: o.Format()}
	}
	if n := o.NumSlots(); i < 0 || i >= n {
		return 0, &BoundsError{Index: i, Len: n}
	}
	return o.space.load64(o.fieldAddress(i)), nil
}

// Uint64AtPut stores unit i of a 64-bit object.
func (o Object) Uint64AtPut(i int, v uint64) error {
	if o.Format().Kind() != Indexable64 {
		return &TypeError{Want: "64-bit indexable", Got: o.Format()}
	}
	if n := o.NumSlots(); i < 0 || i >= n {
		return &BoundsError{Index: i, Len: n}
	}
	if o.IsImmutable() {
		return ErrImmutable
	}
	o.space.store64(o.fieldAddress(i), v)
	return nil
}

// ---------------------------------------------------------------------------
// Flags and identity
// ---------------------------------------------------------------------------

// IsImmutable reports whether stores into o are refused.
func (o Object) IsImmutable() bool { return o.Header().IsImmutable() }

// SetImmutable sets or clears o's immutability flag.
func (o Object) SetImmutable(on bool) { o.SetHeader(o.Header().WithImmutable(on)) }

// IsPinned reports whether o must stay at its address.
func (o Object) IsPinned() bool { return o.Header().IsPinned() }

// SetPinned sets or clears o's pinned flag.
func (o Object) SetPinned(on bool) { o.SetHeader(o.Header().WithPinned(on)) }

// IdentityHash returns o's identity hash, assigning one on first use.
func (o Object) IdentityHash() uint32 {
	h := o.Header()
	if hash := h.IdentityHash(); hash != 0 {
		return hash
	}
	hash := o.space.nextHash()
	o.SetHeader(h.WithIdentityHash(hash))
	return hash
}

// IsIdentical reports whether o and other are the same object.
func (o Object) IsIdentical(other Object) bool {
	return o.space == other.space && o.addr == other.addr
}

// Class returns o's class object from the class table.
func (o Object) Class() (Object, error) {
	return o.space.ClassAt(o.ClassIndex())
}

func (o Object) String() string {
	if o.space == nil {
		return "Object{invalid}"
	}
	return fmt.Sprintf("Object{%#x %v}", o.addr, o.Header())
}
