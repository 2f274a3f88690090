package objects

import (
	"github.com/chazu/spur/objmem"
)

const (
	weakSymbolSetTallySlot = 0
	weakSymbolSetArraySlot = 1
	weakSymbolSetFlagSlot  = 2
	weakSymbolSetSlots     = 3
)

// Parameters of the image's ByteString hash
const (
	stringHashSeed       uint32 = 13312
	stringHashMultiplier uint32 = 1664525
	stringHashMask       uint32 = 0x0FFFFFFF
)

// StringHash computes the hash the image uses for ByteStrings and symbols.
func StringHash(s string) uint32 {
	hash := stringHashSeed
	for _, r := range s {
		hash = (hash + uint32(r)) * stringHashMultiplier
	}
	return hash & stringHashMask
}

// WeakSymbolSet is the symbol table: an open-addressing set of ByteSymbols
// in which both nil and the set's flag object mark a free slot.
type WeakSymbolSet struct {
	objmem.Object
}

// AsWeakSymbolSet validates w as a three-slot pointer object.
func AsWeakSymbolSet(space *objmem.Space, w objmem.Word) (WeakSymbolSet, error) {
	obj, err := fixedObject(space, w, "WeakSymbolSet", weakSymbolSetSlots)
	if err != nil {
		return WeakSymbolSet{}, err
	}
	return WeakSymbolSet{obj}, nil
}

// NewWeakSymbolSet creates an empty set with capacity slots.
func NewWeakSymbolSet(space *objmem.Space, capacity int) (WeakSymbolSet, error) {
	obj, err := instantiate(space, objmem.WeakSetClassName, 0)
	if err != nil {
		return WeakSymbolSet{}, err
	}
	array, err := NewArray(space, max(capacity, 1))
	if err != nil {
		return WeakSymbolSet{}, err
	}
	flag, err := instantiate(space, objmem.ObjectClassName, 0)
	if err != nil {
		return WeakSymbolSet{}, err
	}
	set := WeakSymbolSet{obj}
	if err := set.FieldsAtPut(weakSymbolSetTallySlot,
		objmem.FromInteger(0), array.Word(), flag.Word()); err != nil {
		return WeakSymbolSet{}, err
	}
	return set, nil
}

func (set WeakSymbolSet) array() (Array, error) {
	w, err := set.FieldAt(weakSymbolSetArraySlot)
	if err != nil {
		return Array{}, err
	}
	return AsArray(set.Space(), w)
}

func (set WeakSymbolSet) isFree(w objmem.Word) bool {
	return set.Space().IsNil(w) || w == set.MustFieldAt(weakSymbolSetFlagSlot)
}

// Len returns the number of symbols.
func (set WeakSymbolSet) Len() int {
	n, _ := integerField(set.Object, weakSymbolSetTallySlot)
	return int(n)
}

// ScanForByteString returns the index of the symbol equal to s, or of the
// first free slot on its probe sequence. The probe starts at
// StringHash(s) modulo the array size and wraps around once. The second
// result is false when the array has neither.
func (set WeakSymbolSet) ScanForByteString(s string) (int, bool, error) {
	array, err := set.array()
	if err != nil {
		return 0, false, err
	}
	size := array.Len()
	if size == 0 {
		return 0, false, nil
	}
	start := int(StringHash(s) % uint32(size))
	for n := 0; n < size; n++ {
		i := (start + n) % size
		w, err := array.At(i)
		if err != nil {
			return 0, false, err
		}
		if set.isFree(w) {
			return i, true, nil
		}
		if sym, err := AsByteSymbol(set.Space(), w); err == nil && sym.String() == s {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// FindLikeByteString returns the symbol equal to s, if the set holds one.
func (set WeakSymbolSet) FindLikeByteString(s string) (ByteSymbol, bool, error) {
	i, ok, err := set.ScanForByteString(s)
	if err != nil || !ok {
		return ByteSymbol{}, false, err
	}
	array, err := set.array()
	if err != nil {
		return ByteSymbol{}, false, err
	}
	w, err := array.At(i)
	if err != nil || set.isFree(w) {
		return ByteSymbol{}, false, err
	}
	sym, err := AsByteSymbol(set.Space(), w)
	if err != nil {
		return ByteSymbol{}, false, err
	}
	return sym, true, nil
}

// Intern returns the symbol equal to s, adding a new one if needed.
func (set WeakSymbolSet) Intern(s string) (ByteSymbol, error) {
	if sym, ok, err := set.FindLikeByteString(s); err != nil || ok {
		return sym, err
	}
	i, ok, err := set.ScanForByteString(s)
	if err != nil {
		return ByteSymbol{}, err
	}
	if !ok {
		return ByteSymbol{}, ErrDictionaryFull
	}
	sym, err := NewByteSymbol(set.Space(), s)
	if err != nil {
		return ByteSymbol{}, err
	}
	array, err := set.array()
	if err != nil {
		return ByteSymbol{}, err
	}
	if err := array.AtPut(i, sym.Word()); err != nil {
		return ByteSymbol{}, err
	}
	return sym, set.FieldAtPut(weakSymbolSetTallySlot, objmem.FromInteger(int64(set.Len()+1)))
}
