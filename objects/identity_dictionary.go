package objects

import (
	"errors"
	"fmt"

	"github.com/chazu/spur/objmem"
)

const (
	identityDictionaryTallySlot            = 0
	identityDictionaryArraySlot            = 1
	identityDictionaryAssociationClassSlot = 2
	identityDictionarySlots                = 3

	defaultIdentityDictionaryCapacity = 8
)

// ErrDictionaryFull is returned when a probe finds neither the key nor an
// empty slot. The grow policy keeps this from happening to dictionaries
// built through AtPut.
var ErrDictionaryFull = errors.New("dictionary has no free slot")

// IdentityDictionary is an open-addressing hash table of Associations
// compared by identity. Empty slots hold nil.
type IdentityDictionary struct {
	objmem.Object
}

// AsIdentityDictionary validates w as a three-slot pointer object.
func AsIdentityDictionary(space *objmem.Space, w objmem.Word) (IdentityDictionary, error) {
	obj, err := fixedObject(space, w, "IdentityDictionary", identityDictionarySlots)
	if err != nil {
		return IdentityDictionary{}, err
	}
	return IdentityDictionary{obj}, nil
}

// NewIdentityDictionary creates an empty dictionary with capacity slots
// whose entries are instances of the kernel Association class.
func NewIdentityDictionary(space *objmem.Space, capacity int) (IdentityDictionary, error) {
	if capacity <= 0 {
		capacity = defaultIdentityDictionaryCapacity
	}
	assoc, err := space.ClassNamed(objmem.AssociationClassName)
	if err != nil {
		return IdentityDictionary{}, err
	}
	obj, err := instantiate(space, objmem.IdentityDictionaryClassName, 0)
	if err != nil {
		return IdentityDictionary{}, err
	}
	array, err := NewArray(space, capacity)
	if err != nil {
		return IdentityDictionary{}, err
	}
	d := IdentityDictionary{obj}
	if err := d.FieldsAtPut(identityDictionaryTallySlot,
		objmem.FromInteger(0), array.Word(), assoc.Word()); err != nil {
		return IdentityDictionary{}, err
	}
	return d, nil
}

// Len returns the number of associations.
func (d IdentityDictionary) Len() int {
	n, _ := integerField(d.Object, identityDictionaryTallySlot)
	return int(n)
}

func (d IdentityDictionary) setTally(n int) error {
	return d.FieldAtPut(identityDictionaryTallySlot, objmem.FromInteger(int64(n)))
}

func (d IdentityDictionary) array() (Array, error) {
	w, err := d.FieldAt(identityDictionaryArraySlot)
	if err != nil {
		return Array{}, err
	}
	return AsArray(d.Space(), w)
}

func (d IdentityDictionary) associationAt(array Array, i int) (Association, bool, error) {
	w, err := array.At(i)
	if err != nil {
		return Association{}, false, err
	}
	if d.Space().IsNil(w) {
		return Association{}, false, nil
	}
	a, err := AsAssociation(d.Space(), w)
	if err != nil {
		return Association{}, false, fmt.Errorf("dictionary slot %d: %w", i, err)
	}
	return a, true, nil
}

// ScanFor returns the 0-based array index holding key, or of the first
// empty slot where key would go. Probing starts at the key's identity hash
// modulo the array size and wraps around once.
func (d IdentityDictionary) ScanFor(key objmem.Word) (int, error) {
	array, err := d.array()
	if err != nil {
		return 0, err
	}
	hash, err := identityHashOf(d.Space(), key)
	if err != nil {
		return 0, err
	}
	return d.scanFor(array, key, hash)
}

func (d IdentityDictionary) scanFor(array Array, key objmem.Word, hash uint32) (int, error) {
	size := array.Len()
	if size == 0 {
		return 0, ErrDictionaryFull
	}
	start := int(hash % uint32(size))
	for n := 0; n < size; n++ {
		i := (start + n) % size
		a, ok, err := d.associationAt(array, i)
		if err != nil {
			return 0, err
		}
		if !ok || a.Key() == key {
			return i, nil
		}
	}
	return 0, ErrDictionaryFull
}

// At returns the value stored under key.
func (d IdentityDictionary) At(key objmem.Word) (objmem.Word, bool, error) {
	array, err := d.array()
	if err != nil {
		return 0, false, err
	}
	i, err := d.ScanFor(key)
	if err != nil {
		if errors.Is(err, ErrDictionaryFull) {
			return 0, false, nil
		}
		return 0, false, err
	}
	a, ok, err := d.associationAt(array, i)
	if err != nil || !ok {
		return 0, false, err
	}
	return a.Value(), true, nil
}

// AtPut stores value under key, replacing any previous value.
func (d IdentityDictionary) AtPut(key, value objmem.Word) error {
	_, err := d.getOrInsert(key, func() (objmem.Word, error) { return value, nil }, true)
	return err
}

// GetOrInsert returns the value under key, inserting the result of
// makeDefault first when key is absent.
func (d IdentityDictionary) GetOrInsert(key objmem.Word, makeDefault func() (objmem.Word, error)) (objmem.Word, error) {
	return d.getOrInsert(key, makeDefault, false)
}

func (d IdentityDictionary) getOrInsert(key objmem.Word, value func() (objmem.Word, error), replace bool) (objmem.Word, error) {
	array, err := d.array()
	if err != nil {
		return 0, err
	}
	i, err := d.ScanFor(key)
	if err != nil {
		return 0, err
	}
	a, ok, err := d.associationAt(array, i)
	if err != nil {
		return 0, err
	}
	if ok {
		if !replace {
			return a.Value(), nil
		}
		v, err := value()
		if err != nil {
			return 0, err
		}
		return v, a.SetValue(v)
	}

	v, err := value()
	if err != nil {
		return 0, err
	}
	if err := d.atNewIndexPut(array, i, key, v); err != nil {
		return 0, err
	}
	return v, nil
}

func (d IdentityDictionary) associationClass() (objmem.Object, error) {
	w, err := d.FieldAt(identityDictionaryAssociationClassSlot)
	if err != nil {
		return objmem.Object{}, err
	}
	return d.Space().Object(w)
}

func (d IdentityDictionary) atNewIndexPut(array Array, i int, key, value objmem.Word) error {
	class, err := d.associationClass()
	if err != nil {
		return err
	}
	a, err := NewAssociation(d.Space(), class, key, value)
	if err != nil {
		return err
	}
	if err := array.AtPut(i, a.Word()); err != nil {
		return err
	}
	if err := d.setTally(d.Len() + 1); err != nil {
		return err
	}
	return d.fullCheck()
}

// fullCheck grows the array when fewer than a quarter of its slots are free.
func (d IdentityDictionary) fullCheck() error {
	array, err := d.array()
	if err != nil {
		return err
	}
	free := array.Len() - d.Len()
	if free < max(array.Len()/4, 1) {
		return d.grow()
	}
	return nil
}

func (d IdentityDictionary) grow() error {
	old, err := d.array()
	if err != nil {
		return err
	}
	grown, err := NewArray(d.Space(), old.Len()*2)
	if err != nil {
		return err
	}
	if err := d.FieldAtPut(identityDictionaryArraySlot, grown.Word()); err != nil {
		return err
	}
	tally := 0
	for i := 0; i < old.Len(); i++ {
		a, ok, err := d.associationAt(old, i)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		j, err := d.ScanFor(a.Key())
		if err != nil {
			return err
		}
		if err := grown.AtPut(j, a.Word()); err != nil {
			return err
		}
		tally++
	}
	return d.setTally(tally)
}

// Do calls fn for each association in array order until fn returns false.
func (d IdentityDictionary) Do(fn func(key, value objmem.Word) bool) error {
	array, err := d.array()
	if err != nil {
		return err
	}
	for i := 0; i < array.Len(); i++ {
		a, ok, err := d.associationAt(array, i)
		if err != nil {
			return err
		}
		if ok && !fn(a.Key(), a.Value()) {
			return nil
		}
	}
	return nil
}

// ScanForIndex probes the dictionary's array for key using a hash supplied
// by the caller. It returns the 1-based index of the association holding
// key or of the first nil slot, and 0 when the array has neither.
func ScanForIndex(space *objmem.Space, dictionary, key objmem.Word, hash uint32) (int, error) {
	dict, err := space.Object(dictionary)
	if err != nil {
		return 0, err
	}
	w, err := dict.FieldAt(identityDictionaryArraySlot)
	if err != nil {
		return 0, err
	}
	array, err := AsArray(space, w)
	if err != nil {
		return 0, err
	}
	i, err := IdentityDictionary{dict}.scanFor(array, key, hash)
	if errors.Is(err, ErrDictionaryFull) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return i + 1, nil
}
