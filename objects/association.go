package objects

import (
	"github.com/chazu/spur/objmem"
)

const (
	associationKeySlot   = 0
	associationValueSlot = 1
	associationSlots     = 2
)

// Association is a key/value pair.
type Association struct {
	objmem.Object
}

// AsAssociation validates w as a two-slot pointer object.
func AsAssociation(space *objmem.Space, w objmem.Word) (Association, error) {
	obj, err := fixedObject(space, w, "Association", associationSlots)
	if err != nil {
		return Association{}, err
	}
	return Association{obj}, nil
}

// NewAssociation creates an instance of class holding key and value.
func NewAssociation(space *objmem.Space, class objmem.Object, key, value objmem.Word) (Association, error) {
	obj, err := space.Instantiate(class)
	if err != nil {
		return Association{}, err
	}
	if obj.NumSlots() != associationSlots {
		return Association{}, &objmem.SlotCountError{Want: associationSlots, Got: obj.NumSlots()}
	}
	a := Association{obj}
	if err := a.SetKey(key); err != nil {
		return Association{}, err
	}
	if err := a.SetValue(value); err != nil {
		return Association{}, err
	}
	return a, nil
}

// Key returns the key.
func (a Association) Key() objmem.Word { return a.MustFieldAt(associationKeySlot) }

// Value returns the value.
func (a Association) Value() objmem.Word { return a.MustFieldAt(associationValueSlot) }

// SetKey replaces the key.
func (a Association) SetKey(w objmem.Word) error { return a.FieldAtPut(associationKeySlot, w) }

// SetValue replaces the value.
func (a Association) SetValue(w objmem.Word) error { return a.FieldAtPut(associationValueSlot, w) }
