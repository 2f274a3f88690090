package objects

import (
	"errors"

	"github.com/chazu/spur/objmem"
)

const (
	orderedCollectionArraySlot = 0
	orderedCollectionFirstSlot = 1
	orderedCollectionLastSlot  = 2
	orderedCollectionSlots     = 3

	defaultOrderedCollectionCapacity = 10
)

// ErrEmptyCollection is returned when removing from an empty collection.
var ErrEmptyCollection = errors.New("collection is empty")

// OrderedCollection is a growable sequence backed by an Array. firstIndex
// and lastIndex are 1-based and inclusive; an empty collection has
// lastIndex = firstIndex - 1.
type OrderedCollection struct {
	objmem.Object
}

// AsOrderedCollection validates w as a three-slot pointer object.
func AsOrderedCollection(space *objmem.Space, w objmem.Word) (OrderedCollection, error) {
	obj, err := fixedObject(space, w, "OrderedCollection", orderedCollectionSlots)
	if err != nil {
		return OrderedCollection{}, err
	}
	return OrderedCollection{obj}, nil
}

// NewOrderedCollection creates an empty collection with room for capacity
// elements. A non-positive capacity uses the default of 10.
func NewOrderedCollection(space *objmem.Space, capacity int) (OrderedCollection, error) {
	if capacity <= 0 {
		capacity = defaultOrderedCollectionCapacity
	}
	obj, err := instantiate(space, objmem.OrderedCollectionClassName, 0)
	if err != nil {
		return OrderedCollection{}, err
	}
	array, err := NewArray(space, capacity)
	if err != nil {
		return OrderedCollection{}, err
	}
	c := OrderedCollection{obj}
	if err := c.FieldAtPut(orderedCollectionArraySlot, array.Word()); err != nil {
		return OrderedCollection{}, err
	}
	return c, c.resetTo(1)
}

func (c OrderedCollection) array() (Array, error) {
	w, err := c.FieldAt(orderedCollectionArraySlot)
	if err != nil {
		return Array{}, err
	}
	return AsArray(c.Space(), w)
}

func (c OrderedCollection) firstIndex() int {
	n, _ := integerField(c.Object, orderedCollectionFirstSlot)
	return int(n)
}

func (c OrderedCollection) lastIndex() int {
	n, _ := integerField(c.Object, orderedCollectionLastSlot)
	return int(n)
}

func (c OrderedCollection) setIndices(first, last int) error {
	if err := c.FieldAtPut(orderedCollectionFirstSlot, objmem.FromInteger(int64(first))); err != nil {
		return err
	}
	return c.FieldAtPut(orderedCollectionLastSlot, objmem.FromInteger(int64(last)))
}

func (c OrderedCollection) resetTo(index int) error {
	return c.setIndices(index, index-1)
}

// Len returns the number of elements.
func (c OrderedCollection) Len() int {
	return c.lastIndex() - c.firstIndex() + 1
}

// At returns element i, 0-based from the first element.
func (c OrderedCollection) At(i int) (objmem.Word, error) {
	if n := c.Len(); i < 0 || i >= n {
		return 0, &objmem.BoundsError{Index: i, Len: n}
	}
	array, err := c.array()
	if err != nil {
		return 0, err
	}
	return array.At(c.firstIndex() - 1 + i)
}

// Do calls fn with each element in order until fn returns false.
func (c OrderedCollection) Do(fn func(objmem.Word) bool) error {
	array, err := c.array()
	if err != nil {
		return err
	}
	for i := c.firstIndex() - 1; i < c.lastIndex(); i++ {
		w, err := array.At(i)
		if err != nil {
			return err
		}
		if !fn(w) {
			return nil
		}
	}
	return nil
}

// AddLast appends w, making room first when the last slot of the backing
// array is in use.
func (c OrderedCollection) AddLast(w objmem.Word) error {
	array, err := c.array()
	if err != nil {
		return err
	}
	if c.lastIndex() == array.Len() {
		if err := c.makeRoomAtLast(); err != nil {
			return err
		}
		if array, err = c.array(); err != nil {
			return err
		}
	}
	last := c.lastIndex()
	if err := array.AtPut(last, w); err != nil {
		return err
	}
	return c.FieldAtPut(orderedCollectionLastSlot, objmem.FromInteger(int64(last+1)))
}

// RemoveFirst removes and returns the first element.
func (c OrderedCollection) RemoveFirst() (objmem.Word, error) {
	if c.Len() <= 0 {
		return 0, ErrEmptyCollection
	}
	array, err := c.array()
	if err != nil {
		return 0, err
	}
	first := c.firstIndex()
	w, err := array.At(first - 1)
	if err != nil {
		return 0, err
	}
	if err := array.AtPut(first-1, c.Space().Nil()); err != nil {
		return 0, err
	}
	if first == c.lastIndex() {
		return w, c.resetTo(1)
	}
	return w, c.FieldAtPut(orderedCollectionFirstSlot, objmem.FromInteger(int64(first+1)))
}

// makeRoomAtLast frees slots at the end of the array. With more than half
// of the array free the elements slide down so the last half is empty,
// otherwise the array grows.
func (c OrderedCollection) makeRoomAtLast() error {
	tally := c.Len()
	last := c.lastIndex()
	if tally*2 >= last {
		return c.growAtLast()
	}
	if tally == 0 {
		return c.resetTo(1)
	}

	array, err := c.array()
	if err != nil {
		return err
	}
	first := c.firstIndex()
	newLast := last / 2
	newFirst := newLast - last + first
	if err := array.CopyFrom(newFirst-1, array, first-1, first-1+tally); err != nil {
		return err
	}
	nilObj := c.Space().Nil()
	for i := newLast; i < last; i++ {
		if err := array.AtPut(i, nilObj); err != nil {
			return err
		}
	}
	return c.setIndices(newFirst, newLast)
}

func (c OrderedCollection) growAtLast() error {
	old, err := c.array()
	if err != nil {
		return err
	}
	grown, err := NewArray(c.Space(), max(old.Len()*2, 1))
	if err != nil {
		return err
	}
	if err := grown.CopyFrom(c.firstIndex()-1, old, c.firstIndex()-1, c.lastIndex()); err != nil {
		return err
	}
	return c.FieldAtPut(orderedCollectionArraySlot, grown.Word())
}
