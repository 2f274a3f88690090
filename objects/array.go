package objects

import (
	"github.com/chazu/spur/objmem"
)

// Array is a pointer-indexable object without instance variables. Weak
// arrays are accepted as well.
type Array struct {
	objmem.Object
}

// AsArray validates w as an Array.
func AsArray(space *objmem.Space, w objmem.Word) (Array, error) {
	obj, err := object(space, w, "Array", isKind(objmem.IndexableNoFields, objmem.WeakIndexable))
	if err != nil {
		return Array{}, err
	}
	return Array{obj}, nil
}

// NewArray creates an Array of n nils.
func NewArray(space *objmem.Space, n int) (Array, error) {
	obj, err := instantiate(space, objmem.ArrayClassName, n)
	if err != nil {
		return Array{}, err
	}
	return Array{obj}, nil
}

// NewArrayOf creates an Array holding words.
func NewArrayOf(space *objmem.Space, words ...objmem.Word) (Array, error) {
	a, err := NewArray(space, len(words))
	if err != nil {
		return Array{}, err
	}
	for i, w := range words {
		if err := a.AtPut(i, w); err != nil {
			return Array{}, err
		}
	}
	return a, nil
}

// Len returns the number of elements.
func (a Array) Len() int { return a.NumSlots() }

// At returns element i (0-based).
func (a Array) At(i int) (objmem.Word, error) { return a.FieldAt(i) }

// AtPut stores element i (0-based).
func (a Array) AtPut(i int, w objmem.Word) error { return a.FieldAtPut(i, w) }

// Words copies the elements into a Go slice.
func (a Array) Words() []objmem.Word {
	words := make([]objmem.Word, a.Len())
	for i := range words {
		words[i] = a.MustFieldAt(i)
	}
	return words
}

// CopyFrom copies src[from:to] into a starting at index at. It is the
// replaceFrom:to:with:startingAt: of the image, 0-based and half open.
func (a Array) CopyFrom(at int, src Array, from, to int) error {
	if from < 0 || to > src.Len() || from > to {
		return &objmem.BoundsError{Index: to, Len: src.Len()}
	}
	if at < 0 || at+(to-from) > a.Len() {
		return &objmem.BoundsError{Index: at + (to - from), Len: a.Len()}
	}
	if a.IsIdentical(src.Object) && at > from {
		for i := to - from - 1; i >= 0; i-- {
			if err := a.AtPut(at+i, src.MustFieldAt(from+i)); err != nil {
				return err
			}
		}
		return nil
	}
	for i := 0; i < to-from; i++ {
		if err := a.AtPut(at+i, src.MustFieldAt(from+i)); err != nil {
			return err
		}
	}
	return nil
}
