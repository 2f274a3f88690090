package objects

import (
	"github.com/chazu/spur/objmem"
)

// object validates w as a live heap object whose format satisfies accept.
func object(space *objmem.Space, w objmem.Word, want string, accept func(objmem.Format) bool) (objmem.Object, error) {
	obj, err := space.Object(w)
	if err != nil {
		return objmem.Object{}, err
	}
	if !accept(obj.Format()) {
		return objmem.Object{}, &objmem.TypeError{Want: want, Got: obj.Format()}
	}
	return obj, nil
}

// fixedObject validates w as a pointer object with exactly slots slots.
func fixedObject(space *objmem.Space, w objmem.Word, want string, slots int) (objmem.Object, error) {
	obj, err := object(space, w, want, func(f objmem.Format) bool {
		return f.Kind() == objmem.NonIndexable || f.Kind() == objmem.IndexableWithFields
	})
	if err != nil {
		return objmem.Object{}, err
	}
	if n := obj.NumSlots(); n != slots {
		return objmem.Object{}, &objmem.SlotCountError{Want: slots, Got: n}
	}
	return obj, nil
}

// AsFixed validates w as a pointer object of a fixed-layout class with
// exactly slots slots. want names the class in errors.
func AsFixed(space *objmem.Space, w objmem.Word, want string, slots int) (objmem.Object, error) {
	return fixedObject(space, w, want, slots)
}

// StringValue reads an 8-bit string or symbol. Nil reads as "".
func StringValue(space *objmem.Space, w objmem.Word) (string, error) {
	if space.IsNil(w) {
		return "", nil
	}
	s, err := AsByteString(space, w)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

func isKind(kinds ...objmem.FormatKind) func(objmem.Format) bool {
	return func(f objmem.Format) bool {
		for _, k := range kinds {
			if f.Kind() == k {
				return true
			}
		}
		return false
	}
}

// instantiate creates an instance of the named kernel class.
func instantiate(space *objmem.Space, className string, n int) (objmem.Object, error) {
	class, err := space.ClassNamed(className)
	if err != nil {
		return objmem.Object{}, err
	}
	return space.InstantiateIndexable(class, n)
}

// integerField reads slot i as a SmallInteger.
func integerField(obj objmem.Object, i int) (int64, error) {
	w, err := obj.FieldAt(i)
	if err != nil {
		return 0, err
	}
	n, ok := w.Integer()
	if !ok {
		return 0, objmem.ErrNotAnImmediate
	}
	return n, nil
}

// identityHashOf hashes any word by identity: heap objects by their header
// hash, immediates by their value.
func identityHashOf(space *objmem.Space, w objmem.Word) (uint32, error) {
	if w.IsImmediate() {
		return uint32(uint64(w) >> objmem.TagBits), nil
	}
	obj, err := space.Object(w)
	if err != nil {
		return 0, err
	}
	return obj.IdentityHash(), nil
}
