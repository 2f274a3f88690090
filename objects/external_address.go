package objects

import (
	"encoding/binary"

	"github.com/chazu/spur/objmem"
)

// externalAddressSize is the byte size of an ExternalAddress payload.
const externalAddressSize = 8

// ExternalAddress is a byte object holding one native pointer.
type ExternalAddress struct {
	objmem.Object
}

// AsExternalAddress validates w as an ExternalAddress instance.
func AsExternalAddress(space *objmem.Space, w objmem.Word) (ExternalAddress, error) {
	obj, err := object(space, w, "ExternalAddress", isKind(objmem.Indexable8))
	if err != nil {
		return ExternalAddress{}, err
	}
	if !IsExternalAddress(space, w) {
		return ExternalAddress{}, &objmem.TypeError{Want: "ExternalAddress", Got: obj.Format()}
	}
	if obj.IndexableUnits() != externalAddressSize {
		return ExternalAddress{}, &objmem.SlotCountError{Want: externalAddressSize, Got: obj.IndexableUnits()}
	}
	return ExternalAddress{obj}, nil
}

// IsExternalAddress reports whether w is an instance of the class in the
// ExternalAddress special object slot.
func IsExternalAddress(space *objmem.Space, w objmem.Word) bool {
	class, err := space.SpecialObject(objmem.SpecialClassExternalAddress)
	if err != nil {
		return false
	}
	cls, err := space.Object(class)
	if err != nil {
		return false
	}
	return space.IsInstanceOfIndex(w, cls.Header().IdentityHash())
}

// NewExternalAddress allocates an ExternalAddress holding addr.
func NewExternalAddress(space *objmem.Space, addr uint64) (ExternalAddress, error) {
	class, err := space.SpecialObject(objmem.SpecialClassExternalAddress)
	if err != nil {
		return ExternalAddress{}, err
	}
	cls, err := space.Object(class)
	if err != nil {
		return ExternalAddress{}, err
	}
	obj, err := space.InstantiateIndexable(cls, externalAddressSize)
	if err != nil {
		return ExternalAddress{}, err
	}
	ea := ExternalAddress{obj}
	ea.SetAddress(addr)
	return ea, nil
}

// Address returns the stored pointer.
func (a ExternalAddress) Address() uint64 {
	return binary.NativeEndian.Uint64(a.Bytes())
}

// SetAddress replaces the stored pointer.
func (a ExternalAddress) SetAddress(addr uint64) {
	binary.NativeEndian.PutUint64(a.Bytes(), addr)
}

// IsNull reports whether the stored pointer is zero.
func (a ExternalAddress) IsNull() bool { return a.Address() == 0 }
