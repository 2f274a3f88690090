package ffi

import (
	"fmt"

	"github.com/chazu/spur/marshal"
	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/objmem"
)

// ---------------------------------------------------------------------------
// BareFFIType
// ---------------------------------------------------------------------------

const (
	typeValueSlot = 0
	typeNameSlot  = 1
	typeSlots     = 2
)

// TypeObject is a BareFFIType instance: a SmallInteger type number and a
// name.
type TypeObject struct {
	objmem.Object
}

// AsTypeObject validates w as a BareFFIType.
func AsTypeObject(space *objmem.Space, w objmem.Word) (TypeObject, error) {
	obj, err := objects.AsFixed(space, w, objmem.BareFFITypeClassName, typeSlots)
	if err != nil {
		return TypeObject{}, err
	}
	return TypeObject{obj}, nil
}

// NewTypeObject allocates the BareFFIType for t.
func NewTypeObject(space *objmem.Space, t marshal.Type) (TypeObject, error) {
	class, err := space.ClassNamed(objmem.BareFFITypeClassName)
	if err != nil {
		return TypeObject{}, err
	}
	obj, err := space.Instantiate(class)
	if err != nil {
		return TypeObject{}, err
	}
	name, err := objects.NewByteSymbol(space, t.String())
	if err != nil {
		return TypeObject{}, err
	}
	if err := obj.FieldsAtPut(typeValueSlot, objmem.FromInteger(int64(t)), name.Word()); err != nil {
		return TypeObject{}, err
	}
	return TypeObject{obj}, nil
}

// Type decodes the type number.
func (o TypeObject) Type() (marshal.Type, error) {
	n, ok := o.MustFieldAt(typeValueSlot).Integer()
	if !ok {
		return 0, fmt.Errorf("%w: type value is not a SmallInteger", marshal.ErrInvalidType)
	}
	return marshal.TypeFromValue(n)
}

// TypeOf decodes a type given either as a BareFFIType or as a bare
// SmallInteger.
func TypeOf(space *objmem.Space, w objmem.Word) (marshal.Type, error) {
	if n, ok := w.Integer(); ok {
		return marshal.TypeFromValue(n)
	}
	o, err := AsTypeObject(space, w)
	if err != nil {
		return 0, err
	}
	return o.Type()
}

func typeObjects(space *objmem.Space, types []marshal.Type) (objects.Array, error) {
	array, err := objects.NewArray(space, len(types))
	if err != nil {
		return objects.Array{}, err
	}
	for i, t := range types {
		o, err := NewTypeObject(space, t)
		if err != nil {
			return objects.Array{}, err
		}
		if err := array.AtPut(i, o.Word()); err != nil {
			return objects.Array{}, err
		}
	}
	return array, nil
}

func typesOf(space *objmem.Space, array objects.Array, from int) ([]marshal.Type, error) {
	types := make([]marshal.Type, 0, array.Len()-from)
	for i := from; i < array.Len(); i++ {
		t, err := TypeOf(space, array.MustFieldAt(i))
		if err != nil {
			return nil, fmt.Errorf("%w: type %d: %v", ErrMalformedSignature, i, err)
		}
		types = append(types, t)
	}
	return types, nil
}

// ---------------------------------------------------------------------------
// BareFFIFunction
// ---------------------------------------------------------------------------

// Slots of a BareFFIFunction
const (
	BareCalloutSlot = iota
	BareModuleNameSlot
	BareFunctionNameSlot
	BareArgumentTypesSlot
	BareReturnTypeSlot
	BareExternalObjectClassSlot
	BareExternalEnumerationClassSlot

	bareFunctionSlots
)

// BareFunction describes a native function called synchronously on the
// interpreter thread. Slot 0 caches its Callout.
type BareFunction struct {
	objmem.Object
}

// AsBareFunction validates w as a seven-slot BareFFIFunction.
func AsBareFunction(space *objmem.Space, w objmem.Word) (BareFunction, error) {
	obj, err := objects.AsFixed(space, w, objmem.BareFFIFunctionClassName, bareFunctionSlots)
	if err != nil {
		return BareFunction{}, err
	}
	return BareFunction{obj}, nil
}

// NewBareFunction builds a BareFFIFunction with a null callout, using the
// kernel ExternalObject and ExternalEnumeration classes.
func NewBareFunction(space *objmem.Space, module, symbol string, sig Signature) (BareFunction, error) {
	class, err := space.ClassNamed(objmem.BareFFIFunctionClassName)
	if err != nil {
		return BareFunction{}, err
	}
	obj, err := space.Instantiate(class)
	if err != nil {
		return BareFunction{}, err
	}
	callout, err := objects.NewExternalAddress(space, 0)
	if err != nil {
		return BareFunction{}, err
	}
	moduleName, err := objects.NewByteString(space, module)
	if err != nil {
		return BareFunction{}, err
	}
	functionName, err := objects.NewByteString(space, symbol)
	if err != nil {
		return BareFunction{}, err
	}
	args, err := typeObjects(space, sig.Args)
	if err != nil {
		return BareFunction{}, err
	}
	ret, err := NewTypeObject(space, sig.Return)
	if err != nil {
		return BareFunction{}, err
	}

	if err := obj.FieldsAtPut(BareCalloutSlot,
		callout.Word(), moduleName.Word(), functionName.Word(), args.Word(), ret.Word()); err != nil {
		return BareFunction{}, err
	}
	for slot, name := range map[int]string{
		BareExternalObjectClassSlot:      objmem.ExternalObjectClassName,
		BareExternalEnumerationClassSlot: objmem.ExternalEnumerationClassName,
	} {
		c, err := space.ClassNamed(name)
		if err != nil {
			continue
		}
		if err := obj.FieldAtPut(slot, c.Word()); err != nil {
			return BareFunction{}, err
		}
	}
	return BareFunction{obj}, nil
}

// CalloutAddress returns the ExternalAddress caching the callout handle.
func (f BareFunction) CalloutAddress() (objects.ExternalAddress, error) {
	return objects.AsExternalAddress(f.Space(), f.MustFieldAt(BareCalloutSlot))
}

// ModuleName returns the library name.
func (f BareFunction) ModuleName() (string, error) {
	return objects.StringValue(f.Space(), f.MustFieldAt(BareModuleNameSlot))
}

// FunctionName returns the symbol name.
func (f BareFunction) FunctionName() (string, error) {
	return objects.StringValue(f.Space(), f.MustFieldAt(BareFunctionNameSlot))
}

// Signature decodes the argument and return types.
func (f BareFunction) Signature() (Signature, error) {
	args, err := objects.AsArray(f.Space(), f.MustFieldAt(BareArgumentTypesSlot))
	if err != nil {
		return Signature{}, fmt.Errorf("%w: argument types: %v", ErrMalformedSignature, err)
	}
	var sig Signature
	if sig.Args, err = typesOf(f.Space(), args, 0); err != nil {
		return Signature{}, err
	}
	if sig.Return, err = TypeOf(f.Space(), f.MustFieldAt(BareReturnTypeSlot)); err != nil {
		return Signature{}, fmt.Errorf("%w: return type: %v", ErrMalformedSignature, err)
	}
	return sig, sig.Validate()
}

// Marshaller returns a marshaller that unwraps instances of the function's
// ExternalObject and ExternalEnumeration classes.
func (f BareFunction) Marshaller() *marshal.Marshaller {
	m := &marshal.Marshaller{Space: f.Space()}
	if c, err := f.Space().Object(f.MustFieldAt(BareExternalObjectClassSlot)); err == nil {
		m.ExternalObjectClass = c
	}
	if c, err := f.Space().Object(f.MustFieldAt(BareExternalEnumerationClassSlot)); err == nil {
		m.ExternalEnumerationClass = c
	}
	return m
}

// ---------------------------------------------------------------------------
// Event loop ExternalFunction
// ---------------------------------------------------------------------------

// Slots of a TFExternalFunction
const (
	LoopHandleSlot = iota
	LoopDefinitionSlot
	LoopFunctionNameSlot
	LoopModuleNameSlot

	loopFunctionSlots
)

// LoopFunction describes a native function called through the event
// loop. Its definition is an Array holding the return type followed by
// the argument types.
type LoopFunction struct {
	objmem.Object
}

// AsLoopFunction validates w as a four-slot TFExternalFunction.
func AsLoopFunction(space *objmem.Space, w objmem.Word) (LoopFunction, error) {
	obj, err := objects.AsFixed(space, w, objmem.EventLoopFunctionClassName, loopFunctionSlots)
	if err != nil {
		return LoopFunction{}, err
	}
	return LoopFunction{obj}, nil
}

// NewLoopFunction builds a TFExternalFunction with a null handle.
func NewLoopFunction(space *objmem.Space, module, symbol string, sig Signature) (LoopFunction, error) {
	class, err := space.ClassNamed(objmem.EventLoopFunctionClassName)
	if err != nil {
		return LoopFunction{}, err
	}
	obj, err := space.Instantiate(class)
	if err != nil {
		return LoopFunction{}, err
	}
	handle, err := objects.NewExternalAddress(space, 0)
	if err != nil {
		return LoopFunction{}, err
	}
	definition, err := typeObjects(space, append([]marshal.Type{sig.Return}, sig.Args...))
	if err != nil {
		return LoopFunction{}, err
	}
	functionName, err := objects.NewByteString(space, symbol)
	if err != nil {
		return LoopFunction{}, err
	}
	moduleName, err := objects.NewByteString(space, module)
	if err != nil {
		return LoopFunction{}, err
	}
	if err := obj.FieldsAtPut(LoopHandleSlot,
		handle.Word(), definition.Word(), functionName.Word(), moduleName.Word()); err != nil {
		return LoopFunction{}, err
	}
	return LoopFunction{obj}, nil
}

// HandleAddress returns the ExternalAddress caching the callout handle.
func (f LoopFunction) HandleAddress() (objects.ExternalAddress, error) {
	return objects.AsExternalAddress(f.Space(), f.MustFieldAt(LoopHandleSlot))
}

// ModuleName returns the library name, "" if unset.
func (f LoopFunction) ModuleName() (string, error) {
	return objects.StringValue(f.Space(), f.MustFieldAt(LoopModuleNameSlot))
}

// FunctionName returns the symbol name.
func (f LoopFunction) FunctionName() (string, error) {
	return objects.StringValue(f.Space(), f.MustFieldAt(LoopFunctionNameSlot))
}

// Signature decodes the definition array.
func (f LoopFunction) Signature() (Signature, error) {
	def, err := objects.AsArray(f.Space(), f.MustFieldAt(LoopDefinitionSlot))
	if err != nil {
		return Signature{}, fmt.Errorf("%w: definition: %v", ErrMalformedSignature, err)
	}
	if def.Len() == 0 {
		return Signature{}, fmt.Errorf("%w: empty definition", ErrMalformedSignature)
	}
	types, err := typesOf(f.Space(), def, 0)
	if err != nil {
		return Signature{}, err
	}
	sig := Signature{Return: types[0], Args: types[1:]}
	return sig, sig.Validate()
}
