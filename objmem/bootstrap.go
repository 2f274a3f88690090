package objmem

import "fmt"

// Names of the classes Boot creates
const (
	ObjectClassName               = "Object"
	ClassClassName                = "Class"
	UndefinedObjectClassName      = "UndefinedObject"
	BooleanClassName              = "Boolean"
	TrueClassName                 = "True"
	FalseClassName                = "False"
	SmallIntegerClassName         = "SmallInteger"
	CharacterClassName            = "Character"
	SmallFloatClassName           = "SmallFloat64"
	LargePositiveIntegerClassName = "LargePositiveInteger"
	LargeNegativeIntegerClassName = "LargeNegativeInteger"
	FloatClassName                = "BoxedFloat64"
	ByteArrayClassName            = "ByteArray"
	ArrayClassName                = "Array"
	ByteStringClassName           = "ByteString"
	ByteSymbolClassName           = "ByteSymbol"
	WideStringClassName           = "WideString"
	ExternalAddressClassName      = "ExternalAddress"
	AssociationClassName          = "Association"
	OrderedCollectionClassName    = "OrderedCollection"
	IdentityDictionaryClassName   = "IdentityDictionary"
	WeakSetClassName              = "WeakSet"
	CompiledMethodClassName       = "CompiledMethod"
	ExternalObjectClassName       = "ExternalObject"
	ExternalEnumerationClassName  = "ExternalEnumeration"
	BareFFITypeClassName          = "BareFFIType"
	BareFFIFunctionClassName      = "BareFFIFunction"
	EventLoopFunctionClassName    = "TFExternalFunction"
)

type kernelClass struct {
	name     string
	super    string
	instSpec uint8
	fixed    int
	index    uint32
	special  int
}

// kernelClasses lists superclasses before their subclasses.
var kernelClasses = []kernelClass{
	{name: ObjectClassName, instSpec: formatNonIndexable},
	{name: ClassClassName, super: ObjectClassName, instSpec: formatNonIndexable, fixed: ClassSlotCount},
	{name: UndefinedObjectClassName, super: ObjectClassName, instSpec: formatZeroSized},
	{name: BooleanClassName, super: ObjectClassName, instSpec: formatZeroSized},
	{name: TrueClassName, super: BooleanClassName, instSpec: formatZeroSized},
	{name: FalseClassName, super: BooleanClassName, instSpec: formatZeroSized},
	{name: SmallIntegerClassName, super: ObjectClassName, index: ClassIndexSmallInteger},
	{name: CharacterClassName, super: ObjectClassName, index: ClassIndexCharacter},
	{name: SmallFloatClassName, super: ObjectClassName, index: ClassIndexSmallFloat},
	{name: LargePositiveIntegerClassName, super: ObjectClassName, instSpec: formatIndexable8,
		index: ClassIndexLargePositiveInteger, special: SpecialClassLargePositiveInteger},
	{name: LargeNegativeIntegerClassName, super: LargePositiveIntegerClassName, instSpec: formatIndexable8,
		index: ClassIndexLargeNegativeInteger, special: SpecialClassLargeNegativeInteger},
	{name: FloatClassName, super: ObjectClassName, instSpec: formatIndexable64,
		index: ClassIndexFloat, special: SpecialClassFloat},
	{name: ByteArrayClassName, super: ObjectClassName, instSpec: formatIndexable8,
		index: ClassIndexByteArray, special: SpecialClassByteArray},
	{name: ArrayClassName, super: ObjectClassName, instSpec: formatIndexableNoFields,
		index: ClassIndexArray, special: SpecialClassArray},
	{name: ByteStringClassName, super: ObjectClassName, instSpec: formatIndexable8,
		index: ClassIndexByteString, special: SpecialClassByteString},
	{name: ByteSymbolClassName, super: ByteStringClassName, instSpec: formatIndexable8},
	{name: WideStringClassName, super: ObjectClassName, instSpec: formatIndexable32},
	{name: ExternalAddressClassName, super: ByteArrayClassName, instSpec: formatIndexable8,
		special: SpecialClassExternalAddress},
	{name: AssociationClassName, super: ObjectClassName, instSpec: formatNonIndexable, fixed: 2},
	{name: OrderedCollectionClassName, super: ObjectClassName, instSpec: formatNonIndexable, fixed: 3},
	{name: IdentityDictionaryClassName, super: ObjectClassName, instSpec: formatNonIndexable, fixed: 3},
	{name: WeakSetClassName, super: ObjectClassName, instSpec: formatNonIndexable, fixed: 3},
	{name: CompiledMethodClassName, super: ObjectClassName, instSpec: formatCompiledMethod},
	{name: ExternalObjectClassName, super: ObjectClassName, instSpec: formatNonIndexable, fixed: 1},
	{name: ExternalEnumerationClassName, super: ObjectClassName, instSpec: formatNonIndexable, fixed: 1},
	{name: BareFFITypeClassName, super: ObjectClassName, instSpec: formatNonIndexable, fixed: 2},
	{name: BareFFIFunctionClassName, super: ExternalObjectClassName, instSpec: formatNonIndexable, fixed: 7},
	{name: EventLoopFunctionClassName, super: ExternalObjectClassName, instSpec: formatNonIndexable, fixed: 4},
}

// Boot maps a new Space of the given size in words and populates it with
// the kernel classes, nil, true, false and the special objects array.
func Boot(words int) (*Space, error) {
	s, err := NewSpace(words)
	if err != nil {
		return nil, err
	}
	if err := s.boot(); err != nil {
		s.Close()
		return nil, fmt.Errorf("objmem: boot: %w", err)
	}
	return s, nil
}

func (s *Space) boot() error {
	// Class is its own class, so it has to exist before any other class
	// object can be allocated.
	s.classClass = firstDynamicClassIndex
	metaclass, err := s.Allocate(s.classClass, FormatNonIndexable, ClassSlotCount)
	if err != nil {
		return err
	}
	s.registerClass(s.classClass, metaclass)

	classes := make(map[string]Object, len(kernelClasses))
	for _, k := range kernelClasses {
		if k.name == ClassClassName {
			classes[k.name] = metaclass
			continue
		}
		index := k.index
		if index == 0 {
			if index, err = s.nextClassIndex(); err != nil {
				return err
			}
		}
		cls, err := s.allocClass(index)
		if err != nil {
			return fmt.Errorf("class %s: %w", k.name, err)
		}
		classes[k.name] = cls
	}

	singleton := func(name string) (Word, error) {
		obj, err := s.Allocate(classes[name].Header().IdentityHash(), FormatZeroSized, 0)
		return obj.Word(), err
	}
	if s.nilObj, err = singleton(UndefinedObjectClassName); err != nil {
		return err
	}
	if s.falseObj, err = singleton(FalseClassName); err != nil {
		return err
	}
	if s.trueObj, err = singleton(TrueClassName); err != nil {
		return err
	}

	for _, k := range kernelClasses {
		var super Word
		if k.super != "" {
			super = classes[k.super].Word()
		}
		if err := s.initClass(classes[k.name], k.name, super, k.instSpec, k.fixed); err != nil {
			return fmt.Errorf("class %s: %w", k.name, err)
		}
	}

	specials, err := s.Allocate(ClassIndexArray, FormatIndexableNoFields, SpecialObjectsCount)
	if err != nil {
		return err
	}
	external, err := s.Allocate(ClassIndexArray, FormatIndexableNoFields, 0)
	if err != nil {
		return err
	}
	for i := 0; i < SpecialObjectsCount; i++ {
		s.store64(specials.fieldAddress(i), uint64(s.nilObj))
	}
	entries := map[int]Word{
		SpecialNil:                  s.nilObj,
		SpecialFalse:                s.falseObj,
		SpecialTrue:                 s.trueObj,
		SpecialExternalObjectsArray: external.Word(),
	}
	for _, k := range kernelClasses {
		if k.special != 0 {
			entries[k.special] = classes[k.name].Word()
		}
	}
	for i, w := range entries {
		if err := specials.FieldAtPut(i, w); err != nil {
			return fmt.Errorf("special object %d: %w", i, err)
		}
	}
	return s.SetSpecialObjects(specials)
}
