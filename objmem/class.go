package objmem

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Class table
// ---------------------------------------------------------------------------

// Class indices fixed by the Spur object format. Indices up to 8 are puns
// for immediates and forwarders and never name a heap class.
const (
	ClassIndexSmallInteger         uint32 = 1
	ClassIndexCharacter            uint32 = 2
	ClassIndexSmallFloat           uint32 = 4
	ClassIndexLargeNegativeInteger uint32 = 32
	ClassIndexLargePositiveInteger uint32 = 33
	ClassIndexFloat                uint32 = 34
	ClassIndexByteArray            uint32 = 50
	ClassIndexArray                uint32 = 51
	ClassIndexByteString           uint32 = 52

	firstDynamicClassIndex uint32 = 64
)

// Slots of a class object
const (
	ClassSuperclassSlot = 0
	ClassMethodDictSlot = 1
	ClassFormatSlot     = 2
	ClassNameSlot       = 3
	ClassSlotCount      = 4
)

// ClassFormatWord encodes a class format word: the instance spec (the
// format instances get) in bits 16-20 and the fixed field count below.
func ClassFormatWord(instSpec uint8, fixedFields int) Word {
	return FromInteger(int64(instSpec&0x1F)<<16 | int64(fixedFields&0xFFFF))
}

// ClassAt returns the class registered at index.
func (s *Space) ClassAt(index uint32) (Object, error) {
	if int(index) >= len(s.classes) || s.classes[index] == 0 {
		return Object{}, fmt.Errorf("%w %d", ErrNoClass, index)
	}
	return s.Object(s.classes[index])
}

// ClassNamed returns the class registered under name.
func (s *Space) ClassNamed(name string) (Object, error) {
	index, ok := s.classByName[name]
	if !ok {
		return Object{}, fmt.Errorf("%w: no class named %q", ErrNoClass, name)
	}
	return s.ClassAt(index)
}

// ClassIndexNamed returns the class index registered under name, or 0.
func (s *Space) ClassIndexNamed(name string) uint32 {
	return s.classByName[name]
}

// ClassIndexOf returns the class index of any word, immediates included.
func (s *Space) ClassIndexOf(w Word) uint32 {
	switch {
	case w.IsSmallInteger():
		return ClassIndexSmallInteger
	case w.IsCharacter():
		return ClassIndexCharacter
	case w.IsSmallFloat():
		return ClassIndexSmallFloat
	}
	h, err := s.Header(w)
	if err != nil {
		return 0
	}
	return h.ClassIndex()
}

// ClassOf returns the class object of any word.
func (s *Space) ClassOf(w Word) (Object, error) {
	if w.IsPointer() {
		if _, err := s.Object(w); err != nil {
			return Object{}, err
		}
	}
	return s.ClassAt(s.ClassIndexOf(w))
}

// IsKindOf reports whether w is an instance of class or of one of its
// subclasses, following the superclass slot.
func (s *Space) IsKindOf(w Word, class Object) bool {
	c, err := s.ClassOf(w)
	if err != nil {
		return false
	}
	for depth := 0; depth < len(s.classes); depth++ {
		if c.IsIdentical(class) {
			return true
		}
		super := c.MustFieldAt(ClassSuperclassSlot)
		if super == s.nilObj || super == 0 {
			return false
		}
		if c, err = s.Object(super); err != nil {
			return false
		}
	}
	return false
}

// IsInstanceOfIndex reports whether w's class index is exactly index.
func (s *Space) IsInstanceOfIndex(w Word, index uint32) bool {
	return index != 0 && s.ClassIndexOf(w) == index
}

// ClassName returns the name stored in a class object, or "" if it has none.
func (s *Space) ClassName(class Object) string {
	w, err := class.FieldAt(ClassNameSlot)
	if err != nil {
		return ""
	}
	name, err := s.Object(w)
	if err != nil || !name.Format().IsBytes() {
		return ""
	}
	return string(name.Bytes())
}

// ClassFormat decodes slot 2 of a class object.
func (s *Space) ClassFormat(class Object) (instSpec uint8, fixedFields int, err error) {
	w, err := class.FieldAt(ClassFormatSlot)
	if err != nil {
		return 0, 0, err
	}
	v, ok := w.Integer()
	if !ok {
		return 0, 0, fmt.Errorf("%w: class format is not a SmallInteger", ErrNotAnImmediate)
	}
	return uint8(v>>16) & 0x1F, int(v & 0xFFFF), nil
}

func (s *Space) nextClassIndex() (uint32, error) {
	for i := firstDynamicClassIndex; i <= MaxClassIndex; i++ {
		if int(i) >= len(s.classes) || s.classes[i] == 0 {
			return i, nil
		}
	}
	return 0, ErrClassTableFull
}

// registerClass records cls at index. A class's identity hash is its index.
func (s *Space) registerClass(index uint32, cls Object) {
	for int(index) >= len(s.classes) {
		s.classes = append(s.classes, make([]Word, len(s.classes))...)
	}
	s.classes[index] = cls.Word()
	cls.SetHeader(cls.Header().WithIdentityHash(index))
}

// allocClass allocates an uninitialised class object for index.
func (s *Space) allocClass(index uint32) (Object, error) {
	if index == 0 || index > MaxClassIndex {
		return Object{}, fmt.Errorf("objmem: class index %d out of range", index)
	}
	if int(index) < len(s.classes) && s.classes[index] != 0 {
		return Object{}, fmt.Errorf("objmem: class index %d already in use", index)
	}
	cls, err := s.Allocate(s.classClass, FormatNonIndexable, ClassSlotCount)
	if err != nil {
		return Object{}, err
	}
	s.registerClass(index, cls)
	return cls, nil
}

func (s *Space) initClass(cls Object, name string, superclass Word, instSpec uint8, fixedFields int) error {
	str, err := s.AllocateBytes(ClassIndexByteString, []byte(name))
	if err != nil {
		return err
	}
	if superclass == 0 {
		superclass = s.nilObj
	}
	if err := cls.FieldsAtPut(ClassSuperclassSlot,
		superclass, s.nilObj, ClassFormatWord(instSpec, fixedFields), str.Word()); err != nil {
		return fmt.Errorf("class %s: %w", name, err)
	}
	s.classByName[name] = cls.Header().IdentityHash()
	return nil
}

// DefineClass creates a class at the next free class index. Superclass may
// be 0 or nil for a root class.
func (s *Space) DefineClass(name string, superclass Word, instSpec uint8, fixedFields int) (Object, error) {
	index, err := s.nextClassIndex()
	if err != nil {
		return Object{}, err
	}
	return s.DefineClassAt(index, name, superclass, instSpec, fixedFields)
}

// DefineClassAt creates a class registered at a specific index.
func (s *Space) DefineClassAt(index uint32, name string, superclass Word, instSpec uint8, fixedFields int) (Object, error) {
	if s.nilObj == 0 {
		return Object{}, ErrNotBooted
	}
	if _, dup := s.classByName[name]; dup {
		return Object{}, fmt.Errorf("objmem: class %q already defined", name)
	}
	cls, err := s.allocClass(index)
	if err != nil {
		return Object{}, err
	}
	if err := s.initClass(cls, name, superclass, instSpec, fixedFields); err != nil {
		return Object{}, err
	}
	return cls, nil
}

// ---------------------------------------------------------------------------
// Instantiation
// ---------------------------------------------------------------------------

func (s *Space) classIndexOf(class Object) (uint32, error) {
	index := class.Header().IdentityHash()
	if int(index) >= len(s.classes) || s.classes[index] != class.Word() {
		return 0, fmt.Errorf("%w: object %#x is not a registered class", ErrNoClass, class.Address())
	}
	return index, nil
}

// Instantiate creates a fixed-size instance of class with all pointer
// slots set to nil.
func (s *Space) Instantiate(class Object) (Object, error) {
	return s.InstantiateIndexable(class, 0)
}

// InstantiateIndexable creates an instance of class with n indexable units.
// The class format word decides the instance format and fixed slot count.
func (s *Space) InstantiateIndexable(class Object, n int) (Object, error) {
	index, err := s.classIndexOf(class)
	if err != nil {
		return Object{}, err
	}
	instSpec, fixed, err := s.ClassFormat(class)
	if err != nil {
		return Object{}, err
	}
	if n < 0 {
		return Object{}, &BoundsError{Index: n, Len: 0}
	}

	format := FormatFromBits(instSpec)
	slots := fixed
	switch format.Kind() {
	case ZeroSized, NonIndexable, WeakNonIndexable:
		if n > 0 {
			return Object{}, &TypeError{Want: "indexable class", Got: format}
		}
	case IndexableNoFields, IndexableWithFields, WeakIndexable:
		slots = fixed + n
	case Indexable64:
		slots = n
	case Indexable32, Indexable16, Indexable8, CompiledMethod:
		format, slots = SizedFormat(format.Kind(), n)
	default:
		return Object{}, &TypeError{Want: "instantiable class", Got: format}
	}

	obj, err := s.Allocate(index, format, slots)
	if err != nil {
		return Object{}, err
	}
	if format.IsPointers() && s.nilObj != 0 {
		for i := 0; i < slots; i++ {
			s.store64(obj.fieldAddress(i), uint64(s.nilObj))
		}
	}
	return obj, nil
}

// AllocateBytes creates an 8-bit object of the given class index holding a
// copy of data.
func (s *Space) AllocateBytes(classIndex uint32, data []byte) (Object, error) {
	format, slots := SizedFormat(Indexable8, len(data))
	obj, err := s.Allocate(classIndex, format, slots)
	if err != nil {
		return Object{}, err
	}
	copy(obj.Bytes(), data)
	return obj, nil
}

// ---------------------------------------------------------------------------
// Special objects
// ---------------------------------------------------------------------------

// Indices into the special objects array
const (
	SpecialNil                       = 0
	SpecialFalse                     = 1
	SpecialTrue                      = 2
	SpecialClassByteString           = 6
	SpecialClassArray                = 7
	SpecialClassFloat                = 9
	SpecialClassLargePositiveInteger = 13
	SpecialClassByteArray            = 26
	SpecialExternalObjectsArray      = 38
	SpecialClassLargeNegativeInteger = 42
	SpecialClassExternalAddress      = 43

	SpecialObjectsCount = 60
)

// SetSpecialObjects installs the special objects array and caches nil,
// true and false from it.
func (s *Space) SetSpecialObjects(array Object) error {
	if array.NumSlots() <= SpecialTrue {
		return &SlotCountError{Want: SpecialObjectsCount, Got: array.NumSlots()}
	}
	s.specials = array.Word()
	s.nilObj = array.MustFieldAt(SpecialNil)
	s.falseObj = array.MustFieldAt(SpecialFalse)
	s.trueObj = array.MustFieldAt(SpecialTrue)
	return nil
}

// SpecialObjects returns the special objects array.
func (s *Space) SpecialObjects() (Object, error) {
	if s.specials == 0 {
		return Object{}, ErrNotBooted
	}
	return s.Object(s.specials)
}

// SpecialObject returns entry i of the special objects array.
func (s *Space) SpecialObject(i int) (Word, error) {
	arr, err := s.SpecialObjects()
	if err != nil {
		return 0, err
	}
	return arr.FieldAt(i)
}

// SetSpecialObject replaces entry i of the special objects array.
func (s *Space) SetSpecialObject(i int, w Word) error {
	arr, err := s.SpecialObjects()
	if err != nil {
		return err
	}
	return arr.FieldAtPut(i, w)
}

// Nil returns the nil object.
func (s *Space) Nil() Word { return s.nilObj }

// True returns the true object.
func (s *Space) True() Word { return s.trueObj }

// False returns the false object.
func (s *Space) False() Word { return s.falseObj }

// Bool returns true or false.
func (s *Space) Bool(b bool) Word {
	if b {
		return s.trueObj
	}
	return s.falseObj
}

// IsNil reports whether w is the nil object.
func (s *Space) IsNil(w Word) bool { return w == s.nilObj }
