package objects

import (
	"unicode/utf8"

	"github.com/chazu/spur/objmem"
)

// ---------------------------------------------------------------------------
// ByteString / ByteSymbol / ByteArray
// ---------------------------------------------------------------------------

// ByteString is an 8-bit string.
type ByteString struct {
	objmem.Object
}

// AsByteString validates w as an 8-bit indexable object.
func AsByteString(space *objmem.Space, w objmem.Word) (ByteString, error) {
	obj, err := object(space, w, "ByteString", isKind(objmem.Indexable8))
	if err != nil {
		return ByteString{}, err
	}
	return ByteString{obj}, nil
}

// NewByteString allocates a ByteString holding s.
func NewByteString(space *objmem.Space, s string) (ByteString, error) {
	obj, err := space.AllocateBytes(objmem.ClassIndexByteString, []byte(s))
	if err != nil {
		return ByteString{}, err
	}
	return ByteString{obj}, nil
}

// Len returns the number of bytes.
func (s ByteString) Len() int { return s.IndexableUnits() }

// String returns a copy of the contents.
func (s ByteString) String() string { return string(s.Bytes()) }

// ByteSymbol is an interned 8-bit string.
type ByteSymbol struct {
	ByteString
}

// AsByteSymbol validates w as an instance of ByteSymbol.
func AsByteSymbol(space *objmem.Space, w objmem.Word) (ByteSymbol, error) {
	str, err := AsByteString(space, w)
	if err != nil {
		return ByteSymbol{}, err
	}
	if !space.IsInstanceOfIndex(w, space.ClassIndexNamed(objmem.ByteSymbolClassName)) {
		return ByteSymbol{}, &objmem.TypeError{Want: "ByteSymbol", Got: str.Format()}
	}
	return ByteSymbol{str}, nil
}

// NewByteSymbol allocates a ByteSymbol. Interning is the caller's concern,
// see WeakSymbolSet.
func NewByteSymbol(space *objmem.Space, s string) (ByteSymbol, error) {
	index := space.ClassIndexNamed(objmem.ByteSymbolClassName)
	if index == 0 {
		return ByteSymbol{}, objmem.ErrNoClass
	}
	obj, err := space.AllocateBytes(index, []byte(s))
	if err != nil {
		return ByteSymbol{}, err
	}
	return ByteSymbol{ByteString{obj}}, nil
}

// ByteArray is an untyped 8-bit indexable object.
type ByteArray struct {
	objmem.Object
}

// AsByteArray validates w as an 8-bit indexable object.
func AsByteArray(space *objmem.Space, w objmem.Word) (ByteArray, error) {
	obj, err := object(space, w, "ByteArray", isKind(objmem.Indexable8))
	if err != nil {
		return ByteArray{}, err
	}
	return ByteArray{obj}, nil
}

// NewByteArray allocates a ByteArray holding a copy of data.
func NewByteArray(space *objmem.Space, data []byte) (ByteArray, error) {
	obj, err := space.AllocateBytes(objmem.ClassIndexByteArray, data)
	if err != nil {
		return ByteArray{}, err
	}
	return ByteArray{obj}, nil
}

// Len returns the number of bytes.
func (a ByteArray) Len() int { return a.IndexableUnits() }

// ---------------------------------------------------------------------------
// WideString
// ---------------------------------------------------------------------------

// WideString is a string of 32-bit code points.
type WideString struct {
	objmem.Object
}

// AsWideString validates w as a 32-bit indexable object.
func AsWideString(space *objmem.Space, w objmem.Word) (WideString, error) {
	obj, err := object(space, w, "WideString", isKind(objmem.Indexable32))
	if err != nil {
		return WideString{}, err
	}
	return WideString{obj}, nil
}

// NewWideString allocates a WideString holding the code points of s.
func NewWideString(space *objmem.Space, s string) (WideString, error) {
	runes := []rune(s)
	obj, err := instantiate(space, objmem.WideStringClassName, len(runes))
	if err != nil {
		return WideString{}, err
	}
	for i, r := range runes {
		if err := obj.Uint32AtPut(i, uint32(r)); err != nil {
			return WideString{}, err
		}
	}
	return WideString{obj}, nil
}

// Len returns the number of code points.
func (s WideString) Len() int { return s.IndexableUnits() }

// Runes returns the code points. Values that are not valid Unicode are
// replaced with utf8.RuneError.
func (s WideString) Runes() []rune {
	runes := make([]rune, s.Len())
	for i := range runes {
		v, _ := s.Uint32At(i)
		r := rune(v)
		if !utf8.ValidRune(r) {
			r = utf8.RuneError
		}
		runes[i] = r
	}
	return runes
}

// String returns the contents as UTF-8.
func (s WideString) String() string { return string(s.Runes()) }

// ByteIndexToCharIndex maps a 0-based byte offset into the UTF-8 encoding
// of s to the 1-based index of the character containing it. Offsets past
// the end map to the last character.
func (s WideString) ByteIndexToCharIndex(byteIndex int) int {
	charIndex := 1
	offset := 0
	for _, r := range s.Runes() {
		offset += utf8.RuneLen(r)
		if offset > byteIndex {
			return charIndex
		}
		charIndex++
	}
	return min(charIndex, s.Len())
}
