package objects

import (
	"github.com/chazu/spur/objmem"
)

// methodLiteralCountMask extracts the literal count from a method header.
const methodLiteralCountMask = 0x7FFF

// CompiledMethod is a method object: a SmallInteger header, the literal
// frame, then the bytecodes.
type CompiledMethod struct {
	objmem.Object
}

// AsCompiledMethod validates w as a compiled method (formats 24-31).
func AsCompiledMethod(space *objmem.Space, w objmem.Word) (CompiledMethod, error) {
	obj, err := object(space, w, "CompiledMethod", isKind(objmem.CompiledMethod))
	if err != nil {
		return CompiledMethod{}, err
	}
	return CompiledMethod{obj}, nil
}

// NewCompiledMethod allocates a method with numLiterals nil literals
// followed by bytecodes.
func NewCompiledMethod(space *objmem.Space, numLiterals int, bytecodes []byte) (CompiledMethod, error) {
	class, err := space.ClassNamed(objmem.CompiledMethodClassName)
	if err != nil {
		return CompiledMethod{}, err
	}
	literalBytes := (1 + numLiterals) * objmem.WordSize
	obj, err := space.InstantiateIndexable(class, literalBytes+len(bytecodes))
	if err != nil {
		return CompiledMethod{}, err
	}
	m := CompiledMethod{obj}
	if err := obj.FieldAtPut(0, objmem.FromInteger(int64(numLiterals&methodLiteralCountMask))); err != nil {
		return CompiledMethod{}, err
	}
	for i := 0; i < numLiterals; i++ {
		if err := obj.FieldAtPut(1+i, space.Nil()); err != nil {
			return CompiledMethod{}, err
		}
	}
	copy(obj.Bytes()[literalBytes:], bytecodes)
	return m, nil
}

// NumLiterals returns the literal count from the method header.
func (m CompiledMethod) NumLiterals() int {
	n, err := integerField(m.Object, 0)
	if err != nil {
		return 0
	}
	return int(n & methodLiteralCountMask)
}

// LiteralAt returns literal i (0-based).
func (m CompiledMethod) LiteralAt(i int) (objmem.Word, error) {
	if n := m.NumLiterals(); i < 0 || i >= n {
		return 0, &objmem.BoundsError{Index: i, Len: n}
	}
	return m.FieldAt(1 + i)
}

// SetLiteral replaces literal i (0-based).
func (m CompiledMethod) SetLiteral(i int, w objmem.Word) error {
	if n := m.NumLiterals(); i < 0 || i >= n {
		return &objmem.BoundsError{Index: i, Len: n}
	}
	return m.FieldAtPut(1+i, w)
}

// Bytecodes returns the bytes after the literal frame.
func (m CompiledMethod) Bytecodes() []byte {
	return m.Bytes()[(1+m.NumLiterals())*objmem.WordSize:]
}
