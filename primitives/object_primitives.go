package primitives

import (
	"fmt"
	"strings"

	"github.com/chazu/spur/objmem"
	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/proxy"
)

func (p *Plugin) registerObjectPrimitives() error {
	for _, prim := range []struct {
		name  string
		entry func()
		run   func(*Plugin)
	}{
		{"primitiveIdentityHash", PrimitiveIdentityHash, (*Plugin).IdentityHash},
		{"primitiveIdentityDictionaryScanFor", PrimitiveIdentityDictionaryScanFor, (*Plugin).IdentityDictionaryScanFor},
		{"primitiveWideStringByteIndexToCharIndex", PrimitiveWideStringByteIndexToCharIndex, (*Plugin).WideStringByteIndexToCharIndex},
		{"primitiveFirstBytePointerOfDataObject", PrimitiveFirstBytePointerOfDataObject, (*Plugin).FirstBytePointerOfDataObject},
		{"primitiveDebugPrintArray", PrimitiveDebugPrintArray, (*Plugin).DebugPrintArray},
	} {
		if err := p.register(prim.name, prim.entry, prim.run); err != nil {
			return err
		}
	}
	return nil
}

// IdentityHash answers the identity hash of the object on top of the
// stack.
func (p *Plugin) IdentityHash() {
	const name = "primitiveIdentityHash"
	obj, err := p.interp.StackObjectValue(0)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	p.returnInteger(name, int64(obj.IdentityHash()))
}

// IdentityDictionaryScanFor answers the 1-based index of the association
// holding the key, or of the first empty slot, probing from the given
// hash. It answers 0 when the dictionary has neither.
func (p *Plugin) IdentityDictionaryScanFor() {
	const name = "primitiveIdentityDictionaryScanFor"
	if !p.checkArgumentCount(name, 2) {
		return
	}
	hash, err := p.interp.StackIntegerValue(0)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	key := p.interp.StackValue(1)
	dictionary := p.interp.StackValue(2)

	index, err := objects.ScanForIndex(p.interp.Space(), dictionary, key, uint32(hash))
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadReceiver)
		return
	}
	p.returnInteger(name, int64(index))
}

// WideStringByteIndexToCharIndex maps a byte offset into the UTF-8
// encoding of the receiver to a 1-based character index.
func (p *Plugin) WideStringByteIndexToCharIndex() {
	const name = "primitiveWideStringByteIndexToCharIndex"
	if !p.checkArgumentCount(name, 1) {
		return
	}
	offset, err := p.interp.StackIntegerValue(0)
	if err == nil && offset < 0 {
		err = fmt.Errorf("negative byte offset %d", offset)
	}
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	ws, err := objects.AsWideString(p.interp.Space(), p.interp.StackValue(1))
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadReceiver)
		return
	}
	p.returnInteger(name, int64(ws.ByteIndexToCharIndex(int(offset))))
}

// FirstBytePointerOfDataObject answers the address of the first payload
// byte of the object on top of the stack.
func (p *Plugin) FirstBytePointerOfDataObject() {
	const name = "primitiveFirstBytePointerOfDataObject"
	obj, err := p.interp.StackObjectValue(0)
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	p.returnAddress(name, obj.FirstFieldAddress())
}

// DebugPrintArray logs every element of the Array on top of the stack and
// answers true.
func (p *Plugin) DebugPrintArray() {
	const name = "primitiveDebugPrintArray"
	space := p.interp.Space()
	array, err := objects.AsArray(space, p.interp.StackValue(0))
	if err != nil {
		p.fail(name, err, proxy.PrimErrBadArgument)
		return
	}
	for i, w := range array.Words() {
		p.log.Infof("%s[%d] %s", name, i+1, Describe(space, w))
	}
	p.returnBool(true)
}

// Describe renders w for logs.
func Describe(space *objmem.Space, w objmem.Word) string {
	if n, ok := w.Integer(); ok {
		return fmt.Sprintf("SmallInteger(%d)", n)
	}
	if r, ok := w.Character(); ok {
		return fmt.Sprintf("Character(%q)", r)
	}
	if f, ok := w.SmallFloat(); ok {
		return fmt.Sprintf("SmallFloat64(%g)", f)
	}
	switch {
	case space.IsNil(w):
		return "nil"
	case w == space.True():
		return "true"
	case w == space.False():
		return "false"
	}
	obj, err := space.Object(w)
	if err != nil {
		return fmt.Sprintf("%#x (%s)", uint64(w), err)
	}
	var b strings.Builder
	if class, err := obj.Class(); err == nil {
		b.WriteString(space.ClassName(class))
		b.WriteByte(' ')
	}
	b.WriteString(obj.String())
	if s, err := objects.StringValue(space, w); err == nil {
		fmt.Fprintf(&b, " %q", s)
	}
	return b.String()
}
