//go:build libffi && linux && cgo

package ffi

/*
#define _GNU_SOURCE
#cgo LDFLAGS: -ldl
#cgo pkg-config: libffi
#include <ffi.h>
#include <dlfcn.h>
#include <stdlib.h>

static void* spur_dlopen(const char* path) {
	return dlopen(path, RTLD_LAZY | RTLD_LOCAL);
}
static const char* spur_dlerror(void) {
	return dlerror();
}
static int spur_dlclose(void* h) {
	return dlclose(h);
}

// Clear dlerror, call dlsym, and return the error (if any) alongside the symbol.
static void* spur_dlsym(void* h, const char* name, char** err) {
	dlerror();
	void* p = dlsym(h, name);
	char* e = dlerror();
	if (e) { *err = e; return NULL; }
	*err = NULL;
	return p;
}

static ffi_cif* spur_alloc_cif(void) {
	return (ffi_cif*)malloc(sizeof(ffi_cif));
}

static void spur_ffi_call(ffi_cif* cif, void* fn, void* rvalue, void** avalue) {
	ffi_call(cif, (void (*)(void))fn, rvalue, avalue);
}
*/
import "C"

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/chazu/spur/marshal"
)

const dynamicAvailable = true

// slotBytes is the size of every argument buffer and of the result
// buffer; libffi widens small integer results to a full ffi_arg.
const slotBytes = 8

func dlerr() string {
	if e := C.spur_dlerror(); e != nil {
		return C.GoString(e)
	}
	return "unknown dlerror"
}

// Open dlopens name, trying each search directory for relative names.
func (l *DynamicLoader) Open(name string) (Library, error) {
	candidates := []string{name}
	if !strings.Contains(name, "/") {
		candidates = candidates[:0]
		for _, dir := range l.Search {
			candidates = append(candidates, filepath.Join(dir, name))
		}
		candidates = append(candidates, name)
	}

	var last string
	for _, path := range candidates {
		cs := C.CString(path)
		h := C.spur_dlopen(cs)
		C.free(unsafe.Pointer(cs))
		if h != nil {
			return &dynamicLibrary{name: name, handle: h}, nil
		}
		last = dlerr()
	}
	return nil, &ResolveError{Module: name, Err: fmt.Errorf("%w: %s", ErrNoLibrary, last)}
}

type dynamicLibrary struct {
	name   string
	handle unsafe.Pointer
	closed atomic.Bool
}

func (lib *dynamicLibrary) Name() string { return lib.name }

func (lib *dynamicLibrary) Bind(symbol string, sig Signature) (Function, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	cs := C.CString(symbol)
	defer C.free(unsafe.Pointer(cs))
	var cerr *C.char
	p := C.spur_dlsym(lib.handle, cs, &cerr)
	if cerr != nil {
		return nil, &ResolveError{Module: lib.name, Symbol: symbol, Err: fmt.Errorf("%w: %s", ErrNoSymbol, C.GoString(cerr))}
	}

	f := &dynamicFunction{sig: sig, fn: p}
	if err := f.prepare(); err != nil {
		f.release()
		return nil, &ResolveError{Module: lib.name, Symbol: symbol, Err: err}
	}
	return f, nil
}

func (lib *dynamicLibrary) Close() error {
	if lib.closed.Swap(true) {
		return nil
	}
	if C.spur_dlclose(lib.handle) != 0 {
		return fmt.Errorf("dlclose(%q) failed: %s", lib.name, dlerr())
	}
	return nil
}

// dynamicFunction owns a C-heap cif and its argument type vector.
type dynamicFunction struct {
	sig    Signature
	fn     unsafe.Pointer
	cif    *C.ffi_cif
	atypes **C.ffi_type
}

func ffiType(t marshal.Type) *C.ffi_type {
	switch t {
	case marshal.Void:
		return &C.ffi_type_void
	case marshal.Bool, marshal.U8, marshal.UChar:
		return &C.ffi_type_uint8
	case marshal.I8, marshal.SChar:
		return &C.ffi_type_sint8
	case marshal.U16, marshal.UShort:
		return &C.ffi_type_uint16
	case marshal.I16, marshal.Short:
		return &C.ffi_type_sint16
	case marshal.U32, marshal.UInt:
		return &C.ffi_type_uint32
	case marshal.I32, marshal.Int:
		return &C.ffi_type_sint32
	case marshal.U64, marshal.ULongLong, marshal.USize, marshal.ULong:
		return &C.ffi_type_uint64
	case marshal.I64, marshal.LongLong, marshal.ISize, marshal.Long:
		return &C.ffi_type_sint64
	case marshal.F32:
		return &C.ffi_type_float
	case marshal.F64:
		return &C.ffi_type_double
	}
	return &C.ffi_type_pointer
}

func (f *dynamicFunction) prepare() error {
	n := len(f.sig.Args)
	if n > 0 {
		mem := C.malloc(C.size_t(n) * C.size_t(unsafe.Sizeof(uintptr(0))))
		if mem == nil {
			return fmt.Errorf("ffi_prep_cif: out of memory")
		}
		types := unsafe.Slice((**C.ffi_type)(mem), n)
		for i, t := range f.sig.Args {
			types[i] = ffiType(t)
		}
		f.atypes = (**C.ffi_type)(mem)
	}
	if f.cif = C.spur_alloc_cif(); f.cif == nil {
		return fmt.Errorf("ffi_prep_cif: out of memory")
	}
	if st := C.ffi_prep_cif(f.cif, C.FFI_DEFAULT_ABI, C.uint(n), ffiType(f.sig.Return), f.atypes); st != C.FFI_OK {
		return fmt.Errorf("ffi_prep_cif failed: %d", int(st))
	}
	return nil
}

func (f *dynamicFunction) release() {
	if f.cif != nil {
		C.free(unsafe.Pointer(f.cif))
		f.cif = nil
	}
	if f.atypes != nil {
		C.free(unsafe.Pointer(f.atypes))
		f.atypes = nil
	}
}

func (f *dynamicFunction) Address() uint64 { return uint64(uintptr(f.fn)) }

func (f *dynamicFunction) Signature() Signature { return f.sig }

// Call copies each argument into its own C-heap slot, calls through libffi
// and reads the result slot back.
func (f *dynamicFunction) Call(args []marshal.Value) (marshal.Value, error) {
	if err := f.sig.CheckArgumentCount(len(args)); err != nil {
		return marshal.Value{}, err
	}
	n := len(args)

	var argv unsafe.Pointer
	if n > 0 {
		argv = C.calloc(C.size_t(n), C.size_t(unsafe.Sizeof(uintptr(0))))
		if argv == nil {
			return marshal.Value{}, fmt.Errorf("ffi_call: out of memory")
		}
		defer C.free(argv)
	}
	slots := unsafe.Slice((*unsafe.Pointer)(argv), n)
	for i, v := range args {
		slot := C.calloc(1, slotBytes)
		if slot == nil {
			return marshal.Value{}, fmt.Errorf("ffi_call: out of memory")
		}
		defer C.free(slot)
		storeValue(unsafe.Slice((*byte)(slot), slotBytes), v)
		slots[i] = slot
	}

	result := C.calloc(1, slotBytes)
	if result == nil {
		return marshal.Value{}, fmt.Errorf("ffi_call: out of memory")
	}
	defer C.free(result)

	C.spur_ffi_call(f.cif, f.fn, result, (*unsafe.Pointer)(argv))

	raw := unsafe.Slice((*byte)(result), slotBytes)
	switch t := f.sig.Return; {
	case t == marshal.Void:
		return marshal.VoidValue(), nil
	case t == marshal.F32:
		return marshal.RawValue(t, uint64(binary.NativeEndian.Uint32(raw))), nil
	default:
		return marshal.RawValue(t, binary.NativeEndian.Uint64(raw)), nil
	}
}

func storeValue(buf []byte, v marshal.Value) {
	switch v.Type().Size() {
	case 1:
		buf[0] = byte(v.Bits())
	case 2:
		binary.NativeEndian.PutUint16(buf, uint16(v.Bits()))
	case 4:
		binary.NativeEndian.PutUint32(buf, uint32(v.Bits()))
	default:
		binary.NativeEndian.PutUint64(buf, v.Bits())
	}
}
