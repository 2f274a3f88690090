package primitives

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// accessorDepthSuffix follows the NUL terminating a primitive name. The VM
// reads the byte after it as the primitive's accessor depth; 0xFF means
// "no accessor depth".
const accessorDepthSuffix = "\x00\xff"

const pointerSize = int(unsafe.Sizeof(uintptr(0)))

// recordSize is the size of one export record: plugin name, primitive
// name and function address.
const recordSize = 3 * pointerSize

// ErrDuplicateExport is returned when a primitive is exported twice under
// one plugin name.
var ErrDuplicateExport = errors.New("primitive already exported")

// Export is one named primitive.
type Export struct {
	Plugin  string
	Name    string
	Address uint64
}

// ExportTable collects named primitives in registration order.
type ExportTable struct {
	mu      sync.RWMutex
	exports []Export
	index   map[string]int
}

// NewExportTable creates an empty table.
func NewExportTable() *ExportTable {
	return &ExportTable{index: make(map[string]int)}
}

// Export registers fn as plugin's primitive name.
func (t *ExportTable) Export(plugin, name string, fn func()) error {
	if fn == nil {
		return fmt.Errorf("export %s: nil function", name)
	}
	return t.ExportAddress(plugin, name, uint64(reflect.ValueOf(fn).Pointer()))
}

// ExportAddress registers a primitive by address.
func (t *ExportTable) ExportAddress(plugin, name string, addr uint64) error {
	if name == "" || addr == 0 {
		return fmt.Errorf("export %q: name and address are required", name)
	}
	key := plugin + "\x00" + name
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[key]; ok {
		return fmt.Errorf("%w: %s>>%s", ErrDuplicateExport, plugin, name)
	}
	t.index[key] = len(t.exports)
	t.exports = append(t.exports, Export{Plugin: plugin, Name: name, Address: addr})
	return nil
}

// Exports returns a copy of the registered exports.
func (t *ExportTable) Exports() []Export {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Export(nil), t.exports...)
}

// Lookup finds a primitive by name.
func (t *ExportTable) Lookup(plugin, name string) (Export, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[plugin+"\x00"+name]
	if !ok {
		return Export{}, false
	}
	return t.exports[i], true
}

// Len returns the number of exports.
func (t *ExportTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.exports)
}

// ---------------------------------------------------------------------------
// Binary layout
// ---------------------------------------------------------------------------

// EncodedTable is an export table laid out off the Go heap: the records
// followed by an all-null terminator, then the NUL-terminated names the
// records point at. Primitive names carry the accessor depth suffix.
type EncodedTable struct {
	mem []byte
}

// Encode writes the table into a fresh anonymous mapping.
func (t *ExportTable) Encode() (*EncodedTable, error) {
	exports := t.Exports()

	records := (len(exports) + 1) * recordSize
	size := records
	for _, e := range exports {
		size += len(e.Plugin) + 1 + len(e.Name) + len(accessorDepthSuffix)
	}

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("map export table: %w", err)
	}
	base := uint64(uintptr(unsafe.Pointer(&mem[0])))

	strings := records
	putString := func(s string) uint64 {
		addr := base + uint64(strings)
		strings += copy(mem[strings:], s)
		return addr
	}

	for i, e := range exports {
		record := mem[i*recordSize:]
		plugin := putString(e.Plugin + "\x00")
		name := putString(e.Name + accessorDepthSuffix)
		putPointer(record[0:], plugin)
		putPointer(record[pointerSize:], name)
		putPointer(record[2*pointerSize:], e.Address)
	}
	// The terminator is already zero.
	return &EncodedTable{mem: mem}, nil
}

// Address returns the address of the first record.
func (e *EncodedTable) Address() uint64 {
	if len(e.mem) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&e.mem[0])))
}

// Bytes returns the encoded region.
func (e *EncodedTable) Bytes() []byte { return e.mem }

// Close unmaps the region.
func (e *EncodedTable) Close() error {
	if e.mem == nil {
		return nil
	}
	err := unix.Munmap(e.mem)
	e.mem = nil
	return err
}

// Record returns the three fields of record i.
func (e *EncodedTable) Record(i int) (plugin, name, addr uint64) {
	r := e.mem[i*recordSize:]
	return getPointer(r), getPointer(r[pointerSize:]), getPointer(r[2*pointerSize:])
}

// CountValid walks the records and counts them up to the first one with a
// null field.
func CountValid(mem []byte) int {
	n := 0
	for off := 0; off+recordSize <= len(mem); off += recordSize {
		r := mem[off:]
		if getPointer(r) == 0 || getPointer(r[pointerSize:]) == 0 || getPointer(r[2*pointerSize:]) == 0 {
			break
		}
		n++
	}
	return n
}

// CString reads the NUL-terminated string at addr inside the region.
func (e *EncodedTable) CString(addr uint64) (string, error) {
	base := e.Address()
	if addr < base || addr >= base+uint64(len(e.mem)) {
		return "", fmt.Errorf("address %#x outside export table", addr)
	}
	rest := e.mem[addr-base:]
	for i, b := range rest {
		if b == 0 {
			return string(rest[:i]), nil
		}
	}
	return "", fmt.Errorf("unterminated string at %#x", addr)
}

func putPointer(b []byte, v uint64) {
	if pointerSize == 4 {
		binary.NativeEndian.PutUint32(b, uint32(v))
		return
	}
	binary.NativeEndian.PutUint64(b, v)
}

func getPointer(b []byte) uint64 {
	if pointerSize == 4 {
		return uint64(binary.NativeEndian.Uint32(b))
	}
	return binary.NativeEndian.Uint64(b)
}
