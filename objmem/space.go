package objmem

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// WordSize is the size in bytes of a Word and of an object header.
const WordSize = 8

// overflowMarker is the top byte of an overflow slot-count word. It lets a
// heap walk tell the overflow word apart from the header that follows it.
const overflowMarker uint64 = 0xFF << 56

// Space is a contiguous object memory region. Object addresses are real
// process addresses (base + offset) so they can be handed to native code,
// but every load and store goes through the backing slice.
//
// A Space is not safe for concurrent use. One goroutine, the interpreter,
// owns it.
type Space struct {
	mem    []byte
	base   uint64
	free   uint64
	mapped bool

	classes     []Word
	classByName map[string]uint32
	classClass  uint32

	specials Word
	nilObj   Word
	trueObj  Word
	falseObj Word

	hashSeed uint32
}

// NewSpace maps an anonymous region of the given size in words.
func NewSpace(words int) (*Space, error) {
	if words <= 0 {
		return nil, fmt.Errorf("objmem: invalid space size %d", words)
	}
	mem, err := unix.Mmap(-1, 0, words*WordSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("objmem: mmap %d words: %w", words, err)
	}
	s := newSpace(mem)
	s.mapped = true
	return s, nil
}

// MapRegion adopts an existing word-aligned region. The region is cleared.
// Close does not unmap adopted regions.
func MapRegion(mem []byte) (*Space, error) {
	if len(mem) < WordSize {
		return nil, fmt.Errorf("objmem: region too small (%d bytes)", len(mem))
	}
	s := newSpace(mem[:len(mem)&^(WordSize-1)])
	if s.base%WordSize != 0 {
		return nil, fmt.Errorf("%w: region base %#x is not word aligned", ErrInvalidAddress, s.base)
	}
	clear(s.mem)
	return s, nil
}

func newSpace(mem []byte) *Space {
	return &Space{
		mem:         mem,
		base:        uint64(uintptr(unsafe.Pointer(unsafe.SliceData(mem)))),
		classes:     make([]Word, firstDynamicClassIndex),
		classByName: make(map[string]uint32),
		hashSeed:    1,
	}
}

// Close releases the region. The Space must not be used afterwards.
func (s *Space) Close() error {
	if s.mem == nil {
		return nil
	}
	var err error
	if s.mapped {
		err = unix.Munmap(s.mem)
	}
	s.mem = nil
	return err
}

// Base returns the address of the first byte of the region.
func (s *Space) Base() uint64 { return s.base }

// Size returns the capacity of the region in bytes.
func (s *Space) Size() int { return len(s.mem) }

// Used returns the number of bytes allocated so far.
func (s *Space) Used() int { return int(s.free) }

// Contains reports whether addr lies inside the allocated part of the region.
func (s *Space) Contains(addr uint64) bool {
	return addr >= s.base && addr < s.base+s.free
}

// ---------------------------------------------------------------------------
// Raw memory access
// ---------------------------------------------------------------------------

func (s *Space) offset(addr uint64) uint64 {
	return addr - s.base
}

func (s *Space) load64(addr uint64) uint64 {
	return binary.NativeEndian.Uint64(s.mem[s.offset(addr):])
}

func (s *Space) store64(addr uint64, v uint64) {
	binary.NativeEndian.PutUint64(s.mem[s.offset(addr):], v)
}

func (s *Space) slice(addr uint64, n int) []byte {
	off := s.offset(addr)
	return s.mem[off : off+uint64(n) : off+uint64(n)]
}

// LoadWord reads the word at addr, which must be inside the region and word
// aligned.
func (s *Space) LoadWord(addr uint64) (Word, error) {
	if err := s.checkAddress(addr); err != nil {
		return 0, err
	}
	return Word(s.load64(addr)), nil
}

// StoreWord writes the word at addr.
func (s *Space) StoreWord(addr uint64, w Word) error {
	if err := s.checkAddress(addr); err != nil {
		return err
	}
	s.store64(addr, uint64(w))
	return nil
}

func (s *Space) checkAddress(addr uint64) error {
	if !s.Contains(addr) || addr%WordSize != 0 {
		return fmt.Errorf("%w: %#x", ErrInvalidAddress, addr)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Object references
// ---------------------------------------------------------------------------

// Object validates w as a reference to a live heap object: it must not be
// an immediate, must be a word-aligned address inside the region and must
// not be forwarded. References are not cached; callers revalidate on use.
func (s *Space) Object(w Word) (Object, error) {
	o, err := s.anyObject(w)
	if err != nil {
		return Object{}, err
	}
	if o.IsForwarded() {
		return Object{}, fmt.Errorf("%w: %#x", ErrForwarded, uint64(w))
	}
	return o, nil
}

func (s *Space) anyObject(w Word) (Object, error) {
	if w.IsImmediate() {
		return Object{}, fmt.Errorf("%w: immediate %#x", ErrNotAnObject, uint64(w))
	}
	addr := uint64(w)
	if !s.Contains(addr) {
		return Object{}, fmt.Errorf("%w: %#x", ErrInvalidAddress, addr)
	}
	return Object{space: s, addr: addr}, nil
}

// ObjectUnchecked wraps w without any validation. Only for callers that
// already know w is a live object, such as a heap walk.
func (s *Space) ObjectUnchecked(w Word) Object {
	return Object{space: s, addr: uint64(w)}
}

// Header returns the header of the object w refers to. Forwarded objects are
// accepted, since their header is still meaningful.
func (s *Space) Header(w Word) (Header, error) {
	o, err := s.anyObject(w)
	if err != nil {
		return 0, err
	}
	return o.Header(), nil
}

// Follow resolves w through any chain of forwarders to the live object.
func (s *Space) Follow(w Word) (Object, error) {
	for {
		o, err := s.anyObject(w)
		if err != nil {
			return Object{}, err
		}
		if !o.IsForwarded() {
			return o, nil
		}
		w = Word(s.load64(o.addr + WordSize))
	}
}

// Forward turns from into a forwarder pointing at to. The original slot
// count is kept so the heap stays walkable.
func (s *Space) Forward(from, to Object) {
	h := from.Header().WithClassIndex(forwardedClassIndexPun).WithFormat(FormatForwarded)
	from.SetHeader(h)
	s.store64(from.addr+WordSize, uint64(to.addr))
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// Allocate bump-allocates an object with the given class index, format and
// slot count. The body is zero filled and always at least one word, so any
// object can later become a forwarder.
func (s *Space) Allocate(classIndex uint32, format Format, numSlots int) (Object, error) {
	if numSlots < 0 || int64(numSlots) > MaxSlots {
		return Object{}, &SlotCountError{Want: int(MaxSlots), Got: numSlots}
	}
	if classIndex <= forwardedClassIndexPun || classIndex > MaxClassIndex {
		return Object{}, fmt.Errorf("objmem: class index %d out of range", classIndex)
	}
	body := uint64(max(numSlots, 1)) * WordSize
	size := WordSize + body
	overflow := numSlots >= OverflowSlots
	if overflow {
		size += WordSize
	}
	if s.free+size > uint64(len(s.mem)) {
		return Object{}, fmt.Errorf("%w: need %d bytes, %d free", ErrOutOfMemory, size, uint64(len(s.mem))-s.free)
	}

	addr := s.base + s.free
	if overflow {
		s.store64(addr, uint64(numSlots)|overflowMarker)
		addr += WordSize
	}
	s.free += size
	clear(s.slice(addr, int(WordSize+body)))
	s.store64(addr, uint64(NewHeader(classIndex, format, numSlots)))
	return Object{space: s, addr: addr}, nil
}

// AllObjects calls fn for every object in allocation order, forwarders
// included. Iteration stops when fn returns false.
func (s *Space) AllObjects(fn func(Object) bool) {
	addr := s.base
	end := s.base + s.free
	for addr < end {
		if s.load64(addr)&overflowMarker == overflowMarker {
			addr += WordSize
		}
		o := Object{space: s, addr: addr}
		if !fn(o) {
			return
		}
		addr += WordSize + uint64(max(o.NumSlots(), 1))*WordSize
	}
}

// ---------------------------------------------------------------------------
// Identity hash
// ---------------------------------------------------------------------------

// nextHash advances the identity hash generator and returns a non-zero
// 22-bit hash.
func (s *Space) nextHash() uint32 {
	for {
		s.hashSeed = s.hashSeed*1103515245 + 12345
		if h := (s.hashSeed >> 8) & MaxIdentityHash; h != 0 {
			return h
		}
	}
}
