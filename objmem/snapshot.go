package objmem

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// SnapshotVersion is the current snapshot layout version.
const SnapshotVersion = 1

// compiledMethodLiteralMask extracts the literal count from a method header.
const compiledMethodLiteralMask = 0x7FFF

// snapshot is the serialized form of a Space. Heap holds the allocated part
// of the region verbatim; pointers inside it are relative to Base and are
// relocated on load.
type snapshot struct {
	Version    int      `cbor:"1,keyasint"`
	Base       uint64   `cbor:"2,keyasint"`
	Size       int      `cbor:"3,keyasint"`
	Heap       []byte   `cbor:"4,keyasint"`
	Classes    []uint64 `cbor:"5,keyasint"`
	ClassClass uint32   `cbor:"6,keyasint"`
	Specials   uint64   `cbor:"7,keyasint"`
	HashSeed   uint32   `cbor:"8,keyasint"`
}

var snapshotEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("objmem: failed to create CBOR enc mode: %v", err))
	}
	snapshotEncMode = em
}

// WriteSnapshot encodes the allocated heap, the class table and the special
// objects array to w.
func (s *Space) WriteSnapshot(w io.Writer) error {
	snap := snapshot{
		Version:    SnapshotVersion,
		Base:       s.base,
		Size:       len(s.mem),
		Heap:       s.mem[:s.free],
		Classes:    make([]uint64, len(s.classes)),
		ClassClass: s.classClass,
		Specials:   uint64(s.specials),
		HashSeed:   s.hashSeed,
	}
	for i, c := range s.classes {
		snap.Classes[i] = uint64(c)
	}
	data, err := snapshotEncMode.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("objmem: encode snapshot: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("objmem: write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot maps a new Space and restores a snapshot into it, relocating
// every pointer to the new base address.
func ReadSnapshot(r io.Reader) (*Space, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("objmem: read snapshot: %w", err)
	}
	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("objmem: unmarshal snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}

	size := max(snap.Size, len(snap.Heap))
	s, err := NewSpace((size + WordSize - 1) / WordSize)
	if err != nil {
		return nil, err
	}
	copy(s.mem, snap.Heap)
	s.free = uint64(len(snap.Heap))
	s.classClass = snap.ClassClass
	s.hashSeed = snap.HashSeed

	reloc := relocator{from: snap.Base, to: s.base, used: s.free}
	s.AllObjects(func(o Object) bool {
		reloc.object(o)
		return true
	})

	s.classes = make([]Word, len(snap.Classes))
	for i, c := range snap.Classes {
		s.classes[i] = reloc.word(Word(c))
	}
	for i, c := range s.classes {
		if c == 0 {
			continue
		}
		cls := s.ObjectUnchecked(c)
		if name := s.ClassName(cls); name != "" {
			s.classByName[name] = uint32(i)
		}
	}

	if snap.Specials != 0 {
		specials, err := s.Object(reloc.word(Word(snap.Specials)))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("objmem: snapshot special objects: %w", err)
		}
		if err := s.SetSpecialObjects(specials); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

type relocator struct {
	from, to, used uint64
}

func (r relocator) word(w Word) Word {
	addr := uint64(w)
	if w == 0 || !w.IsPointer() || addr < r.from || addr >= r.from+r.used {
		return w
	}
	return Word(addr - r.from + r.to)
}

func (r relocator) slot(o Object, i int) {
	addr := o.fieldAddress(i)
	o.space.store64(addr, uint64(r.word(Word(o.space.load64(addr)))))
}

func (r relocator) object(o Object) {
	f := o.Format()
	switch {
	case f.Kind() == Forwarded:
		r.slot(o, 0)
	case f.IsPointers():
		for i, n := 0, o.NumSlots(); i < n; i++ {
			r.slot(o, i)
		}
	case f.Kind() == CompiledMethod:
		if o.NumSlots() == 0 {
			return
		}
		header, ok := Word(o.space.load64(o.fieldAddress(0))).Integer()
		if !ok {
			return
		}
		literals := min(int(header&compiledMethodLiteralMask), o.NumSlots()-1)
		for i := 1; i <= literals; i++ {
			r.slot(o, i)
		}
	}
}
