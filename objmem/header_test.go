package objmem

import "testing"

func TestHeaderFieldsRoundTrip(t *testing.T) {
	var h Header
	h = h.WithClassIndex(MaxClassIndex).
		WithImmutable(true).
		WithFormat(FormatFromBits(17)).
		WithRemembered(true).
		WithPinned(true).
		WithGrey(true).
		WithIdentityHash(0x2AAAAA).
		WithMarked(true).
		WithNumSlots(200)

	if got := h.ClassIndex(); got != MaxClassIndex {
		t.Errorf("ClassIndex() = %d, want %d", got, MaxClassIndex)
	}
	if got := h.Format().Bits(); got != 17 {
		t.Errorf("Format().Bits() = %d, want 17", got)
	}
	if got := h.IdentityHash(); got != 0x2AAAAA {
		t.Errorf("IdentityHash() = %#x, want 0x2aaaaa", got)
	}
	if got := h.NumSlots(); got != 200 {
		t.Errorf("NumSlots() = %d, want 200", got)
	}
	if !h.IsImmutable() || !h.IsRemembered() || !h.IsPinned() || !h.IsGrey() || !h.IsMarked() {
		t.Errorf("flags not all set: %v", h)
	}

	cleared := h.WithImmutable(false).WithPinned(false)
	if cleared.IsImmutable() || cleared.IsPinned() {
		t.Error("flags not cleared")
	}
	if cleared.ClassIndex() != MaxClassIndex || cleared.IdentityHash() != 0x2AAAAA || cleared.NumSlots() != 200 {
		t.Errorf("clearing flags disturbed other fields: %v", cleared)
	}
}

func TestHeaderBitPositions(t *testing.T) {
	tests := []struct {
		name string
		h    Header
		want uint64
	}{
		{"classIndex", Header(0).WithClassIndex(1), 1},
		{"immutable", Header(0).WithImmutable(true), 1 << 23},
		{"format", Header(0).WithFormat(FormatFromBits(1)), 1 << 24},
		{"remembered", Header(0).WithRemembered(true), 1 << 29},
		{"pinned", Header(0).WithPinned(true), 1 << 30},
		{"grey", Header(0).WithGrey(true), 1 << 31},
		{"identityHash", Header(0).WithIdentityHash(1), 1 << 32},
		{"marked", Header(0).WithMarked(true), 1 << 55},
		{"numSlots", Header(0).WithNumSlots(1), 1 << 56},
	}
	for _, tt := range tests {
		if uint64(tt.h) != tt.want {
			t.Errorf("%s: header = %#x, want %#x", tt.name, uint64(tt.h), tt.want)
		}
	}
}

func TestFormatFromBits(t *testing.T) {
	tests := []struct {
		bits uint8
		want FormatKind
	}{
		{0, ZeroSized},
		{1, NonIndexable},
		{2, IndexableNoFields},
		{3, IndexableWithFields},
		{4, WeakIndexable},
		{5, WeakNonIndexable},
		{6, Unsupported},
		{7, Forwarded},
		{8, Unsupported},
		{9, Indexable64},
		{10, Indexable32},
		{11, Indexable32},
		{12, Indexable16},
		{15, Indexable16},
		{16, Indexable8},
		{23, Indexable8},
		{24, CompiledMethod},
		{31, CompiledMethod},
	}
	for _, tt := range tests {
		f := FormatFromBits(tt.bits)
		if f.Kind() != tt.want {
			t.Errorf("FormatFromBits(%d).Kind() = %v, want %v", tt.bits, f.Kind(), tt.want)
		}
		if f.Bits() != tt.bits {
			t.Errorf("FormatFromBits(%d).Bits() = %d", tt.bits, f.Bits())
		}
	}
}

// closedFormUnits is the indexable unit count written out per format value.
func closedFormUnits(bits uint8, slots int) int {
	switch {
	case bits <= 5 || bits == 9:
		return slots
	case bits == 10 || bits == 11:
		return slots<<1 - int(bits&1)
	case bits >= 12 && bits <= 15:
		return slots<<2 - int(bits&3)
	case bits >= 16:
		return slots<<3 - int(bits&7)
	default:
		return 0
	}
}

func TestIndexableUnitsEveryFormat(t *testing.T) {
	for bits := uint8(0); bits < 32; bits++ {
		for _, slots := range []int{0, 13} {
			h := NewHeader(100, FormatFromBits(bits), slots)
			got := h.Format().IndexableUnits(int(h.NumSlots()))
			want := closedFormUnits(bits, slots)
			if got != want {
				t.Errorf("format %d, slots %d: IndexableUnits = %d, want %d", bits, slots, got, want)
			}
		}
	}
}

func TestSizedFormatRoundTrip(t *testing.T) {
	for _, kind := range []FormatKind{Indexable8, Indexable16, Indexable32, CompiledMethod} {
		for n := 0; n < 20; n++ {
			f, slots := SizedFormat(kind, n)
			if f.Kind() != kind {
				t.Errorf("SizedFormat(%v, %d) kind = %v", kind, n, f.Kind())
			}
			if got := f.IndexableUnits(slots); got != n {
				t.Errorf("SizedFormat(%v, %d) holds %d units", kind, n, got)
			}
		}
	}
}
