package objects

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/spur/objmem"
)

func newSpace(t *testing.T) *objmem.Space {
	t.Helper()
	space, err := objmem.Boot(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { space.Close() })
	return space
}

func TestArray(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	a, err := NewArrayOf(space, objmem.FromInteger(1), objmem.FromInteger(2), space.Nil())
	requireT.NoError(err)
	requireT.Equal(3, a.Len())
	requireT.Equal([]objmem.Word{objmem.FromInteger(1), objmem.FromInteger(2), space.Nil()}, a.Words())

	again, err := AsArray(space, a.Word())
	requireT.NoError(err)
	requireT.True(again.IsIdentical(a.Object))

	str, err := NewByteString(space, "nope")
	requireT.NoError(err)
	_, err = AsArray(space, str.Word())
	var typeErr *objmem.TypeError
	requireT.ErrorAs(err, &typeErr)

	_, err = AsArray(space, objmem.FromInteger(4))
	requireT.ErrorIs(err, objmem.ErrNotAnObject)
}

func TestArrayCopyFromOverlapping(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	words := []objmem.Word{objmem.FromInteger(1), objmem.FromInteger(2), objmem.FromInteger(3), space.Nil()}
	a, err := NewArrayOf(space, words...)
	requireT.NoError(err)

	requireT.NoError(a.CopyFrom(1, a, 0, 3))
	requireT.Equal([]objmem.Word{
		objmem.FromInteger(1), objmem.FromInteger(1), objmem.FromInteger(2), objmem.FromInteger(3),
	}, a.Words())

	var bounds *objmem.BoundsError
	requireT.ErrorAs(a.CopyFrom(2, a, 0, 3), &bounds)
}

func TestStrings(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	s, err := NewByteString(space, "hello")
	requireT.NoError(err)
	requireT.Equal("hello", s.String())
	requireT.Equal(5, s.Len())

	sym, err := NewByteSymbol(space, "size")
	requireT.NoError(err)
	_, err = AsByteSymbol(space, sym.Word())
	requireT.NoError(err)
	_, err = AsByteSymbol(space, s.Word())
	requireT.Error(err)

	w, err := NewWideString(space, "héllo ☺")
	requireT.NoError(err)
	requireT.Equal("héllo ☺", w.String())
	requireT.Equal(7, w.Len())
}

func TestWideStringByteIndexToCharIndex(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	// "a" is 1 byte, "é" is 2, "☺" is 3
	w, err := NewWideString(space, "aé☺b")
	requireT.NoError(err)

	tests := []struct {
		byteIndex int
		want      int
	}{
		{0, 1},
		{1, 2},
		{2, 2},
		{3, 3},
		{5, 3},
		{6, 4},
		{100, 4},
	}
	for _, tt := range tests {
		requireT.Equal(tt.want, w.ByteIndexToCharIndex(tt.byteIndex), "byte index %d", tt.byteIndex)
	}
}

func TestExternalAddressRoundTrip(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	ea, err := NewExternalAddress(space, 0xDEADBEEF00)
	requireT.NoError(err)
	requireT.Equal(uint64(0xDEADBEEF00), ea.Address())
	requireT.False(ea.IsNull())

	view, err := AsExternalAddress(space, ea.Word())
	requireT.NoError(err)
	view.SetAddress(0)
	requireT.True(ea.IsNull())

	bytes, err := NewByteArray(space, make([]byte, 8))
	requireT.NoError(err)
	requireT.False(IsExternalAddress(space, bytes.Word()))
	_, err = AsExternalAddress(space, bytes.Word())
	var typeErr *objmem.TypeError
	requireT.ErrorAs(err, &typeErr)
}

func TestOrderedCollectionAppend(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	c, err := NewOrderedCollection(space, 0)
	requireT.NoError(err)
	for i := 0; i < 1000; i++ {
		requireT.NoError(c.AddLast(objmem.FromInteger(int64(i))))
	}
	requireT.Equal(1000, c.Len())

	next := int64(0)
	requireT.NoError(c.Do(func(w objmem.Word) bool {
		requireT.Equal(next, w.MustInteger())
		next++
		return true
	}))
	requireT.EqualValues(1000, next)

	w, err := c.At(999)
	requireT.NoError(err)
	requireT.EqualValues(999, w.MustInteger())

	_, err = c.At(1000)
	var bounds *objmem.BoundsError
	requireT.ErrorAs(err, &bounds)
}

func TestOrderedCollectionSlidesInsteadOfGrowing(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	c, err := NewOrderedCollection(space, 4)
	requireT.NoError(err)
	for i := 1; i <= 4; i++ {
		requireT.NoError(c.AddLast(objmem.FromInteger(int64(i))))
	}
	for i := 1; i <= 3; i++ {
		w, err := c.RemoveFirst()
		requireT.NoError(err)
		requireT.EqualValues(i, w.MustInteger())
	}

	requireT.NoError(c.AddLast(objmem.FromInteger(5)))
	array, err := c.array()
	requireT.NoError(err)
	requireT.Equal(4, array.Len())
	requireT.Equal(2, c.firstIndex())
	requireT.Equal(3, c.lastIndex())
	requireT.Equal(2, c.Len())

	first, _ := c.At(0)
	second, _ := c.At(1)
	requireT.EqualValues(4, first.MustInteger())
	requireT.EqualValues(5, second.MustInteger())
}

func TestOrderedCollectionRemoveAllResets(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	c, err := NewOrderedCollection(space, 2)
	requireT.NoError(err)
	requireT.NoError(c.AddLast(space.True()))
	_, err = c.RemoveFirst()
	requireT.NoError(err)
	requireT.Equal(0, c.Len())
	requireT.Equal(1, c.firstIndex())

	_, err = c.RemoveFirst()
	requireT.ErrorIs(err, ErrEmptyCollection)
}

func TestIdentityDictionaryAcrossGrow(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	d, err := NewIdentityDictionary(space, 4)
	requireT.NoError(err)

	const n = 200
	keys := make([]objmem.Word, n)
	for i := range keys {
		key, err := NewArray(space, 0)
		requireT.NoError(err)
		keys[i] = key.Word()
		requireT.NoError(d.AtPut(keys[i], objmem.FromInteger(int64(i))))
	}
	requireT.Equal(n, d.Len())

	array, err := d.array()
	requireT.NoError(err)
	requireT.Greater(array.Len(), 4)
	requireT.GreaterOrEqual(array.Len()-d.Len(), max(array.Len()/4, 1))

	for i, key := range keys {
		v, ok, err := d.At(key)
		requireT.NoError(err)
		requireT.True(ok)
		requireT.EqualValues(i, v.MustInteger())
	}

	stranger, err := NewArray(space, 0)
	requireT.NoError(err)
	_, ok, err := d.At(stranger.Word())
	requireT.NoError(err)
	requireT.False(ok)
}

func TestIdentityDictionaryImmediateKeysAndReplace(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	d, err := NewIdentityDictionary(space, 0)
	requireT.NoError(err)

	requireT.NoError(d.AtPut(objmem.FromInteger(7), space.True()))
	requireT.NoError(d.AtPut(objmem.FromCharacter('x'), space.False()))
	requireT.NoError(d.AtPut(objmem.FromInteger(7), space.Nil()))
	requireT.Equal(2, d.Len())

	v, ok, err := d.At(objmem.FromInteger(7))
	requireT.NoError(err)
	requireT.True(ok)
	requireT.Equal(space.Nil(), v)

	calls := 0
	makeDefault := func() (objmem.Word, error) {
		calls++
		return objmem.FromInteger(99), nil
	}
	v, err = d.GetOrInsert(objmem.FromInteger(8), makeDefault)
	requireT.NoError(err)
	requireT.EqualValues(99, v.MustInteger())
	v, err = d.GetOrInsert(objmem.FromInteger(8), makeDefault)
	requireT.NoError(err)
	requireT.EqualValues(99, v.MustInteger())
	requireT.Equal(1, calls)

	boom := errors.New("boom")
	_, err = d.GetOrInsert(objmem.FromInteger(9), func() (objmem.Word, error) { return 0, boom })
	requireT.ErrorIs(err, boom)
	requireT.Equal(3, d.Len())
}

func TestScanForIndex(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	d, err := NewIdentityDictionary(space, 8)
	requireT.NoError(err)
	key := objmem.FromInteger(3)
	requireT.NoError(d.AtPut(key, space.True()))

	i, err := d.ScanFor(key)
	requireT.NoError(err)

	hash, err := identityHashOf(space, key)
	requireT.NoError(err)
	got, err := ScanForIndex(space, d.Word(), key, hash)
	requireT.NoError(err)
	requireT.Equal(i+1, got)

	// An absent key lands on a free slot.
	free, err := ScanForIndex(space, d.Word(), objmem.FromInteger(1000), 0)
	requireT.NoError(err)
	requireT.Greater(free, 0)
}

func TestStringHash(t *testing.T) {
	tests := []struct {
		s    string
		want uint32
	}{
		{"", 13312},
		{"a", 39472877},
		{"hello", 107312072},
		{"size", 77806827},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, StringHash(tt.s), "hash of %q", tt.s)
	}
}

func TestWeakSymbolSet(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	set, err := NewWeakSymbolSet(space, 16)
	requireT.NoError(err)

	_, ok, err := set.FindLikeByteString("size")
	requireT.NoError(err)
	requireT.False(ok)

	names := []string{"size", "at:", "at:put:", "value", "hello"}
	for _, name := range names {
		_, err := set.Intern(name)
		requireT.NoError(err)
	}
	requireT.Equal(len(names), set.Len())

	for _, name := range names {
		sym, ok, err := set.FindLikeByteString(name)
		requireT.NoError(err)
		requireT.True(ok)
		requireT.Equal(name, sym.String())
	}

	first, err := set.Intern("size")
	requireT.NoError(err)
	again, _, _ := set.FindLikeByteString("size")
	requireT.True(first.IsIdentical(again.Object))
	requireT.Equal(len(names), set.Len())

	i, ok, err := set.ScanForByteString("size")
	requireT.NoError(err)
	requireT.True(ok)
	array, _ := set.array()
	requireT.Equal(int(StringHash("size")%uint32(array.Len())), i)
}

func TestCompiledMethodLiterals(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	m, err := NewCompiledMethod(space, 2, []byte{0x10, 0x20, 0x7C})
	requireT.NoError(err)
	requireT.Equal(2, m.NumLiterals())
	requireT.Equal([]byte{0x10, 0x20, 0x7C}, m.Bytecodes())

	lit, err := m.LiteralAt(1)
	requireT.NoError(err)
	requireT.Equal(space.Nil(), lit)

	requireT.NoError(m.SetLiteral(1, objmem.FromInteger(42)))
	lit, err = m.LiteralAt(1)
	requireT.NoError(err)
	requireT.EqualValues(42, lit.MustInteger())

	var bounds *objmem.BoundsError
	requireT.ErrorAs(m.SetLiteral(2, space.Nil()), &bounds)

	_, err = AsCompiledMethod(space, m.Word())
	requireT.NoError(err)
}

func TestIntegerBoxing(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	for _, n := range []int64{0, -5, objmem.MaxSmallInteger, objmem.MinSmallInteger,
		objmem.MaxSmallInteger + 1, objmem.MinSmallInteger - 1, math.MaxInt64, math.MinInt64} {
		w, err := NewInteger(space, n)
		requireT.NoError(err)
		got, err := IntegerValue(space, w)
		requireT.NoError(err)
		requireT.Equal(n, got)
		requireT.Equal(!objmem.IsSmallIntegerValue(n), IsLargeInteger(space, w))
	}

	for _, n := range []uint64{0, 1 << 60, math.MaxUint64} {
		w, err := NewUnsignedInteger(space, n)
		requireT.NoError(err)
		got, err := Unsigned64Value(space, w)
		requireT.NoError(err)
		requireT.Equal(n, got)
	}

	big, err := NewUnsignedInteger(space, math.MaxUint64)
	requireT.NoError(err)
	_, err = IntegerValue(space, big)
	requireT.ErrorIs(err, ErrIntegerTooLarge)

	_, err = Unsigned64Value(space, objmem.FromInteger(-1))
	requireT.ErrorIs(err, ErrNotAnInteger)
	_, err = IntegerValue(space, space.Nil())
	requireT.ErrorIs(err, ErrNotAnInteger)
}

func TestFloatBoxing(t *testing.T) {
	requireT := require.New(t)
	space := newSpace(t)

	for _, f := range []float64{0, 1.5, -2.25e10, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(-1)} {
		w, err := NewFloat(space, f)
		requireT.NoError(err)
		requireT.True(IsFloat(space, w))
		got, err := FloatValue(space, w)
		requireT.NoError(err)
		requireT.Equal(f, got)
	}

	boxed, err := NewFloat(space, math.MaxFloat64)
	requireT.NoError(err)
	requireT.True(boxed.IsPointer())

	_, err = FloatValue(space, objmem.FromInteger(1))
	requireT.ErrorIs(err, ErrNotAFloat)
}
