package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/suisim/sandbox/bcs"
)

func newObjectWithID(t *testing.T, id bcs.Address, extra ...byte) *SimulatedObject {
	t.Helper()
	bcsBytes := append(append([]byte(nil), id.Bytes()...), extra...)
	return &SimulatedObject{
		ID:       id,
		TypeTag:  bcs.Primitive(bcs.KindU64),
		BCSBytes: bcsBytes,
		Version:  1,
	}
}

func TestNew_SystemObjects(t *testing.T) {
	s := New(1000)
	clock, ok := s.Get(bcs.ClockObjectID)
	require.True(t, ok)
	assert.True(t, clock.IsShared)
	assert.False(t, clock.IsImmutable)

	random, ok := s.Get(bcs.RandomObjectID)
	require.True(t, ok)
	assert.True(t, random.IsShared)
}

func TestFreshID_MonotonicAndMarked(t *testing.T) {
	s := New(0)
	a := s.FreshID()
	b := s.FreshID()
	assert.Equal(t, byte(0xAA), a[0])
	assert.NotEqual(t, a, b)
}

func TestPut_RejectsSharedImmutable(t *testing.T) {
	s := New(0)
	id := s.FreshID()
	obj := newObjectWithID(t, id)
	obj.IsShared = true
	obj.IsImmutable = true
	assert.Error(t, s.Put(obj))
}

func TestPut_RejectsUIDMismatch(t *testing.T) {
	s := New(0)
	id := s.FreshID()
	obj := newObjectWithID(t, id)
	obj.BCSBytes[0] ^= 0xFF
	assert.Error(t, s.Put(obj))
}

func TestMutate_BumpsVersion(t *testing.T) {
	s := New(0)
	id := s.FreshID()
	require.NoError(t, s.Put(newObjectWithID(t, id)))

	err := s.Mutate(id, append(id.Bytes(), 9), nil)
	require.NoError(t, err)
	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Version)
}

func TestMutate_ExplicitVersion(t *testing.T) {
	s := New(0)
	id := s.FreshID()
	require.NoError(t, s.Put(newObjectWithID(t, id)))

	v := uint64(42)
	require.NoError(t, s.Mutate(id, append(id.Bytes(), 1), &v))
	got, _ := s.Get(id)
	assert.Equal(t, uint64(42), got.Version)
}

func TestAdvanceClock(t *testing.T) {
	s := New(100)
	require.NoError(t, s.AdvanceClock(200))
	clock, ok := s.Get(bcs.ClockObjectID)
	require.True(t, ok)
	assert.Equal(t, uint64(2), clock.Version)
}

func TestList_SortedByID(t *testing.T) {
	s := New(0)
	a := bcs.MustParseAddress("0x2")
	b := bcs.MustParseAddress("0x1")
	require.NoError(t, s.Put(newObjectWithID(t, a)))
	require.NoError(t, s.Put(newObjectWithID(t, b)))

	objs := s.List()
	// Two system objects + the two we added, all sorted ascending.
	var found []bcs.Address
	for _, o := range objs {
		if o.ID == a || o.ID == b {
			found = append(found, o.ID)
		}
	}
	require.Len(t, found, 2)
	assert.Equal(t, b, found[0])
	assert.Equal(t, a, found[1])
}

func TestDeriveChildID_MatchesBCSTypeTagFixture(t *testing.T) {
	parent := bcs.MustParseAddress("0x42")

	// u64 key: move-core-types TypeTag::U64 is enum discriminant 2
	// with no payload.
	keyBytes := bcs.NewEncoder().U64(7).Bytes()
	var primBuf []byte
	primBuf = append(primBuf, 0xF0)
	primBuf = append(primBuf, parent.Bytes()...)
	primBuf = append(primBuf, byte(len(keyBytes)))
	primBuf = append(primBuf, keyBytes...)
	primBuf = append(primBuf, 2) // TypeTag::U64 discriminant
	wantPrim := blake2b.Sum256(primBuf)
	assert.Equal(t, bcs.Address(wantPrim), DeriveChildID(parent, bcs.Primitive(bcs.KindU64), keyBytes))

	// struct key: TypeTag::Struct is discriminant 7, payload is
	// move-core-types' StructTag (address, module, name, type_params)
	// in that field order.
	structAddr := bcs.MustParseAddress("0x7")
	structKeyType := bcs.Struct(bcs.StructTag{Address: structAddr, Module: "tag", Name: "Key"})
	structKeyBytes := []byte{9, 9, 9}
	var structBuf []byte
	structBuf = append(structBuf, 0xF0)
	structBuf = append(structBuf, parent.Bytes()...)
	structBuf = append(structBuf, byte(len(structKeyBytes)))
	structBuf = append(structBuf, structKeyBytes...)
	structBuf = append(structBuf, 7) // TypeTag::Struct discriminant
	structBuf = append(structBuf, structAddr.Bytes()...)
	structBuf = append(structBuf, byte(len("tag")))
	structBuf = append(structBuf, []byte("tag")...)
	structBuf = append(structBuf, byte(len("Key")))
	structBuf = append(structBuf, []byte("Key")...)
	structBuf = append(structBuf, 0) // empty type_params vector
	wantStruct := blake2b.Sum256(structBuf)
	assert.Equal(t, bcs.Address(wantStruct), DeriveChildID(parent, structKeyType, structKeyBytes))
}

func TestDynamicField_RoundTrip(t *testing.T) {
	s := New(0)
	parent := s.FreshID()
	require.NoError(t, s.Put(newObjectWithID(t, parent)))

	keyBytes := bcs.NewEncoder().U64(42).Bytes()
	child, err := s.AddDynamicField(parent, bcs.Primitive(bcs.KindU64), keyBytes, bcs.Primitive(bcs.KindU8), []byte{7})
	require.NoError(t, err)

	expectedChild := DeriveChildID(parent, bcs.Primitive(bcs.KindU64), keyBytes)
	assert.Equal(t, expectedChild, child)

	entry, ok := s.GetDynamicField(parent, child)
	require.True(t, ok)
	assert.Equal(t, []byte{7}, entry.Value)
	assert.Equal(t, 1, s.CountDynamicFields(parent))

	removed, ok := s.RemoveDynamicField(parent, child)
	require.True(t, ok)
	assert.Equal(t, []byte{7}, removed.Value)
	assert.Equal(t, 0, s.CountDynamicFields(parent))
}

func TestDynamicField_MissingParent(t *testing.T) {
	s := New(0)
	_, err := s.AddDynamicField(bcs.MustParseAddress("0x99"), bcs.Primitive(bcs.KindU64), []byte{1}, bcs.Primitive(bcs.KindU8), []byte{1})
	assert.Error(t, err)
}

func TestPendingReceive_RoundTrip(t *testing.T) {
	s := New(0)
	recipient := bcs.MustParseAddress("0x1")
	sent := bcs.MustParseAddress("0x2")
	s.AddPendingReceive(recipient, sent, bcs.Primitive(bcs.KindU64), []byte{1, 2, 3})

	list := s.ListPendingReceives(recipient)
	require.Len(t, list, 1)

	got, ok := s.ConsumePendingReceive(recipient, sent)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got.Bytes)

	_, ok = s.ConsumePendingReceive(recipient, sent)
	assert.False(t, ok)
}

func TestSnapshotRestore(t *testing.T) {
	s := New(0)
	id := s.FreshID()
	require.NoError(t, s.Put(newObjectWithID(t, id)))

	snap := s.Snapshot()

	require.NoError(t, s.Mutate(id, append(id.Bytes(), 1, 2, 3), nil))
	_, _ = s.Delete(bcs.ClockObjectID)

	s.Restore(snap)

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.Version)

	_, ok = s.Get(bcs.ClockObjectID)
	assert.True(t, ok)
}
