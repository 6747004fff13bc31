package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suisim/sandbox/bcs"
)

func TestObjectRuntime_AddBorrowRemove(t *testing.T) {
	rt := NewObjectRuntime()
	parent := bcs.MustParseAddress("0x1")
	child := bcs.MustParseAddress("0x2")

	require.NoError(t, rt.AddChildObject(parent, child, bcs.Primitive(bcs.KindU64), append(child.Bytes(), 1, 2, 3)))
	assert.True(t, rt.ChildObjectExists(parent, child))

	typeTag, data, err := rt.BorrowChildObject(parent, child)
	require.NoError(t, err)
	assert.Equal(t, bcs.KindU64, typeTag.Kind)
	assert.Equal(t, child.Bytes(), data[:bcs.AddressLength])
	rt.ReleaseBorrow(parent, child)

	_, _, err = rt.RemoveChildObject(parent, child)
	require.NoError(t, err)
	assert.False(t, rt.ChildObjectExists(parent, child))
}

func TestObjectRuntime_MutableExclusivity(t *testing.T) {
	rt := NewObjectRuntime()
	parent := bcs.MustParseAddress("0x1")
	child := bcs.MustParseAddress("0x2")
	require.NoError(t, rt.AddChildObject(parent, child, bcs.Primitive(bcs.KindU64), child.Bytes()))

	_, _, err := rt.BorrowChildObjectMut(parent, child)
	require.NoError(t, err)

	_, _, err = rt.BorrowChildObject(parent, child)
	assert.Error(t, err, "immutable borrow must fail while mutable borrow outstanding")

	rt.CommitMutableBorrow(parent, child, child.Bytes())

	_, _, err = rt.BorrowChildObject(parent, child)
	assert.NoError(t, err, "immutable borrow should succeed after mutable borrow released")
}

func TestObjectRuntime_OnDemandFetchChain(t *testing.T) {
	rt := NewObjectRuntime()
	parent := bcs.MustParseAddress("0x1")
	child := bcs.MustParseAddress("0x2")

	called := map[string]bool{}
	rt.WithVersionedFetcher(func(p, c bcs.Address) (bcs.TypeTag, []byte, uint64, bool) {
		called["versioned"] = true
		return bcs.TypeTag{}, nil, 0, false
	})
	rt.WithPlainFetcher(func(p, c bcs.Address) (bcs.TypeTag, []byte, bool) {
		called["plain"] = true
		return bcs.Primitive(bcs.KindU8), append([]byte{}, c.Bytes()...), true
	})

	typeTag, data, err := rt.BorrowChildObject(parent, child)
	require.NoError(t, err)
	assert.True(t, called["versioned"])
	assert.True(t, called["plain"])
	assert.Equal(t, bcs.KindU8, typeTag.Kind)
	assert.Equal(t, child.Bytes(), data)
}

func TestObjectRuntime_MissingChild(t *testing.T) {
	rt := NewObjectRuntime()
	_, _, err := rt.BorrowChildObject(bcs.MustParseAddress("0x1"), bcs.MustParseAddress("0x2"))
	assert.Error(t, err)
}

func TestEnforceChildUID_RewritesMismatch(t *testing.T) {
	rt := NewObjectRuntime()
	parent := bcs.MustParseAddress("0x1")
	child := bcs.MustParseAddress("0x2")
	wrongUID := append(bcs.MustParseAddress("0x99").Bytes(), 7)

	require.NoError(t, rt.AddChildObject(parent, child, bcs.Primitive(bcs.KindU8), wrongUID))
	_, data, err := rt.BorrowChildObject(parent, child)
	require.NoError(t, err)
	assert.Equal(t, child.Bytes(), data[:bcs.AddressLength])
}
