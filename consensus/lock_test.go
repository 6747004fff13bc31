package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/simerrors"
)

func TestAcquireSharedLocks_NoConflict(t *testing.T) {
	m := New()
	obj := bcs.MustParseAddress("0x1")
	err := m.AcquireSharedLocks("tx1", []LockRequest{{ObjectID: obj, IsMutable: true, CurrentVersion: 1}})
	require.NoError(t, err)
	locks := m.GetSharedLocks()
	require.Contains(t, locks, obj)
	assert.Equal(t, "tx1", locks[obj].TxID)
	assert.Equal(t, uint64(1), m.LamportClock())
}

func TestAcquireSharedLocks_MutableConflict(t *testing.T) {
	m := New()
	obj := bcs.MustParseAddress("0x1")
	require.NoError(t, m.AcquireSharedLocks("tx1", []LockRequest{{ObjectID: obj, IsMutable: true, CurrentVersion: 1}}))

	err := m.AcquireSharedLocks("tx2", []LockRequest{{ObjectID: obj, IsMutable: true, CurrentVersion: 1}})
	require.Error(t, err)
	var conflict *simerrors.SharedObjectLockConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, obj, conflict.ObjectID)

	locks := m.GetSharedLocks()
	assert.Equal(t, "tx1", locks[obj].TxID, "failed acquisition must not mutate the lock table")
}

func TestAcquireSharedLocks_MultipleImmutableReaders(t *testing.T) {
	m := New()
	obj := bcs.MustParseAddress("0x1")
	require.NoError(t, m.AcquireSharedLocks("tx1", []LockRequest{{ObjectID: obj, IsMutable: false, CurrentVersion: 1}}))
	err := m.AcquireSharedLocks("tx2", []LockRequest{{ObjectID: obj, IsMutable: false, CurrentVersion: 1}})
	assert.NoError(t, err)
}

func TestReleaseLocksForTransaction(t *testing.T) {
	m := New()
	obj := bcs.MustParseAddress("0x1")
	require.NoError(t, m.AcquireSharedLocks("tx1", []LockRequest{{ObjectID: obj, IsMutable: true, CurrentVersion: 1}}))
	m.ReleaseLocksForTransaction("tx1")
	locks := m.GetSharedLocks()
	assert.NotContains(t, locks, obj)
}

func TestReleaseLocksForTransaction_OnlyOwnEntries(t *testing.T) {
	m := New()
	objA := bcs.MustParseAddress("0x1")
	objB := bcs.MustParseAddress("0x2")
	require.NoError(t, m.AcquireSharedLocks("tx1", []LockRequest{{ObjectID: objA, IsMutable: true, CurrentVersion: 1}}))
	require.NoError(t, m.AcquireSharedLocks("tx2", []LockRequest{{ObjectID: objB, IsMutable: true, CurrentVersion: 1}}))

	m.ReleaseLocksForTransaction("tx1")
	locks := m.GetSharedLocks()
	assert.NotContains(t, locks, objA)
	assert.Contains(t, locks, objB)
}
