package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/simerrors"
)

func TestHistory_FIFOEviction(t *testing.T) {
	h := NewHistory()
	for i := 0; i < HistoryMaxEntries+1; i++ {
		h.Record("tx", nil, nil, 0)
	}
	assert.Equal(t, HistoryMaxEntries, h.Len())
	entries := h.Entries()
	// the oldest (sequence 1) must have been evicted.
	assert.NotEqual(t, uint64(1), entries[0].Sequence)
}

func TestValidateSerializability_StaleRead(t *testing.T) {
	h := NewHistory()
	obj := bcs.MustParseAddress("0x1")
	err := h.ValidateSerializability(
		map[bcs.Address]uint64{obj: 1},
		nil,
		map[bcs.Address]uint64{obj: 3},
	)
	require.Error(t, err)
	var stale *simerrors.StaleRead
	assert.ErrorAs(t, err, &stale)
}

func TestValidateSerializability_ReadWriteConflict(t *testing.T) {
	h := NewHistory()
	obj := bcs.MustParseAddress("0x1")
	h.Record("txA", nil, map[bcs.Address]uint64{obj: 5}, 0)

	err := h.ValidateSerializability(map[bcs.Address]uint64{obj: 3}, nil, nil)
	require.Error(t, err)
	var conflict *simerrors.SerializationConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestValidateSerializability_PassesWithSufficientVersion(t *testing.T) {
	h := NewHistory()
	obj := bcs.MustParseAddress("0x1")
	h.Record("txA", nil, map[bcs.Address]uint64{obj: 5}, 0)

	err := h.ValidateSerializability(map[bcs.Address]uint64{obj: 5}, nil, nil)
	assert.NoError(t, err)
}

func TestValidateSerializability_WriteWriteConflict(t *testing.T) {
	h := NewHistory()
	obj := bcs.MustParseAddress("0x1")
	h.Record("txA", nil, map[bcs.Address]uint64{obj: 5}, 0)

	err := h.ValidateSerializability(nil, map[bcs.Address]uint64{obj: 5}, nil)
	require.Error(t, err)
	var conflict *simerrors.SerializationConflict
	assert.ErrorAs(t, err, &conflict)
}
