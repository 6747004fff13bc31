package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/simerrors"
)

func TestDefaultNativeTable_SafeMocks(t *testing.T) {
	nt := DefaultNativeTable()
	tx := &TxContext{Sender: bcs.MustParseAddress("0x1"), Epoch: 3}
	ctx := &NativeContext{Tx: tx}

	out, err := nt.Call("tx_context", "sender", ctx)
	require.NoError(t, err)
	assert.Equal(t, tx.Sender.Bytes(), out[0])

	out, err = nt.Call("tx_context", "epoch", ctx)
	require.NoError(t, err)
	d := bcs.NewDecoder(out[0])
	v, err := d.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)

	out, err = nt.Call("protocol_config", "protocol_version_impl", ctx)
	require.NoError(t, err)
	d = bcs.NewDecoder(out[0])
	v, err = d.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(mockProtocolVersion), v)
}

func TestDefaultNativeTable_UnsupportedAborts(t *testing.T) {
	nt := DefaultNativeTable()
	_, err := nt.Call("bls12381", "verify", &NativeContext{Tx: &TxContext{}})
	require.Error(t, err)
	var abort *simerrors.ContractAbort
	require.ErrorAs(t, err, &abort)
	assert.EqualValues(t, simerrors.ENotSupported, abort.AbortCode)
}

func TestDefaultNativeTable_UnknownNativeAborts(t *testing.T) {
	nt := DefaultNativeTable()
	_, err := nt.Call("nope", "nope", &NativeContext{Tx: &TxContext{}})
	require.Error(t, err)
	var abort *simerrors.ContractAbort
	assert.ErrorAs(t, err, &abort)
}

func TestHashNatives_ReturnZeroVectors(t *testing.T) {
	nt := DefaultNativeTable()
	out, err := nt.Call("hash", "keccak256", &NativeContext{})
	require.NoError(t, err)
	assert.Len(t, out[0], 32)
	for _, b := range out[0] {
		assert.Equal(t, byte(0), b)
	}
}

func TestTransferNatives_NoOp(t *testing.T) {
	nt := DefaultNativeTable()
	out, err := nt.Call("transfer", "share_object", &NativeContext{})
	require.NoError(t, err)
	assert.Nil(t, out)
}
