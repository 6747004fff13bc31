package bcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypeTag_Primitives(t *testing.T) {
	for _, name := range []string{"bool", "u8", "u16", "u32", "u64", "u128", "u256", "address", "signer"} {
		tag, err := ParseTypeTag(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, tag.String())
	}
}

func TestParseTypeTag_RoundTrip(t *testing.T) {
	cases := []string{
		"u64",
		"vector<u8>",
		"vector<vector<u8>>",
		"0x2::coin::Coin<0x2::sui::SUI>",
		"0x2::table::Table<u64,0x1::string::String>",
	}
	for _, c := range cases {
		tag, err := ParseTypeTag(c)
		require.NoError(t, err, c)
		tag2, err := ParseTypeTag(tag.String())
		require.NoError(t, err)
		assert.True(t, tag.Equal(tag2), "round-trip mismatch for %s: got %s", c, tag.String())
	}
}

func TestParseTypeTag_AddressCanonicalization(t *testing.T) {
	a, err := ParseTypeTag("0x2::coin::Coin")
	require.NoError(t, err)
	b, err := ParseTypeTag("0x0000000000000000000000000000000000000000000000000000000000000002::coin::Coin")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestParseTypeTag_Malformed(t *testing.T) {
	for _, c := range []string{"0x2::", "vector<u8", "u999", "", "0x2::coin::", "vector<>"} {
		_, err := ParseTypeTag(c)
		assert.Error(t, err, c)
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x2")
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000002", a.String())

	_, err = ParseAddress("not-hex")
	assert.Error(t, err)

	_, err = ParseAddress("0x" + "ff00112233445566778899aabbccddeeff00112233445566778899001122334455")
	assert.Error(t, err, "too many hex chars exceeds 32 bytes")
}
