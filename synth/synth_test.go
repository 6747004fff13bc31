package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/resolver"
)

func TestSynthesize_Primitives(t *testing.T) {
	s := New(resolver.New(), DefaultConfig())

	r, err := s.Synthesize(bcs.Primitive(bcs.KindU64))
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), r.Bytes)
	assert.False(t, r.IsStub)

	r, err = s.Synthesize(bcs.Primitive(bcs.KindBool))
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, r.Bytes)

	r, err = s.Synthesize(bcs.Primitive(bcs.KindAddress))
	require.NoError(t, err)
	assert.Equal(t, make([]byte, bcs.AddressLength), r.Bytes)
}

func TestSynthesize_Vector(t *testing.T) {
	s := New(resolver.New(), DefaultConfig())
	r, err := s.Synthesize(bcs.Vector(bcs.Primitive(bcs.KindU8)))
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, r.Bytes)
	assert.True(t, r.IsStub)
}

func frameworkStruct(addr bcs.Address, module, name string) bcs.TypeTag {
	return bcs.Struct(bcs.StructTag{Address: addr, Module: module, Name: name})
}

func TestSynthesize_CuratedFrameworkTypes(t *testing.T) {
	s := New(resolver.New(), DefaultConfig())

	cases := []struct {
		name     string
		tag      bcs.TypeTag
		wantLen  int
		checkU64 *uint64At
	}{
		{name: "UID", tag: frameworkStruct(bcs.FrameworkCore, "object", "UID"), wantLen: bcs.AddressLength},
		{name: "Balance", tag: frameworkStruct(bcs.FrameworkCore, "balance", "Balance"), wantLen: 8},
		{name: "Bag", tag: frameworkStruct(bcs.FrameworkCore, "bag", "Bag"), wantLen: bcs.AddressLength + 8},
		{name: "Coin", tag: frameworkStruct(bcs.FrameworkCore, "coin", "Coin"), wantLen: bcs.AddressLength + 8, checkU64: &uint64At{bcs.AddressLength, 1_000_000_000}},
		{name: "TreasuryCap", tag: frameworkStruct(bcs.FrameworkCore, "coin", "TreasuryCap"), wantLen: bcs.AddressLength + 8, checkU64: &uint64At{bcs.AddressLength, 1_000_000_000_000}},
		{name: "Clock", tag: frameworkStruct(bcs.FrameworkCore, "clock", "Clock"), wantLen: bcs.AddressLength + 8},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, err := s.Synthesize(c.tag)
			require.NoError(t, err)
			assert.Len(t, r.Bytes, c.wantLen)
			assert.True(t, r.IsStub)
			if c.checkU64 != nil {
				d := bcs.NewDecoder(r.Bytes[c.checkU64.offset:])
				v, err := d.U64()
				require.NoError(t, err)
				assert.Equal(t, c.checkU64.want, v)
			}
		})
	}
}

type uint64At struct {
	offset int
	want   uint64
}

func TestSynthesize_TxContext(t *testing.T) {
	s := New(resolver.New(), DefaultConfig())
	r, err := s.Synthesize(frameworkStruct(bcs.FrameworkCore, "tx_context", "TxContext"))
	require.NoError(t, err)
	d := bcs.NewDecoder(r.Bytes)
	sender, err := d.Address()
	require.NoError(t, err)
	assert.True(t, sender.IsZero())
	txHash, err := d.BytesVec()
	require.NoError(t, err)
	assert.Len(t, txHash, bcs.AddressLength)
	epoch, err := d.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), epoch)
}

func TestSynthesize_ValidatorSet_DefaultCount(t *testing.T) {
	s := New(resolver.New(), DefaultConfig())
	r, err := s.Synthesize(frameworkStruct(bcs.FrameworkSuiSys, "validator_set", "ValidatorSet"))
	require.NoError(t, err)
	assert.NotEmpty(t, r.Bytes)

	d := bcs.NewDecoder(r.Bytes)
	totalStake, err := d.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(validatorTotalStake), totalStake)

	count, err := d.ULEB128()
	require.NoError(t, err)
	assert.Equal(t, uint64(DefaultValidatorCount), count)
}

func TestSynthesize_ValidatorSet_ConfiguredCount(t *testing.T) {
	s := New(resolver.New(), Config{ValidatorCount: 3})
	r, err := s.Synthesize(frameworkStruct(bcs.FrameworkSuiSys, "validator_set", "ValidatorSet"))
	require.NoError(t, err)
	d := bcs.NewDecoder(r.Bytes)
	_, err = d.U64()
	require.NoError(t, err)
	count, err := d.ULEB128()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestSynthesize_UserStruct_Recurses(t *testing.T) {
	res := resolver.New()
	addr := bcs.MustParseAddress("0x20")
	m := resolver.NewCompiledModule(resolver.ModuleID{Address: addr, Name: "widget"})
	m.AddStruct(resolver.StructDecl{
		Name: "Widget",
		Fields: []resolver.FieldDecl{
			{Name: "flag", Type: bcs.Primitive(bcs.KindBool)},
			{Name: "amount", Type: bcs.Primitive(bcs.KindU64)},
		},
	})
	_, _, err := res.AddPackageModules([]*resolver.CompiledModule{m})
	require.NoError(t, err)

	s := New(res, DefaultConfig())
	r, err := s.Synthesize(frameworkStruct(addr, "widget", "Widget"))
	require.NoError(t, err)
	assert.Equal(t, append([]byte{0}, make([]byte, 8)...), r.Bytes)
}

func TestSynthesize_UserStruct_CycleSafe(t *testing.T) {
	res := resolver.New()
	addr := bcs.MustParseAddress("0x21")
	selfType := frameworkStruct(addr, "ring", "Node")
	m := resolver.NewCompiledModule(resolver.ModuleID{Address: addr, Name: "ring"})
	m.AddStruct(resolver.StructDecl{
		Name: "Node",
		Fields: []resolver.FieldDecl{
			{Name: "next", Type: selfType},
		},
	})
	_, _, err := res.AddPackageModules([]*resolver.CompiledModule{m})
	require.NoError(t, err)

	s := New(res, DefaultConfig())
	r, err := s.Synthesize(selfType)
	require.NoError(t, err)
	assert.True(t, r.IsStub)
}

func TestSynthesize_MissingStruct_ReturnsError(t *testing.T) {
	res := resolver.New()
	s := New(res, DefaultConfig())
	_, err := s.Synthesize(frameworkStruct(bcs.MustParseAddress("0x30"), "nope", "Nope"))
	assert.Error(t, err)
}
