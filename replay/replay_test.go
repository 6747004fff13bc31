package replay

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/environment"
	"github.com/suisim/sandbox/ptb"
	"github.com/suisim/sandbox/resolver"
)

type fakeProvider struct {
	tx       TxRecord
	packages map[bcs.Address]PackageRecord
	objects  map[bcs.Address]ObjectRecord
	fields   map[string]DynamicFieldRecord
	byBCS    map[string]DynamicFieldRecord
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		packages: make(map[bcs.Address]PackageRecord),
		objects:  make(map[bcs.Address]ObjectRecord),
		fields:   make(map[string]DynamicFieldRecord),
		byBCS:    make(map[string]DynamicFieldRecord),
	}
}

func (f *fakeProvider) FetchTransaction(digest string) (TxRecord, error) { return f.tx, nil }

func (f *fakeProvider) FetchObject(id bcs.Address) (ObjectRecord, bool, error) {
	rec, ok := f.objects[id]
	return rec, ok, nil
}

func (f *fakeProvider) FetchObjectAtVersion(id bcs.Address, version uint64) (ObjectRecord, bool, error) {
	rec, ok := f.objects[id]
	return rec, ok, nil
}

func (f *fakeProvider) FetchObjectAtCheckpoint(id bcs.Address, checkpoint uint64) (ObjectRecord, bool, error) {
	rec, ok := f.objects[id]
	return rec, ok, nil
}

func (f *fakeProvider) FetchPackage(id bcs.Address, checkpoint *uint64) (PackageRecord, error) {
	pkg, ok := f.packages[id]
	if !ok {
		return PackageRecord{}, errors.Errorf("fake: unknown package %s", id.String())
	}
	return pkg, nil
}

func (f *fakeProvider) FetchDynamicFields(parent bcs.Address, limit int, checkpoint *uint64) ([]DynamicFieldRecord, error) {
	return nil, nil
}

func (f *fakeProvider) FetchDynamicFieldByName(parent bcs.Address, nameType bcs.TypeTag, nameBCS []byte) (DynamicFieldRecord, bool, error) {
	rec, ok := f.fields[fieldKey(parent, nameType.String(), nameBCS)]
	return rec, ok, nil
}

func (f *fakeProvider) FindDynamicFieldByBCS(parent bcs.Address, bcsBytes []byte, checkpoint *uint64, limit int) (DynamicFieldRecord, bool, error) {
	rec, ok := f.byBCS[fieldKey(parent, "", bcsBytes)]
	return rec, ok, nil
}

func fieldKey(parent bcs.Address, typ string, raw []byte) string {
	return parent.String() + "|" + typ + "|" + string(raw)
}

func greetModule(pkgAddr bcs.Address) *resolver.CompiledModule {
	m := resolver.NewCompiledModule(resolver.ModuleID{Address: pkgAddr, Name: "greet"})
	m.AddFunction(resolver.FunctionDecl{
		Name:    "hello",
		Returns: []bcs.TypeTag{bcs.Primitive(bcs.KindU64)},
	}, func(ctx *resolver.CallContext) ([][]byte, error) {
		return [][]byte{bcs.NewEncoder().U64(7).Bytes()}, nil
	})
	return m
}

func newTestEnv() *environment.Environment {
	return environment.New(environment.DefaultConfig(), nil)
}

func TestReplayRecord_FetchesPackageAndExecutesMoveCall(t *testing.T) {
	env := newTestEnv()
	provider := newFakeProvider()

	pkgAddr := bcs.MustParseAddress("0x777")
	provider.packages[pkgAddr] = PackageRecord{
		StorageID: pkgAddr,
		Version:   1,
		Modules:   []*resolver.CompiledModule{greetModule(pkgAddr)},
	}

	tx := TxRecord{
		Digest:   "replay-1",
		Sender:   bcs.MustParseAddress("0x5"),
		Commands: []ptb.Command{ptb.MoveCall(pkgAddr, "greet", "hello", nil, nil)},
	}

	driver := New(env, provider, nil)
	result, err := driver.ReplayRecord(tx)
	require.NoError(t, err)
	require.True(t, result.LocalSuccess, "%v", result.LocalError)

	d := bcs.NewDecoder(result.Effects.ReturnValues[0][0])
	v, err := d.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)
}

func TestReplayRecord_FetchesInputObjectFromArchive(t *testing.T) {
	env := newTestEnv()
	provider := newFakeProvider()

	coinID := bcs.MustParseAddress("0xAAA1")
	coinType := bcs.Struct(bcs.StructTag{Address: bcs.FrameworkCore, Module: "coin", Name: "Coin"})
	coinBytes := bcs.NewEncoder().Address(coinID).U64(500).Bytes()
	provider.objects[coinID] = ObjectRecord{ID: coinID, TypeTag: coinType, BCSBytes: coinBytes, Version: 3}

	tx := TxRecord{
		Digest: "replay-2",
		Sender: bcs.MustParseAddress("0x5"),
		Inputs: []ptb.InputValue{
			ptb.ObjectInputValue(ptb.ObjectInput{Kind: ptb.ObjOwned, ID: coinID}),
			ptb.PureInput(bcs.NewEncoder().U64(100).Bytes()),
		},
		Commands:                      []ptb.Command{ptb.SplitCoins(ptb.InputArg(0), []ptb.Argument{ptb.InputArg(1)})},
		UnchangedLoadedRuntimeObjects: map[bcs.Address]uint64{coinID: 3},
	}

	driver := New(env, provider, nil)
	result, err := driver.ReplayRecord(tx)
	require.NoError(t, err)
	require.True(t, result.LocalSuccess, "%v", result.LocalError)

	installed, ok := env.GetObject(coinID)
	require.True(t, ok)
	assert.Equal(t, uint64(3), installed.Version)
}

func TestReplayRecord_ComparesRecordedEffects(t *testing.T) {
	env := newTestEnv()
	provider := newFakeProvider()
	pkgAddr := bcs.MustParseAddress("0x778")
	provider.packages[pkgAddr] = PackageRecord{StorageID: pkgAddr, Version: 1, Modules: []*resolver.CompiledModule{greetModule(pkgAddr)}}

	tx := TxRecord{
		Digest:          "replay-3",
		Sender:          bcs.MustParseAddress("0x5"),
		Commands:        []ptb.Command{ptb.MoveCall(pkgAddr, "greet", "hello", nil, nil)},
		RecordedEffects: &RecordedEffects{Success: true},
	}

	driver := New(env, provider, nil)
	result, err := driver.ReplayRecord(tx)
	require.NoError(t, err)
	require.NotNil(t, result.Comparison)
	assert.Equal(t, 1.0, result.Comparison.MatchScore)
	assert.True(t, result.Comparison.StatusMatch)
}

func TestResolvePackageClosure_FollowsLinkage(t *testing.T) {
	env := newTestEnv()
	provider := newFakeProvider()

	pkgB := bcs.MustParseAddress("0x2222")
	pkgA := bcs.MustParseAddress("0x1111")
	runtimeIDOfB := bcs.MustParseAddress("0x3333")

	provider.packages[pkgB] = PackageRecord{StorageID: pkgB, Version: 1, Modules: []*resolver.CompiledModule{greetModule(pkgB)}}
	provider.packages[pkgA] = PackageRecord{
		StorageID: pkgA,
		Version:   2,
		Modules:   []*resolver.CompiledModule{greetModule(pkgA)},
		Linkage: map[bcs.Address]resolver.LinkageEntry{
			runtimeIDOfB: {StorageID: pkgB, Version: 1},
		},
	}

	tx := TxRecord{
		Commands: []ptb.Command{ptb.MoveCall(pkgA, "greet", "hello", nil, nil)},
	}

	driver := New(env, provider, nil)
	require.NoError(t, driver.resolvePackageClosure(tx))

	_, err := env.Resolver.GetModule(resolver.ModuleID{Address: pkgA, Name: "greet"})
	assert.NoError(t, err)
	_, err = env.Resolver.GetModule(resolver.ModuleID{Address: pkgB, Name: "greet"})
	assert.NoError(t, err)
}

func TestResolvePackageClosure_SkipsFrameworkAddresses(t *testing.T) {
	env := newTestEnv()
	provider := newFakeProvider()
	tx := TxRecord{
		Commands: []ptb.Command{ptb.MoveCall(bcs.FrameworkCore, "coin", "value", nil, nil)},
	}
	driver := New(env, provider, nil)
	assert.NoError(t, driver.resolvePackageClosure(tx))
}

func TestMissCache_BacksOffAfterMiss(t *testing.T) {
	c := newMissCache()
	key := missKey{parent: bcs.MustParseAddress("0x1"), child: bcs.MustParseAddress("0x2")}
	assert.True(t, c.allowed(key))
	c.recordMiss(key)
	assert.False(t, c.allowed(key))
	c.recordHit(key)
	assert.True(t, c.allowed(key))
}

func TestSynthesizeStub_PreservesChildUID(t *testing.T) {
	env := newTestEnv()
	driver := New(env, newFakeProvider(), nil)
	parent := bcs.MustParseAddress("0x10")
	child := bcs.MustParseAddress("0x11")

	out, ok := driver.synthesizeStub(parent, child, bcs.Primitive(bcs.KindAddress))
	require.True(t, ok)
	assert.Equal(t, child.Bytes(), out)
}

func TestCompareEffects_MutatedTolerance(t *testing.T) {
	recorded := &RecordedEffects{Success: true, Mutated: []bcs.Address{{}, {}}}
	local := &ptb.TransactionEffects{Success: true, Mutated: []bcs.Address{{}}}

	strict := compareEffects(recorded, local, Strict)
	assert.False(t, strict.MutatedCountMatch)

	tolerant := compareEffects(recorded, local, DynamicFields)
	assert.True(t, tolerant.MutatedCountMatch)
}
