package environment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/ptb"
	"github.com/suisim/sandbox/resolver"
)

func newTestEnvironment() *Environment {
	return New(DefaultConfig(), nil)
}

func TestNew_InitializesSystemObjects(t *testing.T) {
	env := newTestEnvironment()
	_, ok := env.GetObject(bcs.ClockObjectID)
	assert.True(t, ok)
	_, ok = env.GetObject(bcs.RandomObjectID)
	assert.True(t, ok)
}

func TestExecutePTB_UsesConfiguredSenderAndEpoch(t *testing.T) {
	env := newTestEnvironment()
	sender := bcs.MustParseAddress("0x42")
	env.SetSender(sender)
	env.AdvanceEpoch(5000)

	coinID, err := env.CreateCoin(1000)
	require.NoError(t, err)

	amountBytes := bcs.NewEncoder().U64(100).Bytes()
	obj, _ := env.GetObject(coinID)
	inputs := []ptb.InputValue{
		ptb.ObjectInputValue(ptb.ObjectInput{Kind: ptb.ObjOwned, ID: coinID, Bytes: obj.BCSBytes, TypeTag: obj.TypeTag, Version: obj.Version}),
		ptb.PureInput(amountBytes),
	}
	commands := []ptb.Command{ptb.SplitCoins(ptb.InputArg(0), []ptb.Argument{ptb.InputArg(1)})}

	eff, err := env.ExecutePTB(inputs, commands)
	require.NoError(t, err)
	require.True(t, eff.Success, "%v", eff.Error)
	assert.Equal(t, uint64(1), env.Config().Epoch)
}

func TestExecutePTB_ObjectVersionsRespectsTrackVersionsFlag(t *testing.T) {
	splitPTB := func(env *Environment) *ptb.TransactionEffects {
		coinID, err := env.CreateCoin(1000)
		require.NoError(t, err)
		obj, _ := env.GetObject(coinID)
		inputs := []ptb.InputValue{
			ptb.ObjectInputValue(ptb.ObjectInput{Kind: ptb.ObjOwned, ID: coinID, Bytes: obj.BCSBytes, TypeTag: obj.TypeTag, Version: obj.Version}),
			ptb.PureInput(bcs.NewEncoder().U64(100).Bytes()),
		}
		commands := []ptb.Command{ptb.SplitCoins(ptb.InputArg(0), []ptb.Argument{ptb.InputArg(1)})}
		eff, err := env.ExecutePTB(inputs, commands)
		require.NoError(t, err)
		require.True(t, eff.Success, "%v", eff.Error)
		return eff
	}

	untracked := New(DefaultConfig(), nil)
	eff := splitPTB(untracked)
	assert.Nil(t, eff.ObjectVersions)

	cfg := DefaultConfig()
	WithTrackVersions(true)(&cfg)
	tracked := New(cfg, nil)
	eff = splitPTB(tracked)
	assert.NotEmpty(t, eff.ObjectVersions)
}

func TestCreateCheckpoint_RestoreCheckpoint_RoundTrip(t *testing.T) {
	env := newTestEnvironment()
	coinID, err := env.CreateCoin(500)
	require.NoError(t, err)

	handle := env.CreateCheckpoint()

	obj, _ := env.GetObject(coinID)
	require.NoError(t, env.Store.Mutate(coinID, obj.BCSBytes, nil))
	_, err = env.CreateCoin(999)
	require.NoError(t, err)
	assert.Equal(t, 4, env.Store.Len(), "clock + random + 2 coins")

	require.NoError(t, env.RestoreCheckpoint(handle))
	assert.Equal(t, 3, env.Store.Len(), "clock + random + 1 coin, post-restore")
	restored, ok := env.GetObject(coinID)
	require.True(t, ok)
	assert.Equal(t, uint64(1), restored.Version)
}

func TestRestoreCheckpoint_UnknownHandle(t *testing.T) {
	env := newTestEnvironment()
	err := env.RestoreCheckpoint(CheckpointHandle("does-not-exist"))
	assert.Error(t, err)
}

func TestSaveState_LoadState_RoundTrip(t *testing.T) {
	env := newTestEnvironment()
	env.SetSender(bcs.MustParseAddress("0x7"))
	coinID, err := env.CreateCoin(42)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, env.SaveState(path, map[string]string{"description": "test snapshot"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": 4`)

	fresh := newTestEnvironment()
	require.NoError(t, fresh.LoadState(path))
	obj, ok := fresh.GetObject(coinID)
	require.True(t, ok)
	assert.Equal(t, uint64(42), decodeBalance(t, obj.BCSBytes))
	assert.Equal(t, bcs.MustParseAddress("0x7"), fresh.Config().SenderAddress)
}

func TestLoadState_RefusesNewerVersion(t *testing.T) {
	env := newTestEnvironment()
	dir := t.TempDir()
	path := filepath.Join(dir, "future.json")
	require.NoError(t, env.SaveState(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	patched := []byte(strings.Replace(string(data), `"version": 4`, `"version": 99`, 1))
	require.NoError(t, os.WriteFile(path, patched, 0o644))

	err = env.LoadState(path)
	assert.Error(t, err)
}

func TestDeployPackage_ThenMoveCall(t *testing.T) {
	env := newTestEnvironment()
	m := resolver.NewCompiledModule(resolver.ModuleID{Name: "greet"})
	m.AddFunction(resolver.FunctionDecl{
		Name:    "hello",
		Returns: []bcs.TypeTag{bcs.Primitive(bcs.KindU64)},
	}, func(ctx *resolver.CallContext) ([][]byte, error) {
		return [][]byte{bcs.NewEncoder().U64(7).Bytes()}, nil
	})

	pkgAddr, err := env.DeployPackage([]*resolver.CompiledModule{m})
	require.NoError(t, err)

	eff, err := env.ExecutePTB(nil, []ptb.Command{ptb.MoveCall(pkgAddr, "greet", "hello", nil, nil)})
	require.NoError(t, err)
	require.True(t, eff.Success, "%v", eff.Error)
	d := bcs.NewDecoder(eff.ReturnValues[0][0])
	v, err := d.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)
}

func TestDynamicFieldFacade(t *testing.T) {
	env := newTestEnvironment()
	parentID, err := env.CreateObject(bcs.Primitive(bcs.KindU8), nil, false, false)
	require.NoError(t, err)

	childID, err := env.Store.AddDynamicField(parentID, bcs.Primitive(bcs.KindU8), []byte{1}, bcs.Primitive(bcs.KindU64), bcs.NewEncoder().U64(9).Bytes())
	require.NoError(t, err)

	entry, ok := env.GetDynamicField(parentID, childID)
	require.True(t, ok)
	assert.Equal(t, childID, entry.Child)
	assert.Len(t, env.ListDynamicFields(parentID), 1)
}

func TestEventBuffer_LastTxVsAll(t *testing.T) {
	env := newTestEnvironment()
	_, err := env.CreateCoin(1)
	require.NoError(t, err)
	_, err = env.ExecutePTB(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, env.LastTxEvents())
	assert.Empty(t, env.AllEvents())
}

func decodeBalance(t *testing.T, bcsBytes []byte) uint64 {
	t.Helper()
	d := bcs.NewDecoder(bcsBytes)
	_, err := d.Address()
	require.NoError(t, err)
	v, err := d.U64()
	require.NoError(t, err)
	return v
}

