package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/resolver"
)

func TestMockSession_DispatchesNativeFirst(t *testing.T) {
	res := resolver.New()
	tx := &TxContext{Sender: bcs.MustParseAddress("0x42")}
	sess := NewMockSession(res, DefaultNativeTable(), NewObjectRuntime(), tx)

	out, err := sess.ExecuteFunction(resolver.ModuleID{Address: bcs.FrameworkCore, Name: "tx_context"}, "sender", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, tx.Sender.Bytes(), out[0])
}

func TestMockSession_FallsBackToFunctionBody(t *testing.T) {
	res := resolver.New()
	addr := bcs.MustParseAddress("0x10")
	m := resolver.NewCompiledModule(resolver.ModuleID{Address: addr, Name: "widget"})
	m.AddFunction(resolver.FunctionDecl{Name: "make", IsEntry: true}, func(ctx *resolver.CallContext) ([][]byte, error) {
		return [][]byte{{9}}, nil
	})
	_, _, err := res.AddPackageModules([]*resolver.CompiledModule{m})
	require.NoError(t, err)

	sess := NewMockSession(res, DefaultNativeTable(), NewObjectRuntime(), &TxContext{})
	out, err := sess.ExecuteFunction(resolver.ModuleID{Address: addr, Name: "widget"}, "make", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{9}}, out)
}

func TestMockSession_NoBodyAborts(t *testing.T) {
	res := resolver.New()
	addr := bcs.MustParseAddress("0x11")
	m := resolver.NewCompiledModule(resolver.ModuleID{Address: addr, Name: "widget"})
	m.AddFunction(resolver.FunctionDecl{Name: "make"}, nil)
	_, _, err := res.AddPackageModules([]*resolver.CompiledModule{m})
	require.NoError(t, err)

	sess := NewMockSession(res, DefaultNativeTable(), NewObjectRuntime(), &TxContext{})
	_, err = sess.ExecuteFunction(resolver.ModuleID{Address: addr, Name: "widget"}, "make", nil, nil)
	assert.Error(t, err)
}

func TestMockSession_OneTimeWitness(t *testing.T) {
	res := resolver.New()
	addr := bcs.MustParseAddress("0x12")
	m := resolver.NewCompiledModule(resolver.ModuleID{Address: addr, Name: "widget"})
	m.AddStruct(resolver.StructDecl{Name: "WIDGET", Fields: []resolver.FieldDecl{{Name: "dummy", Type: bcs.Primitive(bcs.KindBool)}}})
	_, _, err := res.AddPackageModules([]*resolver.CompiledModule{m})
	require.NoError(t, err)

	sess := NewMockSession(res, DefaultNativeTable(), NewObjectRuntime(), &TxContext{})
	out, err := sess.ExecuteFunction(resolver.ModuleID{Name: "types"}, "is_one_time_witness",
		[]bcs.TypeTag{bcs.Struct(bcs.StructTag{Address: addr, Module: "widget", Name: "WIDGET"})}, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(1), out[0][0])
}
