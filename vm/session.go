package vm

import (
	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/resolver"
	"github.com/suisim/sandbox/simerrors"
)

// Session is the subset of the Move VM session API this simulator
// consumes (spec.md §6 Move-VM boundary): execute a function by
// module/name with instantiated type arguments and BCS-encoded
// arguments, and expose the in-flight object runtime to natives.
type Session interface {
	ExecuteFunction(moduleID resolver.ModuleID, function string, typeArgs []bcs.TypeTag, args [][]byte) ([][]byte, error)
	ObjectRuntime() *ObjectRuntime
}

// MockSession is the Go-native stand-in for a real Move VM session
// (SPEC_FULL.md §5.2): a native-table-first, then per-module
// FunctionBody-callback dispatcher.
type MockSession struct {
	resolver *resolver.Resolver
	natives  *NativeTable
	runtime  *ObjectRuntime
	tx       *TxContext
}

// NewMockSession wires a resolver, native table, object runtime and
// transaction context into one dispatchable session.
func NewMockSession(res *resolver.Resolver, natives *NativeTable, runtime *ObjectRuntime, tx *TxContext) *MockSession {
	return &MockSession{resolver: res, natives: natives, runtime: runtime, tx: tx}
}

func (s *MockSession) ObjectRuntime() *ObjectRuntime {
	return s.runtime
}

// ExecuteFunction resolves moduleID (following package-upgrade
// aliases), then dispatches: the native table is tried first (so
// framework calls never need a user-supplied body), falling back to
// the module's registered FunctionBody.
func (s *MockSession) ExecuteFunction(moduleID resolver.ModuleID, function string, typeArgs []bcs.TypeTag, args [][]byte) ([][]byte, error) {
	if moduleID.Name == "types" && function == "is_one_time_witness" {
		return s.checkOneTimeWitness(typeArgs)
	}

	if s.hasNative(moduleID, function) {
		nativeCtx := &NativeContext{TypeArgs: typeArgs, Args: args, Runtime: s.runtime, Tx: s.tx}
		return s.natives.Call(moduleID.Name, function, nativeCtx)
	}

	mod, err := s.resolver.GetModule(moduleID)
	if err != nil {
		return nil, err
	}
	if _, ok := mod.Functions[function]; !ok {
		return nil, &simerrors.ExecutionError{Message: "unknown function " + moduleID.String() + "::" + function}
	}
	body, ok := mod.Bodies[function]
	if !ok {
		return nil, &simerrors.ContractAbort{
			Module:   moduleID.String(),
			Function: function,
			Message:  "no function body registered",
		}
	}
	return body(&resolver.CallContext{TypeArgs: typeArgs, Args: args})
}

func (s *MockSession) hasNative(moduleID resolver.ModuleID, function string) bool {
	_, ok := s.natives.funcs[moduleID.Name+"::"+function]
	return ok
}

// checkOneTimeWitness implements the real OTW check described in
// spec.md §4.5/E6, routed here because it needs resolver access the
// plain native table doesn't have.
func (s *MockSession) checkOneTimeWitness(typeArgs []bcs.TypeTag) ([][]byte, error) {
	if len(typeArgs) != 1 || typeArgs[0].Kind != bcs.KindStruct {
		return [][]byte{{0}}, nil
	}
	st := typeArgs[0].Struct
	ok := IsOneTimeWitness(s.resolver, resolver.ModuleID{Address: st.Address, Name: st.Module}, st.Name)
	if ok {
		return [][]byte{{1}}, nil
	}
	return [][]byte{{0}}, nil
}
