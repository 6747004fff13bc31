// Package vm implements the Native Table & Object Runtime (spec.md
// §4.5) plus the mock Move session (SPEC_FULL.md §5.2) that drives
// user-published function bodies. The real Move VM, its bytecode
// interpreter, and its native-function dispatch mechanics are
// external collaborators (spec.md §1); this package supplies the
// fixed native-function table the embedder configures the VM with,
// reimplemented as direct Go calls instead of FFI.
package vm

import (
	"strings"

	"github.com/holiman/uint256"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/simerrors"
)

// TxContext is the subset of transaction context every native needs
// (spec.md §6 TxContext layout).
type TxContext struct {
	Sender             bcs.Address
	TxHash             []byte
	Epoch              uint64
	EpochTimestampMs    uint64
	GasPrice           uint64
	ReferenceGasPrice  uint64
	RandomSeed         [32]byte
	IDsCreated         uint64
}

// NativeContext is what a NativeFunc receives: resolved argument
// bytes, instantiated type arguments, the in-flight object runtime,
// and the transaction context.
type NativeContext struct {
	TypeArgs []bcs.TypeTag
	Args     [][]byte
	Runtime  *ObjectRuntime
	Tx       *TxContext
}

// NativeFunc is a native implementation: module::function in, BCS
// return values out.
type NativeFunc func(ctx *NativeContext) ([][]byte, error)

// unsupportedModules abort with E_NOT_SUPPORTED rather than silently
// mocking a result a contract might rely on (spec.md §4.5).
var unsupportedModules = map[string]bool{
	"bls12381":         true,
	"ecdsa_k1":         true,
	"ecdsa_r1":         true,
	"ed25519":          true,
	"groth16":          true,
	"vdf":              true,
	"zklogin":          true,
	"poseidon":         true,
	"random":           true,
	"config":           true,
	"nitro_attestation": true,
}

// NativeTable is the merged real/mocked native function dispatch
// table keyed by "module::function".
type NativeTable struct {
	funcs map[string]NativeFunc
}

// DefaultNativeTable builds the native table described in spec.md
// §4.5: safe mocks, all-zero 32-byte hash stand-ins, and an explicit
// unsupported set.
func DefaultNativeTable() *NativeTable {
	t := &NativeTable{funcs: make(map[string]NativeFunc)}
	t.registerTxContextNatives()
	t.registerObjectNatives()
	t.registerTransferNatives()
	t.registerEventNatives()
	t.registerAddressNatives()
	t.registerHashNatives()
	t.registerTypesNatives()
	return t
}

// Register installs or overrides a native at module::function.
func (t *NativeTable) Register(module, function string, fn NativeFunc) {
	t.funcs[module+"::"+function] = fn
}

// Call dispatches to the registered native, or aborts with
// E_NOT_SUPPORTED for both the explicitly unsupported modules and any
// other unrecognized native — a silent mock would produce false
// successes (spec.md §4.5).
func (t *NativeTable) Call(module, function string, ctx *NativeContext) ([][]byte, error) {
	key := module + "::" + function
	if fn, ok := t.funcs[key]; ok {
		return fn(ctx)
	}
	reason := "unrecognized native"
	if unsupportedModules[strings.ToLower(module)] {
		reason = "native module not implemented by this simulator"
	}
	return nil, &simerrors.ContractAbort{
		Module:    module,
		Function:  function,
		AbortCode: simerrors.ENotSupported,
		Message:   reason,
	}
}

func (t *NativeTable) registerTxContextNatives() {
	t.Register("tx_context", "sender", func(ctx *NativeContext) ([][]byte, error) {
		return [][]byte{ctx.Tx.Sender.Bytes()}, nil
	})
	t.Register("tx_context", "epoch", func(ctx *NativeContext) ([][]byte, error) {
		return [][]byte{bcs.NewEncoder().U64(ctx.Tx.Epoch).Bytes()}, nil
	})
	t.Register("tx_context", "epoch_timestamp_ms", func(ctx *NativeContext) ([][]byte, error) {
		return [][]byte{bcs.NewEncoder().U64(ctx.Tx.EpochTimestampMs).Bytes()}, nil
	})
	t.Register("tx_context", "gas_price", func(ctx *NativeContext) ([][]byte, error) {
		return [][]byte{bcs.NewEncoder().U64(ctx.Tx.GasPrice).Bytes()}, nil
	})
	t.Register("tx_context", "reference_gas_price", func(ctx *NativeContext) ([][]byte, error) {
		return [][]byte{bcs.NewEncoder().U64(ctx.Tx.ReferenceGasPrice).Bytes()}, nil
	})
	t.Register("tx_context", "ids_created", func(ctx *NativeContext) ([][]byte, error) {
		return [][]byte{bcs.NewEncoder().U64(ctx.Tx.IDsCreated).Bytes()}, nil
	})
	// mockProtocolVersion is a fixed placeholder (spec.md §4.5); this
	// simulator doesn't model protocol upgrades, so every call sees
	// the same version rather than aborting.
	t.Register("protocol_config", "protocol_version_impl", func(ctx *NativeContext) ([][]byte, error) {
		return [][]byte{bcs.NewEncoder().U64(mockProtocolVersion).Bytes()}, nil
	})
}

// mockProtocolVersion is the constant value protocol_config::protocol_version_impl
// returns.
const mockProtocolVersion = 62

func (t *NativeTable) registerObjectNatives() {
	t.Register("object", "record_new_uid", func(ctx *NativeContext) ([][]byte, error) {
		ctx.Tx.IDsCreated++
		return nil, nil
	})
	t.Register("object", "delete_impl", func(ctx *NativeContext) ([][]byte, error) {
		return nil, nil
	})
	t.Register("object", "borrow_uid", func(ctx *NativeContext) ([][]byte, error) {
		if len(ctx.Args) == 0 {
			return nil, &simerrors.TypeMismatch{ArgumentIndex: 0, Expected: "object reference", Found: "none"}
		}
		return [][]byte{ctx.Args[0]}, nil
	})
}

func (t *NativeTable) registerTransferNatives() {
	noop := func(ctx *NativeContext) ([][]byte, error) { return nil, nil }
	t.Register("transfer", "transfer", noop)
	t.Register("transfer", "freeze_object", noop)
	t.Register("transfer", "share_object", noop)
	t.Register("transfer", "party_transfer", noop)
}

func (t *NativeTable) registerEventNatives() {
	t.Register("event", "emit", func(ctx *NativeContext) ([][]byte, error) { return nil, nil })
}

func (t *NativeTable) registerAddressNatives() {
	t.Register("address", "to_u256", func(ctx *NativeContext) ([][]byte, error) {
		if len(ctx.Args) == 0 || len(ctx.Args[0]) != bcs.AddressLength {
			return nil, &simerrors.TypeMismatch{ArgumentIndex: 0, Expected: "address", Found: "malformed"}
		}
		v := new(uint256.Int).SetBytes(ctx.Args[0])
		return [][]byte{bcs.NewEncoder().U256(v).Bytes()}, nil
	})
	t.Register("address", "from_u256", func(ctx *NativeContext) ([][]byte, error) {
		if len(ctx.Args) == 0 {
			return nil, &simerrors.TypeMismatch{ArgumentIndex: 0, Expected: "u256", Found: "none"}
		}
		d := bcs.NewDecoder(ctx.Args[0])
		v, err := d.U256()
		if err != nil {
			return nil, err
		}
		b := v.Bytes32()
		return [][]byte{b[:]}, nil
	})
}

func (t *NativeTable) registerHashNatives() {
	zero := func(n int) NativeFunc {
		return func(ctx *NativeContext) ([][]byte, error) {
			return [][]byte{make([]byte, n)}, nil
		}
	}
	t.Register("hash", "keccak256", zero(32))
	t.Register("hash", "blake2b256", zero(32))
	t.Register("hmac", "hmac_sha3_256", zero(32))
}

func (t *NativeTable) registerTypesNatives() {
	t.Register("types", "is_one_time_witness", func(ctx *NativeContext) ([][]byte, error) {
		// Resolved by the Session layer (it has the resolver handle);
		// the native table alone cannot answer a struct-declaration
		// question. Sessions route this call through
		// MockSession.checkOneTimeWitness instead of this stub.
		return nil, &simerrors.ExecutionError{Message: "is_one_time_witness must be resolved by the session"}
	})
}
