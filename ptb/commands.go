package ptb

import (
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/resolver"
	"github.com/suisim/sandbox/simerrors"
	"github.com/suisim/sandbox/vm"
)

func decodeCoin(v Value) (id bcs.Address, value uint64, err error) {
	if len(v.Bytes) != bcs.AddressLength+8 {
		return bcs.Address{}, 0, &simerrors.ExecutionError{Message: "value is not a Coin layout"}
	}
	copy(id[:], v.Bytes[:bcs.AddressLength])
	value = binary.LittleEndian.Uint64(v.Bytes[bcs.AddressLength:])
	return id, value, nil
}

func encodeCoin(id bcs.Address, value uint64) []byte {
	out := make([]byte, bcs.AddressLength+8)
	copy(out, id[:])
	binary.LittleEndian.PutUint64(out[bcs.AddressLength:], value)
	return out
}

func decodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, &simerrors.ExecutionError{Message: "value is not a u64"}
	}
	return binary.LittleEndian.Uint64(b), nil
}

var defaultCoinTypeTag = bcs.Struct(bcs.StructTag{Address: bcs.FrameworkCore, Module: "coin", Name: "Coin"})

func coinTypeOrDefault(v Value) bcs.TypeTag {
	if v.TypeTag.Kind == bcs.KindStruct && v.TypeTag.Struct != nil {
		return v.TypeTag
	}
	return defaultCoinTypeTag
}

// executeCommand dispatches one non-Publish/Upgrade command (those are
// materialized during pre-processing, spec.md §4.7).
func (ex *Executor) executeCommand(index int, cmd Command, state *ptbState, tracker *changeTracker, sess vm.Session) ([]Value, error) {
	switch cmd.Kind {
	case CmdMoveCall:
		return ex.doMoveCall(index, cmd.MoveCall, state, sess)
	case CmdSplitCoins:
		return ex.doSplitCoins(index, cmd.SplitCoins, state, tracker)
	case CmdMergeCoins:
		return ex.doMergeCoins(index, cmd.MergeCoins, state, tracker)
	case CmdTransferObjects:
		return ex.doTransferObjects(index, cmd.TransferObjects, state, tracker)
	case CmdMakeMoveVec:
		return ex.doMakeMoveVec(index, cmd.MakeMoveVec, state)
	case CmdReceive:
		return ex.doReceive(index, cmd.Receive, state, tracker)
	default:
		return nil, &simerrors.ExecutionError{Message: "unknown command kind", CommandIndex: &index}
	}
}

func (ex *Executor) doMoveCall(index int, cmd *MoveCallCommand, state *ptbState, sess vm.Session) ([]Value, error) {
	pkg := cmd.Package
	if cmd.FromPublishedAt != nil {
		addr, ok := state.published[*cmd.FromPublishedAt]
		if !ok {
			return nil, &simerrors.ExecutionError{Message: "FromPublishedAt references no publish/upgrade command", CommandIndex: &index}
		}
		pkg = addr
	}
	modID := resolver.ModuleID{Address: pkg, Name: cmd.Module}
	argBytes := make([][]byte, len(cmd.Args))
	for i, a := range cmd.Args {
		v, err := state.resolveArg(a)
		if err != nil {
			return nil, err
		}
		argBytes[i] = v.Bytes
	}

	out, err := sess.ExecuteFunction(modID, cmd.Function, cmd.TypeArgs, argBytes)
	if err != nil {
		return nil, err
	}

	var returns []bcs.TypeTag
	if mod, err := ex.Resolver.GetModule(modID); err == nil {
		if fn, ok := mod.Functions[cmd.Function]; ok {
			returns = fn.Returns
		}
	}

	values := make([]Value, len(out))
	for i, b := range out {
		v := Value{Bytes: b}
		if i < len(returns) {
			v.TypeTag = returns[i]
		}
		values[i] = v
	}
	return values, nil
}

func (ex *Executor) doSplitCoins(index int, cmd *SplitCoinsCommand, state *ptbState, tracker *changeTracker) ([]Value, error) {
	coinVal, err := state.resolveArg(cmd.Coin)
	if err != nil {
		return nil, err
	}
	coinID, balance, err := decodeCoin(coinVal)
	if err != nil {
		return nil, err
	}
	typeTag := coinTypeOrDefault(coinVal)

	amounts := make([]uint64, len(cmd.Amounts))
	total := new(uint256.Int)
	for i, a := range cmd.Amounts {
		v, err := state.resolveArg(a)
		if err != nil {
			return nil, err
		}
		amt, err := decodeU64(v.Bytes)
		if err != nil {
			return nil, err
		}
		amounts[i] = amt
		total.Add(total, uint256.NewInt(amt))
	}
	if total.Cmp(uint256.NewInt(balance)) > 0 {
		return nil, &simerrors.ExecutionError{Message: "insufficient balance", CommandIndex: &index}
	}

	remaining := balance - total.Uint64()
	remainingBytes := encodeCoin(coinID, remaining)
	state.setLive(coinID, Value{Bytes: remainingBytes, TypeTag: typeTag})
	tracker.touch(coinID, false, typeTag, remainingBytes)

	out := make([]Value, len(amounts))
	for i, amt := range amounts {
		newID := ex.Store.FreshID()
		b := encodeCoin(newID, amt)
		val := Value{Bytes: b, TypeTag: typeTag}
		state.setLive(newID, val)
		tracker.touch(newID, true, typeTag, b)
		out[i] = val
	}
	return out, nil
}

func (ex *Executor) doMergeCoins(index int, cmd *MergeCoinsCommand, state *ptbState, tracker *changeTracker) ([]Value, error) {
	destVal, err := state.resolveArg(cmd.Dest)
	if err != nil {
		return nil, err
	}
	destID, destBalance, err := decodeCoin(destVal)
	if err != nil {
		return nil, err
	}
	typeTag := coinTypeOrDefault(destVal)

	total := uint256.NewInt(destBalance)
	var sourceIDs []bcs.Address
	for _, a := range cmd.Sources {
		v, err := state.resolveArg(a)
		if err != nil {
			return nil, err
		}
		srcID, srcBalance, err := decodeCoin(v)
		if err != nil {
			return nil, err
		}
		total.Add(total, uint256.NewInt(srcBalance))
		sourceIDs = append(sourceIDs, srcID)
	}
	if !total.IsUint64() {
		return nil, &simerrors.ExecutionError{Message: "merged coin value overflows u64", CommandIndex: &index}
	}

	mergedBytes := encodeCoin(destID, total.Uint64())
	state.setLive(destID, Value{Bytes: mergedBytes, TypeTag: typeTag})
	tracker.touch(destID, false, typeTag, mergedBytes)
	for _, id := range sourceIDs {
		tracker.del(id)
	}
	return []Value{{Bytes: mergedBytes, TypeTag: typeTag}}, nil
}

func (ex *Executor) doTransferObjects(index int, cmd *TransferObjectsCommand, state *ptbState, tracker *changeTracker) ([]Value, error) {
	addrVal, err := state.resolveArg(cmd.Address)
	if err != nil {
		return nil, err
	}
	if len(addrVal.Bytes) != bcs.AddressLength {
		return nil, &simerrors.ExecutionError{Message: "transfer recipient must be a 32-byte address", CommandIndex: &index}
	}
	var recipient bcs.Address
	copy(recipient[:], addrVal.Bytes)

	for _, a := range cmd.Objects {
		v, err := state.resolveArg(a)
		if err != nil {
			return nil, err
		}
		id, err := state.objectID(v)
		if err != nil {
			return nil, err
		}
		tracker.transfer(id, recipient, v.TypeTag, v.Bytes)
	}
	return nil, nil
}

func (ex *Executor) doMakeMoveVec(index int, cmd *MakeMoveVecCommand, state *ptbState) ([]Value, error) {
	e := bcs.NewEncoder()
	e.ULEB128(uint64(len(cmd.Elements)))
	for _, a := range cmd.Elements {
		v, err := state.resolveArg(a)
		if err != nil {
			return nil, err
		}
		e.Raw(v.Bytes)
	}
	out := Value{Bytes: e.Bytes()}
	if cmd.ElementType != nil {
		out.TypeTag = bcs.Vector(*cmd.ElementType)
	}
	return []Value{out}, nil
}

func (ex *Executor) doReceive(index int, cmd *ReceiveCommand, state *ptbState, tracker *changeTracker) ([]Value, error) {
	parentVal, err := state.resolveArg(cmd.Parent)
	if err != nil {
		return nil, err
	}
	parentID, err := state.objectID(parentVal)
	if err != nil {
		return nil, err
	}
	recv, ok := ex.Store.ConsumePendingReceive(parentID, cmd.SentID)
	if !ok {
		return nil, &simerrors.ExecutionError{Message: "no pending receive for that sent id", CommandIndex: &index}
	}
	return []Value{{Bytes: recv.Bytes, TypeTag: recv.TypeTag}}, nil
}
