package ptb

import (
	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/consensus"
	"github.com/suisim/sandbox/resolver"
	"github.com/suisim/sandbox/simerrors"
	"github.com/suisim/sandbox/store"
	"github.com/suisim/sandbox/synth"
	"github.com/suisim/sandbox/vm"
)

// Value is an Argument-resolved operand: its BCS bytes plus whatever
// type tag the executor could attach (object inputs and MoveCall
// return values carry one; plain pure bytes generally don't).
type Value struct {
	Bytes   []byte
	TypeTag bcs.TypeTag
}

// GasModel estimates the cost of one command; nil means every command
// is free (spec.md §4.7's "opaque, embedder-supplied" cost model — the
// zero-cost default matches E1's gas_used==0 expectation).
type GasModel func(index int, cmd Command) uint64

// Executor wires the Module Resolver, Object Store, Consensus/Lock
// Manager and history, native table, and synthesizer into one PTB
// execution pipeline (spec.md §4.7).
type Executor struct {
	Resolver *resolver.Resolver
	Store    *store.ObjectStore
	Locks    *consensus.Manager
	History  *consensus.History
	Natives  *vm.NativeTable
	Synth    *synth.Synthesizer
	GasModel GasModel

	// RuntimeFactory, when set, replaces newObjectRuntime's default
	// dynamic-field-only fetcher for the next ExecutePTB call. The
	// historical replay driver (C9) installs archival on-demand
	// fetchers through this hook instead of duplicating the command
	// loop to get its own Object Runtime wired in.
	RuntimeFactory func() *vm.ObjectRuntime

	// TrackVersions mirrors environment.Config.TrackVersions (spec.md
	// §6): when false, TransactionEffects.ObjectVersions is left nil
	// instead of populated (spec.md §9's explicit resolution for this
	// open question).
	TrackVersions bool
}

// New wires a fresh Executor around the given collaborators. A nil
// GasModel defaults to zero-cost commands.
func New(res *resolver.Resolver, st *store.ObjectStore, locks *consensus.Manager, hist *consensus.History, natives *vm.NativeTable, synthesizer *synth.Synthesizer) *Executor {
	return &Executor{Resolver: res, Store: st, Locks: locks, History: hist, Natives: natives, Synth: synthesizer}
}

// ptbState is the mutable scratch state threaded through one PTB's
// command loop: declared inputs, accumulated command results, and the
// "live" view of object arguments as they're split/merged/mutated
// in-PTB (spec.md §4.7: "the original coin's value is implicitly
// reduced in later commands via argument bookkeeping").
type ptbState struct {
	inputs   []InputValue
	results  [][]Value
	live     map[bcs.Address]Value
	// published maps a Publish/Upgrade command's index to the package
	// address its pre-processing step minted, for MoveCall commands
	// that target a package published earlier in the same PTB.
	published map[int]bcs.Address
}

func newPTBState(inputs []InputValue) *ptbState {
	return &ptbState{inputs: inputs, live: make(map[bcs.Address]Value), published: make(map[int]bcs.Address)}
}

func (s *ptbState) setLive(id bcs.Address, v Value) {
	s.live[id] = v
}

func (s *ptbState) resolveArg(arg Argument) (Value, error) {
	switch arg.Kind {
	case ArgInput:
		if int(arg.Index) >= len(s.inputs) {
			return Value{}, &simerrors.ExecutionError{Message: "input index out of range"}
		}
		in := s.inputs[arg.Index]
		if !in.IsObject {
			return Value{Bytes: in.Pure}, nil
		}
		if v, ok := s.live[in.Object.ID]; ok {
			return v, nil
		}
		return Value{Bytes: in.Object.Bytes, TypeTag: in.Object.TypeTag}, nil
	case ArgResult:
		if int(arg.Index) >= len(s.results) || len(s.results[arg.Index]) == 0 {
			return Value{}, &simerrors.ExecutionError{Message: "command returned no values"}
		}
		return s.results[arg.Index][0], nil
	case ArgNestedResult:
		if int(arg.Index) >= len(s.results) || int(arg.NestedIndex) >= len(s.results[arg.Index]) {
			return Value{}, &simerrors.ExecutionError{Message: "nested result index out of range"}
		}
		return s.results[arg.Index][arg.NestedIndex], nil
	case ArgGasCoin:
		return Value{Bytes: gasCoinBytes()}, nil
	}
	return Value{}, &simerrors.ExecutionError{Message: "unknown argument kind"}
}

func (s *ptbState) objectID(v Value) (bcs.Address, error) {
	if len(v.Bytes) < bcs.AddressLength {
		return bcs.Address{}, &simerrors.ExecutionError{Message: "value too short to carry an object id"}
	}
	var id bcs.Address
	copy(id[:], v.Bytes[:bcs.AddressLength])
	return id, nil
}

// gasCoinBytes is the synthetic gas coin record (spec.md §4.7's
// "GasCoin" argument); it carries no meaningful balance in this
// simulator since gas accounting is the opaque GasModel's job.
func gasCoinBytes() []byte {
	return make([]byte, bcs.AddressLength+8)
}

// changeTracker collapses per-command object touches into one final
// ObjectChange per id (spec.md §4.7 "Effects application" /
// P2: an id created this PTB stays Created even if later mutated
// in-PTB; a terminal kind — Deleted/Wrapped/Transferred — always wins).
type changeTracker struct {
	order   []bcs.Address
	changes map[bcs.Address]*ObjectChange
}

func newChangeTracker() *changeTracker {
	return &changeTracker{changes: make(map[bcs.Address]*ObjectChange)}
}

func (t *changeTracker) touch(id bcs.Address, isNew bool, typeTag bcs.TypeTag, data []byte) {
	if c, ok := t.changes[id]; ok {
		c.Bytes = data
		c.TypeTag = typeTag
		return
	}
	kind := ChangeMutated
	if isNew {
		kind = ChangeCreated
	}
	t.order = append(t.order, id)
	t.changes[id] = &ObjectChange{Kind: kind, ID: id, TypeTag: typeTag, Bytes: data}
}

func (t *changeTracker) del(id bcs.Address) {
	if c, ok := t.changes[id]; ok {
		c.Kind = ChangeDeleted
		c.Bytes = nil
		return
	}
	t.order = append(t.order, id)
	t.changes[id] = &ObjectChange{Kind: ChangeDeleted, ID: id}
}

func (t *changeTracker) transfer(id, recipient bcs.Address, typeTag bcs.TypeTag, data []byte) {
	r := recipient
	if c, ok := t.changes[id]; ok {
		c.Kind = ChangeTransferred
		c.Recipient = &r
		c.TypeTag = typeTag
		c.Bytes = data
		return
	}
	t.order = append(t.order, id)
	t.changes[id] = &ObjectChange{Kind: ChangeTransferred, ID: id, Recipient: &r, TypeTag: typeTag, Bytes: data}
}

func collectLockRequests(inputs []InputValue) []consensus.LockRequest {
	var reqs []consensus.LockRequest
	for _, in := range inputs {
		if in.IsObject && in.Object.Kind == ObjShared {
			reqs = append(reqs, consensus.LockRequest{
				ObjectID:       in.Object.ID,
				IsMutable:      in.Object.Mutable,
				CurrentVersion: in.Object.Version,
			})
		}
	}
	return reqs
}

func gatherVersions(inputs []InputValue) (reads, writes map[bcs.Address]uint64) {
	reads = make(map[bcs.Address]uint64)
	writes = make(map[bcs.Address]uint64)
	for _, in := range inputs {
		if !in.IsObject {
			continue
		}
		o := in.Object
		reads[o.ID] = o.Version
		if o.Kind == ObjMutRef || (o.Kind == ObjShared && o.Mutable) {
			writes[o.ID] = o.Version
		}
	}
	return reads, writes
}

func (ex *Executor) currentVersions(ids map[bcs.Address]uint64) map[bcs.Address]uint64 {
	out := make(map[bcs.Address]uint64, len(ids))
	for id := range ids {
		if obj, ok := ex.Store.Get(id); ok {
			out[id] = obj.Version
		}
	}
	return out
}

// newObjectRuntime wires an Object Runtime whose plain fetcher reads
// dynamic fields already installed in the Store, so MoveCalls that
// touch a parent's existing children see them without a preload step.
func (ex *Executor) newObjectRuntime() *vm.ObjectRuntime {
	rt := vm.NewObjectRuntime()
	rt.WithPlainFetcher(func(parent, child bcs.Address) (bcs.TypeTag, []byte, bool) {
		entry, ok := ex.Store.GetDynamicField(parent, child)
		if !ok {
			return bcs.TypeTag{}, nil, false
		}
		return entry.Type, entry.Value, true
	})
	return rt
}

// ExecutePTB runs one Idle→Locked→Executing→Applied|Failed cycle
// (spec.md §4.7). It always returns a non-nil TransactionEffects; the
// returned error is reserved for executor-internal bugs, not ordinary
// PTB failures (those are reported via effects.Success/Error).
func (ex *Executor) ExecutePTB(txID string, tx *vm.TxContext, inputs []InputValue, commands []Command, gasBudget *uint64) (*TransactionEffects, error) {
	eff := newEffects()
	if !ex.TrackVersions {
		eff.ObjectVersions = nil
	}

	lockReqs := collectLockRequests(inputs)
	if len(lockReqs) > 0 {
		if err := ex.Locks.AcquireSharedLocks(txID, lockReqs); err != nil {
			eff.Success = false
			eff.Error = err
			return eff, nil
		}
	}
	defer ex.Locks.ReleaseLocksForTransaction(txID)

	reads, writes := gatherVersions(inputs)
	if ex.History != nil && len(reads) > 0 {
		current := ex.currentVersions(reads)
		if err := ex.History.ValidateSerializability(reads, writes, current); err != nil {
			eff.Success = false
			eff.Error = err
			return eff, nil
		}
	}

	state := newPTBState(inputs)
	tracker := newChangeTracker()
	runtime := ex.newObjectRuntime()
	if ex.RuntimeFactory != nil {
		runtime = ex.RuntimeFactory()
	}
	sess := vm.NewMockSession(ex.Resolver, ex.Natives, runtime, tx)

	// Locked -> Executing: pre-publish phase.
	for i, cmd := range commands {
		if cmd.Kind != CmdPublish && cmd.Kind != CmdUpgrade {
			continue
		}
		res, err := ex.preprocessPublish(i, cmd, state, tracker)
		if err != nil {
			eff.Success = false
			eff.Error = err
			eff.FailedCommandIndex = intPtr(i)
			return eff, nil
		}
		state.results = ensureLen(state.results, i+1)
		state.results[i] = res
	}

	gasUsed := uint64(0)
	for i, cmd := range commands {
		if cmd.Kind == CmdPublish || cmd.Kind == CmdUpgrade {
			// Already materialized during pre-processing.
			eff.CommandsSucceeded = i + 1
			continue
		}

		out, err := ex.executeCommand(i, cmd, state, tracker, sess)
		if ex.GasModel != nil {
			gasUsed += ex.GasModel(i, cmd)
		}
		if gasBudget != nil && gasUsed > *gasBudget {
			eff.Success = false
			eff.Error = &simerrors.OutOfGas{CommandIndex: i, Used: gasUsed, Budget: *gasBudget}
			eff.FailedCommandIndex = intPtr(i)
			eff.CommandsSucceeded = i
			return eff, nil
		}
		if err != nil {
			eff.Success = false
			eff.Error = err
			eff.FailedCommandIndex = intPtr(i)
			eff.CommandsSucceeded = i
			return eff, nil
		}
		state.results = ensureLen(state.results, i+1)
		state.results[i] = out
		eff.CommandsSucceeded = i + 1
	}

	ex.applyChanges(tracker, eff)
	eff.GasUsed = gasUsed
	eff.Success = true
	eff.ReturnValues = valuesToBytes(state.results)

	if ex.History != nil && len(writes) > 0 {
		actualWrites := ex.currentVersions(writes)
		ex.History.Record(txID, reads, actualWrites, tx.EpochTimestampMs)
	}
	return eff, nil
}

func ensureLen(s [][]Value, n int) [][]Value {
	for len(s) < n {
		s = append(s, nil)
	}
	return s
}

func valuesToBytes(results [][]Value) [][][]byte {
	out := make([][][]byte, len(results))
	for i, vs := range results {
		row := make([][]byte, len(vs))
		for j, v := range vs {
			row[j] = v.Bytes
		}
		out[i] = row
	}
	return out
}

// applyChanges commits the collapsed per-id changes to the Store:
// Created/Unwrapped are inserted, Mutated writes new bytes and bumps
// version, Deleted/Wrapped are removed, Transferred moves the payload
// into pending-receives (spec.md §4.7 "Effects application").
func (ex *Executor) applyChanges(tracker *changeTracker, eff *TransactionEffects) {
	for _, id := range tracker.order {
		c := *tracker.changes[id]
		before, existed := ex.Store.Get(id)
		var inputVersion uint64
		if existed {
			inputVersion = before.Version
		}

		switch c.Kind {
		case ChangeCreated, ChangeUnwrapped:
			obj := &store.SimulatedObject{ID: id, TypeTag: c.TypeTag, BCSBytes: c.Bytes, IsShared: c.IsShared, IsImmutable: c.IsImmutable, Version: 1}
			_ = ex.Store.Put(obj)
			if ex.TrackVersions {
				eff.ObjectVersions[id] = ObjectVersionPair{Input: 0, Output: 1}
			}
		case ChangeMutated:
			_ = ex.Store.Mutate(id, c.Bytes, nil)
			if ex.TrackVersions {
				if out, ok := ex.Store.Get(id); ok {
					eff.ObjectVersions[id] = ObjectVersionPair{Input: inputVersion, Output: out.Version}
				}
			}
		case ChangeDeleted, ChangeWrapped:
			ex.Store.Delete(id)
			if ex.TrackVersions {
				eff.ObjectVersions[id] = ObjectVersionPair{Input: inputVersion, Output: 0}
			}
		case ChangeTransferred:
			ex.Store.Delete(id)
			if c.Recipient != nil {
				ex.Store.AddPendingReceive(*c.Recipient, id, c.TypeTag, c.Bytes)
			}
			if ex.TrackVersions {
				eff.ObjectVersions[id] = ObjectVersionPair{Input: inputVersion, Output: 0}
			}
		}
		eff.record(c)
	}
	if !ex.TrackVersions {
		eff.ObjectVersions = nil
	}
}
