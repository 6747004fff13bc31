package environment

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/consensus"
	"github.com/suisim/sandbox/ptb"
	"github.com/suisim/sandbox/resolver"
	"github.com/suisim/sandbox/simerrors"
	"github.com/suisim/sandbox/store"
	"github.com/suisim/sandbox/synth"
	"github.com/suisim/sandbox/vm"
)

// Environment is the Simulation Environment facade (spec.md §4.8): it
// owns the Resolver, Store, Consensus Manager and History, Native
// Table, Synthesizer, and PTB Executor, and layers sender/clock/epoch
// state, checkpoints, persistence, and the event buffer on top.
type Environment struct {
	log *zap.SugaredLogger

	mu     sync.Mutex
	cfg    Config
	txSeq  uint64

	Resolver *resolver.Resolver
	Store    *store.ObjectStore
	Locks    *consensus.Manager
	History  *consensus.History
	Natives  *vm.NativeTable
	Synth    *synth.Synthesizer
	Executor *ptb.Executor

	events       *eventBuffer
	checkpoints  map[string]*checkpointData
	metrics      *metricsSet
	coinRegistry map[string]CoinMetadata
}

// CoinMetadata is the registered description of a coin type (spec.md
// §6 state-file "coin_registry").
type CoinMetadata struct {
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	TypeTag  string `json:"type_tag"`
}

// RegisterCoinMetadata records a coin type's display metadata.
func (e *Environment) RegisterCoinMetadata(meta CoinMetadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.coinRegistry[meta.TypeTag] = meta
}

// New wires a fresh Environment around cfg, logging through log (never
// a hidden package-level logger — spec.md's ambient logging is always
// threaded explicitly, matching the teacher's constructor-injected
// zap.SugaredLogger).
func New(cfg Config, log *zap.SugaredLogger) *Environment {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	res := resolver.New()
	st := store.New(cfg.ClockBaseMs)
	locks := consensus.New()
	hist := consensus.NewHistory()
	natives := vm.DefaultNativeTable()
	synthCfg := synth.DefaultConfig()
	synthCfg.ValidatorCount = cfg.ValidatorCount
	synthesizer := synth.New(res, synthCfg)
	executor := ptb.New(res, st, locks, hist, natives, synthesizer)
	executor.TrackVersions = cfg.TrackVersions

	env := &Environment{
		log:         log,
		cfg:         cfg,
		Resolver:    res,
		Store:       st,
		Locks:       locks,
		History:     hist,
		Natives:     natives,
		Synth:       synthesizer,
		Executor:    executor,
		events:       newEventBuffer(),
		checkpoints:  make(map[string]*checkpointData),
		metrics:      newMetricsSet(),
		coinRegistry: make(map[string]CoinMetadata),
	}
	log.Infow("environment initialized", "sender", cfg.SenderAddress.String(), "epoch", cfg.Epoch)
	return env
}

// Config returns a copy of the environment's current configuration.
func (e *Environment) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetSender changes the sender used for subsequent ExecutePTB and
// ExecutePTBWithGasBudget calls.
func (e *Environment) SetSender(addr bcs.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.SenderAddress = addr
}

// SetTimestampMs sets the next PTB's tx_timestamp_ms (spec.md §6).
func (e *Environment) SetTimestampMs(ms uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.TxTimestampMs = ms
}

// AdvanceClock moves the on-chain Clock object and the configured
// clock base forward by deltaMs (spec.md §4.8).
func (e *Environment) AdvanceClock(deltaMs uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.ClockBaseMs += deltaMs
	return e.Store.AdvanceClock(e.cfg.ClockBaseMs)
}

// AdvanceEpoch bumps the epoch counter and records the new epoch
// timestamp (spec.md §4.8).
func (e *Environment) AdvanceEpoch(epochTimestampMs uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Epoch++
	e.cfg.EpochTimestampMs = epochTimestampMs
	e.log.Infow("epoch advanced", "epoch", e.cfg.Epoch)
}

// SetRandomSeed fixes the 32-byte seed future TxContexts carry
// (spec.md §4.8, used by the synthesized Random object and the
// "random" native table entry which is itself unsupported).
func (e *Environment) SetRandomSeed(seed [32]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.RandomSeed = seed
}

// SetGasBudget sets the default gas budget used by ExecutePTB (nil
// means unmetered, per spec.md §4.7).
func (e *Environment) SetGasBudget(budget *uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.GasBudget = budget
}

func (e *Environment) nextTxID() string {
	n := atomic.AddUint64(&e.txSeq, 1)
	return fmt.Sprintf("tx-%d", n)
}

// ExecutePTB runs one PTB using the environment's configured sender,
// clock, epoch, and gas budget (spec.md §6).
func (e *Environment) ExecutePTB(inputs []ptb.InputValue, commands []ptb.Command) (*ptb.TransactionEffects, error) {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()
	return e.executePTB(cfg.GasBudget, inputs, commands)
}

// ExecutePTBWithGasBudget runs one PTB with an explicit, one-shot gas
// budget override (spec.md §6).
func (e *Environment) ExecutePTBWithGasBudget(budget uint64, inputs []ptb.InputValue, commands []ptb.Command) (*ptb.TransactionEffects, error) {
	return e.executePTB(&budget, inputs, commands)
}

func (e *Environment) executePTB(gasBudget *uint64, inputs []ptb.InputValue, commands []ptb.Command) (*ptb.TransactionEffects, error) {
	e.mu.Lock()
	cfg := e.cfg
	txID := e.nextTxID()
	e.mu.Unlock()

	tx := &vm.TxContext{
		Sender:            cfg.SenderAddress,
		TxHash:            []byte(txID),
		Epoch:             cfg.Epoch,
		EpochTimestampMs:  cfg.EpochTimestampMs,
		GasPrice:          cfg.GasPrice,
		ReferenceGasPrice: cfg.ReferenceGasPrice,
		RandomSeed:        cfg.RandomSeed,
	}

	eff, err := e.Executor.ExecutePTB(txID, tx, inputs, commands, gasBudget)
	if err != nil {
		e.log.Errorw("ptb execution error", "tx", txID, "error", err)
		return eff, err
	}
	if !eff.Success {
		e.log.Warnw("ptb failed", "tx", txID, "error", eff.Error)
		e.metrics.ptbFailed.Inc()
		if _, ok := eff.Error.(*simerrors.SharedObjectLockConflict); ok {
			e.metrics.lockConflicts.Inc()
		}
	} else {
		e.metrics.ptbSucceeded.Inc()
		e.metrics.gasUsed.Observe(float64(eff.GasUsed))
	}
	e.events.record(txID, eff.Events)
	return eff, nil
}

// DeployPackage publishes modules as a standalone operation, outside
// a PTB (spec.md §6). It has no sibling commands to stay atomic with,
// so it writes the minted package and UpgradeCap straight to the
// resolver/store rather than running a one-command PTB.
func (e *Environment) DeployPackage(modules []*resolver.CompiledModule) (bcs.Address, error) {
	pkgAddr, _, err := e.Executor.PublishStandalone(modules)
	if err != nil {
		return bcs.Address{}, err
	}
	e.log.Infow("package deployed", "package", pkgAddr.String())
	return pkgAddr, nil
}

// DeployPackageAt publishes modules as an upgrade of an existing
// package (spec.md §6).
func (e *Environment) DeployPackageAt(packageID bcs.Address, modules []*resolver.CompiledModule) (bcs.Address, error) {
	newAddr, _, err := e.Executor.UpgradeStandalone(packageID, modules)
	if err != nil {
		return bcs.Address{}, err
	}
	e.log.Infow("package upgraded", "original", packageID.String(), "storage", newAddr.String())
	return newAddr, nil
}

// GetObject returns the current object, if present.
func (e *Environment) GetObject(id bcs.Address) (*store.SimulatedObject, bool) {
	return e.Store.Get(id)
}

// ListObjects returns every object currently in the store.
func (e *Environment) ListObjects() []*store.SimulatedObject {
	return e.Store.List()
}

// InspectObject is an alias of GetObject named after spec.md §6's
// "inspect_object" facade entry (read-only, no mutation semantics
// differ from GetObject; kept distinct so callers can grep the
// spec-facing name).
func (e *Environment) InspectObject(id bcs.Address) (*store.SimulatedObject, bool) {
	return e.GetObject(id)
}

// GetDynamicField looks up one dynamic field by parent/child id.
func (e *Environment) GetDynamicField(parent, child bcs.Address) (store.DynamicFieldEntry, bool) {
	return e.Store.GetDynamicField(parent, child)
}

// ListDynamicFields returns every dynamic field attached to parent.
func (e *Environment) ListDynamicFields(parent bcs.Address) []store.DynamicFieldEntry {
	return e.Store.ListDynamicFields(parent)
}

// FoldDynamicFields iterates parent's dynamic fields, stopping early
// if fn returns false.
func (e *Environment) FoldDynamicFields(parent bcs.Address, fn func(store.DynamicFieldEntry) bool) {
	e.Store.FoldDynamicFields(parent, fn)
}

// SendToObject deposits a pending-receive entry addressed to
// recipient (spec.md §4.3's Transfer::party / TTO surface).
func (e *Environment) SendToObject(recipient, sent bcs.Address, typeTag bcs.TypeTag, objBytes []byte) {
	e.Store.AddPendingReceive(recipient, sent, typeTag, objBytes)
}

// ClearPendingReceive removes one pending-receive entry without
// consuming it through a Receive argument.
func (e *Environment) ClearPendingReceive(recipient, sent bcs.Address) {
	e.Store.ClearPendingReceive(recipient, sent)
}

// GetPendingReceives lists pending-receive entries addressed to recipient.
func (e *Environment) GetPendingReceives(recipient bcs.Address) []store.PendingReceive {
	return e.Store.ListPendingReceives(recipient)
}

// AcquireSharedLocks acquires shared-object locks directly, bypassing
// PTB execution (spec.md §6, used by embedders orchestrating their
// own concurrency scenarios).
func (e *Environment) AcquireSharedLocks(txID string, requests []consensus.LockRequest) error {
	return e.Locks.AcquireSharedLocks(txID, requests)
}

// ReleaseSharedLocks releases the named locks if still held by txID.
func (e *Environment) ReleaseSharedLocks(txID string, objectIDs []bcs.Address) {
	e.Locks.ReleaseSharedLocks(txID, objectIDs)
}

// ReleaseLocksForTransaction releases every lock held by txID.
func (e *Environment) ReleaseLocksForTransaction(txID string) {
	e.Locks.ReleaseLocksForTransaction(txID)
}

// GetSharedLocks returns a snapshot of the current lock table.
func (e *Environment) GetSharedLocks() map[bcs.Address]consensus.SharedLock {
	return e.Locks.GetSharedLocks()
}

// CreateObject inserts a freshly-addressed object directly into the
// store (spec.md §6's fixture-building convenience, outside any PTB).
func (e *Environment) CreateObject(typeTag bcs.TypeTag, bodyAfterUID []byte, shared, immutable bool) (bcs.Address, error) {
	id := e.Store.FreshID()
	buf := make([]byte, 0, bcs.AddressLength+len(bodyAfterUID))
	buf = append(buf, id[:]...)
	buf = append(buf, bodyAfterUID...)
	obj := &store.SimulatedObject{ID: id, TypeTag: typeTag, BCSBytes: buf, IsShared: shared, IsImmutable: immutable, Version: 1}
	if err := e.Store.Put(obj); err != nil {
		return bcs.Address{}, err
	}
	return id, nil
}

// coinTypeTag is Coin<SUI>'s type tag, matching the shape package ptb
// assumes for SplitCoins/MergeCoins arguments.
var coinTypeTag = bcs.Struct(bcs.StructTag{Address: bcs.FrameworkCore, Module: "coin", Name: "Coin"})

// CreateCoin mints a fresh Coin<SUI>-shaped object with the given
// balance (spec.md §6).
func (e *Environment) CreateCoin(balance uint64) (bcs.Address, error) {
	id := e.Store.FreshID()
	buf := bcs.NewEncoder().Address(id).U64(balance).Bytes()
	obj := &store.SimulatedObject{ID: id, TypeTag: coinTypeTag, BCSBytes: buf, Version: 1}
	if err := e.Store.Put(obj); err != nil {
		return bcs.Address{}, err
	}
	return id, nil
}

// LoadObject loads an object into the store wholesale, e.g. from a
// replay-provider fetch (spec.md §6).
func (e *Environment) LoadObject(obj *store.SimulatedObject) error {
	return e.Store.Put(obj)
}

// AllEvents returns every event recorded across the environment's
// lifetime (spec.md §3/§6).
func (e *Environment) AllEvents() []ptb.Event {
	return e.events.All()
}

// LastTxEvents returns the events produced by the most recently
// executed PTB only.
func (e *Environment) LastTxEvents() []ptb.Event {
	return e.events.Last()
}
