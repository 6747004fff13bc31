package replay

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/environment"
	"github.com/suisim/sandbox/ptb"
	"github.com/suisim/sandbox/store"
	"github.com/suisim/sandbox/vm"
)

// Driver re-executes a historical transaction against an Environment,
// fetching whatever state it needs on demand from an ArchiveProvider
// (spec.md §4.9).
type Driver struct {
	Env      *environment.Environment
	Provider ArchiveProvider

	// Checkpoint pins archival reads that fall back past an exact
	// version (spec.md §5); ReplayRecord overwrites it with each
	// replayed TxRecord's checkpoint.
	Checkpoint *uint64

	// SelfHeal enables the best-effort dynamic-field recovery
	// policies of spec.md §4.9 step 6. Off by default: a replay whose
	// purpose is validating the simulator against real effects should
	// fail loudly on an unresolvable input rather than silently
	// substitute a stub.
	SelfHeal bool

	// ComparePolicy controls how strictly compareEffects holds a
	// replayed PTB to its recorded on-chain effects.
	ComparePolicy ComparePolicy

	log        *zap.SugaredLogger
	missCache  *missCache
	versionMap map[bcs.Address]uint64
}

// New constructs a Driver around env and provider. A nil log installs
// a no-op logger.
func New(env *environment.Environment, provider ArchiveProvider, log *zap.SugaredLogger) *Driver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Driver{
		Env:           env,
		Provider:      provider,
		ComparePolicy: Strict,
		log:           log,
		missCache:     newMissCache(),
	}
}

// ReplayResult is the outcome of replaying one historical transaction.
type ReplayResult struct {
	Digest           string
	LocalSuccess     bool
	LocalError       error
	CommandsExecuted int
	Effects          *ptb.TransactionEffects
	Comparison       *EffectsComparison
}

// Replay fetches the transaction named by digest and replays it
// (spec.md §4.9 step 1 onward).
func (d *Driver) Replay(digest string) (*ReplayResult, error) {
	tx, err := d.Provider.FetchTransaction(digest)
	if err != nil {
		return nil, errors.Wrapf(err, "replay: fetch transaction %s", digest)
	}
	return d.ReplayRecord(tx)
}

// ReplayRecord replays an already-fetched TxRecord: reconstructs the
// historical version map, resolves the package linkage closure,
// fetches and installs declared inputs, seeds the Lamport clock past
// every historical version involved, installs on-demand fetchers, and
// executes (spec.md §4.9 steps 1-5). If tx carries recorded effects,
// the result also carries a comparison against them (step 6).
func (d *Driver) ReplayRecord(tx TxRecord) (*ReplayResult, error) {
	d.Checkpoint = tx.Checkpoint
	d.versionMap = reconstructVersionMap(tx)

	if err := d.resolvePackageClosure(tx); err != nil {
		return nil, err
	}

	inputs, err := d.fetchAndInstallInputs(tx)
	if err != nil {
		return nil, err
	}

	var seedClock uint64
	for _, v := range d.versionMap {
		if v+1 > seedClock {
			seedClock = v + 1
		}
	}
	d.Env.Locks.Restore(d.Env.Locks.GetSharedLocks(), seedClock)

	d.Env.Executor.RuntimeFactory = d.buildRuntimeFactory()
	defer func() { d.Env.Executor.RuntimeFactory = nil }()

	txID := tx.Digest
	if txID == "" {
		txID = "replay-tx"
	}
	cfg := d.Env.Config()
	txCtx := &vm.TxContext{
		Sender:            tx.Sender,
		Epoch:             cfg.Epoch,
		EpochTimestampMs:  cfg.EpochTimestampMs,
		GasPrice:          tx.GasPrice,
		ReferenceGasPrice: tx.GasPrice,
		RandomSeed:        cfg.RandomSeed,
	}
	if tx.TimestampMs != nil {
		txCtx.EpochTimestampMs = *tx.TimestampMs
	}

	eff, err := d.Env.Executor.ExecutePTB(txID, txCtx, inputs, tx.Commands, tx.GasBudget)
	if err != nil {
		return nil, err
	}

	result := &ReplayResult{
		Digest:           tx.Digest,
		LocalSuccess:     eff.Success,
		LocalError:       eff.Error,
		CommandsExecuted: eff.CommandsSucceeded,
		Effects:          eff,
	}
	if tx.RecordedEffects != nil {
		cmp := compareEffects(tx.RecordedEffects, eff, d.ComparePolicy)
		result.Comparison = &cmp
	}
	return result, nil
}

// fetchAndInstallInputs resolves every object-kind input's bytes from
// the archive (spec.md §4.9 step 2), installing each one into the
// Environment's store at its historical version so lock acquisition
// and serializability checks see the same state a live PTB would.
func (d *Driver) fetchAndInstallInputs(tx TxRecord) ([]ptb.InputValue, error) {
	out := make([]ptb.InputValue, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if !in.IsObject {
			out[i] = in
			continue
		}
		rec, ok, err := d.fetchObjectWithFallback(in.Object.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "replay: fetch input object %s", in.Object.ID.String())
		}
		if !ok {
			return nil, errors.Errorf("replay: input object %s not found in archive", in.Object.ID.String())
		}

		obj := in.Object
		obj.Bytes = rec.BCSBytes
		obj.TypeTag = rec.TypeTag
		obj.Version = rec.Version
		out[i] = ptb.ObjectInputValue(obj)

		if err := d.Env.Store.Put(&store.SimulatedObject{
			ID:          rec.ID,
			TypeTag:     rec.TypeTag,
			BCSBytes:    rec.BCSBytes,
			IsShared:    rec.IsShared,
			IsImmutable: rec.IsImmutable,
			Version:     rec.Version,
		}); err != nil {
			return nil, errors.Wrapf(err, "replay: install input object %s", rec.ID.String())
		}
	}
	return out, nil
}
