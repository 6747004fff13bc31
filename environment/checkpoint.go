package environment

import (
	"github.com/google/uuid"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/consensus"
	"github.com/suisim/sandbox/store"
)

// checkpointData is everything a checkpoint needs to restore the
// environment's mutable state wholesale (spec.md §4.8 R3: "objects,
// dynamic fields, locks, and counters").
type checkpointData struct {
	storeSnap *store.Snapshot
	locks     map[bcs.Address]consensus.SharedLock
	clock     uint64
	history   []consensus.HistoryEntry
	cfg       Config
}

// CheckpointHandle is an opaque reference to a previously created
// checkpoint.
type CheckpointHandle string

// CreateCheckpoint captures the environment's current state and
// returns an opaque handle that RestoreCheckpoint can later replay
// (spec.md §6).
func (e *Environment) CreateCheckpoint() CheckpointHandle {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	data := &checkpointData{
		storeSnap: e.Store.Snapshot(),
		locks:     e.Locks.GetSharedLocks(),
		clock:     e.Locks.LamportClock(),
		history:   e.History.Entries(),
		cfg:       cfg,
	}

	handle := CheckpointHandle(uuid.NewString())
	e.mu.Lock()
	e.checkpoints[string(handle)] = data
	e.mu.Unlock()
	e.log.Debugw("checkpoint created", "handle", handle)
	return handle
}

// RestoreCheckpoint rewinds the environment to a previously captured
// checkpoint. The checkpoint itself remains usable afterward (spec.md
// §6 allows restoring the same handle repeatedly).
func (e *Environment) RestoreCheckpoint(handle CheckpointHandle) error {
	e.mu.Lock()
	data, ok := e.checkpoints[string(handle)]
	e.mu.Unlock()
	if !ok {
		return errUnknownCheckpoint(handle)
	}

	e.Store.Restore(data.storeSnap)
	e.Locks.Restore(data.locks, data.clock)
	e.History.Restore(data.history)

	e.mu.Lock()
	e.cfg = data.cfg
	e.mu.Unlock()

	e.log.Debugw("checkpoint restored", "handle", handle)
	return nil
}

type errUnknownCheckpoint CheckpointHandle

func (e errUnknownCheckpoint) Error() string {
	return "environment: unknown checkpoint handle " + string(e)
}
