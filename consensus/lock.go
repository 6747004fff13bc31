// Package consensus implements the Consensus / Lock Manager (spec.md
// §4.4): shared-object lock acquisition with mutable-exclusivity
// rules, a Lamport clock bumped once per PTB that touches a shared
// object, and a bounded serializability history used to detect
// stale reads and RW/WR/WW conflicts.
package consensus

import (
	"sync"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/simerrors"
)

// SharedLock is one entry in the lock table (spec.md §3).
type SharedLock struct {
	ObjectID  bcs.Address
	Version   uint64
	IsMutable bool
	TxID      string
}

// LockRequest describes one object a PTB wants to acquire before
// execution.
type LockRequest struct {
	ObjectID     bcs.Address
	IsMutable    bool
	// CurrentVersion is recorded on a new lock entry when no lock on the
	// object is held; an already-held lock keeps its recorded version.
	// The object store is not consulted, and the Lamport clock value is
	// never used as a lock version.
	CurrentVersion uint64
}

// Manager owns the shared-lock table and the Lamport clock.
type Manager struct {
	mu    sync.Mutex
	locks map[bcs.Address]SharedLock
	clock uint64
}

// New constructs an empty lock manager.
func New() *Manager {
	return &Manager{locks: make(map[bcs.Address]SharedLock)}
}

// LamportClock returns the current clock value.
func (m *Manager) LamportClock() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock
}

// AcquireSharedLocks attempts to acquire every requested lock for
// txID. On any conflict, no lock is mutated (spec.md B3) and the
// first conflicting request is reported.
//
// Conflict rule (spec.md §4.4): conflict if an existing lock is
// mutable, or if the request is mutable and any lock exists.
func (m *Manager) AcquireSharedLocks(txID string, requests []LockRequest) error {
	if len(requests) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, req := range requests {
		if existing, ok := m.locks[req.ObjectID]; ok {
			if existing.IsMutable || req.IsMutable {
				return &simerrors.SharedObjectLockConflict{
					ObjectID: req.ObjectID,
					HeldBy:   existing.TxID,
					Reason:   "both transactions require mutable access",
				}
			}
		}
	}

	m.clock++
	for _, req := range requests {
		existing, hadLock := m.locks[req.ObjectID]
		version := req.CurrentVersion
		if hadLock {
			version = existing.Version
		}
		m.locks[req.ObjectID] = SharedLock{
			ObjectID:  req.ObjectID,
			Version:   version,
			IsMutable: req.IsMutable || (hadLock && existing.IsMutable),
			TxID:      txID,
		}
	}
	return nil
}

// ReleaseLocksForTransaction releases every lock currently held by
// txID, unconditionally (spec.md §4.4: "Release happens
// unconditionally after execution ... but only if the current entry
// still belongs to the acquiring tx").
func (m *Manager) ReleaseLocksForTransaction(txID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, lock := range m.locks {
		if lock.TxID == txID {
			delete(m.locks, id)
		}
	}
}

// ReleaseSharedLocks releases only the named objects, and only if
// still held by txID.
func (m *Manager) ReleaseSharedLocks(txID string, objectIDs []bcs.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range objectIDs {
		if lock, ok := m.locks[id]; ok && lock.TxID == txID {
			delete(m.locks, id)
		}
	}
}

// GetSharedLocks returns a snapshot of the current lock table.
func (m *Manager) GetSharedLocks() map[bcs.Address]SharedLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[bcs.Address]SharedLock, len(m.locks))
	for k, v := range m.locks {
		out[k] = v
	}
	return out
}

// Restore replaces the lock table and Lamport clock wholesale, used by
// the environment's checkpoint/restore pair (spec.md R3).
func (m *Manager) Restore(locks map[bcs.Address]SharedLock, clock uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := make(map[bcs.Address]SharedLock, len(locks))
	for k, v := range locks {
		fresh[k] = v
	}
	m.locks = fresh
	m.clock = clock
}
