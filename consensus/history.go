package consensus

import (
	"container/list"
	"sync"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/simerrors"
)

// HistoryMaxEntries bounds the serializability history ring
// (spec.md §4.4/S2).
const HistoryMaxEntries = 1000

// HistoryEntry is one completed PTB's read/write version sets
// (spec.md §3).
type HistoryEntry struct {
	Sequence      uint64
	TxID          string
	ReadVersions  map[bcs.Address]uint64
	WriteVersions map[bcs.Address]uint64
	TimestampMs   uint64
}

// History is a FIFO ring of HistoryEntry, bounded to HistoryMaxEntries
// (oldest evicted first once full).
type History struct {
	mu       sync.Mutex
	entries  *list.List
	sequence uint64
}

// NewHistory constructs an empty history ring.
func NewHistory() *History {
	return &History{entries: list.New()}
}

// Record appends a new entry, evicting the oldest if the ring is at
// capacity.
func (h *History) Record(txID string, reads, writes map[bcs.Address]uint64, timestampMs uint64) HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sequence++
	e := HistoryEntry{
		Sequence:      h.sequence,
		TxID:          txID,
		ReadVersions:  reads,
		WriteVersions: writes,
		TimestampMs:   timestampMs,
	}
	h.entries.PushBack(e)
	if h.entries.Len() > HistoryMaxEntries {
		h.entries.Remove(h.entries.Front())
	}
	return e
}

// Len returns the number of entries currently retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries.Len()
}

// Entries returns a snapshot of all retained entries, oldest first.
func (h *History) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, 0, h.entries.Len())
	for e := h.entries.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(HistoryEntry))
	}
	return out
}

// Restore replaces the ring wholesale with entries (oldest first),
// used by the environment's checkpoint/restore pair (spec.md R3).
func (h *History) Restore(entries []HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = list.New()
	var lastSeq uint64
	for _, e := range entries {
		h.entries.PushBack(e)
		lastSeq = e.Sequence
	}
	h.sequence = lastSeq
}

// ValidateSerializability checks a prospective transaction's intended
// reads/writes against every retained history entry, implementing the
// stale-read and RW/WR/WW rules of spec.md §4.4/S1. currentVersions
// supplies each object's present version in the store, for the
// stale-read check.
func (h *History) ValidateSerializability(intendedReads, intendedWrites map[bcs.Address]uint64, currentVersions map[bcs.Address]uint64) error {
	for id, readVersion := range intendedReads {
		if current, ok := currentVersions[id]; ok && current > readVersion {
			return &simerrors.StaleRead{ObjectID: id, ReadVersion: readVersion, CurrentVersion: current}
		}
	}

	for _, entry := range h.Entries() {
		for id, vR := range intendedReads {
			if vW, ok := entry.WriteVersions[id]; ok && vR < vW {
				return &simerrors.SerializationConflict{
					ObjectID: id, OurVersion: vR, TheirVersion: vW, ConflictingTx: entry.TxID,
					Reason: "read-write: history writes a version newer than our intended read",
				}
			}
		}
		for id, vW := range intendedWrites {
			if vR, ok := entry.ReadVersions[id]; ok && vW <= vR {
				return &simerrors.SerializationConflict{
					ObjectID: id, OurVersion: vW, TheirVersion: vR, ConflictingTx: entry.TxID,
					Reason: "write-read: our write does not follow a prior read",
				}
			}
			if prevW, ok := entry.WriteVersions[id]; ok && vW <= prevW {
				return &simerrors.SerializationConflict{
					ObjectID: id, OurVersion: vW, TheirVersion: prevW, ConflictingTx: entry.TxID,
					Reason: "write-write: our write does not follow the prior write",
				}
			}
		}
	}
	return nil
}
