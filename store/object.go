// Package store implements the Object Store (spec.md §4.3): a
// versioned, address-keyed object table plus the dynamic-field,
// pending-receive, and system-object bookkeeping that ride along with
// it. Shared-object locks and the Lamport clock live in package
// consensus; this package only holds the data they act on.
package store

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/suisim/sandbox/bcs"
)

// SimulatedObject is one entry in the object table (spec.md §3).
type SimulatedObject struct {
	ID          bcs.Address
	TypeTag     bcs.TypeTag
	BCSBytes    []byte
	IsShared    bool
	IsImmutable bool
	Version     uint64
}

// Clone returns a deep copy, used by checkpoint snapshots.
func (o *SimulatedObject) Clone() *SimulatedObject {
	c := *o
	c.BCSBytes = append([]byte(nil), o.BCSBytes...)
	return &c
}

func (o *SimulatedObject) validate() error {
	if o.IsShared && o.IsImmutable {
		return errors.Errorf("object %s: shared and immutable are mutually exclusive", o.ID)
	}
	if len(o.BCSBytes) < bcs.AddressLength {
		return errors.Errorf("object %s: bcs_bytes shorter than a UID", o.ID)
	}
	var uid bcs.Address
	copy(uid[:], o.BCSBytes[:bcs.AddressLength])
	if uid != o.ID {
		return errors.Errorf("object %s: bcs_bytes UID %s does not match id (P1)", o.ID, uid)
	}
	return nil
}

// systemClockBytes builds the Clock payload: UID(32) || timestamp_ms(8 LE).
func systemClockBytes(id bcs.Address, timestampMs uint64) []byte {
	b := make([]byte, bcs.AddressLength+8)
	copy(b, id[:])
	binary.LittleEndian.PutUint64(b[bcs.AddressLength:], timestampMs)
	return b
}

// systemRandomBytes builds the Random payload: UID(32) || inner_UID(32) || version(8 LE).
func systemRandomBytes(id, inner bcs.Address, version uint64) []byte {
	b := make([]byte, bcs.AddressLength*2+8)
	copy(b, id[:])
	copy(b[bcs.AddressLength:], inner[:])
	binary.LittleEndian.PutUint64(b[bcs.AddressLength*2:], version)
	return b
}
