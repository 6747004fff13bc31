// Package simerrors defines the structured error taxonomy surfaced by
// the executor and its collaborators. Every variant carries enough
// context for a caller to act on it programmatically rather than
// string-matching a message; `errors.As` recovers the concrete type
// from any wrapped error.
package simerrors

import (
	"fmt"

	"github.com/suisim/sandbox/bcs"
)

// ENotSupported is the reserved Move abort code for natives this
// simulator declines to implement for real (spec.md §4.5): BLS,
// ECDSA, ED25519, Groth16, VDF, zkLogin, poseidon, random, config,
// nitro-attestation.
const ENotSupported = 1000

// MissingPackage reports a module the resolver could not find.
type MissingPackage struct {
	Address     bcs.Address
	Module      string
	ReferencedBy string
	UpgradeInfo string
}

func (e *MissingPackage) Error() string {
	s := fmt.Sprintf("missing package %s::%s", e.Address, e.Module)
	if e.ReferencedBy != "" {
		s += fmt.Sprintf(" (referenced by %s)", e.ReferencedBy)
	}
	return s
}

// MissingObject reports an unknown object id.
type MissingObject struct {
	ID           bcs.Address
	ExpectedType string
}

func (e *MissingObject) Error() string {
	if e.ExpectedType != "" {
		return fmt.Sprintf("missing object %s (expected type %s)", e.ID, e.ExpectedType)
	}
	return fmt.Sprintf("missing object %s", e.ID)
}

// TypeMismatch reports an argument whose declared type doesn't match
// what was resolved.
type TypeMismatch struct {
	ArgumentIndex int
	Expected      string
	Found         string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("argument %d: expected %s, found %s", e.ArgumentIndex, e.Expected, e.Found)
}

// DeserializationFailed reports a BCS decode failure on a command
// argument.
type DeserializationFailed struct {
	ArgumentIndex int
	ExpectedType  string
	DataSize      int
}

func (e *DeserializationFailed) Error() string {
	return fmt.Sprintf("argument %d: failed to deserialize as %s (%d bytes)", e.ArgumentIndex, e.ExpectedType, e.DataSize)
}

// ContractAbort reports a Move-level abort, including the unsupported
// native case (AbortCode == ENotSupported).
type ContractAbort struct {
	Module          string
	Function        string
	AbortCode       uint64
	Message         string
	CommandIndex    int
	InvolvedObjects []bcs.Address
}

func (e *ContractAbort) Error() string {
	s := fmt.Sprintf("abort in %s::%s, code %d", e.Module, e.Function, e.AbortCode)
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// SharedObjectLockConflict reports a failed shared-object lock
// acquisition (spec.md B3/E2).
type SharedObjectLockConflict struct {
	ObjectID     bcs.Address
	HeldBy       string
	Reason       string
	CommandIndex int
}

func (e *SharedObjectLockConflict) Error() string {
	return fmt.Sprintf("shared object %s lock conflict: %s", e.ObjectID, e.Reason)
}

// SerializationConflict reports an RW/WR/WW conflict detected against
// consensus history (spec.md §4.4/S1).
type SerializationConflict struct {
	ObjectID      bcs.Address
	OurVersion    uint64
	TheirVersion  uint64
	ConflictingTx string
	Reason        string
}

func (e *SerializationConflict) Error() string {
	return fmt.Sprintf("serialization conflict on %s: our version %d vs %d (%s)", e.ObjectID, e.OurVersion, e.TheirVersion, e.Reason)
}

// StaleRead reports a read of a version older than the object's
// current version.
type StaleRead struct {
	ObjectID       bcs.Address
	ReadVersion    uint64
	CurrentVersion uint64
}

func (e *StaleRead) Error() string {
	return fmt.Sprintf("stale read of %s: read version %d, current version %d", e.ObjectID, e.ReadVersion, e.CurrentVersion)
}

// OutOfGas reports a gas-budget exceedance.
type OutOfGas struct {
	CommandIndex int
	Used         uint64
	Budget       uint64
}

func (e *OutOfGas) Error() string {
	return fmt.Sprintf("out of gas at command %d: used %d, budget %d", e.CommandIndex, e.Used, e.Budget)
}

// ExecutionError is the catch-all wrapper for failures that don't fit
// a more specific variant.
type ExecutionError struct {
	Message      string
	CommandIndex *int
}

func (e *ExecutionError) Error() string {
	if e.CommandIndex != nil {
		return fmt.Sprintf("execution error at command %d: %s", *e.CommandIndex, e.Message)
	}
	return "execution error: " + e.Message
}
