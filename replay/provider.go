// Package replay implements the Historical Replay Driver (spec.md
// §4.9): given a previously-executed transaction fetched from an
// archival provider, it reconstructs the historical version map,
// resolves the package linkage closure, installs on-demand fetchers
// over an Environment, re-executes the PTB, and optionally compares
// the result against the recorded effects.
//
// The archival provider itself — GraphQL/JSON-RPC against a live
// fullnode, a local cache, whatever — is an external collaborator
// (spec.md §1); this package only consumes the ArchiveProvider
// interface.
package replay

import (
	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/ptb"
	"github.com/suisim/sandbox/resolver"
)

// RecordedEffects is the subset of a historical transaction's on-chain
// effects used for post-replay comparison (spec.md §4.9 step 6).
type RecordedEffects struct {
	Success                                        bool
	Created, Mutated, Deleted, Wrapped, Unwrapped  []bcs.Address
	GasUsed                                        uint64
	EventsCount                                    int
}

// TxRecord is a fetched historical transaction: its PTB in this
// simulator's own command/input vocabulary, the bookkeeping needed to
// rebuild its historical version map, and (optionally) the effects it
// actually produced on-chain.
type TxRecord struct {
	Digest      string
	Sender      bcs.Address
	GasBudget   *uint64
	GasPrice    uint64
	Checkpoint  *uint64
	TimestampMs *uint64

	Commands []ptb.Command
	Inputs   []ptb.InputValue

	// DeclaredInputVersions is (object id -> version) for every
	// Object-kind input named directly by the transaction.
	DeclaredInputVersions map[bcs.Address]uint64

	// UnchangedLoadedRuntimeObjects, UnchangedConsensusObjects, and
	// ChangedObjects are the three version-map sources named in
	// spec.md §4.9 step 1, as recorded alongside the original
	// execution (Sui effects expose all three separately).
	UnchangedLoadedRuntimeObjects map[bcs.Address]uint64
	UnchangedConsensusObjects     map[bcs.Address]uint64
	ChangedObjects                map[bcs.Address]uint64

	RecordedEffects *RecordedEffects
}

// ObjectRecord is one object as returned by the archive.
type ObjectRecord struct {
	ID          bcs.Address
	TypeTag     bcs.TypeTag
	BCSBytes    []byte
	IsShared    bool
	IsImmutable bool
	Version     uint64
}

// PackageRecord is a fetched package: its compiled modules plus the
// linkage table recorded at the version it was fetched (spec.md §4.2
// Glossary: Linkage table).
type PackageRecord struct {
	StorageID  bcs.Address
	OriginalID *bcs.Address
	Version    uint64
	Modules    []*resolver.CompiledModule
	Linkage    map[bcs.Address]resolver.LinkageEntry
}

// DynamicFieldRecord is one dynamic-field child as returned by the
// archive's field-listing or key-lookup endpoints.
type DynamicFieldRecord struct {
	Parent    bcs.Address
	Child     bcs.Address
	KeyType   bcs.TypeTag
	KeyBCS    []byte
	ValueType bcs.TypeTag
	Value     []byte
	Version   uint64
}

// ArchiveProvider is the pluggable historical-data source (spec.md §6
// "Archival provider (consumed, pluggable)"). Implementations are
// expected to cache aggressively; the replay driver itself only adds
// the exponential-backoff miss cache that shields a flaky or rate
// limited backend from being hammered by repeated in-PTB lookups.
type ArchiveProvider interface {
	// FetchTransaction retrieves a previously-executed transaction by
	// digest (spec.md §4.9 step 1's "reconstruct transaction").
	FetchTransaction(digest string) (TxRecord, error)

	// FetchObject returns the latest known version of id.
	FetchObject(id bcs.Address) (ObjectRecord, bool, error)

	// FetchObjectAtVersion returns id exactly as of version.
	FetchObjectAtVersion(id bcs.Address, version uint64) (ObjectRecord, bool, error)

	// FetchObjectAtCheckpoint returns id as of checkpoint (the
	// fallback used when an exact version is unknown but a checkpoint
	// bound is available).
	FetchObjectAtCheckpoint(id bcs.Address, checkpoint uint64) (ObjectRecord, bool, error)

	// FetchPackage returns a package's modules and linkage, optionally
	// pinned to a checkpoint.
	FetchPackage(id bcs.Address, checkpoint *uint64) (PackageRecord, error)

	// FetchDynamicFields lists up to limit of parent's children,
	// optionally pinned to a checkpoint.
	FetchDynamicFields(parent bcs.Address, limit int, checkpoint *uint64) ([]DynamicFieldRecord, error)

	// FetchDynamicFieldByName looks up one child by its exact
	// (nameType, nameBCS) derivation key.
	FetchDynamicFieldByName(parent bcs.Address, nameType bcs.TypeTag, nameBCS []byte) (DynamicFieldRecord, bool, error)

	// FindDynamicFieldByBCS searches parent's children for one whose
	// raw key bytes match bcsBytes regardless of declared name type —
	// the self-heal fallback spec.md §4.9 describes for computed
	// dynamic-field keys (e.g. skip-list tick indices) that can't be
	// named ahead of time.
	FindDynamicFieldByBCS(parent bcs.Address, bcsBytes []byte, checkpoint *uint64, limit int) (DynamicFieldRecord, bool, error)
}
