package ptb

import "github.com/suisim/sandbox/bcs"

// ObjectChangeKind discriminates one effects entry.
type ObjectChangeKind int

const (
	ChangeCreated ObjectChangeKind = iota
	ChangeMutated
	ChangeDeleted
	ChangeWrapped
	ChangeUnwrapped
	ChangeTransferred
)

// ObjectChange is one entry of TransactionEffects.object_changes.
type ObjectChange struct {
	Kind        ObjectChangeKind
	ID          bcs.Address
	TypeTag     bcs.TypeTag
	Bytes       []byte
	Recipient   *bcs.Address // set iff Kind == ChangeTransferred
	IsShared    bool
	IsImmutable bool
}

// ObjectVersionPair records an object's version before and after a PTB.
type ObjectVersionPair struct {
	Input  uint64
	Output uint64
}

// DynamicFieldEffect mirrors one (parent,child)->(type,bytes) entry
// synced from the Object Runtime back into the Store.
type DynamicFieldEffect struct {
	Parent, Child bcs.Address
	TypeTag       bcs.TypeTag
	Value         []byte
}

// Event is one session-level event (spec.md §3); TxDigest tags which
// PTB produced it once the executor is wired behind an environment
// that assigns digests.
type Event struct {
	TypeTag  string
	Data     []byte
	Sequence uint64
	TxDigest string
}

// TransactionEffects is the full result of a PTB application (spec.md §3).
type TransactionEffects struct {
	Created, Mutated, Deleted, Wrapped, Unwrapped []bcs.Address
	ObjectChanges                                 []ObjectChange
	CreatedObjectBytes, MutatedObjectBytes         map[bcs.Address][]byte
	Received                                       []bcs.Address
	DynamicFieldEntries                            []DynamicFieldEffect
	ReturnValues                                   [][][]byte
	Events                                         []Event
	ObjectVersions                                 map[bcs.Address]ObjectVersionPair
	GasUsed                                        uint64
	Success                                        bool
	Error                                          error
	FailedCommandIndex                             *int
	CommandsSucceeded                              int
}

func newEffects() *TransactionEffects {
	return &TransactionEffects{
		CreatedObjectBytes: make(map[bcs.Address][]byte),
		MutatedObjectBytes: make(map[bcs.Address][]byte),
		ObjectVersions:     make(map[bcs.Address]ObjectVersionPair),
	}
}

func intPtr(i int) *int { return &i }

// record appends a change and the matching summary-list entry,
// keeping P2 (created∩deleted=∅, wrapped∩unwrapped=∅) true by
// construction: each id is recorded under exactly one terminal kind
// per PTB application.
func (e *TransactionEffects) record(c ObjectChange) {
	e.ObjectChanges = append(e.ObjectChanges, c)
	switch c.Kind {
	case ChangeCreated:
		e.Created = append(e.Created, c.ID)
		e.CreatedObjectBytes[c.ID] = c.Bytes
	case ChangeMutated:
		e.Mutated = append(e.Mutated, c.ID)
		e.MutatedObjectBytes[c.ID] = c.Bytes
	case ChangeDeleted:
		e.Deleted = append(e.Deleted, c.ID)
	case ChangeWrapped:
		e.Wrapped = append(e.Wrapped, c.ID)
	case ChangeUnwrapped:
		e.Unwrapped = append(e.Unwrapped, c.ID)
	case ChangeTransferred:
		// Transferred objects are tracked via ObjectChanges only; the
		// executor moves the payload into pending-receives separately.
	}
}
