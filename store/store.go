package store

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/btree"

	"github.com/suisim/sandbox/bcs"
)

// entry is the ordered-table item; the tree orders purely by ID so
// iteration is deterministic (spec.md §4.3 mandates BTreeMap
// semantics).
type entry struct {
	id  bcs.Address
	obj *SimulatedObject
}

func lessEntry(a, b entry) bool {
	return bytes.Compare(a.id[:], b.id[:]) < 0
}

// freshIDMarker is the fixed high byte that distinguishes
// synthesizer/fresh-id-minted addresses from real ones (spec.md §4.3).
const freshIDMarker = 0xAA

// ObjectStore is the keyed, versioned object table plus its attendant
// dynamic-field and pending-receive tables.
type ObjectStore struct {
	mu sync.RWMutex

	objects *btree.BTreeG[entry]

	dynamicFields    map[dynamicFieldKey]DynamicFieldEntry
	dynamicByParent  map[bcs.Address][]bcs.Address
	pendingReceives  map[pendingKey]PendingReceive

	idCounter uint64

	clockID  bcs.Address
	randomID bcs.Address
}

// New constructs an ObjectStore with the Clock and Random system
// objects initialized (spec.md §3 Lifecycle), at clockBaseMs.
func New(clockBaseMs uint64) *ObjectStore {
	s := &ObjectStore{
		objects:         btree.NewBTreeG(lessEntry),
		dynamicFields:   make(map[dynamicFieldKey]DynamicFieldEntry),
		dynamicByParent: make(map[bcs.Address][]bcs.Address),
		pendingReceives: make(map[pendingKey]PendingReceive),
		clockID:         bcs.ClockObjectID,
		randomID:        bcs.RandomObjectID,
	}
	s.initSystemObjects(clockBaseMs)
	return s
}

func (s *ObjectStore) initSystemObjects(clockBaseMs uint64) {
	clock := &SimulatedObject{
		ID:       s.clockID,
		TypeTag:  bcs.Struct(bcs.StructTag{Address: bcs.FrameworkCore, Module: "clock", Name: "Clock"}),
		BCSBytes: systemClockBytes(s.clockID, clockBaseMs),
		IsShared: true,
		Version:  1,
	}
	inner := s.mintAddress()
	random := &SimulatedObject{
		ID:       s.randomID,
		TypeTag:  bcs.Struct(bcs.StructTag{Address: bcs.FrameworkCore, Module: "random", Name: "Random"}),
		BCSBytes: systemRandomBytes(s.randomID, inner, 1),
		IsShared: true,
		Version:  1,
	}
	s.objects.Set(entry{id: clock.ID, obj: clock})
	s.objects.Set(entry{id: random.ID, obj: random})
}

// ResetSystemObjects re-creates the Clock and Random system objects,
// matching spec.md §3's "re-created on reset_state" lifecycle rule.
func (s *ObjectStore) ResetSystemObjects(clockBaseMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initSystemObjects(clockBaseMs)
}

// FreshID mints a new address: a monotonic counter with the fixed
// 0xAA marker in byte 0 (spec.md §4.3).
func (s *ObjectStore) FreshID() bcs.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mintAddress()
}

// mintAddress is FreshID's lock-held implementation, also used during
// system-object init before the store's own lock is first acquired
// (New itself holds no lock, so this is safe to call directly there).
func (s *ObjectStore) mintAddress() bcs.Address {
	s.idCounter++
	var addr bcs.Address
	addr[0] = freshIDMarker
	binary.BigEndian.PutUint64(addr[bcs.AddressLength-8:], s.idCounter)
	return addr
}

// Put inserts or overwrites an object, validating P1 and the
// shared/immutable exclusivity invariant.
func (s *ObjectStore) Put(obj *SimulatedObject) error {
	if err := obj.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects.Set(entry{id: obj.ID, obj: obj})
	return nil
}

// Get returns the object at id, if present.
func (s *ObjectStore) Get(id bcs.Address) (*SimulatedObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objects.Get(entry{id: id})
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// Delete removes an object from the top-level table, returning it if
// present (used for Deleted/Wrapped effects and pending-transfer
// eviction).
func (s *ObjectStore) Delete(id bcs.Address) (*SimulatedObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects.Delete(entry{id: id})
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// Mutate replaces an object's bytes, bumping its version by one unless
// explicitVersion is non-nil, in which case that version is recorded
// as given.
func (s *ObjectStore) Mutate(id bcs.Address, newBytes []byte, explicitVersion *uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects.Get(entry{id: id})
	if !ok {
		return errors.Errorf("store: mutate: unknown object %s", id)
	}
	updated := e.obj.Clone()
	updated.BCSBytes = newBytes
	if explicitVersion != nil {
		updated.Version = *explicitVersion
	} else {
		updated.Version++
	}
	if err := updated.validate(); err != nil {
		return err
	}
	s.objects.Set(entry{id: id, obj: updated})
	return nil
}

// AdvanceClock patches the Clock's timestamp bytes [32..40] in place
// and bumps its version (spec.md §4.3).
func (s *ObjectStore) AdvanceClock(timestampMs uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects.Get(entry{id: s.clockID})
	if !ok {
		return errors.New("store: clock object missing")
	}
	updated := e.obj.Clone()
	binary.LittleEndian.PutUint64(updated.BCSBytes[bcs.AddressLength:bcs.AddressLength+8], timestampMs)
	updated.Version++
	s.objects.Set(entry{id: s.clockID, obj: updated})
	return nil
}

// List returns every object in ascending id order.
func (s *ObjectStore) List() []*SimulatedObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SimulatedObject, 0, s.objects.Len())
	s.objects.Scan(func(e entry) bool {
		out = append(out, e.obj)
		return true
	})
	return out
}

// Len returns the number of objects currently in the top-level table.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects.Len()
}

// IDCounter returns the current fresh-id counter, for persistence
// (spec.md §6's state-file "id_counter" field).
func (s *ObjectStore) IDCounter() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idCounter
}

// SetIDCounter overwrites the fresh-id counter, used when loading a
// persisted state file so FreshID continues past whatever the file
// recorded.
func (s *ObjectStore) SetIDCounter(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idCounter = n
}

// RestoreDynamicField installs a (parent, child) entry with the child
// id given directly rather than derived from a key, since the
// persisted-state format (spec.md §6) does not retain the original
// key bytes.
func (s *ObjectStore) RestoreDynamicField(parent, child bcs.Address, typeTag bcs.TypeTag, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dynamicFieldKey{parent: parent, child: child}
	if _, exists := s.dynamicFields[key]; !exists {
		s.dynamicByParent[parent] = append(s.dynamicByParent[parent], child)
	}
	s.dynamicFields[key] = DynamicFieldEntry{
		Parent: parent,
		Child:  child,
		Type:   typeTag,
		Value:  append([]byte(nil), value...),
	}
}
