package store

import (
	"github.com/tidwall/btree"

	"github.com/suisim/sandbox/bcs"
)

// Snapshot is a deep, point-in-time copy of everything ObjectStore
// owns, used by the environment's checkpoint/restore pair (spec.md
// §4.8 R3).
type Snapshot struct {
	objects         []*SimulatedObject
	dynamicFields   map[dynamicFieldKey]DynamicFieldEntry
	dynamicByParent map[bcs.Address][]bcs.Address
	pendingReceives map[pendingKey]PendingReceive
	idCounter       uint64
}

// Snapshot clones the current state. Cheap relative to re-deriving it,
// but O(state size) as spec.md §4.8 notes.
func (s *ObjectStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objs := make([]*SimulatedObject, 0, s.objects.Len())
	s.objects.Scan(func(e entry) bool {
		objs = append(objs, e.obj.Clone())
		return true
	})

	dynFields := make(map[dynamicFieldKey]DynamicFieldEntry, len(s.dynamicFields))
	for k, v := range s.dynamicFields {
		v.KeyBCS = append([]byte(nil), v.KeyBCS...)
		v.Value = append([]byte(nil), v.Value...)
		dynFields[k] = v
	}
	byParent := make(map[bcs.Address][]bcs.Address, len(s.dynamicByParent))
	for k, v := range s.dynamicByParent {
		byParent[k] = append([]bcs.Address(nil), v...)
	}
	pending := make(map[pendingKey]PendingReceive, len(s.pendingReceives))
	for k, v := range s.pendingReceives {
		v.Bytes = append([]byte(nil), v.Bytes...)
		pending[k] = v
	}

	return &Snapshot{
		objects:         objs,
		dynamicFields:   dynFields,
		dynamicByParent: byParent,
		pendingReceives: pending,
		idCounter:       s.idCounter,
	}
}

// Restore rewinds the store to a previously captured Snapshot,
// replacing all current state.
func (s *ObjectStore) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := btree.NewBTreeG(lessEntry)
	for _, o := range snap.objects {
		fresh.Set(entry{id: o.ID, obj: o.Clone()})
	}
	s.objects = fresh

	s.dynamicFields = make(map[dynamicFieldKey]DynamicFieldEntry, len(snap.dynamicFields))
	for k, v := range snap.dynamicFields {
		s.dynamicFields[k] = v
	}
	s.dynamicByParent = make(map[bcs.Address][]bcs.Address, len(snap.dynamicByParent))
	for k, v := range snap.dynamicByParent {
		s.dynamicByParent[k] = append([]bcs.Address(nil), v...)
	}
	s.pendingReceives = make(map[pendingKey]PendingReceive, len(snap.pendingReceives))
	for k, v := range snap.pendingReceives {
		s.pendingReceives[k] = v
	}
	s.idCounter = snap.idCounter
}
