package store

import (
	"golang.org/x/crypto/blake2b"

	"github.com/pkg/errors"

	"github.com/suisim/sandbox/bcs"
)

type dynamicFieldKey struct {
	parent bcs.Address
	child  bcs.Address
}

// DynamicFieldEntry is the value half of a (parent, child) dynamic
// field (spec.md §3).
type DynamicFieldEntry struct {
	Parent  bcs.Address
	Child   bcs.Address
	KeyType bcs.TypeTag
	KeyBCS  []byte
	Type    bcs.TypeTag
	Value   []byte
}

// DeriveChildID reproduces the byte-exact child-id derivation of
// spec.md §4.3:
//
//	Blake2b256(0xF0 || parent || ULEB128(len(bcs(key))) || bcs(key) || bcs(type_tag))[..32]
func DeriveChildID(parent bcs.Address, keyType bcs.TypeTag, keyBytes []byte) bcs.Address {
	e := bcs.NewEncoder()
	e.Raw([]byte{0xF0})
	e.Raw(parent.Bytes())
	e.BytesVec(keyBytes)
	e.TypeTag(keyType)
	sum := blake2b.Sum256(e.Bytes())
	var out bcs.Address
	copy(out[:], sum[:bcs.AddressLength])
	return out
}

// AddDynamicField installs a (parent, key) -> value entry, deriving
// the child id per DeriveChildID. The parent must already exist in
// the top-level table.
func (s *ObjectStore) AddDynamicField(parent bcs.Address, keyType bcs.TypeTag, keyBytes []byte, valueType bcs.TypeTag, value []byte) (bcs.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects.Get(entry{id: parent}); !ok {
		return bcs.Address{}, errors.Errorf("store: dynamic field parent %s does not exist", parent)
	}
	child := DeriveChildID(parent, keyType, keyBytes)
	key := dynamicFieldKey{parent: parent, child: child}
	if _, exists := s.dynamicFields[key]; !exists {
		s.dynamicByParent[parent] = append(s.dynamicByParent[parent], child)
	}
	s.dynamicFields[key] = DynamicFieldEntry{
		Parent:  parent,
		Child:   child,
		KeyType: keyType,
		KeyBCS:  append([]byte(nil), keyBytes...),
		Type:    valueType,
		Value:   append([]byte(nil), value...),
	}
	return child, nil
}

// GetDynamicField looks up a value by (parent, child) pair.
func (s *ObjectStore) GetDynamicField(parent, child bcs.Address) (DynamicFieldEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.dynamicFields[dynamicFieldKey{parent: parent, child: child}]
	return v, ok
}

// RemoveDynamicField deletes a (parent, child) entry, returning it if
// present.
func (s *ObjectStore) RemoveDynamicField(parent, child bcs.Address) (DynamicFieldEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dynamicFieldKey{parent: parent, child: child}
	v, ok := s.dynamicFields[key]
	if !ok {
		return DynamicFieldEntry{}, false
	}
	delete(s.dynamicFields, key)
	children := s.dynamicByParent[parent]
	for i, c := range children {
		if c == child {
			s.dynamicByParent[parent] = append(children[:i], children[i+1:]...)
			break
		}
	}
	return v, true
}

// ListDynamicFields returns every child entry under parent.
func (s *ObjectStore) ListDynamicFields(parent bcs.Address) []DynamicFieldEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	children := s.dynamicByParent[parent]
	out := make([]DynamicFieldEntry, 0, len(children))
	for _, c := range children {
		out = append(out, s.dynamicFields[dynamicFieldKey{parent: parent, child: c}])
	}
	return out
}

// CountDynamicFields reports how many children are installed under
// parent.
func (s *ObjectStore) CountDynamicFields(parent bcs.Address) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dynamicByParent[parent])
}

// FoldDynamicFields applies fn to every entry under parent in
// insertion order, stopping early if fn returns false.
func (s *ObjectStore) FoldDynamicFields(parent bcs.Address, fn func(DynamicFieldEntry) bool) {
	for _, e := range s.ListDynamicFields(parent) {
		if !fn(e) {
			return
		}
	}
}
