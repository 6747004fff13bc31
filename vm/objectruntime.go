package vm

import (
	"sync"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/simerrors"
)

// VersionedChildFetcher is the first-priority on-demand child loader
// (spec.md §4.5).
type VersionedChildFetcher func(parent, child bcs.Address) (bcs.TypeTag, []byte, uint64, bool)

// ChildFetcher is the plain fallback loader.
type ChildFetcher func(parent, child bcs.Address) (bcs.TypeTag, []byte, bool)

// KeyBasedChildFetcher reconstructs a child from its derivation key,
// used when the runtime can recover (parent, key_type, key_bytes).
type KeyBasedChildFetcher func(parent, child bcs.Address, keyType bcs.TypeTag, keyBytes []byte) (bcs.TypeTag, []byte, bool)

type childKey struct {
	parent bcs.Address
	child  bcs.Address
}

type childObject struct {
	typeTag bcs.TypeTag
	bytes   []byte
	version uint64
}

type borrowState struct {
	mutable    bool
	readers    int
}

// ObjectRuntime is the VM extension that tracks dynamic children for
// the in-flight transaction (spec.md §4.5).
type ObjectRuntime struct {
	mu sync.Mutex

	children map[childKey]*childObject
	keys     map[childKey]struct {
		keyType bcs.TypeTag
		keyBCS  []byte
	}
	borrows map[childKey]*borrowState

	versionedFetcher VersionedChildFetcher
	plainFetcher     ChildFetcher
	keyBasedFetcher  KeyBasedChildFetcher
}

// NewObjectRuntime constructs an empty runtime. Fetchers are installed
// separately via the With* setters, matching spec.md's "three
// optional callbacks may be installed by the embedder."
func NewObjectRuntime() *ObjectRuntime {
	return &ObjectRuntime{
		children: make(map[childKey]*childObject),
		keys: make(map[childKey]struct {
			keyType bcs.TypeTag
			keyBCS  []byte
		}),
		borrows: make(map[childKey]*borrowState),
	}
}

func (r *ObjectRuntime) WithVersionedFetcher(f VersionedChildFetcher) *ObjectRuntime {
	r.versionedFetcher = f
	return r
}

func (r *ObjectRuntime) WithPlainFetcher(f ChildFetcher) *ObjectRuntime {
	r.plainFetcher = f
	return r
}

func (r *ObjectRuntime) WithKeyBasedFetcher(f KeyBasedChildFetcher) *ObjectRuntime {
	r.keyBasedFetcher = f
	return r
}

// Preload installs an already-known child (typically copied in from
// the store before execution starts).
func (r *ObjectRuntime) Preload(parent, child bcs.Address, typeTag bcs.TypeTag, data []byte, version uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children[childKey{parent, child}] = &childObject{typeTag: typeTag, bytes: data, version: version}
}

// PreloadWithKey is Preload plus the derivation key, enabling a later
// key-based on-demand re-fetch for this same child (e.g. after
// RemoveChildObject followed by a re-add miss).
func (r *ObjectRuntime) PreloadWithKey(parent, child bcs.Address, typeTag bcs.TypeTag, data []byte, version uint64, keyType bcs.TypeTag, keyBCS []byte) {
	r.Preload(parent, child, typeTag, data, version)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[childKey{parent, child}] = struct {
		keyType bcs.TypeTag
		keyBCS  []byte
	}{keyType, keyBCS}
}

// AddChildObject installs a new (or replaces an existing) child.
func (r *ObjectRuntime) AddChildObject(parent, child bcs.Address, typeTag bcs.TypeTag, data []byte) error {
	fixed := enforceChildUID(child, data)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children[childKey{parent, child}] = &childObject{typeTag: typeTag, bytes: fixed}
	return nil
}

// enforceChildUID rewrites bytes[0:32] to child when the payload's
// leading UID doesn't already match (spec.md §4.5).
func enforceChildUID(child bcs.Address, data []byte) []byte {
	if len(data) < bcs.AddressLength {
		padded := make([]byte, bcs.AddressLength)
		copy(padded, child.Bytes())
		return padded
	}
	out := append([]byte(nil), data...)
	copy(out[:bcs.AddressLength], child.Bytes())
	return out
}

// fetchMiss consults the fetcher chain in priority order (versioned,
// plain, key-based) on a lookup miss.
func (r *ObjectRuntime) fetchMiss(parent, child bcs.Address) (*childObject, bool) {
	if r.versionedFetcher != nil {
		if tag, data, version, ok := r.versionedFetcher(parent, child); ok {
			return &childObject{typeTag: tag, bytes: enforceChildUID(child, data), version: version}, true
		}
	}
	if r.plainFetcher != nil {
		if tag, data, ok := r.plainFetcher(parent, child); ok {
			return &childObject{typeTag: tag, bytes: enforceChildUID(child, data)}, true
		}
	}
	if r.keyBasedFetcher != nil {
		if key, ok := r.keys[childKey{parent, child}]; ok {
			if tag, data, ok := r.keyBasedFetcher(parent, child, key.keyType, key.keyBCS); ok {
				return &childObject{typeTag: tag, bytes: enforceChildUID(child, data)}, true
			}
		}
	}
	return nil, false
}

func (r *ObjectRuntime) lookup(parent, child bcs.Address) (*childObject, bool) {
	key := childKey{parent, child}
	if c, ok := r.children[key]; ok {
		return c, true
	}
	if c, ok := r.fetchMiss(parent, child); ok {
		r.children[key] = c
		return c, true
	}
	return nil, false
}

// BorrowChildObject takes an immutable borrow, forbidden while a
// mutable borrow of the same (parent, child) is outstanding.
func (r *ObjectRuntime) BorrowChildObject(parent, child bcs.Address) (bcs.TypeTag, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.lookup(parent, child)
	if !ok {
		return bcs.TypeTag{}, nil, &simerrors.MissingObject{ID: child}
	}
	key := childKey{parent, child}
	b := r.borrows[key]
	if b != nil && b.mutable {
		return bcs.TypeTag{}, nil, &simerrors.ExecutionError{Message: "cannot immutably borrow a mutably-borrowed child object"}
	}
	if b == nil {
		b = &borrowState{}
		r.borrows[key] = b
	}
	b.readers++
	return c.typeTag, c.bytes, nil
}

// BorrowChildObjectMut takes the exclusive mutable borrow.
func (r *ObjectRuntime) BorrowChildObjectMut(parent, child bcs.Address) (bcs.TypeTag, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.lookup(parent, child)
	if !ok {
		return bcs.TypeTag{}, nil, &simerrors.MissingObject{ID: child}
	}
	key := childKey{parent, child}
	if b, exists := r.borrows[key]; exists && (b.mutable || b.readers > 0) {
		return bcs.TypeTag{}, nil, &simerrors.ExecutionError{Message: "child object already borrowed"}
	}
	r.borrows[key] = &borrowState{mutable: true}
	return c.typeTag, c.bytes, nil
}

// CommitMutableBorrow writes back the (possibly modified) bytes and
// releases the mutable borrow.
func (r *ObjectRuntime) CommitMutableBorrow(parent, child bcs.Address, newBytes []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := childKey{parent, child}
	if c, ok := r.children[key]; ok {
		c.bytes = enforceChildUID(child, newBytes)
	}
	delete(r.borrows, key)
}

// ReleaseBorrow releases an immutable borrow.
func (r *ObjectRuntime) ReleaseBorrow(parent, child bcs.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := childKey{parent, child}
	if b, ok := r.borrows[key]; ok && !b.mutable {
		b.readers--
		if b.readers <= 0 {
			delete(r.borrows, key)
		}
	}
}

// RemoveChildObject deletes a child, returning its prior contents.
func (r *ObjectRuntime) RemoveChildObject(parent, child bcs.Address) (bcs.TypeTag, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := childKey{parent, child}
	c, ok := r.lookup(parent, child)
	if !ok {
		return bcs.TypeTag{}, nil, &simerrors.MissingObject{ID: child}
	}
	delete(r.children, key)
	delete(r.borrows, key)
	return c.typeTag, c.bytes, nil
}

// ChildObjectExists reports whether a child is present (preloaded or
// fetchable on demand).
func (r *ObjectRuntime) ChildObjectExists(parent, child bcs.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.lookup(parent, child)
	return ok
}

// ChildObjectExistsWithType additionally requires the stored type to
// match.
func (r *ObjectRuntime) ChildObjectExistsWithType(parent, child bcs.Address, typeTag bcs.TypeTag) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.lookup(parent, child)
	return ok && c.typeTag.Equal(typeTag)
}
