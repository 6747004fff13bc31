package resolver

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/suisim/sandbox/bcs"
)

// LinkageEntry records, for one runtime-id referenced from bytecode,
// the storage id and version it currently resolves to (spec.md
// Glossary: Linkage table).
type LinkageEntry struct {
	StorageID bcs.Address
	Version   uint64
}

// Resolver holds every loaded module plus the bookkeeping needed to
// resolve package upgrades: an alias map from storage id to the
// (possibly different) runtime id modules were compiled against, a
// version counter per package address, and per-package linkage tables
// (runtime id -> storage id/version) installed by replay (spec.md
// §4.9 step 3).
type Resolver struct {
	mu sync.RWMutex

	modules      map[ModuleID]*CompiledModule
	byAddress    map[bcs.Address][]ModuleID
	alias        map[bcs.Address]bcs.Address // storage_id -> runtime_id
	reverseAlias map[bcs.Address][]bcs.Address
	versions     map[bcs.Address]uint64
	linkage      map[bcs.Address]map[bcs.Address]LinkageEntry // storage_id -> runtime_id -> entry
	originalID   map[bcs.Address]bcs.Address
}

// New constructs an empty resolver. Bundled framework packages
// (0x1/0x2/0x3) are expected to be installed by the embedder via
// AddPackageModules, matching spec.md's "bundled under fixed
// addresses" wording without hardcoding their contents here.
func New() *Resolver {
	return &Resolver{
		modules:      make(map[ModuleID]*CompiledModule),
		byAddress:    make(map[bcs.Address][]ModuleID),
		alias:        make(map[bcs.Address]bcs.Address),
		reverseAlias: make(map[bcs.Address][]bcs.Address),
		versions:     make(map[bcs.Address]uint64),
		linkage:      make(map[bcs.Address]map[bcs.Address]LinkageEntry),
		originalID:   make(map[bcs.Address]bcs.Address),
	}
}

// ErrPackageInconsistent is returned when a module is installed twice
// at the same id with disagreeing contents.
var ErrPackageInconsistent = errors.New("resolver: package inconsistent")

// MissingPackageError reports a framework/dependency module the
// resolver cannot find.
type MissingPackageError struct {
	Address bcs.Address
	Module  string
}

func (e *MissingPackageError) Error() string {
	return errors.Errorf("resolver: missing package %s::%s", e.Address, e.Module).Error()
}

// AddPackageModules installs modules that all share a single inferred
// package address (their own Self.Address), returning the module count
// and the inferred address.
func (r *Resolver) AddPackageModules(modules []*CompiledModule) (int, bcs.Address, error) {
	if len(modules) == 0 {
		return 0, bcs.Address{}, errors.New("resolver: no modules supplied")
	}
	addr := modules[0].Self.Address
	for _, m := range modules[1:] {
		if m.Self.Address != addr {
			return 0, bcs.Address{}, errors.Errorf("resolver: modules declare different package addresses: %s vs %s", addr, m.Self.Address)
		}
	}
	if err := r.install(addr, modules); err != nil {
		return 0, bcs.Address{}, err
	}
	return len(modules), addr, nil
}

// AddPackageModulesAt stores modules at target, recording an alias
// target -> inferred_address when they differ (the upgraded-package
// case: bytecode keeps its original address but is now referenced
// under a new storage id).
func (r *Resolver) AddPackageModulesAt(modules []*CompiledModule, target bcs.Address) error {
	if len(modules) == 0 {
		return errors.New("resolver: no modules supplied")
	}
	inferred := modules[0].Self.Address
	for _, m := range modules[1:] {
		if m.Self.Address != inferred {
			return errors.Errorf("resolver: modules declare different package addresses: %s vs %s", inferred, m.Self.Address)
		}
	}
	if err := r.install(target, modules); err != nil {
		return err
	}
	if target != inferred {
		r.mu.Lock()
		r.alias[target] = inferred
		r.reverseAlias[inferred] = append(r.reverseAlias[inferred], target)
		r.mu.Unlock()
	}
	return nil
}

func (r *Resolver) install(addr bcs.Address, modules []*CompiledModule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range modules {
		id := ModuleID{Address: addr, Name: m.Self.Name}
		if existing, ok := r.modules[id]; ok {
			if !sameModule(existing, m) {
				return errors.Wrapf(ErrPackageInconsistent, "module %s", id)
			}
			continue
		}
		r.modules[id] = m
		r.byAddress[addr] = append(r.byAddress[addr], id)
	}
	if _, ok := r.versions[addr]; !ok {
		r.versions[addr] = 1
	}
	return nil
}

// sameModule is a shallow structural-equivalence check sufficient to
// detect a genuinely conflicting re-install (different struct/function
// tables under the same id) versus an idempotent repeat install.
func sameModule(a, b *CompiledModule) bool {
	if len(a.Structs) != len(b.Structs) || len(a.Functions) != len(b.Functions) {
		return false
	}
	for name, sa := range a.Structs {
		sb, ok := b.Structs[name]
		if !ok || len(sa.Fields) != len(sb.Fields) {
			return false
		}
	}
	for name, fa := range a.Functions {
		fb, ok := b.Functions[name]
		if !ok || len(fa.Params) != len(fb.Params) || len(fa.Returns) != len(fb.Returns) {
			return false
		}
	}
	return true
}

// RegisterPackageWithLinkage installs an upgraded package and its
// linkage table in one step (used exclusively by the replay driver,
// spec.md §4.9 step 3).
func (r *Resolver) RegisterPackageWithLinkage(storageID bcs.Address, version uint64, originalID *bcs.Address, modules []*CompiledModule, linkage map[bcs.Address]LinkageEntry) error {
	if err := r.AddPackageModulesAt(modules, storageID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[storageID] = version
	if originalID != nil {
		r.originalID[storageID] = *originalID
	}
	if r.linkage[storageID] == nil {
		r.linkage[storageID] = make(map[bcs.Address]LinkageEntry)
	}
	for runtimeID, entry := range linkage {
		r.linkage[storageID][runtimeID] = entry
		r.alias[entry.StorageID] = runtimeID
		r.reverseAlias[runtimeID] = append(r.reverseAlias[runtimeID], entry.StorageID)
	}
	return nil
}

// RegisterFunctionBody attaches (or replaces) the Go-side function
// body for an already-installed module/function pair (SPEC_FULL.md
// §5.2): how user "Move" modules execute in this simulator.
func (r *Resolver) RegisterFunctionBody(id ModuleID, function string, body FunctionBody) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[id]
	if !ok {
		return &MissingPackageError{Address: id.Address, Module: id.Name}
	}
	if _, ok := m.Functions[function]; !ok {
		return errors.Errorf("resolver: unknown function %s in %s", function, id)
	}
	m.Bodies[function] = body
	return nil
}

// ResolveRuntimeToStorage follows the alias map for a runtime id,
// returning the storage id modules are actually installed under (or
// the input unchanged if no alias is registered).
func (r *Resolver) ResolveRuntimeToStorage(addr bcs.Address) bcs.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for storage, runtime := range r.alias {
		if runtime == addr {
			return storage
		}
	}
	return addr
}

// GetModule consults the alias map first (so a runtime-id lookup finds
// bytecode installed under the corresponding storage id), then falls
// back to a direct lookup.
func (r *Resolver) GetModule(id ModuleID) (*CompiledModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getModuleLocked(id)
}

func (r *Resolver) getModuleLocked(id ModuleID) (*CompiledModule, error) {
	// id.Address may be a runtime id referenced from bytecode; find the
	// storage id it aliases to, if any.
	for storage, runtime := range r.alias {
		if runtime == id.Address {
			if m, ok := r.modules[ModuleID{Address: storage, Name: id.Name}]; ok {
				return m, nil
			}
		}
	}
	if m, ok := r.modules[id]; ok {
		return m, nil
	}
	return nil, &MissingPackageError{Address: id.Address, Module: id.Name}
}

// GetMissingDependencies returns ModuleIDs referenced as a dependency
// by some loaded module but not themselves present (directly or via
// alias resolution).
func (r *Resolver) GetMissingDependencies() []ModuleID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[ModuleID]bool)
	var missing []ModuleID
	for _, m := range r.modules {
		for _, dep := range m.Dependencies {
			if bcs.IsFrameworkAddress(dep.Address) {
				continue
			}
			if _, err := r.getModuleLocked(dep); err != nil {
				if !seen[dep] {
					seen[dep] = true
					missing = append(missing, dep)
				}
			}
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].String() < missing[j].String() })
	return missing
}

// ListModules returns every installed module id, sorted for
// deterministic output.
func (r *Resolver) ListModules() []ModuleID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModuleID, 0, len(r.modules))
	for id := range r.modules {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Version returns the current link version for a package address.
func (r *Resolver) Version(addr bcs.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versions[addr]
}

// OriginalID returns the original (pre-upgrade) package id for a
// storage id, if one was recorded by RegisterPackageWithLinkage.
func (r *Resolver) OriginalID(storageID bcs.Address) (bcs.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.originalID[storageID]
	return id, ok
}

// Linkage returns the linkage table installed for a storage id.
func (r *Resolver) Linkage(storageID bcs.Address) map[bcs.Address]LinkageEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[bcs.Address]LinkageEntry, len(r.linkage[storageID]))
	for k, v := range r.linkage[storageID] {
		out[k] = v
	}
	return out
}

// Disassemble returns a module's Summary (names only, since no real
// bytecode is ever interpreted here — see SPEC_FULL.md §5.1).
func (r *Resolver) Disassemble(id ModuleID) (Summary, error) {
	m, err := r.GetModule(id)
	if err != nil {
		return Summary{}, err
	}
	return m.Summary(), nil
}

// FindConstructors is the resolver-level entry point used by the tool
// surface and the synthesizer: functions anywhere in the given package
// whose return type matches structName.
func (r *Resolver) FindConstructors(pkg bcs.Address, structName string) map[ModuleID][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ModuleID][]string)
	for _, id := range r.byAddress[pkg] {
		m := r.modules[id]
		if ctors := m.FindConstructors(structName); len(ctors) > 0 {
			out[id] = ctors
		}
	}
	return out
}

// GetStruct looks up a struct declaration by module id and name,
// resolving aliases the same way GetModule does. Used by the
// synthesizer (C6) to recurse into user-defined struct fields.
func (r *Resolver) GetStruct(id ModuleID, name string) (StructDecl, error) {
	m, err := r.GetModule(id)
	if err != nil {
		return StructDecl{}, err
	}
	s, ok := m.Structs[name]
	if !ok {
		return StructDecl{}, errors.Errorf("resolver: unknown struct %s::%s", id, name)
	}
	return s, nil
}
