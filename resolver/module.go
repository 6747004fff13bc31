// Package resolver implements the Module Resolver (spec.md §4.2): it
// holds compiled modules, the storage-id↔runtime-id alias map used by
// package upgrades, a per-address version map, and introspection used
// by the synthesizer and tool surface.
//
// Since the real Move bytecode deserializer is an external
// collaborator (spec.md §1), CompiledModule stands in for "already
// deserialized bytecode": a declared table of structs and functions
// that resolver.DeserializeModule decodes from a small BCS-shaped wire
// format (SPEC_FULL.md §5.1).
package resolver

import (
	"github.com/suisim/sandbox/bcs"
)

// ModuleID names a module by its defining address and short name.
type ModuleID struct {
	Address bcs.Address
	Name    string
}

func (m ModuleID) String() string {
	return m.Address.String() + "::" + m.Name
}

// FieldDecl is one ordered field of a struct declaration.
type FieldDecl struct {
	Name string
	Type bcs.TypeTag
}

// StructDecl is a struct's declared shape: ordered fields plus the
// arity of its own type parameters (needed to validate MoveCall type
// arguments and to drive the synthesizer's recursion).
type StructDecl struct {
	Name          string
	Fields        []FieldDecl
	TypeParams    int
	Abilities     []string // e.g. "key", "store", "copy", "drop" — informational
}

// IsCandidateOTW reports whether the struct could be a one-time
// witness: a single bool-typed field. The name-matches-module check is
// performed by the caller (vm.IsOneTimeWitness) since StructDecl alone
// doesn't know its module's name.
func (s StructDecl) IsCandidateOTW() bool {
	return len(s.Fields) == 1 && s.Fields[0].Type.Kind == bcs.KindBool
}

// FunctionDecl is a function's declared signature.
type FunctionDecl struct {
	Name       string
	TypeParams int
	Params     []bcs.TypeTag
	Returns    []bcs.TypeTag
	IsEntry    bool
	IsPublic   bool
}

// FunctionBody is the Go-side stand-in for a Move function's compiled
// instructions (SPEC_FULL.md §5.2): the native Move VM is out of
// scope, so user-published "bytecode" carries an optional callback
// that the mock session invokes in place of bytecode interpretation.
// A function with no registered body aborts with ContractAbort at the
// call site, not a panic.
type FunctionBody func(ctx *CallContext) ([][]byte, error)

// CallContext is the subset of execution state a FunctionBody needs:
// resolved argument bytes and instantiated type arguments. It is
// intentionally narrow (mirrors the teacher's CallMetadata —
// "minimal, tag-free, cross-build-safe") so packages above resolver
// don't have to be imported here.
type CallContext struct {
	TypeArgs []bcs.TypeTag
	Args     [][]byte
}

// CompiledModule is the declared-module stand-in described above.
type CompiledModule struct {
	Self         ModuleID
	Structs      map[string]StructDecl
	Functions    map[string]FunctionDecl
	Bodies       map[string]FunctionBody
	Dependencies []ModuleID
}

// NewCompiledModule builds an (initially body-free) module descriptor.
func NewCompiledModule(self ModuleID) *CompiledModule {
	return &CompiledModule{
		Self:      self,
		Structs:   make(map[string]StructDecl),
		Functions: make(map[string]FunctionDecl),
		Bodies:    make(map[string]FunctionBody),
	}
}

// AddStruct registers a struct declaration.
func (m *CompiledModule) AddStruct(s StructDecl) *CompiledModule {
	m.Structs[s.Name] = s
	return m
}

// AddFunction registers a function declaration with an optional body.
func (m *CompiledModule) AddFunction(f FunctionDecl, body FunctionBody) *CompiledModule {
	m.Functions[f.Name] = f
	if body != nil {
		m.Bodies[f.Name] = body
	}
	return m
}

// FindConstructors returns the names of functions whose return types
// include the given struct (used by the tool surface to suggest how
// to obtain an instance of a type).
func (m *CompiledModule) FindConstructors(structName string) []string {
	var out []string
	for name, fn := range m.Functions {
		for _, ret := range fn.Returns {
			if ret.Kind == bcs.KindStruct && ret.Struct.Module == m.Self.Name && ret.Struct.Name == structName {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// Summary is a compact, serializable description of a module used by
// the tool/introspection surface.
type Summary struct {
	ID        ModuleID
	Structs   []string
	Functions []string
	DependsOn []ModuleID
}

func (m *CompiledModule) Summary() Summary {
	s := Summary{ID: m.Self, DependsOn: m.Dependencies}
	for name := range m.Structs {
		s.Structs = append(s.Structs, name)
	}
	for name := range m.Functions {
		s.Functions = append(s.Functions, name)
	}
	return s
}
