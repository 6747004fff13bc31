// Package synth implements the Synthesizer (spec.md §4.6): given a
// TypeTag, it produces a BCS payload that inhabits that type, used to
// seed inputs a caller hasn't supplied real bytes for and to fill
// never-materialized dynamic-field children during replay self-heal.
package synth

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/resolver"
)

// MaxDepth caps recursive struct-field synthesis (spec.md §4.6).
const MaxDepth = 10

// DefaultValidatorCount avoids division-by-zero in staking logic that
// reads an empty validator set (spec.md §4.6, SPEC_FULL.md §5.3).
const DefaultValidatorCount = 10

// Config tunes synthesis knobs.
type Config struct {
	ValidatorCount int
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{ValidatorCount: DefaultValidatorCount}
}

// Result is a synthesized payload plus whether it's a stub (a
// placeholder rather than a value a real program could have produced
// for this exact type, e.g. an empty vector standing in for arbitrary
// contents).
type Result struct {
	Bytes  []byte
	IsStub bool
}

// Synthesizer produces BCS values for arbitrary TypeTags, consulting
// the resolver for user-defined struct layouts.
type Synthesizer struct {
	res *resolver.Resolver
	cfg Config
}

// New constructs a Synthesizer bound to res (used to look up
// user-struct field declarations).
func New(res *resolver.Resolver, cfg Config) *Synthesizer {
	return &Synthesizer{res: res, cfg: cfg}
}

// Synthesize produces a value inhabiting tag.
func (s *Synthesizer) Synthesize(tag bcs.TypeTag) (Result, error) {
	return s.synthesize(tag, 0, make(map[string]bool))
}

func (s *Synthesizer) synthesize(tag bcs.TypeTag, depth int, visited map[string]bool) (Result, error) {
	if depth > MaxDepth {
		return Result{}, errors.Errorf("synth: recursion depth exceeded synthesizing %s", tag)
	}

	switch tag.Kind {
	case bcs.KindBool:
		return Result{Bytes: []byte{0}}, nil
	case bcs.KindU8:
		return Result{Bytes: []byte{0}}, nil
	case bcs.KindU16:
		return Result{Bytes: bcs.NewEncoder().U16(0).Bytes()}, nil
	case bcs.KindU32:
		return Result{Bytes: bcs.NewEncoder().U32(0).Bytes()}, nil
	case bcs.KindU64:
		return Result{Bytes: bcs.NewEncoder().U64(0).Bytes()}, nil
	case bcs.KindU128:
		return Result{Bytes: make([]byte, 16)}, nil
	case bcs.KindU256:
		return Result{Bytes: make([]byte, 32)}, nil
	case bcs.KindAddress, bcs.KindSigner:
		return Result{Bytes: make([]byte, bcs.AddressLength)}, nil
	case bcs.KindVector:
		// An empty vector is a valid, type-correct stub for any
		// element type without recursing into it.
		return Result{Bytes: bcs.NewEncoder().ULEB128(0).Bytes(), IsStub: true}, nil
	case bcs.KindStruct:
		return s.synthesizeStruct(tag.Struct, depth, visited)
	default:
		return Result{}, errors.Errorf("synth: unhandled kind for %s", tag)
	}
}

func (s *Synthesizer) synthesizeStruct(st *bcs.StructTag, depth int, visited map[string]bool) (Result, error) {
	if curated, ok := s.curatedFrameworkType(st); ok {
		return curated, nil
	}

	key := st.Address.String() + "::" + st.Module + "::" + st.Name
	if visited[key] {
		// Cycle: stand in with a zero-length stub rather than loop.
		return Result{Bytes: nil, IsStub: true}, nil
	}

	decl, err := s.res.GetStruct(resolver.ModuleID{Address: st.Address, Name: st.Module}, st.Name)
	if err != nil {
		return Result{}, err
	}

	visited[key] = true
	defer delete(visited, key)

	var out []byte
	isStub := false
	for _, field := range decl.Fields {
		r, err := s.synthesize(field.Type, depth+1, visited)
		if err != nil {
			return Result{}, errors.Wrapf(err, "field %s", field.Name)
		}
		out = append(out, r.Bytes...)
		isStub = isStub || r.IsStub
	}
	return Result{Bytes: out, IsStub: isStub}, nil
}

// curatedFrameworkType returns the spec-mandated hand-built layouts
// for well-known framework types (spec.md §4.6), so the synthesizer
// never needs the real framework bytecode installed to produce them.
func (s *Synthesizer) curatedFrameworkType(st *bcs.StructTag) (Result, bool) {
	if !bcs.IsFrameworkAddress(st.Address) {
		return Result{}, false
	}
	switch strings.ToLower(st.Module + "::" + st.Name) {
	case "option::option":
		return Result{Bytes: []byte{0}, IsStub: true}, true // BCS None
	case "string::string", "ascii::string":
		return Result{Bytes: []byte{0}, IsStub: true}, true // empty vector<u8>
	case "object::uid", "object::id":
		return Result{Bytes: make([]byte, bcs.AddressLength), IsStub: true}, true
	case "balance::balance", "balance::supply":
		return Result{Bytes: bcs.NewEncoder().U64(0).Bytes(), IsStub: true}, true
	case "bag::bag", "table::table", "table_vec::tablevec", "vec_map::vecmap":
		e := bcs.NewEncoder()
		e.Raw(make([]byte, bcs.AddressLength))
		e.U64(0)
		return Result{Bytes: e.Bytes(), IsStub: true}, true
	case "coin::coin":
		e := bcs.NewEncoder()
		e.Raw(make([]byte, bcs.AddressLength))
		e.U64(1_000_000_000)
		return Result{Bytes: e.Bytes(), IsStub: true}, true
	case "coin::treasurycap":
		e := bcs.NewEncoder()
		e.Raw(make([]byte, bcs.AddressLength))
		e.U64(1_000_000_000_000)
		return Result{Bytes: e.Bytes(), IsStub: true}, true
	case "clock::clock":
		e := bcs.NewEncoder()
		e.Raw(make([]byte, bcs.AddressLength))
		e.U64(0)
		return Result{Bytes: e.Bytes(), IsStub: true}, true
	case "tx_context::txcontext":
		return Result{Bytes: s.synthesizeTxContext(), IsStub: true}, true
	case "validator_set::validatorset":
		return Result{Bytes: s.synthesizeValidatorSet(), IsStub: true}, true
	}
	return Result{}, false
}

func (s *Synthesizer) synthesizeTxContext() []byte {
	e := bcs.NewEncoder()
	e.Raw(make([]byte, bcs.AddressLength)) // sender
	e.BytesVec(make([]byte, bcs.AddressLength)) // tx_hash
	e.U64(0) // epoch
	e.U64(0) // epoch_timestamp_ms
	e.U64(0) // ids_created
	return e.Bytes()
}
