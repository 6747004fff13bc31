package resolver

import (
	"github.com/pkg/errors"

	"github.com/suisim/sandbox/bcs"
)

// Wire format for the CompiledModule stand-in (SPEC_FULL.md §5.1):
//
//	address(32) | module_name(bcs string) | struct_count(uleb128)
//	  struct* { name(string) field_count(uleb128) field*{name(string) type(string)} type_params(u8) }
//	function_count(uleb128)
//	  function* { name(string) type_params(u8) is_entry(bool) is_public(bool)
//	              param_count(uleb128) param*{type(string)}
//	              return_count(uleb128) return*{type(string)} }
//	dependency_count(uleb128)
//	  dependency* { address(32) name(string) }
//
// This is the simulator's own stand-in for an already-deserialized
// Move module (the real deserializer is out of scope, spec.md §1).

// SerializeModule encodes a CompiledModule into the wire format above,
// the inverse of DeserializeModule. Used by Publish/Upgrade test
// fixtures and by any embedder that wants to round-trip a module
// through bytes (e.g. persistence).
func SerializeModule(m *CompiledModule) []byte {
	e := bcs.NewEncoder()
	e.Address(m.Self.Address)
	e.String(m.Self.Name)

	e.ULEB128(uint64(len(m.Structs)))
	for _, name := range sortedKeys(m.Structs) {
		s := m.Structs[name]
		e.String(s.Name)
		e.ULEB128(uint64(len(s.Fields)))
		for _, f := range s.Fields {
			e.String(f.Name)
			e.String(f.Type.String())
		}
		e.U8(uint8(s.TypeParams))
	}

	e.ULEB128(uint64(len(m.Functions)))
	for _, name := range sortedFnKeys(m.Functions) {
		f := m.Functions[name]
		e.String(f.Name)
		e.U8(uint8(f.TypeParams))
		e.Bool(f.IsEntry)
		e.Bool(f.IsPublic)
		e.ULEB128(uint64(len(f.Params)))
		for _, p := range f.Params {
			e.String(p.String())
		}
		e.ULEB128(uint64(len(f.Returns)))
		for _, r := range f.Returns {
			e.String(r.String())
		}
	}

	e.ULEB128(uint64(len(m.Dependencies)))
	for _, dep := range m.Dependencies {
		e.Address(dep.Address)
		e.String(dep.Name)
	}
	return e.Bytes()
}

func sortedKeys(m map[string]StructDecl) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sortStrings(out)
	return out
}

func sortedFnKeys(m map[string]FunctionDecl) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sortStrings(out)
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// DeserializeModule decodes bytes produced by SerializeModule into a
// CompiledModule. It never panics; malformed input returns an error.
// Function bodies are never encoded on the wire (they are Go
// closures), so a freshly deserialized module has no bodies attached —
// callers register them separately via Resolver.RegisterFunctionBody.
func DeserializeModule(data []byte) (*CompiledModule, error) {
	d := bcs.NewDecoder(data)
	addr, err := d.Address()
	if err != nil {
		return nil, errors.Wrap(err, "resolver: decode module address")
	}
	name, err := d.String()
	if err != nil {
		return nil, errors.Wrap(err, "resolver: decode module name")
	}
	m := NewCompiledModule(ModuleID{Address: addr, Name: name})

	structCount, err := d.ULEB128()
	if err != nil {
		return nil, errors.Wrap(err, "resolver: decode struct count")
	}
	for i := uint64(0); i < structCount; i++ {
		s, err := decodeStruct(d)
		if err != nil {
			return nil, err
		}
		m.Structs[s.Name] = s
	}

	fnCount, err := d.ULEB128()
	if err != nil {
		return nil, errors.Wrap(err, "resolver: decode function count")
	}
	for i := uint64(0); i < fnCount; i++ {
		f, err := decodeFunction(d)
		if err != nil {
			return nil, err
		}
		m.Functions[f.Name] = f
	}

	depCount, err := d.ULEB128()
	if err != nil {
		return nil, errors.Wrap(err, "resolver: decode dependency count")
	}
	for i := uint64(0); i < depCount; i++ {
		depAddr, err := d.Address()
		if err != nil {
			return nil, err
		}
		depName, err := d.String()
		if err != nil {
			return nil, err
		}
		m.Dependencies = append(m.Dependencies, ModuleID{Address: depAddr, Name: depName})
	}

	return m, nil
}

func decodeStruct(d *bcs.Decoder) (StructDecl, error) {
	name, err := d.String()
	if err != nil {
		return StructDecl{}, errors.Wrap(err, "resolver: decode struct name")
	}
	fieldCount, err := d.ULEB128()
	if err != nil {
		return StructDecl{}, err
	}
	fields := make([]FieldDecl, 0, fieldCount)
	for i := uint64(0); i < fieldCount; i++ {
		fname, err := d.String()
		if err != nil {
			return StructDecl{}, err
		}
		ftypeStr, err := d.String()
		if err != nil {
			return StructDecl{}, err
		}
		ftype, err := bcs.ParseTypeTag(ftypeStr)
		if err != nil {
			return StructDecl{}, errors.Wrapf(err, "resolver: field %s type", fname)
		}
		fields = append(fields, FieldDecl{Name: fname, Type: ftype})
	}
	typeParams, err := d.U8()
	if err != nil {
		return StructDecl{}, err
	}
	return StructDecl{Name: name, Fields: fields, TypeParams: int(typeParams)}, nil
}

func decodeFunction(d *bcs.Decoder) (FunctionDecl, error) {
	name, err := d.String()
	if err != nil {
		return FunctionDecl{}, errors.Wrap(err, "resolver: decode function name")
	}
	typeParams, err := d.U8()
	if err != nil {
		return FunctionDecl{}, err
	}
	isEntry, err := d.Bool()
	if err != nil {
		return FunctionDecl{}, err
	}
	isPublic, err := d.Bool()
	if err != nil {
		return FunctionDecl{}, err
	}
	paramCount, err := d.ULEB128()
	if err != nil {
		return FunctionDecl{}, err
	}
	params := make([]bcs.TypeTag, 0, paramCount)
	for i := uint64(0); i < paramCount; i++ {
		s, err := d.String()
		if err != nil {
			return FunctionDecl{}, err
		}
		tag, err := bcs.ParseTypeTag(s)
		if err != nil {
			return FunctionDecl{}, err
		}
		params = append(params, tag)
	}
	returnCount, err := d.ULEB128()
	if err != nil {
		return FunctionDecl{}, err
	}
	returns := make([]bcs.TypeTag, 0, returnCount)
	for i := uint64(0); i < returnCount; i++ {
		s, err := d.String()
		if err != nil {
			return FunctionDecl{}, err
		}
		tag, err := bcs.ParseTypeTag(s)
		if err != nil {
			return FunctionDecl{}, err
		}
		returns = append(returns, tag)
	}
	return FunctionDecl{
		Name:       name,
		TypeParams: int(typeParams),
		Params:     params,
		Returns:    returns,
		IsEntry:    isEntry,
		IsPublic:   isPublic,
	}, nil
}
